package main

import (
	"os"

	"github.com/02loveslollipop/shizuku-reports/services/api/cli"
)

func main() {
	os.Exit(cli.Execute())
}
