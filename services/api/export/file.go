package export

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/02loveslollipop/shizuku-reports/services/api/report"
)

// FileExporter writes rendered documents into a directory.
type FileExporter struct {
	dir       string
	formatter report.Formatter
}

// NewFileExporter writes documents rendered by formatter into dir. A nil
// formatter means HTML.
func NewFileExporter(dir string, formatter report.Formatter) *FileExporter {
	if formatter == nil {
		formatter = &report.HTMLFormatter{}
	}
	return &FileExporter{dir: dir, formatter: formatter}
}

// Name implements Exporter.
func (e *FileExporter) Name() string { return "file" }

// Export renders doc and writes it atomically. The result's Location is the
// written path.
func (e *FileExporter) Export(ctx context.Context, doc *report.Document) (*Result, error) {
	start := time.Now()

	var buf bytes.Buffer
	if err := e.formatter.Format(ctx, doc, &buf); err != nil {
		return nil, fmt.Errorf("render %s: %w", e.formatter.Name(), err)
	}

	if err := os.MkdirAll(e.dir, 0o755); err != nil {
		return nil, fmt.Errorf("create export dir: %w", err)
	}

	path := filepath.Join(e.dir, FileName(doc, extension(e.formatter.Name())))
	tmp, err := os.CreateTemp(e.dir, ".export-*")
	if err != nil {
		return nil, fmt.Errorf("create temp file: %w", err)
	}
	if _, err := tmp.Write(buf.Bytes()); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return nil, fmt.Errorf("write export: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return nil, fmt.Errorf("write export: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		os.Remove(tmp.Name())
		return nil, fmt.Errorf("rename export: %w", err)
	}

	return finish(&Result{Target: e.Name(), Location: path, Bytes: buf.Len()}, start), nil
}

// FileName builds "<kind>-<period>-<timestamp>.<ext>" for doc.
func FileName(doc *report.Document, ext string) string {
	kind := string(doc.EntityKind)
	if kind == "" {
		kind = "report"
	}
	period := doc.Period.Key
	if period == "" {
		period = "unknown"
	}
	return fmt.Sprintf("%s-%s-%s.%s", kind, period, doc.GeneratedAt.UTC().Format("20060102T150405Z"), ext)
}

func extension(format string) string {
	switch strings.ToLower(format) {
	case "text":
		return "txt"
	case "":
		return "html"
	default:
		return strings.ToLower(format)
	}
}
