package report

import (
	"fmt"
	"html/template"
	"io"
	"time"
)

var documentTemplate = template.Must(template.New("report").Funcs(template.FuncMap{
	"ts": func(t time.Time) string {
		if t.IsZero() {
			return "n/a"
		}
		return t.UTC().Format("2006-01-02 15:04 MST")
	},
	"pct": func(v float64) string {
		return fmt.Sprintf("%.1f%%", v)
	},
	"num": func(v float64) string {
		return fmt.Sprintf("%.1f", v)
	},
	"delta": func(r RankedRow) string {
		if !r.HasDelta {
			return "n/a"
		}
		return fmt.Sprintf("%+.1f%%", r.Delta)
	},
	"css": func(s string) template.CSS {
		return template.CSS(s)
	},
}).Parse(documentHTML))

// RenderHTML writes doc as a self-contained printable page: inline styles,
// no scripts, no external resources.
func RenderHTML(doc *Document, w io.Writer) error {
	return documentTemplate.Execute(w, doc)
}

const documentHTML = `<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="utf-8">
<meta name="viewport" content="width=device-width,initial-scale=1">
<title>{{.Title}}</title>
<style>
@page { size: A4; margin: 16mm; }
body { font-family: -apple-system, "Segoe UI", Roboto, Helvetica, Arial, sans-serif; color: #111827; margin: 0; padding: 24px; }
h1 { font-size: 22px; margin: 0 0 4px; }
h2 { font-size: 15px; margin: 24px 0 8px; text-transform: uppercase; letter-spacing: .04em; color: #374151; }
.meta { color: #6b7280; font-size: 12px; }
.status { display: inline-block; padding: 2px 8px; border-radius: 10px; font-size: 12px; background: #e5e7eb; }
.status-no_data { background: #fef3c7; }
.status-error { background: #fee2e2; }
.cards { display: flex; flex-wrap: wrap; gap: 12px; }
.card { border: 1px solid #e5e7eb; border-radius: 8px; padding: 10px 14px; min-width: 120px; }
.card .label { font-size: 11px; color: #6b7280; }
.card .value { font-size: 20px; font-weight: 600; }
table { border-collapse: collapse; width: 100%; font-size: 13px; }
th, td { text-align: left; padding: 6px 8px; border-bottom: 1px solid #e5e7eb; }
th { background: #f9fafb; }
.badge { color: #fff; border-radius: 4px; padding: 1px 6px; font-size: 11px; font-weight: 600; white-space: nowrap; }
.bar { height: 8px; background: #e5e7eb; border-radius: 4px; }
.bar span { display: block; height: 8px; border-radius: 4px; }
.empty { padding: 24px; border: 1px dashed #d1d5db; border-radius: 8px; color: #6b7280; text-align: center; }
ul { padding-left: 18px; }
</style>
</head>
<body>
<h1>{{.Title}}</h1>
<div class="meta">Generated {{ts .GeneratedAt}} &middot; {{.Period.Label}} &middot; {{.EntityCount}} {{.EntityKind}} record(s) <span class="status status-{{.Status}}">{{.Status}}</span>{{if .Stale}} <span class="status">cached</span>{{end}}</div>
{{if eq .Status "error"}}
<div class="empty">Data could not be fetched: {{.Error}}</div>
{{else if eq .Status "no_data"}}
<div class="empty">No readings were recorded in {{.Period.Label}}.</div>
{{else}}
<h2>Summary</h2>
<div class="cards">
{{range .Summary}}<div class="card"><div class="label">Average {{.Label}}</div><div class="value">{{.Display}}</div></div>
{{end}}<div class="card"><div class="label">Heat stress (&ge; {{.HeatStress.ThresholdDisplay}})</div><div class="value">{{.HeatStress.Count}}</div></div>
</div>
<h2>Top {{len .Top}}</h2>
<table>
<thead><tr><th>#</th><th>Name</th><th>Severity</th><th>{{.IndexField}}</th><th>Change</th><th>Last reading</th></tr></thead>
<tbody>
{{range .Top}}<tr><td>{{.Rank}}</td><td>{{.Name}}</td><td><span class="badge" style="background: {{css .Badge}}">{{.Severity}}</span></td><td>{{num .Index}}</td><td>{{delta .}}</td><td>{{ts .At}}</td></tr>
{{end}}</tbody>
</table>
<h2>Severity distribution</h2>
<table>
<thead><tr><th>Severity</th><th>Count</th><th>Share</th><th style="width:40%"></th></tr></thead>
<tbody>
{{range .Distribution}}<tr><td><span class="badge" style="background: {{css .Badge}}">{{.Severity}}</span></td><td>{{.Count}}</td><td>{{pct .Percent}}</td><td><div class="bar"><span style="width: {{css (pct .Percent)}}; background: {{css .Badge}}"></span></div></td></tr>
{{end}}</tbody>
</table>
{{if .Insights}}<h2>Insights</h2>
<ul>
{{range .Insights}}<li>{{.}}</li>
{{end}}</ul>{{end}}
{{end}}
<div class="meta">Report {{.ID}}</div>
</body>
</html>
`
