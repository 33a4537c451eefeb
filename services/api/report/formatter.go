package report

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"gopkg.in/yaml.v3"
)

// Formatter renders a document in a specific format.
type Formatter interface {
	// Format renders the document to the given writer.
	Format(ctx context.Context, doc *Document, w io.Writer) error

	// Name returns the format name (json, yaml, text, html).
	Name() string

	// ContentType returns the MIME type of the rendered output.
	ContentType() string
}

// Formats lists the supported format names.
func Formats() []string {
	return []string{"json", "yaml", "text", "html"}
}

// NewFormatter returns the formatter registered under name.
func NewFormatter(name string) (Formatter, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "json":
		return &JSONFormatter{}, nil
	case "yaml", "yml":
		return &YAMLFormatter{}, nil
	case "text", "txt":
		return &TextFormatter{}, nil
	case "html":
		return &HTMLFormatter{}, nil
	default:
		return nil, fmt.Errorf("unknown format %q (must be one of %s)", name, strings.Join(Formats(), ", "))
	}
}

// JSONFormatter formats documents as indented JSON.
type JSONFormatter struct{}

// Name returns the format name.
func (f *JSONFormatter) Name() string { return "json" }

// ContentType returns the MIME type.
func (f *JSONFormatter) ContentType() string { return "application/json; charset=utf-8" }

// Format renders the document as JSON.
func (f *JSONFormatter) Format(_ context.Context, doc *Document, w io.Writer) error {
	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	return encoder.Encode(doc)
}

// YAMLFormatter formats documents as YAML.
type YAMLFormatter struct{}

// Name returns the format name.
func (f *YAMLFormatter) Name() string { return "yaml" }

// ContentType returns the MIME type.
func (f *YAMLFormatter) ContentType() string { return "application/yaml; charset=utf-8" }

// Format renders the document as YAML.
func (f *YAMLFormatter) Format(_ context.Context, doc *Document, w io.Writer) error {
	encoder := yaml.NewEncoder(w)
	encoder.SetIndent(2)
	if err := encoder.Encode(doc); err != nil {
		return fmt.Errorf("encoding yaml: %w", err)
	}
	return encoder.Close()
}

// HTMLFormatter renders the printable document.
type HTMLFormatter struct{}

// Name returns the format name.
func (f *HTMLFormatter) Name() string { return "html" }

// ContentType returns the MIME type.
func (f *HTMLFormatter) ContentType() string { return "text/html; charset=utf-8" }

// Format renders the document as HTML.
func (f *HTMLFormatter) Format(_ context.Context, doc *Document, w io.Writer) error {
	return RenderHTML(doc, w)
}

// TextFormatter formats documents as human-readable text.
type TextFormatter struct{}

// Name returns the format name.
func (f *TextFormatter) Name() string { return "text" }

// ContentType returns the MIME type.
func (f *TextFormatter) ContentType() string { return "text/plain; charset=utf-8" }

// Format renders the document as text.
func (f *TextFormatter) Format(_ context.Context, doc *Document, w io.Writer) error {
	fmt.Fprintf(w, "=== %s ===\n", doc.Title)
	fmt.Fprintf(w, "Generated: %s\n", doc.GeneratedAt.Format("2006-01-02 15:04:05 MST"))
	fmt.Fprintf(w, "Status: %s", doc.Status)
	if doc.Stale {
		fmt.Fprint(w, " (cached)")
	}
	fmt.Fprintln(w)
	fmt.Fprintln(w)

	switch doc.Status {
	case StatusError:
		fmt.Fprintf(w, "Data could not be fetched: %s\n", doc.Error)
		return nil
	case StatusNoData:
		fmt.Fprintf(w, "No readings were recorded in %s.\n", doc.Period.Label)
		return nil
	}

	fmt.Fprintf(w, "Entities: %d\n", doc.EntityCount)
	for _, m := range doc.Summary {
		fmt.Fprintf(w, "Average %s: %s\n", m.Label, m.Display)
	}
	fmt.Fprintf(w, "Heat stress (>= %s): %d\n", doc.HeatStress.ThresholdDisplay, doc.HeatStress.Count)
	fmt.Fprintln(w)

	fmt.Fprintf(w, "Top %d:\n", len(doc.Top))
	for _, r := range doc.Top {
		delta := "n/a"
		if r.HasDelta {
			delta = fmt.Sprintf("%+.1f%%", r.Delta)
		}
		fmt.Fprintf(w, "  %d. %-28s %-10s %s=%.1f change=%s\n", r.Rank, r.Name, r.Severity, doc.IndexField, r.Index, delta)
	}
	fmt.Fprintln(w)

	fmt.Fprintln(w, "Distribution:")
	for _, d := range doc.Distribution {
		fmt.Fprintf(w, "  %-10s %3d  %5.1f%%\n", d.Severity, d.Count, d.Percent)
	}

	if len(doc.Insights) > 0 {
		fmt.Fprintln(w)
		fmt.Fprintln(w, "Insights:")
		for _, line := range doc.Insights {
			fmt.Fprintf(w, "  - %s\n", line)
		}
	}
	return nil
}
