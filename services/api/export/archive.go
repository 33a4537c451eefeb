package export

import (
	"bytes"
	"context"
	"fmt"
	"time"

	"github.com/02loveslollipop/shizuku-reports/services/api/report"
)

// Archiver stores a document with its printable rendering. db.Store
// implements it.
type Archiver interface {
	SaveDocument(ctx context.Context, doc *report.Document, html []byte) error
}

// ArchiveExporter keeps exported documents in the report archive.
type ArchiveExporter struct {
	archiver Archiver
}

// NewArchiveExporter creates an ArchiveExporter.
func NewArchiveExporter(a Archiver) *ArchiveExporter {
	return &ArchiveExporter{archiver: a}
}

// Name implements Exporter.
func (e *ArchiveExporter) Name() string { return "archive" }

// Export implements Exporter.
func (e *ArchiveExporter) Export(ctx context.Context, doc *report.Document) (*Result, error) {
	start := time.Now()

	var buf bytes.Buffer
	if err := report.RenderHTML(doc, &buf); err != nil {
		return nil, fmt.Errorf("render html: %w", err)
	}
	if err := e.archiver.SaveDocument(ctx, doc, buf.Bytes()); err != nil {
		return nil, err
	}
	return finish(&Result{Target: e.Name(), Location: doc.ID, Bytes: buf.Len()}, start), nil
}
