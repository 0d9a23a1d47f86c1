package exporter

import (
	"context"

	"github.com/document-export-api/internal/pdfdoc"
	"github.com/rs/zerolog"
)

type pdfRenderer struct {
	branded bool
	log     zerolog.Logger
}

func newPDFRenderer(branded bool, log zerolog.Logger) *pdfRenderer {
	return &pdfRenderer{branded: branded, log: log.With().Str("component", "pdf").Logger()}
}

// Render builds the document definition, then lays it out
func (r *pdfRenderer) Render(ctx context.Context, in *Input) (*Rendered, error) {
	doc := pdfdoc.NewBuilder(in.Config, r.branded, r.log).Build(in.Data, in.Columns)

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	out, err := pdfdoc.Render(doc)
	if err != nil {
		return nil, err
	}

	r.log.Debug().
		Int("pages", out.Pages).
		Int("blocks", len(doc.Content)).
		Msg("PDF rendered")

	return &Rendered{Content: out.Data, Warnings: out.Warnings}, nil
}
