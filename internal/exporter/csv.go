package exporter

import (
	"bytes"
	"context"
	"encoding/csv"
	"fmt"
	"unicode/utf8"

	"github.com/document-export-api/internal/normalize"
	"github.com/document-export-api/internal/processor"
)

const ctxCheckInterval = 1000

type csvRenderer struct{}

// Render writes one header row plus one row per record. Values are written
// in full: nil becomes an empty cell, maps and slices compact JSON.
func (r *csvRenderer) Render(ctx context.Context, in *Input) (*Rendered, error) {
	table := processor.New(in.Data.Records, in.Columns, in.Data.Metadata).Process()

	var buf bytes.Buffer
	if in.Config.CSV.BOM {
		buf.WriteString("\ufeff")
	}

	w := csv.NewWriter(&buf)
	if d, _ := utf8.DecodeRuneInString(in.Config.CSV.Delimiter); d != utf8.RuneError {
		w.Comma = d
	}

	if len(table.Columns) > 0 {
		header := make([]string, len(table.Columns))
		for i, col := range table.Columns {
			header[i] = col.Label()
		}
		if err := w.Write(header); err != nil {
			return nil, fmt.Errorf("failed to write csv header: %w", err)
		}
	}

	record := make([]string, len(table.Columns))
	for n, row := range table.Rows {
		if n%ctxCheckInterval == 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
		}
		for i, col := range table.Columns {
			v := row[i]
			if col.Formatter != nil {
				v = col.Formatter(v)
			}
			record[i] = normalize.Scalar(v)
		}
		if err := w.Write(record); err != nil {
			return nil, fmt.Errorf("failed to write csv row %d: %w", n+1, err)
		}
	}

	w.Flush()
	if err := w.Error(); err != nil {
		return nil, fmt.Errorf("failed to flush csv: %w", err)
	}
	return &Rendered{Content: buf.Bytes()}, nil
}
