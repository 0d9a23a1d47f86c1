package exporter

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/document-export-api/internal/models"
	"github.com/document-export-api/internal/processor"
)

type jsonRenderer struct{}

type jsonMetadata struct {
	Title        string    `json:"title"`
	Description  string    `json:"description,omitempty"`
	Author       string    `json:"author"`
	CreatedAt    time.Time `json:"created_at"`
	ExportedAt   time.Time `json:"exported_at"`
	TotalRecords int       `json:"total_records"`
}

type jsonEnvelope struct {
	Metadata jsonMetadata `json:"metadata"`
	Data     interface{}  `json:"data"`
}

// Render encodes the records as a JSON array. Without columns the records
// keep their full nested structure; with columns each record is reduced to
// the declared keys. Datasets become an object keyed by dataset name.
func (r *jsonRenderer) Render(ctx context.Context, in *Input) (*Rendered, error) {
	var payload interface{}
	total := 0

	switch {
	case in.Data.Records != nil || in.Data.Datasets == nil:
		records := project(in.Data.Records, in.Columns)
		total = len(records)
		payload = records
	default:
		sets := make(map[string][]models.Record, len(in.Data.Datasets))
		for _, ds := range in.Data.Datasets {
			cols := ds.Columns
			if len(cols) == 0 {
				cols = in.Columns
			}
			sets[ds.Name] = project(ds.Records, cols)
			total += len(ds.Records)
		}
		payload = sets
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	if in.Config.JSON.IncludeMetadata {
		meta := processor.New(nil, nil, in.Data.Metadata).Metadata()
		payload = jsonEnvelope{
			Metadata: jsonMetadata{
				Title:        meta.Title,
				Description:  meta.Description,
				Author:       meta.Author,
				CreatedAt:    meta.CreatedAt,
				ExportedAt:   time.Now().UTC(),
				TotalRecords: total,
			},
			Data: payload,
		}
	}

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if in.Config.JSON.Pretty {
		enc.SetIndent("", "  ")
	}
	if err := enc.Encode(payload); err != nil {
		return nil, fmt.Errorf("failed to encode json: %w", err)
	}
	return &Rendered{Content: bytes.TrimRight(buf.Bytes(), "\n")}, nil
}

// project keeps only the declared columns of each record, keyed by column
// key. Missing values stay null. With no columns records pass through.
func project(records []models.Record, columns []models.Column) []models.Record {
	if records == nil {
		return []models.Record{}
	}
	if len(columns) == 0 {
		return records
	}

	out := make([]models.Record, len(records))
	for i, rec := range records {
		row := make(models.Record, len(columns))
		for _, col := range columns {
			v, _ := processor.Lookup(rec, col.Key)
			if col.Formatter != nil {
				v = col.Formatter(v)
			}
			row[col.Key] = v
		}
		out[i] = row
	}
	return out
}
