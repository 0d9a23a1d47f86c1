// Package processor turns raw record collections into normalized tables.
package processor

import (
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/document-export-api/internal/models"
	"github.com/document-export-api/internal/normalize"
)

const (
	DefaultTitle       = "Reporte"
	DefaultDescription = ""
	DefaultAuthor      = "Sistema"
)

// Table is the tabular projection of a record collection. Columns keep the
// caller's declared types; Kinds holds the declared or inferred type of each
// column and only drives layout decisions such as alignment.
type Table struct {
	Columns []models.Column
	Kinds   []models.ColumnType
	Rows    [][]interface{}
}

// Kind returns the declared or inferred type of column i
func (t *Table) Kind(i int) models.ColumnType {
	if i < 0 || i >= len(t.Kinds) {
		return models.ColumnString
	}
	return t.Kinds[i]
}

// Statistics summarizes a processed table
type Statistics struct {
	TotalRows    int `json:"total_rows"`
	TotalColumns int `json:"total_columns"`
}

// Processor projects records onto columns. It never mutates its input.
type Processor struct {
	records  []models.Record
	columns  []models.Column
	metadata *models.Metadata
	now      func() time.Time
}

// New creates a Processor for the given records and optional columns
func New(records []models.Record, columns []models.Column, metadata *models.Metadata) *Processor {
	return &Processor{
		records:  records,
		columns:  columns,
		metadata: metadata,
		now:      time.Now,
	}
}

// Process builds the table. With declared columns each record is projected
// onto exactly those columns; without them nested objects are flattened and
// the column set is the union of keys in first-seen order.
func (p *Processor) Process() *Table {
	if len(p.columns) > 0 {
		return p.project()
	}
	return p.flatten()
}

func (p *Processor) project() *Table {
	columns := make([]models.Column, len(p.columns))
	copy(columns, p.columns)

	kinds := make([]models.ColumnType, len(columns))
	for i := range columns {
		kinds[i] = columns[i].Type
		if kinds[i] != "" {
			continue
		}
		kinds[i] = models.ColumnString
		for _, rec := range p.records {
			if v, ok := Lookup(rec, columns[i].Key); ok && !normalize.IsEmpty(v) {
				kinds[i] = normalize.DetectType(v)
				break
			}
		}
	}

	rows := make([][]interface{}, 0, len(p.records))
	for _, rec := range p.records {
		row := make([]interface{}, len(columns))
		for i, col := range columns {
			v, _ := Lookup(rec, col.Key)
			row[i] = v
		}
		rows = append(rows, row)
	}

	return &Table{Columns: columns, Kinds: kinds, Rows: rows}
}

func (p *Processor) flatten() *Table {
	flat := make([]map[string]interface{}, len(p.records))
	var keys []string
	seen := make(map[string]bool)
	types := make(map[string]models.ColumnType)

	for i, rec := range p.records {
		flat[i] = Flatten(rec)
		for _, k := range sortedKeys(flat[i]) {
			if !seen[k] {
				seen[k] = true
				keys = append(keys, k)
			}
			if _, typed := types[k]; !typed && !normalize.IsEmpty(flat[i][k]) {
				types[k] = normalize.DetectType(flat[i][k])
			}
		}
	}

	columns := make([]models.Column, len(keys))
	kinds := make([]models.ColumnType, len(keys))
	for i, k := range keys {
		typ, ok := types[k]
		if !ok {
			typ = models.ColumnString
		}
		columns[i] = models.Column{Key: k, Header: k}
		kinds[i] = typ
	}

	rows := make([][]interface{}, len(flat))
	for i, rec := range flat {
		row := make([]interface{}, len(keys))
		for j, k := range keys {
			row[j] = rec[k]
		}
		rows[i] = row
	}

	return &Table{Columns: columns, Kinds: kinds, Rows: rows}
}

// Metadata returns the document metadata with defaults applied
func (p *Processor) Metadata() models.Metadata {
	meta := models.Metadata{
		Title:       DefaultTitle,
		Description: DefaultDescription,
		Author:      DefaultAuthor,
		CreatedAt:   p.now(),
	}
	if p.metadata == nil {
		return meta
	}
	if p.metadata.Title != "" {
		meta.Title = p.metadata.Title
	}
	if p.metadata.Description != "" {
		meta.Description = p.metadata.Description
	}
	if p.metadata.Author != "" {
		meta.Author = p.metadata.Author
	}
	if !p.metadata.CreatedAt.IsZero() {
		meta.CreatedAt = p.metadata.CreatedAt
	}
	return meta
}

// Statistics returns row and column counts of the processed table
func (p *Processor) Statistics() Statistics {
	t := p.Process()
	return Statistics{TotalRows: len(t.Rows), TotalColumns: len(t.Columns)}
}

// Lookup resolves a dot-path against a record. Missing segments yield
// (nil, false) rather than an error. A key that literally contains dots
// takes precedence over traversal.
func Lookup(rec map[string]interface{}, path string) (interface{}, bool) {
	if rec == nil || path == "" {
		return nil, false
	}
	if v, ok := rec[path]; ok {
		return v, true
	}

	var current interface{} = rec
	for _, segment := range strings.Split(path, ".") {
		switch node := current.(type) {
		case map[string]interface{}:
			next, ok := node[segment]
			if !ok {
				return nil, false
			}
			current = next
		case []interface{}:
			idx, err := strconv.Atoi(segment)
			if err != nil || idx < 0 || idx >= len(node) {
				return nil, false
			}
			current = node[idx]
		default:
			return nil, false
		}
	}
	return current, true
}

// Flatten converts nested maps into dot-path keys. Slices are kept as
// values; the format decides how to render them.
func Flatten(rec map[string]interface{}) map[string]interface{} {
	out := make(map[string]interface{}, len(rec))
	flattenInto(out, "", rec)
	return out
}

func flattenInto(out map[string]interface{}, prefix string, node map[string]interface{}) {
	for k, v := range node {
		key := k
		if prefix != "" {
			key = prefix + "." + k
		}
		if nested, ok := v.(map[string]interface{}); ok && len(nested) > 0 {
			flattenInto(out, key, nested)
			continue
		}
		out[key] = v
	}
}

// sortedKeys gives map iteration a stable order so repeated runs agree
func sortedKeys(m map[string]interface{}) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
