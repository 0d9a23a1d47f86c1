package models

import (
	"encoding/json"
	"time"
)

// Record is one row of input data, keyed by field name
type Record = map[string]interface{}

// ColumnType drives default formatting and PDF layout heuristics
type ColumnType string

const (
	ColumnString  ColumnType = "string"
	ColumnNumber  ColumnType = "number"
	ColumnDate    ColumnType = "date"
	ColumnBoolean ColumnType = "boolean"
)

// ValidColumnTypes lists the accepted column types
var ValidColumnTypes = map[ColumnType]bool{
	ColumnString:  true,
	ColumnNumber:  true,
	ColumnDate:    true,
	ColumnBoolean: true,
}

// Formatter converts a raw value into its display value
type Formatter func(value interface{}) interface{}

// Column describes how one record field maps to one output column.
// Key may be a dot-path such as "customer.contact.email".
type Column struct {
	Key       string     `json:"key"`
	Header    string     `json:"header,omitempty"`
	Type      ColumnType `json:"type,omitempty"`
	Formatter Formatter  `json:"-"`
}

// Label returns the header, falling back to the key
func (c Column) Label() string {
	if c.Header != "" {
		return c.Header
	}
	return c.Key
}

// Dataset is a named record collection, exported as its own sheet or section
type Dataset struct {
	Name    string   `json:"name"`
	Records []Record `json:"records"`
	Columns []Column `json:"columns,omitempty"`
}

// Metadata describes the exported document
type Metadata struct {
	Title       string    `json:"title,omitempty"`
	Description string    `json:"description,omitempty"`
	Author      string    `json:"author,omitempty"`
	CreatedAt   time.Time `json:"created_at,omitempty"`
}

// ContentType tags an explicit PDF content block
type ContentType string

const (
	ContentCover     ContentType = "cover"
	ContentTitle     ContentType = "title"
	ContentParagraph ContentType = "paragraph"
	ContentTable     ContentType = "table"
	ContentPageBreak ContentType = "pageBreak"
	ContentImage     ContentType = "image"
)

// ContentItem is one caller-supplied block of an explicit-mode PDF
type ContentItem struct {
	Type     ContentType     `json:"type"`
	Text     string          `json:"text,omitempty"`
	Title    string          `json:"title,omitempty"`
	Subtitle string          `json:"subtitle,omitempty"`
	Level    int             `json:"level,omitempty"`
	Records  []Record        `json:"data,omitempty"`
	Rows     [][]interface{} `json:"rows,omitempty"`
	Columns  []Column        `json:"columns,omitempty"`
	Image    string          `json:"image,omitempty"` // file path or data URI
	Width    float64         `json:"width,omitempty"`
}

// ExportData is the payload of an export request
type ExportData struct {
	Records  []Record      `json:"records"`
	Datasets []Dataset     `json:"datasets"`
	Metadata *Metadata     `json:"metadata,omitempty"`
	Content  []ContentItem `json:"content"`
}

// IsEmpty reports whether no data source was supplied at all
func (d *ExportData) IsEmpty() bool {
	return d == nil || (d.Records == nil && d.Datasets == nil && d.Content == nil)
}

// ExportRequest is the unit of work submitted to the orchestrator
type ExportRequest struct {
	Data    ExportData      `json:"data"`
	Columns []Column        `json:"columns,omitempty"`
	Formats []string        `json:"formats"`
	Config  json.RawMessage `json:"config,omitempty"`
}

// ExportResult is the outcome of exporting to one format
type ExportResult struct {
	Success  bool     `json:"success"`
	Format   string   `json:"format"`
	Filename string   `json:"filename,omitempty"`
	Content  []byte   `json:"-"`
	Size     int64    `json:"size"`
	MimeType string   `json:"mime_type,omitempty"`
	Location string   `json:"location,omitempty"`
	Errors   []string `json:"errors"`
	Warnings []string `json:"warnings"`
}

// NewExportResult creates an empty result for one format
func NewExportResult(format string) *ExportResult {
	return &ExportResult{
		Format:   format,
		Errors:   []string{},
		Warnings: []string{},
	}
}

// AddError records a failure and clears any produced content
func (r *ExportResult) AddError(msg string) {
	r.Errors = append(r.Errors, msg)
	r.Success = false
	r.Content = nil
	r.Size = 0
}

// AddWarning records a non-fatal advisory message
func (r *ExportResult) AddWarning(msg string) {
	r.Warnings = append(r.Warnings, msg)
}

// ExportResponse aggregates the per-format results of one request
type ExportResponse struct {
	Success bool            `json:"success"`
	Results []*ExportResult `json:"results"`
}
