package exporter

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/document-export-api/internal/exportconfig"
	"github.com/document-export-api/internal/models"
	"github.com/document-export-api/internal/normalize"
	"github.com/document-export-api/internal/pdfdoc"
	"github.com/document-export-api/internal/processor"
	"github.com/document-export-api/internal/validation"
	"github.com/xuri/excelize/v2"
)

const (
	xlsxMime = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

	minColumnWidth = 8
	maxColumnWidth = 60
	widthSample    = 200
)

type xlsxRenderer struct {
	branded bool
	now     func() time.Time
}

func newXLSXRenderer(branded bool) *xlsxRenderer {
	return &xlsxRenderer{branded: branded, now: time.Now}
}

type sheet struct {
	name    string
	records []models.Record
	columns []models.Column
}

type sheetStyles struct {
	header int
	title  int
	sub    int
}

// Render writes one sheet per dataset, or a single sheet for plain records
func (r *xlsxRenderer) Render(ctx context.Context, in *Input) (*Rendered, error) {
	f := excelize.NewFile()
	defer f.Close()

	styles, err := r.styles(f, in.Config.Branding)
	if err != nil {
		return nil, err
	}

	meta := processor.New(nil, nil, in.Data.Metadata).Metadata()
	var warnings []string
	for i, s := range sheetsFor(in) {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if i == 0 {
			err = f.SetSheetName(f.GetSheetName(0), s.name)
		} else {
			_, err = f.NewSheet(s.name)
		}
		if err != nil {
			return nil, fmt.Errorf("failed to create sheet %q: %w", s.name, err)
		}

		trimmed, err := r.writeSheet(f, s, in.Config, meta, styles)
		if err != nil {
			return nil, fmt.Errorf("failed to write sheet %q: %w", s.name, err)
		}
		if trimmed {
			warnings = append(warnings, fmt.Sprintf("Algunas celdas de la hoja '%s' superaban %d caracteres y fueron recortadas", s.name, excelize.TotalCellChars))
		}
	}
	f.SetActiveSheet(0)

	if err := f.SetDocProps(&excelize.DocProperties{
		Title:       meta.Title,
		Subject:     meta.Description,
		Description: meta.Description,
		Creator:     meta.Author,
		Created:     meta.CreatedAt.UTC().Format(time.RFC3339),
		Modified:    r.now().UTC().Format(time.RFC3339),
		Language:    in.Config.Locale,
	}); err != nil {
		return nil, fmt.Errorf("failed to set workbook properties: %w", err)
	}

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("failed to write workbook: %w", err)
	}
	return &Rendered{Content: buf.Bytes(), Warnings: warnings}, nil
}

func (r *xlsxRenderer) styles(f *excelize.File, b models.BrandingConfig) (sheetStyles, error) {
	primary := colorOr(b.PrimaryColor, exportconfig.DefaultPrimaryColor)
	secondary := colorOr(b.SecondaryColor, exportconfig.DefaultSecondaryColor)

	header := &excelize.Style{
		Font:      &excelize.Font{Bold: true, Color: "#1F1F1F"},
		Fill:      excelize.Fill{Type: "pattern", Pattern: 1, Color: []string{secondary}},
		Alignment: &excelize.Alignment{Horizontal: "center", Vertical: "center", WrapText: true},
		Border: []excelize.Border{
			{Type: "bottom", Color: primary, Style: 2},
		},
	}
	if r.branded {
		header.Font = &excelize.Font{Bold: true, Color: "#FFFFFF"}
		header.Fill.Color = []string{primary}
	}

	var s sheetStyles
	var err error
	if s.header, err = f.NewStyle(header); err != nil {
		return s, fmt.Errorf("failed to create header style: %w", err)
	}
	if s.title, err = f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true, Size: 16, Color: primary}}); err != nil {
		return s, fmt.Errorf("failed to create title style: %w", err)
	}
	if s.sub, err = f.NewStyle(&excelize.Style{Font: &excelize.Font{Italic: true, Size: 10, Color: "#595959"}}); err != nil {
		return s, fmt.Errorf("failed to create subtitle style: %w", err)
	}
	return s, nil
}

// writeSheet fills one sheet and reports whether any cell had to be trimmed
func (r *xlsxRenderer) writeSheet(f *excelize.File, s sheet, cfg models.ExportConfig, meta models.Metadata, st sheetStyles) (bool, error) {
	table := processor.New(s.records, s.columns, nil).Process()

	headerRow := 1
	if r.branded {
		headerRow = 4
		if err := r.writeTitle(f, s.name, len(table.Columns), cfg, meta, st); err != nil {
			return false, err
		}
	}

	if len(table.Columns) == 0 {
		cell, _ := excelize.CoordinatesToCellName(1, headerRow)
		return false, f.SetCellStr(s.name, cell, pdfdoc.LabelsFor(cfg.Locale).NoData)
	}

	header := make([]interface{}, len(table.Columns))
	widths := make([]int, len(table.Columns))
	for i, col := range table.Columns {
		header[i] = col.Label()
		widths[i] = utf8.RuneCountInString(col.Label())
	}
	first, _ := excelize.CoordinatesToCellName(1, headerRow)
	last, _ := excelize.CoordinatesToCellName(len(table.Columns), headerRow)
	if err := f.SetSheetRow(s.name, first, &header); err != nil {
		return false, err
	}
	if err := f.SetCellStyle(s.name, first, last, st.header); err != nil {
		return false, err
	}

	trimmed := false
	values := make([]interface{}, len(table.Columns))
	for n, row := range table.Rows {
		for i, col := range table.Columns {
			v, cut := cellValue(row[i], col, table.Kind(i))
			trimmed = trimmed || cut
			values[i] = v
			if n < widthSample {
				if w := displayWidth(v); w > widths[i] {
					widths[i] = w
				}
			}
		}
		cell, _ := excelize.CoordinatesToCellName(1, headerRow+n+1)
		if err := f.SetSheetRow(s.name, cell, &values); err != nil {
			return trimmed, err
		}
	}

	for i, w := range widths {
		name, _ := excelize.ColumnNumberToName(i + 1)
		if err := f.SetColWidth(s.name, name, name, float64(clamp(w+2, minColumnWidth, maxColumnWidth))); err != nil {
			return trimmed, err
		}
	}

	if cfg.XLSX.FreezeHeader {
		if err := f.SetPanes(s.name, &excelize.Panes{
			Freeze:      true,
			YSplit:      headerRow,
			TopLeftCell: fmt.Sprintf("A%d", headerRow+1),
			ActivePane:  "bottomLeft",
		}); err != nil {
			return trimmed, err
		}
	}

	if cfg.XLSX.AutoFilter && len(table.Rows) > 0 {
		end, _ := excelize.CoordinatesToCellName(len(table.Columns), headerRow+len(table.Rows))
		if err := f.AutoFilter(s.name, first+":"+end, nil); err != nil {
			return trimmed, err
		}
	}

	return trimmed, nil
}

// writeTitle adds the branded banner above the table: document title, then
// organization and generation date.
func (r *xlsxRenderer) writeTitle(f *excelize.File, name string, cols int, cfg models.ExportConfig, meta models.Metadata, st sheetStyles) error {
	if err := f.SetCellStr(name, "A1", meta.Title); err != nil {
		return err
	}
	if err := f.SetCellStyle(name, "A1", "A1", st.title); err != nil {
		return err
	}
	if err := f.SetRowHeight(name, 1, 24); err != nil {
		return err
	}

	sub := normalize.Scalar(normalize.FormatDate(r.now(), cfg.Locale))
	if cfg.Branding.OrgName != "" {
		sub = cfg.Branding.OrgName + " - " + sub
	}
	if err := f.SetCellStr(name, "A2", sub); err != nil {
		return err
	}
	if err := f.SetCellStyle(name, "A2", "A2", st.sub); err != nil {
		return err
	}

	if cols > 1 {
		end, _ := excelize.ColumnNumberToName(cols)
		if err := f.MergeCell(name, "A1", end+"1"); err != nil {
			return err
		}
		if err := f.MergeCell(name, "A2", end+"2"); err != nil {
			return err
		}
	}
	return nil
}

// sheetsFor lists the sheets to write with unique, valid names
func sheetsFor(in *Input) []sheet {
	if len(in.Data.Datasets) == 0 {
		name := validation.SanitizeSheetName(in.Config.XLSX.SheetName)
		return []sheet{{name: name, records: in.Data.Records, columns: in.Columns}}
	}

	used := make(map[string]bool)
	out := make([]sheet, 0, len(in.Data.Datasets))
	for _, ds := range in.Data.Datasets {
		cols := ds.Columns
		if len(cols) == 0 {
			cols = in.Columns
		}
		out = append(out, sheet{name: uniqueSheetName(ds.Name, used), records: ds.Records, columns: cols})
	}
	return out
}

// uniqueSheetName sanitizes name and suffixes it until it is unused.
// Spreadsheet tab names compare case-insensitively.
func uniqueSheetName(name string, used map[string]bool) string {
	base := validation.SanitizeSheetName(name)
	candidate := base
	for i := 2; used[strings.ToLower(candidate)]; i++ {
		suffix := fmt.Sprintf(" (%d)", i)
		runes := []rune(base)
		if limit := 31 - utf8.RuneCountInString(suffix); len(runes) > limit {
			runes = runes[:limit]
		}
		candidate = string(runes) + suffix
	}
	used[strings.ToLower(candidate)] = true
	return candidate
}

// cellValue converts a record value into a native cell value. Numbers,
// booleans and dates stay typed; structures become compact JSON. Strings in
// date columns, declared or inferred, are parsed into dates.
func cellValue(v interface{}, col models.Column, kind models.ColumnType) (interface{}, bool) {
	if col.Formatter != nil {
		v = col.Formatter(v)
	}

	switch val := v.(type) {
	case nil:
		return nil, false
	case bool, int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64, float32:
		return val, false
	case float64:
		if math.IsNaN(val) || math.IsInf(val, 0) {
			return normalize.Scalar(val), false
		}
		return val, false
	case json.Number:
		if f, err := val.Float64(); err == nil {
			return f, false
		}
		return val.String(), false
	case time.Time:
		if val.IsZero() {
			return nil, false
		}
		return val, false
	case *time.Time:
		if val == nil || val.IsZero() {
			return nil, false
		}
		return *val, false
	case string:
		if kind == models.ColumnDate {
			if t, ok := normalize.ParseDate(val); ok {
				return t, false
			}
		}
		return trimCell(val)
	}
	return trimCell(normalize.Scalar(v))
}

func trimCell(s string) (interface{}, bool) {
	if utf8.RuneCountInString(s) <= excelize.TotalCellChars {
		return s, false
	}
	return string([]rune(s)[:excelize.TotalCellChars]), true
}

func displayWidth(v interface{}) int {
	switch val := v.(type) {
	case nil:
		return 0
	case time.Time:
		return 10
	case string:
		return utf8.RuneCountInString(val)
	}
	return utf8.RuneCountInString(normalize.Scalar(v))
}

func clamp(n, lo, hi int) int {
	if n < lo {
		return lo
	}
	if n > hi {
		return hi
	}
	return n
}

func colorOr(c, fallback string) string {
	if validation.IsHexColor(c) {
		return c
	}
	return fallback
}
