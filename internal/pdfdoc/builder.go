package pdfdoc

import (
	"fmt"
	"sort"
	"strings"
	"time"
	"unicode"
	"unicode/utf8"

	"github.com/document-export-api/internal/models"
	"github.com/document-export-api/internal/normalize"
	"github.com/document-export-api/internal/processor"
	"github.com/rs/zerolog"
)

// Labels are the fixed strings printed by automatic content
type Labels struct {
	NoData         string
	Summary        string
	Data           string
	TotalRows      string
	TotalColumns   string
	GeneratedAt    string
	Author         string
	EstimatedPages string
	Records        string
	Page           string
	PageOf         string
	Column         string
}

var labelSets = map[string]Labels{
	"es": {
		NoData:         "No hay datos disponibles",
		Summary:        "Resumen",
		Data:           "Datos",
		TotalRows:      "Total de registros: %s",
		TotalColumns:   "Total de columnas: %s",
		GeneratedAt:    "Fecha de generación: %s",
		Author:         "Autor: %s",
		EstimatedPages: "Páginas estimadas: %d",
		Records:        "%s registros",
		Page:           "Página %d",
		PageOf:         "Página %d de %d",
		Column:         "Columna %d",
	},
	"en": {
		NoData:         "No data available",
		Summary:        "Summary",
		Data:           "Data",
		TotalRows:      "Total rows: %s",
		TotalColumns:   "Total columns: %s",
		GeneratedAt:    "Generated on: %s",
		Author:         "Author: %s",
		EstimatedPages: "Estimated pages: %d",
		Records:        "%s records",
		Page:           "Page %d",
		PageOf:         "Page %d of %d",
		Column:         "Column %d",
	},
}

// LabelsFor returns the label set for a locale, defaulting to Spanish
func LabelsFor(locale string) Labels {
	base := strings.ToLower(locale)
	if i := strings.IndexAny(base, "-_"); i > 0 {
		base = base[:i]
	}
	if l, ok := labelSets[base]; ok {
		return l
	}
	return labelSets["es"]
}

// Builder turns export data into a Document
type Builder struct {
	cfg     models.ExportConfig
	branded bool
	labels  Labels
	cells   normalize.Options
	log     zerolog.Logger
	now     func() time.Time

	handlers map[models.ContentType]contentHandler
}

type contentHandler func(b *Builder, item models.ContentItem, meta models.Metadata) []Block

// NewBuilder creates a Builder for a resolved configuration
func NewBuilder(cfg models.ExportConfig, branded bool, log zerolog.Logger) *Builder {
	maxLen := cfg.MaxCellLength
	if maxLen == 0 {
		maxLen = normalize.DefaultMaxLength
	}
	b := &Builder{
		cfg:     cfg,
		branded: branded,
		labels:  LabelsFor(cfg.Locale),
		cells:   normalize.Options{Locale: cfg.Locale, MaxLength: maxLen},
		log:     log.With().Str("component", "pdfdoc").Logger(),
		now:     time.Now,
	}
	b.handlers = map[models.ContentType]contentHandler{
		models.ContentCover:     (*Builder).coverItem,
		models.ContentTitle:     (*Builder).titleItem,
		models.ContentParagraph: (*Builder).paragraphItem,
		models.ContentTable:     (*Builder).tableItem,
		models.ContentPageBreak: (*Builder).pageBreakItem,
		models.ContentImage:     (*Builder).imageItem,
	}
	return b
}

// Build produces the document. An explicit content list takes precedence over
// the automatic layout.
func (b *Builder) Build(data *models.ExportData, columns []models.Column) *Document {
	if data == nil {
		data = &models.ExportData{}
	}
	meta := processor.New(data.Records, columns, data.Metadata).Metadata()
	if data.Metadata == nil || data.Metadata.CreatedAt.IsZero() {
		meta.CreatedAt = b.now()
	}

	doc := &Document{
		Page:   b.pageSetup(),
		Info:   Info{Title: meta.Title, Subject: meta.Description, Author: meta.Author, CreatedAt: meta.CreatedAt},
		Styles: DefaultStyles(b.cfg.Branding, b.branded),
	}

	if len(data.Content) > 0 {
		doc.Content = b.explicit(data.Content, meta)
	} else {
		doc.Content = b.automatic(data, columns, meta)
	}

	doc.Context = DecoratorContext{
		Title:       meta.Title,
		OrgName:     b.cfg.Branding.OrgName,
		HeaderText:  b.cfg.Header.Text,
		FooterText:  b.cfg.Footer.Text,
		Generated:   b.generated(meta.CreatedAt),
		PageNumbers: b.cfg.Footer.PageNumbers,
		Labels:      b.labels,
	}
	if len(doc.Content) > 0 {
		_, doc.Context.SkipFirst = doc.Content[0].(*CoverBlock)
	}
	if b.cfg.Header.Enabled {
		doc.Header = HeaderDecorator
	}
	if b.cfg.Footer.Enabled {
		doc.Footer = FooterDecorator
	}

	return doc
}

func (b *Builder) pageSetup() PageSetup {
	p := PageSetup{Size: strings.ToUpper(b.cfg.PageSize), Orientation: b.cfg.PageOrientation, Margins: [4]float64{40, 60, 40, 60}}
	if p.Size == "" {
		p.Size = "A4"
	}
	if p.Orientation == "" {
		p.Orientation = "portrait"
	}
	if len(b.cfg.PageMargins) == 4 {
		copy(p.Margins[:], b.cfg.PageMargins)
	}
	return p
}

func (b *Builder) explicit(items []models.ContentItem, meta models.Metadata) []Block {
	var blocks []Block
	for i, item := range items {
		handler, ok := b.handlers[item.Type]
		if !ok {
			b.log.Warn().Str("type", string(item.Type)).Int("index", i).Msg("Skipping unsupported content type")
			continue
		}
		blocks = append(blocks, handler(b, item, meta)...)
	}
	return blocks
}

func (b *Builder) automatic(data *models.ExportData, columns []models.Column, meta models.Metadata) []Block {
	var blocks []Block

	if b.cfg.Cover.Enabled {
		blocks = append(blocks, b.cover(b.cfg.Cover.Title, b.cfg.Cover.Subtitle, meta))
	}

	blocks = append(blocks, &HeadingBlock{Text: meta.Title, Level: 1})
	if meta.Description != "" {
		blocks = append(blocks, &ParagraphBlock{Text: meta.Description})
	}

	if len(data.Datasets) > 0 {
		rows := 0
		for _, ds := range data.Datasets {
			rows += len(ds.Records)
		}
		first := data.Datasets[0]
		cols := processor.New(first.Records, pick(first.Columns, columns), nil).Statistics().TotalColumns
		blocks = append(blocks, b.summary(processor.Statistics{TotalRows: rows, TotalColumns: cols}, meta)...)

		for _, ds := range data.Datasets {
			p := processor.New(ds.Records, pick(ds.Columns, columns), nil)
			blocks = append(blocks, &HeadingBlock{Text: ds.Name, Level: 2})
			blocks = append(blocks, &ParagraphBlock{Text: fmt.Sprintf(b.labels.Records, formatCount(len(ds.Records), b.cfg.Locale)), Muted: true})
			blocks = append(blocks, b.processedTable(p.Process(), len(ds.Columns) == 0 && len(columns) == 0))
		}
		return blocks
	}

	p := processor.New(data.Records, columns, nil)
	table := p.Process()
	blocks = append(blocks, b.summary(processor.Statistics{TotalRows: len(table.Rows), TotalColumns: len(table.Columns)}, meta)...)
	blocks = append(blocks, &HeadingBlock{Text: b.labels.Data, Level: 2})
	blocks = append(blocks, b.processedTable(table, len(columns) == 0))
	return blocks
}

func (b *Builder) summary(stats processor.Statistics, meta models.Metadata) []Block {
	items := []string{
		fmt.Sprintf(b.labels.TotalRows, formatCount(stats.TotalRows, b.cfg.Locale)),
		fmt.Sprintf(b.labels.TotalColumns, formatCount(stats.TotalColumns, b.cfg.Locale)),
		fmt.Sprintf(b.labels.GeneratedAt, b.generated(meta.CreatedAt)),
	}
	if meta.Author != "" {
		items = append(items, fmt.Sprintf(b.labels.Author, meta.Author))
	}
	items = append(items, fmt.Sprintf(b.labels.EstimatedPages, EstimatePages(stats.TotalRows)))

	return []Block{
		&HeadingBlock{Text: b.labels.Summary, Level: 2},
		&ListBlock{Items: items},
	}
}

func (b *Builder) cover(title, subtitle string, meta models.Metadata) *CoverBlock {
	if title == "" {
		title = meta.Title
	}
	if subtitle == "" {
		subtitle = meta.Description
	}
	logo := b.cfg.Cover.Logo
	if logo == "" {
		logo = b.cfg.Branding.Logo
	}
	return &CoverBlock{
		Title:    title,
		Subtitle: subtitle,
		OrgName:  b.cfg.Branding.OrgName,
		Date:     b.generated(meta.CreatedAt),
		Logo:     logo,
	}
}

func (b *Builder) generated(t time.Time) string {
	return normalize.Scalar(normalize.FormatDate(t, b.cfg.Locale)) + " " + t.Format("15:04")
}

func (b *Builder) coverItem(item models.ContentItem, meta models.Metadata) []Block {
	return []Block{b.cover(item.Title, item.Subtitle, meta)}
}

func (b *Builder) titleItem(item models.ContentItem, meta models.Metadata) []Block {
	text := item.Text
	if text == "" {
		text = item.Title
	}
	level := item.Level
	if level < 1 || level > 3 {
		level = 1
	}
	return []Block{&HeadingBlock{Text: text, Level: level}}
}

func (b *Builder) paragraphItem(item models.ContentItem, meta models.Metadata) []Block {
	return []Block{&ParagraphBlock{Text: item.Text}}
}

func (b *Builder) tableItem(item models.ContentItem, meta models.Metadata) []Block {
	var blocks []Block
	if item.Title != "" {
		blocks = append(blocks, &HeadingBlock{Text: item.Title, Level: 2})
	}
	if item.Rows != nil {
		return append(blocks, b.CreateTableFromRows(item.Rows, item.Columns))
	}
	return append(blocks, b.CreateTable(item.Records, item.Columns))
}

func (b *Builder) pageBreakItem(item models.ContentItem, meta models.Metadata) []Block {
	return []Block{&PageBreakBlock{}}
}

func (b *Builder) imageItem(item models.ContentItem, meta models.Metadata) []Block {
	return []Block{&ImageBlock{Source: item.Image, Width: item.Width}}
}

// CreateTable builds a table from object rows. Without columns the first
// record's keys become the columns, headers capitalized. An empty record set
// yields a "no data" paragraph instead.
func (b *Builder) CreateTable(records []models.Record, columns []models.Column) Block {
	if len(records) == 0 {
		return &ParagraphBlock{Text: b.labels.NoData, Muted: true}
	}
	detected := len(columns) == 0
	if detected {
		keys := make([]string, 0, len(records[0]))
		for k := range records[0] {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			columns = append(columns, models.Column{Key: k, Header: k})
		}
	}
	return b.processedTable(processor.New(records, columns, nil).Process(), detected)
}

// CreateTableFromRows builds a table from positional rows. Without columns
// headers are synthesized as "Column N" from the first row's length.
func (b *Builder) CreateTableFromRows(rows [][]interface{}, columns []models.Column) Block {
	if len(rows) == 0 {
		return &ParagraphBlock{Text: b.labels.NoData, Muted: true}
	}
	if len(columns) == 0 {
		for i := range rows[0] {
			columns = append(columns, models.Column{Header: fmt.Sprintf(b.labels.Column, i+1)})
		}
	}

	t := &TableBlock{Layout: b.cfg.Table.Layout}
	for _, col := range columns {
		t.Headers = append(t.Headers, col.Label())
		t.Aligns = append(t.Aligns, align(col.Type))
	}
	for _, row := range rows {
		cells := make([]string, len(columns))
		for i, col := range columns {
			if i < len(row) {
				cells[i] = FormatCell(row[i], col, b.cells)
			}
		}
		t.Rows = append(t.Rows, cells)
	}
	t.Widths = b.widths(len(columns))
	return t
}

func (b *Builder) processedTable(table *processor.Table, capitalize bool) Block {
	if len(table.Rows) == 0 {
		return &ParagraphBlock{Text: b.labels.NoData, Muted: true}
	}

	t := &TableBlock{Layout: b.cfg.Table.Layout}
	for i, col := range table.Columns {
		header := col.Label()
		if capitalize {
			header = Capitalize(header)
		}
		t.Headers = append(t.Headers, header)
		t.Aligns = append(t.Aligns, align(table.Kind(i)))
	}
	for _, row := range table.Rows {
		cells := make([]string, len(row))
		for i, v := range row {
			cells[i] = FormatCell(v, table.Columns[i], b.cells)
		}
		t.Rows = append(t.Rows, cells)
	}
	t.Widths = b.widths(len(table.Columns))
	return t
}

func (b *Builder) widths(n int) []Width {
	if len(b.cfg.Table.Widths) == n && n > 0 {
		out := make([]Width, n)
		for i, w := range b.cfg.Table.Widths {
			out[i] = Fixed(w)
		}
		return out
	}
	return CalculateTableWidths(n)
}

// FormatCell renders a value for a PDF cell: the column formatter runs first,
// then numbers get locale grouping, dates a locale date and everything else
// is truncated. Booleans are localized to yes/no only on columns declared as
// boolean; elsewhere they stay true/false.
func FormatCell(v interface{}, col models.Column, opts normalize.Options) string {
	if col.Formatter != nil {
		v = col.Formatter(v)
	}
	typ := col.Type
	if typ == "" {
		typ = normalize.DetectType(v)
		if typ == models.ColumnBoolean {
			typ = models.ColumnString
		}
	}
	return normalize.Display(v, typ, opts)
}

// Capitalize upper-cases the first letter of a header
func Capitalize(s string) string {
	r, size := utf8.DecodeRuneInString(s)
	if r == utf8.RuneError {
		return s
	}
	return string(unicode.ToUpper(r)) + s[size:]
}

func align(typ models.ColumnType) string {
	switch typ {
	case models.ColumnNumber:
		return "R"
	case models.ColumnDate, models.ColumnBoolean:
		return "C"
	default:
		return "L"
	}
}

func pick(primary, fallback []models.Column) []models.Column {
	if len(primary) > 0 {
		return primary
	}
	return fallback
}

func formatCount(n int, locale string) string {
	return normalize.Scalar(normalize.FormatNumber(n, locale))
}
