package pdfdoc

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"os"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/jung-kurt/gofpdf"
)

const (
	unicodeFamily = "DocumentSans"
	coreFamily    = "Helvetica"
	creator       = "document-export-api"

	cellPadding = 3.0
	lineFactor  = 1.3
)

var pageSizes = map[string]string{
	"A3":     "A3",
	"A4":     "A4",
	"A5":     "A5",
	"LETTER": "Letter",
	"LEGAL":  "Legal",
}

var imageTypes = map[string]string{
	"png":  "PNG",
	"jpeg": "JPG",
	"gif":  "GIF",
}

type fontSet struct {
	regular []byte
	bold    []byte
}

var (
	fontOnce  sync.Once
	fontErr   error
	fontFiles atomic.Pointer[fontSet]
)

// SetupFonts loads a TrueType family for full Unicode output. Only the first
// call has any effect; later calls return its outcome. Documents rendered
// without it use the core Helvetica font, which covers Latin-1 text.
func SetupFonts(regularPath, boldPath string) error {
	fontOnce.Do(func() {
		if regularPath == "" {
			return
		}
		regular, err := os.ReadFile(regularPath)
		if err != nil {
			fontErr = fmt.Errorf("failed to read font: %w", err)
			return
		}
		bold := regular
		if boldPath != "" {
			if bold, err = os.ReadFile(boldPath); err != nil {
				fontErr = fmt.Errorf("failed to read bold font: %w", err)
				return
			}
		}

		trial := gofpdf.New("P", "pt", "A4", "")
		trial.AddUTF8FontFromBytes(unicodeFamily, "", regular)
		trial.AddUTF8FontFromBytes(unicodeFamily, "B", bold)
		trial.SetFont(unicodeFamily, "", 10)
		trial.SetFont(unicodeFamily, "B", 10)
		if err := trial.Error(); err != nil {
			fontErr = fmt.Errorf("invalid font file: %w", err)
			return
		}
		fontFiles.Store(&fontSet{regular: regular, bold: bold})
	})
	return fontErr
}

// Output is a rendered document
type Output struct {
	Data     []byte
	Pages    int
	Warnings []string
}

// Render lays out the document. When page decorators are present the layout
// runs twice so decorators receive the real page count.
func Render(doc *Document) (*Output, error) {
	w, err := layout(doc, 0)
	if err != nil {
		return nil, err
	}
	if doc.Header != nil || doc.Footer != nil {
		if w, err = layout(doc, w.pdf.PageNo()); err != nil {
			return nil, err
		}
	}

	var buf bytes.Buffer
	if err := w.pdf.Output(&buf); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrRender, err)
	}
	return &Output{Data: buf.Bytes(), Pages: w.pdf.PageNo(), Warnings: w.warnings}, nil
}

type writer struct {
	pdf      *gofpdf.Fpdf
	doc      *Document
	styles   Styles
	total    int
	family   string
	unicode  bool
	tr       func(string) string
	needPage bool
	images   int
	warnings []string

	pageW, pageH             float64
	left, top, right, bottom float64
}

func layout(doc *Document, total int) (*writer, error) {
	w := newWriter(doc, total)
	for _, b := range doc.Content {
		w.render(b)
		if w.pdf.Err() {
			break
		}
	}
	w.ensurePage()

	if err := w.pdf.Error(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrRender, err)
	}
	return w, nil
}

func newWriter(doc *Document, total int) *writer {
	orientation := "P"
	if doc.Page.Orientation == "landscape" {
		orientation = "L"
	}
	size, ok := pageSizes[strings.ToUpper(doc.Page.Size)]
	if !ok {
		size = "A4"
	}

	pdf := gofpdf.New(orientation, "pt", size, "")
	w := &writer{pdf: pdf, doc: doc, styles: doc.Styles, total: total}
	w.left, w.top, w.right, w.bottom = doc.Page.Margins[0], doc.Page.Margins[1], doc.Page.Margins[2], doc.Page.Margins[3]
	w.pageW, w.pageH = pdf.GetPageSize()

	pdf.SetMargins(w.left, w.top, w.right)
	pdf.SetAutoPageBreak(true, w.bottom)

	pdf.SetTitle(doc.Info.Title, true)
	pdf.SetSubject(doc.Info.Subject, true)
	pdf.SetAuthor(doc.Info.Author, true)
	pdf.SetCreator(creator, true)
	if !doc.Info.CreatedAt.IsZero() {
		pdf.SetCreationDate(doc.Info.CreatedAt)
	}

	if fs := fontFiles.Load(); fs != nil {
		pdf.AddUTF8FontFromBytes(unicodeFamily, "", fs.regular)
		pdf.AddUTF8FontFromBytes(unicodeFamily, "B", fs.bold)
		w.family = unicodeFamily
		w.unicode = true
		w.tr = basicPlane
	} else {
		w.family = coreFamily
		w.tr = pdf.UnicodeTranslatorFromDescriptor("")
	}

	if doc.Header != nil {
		pdf.SetHeaderFuncMode(func() {
			w.band(doc.Header(pdf.PageNo(), w.total, doc.Context), w.top/2-w.styles.SmallSize/2, true)
		}, true)
	}
	if doc.Footer != nil {
		pdf.SetFooterFunc(func() {
			w.band(doc.Footer(pdf.PageNo(), w.total, doc.Context), w.pageH-w.bottom/2-w.styles.SmallSize/2, false)
		})
	}

	return w
}

func (w *writer) render(b Block) {
	switch blk := b.(type) {
	case *CoverBlock:
		w.cover(blk)
	case *HeadingBlock:
		w.heading(blk)
	case *ParagraphBlock:
		w.paragraph(blk)
	case *ListBlock:
		w.list(blk)
	case *TableBlock:
		w.table(blk)
	case *ImageBlock:
		w.image(blk)
	case *PageBreakBlock:
		w.needPage = true
	}
}

func (w *writer) ensurePage() {
	if w.pdf.PageNo() == 0 || w.needPage {
		w.pdf.AddPage()
		w.needPage = false
	}
}

func (w *writer) available() float64 {
	return w.pageW - w.left - w.right
}

func (w *writer) font(bold bool, size float64, c RGB) {
	style := ""
	if bold {
		style = "B"
	}
	w.pdf.SetFont(w.family, style, size)
	w.pdf.SetTextColor(c.R, c.G, c.B)
}

func (w *writer) cover(c *CoverBlock) {
	if w.pdf.PageNo() > 0 {
		w.needPage = true
	}
	w.ensurePage()

	p := w.styles.Primary
	w.pdf.SetFillColor(p.R, p.G, p.B)
	w.pdf.Rect(0, 0, w.pageW, 14, "F")

	y := w.pageH * 0.3
	if c.Logo != "" {
		if h, ok := w.placeImage(c.Logo, (w.pageW-120)/2, w.pageH*0.12, 120); ok {
			y = w.pageH*0.12 + h + 40
		}
	}

	w.pdf.SetY(y)
	w.font(true, w.styles.TitleSize*1.4, w.styles.Primary)
	w.pdf.MultiCell(0, w.styles.TitleSize*1.4*lineFactor, w.tr(c.Title), "", "C", false)
	if c.Subtitle != "" {
		w.pdf.Ln(8)
		w.font(false, w.styles.HeadingSize, w.styles.Text)
		w.pdf.MultiCell(0, w.styles.HeadingSize*lineFactor, w.tr(c.Subtitle), "", "C", false)
	}
	if c.OrgName != "" {
		w.pdf.Ln(24)
		w.font(true, w.styles.HeadingSize, w.styles.Text)
		w.pdf.MultiCell(0, w.styles.HeadingSize*lineFactor, w.tr(c.OrgName), "", "C", false)
	}
	if c.Date != "" {
		w.pdf.Ln(6)
		w.font(false, w.styles.BodySize, w.styles.Muted)
		w.pdf.MultiCell(0, w.styles.BodySize*lineFactor, w.tr(c.Date), "", "C", false)
	}

	w.needPage = true
}

func (w *writer) heading(h *HeadingBlock) {
	w.ensurePage()

	size := w.styles.TitleSize
	switch h.Level {
	case 2:
		size = w.styles.HeadingSize
	case 3:
		size = w.styles.BodySize + 1
	}
	// keep a heading with at least two lines of what follows
	if w.pdf.GetY()+size*lineFactor+3*w.styles.BodySize*lineFactor > w.pageH-w.bottom {
		w.pdf.AddPage()
	}

	if h.Level > 1 {
		w.pdf.Ln(6)
	}
	w.font(true, size, w.styles.Primary)
	w.pdf.MultiCell(0, size*lineFactor, w.tr(h.Text), "", "L", false)
	if h.Level == 1 {
		p := w.styles.Primary
		y := w.pdf.GetY() + 2
		w.pdf.SetDrawColor(p.R, p.G, p.B)
		w.pdf.SetLineWidth(1.2)
		w.pdf.Line(w.left, y, w.pageW-w.right, y)
		w.pdf.SetLineWidth(0.5)
		w.pdf.Ln(8)
	} else {
		w.pdf.Ln(3)
	}
}

func (w *writer) paragraph(p *ParagraphBlock) {
	w.ensurePage()
	color := w.styles.Text
	if p.Muted {
		color = w.styles.Muted
	}
	w.font(false, w.styles.BodySize, color)
	w.pdf.MultiCell(0, w.styles.BodySize*lineFactor, w.tr(p.Text), "", "L", false)
	w.pdf.Ln(6)
}

func (w *writer) list(l *ListBlock) {
	w.ensurePage()
	w.font(false, w.styles.BodySize, w.styles.Text)
	for _, item := range l.Items {
		w.pdf.SetX(w.left + 8)
		w.pdf.MultiCell(w.available()-8, w.styles.BodySize*lineFactor, w.tr("• "+item), "", "L", false)
	}
	w.pdf.Ln(6)
}

func (w *writer) table(t *TableBlock) {
	n := len(t.Headers)
	if n == 0 {
		return
	}
	w.ensurePage()

	widths := resolveWidths(t.Widths, n, w.available())
	size := w.styles.TableSize
	if n > MaxStarColumns {
		size--
	}
	lineH := size * lineFactor
	maxRowH := w.pageH - w.top - w.bottom - 4*lineH

	w.pdf.SetAutoPageBreak(false, 0)
	defer w.pdf.SetAutoPageBreak(true, w.bottom)
	w.pdf.SetLineWidth(0.5)

	w.font(true, size, w.styles.HeaderText)
	header := w.wrapRow(t.Headers, widths)
	headerH := rowHeight(header, lineH, maxRowH)

	drawHeader := func() {
		w.font(true, size, w.styles.HeaderText)
		w.row(header, widths, nil, headerH, lineH, &w.styles.HeaderFill, t.Layout, true)
	}

	w.font(false, size, w.styles.Text)
	first := 0.0
	if len(t.Rows) > 0 {
		first = rowHeight(w.wrapRow(t.Rows[0], widths), lineH, maxRowH)
	}
	if w.pdf.GetY()+headerH+first > w.pageH-w.bottom {
		w.pdf.AddPage()
	}
	drawHeader()

	for i, cells := range t.Rows {
		w.font(false, size, w.styles.Text)
		lines := w.wrapRow(cells, widths)
		h := rowHeight(lines, lineH, maxRowH)
		if w.pdf.GetY()+h > w.pageH-w.bottom {
			w.pdf.AddPage()
			drawHeader()
			w.font(false, size, w.styles.Text)
		}
		var fill *RGB
		if w.styles.Stripe != nil && i%2 == 1 {
			fill = w.styles.Stripe
		}
		w.row(lines, widths, t.Aligns, h, lineH, fill, t.Layout, false)
	}

	w.pdf.SetXY(w.left, w.pdf.GetY())
	w.pdf.Ln(10)
}

func (w *writer) wrapRow(cells []string, widths []float64) [][]string {
	out := make([][]string, len(widths))
	for i := range widths {
		text := ""
		if i < len(cells) {
			text = cells[i]
		}
		out[i] = w.wrap(w.tr(text), widths[i])
	}
	return out
}

// wrap splits already translated text to fit a width
func (w *writer) wrap(text string, width float64) []string {
	var lines []string
	if w.unicode {
		lines = w.pdf.SplitText(text, width)
	} else {
		for _, l := range w.pdf.SplitLines([]byte(text), width) {
			lines = append(lines, string(l))
		}
	}
	if len(lines) == 0 {
		return []string{""}
	}
	return lines
}

func rowHeight(cells [][]string, lineH, max float64) float64 {
	lines := 1
	for _, c := range cells {
		if len(c) > lines {
			lines = len(c)
		}
	}
	h := float64(lines)*lineH + 2*cellPadding
	if h > max {
		return max
	}
	return h
}

func (w *writer) row(cells [][]string, widths []float64, aligns []string, h, lineH float64, fill *RGB, layout string, header bool) {
	y := w.pdf.GetY()
	x := w.left
	total := 0.0
	for _, cw := range widths {
		total += cw
	}

	if fill != nil {
		w.pdf.SetFillColor(fill.R, fill.G, fill.B)
		w.pdf.Rect(x, y, total, h, "F")
	}

	for i, lines := range cells {
		cw := widths[i]
		if layout == "grid" {
			w.pdf.SetDrawColor(180, 180, 180)
			w.pdf.Rect(x, y, cw, h, "D")
		}
		align := "L"
		if header {
			align = "C"
		} else if i < len(aligns) && aligns[i] != "" {
			align = aligns[i]
		}
		for j, line := range lines {
			ly := y + cellPadding + float64(j)*lineH
			if ly+lineH > y+h {
				break
			}
			w.pdf.SetXY(x, ly)
			w.pdf.CellFormat(cw, lineH, line, "", 0, align, false, 0, "")
		}
		x += cw
	}

	if layout == "lightHorizontalLines" {
		if header {
			p := w.styles.Primary
			w.pdf.SetDrawColor(p.R, p.G, p.B)
			w.pdf.SetLineWidth(1)
		} else {
			w.pdf.SetDrawColor(210, 210, 210)
			w.pdf.SetLineWidth(0.5)
		}
		w.pdf.Line(w.left, y+h, w.left+total, y+h)
		w.pdf.SetLineWidth(0.5)
	}

	w.pdf.SetXY(w.left, y+h)
}

func (w *writer) image(img *ImageBlock) {
	w.ensurePage()
	width := img.Width
	if width <= 0 || width > w.available() {
		width = w.available()
	}
	if h, ok := w.placeImage(img.Source, w.left, w.pdf.GetY(), width); ok {
		w.pdf.SetY(w.pdf.GetY() + h + 8)
	}
}

// placeImage draws an image at the given width keeping its aspect ratio. An
// unreadable image is skipped with a warning; gofpdf errors are sticky, so
// the image is decoded here before the engine sees it.
func (w *writer) placeImage(src string, x, y, width float64) (float64, bool) {
	data, err := readImageSource(src)
	if err != nil {
		w.warnings = append(w.warnings, fmt.Sprintf("Imagen omitida: %v", err))
		return 0, false
	}
	cfg, format, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil || cfg.Width == 0 {
		w.warnings = append(w.warnings, "Imagen omitida: formato no soportado")
		return 0, false
	}
	typ, ok := imageTypes[format]
	if !ok {
		w.warnings = append(w.warnings, fmt.Sprintf("Imagen omitida: formato %s no soportado", format))
		return 0, false
	}

	h := width * float64(cfg.Height) / float64(cfg.Width)
	if y+h > w.pageH-w.bottom && y > w.top {
		w.pdf.AddPage()
		y = w.pdf.GetY()
	}

	w.images++
	name := fmt.Sprintf("img%d", w.images)
	opts := gofpdf.ImageOptions{ImageType: typ}
	w.pdf.RegisterImageOptionsReader(name, opts, bytes.NewReader(data))
	w.pdf.ImageOptions(name, x, y, width, h, false, opts, 0, "")
	return h, true
}

func readImageSource(src string) ([]byte, error) {
	if !strings.HasPrefix(src, "data:") {
		return os.ReadFile(src)
	}
	comma := strings.IndexByte(src, ',')
	if comma < 0 || !strings.Contains(src[:comma], ";base64") {
		return nil, fmt.Errorf("data URI must be base64 encoded")
	}
	return base64.StdEncoding.DecodeString(src[comma+1:])
}

func (w *writer) band(b *Band, y float64, header bool) {
	if b == nil {
		return
	}
	avail := w.available()
	h := w.styles.SmallSize * lineFactor

	w.font(false, w.styles.SmallSize, w.styles.Muted)
	for _, part := range []struct{ text, align string }{{b.Left, "L"}, {b.Center, "C"}, {b.Right, "R"}} {
		if part.text == "" {
			continue
		}
		w.pdf.SetXY(w.left, y)
		w.pdf.CellFormat(avail, h, w.tr(part.text), "", 0, part.align, false, 0, "")
	}

	p := w.styles.Primary
	w.pdf.SetDrawColor(p.R, p.G, p.B)
	w.pdf.SetLineWidth(0.5)
	if header {
		w.pdf.Line(w.left, y+h+2, w.left+avail, y+h+2)
	} else {
		w.pdf.Line(w.left, y-2, w.left+avail, y-2)
	}
}

// resolveWidths converts width specs into points. A spec list that does not
// match the column count (such as the single star) means equal shares. Stars
// split whatever fixed columns leave, and a table wider than the page is
// scaled down to fit.
func resolveWidths(specs []Width, n int, avail float64) []float64 {
	if len(specs) != n {
		specs = make([]Width, n)
		for i := range specs {
			specs[i] = Star()
		}
	}

	fixed, stars := 0.0, 0
	for _, s := range specs {
		if s.Star {
			stars++
		} else {
			fixed += s.Points
		}
	}
	starW := 0.0
	if stars > 0 {
		starW = (avail - fixed) / float64(stars)
		if starW < 20 {
			starW = 20
		}
	}

	out := make([]float64, n)
	total := 0.0
	for i, s := range specs {
		if s.Star {
			out[i] = starW
		} else {
			out[i] = s.Points
		}
		total += out[i]
	}
	if total > avail {
		scale := avail / total
		for i := range out {
			out[i] *= scale
		}
	}
	return out
}

// basicPlane replaces runes outside the Basic Multilingual Plane, which the
// UTF-8 font tables do not index.
func basicPlane(s string) string {
	return strings.Map(func(r rune) rune {
		if r > 0xFFFF {
			return '?'
		}
		return r
	}, s)
}
