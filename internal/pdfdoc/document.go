// Package pdfdoc builds a document definition from export data and lays it
// out with gofpdf.
package pdfdoc

import (
	"encoding/json"
	"errors"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/document-export-api/internal/models"
)

// ErrRender wraps failures raised by the PDF engine
var ErrRender = errors.New("pdf render failed")

const (
	// FixedColumnWidth is used per column once a table exceeds MaxStarColumns
	FixedColumnWidth = 80.0

	// MaxStarColumns is the widest table that still shares the page equally
	MaxStarColumns = 6

	// RowsPerPage is the heuristic used for page and size estimates
	RowsPerPage = 30

	estimateBytesPerCell = 12
	estimateBytesPerPage = 2000
	estimateOverhead     = 5000
)

// Width is a table column width: either a star share of the free space or a
// fixed size in points.
type Width struct {
	Star   bool
	Points float64
}

// Star returns an equal-share width
func Star() Width {
	return Width{Star: true}
}

// Fixed returns a fixed width in points
func Fixed(points float64) Width {
	return Width{Points: points}
}

// String renders the width the way layout definitions spell it
func (w Width) String() string {
	if w.Star {
		return "*"
	}
	return strconv.FormatFloat(w.Points, 'f', -1, 64)
}

// MarshalJSON encodes a star width as "*" and a fixed width as a number
func (w Width) MarshalJSON() ([]byte, error) {
	if w.Star {
		return []byte(`"*"`), nil
	}
	return json.Marshal(w.Points)
}

// CalculateTableWidths returns the width policy for a column count: a single
// star for up to 3 columns, one star per column up to 6, and a fixed width per
// column beyond that.
func CalculateTableWidths(columns int) []Width {
	switch {
	case columns <= 0:
		return nil
	case columns <= 3:
		return []Width{Star()}
	case columns <= MaxStarColumns:
		out := make([]Width, columns)
		for i := range out {
			out[i] = Star()
		}
		return out
	default:
		out := make([]Width, columns)
		for i := range out {
			out[i] = Fixed(FixedColumnWidth)
		}
		return out
	}
}

// EstimatePages is a display hint, not a pagination algorithm
func EstimatePages(rows int) int {
	if rows <= 0 {
		return 1
	}
	return int(math.Ceil(float64(rows) / RowsPerPage))
}

// EstimateSize approximates the output size in bytes for display purposes
func EstimateSize(rows, columns int) int64 {
	pages := int64(math.Ceil(float64(rows) / RowsPerPage))
	return int64(rows)*int64(columns)*estimateBytesPerCell + pages*estimateBytesPerPage + estimateOverhead
}

// RGB is a color in 0-255 components
type RGB struct {
	R, G, B int
}

// ParseHex reads a #RRGGBB color, returning fallback when malformed
func ParseHex(s string, fallback RGB) RGB {
	s = strings.TrimPrefix(strings.TrimSpace(s), "#")
	if len(s) != 6 {
		return fallback
	}
	v, err := strconv.ParseUint(s, 16, 32)
	if err != nil {
		return fallback
	}
	return RGB{R: int(v >> 16 & 0xFF), G: int(v >> 8 & 0xFF), B: int(v & 0xFF)}
}

// PageSetup holds page geometry
type PageSetup struct {
	Size        string     // A3, A4, A5, LETTER, LEGAL
	Orientation string     // portrait, landscape
	Margins     [4]float64 // left, top, right, bottom
}

// Info is the document metadata written into the PDF
type Info struct {
	Title     string
	Subject   string
	Author    string
	CreatedAt time.Time
}

// Styles carries fonts sizes and colors for every block kind
type Styles struct {
	Primary    RGB
	Secondary  RGB
	Text       RGB
	Muted      RGB
	HeaderFill RGB
	HeaderText RGB
	Stripe     *RGB

	TitleSize   float64
	HeadingSize float64
	BodySize    float64
	TableSize   float64
	SmallSize   float64
}

var (
	defaultPrimary   = RGB{R: 31, G: 78, B: 120}
	defaultSecondary = RGB{R: 217, G: 225, B: 242}
)

// DefaultStyles returns the base styles with branding colors applied. Branded
// documents additionally stripe table rows with the secondary color.
func DefaultStyles(b models.BrandingConfig, branded bool) Styles {
	s := Styles{
		Primary:     ParseHex(b.PrimaryColor, defaultPrimary),
		Secondary:   ParseHex(b.SecondaryColor, defaultSecondary),
		Text:        RGB{R: 33, G: 33, B: 33},
		Muted:       RGB{R: 110, G: 110, B: 110},
		HeaderText:  RGB{R: 255, G: 255, B: 255},
		TitleSize:   20,
		HeadingSize: 14,
		BodySize:    10,
		TableSize:   9,
		SmallSize:   8,
	}
	s.HeaderFill = s.Primary
	if branded {
		stripe := s.Secondary
		s.Stripe = &stripe
	}
	return s
}

// Block is one laid-out element of the document content
type Block interface {
	block()
}

// CoverBlock is a full title page
type CoverBlock struct {
	Title    string
	Subtitle string
	OrgName  string
	Date     string
	Logo     string
}

// HeadingBlock is a title at level 1 (largest) to 3
type HeadingBlock struct {
	Text  string
	Level int
}

// ParagraphBlock is a run of wrapped text
type ParagraphBlock struct {
	Text  string
	Muted bool
}

// ListBlock is a bulleted list
type ListBlock struct {
	Items []string
}

// TableBlock is a table of preformatted cells
type TableBlock struct {
	Headers []string
	Rows    [][]string
	Aligns  []string // L, C or R per column
	Widths  []Width
	Layout  string
}

// ImageBlock is an image from a file path or data URI
type ImageBlock struct {
	Source string
	Width  float64
}

// PageBreakBlock starts a new page
type PageBreakBlock struct{}

func (*CoverBlock) block()     {}
func (*HeadingBlock) block()   {}
func (*ParagraphBlock) block() {}
func (*ListBlock) block()      {}
func (*TableBlock) block()     {}
func (*ImageBlock) block()     {}
func (*PageBreakBlock) block() {}

// Document is the complete definition handed to the renderer
type Document struct {
	Page    PageSetup
	Info    Info
	Styles  Styles
	Header  Decorator
	Footer  Decorator
	Context DecoratorContext
	Content []Block
}
