package pdfdoc

import (
	"bytes"
	"encoding/base64"
	"errors"
	"image"
	"image/color"
	"image/png"
	"strings"
	"sync"
	"testing"

	"github.com/document-export-api/internal/models"
)

func pngDataURI(t *testing.T) string {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 4, 2))
	for x := 0; x < 4; x++ {
		img.Set(x, 0, color.RGBA{R: 200, A: 255})
		img.Set(x, 1, color.RGBA{B: 200, A: 255})
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatal(err)
	}
	return "data:image/png;base64," + base64.StdEncoding.EncodeToString(buf.Bytes())
}

func TestRender_Automatic(t *testing.T) {
	doc := newTestBuilder("pdf", nil).Build(&models.ExportData{Records: sales(120)}, nil)

	out, err := Render(doc)
	if err != nil {
		t.Fatalf("Render failed: %v", err)
	}
	if !bytes.HasPrefix(out.Data, []byte("%PDF")) {
		t.Error("Output is not a PDF")
	}
	if out.Pages < 2 {
		t.Errorf("Expected the table to span pages, got %d", out.Pages)
	}
	if len(out.Warnings) != 0 {
		t.Errorf("Unexpected warnings %v", out.Warnings)
	}
}

func TestRender_EmptyData(t *testing.T) {
	doc := newTestBuilder("pdf", nil).Build(&models.ExportData{Records: []models.Record{}}, nil)

	out, err := Render(doc)
	if err != nil {
		t.Fatalf("Render failed: %v", err)
	}
	if out.Pages != 1 {
		t.Errorf("Expected a single page, got %d", out.Pages)
	}
}

func TestRender_DecoratorsSeePageCount(t *testing.T) {
	doc := newTestBuilder("pdf-branded", nil).Build(&models.ExportData{Records: sales(150)}, nil)

	var mu sync.Mutex
	type call struct{ page, count int }
	var calls []call
	doc.Footer = func(page, pageCount int, ctx DecoratorContext) *Band {
		mu.Lock()
		calls = append(calls, call{page, pageCount})
		mu.Unlock()
		return FooterDecorator(page, pageCount, ctx)
	}

	out, err := Render(doc)
	if err != nil {
		t.Fatalf("Render failed: %v", err)
	}

	final := calls[len(calls)-out.Pages:]
	for i, c := range final {
		if c.page != i+1 || c.count != out.Pages {
			t.Errorf("Footer call %d = %+v, want page %d of %d", i, c, i+1, out.Pages)
		}
	}
}

func TestRender_ExplicitWithImages(t *testing.T) {
	doc := newTestBuilder("pdf", nil).Build(&models.ExportData{Content: []models.ContentItem{
		{Type: models.ContentCover, Title: "Catálogo", Subtitle: "Edición ñ"},
		{Type: models.ContentImage, Image: pngDataURI(t), Width: 120},
		{Type: models.ContentImage, Image: "/nonexistent/logo.png"},
		{Type: models.ContentImage, Image: "data:image/png;base64,bm90IGFuIGltYWdl"},
		{Type: models.ContentTable, Rows: [][]interface{}{{"x", 1}, {"y", 2}}},
		{Type: models.ContentPageBreak},
	}}, nil)

	out, err := Render(doc)
	if err != nil {
		t.Fatalf("Render failed: %v", err)
	}
	if len(out.Warnings) != 2 {
		t.Errorf("Expected two skipped images, got %v", out.Warnings)
	}
	if out.Pages != 2 {
		t.Errorf("Expected cover plus one page and no trailing blank page, got %d", out.Pages)
	}
}

func TestRender_WideTable(t *testing.T) {
	rec := models.Record{}
	for _, k := range strings.Split("a b c d e f g h i j", " ") {
		rec[k] = strings.Repeat(k, 60)
	}
	doc := newTestBuilder("pdf", func(cfg *models.ExportConfig) { cfg.PageOrientation = "landscape" }).
		Build(&models.ExportData{Records: []models.Record{rec, rec}}, nil)

	if _, err := Render(doc); err != nil {
		t.Fatalf("Render failed: %v", err)
	}
}

func TestSetupFonts_MissingFile(t *testing.T) {
	// only the first call counts, so this must be the only call in the package tests
	err := SetupFonts("/nonexistent/font.ttf", "")
	if err == nil {
		t.Fatal("Expected error for missing font")
	}
	if err2 := SetupFonts("", ""); !errors.Is(err2, err) {
		t.Error("Later calls should return the first outcome")
	}

	// failed setup leaves the core font in place
	doc := newTestBuilder("pdf", nil).Build(&models.ExportData{Records: sales(1)}, nil)
	if _, err := Render(doc); err != nil {
		t.Fatalf("Render with core font failed: %v", err)
	}
}
