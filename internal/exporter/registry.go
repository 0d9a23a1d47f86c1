package exporter

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/rs/zerolog"
)

// ErrUnsupportedFormat is returned for format ids with no registered renderer
var ErrUnsupportedFormat = errors.New("unsupported export format")

// Format identifies an export format
type Format string

const (
	FormatCSV         Format = "csv"
	FormatJSON        Format = "json"
	FormatXLSX        Format = "xlsx"
	FormatPDF         Format = "pdf"
	FormatXLSXBranded Format = "xlsx-branded"
	FormatPDFBranded  Format = "pdf-branded"
)

// Spec describes the artifact a format produces
type Spec struct {
	Format    Format
	Extension string
	MimeType  string
}

type entry struct {
	spec     Spec
	build    func() Renderer
	once     sync.Once
	renderer Renderer
}

// Registry maps formats to renderers. Renderers are constructed on first use
// so formats that are never requested never load their engine.
type Registry struct {
	mu      sync.RWMutex
	entries map[Format]*entry
}

// NewRegistry returns a registry with every built-in format
func NewRegistry(log zerolog.Logger) *Registry {
	r := &Registry{entries: make(map[Format]*entry)}

	r.Register(Spec{FormatCSV, ".csv", "text/csv;charset=utf-8"}, func() Renderer { return &csvRenderer{} })
	r.Register(Spec{FormatJSON, ".json", "application/json"}, func() Renderer { return &jsonRenderer{} })
	r.Register(Spec{FormatXLSX, ".xlsx", xlsxMime}, func() Renderer { return newXLSXRenderer(false) })
	r.Register(Spec{FormatXLSXBranded, ".xlsx", xlsxMime}, func() Renderer { return newXLSXRenderer(true) })
	r.Register(Spec{FormatPDF, ".pdf", "application/pdf"}, func() Renderer { return newPDFRenderer(false, log) })
	r.Register(Spec{FormatPDFBranded, ".pdf", "application/pdf"}, func() Renderer { return newPDFRenderer(true, log) })

	return r
}

// Register adds or replaces a format
func (r *Registry) Register(spec Spec, build func() Renderer) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries[spec.Format] = &entry{spec: spec, build: build}
}

// Lookup resolves a format id, constructing its renderer on first use
func (r *Registry) Lookup(id string) (Renderer, Spec, error) {
	r.mu.RLock()
	e, ok := r.entries[Format(strings.ToLower(strings.TrimSpace(id)))]
	r.mu.RUnlock()
	if !ok {
		return nil, Spec{}, fmt.Errorf("%w: %q", ErrUnsupportedFormat, id)
	}

	e.once.Do(func() {
		e.renderer = e.build()
	})
	return e.renderer, e.spec, nil
}

// Has reports whether a format id is registered
func (r *Registry) Has(id string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.entries[Format(strings.ToLower(strings.TrimSpace(id)))]
	return ok
}

// Formats lists the registered formats in alphabetical order
func (r *Registry) Formats() []Format {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Format, 0, len(r.entries))
	for f := range r.entries {
		out = append(out, f)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
