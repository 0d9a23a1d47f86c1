// Package exporter renders export data into files of a given format.
package exporter

import (
	"context"
	"encoding/json"
	"fmt"
	"path/filepath"
	"runtime/debug"
	"strings"
	"time"

	"github.com/document-export-api/internal/delivery"
	"github.com/document-export-api/internal/exportconfig"
	"github.com/document-export-api/internal/models"
	"github.com/document-export-api/internal/validation"
	"github.com/rs/zerolog"
)

// Input is the validated payload handed to a renderer
type Input struct {
	Format  Format
	Data    *models.ExportData
	Columns []models.Column
	Config  models.ExportConfig
}

// Rendered is a renderer's output
type Rendered struct {
	Content  []byte
	Warnings []string
}

// Renderer produces the bytes of one format
type Renderer interface {
	Render(ctx context.Context, in *Input) (*Rendered, error)
}

// Deliverer saves a generated file for the caller
type Deliverer interface {
	DownloadFile(ctx context.Context, content interface{}, filename string, opts delivery.Options) (*delivery.Receipt, error)
}

// Exporter runs the shared export pipeline for every format
type Exporter struct {
	registry  *Registry
	defaults  *exportconfig.Defaults
	deliverer Deliverer
	log       zerolog.Logger
	now       func() time.Time
}

// New creates an Exporter. deliverer may be nil when auto-download is never used.
func New(registry *Registry, defaults *exportconfig.Defaults, deliverer Deliverer, log zerolog.Logger) *Exporter {
	if defaults == nil {
		defaults = exportconfig.NewDefaults()
	}
	return &Exporter{
		registry:  registry,
		defaults:  defaults,
		deliverer: deliverer,
		log:       log.With().Str("component", "exporter").Logger(),
		now:       time.Now,
	}
}

// Registry returns the format registry
func (e *Exporter) Registry() *Registry {
	return e.registry
}

// Export merges configuration, validates, renders and optionally delivers one
// format. It never panics and never returns a nil result: every failure is
// reported through result.Errors with Content left nil.
func (e *Exporter) Export(ctx context.Context, data *models.ExportData, columns []models.Column, format string, patch json.RawMessage) (result *models.ExportResult) {
	result = models.NewExportResult(format)
	start := e.now()

	defer func() {
		if rec := recover(); rec != nil {
			e.log.Error().
				Str("format", format).
				Interface("panic", rec).
				Str("stack", string(debug.Stack())).
				Msg("Export panicked")
			result.AddError(fmt.Sprintf("Error al exportar a %s: %v", format, rec))
		}
	}()

	renderer, spec, err := e.registry.Lookup(format)
	if err != nil {
		result.AddError(fmt.Sprintf("Formato de exportación no soportado: %s", format))
		return result
	}

	cfg, err := e.defaults.Resolve(string(spec.Format), patch)
	if err != nil {
		result.AddError(fmt.Sprintf("Configuración de exportación inválida: %v", err))
		return result
	}

	v := validation.ValidateExportData(data, columns, cfg, string(spec.Format))
	if v.HasErrors() {
		for _, msg := range v.ErrorMessages() {
			result.AddError(msg)
		}
		return result
	}
	for _, msg := range v.WarningMessages() {
		result.AddWarning(msg)
	}

	if err := ctx.Err(); err != nil {
		result.AddError(fmt.Sprintf("Exportación cancelada: %v", err))
		return result
	}

	out, err := renderer.Render(ctx, &Input{Format: spec.Format, Data: v.Data, Columns: v.Columns, Config: v.Config})
	if err != nil {
		e.log.Error().Err(err).Str("format", format).Msg("Render failed")
		result.AddError(fmt.Sprintf("Error al generar el archivo %s: %v", strings.ToUpper(string(spec.Format)), err))
		return result
	}
	for _, msg := range out.Warnings {
		result.AddWarning(msg)
	}

	result.Success = true
	result.Content = out.Content
	result.Size = int64(len(out.Content))
	result.MimeType = spec.MimeType
	result.Filename = e.filename(v.Config, spec)

	if v.Config.AutoDownload {
		e.deliver(ctx, result)
	}

	e.log.Info().
		Str("format", format).
		Str("filename", result.Filename).
		Int64("size", result.Size).
		Int("warnings", len(result.Warnings)).
		Dur("duration", e.now().Sub(start)).
		Msg("Export completed")

	return result
}

func (e *Exporter) deliver(ctx context.Context, result *models.ExportResult) {
	if e.deliverer == nil {
		result.AddWarning("La descarga automática no está disponible, pero el archivo fue generado")
		return
	}

	opts := delivery.Options{MimeType: result.MimeType}
	receipt, err := e.deliverer.DownloadFile(ctx, result.Content, result.Filename, opts)
	if err != nil {
		e.log.Warn().Err(err).Str("filename", result.Filename).Msg("Auto-download failed")
		result.AddWarning("La descarga automática falló, pero el archivo fue generado: " + err.Error())
		return
	}
	result.Filename = receipt.Filename
	result.Location = receipt.Location
}

// filename builds the artifact name: sanitized, with the format extension
// and an optional timestamp token.
func (e *Exporter) filename(cfg models.ExportConfig, spec Spec) string {
	name := delivery.SanitizeFilename(cfg.Filename)
	if name == "" {
		name = exportconfig.DefaultFilename
	}
	if !strings.EqualFold(filepath.Ext(name), spec.Extension) {
		name += spec.Extension
	}
	if cfg.Timestamp {
		name = delivery.GenerateUniqueFilename(name, true, e.now())
	}
	return name
}
