// Package exportconfig produces the effective per-format export
// configuration: system defaults, then file defaults, then caller overrides.
package exportconfig

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/document-export-api/internal/models"
	"gopkg.in/yaml.v3"
)

// Default branding colors
const (
	DefaultPrimaryColor   = "#1F4E78"
	DefaultSecondaryColor = "#D9E1F2"
	DefaultFilename       = "export"
)

// Defaults holds the layered defaults used to resolve configurations
type Defaults struct {
	// overrides keyed by format id, or "*" for every format
	overrides map[string]yaml.Node
	locale    string
}

// NewDefaults returns defaults with no file overrides
func NewDefaults() *Defaults {
	return &Defaults{overrides: map[string]yaml.Node{}}
}

// LoadDefaultsFile reads per-format overrides from a YAML file shaped as
//
//	"*":
//	  locale: es
//	pdf:
//	  page_size: A3
func LoadDefaultsFile(path string) (*Defaults, error) {
	d := NewDefaults()
	if path == "" {
		return d, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read export defaults: %w", err)
	}
	if err := yaml.Unmarshal(data, &d.overrides); err != nil {
		return nil, fmt.Errorf("failed to parse export defaults: %w", err)
	}
	return d, nil
}

// SetLocale changes the deployment locale. File and caller values still win.
func (d *Defaults) SetLocale(locale string) {
	d.locale = locale
}

// System returns the built-in defaults for a format id
func System(format string) models.ExportConfig {
	cfg := models.ExportConfig{
		Filename:        DefaultFilename,
		Locale:          "es",
		MaxCellLength:   50,
		PageSize:        "A4",
		PageOrientation: "portrait",
		PageMargins:     []float64{40, 60, 40, 60},
		Footer: models.FooterConfig{
			Enabled:     true,
			PageNumbers: true,
		},
		Branding: models.BrandingConfig{
			PrimaryColor:   DefaultPrimaryColor,
			SecondaryColor: DefaultSecondaryColor,
		},
		Table: models.TableConfig{
			Layout: "lightHorizontalLines",
		},
		CSV: models.CSVConfig{
			Delimiter: ",",
			BOM:       true,
		},
		JSON: models.JSONConfig{
			Pretty:          true,
			IncludeMetadata: false,
		},
		XLSX: models.XLSXConfig{
			SheetName:    "Datos",
			FreezeHeader: true,
			AutoFilter:   true,
		},
	}

	switch format {
	case "pdf-branded", "xlsx-branded":
		cfg.Cover.Enabled = true
		cfg.Header.Enabled = true
		cfg.Table.Layout = "grid"
	}
	return cfg
}

// Resolve merges file defaults and the caller's JSON patch onto the system
// defaults for a format. Only fields present in the patch are overwritten.
func (d *Defaults) Resolve(format string, patch json.RawMessage) (models.ExportConfig, error) {
	cfg := System(format)

	if d != nil {
		if d.locale != "" {
			cfg.Locale = d.locale
		}
		for _, key := range []string{"*", format} {
			node, ok := d.overrides[key]
			if !ok {
				continue
			}
			if err := node.Decode(&cfg); err != nil {
				return cfg, fmt.Errorf("invalid export defaults for %q: %w", key, err)
			}
		}
	}

	if len(patch) > 0 && string(patch) != "null" {
		if err := json.Unmarshal(patch, &cfg); err != nil {
			return cfg, fmt.Errorf("invalid export config: %w", err)
		}
	}
	return cfg, nil
}

// Patch encodes a Go value (typically a map) as a config patch
func Patch(v interface{}) json.RawMessage {
	if v == nil {
		return nil
	}
	data, err := json.Marshal(v)
	if err != nil {
		return nil
	}
	return data
}

// SetOption sets key on a JSON config object. Without override an
// explicit caller value wins. Patches that are not objects are returned
// untouched so config resolution reports them.
func SetOption(patch json.RawMessage, key string, value interface{}, override bool) json.RawMessage {
	obj := map[string]json.RawMessage{}
	if len(patch) > 0 && string(patch) != "null" {
		if err := json.Unmarshal(patch, &obj); err != nil {
			return patch
		}
	}
	if obj == nil {
		obj = map[string]json.RawMessage{}
	}
	if _, ok := obj[key]; ok && !override {
		return patch
	}
	raw, err := json.Marshal(value)
	if err != nil {
		return patch
	}
	obj[key] = raw
	out, err := json.Marshal(obj)
	if err != nil {
		return patch
	}
	return out
}
