package validation

import (
	"fmt"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/document-export-api/internal/models"
)

var (
	hexColorRegex  = regexp.MustCompile(`^#[0-9A-Fa-f]{6}$`)
	sheetNameRegex = regexp.MustCompile(`[\[\]:*?/\\]`)
)

const (
	// MaxSheetRows is the spreadsheet row limit minus the header row
	MaxSheetRows = 1048575

	// LargePDFRows is the row count above which a PDF export is flagged
	LargePDFRows = 5000

	maxSheetNameLength = 31
)

// ValidPageSizes lists the page sizes the PDF renderer supports
var ValidPageSizes = map[string]bool{
	"A3":     true,
	"A4":     true,
	"A5":     true,
	"LETTER": true,
	"LEGAL":  true,
}

// ValidOrientations lists accepted page orientations
var ValidOrientations = map[string]bool{
	"portrait":  true,
	"landscape": true,
}

// ValidTableLayouts lists accepted PDF table layouts
var ValidTableLayouts = map[string]bool{
	"grid":                 true,
	"lightHorizontalLines": true,
	"noBorders":            true,
}

// ValidationError represents a single validation finding
type ValidationError struct {
	Field   string      `json:"field"`
	Message string      `json:"message"`
	Value   interface{} `json:"value,omitempty"`
}

// Result is the outcome of validating one export. Data, Columns and Config
// hold the possibly-corrected payload to export.
type Result struct {
	Errors   []ValidationError
	Warnings []ValidationError

	Data    *models.ExportData
	Columns []models.Column
	Config  models.ExportConfig
}

// HasErrors reports whether the export must stop
func (r *Result) HasErrors() bool {
	return len(r.Errors) > 0
}

// HasWarnings reports whether non-fatal findings were recorded
func (r *Result) HasWarnings() bool {
	return len(r.Warnings) > 0
}

// ErrorMessages returns the error messages in order
func (r *Result) ErrorMessages() []string {
	return messages(r.Errors)
}

// WarningMessages returns the warning messages in order
func (r *Result) WarningMessages() []string {
	return messages(r.Warnings)
}

func (r *Result) addError(field, msg string, value interface{}) {
	r.Errors = append(r.Errors, ValidationError{Field: field, Message: msg, Value: value})
}

func (r *Result) addWarning(field, msg string, value interface{}) {
	r.Warnings = append(r.Warnings, ValidationError{Field: field, Message: msg, Value: value})
}

// ValidateExportData checks data, columns and configuration for a format
func ValidateExportData(data *models.ExportData, columns []models.Column, cfg models.ExportConfig, format string) *Result {
	r := &Result{Data: data, Columns: columns, Config: cfg}

	if data.IsEmpty() {
		r.addError("data", "No se proporcionaron datos para exportar", nil)
		return r
	}

	validateColumns(r, columns, "columns")
	for _, ds := range data.Datasets {
		if strings.TrimSpace(ds.Name) == "" {
			r.addError("datasets", "Cada conjunto de datos debe tener un nombre", nil)
		}
		validateColumns(r, ds.Columns, "datasets."+ds.Name+".columns")
	}

	validateCommon(r)

	switch Family(format) {
	case "csv":
		validateCSV(r)
	case "json":
	case "xlsx":
		validateBranding(r)
		validateXLSX(r)
	case "pdf":
		validateBranding(r)
		validatePDF(r)
	}

	return r
}

// Family strips a branded suffix from a format id
func Family(format string) string {
	return strings.TrimSuffix(format, "-branded")
}

func validateColumns(r *Result, columns []models.Column, field string) {
	for i, col := range columns {
		if strings.TrimSpace(col.Key) == "" {
			r.addError(field, fmt.Sprintf("La columna %d no tiene clave (key)", i+1), nil)
			continue
		}
		if col.Type != "" && !models.ValidColumnTypes[col.Type] {
			r.addError(field, fmt.Sprintf("Tipo de columna inválido '%s' en '%s'", col.Type, col.Key), col.Type)
		}
	}
}

func validateCommon(r *Result) {
	if strings.ContainsAny(r.Config.Filename, `/\`) {
		r.addWarning("filename", "El nombre de archivo contiene caracteres no válidos y será saneado", r.Config.Filename)
	}
	if r.Config.MaxCellLength < 0 {
		r.addWarning("maxCellLength", "La longitud máxima de celda no puede ser negativa, se usará 50", r.Config.MaxCellLength)
		r.Config.MaxCellLength = 50
	}
}

func validateCSV(r *Result) {
	d := r.Config.CSV.Delimiter
	if utf8.RuneCountInString(d) != 1 || d == `"` || d == "\n" || d == "\r" {
		r.addError("csv.delimiter", "El delimitador CSV debe ser un único carácter válido", d)
	}

	if r.Data.Records == nil && len(r.Data.Datasets) > 0 {
		first := r.Data.Datasets[0]
		if len(r.Data.Datasets) > 1 {
			r.addWarning("datasets", fmt.Sprintf("CSV solo admite una hoja; se exportará '%s'", first.Name), len(r.Data.Datasets))
		}
		data := *r.Data
		data.Records = first.Records
		if data.Records == nil {
			data.Records = []models.Record{}
		}
		data.Datasets = nil
		r.Data = &data
		if len(r.Columns) == 0 {
			r.Columns = first.Columns
		}
	}
}

func validateXLSX(r *Result) {
	name := r.Config.XLSX.SheetName
	if sheetNameRegex.MatchString(name) || utf8.RuneCountInString(name) > maxSheetNameLength {
		r.addWarning("xlsx.sheetName", "El nombre de hoja no es válido para Excel y será ajustado", name)
		r.Config.XLSX.SheetName = SanitizeSheetName(name)
	}

	if len(r.Data.Records) > MaxSheetRows {
		r.addError("data", "Excel admite un máximo de 1.048.575 filas de datos por hoja", len(r.Data.Records))
	}
	for _, ds := range r.Data.Datasets {
		if len(ds.Records) > MaxSheetRows {
			r.addError("datasets", fmt.Sprintf("La hoja '%s' supera el máximo de 1.048.575 filas", ds.Name), len(ds.Records))
		}
	}
}

func validatePDF(r *Result) {
	size := strings.ToUpper(r.Config.PageSize)
	if !ValidPageSizes[size] {
		r.addWarning("pageSize", fmt.Sprintf("Tamaño de página no estándar '%s', se usará A4", r.Config.PageSize), r.Config.PageSize)
		size = "A4"
	}
	r.Config.PageSize = size

	if !ValidOrientations[r.Config.PageOrientation] {
		r.addWarning("pageOrientation", fmt.Sprintf("Orientación no válida '%s', se usará portrait", r.Config.PageOrientation), r.Config.PageOrientation)
		r.Config.PageOrientation = "portrait"
	}

	if len(r.Config.PageMargins) != 4 {
		r.addWarning("pageMargins", "Los márgenes deben tener 4 valores [izquierda, arriba, derecha, abajo]", r.Config.PageMargins)
		r.Config.PageMargins = []float64{40, 60, 40, 60}
	} else {
		for _, m := range r.Config.PageMargins {
			if m < 0 {
				r.addWarning("pageMargins", "Los márgenes no pueden ser negativos", r.Config.PageMargins)
				r.Config.PageMargins = []float64{40, 60, 40, 60}
				break
			}
		}
	}

	if r.Config.Table.Layout != "" && !ValidTableLayouts[r.Config.Table.Layout] {
		r.addWarning("table.layout", fmt.Sprintf("Diseño de tabla desconocido '%s'", r.Config.Table.Layout), r.Config.Table.Layout)
		r.Config.Table.Layout = "lightHorizontalLines"
	}

	rows := len(r.Data.Records)
	for _, ds := range r.Data.Datasets {
		rows += len(ds.Records)
	}
	if rows > LargePDFRows {
		r.addWarning("data", "Gran cantidad de datos; el PDF puede ser muy extenso", rows)
	}
}

func validateBranding(r *Result) {
	if c := r.Config.Branding.PrimaryColor; c != "" && !IsHexColor(c) {
		r.addWarning("branding.primaryColor", "Color primario debe ser formato hexadecimal (#RRGGBB)", c)
		r.Config.Branding.PrimaryColor = ""
	}
	if c := r.Config.Branding.SecondaryColor; c != "" && !IsHexColor(c) {
		r.addWarning("branding.secondaryColor", "Color secundario debe ser formato hexadecimal (#RRGGBB)", c)
		r.Config.Branding.SecondaryColor = ""
	}
}

// IsHexColor checks the #RRGGBB form
func IsHexColor(s string) bool {
	return hexColorRegex.MatchString(s)
}

// SanitizeSheetName makes a name acceptable as a spreadsheet tab
func SanitizeSheetName(name string) string {
	name = sheetNameRegex.ReplaceAllString(name, "_")
	name = strings.Trim(name, "'")
	if utf8.RuneCountInString(name) > maxSheetNameLength {
		name = string([]rune(name)[:maxSheetNameLength])
	}
	if strings.TrimSpace(name) == "" {
		return "Datos"
	}
	return name
}

func messages(errs []ValidationError) []string {
	out := make([]string, len(errs))
	for i, e := range errs {
		out[i] = e.Message
	}
	return out
}
