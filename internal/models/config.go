package models

// ExportConfig holds every recognized export option. Values are produced once
// by merging caller overrides onto per-format defaults.
type ExportConfig struct {
	Filename        string    `json:"filename" yaml:"filename"`
	AutoDownload    bool      `json:"autoDownload" yaml:"auto_download"`
	Timestamp       bool      `json:"timestamp" yaml:"timestamp"`
	Locale          string    `json:"locale" yaml:"locale"`
	MaxCellLength   int       `json:"maxCellLength" yaml:"max_cell_length"`
	PageSize        string    `json:"pageSize" yaml:"page_size"`
	PageOrientation string    `json:"pageOrientation" yaml:"page_orientation"`
	PageMargins     []float64 `json:"pageMargins" yaml:"page_margins"` // left, top, right, bottom

	Cover    CoverConfig    `json:"cover" yaml:"cover"`
	Header   HeaderConfig   `json:"header" yaml:"header"`
	Footer   FooterConfig   `json:"footer" yaml:"footer"`
	Branding BrandingConfig `json:"branding" yaml:"branding"`
	Table    TableConfig    `json:"table" yaml:"table"`

	CSV  CSVConfig  `json:"csv" yaml:"csv"`
	JSON JSONConfig `json:"json" yaml:"json"`
	XLSX XLSXConfig `json:"xlsx" yaml:"xlsx"`
}

// CoverConfig controls the PDF cover page
type CoverConfig struct {
	Enabled  bool   `json:"enabled" yaml:"enabled"`
	Title    string `json:"title" yaml:"title"`
	Subtitle string `json:"subtitle" yaml:"subtitle"`
	Logo     string `json:"logo" yaml:"logo"`
}

// HeaderConfig controls the per-page header
type HeaderConfig struct {
	Enabled bool   `json:"enabled" yaml:"enabled"`
	Text    string `json:"text" yaml:"text"`
}

// FooterConfig controls the per-page footer
type FooterConfig struct {
	Enabled     bool   `json:"enabled" yaml:"enabled"`
	Text        string `json:"text" yaml:"text"`
	PageNumbers bool   `json:"pageNumbers" yaml:"page_numbers"`
}

// BrandingConfig is the caller-supplied visual theme
type BrandingConfig struct {
	PrimaryColor   string `json:"primaryColor" yaml:"primary_color"`
	SecondaryColor string `json:"secondaryColor" yaml:"secondary_color"`
	Logo           string `json:"logo" yaml:"logo"`
	OrgName        string `json:"orgName" yaml:"org_name"`
}

// TableConfig controls PDF table layout
type TableConfig struct {
	Layout string    `json:"layout" yaml:"layout"` // grid, lightHorizontalLines, noBorders
	Widths []float64 `json:"widths" yaml:"widths"` // explicit widths override the heuristic
}

// CSVConfig holds CSV-specific options
type CSVConfig struct {
	Delimiter string `json:"delimiter" yaml:"delimiter"`
	BOM       bool   `json:"bom" yaml:"bom"`
}

// JSONConfig holds JSON-specific options
type JSONConfig struct {
	Pretty          bool `json:"pretty" yaml:"pretty"`
	IncludeMetadata bool `json:"includeMetadata" yaml:"include_metadata"`
}

// XLSXConfig holds spreadsheet-specific options
type XLSXConfig struct {
	SheetName    string `json:"sheetName" yaml:"sheet_name"`
	FreezeHeader bool   `json:"freezeHeader" yaml:"freeze_header"`
	AutoFilter   bool   `json:"autoFilter" yaml:"auto_filter"`
}
