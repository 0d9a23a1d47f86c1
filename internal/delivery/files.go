package delivery

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"path/filepath"
	"regexp"
	"strings"
	"time"
	"unicode/utf8"
)

const (
	// MaxFilenameLength is the longest filename most filesystems accept
	MaxFilenameLength = 255

	// DefaultMimeType is used for unknown extensions
	DefaultMimeType = "application/octet-stream"

	timestampLayout = "20060102_150405"
	utf8BOM         = "\ufeff"
)

var mimeTypes = map[string]string{
	".csv":    "text/csv;charset=utf-8",
	".json":   "application/json",
	".ndjson": "application/x-ndjson",
	".xlsx":   "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet",
	".xls":    "application/vnd.ms-excel",
	".pdf":    "application/pdf",
	".txt":    "text/plain;charset=utf-8",
	".xml":    "application/xml",
	".html":   "text/html;charset=utf-8",
	".zip":    "application/zip",
	".png":    "image/png",
	".jpg":    "image/jpeg",
	".jpeg":   "image/jpeg",
}

var (
	illegalChars  = regexp.MustCompile(`[<>:"/\\|?*\x00-\x1f]`)
	whitespaceRun = regexp.MustCompile(`\s+`)
	underscoreRun = regexp.MustCompile(`_+`)
)

// GetMimeType resolves a MIME type from the filename extension
func GetMimeType(filename string) string {
	if mt, ok := mimeTypes[strings.ToLower(filepath.Ext(filename))]; ok {
		return mt
	}
	return DefaultMimeType
}

// SanitizeFilename replaces characters filesystems reject, collapses
// whitespace and underscore runs, trims edge underscores and caps the length.
// It returns "" when nothing usable remains.
func SanitizeFilename(filename string) string {
	name := illegalChars.ReplaceAllString(filename, "_")
	name = whitespaceRun.ReplaceAllString(name, "_")
	name = underscoreRun.ReplaceAllString(name, "_")
	name = strings.Trim(name, "_")
	return capLength(name, MaxFilenameLength)
}

// GenerateUniqueFilename synthesizes a name from the current time when none
// is given, and inserts a YYYYMMDD_HHMMSS token before the extension when
// addTimestamp is set.
func GenerateUniqueFilename(filename string, addTimestamp bool, now time.Time) string {
	stamp := now.Format(timestampLayout)
	if strings.TrimSpace(filename) == "" {
		return "export_" + stamp
	}
	if !addTimestamp {
		return filename
	}

	ext := filepath.Ext(filename)
	base := strings.TrimSuffix(filename, ext)
	if base == "" {
		// dotfile such as ".env": no extension to preserve
		return filename + "_" + stamp
	}
	return base + "_" + stamp + ext
}

// Blob is a typed byte payload ready for delivery
type Blob struct {
	Data     []byte
	MimeType string
}

// Size returns the payload length in bytes
func (b *Blob) Size() int64 {
	return int64(len(b.Data))
}

// CreateBlob normalizes content into a Blob. Byte payloads pass through,
// CSV text gains a UTF-8 BOM, and structured values become indented JSON.
func CreateBlob(content interface{}, mimeType string) (*Blob, error) {
	switch c := content.(type) {
	case nil:
		return nil, fmt.Errorf("content is nil")
	case *Blob:
		if c.MimeType == "" {
			c.MimeType = mimeType
		}
		return c, nil
	case []byte:
		return &Blob{Data: c, MimeType: mimeType}, nil
	case *bytes.Buffer:
		return &Blob{Data: c.Bytes(), MimeType: mimeType}, nil
	case string:
		if strings.HasPrefix(mimeType, "text/csv") && !strings.HasPrefix(c, utf8BOM) {
			c = utf8BOM + c
		}
		return &Blob{Data: []byte(c), MimeType: mimeType}, nil
	case io.Reader:
		data, err := io.ReadAll(c)
		if err != nil {
			return nil, fmt.Errorf("failed to read content: %w", err)
		}
		return &Blob{Data: data, MimeType: mimeType}, nil
	}

	data, err := json.MarshalIndent(content, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to encode content: %w", err)
	}
	if mimeType == "" || mimeType == DefaultMimeType {
		mimeType = "application/json"
	}
	return &Blob{Data: data, MimeType: mimeType}, nil
}

// capLength trims s to at most max bytes without splitting a rune
func capLength(s string, max int) string {
	if len(s) <= max {
		return s
	}
	cut := max
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut]
}
