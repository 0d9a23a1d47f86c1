// Package normalize converts arbitrary input values into cell-safe
// representations shared by every export format.
package normalize

import (
	"encoding/json"
	"fmt"
	"math"
	"reflect"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/document-export-api/internal/models"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
	"golang.org/x/text/number"
)

const (
	// Ellipsis marks a truncated value
	Ellipsis = "..."

	// DefaultMaxLength is the truncation threshold for layout-constrained cells
	DefaultMaxLength = 50

	DefaultLocale = "es"
)

// dateLayouts are tried in order when a string must be read as a date
var dateLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

// localeDateLayouts maps a locale to its short date layout
var localeDateLayouts = map[string]string{
	"es": "02/01/2006",
	"en": "1/2/2006",
	"pt": "02/01/2006",
	"fr": "02/01/2006",
	"de": "02.01.2006",
}

var booleanLabels = map[string][2]string{
	"es": {"Sí", "No"},
	"en": {"Yes", "No"},
	"pt": {"Sim", "Não"},
	"fr": {"Oui", "Non"},
	"de": {"Ja", "Nein"},
}

// Options tune the type-driven default formatter
type Options struct {
	Locale    string
	MaxLength int // 0 disables truncation
}

// Scalar renders any value as plain text without loss. nil becomes "",
// maps and slices become compact JSON.
func Scalar(v interface{}) string {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return val
	case bool:
		return strconv.FormatBool(val)
	case time.Time:
		if val.IsZero() {
			return ""
		}
		return val.Format(time.RFC3339)
	case *time.Time:
		if val == nil {
			return ""
		}
		return Scalar(*val)
	case json.Number:
		return val.String()
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	case float32:
		return strconv.FormatFloat(float64(val), 'f', -1, 32)
	case int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64:
		return fmt.Sprintf("%d", val)
	case fmt.Stringer:
		return val.String()
	case error:
		return val.Error()
	}
	if isComposite(v) {
		return Structured(v)
	}
	return fmt.Sprintf("%v", v)
}

// Structured encodes maps and slices as compact JSON
func Structured(v interface{}) string {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprintf("%v", v)
	}
	return string(data)
}

// Display applies the default formatter for a column type
func Display(v interface{}, typ models.ColumnType, opts Options) string {
	if v == nil {
		return ""
	}
	switch typ {
	case models.ColumnNumber:
		return Scalar(FormatNumber(v, opts.Locale))
	case models.ColumnDate:
		return Scalar(FormatDate(v, opts.Locale))
	case models.ColumnBoolean:
		return Scalar(FormatBool(v, opts.Locale))
	default:
		return Truncate(Scalar(v), opts.MaxLength)
	}
}

// Truncate shortens s to max runes, ending in an ellipsis. A max of 0 or
// less disables truncation.
func Truncate(s string, max int) string {
	if max <= 0 || utf8.RuneCountInString(s) <= max {
		return s
	}
	keep := max - utf8.RuneCountInString(Ellipsis)
	if keep < 0 {
		keep = 0
	}
	runes := []rune(s)
	return string(runes[:keep]) + Ellipsis
}

// FormatNumber groups digits for the locale. Values that are not numeric,
// including non-numeric strings, are returned unchanged.
func FormatNumber(v interface{}, locale string) interface{} {
	f, ok := ToFloat(v)
	if !ok || math.IsNaN(f) || math.IsInf(f, 0) {
		return v
	}
	p := message.NewPrinter(localeTag(locale))
	return p.Sprint(number.Decimal(f, number.MaxFractionDigits(2)))
}

// FormatDate renders a date in the locale's short form. Values that cannot
// be read as a date are returned unchanged.
func FormatDate(v interface{}, locale string) interface{} {
	t, ok := ToTime(v)
	if !ok {
		return v
	}
	layout, found := localeDateLayouts[baseLocale(locale)]
	if !found {
		layout = localeDateLayouts[DefaultLocale]
	}
	return t.Format(layout)
}

// FormatBool renders a localized yes/no. Non-boolean values pass through.
func FormatBool(v interface{}, locale string) interface{} {
	b, ok := v.(bool)
	if !ok {
		return v
	}
	labels, found := booleanLabels[baseLocale(locale)]
	if !found {
		labels = booleanLabels[DefaultLocale]
	}
	if b {
		return labels[0]
	}
	return labels[1]
}

// CountItems summarizes a slice or array to its length
func CountItems(v interface{}) interface{} {
	if v == nil {
		return 0
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Slice, reflect.Array:
		return rv.Len()
	}
	return v
}

// ToFloat converts numeric values and numeric-looking JSON numbers
func ToFloat(v interface{}) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int8:
		return float64(n), true
	case int16:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint:
		return float64(n), true
	case uint8:
		return float64(n), true
	case uint16:
		return float64(n), true
	case uint32:
		return float64(n), true
	case uint64:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	}
	return 0, false
}

// ToTime converts time values and parseable date strings
func ToTime(v interface{}) (time.Time, bool) {
	switch t := v.(type) {
	case time.Time:
		return t, !t.IsZero()
	case *time.Time:
		if t == nil {
			return time.Time{}, false
		}
		return *t, !t.IsZero()
	case string:
		return ParseDate(t)
	}
	return time.Time{}, false
}

// ParseDate reads a string in one of the accepted date layouts
func ParseDate(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// IsEmpty reports whether a value counts as absent for type detection
func IsEmpty(v interface{}) bool {
	switch val := v.(type) {
	case nil:
		return true
	case string:
		return strings.TrimSpace(val) == ""
	}
	return false
}

// DetectType infers a column type from one value
func DetectType(v interface{}) models.ColumnType {
	switch val := v.(type) {
	case bool:
		return models.ColumnBoolean
	case time.Time, *time.Time:
		return models.ColumnDate
	case string:
		if _, ok := ParseDate(val); ok {
			return models.ColumnDate
		}
		return models.ColumnString
	}
	if _, ok := ToFloat(v); ok {
		return models.ColumnNumber
	}
	return models.ColumnString
}

func isComposite(v interface{}) bool {
	switch reflect.ValueOf(v).Kind() {
	case reflect.Map, reflect.Slice, reflect.Array, reflect.Struct:
		return true
	}
	return false
}

func baseLocale(locale string) string {
	locale = strings.ToLower(strings.TrimSpace(locale))
	if i := strings.IndexAny(locale, "-_"); i > 0 {
		locale = locale[:i]
	}
	if locale == "" {
		return DefaultLocale
	}
	return locale
}

func localeTag(locale string) language.Tag {
	tag, err := language.Parse(baseLocale(locale))
	if err != nil {
		return language.Spanish
	}
	return tag
}
