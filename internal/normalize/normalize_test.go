package normalize

import (
	"strings"
	"testing"
	"time"

	"github.com/document-export-api/internal/models"
)

func TestScalar(t *testing.T) {
	tests := []struct {
		name  string
		value interface{}
		want  string
	}{
		{name: "nil renders empty", value: nil, want: ""},
		{name: "string passes through", value: "hola", want: "hola"},
		{name: "integer", value: 42, want: "42"},
		{name: "float without trailing zeros", value: 3.5, want: "3.5"},
		{name: "boolean true", value: true, want: "true"},
		{name: "boolean false", value: false, want: "false"},
		{name: "map as json", value: map[string]interface{}{"a": 1}, want: `{"a":1}`},
		{name: "slice as json", value: []interface{}{"x", "y"}, want: `["x","y"]`},
		{name: "date as RFC3339", value: time.Date(2024, 3, 5, 10, 0, 0, 0, time.UTC), want: "2024-03-05T10:00:00Z"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Scalar(tt.value); got != tt.want {
				t.Errorf("Scalar(%v) = %q, want %q", tt.value, got, tt.want)
			}
		})
	}
}

func TestScalar_NeverRendersNullLiterals(t *testing.T) {
	var nilTime *time.Time
	for _, v := range []interface{}{nil, nilTime} {
		got := Scalar(v)
		if got == "null" || got == "undefined" || got == "<nil>" {
			t.Errorf("Scalar(%#v) = %q, want empty", v, got)
		}
	}
}

func TestTruncate(t *testing.T) {
	fifty := strings.Repeat("a", 50)
	fiftyOne := strings.Repeat("b", 51)

	if got := Truncate(fifty, 50); got != fifty {
		t.Errorf("50-char value should be untouched, got %q", got)
	}

	got := Truncate(fiftyOne, 50)
	if len(got) != 50 {
		t.Fatalf("Expected 50 chars, got %d", len(got))
	}
	if got != strings.Repeat("b", 47)+"..." {
		t.Errorf("Expected 47 chars plus ellipsis, got %q", got)
	}

	if got := Truncate(fiftyOne, 0); got != fiftyOne {
		t.Error("max 0 should disable truncation")
	}
}

func TestTruncate_CountsRunes(t *testing.T) {
	s := strings.Repeat("ñ", 60)
	got := Truncate(s, 50)
	if n := len([]rune(got)); n != 50 {
		t.Errorf("Expected 50 runes, got %d", n)
	}
}

func TestFormatNumber(t *testing.T) {
	if got := FormatNumber(1234567, "en"); got != "1,234,567" {
		t.Errorf("en grouping = %v", got)
	}
	if got := FormatNumber(1234567, "es"); got != "1.234.567" {
		t.Errorf("es grouping = %v", got)
	}
	if got := FormatNumber("abc", "es"); got != "abc" {
		t.Errorf("non-numeric string should pass through unchanged, got %v", got)
	}
}

func TestFormatDate(t *testing.T) {
	d := time.Date(2024, 3, 5, 0, 0, 0, 0, time.UTC)
	if got := FormatDate(d, "es"); got != "05/03/2024" {
		t.Errorf("es date = %v", got)
	}
	if got := FormatDate(d, "en-US"); got != "3/5/2024" {
		t.Errorf("en date = %v", got)
	}
	if got := FormatDate("2024-03-05", "es"); got != "05/03/2024" {
		t.Errorf("parsed string date = %v", got)
	}
	if got := FormatDate("not a date", "es"); got != "not a date" {
		t.Errorf("unparseable value should be unchanged, got %v", got)
	}
	if got := FormatDate(17, "es"); got != 17 {
		t.Errorf("non-date value should be unchanged, got %v", got)
	}
}

func TestFormatBool(t *testing.T) {
	if got := FormatBool(true, "es"); got != "Sí" {
		t.Errorf("true = %v", got)
	}
	if got := FormatBool(false, "es"); got != "No" {
		t.Errorf("false = %v", got)
	}
	if got := FormatBool(true, "en"); got != "Yes" {
		t.Errorf("en true = %v", got)
	}
	if got := FormatBool("maybe", "es"); got != "maybe" {
		t.Errorf("non-bool should pass through, got %v", got)
	}
}

func TestDisplay(t *testing.T) {
	opts := Options{Locale: "es", MaxLength: 10}

	if got := Display(nil, models.ColumnNumber, opts); got != "" {
		t.Errorf("nil = %q", got)
	}
	if got := Display(true, models.ColumnBoolean, opts); got != "Sí" {
		t.Errorf("boolean column = %q", got)
	}
	if got := Display(true, models.ColumnString, opts); got != "true" {
		t.Errorf("boolean in string column = %q", got)
	}
	if got := Display("abcdefghijklmno", models.ColumnString, opts); got != "abcdefg..." {
		t.Errorf("truncated = %q", got)
	}
}

func TestCountItems(t *testing.T) {
	if got := CountItems([]interface{}{1, 2, 3}); got != 3 {
		t.Errorf("Expected 3, got %v", got)
	}
	if got := CountItems("x"); got != "x" {
		t.Errorf("non-slice should pass through, got %v", got)
	}
}

func TestDetectType(t *testing.T) {
	tests := []struct {
		value interface{}
		want  models.ColumnType
	}{
		{12.5, models.ColumnNumber},
		{true, models.ColumnBoolean},
		{"2024-01-01", models.ColumnDate},
		{time.Now(), models.ColumnDate},
		{"plain", models.ColumnString},
		{map[string]interface{}{}, models.ColumnString},
	}
	for _, tt := range tests {
		if got := DetectType(tt.value); got != tt.want {
			t.Errorf("DetectType(%v) = %s, want %s", tt.value, got, tt.want)
		}
	}
}
