package attribute

import "testing"

func TestParseAmount(t *testing.T) {
	tests := []struct {
		input string
		want  string
		ok    bool
	}{
		{"249'800.00", "249800", true},
		{"1'234'567.89", "1234567.89", true},
		{"1.234.567,89", "1234567.89", true},
		{"1 234,56", "1234.56", true},
		{"1,234,567.89", "1234567.89", true},
		{"12.5", "12.5", true},
		{"1234", "1234", true},
		{"-42.50", "-42.5", true},
		{"0,5", "0.5", true},
		{"1.000", "1000", true}, // three digits after a dot group thousands
		{"33.25%", "33.25", true},
		{"", "", false},
		{"abc", "", false},
		{"CH1259344831", "", false},
		{"12..5", "", false},
		{"1'23.0", "", false}, // malformed grouping
	}
	for _, tt := range tests {
		got, ok := ParseAmount(tt.input)
		if ok != tt.ok {
			t.Errorf("ParseAmount(%q) ok = %v, want %v", tt.input, ok, tt.ok)
			continue
		}
		if ok && got.String() != tt.want {
			t.Errorf("ParseAmount(%q) = %s, want %s", tt.input, got, tt.want)
		}
	}
}

func TestIsCurrencyCode(t *testing.T) {
	for _, ccy := range []string{"USD", "CHF", "EUR", "GBP", "JPY"} {
		if !IsCurrencyCode(ccy) {
			t.Errorf("IsCurrencyCode(%q) = false, want true", ccy)
		}
	}
	for _, s := range []string{"usd", "US", "DOLLAR", "XXZ", ""} {
		if IsCurrencyCode(s) {
			t.Errorf("IsCurrencyCode(%q) = true, want false", s)
		}
	}
}
