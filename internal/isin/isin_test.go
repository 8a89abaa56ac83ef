package isin

import (
	"fmt"
	"testing"
)

func TestValidate(t *testing.T) {
	tests := []struct {
		input string
		valid bool
	}{
		{"CH1259344831", true},
		{"US0378331005", true},
		{"GB0002634946", true},
		{"DE0005140008", true},
		{"LU0908500753", true},
		{"IE00B4L5Y983", true},
		{"US0378331004", false}, // check digit off by one
		{"XX1234567890", false},
		{"US03783310", false},     // too short
		{"US03783310055", false},  // too long
		{"0S0378331005", false},   // digit in country code
		{"us0378331005", false},   // lowercase
		{"", false},
	}
	for _, tt := range tests {
		err := Validate(tt.input)
		if tt.valid && err != nil {
			t.Errorf("Validate(%q) = %v, want nil", tt.input, err)
		}
		if !tt.valid && err == nil {
			t.Errorf("Validate(%q) = nil, want error", tt.input)
		}
	}
}

// TestCheckDigitProperty asserts that appending the computed check digit to
// any body always yields a valid identifier, and that any other digit fails.
func TestCheckDigitProperty(t *testing.T) {
	bodies := []string{
		"CH125934483",
		"US037833100",
		"DE000514000",
		"FR000012027",
		"GB000263494",
		"JP000000001",
		"SE0000108656"[:11],
	}
	for _, body := range bodies {
		d, err := CheckDigit(body)
		if err != nil {
			t.Fatalf("CheckDigit(%q): %v", body, err)
		}
		full := fmt.Sprintf("%s%d", body, d)
		if err := Validate(full); err != nil {
			t.Errorf("Validate(%q) = %v, want nil", full, err)
		}
		wrong := fmt.Sprintf("%s%d", body, (d+1)%10)
		if err := Validate(wrong); err == nil {
			t.Errorf("Validate(%q) = nil, want check digit error", wrong)
		}
	}
}

func TestCheckDigitRejectsBadInput(t *testing.T) {
	if _, err := CheckDigit("SHORT"); err == nil {
		t.Error("expected error for short body")
	}
	if _, err := CheckDigit("US03783310-"); err == nil {
		t.Error("expected error for invalid character")
	}
}
