// Package isin validates International Securities Identification Numbers
// (ISO 6166) and scans extracted pages and table candidates for them.
package isin

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// pattern checks for the basic structure: 2 letters, 9 alphanumeric, 1 digit.
var pattern = regexp.MustCompile(`\b[A-Z]{2}[A-Z0-9]{9}[0-9]\b`)

// Validate checks if a string is a validly formatted ISIN.
// It returns nil if valid, or a descriptive error if invalid.
func Validate(isin string) error {
	// 1. Length validation
	if len(isin) != 12 {
		return fmt.Errorf("invalid length: must be 12 characters, got %d", len(isin))
	}

	// 2. Format validation
	if !pattern.MatchString(isin) {
		return fmt.Errorf("invalid format: must be 2 uppercase letters, 9 alphanumeric chars, and 1 digit")
	}

	// 3. Convert letters to numbers for check digit calculation
	var numericStr strings.Builder
	for _, char := range isin[:11] {
		if char >= 'A' && char <= 'Z' {
			numericStr.WriteString(strconv.Itoa(int(char - 'A' + 10)))
		} else {
			numericStr.WriteRune(char)
		}
	}

	// 4. Apply a variation of the Luhn algorithm
	sum := 0
	isSecond := true
	digits := numericStr.String()
	for i := len(digits) - 1; i >= 0; i-- {
		digit, _ := strconv.Atoi(string(digits[i]))

		if isSecond {
			digit *= 2
		}

		sum += (digit / 10) + (digit % 10)
		isSecond = !isSecond
	}

	// 5. Validate the check digit
	expectedCheckDigit := (10 - (sum % 10)) % 10
	actualCheckDigit, _ := strconv.Atoi(string(isin[11]))

	if expectedCheckDigit != actualCheckDigit {
		return fmt.Errorf("invalid check digit: expected %d, got %d", expectedCheckDigit, actualCheckDigit)
	}

	return nil
}

// CheckDigit computes the check digit for the first 11 characters of an
// ISIN. Used to build valid fixtures and to cross-check arbitration output.
func CheckDigit(body string) (int, error) {
	if len(body) != 11 {
		return 0, fmt.Errorf("invalid body length: must be 11 characters, got %d", len(body))
	}
	var numericStr strings.Builder
	for _, char := range body {
		switch {
		case char >= 'A' && char <= 'Z':
			numericStr.WriteString(strconv.Itoa(int(char - 'A' + 10)))
		case char >= '0' && char <= '9':
			numericStr.WriteRune(char)
		default:
			return 0, fmt.Errorf("invalid character %q", char)
		}
	}

	sum := 0
	isSecond := true
	digits := numericStr.String()
	for i := len(digits) - 1; i >= 0; i-- {
		digit, _ := strconv.Atoi(string(digits[i]))
		if isSecond {
			digit *= 2
		}
		sum += (digit / 10) + (digit % 10)
		isSecond = !isSecond
	}
	return (10 - (sum % 10)) % 10, nil
}
