package attribute

import (
	"regexp"
	"strings"

	"github.com/Rhymond/go-money"
	"github.com/shopspring/decimal"
)

var reAmount = regexp.MustCompile(`^-?\d{1,3}(([,.' ])\d{3})*([.,]\d+)?$|^-?\d+([.,]\d+)?$`)

// ParseAmount reads a localized monetary amount ("1'234'567.89",
// "1.234.567,89", "1 234,56") into a decimal. ok is false when the string is
// not an amount.
func ParseAmount(s string) (decimal.Decimal, bool) {
	s = strings.TrimSpace(s)
	s = strings.TrimSuffix(s, "%")
	if s == "" || !reAmount.MatchString(s) {
		return decimal.Decimal{}, false
	}

	// Strip spacing-style group separators outright.
	s = strings.ReplaceAll(s, "'", "")
	s = strings.ReplaceAll(s, " ", "")

	lastDot := strings.LastIndexByte(s, '.')
	lastComma := strings.LastIndexByte(s, ',')

	switch {
	case lastDot >= 0 && lastComma >= 0:
		// Both present: the rightmost is the decimal separator.
		if lastDot > lastComma {
			s = strings.ReplaceAll(s, ",", "")
		} else {
			s = strings.ReplaceAll(s, ".", "")
			s = strings.Replace(s, ",", ".", 1)
		}
	case lastComma >= 0:
		if isGroupSeparator(s, ',') {
			s = strings.ReplaceAll(s, ",", "")
		} else {
			s = strings.Replace(s, ",", ".", 1)
		}
	case lastDot >= 0:
		if isGroupSeparator(s, '.') {
			s = strings.ReplaceAll(s, ".", "")
		}
	}

	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Decimal{}, false
	}
	return d, true
}

// isGroupSeparator reports whether every occurrence of sep is followed by
// exactly three digits, i.e. it groups thousands rather than marking the
// decimal fraction.
func isGroupSeparator(s string, sep byte) bool {
	parts := strings.Split(s, string(sep))
	if len(parts) < 2 {
		return false
	}
	for _, p := range parts[1:] {
		if len(p) != 3 {
			return false
		}
	}
	return true
}

// IsCurrencyCode reports whether s is a known ISO 4217 code.
func IsCurrencyCode(s string) bool {
	if len(s) != 3 || strings.ToUpper(s) != s {
		return false
	}
	return money.GetCurrency(s) != nil
}
