package constants

import (
	"strings"
)

// AssetClass is the closed taxonomy assigned to extracted securities.
type AssetClass string

const (
	Bonds              AssetClass = "Bonds"
	Equities           AssetClass = "Equities"
	StructuredProducts AssetClass = "StructuredProducts"
	Funds              AssetClass = "Funds"
	Liquidity          AssetClass = "Liquidity"
	OtherAssets        AssetClass = "Other"
)

var allAssetClasses = []AssetClass{
	Bonds,
	Equities,
	StructuredProducts,
	Funds,
	Liquidity,
	OtherAssets,
}

func AssetClassStrings() []string {
	result := make([]string, len(allAssetClasses))
	for i, ac := range allAssetClasses {
		result[i] = string(ac)
	}
	return result
}

// CanonicalizeAssetClass maps a free-form classification label (from a table
// column or an arbitration verdict) onto the closed taxonomy.
func CanonicalizeAssetClass(input string) (AssetClass, bool) {
	if input == "" {
		return OtherAssets, false
	}

	normalized := strings.ToLower(strings.TrimSpace(input))

	// synonyms map
	synonyms := map[string]AssetClass{
		"bond":               Bonds,
		"bonds":              Bonds,
		"obligation":         Bonds,
		"obligations":        Bonds,
		"obligationen":       Bonds,
		"fixed income":       Bonds,
		"anleihe":            Bonds,
		"anleihen":           Bonds,
		"equity":             Equities,
		"equities":           Equities,
		"stock":              Equities,
		"stocks":             Equities,
		"share":              Equities,
		"shares":             Equities,
		"action":             Equities,
		"actions":            Equities,
		"aktien":             Equities,
		"structured product": StructuredProducts,
		"structured":         StructuredProducts,
		"certificate":        StructuredProducts,
		"note":               StructuredProducts,
		"fund":               Funds,
		"funds":              Funds,
		"etf":                Funds,
		"fonds":              Funds,
		"sicav":              Funds,
		"cash":               Liquidity,
		"liquidity":          Liquidity,
		"liquidites":         Liquidity,
		"money market":       Liquidity,
	}

	if ac, ok := synonyms[normalized]; ok {
		return ac, true
	}

	// check if it matches any taxonomy string
	for _, ac := range allAssetClasses {
		if normalized == strings.ToLower(string(ac)) {
			return ac, true
		}
	}

	return OtherAssets, false
}
