package output

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/clearfolio/statement-parser/constants"
	"github.com/clearfolio/statement-parser/internal/portfolio"
)

func sampleResult() Result {
	value := decimal.NewFromInt(249800)
	p := portfolio.Portfolio{
		Securities: []portfolio.Security{{
			ISIN:       "CH1259344831",
			Name:       "Example Structured Note",
			Quantity:   decimal.NullDecimal{Decimal: decimal.NewFromInt(1000), Valid: true},
			Value:      decimal.NullDecimal{Decimal: value, Valid: true},
			Currency:   "USD",
			AssetClass: constants.StructuredProducts,
			Confidence: 0.9,
		}},
		TotalValue: value,
		Currency:   "USD",
		Allocation: map[string]portfolio.ClassWeight{
			string(constants.StructuredProducts): {Value: value, Weight: decimal.NewFromInt(100)},
		},
		Reconciled: true,
	}
	date := time.Date(2026, 3, 31, 0, 0, 0, 0, time.UTC)
	return Build(p, nil, "doc-1", &date, constants.RunCompleted, 1500*time.Millisecond)
}

func TestBuildMetrics(t *testing.T) {
	r := sampleResult()
	if r.Metrics.TotalSecurities != 1 {
		t.Errorf("total securities = %d, want 1", r.Metrics.TotalSecurities)
	}
	if r.Metrics.TotalAssetClasses != 1 {
		t.Errorf("asset classes = %d, want 1", r.Metrics.TotalAssetClasses)
	}
	if r.Metrics.ProcessingTime != 1.5 {
		t.Errorf("processing time = %v, want 1.5", r.Metrics.ProcessingTime)
	}
	if r.DocumentInfo.DocumentDate != "2026-03-31" {
		t.Errorf("document date = %q", r.DocumentInfo.DocumentDate)
	}
	if r.Issues == nil {
		t.Error("issues must serialize as an empty array, not null")
	}
}

func TestMarshalValidatesAndRoundTrips(t *testing.T) {
	r := sampleResult()
	body, err := Marshal(r)
	if err != nil {
		t.Fatal(err)
	}

	var back Result
	if err := json.Unmarshal(body, &back); err != nil {
		t.Fatal(err)
	}
	again, err := Marshal(back)
	if err != nil {
		t.Fatal(err)
	}
	if string(body) != string(again) {
		t.Error("serialization is not stable across a round trip")
	}
	if back.Portfolio.Securities[0].Value.Decimal.String() != "249800" {
		t.Errorf("value after round trip = %s", back.Portfolio.Securities[0].Value.Decimal)
	}
	if back.State != constants.RunCompleted {
		t.Errorf("state = %q", back.State)
	}
}

func TestValidateRejectsBadDocument(t *testing.T) {
	if err := Validate([]byte(`{"portfolio": {}}`)); err == nil {
		t.Error("expected schema violation for missing fields")
	}
	if err := Validate([]byte(`not json`)); err == nil {
		t.Error("expected error for malformed json")
	}
}

func TestMarshalRejectsInvalidISIN(t *testing.T) {
	r := sampleResult()
	r.Portfolio.Securities[0].ISIN = "not-an-isin"
	if _, err := Marshal(r); err == nil {
		t.Error("expected schema violation for malformed identifier")
	}
}
