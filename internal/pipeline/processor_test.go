package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/shopspring/decimal"

	"github.com/clearfolio/statement-parser/constants"
	"github.com/clearfolio/statement-parser/internal/arbitrate"
	"github.com/clearfolio/statement-parser/internal/attribute"
	"github.com/clearfolio/statement-parser/internal/common"
	"github.com/clearfolio/statement-parser/internal/document"
	"github.com/clearfolio/statement-parser/internal/merge"
)

// fakeExtractor fills pages without touching pdf bytes or external tools.
type fakeExtractor struct {
	pages []document.Page
	err   error
}

func (f *fakeExtractor) ExtractDocument(_ context.Context, doc *document.Document) error {
	if f.err != nil {
		return f.err
	}
	doc.Pages = make([]document.Page, len(f.pages))
	copy(doc.Pages, f.pages)
	doc.PageCount = len(f.pages)
	return nil
}

// fakeArbiter returns one fixed verdict for every dispute.
type fakeArbiter struct {
	verdict arbitrate.Verdict
	err     error
	calls   int
}

func (f *fakeArbiter) Arbitrate(_ context.Context, ev arbitrate.Evidence) (arbitrate.Verdict, error) {
	f.calls++
	if f.err != nil {
		return arbitrate.Verdict{}, f.err
	}
	return f.verdict, nil
}

func testConfig() *common.Config {
	cfg := common.LoadConfig()
	cfg.Pipeline.ValueTolerance = 0.01
	cfg.Pipeline.ConfidenceThreshold = 0.55
	return cfg
}

func tok(text string, x0, y, width float64) document.Token {
	return document.Token{
		Text: text,
		Box:  document.Rect{X0: x0, Y0: y, X1: x0 + width, Y1: y + 10},
		Conf: 1.0,
	}
}

// tablePage lays out a header row and one data row in three columns.
func tablePage(index int) document.Page {
	return document.Page{
		Index:      index,
		Method:     "pdf-text",
		Confidence: 1.0,
		Tokens: []document.Token{
			tok("ISIN", 0, 300, 40), tok("Quantity", 200, 300, 60), tok("Value", 400, 300, 40), tok("Ccy", 560, 300, 30),
			tok("CH1259344831", 0, 280, 90), tok("1'000", 200, 280, 40), tok("249'800.00", 400, 280, 70), tok("USD", 560, 280, 30),
			tok("US0378331005", 0, 260, 90), tok("500", 200, 260, 30), tok("90'125.00", 400, 260, 65), tok("USD", 560, 260, 30),
		},
	}
}

func freeTextPage(index int, isin, amount string, conf float64) document.Page {
	return document.Page{
		Index:      index,
		Method:     "pdf-text",
		Confidence: conf,
		Text:       "Position " + isin + " valued at USD " + amount + " per statement",
	}
}

func TestProcessTablePage(t *testing.T) {
	proc := NewProcessor(testConfig(), &fakeExtractor{pages: []document.Page{tablePage(0)}}, nil, nil)
	doc := document.New([]byte("%PDF-fake"), []string{"eng"})

	res, err := proc.Process(context.Background(), doc, Options{})
	if err != nil {
		t.Fatal(err)
	}
	if res.State != constants.RunCompleted {
		t.Fatalf("state = %q, issues = %v", res.State, res.Issues)
	}
	if len(res.Portfolio.Securities) != 2 {
		t.Fatalf("got %d securities, want 2", len(res.Portfolio.Securities))
	}
	first := res.Portfolio.Securities[0]
	if first.ISIN != "CH1259344831" {
		t.Errorf("isin = %q", first.ISIN)
	}
	if !first.Value.Valid || first.Value.Decimal.String() != "249800" {
		t.Errorf("value = %+v, want 249800", first.Value)
	}
	if first.Currency != "USD" {
		t.Errorf("currency = %q", first.Currency)
	}
	if res.Portfolio.Currency != "USD" {
		t.Errorf("portfolio currency = %q", res.Portfolio.Currency)
	}
	if res.Portfolio.TotalValue.String() != "339925" {
		t.Errorf("total = %s, want 339925", res.Portfolio.TotalValue)
	}
	if res.Metrics.TotalSecurities != 2 {
		t.Errorf("metrics securities = %d", res.Metrics.TotalSecurities)
	}
}

func TestProcessConflictingFreeText(t *testing.T) {
	pages := []document.Page{
		freeTextPage(0, "CH1259344831", "249'800.00", 1.0),
		freeTextPage(1, "CH1259344831", "248'000.00", 1.0),
	}
	proc := NewProcessor(testConfig(), &fakeExtractor{pages: pages}, nil, nil)
	doc := document.New([]byte("%PDF-fake"), []string{"eng"})

	res, err := proc.Process(context.Background(), doc, Options{})
	if err != nil {
		t.Fatal(err)
	}
	if res.State != constants.RunWithIssues {
		t.Fatalf("state = %q, want completed_with_issues", res.State)
	}
	if len(res.Portfolio.Securities) != 1 {
		t.Fatalf("got %d securities, want 1", len(res.Portfolio.Securities))
	}
	// equally supported sources: the earliest page occurrence stands
	if got := res.Portfolio.Securities[0].Value.Decimal.String(); got != "249800" {
		t.Errorf("value = %s, want 249800", got)
	}
	var conflict bool
	for _, is := range res.Issues {
		if is.Kind == constants.IssueConflictingValue {
			conflict = true
		}
	}
	if !conflict {
		t.Errorf("issues = %v, want a conflicting-value finding", res.Issues)
	}
}

func TestProcessHigherConfidenceWinsWithoutIssue(t *testing.T) {
	pages := []document.Page{
		freeTextPage(0, "CH1259344831", "249'800.00", 1.0),
		freeTextPage(1, "CH1259344831", "248'000.00", 0.7),
	}
	proc := NewProcessor(testConfig(), &fakeExtractor{pages: pages}, nil, nil)
	doc := document.New([]byte("%PDF-fake"), []string{"eng"})

	res, err := proc.Process(context.Background(), doc, Options{})
	if err != nil {
		t.Fatal(err)
	}
	if res.State != constants.RunCompleted {
		t.Fatalf("state = %q, issues = %v", res.State, res.Issues)
	}
	if got := res.Portfolio.Securities[0].Value.Decimal.String(); got != "249800" {
		t.Errorf("value = %s, want the stronger source", got)
	}
}

func TestProcessArbitrationResolvesConflict(t *testing.T) {
	pages := []document.Page{
		freeTextPage(0, "CH1259344831", "249'800.00", 1.0),
		freeTextPage(1, "CH1259344831", "248'000.00", 1.0),
	}
	arb := &fakeArbiter{verdict: arbitrate.Verdict{Field: "value", Value: "249800", Rationale: "statement context"}}
	proc := NewProcessor(testConfig(), &fakeExtractor{pages: pages}, arb, nil)
	doc := document.New([]byte("%PDF-fake"), []string{"eng"})

	res, err := proc.Process(context.Background(), doc, Options{ArbitrationEnabled: true})
	if err != nil {
		t.Fatal(err)
	}
	if arb.calls == 0 {
		t.Fatal("arbiter never consulted")
	}
	if res.State != constants.RunCompleted {
		t.Fatalf("state = %q, issues = %v", res.State, res.Issues)
	}
	if got := res.Portfolio.Securities[0].Value.Decimal.String(); got != "249800" {
		t.Errorf("value = %s, want the arbitrated 249800", got)
	}
}

func TestProcessArbitrationUnavailableDegrades(t *testing.T) {
	pages := []document.Page{
		freeTextPage(0, "CH1259344831", "249'800.00", 1.0),
		freeTextPage(1, "CH1259344831", "248'000.00", 1.0),
	}
	arb := &fakeArbiter{err: arbitrate.ErrUnavailable}
	proc := NewProcessor(testConfig(), &fakeExtractor{pages: pages}, arb, nil)
	doc := document.New([]byte("%PDF-fake"), []string{"eng"})

	res, err := proc.Process(context.Background(), doc, Options{ArbitrationEnabled: true})
	if err != nil {
		t.Fatal("arbitration failure must never fail the run:", err)
	}
	if res.State != constants.RunWithIssues {
		t.Fatalf("state = %q, want completed_with_issues", res.State)
	}
	var unavailable bool
	for _, is := range res.Issues {
		if is.Kind == constants.IssueArbitration {
			unavailable = true
		}
	}
	if !unavailable {
		t.Errorf("issues = %v, want arbitration-unavailable", res.Issues)
	}
}

func TestProcessTotalMismatch(t *testing.T) {
	page := tablePage(0)
	page.Text = "Total assets   USD   360'000.00"
	proc := NewProcessor(testConfig(), &fakeExtractor{pages: []document.Page{page}}, nil, nil)
	doc := document.New([]byte("%PDF-fake"), []string{"eng"})

	res, err := proc.Process(context.Background(), doc, Options{})
	if err != nil {
		t.Fatal(err)
	}
	if res.State != constants.RunWithIssues {
		t.Fatalf("state = %q, want completed_with_issues", res.State)
	}
	if res.Portfolio.Reconciled {
		t.Error("expected unreconciled portfolio")
	}
	if res.Portfolio.TotalValue.String() != "360000" {
		t.Errorf("total = %s, want the stated 360000 kept as-is", res.Portfolio.TotalValue)
	}
	var mismatch bool
	for _, is := range res.Issues {
		if is.Kind == constants.IssueTotalMismatch && is.Severity == constants.SeverityError {
			mismatch = true
		}
	}
	if !mismatch {
		t.Errorf("issues = %v, want total-mismatch", res.Issues)
	}
}

func TestProcessSkipsFailedPage(t *testing.T) {
	pages := []document.Page{
		{Index: 0, Failed: true},
		tablePage(1),
	}
	proc := NewProcessor(testConfig(), &fakeExtractor{pages: pages}, nil, nil)
	doc := document.New([]byte("%PDF-fake"), []string{"eng"})

	res, err := proc.Process(context.Background(), doc, Options{})
	if err != nil {
		t.Fatal(err)
	}
	if res.State != constants.RunWithIssues {
		t.Fatalf("state = %q, want completed_with_issues", res.State)
	}
	if len(res.Portfolio.Securities) != 2 {
		t.Fatalf("got %d securities, want the good page processed", len(res.Portfolio.Securities))
	}
	var skipped bool
	for _, is := range res.Issues {
		if is.Kind == constants.IssueExtractionFailed && strings.Contains(is.Detail, "page 1") {
			skipped = true
		}
	}
	if !skipped {
		t.Errorf("issues = %v, want a page-skip finding", res.Issues)
	}
}

func TestProcessFailsOnEmptyDocument(t *testing.T) {
	extractErr := common.NewAppError("EXTRACT_EMPTY", "no usable pages", common.ErrExtraction)
	proc := NewProcessor(testConfig(), &fakeExtractor{err: extractErr}, nil, nil)
	doc := document.New([]byte("%PDF-fake"), []string{"eng"})

	res, err := proc.Process(context.Background(), doc, Options{})
	if err == nil {
		t.Fatal("expected an error for a fully unusable document")
	}
	if !errors.Is(err, common.ErrExtraction) {
		t.Errorf("err = %v, want ErrExtraction", err)
	}
	if res.State != constants.RunFailed {
		t.Errorf("state = %q, want failed", res.State)
	}
	if len(res.Issues) == 0 || res.Issues[0].Kind != constants.IssueExtractionFailed {
		t.Errorf("issues = %v, want extraction-failed", res.Issues)
	}
}

func TestProcessCancellationDiscardsPartials(t *testing.T) {
	proc := NewProcessor(testConfig(), &fakeExtractor{pages: []document.Page{tablePage(0)}}, nil, nil)
	doc := document.New([]byte("%PDF-fake"), []string{"eng"})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	res, err := proc.Process(ctx, doc, Options{})
	if err == nil {
		t.Fatal("expected context error")
	}
	if len(res.Portfolio.Securities) != 0 {
		t.Errorf("partial results leaked: %+v", res.Portfolio.Securities)
	}
}

// Two full-confidence table sources outrank any verdict in the re-merge, but
// a verdict that confirms the surviving value still closes the conflict.
func TestAdjudicatedConflictCloses(t *testing.T) {
	nd := func(s string) decimal.NullDecimal {
		return decimal.NullDecimal{Decimal: decimal.RequireFromString(s), Valid: true}
	}
	sets := []attribute.FieldSet{
		{ISIN: "CH1259344831", Value: nd("249800"), Page: 0, FromTable: true, Strategy: "stream", RowSupport: 3, Confidence: 1.0},
		{ISIN: "CH1259344831", Value: nd("248000"), Page: 1, FromTable: true, Strategy: "stream", RowSupport: 3, Confidence: 1.0},
	}
	verdict := attribute.FieldSet{
		ISIN:       "CH1259344831",
		Value:      nd("249800"),
		FromTable:  true,
		Strategy:   "arbitration",
		Confidence: arbitrationConfidence,
	}
	merger := merge.NewMerger(nil)

	secs, issues := merger.Merge(append(append([]attribute.FieldSet{}, sets...), verdict))
	issues = closeAdjudicated(issues, secs, []attribute.FieldSet{verdict})
	if got := secs[0].Value.Decimal.String(); got != "249800" {
		t.Fatalf("value = %s, want the first full-confidence source", got)
	}
	if len(issues) != 0 {
		t.Errorf("issues = %v, want the confirmed conflict closed", issues)
	}

	dissent := verdict
	dissent.Value = nd("111")
	secs, issues = merger.Merge(append(append([]attribute.FieldSet{}, sets...), dissent))
	issues = closeAdjudicated(issues, secs, []attribute.FieldSet{dissent})
	if len(issues) != 1 || issues[0].Kind != constants.IssueConflictingValue {
		t.Errorf("issues = %v, want the disputed conflict kept open", issues)
	}
}

// Re-running the same document yields the identical portfolio.
func TestProcessIdempotent(t *testing.T) {
	pages := []document.Page{tablePage(0), freeTextPage(1, "DE0005140008", "12'500.00", 0.9)}
	proc := NewProcessor(testConfig(), &fakeExtractor{pages: pages}, nil, nil)

	marshal := func() string {
		doc := document.New([]byte("%PDF-fake"), []string{"eng"})
		res, err := proc.Process(context.Background(), doc, Options{})
		if err != nil {
			t.Fatal(err)
		}
		b, err := json.Marshal(res.Portfolio)
		if err != nil {
			t.Fatal(err)
		}
		return string(b)
	}

	first := marshal()
	for i := 0; i < 3; i++ {
		if again := marshal(); again != first {
			t.Fatalf("run %d diverged:\n%s\nvs\n%s", i+2, first, again)
		}
	}
}
