package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"github.com/clearfolio/statement-parser/constants"
	"github.com/clearfolio/statement-parser/internal/arbitrate"
	"github.com/clearfolio/statement-parser/internal/attribute"
	"github.com/clearfolio/statement-parser/internal/classify"
	"github.com/clearfolio/statement-parser/internal/common"
	"github.com/clearfolio/statement-parser/internal/document"
	"github.com/clearfolio/statement-parser/internal/extract"
	"github.com/clearfolio/statement-parser/internal/isin"
	"github.com/clearfolio/statement-parser/internal/merge"
	"github.com/clearfolio/statement-parser/internal/output"
	"github.com/clearfolio/statement-parser/internal/portfolio"
	"github.com/clearfolio/statement-parser/internal/tabledetect"
)

// Processor wires the stages together. One Processor serves many runs.
type Processor struct {
	logger     *slog.Logger
	extractor  extract.TextExtractor
	detector   *tabledetect.Detector
	scanner    *isin.Scanner
	attributor *attribute.Attributor
	merger     *merge.Merger
	arbiter    arbitrate.Arbitrator

	pipelineCfg common.PipelineConfig
	arbCfg      common.ArbitrationConfig
}

func NewProcessor(cfg *common.Config, extractor extract.TextExtractor, arbiter arbitrate.Arbitrator, logger *slog.Logger) *Processor {
	if logger == nil {
		logger = slog.Default()
	}
	if arbiter == nil {
		arbiter = arbitrate.Noop{}
	}
	return &Processor{
		logger:      logger,
		extractor:   extractor,
		detector:    tabledetect.NewDetector(logger),
		scanner:     isin.NewScanner(logger),
		attributor:  attribute.NewAttributor(cfg.Pipeline.FreeTextWindow, logger),
		merger:      merge.NewMerger(logger),
		arbiter:     arbiter,
		pipelineCfg: cfg.Pipeline,
		arbCfg:      cfg.Arbitration,
	}
}

// pageWork carries the per-page intermediate products between stages.
type pageWork struct {
	candidates []document.TableCandidate
	matches    []document.IdentifierMatch
	issues     []portfolio.Issue
}

// Process runs the full pipeline for one document. Cancellation aborts the
// run and discards all partial results; nothing half-finished is returned.
func (p *Processor) Process(ctx context.Context, doc *document.Document, opts Options) (output.Result, error) {
	opts = opts.withDefaults(p.pipelineCfg, p.arbCfg)
	if len(doc.Languages) == 0 {
		doc.Languages = opts.Languages
	}

	r := newRun(doc.ID, p.logger)
	ctx = common.WithRunID(common.WithDocumentID(ctx, doc.ID.String()), r.id.String())

	// extracting
	r.to(constants.RunExtracting)
	if err := p.extractor.ExtractDocument(ctx, doc); err != nil {
		if ctx.Err() != nil {
			return output.Result{}, ctx.Err()
		}
		// zero usable pages is the only path into failed
		r.to(constants.RunFailed)
		r.addIssues(portfolio.Issue{
			Kind:     constants.IssueExtractionFailed,
			Severity: constants.SeverityError,
			Detail:   err.Error(),
		})
		res := p.finish(r, doc, portfolio.Portfolio{}, constants.RunFailed)
		return res, err
	}
	for _, page := range doc.Pages {
		if page.Failed {
			r.addIssues(portfolio.Issue{
				Kind:     constants.IssueExtractionFailed,
				Severity: constants.SeverityWarning,
				Detail:   fmt.Sprintf("page %d yielded no usable text; skipped", page.Index+1),
			})
		}
	}

	// detecting_tables, extracting_identifiers, attributing: page-parallel
	work := make([]pageWork, len(doc.Pages))

	r.to(constants.RunDetecting)
	if err := p.forUsablePages(ctx, doc, func(ctx context.Context, i int) error {
		cands, err := p.detector.Detect(ctx, doc.Pages[i])
		if err != nil {
			return err
		}
		work[i].candidates = cands
		return nil
	}); err != nil {
		return output.Result{}, err
	}

	r.to(constants.RunIdentifying)
	if err := p.forUsablePages(ctx, doc, func(ctx context.Context, i int) error {
		matches, issues := p.scanner.ScanPage(doc.Pages[i], work[i].candidates)
		work[i].matches = matches
		work[i].issues = issues
		return nil
	}); err != nil {
		return output.Result{}, err
	}

	r.to(constants.RunAttributing)
	var fieldSets []attribute.FieldSet
	for i := range work {
		r.addIssues(work[i].issues...)
		for _, match := range work[i].matches {
			fieldSets = append(fieldSets, p.attributor.Attribute(match, doc.Pages[i], work[i].candidates))
		}
	}

	// aggregating: first merge pass and reconciliation against the stated
	// total. Conflicts surface here and feed arbitration.
	r.to(constants.RunAggregating)
	stated := classify.DetectStatedTotal(doc.Pages)
	aggregator := classify.NewAggregator(opts.ValueTolerance, p.logger)

	securities, mergeIssues := p.merger.Merge(fieldSets)
	disputes := findDisputes(fieldSets, securities, opts.ConfidenceThreshold)

	// arbitrating: conditional, never fatal
	if opts.ArbitrationEnabled && len(disputes) > 0 {
		if ctx.Err() != nil {
			return output.Result{}, ctx.Err()
		}
		r.to(constants.RunArbitrating)
		verdicts, arbIssues := p.arbitrate(ctx, doc, disputes, opts.ArbitrationTimeout)
		r.addIssues(arbIssues...)
		if len(verdicts) > 0 {
			fieldSets = append(fieldSets, verdicts...)
			securities, mergeIssues = p.merger.Merge(fieldSets)
			mergeIssues = closeAdjudicated(mergeIssues, securities, verdicts)
		}
	}
	r.addIssues(mergeIssues...)

	// merged: final portfolio assembly
	r.to(constants.RunMerged)
	pf := portfolio.Portfolio{
		Securities: securities,
		Currency:   modalCurrency(securities),
	}
	r.addIssues(aggregator.Aggregate(&pf, stated)...)

	if ctx.Err() != nil {
		return output.Result{}, ctx.Err()
	}
	final := r.terminalState()
	r.to(final)
	return p.finish(r, doc, pf, final), nil
}

// forUsablePages runs fn for every usable page with a CPU-bounded pool.
func (p *Processor) forUsablePages(ctx context.Context, doc *document.Document, fn func(ctx context.Context, i int) error) error {
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(runtime.GOMAXPROCS(0))
	for i := range doc.Pages {
		if !doc.Pages[i].Usable() {
			continue
		}
		i := i
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			return fn(ctx, i)
		})
	}
	return g.Wait()
}

func (p *Processor) finish(r *run, doc *document.Document, pf portfolio.Portfolio, state constants.RunState) output.Result {
	var docDate *time.Time
	if d := extract.DetectDocumentDate(doc.Pages); !d.IsZero() {
		docDate = &d
	}
	elapsed := time.Since(r.started)
	p.logger.Info("pipeline.done",
		"run_id", r.id,
		"document_id", doc.ID,
		"state", state,
		"securities", len(pf.Securities),
		"issues", len(r.issues),
		"elapsed_ms", elapsed.Milliseconds(),
	)
	return output.Build(pf, r.issues, doc.ID.String(), docDate, state, elapsed)
}

// dispute is a field of one security with either contradictory candidate
// values or a resolved value below the confidence threshold.
type dispute struct {
	isin       string
	field      string
	candidates []arbitrate.Candidate
}

// findDisputes inspects the raw field sets behind each merged security.
func findDisputes(sets []attribute.FieldSet, securities []portfolio.Security, threshold float64) []dispute {
	confidence := make(map[string]float64, len(securities))
	for _, sec := range securities {
		confidence[sec.ISIN] = sec.Confidence
	}

	groups := make(map[string][]attribute.FieldSet)
	var order []string
	for _, fs := range sets {
		if _, ok := groups[fs.ISIN]; !ok {
			order = append(order, fs.ISIN)
		}
		groups[fs.ISIN] = append(groups[fs.ISIN], fs)
	}

	var disputes []dispute
	for _, id := range order {
		group := groups[id]
		lowConf := confidence[id] < threshold
		for _, field := range []string{"quantity", "price", "value", "currency"} {
			cands := candidatesFor(group, field)
			if len(cands) == 0 {
				continue
			}
			if distinctValues(cands) > 1 || (lowConf && len(cands) > 1) {
				disputes = append(disputes, dispute{isin: id, field: field, candidates: cands})
			}
		}
	}
	return disputes
}

func candidatesFor(group []attribute.FieldSet, field string) []arbitrate.Candidate {
	var cands []arbitrate.Candidate
	for _, fs := range group {
		var value string
		switch field {
		case "quantity":
			if fs.Quantity.Valid {
				value = fs.Quantity.Decimal.String()
			}
		case "price":
			if fs.Price.Valid {
				value = fs.Price.Decimal.String()
			}
		case "value":
			if fs.Value.Valid {
				value = fs.Value.Decimal.String()
			}
		case "currency":
			value = fs.Currency
		}
		if value == "" {
			continue
		}
		cands = append(cands, arbitrate.Candidate{
			Field:      field,
			Value:      value,
			Source:     sourceLabel(fs),
			Confidence: fs.Confidence,
		})
	}
	return cands
}

func sourceLabel(fs attribute.FieldSet) string {
	if fs.FromTable {
		return fmt.Sprintf("table/%s/p%d", fs.Strategy, fs.Page+1)
	}
	return fmt.Sprintf("text/p%d", fs.Page+1)
}

func distinctValues(cands []arbitrate.Candidate) int {
	seen := make(map[string]bool)
	for _, c := range cands {
		seen[c.Value] = true
	}
	return len(seen)
}

// arbitrate fans disputes out to the external service with a bounded pool
// and a per-call timeout. Every failure degrades to an issue.
func (p *Processor) arbitrate(ctx context.Context, doc *document.Document, disputes []dispute, timeout time.Duration) ([]attribute.FieldSet, []portfolio.Issue) {
	limit := p.arbCfg.MaxConcurrency
	if limit <= 0 {
		limit = 4
	}

	type outcome struct {
		verdict attribute.FieldSet
		ok      bool
		issue   *portfolio.Issue
	}
	results := make([]outcome, len(disputes))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(limit)
	var mu sync.Mutex
	for i, d := range disputes {
		i, d := i, d
		g.Go(func() error {
			ev := arbitrate.Evidence{
				Identifier:  d.isin,
				Candidates:  d.candidates,
				ContextText: contextAround(doc, d.isin),
			}
			callCtx, cancel := context.WithTimeout(gctx, timeout)
			verdict, err := p.arbiter.Arbitrate(callCtx, ev)
			cancel()

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				if errors.Is(err, context.Canceled) && gctx.Err() != nil {
					return gctx.Err()
				}
				results[i] = outcome{issue: &portfolio.Issue{
					Kind:     constants.IssueArbitration,
					ISIN:     d.isin,
					Severity: constants.SeverityInfo,
					Detail:   fmt.Sprintf("no verdict for %s: %v", d.field, err),
				}}
				return nil
			}
			fs, ok := p.verdictFieldSet(d, verdict)
			results[i] = outcome{verdict: fs, ok: ok}
			if !ok {
				results[i].issue = &portfolio.Issue{
					Kind:     constants.IssueArbitration,
					ISIN:     d.isin,
					Severity: constants.SeverityInfo,
					Detail:   fmt.Sprintf("verdict for %s rejected: %q", d.field, verdict.Value),
				}
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		// run canceled; partial verdicts are discarded upstream
		return nil, nil
	}

	var verdicts []attribute.FieldSet
	var issues []portfolio.Issue
	for _, res := range results {
		if res.ok {
			verdicts = append(verdicts, res.verdict)
		}
		if res.issue != nil {
			issues = append(issues, *res.issue)
		}
	}
	return verdicts, issues
}

// verdictFieldSet re-validates the verdict before it may outrank extracted
// values. A verdict that fails validation is discarded, never trusted.
func (p *Processor) verdictFieldSet(d dispute, verdict arbitrate.Verdict) (attribute.FieldSet, bool) {
	if verdict.Field != d.field {
		return attribute.FieldSet{}, false
	}
	fs := attribute.FieldSet{
		ISIN:       d.isin,
		FromTable:  true, // outranks free text on tie
		Strategy:   "arbitration",
		Confidence: arbitrationConfidence,
		Rationale:  verdict.Rationale,
	}
	switch d.field {
	case "quantity", "price", "value":
		amount, ok := attribute.ParseAmount(verdict.Value)
		if !ok {
			return attribute.FieldSet{}, false
		}
		nd := decimal.NullDecimal{Decimal: amount, Valid: true}
		switch d.field {
		case "quantity":
			fs.Quantity = nd
		case "price":
			fs.Price = nd
		case "value":
			fs.Value = nd
		}
	case "currency":
		if !attribute.IsCurrencyCode(verdict.Value) {
			return attribute.FieldSet{}, false
		}
		fs.Currency = verdict.Value
	default:
		return attribute.FieldSet{}, false
	}
	return fs, true
}

// arbitrationConfidence outranks heuristic attributions but stays below a
// clean native text-layer table read.
const arbitrationConfidence = 0.95

// closeAdjudicated drops conflicting-value issues for fields an accepted
// verdict settled: when the verdict agrees with the value that survived the
// re-merge, the dispute is adjudicated rather than open. A verdict that
// disagrees with the surviving value leaves the issue standing.
func closeAdjudicated(issues []portfolio.Issue, securities []portfolio.Security, verdicts []attribute.FieldSet) []portfolio.Issue {
	if len(verdicts) == 0 {
		return issues
	}
	byISIN := make(map[string]portfolio.Security, len(securities))
	for _, sec := range securities {
		byISIN[sec.ISIN] = sec
	}
	settled := make(map[string]bool)
	for _, v := range verdicts {
		sec, ok := byISIN[v.ISIN]
		if !ok {
			continue
		}
		agree := func(field string, got decimal.NullDecimal, want decimal.NullDecimal) {
			if want.Valid && got.Valid && got.Decimal.Equal(want.Decimal) {
				settled[v.ISIN+"/"+field] = true
			}
		}
		agree("quantity", sec.Quantity, v.Quantity)
		agree("price", sec.Price, v.Price)
		agree("value", sec.Value, v.Value)
		if v.Currency != "" && sec.Currency == v.Currency {
			settled[v.ISIN+"/currency"] = true
		}
	}

	kept := issues[:0]
	for _, is := range issues {
		if is.Kind == constants.IssueConflictingValue && settled[is.ISIN+"/"+is.Field] {
			continue
		}
		kept = append(kept, is)
	}
	return kept
}

// contextAround returns the page text surrounding the first occurrence of
// the identifier, for the arbiter's benefit.
func contextAround(doc *document.Document, id string) string {
	const radius = 300
	for _, page := range doc.Pages {
		idx := strings.Index(page.Text, id)
		if idx < 0 {
			continue
		}
		start := idx - radius
		if start < 0 {
			start = 0
		}
		end := idx + len(id) + radius
		if end > len(page.Text) {
			end = len(page.Text)
		}
		return page.Text[start:end]
	}
	return ""
}

// modalCurrency picks the most frequent security currency as the portfolio
// reporting currency. Ties break alphabetically for determinism.
func modalCurrency(securities []portfolio.Security) string {
	counts := make(map[string]int)
	for _, sec := range securities {
		if sec.Currency != "" {
			counts[sec.Currency]++
		}
	}
	var best string
	for ccy, n := range counts {
		if best == "" || n > counts[best] || (n == counts[best] && ccy < best) {
			best = ccy
		}
	}
	return best
}
