package isin

import (
	"log/slog"

	"github.com/clearfolio/statement-parser/constants"
	"github.com/clearfolio/statement-parser/internal/document"
	"github.com/clearfolio/statement-parser/internal/portfolio"
)

// Scanner finds identifier matches in page text and candidate cells.
// Checksum failures are dropped from results but logged as issues; duplicate
// matches of the same identifier are kept, their dedup happens at record
// level where separate occurrences still corroborate each other.
type Scanner struct {
	logger *slog.Logger
}

func NewScanner(logger *slog.Logger) *Scanner {
	if logger == nil {
		logger = slog.Default()
	}
	return &Scanner{logger: logger}
}

// ScanPage returns validated matches for one page and its table candidates,
// plus checksum-fail issues for diagnostics.
func (s *Scanner) ScanPage(page document.Page, candidates []document.TableCandidate) ([]document.IdentifierMatch, []portfolio.Issue) {
	var matches []document.IdentifierMatch
	var issues []portfolio.Issue

	// Cells first: a cell-located match carries its row context. The match
	// confidence composes the extraction and detection stages, so a garbled
	// OCR page never outranks its own text quality through a tidy table.
	cellSpans := make(map[string]bool)
	for ci, cand := range candidates {
		for ri, row := range cand.Cells {
			for col, cell := range row {
				for _, raw := range pattern.FindAllString(cell, -1) {
					match, issue := s.validated(raw, page.Index, min(page.Confidence, cand.Confidence))
					if issue != nil {
						issues = append(issues, *issue)
						continue
					}
					match.Cell = &document.CellRef{Candidate: ci, Row: ri, Col: col}
					matches = append(matches, match)
					cellSpans[raw] = true
				}
			}
		}
	}

	// Free text: matches already seen in a cell on this page are table
	// occurrences surfacing again through the flat text; skip those.
	locs := pattern.FindAllStringIndex(page.Text, -1)
	for _, loc := range locs {
		raw := page.Text[loc[0]:loc[1]]
		if cellSpans[raw] {
			continue
		}
		match, issue := s.validated(raw, page.Index, page.Confidence)
		if issue != nil {
			issues = append(issues, *issue)
			continue
		}
		match.Span = [2]int{loc[0], loc[1]}
		matches = append(matches, match)
	}

	return matches, issues
}

func (s *Scanner) validated(raw string, pageIndex int, conf float64) (document.IdentifierMatch, *portfolio.Issue) {
	if err := Validate(raw); err != nil {
		s.logger.Debug("isin.checksum_failed", "raw", raw, "page", pageIndex, "error", err)
		return document.IdentifierMatch{}, &portfolio.Issue{
			Kind:     constants.IssueChecksumFail,
			Severity: constants.SeverityInfo,
			Detail:   raw + ": " + err.Error(),
		}
	}
	return document.IdentifierMatch{
		ISIN:       raw,
		Valid:      true,
		Page:       pageIndex,
		Confidence: conf,
	}, nil
}
