// Package tabledetect finds tabular regions on a page. Several independent
// strategies run over the same tokens and emit competing candidates; no
// single strategy is authoritative. Downstream stages reason over the union.
package tabledetect

import (
	"context"
	"log/slog"
	"regexp"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/clearfolio/statement-parser/internal/document"
)

const (
	// rowTolerance groups tokens into visual rows.
	rowTolerance = 5.0
	// minRowsForTable rejects degenerate grids.
	minRowsForTable = 2
	// overlapRatio above which two candidates are tagged as covering the
	// same region. Both are kept; the merger deduplicates at identifier
	// level.
	overlapRatio = 0.8
)

// Strategy is a pure function reading one page into zero or more candidates.
type Strategy func(page document.Page) []document.TableCandidate

// Detector runs the configured strategies concurrently per page.
type Detector struct {
	strategies []Strategy
	logger     *slog.Logger
}

func NewDetector(logger *slog.Logger) *Detector {
	if logger == nil {
		logger = slog.Default()
	}
	return &Detector{
		strategies: []Strategy{StreamStrategy, LatticeStrategy, GridStrategy},
		logger:     logger,
	}
}

// Detect returns the union of all strategies' candidates for the page, with
// overlapping candidates cross-tagged. The per-page barrier is here: results
// are combined only after every strategy finished.
func (d *Detector) Detect(ctx context.Context, page document.Page) ([]document.TableCandidate, error) {
	if !page.Usable() {
		return nil, nil
	}

	var mu sync.Mutex
	var all []document.TableCandidate

	g, _ := errgroup.WithContext(ctx)
	for _, strategy := range d.strategies {
		strategy := strategy
		g.Go(func() error {
			found := strategy(page)
			mu.Lock()
			all = append(all, found...)
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	tagOverlaps(all)

	d.logger.Debug("tabledetect.page.done",
		"page", page.Index,
		"candidates", len(all),
	)
	return all, nil
}

// tagOverlaps records, per candidate, the indexes of same-page candidates
// whose regions overlap beyond overlapRatio of the smaller region.
func tagOverlaps(candidates []document.TableCandidate) {
	for i := range candidates {
		for j := i + 1; j < len(candidates); j++ {
			a, b := &candidates[i], &candidates[j]
			inter := a.Region.Intersect(b.Region)
			if inter == 0 {
				continue
			}
			smaller := a.Region.Area()
			if other := b.Region.Area(); other < smaller {
				smaller = other
			}
			if smaller > 0 && inter/smaller > overlapRatio {
				a.Overlaps = append(a.Overlaps, j)
				b.Overlaps = append(b.Overlaps, i)
			}
		}
	}
}

var reNumericCell = regexp.MustCompile(`^-?[\d.,']+%?$`)

// numericRatio is the fraction of non-empty cells that look like numbers.
// Statement tables are number-heavy; the ratio feeds strategy confidence.
func numericRatio(cells [][]string) float64 {
	var numeric, total float64
	for _, row := range cells {
		for _, cell := range row {
			if cell == "" {
				continue
			}
			total++
			if reNumericCell.MatchString(cell) {
				numeric++
			}
		}
	}
	if total == 0 {
		return 0
	}
	return numeric / total
}

// blendConfidence combines structural consistency with the numeric-cell
// ratio, weighting structure higher.
func blendConfidence(consistency, numeric float64) float64 {
	conf := 0.7*consistency + 0.3*numeric
	if conf > 1 {
		conf = 1
	}
	return conf
}

// regionOf is the union box of all cell boxes.
func regionOf(boxes [][]document.Rect) document.Rect {
	var region document.Rect
	first := true
	for _, row := range boxes {
		for _, box := range row {
			if box.Area() == 0 {
				continue
			}
			if first {
				region = box
				first = false
				continue
			}
			region = region.Union(box)
		}
	}
	return region
}
