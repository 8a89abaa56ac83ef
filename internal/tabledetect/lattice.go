package tabledetect

import (
	"sort"

	"github.com/clearfolio/statement-parser/internal/document"
	"github.com/clearfolio/statement-parser/internal/extract"
)

const (
	// minGapWidth is the narrowest vertical whitespace band accepted as a
	// column separator.
	minGapWidth = 6.0
	// minGapSupport is the fraction of rows a band must cut cleanly through.
	minGapSupport = 0.85
)

// LatticeStrategy reasons over page geometry: vertical whitespace bands that
// run through nearly every row act like ruling lines and split the rows into
// columns. It is independent of the stream strategy and tends to win on
// tightly packed grids where left edges drift.
func LatticeStrategy(page document.Page) []document.TableCandidate {
	rows := extract.GroupRows(page.Tokens, rowTolerance)

	var tableRows [][]document.Token
	for _, row := range rows {
		if len(row) >= 2 {
			tableRows = append(tableRows, row)
		}
	}
	if len(tableRows) < minRowsForTable {
		return nil
	}

	separators := whitespaceBands(tableRows)
	if len(separators) == 0 {
		return nil
	}

	cells := make([][]string, 0, len(tableRows))
	boxes := make([][]document.Rect, 0, len(tableRows))
	consistent := 0
	for _, row := range tableRows {
		rowCells, rowBoxes, clean := splitAt(row, separators)
		cells = append(cells, rowCells)
		boxes = append(boxes, rowBoxes)
		if clean {
			consistent++
		}
	}

	consistency := float64(consistent) / float64(len(cells))
	header, cells, boxes := splitHeader(cells, boxes)
	if len(cells) < minRowsForTable {
		return nil
	}

	return []document.TableCandidate{{
		Page:       page.Index,
		Region:     regionOf(boxes),
		Header:     header,
		Cells:      cells,
		CellBoxes:  boxes,
		Strategy:   "lattice",
		Confidence: blendConfidence(consistency, numericRatio(cells)),
	}}
}

// whitespaceBands finds x positions where a vertical gap of at least
// minGapWidth is respected by minGapSupport of the rows.
func whitespaceBands(rows [][]document.Token) []float64 {
	// Candidate gaps come from the horizontal gaps inside each row.
	type gap struct{ from, to float64 }
	var gaps []gap
	for _, row := range rows {
		for i := 1; i < len(row); i++ {
			from := row[i-1].Box.X1
			to := row[i].Box.X0
			if to-from >= minGapWidth {
				gaps = append(gaps, gap{from, to})
			}
		}
	}
	if len(gaps) == 0 {
		return nil
	}

	sort.Slice(gaps, func(i, j int) bool { return gaps[i].from < gaps[j].from })

	// Merge overlapping gap intervals, then keep midpoints supported by
	// enough rows.
	var merged []gap
	for _, g := range gaps {
		if n := len(merged); n > 0 && g.from <= merged[n-1].to {
			if g.to > merged[n-1].to {
				merged[n-1].to = g.to
			}
			continue
		}
		merged = append(merged, g)
	}

	minRows := int(minGapSupport * float64(len(rows)))
	if minRows < minRowsForTable {
		minRows = minRowsForTable
	}

	var separators []float64
	for _, g := range merged {
		mid := (g.from + g.to) / 2
		support := 0
		for _, row := range rows {
			if rowRespects(row, mid) {
				support++
			}
		}
		if support >= minRows {
			separators = append(separators, mid)
		}
	}
	return separators
}

// rowRespects reports whether no token of the row crosses the x position.
func rowRespects(row []document.Token, x float64) bool {
	for _, tok := range row {
		if tok.Box.X0 < x && tok.Box.X1 > x {
			return false
		}
	}
	return true
}

// splitAt cuts a row into len(separators)+1 cells at the separator
// positions. clean is false when a token straddles a separator.
func splitAt(row []document.Token, separators []float64) ([]string, []document.Rect, bool) {
	cells := make([]string, len(separators)+1)
	boxes := make([]document.Rect, len(separators)+1)
	clean := true

	for _, tok := range row {
		idx := sort.SearchFloat64s(separators, tok.Box.X0)
		if idx < len(separators) && tok.Box.X1 > separators[idx] {
			clean = false
		}
		if cells[idx] == "" {
			cells[idx] = tok.Text
			boxes[idx] = tok.Box
		} else {
			cells[idx] += " " + tok.Text
			boxes[idx] = boxes[idx].Union(tok.Box)
		}
	}
	return cells, boxes, clean
}
