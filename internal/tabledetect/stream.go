package tabledetect

import (
	"sort"
	"strings"

	"github.com/clearfolio/statement-parser/internal/document"
	"github.com/clearfolio/statement-parser/internal/extract"
)

const (
	// colTolerance clusters token start coordinates into column positions.
	colTolerance = 8.0
	// minColSupport is the minimum fraction of rows a column position must
	// appear in.
	minColSupport = 0.3
)

// StreamStrategy reads tables from the alignment of token x-coordinates:
// tokens whose left edges line up across enough rows form a column. It works
// on borderless tables, the common case in bank statements.
func StreamStrategy(page document.Page) []document.TableCandidate {
	rows := extract.GroupRows(page.Tokens, rowTolerance)

	// Only multi-token rows can be table rows.
	var tableRows [][]document.Token
	for _, row := range rows {
		if len(row) >= 2 {
			tableRows = append(tableRows, row)
		}
	}
	if len(tableRows) < minRowsForTable {
		return nil
	}

	columns := inferColumns(tableRows)
	if len(columns) < 2 {
		return nil
	}

	cells := make([][]string, 0, len(tableRows))
	boxes := make([][]document.Rect, 0, len(tableRows))
	consistent := 0
	for _, row := range tableRows {
		rowCells, rowBoxes, clean := projectRow(row, columns)
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
		Strategy:   "stream",
		Confidence: blendConfidence(consistency, numericRatio(cells)),
	}}
}

// inferColumns clusters token left edges across rows and keeps clusters with
// enough row support.
func inferColumns(rows [][]document.Token) []float64 {
	type cluster struct {
		center  float64
		support int
	}

	var xs []float64
	for _, row := range rows {
		for _, tok := range row {
			xs = append(xs, tok.Box.X0)
		}
	}
	sort.Float64s(xs)

	var clusters []cluster
	for _, x := range xs {
		if n := len(clusters); n > 0 && x-clusters[n-1].center <= colTolerance {
			c := &clusters[n-1]
			c.center = (c.center*float64(c.support) + x) / float64(c.support+1)
			c.support++
			continue
		}
		clusters = append(clusters, cluster{center: x, support: 1})
	}

	minSupport := int(minColSupport * float64(len(rows)))
	if minSupport < 2 {
		minSupport = 2
	}
	var columns []float64
	for _, c := range clusters {
		if c.support >= minSupport {
			columns = append(columns, c.center)
		}
	}
	return columns
}

// projectRow assigns each token of a row to the nearest column, joining
// multiple tokens in one cell with spaces. clean is false when a token lands
// far from every column.
func projectRow(row []document.Token, columns []float64) ([]string, []document.Rect, bool) {
	cells := make([]string, len(columns))
	boxes := make([]document.Rect, len(columns))
	clean := true

	for _, tok := range row {
		best, bestDist := 0, -1.0
		for ci, cx := range columns {
			dist := tok.Box.X0 - cx
			if dist < 0 {
				dist = -dist
			}
			if bestDist < 0 || dist < bestDist {
				best, bestDist = ci, dist
			}
		}
		if bestDist > 3*colTolerance {
			clean = false
		}
		if cells[best] == "" {
			cells[best] = tok.Text
			boxes[best] = tok.Box
		} else {
			cells[best] += " " + tok.Text
			boxes[best] = boxes[best].Union(tok.Box)
		}
	}
	return cells, boxes, clean
}

// splitHeader pulls off a leading header row when it is mostly alphabetic
// while the rows below are not.
func splitHeader(cells [][]string, boxes [][]document.Rect) ([]string, [][]string, [][]document.Rect) {
	if len(cells) < minRowsForTable+1 {
		return nil, cells, boxes
	}
	if !mostlyAlphabetic(cells[0]) {
		return nil, cells, boxes
	}
	if numericRatio(cells[1:]) < 0.2 {
		return nil, cells, boxes
	}
	return cells[0], cells[1:], boxes[1:]
}

func mostlyAlphabetic(row []string) bool {
	alpha, total := 0, 0
	for _, cell := range row {
		if cell == "" {
			continue
		}
		total++
		if !reNumericCell.MatchString(strings.TrimSpace(cell)) {
			alpha++
		}
	}
	return total > 0 && float64(alpha)/float64(total) >= 0.6
}
