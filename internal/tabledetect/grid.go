package tabledetect

import (
	"regexp"
	"strings"

	"github.com/clearfolio/statement-parser/internal/document"
)

var reCellSplit = regexp.MustCompile(`\s{2,}`)

// GridStrategy is the text-mode fallback: it splits page lines on runs of
// whitespace and accepts stretches of lines sharing the modal column count.
// It only contributes on pages that carry text but no positioned tokens, so
// it never competes with the geometric strategies on the same evidence.
func GridStrategy(page document.Page) []document.TableCandidate {
	if len(page.Tokens) > 0 || page.Text == "" {
		return nil
	}

	lines := strings.Split(page.Text, "\n")
	var rows [][]string
	for _, line := range lines {
		if strings.TrimSpace(line) == "" {
			continue
		}
		cells := reCellSplit.Split(strings.TrimSpace(line), -1)
		if len(cells) >= 2 {
			rows = append(rows, cells)
		}
	}
	if len(rows) < minRowsForTable {
		return nil
	}

	// Modal column count; consistency against it is the confidence basis.
	counts := make(map[int]int)
	for _, row := range rows {
		counts[len(row)]++
	}
	modal, modalFreq := 0, 0
	for count, freq := range counts {
		if freq > modalFreq {
			modal, modalFreq = count, freq
		}
	}

	var cells [][]string
	for _, row := range rows {
		if len(row) == modal {
			cells = append(cells, row)
		}
	}
	if len(cells) < minRowsForTable {
		return nil
	}

	consistency := float64(modalFreq) / float64(len(rows))
	boxes := make([][]document.Rect, len(cells))
	for i := range boxes {
		boxes[i] = make([]document.Rect, modal)
	}

	header, cells, boxes := splitHeader(cells, boxes)
	if len(cells) < minRowsForTable {
		return nil
	}

	return []document.TableCandidate{{
		Page:       page.Index,
		Header:     header,
		Cells:      cells,
		CellBoxes:  boxes,
		Strategy:   "grid",
		Confidence: blendConfidence(consistency, numericRatio(cells)),
	}}
}
