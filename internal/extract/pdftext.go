package extract

import (
	"bytes"
	"fmt"
	"sort"
	"strings"

	"github.com/ledongthuc/pdf"

	"github.com/clearfolio/statement-parser/internal/document"
)

// yTolerance groups text runs into the same visual line.
const yTolerance = 2.5

// openReader parses the PDF structure once per document.
func openReader(raw []byte) (*pdf.Reader, error) {
	r, err := pdf.NewReader(bytes.NewReader(raw), int64(len(raw)))
	if err != nil {
		return nil, fmt.Errorf("open pdf: %w", err)
	}
	return r, nil
}

// textLayerPage reads the embedded text layer of one page (1-based) and
// assembles positioned word tokens. The pdf content parser panics on some
// malformed pages; those are reported as errors, not crashes.
func textLayerPage(r *pdf.Reader, pageNum int) (tokens []document.Token, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			tokens = nil
			err = fmt.Errorf("page %d content: %v", pageNum, rec)
		}
	}()

	page := r.Page(pageNum)
	if page.V.IsNull() {
		return nil, fmt.Errorf("page %d: null page object", pageNum)
	}

	content := page.Content()
	if len(content.Text) == 0 {
		return nil, nil
	}
	return assembleTokens(content.Text), nil
}

// assembleTokens merges adjacent text runs on the same baseline into word
// tokens. Runs are joined while the horizontal gap stays below a fraction of
// the font size.
func assembleTokens(runs []pdf.Text) []document.Token {
	sorted := make([]pdf.Text, len(runs))
	copy(sorted, runs)
	sort.Slice(sorted, func(i, j int) bool {
		if diff := sorted[i].Y - sorted[j].Y; diff > yTolerance || diff < -yTolerance {
			return sorted[i].Y > sorted[j].Y
		}
		return sorted[i].X < sorted[j].X
	})

	var tokens []document.Token
	var word strings.Builder
	var box document.Rect
	var lastEnd, lastY float64

	flush := func() {
		if word.Len() == 0 {
			return
		}
		text := strings.TrimSpace(word.String())
		if text != "" {
			tokens = append(tokens, document.Token{Text: text, Box: box, Conf: 1.0})
		}
		word.Reset()
		box = document.Rect{}
	}

	for _, t := range sorted {
		if t.S == "" {
			continue
		}
		size := t.FontSize
		if size <= 0 {
			size = 10
		}
		gap := t.X - lastEnd
		sameLine := word.Len() > 0 && abs(t.Y-lastY) <= yTolerance
		joined := sameLine && gap >= -0.5 && gap <= 0.33*size
		if !joined {
			flush()
			box = document.Rect{X0: t.X, Y0: t.Y, X1: t.X + t.W, Y1: t.Y + size}
		} else {
			box = box.Union(document.Rect{X0: t.X, Y0: t.Y, X1: t.X + t.W, Y1: t.Y + size})
		}
		word.WriteString(t.S)
		lastEnd = t.X + t.W
		lastY = t.Y
	}
	flush()
	return tokens
}

// PageText renders tokens back into line-oriented text, keeping token order
// consistent with what the identifier scanner and the proximity-window
// attributor see.
func PageText(tokens []document.Token) string {
	lines := GroupRows(tokens, yTolerance)
	var b strings.Builder
	for i, line := range lines {
		if i > 0 {
			b.WriteByte('\n')
		}
		for j, tok := range line {
			if j > 0 {
				b.WriteByte(' ')
			}
			b.WriteString(tok.Text)
		}
	}
	return b.String()
}

// GroupRows clusters tokens into visual rows by Y proximity and sorts each
// row left to right. Rows come back in reading order (top of page first).
func GroupRows(tokens []document.Token, tolerance float64) [][]document.Token {
	if len(tokens) == 0 {
		return nil
	}

	sorted := make([]document.Token, len(tokens))
	copy(sorted, tokens)
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i].Box.Y0 > sorted[j].Box.Y0
	})

	var rows [][]document.Token
	currentRow := []document.Token{sorted[0]}
	currentY := sorted[0].Box.Y0

	for i := 1; i < len(sorted); i++ {
		y := sorted[i].Box.Y0
		if abs(y-currentY) <= tolerance {
			currentRow = append(currentRow, sorted[i])
		} else {
			rows = append(rows, sortRow(currentRow))
			currentRow = []document.Token{sorted[i]}
			currentY = y
		}
	}
	rows = append(rows, sortRow(currentRow))
	return rows
}

func sortRow(row []document.Token) []document.Token {
	sort.Slice(row, func(i, j int) bool { return row[i].Box.X0 < row[j].Box.X0 })
	return row
}

func abs(x float64) float64 {
	if x < 0 {
		return -x
	}
	return x
}
