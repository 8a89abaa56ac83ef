package document

// TableCandidate is one strategy's reading of a tabular region. Multiple
// candidates may cover the same region; none is authoritative until the
// merger reconciles them at identifier level.
type TableCandidate struct {
	Page       int
	Region     Rect
	Header     []string   // empty when no header row was identified
	Cells      [][]string // row-major grid, header row excluded
	CellBoxes  [][]Rect   // same shape as Cells; zero rects for text-mode grids
	Strategy   string     // detection strategy tag
	Confidence float64    // [0,1]
	Overlaps   []int      // indexes of same-page candidates overlapping >80%
}

// Rows returns the number of data rows in the grid.
func (c *TableCandidate) Rows() int { return len(c.Cells) }

// Cols returns the grid width, zero for an empty candidate.
func (c *TableCandidate) Cols() int {
	if len(c.Cells) == 0 {
		return 0
	}
	return len(c.Cells[0])
}

// CellRef points at one cell inside a candidate.
type CellRef struct {
	Candidate int // index into the page's candidate slice
	Row       int
	Col       int
}

// IdentifierMatch is one occurrence of a security identifier, either inside
// a table cell or in free page text. Duplicate identifiers are retained as
// separate matches; deduplication happens at record level.
type IdentifierMatch struct {
	ISIN       string
	Valid      bool // checksum passed
	Page       int
	Cell       *CellRef // nil for free-text matches
	Span       [2]int   // byte offsets into Page.Text for free-text matches
	Confidence float64
}
