// Package document holds the intermediate objects a single statement run
// produces: pages with positioned tokens, competing table candidates, and
// identifier matches. Document and Page are read-only after extraction;
// candidates and matches are discarded once merged.
package document

import (
	"crypto/sha256"

	"github.com/google/uuid"
)

// Document is an ingested statement. Immutable once built; owned by the run
// that created it.
type Document struct {
	ID        uuid.UUID
	Bytes     []byte
	Hash      []byte // sha-256 of Bytes
	PageCount int
	Languages []string
	Pages     []Page
}

// New wraps raw PDF bytes into a Document with a fresh ID and content hash.
// Pages are filled in by the extractor.
func New(raw []byte, languages []string) *Document {
	h := sha256.Sum256(raw)
	return &Document{
		ID:        uuid.New(),
		Bytes:     raw,
		Hash:      h[:],
		Languages: languages,
	}
}

// Page is one extracted page: raw text plus positioned tokens.
type Page struct {
	Index      int
	Text       string
	Tokens     []Token
	Method     string  // "pdf-text" | "pdf-ocr"
	Confidence float64 // extraction-stage confidence for this page
	Failed     bool    // extraction failed; page contributes nothing
}

// Usable reports whether the page carries any text for downstream stages.
func (p Page) Usable() bool {
	return !p.Failed && (len(p.Tokens) > 0 || p.Text != "")
}

// Token is a positioned piece of page text.
type Token struct {
	Text string
	Box  Rect
	Conf float64 // recognition confidence, 1.0 for embedded text layers
}

// Rect is an axis-aligned bounding box in page coordinates.
type Rect struct {
	X0, Y0, X1, Y1 float64
}

func (r Rect) Width() float64  { return r.X1 - r.X0 }
func (r Rect) Height() float64 { return r.Y1 - r.Y0 }

// Union returns the smallest rect covering both r and o.
func (r Rect) Union(o Rect) Rect {
	if r == (Rect{}) {
		return o
	}
	if o.X0 < r.X0 {
		r.X0 = o.X0
	}
	if o.Y0 < r.Y0 {
		r.Y0 = o.Y0
	}
	if o.X1 > r.X1 {
		r.X1 = o.X1
	}
	if o.Y1 > r.Y1 {
		r.Y1 = o.Y1
	}
	return r
}

// Intersect returns the overlapping area of two rects, zero when disjoint.
func (r Rect) Intersect(o Rect) float64 {
	w := min(r.X1, o.X1) - max(r.X0, o.X0)
	h := min(r.Y1, o.Y1) - max(r.Y0, o.Y0)
	if w <= 0 || h <= 0 {
		return 0
	}
	return w * h
}

// Area returns the rect's area.
func (r Rect) Area() float64 {
	w, h := r.Width(), r.Height()
	if w <= 0 || h <= 0 {
		return 0
	}
	return w * h
}
