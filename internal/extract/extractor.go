// Package extract turns PDF bytes into pages of text and positioned tokens.
// Pages with an embedded text layer are read directly; scanned pages fall
// back to rasterized OCR. One bad page never aborts the document.
package extract

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"runtime"
	"time"

	"github.com/ledongthuc/pdf"
	"golang.org/x/sync/errgroup"

	"github.com/clearfolio/statement-parser/internal/common"
	"github.com/clearfolio/statement-parser/internal/document"
)

// TextExtractor is stage 1: document bytes -> pages with tokens.
type TextExtractor interface {
	ExtractDocument(ctx context.Context, doc *document.Document) error
}

type Config struct {
	Pdftoppm    string // binary name or absolute path; if empty -> "pdftoppm"
	Tesseract   string // binary name or absolute path; if empty -> "tesseract"
	TessdataDir string
	DPI         int // rasterization DPI for scanned pages, default 300
	MaxPages    int // 0 = no limit

	// Embedded text layers below this many tokens are treated as absent and
	// the page goes through OCR instead.
	MinLayerTokens int
}

type Extractor struct {
	cfg    Config
	runner Runner
	logger *slog.Logger
}

func NewExtractor(cfg Config, logger *slog.Logger) *Extractor {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Pdftoppm == "" {
		cfg.Pdftoppm = "pdftoppm"
	}
	if cfg.Tesseract == "" {
		cfg.Tesseract = "tesseract"
	}
	if cfg.DPI <= 0 {
		cfg.DPI = 300
	}
	if cfg.MinLayerTokens <= 0 {
		cfg.MinLayerTokens = 5
	}
	return &Extractor{cfg: cfg, runner: execRunner{}, logger: logger}
}

// ExtractDocument fills doc.Pages, processing pages concurrently. Individual
// page failures yield flagged empty pages; the error is non-nil only when no
// page produced usable text.
func (e *Extractor) ExtractDocument(ctx context.Context, doc *document.Document) error {
	start := time.Now()

	reader, err := openReader(doc.Bytes)
	if err != nil {
		return common.NewAppError("EXTRACT_OPEN", "cannot parse pdf", err)
	}

	pageCount := reader.NumPage()
	if e.cfg.MaxPages > 0 && pageCount > e.cfg.MaxPages {
		pageCount = e.cfg.MaxPages
	}
	doc.PageCount = pageCount
	doc.Pages = make([]document.Page, pageCount)

	// OCR needs the document on disk for pdftoppm; written lazily, once.
	var pdfPath string
	needsOCR := false
	for i := 1; i <= pageCount; i++ {
		if tokens, err := textLayerPage(reader, i); err != nil || len(tokens) < e.cfg.MinLayerTokens {
			needsOCR = true
			break
		}
	}
	if needsOCR {
		f, err := os.CreateTemp("", "sp-doc-*.pdf")
		if err != nil {
			return fmt.Errorf("spool pdf: %w", err)
		}
		if _, err := f.Write(doc.Bytes); err != nil {
			_ = f.Close()
			return fmt.Errorf("spool pdf: %w", err)
		}
		_ = f.Close()
		pdfPath = f.Name()
		defer func() {
			if rmErr := os.Remove(pdfPath); rmErr != nil {
				e.logger.Warn("failed to remove spooled pdf", "path", pdfPath, "error", rmErr)
			}
		}()
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(runtime.GOMAXPROCS(0))
	for i := 0; i < pageCount; i++ {
		i := i
		g.Go(func() error {
			doc.Pages[i] = e.extractPage(gctx, reader, pdfPath, i, doc.Languages)
			return gctx.Err()
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	usable := 0
	for _, p := range doc.Pages {
		if p.Usable() {
			usable++
		}
	}
	e.logger.Info("extract.document.done",
		"document_id", doc.ID,
		"pages", pageCount,
		"usable_pages", usable,
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	if usable == 0 {
		return common.NewAppError("EXTRACT_EMPTY", "no page yielded usable text", common.ErrExtraction)
	}
	return nil
}

// extractPage applies the layer-then-OCR policy for a single page (0-based
// index). Failures degrade to a flagged empty page.
func (e *Extractor) extractPage(ctx context.Context, reader *pdf.Reader, pdfPath string, index int, languages []string) document.Page {
	page := document.Page{Index: index}

	tokens, layerErr := textLayerPage(reader, index+1)
	if layerErr == nil && len(tokens) >= e.cfg.MinLayerTokens {
		page.Tokens = tokens
		page.Text = PageText(tokens)
		page.Method = "pdf-text"
		page.Confidence = 1.0
		return page
	}

	if layerErr != nil {
		e.logger.Warn("extract.page.layer_failed", "page", index, "error", layerErr)
	}

	if pdfPath == "" {
		page.Failed = true
		return page
	}

	ocrTokens, warns, ocrErr := e.ocrPage(ctx, pdfPath, index+1, languages)
	for _, w := range warns {
		e.logger.Warn("extract.page.ocr_warning", "page", index, "warning", w)
	}
	if ocrErr != nil || len(ocrTokens) == 0 {
		if ocrErr != nil {
			e.logger.Warn("extract.page.ocr_failed", "page", index, "error", ocrErr)
		}
		page.Failed = true
		return page
	}

	page.Tokens = ocrTokens
	page.Text = PageText(ocrTokens)
	page.Method = "pdf-ocr"
	// blend: weight OCR word confidence higher than text heuristics
	page.Confidence = 0.7*meanConfidence(ocrTokens) + 0.3*heuristicConfidence(page.Text)
	return page
}
