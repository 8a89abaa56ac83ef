package extract

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/clearfolio/statement-parser/internal/document"
)

// ocrPage rasterizes a single page and runs tesseract in TSV mode, returning
// positioned word tokens with per-word confidences.
func (e *Extractor) ocrPage(ctx context.Context, pdfPath string, pageNum int, languages []string) ([]document.Token, []string, error) {
	tmpDir, err := os.MkdirTemp("", "sp-ocr-*")
	if err != nil {
		return nil, nil, err
	}
	defer func() {
		if rmErr := os.RemoveAll(tmpDir); rmErr != nil {
			e.logger.Warn("failed to remove temp dir", "dir", tmpDir, "error", rmErr)
		}
	}()

	prefix := filepath.Join(tmpDir, "page")
	// pdftoppm -f N -l N -r 300 -png <in.pdf> <tmp/page>
	_, errb, err := e.runner.Run(ctx, e.cfg.Pdftoppm,
		"-f", strconv.Itoa(pageNum), "-l", strconv.Itoa(pageNum),
		"-r", strconv.Itoa(e.cfg.DPI), "-png", pdfPath, prefix)
	if err != nil {
		return nil, []string{string(errb)}, fmt.Errorf("pdftoppm: %w", err)
	}

	matches, _ := filepath.Glob(prefix + "-*.png")
	if len(matches) == 0 {
		return nil, []string{"pdftoppm produced no image"}, fmt.Errorf("page %d not rendered", pageNum)
	}

	return e.tesseractTSV(ctx, matches[0], languages)
}

// tesseractTSV runs tesseract in TSV mode and parses word-level rows into
// tokens. TSV coordinates are top-down; they are flipped so all tokens use
// the same Y-up convention as the embedded text layer.
func (e *Extractor) tesseractTSV(ctx context.Context, imgPath string, languages []string) ([]document.Token, []string, error) {
	lang := strings.Join(languages, "+")
	if lang == "" {
		lang = "eng"
	}
	args := []string{imgPath, "stdout", "-l", lang}
	if e.cfg.TessdataDir != "" {
		args = append(args, "--tessdata-dir", e.cfg.TessdataDir)
	}
	args = append(args, "tsv")

	out, errb, err := e.runner.Run(ctx, e.cfg.Tesseract, args...)
	if err != nil {
		return nil, []string{string(errb)}, fmt.Errorf("tesseract: %w", err)
	}

	type word struct {
		left, top, width, height float64
		conf                     float64
		text                     string
	}
	var words []word
	var maxBottom float64

	lines := strings.Split(string(out), "\n")
	for i, ln := range lines {
		if i == 0 || len(ln) == 0 {
			continue // header
		}
		cols := strings.Split(ln, "\t")
		if len(cols) < 12 {
			continue
		}
		// level 5 rows are words: ... left top width height conf text
		if cols[0] != "5" {
			continue
		}
		text := strings.TrimSpace(cols[11])
		if text == "" {
			continue
		}
		left, _ := strconv.ParseFloat(cols[6], 64)
		top, _ := strconv.ParseFloat(cols[7], 64)
		width, _ := strconv.ParseFloat(cols[8], 64)
		height, _ := strconv.ParseFloat(cols[9], 64)
		conf, _ := strconv.ParseFloat(cols[10], 64)
		if conf < 0 {
			continue
		}
		words = append(words, word{left, top, width, height, conf / 100.0, text})
		if bottom := top + height; bottom > maxBottom {
			maxBottom = bottom
		}
	}

	tokens := make([]document.Token, 0, len(words))
	for _, w := range words {
		tokens = append(tokens, document.Token{
			Text: w.text,
			Box: document.Rect{
				X0: w.left,
				Y0: maxBottom - (w.top + w.height),
				X1: w.left + w.width,
				Y1: maxBottom - w.top,
			},
			Conf: w.conf,
		})
	}
	return tokens, nil, nil
}

// meanConfidence returns the average token confidence, zero for no tokens.
func meanConfidence(tokens []document.Token) float64 {
	if len(tokens) == 0 {
		return 0
	}
	var sum float64
	for _, t := range tokens {
		sum += t.Conf
	}
	return sum / float64(len(tokens))
}
