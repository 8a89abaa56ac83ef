// Package ingest discovers statement PDFs on disk and feeds them into the
// pipeline: one-shot directory walks and a long-running directory watcher.
// Deduplication is by content hash; a statement already holding a snapshot
// is skipped unless forced.
package ingest

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/clearfolio/statement-parser/internal/common"
	"github.com/clearfolio/statement-parser/internal/document"
	"github.com/clearfolio/statement-parser/internal/repository"
)

// ProcessFunc runs the pipeline for one registered document and persists
// its snapshot.
type ProcessFunc func(ctx context.Context, doc *document.Document, rec *repository.DocumentRecord) error

type FileResult struct {
	Path         string
	DocumentID   string
	Deduplicated bool
	HashHex      string
	Err          string
}

type DirStats struct {
	Scanned      uint32
	Matched      uint32
	Succeeded    uint32
	Deduplicated uint32
	Failed       uint32
}

type Ingestor struct {
	store     repository.SnapshotStore
	process   ProcessFunc
	languages []string
	force     bool // reprocess documents that already hold a snapshot
	logger    *slog.Logger
}

func NewIngestor(store repository.SnapshotStore, process ProcessFunc, languages []string, force bool, logger *slog.Logger) *Ingestor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Ingestor{
		store:     store,
		process:   process,
		languages: languages,
		force:     force,
		logger:    logger,
	}
}

// IngestPath registers and processes a single statement file.
func (i *Ingestor) IngestPath(ctx context.Context, path string) (FileResult, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return FileResult{Path: path, Err: err.Error()}, err
	}

	doc := document.New(raw, i.languages)
	hashHex := hex.EncodeToString(doc.Hash)

	rec, err := i.store.UpsertDocument(ctx, hashHex, filepath.Base(path), 0)
	if err != nil {
		return FileResult{Path: path, HashHex: hashHex, Err: err.Error()}, err
	}
	doc.ID = rec.ID

	// a document carrying a snapshot was already processed
	if !i.force {
		if _, err := i.store.LatestSnapshot(ctx, rec.ID); err == nil {
			i.logger.Info("ingest.skip_processed", "path", path, "document_id", rec.ID)
			return FileResult{Path: path, DocumentID: rec.ID.String(), Deduplicated: true, HashHex: hashHex}, nil
		} else if !errors.Is(err, common.ErrNotFound) {
			return FileResult{Path: path, HashHex: hashHex, Err: err.Error()}, err
		}
	}

	if err := i.process(ctx, doc, rec); err != nil {
		return FileResult{Path: path, DocumentID: rec.ID.String(), HashHex: hashHex, Err: err.Error()}, err
	}
	return FileResult{Path: path, DocumentID: rec.ID.String(), HashHex: hashHex}, nil
}

// IngestDirectory walks root, filters on the pdf extension, skips hidden
// entries if requested, and ingests each match. Per-file failures are
// recorded, never fatal for the walk.
func (i *Ingestor) IngestDirectory(ctx context.Context, root string, skipHidden bool) ([]FileResult, DirStats, error) {
	if strings.TrimSpace(root) == "" {
		return nil, DirStats{}, errors.New("root path is required")
	}

	var results []FileResult
	var stats DirStats

	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, walkErr error) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		stats.Scanned++
		if walkErr != nil {
			results = append(results, FileResult{Path: path, Err: walkErr.Error()})
			stats.Failed++
			return nil // continue walking
		}
		if skipHidden && IsHidden(path) {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if d.IsDir() {
			return nil
		}
		if !AllowedExt(filepath.Ext(path)) {
			return nil
		}
		stats.Matched++

		res, err := i.IngestPath(ctx, path)
		results = append(results, res)
		if err != nil {
			stats.Failed++
			return nil
		}
		stats.Succeeded++
		if res.Deduplicated {
			stats.Deduplicated++
		}
		return nil
	})
	if err != nil {
		return results, stats, fmt.Errorf("walk: %w", err)
	}
	i.logger.Info("ingest.dir.done",
		"root", root,
		"scanned", stats.Scanned,
		"matched", stats.Matched,
		"succeeded", stats.Succeeded,
		"deduplicated", stats.Deduplicated,
		"failed", stats.Failed,
	)
	return results, stats, nil
}

// AllowedExt reports whether a file extension names a statement format.
func AllowedExt(ext string) bool {
	return strings.TrimPrefix(strings.ToLower(ext), ".") == "pdf"
}

// IsHidden reports whether a file or directory is hidden (starts with '.').
func IsHidden(path string) bool {
	base := filepath.Base(path)
	return strings.HasPrefix(base, ".")
}
