package ingest

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/clearfolio/statement-parser/constants"
	"github.com/clearfolio/statement-parser/internal/document"
	"github.com/clearfolio/statement-parser/internal/repository"
)

func TestAllowedExt(t *testing.T) {
	for ext, want := range map[string]bool{
		".pdf": true,
		".PDF": true,
		"pdf":  true,
		".txt": false,
		".csv": false,
		"":     false,
	} {
		if got := AllowedExt(ext); got != want {
			t.Errorf("AllowedExt(%q) = %v, want %v", ext, got, want)
		}
	}
}

func TestIsHidden(t *testing.T) {
	for path, want := range map[string]bool{
		"/statements/.cache":      true,
		"/statements/.q1.pdf":     true,
		"/statements/q1.pdf":      false,
		"/statements/.dir/q1.pdf": false, // only the basename counts
	} {
		if got := IsHidden(path); got != want {
			t.Errorf("IsHidden(%q) = %v, want %v", path, got, want)
		}
	}
}

func newTestStore(t *testing.T) repository.SnapshotStore {
	t.Helper()
	logger := slog.Default()
	db, err := repository.Open(context.Background(), repository.Config{DSN: ":memory:"}, logger)
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() {
		if err := db.Close(); err != nil {
			t.Errorf("close store: %v", err)
		}
	})
	return repository.NewSnapshotStore(db, logger)
}

// snapshotting ProcessFunc: marks every document processed so a re-ingest of
// the same content deduplicates.
func snapshotProcess(t *testing.T, store repository.SnapshotStore, calls *[]string) ProcessFunc {
	t.Helper()
	return func(ctx context.Context, doc *document.Document, rec *repository.DocumentRecord) error {
		*calls = append(*calls, rec.Filename)
		_, err := store.SaveSnapshot(ctx, rec.ID, constants.RunCompleted, []byte(`{}`))
		return err
	}
}

func TestIngestDirectoryFiltersAndCounts(t *testing.T) {
	root := t.TempDir()
	files := map[string][]byte{
		"q1.pdf":           []byte("%PDF-1.4 q1"),
		"q2.PDF":           []byte("%PDF-1.4 q2"),
		"notes.txt":        []byte("not a statement"),
		".archive/old.pdf": []byte("%PDF-1.4 old"),
	}
	for name, content := range files {
		path := filepath.Join(root, filepath.FromSlash(name))
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(path, content, 0o644); err != nil {
			t.Fatal(err)
		}
	}

	store := newTestStore(t)
	var calls []string
	ing := NewIngestor(store, snapshotProcess(t, store, &calls), []string{"eng"}, false, nil)

	results, stats, err := ing.IngestDirectory(context.Background(), root, true)
	if err != nil {
		t.Fatal(err)
	}
	if stats.Matched != 2 || stats.Succeeded != 2 || stats.Failed != 0 {
		t.Fatalf("stats = %+v, want 2 matched and succeeded", stats)
	}
	if len(results) != 2 {
		t.Fatalf("got %d results: %+v", len(results), results)
	}
	if len(calls) != 2 {
		t.Fatalf("pipeline ran for %v, want both pdf files", calls)
	}
	for _, res := range results {
		if res.DocumentID == "" || res.HashHex == "" {
			t.Errorf("incomplete result: %+v", res)
		}
	}
}

func TestIngestDirectoryDeduplicatesRepeatContent(t *testing.T) {
	root := t.TempDir()
	for _, name := range []string{"original.pdf", "copy.pdf"} {
		if err := os.WriteFile(filepath.Join(root, name), []byte("%PDF-1.4 same bytes"), 0o644); err != nil {
			t.Fatal(err)
		}
	}

	store := newTestStore(t)
	var calls []string
	ing := NewIngestor(store, snapshotProcess(t, store, &calls), []string{"eng"}, false, nil)

	_, stats, err := ing.IngestDirectory(context.Background(), root, true)
	if err != nil {
		t.Fatal(err)
	}
	if len(calls) != 1 {
		t.Fatalf("pipeline ran for %v, want exactly one of the identical files", calls)
	}
	if stats.Deduplicated != 1 {
		t.Errorf("stats = %+v, want one deduplicated file", stats)
	}
}

func TestIngestPathForceReprocesses(t *testing.T) {
	root := t.TempDir()
	path := filepath.Join(root, "q1.pdf")
	if err := os.WriteFile(path, []byte("%PDF-1.4 q1"), 0o644); err != nil {
		t.Fatal(err)
	}

	store := newTestStore(t)
	var calls []string
	forced := NewIngestor(store, snapshotProcess(t, store, &calls), []string{"eng"}, true, nil)

	for i := 0; i < 2; i++ {
		if _, err := forced.IngestPath(context.Background(), path); err != nil {
			t.Fatal(err)
		}
	}
	if len(calls) != 2 {
		t.Fatalf("pipeline ran %d times, want forced reprocessing on both ingests", len(calls))
	}
}
