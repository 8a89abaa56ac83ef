package main

import (
	"context"
	"encoding/hex"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/clearfolio/statement-parser/internal/arbitrate"
	"github.com/clearfolio/statement-parser/internal/common"
	"github.com/clearfolio/statement-parser/internal/document"
	"github.com/clearfolio/statement-parser/internal/extract"
	"github.com/clearfolio/statement-parser/internal/ingest"
	"github.com/clearfolio/statement-parser/internal/output"
	"github.com/clearfolio/statement-parser/internal/pipeline"
	repo "github.com/clearfolio/statement-parser/internal/repository"
)

// printError prints an error message to stderr, falling back to stdout if stderr fails
func printError(format string, args ...interface{}) {
	if _, err := fmt.Fprintf(os.Stderr, format, args...); err != nil {
		fmt.Printf(format, args...)
	}
}

func main() {
	var (
		in          = flag.String("in", "", "input PDF statement")
		dir         = flag.String("dir", "", "process every PDF under this directory")
		watch       = flag.Bool("watch", false, "keep running and process PDFs dropped under --dir")
		out         = flag.String("out", "", "output JSON path, single-file mode only (defaults to stdout)")
		langs       = flag.String("langs", "eng", "comma-separated OCR languages, e.g. eng+deu or eng,deu")
		tolerance   = flag.Float64("tolerance", 0, "relative reconciliation tolerance (0 = configured default)")
		arbitrateOn = flag.Bool("arbitrate", false, "consult the external arbitration service on conflicts")
		arbTimeout  = flag.Duration("arbitrate-timeout", 0, "per-call arbitration timeout (0 = configured default)")
		dsn         = flag.String("store", "", "snapshot store DSN (overrides STORE_DSN)")
		inmem       = flag.Bool("inmem", false, "use an in-memory snapshot store")
		force       = flag.Bool("force", false, "reprocess statements that already hold a snapshot")
		quiet       = flag.Bool("quiet", false, "suppress progress logs")
	)
	flag.Parse()

	if *in == "" && *dir == "" {
		printError("Error: one of --in or --dir is required\n")
		os.Exit(1)
	}
	if *watch && *dir == "" {
		printError("Error: --watch requires --dir\n")
		os.Exit(1)
	}

	level := slog.LevelInfo
	if *quiet {
		level = slog.LevelError
	}
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg := common.LoadConfig()
	if *dsn != "" {
		cfg.Store.DSN = *dsn
	}
	if *inmem {
		cfg.Store.DSN = ":memory:"
	}
	if *tolerance > 0 {
		cfg.Pipeline.ValueTolerance = *tolerance
	}
	if err := cfg.Validate(); err != nil {
		printError("Error: invalid configuration: %v\n", err)
		os.Exit(1)
	}

	db, err := repo.Open(ctx, repo.Config{DSN: cfg.Store.DSN}, logger)
	if err != nil {
		logger.Error("failed to open snapshot store", "error", err)
		os.Exit(1)
	}
	defer func() {
		if err := db.Close(); err != nil {
			logger.Warn("store close error", "error", err)
		}
	}()
	store := repo.NewSnapshotStore(db, logger)

	var arbiter arbitrate.Arbitrator = arbitrate.Noop{}
	if *arbitrateOn {
		arbiter = arbitrate.NewClient(arbitrate.Config{
			APIKey:      cfg.Arbitration.APIKey,
			BaseURL:     cfg.Arbitration.BaseURL,
			Model:       cfg.Arbitration.Model,
			Temperature: cfg.Arbitration.Temperature,
			Timeout:     cfg.Arbitration.Timeout,
		}, logger)
	}

	extractor := extract.NewExtractor(extract.Config{
		Pdftoppm:    cfg.OCR.Pdftoppm,
		Tesseract:   cfg.OCR.Tesseract,
		TessdataDir: cfg.OCR.TessdataDir,
		DPI:         cfg.OCR.DPI,
		MaxPages:    cfg.OCR.MaxPages,
	}, logger)

	proc := pipeline.NewProcessor(cfg, extractor, arbiter, logger)
	languages := splitLangs(*langs)
	opts := pipeline.Options{
		Languages:          languages,
		ValueTolerance:     cfg.Pipeline.ValueTolerance,
		ArbitrationEnabled: *arbitrateOn || cfg.Pipeline.ArbitrationEnabled,
		ArbitrationTimeout: *arbTimeout,
	}

	// process runs the pipeline for one registered document and persists the
	// snapshot regardless of the run's terminal state.
	process := func(ctx context.Context, doc *document.Document, rec *repo.DocumentRecord) error {
		result, runErr := proc.Process(ctx, doc, opts)
		if runErr != nil && ctx.Err() != nil {
			return runErr
		}
		body, err := output.Marshal(result)
		if err != nil {
			return err
		}
		if _, err := store.SaveSnapshot(ctx, rec.ID, result.State, body); err != nil {
			return err
		}
		if *in != "" {
			if *out == "" {
				fmt.Println(string(body))
			} else if err := os.WriteFile(*out, append(body, '\n'), 0o644); err != nil {
				return err
			}
		}
		return runErr
	}

	switch {
	case *in != "":
		if err := runSingle(ctx, store, process, languages, *in, logger); err != nil {
			os.Exit(2)
		}
	case *watch:
		if err := runWatch(ctx, store, process, languages, *dir, *force, logger); err != nil {
			os.Exit(1)
		}
	default:
		ing := ingest.NewIngestor(store, process, languages, *force, logger)
		_, stats, err := ing.IngestDirectory(ctx, *dir, true)
		if err != nil {
			logger.Error("directory ingest failed", "error", err)
			os.Exit(1)
		}
		if stats.Failed > 0 {
			os.Exit(2)
		}
	}
}

func runSingle(ctx context.Context, store repo.SnapshotStore, process ingest.ProcessFunc, languages []string, path string, logger *slog.Logger) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		printError("Error: read %s: %v\n", path, err)
		return err
	}
	doc := document.New(raw, languages)
	rec, err := store.UpsertDocument(ctx, hex.EncodeToString(doc.Hash), filepath.Base(path), 0)
	if err != nil {
		logger.Error("failed to register document", "error", err)
		return err
	}
	doc.ID = rec.ID
	return process(ctx, doc, rec)
}

func runWatch(ctx context.Context, store repo.SnapshotStore, process ingest.ProcessFunc, languages []string, root string, force bool, logger *slog.Logger) error {
	ing := ingest.NewIngestor(store, process, languages, force, logger)
	events, errs, err := ingest.StartWatcher(ctx, ingest.WatchConfig{
		Roots:       []string{root},
		InitialScan: true,
		Debounce:    500 * time.Millisecond,
	}, logger)
	if err != nil {
		logger.Error("failed to start watcher", "error", err)
		return err
	}
	logger.Info("watching for statements", "root", root)
	for {
		select {
		case <-ctx.Done():
			return nil
		case werr, ok := <-errs:
			if ok && werr != nil {
				logger.Error("watch error", "error", werr)
			}
		case path, ok := <-events:
			if !ok {
				return nil
			}
			if res, err := ing.IngestPath(ctx, path); err != nil {
				logger.Error("ingest failed", "path", path, "error", err)
			} else if !res.Deduplicated {
				logger.Info("statement processed", "path", path, "document_id", res.DocumentID)
			}
		}
	}
}

func splitLangs(s string) []string {
	fields := strings.FieldsFunc(s, func(r rune) bool { return r == ',' || r == '+' })
	var langs []string
	for _, f := range fields {
		f = strings.TrimSpace(f)
		if f != "" {
			langs = append(langs, f)
		}
	}
	return langs
}
