package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/clearfolio/statement-parser/constants"
	"github.com/clearfolio/statement-parser/internal/common"
)

// DocumentRecord is the stored identity of an ingested statement.
type DocumentRecord struct {
	ID        uuid.UUID
	Hash      string // hex sha-256 of the raw bytes
	Filename  string
	PageCount int
	CreatedAt time.Time
}

// Snapshot is one persisted run result for a document.
type Snapshot struct {
	ID         uuid.UUID
	DocumentID uuid.UUID
	State      constants.RunState
	ResultJSON []byte
	CreatedAt  time.Time
}

type SnapshotStore interface {
	// UpsertDocument registers a document by content hash. A re-upload of
	// identical bytes returns the existing record.
	UpsertDocument(ctx context.Context, hash, filename string, pageCount int) (*DocumentRecord, error)
	SaveSnapshot(ctx context.Context, documentID uuid.UUID, state constants.RunState, resultJSON []byte) (*Snapshot, error)
	LatestSnapshot(ctx context.Context, documentID uuid.UUID) (*Snapshot, error)
}

type snapshotStore struct {
	db     *sql.DB
	logger *slog.Logger
}

func NewSnapshotStore(db *sql.DB, logger *slog.Logger) SnapshotStore {
	return &snapshotStore{db: db, logger: logger}
}

func (s *snapshotStore) UpsertDocument(ctx context.Context, hash, filename string, pageCount int) (*DocumentRecord, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, hash, filename, page_count, created_at FROM documents WHERE hash = ?`, hash)
	rec, err := scanDocument(row)
	if err == nil {
		s.logger.Info("store.document.exists", "document_id", rec.ID, "hash", hash)
		return rec, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, err
	}

	rec = &DocumentRecord{
		ID:        uuid.New(),
		Hash:      hash,
		Filename:  filename,
		PageCount: pageCount,
		CreatedAt: time.Now().UTC(),
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO documents (id, hash, filename, page_count, created_at) VALUES (?, ?, ?, ?, ?)`,
		rec.ID.String(), rec.Hash, rec.Filename, rec.PageCount, rec.CreatedAt.Format(time.RFC3339Nano))
	if err != nil {
		s.logger.Error("store.document.insert_failed", "hash", hash, "error", err)
		return nil, err
	}
	s.logger.Info("store.document.created", "document_id", rec.ID, "filename", filename)
	return rec, nil
}

func (s *snapshotStore) SaveSnapshot(ctx context.Context, documentID uuid.UUID, state constants.RunState, resultJSON []byte) (*Snapshot, error) {
	snap := &Snapshot{
		ID:         uuid.New(),
		DocumentID: documentID,
		State:      state,
		ResultJSON: resultJSON,
		CreatedAt:  time.Now().UTC(),
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO snapshots (id, document_id, state, result_json, created_at) VALUES (?, ?, ?, ?, ?)`,
		snap.ID.String(), documentID.String(), string(state), string(resultJSON), snap.CreatedAt.Format(time.RFC3339Nano))
	if err != nil {
		s.logger.Error("store.snapshot.insert_failed", "document_id", documentID, "error", err)
		return nil, err
	}
	s.logger.Info("store.snapshot.saved", "document_id", documentID, "snapshot_id", snap.ID, "state", state)
	return snap, nil
}

func (s *snapshotStore) LatestSnapshot(ctx context.Context, documentID uuid.UUID) (*Snapshot, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, document_id, state, result_json, created_at
		   FROM snapshots WHERE document_id = ?
		  ORDER BY rowid DESC LIMIT 1`, documentID.String())

	var (
		snap              Snapshot
		id, docID, st, at string
		body              string
	)
	if err := row.Scan(&id, &docID, &st, &body, &at); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: no snapshot for document %s", common.ErrNotFound, documentID)
		}
		return nil, err
	}
	var err error
	if snap.ID, err = uuid.Parse(id); err != nil {
		return nil, err
	}
	if snap.DocumentID, err = uuid.Parse(docID); err != nil {
		return nil, err
	}
	snap.State = constants.RunState(st)
	snap.ResultJSON = []byte(body)
	if snap.CreatedAt, err = time.Parse(time.RFC3339Nano, at); err != nil {
		return nil, err
	}
	return &snap, nil
}

func scanDocument(row *sql.Row) (*DocumentRecord, error) {
	var (
		rec    DocumentRecord
		id, at string
	)
	if err := row.Scan(&id, &rec.Hash, &rec.Filename, &rec.PageCount, &at); err != nil {
		return nil, err
	}
	var err error
	if rec.ID, err = uuid.Parse(id); err != nil {
		return nil, err
	}
	if rec.CreatedAt, err = time.Parse(time.RFC3339Nano, at); err != nil {
		return nil, err
	}
	return &rec, nil
}
