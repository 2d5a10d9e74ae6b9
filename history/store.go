// Package history records completed and failed chunkmux runs in a local
// SQLite database. It is an append-only activity log, not a resumption
// mechanism: chunkmux never reads this database back into a Task list, it
// only writes to it and lets the "history" command read it back for
// display.
package history

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/chunkmux/chunkmux/internal/utils"
)

const schema = `
CREATE TABLE IF NOT EXISTS runs (
	id            TEXT PRIMARY KEY,
	url           TEXT NOT NULL,
	dest_path     TEXT NOT NULL,
	filename      TEXT NOT NULL,
	mime_type     TEXT,
	total_size    INTEGER NOT NULL,
	bytes_written INTEGER NOT NULL DEFAULT 0,
	status        TEXT NOT NULL,
	error         TEXT,
	started_at    INTEGER NOT NULL,
	finished_at   INTEGER
);
`

// Status values a Run can carry.
const (
	StatusRunning   = "running"
	StatusCompleted = "completed"
	StatusFailed    = "failed"
	StatusCancelled = "cancelled"
)

// Run is one recorded chunkmux invocation.
type Run struct {
	ID           string
	URL          string
	DestPath     string
	Filename     string
	MIMEType     string
	TotalSize    int64
	BytesWritten int64
	Status       string
	Error        string
	StartedAt    time.Time
	FinishedAt   *time.Time
}

// HumanSize renders TotalSize the way the history CLI command displays it.
func (r Run) HumanSize() string {
	return humanize.Bytes(uint64(r.TotalSize))
}

// Store wraps the run-history database.
type Store struct {
	db *sql.DB
}

// Open opens (creating if needed) the SQLite database at path and ensures
// the schema exists.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("history: open %s: %w", path, err)
	}
	db.SetMaxOpenConns(1) // modernc.org/sqlite serializes writers anyway
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("history: create schema: %w", err)
	}
	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// StartRun inserts a new row in the "running" state and returns its ID.
func (s *Store) StartRun(ctx context.Context, url, destPath, filename, mimeType string, totalSize int64) (string, error) {
	id := uuid.New().String()
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO runs (id, url, dest_path, filename, mime_type, total_size, bytes_written, status, started_at)
		VALUES (?, ?, ?, ?, ?, ?, 0, ?, ?)
	`, id, url, destPath, filename, mimeType, totalSize, StatusRunning, time.Now().Unix())
	if err != nil {
		return "", fmt.Errorf("history: insert run: %w", err)
	}
	utils.Debug("history: started run %s for %s", id, url)
	return id, nil
}

// FinishRun marks a run terminal, recording how much was actually written.
func (s *Store) FinishRun(ctx context.Context, id string, status string, bytesWritten int64, runErr error) error {
	var errMsg sql.NullString
	if runErr != nil {
		errMsg = sql.NullString{String: runErr.Error(), Valid: true}
	}
	_, err := s.db.ExecContext(ctx, `
		UPDATE runs SET status = ?, bytes_written = ?, error = ?, finished_at = ?
		WHERE id = ?
	`, status, bytesWritten, errMsg, time.Now().Unix(), id)
	if err != nil {
		return fmt.Errorf("history: finish run %s: %w", id, err)
	}
	return nil
}

// UpdateMIME records the magic-byte-sniffed MIME type of a completed run's
// assembled output, overriding whatever Content-Type the server claimed.
func (s *Store) UpdateMIME(ctx context.Context, id, mimeType string) error {
	_, err := s.db.ExecContext(ctx, `UPDATE runs SET mime_type = ? WHERE id = ?`, mimeType, id)
	if err != nil {
		return fmt.Errorf("history: update mime for %s: %w", id, err)
	}
	return nil
}

// List returns every recorded run, most recent first. Runs started within
// the same second are ordered by insertion, newest first.
func (s *Store) List(ctx context.Context) ([]Run, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, url, dest_path, filename, mime_type, total_size, bytes_written, status, error, started_at, finished_at
		FROM runs ORDER BY started_at DESC, rowid DESC
	`)
	if err != nil {
		return nil, fmt.Errorf("history: query runs: %w", err)
	}
	defer rows.Close()

	var out []Run
	for rows.Next() {
		var r Run
		var mimeType, errMsg sql.NullString
		var startedAt int64
		var finishedAt sql.NullInt64

		if err := rows.Scan(&r.ID, &r.URL, &r.DestPath, &r.Filename, &mimeType,
			&r.TotalSize, &r.BytesWritten, &r.Status, &errMsg, &startedAt, &finishedAt); err != nil {
			return nil, fmt.Errorf("history: scan run: %w", err)
		}
		r.MIMEType = mimeType.String
		r.Error = errMsg.String
		r.StartedAt = time.Unix(startedAt, 0)
		if finishedAt.Valid {
			t := time.Unix(finishedAt.Int64, 0)
			r.FinishedAt = &t
		}
		out = append(out, r)
	}
	return out, rows.Err()
}
