// Package jobs keeps the history of document operations per user.
package jobs

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/hazyhaar/audioscribe/dbopen"
	"github.com/hazyhaar/audioscribe/idgen"
)

// Schema is the job history DDL.
const Schema = `
CREATE TABLE IF NOT EXISTS jobs (
    job_id       TEXT PRIMARY KEY,
    user_id      TEXT NOT NULL,
    kind         TEXT NOT NULL,
    filename     TEXT NOT NULL,
    size_bytes   INTEGER NOT NULL,
    status       TEXT NOT NULL,
    paragraphs   INTEGER NOT NULL DEFAULT 0,
    ranges       INTEGER NOT NULL DEFAULT 0,
    text_length  INTEGER NOT NULL DEFAULT 0,
    duration_ms  INTEGER NOT NULL DEFAULT 0,
    error        TEXT,
    created_at   INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_jobs_user_time ON jobs(user_id, created_at DESC);
`

// Status is the outcome of a job.
type Status string

const (
	StatusDone    Status = "done"
	StatusInvalid Status = "invalid" // the upload was not a readable document
	StatusFailed  Status = "failed"  // the document was read but processing failed
)

// Kind is the operation a job ran.
type Kind string

const (
	KindExtract  Kind = "extract"
	KindValidate Kind = "validate"
	KindEstimate Kind = "estimate"
	KindPreview  Kind = "preview"
)

// Job is one recorded operation.
type Job struct {
	ID         string    `json:"id"`
	UserID     string    `json:"user_id"`
	Kind       Kind      `json:"kind"`
	Filename   string    `json:"filename"`
	SizeBytes  int64     `json:"size_bytes"`
	Status     Status    `json:"status"`
	Paragraphs int       `json:"paragraphs"`
	Ranges     int       `json:"ranges"`
	TextLength int       `json:"text_length"`
	DurationMs int64     `json:"duration_ms"`
	Error      string    `json:"error,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
}

var ErrNotFound = errors.New("jobs: not found")

// Store persists jobs.
type Store struct {
	db    *sql.DB
	newID idgen.Generator
	now   func() time.Time
}

// NewStore returns a store over db, which must hold Schema.
func NewStore(db *sql.DB) *Store {
	return &Store{db: db, newID: idgen.Job, now: time.Now}
}

// Record inserts j, assigning ID and CreatedAt when unset, and returns the
// stored job.
func (s *Store) Record(ctx context.Context, j Job) (Job, error) {
	if j.UserID == "" {
		return j, errors.New("jobs: user id is required")
	}
	if j.ID == "" {
		j.ID = s.newID()
	}
	if j.CreatedAt.IsZero() {
		j.CreatedAt = s.now()
	}
	j.CreatedAt = j.CreatedAt.UTC().Truncate(time.Second)

	var errText sql.NullString
	if j.Error != "" {
		errText = sql.NullString{String: j.Error, Valid: true}
	}
	_, err := dbopen.Exec(ctx, s.db, `
		INSERT INTO jobs (job_id, user_id, kind, filename, size_bytes, status,
			paragraphs, ranges, text_length, duration_ms, error, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		j.ID, j.UserID, j.Kind, j.Filename, j.SizeBytes, j.Status,
		j.Paragraphs, j.Ranges, j.TextLength, j.DurationMs, errText, j.CreatedAt.Unix())
	if err != nil {
		return j, fmt.Errorf("jobs: record: %w", err)
	}
	return j, nil
}

const selectCols = `job_id, user_id, kind, filename, size_bytes, status,
	paragraphs, ranges, text_length, duration_ms, error, created_at`

// Get returns one of the user's jobs. Malformed IDs are reported as
// ErrNotFound.
func (s *Store) Get(ctx context.Context, userID, id string) (Job, error) {
	if _, err := idgen.Parse(id); err != nil {
		return Job{}, ErrNotFound
	}
	row := s.db.QueryRowContext(ctx,
		`SELECT `+selectCols+` FROM jobs WHERE job_id = ? AND user_id = ?`, id, userID)
	j, err := scan(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Job{}, ErrNotFound
	}
	return j, err
}

// ListByUser returns the user's most recent jobs, newest first. A
// non-positive limit means 20.
func (s *Store) ListByUser(ctx context.Context, userID string, limit int) ([]Job, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+selectCols+` FROM jobs WHERE user_id = ? ORDER BY created_at DESC, job_id DESC LIMIT ?`,
		userID, limit)
	if err != nil {
		return nil, fmt.Errorf("jobs: list: %w", err)
	}
	defer rows.Close()

	out := []Job{}
	for rows.Next() {
		j, err := scan(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, j)
	}
	return out, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scan(r scanner) (Job, error) {
	var (
		j       Job
		errText sql.NullString
		ts      int64
	)
	err := r.Scan(&j.ID, &j.UserID, &j.Kind, &j.Filename, &j.SizeBytes, &j.Status,
		&j.Paragraphs, &j.Ranges, &j.TextLength, &j.DurationMs, &errText, &ts)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return j, err
		}
		return j, fmt.Errorf("jobs: scan: %w", err)
	}
	j.Error = errText.String
	j.CreatedAt = time.Unix(ts, 0).UTC()
	return j, nil
}
