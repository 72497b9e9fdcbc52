// Package ledger provides an append-only history of catalog sync attempts
// for auditing and the status surface.
package ledger

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Outcome classifies how a sync attempt ended.
type Outcome string

const (
	OutcomeSuccess Outcome = "success"
	OutcomeFailure Outcome = "failure"
	OutcomeSkipped Outcome = "skipped"
)

// Entry is one recorded sync attempt.
type Entry struct {
	ID         string
	StartedAt  time.Time
	FinishedAt time.Time
	Source     string // "auto" or "forced"
	Outcome    Outcome
	Detail     string
}

// Ledger appends and queries sync attempt history.
type Ledger struct {
	db *sql.DB
}

// New creates a Ledger using the provided database connection.
func New(db *sql.DB) *Ledger {
	return &Ledger{db: db}
}

// Record appends an attempt. A missing ID is filled in.
func (l *Ledger) Record(e Entry) error {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	_, err := l.db.Exec(`
		INSERT INTO sync_attempts (id, started_at, finished_at, source, outcome, detail)
		VALUES (?, ?, ?, ?, ?, ?)
	`, e.ID, e.StartedAt.UTC().Unix(), e.FinishedAt.UTC().Unix(), e.Source, string(e.Outcome), e.Detail)
	if err != nil {
		return fmt.Errorf("failed to record sync attempt: %w", err)
	}
	return nil
}

// Recent returns up to n attempts, newest first.
func (l *Ledger) Recent(n int) ([]Entry, error) {
	rows, err := l.db.Query(`
		SELECT id, started_at, finished_at, source, outcome, detail
		FROM sync_attempts
		ORDER BY started_at DESC, id DESC
		LIMIT ?
	`, n)
	if err != nil {
		return nil, fmt.Errorf("failed to query sync attempts: %w", err)
	}
	defer rows.Close()

	var out []Entry
	for rows.Next() {
		var (
			e        Entry
			started  int64
			finished int64
			detail   sql.NullString
		)
		if err := rows.Scan(&e.ID, &started, &finished, &e.Source, (*string)(&e.Outcome), &detail); err != nil {
			return nil, err
		}
		e.StartedAt = time.Unix(started, 0).UTC()
		e.FinishedAt = time.Unix(finished, 0).UTC()
		e.Detail = detail.String
		out = append(out, e)
	}
	return out, rows.Err()
}

// DeleteOlderThan removes attempts older than the retention period and
// returns how many were deleted.
func (l *Ledger) DeleteOlderThan(retention time.Duration) (int64, error) {
	cutoff := time.Now().Add(-retention).UTC().Unix()
	res, err := l.db.Exec(`DELETE FROM sync_attempts WHERE started_at < ?`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to cleanup sync attempts: %w", err)
	}
	return res.RowsAffected()
}
