// Package state persists the process-wide sync state: fetch mode, the
// custom remote locator, and the last attempt timestamp that anchors
// sync rate limiting.
package state

import (
	"database/sql"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

// FetchMode selects where catalog syncs go.
type FetchMode string

const (
	ModeDefault  FetchMode = "default"
	ModeCustom   FetchMode = "custom"
	ModeDisabled FetchMode = "disabled"
)

// Valid reports whether m is a known fetch mode.
func (m FetchMode) Valid() bool {
	switch m {
	case ModeDefault, ModeCustom, ModeDisabled:
		return true
	}
	return false
}

// SyncState is a value snapshot of the persisted sync state.
//
// LastAttemptAt is deliberately "attempt", not "success": it advances
// after every executed network attempt, whatever the outcome, so the
// scheduler never hot-loops against a confirmed-bad endpoint. A zero
// value means no attempt has ever been made.
type SyncState struct {
	FetchMode     FetchMode
	CustomURL     string
	LastAttemptAt time.Time
}

// Store persists SyncState in SQLite as a single row. All mutation goes
// through the Set/Mark methods; readers get stable value snapshots.
type Store struct {
	mu  sync.Mutex
	db  *sql.DB
	cur SyncState
}

// NewStore loads the persisted state, creating or repairing it with
// defaults when missing or corrupt. Corruption is never fatal.
func NewStore(db *sql.DB) (*Store, error) {
	s := &Store{db: db}

	st, err := s.load()
	if err != nil {
		log.Warn().Err(err).Msg("Sync state unreadable, recreating with defaults")
		st = SyncState{FetchMode: ModeDefault}
		if err := s.reset(st); err != nil {
			return nil, err
		}
	}
	s.cur = st
	return s, nil
}

func (s *Store) load() (SyncState, error) {
	var (
		mode    string
		custom  string
		attempt sql.NullInt64
	)
	err := s.db.QueryRow(`
		SELECT fetch_mode, custom_url, last_attempt_at FROM sync_state WHERE id = 1
	`).Scan(&mode, &custom, &attempt)

	if err == sql.ErrNoRows {
		st := SyncState{FetchMode: ModeDefault}
		return st, s.reset(st)
	}
	if err != nil {
		return SyncState{}, err
	}

	st := SyncState{FetchMode: FetchMode(mode), CustomURL: custom}
	if !st.FetchMode.Valid() {
		return SyncState{}, fmt.Errorf("invalid fetch mode %q", mode)
	}
	if attempt.Valid {
		st.LastAttemptAt = time.Unix(attempt.Int64, 0).UTC()
	}
	return st, nil
}

// reset replaces the persisted row wholesale.
func (s *Store) reset(st SyncState) error {
	_, err := s.db.Exec(`
		INSERT INTO sync_state (id, fetch_mode, custom_url, last_attempt_at)
		VALUES (1, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			fetch_mode = excluded.fetch_mode,
			custom_url = excluded.custom_url,
			last_attempt_at = excluded.last_attempt_at
	`, string(st.FetchMode), st.CustomURL, attemptColumn(st.LastAttemptAt))
	if err != nil {
		return fmt.Errorf("failed to persist sync state: %w", err)
	}
	return nil
}

// Snapshot returns a stable copy of the current state.
func (s *Store) Snapshot() SyncState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cur
}

// SetFetchMode updates the fetch mode.
func (s *Store) SetFetchMode(mode FetchMode) error {
	if !mode.Valid() {
		return fmt.Errorf("invalid fetch mode %q", mode)
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	next := s.cur
	next.FetchMode = mode
	if err := s.reset(next); err != nil {
		return err
	}
	s.cur = next
	return nil
}

// SetCustomURL updates the custom remote locator. It is only consulted
// under ModeCustom.
func (s *Store) SetCustomURL(url string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	next := s.cur
	next.CustomURL = url
	if err := s.reset(next); err != nil {
		return err
	}
	s.cur = next
	return nil
}

// MarkAttempt records that a sync attempt executed at t.
func (s *Store) MarkAttempt(t time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	// The in-memory copy keeps full precision; the column stores whole
	// seconds, which is plenty across restarts.
	next := s.cur
	next.LastAttemptAt = t
	if err := s.reset(next); err != nil {
		return err
	}
	s.cur = next
	return nil
}

func attemptColumn(t time.Time) any {
	if t.IsZero() {
		return nil
	}
	return t.UTC().Unix()
}
