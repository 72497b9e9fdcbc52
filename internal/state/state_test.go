package state

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/glowkit/glowd/internal/db"
)

func openDB(t *testing.T) *db.DB {
	t.Helper()
	database, err := db.Open(filepath.Join(t.TempDir(), "test.sqlite"))
	if err != nil {
		t.Fatalf("failed to open database: %v", err)
	}
	t.Cleanup(func() { database.Close() })
	return database
}

func TestNewStore_Defaults(t *testing.T) {
	database := openDB(t)

	s, err := NewStore(database.DB)
	if err != nil {
		t.Fatalf("NewStore failed: %v", err)
	}

	st := s.Snapshot()
	if st.FetchMode != ModeDefault {
		t.Errorf("FetchMode = %s, want %s", st.FetchMode, ModeDefault)
	}
	if st.CustomURL != "" {
		t.Errorf("CustomURL = %q, want empty", st.CustomURL)
	}
	if !st.LastAttemptAt.IsZero() {
		t.Error("LastAttemptAt should be zero initially")
	}
}

func TestStore_PersistsAcrossReopen(t *testing.T) {
	database := openDB(t)

	s, err := NewStore(database.DB)
	if err != nil {
		t.Fatalf("NewStore failed: %v", err)
	}

	attempt := time.Now()
	if err := s.SetFetchMode(ModeCustom); err != nil {
		t.Fatalf("SetFetchMode failed: %v", err)
	}
	if err := s.SetCustomURL("https://example.com/catalog.json"); err != nil {
		t.Fatalf("SetCustomURL failed: %v", err)
	}
	if err := s.MarkAttempt(attempt); err != nil {
		t.Fatalf("MarkAttempt failed: %v", err)
	}

	reopened, err := NewStore(database.DB)
	if err != nil {
		t.Fatalf("reopen failed: %v", err)
	}
	st := reopened.Snapshot()
	if st.FetchMode != ModeCustom {
		t.Errorf("FetchMode = %s, want %s", st.FetchMode, ModeCustom)
	}
	if st.CustomURL != "https://example.com/catalog.json" {
		t.Errorf("CustomURL = %q", st.CustomURL)
	}
	if st.LastAttemptAt.Unix() != attempt.Unix() {
		t.Errorf("LastAttemptAt = %v, want %v (second precision)", st.LastAttemptAt, attempt)
	}
}

func TestStore_CorruptRowSelfHeals(t *testing.T) {
	database := openDB(t)

	if _, err := NewStore(database.DB); err != nil {
		t.Fatalf("NewStore failed: %v", err)
	}
	if _, err := database.Exec(`UPDATE sync_state SET fetch_mode = 'bogus' WHERE id = 1`); err != nil {
		t.Fatal(err)
	}

	s, err := NewStore(database.DB)
	if err != nil {
		t.Fatalf("NewStore should self-heal, got %v", err)
	}
	if st := s.Snapshot(); st.FetchMode != ModeDefault {
		t.Errorf("FetchMode = %s, want defaults restored", st.FetchMode)
	}
}

func TestStore_RejectsInvalidMode(t *testing.T) {
	database := openDB(t)

	s, err := NewStore(database.DB)
	if err != nil {
		t.Fatalf("NewStore failed: %v", err)
	}
	if err := s.SetFetchMode("bogus"); err == nil {
		t.Error("SetFetchMode should reject unknown modes")
	}
}

func TestSnapshot_IsStable(t *testing.T) {
	database := openDB(t)

	s, err := NewStore(database.DB)
	if err != nil {
		t.Fatalf("NewStore failed: %v", err)
	}

	before := s.Snapshot()
	if err := s.SetFetchMode(ModeDisabled); err != nil {
		t.Fatalf("SetFetchMode failed: %v", err)
	}
	if before.FetchMode != ModeDefault {
		t.Error("earlier snapshot must not observe later mutation")
	}
}
