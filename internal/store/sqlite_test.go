package store

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"
)

func newTestDB(t *testing.T) *SQLiteDB {
	t.Helper()
	db, err := NewSQLiteDB(":memory:")
	if err != nil {
		t.Fatalf("Failed to create test database: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	if err := db.Migrate(context.Background()); err != nil {
		t.Fatalf("Failed to migrate: %v", err)
	}
	return db
}

func TestMigrationIdempotency(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ledger.db")
	db, err := NewSQLiteDB(path)
	if err != nil {
		t.Fatalf("Failed to create database: %v", err)
	}
	defer db.Close()

	for i := 0; i < 3; i++ {
		if err := db.Migrate(context.Background()); err != nil {
			t.Fatalf("Failed to migrate (pass %d): %v", i+1, err)
		}
	}

	sess := &Session{Rows: 9, Cols: 9, Bombs: 10, EngineVersion: "test"}
	if err := db.SaveSession(sess); err != nil {
		t.Fatalf("Failed to save session after repeated migrations: %v", err)
	}
	if _, err := db.GetSession(sess.ID); err != nil {
		t.Fatalf("Failed to read session back: %v", err)
	}
}

func TestSaveAndUpdateSession(t *testing.T) {
	db := newTestDB(t)

	sess := &Session{
		Peer:          "127.0.0.1:5000",
		TileSize:      30,
		Rows:          16,
		Cols:          30,
		Bombs:         99,
		Seeded:        true,
		SeedHash:      HashSeed("server-seed"),
		EngineVersion: "1.0.0",
	}
	if err := db.SaveSession(sess); err != nil {
		t.Fatalf("SaveSession failed: %v", err)
	}
	if sess.ID == "" {
		t.Fatal("SaveSession did not assign an id")
	}

	got, err := db.GetSession(sess.ID)
	if err != nil {
		t.Fatalf("GetSession failed: %v", err)
	}
	if got.Outcome != "in_progress" || got.Rows != 16 || got.Cols != 30 || got.Bombs != 99 || !got.Seeded {
		t.Errorf("unexpected session %+v", got)
	}
	if got.SeedHash != HashSeed("server-seed") {
		t.Errorf("seed hash mismatch: %s", got.SeedHash)
	}
	if got.EndedAt != nil {
		t.Errorf("expected no end time, got %v", got.EndedAt)
	}

	ended := time.Now()
	sess.Outcome = "won"
	sess.Moves = 42
	sess.Rejected = 3
	sess.EndedAt = &ended
	if err := db.UpdateSession(sess); err != nil {
		t.Fatalf("UpdateSession failed: %v", err)
	}

	got, err = db.GetSession(sess.ID)
	if err != nil {
		t.Fatalf("GetSession failed: %v", err)
	}
	if got.Outcome != "won" || got.Moves != 42 || got.Rejected != 3 {
		t.Errorf("update not applied: %+v", got)
	}
	if got.EndedAt == nil || got.EndedAt.Unix() != ended.Unix() {
		t.Errorf("unexpected end time %v, want %v", got.EndedAt, ended)
	}
}

func TestGetSessionNotFound(t *testing.T) {
	db := newTestDB(t)

	if _, err := db.GetSession("missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
	if err := db.UpdateSession(&Session{ID: "missing", Outcome: "won"}); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound on update, got %v", err)
	}
}

func TestListSessions(t *testing.T) {
	db := newTestDB(t)

	base := time.Now().Add(-time.Hour)
	outcomes := []string{"won", "lost", "won", "quit", "in_progress"}
	for i, outcome := range outcomes {
		sess := &Session{
			Rows:      9,
			Cols:      9,
			Bombs:     10,
			Outcome:   outcome,
			CreatedAt: base.Add(time.Duration(i) * time.Minute),
		}
		if err := db.SaveSession(sess); err != nil {
			t.Fatalf("SaveSession failed: %v", err)
		}
	}

	all, err := db.ListSessions(SessionsQuery{Page: 1, PerPage: 10})
	if err != nil {
		t.Fatalf("ListSessions failed: %v", err)
	}
	if all.TotalCount != 5 || len(all.Sessions) != 5 {
		t.Fatalf("expected 5 sessions, got %d/%d", all.TotalCount, len(all.Sessions))
	}
	if all.Sessions[0].Outcome != "in_progress" {
		t.Errorf("expected newest first, got %s", all.Sessions[0].Outcome)
	}

	won, err := db.ListSessions(SessionsQuery{Outcome: "won"})
	if err != nil {
		t.Fatalf("ListSessions failed: %v", err)
	}
	if won.TotalCount != 2 {
		t.Errorf("expected 2 won sessions, got %d", won.TotalCount)
	}
	if won.PerPage != 50 || won.Page != 1 {
		t.Errorf("expected default pagination, got page %d per %d", won.Page, won.PerPage)
	}

	page, err := db.ListSessions(SessionsQuery{Page: 2, PerPage: 2})
	if err != nil {
		t.Fatalf("ListSessions failed: %v", err)
	}
	if len(page.Sessions) != 2 || page.TotalPages != 3 {
		t.Errorf("expected 2 sessions on page 2 of 3, got %d of %d", len(page.Sessions), page.TotalPages)
	}

	empty, err := db.ListSessions(SessionsQuery{Outcome: "nothing"})
	if err != nil {
		t.Fatalf("ListSessions failed: %v", err)
	}
	if empty.Sessions == nil || len(empty.Sessions) != 0 {
		t.Errorf("expected empty non-nil slice, got %v", empty.Sessions)
	}
}

func TestStats(t *testing.T) {
	db := newTestDB(t)

	st, err := db.Stats()
	if err != nil {
		t.Fatalf("Stats failed: %v", err)
	}
	if st.TotalSessions != 0 || !st.WinRate.IsZero() || !st.BombDensity.IsZero() {
		t.Errorf("expected empty stats, got %+v", st)
	}

	sessions := []*Session{
		{Rows: 10, Cols: 10, Bombs: 10, Outcome: "won", Moves: 20},
		{Rows: 10, Cols: 10, Bombs: 30, Outcome: "lost", Moves: 5},
		{Rows: 10, Cols: 10, Bombs: 20, Outcome: "quit", Moves: 1},
		{Rows: 10, Cols: 10, Bombs: 20, Outcome: "in_progress"},
	}
	for _, sess := range sessions {
		if err := db.SaveSession(sess); err != nil {
			t.Fatalf("SaveSession failed: %v", err)
		}
	}

	st, err = db.Stats()
	if err != nil {
		t.Fatalf("Stats failed: %v", err)
	}
	if st.TotalSessions != 4 || st.Won != 1 || st.Lost != 1 || st.Quit != 1 || st.InProgress != 1 {
		t.Errorf("unexpected counts %+v", st)
	}
	if st.TotalMoves != 26 {
		t.Errorf("expected 26 moves, got %d", st.TotalMoves)
	}
	if st.WinRate.String() != "0.3333" {
		t.Errorf("expected win rate 0.3333, got %s", st.WinRate)
	}
	if st.BombDensity.String() != "0.2" {
		t.Errorf("expected bomb density 0.2, got %s", st.BombDensity)
	}
}

func TestHashSeed(t *testing.T) {
	if HashSeed("") != "" {
		t.Error("expected empty hash for empty seed")
	}
	h := HashSeed("abc")
	if len(h) != 64 || h != HashSeed("abc") || h == HashSeed("abd") {
		t.Errorf("unexpected hash %s", h)
	}
}
