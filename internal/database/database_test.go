package database

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/pterm/pterm"

	"github.com/jnakagawa/loggy/internal/database/repositories"
	"github.com/jnakagawa/loggy/internal/sources"
)

func testDB(t *testing.T) (repositories.StatsRepository, repositories.UnmatchedRepository) {
	t.Helper()
	logger := pterm.DefaultLogger.WithLevel(pterm.LogLevelError)
	db, err := Open(filepath.Join(t.TempDir(), "loggy.db"), logger)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	return repositories.NewStatsRepository(db), repositories.NewUnmatchedRepository(db)
}

func TestStatsRepository_RecordAccumulates(t *testing.T) {
	stats, _ := testDB(t)
	now := time.Now().UTC().Truncate(time.Second)

	if err := stats.RecordCaptures("segment", 2, now); err != nil {
		t.Fatalf("First record failed: %v", err)
	}
	if err := stats.RecordCaptures("segment", 3, now.Add(time.Minute)); err != nil {
		t.Fatalf("Second record failed: %v", err)
	}

	all, err := stats.FindAll()
	if err != nil {
		t.Fatalf("FindAll failed: %v", err)
	}
	stat, ok := all["segment"]
	if !ok {
		t.Fatal("Expected a stat row for segment")
	}
	if stat.Captures != 5 {
		t.Errorf("Expected 5 captures, got %d", stat.Captures)
	}
	if stat.LastCapturedAt == nil || !stat.LastCapturedAt.After(now.Add(-time.Second)) {
		t.Errorf("Expected lastCapturedAt refreshed, got %v", stat.LastCapturedAt)
	}
}

func TestUnmatchedRepository_UpsertAndClear(t *testing.T) {
	_, unmatched := testDB(t)
	now := time.Now().UTC()

	entry := sources.UnmatchedEntry{
		Domain:     "example.com",
		ExampleURL: "https://example.com/v1/track",
		Count:      1,
		FirstSeen:  now,
		LastSeen:   now,
	}
	if err := unmatched.UpsertUnmatched(&entry); err != nil {
		t.Fatalf("Upsert failed: %v", err)
	}

	entry.Count = 4
	entry.LastSeen = now.Add(time.Minute)
	if err := unmatched.UpsertUnmatched(&entry); err != nil {
		t.Fatalf("Second upsert failed: %v", err)
	}

	rows, err := unmatched.FindAll()
	if err != nil {
		t.Fatalf("FindAll failed: %v", err)
	}
	if len(rows) != 1 {
		t.Fatalf("Expected 1 row, got %d", len(rows))
	}
	if rows[0].Count != 4 {
		t.Errorf("Expected merged count 4, got %d", rows[0].Count)
	}

	if err := unmatched.DeleteUnmatched("example.com"); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	rows, _ = unmatched.FindAll()
	if len(rows) != 0 {
		t.Errorf("Expected no rows after delete, got %d", len(rows))
	}
}

func TestUnmatchedRepository_ClearAll(t *testing.T) {
	_, unmatched := testDB(t)
	now := time.Now().UTC()

	for _, d := range []string{"a.com", "b.com"} {
		e := sources.UnmatchedEntry{Domain: d, Count: 1, FirstSeen: now, LastSeen: now}
		if err := unmatched.UpsertUnmatched(&e); err != nil {
			t.Fatal(err)
		}
	}

	if err := unmatched.ClearUnmatched(); err != nil {
		t.Fatalf("Clear failed: %v", err)
	}
	rows, _ := unmatched.FindAll()
	if len(rows) != 0 {
		t.Errorf("Expected empty table, got %d rows", len(rows))
	}
}
