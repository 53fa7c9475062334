package agg

import (
	"path/filepath"
	"testing"

	"github.com/victhorio/arkchat/agg/core"
)

func TestSQLiteStore_Memory(t *testing.T) {
	store, err := NewSQLiteStore(":memory:", nil)
	if err != nil {
		t.Fatalf("failed to create in-memory store: %v", err)
	}
	defer store.Close()

	t.Run("empty values for non-existent session", func(t *testing.T) {
		if tt := store.Usage("k1").TotalTokens; tt != 0 {
			t.Fatalf("expected 0 total tokens at beginning, got %d", tt)
		}
		n, err := store.Requests("k1")
		if err != nil || n != 0 {
			t.Fatalf("expected 0 requests at beginning, got %d (err=%v)", n, err)
		}
	})

	t.Run("basic record and retrieval", func(t *testing.T) {
		usage := core.Usage{
			PromptTokens:     1024,
			CompletionTokens: 256,
			TotalTokens:      1024 + 256,
		}

		if err := store.Record("k1", usage); err != nil {
			t.Fatalf("got err on Record: %v", err)
		}

		retrieved := store.Usage("k1")
		if tt := retrieved.TotalTokens; tt != 1024+256 {
			t.Fatalf("expected 1280 total tokens after initial entry, got %d", tt)
		}
		if pt := retrieved.PromptTokens; pt != 1024 {
			t.Fatalf("expected 1024 prompt tokens, got %d", pt)
		}
		if ct := retrieved.CompletionTokens; ct != 256 {
			t.Fatalf("expected 256 completion tokens, got %d", ct)
		}
	})

	t.Run("session isolation", func(t *testing.T) {
		if tt := store.Usage("k2").TotalTokens; tt != 0 {
			t.Fatalf("expected 0 total tokens for non-existent key, got %d", tt)
		}
	})

	t.Run("record accumulates correctly", func(t *testing.T) {
		usage := core.Usage{
			PromptTokens:     1280,
			CompletionTokens: 64,
			TotalTokens:      1280 + 64,
		}

		if err := store.Record("k1", usage); err != nil {
			t.Fatalf("got err on Record: %v", err)
		}

		// k1 was cached by the previous reads, the cache must follow the database
		retrieved := store.Usage("k1")
		if pt := retrieved.PromptTokens; pt != 1024+1280 {
			t.Fatalf("expected 2304 prompt tokens after adding more, got %d", pt)
		}
		if ct := retrieved.CompletionTokens; ct != 256+64 {
			t.Fatalf("expected 320 completion tokens after adding more, got %d", ct)
		}

		n, err := store.Requests("k1")
		if err != nil || n != 2 {
			t.Fatalf("expected 2 requests, got %d (err=%v)", n, err)
		}
	})

	t.Run("totals across sessions", func(t *testing.T) {
		if err := store.Record("k3", core.Usage{PromptTokens: 1, CompletionTokens: 1, TotalTokens: 2}); err != nil {
			t.Fatalf("got err on Record: %v", err)
		}

		totals, err := store.Totals()
		if err != nil {
			t.Fatalf("got err on Totals: %v", err)
		}
		if tt := totals.TotalTokens; tt != 1280+1344+2 {
			t.Fatalf("expected 2626 total tokens, got %d", tt)
		}
	})
}

func TestSQLiteStore_Persistence(t *testing.T) {
	tmpDir := t.TempDir()
	dbPath := filepath.Join(tmpDir, "nested", "usage.db")

	t.Run("create and populate", func(t *testing.T) {
		store, err := NewSQLiteStore(dbPath, nil)
		if err != nil {
			t.Fatalf("failed to create store: %v", err)
		}

		if err := store.Record("session1", core.Usage{PromptTokens: 100, CompletionTokens: 50, TotalTokens: 150}); err != nil {
			t.Fatalf("failed to record session1: %v", err)
		}
		if err := store.Record("session2", core.Usage{PromptTokens: 200, CompletionTokens: 100, TotalTokens: 300}); err != nil {
			t.Fatalf("failed to record session2: %v", err)
		}

		if err := store.Close(); err != nil {
			t.Fatalf("failed to close store: %v", err)
		}
	})

	t.Run("reopen and verify first time", func(t *testing.T) {
		store, err := NewSQLiteStore(dbPath, nil)
		if err != nil {
			t.Fatalf("failed to reopen store: %v", err)
		}

		usage1 := store.Usage("session1")
		if usage1.PromptTokens != 100 || usage1.CompletionTokens != 50 || usage1.TotalTokens != 150 {
			t.Fatalf("session1 usage incorrect: %+v", usage1)
		}

		usage2 := store.Usage("session2")
		if usage2.TotalTokens != 300 {
			t.Fatalf("session2 usage incorrect: %+v", usage2)
		}

		if err := store.Record("session1", core.Usage{PromptTokens: 50, CompletionTokens: 25, TotalTokens: 75}); err != nil {
			t.Fatalf("failed to record session1: %v", err)
		}

		if err := store.Close(); err != nil {
			t.Fatalf("failed to close store: %v", err)
		}
	})

	t.Run("reopen and verify second time", func(t *testing.T) {
		store, err := NewSQLiteStore(dbPath, nil)
		if err != nil {
			t.Fatalf("failed to reopen store second time: %v", err)
		}
		defer store.Close()

		usage1 := store.Usage("session1")
		if usage1.PromptTokens != 150 || usage1.CompletionTokens != 75 || usage1.TotalTokens != 225 {
			t.Fatalf("session1 usage didn't accumulate: %+v", usage1)
		}

		n, err := store.Requests("session1")
		if err != nil || n != 2 {
			t.Fatalf("expected 2 requests for session1, got %d (err=%v)", n, err)
		}
	})
}
