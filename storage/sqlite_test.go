package storage

import (
	"context"
	"path/filepath"
	"testing"
	"time"
)

func TestSqliteAppendAndHistory(t *testing.T) {
	store, err := NewSqliteInMemory()
	if err != nil {
		t.Fatalf("Failed to create store: %v", err)
	}
	defer store.Close()

	ctx := context.Background()

	if err := store.AppendTurn(ctx, "conv-1", UserTurn("Hello")); err != nil {
		t.Fatalf("AppendTurn failed: %v", err)
	}
	if err := store.AppendTurn(ctx, "conv-1", AssistantTurn("Hi there")); err != nil {
		t.Fatalf("AppendTurn failed: %v", err)
	}

	turns, err := store.History(ctx, "conv-1", Window{})
	if err != nil {
		t.Fatalf("History failed: %v", err)
	}

	if len(turns) != 2 {
		t.Fatalf("expected 2 turns, got %d", len(turns))
	}
	if turns[0].Role != RoleUser || turns[0].Content != "Hello" {
		t.Errorf("expected {user, Hello}, got {%s, %s}", turns[0].Role, turns[0].Content)
	}
	if turns[1].Role != RoleAssistant || turns[1].Content != "Hi there" {
		t.Errorf("expected {assistant, Hi there}, got {%s, %s}", turns[1].Role, turns[1].Content)
	}
}

func TestSqliteHistoryPreservesAppendOrder(t *testing.T) {
	store, err := NewSqliteInMemory()
	if err != nil {
		t.Fatalf("Failed to create store: %v", err)
	}
	defer store.Close()

	ctx := context.Background()

	contents := []string{"one", "two", "three", "four", "five"}
	for _, c := range contents {
		if err := store.AppendTurn(ctx, "conv-1", UserTurn(c)); err != nil {
			t.Fatalf("AppendTurn failed: %v", err)
		}
	}

	turns, err := store.History(ctx, "conv-1", Window{})
	if err != nil {
		t.Fatalf("History failed: %v", err)
	}
	if len(turns) != len(contents) {
		t.Fatalf("expected %d turns, got %d", len(contents), len(turns))
	}
	for i, c := range contents {
		if turns[i].Content != c {
			t.Errorf("turn %d: expected %q, got %q", i, c, turns[i].Content)
		}
	}
}

func TestSqliteHistoryNonexistentConversation(t *testing.T) {
	store, err := NewSqliteInMemory()
	if err != nil {
		t.Fatalf("Failed to create store: %v", err)
	}
	defer store.Close()

	turns, err := store.History(context.Background(), "nonexistent", Window{})
	if err != nil {
		t.Fatalf("History failed: %v", err)
	}
	if len(turns) != 0 {
		t.Errorf("expected empty slice, got %d turns", len(turns))
	}
}

func TestSqliteHistoryMessageLimit(t *testing.T) {
	store, err := NewSqliteInMemory()
	if err != nil {
		t.Fatalf("Failed to create store: %v", err)
	}
	defer store.Close()

	ctx := context.Background()

	for _, c := range []string{"one", "two", "three", "four"} {
		if err := store.AppendTurn(ctx, "conv-1", UserTurn(c)); err != nil {
			t.Fatalf("AppendTurn failed: %v", err)
		}
	}

	turns, err := store.History(ctx, "conv-1", Window{MessageLimit: 2})
	if err != nil {
		t.Fatalf("History failed: %v", err)
	}
	if len(turns) != 2 {
		t.Fatalf("expected 2 turns, got %d", len(turns))
	}
	// Limit keeps the most recent turns, still in append order.
	if turns[0].Content != "three" || turns[1].Content != "four" {
		t.Errorf("expected [three four], got [%s %s]", turns[0].Content, turns[1].Content)
	}
}

func TestSqliteHistoryTimeLimit(t *testing.T) {
	store, err := NewSqliteInMemory()
	if err != nil {
		t.Fatalf("Failed to create store: %v", err)
	}
	defer store.Close()

	ctx := context.Background()

	old := Turn{Role: RoleUser, Content: "stale", CreatedAt: time.Now().Add(-3 * time.Hour)}
	if err := store.AppendTurn(ctx, "conv-1", old); err != nil {
		t.Fatalf("AppendTurn failed: %v", err)
	}
	if err := store.AppendTurn(ctx, "conv-1", UserTurn("fresh")); err != nil {
		t.Fatalf("AppendTurn failed: %v", err)
	}

	turns, err := store.History(ctx, "conv-1", Window{TimeLimit: time.Hour})
	if err != nil {
		t.Fatalf("History failed: %v", err)
	}
	if len(turns) != 1 {
		t.Fatalf("expected 1 turn, got %d", len(turns))
	}
	if turns[0].Content != "fresh" {
		t.Errorf("expected 'fresh', got %q", turns[0].Content)
	}
}

func TestSqliteMetadataRoundTrip(t *testing.T) {
	store, err := NewSqliteInMemory()
	if err != nil {
		t.Fatalf("Failed to create store: %v", err)
	}
	defer store.Close()

	ctx := context.Background()

	doc := Metadata{"name": "Alice", "score": float64(42), "tags": []any{"a", "b"}}
	if err := store.SetMetadata(ctx, "conv-1", doc); err != nil {
		t.Fatalf("SetMetadata failed: %v", err)
	}

	got, err := store.GetMetadata(ctx, "conv-1")
	if err != nil {
		t.Fatalf("GetMetadata failed: %v", err)
	}
	if got["name"] != "Alice" {
		t.Errorf("expected name 'Alice', got %v", got["name"])
	}
	if got["score"] != float64(42) {
		t.Errorf("expected score 42, got %v", got["score"])
	}
}

func TestSqliteMetadataOverwriteReplacesDocument(t *testing.T) {
	store, err := NewSqliteInMemory()
	if err != nil {
		t.Fatalf("Failed to create store: %v", err)
	}
	defer store.Close()

	ctx := context.Background()

	if err := store.SetMetadata(ctx, "conv-1", Metadata{"a": "1", "b": "2"}); err != nil {
		t.Fatalf("SetMetadata failed: %v", err)
	}
	if err := store.SetMetadata(ctx, "conv-1", Metadata{"c": "3"}); err != nil {
		t.Fatalf("SetMetadata failed: %v", err)
	}

	got, err := store.GetMetadata(ctx, "conv-1")
	if err != nil {
		t.Fatalf("GetMetadata failed: %v", err)
	}
	if len(got) != 1 {
		t.Errorf("expected replacement, not merge: got %v", got)
	}
	if got["c"] != "3" {
		t.Errorf("expected c=3, got %v", got["c"])
	}
}

func TestSqliteMetadataNeverSet(t *testing.T) {
	store, err := NewSqliteInMemory()
	if err != nil {
		t.Fatalf("Failed to create store: %v", err)
	}
	defer store.Close()

	got, err := store.GetMetadata(context.Background(), "untouched")
	if err != nil {
		t.Fatalf("GetMetadata failed: %v", err)
	}
	if got != nil {
		t.Errorf("expected nil metadata, got %v", got)
	}
}

func TestSqliteConversationIsolation(t *testing.T) {
	store, err := NewSqliteInMemory()
	if err != nil {
		t.Fatalf("Failed to create store: %v", err)
	}
	defer store.Close()

	ctx := context.Background()

	if err := store.AppendTurn(ctx, "conv-a", UserTurn("for a")); err != nil {
		t.Fatalf("AppendTurn failed: %v", err)
	}
	if err := store.SetMetadata(ctx, "conv-a", Metadata{"owner": "a"}); err != nil {
		t.Fatalf("SetMetadata failed: %v", err)
	}

	turns, err := store.History(ctx, "conv-b", Window{})
	if err != nil {
		t.Fatalf("History failed: %v", err)
	}
	if len(turns) != 0 {
		t.Errorf("conv-b should have no turns, got %d", len(turns))
	}

	meta, err := store.GetMetadata(ctx, "conv-b")
	if err != nil {
		t.Fatalf("GetMetadata failed: %v", err)
	}
	if meta != nil {
		t.Errorf("conv-b should have no metadata, got %v", meta)
	}
}

func TestSqliteDeleteConversation(t *testing.T) {
	store, err := NewSqliteInMemory()
	if err != nil {
		t.Fatalf("Failed to create store: %v", err)
	}
	defer store.Close()

	ctx := context.Background()

	if err := store.AppendTurn(ctx, "conv-1", UserTurn("Test")); err != nil {
		t.Fatalf("AppendTurn failed: %v", err)
	}
	if err := store.SetMetadata(ctx, "conv-1", Metadata{"k": "v"}); err != nil {
		t.Fatalf("SetMetadata failed: %v", err)
	}

	exists, err := store.Exists(ctx, "conv-1")
	if err != nil {
		t.Fatalf("Exists failed: %v", err)
	}
	if !exists {
		t.Error("expected conversation to exist")
	}

	if err := store.Delete(ctx, "conv-1"); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}

	exists, err = store.Exists(ctx, "conv-1")
	if err != nil {
		t.Fatalf("Exists failed: %v", err)
	}
	if exists {
		t.Error("expected conversation to not exist after deletion")
	}

	turns, err := store.History(ctx, "conv-1", Window{})
	if err != nil {
		t.Fatalf("History failed: %v", err)
	}
	if len(turns) != 0 {
		t.Errorf("expected no turns after deletion, got %d", len(turns))
	}

	meta, err := store.GetMetadata(ctx, "conv-1")
	if err != nil {
		t.Fatalf("GetMetadata failed: %v", err)
	}
	if meta != nil {
		t.Errorf("expected no metadata after deletion, got %v", meta)
	}
}

func TestSqliteList(t *testing.T) {
	store, err := NewSqliteInMemory()
	if err != nil {
		t.Fatalf("Failed to create store: %v", err)
	}
	defer store.Close()

	ctx := context.Background()

	if err := store.AppendTurn(ctx, "conv-1", UserTurn("Test")); err != nil {
		t.Fatalf("AppendTurn failed: %v", err)
	}
	if err := store.AppendTurn(ctx, "conv-2", UserTurn("Test")); err != nil {
		t.Fatalf("AppendTurn failed: %v", err)
	}

	ids, err := store.List(ctx)
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(ids) != 2 {
		t.Errorf("expected 2 conversations, got %d", len(ids))
	}
}

func TestSqliteDurabilityAcrossReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "convo.db")
	ctx := context.Background()

	store, err := OpenSqlite(path)
	if err != nil {
		t.Fatalf("OpenSqlite failed: %v", err)
	}
	if err := store.AppendTurn(ctx, "conv-1", UserTurn("survives")); err != nil {
		t.Fatalf("AppendTurn failed: %v", err)
	}
	if err := store.SetMetadata(ctx, "conv-1", Metadata{"k": "v"}); err != nil {
		t.Fatalf("SetMetadata failed: %v", err)
	}
	if err := store.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	reopened, err := OpenSqlite(path)
	if err != nil {
		t.Fatalf("OpenSqlite failed on reopen: %v", err)
	}
	defer reopened.Close()

	turns, err := reopened.History(ctx, "conv-1", Window{})
	if err != nil {
		t.Fatalf("History failed: %v", err)
	}
	if len(turns) != 1 || turns[0].Content != "survives" {
		t.Errorf("expected persisted turn, got %v", turns)
	}

	meta, err := reopened.GetMetadata(ctx, "conv-1")
	if err != nil {
		t.Fatalf("GetMetadata failed: %v", err)
	}
	if meta["k"] != "v" {
		t.Errorf("expected persisted metadata, got %v", meta)
	}
}
