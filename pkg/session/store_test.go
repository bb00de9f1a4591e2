package session

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()

	backend, err := NewFileBackend(t.TempDir())
	if err != nil {
		t.Fatalf("NewFileBackend() error = %v", err)
	}
	t.Cleanup(func() { _ = backend.Close() })

	return NewStore(context.Background(), backend)
}

func TestSaveSessionEmptyBufferIsNoop(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	rec, err := store.SaveSession(ctx)
	if err != nil {
		t.Fatalf("SaveSession() error = %v", err)
	}
	if rec != nil {
		t.Errorf("expected nil record for empty buffer, got %+v", rec)
	}
	if got := len(store.Records()); got != 0 {
		t.Errorf("session list length = %d, want 0", got)
	}
}

func TestSaveSessionBelowThresholdIsNoop(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	// A lone user turn is not a complete exchange.
	store.AppendTurn(RoleUser, "hello")

	rec, err := store.SaveSession(ctx)
	if err != nil {
		t.Fatalf("SaveSession() error = %v", err)
	}
	if rec != nil {
		t.Errorf("expected nil record below flush threshold, got %+v", rec)
	}
	if got := len(store.Turns()); got != 1 {
		t.Errorf("buffer length = %d, want 1 (buffer must survive a no-op save)", got)
	}
}

func TestSaveSessionFlushesOneExchange(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	store.AppendTurn(RoleUser, "I feel anxious")
	store.AppendTurn(RoleModel, "That sounds hard...")

	rec, err := store.SaveSession(ctx)
	if err != nil {
		t.Fatalf("SaveSession() error = %v", err)
	}
	if rec == nil {
		t.Fatal("SaveSession() returned nil record")
	}

	records := store.Records()
	if len(records) != 1 {
		t.Fatalf("session list length = %d, want 1", len(records))
	}

	got := records[0]
	if got.ID != rec.ID {
		t.Errorf("record at index 0 has ID %d, want %d", got.ID, rec.ID)
	}
	if got.Preview != "I feel anxious" {
		t.Errorf("preview = %q, want first user turn", got.Preview)
	}
	if len(got.Messages) != 2 {
		t.Fatalf("messages length = %d, want 2", len(got.Messages))
	}
	if got.Messages[0].Role != RoleUser || got.Messages[0].Content != "I feel anxious" {
		t.Errorf("messages[0] = %+v, want the user turn", got.Messages[0])
	}
	if got.Messages[1].Role != RoleModel || got.Messages[1].Content != "That sounds hard..." {
		t.Errorf("messages[1] = %+v, want the model turn", got.Messages[1])
	}

	if got := len(store.Turns()); got != 0 {
		t.Errorf("buffer length after save = %d, want 0", got)
	}
}

func TestSaveSessionNewestFirst(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	store.AppendTurn(RoleUser, "first")
	store.AppendTurn(RoleModel, "reply")
	if _, err := store.SaveSession(ctx); err != nil {
		t.Fatalf("SaveSession() error = %v", err)
	}

	store.AppendTurn(RoleUser, "second")
	store.AppendTurn(RoleModel, "reply")
	if _, err := store.SaveSession(ctx); err != nil {
		t.Fatalf("SaveSession() error = %v", err)
	}

	records := store.Records()
	if len(records) != 2 {
		t.Fatalf("session list length = %d, want 2", len(records))
	}
	if records[0].Preview != "second" {
		t.Errorf("records[0].Preview = %q, want newest record first", records[0].Preview)
	}
	if records[1].Preview != "first" {
		t.Errorf("records[1].Preview = %q, want oldest record last", records[1].Preview)
	}
}

func TestSaveSessionUniqueIDsWithinSameMillisecond(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	// Freeze the clock so consecutive saves would collide without bumping.
	fixed := time.Date(2026, 3, 14, 9, 26, 53, 0, time.UTC)
	store.now = func() time.Time { return fixed }

	for i := 0; i < 3; i++ {
		store.AppendTurn(RoleUser, "hi")
		store.AppendTurn(RoleModel, "hello")
		if _, err := store.SaveSession(ctx); err != nil {
			t.Fatalf("SaveSession() error = %v", err)
		}
	}

	seen := make(map[int64]bool)
	for _, rec := range store.Records() {
		if seen[rec.ID] {
			t.Fatalf("duplicate record ID %d", rec.ID)
		}
		seen[rec.ID] = true
	}
}

func TestLoadSessionReplaysStoredTurns(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	store.AppendTurn(RoleUser, "remember me")
	store.AppendTurn(RoleModel, "I will")
	rec, err := store.SaveSession(ctx)
	if err != nil {
		t.Fatalf("SaveSession() error = %v", err)
	}

	store.AppendTurn(RoleUser, "something else")

	turns := store.LoadSession(rec.ID)
	if len(turns) != 2 {
		t.Fatalf("LoadSession() returned %d turns, want 2", len(turns))
	}
	if turns[0].Content != "remember me" {
		t.Errorf("turns[0].Content = %q", turns[0].Content)
	}

	// Buffer is replaced by the replay.
	buf := store.Turns()
	if len(buf) != 2 || buf[1].Content != "I will" {
		t.Errorf("buffer after load = %+v, want the stored turns", buf)
	}

	// Loading does not mutate the stored record.
	records := store.Records()
	if len(records) != 1 || len(records[0].Messages) != 2 {
		t.Errorf("stored record mutated by load: %+v", records)
	}
}

func TestLoadSessionUnknownIDIsNoop(t *testing.T) {
	store := newTestStore(t)

	store.AppendTurn(RoleUser, "keep this")

	if turns := store.LoadSession(42); turns != nil {
		t.Errorf("LoadSession(42) = %+v, want nil", turns)
	}
	if got := store.Turns(); len(got) != 1 || got[0].Content != "keep this" {
		t.Errorf("buffer changed by unknown-id load: %+v", got)
	}
}

func TestDeleteSessionRemovesExactlyOne(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	var ids []int64
	for _, msg := range []string{"a", "b", "c"} {
		store.AppendTurn(RoleUser, msg)
		store.AppendTurn(RoleModel, "ok")
		rec, err := store.SaveSession(ctx)
		if err != nil {
			t.Fatalf("SaveSession() error = %v", err)
		}
		ids = append(ids, rec.ID)
	}

	// Delete the middle record ("b", stored at index 1).
	if err := store.DeleteSession(ctx, ids[1]); err != nil {
		t.Fatalf("DeleteSession() error = %v", err)
	}

	records := store.Records()
	if len(records) != 2 {
		t.Fatalf("session list length = %d, want 2", len(records))
	}
	if records[0].Preview != "c" || records[1].Preview != "a" {
		t.Errorf("remaining records out of order: %q, %q", records[0].Preview, records[1].Preview)
	}
}

func TestDeleteSessionAbsentIDLeavesListUnchanged(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	store.AppendTurn(RoleUser, "hi")
	store.AppendTurn(RoleModel, "hello")
	if _, err := store.SaveSession(ctx); err != nil {
		t.Fatalf("SaveSession() error = %v", err)
	}

	if err := store.DeleteSession(ctx, 99999); err != nil {
		t.Fatalf("DeleteSession() error = %v", err)
	}
	if got := len(store.Records()); got != 1 {
		t.Errorf("session list length = %d, want 1", got)
	}
}

func TestClearAll(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	store.AppendTurn(RoleUser, "hi")
	store.AppendTurn(RoleModel, "hello")
	if _, err := store.SaveSession(ctx); err != nil {
		t.Fatalf("SaveSession() error = %v", err)
	}

	if err := store.ClearAll(ctx); err != nil {
		t.Fatalf("ClearAll() error = %v", err)
	}
	if got := len(store.Records()); got != 0 {
		t.Errorf("session list length = %d, want 0", got)
	}
}

func TestRoundTripSurvivesRestart(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()

	backend, err := NewFileBackend(dir)
	if err != nil {
		t.Fatalf("NewFileBackend() error = %v", err)
	}

	store := NewStore(ctx, backend)
	store.AppendTurn(RoleUser, "persist me")
	store.AppendTurn(RoleModel, "done")
	saved, err := store.SaveSession(ctx)
	if err != nil {
		t.Fatalf("SaveSession() error = %v", err)
	}
	if err := backend.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	// Simulate a restart: a fresh backend and store over the same directory.
	backend2, err := NewFileBackend(dir)
	if err != nil {
		t.Fatalf("NewFileBackend() error = %v", err)
	}
	defer func() { _ = backend2.Close() }()

	store2 := NewStore(ctx, backend2)
	records := store2.Records()
	if len(records) != 1 {
		t.Fatalf("reloaded session list length = %d, want 1", len(records))
	}
	got := records[0]
	if got.ID != saved.ID || got.Date != saved.Date || got.Preview != saved.Preview {
		t.Errorf("reloaded record = %+v, want %+v", got, *saved)
	}
	if len(got.Messages) != 2 || got.Messages[0].Content != "persist me" {
		t.Errorf("reloaded messages = %+v", got.Messages)
	}
}

func TestAdaptiveUIFlagRoundTrip(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	if store.AdaptiveUI(ctx) {
		t.Error("adaptive UI should default to false")
	}

	if err := store.SetAdaptiveUI(ctx, true); err != nil {
		t.Fatalf("SetAdaptiveUI() error = %v", err)
	}
	if !store.AdaptiveUI(ctx) {
		t.Error("adaptive UI flag not persisted")
	}
}

// flakyBackend fails writes on demand while keeping reads working.
type flakyBackend struct {
	saveErr error
}

func (b *flakyBackend) LoadRecords(ctx context.Context) ([]Record, error) { return nil, nil }

func (b *flakyBackend) SaveRecords(ctx context.Context, records []Record) error {
	return b.saveErr
}

func (b *flakyBackend) LoadFlag(ctx context.Context, name string) (bool, error) {
	return false, nil
}

func (b *flakyBackend) SaveFlag(ctx context.Context, name string, value bool) error {
	return b.saveErr
}

func (b *flakyBackend) Close() error { return nil }

func TestSaveSessionPersistFailureSurfacedOnce(t *testing.T) {
	backend := &flakyBackend{saveErr: errors.New("disk full")}
	store := NewStore(context.Background(), backend)
	ctx := context.Background()

	store.AppendTurn(RoleUser, "I feel anxious")
	store.AppendTurn(RoleModel, "That sounds hard...")

	rec, err := store.SaveSession(ctx)
	if err == nil {
		t.Fatal("SaveSession() error = nil, want persist failure surfaced")
	}
	if !strings.Contains(err.Error(), "disk full") {
		t.Errorf("error = %v, want the backend failure wrapped", err)
	}
	// The record comes back alongside the error so the caller can still
	// show it; the in-memory list already holds it.
	if rec == nil {
		t.Fatal("SaveSession() returned nil record with the persist error")
	}

	records := store.Records()
	if len(records) != 1 || records[0].ID != rec.ID {
		t.Fatalf("in-memory list after failed persist = %+v, want the new record", records)
	}
	if records[0].Preview != "I feel anxious" {
		t.Errorf("preview = %q", records[0].Preview)
	}
	if got := len(store.Turns()); got != 0 {
		t.Errorf("buffer length after failed persist = %d, want 0", got)
	}
}

func TestDeleteSessionPersistFailureKeepsListConsistent(t *testing.T) {
	backend := &flakyBackend{}
	store := NewStore(context.Background(), backend)
	ctx := context.Background()

	store.AppendTurn(RoleUser, "hi")
	store.AppendTurn(RoleModel, "hello")
	rec, err := store.SaveSession(ctx)
	if err != nil {
		t.Fatalf("SaveSession() error = %v", err)
	}

	backend.saveErr = errors.New("write refused")

	if err := store.DeleteSession(ctx, rec.ID); err == nil {
		t.Fatal("DeleteSession() error = nil, want persist failure surfaced")
	}
	// The deletion already happened in memory; the next mutation retries
	// the write with the current list.
	if got := len(store.Records()); got != 0 {
		t.Errorf("session list length after failed delete = %d, want 0", got)
	}
}

func TestClearAllPersistFailureSurfaced(t *testing.T) {
	backend := &flakyBackend{}
	store := NewStore(context.Background(), backend)
	ctx := context.Background()

	store.AppendTurn(RoleUser, "hi")
	store.AppendTurn(RoleModel, "hello")
	if _, err := store.SaveSession(ctx); err != nil {
		t.Fatalf("SaveSession() error = %v", err)
	}

	backend.saveErr = errors.New("write refused")

	if err := store.ClearAll(ctx); err == nil {
		t.Fatal("ClearAll() error = nil, want persist failure surfaced")
	}
	if got := len(store.Records()); got != 0 {
		t.Errorf("session list length after failed clear = %d, want 0", got)
	}
}

func TestDropLastTurn(t *testing.T) {
	store := newTestStore(t)

	store.AppendTurn(RoleUser, "first")
	store.AppendTurn(RoleUser, "second")
	store.DropLastTurn()

	got := store.Turns()
	if len(got) != 1 || got[0].Content != "first" {
		t.Errorf("buffer after drop = %+v", got)
	}

	// Dropping from an empty buffer is a no-op.
	store.DropLastTurn()
	store.DropLastTurn()
	if got := len(store.Turns()); got != 0 {
		t.Errorf("buffer length = %d, want 0", got)
	}
}
