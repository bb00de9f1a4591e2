package session

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/mindbridge-dev/mindbridge/pkg/observability"
)

// minFlushTurns is the save threshold: a session is persisted only when the
// buffer holds at least one complete user+model exchange.
const minFlushTurns = 2

// defaultPreview is used when no user turn exists to derive a preview from.
const defaultPreview = "New Chat"

// dateLayout formats the display timestamp on saved records.
const dateLayout = "2006-01-02 15:04:05"

// Store owns the active conversation buffer and the persisted session list.
// All mutations are synchronous; the full list is rewritten to the backend
// after every mutation. Store is safe for concurrent use.
type Store struct {
	backend Backend
	mu      sync.Mutex
	buffer  []Turn
	records []Record

	// now is the clock used for record IDs and dates, injectable for tests.
	now func() time.Time
}

// NewStore creates a store backed by the given backend and loads the
// persisted session list. A failed or malformed load degrades to an empty
// list rather than blocking the chat feature.
func NewStore(ctx context.Context, backend Backend) *Store {
	records, err := backend.LoadRecords(ctx)
	if err != nil || records == nil {
		records = []Record{}
	}

	return &Store{
		backend: backend,
		buffer:  []Turn{},
		records: records,
		now:     time.Now,
	}
}

// AppendTurn appends a turn to the active conversation buffer.
func (s *Store) AppendTurn(role, content string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.buffer = append(s.buffer, Turn{Role: role, Content: content})
}

// DropLastTurn removes the most recent buffered turn, if any.
// Used to roll back a user turn whose relay call never completed,
// when the caller decides not to keep it for retry.
func (s *Store) DropLastTurn() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.buffer) > 0 {
		s.buffer = s.buffer[:len(s.buffer)-1]
	}
}

// Turns returns a copy of the active conversation buffer.
func (s *Store) Turns() []Turn {
	s.mu.Lock()
	defer s.mu.Unlock()

	turns := make([]Turn, len(s.buffer))
	copy(turns, s.buffer)
	return turns
}

// SaveSession flushes the conversation buffer into the session list.
// Buffers with fewer than one complete user+model exchange are discarded as
// a no-op. The new record is prepended (newest first), the whole list is
// persisted, and the buffer is cleared. A persist failure is surfaced once
// via the returned error; the in-memory list stays consistent so the next
// mutation retries the write.
func (s *Store) SaveSession(ctx context.Context) (*Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.buffer) < minFlushTurns {
		return nil, nil
	}

	messages := make([]Turn, len(s.buffer))
	copy(messages, s.buffer)

	now := s.now()
	rec := Record{
		ID:       s.nextID(now),
		Date:     now.Format(dateLayout),
		Messages: messages,
		Preview:  derivePreview(messages),
	}

	s.records = append([]Record{rec}, s.records...)
	s.buffer = []Turn{}
	observability.RecordSessionOp("save")

	if err := s.backend.SaveRecords(ctx, s.records); err != nil {
		return &rec, fmt.Errorf("persist sessions: %w", err)
	}

	return &rec, nil
}

// LoadSession replaces the conversation buffer with the stored turns of the
// record matching id and returns them. Loading does not mutate the stored
// record. An unknown id is a silent no-op returning nil.
func (s *Store) LoadSession(id int64) []Turn {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, rec := range s.records {
		if rec.ID != id {
			continue
		}

		s.buffer = make([]Turn, len(rec.Messages))
		copy(s.buffer, rec.Messages)
		observability.RecordSessionOp("load")

		turns := make([]Turn, len(rec.Messages))
		copy(turns, rec.Messages)
		return turns
	}

	return nil
}

// DeleteSession removes the record matching id, preserving the relative
// order of the remainder, and persists the updated list. An absent id leaves
// the list and the backend untouched.
func (s *Store) DeleteSession(ctx context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	kept := s.records[:0:0]
	for _, rec := range s.records {
		if rec.ID != id {
			kept = append(kept, rec)
		}
	}

	if len(kept) == len(s.records) {
		return nil
	}

	s.records = kept
	observability.RecordSessionOp("delete")
	if err := s.backend.SaveRecords(ctx, s.records); err != nil {
		return fmt.Errorf("persist sessions: %w", err)
	}

	return nil
}

// ClearAll empties the session list and persists the empty list.
func (s *Store) ClearAll(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.records = []Record{}
	observability.RecordSessionOp("clear")
	if err := s.backend.SaveRecords(ctx, s.records); err != nil {
		return fmt.Errorf("persist sessions: %w", err)
	}

	return nil
}

// Records returns a copy of the persisted session list, newest first.
func (s *Store) Records() []Record {
	s.mu.Lock()
	defer s.mu.Unlock()

	records := make([]Record, len(s.records))
	copy(records, s.records)
	return records
}

// AdaptiveUI reports whether the emotion-adaptive UI flag is set.
// Storage failures fail open to false.
func (s *Store) AdaptiveUI(ctx context.Context) bool {
	enabled, err := s.backend.LoadFlag(ctx, FlagAdaptiveUI)
	if err != nil {
		return false
	}
	return enabled
}

// SetAdaptiveUI stores the emotion-adaptive UI flag.
func (s *Store) SetAdaptiveUI(ctx context.Context, enabled bool) error {
	return s.backend.SaveFlag(ctx, FlagAdaptiveUI, enabled)
}

// Close releases the underlying backend.
func (s *Store) Close() error {
	return s.backend.Close()
}

// nextID derives a unique record ID from the wall clock. Two saves within
// the same millisecond collide, so the ID is bumped past any existing one.
func (s *Store) nextID(now time.Time) int64 {
	id := now.UnixMilli()
	for _, rec := range s.records {
		if rec.ID >= id {
			id = rec.ID + 1
		}
	}
	return id
}

// derivePreview summarizes a saved session by its first user turn.
func derivePreview(messages []Turn) string {
	for _, t := range messages {
		if t.Role == RoleUser && strings.TrimSpace(t.Content) != "" {
			return t.Content
		}
	}
	return defaultPreview
}
