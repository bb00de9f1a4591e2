package session

import (
	"context"
	"errors"
)

// ErrStorageClosed is returned when operating on a closed storage backend.
var ErrStorageClosed = errors.New("storage backend is closed")

// FlagAdaptiveUI is the settings slot for the emotion-adaptive UI toggle.
const FlagAdaptiveUI = "adaptive_ui"

// Backend abstracts durable storage for the session list and settings flags.
// The record list is a single named slot: it is read once at startup and
// rewritten wholesale after every mutation, never incrementally.
// Implementations must be safe for concurrent use.
type Backend interface {
	// LoadRecords retrieves the stored session list, newest first.
	// Malformed stored content yields an empty list, not an error.
	LoadRecords(ctx context.Context) ([]Record, error)

	// SaveRecords replaces the stored session list.
	SaveRecords(ctx context.Context, records []Record) error

	// LoadFlag retrieves a boolean settings flag. Missing flags are false.
	LoadFlag(ctx context.Context, name string) (bool, error)

	// SaveFlag stores a boolean settings flag.
	SaveFlag(ctx context.Context, name string, value bool) error

	// Close releases any resources held by the backend.
	Close() error
}
