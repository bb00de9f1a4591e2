package session

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// FileBackend implements Backend using JSON files.
// Storage layout:
//
//	~/.mindbridge/
//	  ├── sessions.json   # full session list, rewritten on every mutation
//	  └── settings.json   # boolean settings flags
type FileBackend struct {
	baseDir string
	mu      sync.RWMutex
	closed  bool
}

// NewFileBackend creates a new file-based storage backend.
// If baseDir is empty, uses ~/.mindbridge.
func NewFileBackend(baseDir string) (*FileBackend, error) {
	if baseDir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("get home directory: %w", err)
		}
		baseDir = filepath.Join(home, ".mindbridge")
	}

	if err := os.MkdirAll(baseDir, 0700); err != nil {
		return nil, fmt.Errorf("create base directory: %w", err)
	}

	return &FileBackend{
		baseDir: baseDir,
	}, nil
}

func (f *FileBackend) recordsPath() string {
	return filepath.Join(f.baseDir, "sessions.json")
}

func (f *FileBackend) settingsPath() string {
	return filepath.Join(f.baseDir, "settings.json")
}

// LoadRecords retrieves the stored session list.
// A missing or malformed file fails open to an empty list so a corrupt
// history never blocks the chat feature.
func (f *FileBackend) LoadRecords(ctx context.Context) ([]Record, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()

	if f.closed {
		return nil, ErrStorageClosed
	}

	data, err := os.ReadFile(f.recordsPath())
	if err != nil {
		if os.IsNotExist(err) {
			return []Record{}, nil
		}
		return nil, fmt.Errorf("read sessions file: %w", err)
	}

	var records []Record
	if err := json.Unmarshal(data, &records); err != nil {
		return []Record{}, nil
	}
	if records == nil {
		records = []Record{}
	}

	return records, nil
}

// SaveRecords replaces the stored session list.
func (f *FileBackend) SaveRecords(ctx context.Context, records []Record) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.closed {
		return ErrStorageClosed
	}

	if records == nil {
		records = []Record{}
	}

	data, err := json.MarshalIndent(records, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal sessions: %w", err)
	}

	if err := os.WriteFile(f.recordsPath(), data, 0600); err != nil {
		return fmt.Errorf("write sessions file: %w", err)
	}

	return nil
}

// LoadFlag retrieves a boolean settings flag.
// Missing or malformed settings fail open to false.
func (f *FileBackend) LoadFlag(ctx context.Context, name string) (bool, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()

	if f.closed {
		return false, ErrStorageClosed
	}

	flags, err := f.loadFlagsUnlocked()
	if err != nil {
		return false, err
	}

	return flags[name], nil
}

// SaveFlag stores a boolean settings flag.
func (f *FileBackend) SaveFlag(ctx context.Context, name string, value bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.closed {
		return ErrStorageClosed
	}

	flags, err := f.loadFlagsUnlocked()
	if err != nil {
		return err
	}

	flags[name] = value

	data, err := json.MarshalIndent(flags, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal settings: %w", err)
	}

	if err := os.WriteFile(f.settingsPath(), data, 0600); err != nil {
		return fmt.Errorf("write settings file: %w", err)
	}

	return nil
}

// Close releases any resources held by the backend.
func (f *FileBackend) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.closed = true
	return nil
}

// loadFlagsUnlocked reads the settings file. Caller must hold a lock.
func (f *FileBackend) loadFlagsUnlocked() (map[string]bool, error) {
	flags := make(map[string]bool)

	data, err := os.ReadFile(f.settingsPath())
	if err != nil {
		if os.IsNotExist(err) {
			return flags, nil
		}
		return nil, fmt.Errorf("read settings file: %w", err)
	}

	if err := json.Unmarshal(data, &flags); err != nil {
		return make(map[string]bool), nil
	}

	return flags, nil
}
