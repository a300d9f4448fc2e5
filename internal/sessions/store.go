// Package sessions implements named snapshots of the desired audio state:
// save, restore, and the single-current-session invariant. Restoring never
// talks to the backend directly — snapshots are replayed through the
// controller so they take the same validation and ordering path as any
// other intent.
package sessions

import (
	"encoding/json"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/midideck/midideck-go/internal/models"
)

const (
	sessionsFileName = "sessions.json"
	debounceDelay    = 500 * time.Millisecond
)

// Store persists the session list.
type Store interface {
	// Load reads all sessions. A missing file yields an empty list.
	Load() ([]models.Session, error)

	// Save persists the sessions. Implementations may debounce rapid saves.
	Save(sessions []models.Session) error

	// Flush forces an immediate write of any pending state.
	Flush() error

	// Path returns the file path used by this store.
	Path() string
}

// JSONStore is an atomic JSON file store with debounced writes.
type JSONStore struct {
	mu      sync.Mutex
	path    string
	timer   *time.Timer
	pending []models.Session
}

// NewJSONStore creates a session store in the given config directory.
func NewJSONStore(configDir string) *JSONStore {
	return &JSONStore{path: filepath.Join(configDir, sessionsFileName)}
}

// Path returns the file path used by this store.
func (s *JSONStore) Path() string { return s.path }

// Load reads the session list from disk.
func (s *JSONStore) Load() ([]models.Session, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, err
	}
	var sessions []models.Session
	if err := json.Unmarshal(data, &sessions); err != nil {
		slog.Warn("sessions: corrupt store, starting empty", "path", s.path, "err", err)
		return nil, nil
	}
	return sessions, nil
}

// Save schedules a debounced write of the session list to disk.
func (s *JSONStore) Save(sessions []models.Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.pending = append([]models.Session(nil), sessions...)

	if s.timer != nil {
		s.timer.Stop()
	}
	s.timer = time.AfterFunc(debounceDelay, func() {
		s.mu.Lock()
		pending := s.pending
		s.mu.Unlock()
		if pending != nil {
			if err := s.writeAtomic(pending); err != nil {
				slog.Error("sessions: failed to write store", "path", s.path, "err", err)
			}
		}
	})
	return nil
}

// Flush forces an immediate write of any pending session list.
func (s *JSONStore) Flush() error {
	s.mu.Lock()
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
	pending := s.pending
	s.mu.Unlock()
	if pending == nil {
		return nil
	}
	return s.writeAtomic(pending)
}

func (s *JSONStore) writeAtomic(sessions []models.Session) error {
	data, err := json.MarshalIndent(sessions, "", "  ")
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(s.path), 0755); err != nil {
		return err
	}
	// Write to temp file, then rename (atomic on Linux): a concurrent
	// reader sees either the full new snapshot or the prior one.
	tmpPath := s.path + ".tmp"
	if err := os.WriteFile(tmpPath, data, 0644); err != nil {
		return err
	}
	return os.Rename(tmpPath, s.path)
}

// MemStore is an in-memory Store for tests.
type MemStore struct {
	mu       sync.Mutex
	sessions []models.Session
}

// NewMemStore returns an empty in-memory store.
func NewMemStore() *MemStore { return &MemStore{} }

func (m *MemStore) Load() ([]models.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]models.Session(nil), m.sessions...), nil
}

func (m *MemStore) Save(sessions []models.Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sessions = append([]models.Session(nil), sessions...)
	return nil
}

func (m *MemStore) Flush() error { return nil }

func (m *MemStore) Path() string { return ":memory:" }

var (
	_ Store = (*JSONStore)(nil)
	_ Store = (*MemStore)(nil)
)
