package sessions

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/midideck/midideck-go/internal/models"
)

// Controller is the slice of the reconciler the session manager needs:
// reading the current desired state and replaying a snapshot through the
// typed setters.
type Controller interface {
	State() models.State
	SetVolume(ctx context.Context, sinkID int, vol float64) (models.State, *models.AppError)
	SetMute(ctx context.Context, sinkID int, muted bool) (models.State, *models.AppError)
	SetConnection(ctx context.Context, sinkID, outputID int, connected bool) (models.State, *models.AppError)
	Resync(ctx context.Context) error
}

// Manager owns the session list. Exactly one session is current at any time
// once at least one session exists; Manager enforces that invariant on every
// mutation and treats a double-current as a fatal bug rather than data to
// repair.
type Manager struct {
	mu       sync.Mutex
	store    Store
	ctrl     Controller
	sessions []models.Session
	now      func() time.Time
}

// NewManager loads the session list from the store. A store written by an
// older build or edited by hand may carry zero or several current sessions;
// load repairs that once (first current wins) and logs it, since disk content
// is input, not program state.
func NewManager(store Store, ctrl Controller) (*Manager, error) {
	sessions, err := store.Load()
	if err != nil {
		return nil, fmt.Errorf("load sessions: %w", err)
	}

	currents := 0
	for i := range sessions {
		if sessions[i].IsCurrent {
			currents++
			if currents > 1 {
				sessions[i].IsCurrent = false
			}
		}
	}
	if currents > 1 {
		slog.Warn("sessions: store had multiple current sessions, kept first", "count", currents)
	}
	if currents == 0 && len(sessions) > 0 {
		sessions[0].IsCurrent = true
		slog.Warn("sessions: store had no current session, promoted first", "session", sessions[0].Name)
	}

	m := &Manager{store: store, ctrl: ctrl, sessions: sessions, now: time.Now}
	m.assertSingleCurrent()
	return m, nil
}

// List returns copies of all sessions, in stored order.
func (m *Manager) List() []models.Session {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]models.Session, len(m.sessions))
	for i := range m.sessions {
		out[i] = cloneSession(m.sessions[i])
	}
	return out
}

// Current returns the current session, if any session exists.
func (m *Manager) Current() (models.Session, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.sessions {
		if m.sessions[i].IsCurrent {
			return cloneSession(m.sessions[i]), true
		}
	}
	return models.Session{}, false
}

// Get returns the session with the given id.
func (m *Manager) Get(id string) (models.Session, *models.AppError) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s := m.find(id)
	if s == nil {
		return models.Session{}, models.ErrNotFound(fmt.Sprintf("session %q not found", id))
	}
	return cloneSession(*s), nil
}

// Create adds a new empty session. The first session ever created becomes
// current; later ones do not steal currency.
func (m *Manager) Create(name string) (models.Session, *models.AppError) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if name == "" {
		return models.Session{}, models.ErrBadRequest("session name must not be empty")
	}
	if m.findByName(name) != nil {
		return models.Session{}, models.ErrConflict(fmt.Sprintf("session %q already exists", name))
	}

	session := models.Session{
		ID:        uuid.NewString(),
		Name:      name,
		IsCurrent: len(m.sessions) == 0,
	}
	m.sessions = append(m.sessions, session)
	m.assertSingleCurrent()
	m.persist()
	slog.Info("sessions: created", "session", name, "current", session.IsCurrent)
	return cloneSession(session), nil
}

// Save captures the controller's desired state into the session as one
// atomic snapshot: every volume, mute and connection row at a single point
// in time, never a mix of two states.
func (m *Manager) Save(id string) (models.Session, *models.AppError) {
	snap := snapshotOf(m.ctrl.State())

	m.mu.Lock()
	defer m.mu.Unlock()
	s := m.find(id)
	if s == nil {
		return models.Session{}, models.ErrNotFound(fmt.Sprintf("session %q not found", id))
	}
	s.Snapshot = &snap
	s.SavedAt = m.now()
	m.persist()
	slog.Info("sessions: saved", "session", s.Name,
		"volumes", len(snap.Volumes), "connections", len(snap.Connections))
	return cloneSession(*s), nil
}

// SaveCurrent snapshots into the current session, if one exists. Used for
// auto-save on shutdown.
func (m *Manager) SaveCurrent() *models.AppError {
	cur, ok := m.Current()
	if !ok {
		return nil
	}
	_, err := m.Save(cur.ID)
	return err
}

// Activate makes the session current and replays its snapshot through the
// controller. Rows referencing sinks or outputs that no longer exist are
// skipped with a warning; the rest still apply. A session never saved
// becomes current without touching the state. Returns the warnings so API
// callers can surface a partial restore.
func (m *Manager) Activate(ctx context.Context, id string) ([]string, *models.AppError) {
	m.mu.Lock()
	s := m.find(id)
	if s == nil {
		m.mu.Unlock()
		return nil, models.ErrNotFound(fmt.Sprintf("session %q not found", id))
	}
	for i := range m.sessions {
		m.sessions[i].IsCurrent = false
	}
	s.IsCurrent = true
	m.assertSingleCurrent()
	m.persist()
	name := s.Name
	var snap *models.Snapshot
	if s.Snapshot != nil {
		c := cloneSnapshot(*s.Snapshot)
		snap = &c
	}
	m.mu.Unlock()

	if snap == nil {
		slog.Info("sessions: activated empty session", "session", name)
		return nil, nil
	}

	// Replay outside the manager lock: restoring goes through the same
	// controller path as live intents and may block on the backend.
	var warnings []string
	warn := func(format string, args ...any) {
		msg := fmt.Sprintf(format, args...)
		warnings = append(warnings, msg)
		slog.Warn("sessions: partial restore", "session", name, "detail", msg)
	}

	for _, v := range snap.Volumes {
		if _, err := m.ctrl.SetVolume(ctx, v.SinkID, v.Volume); err != nil {
			if err.Code == models.CodeNotFound {
				warn("volume for sink %d skipped: %s", v.SinkID, err.Message)
				continue
			}
			return warnings, err
		}
	}
	for _, mu := range snap.Mutes {
		if _, err := m.ctrl.SetMute(ctx, mu.SinkID, mu.Muted); err != nil {
			if err.Code == models.CodeNotFound {
				warn("mute for sink %d skipped: %s", mu.SinkID, err.Message)
				continue
			}
			return warnings, err
		}
	}
	for _, conn := range snap.Connections {
		if _, err := m.ctrl.SetConnection(ctx, conn.SinkID, conn.OutputID, conn.Connected); err != nil {
			if err.Code == models.CodeNotFound {
				warn("connection sink %d output %d skipped: %s", conn.SinkID, conn.OutputID, err.Message)
				continue
			}
			return warnings, err
		}
	}

	if err := m.ctrl.Resync(ctx); err != nil {
		warn("resync after restore failed: %v", err)
	}
	slog.Info("sessions: activated", "session", name, "warnings", len(warnings))
	return warnings, nil
}

// Rename changes a session's name. The snapshot and currency are untouched.
func (m *Manager) Rename(id, name string) (models.Session, *models.AppError) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if name == "" {
		return models.Session{}, models.ErrBadRequest("session name must not be empty")
	}
	s := m.find(id)
	if s == nil {
		return models.Session{}, models.ErrNotFound(fmt.Sprintf("session %q not found", id))
	}
	if other := m.findByName(name); other != nil && other.ID != id {
		return models.Session{}, models.ErrConflict(fmt.Sprintf("session %q already exists", name))
	}
	s.Name = name
	m.persist()
	return cloneSession(*s), nil
}

// Delete removes a session. The current session cannot be deleted; activate
// another one first.
func (m *Manager) Delete(id string) *models.AppError {
	m.mu.Lock()
	defer m.mu.Unlock()

	for i := range m.sessions {
		if m.sessions[i].ID != id {
			continue
		}
		if m.sessions[i].IsCurrent {
			return models.ErrConflict(fmt.Sprintf("session %q is current and cannot be deleted", m.sessions[i].Name))
		}
		m.sessions = append(m.sessions[:i], m.sessions[i+1:]...)
		m.assertSingleCurrent()
		m.persist()
		return nil
	}
	return models.ErrNotFound(fmt.Sprintf("session %q not found", id))
}

// Flush forces any pending store write to disk.
func (m *Manager) Flush() error {
	return m.store.Flush()
}

// find returns a pointer into the session slice. Caller holds m.mu.
func (m *Manager) find(id string) *models.Session {
	for i := range m.sessions {
		if m.sessions[i].ID == id {
			return &m.sessions[i]
		}
	}
	return nil
}

func (m *Manager) findByName(name string) *models.Session {
	for i := range m.sessions {
		if m.sessions[i].Name == name {
			return &m.sessions[i]
		}
	}
	return nil
}

// persist hands a copy of the list to the store. Caller holds m.mu.
func (m *Manager) persist() {
	out := make([]models.Session, len(m.sessions))
	for i := range m.sessions {
		out[i] = cloneSession(m.sessions[i])
	}
	if err := m.store.Save(out); err != nil {
		slog.Error("sessions: persist failed", "err", err)
	}
}

// assertSingleCurrent panics if the in-memory list ever carries two current
// sessions. That can only happen through a bug in this package, so crashing
// beats silently persisting a corrupt store. Caller holds m.mu.
func (m *Manager) assertSingleCurrent() {
	count := 0
	for i := range m.sessions {
		if m.sessions[i].IsCurrent {
			count++
		}
	}
	if count > 1 {
		panic(fmt.Sprintf("sessions: %d sessions marked current", count))
	}
}

// snapshotOf extracts the desired-state rows from a full state copy.
func snapshotOf(state models.State) models.Snapshot {
	return models.Snapshot{
		Volumes:     append([]models.VolumeState(nil), state.Volumes...),
		Mutes:       append([]models.MuteState(nil), state.Mutes...),
		Connections: append([]models.Connection(nil), state.Connections...),
	}
}

func cloneSnapshot(s models.Snapshot) models.Snapshot {
	return models.Snapshot{
		Volumes:     append([]models.VolumeState(nil), s.Volumes...),
		Mutes:       append([]models.MuteState(nil), s.Mutes...),
		Connections: append([]models.Connection(nil), s.Connections...),
	}
}

func cloneSession(s models.Session) models.Session {
	out := s
	if s.Snapshot != nil {
		c := cloneSnapshot(*s.Snapshot)
		out.Snapshot = &c
	}
	return out
}
