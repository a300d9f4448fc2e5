package backend

import (
	"context"
	"fmt"
	"sync"

	"github.com/midideck/midideck-go/internal/models"
)

// Operation names accepted by Mock.SetFail and Mock.Calls.
const (
	OpCreateSink = "create_sink"
	OpRemoveSink = "remove_sink"
	OpSetVolume  = "set_volume"
	OpSetMute    = "set_mute"
	OpConnect    = "connect"
	OpDisconnect = "disconnect"
	OpObserve    = "observe"
)

type mockSink struct {
	volume  float64
	muted   bool
	virtual bool
}

// Mock is a thread-safe in-memory Adapter for testing and --mock mode.
// It tracks per-operation call counts and supports injecting a bounded
// number of failures per operation.
type Mock struct {
	mu       sync.Mutex
	sinks    map[string]*mockSink
	conns    map[loopKey]bool
	calls    map[string]int
	failures map[string]int // op → remaining failures to inject
}

// NewMock creates a mock adapter. The given device names are pre-registered
// as hardware output sinks.
func NewMock(devices ...string) *Mock {
	m := &Mock{
		sinks:    make(map[string]*mockSink),
		conns:    make(map[loopKey]bool),
		calls:    make(map[string]int),
		failures: make(map[string]int),
	}
	for _, d := range devices {
		m.sinks[d] = &mockSink{volume: 1.0}
	}
	return m
}

// SetFail makes the next n calls of the named operation fail.
func (m *Mock) SetFail(op string, n int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failures[op] = n
}

// Calls returns how many times the named operation has been invoked,
// including injected failures.
func (m *Mock) Calls(op string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls[op]
}

// HasSink reports whether a sink with the given name exists.
func (m *Mock) HasSink(name string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.sinks[name]
	return ok
}

// IsConnected reports whether a loopback exists between sink and device.
func (m *Mock) IsConnected(sink, device string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.conns[loopKey{sink, device}]
}

// SinkState returns the recorded volume and mute flag for a sink.
func (m *Mock) SinkState(name string) (vol float64, muted bool, ok bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sinks[name]
	if !ok {
		return 0, false, false
	}
	return s.volume, s.muted, true
}

// DropSink removes a sink out from under the controller, simulating
// external drift (e.g. the server restarted or something unloaded it).
func (m *Mock) DropSink(name string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.sinks, name)
	for k := range m.conns {
		if k.sink == name || k.device == name {
			delete(m.conns, k)
		}
	}
}

// SetSinkState overrides a sink's observed volume/mute, simulating an
// external actor changing it behind the controller's back.
func (m *Mock) SetSinkState(name string, vol float64, muted bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if s, ok := m.sinks[name]; ok {
		s.volume = vol
		s.muted = muted
	}
}

// begin counts the call and consumes an injected failure if one is pending.
func (m *Mock) begin(op string) error {
	m.calls[op]++
	if m.failures[op] > 0 {
		m.failures[op]--
		return fmt.Errorf("mock: %s failure injected", op)
	}
	return nil
}

func (m *Mock) ListSinks(ctx context.Context) ([]SinkInfo, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []SinkInfo
	for name, s := range m.sinks {
		out = append(out, SinkInfo{Name: name, Volume: s.volume, Muted: s.muted})
	}
	return out, nil
}

func (m *Mock) ListOutputs(ctx context.Context) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []string
	for name, s := range m.sinks {
		if !s.virtual {
			out = append(out, name)
		}
	}
	return out, nil
}

func (m *Mock) CreateSink(ctx context.Context, name, description string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.begin(OpCreateSink); err != nil {
		return err
	}
	if _, ok := m.sinks[name]; ok {
		return nil
	}
	m.sinks[name] = &mockSink{volume: 1.0, virtual: true}
	return nil
}

func (m *Mock) RemoveSink(ctx context.Context, name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.begin(OpRemoveSink); err != nil {
		return err
	}
	delete(m.sinks, name)
	for k := range m.conns {
		if k.sink == name {
			delete(m.conns, k)
		}
	}
	return nil
}

func (m *Mock) SetVolume(ctx context.Context, sink string, vol float64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.begin(OpSetVolume); err != nil {
		return err
	}
	s, ok := m.sinks[sink]
	if !ok {
		return fmt.Errorf("mock: no such sink %q", sink)
	}
	s.volume = models.ClampVolume(vol)
	return nil
}

func (m *Mock) SetMute(ctx context.Context, sink string, muted bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.begin(OpSetMute); err != nil {
		return err
	}
	s, ok := m.sinks[sink]
	if !ok {
		return fmt.Errorf("mock: no such sink %q", sink)
	}
	s.muted = muted
	return nil
}

func (m *Mock) Connect(ctx context.Context, sink, device string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.begin(OpConnect); err != nil {
		return err
	}
	if _, ok := m.sinks[sink]; !ok {
		return fmt.Errorf("mock: no such sink %q", sink)
	}
	m.conns[loopKey{sink, device}] = true
	return nil
}

func (m *Mock) Disconnect(ctx context.Context, sink, device string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.begin(OpDisconnect); err != nil {
		return err
	}
	delete(m.conns, loopKey{sink, device})
	return nil
}

func (m *Mock) Observe(ctx context.Context) (Observation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.begin(OpObserve); err != nil {
		return Observation{}, err
	}
	var obs Observation
	for name, s := range m.sinks {
		obs.Sinks = append(obs.Sinks, SinkInfo{Name: name, Volume: s.volume, Muted: s.muted})
	}
	for k, connected := range m.conns {
		if connected {
			obs.Connections = append(obs.Connections, models.ObservedConnection{
				SinkName:   k.sink,
				DeviceName: k.device,
			})
		}
	}
	return obs, nil
}

var _ Adapter = (*Mock)(nil)
