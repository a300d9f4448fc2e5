// Package controller implements the MIDI Deck state reconciler — the single
// source of truth for desired sink volumes, mutes and output connections.
// It is the only component that mutates desired state and the only one that
// issues backend commands.
package controller

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/midideck/midideck-go/internal/backend"
	"github.com/midideck/midideck-go/internal/config"
	"github.com/midideck/midideck-go/internal/events"
	"github.com/midideck/midideck-go/internal/models"
)

const (
	// cmdTimeout bounds each backend call so a hung audio server cannot
	// stall the intent queue indefinitely.
	cmdTimeout = 5 * time.Second
	// cmdRetries is the per-command retry budget. After it is exhausted the
	// failure is recorded as a degradation, never dropped silently.
	cmdRetries = 3
	retryDelay = 100 * time.Millisecond

	// volEpsilon absorbs the rounding the backend applies to volumes
	// (pactl works in whole percent).
	volEpsilon = 0.005

	intentQueueSize = 64
)

// Controller is the central state machine. All mutation goes through the
// apply() method, which serializes writers and publishes the result; this
// single-writer discipline is what keeps a moving fader and a concurrent
// API call from racing on the same sink.
type Controller struct {
	mu      sync.RWMutex
	state   models.State
	backend backend.Adapter
	bus     *events.Bus
	intents chan models.Intent
}

// New creates a controller with desired state seeded from the config:
// one volume/mute row per active sink and one connection row per
// (active sink, active output) pair. Call Bootstrap before Run.
func New(adapter backend.Adapter, cfg *config.Config, bus *events.Bus, info models.Info) *Controller {
	state := models.State{
		Sinks:   append([]models.VirtualSink(nil), cfg.Sinks...),
		Outputs: append([]models.HardwareOutput(nil), cfg.Outputs...),
		Info:    info,
	}
	state.Normalize()

	return &Controller{
		state:   state,
		backend: adapter,
		bus:     bus,
		intents: make(chan models.Intent, intentQueueSize),
	}
}

// State returns a deep copy of the current system state.
func (c *Controller) State() models.State {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.state.DeepCopy()
}

// Reconfigure replaces the sink/output/mapping universe after a config
// reload. Volumes, mutes and connections for surviving sinks are kept;
// rows for removed entities are dropped and rows for new ones created
// with defaults.
func (c *Controller) Reconfigure(cfg *config.Config) {
	_, _ = c.apply(func(s *models.State) error {
		s.Sinks = append([]models.VirtualSink(nil), cfg.Sinks...)
		s.Outputs = append([]models.HardwareOutput(nil), cfg.Outputs...)
		s.Normalize()
		return nil
	})
	slog.Info("controller: reconfigured", "sinks", len(cfg.Sinks), "outputs", len(cfg.Outputs))
}

// apply is the core mutation primitive: lock, deep-copy, mutate the copy,
// then commit and publish. fn may return an error to abort with no change.
func (c *Controller) apply(fn func(*models.State) error) (models.State, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	next := c.state.DeepCopy()
	if err := fn(&next); err != nil {
		return models.State{}, err
	}

	c.state = next
	if c.bus != nil {
		c.bus.Publish(c.state)
	}
	return c.state, nil
}

// issue runs one backend command with the bounded retry budget. On success
// any matching degradation is cleared; on exhaustion a degradation is
// recorded on the state. The desired state is never rolled back — it keeps
// reflecting intent, and the discrepancy is surfaced instead.
func (c *Controller) issue(ctx context.Context, s *models.State, sinkID int, op string, fn func(context.Context) error) {
	var lastErr error
	for attempt := 1; attempt <= cmdRetries; attempt++ {
		cctx, cancel := context.WithTimeout(ctx, cmdTimeout)
		err := fn(cctx)
		cancel()
		if err == nil {
			clearDegradation(s, sinkID, op)
			return
		}
		lastErr = err
		slog.Warn("controller: backend command failed",
			"op", op, "sink_id", sinkID, "attempt", attempt, "err", err)
		if attempt < cmdRetries {
			select {
			case <-time.After(retryDelay):
			case <-ctx.Done():
				attempt = cmdRetries
			}
		}
	}
	setDegradation(s, sinkID, op, lastErr.Error())
}

func setDegradation(s *models.State, sinkID int, op, reason string) {
	for i := range s.Degraded {
		if s.Degraded[i].SinkID == sinkID && s.Degraded[i].Op == op {
			s.Degraded[i].Reason = reason
			s.Degraded[i].At = time.Now()
			return
		}
	}
	s.Degraded = append(s.Degraded, models.Degradation{
		SinkID: sinkID,
		Op:     op,
		Reason: reason,
		At:     time.Now(),
	})
}

func clearDegradation(s *models.State, sinkID int, op string) {
	for i := range s.Degraded {
		if s.Degraded[i].SinkID == sinkID && s.Degraded[i].Op == op {
			s.Degraded = append(s.Degraded[:i], s.Degraded[i+1:]...)
			return
		}
	}
}

func clearSinkDegradations(s *models.State, sinkID int) {
	kept := s.Degraded[:0]
	for _, d := range s.Degraded {
		if d.SinkID != sinkID {
			kept = append(kept, d)
		}
	}
	s.Degraded = kept
	if len(s.Degraded) == 0 {
		s.Degraded = nil
	}
}

// findSink returns a pointer to the sink with the given ID, or nil.
func findSink(s *models.State, id int) *models.VirtualSink {
	for i := range s.Sinks {
		if s.Sinks[i].ID == id {
			return &s.Sinks[i]
		}
	}
	return nil
}

// findSinkByChannel returns the sink assigned to a fader channel, or nil.
func findSinkByChannel(s *models.State, ch int) *models.VirtualSink {
	for i := range s.Sinks {
		if s.Sinks[i].ChannelNumber == ch {
			return &s.Sinks[i]
		}
	}
	return nil
}

// findOutput returns a pointer to the output with the given ID, or nil.
func findOutput(s *models.State, id int) *models.HardwareOutput {
	for i := range s.Outputs {
		if s.Outputs[i].ID == id {
			return &s.Outputs[i]
		}
	}
	return nil
}

func findVolume(s *models.State, sinkID int) *models.VolumeState {
	for i := range s.Volumes {
		if s.Volumes[i].SinkID == sinkID {
			return &s.Volumes[i]
		}
	}
	return nil
}

func findMute(s *models.State, sinkID int) *models.MuteState {
	for i := range s.Mutes {
		if s.Mutes[i].SinkID == sinkID {
			return &s.Mutes[i]
		}
	}
	return nil
}

func findConnection(s *models.State, sinkID, outputID int) *models.Connection {
	for i := range s.Connections {
		if s.Connections[i].SinkID == sinkID && s.Connections[i].OutputID == outputID {
			return &s.Connections[i]
		}
	}
	return nil
}
