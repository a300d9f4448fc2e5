package controller

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/midideck/midideck-go/internal/models"
)

// Submit queues an intent for the controller loop without blocking the
// caller. Returns false if the queue is full (the intent is dropped; the
// jitter filter upstream keeps this from happening under normal load).
func (c *Controller) Submit(intent models.Intent) bool {
	select {
	case c.intents <- intent:
		return true
	default:
		return false
	}
}

// ApplyIntent validates an intent, mutates desired state for the addressed
// sink, and issues the minimal backend command(s) to match. It returns once
// the command is issued (not necessarily confirmed). Intents referencing
// unmapped or inactive sinks are rejected, never applied.
func (c *Controller) ApplyIntent(ctx context.Context, intent models.Intent) (models.State, *models.AppError) {
	c.mu.RLock()
	sink := findSinkByChannel(&c.state, intent.Channel)
	if sink == nil {
		c.mu.RUnlock()
		return models.State{}, models.ErrNotFound(fmt.Sprintf("no sink mapped to channel %d", intent.Channel))
	}
	if !sink.Active {
		c.mu.RUnlock()
		return models.State{}, models.ErrBadRequest(fmt.Sprintf("sink %q on channel %d is inactive", sink.Name, intent.Channel))
	}
	sinkID := sink.ID
	c.mu.RUnlock()

	switch intent.Kind {
	case models.IntentSetVolume:
		if intent.Value < 0 || intent.Value > 1 {
			return models.State{}, models.ErrBadRequest(fmt.Sprintf("volume %.3f out of range [0,1]", intent.Value))
		}
		return c.SetVolume(ctx, sinkID, intent.Value)
	case models.IntentToggleMute:
		return c.ToggleMute(ctx, sinkID)
	case models.IntentToggleOutput:
		return c.ToggleOutput(ctx, sinkID, intent.OutputID)
	default:
		return models.State{}, models.ErrBadRequest(fmt.Sprintf("unknown intent kind %q", intent.Kind))
	}
}

// SetVolume sets the desired volume for a sink and pushes it to the backend
// if it differs from the last applied value.
func (c *Controller) SetVolume(ctx context.Context, sinkID int, vol float64) (models.State, *models.AppError) {
	if vol < 0 || vol > 1 {
		return models.State{}, models.ErrBadRequest(fmt.Sprintf("volume %.3f out of range [0,1]", vol))
	}
	return c.applyTyped(func(s *models.State) *models.AppError {
		sink := activeSink(s, sinkID)
		if sink == nil {
			return models.ErrNotFound(fmt.Sprintf("sink %d not found or inactive", sinkID))
		}
		v := findVolume(s, sinkID)
		if v == nil {
			return models.ErrInternal(fmt.Sprintf("no volume row for sink %d", sinkID))
		}
		if diff := v.Volume - vol; diff < volEpsilon && diff > -volEpsilon {
			return nil
		}
		v.Volume = vol
		name := sink.Name
		c.issue(ctx, s, sinkID, backendOpSetVolume, func(cctx context.Context) error {
			return c.backend.SetVolume(cctx, name, vol)
		})
		return nil
	})
}

// SetMute sets the desired mute flag for a sink. The volume is untouched.
func (c *Controller) SetMute(ctx context.Context, sinkID int, muted bool) (models.State, *models.AppError) {
	return c.applyTyped(func(s *models.State) *models.AppError {
		sink := activeSink(s, sinkID)
		if sink == nil {
			return models.ErrNotFound(fmt.Sprintf("sink %d not found or inactive", sinkID))
		}
		m := findMute(s, sinkID)
		if m == nil {
			return models.ErrInternal(fmt.Sprintf("no mute row for sink %d", sinkID))
		}
		if m.Muted == muted {
			return nil
		}
		m.Muted = muted
		name := sink.Name
		c.issue(ctx, s, sinkID, backendOpSetMute, func(cctx context.Context) error {
			return c.backend.SetMute(cctx, name, muted)
		})
		return nil
	})
}

// ToggleMute flips the desired mute flag for a sink.
func (c *Controller) ToggleMute(ctx context.Context, sinkID int) (models.State, *models.AppError) {
	return c.applyTyped(func(s *models.State) *models.AppError {
		sink := activeSink(s, sinkID)
		if sink == nil {
			return models.ErrNotFound(fmt.Sprintf("sink %d not found or inactive", sinkID))
		}
		m := findMute(s, sinkID)
		if m == nil {
			return models.ErrInternal(fmt.Sprintf("no mute row for sink %d", sinkID))
		}
		m.Muted = !m.Muted
		muted := m.Muted
		name := sink.Name
		slog.Info("controller: toggling mute", "sink", name, "muted", muted)
		c.issue(ctx, s, sinkID, backendOpSetMute, func(cctx context.Context) error {
			return c.backend.SetMute(cctx, name, muted)
		})
		return nil
	})
}

// SetConnection sets the desired connected flag for one (sink, output) pair
// and issues a connect/disconnect only when the flag actually flips.
func (c *Controller) SetConnection(ctx context.Context, sinkID, outputID int, connected bool) (models.State, *models.AppError) {
	return c.applyTyped(func(s *models.State) *models.AppError {
		return c.setConnection(ctx, s, sinkID, outputID, connected, false)
	})
}

// ToggleOutput flips the desired connected flag for one (sink, output) pair.
func (c *Controller) ToggleOutput(ctx context.Context, sinkID, outputID int) (models.State, *models.AppError) {
	return c.applyTyped(func(s *models.State) *models.AppError {
		return c.setConnection(ctx, s, sinkID, outputID, false, true)
	})
}

func (c *Controller) setConnection(ctx context.Context, s *models.State, sinkID, outputID int, connected, toggle bool) *models.AppError {
	sink := activeSink(s, sinkID)
	if sink == nil {
		return models.ErrNotFound(fmt.Sprintf("sink %d not found or inactive", sinkID))
	}
	output := findOutput(s, outputID)
	if output == nil || !output.Active {
		return models.ErrNotFound(fmt.Sprintf("output %d not found or inactive", outputID))
	}
	conn := findConnection(s, sinkID, outputID)
	if conn == nil {
		return models.ErrInternal(fmt.Sprintf("no connection row for sink %d output %d", sinkID, outputID))
	}
	if toggle {
		connected = !conn.Connected
	} else if conn.Connected == connected {
		return nil
	}
	conn.Connected = connected

	sinkName, device := sink.Name, output.DeviceName
	slog.Info("controller: routing change", "sink", sinkName, "output", output.Name, "connected", connected)
	if connected {
		c.issue(ctx, s, sinkID, backendOpConnect, func(cctx context.Context) error {
			return c.backend.Connect(cctx, sinkName, device)
		})
	} else {
		c.issue(ctx, s, sinkID, backendOpDisconnect, func(cctx context.Context) error {
			return c.backend.Disconnect(cctx, sinkName, device)
		})
	}
	return nil
}

// DeactivateSink marks a sink inactive after explicitly tearing down its
// backend objects: disconnect every routed output, then remove the sink.
// Cleanup is application-level on purpose; nothing cascades implicitly.
func (c *Controller) DeactivateSink(ctx context.Context, sinkID int) (models.State, *models.AppError) {
	return c.applyTyped(func(s *models.State) *models.AppError {
		sink := findSink(s, sinkID)
		if sink == nil {
			return models.ErrNotFound(fmt.Sprintf("sink %d not found", sinkID))
		}
		if !sink.Active {
			return nil
		}
		name := sink.Name
		for i := range s.Connections {
			conn := &s.Connections[i]
			if conn.SinkID != sinkID || !conn.Connected {
				continue
			}
			if out := findOutput(s, conn.OutputID); out != nil {
				device := out.DeviceName
				c.issue(ctx, s, sinkID, backendOpDisconnect, func(cctx context.Context) error {
					return c.backend.Disconnect(cctx, name, device)
				})
			}
			conn.Connected = false
		}
		c.issue(ctx, s, sinkID, backendOpRemoveSink, func(cctx context.Context) error {
			return c.backend.RemoveSink(cctx, name)
		})
		sink.Active = false
		s.Normalize()
		return nil
	})
}

// applyTyped adapts apply() for operations returning *AppError.
func (c *Controller) applyTyped(fn func(*models.State) *models.AppError) (models.State, *models.AppError) {
	state, err := c.apply(func(s *models.State) error {
		if appErr := fn(s); appErr != nil {
			return appErr
		}
		return nil
	})
	if err != nil {
		if appErr, ok := err.(*models.AppError); ok {
			return models.State{}, appErr
		}
		return models.State{}, models.ErrInternal(err.Error())
	}
	return state, nil
}

// activeSink returns the sink only if it exists and is active.
func activeSink(s *models.State, id int) *models.VirtualSink {
	sink := findSink(s, id)
	if sink == nil || !sink.Active {
		return nil
	}
	return sink
}

// Backend operation labels used in degradation records.
const (
	backendOpSetVolume  = "set_volume"
	backendOpSetMute    = "set_mute"
	backendOpConnect    = "connect"
	backendOpDisconnect = "disconnect"
	backendOpCreateSink = "create_sink"
	backendOpRemoveSink = "remove_sink"
)
