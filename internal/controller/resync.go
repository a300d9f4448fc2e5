package controller

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/midideck/midideck-go/internal/models"
)

// Bootstrap ensures every active sink exists as a real backend sink before
// any intent is processed. Idempotent: sinks the backend already reports are
// skipped, so a second call issues no create commands.
func (c *Controller) Bootstrap(ctx context.Context) error {
	sinks, err := c.backend.ListSinks(ctx)
	if err != nil {
		return fmt.Errorf("bootstrap: list sinks: %w", err)
	}
	present := make(map[string]bool, len(sinks))
	for _, s := range sinks {
		present[s.Name] = true
	}

	_, applyErr := c.apply(func(s *models.State) error {
		for _, sink := range s.Sinks {
			if !sink.Active || present[sink.Name] {
				continue
			}
			name, desc := sink.Name, sink.Description
			slog.Info("controller: creating missing sink", "sink", name)
			c.issue(ctx, s, sink.ID, backendOpCreateSink, func(cctx context.Context) error {
				return c.backend.CreateSink(cctx, name, desc)
			})
		}
		return nil
	})
	return applyErr
}

// Resync queries the backend's observed state and re-issues commands for any
// drift from desired state: a sink recreated after the server restarted, a
// volume or mute changed by another client, a loopback that disappeared.
// It takes the same exclusive-writer path as ApplyIntent, so it never
// interleaves with a half-applied intent.
func (c *Controller) Resync(ctx context.Context) error {
	obs, err := c.backend.Observe(ctx)
	if err != nil {
		return fmt.Errorf("resync: observe: %w", err)
	}

	observedSinks := make(map[string]models.ObservedSink, len(obs.Sinks))
	var observed models.ObservedState
	for _, s := range obs.Sinks {
		o := models.ObservedSink{Name: s.Name, Volume: s.Volume, Muted: s.Muted}
		observedSinks[s.Name] = o
		observed.Sinks = append(observed.Sinks, o)
	}
	type pair struct{ sink, device string }
	observedConns := make(map[pair]bool, len(obs.Connections))
	for _, conn := range obs.Connections {
		observedConns[pair{conn.SinkName, conn.DeviceName}] = true
		observed.Connections = append(observed.Connections, conn)
	}

	_, applyErr := c.apply(func(s *models.State) error {
		for _, sink := range s.Sinks {
			if !sink.Active {
				continue
			}
			sinkID, name, desc := sink.ID, sink.Name, sink.Description
			drifted := false

			ob, present := observedSinks[name]
			if !present {
				drifted = true
				slog.Warn("controller: sink missing from backend, recreating", "sink", name)
				c.issue(ctx, s, sinkID, backendOpCreateSink, func(cctx context.Context) error {
					return c.backend.CreateSink(cctx, name, desc)
				})
			}

			if v := findVolume(s, sinkID); v != nil {
				if diff := ob.Volume - v.Volume; !present || diff >= volEpsilon || diff <= -volEpsilon {
					drifted = true
					vol := v.Volume
					c.issue(ctx, s, sinkID, backendOpSetVolume, func(cctx context.Context) error {
						return c.backend.SetVolume(cctx, name, vol)
					})
				}
			}
			if m := findMute(s, sinkID); m != nil {
				if !present || ob.Muted != m.Muted {
					drifted = true
					muted := m.Muted
					c.issue(ctx, s, sinkID, backendOpSetMute, func(cctx context.Context) error {
						return c.backend.SetMute(cctx, name, muted)
					})
				}
			}
			for _, conn := range s.Connections {
				if conn.SinkID != sinkID {
					continue
				}
				out := findOutput(s, conn.OutputID)
				if out == nil {
					continue
				}
				device := out.DeviceName
				live := observedConns[pair{name, device}]
				if conn.Connected && !live {
					drifted = true
					c.issue(ctx, s, sinkID, backendOpConnect, func(cctx context.Context) error {
						return c.backend.Connect(cctx, name, device)
					})
				} else if !conn.Connected && live {
					drifted = true
					c.issue(ctx, s, sinkID, backendOpDisconnect, func(cctx context.Context) error {
						return c.backend.Disconnect(cctx, name, device)
					})
				}
			}

			// No drift means any recorded degradation for this sink has
			// resolved, whether by our earlier retries or externally.
			if !drifted {
				clearSinkDegradations(s, sinkID)
			}
		}

		s.Observed = &observed
		return nil
	})
	return applyErr
}
