// Package backend provides the audio-server adapter: idempotent commands
// against PulseAudio/PipeWire (create/destroy null sinks, volume, mute,
// loopback routing) plus observation of the live server state.
package backend

import (
	"context"

	"github.com/midideck/midideck-go/internal/models"
)

// SinkInfo describes one sink the audio server knows about.
type SinkInfo struct {
	Name   string
	Volume float64 // normalized [0.0, 1.0]
	Muted  bool
}

// Observation is the backend's complete view: every sink with its volume and
// mute flag, and every live loopback connection.
type Observation struct {
	Sinks       []SinkInfo
	Connections []models.ObservedConnection
}

// Adapter is the command/observation contract against the audio server.
// All commands are idempotent at this boundary: creating a sink that exists
// or connecting an already-connected pair is a no-op, not an error.
// Implementations must be safe for concurrent use.
type Adapter interface {
	// ListSinks returns every sink currently present on the server.
	ListSinks(ctx context.Context) ([]SinkInfo, error)

	// ListOutputs returns the device names of hardware output sinks.
	ListOutputs(ctx context.Context) ([]string, error)

	// CreateSink creates a virtual (null) sink. No-op if already present.
	CreateSink(ctx context.Context, name, description string) error

	// RemoveSink destroys a virtual sink created by CreateSink.
	RemoveSink(ctx context.Context, name string) error

	// SetVolume sets a sink's volume, normalized to [0.0, 1.0].
	SetVolume(ctx context.Context, sink string, vol float64) error

	// SetMute sets a sink's mute flag.
	SetMute(ctx context.Context, sink string, muted bool) error

	// Connect routes the sink's monitor into the given output device.
	// No-op if the loopback already exists.
	Connect(ctx context.Context, sink, device string) error

	// Disconnect removes the loopback between sink and device, if any.
	Disconnect(ctx context.Context, sink, device string) error

	// Observe reports the current server state in one query.
	Observe(ctx context.Context) (Observation, error)
}
