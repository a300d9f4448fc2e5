// Package models defines the data structures for the MIDI Deck system:
// the configured sinks/outputs, the desired audio state owned by the
// controller, and the observed state reported by the audio backend.
package models

import "time"

// Action is what a mapped MIDI button does when pressed.
type Action string

const (
	ActionSpeaker   Action = "speaker"
	ActionHeadphone Action = "headphone"
	ActionMute      Action = "mute"
)

// OutputRole classifies a hardware output so button actions can address it
// without hard-coding device names.
type OutputRole string

const (
	RoleSpeaker   OutputRole = "speaker"
	RoleHeadphone OutputRole = "headphone"
)

// VirtualSink is one virtual audio channel. ChannelNumber is the fader index
// (1-4) and is immutable once assigned.
type VirtualSink struct {
	ID            int    `json:"id"`
	ChannelNumber int    `json:"channel_number"`
	Name          string `json:"name"`
	Description   string `json:"description,omitempty"`
	Active        bool   `json:"active"`
}

// HardwareOutput is a physical audio destination the backend can route to.
// DeviceName is the backend-specific identifier (e.g. an ALSA sink name).
type HardwareOutput struct {
	ID         int        `json:"id"`
	Name       string     `json:"name"`
	DeviceName string     `json:"device_name"`
	Role       OutputRole `json:"role"`
	Active     bool       `json:"active"`
}

// MidiMapping declares which sink/action a MIDI note controls.
// Edited only through configuration, never by the runtime.
type MidiMapping struct {
	Note   uint8  `json:"midi_note"`
	SinkID int    `json:"sink_id"`
	Action Action `json:"action"`
}

// VolumeState is the desired volume for one sink, in [0.0, 1.0].
type VolumeState struct {
	SinkID int     `json:"sink_id"`
	Volume float64 `json:"volume"`
}

// MuteState is the desired mute flag for one sink. Mute is independent of
// volume: the volume is preserved while muted.
type MuteState struct {
	SinkID int  `json:"sink_id"`
	Muted  bool `json:"muted"`
}

// Connection relates one sink to one output. There is exactly one row per
// (active sink, active output) pair; Connected defaults to false.
type Connection struct {
	SinkID    int  `json:"sink_id"`
	OutputID  int  `json:"output_id"`
	Connected bool `json:"connected"`
}

// Snapshot is an immutable copy of the desired state captured by a session
// save. It references sinks/outputs by ID as they existed at save time.
type Snapshot struct {
	Volumes     []VolumeState `json:"volumes"`
	Mutes       []MuteState   `json:"mutes"`
	Connections []Connection  `json:"connections"`
}

// Session is a named saved snapshot. Exactly one session is current at any
// time; the session store enforces that invariant.
type Session struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	IsCurrent bool      `json:"is_current"`
	SavedAt   time.Time `json:"saved_at,omitzero"`
	Snapshot  *Snapshot `json:"snapshot,omitempty"`
}

// ObservedSink is what the backend reports for one sink.
type ObservedSink struct {
	Name   string  `json:"name"`
	Volume float64 `json:"volume"`
	Muted  bool    `json:"muted"`
}

// ObservedConnection is a live loopback the backend reports.
type ObservedConnection struct {
	SinkName   string `json:"sink_name"`
	DeviceName string `json:"device_name"`
}

// ObservedState is the backend's view of the world at query time.
type ObservedState struct {
	Sinks       []ObservedSink       `json:"sinks"`
	Connections []ObservedConnection `json:"connections"`
}

// Degradation records a backend command that kept failing after retries.
// The desired state still reflects the intent; the discrepancy is surfaced
// here instead of being silently dropped.
type Degradation struct {
	SinkID int       `json:"sink_id"`
	Op     string    `json:"op"`
	Reason string    `json:"reason"`
	At     time.Time `json:"at"`
}

// Info is basic daemon information included in the state.
type Info struct {
	Version string `json:"version"`
	Mock    bool   `json:"mock"`
}

// State is the complete system state returned by GET /api and published on
// the event bus. Volumes/Mutes/Connections are the desired state; Observed
// is the last backend observation (nil until the first resync).
type State struct {
	Sinks       []VirtualSink    `json:"sinks"`
	Outputs     []HardwareOutput `json:"outputs"`
	Volumes     []VolumeState    `json:"volumes"`
	Mutes       []MuteState      `json:"mutes"`
	Connections []Connection     `json:"connections"`
	Degraded    []Degradation    `json:"degraded,omitempty"`
	Observed    *ObservedState   `json:"observed,omitempty"`
	Info        Info             `json:"info"`
}

// DeepCopy returns a deep copy of the state.
func (s State) DeepCopy() State {
	next := State{Info: s.Info}

	next.Sinks = make([]VirtualSink, len(s.Sinks))
	copy(next.Sinks, s.Sinks)

	next.Outputs = make([]HardwareOutput, len(s.Outputs))
	copy(next.Outputs, s.Outputs)

	next.Volumes = make([]VolumeState, len(s.Volumes))
	copy(next.Volumes, s.Volumes)

	next.Mutes = make([]MuteState, len(s.Mutes))
	copy(next.Mutes, s.Mutes)

	next.Connections = make([]Connection, len(s.Connections))
	copy(next.Connections, s.Connections)

	if s.Degraded != nil {
		next.Degraded = make([]Degradation, len(s.Degraded))
		copy(next.Degraded, s.Degraded)
	}

	if s.Observed != nil {
		obs := ObservedState{
			Sinks:       make([]ObservedSink, len(s.Observed.Sinks)),
			Connections: make([]ObservedConnection, len(s.Observed.Connections)),
		}
		copy(obs.Sinks, s.Observed.Sinks)
		copy(obs.Connections, s.Observed.Connections)
		next.Observed = &obs
	}

	return next
}

// Normalize enforces the structural invariants of the desired state:
// exactly one VolumeState and MuteState per active sink, and exactly one
// Connection row per (active sink, active output) pair. Missing rows are
// added with defaults (volume 1.0, unmuted, disconnected); rows referencing
// inactive or unknown sinks/outputs are dropped.
func (s *State) Normalize() {
	activeSinks := make(map[int]bool, len(s.Sinks))
	for _, sink := range s.Sinks {
		if sink.Active {
			activeSinks[sink.ID] = true
		}
	}
	activeOutputs := make(map[int]bool, len(s.Outputs))
	for _, out := range s.Outputs {
		if out.Active {
			activeOutputs[out.ID] = true
		}
	}

	vols := make([]VolumeState, 0, len(activeSinks))
	seenVol := make(map[int]bool)
	for _, v := range s.Volumes {
		if activeSinks[v.SinkID] && !seenVol[v.SinkID] {
			vols = append(vols, v)
			seenVol[v.SinkID] = true
		}
	}
	mutes := make([]MuteState, 0, len(activeSinks))
	seenMute := make(map[int]bool)
	for _, m := range s.Mutes {
		if activeSinks[m.SinkID] && !seenMute[m.SinkID] {
			mutes = append(mutes, m)
			seenMute[m.SinkID] = true
		}
	}

	type pair struct{ sink, output int }
	conns := make([]Connection, 0, len(activeSinks)*len(activeOutputs))
	seenConn := make(map[pair]bool)
	for _, c := range s.Connections {
		key := pair{c.SinkID, c.OutputID}
		if activeSinks[c.SinkID] && activeOutputs[c.OutputID] && !seenConn[key] {
			conns = append(conns, c)
			seenConn[key] = true
		}
	}

	// Sinks and outputs are ordered by the config, so iterating the slices
	// keeps row order deterministic.
	for _, sink := range s.Sinks {
		if !sink.Active {
			continue
		}
		if !seenVol[sink.ID] {
			vols = append(vols, VolumeState{SinkID: sink.ID, Volume: 1.0})
		}
		if !seenMute[sink.ID] {
			mutes = append(mutes, MuteState{SinkID: sink.ID})
		}
		for _, out := range s.Outputs {
			if !out.Active {
				continue
			}
			if !seenConn[pair{sink.ID, out.ID}] {
				conns = append(conns, Connection{SinkID: sink.ID, OutputID: out.ID})
			}
		}
	}

	s.Volumes = vols
	s.Mutes = mutes
	s.Connections = conns
}

// ClampVolume limits v to the valid [0.0, 1.0] volume range.
func ClampVolume(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
