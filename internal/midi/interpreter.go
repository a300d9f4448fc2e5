// Package midi turns raw MIDI hardware events into typed intents for the
// controller: fader movements become SetVolume (after jitter filtering),
// button presses become ToggleOutput/ToggleMute. It also owns the device
// connection, including hot-plug handling.
package midi

import (
	"log/slog"
	"sync"

	"github.com/midideck/midideck-go/internal/config"
	"github.com/midideck/midideck-go/internal/models"
)

// Interpreter decodes MIDI events against the current config and submits
// intents. It never blocks on reconciliation: submit is expected to be a
// non-blocking queue push, and a full queue just drops the intent.
//
// Jitter filtering compares each fader value to the last accepted value for
// that control, so mechanical fader noise cannot flood the intent queue.
type Interpreter struct {
	cfg    func() *config.Config
	submit func(models.Intent) bool

	mu           sync.Mutex
	lastAccepted map[uint8]int // CC number → last accepted raw value
}

// NewInterpreter creates an interpreter. cfg is called per event so config
// hot reloads take effect without reconstructing the interpreter.
func NewInterpreter(cfg func() *config.Config, submit func(models.Intent) bool) *Interpreter {
	return &Interpreter{
		cfg:          cfg,
		submit:       submit,
		lastAccepted: make(map[uint8]int),
	}
}

// HandleControlChange processes one fader movement. Fader CC numbers match
// channel numbers (CC 1-4 → channels 1-4). A value is accepted only if it
// differs from the last accepted value by at least the jitter threshold.
func (it *Interpreter) HandleControlChange(controller, value uint8) {
	cfg := it.cfg()
	sink, ok := cfg.SinkByChannel(int(controller))
	if !ok {
		slog.Debug("midi: control change for unmapped channel", "cc", controller, "value", value)
		return
	}

	it.mu.Lock()
	last, seen := it.lastAccepted[controller]
	if !seen {
		last = -1
	}
	diff := int(value) - last
	if diff < 0 {
		diff = -diff
	}
	if diff < int(cfg.JitterThreshold) {
		it.mu.Unlock()
		return
	}
	it.lastAccepted[controller] = int(value)
	it.mu.Unlock()

	intent := models.Intent{
		Kind:    models.IntentSetVolume,
		Channel: sink.ChannelNumber,
		Value:   float64(value) / 127.0,
	}
	if !it.submit(intent) {
		slog.Warn("midi: intent queue full, dropping", "intent", intent.String())
		return
	}
	slog.Debug("midi: fader", "channel", sink.ChannelNumber, "value", value)
}

// HandleNoteOn processes one button press. Buttons are edge-triggered on
// note-on only; the matching note-off is ignored so a release never fires a
// second toggle. Unmapped notes are logged and dropped.
func (it *Interpreter) HandleNoteOn(note uint8) {
	cfg := it.cfg()
	mapping, ok := cfg.MappingForNote(note)
	if !ok {
		slog.Info("midi: unmapped note", "note", note)
		return
	}
	sink, ok := cfg.SinkByID(mapping.SinkID)
	if !ok {
		slog.Warn("midi: mapping references unknown sink", "note", note, "sink_id", mapping.SinkID)
		return
	}

	var intent models.Intent
	switch mapping.Action {
	case models.ActionMute:
		intent = models.Intent{Kind: models.IntentToggleMute, Channel: sink.ChannelNumber}
	case models.ActionSpeaker, models.ActionHeadphone:
		output, ok := cfg.OutputForAction(mapping.Action)
		if !ok {
			slog.Warn("midi: no output configured for action", "note", note, "action", mapping.Action)
			return
		}
		intent = models.Intent{
			Kind:     models.IntentToggleOutput,
			Channel:  sink.ChannelNumber,
			OutputID: output.ID,
		}
	default:
		slog.Warn("midi: mapping has unknown action", "note", note, "action", mapping.Action)
		return
	}

	if !it.submit(intent) {
		slog.Warn("midi: intent queue full, dropping", "intent", intent.String())
		return
	}
	slog.Debug("midi: button", "note", note, "intent", intent.String())
}

// HandleNoteOff exists to make the edge-trigger contract explicit: releases
// never emit intents.
func (it *Interpreter) HandleNoteOff(note uint8) {}

// ResetFilter clears the jitter filter history, e.g. after a device
// reconnect where fader positions are unknown.
func (it *Interpreter) ResetFilter() {
	it.mu.Lock()
	defer it.mu.Unlock()
	it.lastAccepted = make(map[uint8]int)
}
