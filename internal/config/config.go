// Package config supplies the MIDI Deck configuration: the virtual sinks,
// hardware outputs, MIDI note mappings and tunables. The config is read from
// a YAML file and hot-reloadable; the runtime never edits it.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/midideck/midideck-go/internal/models"
)

// MaxChannels is the number of faders on the control surface.
const MaxChannels = 4

// fileSink is one virtual sink entry in the YAML file.
type fileSink struct {
	Channel     int    `yaml:"channel"`
	Name        string `yaml:"name"`
	Description string `yaml:"description,omitempty"`
	Disabled    bool   `yaml:"disabled,omitempty"`
}

// fileOutput is one hardware output entry in the YAML file.
type fileOutput struct {
	Name     string `yaml:"name"`
	Device   string `yaml:"device"`
	Role     string `yaml:"role"`
	Disabled bool   `yaml:"disabled,omitempty"`
}

// fileMapping binds a MIDI note to a sink (by name) and an action.
type fileMapping struct {
	Note   int    `yaml:"note"`
	Sink   string `yaml:"sink"`
	Action string `yaml:"action"`
}

// file is the on-disk YAML layout.
type file struct {
	Device struct {
		Name string `yaml:"name"`
	} `yaml:"device"`
	JitterThreshold *int          `yaml:"jitter_threshold,omitempty"`
	AutoSave        *bool         `yaml:"auto_save,omitempty"`
	Sinks           []fileSink    `yaml:"sinks"`
	Outputs         []fileOutput  `yaml:"outputs"`
	Mappings        []fileMapping `yaml:"mappings"`
}

// Config is the resolved, validated configuration. Instances are immutable;
// a reload produces a fresh Config.
type Config struct {
	DeviceName      string
	JitterThreshold uint8 // in raw MIDI value space (0-127)
	AutoSave        bool
	Sinks           []models.VirtualSink
	Outputs         []models.HardwareOutput
	Mappings        []models.MidiMapping
}

// Default returns the stock MIDI Deck layout: four sinks on channels 1-4,
// speaker and headphone outputs, and the standard button grid.
func Default() *Config {
	cfg := &Config{
		DeviceName:      "MIDI Deck",
		JitterThreshold: 2,
		AutoSave:        true,
		Sinks: []models.VirtualSink{
			{ID: 1, ChannelNumber: 1, Name: "MainSink", Description: "Main", Active: true},
			{ID: 2, ChannelNumber: 2, Name: "WebSink", Description: "Web", Active: true},
			{ID: 3, ChannelNumber: 3, Name: "MusicSink", Description: "Music", Active: true},
			{ID: 4, ChannelNumber: 4, Name: "DiscordSink", Description: "Discord", Active: true},
		},
		Outputs: []models.HardwareOutput{
			{ID: 1, Name: "SpeakerOut", DeviceName: "alsa_output.pci-0000_00_1f.3.analog-stereo", Role: models.RoleSpeaker, Active: true},
			{ID: 2, Name: "HeadphoneOut", DeviceName: "alsa_output.usb-3142_fifine_Microphone-00.analog-stereo", Role: models.RoleHeadphone, Active: true},
		},
	}
	// Buttons come in speaker/headphone/mute triples, one triple per
	// channel, starting at note 36 with a gap of one between channels.
	base := uint8(36)
	for ch := 1; ch <= MaxChannels; ch++ {
		note := base + uint8(ch-1)*4
		cfg.Mappings = append(cfg.Mappings,
			models.MidiMapping{Note: note, SinkID: ch, Action: models.ActionSpeaker},
			models.MidiMapping{Note: note + 1, SinkID: ch, Action: models.ActionHeadphone},
			models.MidiMapping{Note: note + 2, SinkID: ch, Action: models.ActionMute},
		)
	}
	return cfg
}

// Parse decodes and validates a YAML config document. Unknown keys are
// rejected, as is a document without sinks: that is what a reader sees when
// a non-atomic writer has truncated the file but not yet written the new
// content, and adopting it would wipe every fader row.
func Parse(data []byte) (*Config, error) {
	var f file
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&f); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	if len(f.Sinks) == 0 {
		return nil, errors.New("parse config: at least one sink is required")
	}

	cfg := &Config{
		DeviceName:      f.Device.Name,
		JitterThreshold: 2,
		AutoSave:        true,
	}
	if f.AutoSave != nil {
		cfg.AutoSave = *f.AutoSave
	}
	if cfg.DeviceName == "" {
		cfg.DeviceName = "MIDI Deck"
	}
	if f.JitterThreshold != nil {
		if *f.JitterThreshold < 0 || *f.JitterThreshold > 127 {
			return nil, fmt.Errorf("jitter_threshold %d out of range 0-127", *f.JitterThreshold)
		}
		cfg.JitterThreshold = uint8(*f.JitterThreshold)
	}

	sinkIDs := make(map[string]int, len(f.Sinks))
	channels := make(map[int]bool, len(f.Sinks))
	for i, s := range f.Sinks {
		if s.Name == "" {
			return nil, fmt.Errorf("sinks[%d]: name is required", i)
		}
		if s.Channel < 1 || s.Channel > MaxChannels {
			return nil, fmt.Errorf("sink %q: channel %d out of range 1-%d", s.Name, s.Channel, MaxChannels)
		}
		if channels[s.Channel] {
			return nil, fmt.Errorf("sink %q: channel %d already assigned", s.Name, s.Channel)
		}
		if _, dup := sinkIDs[s.Name]; dup {
			return nil, fmt.Errorf("duplicate sink name %q", s.Name)
		}
		channels[s.Channel] = true
		id := s.Channel // channel number doubles as the stable sink id
		sinkIDs[s.Name] = id
		cfg.Sinks = append(cfg.Sinks, models.VirtualSink{
			ID:            id,
			ChannelNumber: s.Channel,
			Name:          s.Name,
			Description:   s.Description,
			Active:        !s.Disabled,
		})
	}

	outputNames := make(map[string]bool, len(f.Outputs))
	for i, o := range f.Outputs {
		if o.Name == "" || o.Device == "" {
			return nil, fmt.Errorf("outputs[%d]: name and device are required", i)
		}
		if outputNames[o.Name] {
			return nil, fmt.Errorf("duplicate output name %q", o.Name)
		}
		role := models.OutputRole(o.Role)
		if role != models.RoleSpeaker && role != models.RoleHeadphone {
			return nil, fmt.Errorf("output %q: unknown role %q", o.Name, o.Role)
		}
		outputNames[o.Name] = true
		cfg.Outputs = append(cfg.Outputs, models.HardwareOutput{
			ID:         i + 1,
			Name:       o.Name,
			DeviceName: o.Device,
			Role:       role,
			Active:     !o.Disabled,
		})
	}

	notes := make(map[int]bool, len(f.Mappings))
	for _, m := range f.Mappings {
		if m.Note < 0 || m.Note > 127 {
			return nil, fmt.Errorf("mapping note %d out of range 0-127", m.Note)
		}
		if notes[m.Note] {
			return nil, fmt.Errorf("duplicate mapping for note %d", m.Note)
		}
		sinkID, ok := sinkIDs[m.Sink]
		if !ok {
			return nil, fmt.Errorf("mapping for note %d references unknown sink %q", m.Note, m.Sink)
		}
		action := models.Action(m.Action)
		switch action {
		case models.ActionSpeaker, models.ActionHeadphone, models.ActionMute:
		default:
			return nil, fmt.Errorf("mapping for note %d: unknown action %q", m.Note, m.Action)
		}
		notes[m.Note] = true
		cfg.Mappings = append(cfg.Mappings, models.MidiMapping{
			Note:   uint8(m.Note),
			SinkID: sinkID,
			Action: action,
		})
	}

	return cfg, nil
}

// Load reads the config file at path. A missing file yields the default
// config; a malformed file is an error (the caller decides whether to keep
// a previously loaded config).
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			slog.Info("config: no config file, using defaults", "path", path)
			return Default(), nil
		}
		return nil, err
	}
	return Parse(data)
}

// MappingForNote resolves a MIDI note to its mapping, if one exists.
func (c *Config) MappingForNote(note uint8) (models.MidiMapping, bool) {
	for _, m := range c.Mappings {
		if m.Note == note {
			return m, true
		}
	}
	return models.MidiMapping{}, false
}

// SinkByChannel returns the sink assigned to a fader channel (1-4).
func (c *Config) SinkByChannel(ch int) (models.VirtualSink, bool) {
	for _, s := range c.Sinks {
		if s.ChannelNumber == ch {
			return s, true
		}
	}
	return models.VirtualSink{}, false
}

// SinkByID returns the sink with the given id.
func (c *Config) SinkByID(id int) (models.VirtualSink, bool) {
	for _, s := range c.Sinks {
		if s.ID == id {
			return s, true
		}
	}
	return models.VirtualSink{}, false
}

// OutputForAction returns the active output addressed by a speaker or
// headphone button action.
func (c *Config) OutputForAction(a models.Action) (models.HardwareOutput, bool) {
	var role models.OutputRole
	switch a {
	case models.ActionSpeaker:
		role = models.RoleSpeaker
	case models.ActionHeadphone:
		role = models.RoleHeadphone
	default:
		return models.HardwareOutput{}, false
	}
	for _, o := range c.Outputs {
		if o.Role == role && o.Active {
			return o, true
		}
	}
	return models.HardwareOutput{}, false
}
