package models

import "fmt"

// IntentKind discriminates the Intent union.
type IntentKind string

const (
	IntentSetVolume    IntentKind = "set_volume"
	IntentToggleMute   IntentKind = "toggle_mute"
	IntentToggleOutput IntentKind = "toggle_output"
)

// Intent is a normalized, validated request to change one piece of desired
// state. Intents address sinks by channel number, the stable fader index.
type Intent struct {
	Kind    IntentKind `json:"kind"`
	Channel int        `json:"channel"`
	// Value is the normalized volume in [0.0, 1.0]. Only for IntentSetVolume.
	Value float64 `json:"value,omitempty"`
	// OutputID addresses the output to toggle. Only for IntentToggleOutput.
	OutputID int `json:"output_id,omitempty"`
}

func (i Intent) String() string {
	switch i.Kind {
	case IntentSetVolume:
		return fmt.Sprintf("SetVolume(ch=%d, v=%.3f)", i.Channel, i.Value)
	case IntentToggleMute:
		return fmt.Sprintf("ToggleMute(ch=%d)", i.Channel)
	case IntentToggleOutput:
		return fmt.Sprintf("ToggleOutput(ch=%d, output=%d)", i.Channel, i.OutputID)
	}
	return fmt.Sprintf("Intent(%q, ch=%d)", i.Kind, i.Channel)
}
