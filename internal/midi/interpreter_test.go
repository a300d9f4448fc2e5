package midi

import (
	"math"
	"testing"

	"github.com/midideck/midideck-go/internal/config"
	"github.com/midideck/midideck-go/internal/models"
)

type capture struct {
	intents []models.Intent
	full    bool
}

func (c *capture) submit(i models.Intent) bool {
	if c.full {
		return false
	}
	c.intents = append(c.intents, i)
	return true
}

func newTestInterpreter(t *testing.T) (*Interpreter, *capture) {
	t.Helper()
	cfg := config.Default()
	rec := &capture{}
	return NewInterpreter(func() *config.Config { return cfg }, rec.submit), rec
}

func TestControlChangeEmitsVolumeIntent(t *testing.T) {
	it, rec := newTestInterpreter(t)

	it.HandleControlChange(1, 64)

	if len(rec.intents) != 1 {
		t.Fatalf("expected 1 intent, got %d", len(rec.intents))
	}
	got := rec.intents[0]
	if got.Kind != models.IntentSetVolume || got.Channel != 1 {
		t.Errorf("intent = %+v", got)
	}
	if math.Abs(got.Value-64.0/127.0) > 1e-9 {
		t.Errorf("value = %v, want %v", got.Value, 64.0/127.0)
	}
}

func TestJitterFilterSuppressesSmallMoves(t *testing.T) {
	it, rec := newTestInterpreter(t)

	it.HandleControlChange(1, 64) // accepted (first value)
	it.HandleControlChange(1, 65) // |65-64| < 2, suppressed
	it.HandleControlChange(1, 64) // |64-64| < 2, suppressed
	it.HandleControlChange(1, 66) // |66-64| >= 2, accepted

	if len(rec.intents) != 2 {
		t.Fatalf("expected 2 intents, got %d: %+v", len(rec.intents), rec.intents)
	}
}

func TestJitterFilterComparesAgainstLastAccepted(t *testing.T) {
	it, rec := newTestInterpreter(t)

	// A slow creep in single steps: each step is below the threshold against
	// the last ACCEPTED value only until the distance accumulates.
	it.HandleControlChange(1, 10) // accepted
	it.HandleControlChange(1, 11) // suppressed (dist 1 from 10)
	it.HandleControlChange(1, 12) // accepted  (dist 2 from 10)
	it.HandleControlChange(1, 13) // suppressed (dist 1 from 12)

	if len(rec.intents) != 2 {
		t.Fatalf("expected 2 intents, got %d", len(rec.intents))
	}
}

func TestFullSweepEndsAtMaximum(t *testing.T) {
	it, rec := newTestInterpreter(t)

	for v := 0; v <= 127; v++ {
		it.HandleControlChange(1, uint8(v))
	}

	if len(rec.intents) == 0 {
		t.Fatal("sweep produced no intents")
	}
	last := rec.intents[len(rec.intents)-1]
	if last.Value != 1.0 {
		t.Errorf("sweep ended at %v, want exactly 1.0", last.Value)
	}
	// The filter thins the stream but must not decimate it to nothing.
	if len(rec.intents) < 32 {
		t.Errorf("sweep produced only %d intents", len(rec.intents))
	}
}

func TestControlChangeUnmappedChannelDropped(t *testing.T) {
	it, rec := newTestInterpreter(t)

	it.HandleControlChange(9, 64)

	if len(rec.intents) != 0 {
		t.Errorf("unmapped channel produced intents: %+v", rec.intents)
	}
}

func TestNoteOnEdgeTriggered(t *testing.T) {
	it, rec := newTestInterpreter(t)

	// Default layout: note 38 is mute for channel 1.
	it.HandleNoteOn(38)
	it.HandleNoteOff(38)

	if len(rec.intents) != 1 {
		t.Fatalf("press+release produced %d intents, want exactly 1", len(rec.intents))
	}
	got := rec.intents[0]
	if got.Kind != models.IntentToggleMute || got.Channel != 1 {
		t.Errorf("intent = %+v", got)
	}
}

func TestNoteOnOutputActions(t *testing.T) {
	it, rec := newTestInterpreter(t)

	it.HandleNoteOn(36) // speaker, channel 1
	it.HandleNoteOn(37) // headphone, channel 1

	if len(rec.intents) != 2 {
		t.Fatalf("expected 2 intents, got %d", len(rec.intents))
	}
	if rec.intents[0].Kind != models.IntentToggleOutput || rec.intents[0].OutputID != 1 {
		t.Errorf("speaker intent = %+v", rec.intents[0])
	}
	if rec.intents[1].Kind != models.IntentToggleOutput || rec.intents[1].OutputID != 2 {
		t.Errorf("headphone intent = %+v", rec.intents[1])
	}
}

func TestNoteOnUnmappedDropped(t *testing.T) {
	it, rec := newTestInterpreter(t)

	it.HandleNoteOn(127)

	if len(rec.intents) != 0 {
		t.Errorf("unmapped note produced intents: %+v", rec.intents)
	}
}

func TestResetFilterForgetsHistory(t *testing.T) {
	it, rec := newTestInterpreter(t)

	it.HandleControlChange(1, 64)
	it.ResetFilter()
	it.HandleControlChange(1, 64) // would be suppressed without the reset

	if len(rec.intents) != 2 {
		t.Fatalf("expected 2 intents after reset, got %d", len(rec.intents))
	}
}

func TestFullQueueDropsIntent(t *testing.T) {
	it, rec := newTestInterpreter(t)
	rec.full = true

	it.HandleControlChange(1, 64)
	it.HandleNoteOn(38)

	if len(rec.intents) != 0 {
		t.Errorf("expected drops with a full queue, got %+v", rec.intents)
	}
}
