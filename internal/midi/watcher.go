package midi

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"gitlab.com/gomidi/midi/v2"
	"gitlab.com/gomidi/midi/v2/drivers"
	"gitlab.com/gomidi/midi/v2/drivers/rtmididrv"

	"github.com/midideck/midideck-go/internal/config"
)

const rescanInterval = 2 * time.Second

// Watcher maintains the connection to the MIDI control surface. It handles
// hot-plug transparently: a disappearing device is reported and the watcher
// keeps rescanning on its own schedule until the device returns. Event
// processing itself never blocks on reconnection.
type Watcher struct {
	interp *Interpreter
	cfg    func() *config.Config
	drv    *rtmididrv.Driver

	mu        sync.Mutex
	inPort    drivers.In
	stopFn    func()
	connected bool
	portName  string
	wantName  string
}

// NewWatcher creates a watcher and initializes the underlying rtmidi
// driver. Call Run to start scanning; Close when done.
func NewWatcher(interp *Interpreter, cfg func() *config.Config) (*Watcher, error) {
	drv, err := rtmididrv.New()
	if err != nil {
		return nil, fmt.Errorf("rtmididrv: %w", err)
	}
	return &Watcher{interp: interp, cfg: cfg, drv: drv}, nil
}

// Connected reports whether a device is currently attached.
func (w *Watcher) Connected() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.connected
}

// Run scans for the configured device until ctx is cancelled.
func (w *Watcher) Run(ctx context.Context) {
	w.tick()
	ticker := time.NewTicker(rescanInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			w.tick()
		case <-ctx.Done():
			w.Close()
			return
		}
	}
}

// Close shuts down the active connection and the rtmidi driver.
func (w *Watcher) Close() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.closeConn()
	w.drv.Close()
}

func (w *Watcher) tick() {
	w.mu.Lock()
	defer w.mu.Unlock()

	want := w.cfg().DeviceName

	if w.connected {
		// A config change to another device name forces a reconnect.
		if want == w.wantName && w.portPresent(w.portName) {
			return
		}
		slog.Warn("midi: device gone or reconfigured, disconnecting", "port", w.portName)
		w.closeConn()
	}

	port, ok := w.findPort(want)
	if !ok {
		slog.Debug("midi: device unavailable", "device", want)
		return
	}
	if err := w.open(port); err != nil {
		slog.Error("midi: connect failed", "port", port.String(), "err", err)
		return
	}
	w.wantName = want
}

// findPort returns the first input port whose name contains the configured
// device name.
func (w *Watcher) findPort(name string) (drivers.In, bool) {
	ins, err := w.drv.Ins()
	if err != nil {
		slog.Error("midi: list inputs failed", "err", err)
		return nil, false
	}
	for _, in := range ins {
		if strings.Contains(strings.ToLower(in.String()), strings.ToLower(name)) {
			return in, true
		}
	}
	return nil, false
}

func (w *Watcher) portPresent(name string) bool {
	ins, err := w.drv.Ins()
	if err != nil {
		return false
	}
	for _, in := range ins {
		if in.String() == name {
			return true
		}
	}
	return false
}

func (w *Watcher) open(port drivers.In) error {
	if err := port.Open(); err != nil {
		return fmt.Errorf("open %q: %w", port.String(), err)
	}
	name := port.String()

	stop, err := midi.ListenTo(port, func(msg midi.Message, _ int32) {
		var ch, key, vel, cc, val uint8
		switch {
		case msg.GetControlChange(&ch, &cc, &val):
			w.interp.HandleControlChange(cc, val)
		case msg.GetNoteStart(&ch, &key, &vel):
			w.interp.HandleNoteOn(key)
		case msg.GetNoteEnd(&ch, &key):
			w.interp.HandleNoteOff(key)
		default:
			slog.Debug("midi: unhandled message", "msg", msg.String())
		}
	}, midi.HandleError(func(listenErr error) {
		slog.Warn("midi: listener error, device likely disconnected", "port", name, "err", listenErr)
		// The listener goroutine must not tear itself down; dispatch and
		// re-acquire the lock from a fresh goroutine.
		go func() {
			w.mu.Lock()
			defer w.mu.Unlock()
			if w.connected && w.portName == name {
				w.closeConn()
			}
		}()
	}))
	if err != nil {
		_ = port.Close()
		return fmt.Errorf("listen %q: %w", name, err)
	}

	w.inPort = port
	w.stopFn = stop
	w.connected = true
	w.portName = name
	// Fader positions are unknown after (re)connect.
	w.interp.ResetFilter()
	slog.Info("midi: connected", "port", name)
	return nil
}

// closeConn tears down the current connection. Caller holds w.mu.
func (w *Watcher) closeConn() {
	if w.stopFn != nil {
		w.stopFn()
		w.stopFn = nil
	}
	if w.inPort != nil {
		_ = w.inPort.Close()
		w.inPort = nil
	}
	w.connected = false
	w.portName = ""
}
