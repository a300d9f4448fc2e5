package backend

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"os/exec"
	"strconv"
	"strings"
	"sync"

	"golang.org/x/time/rate"

	"github.com/midideck/midideck-go/internal/models"
)

// maxOpsPerSec bounds how fast we hammer the audio server with pactl
// invocations. A burst allowance covers bootstrap, where several sinks and
// loopbacks are set up back to back.
const maxOpsPerSec = 50

type loopKey struct {
	sink   string
	device string
}

// Pulse is the real Adapter backed by pactl subprocess invocations.
// Module IDs returned by load-module are cached so unloads don't need to
// rescan the module list, but the cache is only an optimization: every
// lookup falls back to the live module list.
type Pulse struct {
	mu          sync.Mutex
	pactl       string
	limiter     *rate.Limiter
	sinkModules map[string]int // virtual sink name → null-sink module id
	loopbacks   map[loopKey]int
}

// NewPulse creates a pactl-backed adapter.
func NewPulse() *Pulse {
	path := "pactl"
	if p, err := exec.LookPath("pactl"); err == nil {
		path = p
	}
	return &Pulse{
		pactl:       path,
		limiter:     rate.NewLimiter(rate.Limit(maxOpsPerSec), 10),
		sinkModules: make(map[string]int),
		loopbacks:   make(map[loopKey]int),
	}
}

// run executes pactl with the given arguments and returns its stdout.
func (p *Pulse) run(ctx context.Context, args ...string) (string, error) {
	if err := p.limiter.Wait(ctx); err != nil {
		return "", err
	}
	cmd := exec.CommandContext(ctx, p.pactl, args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		msg := strings.TrimSpace(stderr.String())
		if msg == "" {
			msg = err.Error()
		}
		return "", fmt.Errorf("pactl %s: %s", args[0], msg)
	}
	return stdout.String(), nil
}

func (p *Pulse) ListSinks(ctx context.Context) ([]SinkInfo, error) {
	out, err := p.run(ctx, "list", "sinks")
	if err != nil {
		return nil, err
	}
	return parseSinks(out), nil
}

func (p *Pulse) ListOutputs(ctx context.Context) ([]string, error) {
	sinks, err := p.ListSinks(ctx)
	if err != nil {
		return nil, err
	}
	virtual, err := p.nullSinkNames(ctx)
	if err != nil {
		return nil, err
	}
	var outputs []string
	for _, s := range sinks {
		if !virtual[s.Name] {
			outputs = append(outputs, s.Name)
		}
	}
	return outputs, nil
}

func (p *Pulse) CreateSink(ctx context.Context, name, description string) error {
	present, err := p.nullSinkNames(ctx)
	if err != nil {
		return err
	}
	if present[name] {
		slog.Debug("backend: sink already exists, skipping create", "sink", name)
		return nil
	}

	out, err := p.run(ctx, "load-module", "module-null-sink",
		"sink_name="+name,
		fmt.Sprintf("sink_properties=device.description=%q", description))
	if err != nil {
		return err
	}
	id, err := parseModuleID(out)
	if err != nil {
		// Sink was created; we just can't cache the module id.
		slog.Warn("backend: created sink but could not parse module id", "sink", name, "err", err)
		return nil
	}

	p.mu.Lock()
	p.sinkModules[name] = id
	p.mu.Unlock()
	slog.Info("backend: created virtual sink", "sink", name, "module", id)
	return nil
}

func (p *Pulse) RemoveSink(ctx context.Context, name string) error {
	p.mu.Lock()
	id, ok := p.sinkModules[name]
	p.mu.Unlock()

	if !ok {
		modules, err := p.run(ctx, "list", "short", "modules")
		if err != nil {
			return err
		}
		for _, m := range parseShortModules(modules) {
			if m.Name != "module-null-sink" {
				continue
			}
			if n, found := parseModuleArg(m.Args, "sink_name"); found && n == name {
				id, ok = m.ID, true
				break
			}
		}
	}
	if !ok {
		slog.Debug("backend: sink not present, nothing to remove", "sink", name)
		return nil
	}

	if _, err := p.run(ctx, "unload-module", strconv.Itoa(id)); err != nil {
		return err
	}
	p.mu.Lock()
	delete(p.sinkModules, name)
	p.mu.Unlock()
	slog.Info("backend: removed virtual sink", "sink", name, "module", id)
	return nil
}

func (p *Pulse) SetVolume(ctx context.Context, sink string, vol float64) error {
	pct := int(models.ClampVolume(vol)*100 + 0.5)
	_, err := p.run(ctx, "set-sink-volume", sink, fmt.Sprintf("%d%%", pct))
	return err
}

func (p *Pulse) SetMute(ctx context.Context, sink string, muted bool) error {
	arg := "0"
	if muted {
		arg = "1"
	}
	_, err := p.run(ctx, "set-sink-mute", sink, arg)
	return err
}

func (p *Pulse) Connect(ctx context.Context, sink, device string) error {
	if id, ok, err := p.findLoopback(ctx, sink, device); err != nil {
		return err
	} else if ok {
		slog.Debug("backend: loopback already connected", "sink", sink, "device", device, "module", id)
		return nil
	}

	out, err := p.run(ctx, "load-module", "module-loopback",
		"source="+sink+".monitor",
		"sink="+device)
	if err != nil {
		return err
	}
	id, err := parseModuleID(out)
	if err != nil {
		slog.Warn("backend: connected loopback but could not parse module id",
			"sink", sink, "device", device, "err", err)
		return nil
	}

	p.mu.Lock()
	p.loopbacks[loopKey{sink, device}] = id
	p.mu.Unlock()
	slog.Info("backend: connected loopback", "sink", sink, "device", device, "module", id)
	return nil
}

func (p *Pulse) Disconnect(ctx context.Context, sink, device string) error {
	id, ok, err := p.findLoopback(ctx, sink, device)
	if err != nil {
		return err
	}
	if !ok {
		slog.Debug("backend: no loopback to disconnect", "sink", sink, "device", device)
		return nil
	}

	if _, err := p.run(ctx, "unload-module", strconv.Itoa(id)); err != nil {
		return err
	}
	p.mu.Lock()
	delete(p.loopbacks, loopKey{sink, device})
	p.mu.Unlock()
	slog.Info("backend: disconnected loopback", "sink", sink, "device", device, "module", id)
	return nil
}

func (p *Pulse) Observe(ctx context.Context) (Observation, error) {
	sinksOut, err := p.run(ctx, "list", "sinks")
	if err != nil {
		return Observation{}, err
	}
	modulesOut, err := p.run(ctx, "list", "short", "modules")
	if err != nil {
		return Observation{}, err
	}

	obs := Observation{Sinks: parseSinks(sinksOut)}
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, m := range parseShortModules(modulesOut) {
		if m.Name != "module-loopback" {
			continue
		}
		if sink, device, ok := parseLoopbackArgs(m.Args); ok {
			obs.Connections = append(obs.Connections, models.ObservedConnection{
				SinkName:   sink,
				DeviceName: device,
			})
			p.loopbacks[loopKey{sink, device}] = m.ID
		}
	}
	return obs, nil
}

// findLoopback resolves the module id of an existing loopback, consulting
// the cache first and the live module list second.
func (p *Pulse) findLoopback(ctx context.Context, sink, device string) (int, bool, error) {
	key := loopKey{sink, device}
	p.mu.Lock()
	if id, ok := p.loopbacks[key]; ok {
		p.mu.Unlock()
		return id, true, nil
	}
	p.mu.Unlock()

	out, err := p.run(ctx, "list", "short", "modules")
	if err != nil {
		return 0, false, err
	}
	for _, m := range parseShortModules(out) {
		if m.Name != "module-loopback" {
			continue
		}
		if s, d, ok := parseLoopbackArgs(m.Args); ok && s == sink && d == device {
			p.mu.Lock()
			p.loopbacks[key] = m.ID
			p.mu.Unlock()
			return m.ID, true, nil
		}
	}
	return 0, false, nil
}

// nullSinkNames returns the set of sink names owned by module-null-sink,
// i.e. the virtual sinks currently loaded.
func (p *Pulse) nullSinkNames(ctx context.Context) (map[string]bool, error) {
	out, err := p.run(ctx, "list", "short", "modules")
	if err != nil {
		return nil, err
	}
	names := make(map[string]bool)
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, m := range parseShortModules(out) {
		if m.Name != "module-null-sink" {
			continue
		}
		if name, ok := parseModuleArg(m.Args, "sink_name"); ok {
			names[name] = true
			p.sinkModules[name] = m.ID
		}
	}
	return names, nil
}

var _ Adapter = (*Pulse)(nil)
