package config

import (
	"context"
	"log/slog"
	"path/filepath"
	"sync"

	"github.com/fsnotify/fsnotify"
)

// Provider serves the current Config and hot-reloads it when the file
// changes on disk. Readers get an immutable snapshot; a failed reload keeps
// the previous config in place.
type Provider struct {
	path    string
	watcher *fsnotify.Watcher

	mu       sync.RWMutex
	cfg      *Config
	onReload []func(*Config)
}

// NewProvider loads the config at path and sets up (but does not start)
// the file watcher. Call Watch to enable hot reload.
func NewProvider(path string) (*Provider, error) {
	cfg, err := Load(path)
	if err != nil {
		return nil, err
	}

	p := &Provider{path: path, cfg: cfg}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		slog.Warn("config: could not create fsnotify watcher, hot reload disabled", "err", err)
		return p, nil
	}
	// Watch the directory: editors replace the file, which would drop a
	// watch on the file itself.
	if err := watcher.Add(filepath.Dir(path)); err != nil {
		slog.Warn("config: could not watch config directory, hot reload disabled", "err", err)
		watcher.Close()
		return p, nil
	}
	p.watcher = watcher
	return p, nil
}

// Current returns the active config snapshot.
func (p *Provider) Current() *Config {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.cfg
}

// OnReload registers a callback invoked with the new config after every
// successful reload. Must be called before Watch.
func (p *Provider) OnReload(fn func(*Config)) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.onReload = append(p.onReload, fn)
}

// Watch processes file events until ctx is cancelled.
func (p *Provider) Watch(ctx context.Context) {
	if p.watcher == nil {
		return
	}
	defer p.watcher.Close()
	for {
		select {
		case event, ok := <-p.watcher.Events:
			if !ok {
				return
			}
			if event.Name == p.path && (event.Has(fsnotify.Write) || event.Has(fsnotify.Create)) {
				p.reload()
			}
		case err, ok := <-p.watcher.Errors:
			if !ok {
				return
			}
			slog.Warn("config: watcher error", "err", err)
		case <-ctx.Done():
			return
		}
	}
}

func (p *Provider) reload() {
	cfg, err := Load(p.path)
	if err != nil {
		slog.Warn("config: reload failed, keeping previous config", "path", p.path, "err", err)
		return
	}

	p.mu.Lock()
	p.cfg = cfg
	callbacks := make([]func(*Config), len(p.onReload))
	copy(callbacks, p.onReload)
	p.mu.Unlock()

	slog.Info("config: reloaded", "path", p.path,
		"sinks", len(cfg.Sinks), "outputs", len(cfg.Outputs), "mappings", len(cfg.Mappings))
	for _, fn := range callbacks {
		fn(cfg)
	}
}
