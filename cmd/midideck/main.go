// Command midideck is the MIDI Deck daemon: it maps a hardware MIDI control
// surface onto virtual PulseAudio sinks, keeping fader positions, mute
// buttons and output routing reconciled with the audio server.
// Run with --mock to use a simulated audio backend (no PulseAudio required).
package main

import (
	"context"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/midideck/midideck-go/internal/api"
	"github.com/midideck/midideck-go/internal/backend"
	"github.com/midideck/midideck-go/internal/config"
	"github.com/midideck/midideck-go/internal/controller"
	"github.com/midideck/midideck-go/internal/events"
	"github.com/midideck/midideck-go/internal/maintenance"
	"github.com/midideck/midideck-go/internal/midi"
	"github.com/midideck/midideck-go/internal/models"
	"github.com/midideck/midideck-go/internal/sessions"
	"github.com/midideck/midideck-go/internal/zeroconf"
)

const version = "0.5.0"

func main() {
	var (
		mock        = flag.Bool("mock", false, "use mock audio backend (no PulseAudio required)")
		addr        = flag.String("addr", ":8090", "HTTP listen address")
		cfgDir      = flag.String("config-dir", "", "config directory (default: ~/.config/midideck)")
		debug       = flag.Bool("debug", false, "enable debug logging")
		noWeb       = flag.Bool("no-web", false, "disable the HTTP API and mDNS advertisement")
		resyncEvery = flag.Duration("resync", 15*time.Second, "interval between reconciliation passes")
	)
	flag.Parse()

	// Configure logging
	logLevel := slog.LevelInfo
	if *debug {
		logLevel = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: logLevel})))

	// Resolve config directory
	if *cfgDir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			slog.Error("cannot determine home directory", "err", err)
			os.Exit(1)
		}
		*cfgDir = filepath.Join(home, ".config", "midideck")
	}
	if err := os.MkdirAll(*cfgDir, 0755); err != nil {
		slog.Error("cannot create config directory", "path", *cfgDir, "err", err)
		os.Exit(1)
	}

	// Graceful shutdown context
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	// Config with hot reload
	provider, err := config.NewProvider(filepath.Join(*cfgDir, "config.yaml"))
	if err != nil {
		slog.Error("config load failed", "err", err)
		os.Exit(1)
	}
	cfg := provider.Current()
	slog.Info("config loaded",
		"device", cfg.DeviceName,
		"sinks", len(cfg.Sinks),
		"outputs", len(cfg.Outputs),
		"mappings", len(cfg.Mappings),
	)

	// Audio backend
	var adapter backend.Adapter
	if *mock {
		slog.Info("using mock audio backend")
		devices := make([]string, 0, len(cfg.Outputs))
		for _, out := range cfg.Outputs {
			devices = append(devices, out.DeviceName)
		}
		adapter = backend.NewMock(devices...)
	} else {
		slog.Info("using pactl audio backend")
		adapter = backend.NewPulse()
	}

	// Event bus
	bus := events.NewBus()

	// Controller: seed state, create backend sinks, reconcile once, then run.
	ctrl := controller.New(adapter, cfg, bus, models.Info{Version: version, Mock: *mock})
	provider.OnReload(ctrl.Reconfigure)
	go provider.Watch(ctx)

	bootCtx, bootCancel := context.WithTimeout(ctx, 30*time.Second)
	if err := ctrl.Bootstrap(bootCtx); err != nil {
		bootCancel()
		slog.Error("bootstrap failed", "err", err)
		os.Exit(1)
	}
	if err := ctrl.Resync(bootCtx); err != nil {
		slog.Warn("initial resync failed", "err", err)
	}
	bootCancel()
	runDone := make(chan struct{})
	go func() {
		ctrl.Run(ctx, *resyncEvery)
		close(runDone)
	}()

	// Sessions
	sessionStore := sessions.NewJSONStore(*cfgDir)
	sessionMgr, err := sessions.NewManager(sessionStore, ctrl)
	if err != nil {
		slog.Error("session store load failed", "err", err)
		os.Exit(1)
	}
	if cur, ok := sessionMgr.Current(); ok {
		if warnings, appErr := sessionMgr.Activate(ctx, cur.ID); appErr != nil {
			slog.Warn("could not restore current session", "session", cur.Name, "err", appErr.Message)
		} else if len(warnings) > 0 {
			slog.Warn("current session restored partially", "session", cur.Name, "warnings", len(warnings))
		}
	}

	// Nightly config/session backups
	maint := maintenance.New(*cfgDir, "")
	go maint.Start(ctx)

	// MIDI surface
	interp := midi.NewInterpreter(provider.Current, ctrl.Submit)
	watcher, err := midi.NewWatcher(interp, provider.Current)
	if err != nil {
		slog.Error("midi driver initialization failed", "err", err)
		os.Exit(1)
	}
	go watcher.Run(ctx)

	// HTTP API + mDNS
	var srv *http.Server
	if !*noWeb {
		port := 8090
		if parts := strings.SplitN(*addr, ":", 2); len(parts) == 2 && parts[1] != "" {
			if p, err := strconv.Atoi(parts[1]); err == nil {
				port = p
			}
		}
		zc := zeroconf.New("midideck", port, version)
		go func() {
			if err := zc.Start(ctx); err != nil {
				slog.Warn("zeroconf failed", "err", err)
			}
		}()

		srv = &http.Server{
			Addr:         *addr,
			Handler:      api.NewRouter(ctrl, sessionMgr, bus),
			ReadTimeout:  30 * time.Second,
			WriteTimeout: 0, // 0 = no timeout (needed for SSE)
			IdleTimeout:  120 * time.Second,
		}
		go func() {
			slog.Info("MIDI Deck listening", "addr", *addr, "mock", *mock, "config", *cfgDir)
			if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				slog.Error("server error", "err", err)
			}
		}()
	}

	// Wait for shutdown signal
	<-ctx.Done()
	slog.Info("shutting down...")

	shutCtx, shutCancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer shutCancel()

	// Wait for the controller loop to drain queued intents, so the auto-save
	// below captures the last fader moves.
	select {
	case <-runDone:
	case <-time.After(10 * time.Second):
		slog.Warn("intent queue drain timed out")
	}

	// Auto-save the current session so fader positions survive a restart.
	if provider.Current().AutoSave {
		if appErr := sessionMgr.SaveCurrent(); appErr != nil {
			slog.Warn("auto-save failed", "err", appErr.Message)
		}
	}
	if err := sessionMgr.Flush(); err != nil {
		slog.Warn("failed to flush session store", "err", err)
	}

	if srv != nil {
		if err := srv.Shutdown(shutCtx); err != nil {
			slog.Warn("server shutdown error", "err", err)
		}
	}

	slog.Info("shutdown complete")
}
