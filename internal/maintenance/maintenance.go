// Package maintenance runs background housekeeping for MIDI Deck: nightly
// backups of the config directory (config.yaml plus the session store) and
// pruning of old backup archives.
package maintenance

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"
)

const (
	backupPrefix = "midideck-config-"
	backupMaxAge = 90 * 24 * time.Hour
)

// Service manages the backup goroutine.
type Service struct {
	configDir string
	backupDir string
}

// New creates a maintenance Service. backupDir defaults to ~/backups when
// empty.
func New(configDir, backupDir string) *Service {
	if backupDir == "" {
		if home, err := os.UserHomeDir(); err == nil {
			backupDir = filepath.Join(home, "backups")
		}
	}
	return &Service{configDir: configDir, backupDir: backupDir}
}

// Start runs the nightly backup loop until ctx is cancelled. Backups run at
// 2am local time so they never race a user actively twiddling faders.
func (s *Service) Start(ctx context.Context) {
	for {
		now := time.Now()
		next := time.Date(now.Year(), now.Month(), now.Day(), 2, 0, 0, 0, now.Location())
		if !next.After(now) {
			next = next.Add(24 * time.Hour)
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(next.Sub(now)):
			path, err := s.RunBackupNow()
			if err != nil {
				slog.Error("maintenance: backup failed", "err", err)
			} else {
				slog.Info("maintenance: backup created", "file", path)
			}
		}
	}
}

// RunBackupNow creates a timestamped tar.gz of the config directory and
// returns its path. Existing archives older than 90 days are pruned.
func (s *Service) RunBackupNow() (string, error) {
	if s.backupDir == "" {
		return "", fmt.Errorf("no backup directory configured")
	}
	if err := os.MkdirAll(s.backupDir, 0755); err != nil {
		return "", fmt.Errorf("create backup dir: %w", err)
	}

	date := time.Now().Format("2006-01-02")
	destFile := filepath.Join(s.backupDir, backupPrefix+date+".tar.gz")

	cmd := exec.Command("tar", "-czf", destFile, "-C", filepath.Dir(s.configDir), filepath.Base(s.configDir))
	if out, err := cmd.CombinedOutput(); err != nil {
		return "", fmt.Errorf("tar: %w: %s", err, out)
	}

	s.pruneOldBackups(backupMaxAge)
	return destFile, nil
}

// ListBackups returns available backup files sorted by name (newest last).
func (s *Service) ListBackups() ([]string, error) {
	entries, err := os.ReadDir(s.backupDir)
	if os.IsNotExist(err) {
		return []string{}, nil
	}
	if err != nil {
		return nil, err
	}

	var files []string
	for _, e := range entries {
		if !e.IsDir() && strings.HasPrefix(e.Name(), backupPrefix) && strings.HasSuffix(e.Name(), ".tar.gz") {
			files = append(files, filepath.Join(s.backupDir, e.Name()))
		}
	}
	return files, nil
}

// pruneOldBackups deletes backup files older than maxAge.
func (s *Service) pruneOldBackups(maxAge time.Duration) {
	entries, err := os.ReadDir(s.backupDir)
	if err != nil {
		return
	}

	cutoff := time.Now().Add(-maxAge)
	for _, e := range entries {
		if e.IsDir() || !strings.HasPrefix(e.Name(), backupPrefix) {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		if info.ModTime().Before(cutoff) {
			path := filepath.Join(s.backupDir, e.Name())
			if err := os.Remove(path); err != nil {
				slog.Warn("maintenance: failed to prune old backup", "file", path, "err", err)
			} else {
				slog.Info("maintenance: pruned old backup", "file", path)
			}
		}
	}
}
