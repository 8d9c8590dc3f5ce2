// Package filestore keeps the settings record in a JSON file on disk, the
// format field devices have always written. Edits made to the file by hand
// are picked up by Run without a restart.
package filestore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/shaw77735-web/JuteVisionAudit/internal/jutevision/store"
)

const defaultDebounce = 250 * time.Millisecond

// SettingsStore caches the file contents; LoadSettings never touches disk.
type SettingsStore struct {
	path     string
	logger   *slog.Logger
	debounce time.Duration

	mu     sync.RWMutex
	cached store.SettingsRecord
}

// Open reads path into the cache. A missing file yields the zero record;
// an unreadable or malformed one is an error.
func Open(path string, logger *slog.Logger) (*SettingsStore, error) {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	s := &SettingsStore{
		path:     filepath.Clean(path),
		logger:   logger,
		debounce: defaultDebounce,
	}
	rec, err := s.read()
	switch {
	case errors.Is(err, fs.ErrNotExist):
	case err != nil:
		return nil, err
	default:
		s.cached = rec
	}
	return s, nil
}

// SetDebounce changes how long Run waits after the last file event before
// reloading.
func (s *SettingsStore) SetDebounce(d time.Duration) {
	if d > 0 {
		s.debounce = d
	}
}

func (s *SettingsStore) LoadSettings(_ context.Context) (store.SettingsRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cached, nil
}

// SaveSettings writes the record through a temp file and rename so a
// concurrent reader never sees a partial file.
func (s *SettingsStore) SaveSettings(_ context.Context, rec store.SettingsRecord) error {
	b, err := json.MarshalIndent(rec, "", "  ")
	if err != nil {
		return fmt.Errorf("encode settings: %w", err)
	}

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("mkdir %s: %w", dir, err)
	}

	tmp, err := os.CreateTemp(dir, ".settings-*.json")
	if err != nil {
		return fmt.Errorf("create temp settings: %w", err)
	}
	defer os.Remove(tmp.Name())

	if err := tmp.Chmod(0o600); err != nil {
		tmp.Close()
		return fmt.Errorf("chmod settings: %w", err)
	}
	if _, err := tmp.Write(append(b, '\n')); err != nil {
		tmp.Close()
		return fmt.Errorf("write settings: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close settings: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := os.Rename(tmp.Name(), s.path); err != nil {
		return fmt.Errorf("replace settings: %w", err)
	}
	s.cached = rec
	return nil
}

// Reload re-reads the file into the cache. On error the cache is kept,
// and a file that has gone missing counts as an error: moving the file
// away must not switch the locks off.
func (s *SettingsStore) Reload() error {
	rec, err := s.read()
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.cached = rec
	s.mu.Unlock()
	return nil
}

// Run watches the settings directory and reloads the cache after changes
// to the settings file settle. Blocks until ctx is cancelled.
func (s *SettingsStore) Run(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create settings watcher: %w", err)
	}
	defer watcher.Close()

	// The directory is watched, not the file: SaveSettings and most
	// editors replace the file, which drops a watch on the old inode.
	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("mkdir %s: %w", dir, err)
	}
	if err := watcher.Add(dir); err != nil {
		return fmt.Errorf("watch %s: %w", dir, err)
	}

	var debounce *time.Timer
	defer func() {
		if debounce != nil {
			debounce.Stop()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != s.path {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) && !event.Has(fsnotify.Rename) {
				continue
			}
			if debounce != nil {
				debounce.Stop()
			}
			debounce = time.AfterFunc(s.debounce, func() {
				if err := s.Reload(); err != nil {
					s.logger.Warn("settings reload failed", "path", s.path, "err", err)
					return
				}
				s.logger.Info("settings reloaded", "path", s.path)
			})

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			s.logger.Warn("settings watcher error", "err", err)
		}
	}
}

func (s *SettingsStore) read() (store.SettingsRecord, error) {
	b, err := os.ReadFile(s.path)
	if err != nil {
		return store.SettingsRecord{}, fmt.Errorf("read settings %s: %w", s.path, err)
	}

	// Missing keys keep their zero value.
	var rec store.SettingsRecord
	if err := json.Unmarshal(b, &rec); err != nil {
		return store.SettingsRecord{}, fmt.Errorf("parse settings %s: %w", s.path, err)
	}
	return rec, nil
}
