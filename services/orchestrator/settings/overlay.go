// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package settings

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"gopkg.in/yaml.v3"
)

// DefaultReloadDebounce is how long the overlay watcher waits after the
// last file event before reloading.
const DefaultReloadDebounce = 250 * time.Millisecond

// ReadDefaultsFile parses a YAML defaults overlay.
//
// The file holds a partial settings tree keyed by section, for example:
//
//	chat:
//	  provider: anthropic
//	  temperature: 0.4
//	eval:
//	  accuracy_bias: 0.8
func ReadDefaultsFile(path string) (map[string]any, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading defaults file: %w", err)
	}
	overlay := map[string]any{}
	if err := yaml.Unmarshal(data, &overlay); err != nil {
		return nil, fmt.Errorf("parsing defaults file %s: %w", path, err)
	}
	return overlay, nil
}

// LoadDefaultsFile reads a YAML overlay and installs it as the base
// defaults.
func (s *Store) LoadDefaultsFile(path string) error {
	overlay, err := ReadDefaultsFile(path)
	if err != nil {
		return err
	}
	if err := s.SetDefaults(overlay); err != nil {
		return fmt.Errorf("applying defaults file %s: %w", path, err)
	}
	return nil
}

// WatchDefaults reloads the overlay whenever path changes.
//
// # Description
//
// Watches the file's directory (editors often replace files rather than
// write them in place) and reloads after events on path go quiet for
// debounce. A file that fails to parse is logged and the previous defaults
// stay in effect. The watcher stops when ctx is cancelled.
//
// # Inputs
//
//   - ctx: Lifetime of the watcher.
//   - path: YAML overlay file.
//   - debounce: Quiet period; zero or less uses DefaultReloadDebounce.
//   - onReload: Optional callback after each reload attempt.
//
// # Outputs
//
//   - error: Non-nil if the watcher cannot be created.
func (s *Store) WatchDefaults(ctx context.Context, path string, debounce time.Duration, onReload func(error)) error {
	if debounce <= 0 {
		debounce = DefaultReloadDebounce
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return fmt.Errorf("resolving defaults path: %w", err)
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("creating defaults watcher: %w", err)
	}
	if err := watcher.Add(filepath.Dir(abs)); err != nil {
		watcher.Close()
		return fmt.Errorf("watching %s: %w", filepath.Dir(abs), err)
	}

	go func() {
		defer watcher.Close()

		var (
			timer  *time.Timer
			timerC <-chan time.Time
		)
		for {
			select {
			case <-ctx.Done():
				if timer != nil {
					timer.Stop()
				}
				return
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if filepath.Clean(event.Name) != abs {
					continue
				}
				if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) && !event.Has(fsnotify.Rename) {
					continue
				}
				if timer == nil {
					timer = time.NewTimer(debounce)
				} else {
					timer.Reset(debounce)
				}
				timerC = timer.C
			case <-timerC:
				timerC = nil
				err := s.LoadDefaultsFile(abs)
				if err != nil {
					slog.Warn("settings defaults reload failed", "path", abs, "error", err)
				} else {
					slog.Info("settings defaults reloaded", "path", abs)
				}
				if onReload != nil {
					onReload(err)
				}
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				slog.Warn("settings defaults watcher error", "error", err)
			}
		}
	}()
	return nil
}
