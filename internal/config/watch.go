// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Bucks County Community Church

package config

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/sirupsen/logrus"
)

// reloadDelay coalesces the burst of events editors produce on save
const reloadDelay = 100 * time.Millisecond

// Watch reloads path whenever it changes and hands each successfully parsed
// config to onChange. A file that fails to parse is logged and ignored, so
// the caller keeps running on the last good config.
//
// The parent directory is watched rather than the file, so saves done by
// writing a temp file and renaming it over the original are seen. Watch
// blocks until ctx is done.
func Watch(ctx context.Context, path string, log logrus.FieldLogger, onChange func(*Config)) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("config watcher: %w", err)
	}
	defer watcher.Close()

	abs, err := filepath.Abs(path)
	if err != nil {
		return fmt.Errorf("config watcher: %w", err)
	}
	if err := watcher.Add(filepath.Dir(abs)); err != nil {
		return fmt.Errorf("config watcher: %w", err)
	}
	log.Debugf("watching %s for changes", abs)

	var pending <-chan time.Time
	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			name, _ := filepath.Abs(event.Name)
			if name != abs {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			log.Debugf("config file changed: %s %s", event.Name, event.Op)
			pending = time.After(reloadDelay)

		case <-pending:
			pending = nil
			cfg, err := Load(path)
			if err != nil {
				log.WithError(err).Error("config reload failed, keeping previous config")
				continue
			}
			log.Infof("config reloaded: %d presets", len(cfg.Presets))
			onChange(cfg)

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			log.WithError(err).Warn("config watcher error")
		}
	}
}
