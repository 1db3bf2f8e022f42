package config

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
	log "github.com/sirupsen/logrus"
)

// Watch reloads path whenever it changes and hands the new configuration to
// fn. The directory is watched so editors that replace the file are seen.
// Invalid files are logged and skipped. Watching stops when ctx is done.
func Watch(ctx context.Context, path string, fn func(*Config)) error {
	abs, err := filepath.Abs(path)
	if err != nil {
		return fmt.Errorf("failed to resolve config path: %w", err)
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}
	if err := watcher.Add(filepath.Dir(abs)); err != nil {
		watcher.Close()
		return fmt.Errorf("failed to watch %s: %w", filepath.Dir(abs), err)
	}

	log.WithField("path", abs).Info("👀 Watching configuration file")

	go func() {
		defer watcher.Close()
		for {
			select {
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if filepath.Clean(event.Name) != abs || !event.Has(fsnotify.Write|fsnotify.Create) {
					continue
				}
				cfg, err := Load(abs)
				if err != nil {
					log.WithError(err).WithField("path", abs).Warn("Ignoring invalid configuration change")
					continue
				}
				log.WithField("path", abs).Info("🔄 Configuration reloaded")
				fn(cfg)

			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				log.WithError(err).Warn("Configuration watcher error")

			case <-ctx.Done():
				return
			}
		}
	}()
	return nil
}
