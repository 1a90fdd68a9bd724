package model

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"

	"github.com/fsnotify/fsnotify"

	"github.com/papercomputeco/strata/pkg/logger"
)

// Watch reloads the model at path whenever it is written or replaced and
// hands it to onLoad. Invalid files are logged and skipped; the previous
// model stays installed. Watch blocks until ctx is cancelled.
func Watch(ctx context.Context, path string, onLoad func(*CentroidModel), log *slog.Logger) error {
	if log == nil {
		log = logger.Nop()
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("creating model watcher: %w", err)
	}
	defer watcher.Close()

	// Watch the directory: Save replaces the file by rename, which drops a
	// watch on the file itself.
	if err := watcher.Add(filepath.Dir(path)); err != nil {
		return fmt.Errorf("watching model dir: %w", err)
	}

	target := filepath.Clean(path)
	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != target {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}

			m, err := Load(path)
			if err != nil {
				log.Warn("ignoring invalid model file", "path", path, "error", err)
				continue
			}
			log.Info("reloaded strategy model", "path", path, "samples", m.SampleCount)
			onLoad(m)
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			return fmt.Errorf("model watcher error: %w", err)
		}
	}
}
