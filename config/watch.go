package config

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/fsnotify/fsnotify"

	"song-recognition/logger"
	"song-recognition/provider"
)

// WatchProviderSettings delivers the settings in path on top of base once at
// start (if the file exists) and again whenever the file is written or
// replaced. it blocks until ctx is done.
func WatchProviderSettings(ctx context.Context, path string, base provider.Settings, fn func(provider.Settings)) error {
	path, err := filepath.Abs(path)
	if err != nil {
		return fmt.Errorf("failed to resolve settings file: %w", err)
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}
	defer watcher.Close()

	// editors often replace the file, so watch its directory
	if err := watcher.Add(filepath.Dir(path)); err != nil {
		return fmt.Errorf("failed to watch %s: %w", filepath.Dir(path), err)
	}

	reload := func() {
		settings, err := ReadProviderSettings(path, base)
		if err != nil {
			logger.Warn("[config] failed to read settings file", logger.String("path", path), logger.ErrorField(err))
			return
		}
		logger.Info("[config] provider settings loaded",
			logger.String("path", path),
			logger.String("provider", settings.Active.String()))
		fn(settings)
	}

	if _, err := os.Stat(path); err == nil {
		reload()
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != path {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) != 0 {
				reload()
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			logger.Warn("[config] watcher error", logger.ErrorField(err))
		}
	}
}
