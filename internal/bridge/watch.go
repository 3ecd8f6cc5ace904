package bridge

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
	"gopkg.in/yaml.v3"

	"autokudo/internal/domain"
)

// LoadSettingsFile reads a YAML settings form from path.
func LoadSettingsFile(path string) (domain.SettingsForm, error) {
	var form domain.SettingsForm

	data, err := os.ReadFile(path)
	if err != nil {
		return form, fmt.Errorf("read settings file: %w", err)
	}

	if err := yaml.Unmarshal(data, &form); err != nil {
		return form, fmt.Errorf("parse settings file: %w", err)
	}
	return form, nil
}

// Watch applies the settings file at path every time it is written, until
// ctx is cancelled. The parent directory is watched so that saves which
// rename a new file over path keep being seen. A file that fails to load or
// apply is logged and the previous settings stay in effect.
func Watch(ctx context.Context, path string, applier *Applier, logger *slog.Logger) error {
	target := filepath.Clean(path)

	if _, err := os.Stat(target); err != nil {
		return fmt.Errorf("watch %s: %w", path, err)
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	defer watcher.Close()

	if err := watcher.Add(filepath.Dir(target)); err != nil {
		return fmt.Errorf("watch %s: %w", path, err)
	}

	logger = logger.With("component", "watcher", "path", target)
	logger.Info("watching settings file")

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
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) && !event.Has(fsnotify.Rename) {
				continue
			}

			form, err := LoadSettingsFile(target)
			if errors.Is(err, fs.ErrNotExist) {
				// Moved away; the replacement arrives as Create.
				continue
			}
			if err != nil {
				logger.Error("settings reload failed, keeping previous settings", "error", err)
				continue
			}

			if _, err := applier.Apply(ctx, form, "file"); err != nil {
				logger.Error("settings reload failed, keeping previous settings", "error", err)
			}

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			logger.Error("watcher error", "error", err)
		}
	}
}
