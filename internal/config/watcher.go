package config

import (
	"context"
	"log/slog"
	"path/filepath"
	"sync"

	"github.com/fsnotify/fsnotify"
)

// SettingsWatcher notifies a callback whenever the indexer's settings.yaml
// changes on disk, so a long-running backend can re-read it without a
// restart. fsnotify.Watcher only watches directories reliably across
// editors that write-then-rename, so the parent directory is watched and
// events are filtered down to the target file.
type SettingsWatcher struct {
	path    string
	watcher *fsnotify.Watcher
	cancel  context.CancelFunc
	once    sync.Once
}

// StartSettingsWatcher begins watching path for changes. onChange is called
// (on its own goroutine) after each write, create or rename event targeting
// path.
// Returns nil, nil if path is empty.
func StartSettingsWatcher(parentCtx context.Context, path string, onChange func()) (*SettingsWatcher, error) {
	if path == "" {
		return nil, nil
	}

	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	dir := filepath.Dir(path)
	if err := fw.Add(dir); err != nil {
		fw.Close()
		return nil, err
	}

	ctx, cancel := context.WithCancel(parentCtx)
	w := &SettingsWatcher{path: path, watcher: fw, cancel: cancel}

	go w.run(ctx, onChange)
	slog.Info("settings watcher started", "path", path)
	return w, nil
}

func (w *SettingsWatcher) run(ctx context.Context, onChange func()) {
	target := filepath.Clean(w.path)
	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != target {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			slog.Info("settings file changed, reloading", "path", w.path, "op", event.Op.String())
			onChange()
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			slog.Warn("settings watcher error", "error", err)
		}
	}
}

// Stop stops the watcher. Idempotent.
func (w *SettingsWatcher) Stop() {
	if w == nil {
		return
	}
	w.once.Do(func() {
		w.cancel()
		_ = w.watcher.Close()
		slog.Info("settings watcher stopped", "path", w.path)
	})
}
