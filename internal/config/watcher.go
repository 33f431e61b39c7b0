package config

import (
	"context"
	"fmt"
	"log"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
)

// Watcher reloads the config file when it changes on disk, so admission
// limits can be tuned without restarting the orchestrator.
type Watcher struct {
	path    string
	watcher *fsnotify.Watcher
	// onChange receives each successfully reloaded config.
	onChange func(*Config)
}

// NewWatcher creates a watcher for the given config file. The callback is
// invoked with each successfully reloaded config; reload failures are
// logged and the previous config stays in effect.
func NewWatcher(path string, onChange func(*Config)) (*Watcher, error) {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create config watcher: %w", err)
	}

	// Watch the directory rather than the file: editors and atomic writes
	// replace the file, which would silently detach a file-level watch.
	if err := fw.Add(filepath.Dir(path)); err != nil {
		fw.Close()
		return nil, fmt.Errorf("watch config directory: %w", err)
	}

	return &Watcher{path: path, watcher: fw, onChange: onChange}, nil
}

// Run processes filesystem events until the context is cancelled.
func (w *Watcher) Run(ctx context.Context) {
	defer w.watcher.Close()

	for {
		select {
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != filepath.Clean(w.path) {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			cfg, err := LoadFrom(w.path)
			if err != nil {
				log.Printf("[config] reload failed, keeping previous config: %v", err)
				continue
			}
			log.Printf("[config] reloaded %s", w.path)
			w.onChange(cfg)

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			log.Printf("[config] watch error: %v", err)

		case <-ctx.Done():
			return
		}
	}
}
