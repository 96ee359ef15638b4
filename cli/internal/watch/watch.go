// Package watch reruns a callback when definitions files change.
package watch

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
)

// DefaultDebounce is the quiet period after the last change before the
// callback runs.
const DefaultDebounce = 300 * time.Millisecond

// Watcher watches a definitions file or directory.
type Watcher struct {
	path     string
	dir      bool
	callback func() error
	onError  func(error)
	debounce time.Duration
	watcher  *fsnotify.Watcher
}

// NewWatcher creates a watcher for path. A directory is watched for changes
// to any of its YAML files.
func NewWatcher(path string, callback func() error) (*Watcher, error) {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("failed to get absolute path: %w", err)
	}
	info, err := os.Stat(absPath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat %s: %w", path, err)
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create watcher: %w", err)
	}

	// Editors replace files on save, so watch the directory.
	dir := absPath
	if !info.IsDir() {
		dir = filepath.Dir(absPath)
	}
	if err := watcher.Add(dir); err != nil {
		watcher.Close()
		return nil, fmt.Errorf("failed to watch directory: %w", err)
	}

	return &Watcher{
		path:     absPath,
		dir:      info.IsDir(),
		callback: callback,
		onError: func(err error) {
			fmt.Fprintf(os.Stderr, "watch: %v\n", err)
		},
		debounce: DefaultDebounce,
		watcher:  watcher,
	}, nil
}

// OnError sets the handler for callback and watcher errors.
func (w *Watcher) OnError(fn func(error)) *Watcher {
	w.onError = fn
	return w
}

// Debounce sets the quiet period.
func (w *Watcher) Debounce(d time.Duration) *Watcher {
	w.debounce = d
	return w
}

// Run calls the callback once, then again after every change until ctx is
// done. Callback errors after the first run are reported, not returned.
func (w *Watcher) Run(ctx context.Context) error {
	defer w.watcher.Close()

	if err := w.callback(); err != nil {
		w.onError(err)
	}

	timer := time.NewTimer(w.debounce)
	timer.Stop()
	var pending <-chan time.Time

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-w.watcher.Events:
			if !ok {
				return nil
			}
			if w.relevant(event) {
				timer.Reset(w.debounce)
				pending = timer.C
			}

		case <-pending:
			pending = nil
			if err := w.callback(); err != nil {
				w.onError(err)
			}

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return nil
			}
			w.onError(err)
		}
	}
}

func (w *Watcher) relevant(event fsnotify.Event) bool {
	if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) && !event.Has(fsnotify.Rename) && !event.Has(fsnotify.Remove) {
		return false
	}
	name, err := filepath.Abs(event.Name)
	if err != nil {
		return false
	}
	if !w.dir {
		return name == w.path
	}
	ext := strings.ToLower(filepath.Ext(name))
	return ext == ".yaml" || ext == ".yml"
}
