// internal/editor/watcher.go
package editor

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/sirupsen/logrus"
)

const debounceTime = 500 * time.Millisecond

// Watcher follows a single solution file on disk and reports its
// contents after edits settle. Editors write through temp-file renames,
// so the parent directory is watched rather than the file itself.
type Watcher struct {
	path     string
	watcher  *fsnotify.Watcher
	onChange func(string)
	log      *logrus.Logger

	mu      sync.Mutex
	pending bool

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewWatcher creates a watcher for the given solution file. onChange
// receives the full file contents after each debounced change.
func NewWatcher(path string, logger *logrus.Logger, onChange func(string)) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create watcher: %w", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Watcher{
		path:     path,
		watcher:  fsw,
		onChange: onChange,
		log:      logger,
		ctx:      ctx,
		cancel:   cancel,
	}, nil
}

// Start begins watching. The file does not have to exist yet; creation
// counts as a change.
func (w *Watcher) Start() error {
	dir := filepath.Dir(w.path)
	if err := w.watcher.Add(dir); err != nil {
		return fmt.Errorf("watch %s: %w", dir, err)
	}
	w.wg.Add(2)
	go w.eventLoop()
	go w.debounceLoop()
	return nil
}

// Stop stops the watcher and waits for its goroutines.
func (w *Watcher) Stop() error {
	w.cancel()
	w.wg.Wait()
	return w.watcher.Close()
}

// Read returns the current file contents.
func (w *Watcher) Read() (string, error) {
	data, err := os.ReadFile(w.path)
	if err != nil {
		return "", fmt.Errorf("read solution file: %w", err)
	}
	return string(data), nil
}

func (w *Watcher) eventLoop() {
	defer w.wg.Done()
	for {
		select {
		case <-w.ctx.Done():
			return
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != filepath.Clean(w.path) {
				continue
			}
			if event.Has(fsnotify.Write) || event.Has(fsnotify.Create) || event.Has(fsnotify.Rename) {
				w.mu.Lock()
				w.pending = true
				w.mu.Unlock()
			}
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.log.WithError(err).Warn("solution watcher error")
		}
	}
}

func (w *Watcher) debounceLoop() {
	defer w.wg.Done()
	ticker := time.NewTicker(debounceTime)
	defer ticker.Stop()
	for {
		select {
		case <-w.ctx.Done():
			return
		case <-ticker.C:
			w.flush()
		}
	}
}

func (w *Watcher) flush() {
	w.mu.Lock()
	dirty := w.pending
	w.pending = false
	w.mu.Unlock()
	if !dirty || w.onChange == nil {
		return
	}
	content, err := w.Read()
	if err != nil {
		w.log.WithError(err).Warn("read solution file after change")
		return
	}
	w.onChange(content)
}
