package transfer

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// Names matching these patterns are still being written or are hidden.
var ignorePatterns = []string{".*", "*.crdownload", "*.tmp"}

// Ignored reports whether a file name is transient.
func Ignored(name string) bool {
	for _, pattern := range ignorePatterns {
		if ok, _ := doublestar.Match(pattern, name); ok {
			return true
		}
	}
	return false
}

// Watcher reports files that settle in a directory, once per name.
type Watcher struct {
	dir    string
	settle time.Duration
	notify func(name string)
	fsw    *fsnotify.Watcher
	logger *zap.Logger

	mu       sync.Mutex
	timers   map[string]*time.Timer
	notified map[string]struct{}
	closed   bool

	done chan struct{}
	wg   sync.WaitGroup
}

// NewWatcher starts watching dir. notify runs on a timer goroutine and must
// not block.
func NewWatcher(dir string, settle time.Duration, notify func(name string), logger *zap.Logger) (*Watcher, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create watcher: %w", err)
	}
	if err := fsw.Add(dir); err != nil {
		fsw.Close()
		return nil, fmt.Errorf("watch %s: %w", dir, err)
	}

	w := &Watcher{
		dir:      dir,
		settle:   settle,
		notify:   notify,
		fsw:      fsw,
		logger:   logger,
		timers:   make(map[string]*time.Timer),
		notified: make(map[string]struct{}),
		done:     make(chan struct{}),
	}
	w.wg.Add(1)
	go w.loop()
	return w, nil
}

// MarkNotified records name as already reported, so a file written by the
// server itself is not announced twice.
func (w *Watcher) MarkNotified(name string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.notified[name] = struct{}{}
	if t, ok := w.timers[name]; ok {
		t.Stop()
		delete(w.timers, name)
	}
}

// Close stops the watcher and any pending notifications.
func (w *Watcher) Close() error {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return nil
	}
	w.closed = true
	for name, t := range w.timers {
		t.Stop()
		delete(w.timers, name)
	}
	w.mu.Unlock()

	close(w.done)
	err := w.fsw.Close()
	w.wg.Wait()
	return err
}

func (w *Watcher) loop() {
	defer w.wg.Done()
	for {
		select {
		case <-w.done:
			return
		case ev, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			w.handle(ev)
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			w.logger.Debug("download watcher error", zap.Error(err))
		}
	}
}

func (w *Watcher) handle(ev fsnotify.Event) {
	name := filepath.Base(ev.Name)
	if Ignored(name) {
		return
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return
	}

	switch {
	case ev.Has(fsnotify.Remove) || ev.Has(fsnotify.Rename):
		delete(w.notified, name)
		if t, ok := w.timers[name]; ok {
			t.Stop()
			delete(w.timers, name)
		}
	case ev.Has(fsnotify.Create) || ev.Has(fsnotify.Write):
		if _, done := w.notified[name]; done {
			return
		}
		if t, ok := w.timers[name]; ok {
			t.Reset(w.settle)
			return
		}
		w.timers[name] = time.AfterFunc(w.settle, func() { w.fire(name) })
	}
}

func (w *Watcher) fire(name string) {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return
	}
	delete(w.timers, name)
	if _, done := w.notified[name]; done {
		w.mu.Unlock()
		return
	}
	info, err := os.Stat(filepath.Join(w.dir, name))
	if err != nil || !info.Mode().IsRegular() {
		w.mu.Unlock()
		if err != nil && !errors.Is(err, os.ErrNotExist) {
			w.logger.Debug("stat download failed", zap.String("file", name), zap.Error(err))
		}
		return
	}
	w.notified[name] = struct{}{}
	w.mu.Unlock()

	w.notify(name)
}
