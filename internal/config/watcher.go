package config

import (
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/dshills/runloop/internal/logging"
)

// reloadDebounce coalesces the bursts of write events editors and atomic
// renames produce into one reload.
const reloadDebounce = 100 * time.Millisecond

// ReloadHandler is called with the freshly loaded configuration after the
// watched file changes.
type ReloadHandler func(cfg Config)

// Watcher reloads a config file when it changes on disk.
type Watcher struct {
	mu sync.Mutex

	watcher *fsnotify.Watcher
	path    string
	handler ReloadHandler
	log     *logging.Logger

	closed   bool
	closeCh  chan struct{}
	closedWg sync.WaitGroup
}

// Watch starts watching path and invokes handler on each successful reload.
// The file's directory is watched rather than the file itself, so atomic
// replace-by-rename (the common editor save strategy) keeps working.
func Watch(path string, handler ReloadHandler, log *logging.Logger) (*Watcher, error) {
	if log == nil {
		log = logging.Default()
	}

	absPath, err := filepath.Abs(path)
	if err != nil {
		return nil, err
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := fsw.Add(filepath.Dir(absPath)); err != nil {
		_ = fsw.Close()
		return nil, err
	}

	w := &Watcher{
		watcher: fsw,
		path:    absPath,
		handler: handler,
		log:     log.WithComponent("config"),
		closeCh: make(chan struct{}),
	}

	w.closedWg.Add(1)
	go w.processLoop()

	return w, nil
}

// Close stops watching. Safe to call more than once.
func (w *Watcher) Close() error {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return nil
	}
	w.closed = true
	close(w.closeCh)
	w.mu.Unlock()

	err := w.watcher.Close()
	w.closedWg.Wait()
	return err
}

// processLoop handles incoming fsnotify events with debounce.
func (w *Watcher) processLoop() {
	defer w.closedWg.Done()

	var pending bool
	debounce := time.NewTimer(reloadDebounce)
	if !debounce.Stop() {
		<-debounce.C
	}

	for {
		select {
		case <-w.closeCh:
			return

		case ev, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if ev.Name != w.path {
				continue
			}
			if ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			if !pending {
				pending = true
			} else if !debounce.Stop() {
				<-debounce.C
			}
			debounce.Reset(reloadDebounce)

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.log.Warn("config watch error: %v", err)

		case <-debounce.C:
			pending = false
			cfg, err := Load(w.path)
			if err != nil {
				w.log.Warn("config reload failed, keeping previous: %v", err)
				continue
			}
			w.log.Info("config reloaded from %s", w.path)
			w.handler(cfg)
		}
	}
}
