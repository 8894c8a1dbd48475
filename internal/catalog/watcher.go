package catalog

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"companion/internal/logging"

	"github.com/fsnotify/fsnotify"
)

// Watcher hot-reloads a catalog file. A reload that fails validation keeps the
// previous catalog in place; readers always see a complete, validated value.
type Watcher struct {
	mu          sync.Mutex
	watcher     *fsnotify.Watcher
	path        string
	current     atomic.Pointer[Catalog]
	onReload    func(*Catalog)
	debounceDur time.Duration
	pending     bool
	lastEvent   time.Time
	stopCh      chan struct{}
	doneCh      chan struct{}
	running     bool

	stats WatcherStats
}

// WatcherStats tracks reload activity.
type WatcherStats struct {
	Reloads      int
	Rejected     int
	Errors       int
	LastReload   time.Time
	LastRejected error
}

// NewWatcher loads path once and prepares to watch it. onReload, if non-nil,
// is called with every successfully reloaded catalog.
func NewWatcher(path string, onReload func(*Catalog)) (*Watcher, error) {
	if path == "" {
		return nil, fmt.Errorf("catalog watcher needs a file path")
	}
	initial, err := Load(path)
	if err != nil {
		return nil, err
	}
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create file watcher: %w", err)
	}

	w := &Watcher{
		watcher:     fw,
		path:        filepath.Clean(path),
		onReload:    onReload,
		debounceDur: 300 * time.Millisecond,
		stopCh:      make(chan struct{}),
		doneCh:      make(chan struct{}),
	}
	w.current.Store(initial)
	return w, nil
}

// Current returns the most recent valid catalog.
func (w *Watcher) Current() *Catalog {
	return w.current.Load()
}

// Stats returns a snapshot of reload activity.
func (w *Watcher) Stats() WatcherStats {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.stats
}

// Start begins watching. Non-blocking; the loop runs until Stop or ctx is done.
func (w *Watcher) Start(ctx context.Context) error {
	w.mu.Lock()
	if w.running {
		w.mu.Unlock()
		return nil
	}
	w.running = true
	w.mu.Unlock()

	// Watch the directory: editors commonly replace files by rename.
	dir := filepath.Dir(w.path)
	if err := w.watcher.Add(dir); err != nil {
		w.mu.Lock()
		w.running = false
		w.mu.Unlock()
		return fmt.Errorf("failed to watch %s: %w", dir, err)
	}
	logging.Catalog("Watcher: watching %s", w.path)

	go w.run(ctx)
	return nil
}

// Stop stops the watcher and waits for the loop to exit.
func (w *Watcher) Stop() {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		w.watcher.Close()
		return
	}
	w.running = false
	w.mu.Unlock()

	close(w.stopCh)
	<-w.doneCh

	if err := w.watcher.Close(); err != nil {
		logging.CatalogWarn("Watcher: error closing watcher: %v", err)
	}
	logging.Catalog("Watcher: stopped")
}

func (w *Watcher) run(ctx context.Context) {
	defer close(w.doneCh)

	ticker := time.NewTicker(50 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-w.stopCh:
			return
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			w.handleEvent(event)
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			logging.CatalogWarn("Watcher error: %v", err)
			w.mu.Lock()
			w.stats.Errors++
			w.mu.Unlock()
		case <-ticker.C:
			w.processDebounced()
		}
	}
}

func (w *Watcher) handleEvent(event fsnotify.Event) {
	if filepath.Clean(event.Name) != w.path {
		return
	}
	if event.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Rename) == 0 {
		return
	}
	logging.CatalogDebug("Watcher: %s on %s", event.Op, event.Name)

	w.mu.Lock()
	w.pending = true
	w.lastEvent = time.Now()
	w.mu.Unlock()
}

func (w *Watcher) processDebounced() {
	w.mu.Lock()
	if !w.pending || time.Since(w.lastEvent) < w.debounceDur {
		w.mu.Unlock()
		return
	}
	w.pending = false
	w.mu.Unlock()

	w.Reload()
}

// Reload re-reads the catalog file now. On failure the previous catalog stays
// current and the error is returned.
func (w *Watcher) Reload() error {
	next, err := Load(w.path)
	audit := logging.Audit()

	w.mu.Lock()
	if err != nil {
		w.stats.Rejected++
		w.stats.LastRejected = err
		w.mu.Unlock()
		logging.CatalogWarn("Watcher: rejected reload of %s: %v", w.path, err)
		audit.CatalogReload(w.path, "", err)
		return err
	}
	w.stats.Reloads++
	w.stats.LastReload = time.Now()
	w.mu.Unlock()

	w.current.Store(next)
	logging.Catalog("Watcher: reloaded %s (version %s)", w.path, next.Version())
	audit.CatalogReload(w.path, next.Version(), nil)
	if w.onReload != nil {
		w.onReload(next)
	}
	return nil
}
