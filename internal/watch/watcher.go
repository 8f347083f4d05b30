// Package watch notifies a callback when scan files appear in a directory.
package watch

import (
	"context"
	"fmt"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"pixel-equalizer/internal/scan"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// DefaultDebounce is how long a file must stay quiet before it is reported.
const DefaultDebounce = 500 * time.Millisecond

// minTick bounds how often pending files are checked.
const minTick = time.Millisecond

// Handler is called with the path of a settled scan file. Calls are made
// from the watcher goroutine, one at a time.
type Handler func(ctx context.Context, path string)

// Watcher watches a directory for new or rewritten scan files.
type Watcher struct {
	mu       sync.Mutex
	watcher  *fsnotify.Watcher
	dir      string
	handler  Handler
	logger   *zap.Logger
	debounce time.Duration
	pending  map[string]time.Time
	stopCh   chan struct{}
	doneCh   chan struct{}
	running  bool
}

// New creates a watcher for dir. A nil logger disables logging.
func New(dir string, handler Handler, logger *zap.Logger) (*Watcher, error) {
	if handler == nil {
		return nil, fmt.Errorf("watch: nil handler")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create watcher: %w", err)
	}
	return &Watcher{
		watcher:  fw,
		dir:      dir,
		handler:  handler,
		logger:   logger.With(zap.String("dir", dir)),
		debounce: DefaultDebounce,
		pending:  make(map[string]time.Time),
	}, nil
}

// SetDebounce changes the quiet period. It has no effect once started.
func (w *Watcher) SetDebounce(d time.Duration) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if !w.running && d > 0 {
		w.debounce = d
	}
}

// Start begins watching in a background goroutine. It returns an error if the
// directory cannot be watched.
func (w *Watcher) Start(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.running {
		return nil
	}
	if err := w.watcher.Add(w.dir); err != nil {
		return fmt.Errorf("failed to watch %s: %w", w.dir, err)
	}
	w.running = true
	w.stopCh = make(chan struct{})
	w.doneCh = make(chan struct{})
	go w.run(ctx, w.debounce)
	w.logger.Info("watching for scans")
	return nil
}

// Stop stops the watcher, waits for the loop to exit and releases the
// underlying notifier. Pending files that have not settled are dropped.
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
		w.logger.Error("failed to close watcher", zap.Error(err))
	}
}

func (w *Watcher) run(ctx context.Context, debounce time.Duration) {
	defer close(w.doneCh)

	tick := time.NewTicker(tickInterval(debounce))
	defer tick.Stop()

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
			w.logger.Error("watch error", zap.Error(err))
		case now := <-tick.C:
			for _, path := range w.settled(now, debounce) {
				w.logger.Debug("scan settled", zap.String("path", path))
				w.handler(ctx, path)
			}
		}
	}
}

// tickInterval is a fifth of the debounce period, at least minTick.
func tickInterval(debounce time.Duration) time.Duration {
	return max(debounce/5, minTick)
}

func (w *Watcher) handleEvent(event fsnotify.Event) {
	if !strings.EqualFold(filepath.Ext(event.Name), scan.FileExt) {
		return
	}
	switch {
	case event.Has(fsnotify.Create), event.Has(fsnotify.Write):
		w.pending[event.Name] = time.Now()
	case event.Has(fsnotify.Remove), event.Has(fsnotify.Rename):
		delete(w.pending, event.Name)
	}
}

// settled removes and returns, sorted, the pending paths quiet since debounce.
func (w *Watcher) settled(now time.Time, debounce time.Duration) []string {
	var ready []string
	for path, last := range w.pending {
		if now.Sub(last) >= debounce {
			ready = append(ready, path)
			delete(w.pending, path)
		}
	}
	sort.Strings(ready)
	return ready
}
