// Package watch observes the plan file for edits made outside the chain.
// Reconciliation reads the plan directly, so the watcher is informational: it
// lets the operator see checkbox flips (their own or the engine's) as they
// land, without affecting session decisions.
package watch

import (
	"context"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// OnChange is invoked after an edit to the plan file has settled past the
// debounce window.
type OnChange func(path string)

// PlanWatcher watches a single plan file. Editors replace files on save, so
// the watch is on the parent directory and events are filtered by name.
type PlanWatcher struct {
	mu       sync.Mutex
	watcher  *fsnotify.Watcher
	planPath string
	onChange OnChange
	logger   *zap.Logger
	pending  time.Time
	debounce time.Duration
	stopCh   chan struct{}
	doneCh   chan struct{}
	running  bool
}

// NewPlanWatcher creates a watcher for planPath. onChange may be nil.
func NewPlanWatcher(planPath string, onChange OnChange, logger *zap.Logger) (*PlanWatcher, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &PlanWatcher{
		watcher:  watcher,
		planPath: planPath,
		onChange: onChange,
		logger:   logger,
		debounce: 500 * time.Millisecond,
		stopCh:   make(chan struct{}),
		doneCh:   make(chan struct{}),
	}, nil
}

// Start begins watching. Non-blocking; the event loop runs in a goroutine.
func (w *PlanWatcher) Start(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.running {
		return nil
	}

	// Only mark running once the watch is established; otherwise a Stop after
	// a failed Start would wait on a goroutine that never launched.
	if err := w.watcher.Add(filepath.Dir(w.planPath)); err != nil {
		return err
	}
	w.running = true
	w.logger.Debug("watching plan file", zap.String("path", w.planPath))

	go w.run(ctx)
	return nil
}

// Stop stops the watcher and waits for the event loop to drain.
func (w *PlanWatcher) Stop() {
	w.mu.Lock()
	running := w.running
	w.running = false
	w.mu.Unlock()

	if running {
		close(w.stopCh)
		<-w.doneCh
	}

	if err := w.watcher.Close(); err != nil {
		w.logger.Warn("closing plan watcher", zap.Error(err))
	}
}

func (w *PlanWatcher) run(ctx context.Context) {
	defer close(w.doneCh)

	ticker := time.NewTicker(100 * time.Millisecond)
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
			w.logger.Warn("plan watcher error", zap.Error(err))

		case <-ticker.C:
			w.flushSettled()
		}
	}
}

func (w *PlanWatcher) handleEvent(event fsnotify.Event) {
	if filepath.Clean(event.Name) != filepath.Clean(w.planPath) {
		return
	}
	if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
		return
	}

	w.mu.Lock()
	w.pending = time.Now()
	w.mu.Unlock()
}

func (w *PlanWatcher) flushSettled() {
	w.mu.Lock()
	fire := !w.pending.IsZero() && time.Since(w.pending) >= w.debounce
	if fire {
		w.pending = time.Time{}
	}
	w.mu.Unlock()

	if fire && w.onChange != nil {
		w.onChange(w.planPath)
	}
}
