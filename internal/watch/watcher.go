// Package watch polls directory trees and turns snapshot diffs into file
// change events for the detection pipeline.
package watch

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"ransomguard/internal/metrics"
	"ransomguard/internal/model"

	"github.com/sirupsen/logrus"
)

var (
	// ErrAlreadyRunning is returned by Start when the watcher is active.
	// Callers treat it as a benign no-op, not a failure.
	ErrAlreadyRunning = errors.New("file monitoring is already running")
	// ErrStopTimeout is returned when the poll worker did not exit within
	// the stop timeout. The worker may still be wedged on a stuck read.
	ErrStopTimeout = errors.New("file monitoring stop timed out")
)

// EventHandler consumes the events one poll iteration produced. Events are
// handed over synchronously, one at a time.
type EventHandler interface {
	Process(ctx context.Context, event model.FileChangeEvent) error
}

// Watcher periodically snapshots the watched trees and diffs consecutive
// snapshots into created/deleted events. In-place modification of an
// existing file does not change the path set and is therefore invisible to
// this strategy; "modified" events reach the pipeline only from external
// submitters.
//
// A Watcher is an explicit handle owned by the caller; there is no
// package-level instance.
type Watcher struct {
	paths    []string
	interval time.Duration
	handler  EventHandler
	logger   *logrus.Logger
	metrics  *metrics.Metrics

	mu      sync.Mutex
	running bool
	cancel  context.CancelFunc
	done    chan struct{}
}

// New creates a watcher over the given root paths. metrics may be nil.
func New(paths []string, interval time.Duration, handler EventHandler, logger *logrus.Logger, m *metrics.Metrics) *Watcher {
	if interval <= 0 {
		interval = 5 * time.Second
	}
	return &Watcher{
		paths:    paths,
		interval: interval,
		handler:  handler,
		logger:   logger,
		metrics:  m,
	}
}

// Start launches the poll worker. Starting a running watcher returns
// ErrAlreadyRunning and changes nothing.
func (w *Watcher) Start() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.running {
		w.logger.Warn("File monitoring is already running")
		return ErrAlreadyRunning
	}

	ctx, cancel := context.WithCancel(context.Background())
	w.cancel = cancel
	w.done = make(chan struct{})
	w.running = true

	go w.run(ctx, w.done)

	w.logger.Infof("Started monitoring: %v", w.paths)
	return nil
}

// Stop cancels the poll worker and waits up to timeout for it to exit.
// A timeout means the stop failed to converge, not that it succeeded.
// Stopping a stopped watcher is a no-op.
func (w *Watcher) Stop(timeout time.Duration) error {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return nil
	}
	cancel := w.cancel
	done := w.done
	w.running = false
	w.mu.Unlock()

	cancel()

	select {
	case <-done:
		w.logger.Info("File system monitoring stopped")
		return nil
	case <-time.After(timeout):
		return ErrStopTimeout
	}
}

// IsRunning reports whether the poll worker is active.
func (w *Watcher) IsRunning() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.running
}

// Paths returns the configured watch roots.
func (w *Watcher) Paths() []string {
	w.mu.Lock()
	defer w.mu.Unlock()
	paths := make([]string, len(w.paths))
	copy(paths, w.paths)
	return paths
}

// SetPaths replaces the watch roots. The watcher must be stopped.
func (w *Watcher) SetPaths(paths []string) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.running {
		return ErrAlreadyRunning
	}
	if len(paths) > 0 {
		w.paths = paths
	}
	return nil
}

// run is the poll loop. Cancellation is checked once per iteration and
// while waiting between iterations; a failed iteration keeps the previous
// snapshot and backs off before retrying.
func (w *Watcher) run(ctx context.Context, done chan struct{}) {
	defer close(done)

	prev := make(map[string]struct{})
	for {
		delay := w.interval

		next, err := w.iterate(ctx, prev)
		if err != nil {
			w.logger.Errorf("Error in monitoring loop: %v", err)
			if w.metrics != nil {
				w.metrics.WatcherErrors.Inc()
			}
			delay = 2 * w.interval
		} else {
			prev = next
			if w.metrics != nil {
				w.metrics.WatcherIterations.Inc()
			}
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(delay):
		}
	}
}

// iterate walks all roots, diffs the collected path set against prev and
// hands each event to the handler. It returns the new snapshot. Panics are
// recovered at this boundary so a bad iteration never kills the worker.
func (w *Watcher) iterate(ctx context.Context, prev map[string]struct{}) (current map[string]struct{}, err error) {
	defer func() {
		if r := recover(); r != nil {
			current = nil
			err = fmt.Errorf("poll iteration panic: %v", r)
		}
	}()

	current = make(map[string]struct{}, len(prev))
	var created []string

	for _, root := range w.paths {
		if _, statErr := os.Stat(root); statErr != nil {
			// Root removed or unmounted: skip it this iteration only.
			w.logger.Debugf("Watch root %s unavailable, skipping: %v", root, statErr)
			continue
		}

		walkErr := filepath.WalkDir(root, func(path string, d fs.DirEntry, walkErr error) error {
			if walkErr != nil {
				w.logger.Debugf("Skipping %s: %v", path, walkErr)
				return nil
			}
			if d.IsDir() {
				return nil
			}
			if _, seen := current[path]; seen {
				return nil
			}
			current[path] = struct{}{}
			if _, existed := prev[path]; !existed {
				created = append(created, path)
			}
			return nil
		})
		if walkErr != nil {
			w.logger.Warnf("Traversal failed for root %s: %v", root, walkErr)
		}
	}

	// Creations in traversal order, deletions in sorted order. Both are
	// deterministic within a process but not stable across restarts.
	for _, path := range created {
		w.handleEvent(ctx, path, model.ActionCreated)
	}

	var deleted []string
	for path := range prev {
		if _, ok := current[path]; !ok {
			deleted = append(deleted, path)
		}
	}
	sort.Strings(deleted)
	for _, path := range deleted {
		w.handleEvent(ctx, path, model.ActionDeleted)
	}

	return current, nil
}

func (w *Watcher) handleEvent(ctx context.Context, path string, action model.FileAction) {
	event := model.FileChangeEvent{
		Path:       path,
		Action:     action,
		ObservedAt: time.Now(),
	}
	if err := w.handler.Process(ctx, event); err != nil {
		w.logger.Errorf("Error processing file event %s: %v", path, err)
	}
}
