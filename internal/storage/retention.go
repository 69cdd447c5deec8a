package storage

import (
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// RetentionPolicy configures how long each record kind is kept. Critical
// alerts are retained longer than the rest.
type RetentionPolicy struct {
	FileEvents     time.Duration
	Alerts         time.Duration
	CriticalAlerts time.Duration
	SweepInterval  time.Duration
}

// DefaultRetentionPolicy returns the stock retention periods.
func DefaultRetentionPolicy() RetentionPolicy {
	return RetentionPolicy{
		FileEvents:     7 * 24 * time.Hour,
		Alerts:         30 * 24 * time.Hour,
		CriticalAlerts: 90 * 24 * time.Hour,
		SweepInterval:  6 * time.Hour,
	}
}

// RetentionManager periodically deletes records past their retention period.
type RetentionManager struct {
	store  *Store
	policy RetentionPolicy
	logger *logrus.Logger

	mu      sync.Mutex
	running bool
	cancel  context.CancelFunc
	done    chan struct{}
}

// NewRetentionManager creates a retention manager for the store.
func NewRetentionManager(store *Store, policy RetentionPolicy, logger *logrus.Logger) *RetentionManager {
	if policy.SweepInterval <= 0 {
		policy = DefaultRetentionPolicy()
	}
	return &RetentionManager{
		store:  store,
		policy: policy,
		logger: logger,
	}
}

// Start launches the background sweep loop. Starting twice is a no-op.
func (rm *RetentionManager) Start() {
	rm.mu.Lock()
	defer rm.mu.Unlock()

	if rm.running {
		rm.logger.Warn("Retention service is already running")
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	rm.cancel = cancel
	rm.done = make(chan struct{})
	rm.running = true

	go rm.run(ctx, rm.done)
	rm.logger.Info("Retention service started")
}

// Stop cancels the sweep loop and waits for it to exit.
func (rm *RetentionManager) Stop() {
	rm.mu.Lock()
	if !rm.running {
		rm.mu.Unlock()
		return
	}
	cancel := rm.cancel
	done := rm.done
	rm.running = false
	rm.mu.Unlock()

	cancel()
	<-done
	rm.logger.Info("Retention service stopped")
}

// IsRunning reports whether the sweep loop is active.
func (rm *RetentionManager) IsRunning() bool {
	rm.mu.Lock()
	defer rm.mu.Unlock()
	return rm.running
}

func (rm *RetentionManager) run(ctx context.Context, done chan struct{}) {
	defer close(done)

	for {
		delay := rm.policy.SweepInterval
		if err := rm.sweep(); err != nil {
			rm.logger.Errorf("Error in cleanup loop: %v", err)
			delay = 5 * time.Minute
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(delay):
		}
	}
}

// sweep performs one cleanup pass over all record kinds.
func (rm *RetentionManager) sweep() error {
	now := time.Now()

	deletedEvents, err := rm.store.DeleteFileEventsBefore(now.Add(-rm.policy.FileEvents))
	if err != nil {
		return err
	}

	deletedAlerts, err := rm.store.DeleteAlertsBefore(now.Add(-rm.policy.Alerts), false)
	if err != nil {
		return err
	}

	deletedCritical, err := rm.store.DeleteAlertsBefore(now.Add(-rm.policy.CriticalAlerts), true)
	if err != nil {
		return err
	}

	total := deletedEvents + deletedAlerts + deletedCritical
	if total > 0 {
		rm.logger.Infof("Cleanup completed: deleted %d old records", total)
	}
	return nil
}
