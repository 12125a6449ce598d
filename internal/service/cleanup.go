package service

import (
	"context"
	"sync"
	"time"

	"botfleet-api/internal/logging"
	"botfleet-api/internal/repository"

	"github.com/charmbracelet/log"
)

// CleanupStore is the part of the store the sweeper prunes.
type CleanupStore interface {
	DeleteExpiredSessions(ctx context.Context) (int64, error)
	DeleteInventoryOlderThan(ctx context.Context, age time.Duration) (int64, error)
}

var _ CleanupStore = (repository.Store)(nil)

// CleanupConfig holds configuration for the cleanup scheduler.
type CleanupConfig struct {
	// Retention is how long an unrefreshed inventory snapshot is kept.
	// Default: 24 hours
	Retention time.Duration

	// Interval is how often the cleanup runs.
	// Default: 1 hour
	Interval time.Duration

	// InitialDelay postpones the first run after Start.
	// Default: 1 minute
	InitialDelay time.Duration
}

// CleanupResult reports what one run removed.
type CleanupResult struct {
	Sessions  int64 `json:"sessions"`
	Inventory int64 `json:"inventory"`
}

// CleanupScheduler periodically removes expired sessions and stale inventory snapshots.
type CleanupScheduler struct {
	store     CleanupStore
	config    CleanupConfig
	logger    *log.Logger
	ticker    *time.Ticker
	stopCh    chan struct{}
	stopOnce  sync.Once
	isRunning bool
	mu        sync.Mutex
}

// NewCleanupScheduler creates a new cleanup scheduler.
func NewCleanupScheduler(store CleanupStore, config CleanupConfig, logger *log.Logger) *CleanupScheduler {
	if config.Retention == 0 {
		config.Retention = 24 * time.Hour
	}
	if config.Interval == 0 {
		config.Interval = time.Hour
	}
	if config.InitialDelay == 0 {
		config.InitialDelay = time.Minute
	}

	return &CleanupScheduler{
		store:  store,
		config: config,
		logger: logging.Component(logger, "CleanupScheduler"),
		stopCh: make(chan struct{}),
	}
}

// Start begins the cleanup scheduler.
func (s *CleanupScheduler) Start() {
	s.mu.Lock()
	if s.isRunning {
		s.mu.Unlock()
		return
	}
	s.isRunning = true
	s.ticker = time.NewTicker(s.config.Interval)
	s.mu.Unlock()

	s.logger.Info("started", "interval", s.config.Interval, "retention", s.config.Retention)

	go s.run()
}

// run is the main cleanup loop.
func (s *CleanupScheduler) run() {
	initial := time.NewTimer(s.config.InitialDelay)
	defer initial.Stop()

	for {
		select {
		case <-initial.C:
			s.runCleanup()
		case <-s.ticker.C:
			s.runCleanup()
		case <-s.stopCh:
			s.logger.Info("stopped")
			return
		}
	}
}

// runCleanup performs the actual cleanup.
func (s *CleanupScheduler) runCleanup() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	res, err := s.RunNow(ctx)
	if err != nil {
		s.logger.Error("cleanup failed", "err", err)
		return
	}

	if res.Sessions > 0 || res.Inventory > 0 {
		s.logger.Info("cleanup done", "sessions", res.Sessions, "inventory", res.Inventory)
	} else {
		s.logger.Debug("nothing to clean up")
	}
}

// Stop stops the cleanup scheduler.
func (s *CleanupScheduler) Stop() {
	s.stopOnce.Do(func() {
		s.mu.Lock()
		defer s.mu.Unlock()

		if s.ticker != nil {
			s.ticker.Stop()
		}
		close(s.stopCh)
		s.isRunning = false
	})
}

// RunNow triggers an immediate cleanup run.
func (s *CleanupScheduler) RunNow(ctx context.Context) (CleanupResult, error) {
	var res CleanupResult
	var err error

	if res.Sessions, err = s.store.DeleteExpiredSessions(ctx); err != nil {
		return res, err
	}
	if res.Inventory, err = s.store.DeleteInventoryOlderThan(ctx, s.config.Retention); err != nil {
		return res, err
	}
	return res, nil
}
