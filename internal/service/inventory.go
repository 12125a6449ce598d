package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"botfleet-api/internal/events"
	"botfleet-api/internal/logging"
	"botfleet-api/internal/metrics"
	"botfleet-api/internal/model"
	"botfleet-api/internal/platform"
	"botfleet-api/internal/repository"

	"github.com/charmbracelet/log"
	"golang.org/x/sync/errgroup"
)

// InventoryStore is the part of the store the inventory service reads and writes.
type InventoryStore interface {
	repository.AccountRepository
	repository.InventoryCacheRepository
}

// InventoryConfig holds namespace and cache settings.
type InventoryConfig struct {
	AppID              int64
	ContextID          int64
	ProtectedContextID int64 // 0 disables the protected listing
	TTL                time.Duration
	ImageBaseURL       string
	FetchTimeout       time.Duration
}

// RefreshRequest describes one inventory refresh.
type RefreshRequest struct {
	Username string
	Session  platform.Session

	// Zero values fall back to the configured namespace and category.
	AppID     int64
	ContextID int64

	// Force bypasses a fresh cache entry.
	Force bool
}

// RefreshResult is what a refresh published.
type RefreshResult struct {
	Items     []model.Item
	FromCache bool
}

// InventoryService caches normalized inventory snapshots per account and
// announces every refresh on the event bus.
type InventoryService struct {
	store      InventoryStore
	bus        events.Publisher
	metrics    *metrics.Metrics
	config     InventoryConfig
	normalizer Normalizer
	logger     *log.Logger
	now        func() time.Time
}

// NewInventoryService creates a new inventory service.
func NewInventoryService(store InventoryStore, bus events.Publisher, m *metrics.Metrics, config InventoryConfig, logger *log.Logger) *InventoryService {
	if config.TTL <= 0 {
		config.TTL = 5 * time.Minute
	}
	if config.FetchTimeout <= 0 {
		config.FetchTimeout = 30 * time.Second
	}
	return &InventoryService{
		store:      store,
		bus:        bus,
		metrics:    m,
		config:     config,
		normalizer: Normalizer{ImageBaseURL: config.ImageBaseURL},
		logger:     logging.Component(logger, "InventoryService"),
		now:        time.Now,
	}
}

// Config returns the effective configuration.
func (s *InventoryService) Config() InventoryConfig {
	return s.config
}

// Key returns the cache key of the account's primary inventory.
func (s *InventoryService) Key(accountID int64) model.InventoryKey {
	return model.InventoryKey{AccountID: accountID, AppID: s.config.AppID, ContextID: s.config.ContextID}
}

// Get returns the account's cached items and whether they are fresh. A miss
// returns no items and isFresh false.
func (s *InventoryService) Get(ctx context.Context, username string) ([]model.Item, bool, error) {
	account, err := s.store.GetAccountByUsername(ctx, username)
	if err != nil {
		return nil, false, err
	}
	entry, fresh, err := s.GetKey(ctx, s.Key(account.ID))
	if err != nil || entry == nil {
		return nil, false, err
	}
	return entry.Items, fresh, nil
}

// GetKey reads a snapshot without touching the platform.
func (s *InventoryService) GetKey(ctx context.Context, key model.InventoryKey) (*model.InventoryEntry, bool, error) {
	entry, err := s.store.GetInventory(ctx, key)
	if err != nil {
		return nil, false, err
	}
	if entry == nil {
		return nil, false, nil
	}
	return entry, entry.Fresh(s.now(), s.config.TTL), nil
}

// Refresh serves a fresh snapshot from cache unless forced, otherwise lists
// the primary and protected contexts, replaces the cache entry and publishes
// the result. When every listing fails nothing is written or published.
// Nothing is published once ctx is done.
func (s *InventoryService) Refresh(ctx context.Context, req RefreshRequest) (*RefreshResult, error) {
	account, err := s.store.GetAccountByUsername(ctx, req.Username)
	if err != nil {
		return nil, err
	}

	key := model.InventoryKey{AccountID: account.ID, AppID: req.AppID, ContextID: req.ContextID}
	if key.AppID == 0 {
		key.AppID = s.config.AppID
	}
	if key.ContextID == 0 {
		key.ContextID = s.config.ContextID
	}
	logger := s.logger.With("account", req.Username)

	if !req.Force {
		entry, fresh, err := s.GetKey(ctx, key)
		if err != nil {
			logger.Warn("cache read failed, listing instead", "err", err)
		} else if fresh {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			s.metrics.InventoryRefresh("cache")
			s.bus.Publish(events.Inventory(req.Username, entry.Items, true))
			return &RefreshResult{Items: entry.Items, FromCache: true}, nil
		}
	}

	if req.Session == nil {
		return nil, model.ErrNotReady.With("account %s has no live session", req.Username)
	}

	logger.Info("loading inventory", "appid", key.AppID, "contextid", key.ContextID, "force", req.Force)
	items, err := s.list(ctx, req.Session, key, logger)
	if err != nil {
		s.metrics.InventoryRefresh("error")
		logger.Error("inventory load failed", "err", err)
		return nil, err
	}

	entry := &model.InventoryEntry{Key: key, Items: items, CachedAt: s.now()}
	if err := s.store.SaveInventory(ctx, entry); err != nil {
		logger.Warn("failed to cache inventory", "err", err)
	}

	if ctx.Err() != nil {
		return nil, ctx.Err()
	}
	s.metrics.InventoryRefresh("platform")
	s.bus.Publish(events.Inventory(req.Username, items, false))
	logger.Info("inventory loaded", "count", len(items))
	return &RefreshResult{Items: items}, nil
}

// list fetches the primary and protected contexts concurrently. It fails
// only if every listing failed.
func (s *InventoryService) list(ctx context.Context, sess platform.Session, key model.InventoryKey, logger *log.Logger) ([]model.Item, error) {
	contexts := []int64{key.ContextID}
	if p := s.config.ProtectedContextID; p > 0 && p != key.ContextID {
		contexts = append(contexts, p)
	}

	fetchCtx, cancel := context.WithTimeout(ctx, s.config.FetchTimeout)
	defer cancel()

	results := make([][]model.Item, len(contexts))
	errs := make([]error, len(contexts))

	var g errgroup.Group
	for i, contextID := range contexts {
		g.Go(func() error {
			raw, err := sess.ListItems(fetchCtx, key.AppID, contextID)
			if err != nil {
				errs[i] = fmt.Errorf("context %d: %w", contextID, err)
				return nil
			}
			protected := contextID == s.config.ProtectedContextID && contextID != key.ContextID
			results[i] = s.normalizer.Normalize(raw, key.AppID, contextID, protected)
			return nil
		})
	}
	_ = g.Wait()

	items := make([]model.Item, 0)
	failed := 0
	for i := range contexts {
		if errs[i] != nil {
			failed++
			logger.Warn("inventory listing failed", "contextid", contexts[i], "err", errs[i])
			continue
		}
		items = append(items, results[i]...)
	}
	if failed == len(contexts) {
		return nil, errors.Join(errs...)
	}
	return items, nil
}

// ClearCache removes the snapshots of one account, or of every account
// when username is empty.
func (s *InventoryService) ClearCache(ctx context.Context, username string) (int64, error) {
	if username == "" {
		n, err := s.store.DeleteAllInventory(ctx)
		if err == nil {
			s.logger.Info("cleared all inventory caches", "count", n)
		}
		return n, err
	}

	account, err := s.store.GetAccountByUsername(ctx, username)
	if err != nil {
		return 0, err
	}
	n, err := s.store.DeleteInventory(ctx, account.ID)
	if err == nil {
		s.logger.Info("cleared inventory cache", "account", username, "count", n)
	}
	return n, err
}
