package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"botfleet-api/internal/model"
)

// GetInventory retrieves a cached snapshot.
func (s *SQLStore) GetInventory(ctx context.Context, key model.InventoryKey) (*model.InventoryEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	query := `SELECT items_json, cached_at FROM inventory_cache WHERE account_id = ? AND app_id = ? AND context_id = ?`

	var raw string
	var cachedAt int64
	err := s.queryRow(ctx, query, key.AccountID, key.AppID, key.ContextID).Scan(&raw, &cachedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get inventory: %w", err)
	}

	items := make([]model.Item, 0)
	if err := json.Unmarshal([]byte(raw), &items); err != nil {
		return nil, fmt.Errorf("failed to decode inventory: %w", err)
	}

	return &model.InventoryEntry{Key: key, Items: items, CachedAt: fromMillis(cachedAt)}, nil
}

// SaveInventory replaces the snapshot for entry.Key. A zero CachedAt is
// stamped with the current time.
func (s *SQLStore) SaveInventory(ctx context.Context, entry *model.InventoryEntry) error {
	items := entry.Items
	if items == nil {
		items = []model.Item{}
	}
	raw, err := json.Marshal(items)
	if err != nil {
		return fmt.Errorf("failed to encode inventory: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if entry.CachedAt.IsZero() {
		entry.CachedAt = fromMillis(toMillis(s.now()))
	}

	query := s.dialect.upsert("inventory_cache",
		[]string{"account_id", "app_id", "context_id"},
		[]string{"items_json", "cached_at"})
	_, err = s.exec(ctx, query, entry.Key.AccountID, entry.Key.AppID, entry.Key.ContextID, string(raw), toMillis(entry.CachedAt))
	if err != nil {
		return fmt.Errorf("failed to save inventory: %w", err)
	}
	return nil
}

// DeleteInventory removes every snapshot of one account.
func (s *SQLStore) DeleteInventory(ctx context.Context, accountID int64) (int64, error) {
	return s.deleteInventory(ctx, `DELETE FROM inventory_cache WHERE account_id = ?`, accountID)
}

// DeleteAllInventory removes every snapshot.
func (s *SQLStore) DeleteAllInventory(ctx context.Context) (int64, error) {
	return s.deleteInventory(ctx, `DELETE FROM inventory_cache`)
}

// DeleteInventoryOlderThan removes snapshots that have not been refreshed within age.
func (s *SQLStore) DeleteInventoryOlderThan(ctx context.Context, age time.Duration) (int64, error) {
	cutoff := s.now().Add(-age)
	n, err := s.deleteInventory(ctx, `DELETE FROM inventory_cache WHERE cached_at < ?`, toMillis(cutoff))
	if err == nil && n > 0 {
		s.logger.Info("removed stale inventory snapshots", "count", n, "threshold", age)
	}
	return n, err
}

func (s *SQLStore) deleteInventory(ctx context.Context, query string, args ...any) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.exec(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("failed to delete inventory: %w", err)
	}
	return res.RowsAffected()
}
