package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"botfleet-api/internal/model"
)

// GetSetting returns the value stored under key.
func (s *SQLStore) GetSetting(ctx context.Context, key string) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var value string
	err := s.queryRow(ctx, `SELECT setting_value FROM settings WHERE setting_key = ?`, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", model.ErrNotFound.With("setting %s", key)
	}
	if err != nil {
		return "", fmt.Errorf("failed to get setting: %w", err)
	}
	return value, nil
}

// SetSetting stores value under key, replacing any previous value.
func (s *SQLStore) SetSetting(ctx context.Context, key, value string) error {
	if key == "" {
		return model.ErrInvalidInput.With("setting key is required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	query := s.dialect.upsert("settings", []string{"setting_key"}, []string{"setting_value"})
	if _, err := s.exec(ctx, query, key, value); err != nil {
		return fmt.Errorf("failed to set setting: %w", err)
	}
	return nil
}

// SetDefaultSetting stores value only if key has no value yet.
func (s *SQLStore) SetDefaultSetting(ctx context.Context, key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	query := s.dialect.insertIgnore("settings", []string{"setting_key", "setting_value"})
	if _, err := s.exec(ctx, query, key, value); err != nil {
		return fmt.Errorf("failed to seed setting: %w", err)
	}
	return nil
}

// AllSettings returns every stored setting.
func (s *SQLStore) AllSettings(ctx context.Context) (map[string]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.query(ctx, `SELECT setting_key, setting_value FROM settings`)
	if err != nil {
		return nil, fmt.Errorf("failed to list settings: %w", err)
	}
	defer rows.Close()

	settings := make(map[string]string)
	for rows.Next() {
		var k, v string
		if err := rows.Scan(&k, &v); err != nil {
			return nil, fmt.Errorf("failed to scan setting: %w", err)
		}
		settings[k] = v
	}
	return settings, rows.Err()
}
