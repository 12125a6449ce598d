package repository

import (
	"context"
	"time"

	"botfleet-api/internal/model"
)

// AccountRepository defines account data access methods.
type AccountRepository interface {
	// CreateAccount inserts a new account and fills in its ID and timestamps.
	// Returns model.ErrAlreadyExists when the username is taken.
	CreateAccount(ctx context.Context, account *model.Account) error

	// GetAccount returns model.ErrNotFound when no account has the id.
	GetAccount(ctx context.Context, id int64) (*model.Account, error)

	// GetAccountByUsername returns model.ErrNotFound when no account has the username.
	GetAccountByUsername(ctx context.Context, username string) (*model.Account, error)

	ListAccounts(ctx context.Context) ([]model.Account, error)

	// UpdateAccount applies a partial update and returns the stored result.
	UpdateAccount(ctx context.Context, id int64, update model.AccountUpdate) (*model.Account, error)

	// DeleteAccount removes the account together with its session and cached inventories.
	DeleteAccount(ctx context.Context, id int64) error
}

// SessionRepository defines session data access methods.
type SessionRepository interface {
	// GetSession returns the current unexpired session, or nil when there is none.
	GetSession(ctx context.Context, accountID int64) (*model.Session, error)

	// SaveSession replaces the account's session. UpdatedAt and ExpiresAt are
	// set by the store.
	SaveSession(ctx context.Context, session *model.Session) error

	DeleteSession(ctx context.Context, accountID int64) error

	// DeleteExpiredSessions removes every session that expired before now.
	DeleteExpiredSessions(ctx context.Context) (int64, error)

	// ListActiveSessions returns the usernames holding an unexpired session.
	ListActiveSessions(ctx context.Context) ([]string, error)
}

// InventoryCacheRepository defines inventory snapshot data access methods.
type InventoryCacheRepository interface {
	// GetInventory returns the cached snapshot, or nil on a miss.
	GetInventory(ctx context.Context, key model.InventoryKey) (*model.InventoryEntry, error)

	// SaveInventory replaces the snapshot stored under entry.Key.
	SaveInventory(ctx context.Context, entry *model.InventoryEntry) error

	// DeleteInventory removes every snapshot of one account.
	DeleteInventory(ctx context.Context, accountID int64) (int64, error)

	// DeleteAllInventory removes every snapshot.
	DeleteAllInventory(ctx context.Context) (int64, error)

	// DeleteInventoryOlderThan removes snapshots cached more than age ago.
	DeleteInventoryOlderThan(ctx context.Context, age time.Duration) (int64, error)
}

// SettingRepository defines key/value setting access methods.
type SettingRepository interface {
	// GetSetting returns model.ErrNotFound for an unknown key.
	GetSetting(ctx context.Context, key string) (string, error)
	SetSetting(ctx context.Context, key, value string) error

	// SetDefaultSetting writes value only when key is absent.
	SetDefaultSetting(ctx context.Context, key, value string) error

	AllSettings(ctx context.Context) (map[string]string, error)
}

// Store aggregates every repository backed by a single database.
type Store interface {
	AccountRepository
	SessionRepository
	InventoryCacheRepository
	SettingRepository

	// Stats returns row counts for the health endpoints.
	Stats(ctx context.Context) (map[string]interface{}, error)

	Ping(ctx context.Context) error
	Close() error
}
