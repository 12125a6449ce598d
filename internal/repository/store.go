package repository

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"botfleet-api/internal/logging"
	"botfleet-api/internal/model"

	"github.com/charmbracelet/log"
	_ "github.com/go-sql-driver/mysql" // MySQL driver
	_ "github.com/lib/pq"              // PostgreSQL driver
	_ "modernc.org/sqlite"             // Pure Go SQLite driver - no CGO required
)

// Options configures a SQLStore.
type Options struct {
	Driver string // sqlite, mysql or postgres
	DSN    string

	// SessionTTL caps how long a saved session stays resumable.
	SessionTTL time.Duration

	Logger *log.Logger

	// Now overrides the clock, for tests.
	Now func() time.Time
}

// SQLStore implements Store on database/sql.
// Timestamps are stored as Unix milliseconds so every expiry comparison uses
// a cutoff computed here rather than database date arithmetic.
type SQLStore struct {
	db      *sql.DB
	dialect dialect
	ttl     time.Duration
	now     func() time.Time
	logger  *log.Logger

	// serializes writers; sqlite allows one at a time
	mu sync.RWMutex
}

var _ Store = (*SQLStore)(nil)

// Open connects to the database, creates the schema and seeds default settings.
func Open(ctx context.Context, opts Options) (*SQLStore, error) {
	d, err := dialectFor(opts.Driver)
	if err != nil {
		return nil, err
	}

	dsn := opts.DSN
	if d.name == "sqlite" {
		dsn, err = sqliteDSN(dsn)
		if err != nil {
			return nil, err
		}
	}

	db, err := sql.Open(d.name, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", d.name, err)
	}

	if d.name == "sqlite" {
		db.SetMaxOpenConns(1) // SQLite only supports 1 writer
		db.SetMaxIdleConns(1)
		db.SetConnMaxLifetime(0) // Keep connection alive
	} else {
		db.SetMaxOpenConns(25)
		db.SetMaxIdleConns(10)
		db.SetConnMaxLifetime(5 * time.Minute)
		db.SetConnMaxIdleTime(1 * time.Minute)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping %s: %w", d.name, err)
	}

	s := &SQLStore{
		db:      db,
		dialect: d,
		ttl:     opts.SessionTTL,
		now:     opts.Now,
		logger:  logging.Component(opts.Logger, "Store"),
	}
	if s.ttl <= 0 {
		s.ttl = model.DefaultSessionTTL
	}
	if s.now == nil {
		s.now = time.Now
	}

	if err := s.migrate(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}
	for key, value := range model.DefaultSettings {
		if err := s.SetDefaultSetting(ctx, key, value); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to seed settings: %w", err)
		}
	}

	s.logger.Info("initialized", "driver", d.name)
	return s, nil
}

// sqliteDSN adds the pragmas the store relies on and makes sure the
// database directory exists.
func sqliteDSN(path string) (string, error) {
	if path == "" || path == ":memory:" {
		return ":memory:?_pragma=busy_timeout(5000)", nil
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return "", fmt.Errorf("failed to create database directory: %w", err)
		}
	}
	return "file:" + path + "?_pragma=journal_mode(WAL)&_pragma=synchronous(NORMAL)&_pragma=busy_timeout(5000)", nil
}

func (s *SQLStore) migrate(ctx context.Context) error {
	for _, stmt := range s.dialect.schema() {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			if isDuplicateIndex(err) {
				continue
			}
			return err
		}
	}
	return nil
}

// Ping checks the database connection.
func (s *SQLStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Stats returns row counts per table.
func (s *SQLStore) Stats(ctx context.Context) (map[string]interface{}, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stats := map[string]interface{}{"driver": s.dialect.name}
	for _, table := range []string{"accounts", "sessions", "inventory_cache"} {
		var count int64
		if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM "+table).Scan(&count); err != nil {
			return nil, fmt.Errorf("failed to count %s: %w", table, err)
		}
		stats[table] = count
	}
	return stats, nil
}

// Close closes the database connection.
func (s *SQLStore) Close() error {
	return s.db.Close()
}

func (s *SQLStore) exec(ctx context.Context, query string, args ...any) (sql.Result, error) {
	return s.db.ExecContext(ctx, s.dialect.rebind(query), args...)
}

func (s *SQLStore) queryRow(ctx context.Context, query string, args ...any) *sql.Row {
	return s.db.QueryRowContext(ctx, s.dialect.rebind(query), args...)
}

func (s *SQLStore) query(ctx context.Context, query string, args ...any) (*sql.Rows, error) {
	return s.db.QueryContext(ctx, s.dialect.rebind(query), args...)
}

func toMillis(t time.Time) int64 {
	return t.UnixMilli()
}

func fromMillis(ms int64) time.Time {
	return time.UnixMilli(ms).UTC()
}
