package repository

import (
	"errors"
	"strconv"
	"strings"

	"github.com/go-sql-driver/mysql"
	"github.com/lib/pq"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

// dialect captures the SQL differences between the supported databases.
type dialect struct {
	name string

	// Column types substituted into the schema.
	idColumn   string
	keyColumn  string
	textColumn string

	// numbered placeholders ($1, $2) instead of ?
	numbered bool

	// INSERT ... RETURNING id instead of LastInsertId
	returning bool
}

var (
	dialectSQLite = dialect{
		name:       "sqlite",
		idColumn:   "INTEGER PRIMARY KEY AUTOINCREMENT",
		keyColumn:  "TEXT",
		textColumn: "TEXT",
	}
	dialectMySQL = dialect{
		name:       "mysql",
		idColumn:   "BIGINT AUTO_INCREMENT PRIMARY KEY",
		keyColumn:  "VARCHAR(191)",
		textColumn: "LONGTEXT",
	}
	dialectPostgres = dialect{
		name:       "postgres",
		idColumn:   "BIGSERIAL PRIMARY KEY",
		keyColumn:  "VARCHAR(191)",
		textColumn: "TEXT",
		numbered:   true,
		returning:  true,
	}
)

func dialectFor(driver string) (dialect, error) {
	switch driver {
	case "sqlite":
		return dialectSQLite, nil
	case "mysql":
		return dialectMySQL, nil
	case "postgres":
		return dialectPostgres, nil
	}
	return dialect{}, errors.New("unsupported driver: " + driver)
}

// rebind rewrites ? placeholders for drivers that number them.
func (d dialect) rebind(query string) string {
	if !d.numbered {
		return query
	}
	var b strings.Builder
	b.Grow(len(query) + 8)
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// upsert builds an insert that replaces cols on a conflict over keys.
func (d dialect) upsert(table string, keys, cols []string) string {
	all := append(append([]string{}, keys...), cols...)
	marks := strings.TrimSuffix(strings.Repeat("?, ", len(all)), ", ")

	q := "INSERT INTO " + table + " (" + strings.Join(all, ", ") + ") VALUES (" + marks + ")"

	sets := make([]string, len(cols))
	if d.name == "mysql" {
		for i, c := range cols {
			sets[i] = c + " = VALUES(" + c + ")"
		}
		return q + " ON DUPLICATE KEY UPDATE " + strings.Join(sets, ", ")
	}
	for i, c := range cols {
		sets[i] = c + " = excluded." + c
	}
	return q + " ON CONFLICT (" + strings.Join(keys, ", ") + ") DO UPDATE SET " + strings.Join(sets, ", ")
}

// insertIgnore builds an insert that does nothing when the row exists.
func (d dialect) insertIgnore(table string, cols []string) string {
	marks := strings.TrimSuffix(strings.Repeat("?, ", len(cols)), ", ")
	if d.name == "mysql" {
		return "INSERT IGNORE INTO " + table + " (" + strings.Join(cols, ", ") + ") VALUES (" + marks + ")"
	}
	return "INSERT INTO " + table + " (" + strings.Join(cols, ", ") + ") VALUES (" + marks + ") ON CONFLICT DO NOTHING"
}

// schema renders the table definitions for the dialect.
func (d dialect) schema() []string {
	ifNotExists := "IF NOT EXISTS "
	if d.name == "mysql" {
		ifNotExists = ""
	}
	r := strings.NewReplacer("{id}", d.idColumn, "{key}", d.keyColumn, "{text}", d.textColumn, "{ifnotexists}", ifNotExists)
	out := make([]string, len(schemaStatements))
	for i, s := range schemaStatements {
		out[i] = r.Replace(s)
	}
	return out
}

// isUniqueViolation reports whether err is a unique constraint failure.
func isUniqueViolation(err error) bool {
	var sqliteErr *sqlite.Error
	if errors.As(err, &sqliteErr) {
		code := sqliteErr.Code()
		return code == sqlite3.SQLITE_CONSTRAINT_UNIQUE || code == sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY ||
			code == sqlite3.SQLITE_CONSTRAINT
	}
	var mysqlErr *mysql.MySQLError
	if errors.As(err, &mysqlErr) {
		return mysqlErr.Number == 1062
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == "23505"
	}
	return false
}

// isDuplicateIndex reports whether err is MySQL refusing to recreate an index.
func isDuplicateIndex(err error) bool {
	var mysqlErr *mysql.MySQLError
	return errors.As(err, &mysqlErr) && mysqlErr.Number == 1061
}

var schemaStatements = []string{
	`CREATE TABLE IF NOT EXISTS accounts (
		id {id},
		username {key} NOT NULL UNIQUE,
		password {text} NOT NULL,
		email {text},
		shared_secret {text},
		identity_secret {text},
		recovery_code {text},
		created_at BIGINT NOT NULL,
		updated_at BIGINT NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS sessions (
		account_id BIGINT NOT NULL PRIMARY KEY,
		refresh_token {text} NOT NULL,
		web_session_id {text},
		identity {text},
		updated_at BIGINT NOT NULL,
		expires_at BIGINT NOT NULL
	)`,
	`CREATE INDEX {ifnotexists}idx_sessions_expires_at ON sessions (expires_at)`,
	`CREATE TABLE IF NOT EXISTS inventory_cache (
		account_id BIGINT NOT NULL,
		app_id BIGINT NOT NULL,
		context_id BIGINT NOT NULL,
		items_json {text} NOT NULL,
		cached_at BIGINT NOT NULL,
		PRIMARY KEY (account_id, app_id, context_id)
	)`,
	`CREATE INDEX {ifnotexists}idx_inventory_cache_cached_at ON inventory_cache (cached_at)`,
	`CREATE TABLE IF NOT EXISTS settings (
		setting_key {key} NOT NULL PRIMARY KEY,
		setting_value {text} NOT NULL
	)`,
}
