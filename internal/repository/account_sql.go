package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"botfleet-api/internal/model"
)

const accountColumns = `id, username, password, email, shared_secret, identity_secret, recovery_code, created_at, updated_at`

// CreateAccount inserts a new account.
func (s *SQLStore) CreateAccount(ctx context.Context, a *model.Account) error {
	if err := a.Validate(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	query := `INSERT INTO accounts (username, password, email, shared_secret, identity_secret, recovery_code, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`
	args := []any{a.Username, a.Password, a.Email, a.SharedSecret, a.IdentitySecret, a.RecoveryCode, toMillis(now), toMillis(now)}

	var id int64
	if s.dialect.returning {
		err := s.queryRow(ctx, query+" RETURNING id", args...).Scan(&id)
		if err != nil {
			return s.createAccountError(a.Username, err)
		}
	} else {
		res, err := s.exec(ctx, query, args...)
		if err != nil {
			return s.createAccountError(a.Username, err)
		}
		if id, err = res.LastInsertId(); err != nil {
			return fmt.Errorf("failed to read account id: %w", err)
		}
	}

	a.ID = id
	a.CreatedAt = fromMillis(toMillis(now))
	a.UpdatedAt = a.CreatedAt
	return nil
}

func (s *SQLStore) createAccountError(username string, err error) error {
	if isUniqueViolation(err) {
		return model.ErrAlreadyExists.With("account %s", username)
	}
	return fmt.Errorf("failed to create account: %w", err)
}

// GetAccount retrieves an account by id.
func (s *SQLStore) GetAccount(ctx context.Context, id int64) (*model.Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	a, err := scanAccount(s.queryRow(ctx, `SELECT `+accountColumns+` FROM accounts WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, model.ErrNotFound.With("account %d", id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get account: %w", err)
	}
	return a, nil
}

// GetAccountByUsername retrieves an account by username.
func (s *SQLStore) GetAccountByUsername(ctx context.Context, username string) (*model.Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	a, err := scanAccount(s.queryRow(ctx, `SELECT `+accountColumns+` FROM accounts WHERE username = ?`, username))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, model.ErrNotFound.With("account %s", username)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get account: %w", err)
	}
	return a, nil
}

// ListAccounts returns every account ordered by id.
func (s *SQLStore) ListAccounts(ctx context.Context) ([]model.Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.query(ctx, `SELECT `+accountColumns+` FROM accounts ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("failed to list accounts: %w", err)
	}
	defer rows.Close()

	accounts := make([]model.Account, 0)
	for rows.Next() {
		a, err := scanAccount(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan account: %w", err)
		}
		accounts = append(accounts, *a)
	}
	return accounts, rows.Err()
}

// UpdateAccount applies a partial update.
func (s *SQLStore) UpdateAccount(ctx context.Context, id int64, update model.AccountUpdate) (*model.Account, error) {
	current, err := s.GetAccount(ctx, id)
	if err != nil {
		return nil, err
	}
	if update.IsEmpty() {
		return current, nil
	}
	update.Apply(current)
	if current.Password == "" {
		return nil, model.ErrInvalidInput.With("password cannot be empty")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	current.UpdatedAt = fromMillis(toMillis(s.now()))
	_, err = s.exec(ctx, `UPDATE accounts SET password = ?, email = ?, shared_secret = ?, identity_secret = ?, recovery_code = ?, updated_at = ?
		WHERE id = ?`,
		current.Password, current.Email, current.SharedSecret, current.IdentitySecret, current.RecoveryCode,
		toMillis(current.UpdatedAt), id)
	if err != nil {
		return nil, fmt.Errorf("failed to update account: %w", err)
	}
	return current, nil
}

// DeleteAccount removes the account and everything keyed on it.
func (s *SQLStore) DeleteAccount(ctx context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	for _, q := range []string{
		`DELETE FROM sessions WHERE account_id = ?`,
		`DELETE FROM inventory_cache WHERE account_id = ?`,
	} {
		if _, err := tx.ExecContext(ctx, s.dialect.rebind(q), id); err != nil {
			return fmt.Errorf("failed to delete account data: %w", err)
		}
	}

	res, err := tx.ExecContext(ctx, s.dialect.rebind(`DELETE FROM accounts WHERE id = ?`), id)
	if err != nil {
		return fmt.Errorf("failed to delete account: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return model.ErrNotFound.With("account %d", id)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanAccount(row rowScanner) (*model.Account, error) {
	var a model.Account
	var created, updated int64
	err := row.Scan(&a.ID, &a.Username, &a.Password, &a.Email, &a.SharedSecret, &a.IdentitySecret,
		&a.RecoveryCode, &created, &updated)
	if err != nil {
		return nil, err
	}
	a.CreatedAt = fromMillis(created)
	a.UpdatedAt = fromMillis(updated)
	return &a, nil
}
