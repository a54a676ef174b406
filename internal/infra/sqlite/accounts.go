package sqlite

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/iris-network/iris/internal/domain"
)

// ─── Account Repository ─────────────────────────────────────────────────────

// CreateAccount inserts a new account record.
func (d *DB) CreateAccount(a domain.Account) error {
	_, err := d.db.Exec(
		`INSERT INTO accounts (id, key_hash, key_prefix, status, created_at, last_activity_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		a.ID, a.KeyHash, a.KeyPrefix, string(a.Status),
		a.CreatedAt.Unix(), nullableUnix(a.LastActivityAt),
	)
	return err
}

// GetAccountByID retrieves an account by ID.
func (d *DB) GetAccountByID(id string) (*domain.Account, error) {
	row := d.db.QueryRow(
		`SELECT id, key_hash, key_prefix, status, created_at, last_activity_at
		 FROM accounts WHERE id = ?`, id,
	)
	return scanAccount(row)
}

// GetAccountByKeyHash looks up the account owning a hashed key.
func (d *DB) GetAccountByKeyHash(keyHash string) (*domain.Account, error) {
	row := d.db.QueryRow(
		`SELECT id, key_hash, key_prefix, status, created_at, last_activity_at
		 FROM accounts WHERE key_hash = ?`, keyHash,
	)
	return scanAccount(row)
}

// ListAccounts returns all accounts, newest first.
func (d *DB) ListAccounts() ([]domain.Account, error) {
	rows, err := d.db.Query(
		`SELECT id, key_hash, key_prefix, status, created_at, last_activity_at
		 FROM accounts ORDER BY created_at DESC`,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var accounts []domain.Account
	for rows.Next() {
		a, err := scanAccount(rows)
		if err != nil {
			return nil, err
		}
		accounts = append(accounts, *a)
	}
	return accounts, rows.Err()
}

// UpdateAccountStatus changes an account's lifecycle status.
func (d *DB) UpdateAccountStatus(id string, status domain.AccountStatus) error {
	result, err := d.db.Exec(
		`UPDATE accounts SET status = ? WHERE id = ?`, string(status), id,
	)
	if err != nil {
		return err
	}
	n, _ := result.RowsAffected()
	if n == 0 {
		return domain.ErrAccountNotFound
	}
	return nil
}

// TouchAccount updates the last_activity_at timestamp.
func (d *DB) TouchAccount(id string) error {
	_, err := d.db.Exec(
		`UPDATE accounts SET last_activity_at = ? WHERE id = ?`,
		time.Now().Unix(), id,
	)
	return err
}

// CountAccountNodes returns how many nodes are linked to the account.
func (d *DB) CountAccountNodes(accountID string) (int, error) {
	var n int
	err := d.db.QueryRow(
		`SELECT COUNT(*) FROM nodes WHERE account_id = ?`, accountID,
	).Scan(&n)
	return n, err
}

func scanAccount(s scanner) (*domain.Account, error) {
	var a domain.Account
	var createdAt int64
	var lastActivity sql.NullInt64

	err := s.Scan(&a.ID, &a.KeyHash, &a.KeyPrefix, &a.Status, &createdAt, &lastActivity)
	if err == sql.ErrNoRows {
		return nil, domain.ErrAccountNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan account: %w", err)
	}

	a.CreatedAt = time.Unix(createdAt, 0)
	if lastActivity.Valid {
		a.LastActivityAt = time.Unix(lastActivity.Int64, 0)
	}
	return &a, nil
}
