package sqlite

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/iris-network/iris/internal/domain"
)

// ─── Enrollment Token Repository ────────────────────────────────────────────

// CreateToken inserts a new enrollment token record. Only the hash is
// stored; the plaintext token is shown once at generation time.
func (d *DB) CreateToken(t domain.EnrollmentToken) error {
	_, err := d.db.Exec(
		`INSERT INTO enrollment_tokens (id, token_hash, label, created_at, expires_at, used_at, used_by_node, revoked)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		t.ID, t.TokenHash, t.Label, t.CreatedAt.Unix(),
		nullableUnix(t.ExpiresAt), nullableUnix(t.UsedAt), nullStr(t.UsedByNode), t.Revoked,
	)
	return err
}

// GetTokenByHash looks up a token by its hash.
func (d *DB) GetTokenByHash(tokenHash string) (*domain.EnrollmentToken, error) {
	row := d.db.QueryRow(
		`SELECT id, token_hash, label, created_at, expires_at, used_at, used_by_node, revoked
		 FROM enrollment_tokens WHERE token_hash = ?`, tokenHash,
	)
	return scanToken(row)
}

// ListTokens returns tokens, optionally filtering out used or revoked ones.
func (d *DB) ListTokens(includeUsed, includeRevoked bool) ([]domain.EnrollmentToken, error) {
	query := `SELECT id, token_hash, label, created_at, expires_at, used_at, used_by_node, revoked
	 FROM enrollment_tokens WHERE 1=1`
	if !includeUsed {
		query += ` AND used_at IS NULL`
	}
	if !includeRevoked {
		query += ` AND revoked = 0`
	}
	query += ` ORDER BY created_at DESC`

	rows, err := d.db.Query(query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var tokens []domain.EnrollmentToken
	for rows.Next() {
		t, err := scanToken(rows)
		if err != nil {
			return nil, err
		}
		tokens = append(tokens, *t)
	}
	return tokens, rows.Err()
}

// ConsumeToken marks a token used by a node. Single use: a token already
// consumed or revoked stays untouched and the call reports ErrTokenNotFound.
func (d *DB) ConsumeToken(id, nodeID string) error {
	result, err := d.db.Exec(
		`UPDATE enrollment_tokens SET used_at = ?, used_by_node = ?
		 WHERE id = ? AND used_at IS NULL AND revoked = 0`,
		time.Now().Unix(), nodeID, id,
	)
	if err != nil {
		return err
	}
	n, _ := result.RowsAffected()
	if n == 0 {
		return domain.ErrTokenNotFound
	}
	return nil
}

// RevokeToken invalidates a token.
func (d *DB) RevokeToken(id string) error {
	result, err := d.db.Exec(
		`UPDATE enrollment_tokens SET revoked = 1 WHERE id = ?`, id,
	)
	if err != nil {
		return err
	}
	n, _ := result.RowsAffected()
	if n == 0 {
		return domain.ErrTokenNotFound
	}
	return nil
}

func scanToken(s scanner) (*domain.EnrollmentToken, error) {
	var t domain.EnrollmentToken
	var createdAt int64
	var expiresAt, usedAt sql.NullInt64
	var usedBy sql.NullString

	err := s.Scan(&t.ID, &t.TokenHash, &t.Label, &createdAt, &expiresAt, &usedAt, &usedBy, &t.Revoked)
	if err == sql.ErrNoRows {
		return nil, domain.ErrTokenNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan token: %w", err)
	}

	t.CreatedAt = time.Unix(createdAt, 0)
	if expiresAt.Valid {
		t.ExpiresAt = time.Unix(expiresAt.Int64, 0)
	}
	if usedAt.Valid {
		t.UsedAt = time.Unix(usedAt.Int64, 0)
	}
	if usedBy.Valid {
		t.UsedByNode = usedBy.String
	}
	return &t, nil
}
