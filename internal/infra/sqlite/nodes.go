package sqlite

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/iris-network/iris/internal/domain"
)

// ─── Node Repository ────────────────────────────────────────────────────────

// UpsertNode inserts or updates a node record. Reputation and the completed
// task counter survive re-registration; hardware facts are refreshed.
func (d *DB) UpsertNode(n domain.Node) error {
	_, err := d.db.Exec(
		`INSERT INTO nodes (id, account_id, public_key, model_name, max_context, vram_gb,
			gpu_name, model_params_b, quantization, tokens_per_second, tier,
			supports_vision, reputation, tasks_completed, created_at, last_seen_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET
			account_id=excluded.account_id,
			public_key=excluded.public_key,
			model_name=excluded.model_name,
			max_context=excluded.max_context,
			vram_gb=excluded.vram_gb,
			gpu_name=excluded.gpu_name,
			model_params_b=excluded.model_params_b,
			quantization=excluded.quantization,
			tokens_per_second=excluded.tokens_per_second,
			tier=excluded.tier,
			supports_vision=excluded.supports_vision,
			last_seen_at=excluded.last_seen_at`,
		n.ID, nullStr(n.AccountID), n.PublicKey, n.ModelName, n.MaxContext, n.VRAMGB,
		n.GPUName, n.ModelParamsB, n.Quantization, n.TokensPerSecond, string(n.Tier),
		n.SupportsVision, n.Reputation, n.TasksCompleted,
		n.CreatedAt.Unix(), nullableUnix(n.LastSeenAt),
	)
	return err
}

// GetNode retrieves a node by ID.
func (d *DB) GetNode(id string) (*domain.Node, error) {
	row := d.db.QueryRow(nodeSelect+` WHERE id = ?`, id)
	return scanNode(row)
}

// ListNodes returns all known nodes ordered by reputation descending.
func (d *DB) ListNodes() ([]domain.Node, error) {
	return d.queryNodes(nodeSelect + ` ORDER BY reputation DESC`)
}

// TopNodesByReputation returns the leaderboard.
func (d *DB) TopNodesByReputation(limit int) ([]domain.Node, error) {
	return d.queryNodes(nodeSelect+` ORDER BY reputation DESC LIMIT ?`, limit)
}

// UpdateNodeLastSeen stamps the node's last heartbeat time.
func (d *DB) UpdateNodeLastSeen(id string) error {
	_, err := d.db.Exec(
		`UPDATE nodes SET last_seen_at = ? WHERE id = ?`,
		time.Now().Unix(), id,
	)
	return err
}

// UpdateNodeReputation sets the node's current reputation score.
func (d *DB) UpdateNodeReputation(id string, reputation float64) error {
	result, err := d.db.Exec(
		`UPDATE nodes SET reputation = ? WHERE id = ?`, reputation, id,
	)
	if err != nil {
		return err
	}
	n, _ := result.RowsAffected()
	if n == 0 {
		return domain.ErrNodeNotFound
	}
	return nil
}

// IncrementNodeTasks bumps the node's completed task counter.
func (d *DB) IncrementNodeTasks(id string) error {
	_, err := d.db.Exec(
		`UPDATE nodes SET tasks_completed = tasks_completed + 1 WHERE id = ?`, id,
	)
	return err
}

// LinkNodeToAccount binds a node to an owning account.
func (d *DB) LinkNodeToAccount(nodeID, accountID string) error {
	result, err := d.db.Exec(
		`UPDATE nodes SET account_id = ? WHERE id = ?`, accountID, nodeID,
	)
	if err != nil {
		return err
	}
	n, _ := result.RowsAffected()
	if n == 0 {
		return domain.ErrNodeNotFound
	}
	return nil
}

const nodeSelect = `SELECT id, account_id, public_key, model_name, max_context, vram_gb,
	gpu_name, model_params_b, quantization, tokens_per_second, tier,
	supports_vision, reputation, tasks_completed, created_at, last_seen_at
 FROM nodes`

func (d *DB) queryNodes(query string, args ...any) ([]domain.Node, error) {
	rows, err := d.db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var nodes []domain.Node
	for rows.Next() {
		n, err := scanNode(rows)
		if err != nil {
			return nil, err
		}
		nodes = append(nodes, *n)
	}
	return nodes, rows.Err()
}

func scanNode(s scanner) (*domain.Node, error) {
	var n domain.Node
	var accountID sql.NullString
	var createdAt int64
	var lastSeen sql.NullInt64

	err := s.Scan(&n.ID, &accountID, &n.PublicKey, &n.ModelName, &n.MaxContext, &n.VRAMGB,
		&n.GPUName, &n.ModelParamsB, &n.Quantization, &n.TokensPerSecond, &n.Tier,
		&n.SupportsVision, &n.Reputation, &n.TasksCompleted, &createdAt, &lastSeen)
	if err == sql.ErrNoRows {
		return nil, domain.ErrNodeNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan node: %w", err)
	}

	if accountID.Valid {
		n.AccountID = accountID.String
	}
	n.CreatedAt = time.Unix(createdAt, 0)
	if lastSeen.Valid {
		n.LastSeenAt = time.Unix(lastSeen.Int64, 0)
	}
	return &n, nil
}
