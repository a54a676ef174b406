package sqlite

import (
	"time"

	"github.com/iris-network/iris/internal/domain"
)

// ─── Reputation Event Log ───────────────────────────────────────────────────

// AppendReputationEvent records a score change in the append-only log.
func (d *DB) AppendReputationEvent(ev domain.ReputationEvent) error {
	_, err := d.db.Exec(
		`INSERT INTO reputation_events (node_id, delta, reason, at) VALUES (?, ?, ?, ?)`,
		ev.NodeID, ev.Delta, string(ev.Reason), ev.At.Unix(),
	)
	return err
}

// ListReputationEvents returns a node's recent reputation history, newest
// first.
func (d *DB) ListReputationEvents(nodeID string, limit int) ([]domain.ReputationEvent, error) {
	rows, err := d.db.Query(
		`SELECT id, node_id, delta, reason, at
		 FROM reputation_events WHERE node_id = ? ORDER BY id DESC LIMIT ?`,
		nodeID, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []domain.ReputationEvent
	for rows.Next() {
		var ev domain.ReputationEvent
		var at int64
		if err := rows.Scan(&ev.ID, &ev.NodeID, &ev.Delta, &ev.Reason, &at); err != nil {
			return nil, err
		}
		ev.At = time.Unix(at, 0)
		events = append(events, ev)
	}
	return events, rows.Err()
}
