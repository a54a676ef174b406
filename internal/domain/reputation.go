package domain

import "time"

// ─── Reputation ─────────────────────────────────────────────────────────────

const (
	InitialReputation = 100.0
	MinReputation     = 10.0
)

// ReputationReason labels a reputation change.
type ReputationReason string

const (
	RepTaskCompleted ReputationReason = "task_completed"
	RepTaskFast      ReputationReason = "task_fast"
	RepTaskTimeout   ReputationReason = "task_timeout"
	RepTaskFailed    ReputationReason = "task_failed"
	RepTaskInvalid   ReputationReason = "task_invalid"
	RepUptimeHour    ReputationReason = "uptime_hour"
	RepUptimeBroken  ReputationReason = "uptime_broken"
	RepWeeklyDecay   ReputationReason = "weekly_decay"
)

// ReputationEvent is an append-only record of a score change. The node's
// reputation is the clamped running sum plus periodic decay.
type ReputationEvent struct {
	ID     int64            `json:"id,omitempty"`
	NodeID string           `json:"node_id"`
	Delta  float64          `json:"delta"`
	Reason ReputationReason `json:"reason"`
	At     time.Time        `json:"at"`
}
