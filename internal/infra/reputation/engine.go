// Package reputation scores worker behavior. Every change is applied to the
// node row and recorded in an append-only event log, and the score never
// drops below the floor so a recovered worker can climb back.
package reputation

import (
	"time"

	"github.com/rs/zerolog"

	"github.com/iris-network/iris/internal/domain"
	"github.com/iris-network/iris/internal/log"
)

// Score deltas.
const (
	deltaCompleted = 10.0
	deltaFast      = 5.0
	deltaTimeout   = -20.0
	deltaInvalid   = -50.0
	deltaUptime    = 1.0
	deltaBroken    = -5.0
	decayFactor    = 0.99

	// fastThreshold qualifies a completion for the speed bonus.
	fastThreshold = 30 * time.Second
)

// Engine applies reputation changes through the store.
type Engine struct {
	store  domain.Store
	now    func() time.Time
	logger zerolog.Logger
}

// NewEngine creates a reputation engine over the given store.
func NewEngine(store domain.Store) *Engine {
	return &Engine{
		store:  store,
		now:    time.Now,
		logger: log.WithComponent("reputation"),
	}
}

// TaskCompleted credits a successful subtask, with a bonus for fast turnaround.
func (e *Engine) TaskCompleted(nodeID string, executionTime time.Duration) {
	e.apply(nodeID, deltaCompleted, domain.RepTaskCompleted)
	if executionTime > 0 && executionTime < fastThreshold {
		e.apply(nodeID, deltaFast, domain.RepTaskFast)
	}
}

// TaskTimeout penalizes a subtask that ran out its deadline.
func (e *Engine) TaskTimeout(nodeID string) {
	e.apply(nodeID, deltaTimeout, domain.RepTaskTimeout)
}

// TaskFailed penalizes a worker-reported execution failure.
func (e *Engine) TaskFailed(nodeID string) {
	e.apply(nodeID, deltaTimeout, domain.RepTaskFailed)
}

// TaskInvalid penalizes an undecryptable or malformed response. This is the
// harshest penalty: it usually means a broken or hostile worker.
func (e *Engine) TaskInvalid(nodeID string) {
	e.apply(nodeID, deltaInvalid, domain.RepTaskInvalid)
}

// SessionEnded settles a finished connection: one credit per full hour
// served, and a penalty per promised hour left unserved.
func (e *Engine) SessionEnded(nodeID string, session, promised time.Duration) {
	hours := int(session / time.Hour)
	for i := 0; i < hours; i++ {
		e.apply(nodeID, deltaUptime, domain.RepUptimeHour)
	}
	if promised > session {
		missing := int((promised - session + time.Hour - 1) / time.Hour)
		for i := 0; i < missing; i++ {
			e.apply(nodeID, deltaBroken, domain.RepUptimeBroken)
		}
	}
}

// WeeklyDecay multiplies every node's score by the decay factor, pulling
// idle scores slowly toward the floor.
func (e *Engine) WeeklyDecay() {
	nodes, err := e.store.ListNodes()
	if err != nil {
		e.logger.Error().Err(err).Msg("decay: list nodes")
		return
	}
	for _, n := range nodes {
		decayed := clamp(n.Reputation * decayFactor)
		if decayed == n.Reputation {
			continue
		}
		if err := e.store.UpdateNodeReputation(n.ID, decayed); err != nil {
			e.logger.Error().Err(err).Str("node_id", n.ID).Msg("decay: update")
			continue
		}
		e.record(n.ID, decayed-n.Reputation, domain.RepWeeklyDecay)
	}
	e.logger.Info().Int("nodes", len(nodes)).Msg("weekly reputation decay applied")
}

// Leaderboard returns the top nodes by reputation.
func (e *Engine) Leaderboard(limit int) ([]domain.Node, error) {
	return e.store.TopNodesByReputation(limit)
}

// History returns a node's recent reputation events.
func (e *Engine) History(nodeID string, limit int) ([]domain.ReputationEvent, error) {
	return e.store.ListReputationEvents(nodeID, limit)
}

func (e *Engine) apply(nodeID string, delta float64, reason domain.ReputationReason) {
	n, err := e.store.GetNode(nodeID)
	if err != nil {
		e.logger.Warn().Err(err).Str("node_id", nodeID).Msg("reputation: node lookup")
		return
	}
	updated := clamp(n.Reputation + delta)
	if err := e.store.UpdateNodeReputation(nodeID, updated); err != nil {
		e.logger.Error().Err(err).Str("node_id", nodeID).Msg("reputation: update")
		return
	}
	e.record(nodeID, delta, reason)
	e.logger.Debug().
		Str("node_id", nodeID).
		Float64("delta", delta).
		Float64("score", updated).
		Str("reason", string(reason)).
		Msg("reputation changed")
}

func (e *Engine) record(nodeID string, delta float64, reason domain.ReputationReason) {
	ev := domain.ReputationEvent{
		NodeID: nodeID,
		Delta:  delta,
		Reason: reason,
		At:     e.now(),
	}
	if err := e.store.AppendReputationEvent(ev); err != nil {
		e.logger.Error().Err(err).Str("node_id", nodeID).Msg("reputation: append event")
	}
}

func clamp(score float64) float64 {
	if score < domain.MinReputation {
		return domain.MinReputation
	}
	return score
}
