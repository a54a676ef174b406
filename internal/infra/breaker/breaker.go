// Package breaker tracks per-worker circuit breakers. A worker that fails
// repeatedly is excluded from selection until a cooling period elapses, then
// probed with a single trial task before rejoining the pool.
package breaker

import (
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/iris-network/iris/internal/log"
)

// State of a single breaker.
type State string

const (
	Closed   State = "closed"    // healthy, tasks flow
	Open     State = "open"      // excluded from selection
	HalfOpen State = "half_open" // cooling elapsed, one probe allowed
)

const (
	// FailureThreshold consecutive failures trip the breaker.
	FailureThreshold = 3
	// CoolingPeriod before an open breaker admits a probe.
	CoolingPeriod = 5 * time.Minute
	// recoveryStreak of successes in closed state forgives one old failure.
	recoveryStreak = 3
)

type breaker struct {
	state        State
	failureCount int
	successCount int
	openedAt     time.Time
}

// Manager holds one breaker per node. All methods are safe for concurrent
// use. Breakers are created lazily in the closed state.
type Manager struct {
	mu       sync.Mutex
	breakers map[string]*breaker
	now      func() time.Time
	logger   zerolog.Logger
}

// NewManager creates an empty breaker manager.
func NewManager() *Manager {
	return &Manager{
		breakers: make(map[string]*breaker),
		now:      time.Now,
		logger:   log.WithComponent("breaker"),
	}
}

func (m *Manager) get(nodeID string) *breaker {
	b, ok := m.breakers[nodeID]
	if !ok {
		b = &breaker{state: Closed}
		m.breakers[nodeID] = b
	}
	return b
}

// IsAvailable reports whether the node may receive tasks. The open to
// half-open transition happens lazily here once the cooling period elapses.
func (m *Manager) IsAvailable(nodeID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	b := m.get(nodeID)
	switch b.state {
	case Closed, HalfOpen:
		return true
	case Open:
		if m.now().Sub(b.openedAt) >= CoolingPeriod {
			b.state = HalfOpen
			m.logger.Info().Str("node_id", nodeID).Msg("breaker half-open, probing")
			return true
		}
		return false
	}
	return false
}

// RecordSuccess registers a completed task. A success in half-open closes
// the breaker; in closed state a streak of successes slowly forgives old
// failures.
func (m *Manager) RecordSuccess(nodeID string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	b := m.get(nodeID)
	switch b.state {
	case HalfOpen:
		b.state = Closed
		b.failureCount = 0
		b.successCount = 0
		m.logger.Info().Str("node_id", nodeID).Msg("breaker closed after probe")
	case Closed:
		b.successCount++
		if b.successCount >= recoveryStreak && b.failureCount > 0 {
			b.failureCount--
			b.successCount = 0
		}
	}
}

// RecordFailure registers a failed or timed-out task. A failure in
// half-open re-opens immediately; consecutive failures in closed state trip
// the breaker at the threshold.
func (m *Manager) RecordFailure(nodeID string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	b := m.get(nodeID)
	switch b.state {
	case HalfOpen:
		b.state = Open
		b.openedAt = m.now()
		m.logger.Warn().Str("node_id", nodeID).Msg("probe failed, breaker re-opened")
	case Closed:
		b.failureCount++
		b.successCount = 0
		if b.failureCount >= FailureThreshold {
			b.state = Open
			b.openedAt = m.now()
			m.logger.Warn().
				Str("node_id", nodeID).
				Int("failures", b.failureCount).
				Msg("breaker opened")
		}
	}
}

// Reset removes the node's breaker, e.g. when the node disconnects.
func (m *Manager) Reset(nodeID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.breakers, nodeID)
}

// StateOf returns the node's current breaker state.
func (m *Manager) StateOf(nodeID string) State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.get(nodeID).state
}

// Stats summarizes breaker states for the stats endpoint.
func (m *Manager) Stats() map[State]int {
	m.mu.Lock()
	defer m.mu.Unlock()

	stats := map[State]int{Closed: 0, Open: 0, HalfOpen: 0}
	for _, b := range m.breakers {
		stats[b.state]++
	}
	return stats
}
