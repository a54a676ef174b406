package breaker

import (
	"testing"
	"time"
)

// ═══ Circuit Breaker Tests ══════════════════════════════════════════════════

func newTestManager(now *time.Time) *Manager {
	m := NewManager()
	m.now = func() time.Time { return *now }
	return m
}

func TestBreakerOpensAfterThreshold(t *testing.T) {
	now := time.Now()
	m := newTestManager(&now)

	for i := 0; i < FailureThreshold-1; i++ {
		m.RecordFailure("node-1")
		if !m.IsAvailable("node-1") {
			t.Fatalf("breaker opened after %d failures, threshold is %d", i+1, FailureThreshold)
		}
	}

	m.RecordFailure("node-1")
	if m.IsAvailable("node-1") {
		t.Error("breaker still available after threshold failures")
	}
	if got := m.StateOf("node-1"); got != Open {
		t.Errorf("state = %s, want open", got)
	}
}

func TestBreakerHalfOpensAfterCooling(t *testing.T) {
	now := time.Now()
	m := newTestManager(&now)

	for i := 0; i < FailureThreshold; i++ {
		m.RecordFailure("node-1")
	}
	if m.IsAvailable("node-1") {
		t.Fatal("breaker should be open")
	}

	now = now.Add(CoolingPeriod - time.Second)
	if m.IsAvailable("node-1") {
		t.Error("breaker admitted probe before cooling elapsed")
	}

	now = now.Add(2 * time.Second)
	if !m.IsAvailable("node-1") {
		t.Error("breaker did not half-open after cooling")
	}
	if got := m.StateOf("node-1"); got != HalfOpen {
		t.Errorf("state = %s, want half_open", got)
	}
}

func TestProbeSuccessClosesBreaker(t *testing.T) {
	now := time.Now()
	m := newTestManager(&now)

	for i := 0; i < FailureThreshold; i++ {
		m.RecordFailure("node-1")
	}
	now = now.Add(CoolingPeriod)
	if !m.IsAvailable("node-1") {
		t.Fatal("breaker should be half-open")
	}

	m.RecordSuccess("node-1")
	if got := m.StateOf("node-1"); got != Closed {
		t.Errorf("state = %s, want closed", got)
	}
	// A fresh failure must need the full threshold again.
	m.RecordFailure("node-1")
	if !m.IsAvailable("node-1") {
		t.Error("single failure after recovery opened the breaker")
	}
}

func TestProbeFailureReopensBreaker(t *testing.T) {
	now := time.Now()
	m := newTestManager(&now)

	for i := 0; i < FailureThreshold; i++ {
		m.RecordFailure("node-1")
	}
	now = now.Add(CoolingPeriod)
	m.IsAvailable("node-1") // transition to half-open

	m.RecordFailure("node-1")
	if got := m.StateOf("node-1"); got != Open {
		t.Errorf("state = %s, want open", got)
	}
	// Cooling restarts from the re-open.
	now = now.Add(time.Minute)
	if m.IsAvailable("node-1") {
		t.Error("breaker admitted probe before second cooling elapsed")
	}
}

func TestSuccessStreakForgivesFailures(t *testing.T) {
	now := time.Now()
	m := newTestManager(&now)

	m.RecordFailure("node-1")
	m.RecordFailure("node-1")

	// Three successes forgive one failure.
	for i := 0; i < recoveryStreak; i++ {
		m.RecordSuccess("node-1")
	}

	// One more failure lands on two where the unforgiven count would have
	// reached the threshold of three.
	m.RecordFailure("node-1")
	if !m.IsAvailable("node-1") {
		t.Error("breaker opened; success streak should have forgiven a failure")
	}
	m.RecordFailure("node-1")
	if m.IsAvailable("node-1") {
		t.Error("breaker should now be open")
	}
}

func TestResetClearsBreaker(t *testing.T) {
	now := time.Now()
	m := newTestManager(&now)

	for i := 0; i < FailureThreshold; i++ {
		m.RecordFailure("node-1")
	}
	m.Reset("node-1")
	if !m.IsAvailable("node-1") {
		t.Error("reset breaker should be available")
	}
}

func TestStats(t *testing.T) {
	now := time.Now()
	m := newTestManager(&now)

	m.RecordSuccess("healthy")
	for i := 0; i < FailureThreshold; i++ {
		m.RecordFailure("broken")
	}

	stats := m.Stats()
	if stats[Closed] != 1 || stats[Open] != 1 {
		t.Errorf("stats = %v, want 1 closed, 1 open", stats)
	}
}
