package registry

import (
	"errors"
	"testing"
	"time"

	"github.com/iris-network/iris/internal/domain"
	"github.com/iris-network/iris/internal/protocol"
)

// ═══ Registry Tests ═════════════════════════════════════════════════════════

type fakeSender struct {
	frames []*protocol.Frame
	err    error
}

func (f *fakeSender) Send(fr *protocol.Frame) error {
	if f.err != nil {
		return f.err
	}
	f.frames = append(f.frames, fr)
	return nil
}

func newTestRegistry(now *time.Time) *Registry {
	r := New()
	r.now = func() time.Time { return *now }
	return r
}

func liveNode(id string, tier domain.Tier) domain.Node {
	return domain.Node{
		ID:              id,
		Tier:            tier,
		ModelName:       "llama-3-8b",
		TokensPerSecond: 20,
		Reputation:      domain.InitialReputation,
	}
}

func TestRegisterAndLiveness(t *testing.T) {
	now := time.Now()
	r := newTestRegistry(&now)

	r.Register(liveNode("node-1", domain.TierStandard), &fakeSender{})
	if !r.Online("node-1") {
		t.Error("freshly registered node should be online")
	}

	now = now.Add(HeartbeatWindow - time.Second)
	if !r.Online("node-1") {
		t.Error("node inside the heartbeat window should be online")
	}

	now = now.Add(2 * time.Second)
	if r.Online("node-1") {
		t.Error("node past the heartbeat window should be offline")
	}

	// A heartbeat brings it back.
	if _, err := r.Heartbeat("node-1", 0, 0, float64(now.UnixNano())/1e9); err != nil {
		t.Fatalf("Heartbeat: %v", err)
	}
	if !r.Online("node-1") {
		t.Error("node should be online after heartbeat")
	}
}

func TestHeartbeatSmoothsLatency(t *testing.T) {
	now := time.Unix(1700000000, 0)
	r := newTestRegistry(&now)
	r.Register(liveNode("node-1", domain.TierBasic), &fakeSender{})

	// First sample seeds the average: sent 100ms ago.
	sentAt := float64(now.UnixNano())/1e9 - 0.1
	lat, err := r.Heartbeat("node-1", 1, 0, sentAt)
	if err != nil {
		t.Fatalf("Heartbeat: %v", err)
	}
	if lat < 99 || lat > 101 {
		t.Errorf("first latency = %v, want ~100", lat)
	}

	// Second sample of 300ms: 0.3*300 + 0.7*100 = 160.
	sentAt = float64(now.UnixNano())/1e9 - 0.3
	lat, err = r.Heartbeat("node-1", 1, 0, sentAt)
	if err != nil {
		t.Fatalf("Heartbeat: %v", err)
	}
	if lat < 159 || lat > 161 {
		t.Errorf("smoothed latency = %v, want ~160", lat)
	}
}

func TestHeartbeatClampsSkewedClocks(t *testing.T) {
	now := time.Unix(1700000000, 0)
	r := newTestRegistry(&now)
	r.Register(liveNode("node-1", domain.TierBasic), &fakeSender{})

	// Worker clock ahead of ours: negative sample floors at 0.
	lat, err := r.Heartbeat("node-1", 0, 0, float64(now.UnixNano())/1e9+10)
	if err != nil {
		t.Fatalf("Heartbeat: %v", err)
	}
	if lat != 0 {
		t.Errorf("latency = %v, want 0 for future timestamp", lat)
	}
}

func TestHeartbeatUnknownNode(t *testing.T) {
	now := time.Now()
	r := newTestRegistry(&now)
	if _, err := r.Heartbeat("ghost", 0, 0, 0); !errors.Is(err, domain.ErrNodeNotFound) {
		t.Errorf("got %v, want ErrNodeNotFound", err)
	}
}

func TestLoadCounters(t *testing.T) {
	now := time.Now()
	r := newTestRegistry(&now)
	r.Register(liveNode("node-1", domain.TierBasic), &fakeSender{})

	r.IncrementLoad("node-1")
	r.IncrementLoad("node-1")
	r.DecrementLoad("node-1")
	cn, _ := r.Get("node-1")
	if cn.CurrentLoad != 1 {
		t.Errorf("load = %d, want 1", cn.CurrentLoad)
	}

	// Never below zero.
	r.DecrementLoad("node-1")
	r.DecrementLoad("node-1")
	cn, _ = r.Get("node-1")
	if cn.CurrentLoad != 0 {
		t.Errorf("load = %d, want 0", cn.CurrentLoad)
	}
}

func TestSendToNode(t *testing.T) {
	now := time.Now()
	r := newTestRegistry(&now)
	sender := &fakeSender{}
	r.Register(liveNode("node-1", domain.TierBasic), sender)

	f, _ := protocol.NewFrame(protocol.MsgHeartbeatAck, protocol.HeartbeatAckPayload{NodeID: "node-1"})
	if err := r.Send("node-1", f); err != nil {
		t.Fatalf("Send: %v", err)
	}
	if len(sender.frames) != 1 {
		t.Errorf("frames sent = %d, want 1", len(sender.frames))
	}

	if err := r.Send("ghost", f); !errors.Is(err, domain.ErrNodeNotFound) {
		t.Errorf("got %v, want ErrNodeNotFound", err)
	}
}

func TestDeregisterReturnsSession(t *testing.T) {
	now := time.Now()
	r := newTestRegistry(&now)
	r.Register(liveNode("node-1", domain.TierBasic), &fakeSender{})

	now = now.Add(2 * time.Hour)
	session, removed := r.Deregister("node-1", nil)
	if !removed || session != 2*time.Hour {
		t.Errorf("session = %v removed = %t, want 2h true", session, removed)
	}
	if _, ok := r.Get("node-1"); ok {
		t.Error("node still present after deregister")
	}
	if _, removed := r.Deregister("node-1", nil); removed {
		t.Error("second deregister should be a no-op")
	}
}

func TestDeregisterIgnoresStaleChannel(t *testing.T) {
	now := time.Now()
	r := newTestRegistry(&now)
	stale := &fakeSender{}
	r.Register(liveNode("node-1", domain.TierBasic), stale)

	// The worker reconnects; the pool now holds the replacement channel.
	replacement := &fakeSender{}
	r.Register(liveNode("node-1", domain.TierBasic), replacement)

	if _, removed := r.Deregister("node-1", stale); removed {
		t.Error("stale channel close evicted the replacement registration")
	}
	if _, ok := r.Get("node-1"); !ok {
		t.Fatal("reconnected node missing from the pool")
	}

	if _, removed := r.Deregister("node-1", replacement); !removed {
		t.Error("current channel should deregister its own registration")
	}
}

// ═══ Tier Scoring Tests ═════════════════════════════════════════════════════

func TestTierFor(t *testing.T) {
	cases := []struct {
		name   string
		vram   float64
		params float64
		tps    float64
		score  int
		tier   domain.Tier
	}{
		{"workstation", 24, 70, 50, 100, domain.TierPremium},
		{"mid gaming rig", 8, 7, 10, 35, domain.TierStandard},
		{"laptop", 4, 3, 5, 5, domain.TierBasic},
		{"big vram small model", 24, 3, 10, 40, domain.TierStandard},
		{"huge model slow", 16, 100, 5, 85, domain.TierPremium},
		{"premium boundary", 12, 30, 10, 65, domain.TierPremium},
		{"nothing declared", 0, 0, 0, 0, domain.TierBasic},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := HardwareScore(tc.vram, tc.params, tc.tps); got != tc.score {
				t.Errorf("HardwareScore = %d, want %d", got, tc.score)
			}
			if got := TierFor(tc.vram, tc.params, tc.tps); got != tc.tier {
				t.Errorf("TierFor = %s, want %s", got, tc.tier)
			}
		})
	}
}
