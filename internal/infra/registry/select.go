package registry

import (
	"math/rand"
	"sync"

	"github.com/iris-network/iris/internal/domain"
)

// ─── Worker Selection ───────────────────────────────────────────────────────
// Shortest-expected-delay scoring with power-of-two-choices sampling: with a
// large pool, two random candidates are scored and the better one wins,
// which spreads load without a global scan on every dispatch.

// Score weights. The random jitter keeps equally-scored workers from
// starving each other.
const (
	weightDelay      = 0.40
	weightReputation = 0.30
	weightTierMatch  = 0.20
	weightJitter     = 0.10
)

// tierMatch rates how well a tier suits a difficulty class. Premium nodes
// are deliberately discounted for simple prompts so they stay free for
// advanced work.
var tierMatch = map[domain.Tier]map[domain.Difficulty]float64{
	domain.TierBasic:    {domain.Simple: 1.0, domain.Complex: 0.6, domain.Advanced: 0.2},
	domain.TierStandard: {domain.Simple: 0.8, domain.Complex: 1.0, domain.Advanced: 0.7},
	domain.TierPremium:  {domain.Simple: 0.5, domain.Complex: 0.9, domain.Advanced: 1.0},
}

// Availability gates candidates, typically the circuit breaker manager.
type Availability interface {
	IsAvailable(nodeID string) bool
}

// Selector picks workers from the live pool.
type Selector struct {
	registry *Registry
	avail    Availability

	mu  sync.Mutex
	rng *rand.Rand
}

// NewSelector creates a selector over the given pool. avail may be nil, in
// which case every online node is a candidate.
func NewSelector(r *Registry, avail Availability, seed int64) *Selector {
	return &Selector{
		registry: r,
		avail:    avail,
		rng:      rand.New(rand.NewSource(seed)),
	}
}

// Select picks one worker for a subtask of the given difficulty. Nodes in
// exclude are skipped, as are breaker-open and offline nodes. When
// requireVision is set only vision-capable workers qualify.
func (s *Selector) Select(difficulty domain.Difficulty, exclude map[string]bool, requireVision bool) (*ConnectedNode, error) {
	candidates := s.candidates(exclude, requireVision)
	if len(candidates) == 0 {
		return nil, domain.ErrNoCapableWorker
	}

	maxRep := 1.0
	for _, cn := range candidates {
		if cn.Node.Reputation > maxRep {
			maxRep = cn.Node.Reputation
		}
	}

	if len(candidates) <= 2 {
		best := candidates[0]
		for _, cn := range candidates[1:] {
			if s.score(cn, difficulty, maxRep) > s.score(best, difficulty, maxRep) {
				best = cn
			}
		}
		return best, nil
	}

	s.mu.Lock()
	i := s.rng.Intn(len(candidates))
	j := s.rng.Intn(len(candidates) - 1)
	s.mu.Unlock()
	if j >= i {
		j++
	}

	a, b := candidates[i], candidates[j]
	if s.score(b, difficulty, maxRep) > s.score(a, difficulty, maxRep) {
		return b, nil
	}
	return a, nil
}

// classifyLoadLimit keeps classification offload away from busy workers.
const classifyLoadLimit = 3

// FastestAvailable returns the fastest lightly-loaded Basic-tier worker,
// used for classification offload. Basic nodes answer the tiny classify
// prompt without stealing capacity from real work; load breaks throughput
// ties.
func (s *Selector) FastestAvailable() (*ConnectedNode, error) {
	var best *ConnectedNode
	for _, cn := range s.candidates(nil, false) {
		if cn.Node.Tier != domain.TierBasic || cn.CurrentLoad >= classifyLoadLimit {
			continue
		}
		switch {
		case best == nil:
			best = cn
		case cn.Node.TokensPerSecond > best.Node.TokensPerSecond:
			best = cn
		case cn.Node.TokensPerSecond == best.Node.TokensPerSecond && cn.CurrentLoad < best.CurrentLoad:
			best = cn
		}
	}
	if best == nil {
		return nil, domain.ErrNoCapableWorker
	}
	return best, nil
}

func (s *Selector) candidates(exclude map[string]bool, requireVision bool) []*ConnectedNode {
	s.registry.mu.RLock()
	defer s.registry.mu.RUnlock()

	now := s.registry.now()
	var out []*ConnectedNode
	for id, cn := range s.registry.nodes {
		if now.Sub(cn.LastHeartbeat) >= HeartbeatWindow {
			continue
		}
		if exclude[id] {
			continue
		}
		if requireVision && !cn.Node.SupportsVision {
			continue
		}
		if s.avail != nil && !s.avail.IsAvailable(id) {
			continue
		}
		out = append(out, cn)
	}
	return out
}

// score rates one candidate. Higher is better.
func (s *Selector) score(cn *ConnectedNode, difficulty domain.Difficulty, maxRep float64) float64 {
	tps := cn.Node.TokensPerSecond
	if tps < 1 {
		tps = 1
	}
	delay := 1.0 / (1.0 + float64(cn.CurrentLoad)/tps)
	rep := cn.Node.Reputation / maxRep
	match := tierMatch[cn.Node.Tier][difficulty]

	s.mu.Lock()
	jitter := s.rng.Float64()
	s.mu.Unlock()

	return weightDelay*delay + weightReputation*rep + weightTierMatch*match + weightJitter*jitter
}
