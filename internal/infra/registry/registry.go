// Package registry tracks the live worker pool: which nodes hold an open
// channel, their smoothed latency and load, and which of them are eligible
// for task dispatch. Persistent node facts live in the store; the registry
// is the in-memory runtime view.
package registry

import (
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/iris-network/iris/internal/domain"
	"github.com/iris-network/iris/internal/log"
	"github.com/iris-network/iris/internal/protocol"
)

// HeartbeatWindow is the liveness horizon: a node whose last heartbeat is
// older than this is offline regardless of its socket state.
const HeartbeatWindow = 90 * time.Second

// EMA smoothing for heartbeat latency, clamped to maxLatencyMS.
const (
	latencyAlpha = 0.3
	maxLatencyMS = 5000
)

// Sender delivers a frame to one worker. The gateway implements it per
// connection; sends are serialized there.
type Sender interface {
	Send(f *protocol.Frame) error
}

// ConnectedNode is the runtime state of one live worker.
type ConnectedNode struct {
	Node          domain.Node
	Sender        Sender
	CurrentLoad   int
	LatencyMS     float64
	LastHeartbeat time.Time
	ConnectedAt   time.Time
}

// Registry is the live worker pool. Safe for concurrent use.
type Registry struct {
	mu     sync.RWMutex
	nodes  map[string]*ConnectedNode
	now    func() time.Time
	logger zerolog.Logger
}

// New creates an empty registry.
func New() *Registry {
	return &Registry{
		nodes:  make(map[string]*ConnectedNode),
		now:    time.Now,
		logger: log.WithComponent("registry"),
	}
}

// Register admits a node into the live pool. Re-registration replaces the
// previous channel; registration counts as a heartbeat.
func (r *Registry) Register(n domain.Node, sender Sender) *ConnectedNode {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	cn := &ConnectedNode{
		Node:          n,
		Sender:        sender,
		LastHeartbeat: now,
		ConnectedAt:   now,
	}
	r.nodes[n.ID] = cn

	r.logger.Info().
		Str("node_id", n.ID).
		Str("tier", string(n.Tier)).
		Str("model", n.ModelName).
		Msg("node registered")
	return cn
}

// Deregister removes a node from the live pool and reports the session
// length and whether anything was removed. A non-nil sender must match the
// pool's current channel: when a worker re-registers, its stale socket
// closing afterwards must not evict the replacement. A nil sender removes
// unconditionally.
func (r *Registry) Deregister(nodeID string, sender Sender) (time.Duration, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	cn, ok := r.nodes[nodeID]
	if !ok {
		return 0, false
	}
	if sender != nil && cn.Sender != sender {
		r.logger.Debug().Str("node_id", nodeID).Msg("stale channel closed after re-registration")
		return 0, false
	}
	delete(r.nodes, nodeID)
	session := r.now().Sub(cn.ConnectedAt)
	r.logger.Info().
		Str("node_id", nodeID).
		Dur("session", session).
		Msg("node deregistered")
	return session, true
}

// Get returns the live node, if connected.
func (r *Registry) Get(nodeID string) (*ConnectedNode, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	cn, ok := r.nodes[nodeID]
	return cn, ok
}

// Heartbeat refreshes a node's liveness and smooths its latency with an
// exponential moving average. sentAt is the worker's send time in Unix
// seconds; clock skew can make the sample negative, so it is floored at 0.
func (r *Registry) Heartbeat(nodeID string, load int, tokensPerSecond, sentAt float64) (float64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	cn, ok := r.nodes[nodeID]
	if !ok {
		return 0, domain.ErrNodeNotFound
	}

	now := r.now()
	sample := (float64(now.UnixNano())/1e9 - sentAt) * 1000
	if sample < 0 {
		sample = 0
	}
	if sample > maxLatencyMS {
		sample = maxLatencyMS
	}
	if cn.LatencyMS == 0 {
		cn.LatencyMS = sample
	} else {
		cn.LatencyMS = latencyAlpha*sample + (1-latencyAlpha)*cn.LatencyMS
	}

	cn.CurrentLoad = load
	if tokensPerSecond > 0 {
		cn.Node.TokensPerSecond = tokensPerSecond
	}
	cn.LastHeartbeat = now
	return cn.LatencyMS, nil
}

// Online reports whether the node heartbeated within the liveness window.
func (r *Registry) Online(nodeID string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	cn, ok := r.nodes[nodeID]
	return ok && r.now().Sub(cn.LastHeartbeat) < HeartbeatWindow
}

// OnlineNodes returns a snapshot of all live nodes.
func (r *Registry) OnlineNodes() []ConnectedNode {
	r.mu.RLock()
	defer r.mu.RUnlock()

	now := r.now()
	var out []ConnectedNode
	for _, cn := range r.nodes {
		if now.Sub(cn.LastHeartbeat) < HeartbeatWindow {
			out = append(out, *cn)
		}
	}
	return out
}

// Counts returns (connected, online).
func (r *Registry) Counts() (int, int) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	now := r.now()
	online := 0
	for _, cn := range r.nodes {
		if now.Sub(cn.LastHeartbeat) < HeartbeatWindow {
			online++
		}
	}
	return len(r.nodes), online
}

// IncrementLoad bumps a node's in-flight task counter at dispatch.
func (r *Registry) IncrementLoad(nodeID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if cn, ok := r.nodes[nodeID]; ok {
		cn.CurrentLoad++
	}
}

// DecrementLoad releases one in-flight slot when a subtask settles.
func (r *Registry) DecrementLoad(nodeID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if cn, ok := r.nodes[nodeID]; ok && cn.CurrentLoad > 0 {
		cn.CurrentLoad--
	}
}

// Send delivers a frame to a connected node.
func (r *Registry) Send(nodeID string, f *protocol.Frame) error {
	r.mu.RLock()
	cn, ok := r.nodes[nodeID]
	r.mu.RUnlock()
	if !ok {
		return domain.ErrNodeNotFound
	}
	if err := cn.Sender.Send(f); err != nil {
		return domain.ErrSendFailed
	}
	return nil
}

// Broadcast sends a frame to every connected node, best effort.
func (r *Registry) Broadcast(f *protocol.Frame) {
	r.mu.RLock()
	senders := make(map[string]Sender, len(r.nodes))
	for id, cn := range r.nodes {
		senders[id] = cn.Sender
	}
	r.mu.RUnlock()

	for id, s := range senders {
		if err := s.Send(f); err != nil {
			r.logger.Debug().Str("node_id", id).Err(err).Msg("broadcast send failed")
		}
	}
}
