// Package stream fans worker response chunks in per task and replays them
// to at most one client subscriber. Sessions are bounded and swept on a TTL
// so abandoned streams cannot pin memory.
package stream

import (
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/iris-network/iris/internal/domain"
	"github.com/iris-network/iris/internal/log"
)

// EventType discriminates stream events.
type EventType string

const (
	EventChunk EventType = "chunk"
	EventDone  EventType = "done"
	EventError EventType = "error"
)

// Event is one item on a task's stream: an incremental chunk, or a terminal
// done/error sentinel carrying the final payload.
type Event struct {
	Type      EventType `json:"type"`
	SubtaskID string    `json:"subtask_id,omitempty"`
	Data      string    `json:"data"`
	Index     int       `json:"index,omitempty"`
}

const (
	// queueSize bounds a session. A slow or absent subscriber drops chunks
	// rather than blocking worker message handling.
	queueSize = 256

	// sessionTTL since creation before the sweeper reclaims a session.
	// Age-based, so a slow trickle of chunks cannot pin a session forever.
	sessionTTL = 10 * time.Minute
	// SweepInterval between sweeper runs.
	SweepInterval = 5 * time.Minute
)

type session struct {
	ch         chan Event
	subscribed bool
	done       bool
	createdAt  time.Time
}

// Hub manages stream sessions keyed by task ID. Safe for concurrent use.
type Hub struct {
	mu       sync.Mutex
	sessions map[string]*session
	now      func() time.Time
	logger   zerolog.Logger
}

// NewHub creates an empty hub.
func NewHub() *Hub {
	return &Hub{
		sessions: make(map[string]*session),
		now:      time.Now,
		logger:   log.WithComponent("stream"),
	}
}

// Create opens a session for the task. Idempotent: an existing session is
// left untouched.
func (h *Hub) Create(taskID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.sessions[taskID]; ok {
		return
	}
	h.sessions[taskID] = &session{
		ch:        make(chan Event, queueSize),
		createdAt: h.now(),
	}
}

// Push appends a chunk to the task's stream. Unknown sessions and sessions
// already completed ignore the chunk; a full queue drops it with a warning.
func (h *Hub) Push(taskID string, ev Event) {
	h.mu.Lock()
	defer h.mu.Unlock()

	s, ok := h.sessions[taskID]
	if !ok || s.done {
		return
	}

	select {
	case s.ch <- ev:
	default:
		h.logger.Warn().
			Str("task_id", taskID).
			Int("index", ev.Index).
			Msg("stream queue full, chunk dropped")
	}
}

// Complete terminates the task's stream with a done or error sentinel. The
// sentinel is delivered exactly once; later calls are no-ops. The sentinel
// always lands: if the queue is full the oldest chunk is evicted for it.
func (h *Hub) Complete(taskID string, ev Event) {
	h.mu.Lock()
	defer h.mu.Unlock()

	s, ok := h.sessions[taskID]
	if !ok || s.done {
		return
	}
	s.done = true

	for {
		select {
		case s.ch <- ev:
			close(s.ch)
			return
		default:
			select {
			case <-s.ch:
			default:
			}
		}
	}
}

// Subscribe attaches the single consumer to a task's stream. The returned
// channel closes after the terminal sentinel.
func (h *Hub) Subscribe(taskID string) (<-chan Event, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	s, ok := h.sessions[taskID]
	if !ok {
		return nil, domain.ErrStreamNotFound
	}
	if s.subscribed {
		return nil, domain.ErrStreamSubscribed
	}
	s.subscribed = true
	return s.ch, nil
}

// Release drops a completed session once its subscriber is finished.
func (h *Hub) Release(taskID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if s, ok := h.sessions[taskID]; ok && s.done {
		delete(h.sessions, taskID)
	}
}

// Sweep reclaims sessions older than the TTL. Returns how many were
// removed.
func (h *Hub) Sweep() int {
	h.mu.Lock()
	defer h.mu.Unlock()

	now := h.now()
	removed := 0
	for id, s := range h.sessions {
		if now.Sub(s.createdAt) < sessionTTL {
			continue
		}
		if !s.done {
			close(s.ch)
		}
		delete(h.sessions, id)
		removed++
	}
	if removed > 0 {
		h.logger.Info().Int("sessions", removed).Msg("swept idle stream sessions")
	}
	return removed
}

// Len reports the number of live sessions.
func (h *Hub) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.sessions)
}
