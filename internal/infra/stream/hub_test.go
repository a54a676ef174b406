package stream

import (
	"errors"
	"testing"
	"time"

	"github.com/iris-network/iris/internal/domain"
)

// ═══ Stream Hub Tests ═══════════════════════════════════════════════════════

func TestStreamDeliversChunksThenSentinel(t *testing.T) {
	h := NewHub()
	h.Create("task-1")

	ch, err := h.Subscribe("task-1")
	if err != nil {
		t.Fatalf("Subscribe: %v", err)
	}

	h.Push("task-1", Event{Type: EventChunk, Data: "Hello", Index: 0})
	h.Push("task-1", Event{Type: EventChunk, Data: " world", Index: 1})
	h.Complete("task-1", Event{Type: EventDone, Data: "Hello world"})

	var got []Event
	for ev := range ch {
		got = append(got, ev)
	}
	if len(got) != 3 {
		t.Fatalf("events = %d, want 3", len(got))
	}
	if got[0].Data != "Hello" || got[1].Data != " world" {
		t.Errorf("chunks = %q, %q", got[0].Data, got[1].Data)
	}
	if got[2].Type != EventDone || got[2].Data != "Hello world" {
		t.Errorf("sentinel = %+v, want done with final text", got[2])
	}
}

func TestStreamSingleSubscriber(t *testing.T) {
	h := NewHub()
	h.Create("task-1")

	if _, err := h.Subscribe("task-1"); err != nil {
		t.Fatalf("first Subscribe: %v", err)
	}
	if _, err := h.Subscribe("task-1"); !errors.Is(err, domain.ErrStreamSubscribed) {
		t.Errorf("second Subscribe: got %v, want ErrStreamSubscribed", err)
	}
	if _, err := h.Subscribe("missing"); !errors.Is(err, domain.ErrStreamNotFound) {
		t.Errorf("unknown task: got %v, want ErrStreamNotFound", err)
	}
}

func TestStreamCreateIsIdempotent(t *testing.T) {
	h := NewHub()
	h.Create("task-1")
	h.Push("task-1", Event{Type: EventChunk, Data: "kept"})
	h.Create("task-1")

	ch, err := h.Subscribe("task-1")
	if err != nil {
		t.Fatalf("Subscribe: %v", err)
	}
	select {
	case ev := <-ch:
		if ev.Data != "kept" {
			t.Errorf("data = %q, want kept", ev.Data)
		}
	default:
		t.Error("chunk lost after duplicate Create")
	}
}

func TestStreamSentinelDeliveredOnce(t *testing.T) {
	h := NewHub()
	h.Create("task-1")
	ch, _ := h.Subscribe("task-1")

	h.Complete("task-1", Event{Type: EventError, Data: "worker failed"})
	h.Complete("task-1", Event{Type: EventDone, Data: "late"})
	h.Push("task-1", Event{Type: EventChunk, Data: "after done"})

	var got []Event
	for ev := range ch {
		got = append(got, ev)
	}
	if len(got) != 1 {
		t.Fatalf("events = %d, want exactly 1", len(got))
	}
	if got[0].Type != EventError {
		t.Errorf("sentinel = %s, want the first terminal event", got[0].Type)
	}
}

func TestStreamFullQueueDropsChunksNotSentinel(t *testing.T) {
	h := NewHub()
	h.Create("task-1")

	for i := 0; i < queueSize+50; i++ {
		h.Push("task-1", Event{Type: EventChunk, Data: "x", Index: i})
	}
	h.Complete("task-1", Event{Type: EventDone, Data: "final"})

	ch, err := h.Subscribe("task-1")
	if err != nil {
		t.Fatalf("Subscribe: %v", err)
	}

	var last Event
	count := 0
	for ev := range ch {
		last = ev
		count++
	}
	if count > queueSize {
		t.Errorf("delivered %d events, queue bound is %d", count, queueSize)
	}
	if last.Type != EventDone || last.Data != "final" {
		t.Errorf("last event = %+v, want the done sentinel", last)
	}
}

func TestSweepReclaimsIdleSessions(t *testing.T) {
	h := NewHub()
	now := time.Now()
	h.now = func() time.Time { return now }

	h.Create("stale")
	now = now.Add(sessionTTL + time.Minute)
	h.Create("fresh")

	if removed := h.Sweep(); removed != 1 {
		t.Errorf("removed = %d, want 1", removed)
	}
	if h.Len() != 1 {
		t.Errorf("sessions = %d, want 1", h.Len())
	}
	if _, err := h.Subscribe("stale"); !errors.Is(err, domain.ErrStreamNotFound) {
		t.Errorf("stale session still subscribable: %v", err)
	}
}

func TestSweepReclaimsTricklingSessionOnAge(t *testing.T) {
	h := NewHub()
	now := time.Now()
	h.now = func() time.Time { return now }

	h.Create("trickle")
	// Chunks keep arriving, but a session lives on creation age, not
	// activity: a slow drip cannot pin it past the TTL.
	for i := 0; i < 4; i++ {
		now = now.Add(3 * time.Minute)
		h.Push("trickle", Event{Type: EventChunk, Data: "drip", Index: i})
	}

	if removed := h.Sweep(); removed != 1 {
		t.Errorf("removed = %d, want 1", removed)
	}
	if h.Len() != 0 {
		t.Errorf("sessions = %d, want 0", h.Len())
	}
}

func TestReleaseDropsOnlyCompletedSessions(t *testing.T) {
	h := NewHub()
	h.Create("running")
	h.Create("finished")
	h.Complete("finished", Event{Type: EventDone})

	h.Release("running")
	h.Release("finished")

	if h.Len() != 1 {
		t.Errorf("sessions = %d, want 1 (running kept)", h.Len())
	}
}
