package orchestrate

import (
	"time"

	"github.com/iris-network/iris/internal/domain"
	"github.com/iris-network/iris/internal/infra/metrics"
	"github.com/iris-network/iris/internal/infra/stream"
	"github.com/iris-network/iris/internal/protocol"
)

// ─── Worker Message Handlers ────────────────────────────────────────────────
// The gateway routes task frames here. A frame only counts if it comes from
// the worker currently holding the subtask; anything else is stale (a late
// answer after reassignment) or forged, and is dropped with a warning.

// HandleTaskResult processes a completed subtask returned by a worker.
func (o *Orchestrator) HandleTaskResult(nodeID string, p protocol.TaskResultPayload) {
	holder, ok := o.assignment(p.SubtaskID)
	if !ok || holder != nodeID {
		o.logger.Warn().
			Str("subtask_id", p.SubtaskID).
			Str("node_id", nodeID).
			Msg("result from a worker not holding the subtask, dropped")
		return
	}

	cn, ok := o.registry.Get(nodeID)
	if !ok {
		o.logger.Warn().Str("node_id", nodeID).Msg("result from unknown node")
		return
	}

	plaintext, err := o.keypair.Open(cn.Node.PublicKey, p.EncryptedResponse)
	if err != nil {
		// An undecryptable response usually means a broken or hostile
		// worker. The waiter keeps waiting; the timeout path reassigns.
		o.logger.Warn().Err(err).
			Str("subtask_id", p.SubtaskID).
			Str("node_id", nodeID).
			Msg("response failed authentication")
		o.breakers.RecordFailure(nodeID)
		o.rep.TaskInvalid(nodeID)
		return
	}

	if err := o.store.CompleteSubtask(p.SubtaskID, string(plaintext), p.ExecutionTimeMS); err != nil {
		o.logger.Error().Err(err).Str("subtask_id", p.SubtaskID).Msg("persist result")
		return
	}

	// The deadline can fire while the result is in flight. Claiming the
	// assignment decides the race: if the timeout path won, it has already
	// released the load and booked the miss, and this result is dropped.
	if !o.claimAssignment(p.SubtaskID, nodeID) {
		o.logger.Warn().
			Str("subtask_id", p.SubtaskID).
			Str("node_id", nodeID).
			Msg("result arrived after the deadline settled the subtask, dropped")
		return
	}

	if err := o.store.IncrementNodeTasks(nodeID); err != nil {
		o.logger.Error().Err(err).Str("node_id", nodeID).Msg("bump task counter")
	}

	o.breakers.RecordSuccess(nodeID)
	o.rep.TaskCompleted(nodeID, time.Duration(p.ExecutionTimeMS)*time.Millisecond)
	o.registry.DecrementLoad(nodeID)

	o.logger.Info().
		Str("subtask_id", p.SubtaskID).
		Str("node_id", nodeID).
		Int64("execution_ms", p.ExecutionTimeMS).
		Msg("subtask completed")
	metrics.SubtasksSettled.WithLabelValues(string(domain.SubtaskCompleted)).Inc()
	metrics.SubtaskExecution.Observe(float64(p.ExecutionTimeMS) / 1000)

	o.signal(p.SubtaskID, settle{completed: true})
}

// HandleTaskError processes a worker-reported execution failure. The
// subtask settles as Failed; errors are not retried on another worker.
func (o *Orchestrator) HandleTaskError(nodeID string, p protocol.TaskErrorPayload) {
	// Settling is unconditional once the sender holds the subtask, so the
	// claim doubles as the holder check and keeps the timeout path from
	// releasing the same load a second time.
	if !o.claimAssignment(p.SubtaskID, nodeID) {
		o.logger.Warn().
			Str("subtask_id", p.SubtaskID).
			Str("node_id", nodeID).
			Msg("error from a worker not holding the subtask, dropped")
		return
	}

	o.logger.Warn().
		Str("subtask_id", p.SubtaskID).
		Str("node_id", nodeID).
		Str("error", p.Error).
		Msg("worker reported subtask failure")

	o.failSubtask(p.SubtaskID, domain.SubtaskFailed)
	o.breakers.RecordFailure(nodeID)
	o.rep.TaskFailed(nodeID)
	o.registry.DecrementLoad(nodeID)

	o.signal(p.SubtaskID, settle{completed: false})
}

// HandleTaskStream decrypts an incremental chunk and forwards it to the
// task's stream session. Chunks for tasks without a session are dropped by
// the hub.
func (o *Orchestrator) HandleTaskStream(nodeID string, p protocol.TaskStreamPayload) {
	holder, ok := o.assignment(p.SubtaskID)
	if !ok || holder != nodeID {
		return
	}

	cn, ok := o.registry.Get(nodeID)
	if !ok {
		return
	}
	chunk, err := o.keypair.Open(cn.Node.PublicKey, p.EncryptedChunk)
	if err != nil {
		o.logger.Warn().Err(err).
			Str("subtask_id", p.SubtaskID).
			Str("node_id", nodeID).
			Msg("stream chunk failed authentication, dropped")
		o.breakers.RecordFailure(nodeID)
		o.rep.TaskInvalid(nodeID)
		return
	}

	o.hub.Push(p.TaskID, stream.Event{
		Type:      stream.EventChunk,
		SubtaskID: p.SubtaskID,
		Data:      string(chunk),
		Index:     p.ChunkIndex,
	})
	metrics.StreamChunks.Inc()
}
