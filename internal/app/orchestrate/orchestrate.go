// Package orchestrate drives a task from submission to final response:
// classify, divide, assign to workers, await with timeouts and one
// reassignment, then aggregate. The orchestrator owns the in-flight
// coordination state; everything durable goes through the store.
package orchestrate

import (
	"context"
	"encoding/base64"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/iris-network/iris/internal/app/aggregate"
	"github.com/iris-network/iris/internal/app/divide"
	"github.com/iris-network/iris/internal/domain"
	"github.com/iris-network/iris/internal/infra/breaker"
	"github.com/iris-network/iris/internal/infra/metrics"
	"github.com/iris-network/iris/internal/infra/registry"
	"github.com/iris-network/iris/internal/infra/reputation"
	"github.com/iris-network/iris/internal/infra/stream"
	"github.com/iris-network/iris/internal/log"
	"github.com/iris-network/iris/internal/protocol"
	"github.com/iris-network/iris/internal/security"
)

// MaxRetries bounds assignment attempts per subtask.
const MaxRetries = 3

// minRetryTimeout floors the reduced deadline used for a reassignment.
const minRetryTimeout = 30 * time.Second

// DefaultTimeouts is the per-difficulty subtask deadline.
func DefaultTimeouts() map[domain.Difficulty]time.Duration {
	return map[domain.Difficulty]time.Duration{
		domain.Simple:   60 * time.Second,
		domain.Complex:  300 * time.Second,
		domain.Advanced: 600 * time.Second,
	}
}

// settle is the one-shot outcome a waiter receives for its subtask.
type settle struct {
	completed bool
}

// Orchestrator coordinates task execution across the worker pool.
// RetryBase and Timeouts are exported so deployments (and tests) can tune
// pacing; zero values fall back to defaults at construction.
type Orchestrator struct {
	RetryBase time.Duration
	Timeouts  map[domain.Difficulty]time.Duration

	store      domain.Store
	registry   *registry.Registry
	selector   *registry.Selector
	breakers   *breaker.Manager
	rep        *reputation.Engine
	hub        *stream.Hub
	classifier domain.Classifier
	summarizer domain.PDFSummarizer
	keypair    *security.Keypair

	mu       sync.Mutex
	waiters  map[string]chan settle // subtask_id → one-shot signal
	assigned map[string]string      // subtask_id → node_id currently assigned

	logger zerolog.Logger
}

// New wires an orchestrator. summarizer may be nil; PDF attachments then
// pass through unprocessed.
func New(
	store domain.Store,
	reg *registry.Registry,
	sel *registry.Selector,
	breakers *breaker.Manager,
	rep *reputation.Engine,
	hub *stream.Hub,
	classifier domain.Classifier,
	summarizer domain.PDFSummarizer,
	keypair *security.Keypair,
) *Orchestrator {
	return &Orchestrator{
		RetryBase:  2 * time.Second,
		Timeouts:   DefaultTimeouts(),
		store:      store,
		registry:   reg,
		selector:   sel,
		breakers:   breakers,
		rep:        rep,
		hub:        hub,
		classifier: classifier,
		summarizer: summarizer,
		keypair:    keypair,
		waiters:    make(map[string]chan settle),
		assigned:   make(map[string]string),
		logger:     log.WithComponent("orchestrator"),
	}
}

// SetClassifier swaps the difficulty classifier. The worker-backed
// classifier is wired after construction because it reaches workers through
// the gateway, which itself depends on the orchestrator.
func (o *Orchestrator) SetClassifier(c domain.Classifier) {
	o.classifier = c
}

// Request is a client submission at the system boundary.
type Request struct {
	PrincipalID string
	Prompt      string
	Mode        domain.TaskMode
	Difficulty  domain.Difficulty // empty for auto-classification
	Files       []domain.TaskFile
	Streaming   bool
}

// CreateTask persists a new task and starts processing it in the
// background. Tasks with image attachments fail immediately when no
// vision-capable worker is online; they are never routed to blind workers.
func (o *Orchestrator) CreateTask(ctx context.Context, req Request) (*domain.Task, error) {
	if strings.TrimSpace(req.Prompt) == "" {
		return nil, domain.ErrInvalidFormat
	}
	mode := req.Mode
	if mode == "" {
		mode = domain.ModeSubtasks
	}

	var images []domain.TaskFile
	for _, f := range req.Files {
		if f.Kind == domain.FileImage {
			images = append(images, f)
		}
	}

	// PDFs are folded into the prompt before division. The summarizer
	// degrades rather than fails, so an error here keeps the raw prompt.
	prompt := req.Prompt
	if o.summarizer != nil && len(req.Files) > 0 {
		if enriched, err := o.summarizer.Summarize(ctx, prompt, req.Files); err == nil {
			prompt = enriched
		}
	}

	difficulty := req.Difficulty
	pinned := difficulty != ""
	if len(req.Files) > 0 {
		difficulty = domain.Advanced
		pinned = true
	}
	if !pinned {
		difficulty = o.classifier.Classify(ctx, prompt, 0)
	}

	task := domain.Task{
		ID:             uuid.NewString(),
		PrincipalID:    req.PrincipalID,
		Mode:           mode,
		Difficulty:     difficulty,
		OriginalPrompt: req.Prompt,
		Status:         domain.TaskPending,
		HasFiles:       len(req.Files) > 0,
		CreatedAt:      time.Now().UTC(),
	}
	if err := o.store.CreateTask(task); err != nil {
		return nil, err
	}

	if len(images) > 0 && !o.visionAvailable() {
		task.Status = domain.TaskFailed
		task.FinalResponse = "No vision-capable workers are currently online. Remove the image attachments or try again later."
		if err := o.store.UpdateTaskStatus(task.ID, task.Status, task.FinalResponse); err != nil {
			return nil, err
		}
		// Stream subscribers still get a session, settled immediately with
		// an error sentinel naming the missing capability.
		if req.Streaming {
			o.hub.Create(task.ID)
			o.hub.Complete(task.ID, stream.Event{Type: stream.EventError, Data: task.FinalResponse})
			metrics.StreamSessions.Set(float64(o.hub.Len()))
		}
		o.logger.Warn().Str("task_id", task.ID).Msg("image task rejected, no vision worker online")
		metrics.TasksFinished.WithLabelValues(string(domain.TaskFailed)).Inc()
		return &task, nil
	}

	if req.Streaming {
		o.hub.Create(task.ID)
		metrics.StreamSessions.Set(float64(o.hub.Len()))
	}

	o.logger.Info().
		Str("task_id", task.ID).
		Str("principal_id", req.PrincipalID).
		Str("mode", string(mode)).
		Str("difficulty", string(difficulty)).
		Bool("has_files", task.HasFiles).
		Msg("task created")
	metrics.TasksSubmitted.WithLabelValues(string(mode), string(difficulty)).Inc()
	metrics.TasksActive.Inc()

	go o.process(task, prompt, images, pinned, req.Streaming)
	return &task, nil
}

// process runs one task to a terminal state. It never returns an error;
// failures settle into the task status.
func (o *Orchestrator) process(task domain.Task, prompt string, images []domain.TaskFile, pinned, streaming bool) {
	defer metrics.TasksActive.Dec()
	ctx := context.Background()

	if err := o.store.UpdateTaskStatus(task.ID, domain.TaskProcessing, ""); err != nil {
		o.logger.Error().Err(err).Str("task_id", task.ID).Msg("mark processing")
	}

	var prompts []string
	switch task.Mode {
	case domain.ModeConsensus:
		prompts = divide.Consensus(prompt)
	case domain.ModeContext:
		prompts = divide.Context(prompt)
	default:
		prompts = divide.Subtasks(prompt)
	}

	// A prompt that divides into many parts may deserve a higher class
	// than the raw text suggested. Pinned difficulty is never revisited.
	difficulty := task.Difficulty
	if !pinned {
		difficulty = o.classifier.Classify(ctx, prompt, len(prompts))
	}

	subtasks := make([]domain.Subtask, 0, len(prompts))
	for _, p := range prompts {
		st := domain.Subtask{
			ID:     uuid.NewString(),
			TaskID: task.ID,
			Prompt: p,
			Status: domain.SubtaskPending,
		}
		if err := o.store.CreateSubtask(st); err != nil {
			o.logger.Error().Err(err).Str("task_id", task.ID).Msg("persist subtask")
			continue
		}
		subtasks = append(subtasks, st)
	}

	o.logger.Info().
		Str("task_id", task.ID).
		Int("subtasks", len(subtasks)).
		Str("difficulty", string(difficulty)).
		Msg("subtasks created")

	files := assignedFiles(images)
	var wg sync.WaitGroup
	for _, st := range subtasks {
		wg.Add(1)
		go func(st domain.Subtask) {
			defer wg.Done()
			o.runSubtask(task.ID, st, difficulty, files, streaming)
		}(st)
	}
	wg.Wait()

	o.finalize(task, streaming)
}

// runSubtask dispatches one subtask, awaits its outcome, and handles the
// timeout path: one reassignment to a different worker on a reduced
// deadline, then a terminal Timeout.
func (o *Orchestrator) runSubtask(taskID string, st domain.Subtask, difficulty domain.Difficulty, files []protocol.AssignedFile, streaming bool) {
	timeout := o.timeoutFor(difficulty)

	ch := o.armWaiter(st.ID)
	nodeID, err := o.dispatch(taskID, st, difficulty, files, streaming, timeout, nil, MaxRetries)
	if err != nil {
		o.dropWaiter(st.ID)
		o.failSubtask(st.ID, domain.SubtaskFailed)
		return
	}

	if o.await(ch, timeout) {
		return // settled by a handler
	}

	// First deadline expired: penalize the holder and try one other worker.
	// Unless a handler settled the subtask at the last instant, in which
	// case there is nothing left to do.
	if !o.settleTimedOutWorker(st.ID, nodeID) {
		o.dropWaiter(st.ID)
		return
	}
	o.logger.Warn().
		Str("subtask_id", st.ID).
		Str("node_id", nodeID).
		Dur("timeout", timeout).
		Msg("subtask deadline expired, reassigning")

	retryTimeout := timeout / 2
	if retryTimeout < minRetryTimeout {
		retryTimeout = minRetryTimeout
	}

	ch = o.armWaiter(st.ID)
	nodeID, err = o.dispatch(taskID, st, difficulty, files, streaming, retryTimeout, map[string]bool{nodeID: true}, 1)
	if err != nil {
		o.dropWaiter(st.ID)
		o.failSubtask(st.ID, domain.SubtaskTimeout)
		return
	}
	if o.await(ch, retryTimeout) {
		return
	}

	if !o.settleTimedOutWorker(st.ID, nodeID) {
		o.dropWaiter(st.ID)
		return
	}
	o.failSubtask(st.ID, domain.SubtaskTimeout)
}

// dispatch selects a worker and sends the assignment, retrying with
// exponential backoff while the pool is empty. Vision work never waits:
// with no capable worker it fails at once.
func (o *Orchestrator) dispatch(
	taskID string,
	st domain.Subtask,
	difficulty domain.Difficulty,
	files []protocol.AssignedFile,
	streaming bool,
	timeout time.Duration,
	exclude map[string]bool,
	attempts int,
) (string, error) {
	if exclude == nil {
		exclude = make(map[string]bool)
	}
	requireVision := len(files) > 0

	for attempt := 0; attempt < attempts; attempt++ {
		cn, err := o.selector.Select(difficulty, exclude, requireVision)
		if err != nil {
			if requireVision {
				return "", err
			}
			time.Sleep(o.RetryBase << attempt)
			continue
		}
		nodeID := cn.Node.ID

		sealed, err := o.keypair.Seal(cn.Node.PublicKey, []byte(st.Prompt))
		if err != nil {
			o.logger.Error().Err(err).Str("node_id", nodeID).Msg("seal prompt")
			exclude[nodeID] = true
			continue
		}

		if err := o.store.AssignSubtask(st.ID, nodeID); err != nil {
			o.logger.Error().Err(err).Str("subtask_id", st.ID).Msg("persist assignment")
			return "", err
		}
		o.setAssignment(st.ID, nodeID)
		o.registry.IncrementLoad(nodeID)

		frame, err := protocol.NewFrame(protocol.MsgTaskAssign, protocol.TaskAssignPayload{
			SubtaskID:       st.ID,
			TaskID:          taskID,
			EncryptedPrompt: sealed,
			TimeoutSeconds:  int(timeout / time.Second),
			EnableStreaming: streaming,
			Files:           files,
		})
		if err != nil {
			o.registry.DecrementLoad(nodeID)
			o.clearAssignment(st.ID)
			return "", err
		}
		if err := o.registry.Send(nodeID, frame); err != nil {
			o.logger.Warn().Err(err).
				Str("subtask_id", st.ID).
				Str("node_id", nodeID).
				Msg("assignment send failed")
			o.breakers.RecordFailure(nodeID)
			o.registry.DecrementLoad(nodeID)
			o.clearAssignment(st.ID)
			exclude[nodeID] = true
			continue
		}

		o.logger.Debug().
			Str("subtask_id", st.ID).
			Str("node_id", nodeID).
			Int("attempt", attempt+1).
			Msg("subtask assigned")
		metrics.SubtasksDispatched.Inc()
		return nodeID, nil
	}
	return "", domain.ErrNoCapableWorker
}

// finalize settles the task from its subtask outcomes and closes the
// stream session if one exists.
func (o *Orchestrator) finalize(task domain.Task, streaming bool) {
	subtasks, err := o.store.ListSubtasksByTask(task.ID)
	if err != nil {
		o.logger.Error().Err(err).Str("task_id", task.ID).Msg("load subtasks for finalize")
		subtasks = nil
	}

	completed := 0
	for _, st := range subtasks {
		if st.Status == domain.SubtaskCompleted {
			completed++
		}
	}

	status := domain.TaskFailed
	switch {
	case completed == len(subtasks) && completed > 0:
		status = domain.TaskCompleted
	case completed > 0:
		status = domain.TaskPartial
	}

	final := aggregate.Aggregate(task.Mode, task.OriginalPrompt, subtasks)
	if err := o.store.UpdateTaskStatus(task.ID, status, final); err != nil {
		o.logger.Error().Err(err).Str("task_id", task.ID).Msg("persist final status")
	}

	if streaming {
		ev := stream.Event{Type: stream.EventDone, Data: final}
		if completed == 0 {
			ev.Type = stream.EventError
		}
		o.hub.Complete(task.ID, ev)
	}

	o.logger.Info().
		Str("task_id", task.ID).
		Str("status", string(status)).
		Int("completed", completed).
		Int("subtasks", len(subtasks)).
		Msg("task finalized")
	metrics.TasksFinished.WithLabelValues(string(status)).Inc()
	metrics.TaskDuration.WithLabelValues(string(task.Difficulty)).
		Observe(time.Since(task.CreatedAt).Seconds())
}

// ─── Helpers ────────────────────────────────────────────────────────────────

func (o *Orchestrator) timeoutFor(d domain.Difficulty) time.Duration {
	if t, ok := o.Timeouts[d]; ok {
		return t
	}
	return o.Timeouts[domain.Simple]
}

func (o *Orchestrator) visionAvailable() bool {
	for _, cn := range o.registry.OnlineNodes() {
		if cn.Node.SupportsVision {
			return true
		}
	}
	return false
}

// settleTimedOutWorker books the consequences of a missed deadline against
// the worker that held the assignment. A result can land on the wire at the
// same instant the deadline fires, so the assignment is claimed first: only
// the side that wins the claim settles the subtask. Returns false when a
// handler got there first, in which case no penalty is booked.
func (o *Orchestrator) settleTimedOutWorker(subtaskID, nodeID string) bool {
	if !o.claimAssignment(subtaskID, nodeID) {
		return false
	}
	o.breakers.RecordFailure(nodeID)
	o.rep.TaskTimeout(nodeID)
	o.registry.DecrementLoad(nodeID)
	return true
}

func (o *Orchestrator) failSubtask(subtaskID string, status domain.SubtaskStatus) {
	if err := o.store.FailSubtask(subtaskID, status); err != nil {
		o.logger.Error().Err(err).Str("subtask_id", subtaskID).Msg("persist subtask failure")
	}
	metrics.SubtasksSettled.WithLabelValues(string(status)).Inc()
}

// await blocks until the subtask settles or the deadline passes. Returns
// true when a handler settled it.
func (o *Orchestrator) await(ch <-chan settle, timeout time.Duration) bool {
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case <-ch:
		return true
	case <-timer.C:
		return false
	}
}

func (o *Orchestrator) armWaiter(subtaskID string) <-chan settle {
	o.mu.Lock()
	defer o.mu.Unlock()
	ch := make(chan settle, 1)
	o.waiters[subtaskID] = ch
	return ch
}

func (o *Orchestrator) dropWaiter(subtaskID string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	delete(o.waiters, subtaskID)
}

// signal delivers the one-shot outcome to the waiter, if one is armed.
func (o *Orchestrator) signal(subtaskID string, s settle) {
	o.mu.Lock()
	ch, ok := o.waiters[subtaskID]
	if ok {
		delete(o.waiters, subtaskID)
	}
	o.mu.Unlock()
	if ok {
		ch <- s
	}
}

func (o *Orchestrator) setAssignment(subtaskID, nodeID string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.assigned[subtaskID] = nodeID
}

func (o *Orchestrator) clearAssignment(subtaskID string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	delete(o.assigned, subtaskID)
}

// claimAssignment removes the assignment if nodeID still holds it, making
// the settle paths mutually exclusive: whoever claims first (result handler,
// error handler, or the timeout) is the only one to release load and book
// the outcome.
func (o *Orchestrator) claimAssignment(subtaskID, nodeID string) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.assigned[subtaskID] != nodeID {
		return false
	}
	delete(o.assigned, subtaskID)
	return true
}

// assignment returns the node currently holding the subtask.
func (o *Orchestrator) assignment(subtaskID string) (string, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	nodeID, ok := o.assigned[subtaskID]
	return nodeID, ok
}

func assignedFiles(images []domain.TaskFile) []protocol.AssignedFile {
	if len(images) == 0 {
		return nil
	}
	out := make([]protocol.AssignedFile, len(images))
	for i, f := range images {
		out[i] = protocol.AssignedFile{
			Name:     f.Name,
			Kind:     string(f.Kind),
			MIMEType: f.MIMEType,
			Data:     base64.StdEncoding.EncodeToString(f.Data),
		}
	}
	return out
}
