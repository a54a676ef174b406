// Package domain holds the entities that flow through the Iris network:
// accounts, nodes, tasks, subtasks, and reputation events. A Task is a unit
// of client work: submit → classify → divide → assign → await → aggregate.
package domain

import "time"

// TaskStatus tracks task lifecycle. Transitions are strictly forward:
// Pending → Processing → (Completed | Failed | Partial).
type TaskStatus string

const (
	TaskPending    TaskStatus = "pending"
	TaskProcessing TaskStatus = "processing"
	TaskCompleted  TaskStatus = "completed"
	TaskFailed     TaskStatus = "failed"
	TaskPartial    TaskStatus = "partial" // some subtasks failed
)

// TaskMode selects how a prompt is divided across workers.
type TaskMode string

const (
	ModeSubtasks  TaskMode = "subtasks"  // divide into independent subtasks
	ModeConsensus TaskMode = "consensus" // same prompt to three workers
	ModeContext   TaskMode = "context"   // split long context into chunks
)

// Difficulty classifies a prompt for worker matching and timeouts.
type Difficulty string

const (
	Simple   Difficulty = "simple"   // short questions, direct answers
	Complex  Difficulty = "complex"  // analysis, summaries, comparisons
	Advanced Difficulty = "advanced" // code, math, multi-step reasoning
)

// Task is a client inference request tracked by the coordinator.
type Task struct {
	ID             string     `json:"id"`
	PrincipalID    string     `json:"principal_id"`
	Mode           TaskMode   `json:"mode"`
	Difficulty     Difficulty `json:"difficulty"`
	OriginalPrompt string     `json:"original_prompt"`
	FinalResponse  string     `json:"final_response,omitempty"`
	Status         TaskStatus `json:"status"`
	HasFiles       bool       `json:"has_files"`
	CreatedAt      time.Time  `json:"created_at"`
	CompletedAt    time.Time  `json:"completed_at,omitempty"`
}

// IsTerminal returns true once the task reached a final state.
func (t *Task) IsTerminal() bool {
	return t.Status == TaskCompleted || t.Status == TaskFailed || t.Status == TaskPartial
}

// SubtaskStatus tracks subtask lifecycle. Terminal states are monotone.
type SubtaskStatus string

const (
	SubtaskPending   SubtaskStatus = "pending"
	SubtaskAssigned  SubtaskStatus = "assigned"
	SubtaskCompleted SubtaskStatus = "completed"
	SubtaskFailed    SubtaskStatus = "failed"
	SubtaskTimeout   SubtaskStatus = "timeout"
)

// Subtask is an independent piece of work derived from a task prompt,
// assigned to exactly one worker at a time. Response is populated iff
// the subtask completed.
type Subtask struct {
	ID              string        `json:"id"`
	TaskID          string        `json:"task_id"`
	NodeID          string        `json:"node_id,omitempty"`
	Prompt          string        `json:"prompt"`
	Response        string        `json:"response,omitempty"`
	Status          SubtaskStatus `json:"status"`
	AssignedAt      time.Time     `json:"assigned_at,omitempty"`
	CompletedAt     time.Time     `json:"completed_at,omitempty"`
	ExecutionTimeMS int64         `json:"execution_time_ms,omitempty"`
}

// IsTerminal returns true once the subtask reached a final state.
func (s *Subtask) IsTerminal() bool {
	return s.Status == SubtaskCompleted || s.Status == SubtaskFailed || s.Status == SubtaskTimeout
}

// FileKind distinguishes attachments on a task.
type FileKind string

const (
	FilePDF   FileKind = "pdf"
	FileImage FileKind = "image"
)

// TaskFile is an attachment submitted alongside a prompt. PDFs are summarized
// into the prompt before division; images travel with the assignment and
// require a vision-capable worker.
type TaskFile struct {
	Name     string   `json:"name"`
	Kind     FileKind `json:"kind"`
	MIMEType string   `json:"mime_type"`
	Data     []byte   `json:"data"`
}
