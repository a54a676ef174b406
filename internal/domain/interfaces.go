package domain

import "context"

// ─── Service Interfaces ─────────────────────────────────────────────────────
// These interfaces define boundaries between layers.
// Infrastructure implements them; application layer depends on them.

// Store is the durable record of accounts, nodes, tasks, subtasks, and
// reputation events. Implementations must be safe for concurrent use; a
// write per state transition is acceptable.
type Store interface {
	// Accounts
	CreateAccount(a Account) error
	GetAccountByID(id string) (*Account, error)
	GetAccountByKeyHash(keyHash string) (*Account, error)
	ListAccounts() ([]Account, error)
	UpdateAccountStatus(id string, status AccountStatus) error
	TouchAccount(id string) error
	CountAccountNodes(accountID string) (int, error)

	// Nodes
	UpsertNode(n Node) error
	GetNode(id string) (*Node, error)
	ListNodes() ([]Node, error)
	TopNodesByReputation(limit int) ([]Node, error)
	UpdateNodeLastSeen(id string) error
	UpdateNodeReputation(id string, reputation float64) error
	IncrementNodeTasks(id string) error
	LinkNodeToAccount(nodeID, accountID string) error

	// Tasks
	CreateTask(t Task) error
	GetTask(id string) (*Task, error)
	ListTasksByPrincipal(principalID string, limit int) ([]Task, error)
	UpdateTaskStatus(id string, status TaskStatus, finalResponse string) error

	// Subtasks
	CreateSubtask(s Subtask) error
	GetSubtask(id string) (*Subtask, error)
	ListSubtasksByTask(taskID string) ([]Subtask, error)
	AssignSubtask(id, nodeID string) error
	CompleteSubtask(id, response string, executionTimeMS int64) error
	FailSubtask(id string, status SubtaskStatus) error

	// Reputation events
	AppendReputationEvent(ev ReputationEvent) error
	ListReputationEvents(nodeID string, limit int) ([]ReputationEvent, error)

	// Enrollment tokens
	CreateToken(t EnrollmentToken) error
	GetTokenByHash(tokenHash string) (*EnrollmentToken, error)
	ListTokens(includeUsed, includeRevoked bool) ([]EnrollmentToken, error)
	ConsumeToken(id, nodeID string) error
	RevokeToken(id string) error
}

// Classifier maps a prompt to a difficulty class. Implementations never
// fail: classifiers with an external dependency fall back internally.
type Classifier interface {
	Classify(ctx context.Context, prompt string, subtaskCount int) Difficulty
}

// PDFSummarizer turns PDF attachments into an enriched text prompt. It is an
// external capability; the coordinator ships a passthrough fallback.
type PDFSummarizer interface {
	Summarize(ctx context.Context, prompt string, files []TaskFile) (string, error)
}
