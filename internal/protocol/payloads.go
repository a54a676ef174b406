package protocol

// ─── Registration & Liveness ────────────────────────────────────────────────

// Capabilities describes the worker's hardware and model at registration.
type Capabilities struct {
	ModelName       string  `json:"model_name"`
	MaxContext      int     `json:"max_context"`
	VRAMGB          float64 `json:"vram_gb"`
	GPUName         string  `json:"gpu_name"`
	ModelParamsB    float64 `json:"model_params_b"`
	Quantization    string  `json:"quantization"`
	TokensPerSecond float64 `json:"tokens_per_second"`
	SupportsVision  bool    `json:"supports_vision"`
}

// RegisterPayload announces a worker. Exactly one of AccountKey or
// EnrollmentToken authorizes the registration.
type RegisterPayload struct {
	NodeID          string       `json:"node_id"`
	PublicKey       string       `json:"public_key"`
	AccountKey      string       `json:"account_key,omitempty"`
	EnrollmentToken string       `json:"enrollment_token,omitempty"`
	Capabilities    Capabilities `json:"capabilities"`
}

// RegisterAckPayload confirms registration and hands the worker the
// coordinator's public key for the crypto envelope.
type RegisterAckPayload struct {
	NodeID               string `json:"node_id"`
	Tier                 string `json:"tier"`
	CoordinatorPublicKey string `json:"coordinator_public_key"`
	AccountID            string `json:"account_id"`
}

// HeartbeatPayload is the worker's periodic liveness report.
type HeartbeatPayload struct {
	NodeID          string  `json:"node_id"`
	CurrentLoad     int     `json:"current_load"`
	UptimeSeconds   float64 `json:"uptime_seconds"`
	TokensPerSecond float64 `json:"tokens_per_second,omitempty"`
	SentAt          float64 `json:"sent_at"`
}

// HeartbeatAckPayload echoes liveness back with the smoothed latency.
type HeartbeatAckPayload struct {
	NodeID    string  `json:"node_id"`
	LatencyMS float64 `json:"latency_ms"`
}

// ─── Task Dispatch ──────────────────────────────────────────────────────────

// AssignedFile carries an attachment alongside an encrypted prompt.
type AssignedFile struct {
	Name     string `json:"name"`
	Kind     string `json:"kind"`
	MIMEType string `json:"mime_type"`
	Data     string `json:"data"` // base64
}

// TaskAssignPayload dispatches one subtask to a worker. The prompt is
// sealed for the worker's key; only the worker can read it.
type TaskAssignPayload struct {
	SubtaskID       string         `json:"subtask_id"`
	TaskID          string         `json:"task_id"`
	EncryptedPrompt string         `json:"encrypted_prompt"`
	TimeoutSeconds  int            `json:"timeout_seconds"`
	EnableStreaming bool           `json:"enable_streaming"`
	Files           []AssignedFile `json:"files,omitempty"`
}

// TaskResultPayload returns a completed subtask, response sealed for the
// coordinator.
type TaskResultPayload struct {
	SubtaskID         string `json:"subtask_id"`
	TaskID            string `json:"task_id"`
	NodeID            string `json:"node_id"`
	EncryptedResponse string `json:"encrypted_response"`
	ExecutionTimeMS   int64  `json:"execution_time_ms"`
}

// TaskErrorPayload reports a worker-side failure for a subtask.
type TaskErrorPayload struct {
	SubtaskID string `json:"subtask_id"`
	TaskID    string `json:"task_id"`
	NodeID    string `json:"node_id"`
	Error     string `json:"error"`
}

// TaskStreamPayload carries one incremental chunk of a streamed response.
// Chunks are enveloped like results and ordered by ChunkIndex.
type TaskStreamPayload struct {
	SubtaskID      string `json:"subtask_id"`
	TaskID         string `json:"task_id"`
	NodeID         string `json:"node_id"`
	EncryptedChunk string `json:"encrypted_chunk"`
	ChunkIndex     int    `json:"chunk_index"`
}

// ─── Classification Offload ─────────────────────────────────────────────────

// ClassifyAssignPayload asks a worker to classify prompt difficulty.
type ClassifyAssignPayload struct {
	RequestID string `json:"request_id"`
	Prompt    string `json:"prompt"`
}

// ClassifyResultPayload returns the worker's difficulty verdict.
type ClassifyResultPayload struct {
	RequestID  string `json:"request_id"`
	NodeID     string `json:"node_id"`
	Difficulty string `json:"difficulty"`
}

// ClassifyErrorPayload reports a failed classification request.
type ClassifyErrorPayload struct {
	RequestID string `json:"request_id"`
	NodeID    string `json:"node_id"`
	Error     string `json:"error"`
}

// ─── Control ────────────────────────────────────────────────────────────────

// DisconnectPayload tells the peer the channel is closing.
type DisconnectPayload struct {
	NodeID string `json:"node_id,omitempty"`
	Reason string `json:"reason"`
}

// ErrorPayload reports a protocol-level error on the channel.
type ErrorPayload struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}
