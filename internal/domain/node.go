package domain

import "time"

// Tier is a worker capability class derived from VRAM, model size, and
// throughput. Recomputed on every registration.
type Tier string

const (
	TierBasic    Tier = "basic"    // small GPUs, models under 7B
	TierStandard Tier = "standard" // medium GPUs, models 7B-13B
	TierPremium  Tier = "premium"  // powerful GPUs, models 30B+
)

// Node is the persisted record of a worker, upserted on every registration.
type Node struct {
	ID              string    `json:"id"`
	AccountID       string    `json:"account_id,omitempty"`
	PublicKey       string    `json:"public_key"`
	ModelName       string    `json:"model_name"`
	MaxContext      int       `json:"max_context"`
	VRAMGB          float64   `json:"vram_gb"`
	GPUName         string    `json:"gpu_name"`
	ModelParamsB    float64   `json:"model_params_b"` // billions of parameters
	Quantization    string    `json:"quantization"`
	TokensPerSecond float64   `json:"tokens_per_second"`
	Tier            Tier      `json:"tier"`
	SupportsVision  bool      `json:"supports_vision"`
	Reputation      float64   `json:"reputation"`
	TasksCompleted  int64     `json:"tasks_completed"`
	CreatedAt       time.Time `json:"created_at"`
	LastSeenAt      time.Time `json:"last_seen_at,omitempty"`
}
