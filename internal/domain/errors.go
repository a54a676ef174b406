package domain

import "errors"

// ─── Sentinel Errors ────────────────────────────────────────────────────────
// Domain errors carry no infrastructure dependency.

var (
	// Admission errors
	ErrUnauthorized  = errors.New("unauthorized: invalid or missing account key")
	ErrInvalidFormat = errors.New("invalid format")
	ErrForbidden     = errors.New("forbidden: principal does not own this resource")

	// Lookup errors
	ErrNotFound        = errors.New("not found")
	ErrTaskNotFound    = errors.New("task not found")
	ErrSubtaskNotFound = errors.New("subtask not found")
	ErrNodeNotFound    = errors.New("node not found")
	ErrAccountNotFound = errors.New("account not found")
	ErrTokenNotFound   = errors.New("enrollment token not found")

	// Scheduling errors
	ErrNoCapableWorker = errors.New("no capable worker available")
	ErrSendFailed      = errors.New("send to worker failed")
	ErrTimeout         = errors.New("subtask timed out")
	ErrWorkerError     = errors.New("worker reported an error")

	// Crypto errors
	ErrDecryptionFailed = errors.New("decryption failed: authentication tag mismatch")
	ErrInvalidResponse  = errors.New("worker returned an invalid response")
	ErrInvalidKey       = errors.New("invalid public key")

	// Streaming errors
	ErrOverloaded       = errors.New("stream queue full, chunk dropped")
	ErrStreamNotFound   = errors.New("stream session not found")
	ErrStreamSubscribed = errors.New("stream already has a subscriber")

	// Catch-all
	ErrInternal = errors.New("internal error")
)
