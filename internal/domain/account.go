package domain

import "time"

// AccountStatus gates node admission. Only active accounts may register.
type AccountStatus string

const (
	AccountActive    AccountStatus = "active"
	AccountSuspended AccountStatus = "suspended"
	AccountDeleted   AccountStatus = "deleted"
)

// Account is an opaque operator credential. The full 16-digit key is never
// stored; only its SHA-256 hash and the first four digits survive creation.
type Account struct {
	ID             string        `json:"id"`
	KeyHash        string        `json:"-"`
	KeyPrefix      string        `json:"key_prefix"` // first 4 digits
	Status         AccountStatus `json:"status"`
	CreatedAt      time.Time     `json:"created_at"`
	LastActivityAt time.Time     `json:"last_activity_at,omitempty"`
}

// EnrollmentToken is the legacy admission credential: single use, optionally
// expiring, revocable. Only the token's hash persists.
type EnrollmentToken struct {
	ID         string    `json:"id"`
	TokenHash  string    `json:"-"`
	Label      string    `json:"label,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
	ExpiresAt  time.Time `json:"expires_at,omitempty"`
	UsedAt     time.Time `json:"used_at,omitempty"`
	UsedByNode string    `json:"used_by_node,omitempty"`
	Revoked    bool      `json:"revoked"`
}

// Usable reports whether the token can still admit a node.
func (t *EnrollmentToken) Usable(now time.Time) bool {
	if t.Revoked || !t.UsedAt.IsZero() {
		return false
	}
	if !t.ExpiresAt.IsZero() && now.After(t.ExpiresAt) {
		return false
	}
	return true
}
