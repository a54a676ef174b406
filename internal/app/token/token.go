// Package token issues single-use enrollment tokens that authorize a worker
// to register without an account key. Tokens are random, prefixed for easy
// recognition, and only their hash is stored.
package token

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base32"
	"encoding/hex"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/iris-network/iris/internal/domain"
	"github.com/iris-network/iris/internal/log"
)

// Prefix marks Iris enrollment tokens.
const Prefix = "iris_"

// secretEnv optionally keys the token hash. With a secret set, a leaked
// database alone is not enough to forge token hashes.
const secretEnv = "IRIS_TOKEN_SECRET"

const rawTokenBytes = 20

// Service issues and redeems enrollment tokens.
type Service struct {
	store  domain.Store
	secret []byte
	now    func() time.Time
	logger zerolog.Logger
}

// NewService creates a token service over the given store. The hash secret
// is read from the environment once at construction.
func NewService(store domain.Store) *Service {
	var secret []byte
	if s := os.Getenv(secretEnv); s != "" {
		secret = []byte(s)
	}
	return &Service{
		store:  store,
		secret: secret,
		now:    time.Now,
		logger: log.WithComponent("token"),
	}
}

// Generate mints a new token valid for the given duration (zero means no
// expiry) and returns the plaintext exactly once.
func (s *Service) Generate(label string, ttl time.Duration) (*domain.EnrollmentToken, string, error) {
	raw := make([]byte, rawTokenBytes)
	if _, err := rand.Read(raw); err != nil {
		return nil, "", fmt.Errorf("generate token: %w", err)
	}
	plaintext := Prefix + strings.ToLower(base32.StdEncoding.WithPadding(base32.NoPadding).EncodeToString(raw))

	tok := domain.EnrollmentToken{
		ID:        uuid.NewString(),
		TokenHash: s.hash(plaintext),
		Label:     label,
		CreatedAt: s.now(),
	}
	if ttl > 0 {
		tok.ExpiresAt = tok.CreatedAt.Add(ttl)
	}
	if err := s.store.CreateToken(tok); err != nil {
		return nil, "", err
	}

	s.logger.Info().
		Str("token_id", tok.ID).
		Str("label", label).
		Msg("enrollment token issued")
	return &tok, plaintext, nil
}

// Redeem consumes a token on behalf of a registering node. Unknown,
// expired, revoked, and already-used tokens all fail with ErrUnauthorized.
func (s *Service) Redeem(plaintext, nodeID string) (*domain.EnrollmentToken, error) {
	if !strings.HasPrefix(plaintext, Prefix) {
		return nil, domain.ErrUnauthorized
	}

	tok, err := s.store.GetTokenByHash(s.hash(plaintext))
	if err != nil {
		return nil, domain.ErrUnauthorized
	}
	if !tok.Usable(s.now()) {
		return nil, domain.ErrUnauthorized
	}
	if err := s.store.ConsumeToken(tok.ID, nodeID); err != nil {
		// Lost the race against a concurrent redemption.
		return nil, domain.ErrUnauthorized
	}

	s.logger.Info().
		Str("token_id", tok.ID).
		Str("node_id", nodeID).
		Msg("enrollment token redeemed")
	return tok, nil
}

// Revoke invalidates a token by ID.
func (s *Service) Revoke(id string) error {
	if err := s.store.RevokeToken(id); err != nil {
		return err
	}
	s.logger.Info().Str("token_id", id).Msg("enrollment token revoked")
	return nil
}

// List returns tokens, optionally including used and revoked ones.
func (s *Service) List(includeUsed, includeRevoked bool) ([]domain.EnrollmentToken, error) {
	return s.store.ListTokens(includeUsed, includeRevoked)
}

// hash computes the stored digest: HMAC-SHA256 when a secret is configured,
// plain SHA-256 otherwise.
func (s *Service) hash(plaintext string) string {
	if len(s.secret) > 0 {
		mac := hmac.New(sha256.New, s.secret)
		mac.Write([]byte(plaintext))
		return hex.EncodeToString(mac.Sum(nil))
	}
	sum := sha256.Sum256([]byte(plaintext))
	return hex.EncodeToString(sum[:])
}
