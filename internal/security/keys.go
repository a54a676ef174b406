// Package security implements the end-to-end crypto envelope between the
// coordinator and workers: X25519 key agreement, HKDF-SHA256 key derivation,
// and AES-256-GCM sealing. Prompts and responses stay opaque on the wire.
package security

import (
	"crypto/rand"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"

	"golang.org/x/crypto/curve25519"

	"github.com/iris-network/iris/internal/domain"
)

// Keypair holds the party's X25519 identity.
type Keypair struct {
	private [curve25519.ScalarSize]byte
	public  [curve25519.PointSize]byte
}

// GenerateKeypair creates a new X25519 keypair.
func GenerateKeypair() (*Keypair, error) {
	kp := &Keypair{}
	if _, err := rand.Read(kp.private[:]); err != nil {
		return nil, fmt.Errorf("generate x25519 keypair: %w", err)
	}
	pub, err := curve25519.X25519(kp.private[:], curve25519.Basepoint)
	if err != nil {
		return nil, fmt.Errorf("derive public key: %w", err)
	}
	copy(kp.public[:], pub)
	return kp, nil
}

// LoadOrCreateKeypair loads an existing keypair from disk, or generates a
// new one on first run. The private key is stored hex-encoded with
// owner-only permissions in dir/keys/coordinator.key.
func LoadOrCreateKeypair(dir string) (*Keypair, error) {
	keyDir := filepath.Join(dir, "keys")
	keyPath := filepath.Join(keyDir, "coordinator.key")

	raw, err := os.ReadFile(keyPath)
	if err == nil {
		priv, err := hex.DecodeString(string(raw))
		if err != nil {
			return nil, fmt.Errorf("decode private key: %w", err)
		}
		return keypairFromPrivate(priv)
	}
	if !os.IsNotExist(err) {
		return nil, fmt.Errorf("read private key: %w", err)
	}

	kp, err := GenerateKeypair()
	if err != nil {
		return nil, err
	}

	if err := os.MkdirAll(keyDir, 0o700); err != nil {
		return nil, fmt.Errorf("create key dir: %w", err)
	}
	if err := os.WriteFile(keyPath, []byte(hex.EncodeToString(kp.private[:])), 0o600); err != nil {
		return nil, fmt.Errorf("write private key: %w", err)
	}
	return kp, nil
}

func keypairFromPrivate(priv []byte) (*Keypair, error) {
	if len(priv) != curve25519.ScalarSize {
		return nil, domain.ErrInvalidKey
	}
	kp := &Keypair{}
	copy(kp.private[:], priv)
	pub, err := curve25519.X25519(kp.private[:], curve25519.Basepoint)
	if err != nil {
		return nil, fmt.Errorf("derive public key: %w", err)
	}
	copy(kp.public[:], pub)
	return kp, nil
}

// PublicKey returns the base64-encoded public key, the form exchanged on
// the wire and persisted on node rows.
func (kp *Keypair) PublicKey() string {
	return base64.StdEncoding.EncodeToString(kp.public[:])
}

func decodePublicKey(b64 string) ([]byte, error) {
	raw, err := base64.StdEncoding.DecodeString(b64)
	if err != nil || len(raw) != curve25519.PointSize {
		return nil, domain.ErrInvalidKey
	}
	return raw, nil
}
