package security

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"io"

	"golang.org/x/crypto/curve25519"
	"golang.org/x/crypto/hkdf"

	"github.com/iris-network/iris/internal/domain"
)

// Envelope layout: base64( salt ‖ nonce ‖ ciphertext ‖ tag ).
const (
	saltSize  = 16 // HKDF salt
	nonceSize = 12 // AES-GCM nonce
	keySize   = 32 // AES-256
)

// hkdfInfo binds derived keys to this protocol.
var hkdfInfo = []byte("iris-e2e")

// Seal encrypts plaintext for the recipient identified by its base64 X25519
// public key. A fresh salt and nonce are drawn per message; the AEAD runs
// with empty additional data.
func (kp *Keypair) Seal(recipientPub string, plaintext []byte) (string, error) {
	pub, err := decodePublicKey(recipientPub)
	if err != nil {
		return "", err
	}

	salt := make([]byte, saltSize)
	if _, err := rand.Read(salt); err != nil {
		return "", fmt.Errorf("generate salt: %w", err)
	}

	aead, err := kp.derivedAEAD(pub, salt)
	if err != nil {
		return "", err
	}

	nonce := make([]byte, nonceSize)
	if _, err := rand.Read(nonce); err != nil {
		return "", fmt.Errorf("generate nonce: %w", err)
	}

	blob := make([]byte, 0, saltSize+nonceSize+len(plaintext)+aead.Overhead())
	blob = append(blob, salt...)
	blob = append(blob, nonce...)
	blob = aead.Seal(blob, nonce, plaintext, nil)

	return base64.StdEncoding.EncodeToString(blob), nil
}

// Open decrypts a blob sealed for us by the sender identified by its base64
// X25519 public key. Returns ErrDecryptionFailed on any tampering or
// key mismatch.
func (kp *Keypair) Open(senderPub string, blob string) ([]byte, error) {
	pub, err := decodePublicKey(senderPub)
	if err != nil {
		return nil, err
	}

	raw, err := base64.StdEncoding.DecodeString(blob)
	if err != nil {
		return nil, domain.ErrDecryptionFailed
	}
	if len(raw) < saltSize+nonceSize {
		return nil, domain.ErrDecryptionFailed
	}

	salt := raw[:saltSize]
	nonce := raw[saltSize : saltSize+nonceSize]
	ciphertext := raw[saltSize+nonceSize:]

	aead, err := kp.derivedAEAD(pub, salt)
	if err != nil {
		return nil, err
	}

	plaintext, err := aead.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return nil, domain.ErrDecryptionFailed
	}
	return plaintext, nil
}

// derivedAEAD performs the X25519 exchange and derives the AES-256-GCM key
// via HKDF-SHA256 with the given salt. Both directions derive the same key
// from the same salt, so Seal/Open are symmetric across parties.
func (kp *Keypair) derivedAEAD(peerPub, salt []byte) (cipher.AEAD, error) {
	shared, err := curve25519.X25519(kp.private[:], peerPub)
	if err != nil {
		return nil, domain.ErrInvalidKey
	}

	key := make([]byte, keySize)
	if _, err := io.ReadFull(hkdf.New(sha256.New, shared, salt, hkdfInfo), key); err != nil {
		return nil, fmt.Errorf("derive key: %w", err)
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("init cipher: %w", err)
	}
	return cipher.NewGCM(block)
}
