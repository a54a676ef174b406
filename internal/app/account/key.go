// Package account manages operator accounts and their 16-digit access keys.
// Keys are stored hashed; the plaintext is shown exactly once at creation.
package account

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"math/big"
	"strings"

	"github.com/iris-network/iris/internal/domain"
)

// KeyDigits is the length of an account key after normalization.
const KeyDigits = 16

// GenerateKey draws a fresh 16-digit key from the system entropy source,
// formatted in groups of four for readability.
func GenerateKey() (string, error) {
	digits := make([]byte, KeyDigits)
	for i := range digits {
		n, err := rand.Int(rand.Reader, big.NewInt(10))
		if err != nil {
			return "", fmt.Errorf("generate key digit: %w", err)
		}
		digits[i] = byte('0' + n.Int64())
	}
	return FormatKey(string(digits)), nil
}

// NormalizeKey strips spaces and dashes, the separators users paste in.
func NormalizeKey(key string) string {
	key = strings.ReplaceAll(key, " ", "")
	return strings.ReplaceAll(key, "-", "")
}

// ValidFormat reports whether the key is 16 digits after normalization.
func ValidFormat(key string) bool {
	n := NormalizeKey(key)
	if len(n) != KeyDigits {
		return false
	}
	for _, c := range n {
		if c < '0' || c > '9' {
			return false
		}
	}
	return true
}

// FormatKey renders a normalized key in groups of four.
func FormatKey(key string) string {
	n := NormalizeKey(key)
	var groups []string
	for i := 0; i+4 <= len(n); i += 4 {
		groups = append(groups, n[i:i+4])
	}
	return strings.Join(groups, " ")
}

// HashKey returns the hex SHA-256 of the normalized key, the only form
// that is ever persisted.
func HashKey(key string) string {
	sum := sha256.Sum256([]byte(NormalizeKey(key)))
	return hex.EncodeToString(sum[:])
}

// KeyPrefix returns the first four digits, kept for support lookups.
func KeyPrefix(key string) string {
	n := NormalizeKey(key)
	if len(n) < 4 {
		return n
	}
	return n[:4]
}

// MaskKey renders a key for display with everything past the prefix hidden.
func MaskKey(key string) string {
	return KeyPrefix(key) + " **** **** ****"
}

// checkFormat converts a malformed key into the sentinel error.
func checkFormat(key string) error {
	if !ValidFormat(key) {
		return domain.ErrInvalidKey
	}
	return nil
}
