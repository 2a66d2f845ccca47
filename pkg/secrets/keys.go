package secrets

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"io"

	"golang.org/x/crypto/hkdf"
)

const (
	// KeySize is the required size for both the app key and the scope key.
	KeySize = 32 // 256 bits for AES-256

	// saltInfo provides domain separation for HKDF key derivation.
	saltInfo = "soonish-secrets-v1"
)

// ValidateKeys checks that both keys are the correct length. Both checks run
// unconditionally to keep validation constant-time.
func ValidateKeys(appKey, scopeKey []byte) error {
	validApp := len(appKey) == KeySize
	validScope := len(scopeKey) == KeySize

	if !validApp {
		return ErrInvalidAppKey
	}
	if !validScope {
		return ErrInvalidScopeKey
	}
	return nil
}

// deriveKey creates a compound key from the app and scope keys using HKDF.
// The caller clears the returned key with clearBytes when done.
func deriveKey(appKey, scopeKey []byte) ([]byte, error) {
	hkdfReader := hkdf.New(sha256.New, appKey, scopeKey, []byte(saltInfo))

	derivedKey := make([]byte, KeySize)
	if _, err := io.ReadFull(hkdfReader, derivedKey); err != nil {
		return nil, errors.Join(ErrKeyDerivationFailed, err)
	}

	return derivedKey, nil
}

func clearBytes(b []byte) {
	for i := range b {
		b[i] = 0
	}
}

// GenerateKey creates a new random 32-byte key suitable for encryption.
func GenerateKey() ([]byte, error) {
	key := make([]byte, KeySize)
	if _, err := rand.Read(key); err != nil {
		return nil, err
	}
	return key, nil
}

// ParseKey decodes a key from hex or standard base64 and validates its size.
// Configuration carries keys as strings; this is the single place they are
// turned back into raw bytes.
func ParseKey(s string) ([]byte, error) {
	if b, err := hex.DecodeString(s); err == nil && len(b) == KeySize {
		return b, nil
	}
	if b, err := base64.StdEncoding.DecodeString(s); err == nil && len(b) == KeySize {
		return b, nil
	}
	return nil, ErrInvalidAppKey
}

// ScopeKey derives a per-scope key from an arbitrary identifier, such as a
// user id. Scoping ties ciphertexts to their owner so a value copied between
// rows does not decrypt.
func ScopeKey(id []byte) []byte {
	sum := sha256.Sum256(id)
	return sum[:]
}
