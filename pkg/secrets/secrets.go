package secrets

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"io"
)

// EncryptString encrypts a string using the compound key derived from the app
// and scope keys. Returns base64-encoded ciphertext.
func EncryptString(appKey, scopeKey []byte, plaintext string) (string, error) {
	ciphertext, err := EncryptBytes(appKey, scopeKey, []byte(plaintext))
	if err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(ciphertext), nil
}

// DecryptString decrypts a base64-encoded ciphertext back to a string.
func DecryptString(appKey, scopeKey []byte, ciphertext string) (string, error) {
	ciphertextBytes, err := base64.StdEncoding.DecodeString(ciphertext)
	if err != nil {
		return "", errors.Join(ErrInvalidCiphertext, err)
	}

	plaintextBytes, err := DecryptBytes(appKey, scopeKey, ciphertextBytes)
	if err != nil {
		return "", err
	}

	return string(plaintextBytes), nil
}

// EncryptBytes encrypts raw bytes with AES-256-GCM under the compound key.
// Ciphertext layout: nonce + encrypted data + tag.
func EncryptBytes(appKey, scopeKey []byte, data []byte) ([]byte, error) {
	if err := ValidateKeys(appKey, scopeKey); err != nil {
		return nil, err
	}

	key, err := deriveKey(appKey, scopeKey)
	if err != nil {
		return nil, err
	}
	defer clearBytes(key)

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, errors.Join(ErrEncryptionFailed, err)
	}

	aesGCM, err := cipher.NewGCM(block)
	if err != nil {
		return nil, errors.Join(ErrEncryptionFailed, err)
	}

	nonce := make([]byte, aesGCM.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, errors.Join(ErrEncryptionFailed, err)
	}

	return aesGCM.Seal(nonce, nonce, data, nil), nil
}

// DecryptBytes decrypts ciphertext produced by EncryptBytes.
func DecryptBytes(appKey, scopeKey []byte, ciphertext []byte) ([]byte, error) {
	if err := ValidateKeys(appKey, scopeKey); err != nil {
		return nil, err
	}

	key, err := deriveKey(appKey, scopeKey)
	if err != nil {
		return nil, err
	}
	defer clearBytes(key)

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, errors.Join(ErrDecryptionFailed, err)
	}

	aesGCM, err := cipher.NewGCM(block)
	if err != nil {
		return nil, errors.Join(ErrDecryptionFailed, err)
	}

	nonceSize := aesGCM.NonceSize()
	if len(ciphertext) < nonceSize {
		return nil, ErrInvalidCiphertext
	}

	nonce, ciphertext := ciphertext[:nonceSize], ciphertext[nonceSize:]

	plaintext, err := aesGCM.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return nil, errors.Join(ErrDecryptionFailed, err)
	}

	return plaintext, nil
}
