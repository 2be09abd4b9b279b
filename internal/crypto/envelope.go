// Package crypto implements the control plane's envelope-encryption
// primitive (spec §4.1): AES-256-GCM payloads under a key derived from a
// long-lived master key and a per-subject/per-field info string, so that
// compromising one derived key never exposes the master key or the keys
// derived for other subjects/fields.
//
// Grounded on the teacher's infrastructure/crypto/envelope.go, which uses
// the identical derive-then-seal construction for its own TEE-sealed
// secrets.
package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"strings"
)

const envelopeVersionPrefix = "v1:"

var (
	errMasterKeyLength = errors.New("crypto: master key must be 32 bytes")
	errMalformedCipher = errors.New("crypto: malformed ciphertext")
)

// deriveEnvelopeKey derives a 32-byte AES key from masterKey, bound to
// subject and info via HMAC-SHA256. Different (subject, info) pairs yield
// unrelated keys even under the same master key.
func deriveEnvelopeKey(masterKey, subject []byte, info string) ([]byte, error) {
	if len(masterKey) != 32 {
		return nil, errMasterKeyLength
	}
	mac := hmac.New(sha256.New, masterKey)
	mac.Write(subject)
	mac.Write([]byte{0})
	mac.Write([]byte(info))
	return mac.Sum(nil), nil
}

// envelopeAAD binds the ciphertext to its subject and info so a ciphertext
// cannot be decrypted, even with the right key, under a different binding.
func envelopeAAD(subject []byte, info string) []byte {
	aad := make([]byte, 0, len(subject)+1+len(info))
	aad = append(aad, subject...)
	aad = append(aad, 0)
	aad = append(aad, []byte(info)...)
	return aad
}

// EncryptEnvelope seals plaintext under a key derived from masterKey and
// (subject, info), returning a versioned, base64-encoded wire value.
func EncryptEnvelope(masterKey, subject []byte, info string, plaintext []byte) ([]byte, error) {
	key, err := deriveEnvelopeKey(masterKey, subject, info)
	if err != nil {
		return nil, err
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("crypto: new cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("crypto: new gcm: %w", err)
	}
	nonce := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, fmt.Errorf("crypto: nonce: %w", err)
	}
	sealed := gcm.Seal(nonce, nonce, plaintext, envelopeAAD(subject, info))
	encoded := base64.RawURLEncoding.EncodeToString(sealed)
	return []byte(envelopeVersionPrefix + encoded), nil
}

// DecryptEnvelope reverses EncryptEnvelope.
func DecryptEnvelope(masterKey, subject []byte, info string, ciphertext []byte) ([]byte, error) {
	s := string(ciphertext)
	if !strings.HasPrefix(s, envelopeVersionPrefix) {
		return nil, errMalformedCipher
	}
	sealed, err := base64.RawURLEncoding.DecodeString(strings.TrimPrefix(s, envelopeVersionPrefix))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", errMalformedCipher, err)
	}
	key, err := deriveEnvelopeKey(masterKey, subject, info)
	if err != nil {
		return nil, err
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("crypto: new cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("crypto: new gcm: %w", err)
	}
	nonceSize := gcm.NonceSize()
	if len(sealed) < nonceSize {
		return nil, errMalformedCipher
	}
	nonce, body := sealed[:nonceSize], sealed[nonceSize:]
	plaintext, err := gcm.Open(nil, nonce, body, envelopeAAD(subject, info))
	if err != nil {
		return nil, fmt.Errorf("crypto: open: %w", err)
	}
	return plaintext, nil
}
