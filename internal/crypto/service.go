package crypto

import (
	"bytes"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// globalSubject binds the non-field-scoped Encrypt/Decrypt operations to a
// fixed subject, distinct from any per-field derivation (EncryptField).
var globalSubject = []byte("agentcp:crypto:global")

const globalInfo = "generic"

// selfTestPlaintext is round-tripped by SelfTest at startup (spec §4.1:
// "Startup MUST round-trip a known plaintext and abort on mismatch").
var selfTestPlaintext = []byte("agentcp-crypto-self-test")

// Error is the single error type the Crypto service returns on any
// encrypt/decrypt/hmac failure (spec §4.1).
type Error struct {
	Op  string
	Err error
}

func (e *Error) Error() string { return fmt.Sprintf("crypto: %s: %v", e.Op, e.Err) }
func (e *Error) Unwrap() error { return e.Err }

// Service implements spec §4.1's Crypto service: envelope encryption
// against a master key plus HMAC-SHA256 keyed hashing for lookups.
type Service struct {
	masterKey  []byte
	hmacSecret []byte
}

// New constructs a Service. masterKey must be exactly 32 bytes; hmacSecret
// may be any length (HMAC accepts arbitrary key sizes).
func New(masterKey, hmacSecret []byte) (*Service, error) {
	if len(masterKey) != 32 {
		return nil, &Error{Op: "new", Err: errMasterKeyLength}
	}
	if len(hmacSecret) == 0 {
		return nil, &Error{Op: "new", Err: fmt.Errorf("hmac secret must not be empty")}
	}
	return &Service{masterKey: masterKey, hmacSecret: hmacSecret}, nil
}

// Encrypt seals plaintext under the service's master key, not bound to any
// particular entity. Used for values with no natural owning subject.
func (s *Service) Encrypt(plaintext []byte) ([]byte, error) {
	ciphertext, err := EncryptEnvelope(s.masterKey, globalSubject, globalInfo, plaintext)
	if err != nil {
		return nil, &Error{Op: "encrypt", Err: err}
	}
	return ciphertext, nil
}

// Decrypt reverses Encrypt.
func (s *Service) Decrypt(ciphertext []byte) ([]byte, error) {
	plaintext, err := DecryptEnvelope(s.masterKey, globalSubject, globalInfo, ciphertext)
	if err != nil {
		return nil, &Error{Op: "decrypt", Err: err}
	}
	return plaintext, nil
}

// EncryptField seals plaintext under a key derived from both the owning
// entity's id (subjectID) and the field name, so compromising the
// derived key for one entity's one field never exposes any other
// entity's or field's ciphertext. Used by the credential codec (spec
// §4.2) for per-field transparent encryption of OAuth2/API-key secrets.
func (s *Service) EncryptField(subjectID, fieldName string, plaintext []byte) ([]byte, error) {
	ciphertext, err := EncryptEnvelope(s.masterKey, []byte(subjectID), fieldName, plaintext)
	if err != nil {
		return nil, &Error{Op: "encrypt_field", Err: err}
	}
	return ciphertext, nil
}

// DecryptField reverses EncryptField.
func (s *Service) DecryptField(subjectID, fieldName string, ciphertext []byte) ([]byte, error) {
	plaintext, err := DecryptEnvelope(s.masterKey, []byte(subjectID), fieldName, ciphertext)
	if err != nil {
		return nil, &Error{Op: "decrypt_field", Err: err}
	}
	return plaintext, nil
}

// HMAC returns the hex-encoded HMAC-SHA256 of s, keyed by the service's
// hmac secret. Used for deterministic, non-reversible API-key lookup
// hashing (spec §4.1, §4.3): the key's HMAC is indexed so a presented key
// can be looked up without ever storing or comparing plaintext.
func (s *Service) HMAC(message string) string {
	mac := hmac.New(sha256.New, s.hmacSecret)
	mac.Write([]byte(message))
	return hex.EncodeToString(mac.Sum(nil))
}

// VerifyHMAC reports whether mac is the HMAC-SHA256 of message, using a
// constant-time comparison.
func (s *Service) VerifyHMAC(message, mac string) bool {
	expected, err := hex.DecodeString(s.HMAC(message))
	if err != nil {
		return false
	}
	got, err := hex.DecodeString(mac)
	if err != nil {
		return false
	}
	return hmac.Equal(expected, got) && bytes.Equal(expected, got)
}

// SelfTest round-trips a known plaintext through Encrypt/Decrypt and
// confirms the HMAC of a known message is stable, aborting the caller's
// startup sequence on any mismatch (spec §4.1). Callers invoke this once
// at process start, before serving any request.
func (s *Service) SelfTest() error {
	ciphertext, err := s.Encrypt(selfTestPlaintext)
	if err != nil {
		return &Error{Op: "self_test_encrypt", Err: err}
	}
	plaintext, err := s.Decrypt(ciphertext)
	if err != nil {
		return &Error{Op: "self_test_decrypt", Err: err}
	}
	if !bytes.Equal(plaintext, selfTestPlaintext) {
		return &Error{Op: "self_test", Err: fmt.Errorf("round-trip mismatch")}
	}
	mac1 := s.HMAC("agentcp-crypto-self-test-hmac")
	mac2 := s.HMAC("agentcp-crypto-self-test-hmac")
	if mac1 != mac2 {
		return &Error{Op: "self_test_hmac", Err: fmt.Errorf("hmac is not deterministic")}
	}
	return nil
}
