// Package credentialcodec implements spec §4.2's transparent field-level
// encryption: given a generic JSON credential document and its security
// scheme kind, encrypt or decrypt exactly the fields
// credential.EncryptedFields designates for that kind, leaving every other
// field (and the document's shape) untouched.
//
// Grounded on the teacher's infrastructure/crypto/envelope.go's subject+info
// derivation, applied here per-field with the owning LinkedAccount/App id as
// subject and the field name as info, so two fields of the same document
// never share a derived key.
package credentialcodec

import (
	"encoding/base64"
	"encoding/json"
	"fmt"

	"github.com/r3e-network/agentcp/internal/app/domain/credential"
	"github.com/r3e-network/agentcp/internal/app/domain/securityscheme"
)

// FieldCrypto is the subset of crypto.Service the codec depends on.
type FieldCrypto interface {
	EncryptField(subjectID, fieldName string, plaintext []byte) ([]byte, error)
	DecryptField(subjectID, fieldName string, ciphertext []byte) ([]byte, error)
}

// Codec transparently encrypts/decrypts the designated fields of a
// credential document.
type Codec struct {
	crypto FieldCrypto
}

// New constructs a Codec.
func New(crypto FieldCrypto) *Codec {
	return &Codec{crypto: crypto}
}

// EncryptDoc returns a copy of doc with every field in
// credential.EncryptedFields[kind] replaced by its ciphertext, base64
// encoded for safe JSON storage. Fields absent from doc are left absent; a
// field present with a nil value is copied through as nil.
func (c *Codec) EncryptDoc(subjectID string, kind securityscheme.Kind, doc map[string]interface{}) (map[string]interface{}, error) {
	out := deepCopy(doc)
	for _, field := range credential.EncryptedFields[kind] {
		value, ok := out[field]
		if !ok || value == nil {
			continue
		}
		plaintext, err := json.Marshal(value)
		if err != nil {
			return nil, fmt.Errorf("credentialcodec: marshal field %q: %w", field, err)
		}
		ciphertext, err := c.crypto.EncryptField(subjectID, field, plaintext)
		if err != nil {
			return nil, fmt.Errorf("credentialcodec: encrypt field %q: %w", field, err)
		}
		out[field] = base64.StdEncoding.EncodeToString(ciphertext)
	}
	return out, nil
}

// DecryptDoc reverses EncryptDoc.
func (c *Codec) DecryptDoc(subjectID string, kind securityscheme.Kind, doc map[string]interface{}) (map[string]interface{}, error) {
	out := deepCopy(doc)
	for _, field := range credential.EncryptedFields[kind] {
		value, ok := out[field]
		if !ok || value == nil {
			continue
		}
		encoded, ok := value.(string)
		if !ok {
			return nil, fmt.Errorf("credentialcodec: field %q is not an encoded ciphertext", field)
		}
		ciphertext, err := base64.StdEncoding.DecodeString(encoded)
		if err != nil {
			return nil, fmt.Errorf("credentialcodec: decode field %q: %w", field, err)
		}
		plaintext, err := c.crypto.DecryptField(subjectID, field, ciphertext)
		if err != nil {
			return nil, fmt.Errorf("credentialcodec: decrypt field %q: %w", field, err)
		}
		var decoded interface{}
		if err := json.Unmarshal(plaintext, &decoded); err != nil {
			return nil, fmt.Errorf("credentialcodec: unmarshal field %q: %w", field, err)
		}
		out[field] = decoded
	}
	return out, nil
}

// deepCopy round-trips doc through JSON so callers never observe mutation
// of the map they passed in.
func deepCopy(doc map[string]interface{}) map[string]interface{} {
	if doc == nil {
		return map[string]interface{}{}
	}
	raw, err := json.Marshal(doc)
	if err != nil {
		// Unreachable for well-formed credential documents; fall back to a
		// shallow copy rather than panic.
		out := make(map[string]interface{}, len(doc))
		for k, v := range doc {
			out[k] = v
		}
		return out
	}
	out := map[string]interface{}{}
	_ = json.Unmarshal(raw, &out)
	return out
}
