// Package credential models the polymorphic per-LinkedAccount credential
// document (spec §3 "Credential shapes"), the deterministic set of fields
// the codec encrypts (spec §3 invariant 6), and the sum-type used by the
// resolver and executors (spec §9).
package credential

import (
	"encoding/json"
	"fmt"

	"github.com/r3e-network/agentcp/internal/app/domain/securityscheme"
)

// OAuth2Credentials is the OAuth2 grant persisted for a LinkedAccount.
type OAuth2Credentials struct {
	ClientID         string                 `json:"client_id"`
	ClientSecret     string                 `json:"client_secret"`
	Scope            string                 `json:"scope"`
	AccessToken      string                 `json:"access_token"`
	TokenType        string                 `json:"token_type,omitempty"`
	ExpiresAt        *int64                 `json:"expires_at,omitempty"`
	RefreshToken     string                 `json:"refresh_token,omitempty"`
	RawTokenResponse map[string]interface{} `json:"raw_token_response,omitempty"`
}

// Expired reports whether the access token has expired as of now (unix
// seconds). An unset ExpiresAt never expires (spec §4.5 Refresh step 1).
func (c OAuth2Credentials) Expired(nowUnix int64) bool {
	return c.ExpiresAt != nil && *c.ExpiresAt < nowUnix
}

// APIKeyCredentials is the API-key secret persisted for a LinkedAccount or
// an App's default_security_credentials_by_scheme.
type APIKeyCredentials struct {
	SecretKey string `json:"secret_key"`
}

// Empty reports whether the credential carries no usable secret.
func (c APIKeyCredentials) Empty() bool {
	return c.SecretKey == ""
}

// NoAuthCredentials carries no fields.
type NoAuthCredentials struct{}

// EncryptedFields lists, per scheme kind, the document field names the
// credential codec MUST encrypt (spec §3 invariant 6). Order does not
// matter; presence does.
var EncryptedFields = map[securityscheme.Kind][]string{
	securityscheme.KindOAuth2: {"client_secret", "access_token", "refresh_token", "raw_token_response"},
	securityscheme.KindAPIKey: {"secret_key"},
	securityscheme.KindNoAuth: {},
}

// Credentials is the tagged variant consumed by the resolver and
// executors, discriminated by Kind (spec §9 "Polymorphic credentials").
type Credentials struct {
	Kind   securityscheme.Kind
	OAuth2 *OAuth2Credentials
	APIKey *APIKeyCredentials
}

// Validate checks that the populated branch matches Kind.
func (c Credentials) Validate() error {
	switch c.Kind {
	case securityscheme.KindOAuth2:
		if c.OAuth2 == nil {
			return fmt.Errorf("credentials kind=oauth2 missing oauth2 payload")
		}
	case securityscheme.KindAPIKey:
		if c.APIKey == nil {
			return fmt.Errorf("credentials kind=api_key missing api_key payload")
		}
	case securityscheme.KindNoAuth:
	default:
		return fmt.Errorf("unknown credentials kind %q", c.Kind)
	}
	return nil
}

// MarshalDoc serializes the active branch to a generic JSON document (the
// shape the codec operates on), tagging it with "kind" for round-tripping.
func (c Credentials) MarshalDoc() (map[string]interface{}, error) {
	var raw []byte
	var err error
	switch c.Kind {
	case securityscheme.KindOAuth2:
		raw, err = json.Marshal(c.OAuth2)
	case securityscheme.KindAPIKey:
		raw, err = json.Marshal(c.APIKey)
	case securityscheme.KindNoAuth:
		raw = []byte(`{}`)
	default:
		return nil, fmt.Errorf("unknown credentials kind %q", c.Kind)
	}
	if err != nil {
		return nil, err
	}
	doc := map[string]interface{}{}
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, err
	}
	doc["kind"] = string(c.Kind)
	return doc, nil
}

// UnmarshalDoc parses a generic JSON document into Credentials of the given
// kind. A "kind" field inside doc is not consulted.
func UnmarshalDoc(kind securityscheme.Kind, doc map[string]interface{}) (Credentials, error) {
	raw, err := json.Marshal(doc)
	if err != nil {
		return Credentials{}, err
	}
	creds := Credentials{Kind: kind}
	switch kind {
	case securityscheme.KindOAuth2:
		var c OAuth2Credentials
		if err := json.Unmarshal(raw, &c); err != nil {
			return Credentials{}, err
		}
		creds.OAuth2 = &c
	case securityscheme.KindAPIKey:
		var c APIKeyCredentials
		if err := json.Unmarshal(raw, &c); err != nil {
			return Credentials{}, err
		}
		creds.APIKey = &c
	case securityscheme.KindNoAuth:
	default:
		return Credentials{}, fmt.Errorf("unknown credentials kind %q", kind)
	}
	return creds, nil
}
