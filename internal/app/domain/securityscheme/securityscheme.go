// Package securityscheme models the authentication shapes an App can offer
// (spec §3 "Credential shapes") as a tagged variant, per spec §9's
// "Polymorphic credentials" design note: the resolver and executors switch
// on Kind rather than performing type assertions.
package securityscheme

import "fmt"

// Kind discriminates a security scheme / credential variant.
type Kind string

const (
	KindOAuth2 Kind = "oauth2"
	KindAPIKey Kind = "api_key"
	KindNoAuth Kind = "no_auth"
)

// Location names the HTTP bucket a credential is injected into.
type Location string

const (
	LocationHeader Location = "header"
	LocationQuery  Location = "query"
	LocationCookie Location = "cookie"
)

// OAuth2Scheme is the App-level OAuth2 configuration (spec §4.5).
type OAuth2Scheme struct {
	ClientID              string `json:"client_id"`
	ClientSecret          string `json:"client_secret"`
	Scope                 string `json:"scope"`
	AuthorizeURL          string `json:"authorize_url"`
	AccessTokenURL        string `json:"access_token_url"`
	RefreshTokenURL       string `json:"refresh_token_url"`
	TokenEndpointAuthMode string `json:"token_endpoint_auth_method,omitempty"`
}

// Override applies non-zero fields from o onto a copy of base, field by
// field, matching spec §4.5 step 1 ("override wins field-by-field").
func (base OAuth2Scheme) Override(o OAuth2Scheme) OAuth2Scheme {
	merged := base
	if o.ClientID != "" {
		merged.ClientID = o.ClientID
	}
	if o.ClientSecret != "" {
		merged.ClientSecret = o.ClientSecret
	}
	if o.Scope != "" {
		merged.Scope = o.Scope
	}
	if o.AuthorizeURL != "" {
		merged.AuthorizeURL = o.AuthorizeURL
	}
	if o.AccessTokenURL != "" {
		merged.AccessTokenURL = o.AccessTokenURL
	}
	if o.RefreshTokenURL != "" {
		merged.RefreshTokenURL = o.RefreshTokenURL
	}
	if o.TokenEndpointAuthMode != "" {
		merged.TokenEndpointAuthMode = o.TokenEndpointAuthMode
	}
	return merged
}

// APIKeyScheme is the App-level API-key injection configuration.
type APIKeyScheme struct {
	Location Location `json:"location"`
	Name     string   `json:"name"`
	Prefix   string   `json:"prefix,omitempty"`
}

// Scheme is a tagged variant over the three supported security schemes.
type Scheme struct {
	Kind   Kind          `json:"kind"`
	OAuth2 *OAuth2Scheme `json:"oauth2,omitempty"`
	APIKey *APIKeyScheme `json:"api_key,omitempty"`
}

// Validate checks that the populated branch matches Kind.
func (s Scheme) Validate() error {
	switch s.Kind {
	case KindOAuth2:
		if s.OAuth2 == nil {
			return fmt.Errorf("security scheme kind=oauth2 missing oauth2 config")
		}
	case KindAPIKey:
		if s.APIKey == nil {
			return fmt.Errorf("security scheme kind=api_key missing api_key config")
		}
	case KindNoAuth:
		// no sub-config
	default:
		return fmt.Errorf("unknown security scheme kind %q", s.Kind)
	}
	return nil
}
