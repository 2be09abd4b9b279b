// Package oauth2 implements the authorization-code-with-PKCE flow spec
// §4.5 describes, including signed state tokens and provider-specific
// quirks (quirks.go). Grounded step-for-step on
// original_source/backend/aci/server/oauth2_manager.py's OAuth2Manager
// class, translated from authlib's AsyncOAuth2Client onto
// golang.org/x/oauth2 (the Go ecosystem's standard OAuth2 client,
// confirmed present across the retrieved example pack, e.g.
// kagent-dev-kagent and eugener-gandalf).
package oauth2

import (
	"context"
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/url"

	"golang.org/x/oauth2"

	"github.com/r3e-network/agentcp/internal/apierrors"
	"github.com/r3e-network/agentcp/internal/app/domain/securityscheme"
	"github.com/r3e-network/agentcp/internal/crypto"
)

// StateSigner signs and verifies the opaque state parameter round-tripped
// through the provider's authorization redirect, binding it to the
// project/agent/linked-account-owner triple that initiated the flow.
type StateSigner interface {
	HMAC(message string) string
}

var _ StateSigner = (*crypto.Service)(nil)

// State is the payload encoded into the OAuth2 state parameter.
type State struct {
	OrgID                      string `json:"org_id"`
	ProjectID                  string `json:"project_id"`
	AppName                    string `json:"app_name"`
	LinkedAccountOwnerID       string `json:"linked_account_owner_id"`
	ClientID                   string `json:"client_id"`
	CodeVerifier               string `json:"code_verifier"`
	AfterOAuth2LinkRedirectURL string `json:"after_oauth2_link_redirect_url,omitempty"`
}

// Manager drives the authorize/callback/refresh lifecycle for one App's
// OAuth2Scheme.
type Manager struct {
	signer StateSigner
}

// New constructs a Manager.
func New(signer StateSigner) *Manager {
	return &Manager{signer: signer}
}

func (m *Manager) config(scheme securityscheme.OAuth2Scheme, redirectURL string) *oauth2.Config {
	return &oauth2.Config{
		ClientID:     scheme.ClientID,
		ClientSecret: scheme.ClientSecret,
		Scopes:       []string{scheme.Scope},
		RedirectURL:  redirectURL,
		Endpoint: oauth2.Endpoint{
			AuthURL:  scheme.AuthorizeURL,
			TokenURL: scheme.AccessTokenURL,
		},
	}
}

// generateCodeVerifier mirrors oauth2_manager.py's
// generate_code_verifier(length=48): 48 random bytes, base64url encoded.
func generateCodeVerifier() (string, error) {
	buf := make([]byte, 48)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("oauth2: generate code verifier: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}

// AuthorizationURL is the result of CreateAuthorizationURL: the URL to
// redirect the end user to, and the signed state value the callback must
// echo back unmodified.
type AuthorizationURL struct {
	URL   string
	State string
}

// CreateAuthorizationURL builds the provider redirect URL with PKCE
// (S256), applying the App's provider quirk if one is registered (spec
// §4.5 step, §9 Open Question 3).
func (m *Manager) CreateAuthorizationURL(appName string, scheme securityscheme.OAuth2Scheme, redirectURL string, st State) (AuthorizationURL, error) {
	verifier, err := generateCodeVerifier()
	if err != nil {
		return AuthorizationURL{}, err
	}
	st.CodeVerifier = verifier
	// Recorded so the callback can reject if the App's OAuth2Scheme
	// configuration changed between authorize and callback (spec §4.5
	// step 3).
	st.ClientID = scheme.ClientID

	signedState, err := m.signState(st)
	if err != nil {
		return AuthorizationURL{}, err
	}

	cfg := m.config(scheme, redirectURL)
	opts := []oauth2.AuthCodeOption{oauth2.S256ChallengeOption(verifier)}
	quirk := Quirks[appName]
	for k, v := range quirk.AuthorizeExtraParams {
		opts = append(opts, oauth2.SetAuthURLParam(k, v))
	}

	authURL := cfg.AuthCodeURL(signedState, opts...)
	if quirk.RewriteScopeParam != "" {
		authURL, err = rewriteScopeParam(authURL, quirk.RewriteScopeParam)
		if err != nil {
			return AuthorizationURL{}, apierrors.Wrap(apierrors.CodeOAuth2Error, "failed to build authorization url", err)
		}
	}
	return AuthorizationURL{URL: authURL, State: signedState}, nil
}

// rewriteScopeParam renames the "scope" query parameter to newName,
// matching oauth2_manager.py's rewrite_oauth2_authorization_url for
// Slack, whose bot-token scopes live under "scope" but whose user-token
// scopes must be requested via "user_scope".
func rewriteScopeParam(rawURL, newName string) (string, error) {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return "", err
	}
	q := parsed.Query()
	if scope := q.Get("scope"); scope != "" {
		q.Del("scope")
		q.Set(newName, scope)
	}
	parsed.RawQuery = q.Encode()
	return parsed.String(), nil
}

// VerifyState decodes and authenticates a state value the callback
// received, rejecting anything that wasn't signed by this Manager.
func (m *Manager) VerifyState(signedState string) (State, error) {
	parts := splitSigned(signedState)
	if parts == nil {
		return State{}, apierrors.New(apierrors.CodeOAuth2Error, "malformed state parameter")
	}
	payload, mac := parts[0], parts[1]
	expected := m.signer.HMAC(payload)
	if subtle.ConstantTimeCompare([]byte(expected), []byte(mac)) != 1 {
		return State{}, apierrors.New(apierrors.CodeOAuth2Error, "state parameter failed verification")
	}
	raw, err := base64.RawURLEncoding.DecodeString(payload)
	if err != nil {
		return State{}, apierrors.Wrap(apierrors.CodeOAuth2Error, "malformed state payload", err)
	}
	var st State
	if err := json.Unmarshal(raw, &st); err != nil {
		return State{}, apierrors.Wrap(apierrors.CodeOAuth2Error, "malformed state payload", err)
	}
	return st, nil
}

func (m *Manager) signState(st State) (string, error) {
	raw, err := json.Marshal(st)
	if err != nil {
		return "", err
	}
	payload := base64.RawURLEncoding.EncodeToString(raw)
	mac := m.signer.HMAC(payload)
	return payload + "." + mac, nil
}

func splitSigned(s string) []string {
	for i := len(s) - 1; i >= 0; i-- {
		if s[i] == '.' {
			return []string{s[:i], s[i+1:]}
		}
	}
	return nil
}

// TokenResponse is the normalized grant persisted for a LinkedAccount,
// after undoing any provider-specific response shape (spec §4.5 step 3).
type TokenResponse struct {
	AccessToken  string
	TokenType    string
	RefreshToken string
	Scope        string
	ExpiresAt    *int64
	Raw          map[string]interface{}
}

// FetchToken exchanges an authorization code for a token, applying the
// App's provider quirk to the raw response before normalizing it
// (Slack's authed_user unwrap).
func (m *Manager) FetchToken(ctx context.Context, appName string, scheme securityscheme.OAuth2Scheme, redirectURL, code, codeVerifier string) (TokenResponse, error) {
	cfg := m.config(scheme, redirectURL)
	tok, err := cfg.Exchange(ctx, code, oauth2.VerifierOption(codeVerifier))
	if err != nil {
		return TokenResponse{}, apierrors.Wrap(apierrors.CodeOAuth2Error, "token exchange failed", err)
	}
	return m.normalize(appName, tok)
}

// RefreshToken exchanges a refresh token for a fresh access token (spec
// §4.5 Refresh, §9 "credential refresh race": callers accept the benign
// race of two concurrent refreshes both succeeding).
func (m *Manager) RefreshToken(ctx context.Context, appName string, scheme securityscheme.OAuth2Scheme, refreshToken string) (TokenResponse, error) {
	cfg := m.config(scheme, "")
	src := cfg.TokenSource(ctx, &oauth2.Token{RefreshToken: refreshToken})
	tok, err := src.Token()
	if err != nil {
		return TokenResponse{}, apierrors.Wrap(apierrors.CodeOAuth2Error, "token refresh failed", err)
	}
	return m.normalize(appName, tok)
}

func (m *Manager) normalize(appName string, tok *oauth2.Token) (TokenResponse, error) {
	raw := map[string]interface{}{}
	for _, key := range []string{"scope", "authed_user"} {
		if v := tok.Extra(key); v != nil && v != "" {
			raw[key] = v
		}
	}
	raw["access_token"] = tok.AccessToken
	raw["token_type"] = tok.TokenType
	if tok.RefreshToken != "" {
		raw["refresh_token"] = tok.RefreshToken
	}

	quirk := Quirks[appName]
	if quirk.UnwrapAuthedUser {
		if authedUser, ok := raw["authed_user"].(map[string]interface{}); ok {
			if at, ok := authedUser["access_token"].(string); ok {
				tok.AccessToken = at
				raw["access_token"] = at
			}
			if sc, ok := authedUser["scope"].(string); ok {
				raw["scope"] = sc
			}
		}
	}

	resp := TokenResponse{
		AccessToken:  tok.AccessToken,
		TokenType:    tok.TokenType,
		RefreshToken: tok.RefreshToken,
		Raw:          raw,
	}
	if scope, ok := raw["scope"].(string); ok {
		resp.Scope = scope
	}
	if !tok.Expiry.IsZero() {
		expires := tok.Expiry.Unix()
		resp.ExpiresAt = &expires
	}
	return resp, nil
}
