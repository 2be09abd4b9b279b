package credentials

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/r3e-network/agentcp/internal/app/domain/app"
	"github.com/r3e-network/agentcp/internal/app/domain/appconfig"
	"github.com/r3e-network/agentcp/internal/app/domain/linkedaccount"
	"github.com/r3e-network/agentcp/internal/app/domain/securityscheme"
	"github.com/r3e-network/agentcp/internal/app/storage/memory"
)

// passthroughCodec treats the document as already "decrypted" — fine for
// exercising the resolver's branching without a real cipher.
type passthroughCodec struct{}

func (passthroughCodec) DecryptDoc(_ string, _ securityscheme.Kind, doc map[string]interface{}) (map[string]interface{}, error) {
	return doc, nil
}

func (passthroughCodec) EncryptDoc(_ string, _ securityscheme.Kind, doc map[string]interface{}) (map[string]interface{}, error) {
	return doc, nil
}

type stubRefresher struct {
	token RefreshedToken
	err   error
	calls int
}

func (s *stubRefresher) RefreshToken(_ context.Context, _ string, _ securityscheme.OAuth2Scheme, _ string) (RefreshedToken, error) {
	s.calls++
	return s.token, s.err
}

func expiresAt(d time.Duration) *int64 {
	v := time.Now().Add(d).Unix()
	return &v
}

func TestResolve_NoAuthPassesThrough(t *testing.T) {
	resolver := New(passthroughCodec{}, &stubRefresher{}, memory.New())
	a := app.App{Name: "WEATHER"}
	cfg := appconfig.AppConfiguration{SecurityScheme: securityscheme.KindNoAuth}
	la := linkedaccount.LinkedAccount{
		ID:                     "la-1",
		SecurityScheme:         securityscheme.KindNoAuth,
		SecurityCredentialsRaw: map[string]interface{}{"kind": "no_auth"},
	}

	creds, err := resolver.Resolve(context.Background(), a, cfg, la)
	require.NoError(t, err)
	assert.Equal(t, securityscheme.KindNoAuth, creds.Kind)
}

func TestResolve_FallsBackToAppDefaults(t *testing.T) {
	resolver := New(passthroughCodec{}, &stubRefresher{}, memory.New())
	a := app.App{
		Name: "WEATHER",
		DefaultSecurityCredentialsRaw: map[securityscheme.Kind]map[string]interface{}{
			securityscheme.KindAPIKey: {"kind": "api_key", "secret_key": "default-secret"},
		},
	}
	cfg := appconfig.AppConfiguration{SecurityScheme: securityscheme.KindAPIKey}
	la := linkedaccount.LinkedAccount{ID: "la-1", SecurityScheme: securityscheme.KindAPIKey}
	require.True(t, la.UsesAppDefaults())

	creds, err := resolver.Resolve(context.Background(), a, cfg, la)
	require.NoError(t, err)
	require.NotNil(t, creds.APIKey)
	assert.Equal(t, "default-secret", creds.APIKey.SecretKey)
}

func TestResolve_RejectsEmptyCredentials(t *testing.T) {
	resolver := New(passthroughCodec{}, &stubRefresher{}, memory.New())
	a := app.App{Name: "WEATHER"}
	cfg := appconfig.AppConfiguration{SecurityScheme: securityscheme.KindAPIKey}
	la := linkedaccount.LinkedAccount{ID: "la-1", SecurityScheme: securityscheme.KindAPIKey}

	_, err := resolver.Resolve(context.Background(), a, cfg, la)
	require.Error(t, err)
	assert.Equal(t, ErrAPIKeyCredentialsUnusable, err)
}

func TestResolve_RefreshesExpiredOAuth2TokenAndPersists(t *testing.T) {
	store := memory.New()
	refresher := &stubRefresher{token: RefreshedToken{AccessToken: "new-token", TokenType: "Bearer", ExpiresAt: expiresAt(time.Hour)}}
	resolver := New(passthroughCodec{}, refresher, store)

	a := app.App{
		Name: "WEATHER",
		SecuritySchemes: map[securityscheme.Kind]securityscheme.Scheme{
			securityscheme.KindOAuth2: {Kind: securityscheme.KindOAuth2, OAuth2: &securityscheme.OAuth2Scheme{}},
		},
	}
	cfg := appconfig.AppConfiguration{SecurityScheme: securityscheme.KindOAuth2}
	la := linkedaccount.LinkedAccount{
		ID:             "la-1",
		ProjectID:      "proj-1",
		AppName:        "WEATHER",
		SecurityScheme: securityscheme.KindOAuth2,
		SecurityCredentialsRaw: map[string]interface{}{
			"kind":          "oauth2",
			"access_token":  "stale-token",
			"refresh_token": "refresh-1",
			"expires_at":    expiresAt(-time.Hour),
		},
	}
	ctx := context.Background()
	_, err := store.CreateLinkedAccount(ctx, la)
	require.NoError(t, err)

	creds, err := resolver.Resolve(ctx, a, cfg, la)
	require.NoError(t, err)
	require.NotNil(t, creds.OAuth2)
	assert.Equal(t, "new-token", creds.OAuth2.AccessToken)
	assert.Equal(t, 1, refresher.calls)

	stored, err := store.GetLinkedAccountByID(ctx, "la-1")
	require.NoError(t, err)
	assert.Equal(t, "new-token", stored.SecurityCredentialsRaw["access_token"])
}

func TestResolve_SkipsRefreshWhenTokenStillValid(t *testing.T) {
	refresher := &stubRefresher{token: RefreshedToken{AccessToken: "should-not-be-used"}}
	resolver := New(passthroughCodec{}, refresher, memory.New())

	a := app.App{Name: "WEATHER"}
	cfg := appconfig.AppConfiguration{SecurityScheme: securityscheme.KindOAuth2}
	la := linkedaccount.LinkedAccount{
		ID:             "la-1",
		SecurityScheme: securityscheme.KindOAuth2,
		SecurityCredentialsRaw: map[string]interface{}{
			"kind":         "oauth2",
			"access_token": "still-fresh",
			"expires_at":   expiresAt(time.Hour),
		},
	}

	creds, err := resolver.Resolve(context.Background(), a, cfg, la)
	require.NoError(t, err)
	assert.Equal(t, "still-fresh", creds.OAuth2.AccessToken)
	assert.Equal(t, 0, refresher.calls)
}
