package oauth2

import (
	"context"

	"github.com/r3e-network/agentcp/internal/app/domain/securityscheme"
	"github.com/r3e-network/agentcp/internal/app/services/credentials"
)

// CredentialRefresher adapts Manager to services/credentials.TokenRefresher,
// translating the HTTP-facing TokenResponse into the resolver's narrower
// RefreshedToken shape so the resolver has no dependency on this package's
// golang.org/x/oauth2 plumbing.
type CredentialRefresher struct {
	Manager *Manager
}

// RefreshToken implements credentials.TokenRefresher.
func (c CredentialRefresher) RefreshToken(ctx context.Context, appName string, scheme securityscheme.OAuth2Scheme, refreshToken string) (credentials.RefreshedToken, error) {
	tok, err := c.Manager.RefreshToken(ctx, appName, scheme, refreshToken)
	if err != nil {
		return credentials.RefreshedToken{}, err
	}
	return credentials.RefreshedToken{
		AccessToken:  tok.AccessToken,
		TokenType:    tok.TokenType,
		RefreshToken: tok.RefreshToken,
		Scope:        tok.Scope,
		ExpiresAt:    tok.ExpiresAt,
		Raw:          tok.Raw,
	}, nil
}
