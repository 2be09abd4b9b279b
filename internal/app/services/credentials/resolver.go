// Package credentials implements the credential resolver (spec §4.5,
// §4.6): given a LinkedAccount (falling back to the owning App's
// defaults), decrypt its designated fields, refresh an expired OAuth2
// grant, and hand back the concrete credential.Credentials the execution
// engine injects into a downstream call.
package credentials

import (
	"context"
	"time"

	"github.com/r3e-network/agentcp/internal/apierrors"
	"github.com/r3e-network/agentcp/internal/app/domain/app"
	"github.com/r3e-network/agentcp/internal/app/domain/appconfig"
	"github.com/r3e-network/agentcp/internal/app/domain/credential"
	"github.com/r3e-network/agentcp/internal/app/domain/linkedaccount"
	"github.com/r3e-network/agentcp/internal/app/domain/securityscheme"
)

// ErrAPIKeyCredentialsUnusable is the single error kind returned whenever
// the resolved credential document is empty, whether because the linked
// account carries no credentials of its own and the App defines no
// default, or because both are present but empty (spec §9 Open Question
// 2: one shared error label rather than two).
var ErrAPIKeyCredentialsUnusable = apierrors.New(apierrors.CodeAppConfigurationDisabled, "no usable credentials for this linked account or app default")

// Codec is the subset of credentialcodec.Codec the resolver depends on.
type Codec interface {
	DecryptDoc(subjectID string, kind securityscheme.Kind, doc map[string]interface{}) (map[string]interface{}, error)
	EncryptDoc(subjectID string, kind securityscheme.Kind, doc map[string]interface{}) (map[string]interface{}, error)
}

// TokenRefresher is the subset of oauth2.Manager the resolver needs to
// refresh an expired grant.
type TokenRefresher interface {
	RefreshToken(ctx context.Context, appName string, scheme securityscheme.OAuth2Scheme, refreshToken string) (RefreshedToken, error)
}

// RefreshedToken is the normalized shape a TokenRefresher returns
// (mirrors oauth2.TokenResponse without importing the oauth2 package
// directly, so this package has no dependency on the HTTP-facing
// authorize/callback machinery).
type RefreshedToken struct {
	AccessToken  string
	TokenType    string
	RefreshToken string
	Scope        string
	ExpiresAt    *int64
	Raw          map[string]interface{}
}

// Store is the subset of storage.Store the resolver needs to persist a
// refreshed grant.
type Store interface {
	UpdateLinkedAccount(ctx context.Context, la linkedaccount.LinkedAccount) error
}

// Resolver resolves a LinkedAccount's effective, decrypted credentials.
type Resolver struct {
	codec     Codec
	refresher TokenRefresher
	store     Store
	now       func() time.Time
}

// New constructs a Resolver.
func New(codec Codec, refresher TokenRefresher, store Store) *Resolver {
	return &Resolver{codec: codec, refresher: refresher, store: store, now: time.Now}
}

// Resolve returns the LinkedAccount's effective credentials, refreshing
// an expired OAuth2 token in place when necessary (spec §4.5 step 1:
// override wins field-by-field between the AppConfiguration's OAuth2
// override and the App's own scheme).
func (r *Resolver) Resolve(ctx context.Context, a app.App, cfg appconfig.AppConfiguration, la linkedaccount.LinkedAccount) (credential.Credentials, error) {
	rawDoc := la.SecurityCredentialsRaw
	subjectID := la.ID
	if la.UsesAppDefaults() {
		rawDoc = a.DefaultSecurityCredentialsRaw[cfg.SecurityScheme]
		subjectID = a.Name
	}
	if len(rawDoc) == 0 {
		return credential.Credentials{}, ErrAPIKeyCredentialsUnusable
	}

	decrypted, err := r.codec.DecryptDoc(subjectID, cfg.SecurityScheme, rawDoc)
	if err != nil {
		return credential.Credentials{}, apierrors.Wrap(apierrors.CodeOAuth2Error, "failed to decrypt credentials", err)
	}
	creds, err := credential.UnmarshalDoc(cfg.SecurityScheme, decrypted)
	if err != nil {
		return credential.Credentials{}, apierrors.Wrap(apierrors.CodeOAuth2Error, "malformed credential document", err)
	}

	if creds.Kind != securityscheme.KindOAuth2 || creds.OAuth2 == nil {
		return creds, nil
	}
	if !creds.OAuth2.Expired(r.now().Unix()) {
		return creds, nil
	}
	if creds.OAuth2.RefreshToken == "" {
		return creds, nil
	}

	scheme := a.SecuritySchemes[securityscheme.KindOAuth2]
	effective := *scheme.OAuth2
	if cfg.OAuth2Override != nil {
		effective = effective.Override(*cfg.OAuth2Override)
	}

	refreshed, err := r.refresher.RefreshToken(ctx, a.Name, effective, creds.OAuth2.RefreshToken)
	if err != nil {
		return credential.Credentials{}, err
	}
	creds.OAuth2.AccessToken = refreshed.AccessToken
	creds.OAuth2.TokenType = refreshed.TokenType
	creds.OAuth2.ExpiresAt = refreshed.ExpiresAt
	creds.OAuth2.RawTokenResponse = refreshed.Raw
	if refreshed.RefreshToken != "" {
		creds.OAuth2.RefreshToken = refreshed.RefreshToken
	}
	if refreshed.Scope != "" {
		creds.OAuth2.Scope = refreshed.Scope
	}

	// A refreshed App-default grant has no per-linked-account row to persist
	// back into; only persist when the linked account owns its own
	// credentials (spec §4.5 step 4).
	if !la.UsesAppDefaults() {
		doc, err := creds.MarshalDoc()
		if err != nil {
			return credential.Credentials{}, err
		}
		encrypted, err := r.codec.EncryptDoc(subjectID, cfg.SecurityScheme, doc)
		if err != nil {
			return credential.Credentials{}, err
		}
		la.SecurityCredentialsRaw = encrypted
		if err := r.store.UpdateLinkedAccount(ctx, la); err != nil {
			return credential.Credentials{}, err
		}
	}

	return creds, nil
}
