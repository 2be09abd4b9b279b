package httpapi

import (
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"github.com/r3e-network/agentcp/internal/apierrors"
	"github.com/r3e-network/agentcp/internal/app/domain/appconfig"
	"github.com/r3e-network/agentcp/internal/app/domain/credential"
	"github.com/r3e-network/agentcp/internal/app/domain/linkedaccount"
	"github.com/r3e-network/agentcp/internal/app/domain/securityscheme"
	"github.com/r3e-network/agentcp/internal/app/oauth2"
	"github.com/r3e-network/agentcp/internal/app/services/controlplane"
)

// adminServer holds the bearer-JWT-authenticated management handlers
// (spec §6 admin/dashboard routes): org-scoped CRUD over every entity plus
// the OAuth2 linking flow.
type adminServer struct {
	svc        *controlplane.Service
	oauth      *oauth2.Manager
	oauthRedirectBase string
}

func pathVar(r *http.Request, name string) string { return mux.Vars(r)[name] }

func pageParams(r *http.Request) (offset, limit int) {
	q := r.URL.Query()
	offset, _ = strconv.Atoi(q.Get("offset"))
	limit, _ = strconv.Atoi(q.Get("limit"))
	return
}

// --- AppConfigurations ---------------------------------------------------

type createAppConfigurationRequest struct {
	ProjectID           string                       `json:"project_id"`
	AppName             string                       `json:"app_name"`
	SecurityScheme      securityscheme.Kind          `json:"security_scheme"`
	OAuth2Override      *securityscheme.OAuth2Scheme `json:"oauth2_override,omitempty"`
	AllFunctionsEnabled bool                         `json:"all_functions_enabled"`
	EnabledFunctions    []string                     `json:"enabled_functions,omitempty"`
}

func (a *adminServer) handleCreateAppConfiguration(w http.ResponseWriter, r *http.Request) {
	var req createAppConfigurationRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	cfg := appconfig.AppConfiguration{
		ProjectID:           req.ProjectID,
		AppName:             req.AppName,
		SecurityScheme:      req.SecurityScheme,
		OAuth2Override:      req.OAuth2Override,
		Enabled:             true,
		AllFunctionsEnabled: req.AllFunctionsEnabled,
		EnabledFunctions:    req.EnabledFunctions,
	}
	created, err := a.svc.CreateAppConfiguration(r.Context(), orgIDFromContext(r.Context()), cfg)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, created)
}

func (a *adminServer) handleListAppConfigurations(w http.ResponseWriter, r *http.Request) {
	offset, limit := pageParams(r)
	results, err := a.svc.ListAppConfigurations(r.Context(), orgIDFromContext(r.Context()), pathVar(r, "projectID"), offset, limit)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, results)
}

func (a *adminServer) handleGetAppConfiguration(w http.ResponseWriter, r *http.Request) {
	result, err := a.svc.GetAppConfiguration(r.Context(), orgIDFromContext(r.Context()), pathVar(r, "projectID"), pathVar(r, "appName"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

type setEnabledRequest struct {
	Enabled bool `json:"enabled"`
}

func (a *adminServer) handleSetAppConfigurationEnabled(w http.ResponseWriter, r *http.Request) {
	var req setEnabledRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	result, err := a.svc.SetAppConfigurationEnabled(r.Context(), orgIDFromContext(r.Context()), pathVar(r, "projectID"), pathVar(r, "appName"), req.Enabled)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (a *adminServer) handleDeleteAppConfiguration(w http.ResponseWriter, r *http.Request) {
	err := a.svc.DeleteAppConfiguration(r.Context(), orgIDFromContext(r.Context()), pathVar(r, "projectID"), pathVar(r, "appName"))
	if err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// --- LinkedAccounts -------------------------------------------------------

type createLinkedAccountRequest struct {
	ProjectID            string                 `json:"project_id"`
	AppName              string                 `json:"app_name"`
	LinkedAccountOwnerID string                 `json:"linked_account_owner_id"`
	Credentials          map[string]interface{} `json:"credentials,omitempty"`
}

// handleCreateLinkedAccountAPIKey backs
// POST /linked-accounts/api-key (spec §6: API-key-auth LinkedAccount).
func (a *adminServer) handleCreateLinkedAccountAPIKey(w http.ResponseWriter, r *http.Request) {
	var req createLinkedAccountRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	la := linkedaccount.LinkedAccount{
		ProjectID:            req.ProjectID,
		AppName:              req.AppName,
		LinkedAccountOwnerID: req.LinkedAccountOwnerID,
		Enabled:              true,
	}
	created, err := a.svc.CreateLinkedAccount(r.Context(), orgIDFromContext(r.Context()), la, req.Credentials)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, created)
}

// handleCreateLinkedAccountNoAuth backs POST /linked-accounts/no-auth, and
// also covers the "use the app's default credentials" case when the caller
// omits credentials entirely.
func (a *adminServer) handleCreateLinkedAccountNoAuth(w http.ResponseWriter, r *http.Request) {
	var req createLinkedAccountRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	la := linkedaccount.LinkedAccount{
		ProjectID:            req.ProjectID,
		AppName:              req.AppName,
		LinkedAccountOwnerID: req.LinkedAccountOwnerID,
		Enabled:              true,
	}
	created, err := a.svc.CreateLinkedAccount(r.Context(), orgIDFromContext(r.Context()), la, nil)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, created)
}

func (a *adminServer) handleListLinkedAccounts(w http.ResponseWriter, r *http.Request) {
	offset, limit := pageParams(r)
	results, err := a.svc.ListLinkedAccounts(r.Context(), orgIDFromContext(r.Context()), pathVar(r, "projectID"), offset, limit)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, results)
}

func (a *adminServer) handleSetLinkedAccountEnabled(w http.ResponseWriter, r *http.Request) {
	var req setEnabledRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	result, err := a.svc.SetLinkedAccountEnabled(r.Context(), orgIDFromContext(r.Context()), pathVar(r, "projectID"), pathVar(r, "appName"), pathVar(r, "ownerID"), req.Enabled)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (a *adminServer) handleDeleteLinkedAccount(w http.ResponseWriter, r *http.Request) {
	err := a.svc.DeleteLinkedAccount(r.Context(), orgIDFromContext(r.Context()), pathVar(r, "projectID"), pathVar(r, "appName"), pathVar(r, "ownerID"))
	if err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// --- OAuth2 linking flow (spec §4.5) --------------------------------------

// handleOAuth2LinkStart backs GET /linked-accounts/oauth2: resolves the
// App's effective OAuth2Scheme (AppConfiguration override wins field by
// field) and returns the provider's consent-screen URL as {"url": ...}.
func (a *adminServer) handleOAuth2LinkStart(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	projectID, appName, ownerID := q.Get("project_id"), q.Get("app_name"), q.Get("linked_account_owner_id")
	orgID := orgIDFromContext(r.Context())

	cfg, err := a.svc.GetAppConfiguration(r.Context(), orgID, projectID, appName)
	if err != nil {
		writeError(w, err)
		return
	}
	if cfg.SecurityScheme != securityscheme.KindOAuth2 {
		writeError(w, apierrors.New(apierrors.CodeAppSecuritySchemeNotSupported, "app configuration is not oauth2"))
		return
	}
	owningApp, err := a.svc.GetApp(r.Context(), appName, false, false)
	if err != nil {
		writeError(w, err)
		return
	}
	scheme := owningApp.SecuritySchemes[securityscheme.KindOAuth2]
	effective := *scheme.OAuth2
	if cfg.OAuth2Override != nil {
		effective = effective.Override(*cfg.OAuth2Override)
	}

	state := oauth2.State{
		OrgID:                      orgID,
		ProjectID:                  projectID,
		AppName:                    appName,
		LinkedAccountOwnerID:       ownerID,
		AfterOAuth2LinkRedirectURL: q.Get("after_oauth2_link_redirect_url"),
	}
	authURL, err := a.oauth.CreateAuthorizationURL(appName, effective, a.oauthRedirectBase, state)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"url": authURL.URL})
}

// handleOAuth2LinkCallback backs GET /linked-accounts/oauth2/callback: the
// provider redirect target. It exchanges the code, persists the resulting
// grant as a new LinkedAccount, and redirects the browser to the
// after-link URL when the link-start request supplied one; otherwise it
// returns the new LinkedAccount as JSON.
func (a *adminServer) handleOAuth2LinkCallback(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	state, err := a.oauth.VerifyState(q.Get("state"))
	if err != nil {
		writeError(w, err)
		return
	}
	cfg, err := a.svc.GetAppConfiguration(r.Context(), state.OrgID, state.ProjectID, state.AppName)
	if err != nil {
		writeError(w, err)
		return
	}
	owningApp, err := a.svc.GetApp(r.Context(), state.AppName, false, false)
	if err != nil {
		writeError(w, err)
		return
	}
	scheme := owningApp.SecuritySchemes[securityscheme.KindOAuth2]
	effective := *scheme.OAuth2
	if cfg.OAuth2Override != nil {
		effective = effective.Override(*cfg.OAuth2Override)
	}
	if effective.ClientID != state.ClientID {
		writeError(w, apierrors.New(apierrors.CodeOAuth2Error, "oauth2 configuration changed since the authorization request was issued"))
		return
	}

	token, err := a.oauth.FetchToken(r.Context(), state.AppName, effective, a.oauthRedirectBase, q.Get("code"), state.CodeVerifier)
	if err != nil {
		writeError(w, err)
		return
	}

	doc := credential.OAuth2Credentials{
		ClientID:         effective.ClientID,
		ClientSecret:     effective.ClientSecret,
		Scope:            token.Scope,
		AccessToken:      token.AccessToken,
		TokenType:        token.TokenType,
		ExpiresAt:        token.ExpiresAt,
		RefreshToken:     token.RefreshToken,
		RawTokenResponse: token.Raw,
	}
	raw := map[string]interface{}{
		"client_id":          doc.ClientID,
		"client_secret":      doc.ClientSecret,
		"scope":              doc.Scope,
		"access_token":       doc.AccessToken,
		"token_type":         doc.TokenType,
		"refresh_token":      doc.RefreshToken,
		"raw_token_response": doc.RawTokenResponse,
	}
	if doc.ExpiresAt != nil {
		raw["expires_at"] = *doc.ExpiresAt
	}

	la := linkedaccount.LinkedAccount{
		ProjectID:            state.ProjectID,
		AppName:              state.AppName,
		LinkedAccountOwnerID: state.LinkedAccountOwnerID,
		Enabled:              true,
	}
	created, err := a.svc.CreateLinkedAccount(r.Context(), state.OrgID, la, raw)
	if err != nil {
		writeError(w, err)
		return
	}
	if state.AfterOAuth2LinkRedirectURL != "" {
		http.Redirect(w, r, state.AfterOAuth2LinkRedirectURL, http.StatusFound)
		return
	}
	writeJSON(w, http.StatusCreated, created)
}
