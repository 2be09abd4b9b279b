package oauth2

// ProviderQuirk captures the small, provider-specific deviations from the
// plain authorization-code-with-PKCE flow that
// original_source/backend/aci/server/oauth2_manager.py hardcodes as
// if/elif branches on app name. Spec §9 Open Question 3 asks whether
// these belong in code or data; this project resolves it as data (see
// DESIGN.md), so adding a provider quirk never touches the orchestrator.
type ProviderQuirk struct {
	// AuthorizeExtraParams are appended to the authorization URL's query
	// string verbatim (e.g. Reddit's "duration=permanent").
	AuthorizeExtraParams map[string]string

	// RewriteScopeParam, if non-empty, renames the authorization URL's
	// "scope" query parameter to this name (Slack's OAuth 2.0 flow
	// separates bot scopes in "scope" from user scopes in "user_scope").
	RewriteScopeParam string

	// UnwrapAuthedUser, when true, promotes the nested "authed_user"
	// object's access_token/scope up to the top level of the token
	// response before it is persisted (Slack's token exchange nests the
	// user-scoped grant under "authed_user").
	UnwrapAuthedUser bool
}

// Quirks maps an App name to its provider-specific deviations. Absent
// entries get the plain flow.
var Quirks = map[string]ProviderQuirk{
	"REDDIT": {
		AuthorizeExtraParams: map[string]string{"duration": "permanent"},
	},
	"SLACK": {
		RewriteScopeParam: "user_scope",
		UnwrapAuthedUser:  true,
	},
}
