package httpapi

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/mux"

	"github.com/r3e-network/agentcp/internal/app/auth"
	"github.com/r3e-network/agentcp/internal/app/metrics"
	"github.com/r3e-network/agentcp/internal/app/middleware"
	"github.com/r3e-network/agentcp/internal/app/oauth2"
	"github.com/r3e-network/agentcp/internal/app/services/controlplane"
	"github.com/r3e-network/agentcp/internal/app/system"
)

// Dependencies are every collaborator cmd/agentcpd/main.go constructs and
// hands to NewRouter.
type Dependencies struct {
	Service           *controlplane.Service
	OAuth2            *oauth2.Manager
	OAuth2RedirectBase string
	JWT               auth.JWTManager
	RateLimiter       *middleware.RateLimiter
	Health            *system.Checker
}

// NewRouter assembles the full HTTP surface (spec §6): go-chi/chi/v5 for
// the X-API-KEY-authenticated agent-facing routes (a flat, high-traffic
// surface chi's radix-tree router suits well), gorilla/mux for the
// bearer-JWT admin surface (nested resource routes under /admin, mux's
// named-subrouter style the teacher's own admin surface used). Both are
// wrapped by the same rate limiter and metrics instrumentation.
func NewRouter(deps Dependencies) http.Handler {
	top := http.NewServeMux()

	top.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		report := deps.Health.Run(r.Context())
		status := http.StatusOK
		if !report.Healthy {
			status = http.StatusServiceUnavailable
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_ = json.NewEncoder(w).Encode(report)
	})
	top.Handle("/metrics", metrics.Handler())

	agentRouter := newAgentRouter(deps.Service)
	top.Handle("/apps/", agentRouter)
	top.Handle("/functions/", agentRouter)

	top.Handle("/admin/", http.StripPrefix("/admin", newAdminRouter(deps)))

	var handler http.Handler = top
	handler = metrics.InstrumentHandler(handler)
	if deps.RateLimiter != nil {
		handler = deps.RateLimiter.Handler(handler)
	}
	return handler
}

func newAgentRouter(svc *controlplane.Service) http.Handler {
	a := &agentServer{svc: svc}
	r := chi.NewRouter()
	r.Get("/apps/search", a.handleSearchApps)
	r.Get("/apps/{name}", func(w http.ResponseWriter, r *http.Request) {
		a.handleGetApp(w, r, chi.URLParam(r, "name"))
	})
	r.Get("/functions/search", a.handleSearchFunctions)
	r.Get("/functions/{name}/definition", func(w http.ResponseWriter, r *http.Request) {
		a.handleFunctionDefinition(w, r, chi.URLParam(r, "name"))
	})
	r.Post("/functions/{name}/execute", func(w http.ResponseWriter, r *http.Request) {
		a.handleExecuteFunction(w, r, chi.URLParam(r, "name"))
	})
	return r
}

// newAdminRouter builds the bearer-JWT-authenticated management surface
// (spec §6's "user-facing admin routes"), nested project -> agent and
// project -> app-configuration -> linked-account resource routes.
func newAdminRouter(deps Dependencies) http.Handler {
	a := &adminServer{svc: deps.Service, oauth: deps.OAuth2, oauthRedirectBase: deps.OAuth2RedirectBase}
	r := mux.NewRouter()
	r.Use(adminAuth(deps.JWT))

	r.HandleFunc("/projects", a.handleCreateProject).Methods(http.MethodPost)
	r.HandleFunc("/projects", a.handleListProjects).Methods(http.MethodGet)
	r.HandleFunc("/projects/{projectID}", a.handleGetProject).Methods(http.MethodGet)
	r.HandleFunc("/projects/{projectID}", a.handleDeleteProject).Methods(http.MethodDelete)

	r.HandleFunc("/projects/{projectID}/agents", a.handleCreateAgent).Methods(http.MethodPost)
	r.HandleFunc("/projects/{projectID}/agents", a.handleListAgents).Methods(http.MethodGet)
	r.HandleFunc("/projects/{projectID}/agents/{agentID}", a.handleGetAgent).Methods(http.MethodGet)
	r.HandleFunc("/projects/{projectID}/agents/{agentID}", a.handleDeleteAgent).Methods(http.MethodDelete)
	r.HandleFunc("/projects/{projectID}/agents/{agentID}/allowed-apps", a.handleUpdateAgentAllowedApps).Methods(http.MethodPatch)
	r.HandleFunc("/projects/{projectID}/agents/{agentID}/custom-instructions", a.handleSetCustomInstruction).Methods(http.MethodPatch)
	r.HandleFunc("/projects/{projectID}/agents/{agentID}/api-keys", a.handleIssueAPIKey).Methods(http.MethodPost)

	r.HandleFunc("/apps", a.handleCreateApp).Methods(http.MethodPost)
	r.HandleFunc("/apps", a.handleListApps).Methods(http.MethodGet)
	r.HandleFunc("/apps/{appName}", a.handleGetApp).Methods(http.MethodGet)
	r.HandleFunc("/apps/{appName}", a.handleDeleteApp).Methods(http.MethodDelete)
	r.HandleFunc("/apps/{appName}/rename", a.handleRenameApp).Methods(http.MethodPost)
	r.HandleFunc("/apps/{appName}/default-credentials", a.handleSetAppDefaultCredentials).Methods(http.MethodPut)
	r.HandleFunc("/apps/{appName}/functions", a.handleCreateFunction).Methods(http.MethodPost)
	r.HandleFunc("/apps/{appName}/functions", a.handleListFunctions).Methods(http.MethodGet)
	r.HandleFunc("/functions/{functionName}", a.handleGetFunction).Methods(http.MethodGet)
	r.HandleFunc("/functions/{functionName}", a.handleDeleteFunction).Methods(http.MethodDelete)

	r.HandleFunc("/app-configurations", a.handleCreateAppConfiguration).Methods(http.MethodPost)
	r.HandleFunc("/projects/{projectID}/app-configurations", a.handleListAppConfigurations).Methods(http.MethodGet)
	r.HandleFunc("/projects/{projectID}/app-configurations/{appName}", a.handleGetAppConfiguration).Methods(http.MethodGet)
	r.HandleFunc("/projects/{projectID}/app-configurations/{appName}", a.handleSetAppConfigurationEnabled).Methods(http.MethodPatch)
	r.HandleFunc("/projects/{projectID}/app-configurations/{appName}", a.handleDeleteAppConfiguration).Methods(http.MethodDelete)

	r.HandleFunc("/linked-accounts/api-key", a.handleCreateLinkedAccountAPIKey).Methods(http.MethodPost)
	r.HandleFunc("/linked-accounts/no-auth", a.handleCreateLinkedAccountNoAuth).Methods(http.MethodPost)
	r.HandleFunc("/linked-accounts/default", a.handleCreateLinkedAccountNoAuth).Methods(http.MethodPost)
	r.HandleFunc("/linked-accounts/oauth2", a.handleOAuth2LinkStart).Methods(http.MethodGet)
	r.HandleFunc("/linked-accounts/oauth2/callback", a.handleOAuth2LinkCallback).Methods(http.MethodGet)
	r.HandleFunc("/projects/{projectID}/linked-accounts", a.handleListLinkedAccounts).Methods(http.MethodGet)
	r.HandleFunc("/projects/{projectID}/app-configurations/{appName}/linked-accounts/{ownerID}", a.handleSetLinkedAccountEnabled).Methods(http.MethodPatch)
	r.HandleFunc("/projects/{projectID}/app-configurations/{appName}/linked-accounts/{ownerID}", a.handleDeleteLinkedAccount).Methods(http.MethodDelete)

	return r
}
