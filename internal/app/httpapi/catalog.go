package httpapi

import (
	"net/http"

	"github.com/r3e-network/agentcp/internal/app/domain/app"
	"github.com/r3e-network/agentcp/internal/app/domain/function"
	"github.com/r3e-network/agentcp/internal/app/domain/securityscheme"
)

// createAppRequest mirrors app.App's caller-settable fields; Embedding and
// the timestamps are computed by the service.
type createAppRequest struct {
	Name            string                                        `json:"name"`
	DisplayName     string                                        `json:"display_name"`
	Provider        string                                        `json:"provider"`
	Version         string                                        `json:"version"`
	Description     string                                        `json:"description"`
	Logo            string                                        `json:"logo"`
	Categories      []string                                      `json:"categories"`
	Visibility      app.Visibility                                `json:"visibility"`
	Active          bool                                          `json:"active"`
	SecuritySchemes map[securityscheme.Kind]securityscheme.Scheme `json:"security_schemes"`
}

// handleCreateApp backs POST /apps, a platform-admin route for onboarding
// a new integration into the catalogue (spec §3, §4.2).
func (a *adminServer) handleCreateApp(w http.ResponseWriter, r *http.Request) {
	var req createAppRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	created, err := a.svc.CreateApp(r.Context(), app.App{
		Name:            req.Name,
		DisplayName:     req.DisplayName,
		Provider:        req.Provider,
		Version:         req.Version,
		Description:     req.Description,
		Logo:            req.Logo,
		Categories:      req.Categories,
		Visibility:      req.Visibility,
		Active:          req.Active,
		SecuritySchemes: req.SecuritySchemes,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, created)
}

func (a *adminServer) handleListApps(w http.ResponseWriter, r *http.Request) {
	offset, limit := pageParams(r)
	results, err := a.svc.ListApps(r.Context(), offset, limit, false, false)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, results)
}

func (a *adminServer) handleGetApp(w http.ResponseWriter, r *http.Request) {
	result, err := a.svc.GetApp(r.Context(), pathVar(r, "appName"), false, false)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

type renameAppRequest struct {
	NewName string `json:"new_name"`
}

func (a *adminServer) handleRenameApp(w http.ResponseWriter, r *http.Request) {
	var req renameAppRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if err := a.svc.RenameApp(r.Context(), pathVar(r, "appName"), req.NewName); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (a *adminServer) handleDeleteApp(w http.ResponseWriter, r *http.Request) {
	if err := a.svc.DeleteApp(r.Context(), pathVar(r, "appName")); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type setDefaultCredentialsRequest struct {
	SecurityScheme securityscheme.Kind    `json:"security_scheme"`
	Credentials    map[string]interface{} `json:"credentials"`
}

func (a *adminServer) handleSetAppDefaultCredentials(w http.ResponseWriter, r *http.Request) {
	var req setDefaultCredentialsRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if err := a.svc.SetAppDefaultCredentials(r.Context(), pathVar(r, "appName"), req.SecurityScheme, req.Credentials); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// --- Functions --------------------------------------------------------

type createFunctionRequest struct {
	Name         string                        `json:"name"`
	AppName      string                        `json:"app_name"`
	Description  string                        `json:"description"`
	Tags         []string                      `json:"tags"`
	Visibility   function.Visibility           `json:"visibility"`
	Active       bool                          `json:"active"`
	Protocol     function.Protocol             `json:"protocol"`
	RESTData     *function.RESTProtocolData    `json:"rest_data,omitempty"`
	ConnectorKey string                        `json:"connector_key,omitempty"`
	Parameters   map[string]interface{}        `json:"parameters"`
	Response     map[string]interface{}        `json:"response,omitempty"`
}

func (a *adminServer) handleCreateFunction(w http.ResponseWriter, r *http.Request) {
	var req createFunctionRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	created, err := a.svc.CreateFunction(r.Context(), function.Function{
		Name:         req.Name,
		AppName:      req.AppName,
		Description:  req.Description,
		Tags:         req.Tags,
		Visibility:   req.Visibility,
		Active:       req.Active,
		Protocol:     req.Protocol,
		RESTData:     req.RESTData,
		ConnectorKey: req.ConnectorKey,
		Parameters:   req.Parameters,
		Response:     req.Response,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, created)
}

func (a *adminServer) handleListFunctions(w http.ResponseWriter, r *http.Request) {
	offset, limit := pageParams(r)
	results, err := a.svc.ListFunctions(r.Context(), pathVar(r, "appName"), offset, limit)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, results)
}

func (a *adminServer) handleGetFunction(w http.ResponseWriter, r *http.Request) {
	result, err := a.svc.GetFunction(r.Context(), pathVar(r, "functionName"), false, false)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (a *adminServer) handleDeleteFunction(w http.ResponseWriter, r *http.Request) {
	if err := a.svc.DeleteFunction(r.Context(), pathVar(r, "functionName")); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
