package httpapi

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/r3e-network/agentcp/internal/apierrors"
	"github.com/r3e-network/agentcp/internal/app/domain/function"
	"github.com/r3e-network/agentcp/internal/app/services/controlplane"
)

// agentServer holds the handlers an agent's presented API key reaches
// (spec §6's representative routes): catalogue search, function
// definitions, and execution. None of them use the admin bearer JWT. Only
// the execute handler reads X-API-KEY (and hands it to the authorization
// pipeline); the search and definition handlers do not check for a key.
type agentServer struct {
	svc *controlplane.Service
}

func splitCSV(raw string) []string {
	if raw == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func queryInt(r *http.Request, name string, fallback int) int {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return fallback
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}
	return n
}

// handleSearchApps backs GET /apps/search.
func (a *agentServer) handleSearchApps(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	results, err := a.svc.SearchApps(r.Context(), q.Get("query"), queryInt(r, "limit", 0), true, true, splitCSV(q.Get("categories")))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, results)
}

// handleSearchFunctions backs GET /functions/search.
func (a *agentServer) handleSearchFunctions(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	results, err := a.svc.SearchFunctions(r.Context(), q.Get("query"), queryInt(r, "limit", 0), splitCSV(q.Get("app_names")), true, true)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, results)
}

// handleGetApp backs GET /apps/{name}.
func (a *agentServer) handleGetApp(w http.ResponseWriter, r *http.Request, name string) {
	result, err := a.svc.GetApp(r.Context(), name, true, true)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// handleFunctionDefinition backs
// GET /functions/{name}/definition?format=basic|openai|openai_responses|anthropic.
func (a *agentServer) handleFunctionDefinition(w http.ResponseWriter, r *http.Request, name string) {
	fn, err := a.svc.GetFunction(r.Context(), name, true, true)
	if err != nil {
		writeError(w, err)
		return
	}
	format := function.DefinitionFormat(r.URL.Query().Get("format"))
	if format == "" {
		format = function.FormatBasic
	}
	def, err := fn.Definition(format, a.svc.FilteredParameters(fn))
	if err != nil {
		writeError(w, apierrors.New(apierrors.CodeInvalidFunctionDefinitionFormat, err.Error()))
		return
	}
	writeJSON(w, http.StatusOK, def)
}

// executeRequest is the POST /functions/{name}/execute body (spec §4.4,
// §6): the linked account owner the call runs as, and the function's
// caller-supplied arguments.
type executeRequest struct {
	LinkedAccountOwnerID string                 `json:"linked_account_owner_id"`
	Function             map[string]interface{} `json:"function_input"`
}

// handleExecuteFunction backs POST /functions/{name}/execute.
func (a *agentServer) handleExecuteFunction(w http.ResponseWriter, r *http.Request, name string) {
	var req executeRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	presented := presentedAPIKey(r)
	if presented == "" {
		writeError(w, apierrors.New(apierrors.CodeInvalidAPIKey, "missing X-API-KEY header"))
		return
	}
	result, err := a.svc.ExecuteFunction(r.Context(), presented, name, req.LinkedAccountOwnerID, req.Function)
	if err != nil {
		writeError(w, err)
		return
	}
	// spec §6/§7: a downstream failure is reported as {success:false,
	// error}, not as an HTTP error — only pipeline failures (authz, quota,
	// policy, resolver) use the error envelope via writeError above.
	writeJSON(w, http.StatusOK, executeResponse{Success: result.Success, Data: result.Body, Error: result.Error})
}

type executeResponse struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   string      `json:"error,omitempty"`
}
