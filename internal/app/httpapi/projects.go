package httpapi

import (
	"net/http"

	"github.com/r3e-network/agentcp/internal/app/domain/project"
)

type createProjectRequest struct {
	Name       string             `json:"name"`
	Visibility project.Visibility `json:"visibility"`
}

func (a *adminServer) handleCreateProject(w http.ResponseWriter, r *http.Request) {
	var req createProjectRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.Visibility == "" {
		req.Visibility = project.VisibilityPrivate
	}
	created, err := a.svc.CreateProject(r.Context(), orgIDFromContext(r.Context()), req.Name, req.Visibility)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, created)
}

func (a *adminServer) handleListProjects(w http.ResponseWriter, r *http.Request) {
	results, err := a.svc.ListProjects(r.Context(), orgIDFromContext(r.Context()))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, results)
}

func (a *adminServer) handleGetProject(w http.ResponseWriter, r *http.Request) {
	result, err := a.svc.GetProject(r.Context(), orgIDFromContext(r.Context()), pathVar(r, "projectID"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (a *adminServer) handleDeleteProject(w http.ResponseWriter, r *http.Request) {
	err := a.svc.DeleteProject(r.Context(), orgIDFromContext(r.Context()), pathVar(r, "projectID"))
	if err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// --- Agents ---------------------------------------------------------------

type createAgentRequest struct {
	Name        string   `json:"name"`
	Description string   `json:"description"`
	AllowedApps []string `json:"allowed_apps"`
}

func (a *adminServer) handleCreateAgent(w http.ResponseWriter, r *http.Request) {
	var req createAgentRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	orgID, projectID := orgIDFromContext(r.Context()), pathVar(r, "projectID")
	created, err := a.svc.CreateAgent(r.Context(), orgID, projectID, req.Name, req.Description, req.AllowedApps)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, created)
}

func (a *adminServer) handleListAgents(w http.ResponseWriter, r *http.Request) {
	results, err := a.svc.ListAgents(r.Context(), orgIDFromContext(r.Context()), pathVar(r, "projectID"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, results)
}

func (a *adminServer) handleGetAgent(w http.ResponseWriter, r *http.Request) {
	result, err := a.svc.GetAgent(r.Context(), orgIDFromContext(r.Context()), pathVar(r, "projectID"), pathVar(r, "agentID"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

type updateAllowedAppsRequest struct {
	AllowedApps []string `json:"allowed_apps"`
}

func (a *adminServer) handleUpdateAgentAllowedApps(w http.ResponseWriter, r *http.Request) {
	var req updateAllowedAppsRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	orgID, projectID, agentID := orgIDFromContext(r.Context()), pathVar(r, "projectID"), pathVar(r, "agentID")
	result, err := a.svc.UpdateAgentAllowedApps(r.Context(), orgID, projectID, agentID, req.AllowedApps)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

type setCustomInstructionRequest struct {
	FunctionName string `json:"function_name"`
	Instruction  string `json:"instruction"`
}

func (a *adminServer) handleSetCustomInstruction(w http.ResponseWriter, r *http.Request) {
	var req setCustomInstructionRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	orgID, projectID, agentID := orgIDFromContext(r.Context()), pathVar(r, "projectID"), pathVar(r, "agentID")
	result, err := a.svc.SetCustomInstruction(r.Context(), orgID, projectID, agentID, req.FunctionName, req.Instruction)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (a *adminServer) handleDeleteAgent(w http.ResponseWriter, r *http.Request) {
	orgID, projectID, agentID := orgIDFromContext(r.Context()), pathVar(r, "projectID"), pathVar(r, "agentID")
	if err := a.svc.DeleteAgent(r.Context(), orgID, projectID, agentID); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// issueAPIKeyResponse surfaces the plaintext key exactly once, mirroring
// spec §4.1's "the plaintext key is returned exactly once" invariant.
type issueAPIKeyResponse struct {
	APIKey string `json:"api_key"`
	ID     string `json:"id"`
}

func (a *adminServer) handleIssueAPIKey(w http.ResponseWriter, r *http.Request) {
	orgID, projectID, agentID := orgIDFromContext(r.Context()), pathVar(r, "projectID"), pathVar(r, "agentID")
	plaintext, key, err := a.svc.IssueAPIKey(r.Context(), orgID, projectID, agentID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, issueAPIKeyResponse{APIKey: plaintext, ID: key.ID})
}
