// Package httpapi wires internal/app/services/controlplane onto HTTP,
// following the teacher's infrastructure/httputil pattern (handler.go,
// httputil.go): thin handlers that decode a request, call one controlplane
// method, and serialize the result or the global error envelope (spec §6,
// §7). go-chi/chi/v5 routes the public/agent-facing surface; gorilla/mux
// routes the admin surface, matching the teacher's go.mod carrying both
// routers as real, if secondary, dependencies.
package httpapi

import (
	"encoding/json"
	"net/http"

	"github.com/r3e-network/agentcp/internal/apierrors"
)

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, err error) {
	writeJSON(w, apierrors.StatusOf(err), apierrors.ToEnvelope(err))
}

func decodeJSON(w http.ResponseWriter, r *http.Request, v interface{}) bool {
	if r.Body == nil {
		return true
	}
	defer r.Body.Close()
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeError(w, apierrors.New(apierrors.CodeInvalidFunctionInput, "malformed json body"))
		return false
	}
	return true
}
