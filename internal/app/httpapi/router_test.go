package httpapi

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/r3e-network/agentcp/internal/app/auth"
	"github.com/r3e-network/agentcp/internal/app/domain/project"
	"github.com/r3e-network/agentcp/internal/app/services/controlplane"
	"github.com/r3e-network/agentcp/internal/app/services/quota"
	"github.com/r3e-network/agentcp/internal/app/storage/memory"
	"github.com/r3e-network/agentcp/internal/app/system"
	"github.com/r3e-network/agentcp/internal/crypto"
	"github.com/r3e-network/agentcp/pkg/logger"
)

// fakeJWTManager authenticates any non-empty token as the configured org,
// standing in for internal/app/auth.SupabaseManager's real signature
// verification.
type fakeJWTManager struct {
	orgID string
}

func (f fakeJWTManager) Validate(token string) (*auth.Claims, error) {
	if token == "" {
		return nil, assertErr
	}
	return &auth.Claims{OrgID: f.orgID}, nil
}

var assertErr = httpTestError("invalid token")

type httpTestError string

func (e httpTestError) Error() string { return string(e) }

func newTestRouter(t *testing.T) (http.Handler, *controlplane.Service) {
	t.Helper()
	store := memory.New()
	cryptoSvc, err := crypto.New(make([]byte, 32), []byte("test-hmac-secret"))
	require.NoError(t, err)
	quotaSvc := quota.New(store, quota.Limits{MaxProjectsPerOrg: 10, MaxAgentsPerProject: 10, DailyExecutionQuota: 1000})
	svc := controlplane.New(store, cryptoSvc, nil, nil, quotaSvc, nil, nil, nil, nil, nil, logger.NewDefault("httpapi-test"))

	router := NewRouter(Dependencies{
		Service: svc,
		JWT:     fakeJWTManager{orgID: "org-1"},
		Health:  system.NewChecker(),
	})
	return router, svc
}

func doRequest(router http.Handler, method, path string, body interface{}, bearer string) *httptest.ResponseRecorder {
	var reader *bytes.Reader
	if body != nil {
		raw, _ := json.Marshal(body)
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func TestAdminRoutes_RejectMissingBearerToken(t *testing.T) {
	router, _ := newTestRouter(t)
	rec := doRequest(router, http.MethodGet, "/admin/projects", nil, "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestAdminRoutes_CreateAndGetProject(t *testing.T) {
	router, _ := newTestRouter(t)

	rec := doRequest(router, http.MethodPost, "/admin/projects", createProjectRequest{Name: "my-project", Visibility: project.VisibilityPublic}, "token")
	require.Equal(t, http.StatusCreated, rec.Code)

	var created project.Project
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))
	assert.Equal(t, "my-project", created.Name)
	assert.Equal(t, "org-1", created.OrgID)

	rec = doRequest(router, http.MethodGet, "/admin/projects/"+created.ID, nil, "token")
	require.Equal(t, http.StatusOK, rec.Code)

	var fetched project.Project
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &fetched))
	assert.Equal(t, created.ID, fetched.ID)
}

func TestAdminRoutes_GetProjectNotFound(t *testing.T) {
	router, _ := newTestRouter(t)
	rec := doRequest(router, http.MethodGet, "/admin/projects/does-not-exist", nil, "token")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHealthzReportsHealthy(t *testing.T) {
	router, _ := newTestRouter(t)
	rec := doRequest(router, http.MethodGet, "/healthz", nil, "")
	assert.Equal(t, http.StatusOK, rec.Code)
}
