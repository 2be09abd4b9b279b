package authz

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/r3e-network/agentcp/internal/apierrors"
	"github.com/r3e-network/agentcp/internal/app/domain/agent"
	"github.com/r3e-network/agentcp/internal/app/domain/app"
	"github.com/r3e-network/agentcp/internal/app/domain/appconfig"
	"github.com/r3e-network/agentcp/internal/app/domain/function"
	"github.com/r3e-network/agentcp/internal/app/domain/linkedaccount"
	"github.com/r3e-network/agentcp/internal/app/domain/project"
	"github.com/r3e-network/agentcp/internal/app/domain/securityscheme"
	"github.com/r3e-network/agentcp/internal/app/services/quota"
	"github.com/r3e-network/agentcp/internal/app/storage/memory"
	"github.com/r3e-network/agentcp/internal/crypto"
)

const ownerID = "user-123"

type fixture struct {
	pipeline     *Pipeline
	store        *memory.Store
	plaintextKey string
}

func newFixture(t *testing.T) fixture {
	t.Helper()
	store := memory.New()
	cryptoSvc, err := crypto.New(make([]byte, 32), []byte("test-hmac-secret"))
	require.NoError(t, err)

	p, err := store.CreateProject(context.Background(), project.Project{ID: "proj-1", OrgID: "org-1", Name: "test"})
	require.NoError(t, err)

	a, err := store.CreateAgent(context.Background(), agent.Agent{ID: "agent-1", ProjectID: p.ID, Name: "assistant", AllowedApps: []string{"WEATHER"}})
	require.NoError(t, err)

	plaintextKey := "acp_test_key"
	_, err = store.CreateAPIKey(context.Background(), agent.APIKey{
		ID:         "key-1",
		AgentID:    a.ID,
		Ciphertext: "irrelevant-for-this-test",
		KeyHMAC:    cryptoSvc.HMAC(plaintextKey),
		Status:     agent.KeyStatusActive,
	})
	require.NoError(t, err)

	_, err = store.CreateApp(context.Background(), app.App{Name: "WEATHER", DisplayName: "Weather"})
	require.NoError(t, err)

	_, err = store.CreateFunction(context.Background(), function.Function{Name: "WEATHER__GET_FORECAST", AppName: "WEATHER"})
	require.NoError(t, err)

	_, err = store.CreateAppConfiguration(context.Background(), appconfig.AppConfiguration{
		ID:                  "cfg-1",
		ProjectID:           p.ID,
		AppName:             "WEATHER",
		Enabled:             true,
		AllFunctionsEnabled: true,
	})
	require.NoError(t, err)

	_, err = store.CreateLinkedAccount(context.Background(), linkedaccount.LinkedAccount{
		ID:                   "la-1",
		ProjectID:            p.ID,
		AppName:              "WEATHER",
		LinkedAccountOwnerID: ownerID,
		Enabled:              true,
		SecurityScheme:       securityscheme.KindNoAuth,
	})
	require.NoError(t, err)

	quotaSvc := quota.New(store, quota.Limits{MaxProjectsPerOrg: 10, MaxAgentsPerProject: 10, DailyExecutionQuota: 1000})
	return fixture{pipeline: New(store, cryptoSvc, quotaSvc), store: store, plaintextKey: plaintextKey}
}

func TestAuthorize_Success(t *testing.T) {
	f := newFixture(t)
	rc, err := f.pipeline.Authorize(context.Background(), f.plaintextKey, "WEATHER__GET_FORECAST", ownerID)
	require.NoError(t, err)
	assert.Equal(t, "agent-1", rc.Agent.ID)
	assert.Equal(t, "WEATHER__GET_FORECAST", rc.Function.Name)
	assert.Equal(t, ownerID, rc.LinkedAccount.LinkedAccountOwnerID)
}

func TestAuthorize_RejectsUnknownKey(t *testing.T) {
	f := newFixture(t)
	_, err := f.pipeline.Authorize(context.Background(), "not-a-real-key", "WEATHER__GET_FORECAST", ownerID)
	require.Error(t, err)
	assert.Equal(t, apierrors.CodeInvalidAPIKey, err.(*apierrors.Error).Code)
}

func TestAuthorize_RejectsAppNotAllowed(t *testing.T) {
	f := newFixture(t)
	_, err := f.store.CreateFunction(context.Background(), function.Function{Name: "CALENDAR__LIST_EVENTS", AppName: "CALENDAR"})
	require.NoError(t, err)
	// An enabled App Configuration must already exist for CALENDAR so the
	// allow-list rejection (the step under test) fires, not an earlier
	// "configuration not found" rejection (spec §4.4 step 4 ordering).
	_, err = f.store.CreateAppConfiguration(context.Background(), appconfig.AppConfiguration{
		ID:                  "cfg-calendar",
		ProjectID:           "proj-1",
		AppName:             "CALENDAR",
		Enabled:             true,
		AllFunctionsEnabled: true,
	})
	require.NoError(t, err)

	_, err = f.pipeline.Authorize(context.Background(), f.plaintextKey, "CALENDAR__LIST_EVENTS", ownerID)
	require.Error(t, err)
	assert.Equal(t, apierrors.CodeAppNotAllowedForThisAgent, err.(*apierrors.Error).Code)
}

func TestAuthorize_RejectsQuotaExceededBeforeFunctionLookup(t *testing.T) {
	store := memory.New()
	cryptoSvc, err := crypto.New(make([]byte, 32), []byte("test-hmac-secret"))
	require.NoError(t, err)
	quotaSvc := quota.New(store, quota.Limits{MaxProjectsPerOrg: 10, MaxAgentsPerProject: 10, DailyExecutionQuota: 0})

	p, err := store.CreateProject(context.Background(), project.Project{ID: "proj-2", OrgID: "org-1", Name: "test"})
	require.NoError(t, err)
	a, err := store.CreateAgent(context.Background(), agent.Agent{ID: "agent-2", ProjectID: p.ID, Name: "assistant"})
	require.NoError(t, err)
	plaintextKey := "acp_quota_test_key"
	_, err = store.CreateAPIKey(context.Background(), agent.APIKey{
		ID:      "key-2",
		AgentID: a.ID,
		KeyHMAC: cryptoSvc.HMAC(plaintextKey),
		Status:  agent.KeyStatusActive,
	})
	require.NoError(t, err)

	pipeline := New(store, cryptoSvc, quotaSvc)
	_, err = pipeline.Authorize(context.Background(), plaintextKey, "NONEXISTENT__FUNCTION", ownerID)
	require.Error(t, err)
	assert.Equal(t, apierrors.CodeDailyQuotaExceeded, err.(*apierrors.Error).Code, "quota must be enforced before an unknown function is even looked up")
}

func TestAuthorize_RejectsDisabledAppConfiguration(t *testing.T) {
	f := newFixture(t)
	cfg, err := f.store.GetAppConfiguration(context.Background(), "proj-1", "WEATHER")
	require.NoError(t, err)
	cfg.Enabled = false
	require.NoError(t, f.store.UpdateAppConfiguration(context.Background(), cfg))

	_, err = f.pipeline.Authorize(context.Background(), f.plaintextKey, "WEATHER__GET_FORECAST", ownerID)
	require.Error(t, err)
	assert.Equal(t, apierrors.CodeAppConfigurationDisabled, err.(*apierrors.Error).Code)
}

func TestAuthorize_RejectsDisabledLinkedAccount(t *testing.T) {
	f := newFixture(t)
	la, err := f.store.GetLinkedAccount(context.Background(), "proj-1", "WEATHER", ownerID)
	require.NoError(t, err)
	la.Enabled = false
	require.NoError(t, f.store.UpdateLinkedAccount(context.Background(), la))

	_, err = f.pipeline.Authorize(context.Background(), f.plaintextKey, "WEATHER__GET_FORECAST", ownerID)
	require.Error(t, err)
	assert.Equal(t, apierrors.CodeLinkedAccountDisabled, err.(*apierrors.Error).Code)
}

func TestAuthorize_RejectsUnknownLinkedAccountOwner(t *testing.T) {
	f := newFixture(t)
	_, err := f.pipeline.Authorize(context.Background(), f.plaintextKey, "WEATHER__GET_FORECAST", "someone-else")
	require.Error(t, err)
	assert.Equal(t, apierrors.CodeLinkedAccountNotFound, err.(*apierrors.Error).Code)
}
