package controlplane

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/r3e-network/agentcp/internal/apierrors"
	"github.com/r3e-network/agentcp/internal/app/domain/agent"
	"github.com/r3e-network/agentcp/internal/app/domain/project"
	"github.com/r3e-network/agentcp/internal/app/services/quota"
	"github.com/r3e-network/agentcp/internal/app/storage/memory"
	"github.com/r3e-network/agentcp/internal/crypto"
	"github.com/r3e-network/agentcp/pkg/logger"
)

func newTestService(t *testing.T, limits quota.Limits) *Service {
	t.Helper()
	store := memory.New()
	cryptoSvc, err := crypto.New(make([]byte, 32), []byte("test-hmac-secret"))
	require.NoError(t, err)
	quotaSvc := quota.New(store, limits)
	log := logger.NewDefault("controlplane-test")
	return New(store, cryptoSvc, nil, nil, quotaSvc, nil, nil, nil, nil, nil, log)
}

func defaultLimits() quota.Limits {
	return quota.Limits{MaxProjectsPerOrg: 10, MaxAgentsPerProject: 10, DailyExecutionQuota: 1000}
}

func TestCreateProject_AssignsQuotaWindow(t *testing.T) {
	svc := newTestService(t, defaultLimits())
	p, err := svc.CreateProject(context.Background(), "org-1", "my-project", project.VisibilityPublic)
	require.NoError(t, err)
	assert.NotEmpty(t, p.ID)
	assert.Equal(t, "org-1", p.OrgID)
	assert.True(t, p.DailyQuotaResetAt.After(p.CreatedAt))
}

func TestCreateProject_RejectsMissingFields(t *testing.T) {
	svc := newTestService(t, defaultLimits())
	_, err := svc.CreateProject(context.Background(), "", "name", project.VisibilityPublic)
	require.Error(t, err)
}

func TestCreateProject_EnforcesOrgQuota(t *testing.T) {
	svc := newTestService(t, quota.Limits{MaxProjectsPerOrg: 1, MaxAgentsPerProject: 10, DailyExecutionQuota: 1000})
	_, err := svc.CreateProject(context.Background(), "org-1", "first", project.VisibilityPublic)
	require.NoError(t, err)

	_, err = svc.CreateProject(context.Background(), "org-1", "second", project.VisibilityPublic)
	require.Error(t, err)
	apiErr, ok := err.(*apierrors.Error)
	require.True(t, ok)
	assert.Equal(t, apierrors.CodeMaxProjectsReached, apiErr.Code)
}

func TestGetProject_DeniesCrossOrgAccess(t *testing.T) {
	svc := newTestService(t, defaultLimits())
	p, err := svc.CreateProject(context.Background(), "org-1", "my-project", project.VisibilityPublic)
	require.NoError(t, err)

	_, err = svc.GetProject(context.Background(), "org-2", p.ID)
	require.Error(t, err)
	apiErr, ok := err.(*apierrors.Error)
	require.True(t, ok)
	assert.Equal(t, apierrors.CodeOrgAccessDenied, apiErr.Code)
}

func TestAgentLifecycle(t *testing.T) {
	svc := newTestService(t, defaultLimits())
	ctx := context.Background()
	p, err := svc.CreateProject(ctx, "org-1", "my-project", project.VisibilityPublic)
	require.NoError(t, err)

	a, err := svc.CreateAgent(ctx, "org-1", p.ID, "assistant", "a test agent", []string{"weather"})
	require.NoError(t, err)
	assert.Equal(t, []string{"weather"}, a.AllowedApps)

	a, err = svc.UpdateAgentAllowedApps(ctx, "org-1", p.ID, a.ID, []string{"weather", "calendar"})
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"weather", "calendar"}, a.AllowedApps)

	a, err = svc.SetCustomInstruction(ctx, "org-1", p.ID, a.ID, "get_forecast", "always respond in celsius")
	require.NoError(t, err)
	assert.Equal(t, "always respond in celsius", a.CustomInstruction["get_forecast"])

	a, err = svc.SetCustomInstruction(ctx, "org-1", p.ID, a.ID, "get_forecast", "")
	require.NoError(t, err)
	_, present := a.CustomInstruction["get_forecast"]
	assert.False(t, present)

	require.NoError(t, svc.DeleteAgent(ctx, "org-1", p.ID, a.ID))
	_, err = svc.GetAgent(ctx, "org-1", p.ID, a.ID)
	require.Error(t, err)
}

func TestCreateAgent_EnforcesProjectQuota(t *testing.T) {
	svc := newTestService(t, quota.Limits{MaxProjectsPerOrg: 10, MaxAgentsPerProject: 1, DailyExecutionQuota: 1000})
	ctx := context.Background()
	p, err := svc.CreateProject(ctx, "org-1", "my-project", project.VisibilityPublic)
	require.NoError(t, err)

	_, err = svc.CreateAgent(ctx, "org-1", p.ID, "first", "", nil)
	require.NoError(t, err)

	_, err = svc.CreateAgent(ctx, "org-1", p.ID, "second", "", nil)
	require.Error(t, err)
	apiErr, ok := err.(*apierrors.Error)
	require.True(t, ok)
	assert.Equal(t, apierrors.CodeMaxAgentsReached, apiErr.Code)
}

func TestIssueAndRevokeAPIKey(t *testing.T) {
	svc := newTestService(t, defaultLimits())
	ctx := context.Background()
	p, err := svc.CreateProject(ctx, "org-1", "my-project", project.VisibilityPublic)
	require.NoError(t, err)
	a, err := svc.CreateAgent(ctx, "org-1", p.ID, "assistant", "", nil)
	require.NoError(t, err)

	plaintext, key, err := svc.IssueAPIKey(ctx, "org-1", p.ID, a.ID)
	require.NoError(t, err)
	assert.NotEmpty(t, plaintext)
	assert.Equal(t, agent.KeyStatusActive, key.Status)
	assert.NotEqual(t, plaintext, key.Ciphertext, "the plaintext key must never be stored verbatim")

	require.NoError(t, svc.RevokeAPIKey(ctx, key))
}
