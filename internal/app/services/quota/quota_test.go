package quota

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/r3e-network/agentcp/internal/apierrors"
	"github.com/r3e-network/agentcp/internal/app/domain/agent"
	"github.com/r3e-network/agentcp/internal/app/domain/project"
	"github.com/r3e-network/agentcp/internal/app/storage/memory"
)

func newProject(t *testing.T, store *memory.Store, orgID string, resetAt time.Time) project.Project {
	t.Helper()
	p := project.Project{
		ID:                "proj-" + orgID,
		OrgID:             orgID,
		Name:              "test",
		DailyQuotaResetAt: resetAt,
		CreatedAt:         time.Now(),
		UpdatedAt:         time.Now(),
	}
	created, err := store.CreateProject(context.Background(), p)
	require.NoError(t, err)
	return created
}

func TestEnforceProjectCreation_RejectsAtLimit(t *testing.T) {
	store := memory.New()
	svc := New(store, Limits{MaxProjectsPerOrg: 1, MaxAgentsPerProject: 10, DailyExecutionQuota: 10})

	require.NoError(t, svc.EnforceProjectCreation(context.Background(), "org-1"))
	newProject(t, store, "org-1", time.Now())

	err := svc.EnforceProjectCreation(context.Background(), "org-1")
	require.Error(t, err)
	apiErr, ok := err.(*apierrors.Error)
	require.True(t, ok)
	assert.Equal(t, apierrors.CodeMaxProjectsReached, apiErr.Code)
}

func TestEnforceAgentCreation_RejectsAtLimit(t *testing.T) {
	store := memory.New()
	svc := New(store, Limits{MaxProjectsPerOrg: 10, MaxAgentsPerProject: 1, DailyExecutionQuota: 10})
	p := newProject(t, store, "org-1", time.Now())

	require.NoError(t, svc.EnforceAgentCreation(context.Background(), p.ID))
	_, err := store.CreateAgent(context.Background(), agent.Agent{ID: "agent-1", ProjectID: p.ID, Name: "a"})
	require.NoError(t, err)

	err = svc.EnforceAgentCreation(context.Background(), p.ID)
	require.Error(t, err)
	apiErr, ok := err.(*apierrors.Error)
	require.True(t, ok)
	assert.Equal(t, apierrors.CodeMaxAgentsReached, apiErr.Code)
}

func TestCheckAndIncrementExecution_RejectsWhenExhausted(t *testing.T) {
	store := memory.New()
	svc := New(store, Limits{MaxProjectsPerOrg: 10, MaxAgentsPerProject: 10, DailyExecutionQuota: 1})
	p := newProject(t, store, "org-1", time.Now())

	require.NoError(t, svc.CheckAndIncrementExecution(context.Background(), p.ID))

	err := svc.CheckAndIncrementExecution(context.Background(), p.ID)
	require.Error(t, err)
	apiErr, ok := err.(*apierrors.Error)
	require.True(t, ok)
	assert.Equal(t, apierrors.CodeDailyQuotaExceeded, apiErr.Code)

	updated, getErr := store.GetProject(context.Background(), p.ID)
	require.NoError(t, getErr)
	assert.Equal(t, 1, updated.DailyQuotaUsed)
	assert.Equal(t, 1, updated.TotalQuotaUsed)
}

func TestResetAllDue_ResetsOnlyStaleProjects(t *testing.T) {
	store := memory.New()
	svc := New(store, Limits{MaxProjectsPerOrg: 10, MaxAgentsPerProject: 10, DailyExecutionQuota: 10})

	stale := newProject(t, store, "org-1", time.Now().Add(-25*time.Hour))
	stale.DailyQuotaUsed = 5
	require.NoError(t, store.UpdateProject(context.Background(), stale))

	fresh := newProject(t, store, "org-2", time.Now())
	fresh.DailyQuotaUsed = 3
	require.NoError(t, store.UpdateProject(context.Background(), fresh))

	reset, err := svc.ResetAllDue(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, reset)

	updatedStale, err := store.GetProject(context.Background(), stale.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, updatedStale.DailyQuotaUsed)

	updatedFresh, err := store.GetProject(context.Background(), fresh.ID)
	require.NoError(t, err)
	assert.Equal(t, 3, updatedFresh.DailyQuotaUsed)
}

func TestCheckAndIncrementExecution_ResetsAfter24Hours(t *testing.T) {
	store := memory.New()
	svc := New(store, Limits{MaxProjectsPerOrg: 10, MaxAgentsPerProject: 10, DailyExecutionQuota: 1})
	staleReset := time.Now().Add(-25 * time.Hour)
	p := newProject(t, store, "org-1", staleReset)
	p.DailyQuotaUsed = 1
	require.NoError(t, store.UpdateProject(context.Background(), p))

	require.NoError(t, svc.CheckAndIncrementExecution(context.Background(), p.ID))

	updated, err := store.GetProject(context.Background(), p.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, updated.DailyQuotaUsed)
	assert.True(t, updated.DailyQuotaResetAt.After(staleReset))
}
