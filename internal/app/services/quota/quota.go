// Package quota implements the project/org resource limits spec §4.4 and
// §5 describe: a project's daily execution budget, and the org-wide caps
// on project/agent creation. Grounded on
// original_source/backend/aci/server/quota_manager.py's
// enforce_project_creation_quota/enforce_agent_creation_quota, translated
// from raised exceptions to returned *apierrors.Error values.
package quota

import (
	"context"
	"time"

	"github.com/r3e-network/agentcp/internal/apierrors"
	"github.com/r3e-network/agentcp/internal/app/domain/project"
)

// Store is the subset of storage.Store quota enforcement needs.
type Store interface {
	GetProject(ctx context.Context, id string) (project.Project, error)
	UpdateProject(ctx context.Context, p project.Project) error
	CountProjectsByOrg(ctx context.Context, orgID string) (int, error)
	CountAgentsByProject(ctx context.Context, projectID string) (int, error)
	ListAllProjects(ctx context.Context) ([]project.Project, error)
}

// Limits are the configured org/project ceilings (pkg/config QuotaConfig).
type Limits struct {
	MaxProjectsPerOrg   int
	MaxAgentsPerProject int
	DailyExecutionQuota int
}

// Service enforces Limits against a Store.
type Service struct {
	store  Store
	limits Limits
	now    func() time.Time
}

// New constructs a Service. now defaults to time.Now; tests may override it.
func New(store Store, limits Limits) *Service {
	return &Service{store: store, limits: limits, now: time.Now}
}

// EnforceProjectCreation returns MaxProjectsReached if orgID already owns
// the configured maximum number of projects.
func (s *Service) EnforceProjectCreation(ctx context.Context, orgID string) error {
	count, err := s.store.CountProjectsByOrg(ctx, orgID)
	if err != nil {
		return err
	}
	if count >= s.limits.MaxProjectsPerOrg {
		return apierrors.New(apierrors.CodeMaxProjectsReached, "organization has reached its project limit")
	}
	return nil
}

// EnforceAgentCreation returns MaxAgentsReached if projectID already owns
// the configured maximum number of agents.
func (s *Service) EnforceAgentCreation(ctx context.Context, projectID string) error {
	count, err := s.store.CountAgentsByProject(ctx, projectID)
	if err != nil {
		return err
	}
	if count >= s.limits.MaxAgentsPerProject {
		return apierrors.New(apierrors.CodeMaxAgentsReached, "project has reached its agent limit")
	}
	return nil
}

// CheckAndIncrementExecution resets the project's daily counter if 24h
// have elapsed since the last reset, rejects the call with
// DailyQuotaExceeded if the (possibly just-reset) counter is already at
// budget, or else increments both the daily and lifetime counters and
// persists the project (spec §4.4 "quota" step, §5 concurrency note:
// accepts the same benign race the teacher's counters accept under
// concurrent increments).
func (s *Service) CheckAndIncrementExecution(ctx context.Context, projectID string) error {
	proj, err := s.store.GetProject(ctx, projectID)
	if err != nil {
		return err
	}
	now := s.now()
	if proj.ResetDue(now) {
		proj.DailyQuotaUsed = 0
		proj.DailyQuotaResetAt = now
	}
	if proj.QuotaExceeded(s.limits.DailyExecutionQuota) {
		return apierrors.New(apierrors.CodeDailyQuotaExceeded, "project has exhausted its daily execution quota")
	}
	proj.DailyQuotaUsed++
	proj.TotalQuotaUsed++
	return s.store.UpdateProject(ctx, proj)
}

// ResetAllDue sweeps every project and resets the daily counter on any whose
// 24h window has elapsed, persisting the change. This is belt-and-suspenders
// alongside CheckAndIncrementExecution's lazy on-read reset: a project that
// never executes again after exhausting its quota would otherwise never see
// ResetDue evaluated, so a scheduled sweep (cmd/agentcpd's cron job) calls
// this to keep DailyQuotaUsed accurate even for idle projects. Returns the
// number of projects reset.
func (s *Service) ResetAllDue(ctx context.Context) (int, error) {
	projects, err := s.store.ListAllProjects(ctx)
	if err != nil {
		return 0, err
	}
	now := s.now()
	reset := 0
	for _, proj := range projects {
		if !proj.ResetDue(now) {
			continue
		}
		proj.DailyQuotaUsed = 0
		proj.DailyQuotaResetAt = now
		if err := s.store.UpdateProject(ctx, proj); err != nil {
			return reset, err
		}
		reset++
	}
	return reset, nil
}
