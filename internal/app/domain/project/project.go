// Package project holds the Project entity: the tenant boundary that owns
// Agents and App Configurations.
package project

import "time"

// Visibility controls whether a project's catalogue view defaults to public
// or private Apps/Functions.
type Visibility string

const (
	VisibilityPublic  Visibility = "public"
	VisibilityPrivate Visibility = "private"
)

// Project is a tenant boundary owning Agents and App Configurations.
type Project struct {
	ID                string
	OrgID             string
	Name              string
	VisibilityAccess  Visibility
	DailyQuotaUsed    int
	DailyQuotaResetAt time.Time
	TotalQuotaUsed    int
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// QuotaExceeded reports whether the project has used its full daily budget.
func (p Project) QuotaExceeded(dailyQuota int) bool {
	return p.DailyQuotaUsed >= dailyQuota
}

// ResetDue reports whether 24h have elapsed since the last quota reset.
func (p Project) ResetDue(now time.Time) bool {
	return !now.Before(p.DailyQuotaResetAt.Add(24 * time.Hour))
}
