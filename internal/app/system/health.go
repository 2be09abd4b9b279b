// Package system implements the dependency health surface (SPEC_FULL §12):
// a small aggregate of named checks (cmd/agentcpd registers the crypto
// self-test, plus database reachability when a database is configured)
// exposed over HTTP as
// /healthz, grounded on the teacher's system.Service lifecycle interface
// at internal/app/system/service.go, narrowed from a start/stop lifecycle
// to a single point-in-time check since this domain has no long-running
// background modules to supervise.
package system

import (
	"context"
	"sync"
	"time"

	"github.com/r3e-network/agentcp/internal/apierrors"
)

// Check is a single named dependency probe.
type Check struct {
	Name string
	Run  func(ctx context.Context) error
}

// ComponentStatus reports one check's outcome.
type ComponentStatus struct {
	Name    string `json:"name"`
	Healthy bool   `json:"healthy"`
	Error   string `json:"error,omitempty"`
}

// Report is the aggregate health response.
type Report struct {
	Healthy    bool              `json:"healthy"`
	Components []ComponentStatus `json:"components"`
}

// Checker runs a fixed set of dependency checks on demand.
type Checker struct {
	mu     sync.RWMutex
	checks []Check
}

// NewChecker constructs a Checker over the given checks.
func NewChecker(checks ...Check) *Checker {
	return &Checker{checks: checks}
}

// Add registers an additional check (used by cmd/agentcpd/main.go to add
// the database ping when a database is configured).
func (c *Checker) Add(check Check) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.checks = append(c.checks, check)
}

// Run executes every registered check with a bounded per-check timeout and
// returns the aggregate report. A single slow/hung dependency can't block
// the others: each check gets its own context deadline.
func (c *Checker) Run(ctx context.Context) Report {
	c.mu.RLock()
	checks := make([]Check, len(c.checks))
	copy(checks, c.checks)
	c.mu.RUnlock()

	report := Report{Healthy: true, Components: make([]ComponentStatus, 0, len(checks))}
	for _, check := range checks {
		checkCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		err := check.Run(checkCtx)
		cancel()

		status := ComponentStatus{Name: check.Name, Healthy: err == nil}
		if err != nil {
			status.Error = err.Error()
			report.Healthy = false
		}
		report.Components = append(report.Components, status)
	}
	return report
}

// Err returns a CodeDependencyCheckError wrapping the first failing
// component, or nil if every check passed.
func (r Report) Err() error {
	for _, c := range r.Components {
		if !c.Healthy {
			return apierrors.New(apierrors.CodeDependencyCheckError, c.Name+": "+c.Error)
		}
	}
	return nil
}
