package service

import (
	"context"
	"fmt"
	"strings"
)

// ProjectExistenceChecker is satisfied by any store that can confirm a
// project id is real. Kept minimal so packages depending on Base don't
// need the full storage interface surface.
type ProjectExistenceChecker interface {
	ProjectExists(ctx context.Context, projectID string) (bool, error)
}

// Base centralizes the "normalize and validate the tenant id" step shared
// by every service, mirroring the pattern the teacher's secrets service
// expects from an (apparently since-refactored-away) core.Base.
type Base struct {
	projects ProjectExistenceChecker
}

// NewBase constructs a Base backed by a project-existence checker.
func NewBase(projects ProjectExistenceChecker) *Base {
	return &Base{projects: projects}
}

// NormalizeProject trims the id and, if a checker is configured, verifies
// the project exists.
func (b *Base) NormalizeProject(ctx context.Context, projectID string) (string, error) {
	projectID = strings.TrimSpace(projectID)
	if projectID == "" {
		return "", fmt.Errorf("project id is required")
	}
	if b == nil || b.projects == nil {
		return projectID, nil
	}
	ok, err := b.projects.ProjectExists(ctx, projectID)
	if err != nil {
		return "", err
	}
	if !ok {
		return "", fmt.Errorf("project %s not found", projectID)
	}
	return projectID, nil
}
