package controlplane

import (
	"context"

	core "github.com/r3e-network/agentcp/internal/app/core/service"
	"github.com/r3e-network/agentcp/internal/app/domain/app"
	"github.com/r3e-network/agentcp/internal/app/domain/function"
	"github.com/r3e-network/agentcp/internal/app/metrics"
)

// SearchApps ranks the App catalogue by semantic similarity to query
// (spec §4.9). Only public, active Apps are ever candidates for an
// agent-facing search; an operator surface may relax both filters.
func (s *Service) SearchApps(ctx context.Context, query string, limit int, publicOnly, activeOnly bool, categories []string) ([]app.App, error) {
	finish := core.StartObservation(ctx, metrics.DiscoverySearchHooks(), map[string]string{})
	results, err := s.discovery.SearchApps(ctx, query, s.clampLimit(limit), publicOnly, activeOnly, categories)
	finish(err)
	return results, err
}

// SearchFunctions ranks Functions by semantic similarity to query,
// scoped to appNames when non-empty (spec §4.9).
func (s *Service) SearchFunctions(ctx context.Context, query string, limit int, appNames []string, publicOnly, activeOnly bool) ([]function.Function, error) {
	finish := core.StartObservation(ctx, metrics.DiscoverySearchHooks(), map[string]string{})
	results, err := s.discovery.SearchFunctions(ctx, query, s.clampLimit(limit), appNames, publicOnly, activeOnly)
	finish(err)
	return results, err
}
