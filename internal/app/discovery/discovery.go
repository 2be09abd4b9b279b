// Package discovery implements the semantic search_apps/search_functions
// operations (spec §4.3, §4.9): embed the caller's query, then rank the
// filtered candidate set the entity store returns by similarity.
package discovery

import (
	"context"

	"github.com/r3e-network/agentcp/internal/app/domain/app"
	"github.com/r3e-network/agentcp/internal/app/domain/function"
)

// Embedder generates a query embedding for free-text search input.
type Embedder interface {
	// Embed reuses the App/Function embedding model for query text, since
	// both are embedded into the same vector space (spec §4.9).
	Embed(ctx context.Context, text string) ([]float32, error)
}

// Store is the subset of storage.Store discovery searches against.
type Store interface {
	SearchApps(ctx context.Context, queryEmbedding []float32, limit int, publicOnly, activeOnly bool, categories []string) ([]app.App, error)
	SearchFunctions(ctx context.Context, queryEmbedding []float32, limit int, appNames []string, publicOnly, activeOnly bool) ([]function.Function, error)
}

// Service implements semantic discovery over Apps and Functions.
type Service struct {
	store    Store
	embedder Embedder
}

// New constructs a Service.
func New(store Store, embedder Embedder) *Service {
	return &Service{store: store, embedder: embedder}
}

// SearchApps embeds query and ranks Apps by similarity.
func (s *Service) SearchApps(ctx context.Context, query string, limit int, publicOnly, activeOnly bool, categories []string) ([]app.App, error) {
	vector, err := s.embedder.Embed(ctx, query)
	if err != nil {
		return nil, err
	}
	return s.store.SearchApps(ctx, vector, limit, publicOnly, activeOnly, categories)
}

// SearchFunctions embeds query and ranks Functions within appNames (or
// every App reachable if appNames is empty) by similarity.
func (s *Service) SearchFunctions(ctx context.Context, query string, limit int, appNames []string, publicOnly, activeOnly bool) ([]function.Function, error) {
	vector, err := s.embedder.Embed(ctx, query)
	if err != nil {
		return nil, err
	}
	return s.store.SearchFunctions(ctx, vector, limit, appNames, publicOnly, activeOnly)
}
