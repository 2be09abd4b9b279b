package controlplane

import (
	"context"
	"strings"

	"github.com/r3e-network/agentcp/internal/apierrors"
	"github.com/r3e-network/agentcp/internal/app/domain/app"
	"github.com/r3e-network/agentcp/internal/app/domain/function"
	"github.com/r3e-network/agentcp/internal/app/schema"
	"github.com/r3e-network/agentcp/internal/app/storage"
)

// CreateFunction registers a Function under its owning App, computing its
// semantic embedding (spec §3, §4.2).
func (s *Service) CreateFunction(ctx context.Context, f function.Function) (function.Function, error) {
	f.Name = strings.TrimSpace(f.Name)
	if !function.ValidName(f.Name) {
		return function.Function{}, apierrors.New(apierrors.CodeInvalidFunctionDefinitionFormat, "invalid function name")
	}
	if function.AppName(f.Name) != f.AppName {
		return function.Function{}, apierrors.New(apierrors.CodeInvalidFunctionDefinitionFormat, "function name must start with <app>__")
	}
	if f.Protocol == function.ProtocolREST {
		if f.RESTData == nil {
			return function.Function{}, apierrors.New(apierrors.CodeInvalidFunctionDefinitionFormat, "rest protocol requires rest data")
		}
		for key := range f.Parameters {
			if _, ok := function.RESTInputBuckets[key]; !ok {
				return function.Function{}, apierrors.New(apierrors.CodeInvalidFunctionDefinitionFormat, "unknown rest parameter bucket "+key)
			}
		}
	} else if f.Protocol == function.ProtocolConnector && f.ConnectorKey == "" {
		return function.Function{}, apierrors.New(apierrors.CodeInvalidFunctionDefinitionFormat, "connector protocol requires a connector key")
	}

	embedding, err := s.embedder.FunctionEmbedding(ctx, f.EmbeddingFields())
	if err != nil {
		return function.Function{}, apierrors.Wrap(apierrors.CodeUnexpectedError, "failed to embed function", err)
	}
	f.Embedding = embedding
	now := s.now()
	f.CreatedAt, f.UpdatedAt = now, now
	created, err := s.store.CreateFunction(ctx, f)
	if err != nil {
		return function.Function{}, apierrors.Wrap(apierrors.CodeUnexpectedError, "failed to create function", err)
	}
	return created, nil
}

// GetFunction looks up a Function by name, applying visibility filters
// relative to its owning App (spec §4.3).
func (s *Service) GetFunction(ctx context.Context, name string, publicOnly, activeOnly bool) (function.Function, error) {
	f, err := s.store.GetFunction(ctx, name)
	if err != nil {
		return function.Function{}, notFoundOrWrap(err, apierrors.CodeFunctionNotFound, "function not found")
	}
	owningApp, err := s.store.GetApp(ctx, f.AppName)
	if err != nil {
		return function.Function{}, notFoundOrWrap(err, apierrors.CodeFunctionNotFound, "function not found")
	}
	if !f.MatchesVisibility(publicOnly, activeOnly, owningApp.Visibility == app.VisibilityPublic, owningApp.Active) {
		return function.Function{}, apierrors.New(apierrors.CodeFunctionNotFound, "function not found")
	}
	return f, nil
}

// ListFunctions returns a page of Functions belonging to an App.
func (s *Service) ListFunctions(ctx context.Context, appName string, offset, limit int) ([]function.Function, error) {
	filter := storage.ListFilter{Offset: offset, Limit: s.clampLimit(limit)}
	return s.store.ListFunctionsByApp(ctx, appName, filter)
}

// DeleteFunction removes a Function.
func (s *Service) DeleteFunction(ctx context.Context, name string) error {
	if err := s.store.DeleteFunction(ctx, name); err != nil {
		return notFoundOrWrap(err, apierrors.CodeFunctionNotFound, "function not found")
	}
	return nil
}

// FilteredParameters returns a Function's parameter schema with
// invisible properties stripped, the shape an agent is shown before
// calling it (spec §4.6).
func (s *Service) FilteredParameters(f function.Function) map[string]interface{} {
	return schema.FilterVisible(f.Parameters)
}
