package controlplane

import (
	"context"
	"strings"

	"github.com/r3e-network/agentcp/internal/apierrors"
	"github.com/r3e-network/agentcp/internal/app/domain/app"
	"github.com/r3e-network/agentcp/internal/app/domain/securityscheme"
	"github.com/r3e-network/agentcp/internal/app/storage"
)

// CreateApp registers a new App, computing its semantic embedding from the
// catalogue-facing fields (spec §3, §4.2).
func (s *Service) CreateApp(ctx context.Context, a app.App) (app.App, error) {
	a.Name = strings.TrimSpace(a.Name)
	if !app.ValidName(a.Name) {
		return app.App{}, apierrors.New(apierrors.CodeUnexpectedError, "invalid app name")
	}
	for kind, scheme := range a.SecuritySchemes {
		scheme.Kind = kind
		if err := scheme.Validate(); err != nil {
			return app.App{}, apierrors.Wrap(apierrors.CodeAppSecuritySchemeNotSupported, "invalid security scheme", err)
		}
	}
	embedding, err := s.embedder.AppEmbedding(ctx, a.EmbeddingFields())
	if err != nil {
		return app.App{}, apierrors.Wrap(apierrors.CodeUnexpectedError, "failed to embed app", err)
	}
	a.Embedding = embedding
	now := s.now()
	a.CreatedAt, a.UpdatedAt = now, now
	created, err := s.store.CreateApp(ctx, a)
	if err != nil {
		if err == storage.ErrAlreadyExists {
			return app.App{}, apierrors.New(apierrors.CodeUnexpectedError, "app already exists")
		}
		return app.App{}, apierrors.Wrap(apierrors.CodeUnexpectedError, "failed to create app", err)
	}
	return created, nil
}

// GetApp looks up an App by name, applying the public/active filters a
// caller may request (spec §4.3).
func (s *Service) GetApp(ctx context.Context, name string, publicOnly, activeOnly bool) (app.App, error) {
	a, err := s.store.GetApp(ctx, name)
	if err != nil {
		return app.App{}, notFoundOrWrap(err, apierrors.CodeAppNotFound, "app not found")
	}
	if !a.MatchesVisibility(publicOnly, activeOnly) {
		return app.App{}, apierrors.New(apierrors.CodeAppNotFound, "app not found")
	}
	return a, nil
}

// ListApps returns a page of Apps matching the visibility filters.
func (s *Service) ListApps(ctx context.Context, offset, limit int, publicOnly, activeOnly bool) ([]app.App, error) {
	filter := storage.ListFilter{Offset: offset, Limit: s.clampLimit(limit)}
	return s.store.ListApps(ctx, filter, publicOnly, activeOnly)
}

// RenameApp renames an App, cascading the rename into its owned
// Functions (storage layer), Agent allow-lists/custom-instructions, and
// AppConfiguration enabled_functions entries (spec §3 "Ownership &
// lifecycle").
func (s *Service) RenameApp(ctx context.Context, oldName, newName string) error {
	newName = strings.TrimSpace(newName)
	if !app.ValidName(newName) {
		return apierrors.New(apierrors.CodeUnexpectedError, "invalid app name")
	}
	if err := s.store.RenameApp(ctx, oldName, newName); err != nil {
		return notFoundOrWrap(err, apierrors.CodeAppNotFound, "app not found")
	}
	agents, err := s.store.ListAgentsAllowingApp(ctx, oldName)
	if err != nil {
		return apierrors.Wrap(apierrors.CodeUnexpectedError, "failed to list agents for rename", err)
	}
	for _, a := range agents {
		a.RenameApp(oldName, newName)
		a.UpdatedAt = s.now()
		if err := s.store.UpdateAgent(ctx, a); err != nil {
			return apierrors.Wrap(apierrors.CodeUnexpectedError, "failed to rewrite agent after app rename", err)
		}
	}
	return nil
}

// DeleteApp removes an App and its owned Functions, and removes it from
// every Agent's allow-list (spec §3 "Ownership & lifecycle" — deleting an
// App must not leave dangling references).
func (s *Service) DeleteApp(ctx context.Context, name string) error {
	agents, err := s.store.ListAgentsAllowingApp(ctx, name)
	if err != nil {
		return apierrors.Wrap(apierrors.CodeUnexpectedError, "failed to list agents for delete", err)
	}
	for _, a := range agents {
		a.RemoveApp(name)
		a.UpdatedAt = s.now()
		if err := s.store.UpdateAgent(ctx, a); err != nil {
			return apierrors.Wrap(apierrors.CodeUnexpectedError, "failed to rewrite agent after app delete", err)
		}
	}
	if err := s.store.DeleteApp(ctx, name); err != nil {
		return notFoundOrWrap(err, apierrors.CodeAppNotFound, "app not found")
	}
	fns, err := s.store.ListFunctionsByApp(ctx, name, storage.ListFilter{})
	if err != nil {
		return apierrors.Wrap(apierrors.CodeUnexpectedError, "failed to list functions for app delete", err)
	}
	for _, f := range fns {
		if err := s.store.DeleteFunction(ctx, f.Name); err != nil {
			return apierrors.Wrap(apierrors.CodeUnexpectedError, "failed to delete function of deleted app", err)
		}
	}
	return nil
}

// SetAppDefaultCredentials stores an App's default credentials for a
// scheme kind, encrypting the designated fields (spec §3, §4.2). The
// subject id used for field encryption is the App name itself, since
// default credentials are keyed by App rather than by LinkedAccount.
func (s *Service) SetAppDefaultCredentials(ctx context.Context, name string, kind securityscheme.Kind, raw map[string]interface{}) error {
	a, err := s.store.GetApp(ctx, name)
	if err != nil {
		return notFoundOrWrap(err, apierrors.CodeAppNotFound, "app not found")
	}
	if !a.OffersScheme(kind) {
		return apierrors.New(apierrors.CodeAppSecuritySchemeNotSupported, "app does not offer this security scheme")
	}
	encrypted, err := s.codec.EncryptDoc(a.Name, kind, raw)
	if err != nil {
		return apierrors.Wrap(apierrors.CodeUnexpectedError, "failed to encrypt default credentials", err)
	}
	if a.DefaultSecurityCredentialsRaw == nil {
		a.DefaultSecurityCredentialsRaw = map[securityscheme.Kind]map[string]interface{}{}
	}
	a.DefaultSecurityCredentialsRaw[kind] = encrypted
	a.UpdatedAt = s.now()
	return s.store.UpdateApp(ctx, a)
}
