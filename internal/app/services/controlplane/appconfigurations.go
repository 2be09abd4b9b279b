package controlplane

import (
	"context"

	"github.com/r3e-network/agentcp/internal/apierrors"
	"github.com/r3e-network/agentcp/internal/app/domain/appconfig"
	"github.com/r3e-network/agentcp/internal/app/storage"
)

// CreateAppConfiguration records a Project's decision to integrate an App
// under a chosen security scheme (spec §3, §4.3). The App must actually
// offer that scheme (invariant 2).
func (s *Service) CreateAppConfiguration(ctx context.Context, orgID string, c appconfig.AppConfiguration) (appconfig.AppConfiguration, error) {
	if _, err := s.GetProject(ctx, orgID, c.ProjectID); err != nil {
		return appconfig.AppConfiguration{}, err
	}
	a, err := s.store.GetApp(ctx, c.AppName)
	if err != nil {
		return appconfig.AppConfiguration{}, notFoundOrWrap(err, apierrors.CodeAppNotFound, "app not found")
	}
	if !a.OffersScheme(c.SecurityScheme) {
		return appconfig.AppConfiguration{}, apierrors.New(apierrors.CodeAppSecuritySchemeNotSupported, "app does not offer this security scheme")
	}
	if err := c.Validate(); err != nil {
		return appconfig.AppConfiguration{}, apierrors.Wrap(apierrors.CodeUnexpectedError, "invalid app configuration", err)
	}
	now := s.now()
	c.ID = s.newID()
	c.CreatedAt, c.UpdatedAt = now, now
	created, err := s.store.CreateAppConfiguration(ctx, c)
	if err != nil {
		if err == storage.ErrAlreadyExists {
			return appconfig.AppConfiguration{}, apierrors.New(apierrors.CodeAppConfigurationAlreadyExists, "app configuration already exists for this project")
		}
		return appconfig.AppConfiguration{}, apierrors.Wrap(apierrors.CodeUnexpectedError, "failed to create app configuration", err)
	}
	return created, nil
}

// GetAppConfiguration looks up a Project's AppConfiguration for an App.
func (s *Service) GetAppConfiguration(ctx context.Context, orgID, projectID, appName string) (appconfig.AppConfiguration, error) {
	if _, err := s.GetProject(ctx, orgID, projectID); err != nil {
		return appconfig.AppConfiguration{}, err
	}
	c, err := s.store.GetAppConfiguration(ctx, projectID, appName)
	if err != nil {
		return appconfig.AppConfiguration{}, notFoundOrWrap(err, apierrors.CodeAppConfigurationNotFound, "app configuration not found")
	}
	return c, nil
}

// ListAppConfigurations returns a page of a Project's AppConfigurations.
func (s *Service) ListAppConfigurations(ctx context.Context, orgID, projectID string, offset, limit int) ([]appconfig.AppConfiguration, error) {
	if _, err := s.GetProject(ctx, orgID, projectID); err != nil {
		return nil, err
	}
	filter := storage.ListFilter{Offset: offset, Limit: s.clampLimit(limit)}
	return s.store.ListAppConfigurationsByProject(ctx, projectID, filter)
}

// SetAppConfigurationEnabled toggles a configuration on or off (spec §4.3,
// §4.4 "disabled AppConfiguration blocks execution").
func (s *Service) SetAppConfigurationEnabled(ctx context.Context, orgID, projectID, appName string, enabled bool) (appconfig.AppConfiguration, error) {
	c, err := s.GetAppConfiguration(ctx, orgID, projectID, appName)
	if err != nil {
		return appconfig.AppConfiguration{}, err
	}
	c.Enabled = enabled
	c.UpdatedAt = s.now()
	if err := s.store.UpdateAppConfiguration(ctx, c); err != nil {
		return appconfig.AppConfiguration{}, apierrors.Wrap(apierrors.CodeUnexpectedError, "failed to update app configuration", err)
	}
	return c, nil
}

// DeleteAppConfiguration removes a Project's AppConfiguration for an App.
func (s *Service) DeleteAppConfiguration(ctx context.Context, orgID, projectID, appName string) error {
	if _, err := s.GetAppConfiguration(ctx, orgID, projectID, appName); err != nil {
		return err
	}
	if err := s.store.DeleteAppConfiguration(ctx, projectID, appName); err != nil {
		return notFoundOrWrap(err, apierrors.CodeAppConfigurationNotFound, "app configuration not found")
	}
	return nil
}
