package controlplane

import (
	"context"

	"github.com/r3e-network/agentcp/internal/apierrors"
	"github.com/r3e-network/agentcp/internal/app/domain/linkedaccount"
	"github.com/r3e-network/agentcp/internal/app/storage"
)

// CreateLinkedAccount binds an end-user's credentials to an App under a
// Project, encrypting the designated document fields before persisting
// (spec §3, §4.2). An empty credentials document falls back to the App's
// defaults (LinkedAccount.UsesAppDefaults).
func (s *Service) CreateLinkedAccount(ctx context.Context, orgID string, la linkedaccount.LinkedAccount, rawCredentials map[string]interface{}) (linkedaccount.LinkedAccount, error) {
	cfg, err := s.GetAppConfiguration(ctx, orgID, la.ProjectID, la.AppName)
	if err != nil {
		return linkedaccount.LinkedAccount{}, err
	}
	la.SecurityScheme = cfg.SecurityScheme

	now := s.now()
	la.ID = s.newID()
	la.CreatedAt, la.UpdatedAt = now, now

	if len(rawCredentials) > 0 {
		encrypted, err := s.codec.EncryptDoc(la.ID, la.SecurityScheme, rawCredentials)
		if err != nil {
			return linkedaccount.LinkedAccount{}, apierrors.Wrap(apierrors.CodeUnexpectedError, "failed to encrypt linked account credentials", err)
		}
		la.SecurityCredentialsRaw = encrypted
	}

	created, err := s.store.CreateLinkedAccount(ctx, la)
	if err != nil {
		if err == storage.ErrAlreadyExists {
			return linkedaccount.LinkedAccount{}, apierrors.New(apierrors.CodeLinkedAccountAlreadyExists, "linked account already exists")
		}
		return linkedaccount.LinkedAccount{}, apierrors.Wrap(apierrors.CodeUnexpectedError, "failed to create linked account", err)
	}
	return created, nil
}

// GetLinkedAccount looks up a LinkedAccount by its owner id.
func (s *Service) GetLinkedAccount(ctx context.Context, orgID, projectID, appName, ownerID string) (linkedaccount.LinkedAccount, error) {
	if _, err := s.GetProject(ctx, orgID, projectID); err != nil {
		return linkedaccount.LinkedAccount{}, err
	}
	la, err := s.store.GetLinkedAccount(ctx, projectID, appName, ownerID)
	if err != nil {
		return linkedaccount.LinkedAccount{}, notFoundOrWrap(err, apierrors.CodeLinkedAccountNotFound, "linked account not found")
	}
	return la, nil
}

// ListLinkedAccounts returns a page of a Project's LinkedAccounts.
func (s *Service) ListLinkedAccounts(ctx context.Context, orgID, projectID string, offset, limit int) ([]linkedaccount.LinkedAccount, error) {
	if _, err := s.GetProject(ctx, orgID, projectID); err != nil {
		return nil, err
	}
	filter := storage.ListFilter{Offset: offset, Limit: s.clampLimit(limit)}
	return s.store.ListLinkedAccountsByProject(ctx, projectID, filter)
}

// SetLinkedAccountEnabled toggles a LinkedAccount on or off (spec §4.4
// "disabled LinkedAccount blocks execution").
func (s *Service) SetLinkedAccountEnabled(ctx context.Context, orgID, projectID, appName, ownerID string, enabled bool) (linkedaccount.LinkedAccount, error) {
	la, err := s.GetLinkedAccount(ctx, orgID, projectID, appName, ownerID)
	if err != nil {
		return linkedaccount.LinkedAccount{}, err
	}
	la.Enabled = enabled
	la.UpdatedAt = s.now()
	if err := s.store.UpdateLinkedAccount(ctx, la); err != nil {
		return linkedaccount.LinkedAccount{}, apierrors.Wrap(apierrors.CodeUnexpectedError, "failed to update linked account", err)
	}
	return la, nil
}

// DeleteLinkedAccount removes a LinkedAccount.
func (s *Service) DeleteLinkedAccount(ctx context.Context, orgID, projectID, appName, ownerID string) error {
	la, err := s.GetLinkedAccount(ctx, orgID, projectID, appName, ownerID)
	if err != nil {
		return err
	}
	if err := s.store.DeleteLinkedAccount(ctx, la.ID); err != nil {
		return notFoundOrWrap(err, apierrors.CodeLinkedAccountNotFound, "linked account not found")
	}
	return nil
}
