// Package agentsecrets implements the Agent Secrets Manager connector
// (spec.md §4.8, SPEC_FULL §12): a small CRUD surface over the Secret
// entity, exposed as ordinary Functions rather than a REST call, so an
// agent can store and retrieve per-domain credentials it manages itself
// (distinct from the App/LinkedAccount credential system).
//
// Grounded on original_source/backend/aci/server/app_connectors/
// agent_secrets_manager.py's AgentSecretsManager: list_credentials,
// get_credential_for_domain, create_credential_for_domain (rejects an
// existing domain), update_credential_for_domain, and
// delete_credential_for_domain.
package agentsecrets

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/r3e-network/agentcp/internal/apierrors"
	"github.com/r3e-network/agentcp/internal/app/domain/credential"
	"github.com/r3e-network/agentcp/internal/app/domain/function"
	"github.com/r3e-network/agentcp/internal/app/domain/secret"
	"github.com/r3e-network/agentcp/internal/app/execution"
	"github.com/r3e-network/agentcp/internal/app/storage"
)

// Store is the subset of storage.Store this connector needs.
type Store interface {
	CreateSecret(ctx context.Context, s secret.Secret) (secret.Secret, error)
	UpdateSecret(ctx context.Context, s secret.Secret) (secret.Secret, error)
	GetSecret(ctx context.Context, linkedAccountID, domain string) (secret.Secret, error)
	DeleteSecret(ctx context.Context, linkedAccountID, domain string) error
	ListSecretsByLinkedAccount(ctx context.Context, linkedAccountID string) ([]secret.Secret, error)
}

// Connector implements execution.Connector for the
// "AGENT_SECRETS_MANAGER__*" Function family.
type Connector struct {
	store Store
}

// New constructs a Connector.
func New(store Store) *Connector {
	return &Connector{store: store}
}

var _ execution.Connector = (*Connector)(nil)

// Execute dispatches on fn.Name's operation suffix.
func (c *Connector) Execute(ctx context.Context, fn function.Function, _ credential.Credentials, input map[string]interface{}) (execution.Result, error) {
	linkedAccountID, _ := input["linked_account_id"].(string)
	domain, _ := input["domain"].(string)

	switch fn.Name {
	case "AGENT_SECRETS_MANAGER__LIST_CREDENTIALS":
		secrets, err := c.store.ListSecretsByLinkedAccount(ctx, linkedAccountID)
		if err != nil {
			return execution.Result{}, apierrors.Wrap(apierrors.CodeAgentSecretsManagerError, "failed to list credentials", err)
		}
		metas := make([]secret.Metadata, 0, len(secrets))
		for _, s := range secrets {
			metas = append(metas, s.ToMetadata())
		}
		return execution.Result{Success: true, Body: metas}, nil

	case "AGENT_SECRETS_MANAGER__GET_CREDENTIAL_FOR_DOMAIN":
		sec, err := c.store.GetSecret(ctx, linkedAccountID, domain)
		if err != nil {
			return execution.Result{Success: false, Error: fmt.Sprintf("no credentials found for domain %q", domain)}, nil
		}
		return execution.Result{Success: true, Body: map[string]interface{}{
			"domain": domain, "username": sec.Username, "password": sec.Password,
		}}, nil

	case "AGENT_SECRETS_MANAGER__CREATE_CREDENTIAL_FOR_DOMAIN":
		username, _ := input["username"].(string)
		password, _ := input["password"].(string)
		_, err := c.store.CreateSecret(ctx, secret.Secret{
			ID: uuid.NewString(), LinkedAccountID: linkedAccountID, Domain: domain,
			Username: username, Password: password,
		})
		if errors.Is(err, storage.ErrAlreadyExists) {
			return execution.Result{}, apierrors.New(apierrors.CodeAgentSecretsManagerError, fmt.Sprintf("credential for domain %q already exists", domain))
		}
		if err != nil {
			return execution.Result{}, apierrors.Wrap(apierrors.CodeAgentSecretsManagerError, "failed to create credential", err)
		}
		return execution.Result{Success: true}, nil

	case "AGENT_SECRETS_MANAGER__UPDATE_CREDENTIAL_FOR_DOMAIN":
		username, _ := input["username"].(string)
		password, _ := input["password"].(string)
		_, err := c.store.UpdateSecret(ctx, secret.Secret{
			LinkedAccountID: linkedAccountID, Domain: domain,
			Username: username, Password: password,
		})
		if errors.Is(err, storage.ErrNotFound) {
			return execution.Result{}, apierrors.New(apierrors.CodeAgentSecretsManagerError, fmt.Sprintf("no credentials found for domain %q", domain))
		}
		if err != nil {
			return execution.Result{}, apierrors.Wrap(apierrors.CodeAgentSecretsManagerError, "failed to update credential", err)
		}
		return execution.Result{Success: true}, nil

	case "AGENT_SECRETS_MANAGER__DELETE_CREDENTIAL_FOR_DOMAIN":
		if err := c.store.DeleteSecret(ctx, linkedAccountID, domain); err != nil {
			return execution.Result{Success: false, Error: fmt.Sprintf("no credentials found for domain %q", domain)}, nil
		}
		return execution.Result{Success: true}, nil

	default:
		return execution.Result{}, fmt.Errorf("agentsecrets: unknown operation %s", fn.Name)
	}
}
