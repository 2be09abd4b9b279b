// Package storage declares the entity store interfaces the services layer
// depends on (spec §3, §4.3). One interface per aggregate, mirroring the
// teacher's internal/app/application.go Stores struct: each domain gets its
// own narrow interface rather than one monolithic repository.
package storage

import (
	"context"

	"github.com/r3e-network/agentcp/internal/app/domain/agent"
	"github.com/r3e-network/agentcp/internal/app/domain/app"
	"github.com/r3e-network/agentcp/internal/app/domain/appconfig"
	"github.com/r3e-network/agentcp/internal/app/domain/function"
	"github.com/r3e-network/agentcp/internal/app/domain/linkedaccount"
	"github.com/r3e-network/agentcp/internal/app/domain/project"
	"github.com/r3e-network/agentcp/internal/app/domain/secret"
)

// ListFilter carries the pagination arguments every list operation accepts
// (spec §4.3), clamped by core/service.ClampLimit.
type ListFilter struct {
	Offset int
	Limit  int
}

// ProjectStore persists Projects.
type ProjectStore interface {
	CreateProject(ctx context.Context, p project.Project) (project.Project, error)
	GetProject(ctx context.Context, id string) (project.Project, error)
	UpdateProject(ctx context.Context, p project.Project) error
	DeleteProject(ctx context.Context, id string) error
	ListProjectsByOrg(ctx context.Context, orgID string) ([]project.Project, error)
	ListAllProjects(ctx context.Context) ([]project.Project, error)
	CountProjectsByOrg(ctx context.Context, orgID string) (int, error)
	ProjectExists(ctx context.Context, id string) (bool, error)
}

// AgentStore persists Agents and their API Keys.
type AgentStore interface {
	CreateAgent(ctx context.Context, a agent.Agent) (agent.Agent, error)
	GetAgent(ctx context.Context, id string) (agent.Agent, error)
	UpdateAgent(ctx context.Context, a agent.Agent) error
	DeleteAgent(ctx context.Context, id string) error
	ListAgentsByProject(ctx context.Context, projectID string) ([]agent.Agent, error)
	CountAgentsByProject(ctx context.Context, projectID string) (int, error)
	ListAgentsAllowingApp(ctx context.Context, appName string) ([]agent.Agent, error)

	CreateAPIKey(ctx context.Context, k agent.APIKey) (agent.APIKey, error)
	GetAPIKeyByHMAC(ctx context.Context, hmac string) (agent.APIKey, error)
	UpdateAPIKey(ctx context.Context, k agent.APIKey) error
	ListAPIKeysByAgent(ctx context.Context, agentID string) ([]agent.APIKey, error)
}

// AppStore persists Apps.
type AppStore interface {
	CreateApp(ctx context.Context, a app.App) (app.App, error)
	GetApp(ctx context.Context, name string) (app.App, error)
	UpdateApp(ctx context.Context, a app.App) error
	DeleteApp(ctx context.Context, name string) error
	ListApps(ctx context.Context, filter ListFilter, publicOnly, activeOnly bool) ([]app.App, error)
	SearchApps(ctx context.Context, queryEmbedding []float32, limit int, publicOnly, activeOnly bool, categories []string) ([]app.App, error)
	RenameApp(ctx context.Context, oldName, newName string) error
}

// FunctionStore persists Functions.
type FunctionStore interface {
	CreateFunction(ctx context.Context, f function.Function) (function.Function, error)
	GetFunction(ctx context.Context, name string) (function.Function, error)
	UpdateFunction(ctx context.Context, f function.Function) error
	DeleteFunction(ctx context.Context, name string) error
	ListFunctionsByApp(ctx context.Context, appName string, filter ListFilter) ([]function.Function, error)
	SearchFunctions(ctx context.Context, queryEmbedding []float32, limit int, appNames []string, publicOnly, activeOnly bool) ([]function.Function, error)
}

// AppConfigurationStore persists a Project's AppConfigurations.
type AppConfigurationStore interface {
	CreateAppConfiguration(ctx context.Context, c appconfig.AppConfiguration) (appconfig.AppConfiguration, error)
	GetAppConfiguration(ctx context.Context, projectID, appName string) (appconfig.AppConfiguration, error)
	UpdateAppConfiguration(ctx context.Context, c appconfig.AppConfiguration) error
	DeleteAppConfiguration(ctx context.Context, projectID, appName string) error
	ListAppConfigurationsByProject(ctx context.Context, projectID string, filter ListFilter) ([]appconfig.AppConfiguration, error)
}

// LinkedAccountStore persists LinkedAccounts.
type LinkedAccountStore interface {
	CreateLinkedAccount(ctx context.Context, la linkedaccount.LinkedAccount) (linkedaccount.LinkedAccount, error)
	GetLinkedAccount(ctx context.Context, projectID, appName, ownerID string) (linkedaccount.LinkedAccount, error)
	GetLinkedAccountByID(ctx context.Context, id string) (linkedaccount.LinkedAccount, error)
	UpdateLinkedAccount(ctx context.Context, la linkedaccount.LinkedAccount) error
	DeleteLinkedAccount(ctx context.Context, id string) error
	ListLinkedAccountsByProject(ctx context.Context, projectID string, filter ListFilter) ([]linkedaccount.LinkedAccount, error)
}

// SecretStore persists Agent Secrets Manager secrets. CreateSecret rejects
// a (linked_account_id, domain) pair that already has a row (ErrAlreadyExists)
// so a connector's create operation can't silently overwrite an existing
// credential; UpdateSecret is the explicit path for changing one.
type SecretStore interface {
	CreateSecret(ctx context.Context, s secret.Secret) (secret.Secret, error)
	UpdateSecret(ctx context.Context, s secret.Secret) (secret.Secret, error)
	GetSecret(ctx context.Context, linkedAccountID, domain string) (secret.Secret, error)
	DeleteSecret(ctx context.Context, linkedAccountID, domain string) error
	ListSecretsByLinkedAccount(ctx context.Context, linkedAccountID string) ([]secret.Secret, error)
}

// Store aggregates every entity store, the shape services construct
// against (mirrors the teacher's application.Stores).
type Store interface {
	ProjectStore
	AgentStore
	AppStore
	FunctionStore
	AppConfigurationStore
	LinkedAccountStore
	SecretStore
}

// ErrNotFound is returned by Get*/Update*/Delete* operations when the
// targeted row does not exist.
var ErrNotFound = notFoundError("storage: not found")

type notFoundError string

func (e notFoundError) Error() string { return string(e) }

// ErrAlreadyExists is returned by Create* operations on a unique-key
// collision (spec §7 AppConfigurationAlreadyExists / LinkedAccountAlreadyExists).
var ErrAlreadyExists = alreadyExistsError("storage: already exists")

type alreadyExistsError string

func (e alreadyExistsError) Error() string { return string(e) }
