// Package authz implements the request-authorization pipeline (spec §4.4):
// a fixed ordered sequence of checks from a presented API key down to a
// concrete Function call, each step returning its own typed error so the
// HTTP layer can map it to the exact status spec §7 assigns.
//
// Grounded on the teacher's internal/app/core/service pattern (a plain
// struct over narrow store interfaces, no framework-level middleware
// chain) and on original_source/backend/aci/server/acl.py's ordered
// access-check style.
package authz

import (
	"context"

	"github.com/r3e-network/agentcp/internal/apierrors"
	"github.com/r3e-network/agentcp/internal/app/domain/agent"
	"github.com/r3e-network/agentcp/internal/app/domain/appconfig"
	"github.com/r3e-network/agentcp/internal/app/domain/function"
	"github.com/r3e-network/agentcp/internal/app/domain/linkedaccount"
	"github.com/r3e-network/agentcp/internal/app/domain/project"
	"github.com/r3e-network/agentcp/internal/crypto"
)

// HMACer is the subset of crypto.Service authz needs for API-key lookup.
type HMACer interface {
	HMAC(message string) string
}

var _ HMACer = (*crypto.Service)(nil)

// Store is the subset of storage.Store the pipeline reads from.
type Store interface {
	GetAPIKeyByHMAC(ctx context.Context, hmac string) (agent.APIKey, error)
	GetAgent(ctx context.Context, id string) (agent.Agent, error)
	GetProject(ctx context.Context, id string) (project.Project, error)
	GetFunction(ctx context.Context, name string) (function.Function, error)
	GetAppConfiguration(ctx context.Context, projectID, appName string) (appconfig.AppConfiguration, error)
	GetLinkedAccount(ctx context.Context, projectID, appName, ownerID string) (linkedaccount.LinkedAccount, error)
}

// Quota is the subset of quota.Service the pipeline needs to enforce and
// commit a Project's daily execution budget as step 3 of the chain
// (spec §4.4 "Project & quota").
type Quota interface {
	CheckAndIncrementExecution(ctx context.Context, projectID string) error
}

// Pipeline runs the spec §4.4 authorization chain.
type Pipeline struct {
	store  Store
	crypto HMACer
	quota  Quota
}

// New constructs a Pipeline.
func New(store Store, crypto HMACer, quota Quota) *Pipeline {
	return &Pipeline{store: store, crypto: crypto, quota: quota}
}

// Context is the resolved chain of entities a successful Authorize call
// produces, handed to the execution engine and quota accounting.
type Context struct {
	APIKey           agent.APIKey
	Agent            agent.Agent
	Project          project.Project
	Function         function.Function
	AppConfiguration appconfig.AppConfiguration
	LinkedAccount    linkedaccount.LinkedAccount
}

// Authorize resolves presentedKey -> Agent -> Project & quota -> Function
// -> AppConfiguration -> allow-list -> LinkedAccount, in that exact order
// (spec §4.4), stopping at the first failing step. The quota increment is
// committed before any downstream lookup, so a call that would also have
// failed a later step still consumes its budget (spec §4.4 step 3, §5
// "Ordering": strict and sequential).
func (p *Pipeline) Authorize(ctx context.Context, presentedKey, functionName, linkedAccountOwnerID string) (Context, error) {
	var rc Context

	key, err := p.store.GetAPIKeyByHMAC(ctx, p.crypto.HMAC(presentedKey))
	if err != nil || !key.Usable() {
		return rc, apierrors.New(apierrors.CodeInvalidAPIKey, "the presented API key is unknown or disabled")
	}
	rc.APIKey = key

	ag, err := p.store.GetAgent(ctx, key.AgentID)
	if err != nil {
		return rc, apierrors.New(apierrors.CodeAgentNotFound, "the agent owning this API key no longer exists")
	}
	rc.Agent = ag

	proj, err := p.store.GetProject(ctx, ag.ProjectID)
	if err != nil {
		return rc, apierrors.New(apierrors.CodeProjectNotFound, "the project owning this agent no longer exists")
	}
	rc.Project = proj

	if err := p.quota.CheckAndIncrementExecution(ctx, proj.ID); err != nil {
		return rc, err
	}

	fn, err := p.store.GetFunction(ctx, functionName)
	if err != nil {
		return rc, apierrors.New(apierrors.CodeFunctionNotFound, functionName+" is not a known function")
	}
	rc.Function = fn

	appName := function.AppName(functionName)
	cfg, err := p.store.GetAppConfiguration(ctx, proj.ID, appName)
	if err != nil {
		return rc, apierrors.New(apierrors.CodeAppConfigurationNotFound, appName+" is not configured for this project")
	}
	if !cfg.Enabled {
		return rc, apierrors.New(apierrors.CodeAppConfigurationDisabled, appName+" is configured but disabled")
	}
	if !cfg.FunctionEnabled(functionName) {
		return rc, apierrors.New(apierrors.CodeAppConfigurationDisabled, functionName+" is not enabled under this configuration")
	}
	if !ag.AppAllowed(appName) {
		return rc, apierrors.New(apierrors.CodeAppNotAllowedForThisAgent, appName+" is not in this agent's allow-list")
	}
	rc.AppConfiguration = cfg

	la, err := p.store.GetLinkedAccount(ctx, proj.ID, appName, linkedAccountOwnerID)
	if err != nil {
		return rc, apierrors.New(apierrors.CodeLinkedAccountNotFound, "no linked account for owner "+linkedAccountOwnerID)
	}
	if !la.Enabled {
		return rc, apierrors.New(apierrors.CodeLinkedAccountDisabled, "the linked account is disabled")
	}
	rc.LinkedAccount = la

	return rc, nil
}
