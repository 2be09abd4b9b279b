// Package controlplane implements the management operations of SPEC_FULL
// §4.3: CRUD over Projects, Agents, Apps, Functions, AppConfigurations and
// LinkedAccounts, each wrapping internal/app/storage.Store with the
// validation and cross-entity bookkeeping the spec requires (cascading
// renames, quota enforcement, uniqueness checks). Execution and discovery
// live in execute.go/search.go of this same package since both need the
// same Store plus the resolved tenant context this package already
// assembles.
package controlplane

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/r3e-network/agentcp/internal/apierrors"
	core "github.com/r3e-network/agentcp/internal/app/core/service"
	"github.com/r3e-network/agentcp/internal/app/domain/agent"
	"github.com/r3e-network/agentcp/internal/app/domain/app"
	"github.com/r3e-network/agentcp/internal/app/domain/function"
	"github.com/r3e-network/agentcp/internal/app/domain/project"
	"github.com/r3e-network/agentcp/internal/app/domain/securityscheme"
	"github.com/r3e-network/agentcp/internal/app/discovery"
	"github.com/r3e-network/agentcp/internal/app/embeddings"
	"github.com/r3e-network/agentcp/internal/app/execution"
	"github.com/r3e-network/agentcp/internal/app/services/authz"
	"github.com/r3e-network/agentcp/internal/app/services/credentials"
	"github.com/r3e-network/agentcp/internal/app/services/quota"
	"github.com/r3e-network/agentcp/internal/app/storage"
	"github.com/r3e-network/agentcp/pkg/logger"
)

// Crypto is the subset of crypto.Service this package needs: HMAC for
// API-key lookup, and Encrypt/Decrypt for the stored API-key ciphertext.
// Field-level encryption of credential docs goes through the separate
// codec, not this interface.
type Crypto interface {
	HMAC(message string) string
	Encrypt(plaintext []byte) ([]byte, error)
	Decrypt(ciphertext []byte) ([]byte, error)
}

// Codec encrypts/decrypts the designated fields of a credential document.
type Codec interface {
	EncryptDoc(subjectID string, kind securityscheme.Kind, doc map[string]interface{}) (map[string]interface{}, error)
	DecryptDoc(subjectID string, kind securityscheme.Kind, doc map[string]interface{}) (map[string]interface{}, error)
}

// Embedder produces a semantic embedding for arbitrary text, satisfied by
// *embeddings.Client.
type Embedder interface {
	AppEmbedding(ctx context.Context, fields app.EmbeddingFields) ([]float32, error)
	FunctionEmbedding(ctx context.Context, fields function.EmbeddingFields) ([]float32, error)
	Embed(ctx context.Context, text string) ([]float32, error)
}

var _ Embedder = (*embeddings.Client)(nil)

// Service implements every management, authorization, execution, and
// discovery operation of SPEC_FULL §4.
type Service struct {
	store    storage.Store
	crypto   Crypto
	codec    Codec
	authz    *authz.Pipeline
	quota    *quota.Service
	resolver  *credentials.Resolver
	engine    *execution.Engine
	judge     Judge
	embedder  Embedder
	discovery *discovery.Service
	log       *logger.Logger
	now       func() time.Time
	newID     func() string
}

// New constructs a Service.
func New(
	store storage.Store,
	crypto Crypto,
	codec Codec,
	authzPipeline *authz.Pipeline,
	quotaService *quota.Service,
	resolver *credentials.Resolver,
	engine *execution.Engine,
	judge Judge,
	embedder Embedder,
	discoveryService *discovery.Service,
	log *logger.Logger,
) *Service {
	return &Service{
		store:     store,
		crypto:    crypto,
		codec:     codec,
		authz:     authzPipeline,
		quota:     quotaService,
		resolver:  resolver,
		engine:    engine,
		judge:     judge,
		embedder:  embedder,
		discovery: discoveryService,
		log:       log,
		now:       time.Now,
		newID:     uuid.NewString,
	}
}

func (s *Service) clampLimit(limit int) int {
	return core.ClampLimit(limit, core.DefaultListLimit, core.MaxListLimit)
}

// --- Projects ---------------------------------------------------------

// CreateProject creates a Project under orgID, enforcing the org's project
// quota (spec §4.1, §4.4).
func (s *Service) CreateProject(ctx context.Context, orgID, name string, visibility project.Visibility) (project.Project, error) {
	orgID = strings.TrimSpace(orgID)
	name = strings.TrimSpace(name)
	if orgID == "" || name == "" {
		return project.Project{}, apierrors.New(apierrors.CodeUnexpectedError, "org id and name are required")
	}
	if err := s.quota.EnforceProjectCreation(ctx, orgID); err != nil {
		return project.Project{}, err
	}
	now := s.now()
	p := project.Project{
		ID:                s.newID(),
		OrgID:             orgID,
		Name:              name,
		VisibilityAccess:  visibility,
		DailyQuotaResetAt: now.Add(24 * time.Hour),
		CreatedAt:         now,
		UpdatedAt:         now,
	}
	return s.store.CreateProject(ctx, p)
}

// GetProject returns a Project by id, scoped to orgID (spec §4.1
// "every read validates tenant ownership").
func (s *Service) GetProject(ctx context.Context, orgID, id string) (project.Project, error) {
	p, err := s.store.GetProject(ctx, id)
	if err != nil {
		return project.Project{}, notFoundOrWrap(err, apierrors.CodeProjectNotFound, "project not found")
	}
	if p.OrgID != orgID {
		return project.Project{}, apierrors.New(apierrors.CodeOrgAccessDenied, "project does not belong to this organization")
	}
	return p, nil
}

// ListProjects lists every Project owned by orgID.
func (s *Service) ListProjects(ctx context.Context, orgID string) ([]project.Project, error) {
	return s.store.ListProjectsByOrg(ctx, orgID)
}

// DeleteProject removes a Project, after confirming orgID ownership.
func (s *Service) DeleteProject(ctx context.Context, orgID, id string) error {
	if _, err := s.GetProject(ctx, orgID, id); err != nil {
		return err
	}
	return s.store.DeleteProject(ctx, id)
}

// --- Agents -------------------------------------------------------------

// CreateAgent creates an Agent under projectID, enforcing the project's
// agent quota (spec §4.1, §4.4).
func (s *Service) CreateAgent(ctx context.Context, orgID, projectID, name, description string, allowedApps []string) (agent.Agent, error) {
	if _, err := s.GetProject(ctx, orgID, projectID); err != nil {
		return agent.Agent{}, err
	}
	if err := s.quota.EnforceAgentCreation(ctx, projectID); err != nil {
		return agent.Agent{}, err
	}
	now := s.now()
	a := agent.Agent{
		ID:                s.newID(),
		ProjectID:         projectID,
		Name:              strings.TrimSpace(name),
		Description:       description,
		AllowedApps:       allowedApps,
		CustomInstruction: map[string]string{},
		CreatedAt:         now,
		UpdatedAt:         now,
	}
	return s.store.CreateAgent(ctx, a)
}

// GetAgent returns an Agent, scoped to orgID/projectID.
func (s *Service) GetAgent(ctx context.Context, orgID, projectID, id string) (agent.Agent, error) {
	if _, err := s.GetProject(ctx, orgID, projectID); err != nil {
		return agent.Agent{}, err
	}
	a, err := s.store.GetAgent(ctx, id)
	if err != nil {
		return agent.Agent{}, notFoundOrWrap(err, apierrors.CodeAgentNotFound, "agent not found")
	}
	if a.ProjectID != projectID {
		return agent.Agent{}, apierrors.New(apierrors.CodeProjectAccessDenied, "agent does not belong to this project")
	}
	return a, nil
}

// ListAgents lists every Agent of a Project.
func (s *Service) ListAgents(ctx context.Context, orgID, projectID string) ([]agent.Agent, error) {
	if _, err := s.GetProject(ctx, orgID, projectID); err != nil {
		return nil, err
	}
	return s.store.ListAgentsByProject(ctx, projectID)
}

// UpdateAgentAllowedApps replaces an Agent's App allow-list.
func (s *Service) UpdateAgentAllowedApps(ctx context.Context, orgID, projectID, id string, allowedApps []string) (agent.Agent, error) {
	a, err := s.GetAgent(ctx, orgID, projectID, id)
	if err != nil {
		return agent.Agent{}, err
	}
	a.AllowedApps = allowedApps
	a.UpdatedAt = s.now()
	if err := s.store.UpdateAgent(ctx, a); err != nil {
		return agent.Agent{}, apierrors.Wrap(apierrors.CodeUnexpectedError, "failed to update agent", err)
	}
	return a, nil
}

// SetCustomInstruction attaches or clears an Agent's custom instruction for
// one Function (spec §4.7). An empty instruction removes the entry.
func (s *Service) SetCustomInstruction(ctx context.Context, orgID, projectID, id, functionName, instruction string) (agent.Agent, error) {
	a, err := s.GetAgent(ctx, orgID, projectID, id)
	if err != nil {
		return agent.Agent{}, err
	}
	if a.CustomInstruction == nil {
		a.CustomInstruction = map[string]string{}
	}
	if strings.TrimSpace(instruction) == "" {
		delete(a.CustomInstruction, functionName)
	} else {
		a.CustomInstruction[functionName] = instruction
	}
	a.UpdatedAt = s.now()
	if err := s.store.UpdateAgent(ctx, a); err != nil {
		return agent.Agent{}, apierrors.Wrap(apierrors.CodeUnexpectedError, "failed to update agent", err)
	}
	return a, nil
}

// DeleteAgent removes an Agent.
func (s *Service) DeleteAgent(ctx context.Context, orgID, projectID, id string) error {
	if _, err := s.GetAgent(ctx, orgID, projectID, id); err != nil {
		return err
	}
	return s.store.DeleteAgent(ctx, id)
}

// IssueAPIKey mints a new API key for an Agent. The plaintext key is
// returned exactly once; only its ciphertext (for display) and HMAC digest
// (for lookup) are persisted (spec §4.1, §4.2).
func (s *Service) IssueAPIKey(ctx context.Context, orgID, projectID, agentID string) (plaintextKey string, key agent.APIKey, err error) {
	if _, err = s.GetAgent(ctx, orgID, projectID, agentID); err != nil {
		return "", agent.APIKey{}, err
	}
	plaintextKey = "acp_" + strings.ReplaceAll(uuid.NewString(), "-", "")
	ciphertext, encErr := s.crypto.Encrypt([]byte(plaintextKey))
	if encErr != nil {
		return "", agent.APIKey{}, apierrors.Wrap(apierrors.CodeUnexpectedError, "failed to encrypt api key", encErr)
	}
	now := s.now()
	key = agent.APIKey{
		ID:         s.newID(),
		AgentID:    agentID,
		Ciphertext: string(ciphertext),
		KeyHMAC:    s.crypto.HMAC(plaintextKey),
		Status:     agent.KeyStatusActive,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	key, err = s.store.CreateAPIKey(ctx, key)
	if err != nil {
		return "", agent.APIKey{}, apierrors.Wrap(apierrors.CodeUnexpectedError, "failed to store api key", err)
	}
	return plaintextKey, key, nil
}

// RevokeAPIKey disables an API key.
func (s *Service) RevokeAPIKey(ctx context.Context, key agent.APIKey) error {
	key.Status = agent.KeyStatusDisabled
	key.UpdatedAt = s.now()
	return s.store.UpdateAPIKey(ctx, key)
}

func notFoundOrWrap(err error, code apierrors.Code, message string) error {
	if err == storage.ErrNotFound {
		return apierrors.New(code, message)
	}
	return apierrors.Wrap(apierrors.CodeUnexpectedError, message, err)
}

