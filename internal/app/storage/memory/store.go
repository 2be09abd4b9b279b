// Package memory implements storage.Store in-process, for tests and for
// local development without a Postgres instance. Grounded on the teacher's
// internal/app/storage/memory package: one mutex-guarded struct holding a
// map per entity. Entities are stored and returned by value; their slice
// and map fields are not copied, so they are shared between the caller
// and the store.
package memory

import (
	"context"
	"math"
	"sort"
	"sync"

	"github.com/r3e-network/agentcp/internal/app/domain/agent"
	"github.com/r3e-network/agentcp/internal/app/domain/app"
	"github.com/r3e-network/agentcp/internal/app/domain/appconfig"
	"github.com/r3e-network/agentcp/internal/app/domain/function"
	"github.com/r3e-network/agentcp/internal/app/domain/linkedaccount"
	"github.com/r3e-network/agentcp/internal/app/domain/project"
	"github.com/r3e-network/agentcp/internal/app/domain/secret"
	"github.com/r3e-network/agentcp/internal/app/storage"
)

// Store is an in-memory storage.Store.
type Store struct {
	mu sync.RWMutex

	projects       map[string]project.Project
	agents         map[string]agent.Agent
	apiKeysByID    map[string]agent.APIKey
	apiKeysByHMAC  map[string]string // hmac -> api key id
	apps           map[string]app.App
	functions      map[string]function.Function
	appConfigs     map[string]appconfig.AppConfiguration // key: projectID + "/" + appName
	linkedAccounts map[string]linkedaccount.LinkedAccount
	secrets        map[string]secret.Secret // key: linkedAccountID + "/" + domain
}

// New constructs an empty Store.
func New() *Store {
	return &Store{
		projects:       map[string]project.Project{},
		agents:         map[string]agent.Agent{},
		apiKeysByID:    map[string]agent.APIKey{},
		apiKeysByHMAC:  map[string]string{},
		apps:           map[string]app.App{},
		functions:      map[string]function.Function{},
		appConfigs:     map[string]appconfig.AppConfiguration{},
		linkedAccounts: map[string]linkedaccount.LinkedAccount{},
		secrets:        map[string]secret.Secret{},
	}
}

var _ storage.Store = (*Store)(nil)

func appConfigKey(projectID, appName string) string { return projectID + "/" + appName }
func secretKey(linkedAccountID, domain string) string { return linkedAccountID + "/" + domain }

// --- Projects ---

func (s *Store) CreateProject(_ context.Context, p project.Project) (project.Project, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.projects[p.ID]; ok {
		return project.Project{}, storage.ErrAlreadyExists
	}
	s.projects[p.ID] = p
	return p, nil
}

func (s *Store) GetProject(_ context.Context, id string) (project.Project, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.projects[id]
	if !ok {
		return project.Project{}, storage.ErrNotFound
	}
	return p, nil
}

func (s *Store) UpdateProject(_ context.Context, p project.Project) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.projects[p.ID]; !ok {
		return storage.ErrNotFound
	}
	s.projects[p.ID] = p
	return nil
}

func (s *Store) DeleteProject(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.projects[id]; !ok {
		return storage.ErrNotFound
	}
	delete(s.projects, id)
	return nil
}

func (s *Store) ListProjectsByOrg(_ context.Context, orgID string) ([]project.Project, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []project.Project
	for _, p := range s.projects {
		if p.OrgID == orgID {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *Store) CountProjectsByOrg(ctx context.Context, orgID string) (int, error) {
	ps, err := s.ListProjectsByOrg(ctx, orgID)
	return len(ps), err
}

func (s *Store) ListAllProjects(_ context.Context) ([]project.Project, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]project.Project, 0, len(s.projects))
	for _, p := range s.projects {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *Store) ProjectExists(_ context.Context, id string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.projects[id]
	return ok, nil
}

// --- Agents & API Keys ---

func (s *Store) CreateAgent(_ context.Context, a agent.Agent) (agent.Agent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.agents[a.ID]; ok {
		return agent.Agent{}, storage.ErrAlreadyExists
	}
	s.agents[a.ID] = a
	return a, nil
}

func (s *Store) GetAgent(_ context.Context, id string) (agent.Agent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	a, ok := s.agents[id]
	if !ok {
		return agent.Agent{}, storage.ErrNotFound
	}
	return a, nil
}

func (s *Store) UpdateAgent(_ context.Context, a agent.Agent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.agents[a.ID]; !ok {
		return storage.ErrNotFound
	}
	s.agents[a.ID] = a
	return nil
}

func (s *Store) DeleteAgent(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.agents[id]; !ok {
		return storage.ErrNotFound
	}
	delete(s.agents, id)
	return nil
}

func (s *Store) ListAgentsByProject(_ context.Context, projectID string) ([]agent.Agent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []agent.Agent
	for _, a := range s.agents {
		if a.ProjectID == projectID {
			out = append(out, a)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *Store) CountAgentsByProject(ctx context.Context, projectID string) (int, error) {
	as, err := s.ListAgentsByProject(ctx, projectID)
	return len(as), err
}

func (s *Store) ListAgentsAllowingApp(_ context.Context, appName string) ([]agent.Agent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []agent.Agent
	for _, a := range s.agents {
		if a.AppAllowed(appName) {
			out = append(out, a)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *Store) CreateAPIKey(_ context.Context, k agent.APIKey) (agent.APIKey, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.apiKeysByID[k.ID]; ok {
		return agent.APIKey{}, storage.ErrAlreadyExists
	}
	s.apiKeysByID[k.ID] = k
	s.apiKeysByHMAC[k.KeyHMAC] = k.ID
	return k, nil
}

func (s *Store) GetAPIKeyByHMAC(_ context.Context, hmac string) (agent.APIKey, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.apiKeysByHMAC[hmac]
	if !ok {
		return agent.APIKey{}, storage.ErrNotFound
	}
	return s.apiKeysByID[id], nil
}

func (s *Store) UpdateAPIKey(_ context.Context, k agent.APIKey) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	existing, ok := s.apiKeysByID[k.ID]
	if !ok {
		return storage.ErrNotFound
	}
	if existing.KeyHMAC != k.KeyHMAC {
		delete(s.apiKeysByHMAC, existing.KeyHMAC)
		s.apiKeysByHMAC[k.KeyHMAC] = k.ID
	}
	s.apiKeysByID[k.ID] = k
	return nil
}

func (s *Store) ListAPIKeysByAgent(_ context.Context, agentID string) ([]agent.APIKey, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []agent.APIKey
	for _, k := range s.apiKeysByID {
		if k.AgentID == agentID {
			out = append(out, k)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// --- Apps ---

func (s *Store) CreateApp(_ context.Context, a app.App) (app.App, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.apps[a.Name]; ok {
		return app.App{}, storage.ErrAlreadyExists
	}
	s.apps[a.Name] = a
	return a, nil
}

func (s *Store) GetApp(_ context.Context, name string) (app.App, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	a, ok := s.apps[name]
	if !ok {
		return app.App{}, storage.ErrNotFound
	}
	return a, nil
}

func (s *Store) UpdateApp(_ context.Context, a app.App) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.apps[a.Name]; !ok {
		return storage.ErrNotFound
	}
	s.apps[a.Name] = a
	return nil
}

func (s *Store) DeleteApp(_ context.Context, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.apps[name]; !ok {
		return storage.ErrNotFound
	}
	delete(s.apps, name)
	return nil
}

func (s *Store) RenameApp(_ context.Context, oldName, newName string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.apps[oldName]
	if !ok {
		return storage.ErrNotFound
	}
	a.Name = newName
	delete(s.apps, oldName)
	s.apps[newName] = a

	prefix := oldName + "__"
	for key, fn := range s.functions {
		if len(key) > len(prefix) && key[:len(prefix)] == prefix {
			fn.Name = newName + "__" + key[len(prefix):]
			fn.AppName = newName
			delete(s.functions, key)
			s.functions[fn.Name] = fn
		}
	}
	return nil
}

func (s *Store) ListApps(_ context.Context, filter storage.ListFilter, publicOnly, activeOnly bool) ([]app.App, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var matched []app.App
	for _, a := range s.apps {
		if a.MatchesVisibility(publicOnly, activeOnly) {
			matched = append(matched, a)
		}
	}
	sort.Slice(matched, func(i, j int) bool { return matched[i].Name < matched[j].Name })
	return paginateApps(matched, filter), nil
}

func paginateApps(all []app.App, filter storage.ListFilter) []app.App {
	if filter.Offset >= len(all) {
		return nil
	}
	end := filter.Offset + filter.Limit
	if filter.Limit <= 0 || end > len(all) {
		end = len(all)
	}
	return all[filter.Offset:end]
}

// SearchApps ranks candidate Apps by cosine similarity to queryEmbedding.
// No vector-index driver is available in this deployment (DESIGN.md); this
// mirrors exactly what the Postgres implementation does after its own
// candidate fetch, so callers observe identical ranking semantics against
// either backend.
func (s *Store) SearchApps(_ context.Context, queryEmbedding []float32, limit int, publicOnly, activeOnly bool, categories []string) ([]app.App, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	type scored struct {
		a     app.App
		score float32
	}
	var candidates []scored
	for _, a := range s.apps {
		if !a.MatchesVisibility(publicOnly, activeOnly) {
			continue
		}
		if len(categories) > 0 && !hasAnyCategory(a.Categories, categories) {
			continue
		}
		candidates = append(candidates, scored{a: a, score: cosineSimilarity(queryEmbedding, a.Embedding)})
	}
	sort.Slice(candidates, func(i, j int) bool {
		if candidates[i].score != candidates[j].score {
			return candidates[i].score > candidates[j].score
		}
		return candidates[i].a.Name < candidates[j].a.Name
	})
	if limit > 0 && len(candidates) > limit {
		candidates = candidates[:limit]
	}
	out := make([]app.App, 0, len(candidates))
	for _, c := range candidates {
		out = append(out, c.a)
	}
	return out, nil
}

func hasAnyCategory(have, want []string) bool {
	set := make(map[string]struct{}, len(have))
	for _, c := range have {
		set[c] = struct{}{}
	}
	for _, c := range want {
		if _, ok := set[c]; ok {
			return true
		}
	}
	return false
}

func cosineSimilarity(a, b []float32) float32 {
	if len(a) == 0 || len(b) == 0 || len(a) != len(b) {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return float32(dot / (math.Sqrt(normA) * math.Sqrt(normB)))
}

// --- Functions ---

func (s *Store) CreateFunction(_ context.Context, f function.Function) (function.Function, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.functions[f.Name]; ok {
		return function.Function{}, storage.ErrAlreadyExists
	}
	s.functions[f.Name] = f
	return f, nil
}

func (s *Store) GetFunction(_ context.Context, name string) (function.Function, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	f, ok := s.functions[name]
	if !ok {
		return function.Function{}, storage.ErrNotFound
	}
	return f, nil
}

func (s *Store) UpdateFunction(_ context.Context, f function.Function) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.functions[f.Name]; !ok {
		return storage.ErrNotFound
	}
	s.functions[f.Name] = f
	return nil
}

func (s *Store) DeleteFunction(_ context.Context, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.functions[name]; !ok {
		return storage.ErrNotFound
	}
	delete(s.functions, name)
	return nil
}

func (s *Store) ListFunctionsByApp(_ context.Context, appName string, filter storage.ListFilter) ([]function.Function, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var matched []function.Function
	for _, f := range s.functions {
		if f.AppName == appName {
			matched = append(matched, f)
		}
	}
	sort.Slice(matched, func(i, j int) bool { return matched[i].Name < matched[j].Name })
	if filter.Offset >= len(matched) {
		return nil, nil
	}
	end := filter.Offset + filter.Limit
	if filter.Limit <= 0 || end > len(matched) {
		end = len(matched)
	}
	return matched[filter.Offset:end], nil
}

func (s *Store) SearchFunctions(_ context.Context, queryEmbedding []float32, limit int, appNames []string, publicOnly, activeOnly bool) ([]function.Function, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	allowed := make(map[string]struct{}, len(appNames))
	for _, n := range appNames {
		allowed[n] = struct{}{}
	}
	type scored struct {
		f     function.Function
		score float32
	}
	var candidates []scored
	for _, f := range s.functions {
		if len(appNames) > 0 {
			if _, ok := allowed[f.AppName]; !ok {
				continue
			}
		}
		owner, ok := s.apps[f.AppName]
		if !ok {
			continue
		}
		if !f.MatchesVisibility(publicOnly, activeOnly, owner.Visibility == "public", owner.Active) {
			continue
		}
		candidates = append(candidates, scored{f: f, score: cosineSimilarity(queryEmbedding, f.Embedding)})
	}
	sort.Slice(candidates, func(i, j int) bool {
		if candidates[i].score != candidates[j].score {
			return candidates[i].score > candidates[j].score
		}
		return candidates[i].f.Name < candidates[j].f.Name
	})
	if limit > 0 && len(candidates) > limit {
		candidates = candidates[:limit]
	}
	out := make([]function.Function, 0, len(candidates))
	for _, c := range candidates {
		out = append(out, c.f)
	}
	return out, nil
}

// --- App Configurations ---

func (s *Store) CreateAppConfiguration(_ context.Context, c appconfig.AppConfiguration) (appconfig.AppConfiguration, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := appConfigKey(c.ProjectID, c.AppName)
	if _, ok := s.appConfigs[key]; ok {
		return appconfig.AppConfiguration{}, storage.ErrAlreadyExists
	}
	s.appConfigs[key] = c
	return c, nil
}

func (s *Store) GetAppConfiguration(_ context.Context, projectID, appName string) (appconfig.AppConfiguration, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.appConfigs[appConfigKey(projectID, appName)]
	if !ok {
		return appconfig.AppConfiguration{}, storage.ErrNotFound
	}
	return c, nil
}

func (s *Store) UpdateAppConfiguration(_ context.Context, c appconfig.AppConfiguration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := appConfigKey(c.ProjectID, c.AppName)
	if _, ok := s.appConfigs[key]; !ok {
		return storage.ErrNotFound
	}
	s.appConfigs[key] = c
	return nil
}

func (s *Store) DeleteAppConfiguration(_ context.Context, projectID, appName string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := appConfigKey(projectID, appName)
	if _, ok := s.appConfigs[key]; !ok {
		return storage.ErrNotFound
	}
	delete(s.appConfigs, key)
	return nil
}

func (s *Store) ListAppConfigurationsByProject(_ context.Context, projectID string, filter storage.ListFilter) ([]appconfig.AppConfiguration, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var matched []appconfig.AppConfiguration
	for _, c := range s.appConfigs {
		if c.ProjectID == projectID {
			matched = append(matched, c)
		}
	}
	sort.Slice(matched, func(i, j int) bool { return matched[i].AppName < matched[j].AppName })
	if filter.Offset >= len(matched) {
		return nil, nil
	}
	end := filter.Offset + filter.Limit
	if filter.Limit <= 0 || end > len(matched) {
		end = len(matched)
	}
	return matched[filter.Offset:end], nil
}

// --- Linked Accounts ---

func (s *Store) CreateLinkedAccount(_ context.Context, la linkedaccount.LinkedAccount) (linkedaccount.LinkedAccount, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.linkedAccounts {
		if existing.ProjectID == la.ProjectID && existing.AppName == la.AppName && existing.LinkedAccountOwnerID == la.LinkedAccountOwnerID {
			return linkedaccount.LinkedAccount{}, storage.ErrAlreadyExists
		}
	}
	s.linkedAccounts[la.ID] = la
	return la, nil
}

func (s *Store) GetLinkedAccount(_ context.Context, projectID, appName, ownerID string) (linkedaccount.LinkedAccount, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, la := range s.linkedAccounts {
		if la.ProjectID == projectID && la.AppName == appName && la.LinkedAccountOwnerID == ownerID {
			return la, nil
		}
	}
	return linkedaccount.LinkedAccount{}, storage.ErrNotFound
}

func (s *Store) GetLinkedAccountByID(_ context.Context, id string) (linkedaccount.LinkedAccount, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	la, ok := s.linkedAccounts[id]
	if !ok {
		return linkedaccount.LinkedAccount{}, storage.ErrNotFound
	}
	return la, nil
}

func (s *Store) UpdateLinkedAccount(_ context.Context, la linkedaccount.LinkedAccount) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.linkedAccounts[la.ID]; !ok {
		return storage.ErrNotFound
	}
	s.linkedAccounts[la.ID] = la
	return nil
}

func (s *Store) DeleteLinkedAccount(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.linkedAccounts[id]; !ok {
		return storage.ErrNotFound
	}
	delete(s.linkedAccounts, id)
	return nil
}

func (s *Store) ListLinkedAccountsByProject(_ context.Context, projectID string, filter storage.ListFilter) ([]linkedaccount.LinkedAccount, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var matched []linkedaccount.LinkedAccount
	for _, la := range s.linkedAccounts {
		if la.ProjectID == projectID {
			matched = append(matched, la)
		}
	}
	sort.Slice(matched, func(i, j int) bool { return matched[i].ID < matched[j].ID })
	if filter.Offset >= len(matched) {
		return nil, nil
	}
	end := filter.Offset + filter.Limit
	if filter.Limit <= 0 || end > len(matched) {
		end = len(matched)
	}
	return matched[filter.Offset:end], nil
}

// --- Secrets ---

func (s *Store) CreateSecret(_ context.Context, sec secret.Secret) (secret.Secret, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := secretKey(sec.LinkedAccountID, sec.Domain)
	if _, exists := s.secrets[key]; exists {
		return secret.Secret{}, storage.ErrAlreadyExists
	}
	s.secrets[key] = sec
	return sec, nil
}

func (s *Store) UpdateSecret(_ context.Context, sec secret.Secret) (secret.Secret, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := secretKey(sec.LinkedAccountID, sec.Domain)
	if _, exists := s.secrets[key]; !exists {
		return secret.Secret{}, storage.ErrNotFound
	}
	s.secrets[key] = sec
	return sec, nil
}

func (s *Store) GetSecret(_ context.Context, linkedAccountID, domain string) (secret.Secret, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sec, ok := s.secrets[secretKey(linkedAccountID, domain)]
	if !ok {
		return secret.Secret{}, storage.ErrNotFound
	}
	return sec, nil
}

func (s *Store) DeleteSecret(_ context.Context, linkedAccountID, domain string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := secretKey(linkedAccountID, domain)
	if _, ok := s.secrets[key]; !ok {
		return storage.ErrNotFound
	}
	delete(s.secrets, key)
	return nil
}

func (s *Store) ListSecretsByLinkedAccount(_ context.Context, linkedAccountID string) ([]secret.Secret, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []secret.Secret
	for _, sec := range s.secrets {
		if sec.LinkedAccountID == linkedAccountID {
			out = append(out, sec)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Domain < out[j].Domain })
	return out, nil
}
