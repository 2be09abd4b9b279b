// Package postgres implements storage.Store against a PostgreSQL database
// using database/sql directly with lib/pq, the same pattern the teacher's
// internal/platform/database package establishes (sql.Open + explicit SQL,
// no ORM, no sqlx: DESIGN.md drops jmoiron/sqlx as unused even in
// the teacher's own tree).
//
// No pgvector (or other vector-index) driver exists anywhere in the
// example pack this project was grounded on, so SearchApps/SearchFunctions
// fetch a filtered candidate set with plain SQL and rank it by cosine
// similarity in Go — documented in DESIGN.md as the one stdlib-only
// exception to this project's "always reach for a library" rule.
package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"math"
	"sort"

	"github.com/r3e-network/agentcp/internal/app/domain/agent"
	"github.com/r3e-network/agentcp/internal/app/domain/app"
	"github.com/r3e-network/agentcp/internal/app/domain/appconfig"
	"github.com/r3e-network/agentcp/internal/app/domain/function"
	"github.com/r3e-network/agentcp/internal/app/domain/linkedaccount"
	"github.com/r3e-network/agentcp/internal/app/domain/project"
	"github.com/r3e-network/agentcp/internal/app/domain/secret"
	"github.com/r3e-network/agentcp/internal/app/domain/securityscheme"
	"github.com/r3e-network/agentcp/internal/app/storage"

	_ "github.com/lib/pq"
)

// Store implements storage.Store against Postgres.
type Store struct {
	db *sql.DB
}

// New wraps an already-opened *sql.DB (see internal/platform/database.Open).
func New(db *sql.DB) *Store {
	return &Store{db: db}
}

var _ storage.Store = (*Store)(nil)

func isNoRows(err error) bool { return err == sql.ErrNoRows }

// --- Projects ---

func (s *Store) CreateProject(ctx context.Context, p project.Project) (project.Project, error) {
	const q = `INSERT INTO projects (id, org_id, name, visibility_access, daily_quota_used, daily_quota_reset_at, total_quota_used, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,now(),now()) RETURNING created_at, updated_at`
	err := s.db.QueryRowContext(ctx, q, p.ID, p.OrgID, p.Name, p.VisibilityAccess, p.DailyQuotaUsed, p.DailyQuotaResetAt, p.TotalQuotaUsed).
		Scan(&p.CreatedAt, &p.UpdatedAt)
	if isUniqueViolation(err) {
		return project.Project{}, storage.ErrAlreadyExists
	}
	if err != nil {
		return project.Project{}, fmt.Errorf("postgres: create project: %w", err)
	}
	return p, nil
}

func (s *Store) GetProject(ctx context.Context, id string) (project.Project, error) {
	const q = `SELECT id, org_id, name, visibility_access, daily_quota_used, daily_quota_reset_at, total_quota_used, created_at, updated_at
		FROM projects WHERE id = $1`
	var p project.Project
	err := s.db.QueryRowContext(ctx, q, id).Scan(&p.ID, &p.OrgID, &p.Name, &p.VisibilityAccess,
		&p.DailyQuotaUsed, &p.DailyQuotaResetAt, &p.TotalQuotaUsed, &p.CreatedAt, &p.UpdatedAt)
	if isNoRows(err) {
		return project.Project{}, storage.ErrNotFound
	}
	if err != nil {
		return project.Project{}, fmt.Errorf("postgres: get project: %w", err)
	}
	return p, nil
}

func (s *Store) UpdateProject(ctx context.Context, p project.Project) error {
	const q = `UPDATE projects SET name=$2, visibility_access=$3, daily_quota_used=$4, daily_quota_reset_at=$5, total_quota_used=$6, updated_at=now()
		WHERE id=$1`
	res, err := s.db.ExecContext(ctx, q, p.ID, p.Name, p.VisibilityAccess, p.DailyQuotaUsed, p.DailyQuotaResetAt, p.TotalQuotaUsed)
	return rowsAffectedErr(res, err, "update project")
}

func (s *Store) DeleteProject(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM projects WHERE id=$1`, id)
	return rowsAffectedErr(res, err, "delete project")
}

func (s *Store) ListProjectsByOrg(ctx context.Context, orgID string) ([]project.Project, error) {
	const q = `SELECT id, org_id, name, visibility_access, daily_quota_used, daily_quota_reset_at, total_quota_used, created_at, updated_at
		FROM projects WHERE org_id=$1 ORDER BY id`
	rows, err := s.db.QueryContext(ctx, q, orgID)
	if err != nil {
		return nil, fmt.Errorf("postgres: list projects: %w", err)
	}
	defer rows.Close()
	var out []project.Project
	for rows.Next() {
		var p project.Project
		if err := rows.Scan(&p.ID, &p.OrgID, &p.Name, &p.VisibilityAccess, &p.DailyQuotaUsed, &p.DailyQuotaResetAt, &p.TotalQuotaUsed, &p.CreatedAt, &p.UpdatedAt); err != nil {
			return nil, fmt.Errorf("postgres: scan project: %w", err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func (s *Store) ListAllProjects(ctx context.Context) ([]project.Project, error) {
	const q = `SELECT id, org_id, name, visibility_access, daily_quota_used, daily_quota_reset_at, total_quota_used, created_at, updated_at
		FROM projects ORDER BY id`
	rows, err := s.db.QueryContext(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("postgres: list all projects: %w", err)
	}
	defer rows.Close()
	var out []project.Project
	for rows.Next() {
		var p project.Project
		if err := rows.Scan(&p.ID, &p.OrgID, &p.Name, &p.VisibilityAccess, &p.DailyQuotaUsed, &p.DailyQuotaResetAt, &p.TotalQuotaUsed, &p.CreatedAt, &p.UpdatedAt); err != nil {
			return nil, fmt.Errorf("postgres: scan project: %w", err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func (s *Store) CountProjectsByOrg(ctx context.Context, orgID string) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT count(*) FROM projects WHERE org_id=$1`, orgID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("postgres: count projects: %w", err)
	}
	return n, nil
}

func (s *Store) ProjectExists(ctx context.Context, id string) (bool, error) {
	var exists bool
	err := s.db.QueryRowContext(ctx, `SELECT EXISTS(SELECT 1 FROM projects WHERE id=$1)`, id).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("postgres: project exists: %w", err)
	}
	return exists, nil
}

// --- Agents & API Keys ---

func (s *Store) CreateAgent(ctx context.Context, a agent.Agent) (agent.Agent, error) {
	allowedApps, err := json.Marshal(a.AllowedApps)
	if err != nil {
		return agent.Agent{}, err
	}
	customInstruction, err := json.Marshal(a.CustomInstruction)
	if err != nil {
		return agent.Agent{}, err
	}
	const q = `INSERT INTO agents (id, project_id, name, description, allowed_apps, custom_instructions, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,now(),now()) RETURNING created_at, updated_at`
	err = s.db.QueryRowContext(ctx, q, a.ID, a.ProjectID, a.Name, a.Description, allowedApps, customInstruction).
		Scan(&a.CreatedAt, &a.UpdatedAt)
	if isUniqueViolation(err) {
		return agent.Agent{}, storage.ErrAlreadyExists
	}
	if err != nil {
		return agent.Agent{}, fmt.Errorf("postgres: create agent: %w", err)
	}
	return a, nil
}

func (s *Store) scanAgent(row *sql.Row) (agent.Agent, error) {
	var a agent.Agent
	var allowedApps, customInstruction []byte
	err := row.Scan(&a.ID, &a.ProjectID, &a.Name, &a.Description, &allowedApps, &customInstruction, &a.CreatedAt, &a.UpdatedAt)
	if isNoRows(err) {
		return agent.Agent{}, storage.ErrNotFound
	}
	if err != nil {
		return agent.Agent{}, fmt.Errorf("postgres: scan agent: %w", err)
	}
	if err := json.Unmarshal(allowedApps, &a.AllowedApps); err != nil {
		return agent.Agent{}, err
	}
	if err := json.Unmarshal(customInstruction, &a.CustomInstruction); err != nil {
		return agent.Agent{}, err
	}
	return a, nil
}

func (s *Store) GetAgent(ctx context.Context, id string) (agent.Agent, error) {
	const q = `SELECT id, project_id, name, description, allowed_apps, custom_instructions, created_at, updated_at FROM agents WHERE id=$1`
	return s.scanAgent(s.db.QueryRowContext(ctx, q, id))
}

func (s *Store) UpdateAgent(ctx context.Context, a agent.Agent) error {
	allowedApps, err := json.Marshal(a.AllowedApps)
	if err != nil {
		return err
	}
	customInstruction, err := json.Marshal(a.CustomInstruction)
	if err != nil {
		return err
	}
	const q = `UPDATE agents SET name=$2, description=$3, allowed_apps=$4, custom_instructions=$5, updated_at=now() WHERE id=$1`
	res, err := s.db.ExecContext(ctx, q, a.ID, a.Name, a.Description, allowedApps, customInstruction)
	return rowsAffectedErr(res, err, "update agent")
}

func (s *Store) DeleteAgent(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM agents WHERE id=$1`, id)
	return rowsAffectedErr(res, err, "delete agent")
}

func (s *Store) ListAgentsByProject(ctx context.Context, projectID string) ([]agent.Agent, error) {
	const q = `SELECT id, project_id, name, description, allowed_apps, custom_instructions, created_at, updated_at FROM agents WHERE project_id=$1 ORDER BY id`
	return s.queryAgents(ctx, q, projectID)
}

func (s *Store) ListAgentsAllowingApp(ctx context.Context, appName string) ([]agent.Agent, error) {
	const q = `SELECT id, project_id, name, description, allowed_apps, custom_instructions, created_at, updated_at FROM agents WHERE allowed_apps @> $1 ORDER BY id`
	needle, err := json.Marshal([]string{appName})
	if err != nil {
		return nil, err
	}
	return s.queryAgents(ctx, q, needle)
}

func (s *Store) queryAgents(ctx context.Context, q string, args ...interface{}) ([]agent.Agent, error) {
	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: list agents: %w", err)
	}
	defer rows.Close()
	var out []agent.Agent
	for rows.Next() {
		var a agent.Agent
		var allowedApps, customInstruction []byte
		if err := rows.Scan(&a.ID, &a.ProjectID, &a.Name, &a.Description, &allowedApps, &customInstruction, &a.CreatedAt, &a.UpdatedAt); err != nil {
			return nil, fmt.Errorf("postgres: scan agent: %w", err)
		}
		_ = json.Unmarshal(allowedApps, &a.AllowedApps)
		_ = json.Unmarshal(customInstruction, &a.CustomInstruction)
		out = append(out, a)
	}
	return out, rows.Err()
}

func (s *Store) CountAgentsByProject(ctx context.Context, projectID string) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT count(*) FROM agents WHERE project_id=$1`, projectID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("postgres: count agents: %w", err)
	}
	return n, nil
}

func (s *Store) CreateAPIKey(ctx context.Context, k agent.APIKey) (agent.APIKey, error) {
	const q = `INSERT INTO api_keys (id, agent_id, ciphertext, key_hmac, status, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,now(),now()) RETURNING created_at, updated_at`
	err := s.db.QueryRowContext(ctx, q, k.ID, k.AgentID, k.Ciphertext, k.KeyHMAC, k.Status).Scan(&k.CreatedAt, &k.UpdatedAt)
	if isUniqueViolation(err) {
		return agent.APIKey{}, storage.ErrAlreadyExists
	}
	if err != nil {
		return agent.APIKey{}, fmt.Errorf("postgres: create api key: %w", err)
	}
	return k, nil
}

func (s *Store) GetAPIKeyByHMAC(ctx context.Context, hmac string) (agent.APIKey, error) {
	const q = `SELECT id, agent_id, ciphertext, key_hmac, status, created_at, updated_at FROM api_keys WHERE key_hmac=$1`
	var k agent.APIKey
	err := s.db.QueryRowContext(ctx, q, hmac).Scan(&k.ID, &k.AgentID, &k.Ciphertext, &k.KeyHMAC, &k.Status, &k.CreatedAt, &k.UpdatedAt)
	if isNoRows(err) {
		return agent.APIKey{}, storage.ErrNotFound
	}
	if err != nil {
		return agent.APIKey{}, fmt.Errorf("postgres: get api key: %w", err)
	}
	return k, nil
}

func (s *Store) UpdateAPIKey(ctx context.Context, k agent.APIKey) error {
	const q = `UPDATE api_keys SET ciphertext=$2, key_hmac=$3, status=$4, updated_at=now() WHERE id=$1`
	res, err := s.db.ExecContext(ctx, q, k.ID, k.Ciphertext, k.KeyHMAC, k.Status)
	return rowsAffectedErr(res, err, "update api key")
}

func (s *Store) ListAPIKeysByAgent(ctx context.Context, agentID string) ([]agent.APIKey, error) {
	const q = `SELECT id, agent_id, ciphertext, key_hmac, status, created_at, updated_at FROM api_keys WHERE agent_id=$1 ORDER BY id`
	rows, err := s.db.QueryContext(ctx, q, agentID)
	if err != nil {
		return nil, fmt.Errorf("postgres: list api keys: %w", err)
	}
	defer rows.Close()
	var out []agent.APIKey
	for rows.Next() {
		var k agent.APIKey
		if err := rows.Scan(&k.ID, &k.AgentID, &k.Ciphertext, &k.KeyHMAC, &k.Status, &k.CreatedAt, &k.UpdatedAt); err != nil {
			return nil, fmt.Errorf("postgres: scan api key: %w", err)
		}
		out = append(out, k)
	}
	return out, rows.Err()
}

// --- Apps ---

func (s *Store) CreateApp(ctx context.Context, a app.App) (app.App, error) {
	categories, schemes, defaults, embedding, err := marshalAppJSON(a)
	if err != nil {
		return app.App{}, err
	}
	const q = `INSERT INTO apps (name, display_name, provider, version, description, logo, categories, visibility, active, security_schemes, default_security_credentials, embedding, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,now(),now()) RETURNING created_at, updated_at`
	err = s.db.QueryRowContext(ctx, q, a.Name, a.DisplayName, a.Provider, a.Version, a.Description, a.Logo,
		categories, a.Visibility, a.Active, schemes, defaults, embedding).Scan(&a.CreatedAt, &a.UpdatedAt)
	if isUniqueViolation(err) {
		return app.App{}, storage.ErrAlreadyExists
	}
	if err != nil {
		return app.App{}, fmt.Errorf("postgres: create app: %w", err)
	}
	return a, nil
}

func marshalAppJSON(a app.App) (categories, schemes, defaults, embedding []byte, err error) {
	if categories, err = json.Marshal(a.Categories); err != nil {
		return
	}
	if schemes, err = json.Marshal(a.SecuritySchemes); err != nil {
		return
	}
	if defaults, err = json.Marshal(a.DefaultSecurityCredentialsRaw); err != nil {
		return
	}
	if embedding, err = json.Marshal(a.Embedding); err != nil {
		return
	}
	return
}

func scanApp(row interface {
	Scan(dest ...interface{}) error
}) (app.App, error) {
	var a app.App
	var categories, schemes, defaults, embedding []byte
	err := row.Scan(&a.Name, &a.DisplayName, &a.Provider, &a.Version, &a.Description, &a.Logo,
		&categories, &a.Visibility, &a.Active, &schemes, &defaults, &embedding, &a.CreatedAt, &a.UpdatedAt)
	if isNoRows(err) {
		return app.App{}, storage.ErrNotFound
	}
	if err != nil {
		return app.App{}, fmt.Errorf("postgres: scan app: %w", err)
	}
	_ = json.Unmarshal(categories, &a.Categories)
	_ = json.Unmarshal(schemes, &a.SecuritySchemes)
	_ = json.Unmarshal(defaults, &a.DefaultSecurityCredentialsRaw)
	_ = json.Unmarshal(embedding, &a.Embedding)
	return a, nil
}

const appColumns = `name, display_name, provider, version, description, logo, categories, visibility, active, security_schemes, default_security_credentials, embedding, created_at, updated_at`

func (s *Store) GetApp(ctx context.Context, name string) (app.App, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+appColumns+` FROM apps WHERE name=$1`, name)
	return scanApp(row)
}

func (s *Store) UpdateApp(ctx context.Context, a app.App) error {
	categories, schemes, defaults, embedding, err := marshalAppJSON(a)
	if err != nil {
		return err
	}
	const q = `UPDATE apps SET display_name=$2, provider=$3, version=$4, description=$5, logo=$6, categories=$7, visibility=$8, active=$9, security_schemes=$10, default_security_credentials=$11, embedding=$12, updated_at=now()
		WHERE name=$1`
	res, err := s.db.ExecContext(ctx, q, a.Name, a.DisplayName, a.Provider, a.Version, a.Description, a.Logo, categories, a.Visibility, a.Active, schemes, defaults, embedding)
	return rowsAffectedErr(res, err, "update app")
}

func (s *Store) DeleteApp(ctx context.Context, name string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM apps WHERE name=$1`, name)
	return rowsAffectedErr(res, err, "delete app")
}

func (s *Store) RenameApp(ctx context.Context, oldName, newName string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("postgres: rename app begin: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `UPDATE apps SET name=$2, updated_at=now() WHERE name=$1`, oldName, newName)
	if err := rowsAffectedErr(res, err, "rename app"); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, `UPDATE functions SET name = $2 || substring(name from length($1)+1), app_name=$2 WHERE app_name=$1`, oldName, newName); err != nil {
		return fmt.Errorf("postgres: rename app functions: %w", err)
	}
	return tx.Commit()
}

func (s *Store) ListApps(ctx context.Context, filter storage.ListFilter, publicOnly, activeOnly bool) ([]app.App, error) {
	q := `SELECT ` + appColumns + ` FROM apps WHERE ($1 = false OR visibility = 'public') AND ($2 = false OR active = true) ORDER BY name OFFSET $3 LIMIT $4`
	limit := filter.Limit
	if limit <= 0 {
		limit = 1 << 30
	}
	rows, err := s.db.QueryContext(ctx, q, publicOnly, activeOnly, filter.Offset, limit)
	if err != nil {
		return nil, fmt.Errorf("postgres: list apps: %w", err)
	}
	defer rows.Close()
	var out []app.App
	for rows.Next() {
		a, err := scanApp(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

// SearchApps fetches every App matching the filters, then ranks by cosine
// similarity in Go (no vector-index driver in this deployment; see the
// package doc comment).
func (s *Store) SearchApps(ctx context.Context, queryEmbedding []float32, limit int, publicOnly, activeOnly bool, categories []string) ([]app.App, error) {
	q := `SELECT ` + appColumns + ` FROM apps WHERE ($1 = false OR visibility = 'public') AND ($2 = false OR active = true)`
	args := []interface{}{publicOnly, activeOnly}
	if len(categories) > 0 {
		catJSON, err := json.Marshal(categories)
		if err != nil {
			return nil, err
		}
		q += ` AND categories ?| (SELECT array_agg(x) FROM json_array_elements_text($3) x)`
		args = append(args, catJSON)
	}
	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: search apps: %w", err)
	}
	defer rows.Close()
	var candidates []app.App
	for rows.Next() {
		a, err := scanApp(rows)
		if err != nil {
			return nil, err
		}
		candidates = append(candidates, a)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return rankAppsByEmbedding(candidates, queryEmbedding, limit), nil
}

func rankAppsByEmbedding(candidates []app.App, query []float32, limit int) []app.App {
	type scored struct {
		a     app.App
		score float32
	}
	scoredList := make([]scored, 0, len(candidates))
	for _, a := range candidates {
		scoredList = append(scoredList, scored{a: a, score: cosineSimilarity(query, a.Embedding)})
	}
	sort.Slice(scoredList, func(i, j int) bool {
		if scoredList[i].score != scoredList[j].score {
			return scoredList[i].score > scoredList[j].score
		}
		return scoredList[i].a.Name < scoredList[j].a.Name
	})
	if limit > 0 && len(scoredList) > limit {
		scoredList = scoredList[:limit]
	}
	out := make([]app.App, 0, len(scoredList))
	for _, c := range scoredList {
		out = append(out, c.a)
	}
	return out
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

func marshalFunctionJSON(f function.Function) (tags, restData, parameters, response, embedding []byte, err error) {
	if tags, err = json.Marshal(f.Tags); err != nil {
		return
	}
	if restData, err = json.Marshal(f.RESTData); err != nil {
		return
	}
	if parameters, err = json.Marshal(f.Parameters); err != nil {
		return
	}
	if response, err = json.Marshal(f.Response); err != nil {
		return
	}
	if embedding, err = json.Marshal(f.Embedding); err != nil {
		return
	}
	return
}

const functionColumns = `name, app_name, description, tags, visibility, active, protocol, rest_data, connector_key, parameters, response, embedding, created_at, updated_at`

func scanFunction(row interface {
	Scan(dest ...interface{}) error
}) (function.Function, error) {
	var f function.Function
	var tags, restData, parameters, response, embedding []byte
	err := row.Scan(&f.Name, &f.AppName, &f.Description, &tags, &f.Visibility, &f.Active, &f.Protocol,
		&restData, &f.ConnectorKey, &parameters, &response, &embedding, &f.CreatedAt, &f.UpdatedAt)
	if isNoRows(err) {
		return function.Function{}, storage.ErrNotFound
	}
	if err != nil {
		return function.Function{}, fmt.Errorf("postgres: scan function: %w", err)
	}
	_ = json.Unmarshal(tags, &f.Tags)
	if len(restData) > 0 && string(restData) != "null" {
		f.RESTData = &function.RESTProtocolData{}
		_ = json.Unmarshal(restData, f.RESTData)
	}
	_ = json.Unmarshal(parameters, &f.Parameters)
	_ = json.Unmarshal(response, &f.Response)
	_ = json.Unmarshal(embedding, &f.Embedding)
	return f, nil
}

func (s *Store) CreateFunction(ctx context.Context, f function.Function) (function.Function, error) {
	tags, restData, parameters, response, embedding, err := marshalFunctionJSON(f)
	if err != nil {
		return function.Function{}, err
	}
	const q = `INSERT INTO functions (name, app_name, description, tags, visibility, active, protocol, rest_data, connector_key, parameters, response, embedding, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,now(),now()) RETURNING created_at, updated_at`
	err = s.db.QueryRowContext(ctx, q, f.Name, f.AppName, f.Description, tags, f.Visibility, f.Active, f.Protocol,
		restData, f.ConnectorKey, parameters, response, embedding).Scan(&f.CreatedAt, &f.UpdatedAt)
	if isUniqueViolation(err) {
		return function.Function{}, storage.ErrAlreadyExists
	}
	if err != nil {
		return function.Function{}, fmt.Errorf("postgres: create function: %w", err)
	}
	return f, nil
}

func (s *Store) GetFunction(ctx context.Context, name string) (function.Function, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+functionColumns+` FROM functions WHERE name=$1`, name)
	return scanFunction(row)
}

func (s *Store) UpdateFunction(ctx context.Context, f function.Function) error {
	tags, restData, parameters, response, embedding, err := marshalFunctionJSON(f)
	if err != nil {
		return err
	}
	const q = `UPDATE functions SET description=$2, tags=$3, visibility=$4, active=$5, protocol=$6, rest_data=$7, connector_key=$8, parameters=$9, response=$10, embedding=$11, updated_at=now()
		WHERE name=$1`
	res, err := s.db.ExecContext(ctx, q, f.Name, f.Description, tags, f.Visibility, f.Active, f.Protocol, restData, f.ConnectorKey, parameters, response, embedding)
	return rowsAffectedErr(res, err, "update function")
}

func (s *Store) DeleteFunction(ctx context.Context, name string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM functions WHERE name=$1`, name)
	return rowsAffectedErr(res, err, "delete function")
}

func (s *Store) ListFunctionsByApp(ctx context.Context, appName string, filter storage.ListFilter) ([]function.Function, error) {
	limit := filter.Limit
	if limit <= 0 {
		limit = 1 << 30
	}
	q := `SELECT ` + functionColumns + ` FROM functions WHERE app_name=$1 ORDER BY name OFFSET $2 LIMIT $3`
	rows, err := s.db.QueryContext(ctx, q, appName, filter.Offset, limit)
	if err != nil {
		return nil, fmt.Errorf("postgres: list functions: %w", err)
	}
	defer rows.Close()
	var out []function.Function
	for rows.Next() {
		f, err := scanFunction(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, f)
	}
	return out, rows.Err()
}

// SearchFunctions fetches candidate Functions joined against their owning
// App's visibility/active flags, then ranks by cosine similarity in Go
// (see package doc comment).
func (s *Store) SearchFunctions(ctx context.Context, queryEmbedding []float32, limit int, appNames []string, publicOnly, activeOnly bool) ([]function.Function, error) {
	q := `SELECT f.name, f.app_name, f.description, f.tags, f.visibility, f.active, f.protocol, f.rest_data, f.connector_key, f.parameters, f.response, f.embedding, f.created_at, f.updated_at
		FROM functions f JOIN apps a ON a.name = f.app_name
		WHERE ($1 = false OR (f.visibility = 'public' AND a.visibility = 'public'))
		AND ($2 = false OR (f.active = true AND a.active = true))`
	args := []interface{}{publicOnly, activeOnly}
	if len(appNames) > 0 {
		namesJSON, err := json.Marshal(appNames)
		if err != nil {
			return nil, err
		}
		q += ` AND f.app_name IN (SELECT jsonb_array_elements_text($3::jsonb))`
		args = append(args, namesJSON)
	}
	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: search functions: %w", err)
	}
	defer rows.Close()
	var candidates []function.Function
	for rows.Next() {
		f, err := scanFunction(rows)
		if err != nil {
			return nil, err
		}
		candidates = append(candidates, f)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	type scored struct {
		f     function.Function
		score float32
	}
	scoredList := make([]scored, 0, len(candidates))
	for _, f := range candidates {
		scoredList = append(scoredList, scored{f: f, score: cosineSimilarity(queryEmbedding, f.Embedding)})
	}
	sort.Slice(scoredList, func(i, j int) bool {
		if scoredList[i].score != scoredList[j].score {
			return scoredList[i].score > scoredList[j].score
		}
		return scoredList[i].f.Name < scoredList[j].f.Name
	})
	if limit > 0 && len(scoredList) > limit {
		scoredList = scoredList[:limit]
	}
	out := make([]function.Function, 0, len(scoredList))
	for _, c := range scoredList {
		out = append(out, c.f)
	}
	return out, nil
}

// --- App Configurations ---

func (s *Store) CreateAppConfiguration(ctx context.Context, c appconfig.AppConfiguration) (appconfig.AppConfiguration, error) {
	oauth2Override, enabledFunctions, err := marshalAppConfigJSON(c)
	if err != nil {
		return appconfig.AppConfiguration{}, err
	}
	const q = `INSERT INTO app_configurations (id, project_id, app_name, security_scheme, oauth2_override, enabled, all_functions_enabled, enabled_functions, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,now(),now()) RETURNING created_at, updated_at`
	err = s.db.QueryRowContext(ctx, q, c.ID, c.ProjectID, c.AppName, c.SecurityScheme, oauth2Override, c.Enabled, c.AllFunctionsEnabled, enabledFunctions).
		Scan(&c.CreatedAt, &c.UpdatedAt)
	if isUniqueViolation(err) {
		return appconfig.AppConfiguration{}, storage.ErrAlreadyExists
	}
	if err != nil {
		return appconfig.AppConfiguration{}, fmt.Errorf("postgres: create app configuration: %w", err)
	}
	return c, nil
}

func marshalAppConfigJSON(c appconfig.AppConfiguration) (oauth2Override, enabledFunctions []byte, err error) {
	if oauth2Override, err = json.Marshal(c.OAuth2Override); err != nil {
		return
	}
	if enabledFunctions, err = json.Marshal(c.EnabledFunctions); err != nil {
		return
	}
	return
}

const appConfigColumns = `id, project_id, app_name, security_scheme, oauth2_override, enabled, all_functions_enabled, enabled_functions, created_at, updated_at`

func scanAppConfig(row interface {
	Scan(dest ...interface{}) error
}) (appconfig.AppConfiguration, error) {
	var c appconfig.AppConfiguration
	var oauth2Override, enabledFunctions []byte
	err := row.Scan(&c.ID, &c.ProjectID, &c.AppName, &c.SecurityScheme, &oauth2Override, &c.Enabled, &c.AllFunctionsEnabled, &enabledFunctions, &c.CreatedAt, &c.UpdatedAt)
	if isNoRows(err) {
		return appconfig.AppConfiguration{}, storage.ErrNotFound
	}
	if err != nil {
		return appconfig.AppConfiguration{}, fmt.Errorf("postgres: scan app configuration: %w", err)
	}
	if len(oauth2Override) > 0 && string(oauth2Override) != "null" {
		c.OAuth2Override = &securityscheme.OAuth2Scheme{}
		_ = json.Unmarshal(oauth2Override, c.OAuth2Override)
	}
	_ = json.Unmarshal(enabledFunctions, &c.EnabledFunctions)
	return c, nil
}

func (s *Store) GetAppConfiguration(ctx context.Context, projectID, appName string) (appconfig.AppConfiguration, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+appConfigColumns+` FROM app_configurations WHERE project_id=$1 AND app_name=$2`, projectID, appName)
	return scanAppConfig(row)
}

func (s *Store) UpdateAppConfiguration(ctx context.Context, c appconfig.AppConfiguration) error {
	oauth2Override, enabledFunctions, err := marshalAppConfigJSON(c)
	if err != nil {
		return err
	}
	const q = `UPDATE app_configurations SET security_scheme=$3, oauth2_override=$4, enabled=$5, all_functions_enabled=$6, enabled_functions=$7, updated_at=now()
		WHERE project_id=$1 AND app_name=$2`
	res, err := s.db.ExecContext(ctx, q, c.ProjectID, c.AppName, c.SecurityScheme, oauth2Override, c.Enabled, c.AllFunctionsEnabled, enabledFunctions)
	return rowsAffectedErr(res, err, "update app configuration")
}

func (s *Store) DeleteAppConfiguration(ctx context.Context, projectID, appName string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM app_configurations WHERE project_id=$1 AND app_name=$2`, projectID, appName)
	return rowsAffectedErr(res, err, "delete app configuration")
}

func (s *Store) ListAppConfigurationsByProject(ctx context.Context, projectID string, filter storage.ListFilter) ([]appconfig.AppConfiguration, error) {
	limit := filter.Limit
	if limit <= 0 {
		limit = 1 << 30
	}
	q := `SELECT ` + appConfigColumns + ` FROM app_configurations WHERE project_id=$1 ORDER BY app_name OFFSET $2 LIMIT $3`
	rows, err := s.db.QueryContext(ctx, q, projectID, filter.Offset, limit)
	if err != nil {
		return nil, fmt.Errorf("postgres: list app configurations: %w", err)
	}
	defer rows.Close()
	var out []appconfig.AppConfiguration
	for rows.Next() {
		c, err := scanAppConfig(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// --- Linked Accounts ---

func marshalLinkedAccountJSON(la linkedaccount.LinkedAccount) ([]byte, error) {
	return json.Marshal(la.SecurityCredentialsRaw)
}

const linkedAccountColumns = `id, project_id, app_name, linked_account_owner_id, security_scheme, security_credentials, enabled, last_used_at, created_at, updated_at`

func scanLinkedAccount(row interface {
	Scan(dest ...interface{}) error
}) (linkedaccount.LinkedAccount, error) {
	var la linkedaccount.LinkedAccount
	var credentials []byte
	err := row.Scan(&la.ID, &la.ProjectID, &la.AppName, &la.LinkedAccountOwnerID, &la.SecurityScheme, &credentials, &la.Enabled, &la.LastUsedAt, &la.CreatedAt, &la.UpdatedAt)
	if isNoRows(err) {
		return linkedaccount.LinkedAccount{}, storage.ErrNotFound
	}
	if err != nil {
		return linkedaccount.LinkedAccount{}, fmt.Errorf("postgres: scan linked account: %w", err)
	}
	_ = json.Unmarshal(credentials, &la.SecurityCredentialsRaw)
	return la, nil
}

func (s *Store) CreateLinkedAccount(ctx context.Context, la linkedaccount.LinkedAccount) (linkedaccount.LinkedAccount, error) {
	credentials, err := marshalLinkedAccountJSON(la)
	if err != nil {
		return linkedaccount.LinkedAccount{}, err
	}
	const q = `INSERT INTO linked_accounts (id, project_id, app_name, linked_account_owner_id, security_scheme, security_credentials, enabled, last_used_at, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,now(),now()) RETURNING created_at, updated_at`
	err = s.db.QueryRowContext(ctx, q, la.ID, la.ProjectID, la.AppName, la.LinkedAccountOwnerID, la.SecurityScheme, credentials, la.Enabled, la.LastUsedAt).
		Scan(&la.CreatedAt, &la.UpdatedAt)
	if isUniqueViolation(err) {
		return linkedaccount.LinkedAccount{}, storage.ErrAlreadyExists
	}
	if err != nil {
		return linkedaccount.LinkedAccount{}, fmt.Errorf("postgres: create linked account: %w", err)
	}
	return la, nil
}

func (s *Store) GetLinkedAccount(ctx context.Context, projectID, appName, ownerID string) (linkedaccount.LinkedAccount, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+linkedAccountColumns+` FROM linked_accounts WHERE project_id=$1 AND app_name=$2 AND linked_account_owner_id=$3`, projectID, appName, ownerID)
	return scanLinkedAccount(row)
}

func (s *Store) GetLinkedAccountByID(ctx context.Context, id string) (linkedaccount.LinkedAccount, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+linkedAccountColumns+` FROM linked_accounts WHERE id=$1`, id)
	return scanLinkedAccount(row)
}

func (s *Store) UpdateLinkedAccount(ctx context.Context, la linkedaccount.LinkedAccount) error {
	credentials, err := marshalLinkedAccountJSON(la)
	if err != nil {
		return err
	}
	const q = `UPDATE linked_accounts SET security_scheme=$2, security_credentials=$3, enabled=$4, last_used_at=$5, updated_at=now() WHERE id=$1`
	res, err := s.db.ExecContext(ctx, q, la.ID, la.SecurityScheme, credentials, la.Enabled, la.LastUsedAt)
	return rowsAffectedErr(res, err, "update linked account")
}

func (s *Store) DeleteLinkedAccount(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM linked_accounts WHERE id=$1`, id)
	return rowsAffectedErr(res, err, "delete linked account")
}

func (s *Store) ListLinkedAccountsByProject(ctx context.Context, projectID string, filter storage.ListFilter) ([]linkedaccount.LinkedAccount, error) {
	limit := filter.Limit
	if limit <= 0 {
		limit = 1 << 30
	}
	q := `SELECT ` + linkedAccountColumns + ` FROM linked_accounts WHERE project_id=$1 ORDER BY id OFFSET $2 LIMIT $3`
	rows, err := s.db.QueryContext(ctx, q, projectID, filter.Offset, limit)
	if err != nil {
		return nil, fmt.Errorf("postgres: list linked accounts: %w", err)
	}
	defer rows.Close()
	var out []linkedaccount.LinkedAccount
	for rows.Next() {
		la, err := scanLinkedAccount(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, la)
	}
	return out, rows.Err()
}

// --- Secrets ---

func (s *Store) CreateSecret(ctx context.Context, sec secret.Secret) (secret.Secret, error) {
	const q = `INSERT INTO secrets (id, linked_account_id, domain, username, password, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,now(),now())
		RETURNING created_at, updated_at`
	err := s.db.QueryRowContext(ctx, q, sec.ID, sec.LinkedAccountID, sec.Domain, sec.Username, sec.Password).
		Scan(&sec.CreatedAt, &sec.UpdatedAt)
	if isUniqueViolation(err) {
		return secret.Secret{}, storage.ErrAlreadyExists
	}
	if err != nil {
		return secret.Secret{}, fmt.Errorf("postgres: create secret: %w", err)
	}
	return sec, nil
}

func (s *Store) UpdateSecret(ctx context.Context, sec secret.Secret) (secret.Secret, error) {
	const q = `UPDATE secrets SET username=$3, password=$4, updated_at=now()
		WHERE linked_account_id=$1 AND domain=$2
		RETURNING id, created_at, updated_at`
	err := s.db.QueryRowContext(ctx, q, sec.LinkedAccountID, sec.Domain, sec.Username, sec.Password).
		Scan(&sec.ID, &sec.CreatedAt, &sec.UpdatedAt)
	if isNoRows(err) {
		return secret.Secret{}, storage.ErrNotFound
	}
	if err != nil {
		return secret.Secret{}, fmt.Errorf("postgres: update secret: %w", err)
	}
	return sec, nil
}

func (s *Store) GetSecret(ctx context.Context, linkedAccountID, domain string) (secret.Secret, error) {
	const q = `SELECT id, linked_account_id, domain, username, password, created_at, updated_at FROM secrets WHERE linked_account_id=$1 AND domain=$2`
	var sec secret.Secret
	err := s.db.QueryRowContext(ctx, q, linkedAccountID, domain).
		Scan(&sec.ID, &sec.LinkedAccountID, &sec.Domain, &sec.Username, &sec.Password, &sec.CreatedAt, &sec.UpdatedAt)
	if isNoRows(err) {
		return secret.Secret{}, storage.ErrNotFound
	}
	if err != nil {
		return secret.Secret{}, fmt.Errorf("postgres: get secret: %w", err)
	}
	return sec, nil
}

func (s *Store) DeleteSecret(ctx context.Context, linkedAccountID, domain string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM secrets WHERE linked_account_id=$1 AND domain=$2`, linkedAccountID, domain)
	return rowsAffectedErr(res, err, "delete secret")
}

func (s *Store) ListSecretsByLinkedAccount(ctx context.Context, linkedAccountID string) ([]secret.Secret, error) {
	const q = `SELECT id, linked_account_id, domain, username, password, created_at, updated_at FROM secrets WHERE linked_account_id=$1 ORDER BY domain`
	rows, err := s.db.QueryContext(ctx, q, linkedAccountID)
	if err != nil {
		return nil, fmt.Errorf("postgres: list secrets: %w", err)
	}
	defer rows.Close()
	var out []secret.Secret
	for rows.Next() {
		var sec secret.Secret
		if err := rows.Scan(&sec.ID, &sec.LinkedAccountID, &sec.Domain, &sec.Username, &sec.Password, &sec.CreatedAt, &sec.UpdatedAt); err != nil {
			return nil, fmt.Errorf("postgres: scan secret: %w", err)
		}
		out = append(out, sec)
	}
	return out, rows.Err()
}

// --- helpers ---

func rowsAffectedErr(res sql.Result, err error, op string) error {
	if err != nil {
		return fmt.Errorf("postgres: %s: %w", op, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("postgres: %s rows affected: %w", op, err)
	}
	if n == 0 {
		return storage.ErrNotFound
	}
	return nil
}

func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	type sqlStater interface{ SQLState() string }
	if pqErr, ok := err.(sqlStater); ok {
		return pqErr.SQLState() == "23505"
	}
	return false
}
