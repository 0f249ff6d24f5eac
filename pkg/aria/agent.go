package aria

import (
	"context"
	"encoding/json"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/cuemby/aria/pkg/registry"
	"github.com/cuemby/aria/pkg/types"
)

// agentRow is the SQLite-facing shape of an Agent: Tools is stored as a JSON
// array column, Thinking as an integer, HandlerHash as hex text.
type agentRow struct {
	ID              string    `db:"id"`
	TenantID        string    `db:"tenant_id"`
	Name            string    `db:"name"`
	Description     string    `db:"description"`
	Model           string    `db:"model"`
	Temperature     float64   `db:"temperature"`
	SystemPrompt    string    `db:"system_prompt"`
	Tools           string    `db:"tools"`
	Thinking        bool      `db:"thinking"`
	MaxRetries      int       `db:"max_retries"`
	TimeoutSeconds  int       `db:"timeout_seconds"`
	HandlerCode     string    `db:"handler_code"`
	HandlerHash     string    `db:"handler_hash"`
	SandboxConfig   string    `db:"sandbox_config"`
	Status          string    `db:"status"`
	Version         int       `db:"version"`
	CreatedAt       time.Time `db:"created_at"`
	UpdatedAt       time.Time `db:"updated_at"`
}

func (r agentRow) toDomain() types.Agent {
	var tools []string
	_ = json.Unmarshal([]byte(r.Tools), &tools)

	return types.Agent{
		ID:             r.ID,
		TenantID:       r.TenantID,
		Name:           r.Name,
		Status:         types.EntityStatus(r.Status),
		Description:    r.Description,
		Model:          r.Model,
		Temperature:    r.Temperature,
		SystemPrompt:   r.SystemPrompt,
		Tools:          tools,
		Thinking:       r.Thinking,
		MaxRetries:     r.MaxRetries,
		TimeoutSeconds: r.TimeoutSeconds,
		HandlerCode:    r.HandlerCode,
		HandlerHash:    hashFromHex(r.HandlerHash),
		SandboxConfig:  r.SandboxConfig,
		Version:        r.Version,
		CreatedAt:      r.CreatedAt,
		UpdatedAt:      r.UpdatedAt,
	}
}

// AgentUpload carries the caller-supplied fields of an agent upsert; ID,
// Version, HandlerHash and the timestamps are derived by the registry.
type AgentUpload struct {
	TenantID       string
	Name           string
	Description    string
	Model          string
	Temperature    float64
	SystemPrompt   string
	Tools          []string
	Thinking       bool
	MaxRetries     int
	TimeoutSeconds int
	HandlerCode    string
	SandboxConfig  string
}

// AgentRegistry stores tenant agent definitions.
type AgentRegistry struct {
	store *registry.Store[agentRow]
}

func newAgentRegistry(db *sqlx.DB) *AgentRegistry {
	store := registry.New(registry.Config[agentRow]{
		DB:         db,
		Table:      "aria_agents",
		SoftDelete: true,
		SelectAllSQL: `SELECT id, tenant_id, name, description, model, temperature,
			system_prompt, tools, thinking, max_retries, timeout_seconds,
			handler_code, handler_hash, sandbox_config, status, version,
			created_at, updated_at
			FROM aria_agents WHERE status != 'deleted'`,
		InsertSQL: `INSERT INTO aria_agents
			(id, tenant_id, name, description, model, temperature, system_prompt,
			 tools, thinking, max_retries, timeout_seconds, handler_code,
			 handler_hash, sandbox_config, status, version, created_at, updated_at)
			VALUES
			(:id, :tenant_id, :name, :description, :model, :temperature, :system_prompt,
			 :tools, :thinking, :max_retries, :timeout_seconds, :handler_code,
			 :handler_hash, :sandbox_config, :status, :version, :created_at, :updated_at)`,
		UpdateSQL: `UPDATE aria_agents SET
			description=:description, model=:model, temperature=:temperature,
			system_prompt=:system_prompt, tools=:tools, thinking=:thinking,
			max_retries=:max_retries, timeout_seconds=:timeout_seconds,
			handler_code=:handler_code, handler_hash=:handler_hash,
			sandbox_config=:sandbox_config, version=:version, updated_at=:updated_at
			WHERE id=:id`,
		SoftDeleteSQL: `UPDATE aria_agents SET status='deleted', updated_at=? WHERE id=?`,
		IDOf:          func(r agentRow) string { return r.ID },
		TenantOf:      func(r agentRow) string { return r.TenantID },
		NameOf:        func(r agentRow) string { return r.Name },
		Prepare: func(existing *agentRow, incoming agentRow, now time.Time) agentRow {
			if existing == nil {
				incoming.ID = uuid.New().String()
				incoming.Status = string(types.EntityActive)
				incoming.Version = 1
				incoming.CreatedAt = now
				incoming.UpdatedAt = now
				return incoming
			}
			incoming.ID = existing.ID
			incoming.Status = existing.Status
			incoming.Version = existing.Version + 1
			incoming.CreatedAt = existing.CreatedAt
			incoming.UpdatedAt = now
			return incoming
		},
	})

	return &AgentRegistry{store: store}
}

// Upload inserts a new agent or, if tenant_id:name already exists, revises it
// in place with Version incremented.
func (r *AgentRegistry) Upload(ctx context.Context, in AgentUpload) (types.Agent, error) {
	toolsJSON, _ := json.Marshal(in.Tools)

	row := agentRow{
		TenantID:       in.TenantID,
		Name:           in.Name,
		Description:    in.Description,
		Model:          in.Model,
		Temperature:    in.Temperature,
		SystemPrompt:   in.SystemPrompt,
		Tools:          string(toolsJSON),
		Thinking:       in.Thinking,
		MaxRetries:     in.MaxRetries,
		TimeoutSeconds: in.TimeoutSeconds,
		HandlerCode:    in.HandlerCode,
		HandlerHash:    hashHex(in.HandlerCode),
		SandboxConfig:  in.SandboxConfig,
	}

	saved, err := r.store.Upsert(ctx, in.TenantID, in.Name, row)
	if err != nil {
		return types.Agent{}, err
	}
	return saved.toDomain(), nil
}

// Get resolves an agent by ID.
func (r *AgentRegistry) Get(ctx context.Context, id string) (types.Agent, bool, error) {
	row, ok, err := r.store.Get(ctx, id)
	if err != nil || !ok {
		return types.Agent{}, ok, err
	}
	return row.toDomain(), true, nil
}

// GetByName resolves an agent by tenant and display name.
func (r *AgentRegistry) GetByName(ctx context.Context, tenantID, name string) (types.Agent, bool, error) {
	row, ok, err := r.store.GetByName(ctx, tenantID, name)
	if err != nil || !ok {
		return types.Agent{}, ok, err
	}
	return row.toDomain(), true, nil
}

// List returns every live agent for a tenant.
func (r *AgentRegistry) List(ctx context.Context, tenantID string) ([]types.Agent, error) {
	rows, err := r.store.List(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	out := make([]types.Agent, len(rows))
	for i, row := range rows {
		out[i] = row.toDomain()
	}
	return out, nil
}

// Count returns the number of live agents for a tenant.
func (r *AgentRegistry) Count(ctx context.Context, tenantID string) (int, error) {
	return r.store.Count(ctx, tenantID)
}

// Delete soft-deletes an agent. Returns false if id does not exist.
func (r *AgentRegistry) Delete(ctx context.Context, id string) (bool, error) {
	return r.store.Delete(ctx, id)
}

// PromptSection renders the tenant's agent catalog as a Markdown section
// suitable for splicing into a system prompt.
func (r *AgentRegistry) PromptSection(ctx context.Context, tenantID string) (string, error) {
	agents, err := r.List(ctx, tenantID)
	if err != nil {
		return "", err
	}
	if len(agents) == 0 {
		return "", nil
	}
	sort.Slice(agents, func(i, j int) bool { return agents[i].Name < agents[j].Name })

	out := "## Available Agents\n\n"
	for _, a := range agents {
		model := a.Model
		if model == "" {
			model = "default"
		}
		out += "- **" + a.Name + "**: " + a.Description + "\n  Model: " + model + "\n"
	}
	return out, nil
}
