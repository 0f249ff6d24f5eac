package aria

import (
	"context"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/cuemby/aria/pkg/registry"
	"github.com/cuemby/aria/pkg/types"
)

type toolRow struct {
	ID               string    `db:"id"`
	TenantID         string    `db:"tenant_id"`
	Name             string    `db:"name"`
	Description      string    `db:"description"`
	ParametersSchema string    `db:"parameters_schema"`
	HandlerCode      string    `db:"handler_code"`
	HandlerHash      string    `db:"handler_hash"`
	Status           string    `db:"status"`
	Version          int       `db:"version"`
	CreatedAt        time.Time `db:"created_at"`
	UpdatedAt        time.Time `db:"updated_at"`
}

func (r toolRow) toDomain() types.Tool {
	return types.Tool{
		ID:               r.ID,
		TenantID:         r.TenantID,
		Name:             r.Name,
		Status:           types.EntityStatus(r.Status),
		Description:      r.Description,
		ParametersSchema: r.ParametersSchema,
		HandlerCode:      r.HandlerCode,
		HandlerHash:      hashFromHex(r.HandlerHash),
		Version:          r.Version,
		CreatedAt:        r.CreatedAt,
		UpdatedAt:        r.UpdatedAt,
	}
}

// ToolUpload carries the caller-supplied fields of a tool upsert.
type ToolUpload struct {
	TenantID         string
	Name             string
	Description      string
	ParametersSchema string
	HandlerCode      string
}

// ToolRegistry stores tenant callable-tool definitions.
type ToolRegistry struct {
	store *registry.Store[toolRow]
}

func newToolRegistry(db *sqlx.DB) *ToolRegistry {
	store := registry.New(registry.Config[toolRow]{
		DB:         db,
		Table:      "aria_tools",
		SoftDelete: true,
		SelectAllSQL: `SELECT id, tenant_id, name, description, parameters_schema,
			handler_code, handler_hash, status, version, created_at, updated_at
			FROM aria_tools WHERE status != 'deleted'`,
		InsertSQL: `INSERT INTO aria_tools
			(id, tenant_id, name, description, parameters_schema, handler_code,
			 handler_hash, status, version, created_at, updated_at)
			VALUES
			(:id, :tenant_id, :name, :description, :parameters_schema, :handler_code,
			 :handler_hash, :status, :version, :created_at, :updated_at)`,
		UpdateSQL: `UPDATE aria_tools SET
			description=:description, parameters_schema=:parameters_schema,
			handler_code=:handler_code, handler_hash=:handler_hash,
			version=:version, updated_at=:updated_at
			WHERE id=:id`,
		SoftDeleteSQL: `UPDATE aria_tools SET status='deleted', updated_at=? WHERE id=?`,
		IDOf:          func(r toolRow) string { return r.ID },
		TenantOf:      func(r toolRow) string { return r.TenantID },
		NameOf:        func(r toolRow) string { return r.Name },
		Prepare: func(existing *toolRow, incoming toolRow, now time.Time) toolRow {
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

	return &ToolRegistry{store: store}
}

// Upload inserts a new tool or revises an existing one, incrementing Version.
func (r *ToolRegistry) Upload(ctx context.Context, in ToolUpload) (types.Tool, error) {
	row := toolRow{
		TenantID:         in.TenantID,
		Name:             in.Name,
		Description:      in.Description,
		ParametersSchema: in.ParametersSchema,
		HandlerCode:      in.HandlerCode,
		HandlerHash:      hashHex(in.HandlerCode),
	}

	saved, err := r.store.Upsert(ctx, in.TenantID, in.Name, row)
	if err != nil {
		return types.Tool{}, err
	}
	return saved.toDomain(), nil
}

// Get resolves a tool by ID.
func (r *ToolRegistry) Get(ctx context.Context, id string) (types.Tool, bool, error) {
	row, ok, err := r.store.Get(ctx, id)
	if err != nil || !ok {
		return types.Tool{}, ok, err
	}
	return row.toDomain(), true, nil
}

// GetByName resolves a tool by tenant and display name.
func (r *ToolRegistry) GetByName(ctx context.Context, tenantID, name string) (types.Tool, bool, error) {
	row, ok, err := r.store.GetByName(ctx, tenantID, name)
	if err != nil || !ok {
		return types.Tool{}, ok, err
	}
	return row.toDomain(), true, nil
}

// List returns every live tool for a tenant.
func (r *ToolRegistry) List(ctx context.Context, tenantID string) ([]types.Tool, error) {
	rows, err := r.store.List(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	out := make([]types.Tool, len(rows))
	for i, row := range rows {
		out[i] = row.toDomain()
	}
	return out, nil
}

// Count returns the number of live tools for a tenant.
func (r *ToolRegistry) Count(ctx context.Context, tenantID string) (int, error) {
	return r.store.Count(ctx, tenantID)
}

// Delete soft-deletes a tool.
func (r *ToolRegistry) Delete(ctx context.Context, id string) (bool, error) {
	return r.store.Delete(ctx, id)
}

// PromptSection renders the tenant's tool catalog as a Markdown section.
func (r *ToolRegistry) PromptSection(ctx context.Context, tenantID string) (string, error) {
	tools, err := r.List(ctx, tenantID)
	if err != nil {
		return "", err
	}
	if len(tools) == 0 {
		return "", nil
	}
	sort.Slice(tools, func(i, j int) bool { return tools[i].Name < tools[j].Name })

	out := "## Available Tools\n\n"
	for _, t := range tools {
		out += "- **" + t.Name + "**: " + t.Description + "\n"
	}
	return out, nil
}
