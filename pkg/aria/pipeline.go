package aria

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/cuemby/aria/pkg/registry"
	"github.com/cuemby/aria/pkg/types"
)

type pipelineRow struct {
	ID        string    `db:"id"`
	TenantID  string    `db:"tenant_id"`
	Name      string    `db:"name"`
	Status    string    `db:"status"`
	Steps     string    `db:"steps"`
	CreatedAt time.Time `db:"created_at"`
	UpdatedAt time.Time `db:"updated_at"`
}

func (r pipelineRow) toDomain() types.Pipeline {
	var steps []types.PipelineStep
	_ = json.Unmarshal([]byte(r.Steps), &steps)

	return types.Pipeline{
		ID:        r.ID,
		TenantID:  r.TenantID,
		Name:      r.Name,
		Status:    types.EntityStatus(r.Status),
		Steps:     steps,
		CreatedAt: r.CreatedAt,
		UpdatedAt: r.UpdatedAt,
	}
}

// PipelineUpload carries the caller-supplied fields of a pipeline upsert.
type PipelineUpload struct {
	TenantID string
	Name     string
	Steps    []types.PipelineStep
}

// PipelineRegistry stores tenant agent/tool pipelines.
type PipelineRegistry struct {
	store *registry.Store[pipelineRow]
}

func newPipelineRegistry(db *sqlx.DB) *PipelineRegistry {
	store := registry.New(registry.Config[pipelineRow]{
		DB:         db,
		Table:      "aria_pipelines",
		SoftDelete: true,
		SelectAllSQL: `SELECT id, tenant_id, name, status, steps, created_at, updated_at
			FROM aria_pipelines WHERE status != 'deleted'`,
		InsertSQL: `INSERT INTO aria_pipelines
			(id, tenant_id, name, status, steps, created_at, updated_at)
			VALUES
			(:id, :tenant_id, :name, :status, :steps, :created_at, :updated_at)`,
		UpdateSQL:     `UPDATE aria_pipelines SET steps=:steps, updated_at=:updated_at WHERE id=:id`,
		SoftDeleteSQL: `UPDATE aria_pipelines SET status='deleted', updated_at=? WHERE id=?`,
		IDOf:          func(r pipelineRow) string { return r.ID },
		TenantOf:      func(r pipelineRow) string { return r.TenantID },
		NameOf:        func(r pipelineRow) string { return r.Name },
		Prepare: func(existing *pipelineRow, incoming pipelineRow, now time.Time) pipelineRow {
			if existing == nil {
				incoming.ID = uuid.New().String()
				incoming.Status = string(types.EntityActive)
				incoming.CreatedAt = now
				incoming.UpdatedAt = now
				return incoming
			}
			incoming.ID = existing.ID
			incoming.Status = existing.Status
			incoming.CreatedAt = existing.CreatedAt
			incoming.UpdatedAt = now
			return incoming
		},
	})

	return &PipelineRegistry{store: store}
}

// Upload inserts a new pipeline or revises an existing one's steps.
func (r *PipelineRegistry) Upload(ctx context.Context, in PipelineUpload) (types.Pipeline, error) {
	stepsJSON, _ := json.Marshal(in.Steps)
	row := pipelineRow{
		TenantID: in.TenantID,
		Name:     in.Name,
		Steps:    string(stepsJSON),
	}
	saved, err := r.store.Upsert(ctx, in.TenantID, in.Name, row)
	if err != nil {
		return types.Pipeline{}, err
	}
	return saved.toDomain(), nil
}

// Get resolves a pipeline by ID.
func (r *PipelineRegistry) Get(ctx context.Context, id string) (types.Pipeline, bool, error) {
	row, ok, err := r.store.Get(ctx, id)
	if err != nil || !ok {
		return types.Pipeline{}, ok, err
	}
	return row.toDomain(), true, nil
}

// List returns every live pipeline for a tenant.
func (r *PipelineRegistry) List(ctx context.Context, tenantID string) ([]types.Pipeline, error) {
	rows, err := r.store.List(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	out := make([]types.Pipeline, len(rows))
	for i, row := range rows {
		out[i] = row.toDomain()
	}
	return out, nil
}

// Delete soft-deletes a pipeline.
func (r *PipelineRegistry) Delete(ctx context.Context, id string) (bool, error) {
	return r.store.Delete(ctx, id)
}
