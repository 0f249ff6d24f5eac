package aria

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/cuemby/aria/pkg/registry"
	"github.com/cuemby/aria/pkg/types"
)

type memoryRow struct {
	ID           string    `db:"id"`
	TenantID     string    `db:"tenant_id"`
	Name         string    `db:"name"`
	Status       string    `db:"status"`
	Kind         string    `db:"kind"`
	Content      string    `db:"content"`
	EmbeddingRef string    `db:"embedding_ref"`
	CreatedAt    time.Time `db:"created_at"`
	UpdatedAt    time.Time `db:"updated_at"`
}

func (r memoryRow) toDomain() types.Memory {
	return types.Memory{
		ID:           r.ID,
		TenantID:     r.TenantID,
		Name:         r.Name,
		Status:       types.EntityStatus(r.Status),
		Kind:         r.Kind,
		Content:      r.Content,
		EmbeddingRef: r.EmbeddingRef,
		CreatedAt:    r.CreatedAt,
		UpdatedAt:    r.UpdatedAt,
	}
}

// MemoryUpload carries the caller-supplied fields of a memory upsert.
type MemoryUpload struct {
	TenantID     string
	Name         string
	Kind         string
	Content      string
	EmbeddingRef string
}

// MemoryRegistry stores durable tenant facts and preferences.
type MemoryRegistry struct {
	store *registry.Store[memoryRow]
}

func newMemoryRegistry(db *sqlx.DB) *MemoryRegistry {
	store := registry.New(registry.Config[memoryRow]{
		DB:         db,
		Table:      "aria_memories",
		SoftDelete: true,
		SelectAllSQL: `SELECT id, tenant_id, name, status, kind, content, embedding_ref,
			created_at, updated_at FROM aria_memories WHERE status != 'deleted'`,
		InsertSQL: `INSERT INTO aria_memories
			(id, tenant_id, name, status, kind, content, embedding_ref, created_at, updated_at)
			VALUES
			(:id, :tenant_id, :name, :status, :kind, :content, :embedding_ref, :created_at, :updated_at)`,
		UpdateSQL: `UPDATE aria_memories SET
			kind=:kind, content=:content, embedding_ref=:embedding_ref, updated_at=:updated_at
			WHERE id=:id`,
		SoftDeleteSQL: `UPDATE aria_memories SET status='deleted', updated_at=? WHERE id=?`,
		IDOf:          func(r memoryRow) string { return r.ID },
		TenantOf:      func(r memoryRow) string { return r.TenantID },
		NameOf:        func(r memoryRow) string { return r.Name },
		Prepare: func(existing *memoryRow, incoming memoryRow, now time.Time) memoryRow {
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

	return &MemoryRegistry{store: store}
}

// Upload inserts a new memory or revises an existing one.
func (r *MemoryRegistry) Upload(ctx context.Context, in MemoryUpload) (types.Memory, error) {
	row := memoryRow{
		TenantID:     in.TenantID,
		Name:         in.Name,
		Kind:         in.Kind,
		Content:      in.Content,
		EmbeddingRef: in.EmbeddingRef,
	}
	saved, err := r.store.Upsert(ctx, in.TenantID, in.Name, row)
	if err != nil {
		return types.Memory{}, err
	}
	return saved.toDomain(), nil
}

// Get resolves a memory by ID.
func (r *MemoryRegistry) Get(ctx context.Context, id string) (types.Memory, bool, error) {
	row, ok, err := r.store.Get(ctx, id)
	if err != nil || !ok {
		return types.Memory{}, ok, err
	}
	return row.toDomain(), true, nil
}

// List returns every live memory for a tenant.
func (r *MemoryRegistry) List(ctx context.Context, tenantID string) ([]types.Memory, error) {
	rows, err := r.store.List(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	out := make([]types.Memory, len(rows))
	for i, row := range rows {
		out[i] = row.toDomain()
	}
	return out, nil
}

// Delete soft-deletes a memory.
func (r *MemoryRegistry) Delete(ctx context.Context, id string) (bool, error) {
	return r.store.Delete(ctx, id)
}
