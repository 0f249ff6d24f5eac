package aria

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	cron "github.com/robfig/cron/v3"

	"github.com/cuemby/aria/pkg/registry"
	"github.com/cuemby/aria/pkg/types"
)

// cronRow has no status column: cron functions are hard-deleted, so a live
// row is simply one that still exists.
type cronRow struct {
	ID        string    `db:"id"`
	TenantID  string    `db:"tenant_id"`
	Name      string    `db:"name"`
	Schedule  string    `db:"schedule"`
	AgentID   string    `db:"agent_id"`
	Payload   string    `db:"payload"`
	Enabled   bool      `db:"enabled"`
	CreatedAt time.Time `db:"created_at"`
	UpdatedAt time.Time `db:"updated_at"`
}

func (r cronRow) toDomain() types.Cron {
	return types.Cron{
		ID:        r.ID,
		TenantID:  r.TenantID,
		Name:      r.Name,
		Schedule:  r.Schedule,
		AgentID:   r.AgentID,
		Payload:   r.Payload,
		Enabled:   r.Enabled,
		CreatedAt: r.CreatedAt,
		UpdatedAt: r.UpdatedAt,
	}
}

// CronUpload carries the caller-supplied fields of a cron function upsert.
type CronUpload struct {
	TenantID string
	Name     string
	Schedule string
	AgentID  string
	Payload  string
	Enabled  bool
}

// CronRegistry stores tenant scheduled-function definitions. Unlike the
// other entity kinds, cron rows are hard-deleted.
type CronRegistry struct {
	store *registry.Store[cronRow]
}

func newCronRegistry(db *sqlx.DB) *CronRegistry {
	store := registry.New(registry.Config[cronRow]{
		DB:         db,
		Table:      "aria_cron_functions",
		SoftDelete: false,
		SelectAllSQL: `SELECT id, tenant_id, name, schedule, agent_id, payload, enabled,
			created_at, updated_at FROM aria_cron_functions`,
		InsertSQL: `INSERT INTO aria_cron_functions
			(id, tenant_id, name, schedule, agent_id, payload, enabled, created_at, updated_at)
			VALUES
			(:id, :tenant_id, :name, :schedule, :agent_id, :payload, :enabled, :created_at, :updated_at)`,
		UpdateSQL: `UPDATE aria_cron_functions SET
			schedule=:schedule, agent_id=:agent_id, payload=:payload, enabled=:enabled,
			updated_at=:updated_at
			WHERE id=:id`,
		HardDeleteSQL: `DELETE FROM aria_cron_functions WHERE id=?`,
		IDOf:          func(r cronRow) string { return r.ID },
		TenantOf:      func(r cronRow) string { return r.TenantID },
		NameOf:        func(r cronRow) string { return r.Name },
		Prepare: func(existing *cronRow, incoming cronRow, now time.Time) cronRow {
			if existing == nil {
				incoming.ID = uuid.New().String()
				incoming.CreatedAt = now
				incoming.UpdatedAt = now
				return incoming
			}
			incoming.ID = existing.ID
			incoming.CreatedAt = existing.CreatedAt
			incoming.UpdatedAt = now
			return incoming
		},
	})

	return &CronRegistry{store: store}
}

// Upload inserts a new cron function or revises an existing one. Schedule is
// validated against the standard 5-field cron grammar before the row is
// written; a malformed schedule is rejected at upsert time rather than
// silently stored. AgentID is stored as given and is not checked.
func (r *CronRegistry) Upload(ctx context.Context, in CronUpload) (types.Cron, error) {
	if _, err := cron.ParseStandard(in.Schedule); err != nil {
		return types.Cron{}, fmt.Errorf("invalid cron schedule %q: %w", in.Schedule, err)
	}

	row := cronRow{
		TenantID: in.TenantID,
		Name:     in.Name,
		Schedule: in.Schedule,
		AgentID:  in.AgentID,
		Payload:  in.Payload,
		Enabled:  in.Enabled,
	}
	saved, err := r.store.Upsert(ctx, in.TenantID, in.Name, row)
	if err != nil {
		return types.Cron{}, err
	}
	return saved.toDomain(), nil
}

// Get resolves a cron function by ID.
func (r *CronRegistry) Get(ctx context.Context, id string) (types.Cron, bool, error) {
	row, ok, err := r.store.Get(ctx, id)
	if err != nil || !ok {
		return types.Cron{}, ok, err
	}
	return row.toDomain(), true, nil
}

// List returns every cron function for a tenant.
func (r *CronRegistry) List(ctx context.Context, tenantID string) ([]types.Cron, error) {
	rows, err := r.store.List(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	out := make([]types.Cron, len(rows))
	for i, row := range rows {
		out[i] = row.toDomain()
	}
	return out, nil
}

// ListAllEnabled returns every enabled cron function across every tenant, for the
// scheduler to register against robfig/cron.
func (r *CronRegistry) ListAllEnabled(ctx context.Context) ([]types.Cron, error) {
	rows, err := r.store.ListAll(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]types.Cron, 0, len(rows))
	for _, row := range rows {
		if row.Enabled {
			out = append(out, row.toDomain())
		}
	}
	return out, nil
}

// Delete hard-deletes a cron function.
func (r *CronRegistry) Delete(ctx context.Context, id string) (bool, error) {
	return r.store.Delete(ctx, id)
}
