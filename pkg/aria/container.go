package aria

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/cuemby/aria/pkg/registry"
	"github.com/cuemby/aria/pkg/types"
)

type containerRow struct {
	ID           string    `db:"id"`
	TenantID     string    `db:"tenant_id"`
	Name         string    `db:"name"`
	InstanceID   string    `db:"instance_id"`
	NetworkID    string    `db:"network_id"`
	RuntimeState string    `db:"runtime_state"`
	LastStats    string    `db:"last_stats"`
	CreatedAt    time.Time `db:"created_at"`
	UpdatedAt    time.Time `db:"updated_at"`
}

func (r containerRow) toDomain() types.Container {
	return types.Container{
		ID:           r.ID,
		TenantID:     r.TenantID,
		Name:         r.Name,
		InstanceID:   r.InstanceID,
		NetworkID:    r.NetworkID,
		RuntimeState: types.ContainerRuntimeState(r.RuntimeState),
		LastStats:    r.LastStats,
		CreatedAt:    r.CreatedAt,
		UpdatedAt:    r.UpdatedAt,
	}
}

// ContainerUpload carries the caller-supplied fields of a container upsert.
type ContainerUpload struct {
	TenantID   string
	Name       string
	InstanceID string
	NetworkID  string
}

// ContainerRegistry stores per-instance container lifecycle state, hard-
// deleted like Cron and indexed by network for O(1) network membership
// lookups.
type ContainerRegistry struct {
	store *registry.Store[containerRow]
}

func newContainerRegistry(db *sqlx.DB) *ContainerRegistry {
	store := registry.New(registry.Config[containerRow]{
		DB:         db,
		Table:      "aria_containers",
		SoftDelete: false,
		SelectAllSQL: `SELECT id, tenant_id, name, instance_id, network_id, runtime_state,
			last_stats, created_at, updated_at FROM aria_containers`,
		InsertSQL: `INSERT INTO aria_containers
			(id, tenant_id, name, instance_id, network_id, runtime_state, last_stats,
			 created_at, updated_at)
			VALUES
			(:id, :tenant_id, :name, :instance_id, :network_id, :runtime_state, :last_stats,
			 :created_at, :updated_at)`,
		UpdateSQL: `UPDATE aria_containers SET
			instance_id=:instance_id, network_id=:network_id, runtime_state=:runtime_state,
			last_stats=:last_stats, updated_at=:updated_at
			WHERE id=:id`,
		HardDeleteSQL: `DELETE FROM aria_containers WHERE id=?`,
		IDOf:          func(r containerRow) string { return r.ID },
		TenantOf:      func(r containerRow) string { return r.TenantID },
		NameOf:        func(r containerRow) string { return r.Name },
		NetworkOf:     func(r containerRow) string { return r.NetworkID },
		Prepare: func(existing *containerRow, incoming containerRow, now time.Time) containerRow {
			if existing == nil {
				incoming.ID = uuid.New().String()
				incoming.RuntimeState = string(types.ContainerUnknown)
				incoming.CreatedAt = now
				incoming.UpdatedAt = now
				return incoming
			}
			incoming.ID = existing.ID
			incoming.RuntimeState = existing.RuntimeState
			incoming.LastStats = existing.LastStats
			incoming.CreatedAt = existing.CreatedAt
			incoming.UpdatedAt = now
			return incoming
		},
	})

	return &ContainerRegistry{store: store}
}

// Upload inserts a new container or revises an existing one's association.
func (r *ContainerRegistry) Upload(ctx context.Context, in ContainerUpload) (types.Container, error) {
	row := containerRow{
		TenantID:   in.TenantID,
		Name:       in.Name,
		InstanceID: in.InstanceID,
		NetworkID:  in.NetworkID,
	}
	saved, err := r.store.Upsert(ctx, in.TenantID, in.Name, row)
	if err != nil {
		return types.Container{}, err
	}
	return saved.toDomain(), nil
}

// Get resolves a container by ID.
func (r *ContainerRegistry) Get(ctx context.Context, id string) (types.Container, bool, error) {
	row, ok, err := r.store.Get(ctx, id)
	if err != nil || !ok {
		return types.Container{}, ok, err
	}
	return row.toDomain(), true, nil
}

// List returns every container for a tenant.
func (r *ContainerRegistry) List(ctx context.Context, tenantID string) ([]types.Container, error) {
	rows, err := r.store.List(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	out := make([]types.Container, len(rows))
	for i, row := range rows {
		out[i] = row.toDomain()
	}
	return out, nil
}

// ListByNetwork returns every container joined to networkID.
func (r *ContainerRegistry) ListByNetwork(ctx context.Context, networkID string) ([]types.Container, error) {
	rows, err := r.store.ListByNetwork(ctx, networkID)
	if err != nil {
		return nil, err
	}
	out := make([]types.Container, len(rows))
	for i, row := range rows {
		out[i] = row.toDomain()
	}
	return out, nil
}

// UpdateState records a container's observed runtime state and stats
// snapshot.
func (r *ContainerRegistry) UpdateState(ctx context.Context, id string, state types.ContainerRuntimeState, statsJSON string) error {
	row, ok, err := r.store.Get(ctx, id)
	if err != nil || !ok {
		return err
	}
	row.RuntimeState = string(state)
	row.LastStats = statsJSON
	row.UpdatedAt = time.Now()

	const updateStateSQL = `UPDATE aria_containers SET runtime_state=:runtime_state,
		last_stats=:last_stats, updated_at=:updated_at WHERE id=:id`
	if _, err := r.store.DB().NamedExecContext(ctx, updateStateSQL, row); err != nil {
		return err
	}
	r.store.UpdateCached(id, row)
	return nil
}

// Delete hard-deletes a container.
func (r *ContainerRegistry) Delete(ctx context.Context, id string) (bool, error) {
	return r.store.Delete(ctx, id)
}
