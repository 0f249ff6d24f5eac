package aria

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/cuemby/aria/pkg/registry"
	"github.com/cuemby/aria/pkg/types"
)

type networkRow struct {
	ID        string    `db:"id"`
	TenantID  string    `db:"tenant_id"`
	Name      string    `db:"name"`
	Status    string    `db:"status"`
	Slug      string    `db:"slug"`
	Driver    string    `db:"driver"`
	Subnet    string    `db:"subnet"`
	CreatedAt time.Time `db:"created_at"`
	UpdatedAt time.Time `db:"updated_at"`
}

func (r networkRow) toDomain() types.Network {
	return types.Network{
		ID:        r.ID,
		TenantID:  r.TenantID,
		Name:      r.Name,
		Status:    types.EntityStatus(r.Status),
		Slug:      r.Slug,
		Driver:    r.Driver,
		Subnet:    r.Subnet,
		CreatedAt: r.CreatedAt,
		UpdatedAt: r.UpdatedAt,
	}
}

// NetworkUpload carries the caller-supplied fields of a network upsert.
type NetworkUpload struct {
	TenantID string
	Name     string
	Slug     string
	Driver   string
	Subnet   string
}

// NetworkRegistry stores tenant container networks.
type NetworkRegistry struct {
	store *registry.Store[networkRow]
}

func newNetworkRegistry(db *sqlx.DB) *NetworkRegistry {
	store := registry.New(registry.Config[networkRow]{
		DB:         db,
		Table:      "aria_networks",
		SoftDelete: true,
		SelectAllSQL: `SELECT id, tenant_id, name, status, slug, driver, subnet,
			created_at, updated_at FROM aria_networks WHERE status != 'deleted'`,
		InsertSQL: `INSERT INTO aria_networks
			(id, tenant_id, name, status, slug, driver, subnet, created_at, updated_at)
			VALUES
			(:id, :tenant_id, :name, :status, :slug, :driver, :subnet, :created_at, :updated_at)`,
		UpdateSQL: `UPDATE aria_networks SET
			slug=:slug, driver=:driver, subnet=:subnet, updated_at=:updated_at
			WHERE id=:id`,
		SoftDeleteSQL: `UPDATE aria_networks SET status='deleted', updated_at=? WHERE id=?`,
		IDOf:          func(r networkRow) string { return r.ID },
		TenantOf:      func(r networkRow) string { return r.TenantID },
		NameOf:        func(r networkRow) string { return r.Name },
		Prepare: func(existing *networkRow, incoming networkRow, now time.Time) networkRow {
			if existing == nil {
				incoming.ID = uuid.New().String()
				incoming.Status = string(types.EntityActive)
				if incoming.Driver == "" {
					incoming.Driver = "bridge"
				}
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

	return &NetworkRegistry{store: store}
}

// Upload inserts a new network or revises an existing one.
func (r *NetworkRegistry) Upload(ctx context.Context, in NetworkUpload) (types.Network, error) {
	row := networkRow{
		TenantID: in.TenantID,
		Name:     in.Name,
		Slug:     in.Slug,
		Driver:   in.Driver,
		Subnet:   in.Subnet,
	}
	saved, err := r.store.Upsert(ctx, in.TenantID, in.Name, row)
	if err != nil {
		return types.Network{}, err
	}
	return saved.toDomain(), nil
}

// Get resolves a network by ID.
func (r *NetworkRegistry) Get(ctx context.Context, id string) (types.Network, bool, error) {
	row, ok, err := r.store.Get(ctx, id)
	if err != nil || !ok {
		return types.Network{}, ok, err
	}
	return row.toDomain(), true, nil
}

// GetByName resolves a network by tenant and display name.
func (r *NetworkRegistry) GetByName(ctx context.Context, tenantID, name string) (types.Network, bool, error) {
	row, ok, err := r.store.GetByName(ctx, tenantID, name)
	if err != nil || !ok {
		return types.Network{}, ok, err
	}
	return row.toDomain(), true, nil
}

// List returns every live network for a tenant.
func (r *NetworkRegistry) List(ctx context.Context, tenantID string) ([]types.Network, error) {
	rows, err := r.store.List(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	out := make([]types.Network, len(rows))
	for i, row := range rows {
		out[i] = row.toDomain()
	}
	return out, nil
}

// Delete soft-deletes a network.
func (r *NetworkRegistry) Delete(ctx context.Context, id string) (bool, error) {
	return r.store.Delete(ctx, id)
}
