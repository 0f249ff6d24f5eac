package registry

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/cuemby/aria/pkg/types"
)

type instanceRow struct {
	ID           string    `db:"id"`
	Name         string    `db:"name"`
	Port         int       `db:"port"`
	ConfigPath   string    `db:"config_path"`
	WorkspaceDir string    `db:"workspace_dir"`
	Status       string    `db:"status"`
	PID          int       `db:"pid"`
	CreatedAt    time.Time `db:"created_at"`
}

func (r instanceRow) toDomain() types.Instance {
	return types.Instance{
		ID:           r.ID,
		Name:         r.Name,
		Port:         r.Port,
		ConfigPath:   r.ConfigPath,
		WorkspaceDir: r.WorkspaceDir,
		Status:       types.InstanceStatus(r.Status),
		PID:          r.PID,
		CreatedAt:    r.CreatedAt,
	}
}

// InstanceCreate carries the caller-supplied fields for a new Instance.
// Instances form a single global namespace (not tenant-scoped): name and
// port must each be unique among non-archived rows, enforced by the
// database's partial unique indexes.
type InstanceCreate struct {
	Name         string
	Port         int
	ConfigPath   string
	WorkspaceDir string
}

// InstanceRegistry is the cache-fronted store of Instance rows. It reuses
// the generic Store engine with an empty tenant partition, since Instances
// have no tenant_id column.
type InstanceRegistry struct {
	store *Store[instanceRow]
}

// NewInstanceRegistry constructs the Instance registry against db.
func NewInstanceRegistry(db *sqlx.DB) *InstanceRegistry {
	store := New(Config[instanceRow]{
		DB:         db,
		Table:      "instances",
		SoftDelete: false, // archival is a status transition, not a delete
		SelectAllSQL: `SELECT id, name, port, config_path, workspace_dir, status, pid,
			created_at FROM instances WHERE status != 'archived'`,
		InsertSQL: `INSERT INTO instances
			(id, name, port, config_path, workspace_dir, status, pid, created_at)
			VALUES
			(:id, :name, :port, :config_path, :workspace_dir, :status, :pid, :created_at)`,
		UpdateSQL: `UPDATE instances SET
			port=:port, config_path=:config_path, workspace_dir=:workspace_dir,
			status=:status, pid=:pid
			WHERE id=:id`,
		HardDeleteSQL: `DELETE FROM instances WHERE id=?`,
		IDOf:          func(r instanceRow) string { return r.ID },
		TenantOf:      func(r instanceRow) string { return "" },
		NameOf:        func(r instanceRow) string { return r.Name },
		Prepare: func(existing *instanceRow, incoming instanceRow, now time.Time) instanceRow {
			if existing == nil {
				incoming.ID = uuid.New().String()
				incoming.Status = string(types.InstanceStopped)
				incoming.CreatedAt = now
				return incoming
			}
			incoming.ID = existing.ID
			incoming.CreatedAt = existing.CreatedAt
			return incoming
		},
	})

	return &InstanceRegistry{store: store}
}

// Create registers a new Instance. Returns an error (surfacing the SQLite
// UNIQUE constraint violation) if name or port collides with a live
// instance.
func (r *InstanceRegistry) Create(ctx context.Context, in InstanceCreate) (types.Instance, error) {
	row := instanceRow{
		Name:         in.Name,
		Port:         in.Port,
		ConfigPath:   in.ConfigPath,
		WorkspaceDir: in.WorkspaceDir,
	}
	saved, err := r.store.Insert(ctx, row)
	if err != nil {
		return types.Instance{}, err
	}
	return saved.toDomain(), nil
}

// Get resolves an instance by ID.
func (r *InstanceRegistry) Get(ctx context.Context, id string) (types.Instance, bool, error) {
	row, ok, err := r.store.Get(ctx, id)
	if err != nil || !ok {
		return types.Instance{}, ok, err
	}
	return row.toDomain(), true, nil
}

// GetByName resolves an instance by its global display name.
func (r *InstanceRegistry) GetByName(ctx context.Context, name string) (types.Instance, bool, error) {
	row, ok, err := r.store.GetByName(ctx, "", name)
	if err != nil || !ok {
		return types.Instance{}, ok, err
	}
	return row.toDomain(), true, nil
}

// List returns every cached instance. Rows already archived when the store
// first loaded are not included; rows archived since then still are.
func (r *InstanceRegistry) List(ctx context.Context) ([]types.Instance, error) {
	rows, err := r.store.ListAll(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]types.Instance, len(rows))
	for i, row := range rows {
		out[i] = row.toDomain()
	}
	return out, nil
}

// UpdateStatus transitions an instance's declared Status.
func (r *InstanceRegistry) UpdateStatus(ctx context.Context, id string, status types.InstanceStatus) error {
	row, ok, err := r.store.Get(ctx, id)
	if err != nil || !ok {
		return err
	}
	row.Status = string(status)

	const updateStatusSQL = `UPDATE instances SET status=:status WHERE id=:id`
	if _, err := r.store.DB().NamedExecContext(ctx, updateStatusSQL, row); err != nil {
		return err
	}
	r.store.UpdateCached(id, row)
	return nil
}

// UpdatePID records the supervisor's last-observed PID for an instance. PID
// is advisory only: authority for whether the process is actually live
// rests with the pidfile and ownership probe, not this cached value.
func (r *InstanceRegistry) UpdatePID(ctx context.Context, id string, pid int) error {
	row, ok, err := r.store.Get(ctx, id)
	if err != nil || !ok {
		return err
	}
	row.PID = pid

	const updatePIDSQL = `UPDATE instances SET pid=:pid WHERE id=:id`
	if _, err := r.store.DB().NamedExecContext(ctx, updatePIDSQL, row); err != nil {
		return err
	}
	r.store.UpdateCached(id, row)
	return nil
}

// Archive marks an instance archived, freeing its name and port for reuse.
func (r *InstanceRegistry) Archive(ctx context.Context, id string) error {
	return r.UpdateStatus(ctx, id, types.InstanceArchived)
}
