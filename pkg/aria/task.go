package aria

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/cuemby/aria/pkg/registry"
	"github.com/cuemby/aria/pkg/types"
)

type taskRow struct {
	ID        string    `db:"id"`
	TenantID  string    `db:"tenant_id"`
	Name      string    `db:"name"`
	Status    string    `db:"status"`
	AgentID   string    `db:"agent_id"`
	Input     string    `db:"input"`
	RunStatus string    `db:"run_status"`
	Result    string    `db:"result"`
	Error     string    `db:"error"`
	CreatedAt time.Time `db:"created_at"`
	UpdatedAt time.Time `db:"updated_at"`
}

func (r taskRow) toDomain() types.Task {
	return types.Task{
		ID:        r.ID,
		TenantID:  r.TenantID,
		Name:      r.Name,
		Status:    types.EntityStatus(r.Status),
		AgentID:   r.AgentID,
		Input:     r.Input,
		RunStatus: types.TaskRunStatus(r.RunStatus),
		Result:    r.Result,
		Error:     r.Error,
		CreatedAt: r.CreatedAt,
		UpdatedAt: r.UpdatedAt,
	}
}

// TaskUpload carries the caller-supplied fields of a task submission.
type TaskUpload struct {
	TenantID string
	Name     string
	AgentID  string
	Input    string
}

// TaskRegistry stores per-tenant agent invocations.
type TaskRegistry struct {
	store *registry.Store[taskRow]
}

func newTaskRegistry(db *sqlx.DB) *TaskRegistry {
	store := registry.New(registry.Config[taskRow]{
		DB:         db,
		Table:      "aria_tasks",
		SoftDelete: true,
		SelectAllSQL: `SELECT id, tenant_id, name, status, agent_id, input, run_status,
			result, error, created_at, updated_at
			FROM aria_tasks WHERE status != 'deleted'`,
		InsertSQL: `INSERT INTO aria_tasks
			(id, tenant_id, name, status, agent_id, input, run_status, result, error,
			 created_at, updated_at)
			VALUES
			(:id, :tenant_id, :name, :status, :agent_id, :input, :run_status, :result,
			 :error, :created_at, :updated_at)`,
		UpdateSQL: `UPDATE aria_tasks SET
			agent_id=:agent_id, input=:input, run_status=:run_status, result=:result,
			error=:error, updated_at=:updated_at
			WHERE id=:id`,
		SoftDeleteSQL: `UPDATE aria_tasks SET status='deleted', updated_at=? WHERE id=?`,
		IDOf:          func(r taskRow) string { return r.ID },
		TenantOf:      func(r taskRow) string { return r.TenantID },
		NameOf:        func(r taskRow) string { return r.Name },
		Prepare: func(existing *taskRow, incoming taskRow, now time.Time) taskRow {
			if existing == nil {
				incoming.ID = uuid.New().String()
				incoming.Status = string(types.EntityActive)
				if incoming.RunStatus == "" {
					incoming.RunStatus = string(types.TaskRunPending)
				}
				incoming.CreatedAt = now
				incoming.UpdatedAt = now
				return incoming
			}
			incoming.ID = existing.ID
			incoming.Status = existing.Status
			incoming.RunStatus = existing.RunStatus
			incoming.Result = existing.Result
			incoming.Error = existing.Error
			incoming.CreatedAt = existing.CreatedAt
			incoming.UpdatedAt = now
			return incoming
		},
	})

	return &TaskRegistry{store: store}
}

// Submit creates a new pending task invocation.
func (r *TaskRegistry) Submit(ctx context.Context, in TaskUpload) (types.Task, error) {
	row := taskRow{
		TenantID: in.TenantID,
		Name:     in.Name,
		AgentID:  in.AgentID,
		Input:    in.Input,
	}
	saved, err := r.store.Upsert(ctx, in.TenantID, in.Name, row)
	if err != nil {
		return types.Task{}, err
	}
	return saved.toDomain(), nil
}

// Get resolves a task by ID.
func (r *TaskRegistry) Get(ctx context.Context, id string) (types.Task, bool, error) {
	row, ok, err := r.store.Get(ctx, id)
	if err != nil || !ok {
		return types.Task{}, ok, err
	}
	return row.toDomain(), true, nil
}

// List returns every live task for a tenant.
func (r *TaskRegistry) List(ctx context.Context, tenantID string) ([]types.Task, error) {
	rows, err := r.store.List(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	out := make([]types.Task, len(rows))
	for i, row := range rows {
		out[i] = row.toDomain()
	}
	return out, nil
}

// Count returns the number of live tasks for a tenant.
func (r *TaskRegistry) Count(ctx context.Context, tenantID string) (int, error) {
	return r.store.Count(ctx, tenantID)
}

// Delete soft-deletes a task.
func (r *TaskRegistry) Delete(ctx context.Context, id string) (bool, error) {
	return r.store.Delete(ctx, id)
}

// UpdateRun records a task's execution outcome and updates the cache
// in place without touching the indexing fields (name/tenant never change
// across a run).
func (r *TaskRegistry) UpdateRun(ctx context.Context, id string, status types.TaskRunStatus, result, errMsg string) error {
	row, ok, err := r.store.Get(ctx, id)
	if err != nil {
		return err
	}
	if !ok {
		return nil
	}

	row.RunStatus = string(status)
	row.Result = result
	row.Error = errMsg
	row.UpdatedAt = time.Now()

	const updateRunSQL = `UPDATE aria_tasks SET run_status=:run_status, result=:result,
		error=:error, updated_at=:updated_at WHERE id=:id`
	if _, err := r.store.DB().NamedExecContext(ctx, updateRunSQL, row); err != nil {
		return err
	}
	r.store.UpdateCached(id, row)
	return nil
}
