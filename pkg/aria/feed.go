package aria

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/cuemby/aria/pkg/registry"
	"github.com/cuemby/aria/pkg/types"
)

type feedRow struct {
	ID                  string       `db:"id"`
	TenantID            string       `db:"tenant_id"`
	Name                string       `db:"name"`
	Status              string       `db:"status"`
	SourceURL           string       `db:"source_url"`
	PollIntervalSeconds int          `db:"poll_interval_seconds"`
	LastPolledAt        sql.NullTime `db:"last_polled_at"`
	CreatedAt           time.Time    `db:"created_at"`
	UpdatedAt           time.Time    `db:"updated_at"`
}

func (r feedRow) toDomain() types.Feed {
	f := types.Feed{
		ID:                 r.ID,
		TenantID:           r.TenantID,
		Name:               r.Name,
		Status:             types.EntityStatus(r.Status),
		SourceURL:          r.SourceURL,
		PollIntervalSecond: r.PollIntervalSeconds,
		CreatedAt:          r.CreatedAt,
		UpdatedAt:          r.UpdatedAt,
	}
	if r.LastPolledAt.Valid {
		f.LastPolledAt = r.LastPolledAt.Time
	}
	return f
}

// FeedUpload carries the caller-supplied fields of a feed upsert.
type FeedUpload struct {
	TenantID            string
	Name                string
	SourceURL           string
	PollIntervalSeconds int
}

// FeedRegistry stores tenant-subscribed polled external sources.
type FeedRegistry struct {
	store *registry.Store[feedRow]
}

func newFeedRegistry(db *sqlx.DB) *FeedRegistry {
	store := registry.New(registry.Config[feedRow]{
		DB:         db,
		Table:      "aria_feeds",
		SoftDelete: true,
		SelectAllSQL: `SELECT id, tenant_id, name, status, source_url,
			poll_interval_seconds, last_polled_at, created_at, updated_at
			FROM aria_feeds WHERE status != 'deleted'`,
		InsertSQL: `INSERT INTO aria_feeds
			(id, tenant_id, name, status, source_url, poll_interval_seconds,
			 last_polled_at, created_at, updated_at)
			VALUES
			(:id, :tenant_id, :name, :status, :source_url, :poll_interval_seconds,
			 :last_polled_at, :created_at, :updated_at)`,
		UpdateSQL: `UPDATE aria_feeds SET
			source_url=:source_url, poll_interval_seconds=:poll_interval_seconds,
			last_polled_at=:last_polled_at, updated_at=:updated_at
			WHERE id=:id`,
		SoftDeleteSQL: `UPDATE aria_feeds SET status='deleted', updated_at=? WHERE id=?`,
		IDOf:          func(r feedRow) string { return r.ID },
		TenantOf:      func(r feedRow) string { return r.TenantID },
		NameOf:        func(r feedRow) string { return r.Name },
		Prepare: func(existing *feedRow, incoming feedRow, now time.Time) feedRow {
			if existing == nil {
				incoming.ID = uuid.New().String()
				incoming.Status = string(types.EntityActive)
				if incoming.PollIntervalSeconds == 0 {
					incoming.PollIntervalSeconds = 300
				}
				incoming.CreatedAt = now
				incoming.UpdatedAt = now
				return incoming
			}
			incoming.ID = existing.ID
			incoming.Status = existing.Status
			incoming.LastPolledAt = existing.LastPolledAt
			incoming.CreatedAt = existing.CreatedAt
			incoming.UpdatedAt = now
			return incoming
		},
	})

	return &FeedRegistry{store: store}
}

// Upload inserts a new feed or revises an existing one.
func (r *FeedRegistry) Upload(ctx context.Context, in FeedUpload) (types.Feed, error) {
	row := feedRow{
		TenantID:            in.TenantID,
		Name:                in.Name,
		SourceURL:           in.SourceURL,
		PollIntervalSeconds: in.PollIntervalSeconds,
	}
	saved, err := r.store.Upsert(ctx, in.TenantID, in.Name, row)
	if err != nil {
		return types.Feed{}, err
	}
	return saved.toDomain(), nil
}

// Get resolves a feed by ID.
func (r *FeedRegistry) Get(ctx context.Context, id string) (types.Feed, bool, error) {
	row, ok, err := r.store.Get(ctx, id)
	if err != nil || !ok {
		return types.Feed{}, ok, err
	}
	return row.toDomain(), true, nil
}

// List returns every live feed for a tenant.
func (r *FeedRegistry) List(ctx context.Context, tenantID string) ([]types.Feed, error) {
	rows, err := r.store.List(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	out := make([]types.Feed, len(rows))
	for i, row := range rows {
		out[i] = row.toDomain()
	}
	return out, nil
}

// ListAll returns every live feed across all tenants, for the poller loop.
func (r *FeedRegistry) ListAll(ctx context.Context) ([]types.Feed, error) {
	rows, err := r.store.ListAll(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]types.Feed, len(rows))
	for i, row := range rows {
		out[i] = row.toDomain()
	}
	return out, nil
}

// MarkPolled stamps a feed's last_polled_at to now.
func (r *FeedRegistry) MarkPolled(ctx context.Context, id string) error {
	row, ok, err := r.store.Get(ctx, id)
	if err != nil || !ok {
		return err
	}
	row.LastPolledAt = sql.NullTime{Time: time.Now(), Valid: true}

	const markPolledSQL = `UPDATE aria_feeds SET last_polled_at=:last_polled_at WHERE id=:id`
	if _, err := r.store.DB().NamedExecContext(ctx, markPolledSQL, row); err != nil {
		return err
	}
	r.store.UpdateCached(id, row)
	return nil
}

// Delete soft-deletes a feed.
func (r *FeedRegistry) Delete(ctx context.Context, id string) (bool, error) {
	return r.store.Delete(ctx, id)
}
