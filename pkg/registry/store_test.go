package registry

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

// widgetRow is a minimal entity used only to exercise the generic Store
// engine directly, independent of any real entity-kind registry.
type widgetRow struct {
	ID        string    `db:"id"`
	TenantID  string    `db:"tenant_id"`
	Name      string    `db:"name"`
	Status    string    `db:"status"`
	CreatedAt time.Time `db:"created_at"`
}

func newWidgetStore(t *testing.T) *Store[widgetRow] {
	t.Helper()
	db, err := Open(filepath.Join(t.TempDir(), "widgets.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	_, err = db.Exec(`CREATE TABLE widgets (
		id TEXT PRIMARY KEY,
		tenant_id TEXT NOT NULL,
		name TEXT NOT NULL,
		status TEXT NOT NULL,
		created_at TIMESTAMP NOT NULL
	)`)
	require.NoError(t, err)

	return New(Config[widgetRow]{
		DB:         db,
		Table:      "widgets",
		SoftDelete: false,
		SelectAllSQL: `SELECT id, tenant_id, name, status, created_at FROM widgets WHERE status != 'deleted'`,
		InsertSQL: `INSERT INTO widgets (id, tenant_id, name, status, created_at)
			VALUES (:id, :tenant_id, :name, :status, :created_at)`,
		UpdateSQL: `UPDATE widgets SET tenant_id=:tenant_id, name=:name, status=:status WHERE id=:id`,
		HardDeleteSQL: `DELETE FROM widgets WHERE id=?`,
		IDOf:          func(r widgetRow) string { return r.ID },
		TenantOf:      func(r widgetRow) string { return r.TenantID },
		NameOf:        func(r widgetRow) string { return r.Name },
		Prepare: func(existing *widgetRow, incoming widgetRow, now time.Time) widgetRow {
			if existing == nil {
				incoming.ID = uuid.New().String()
				incoming.Status = "active"
				incoming.CreatedAt = now
				return incoming
			}
			incoming.ID = existing.ID
			incoming.CreatedAt = existing.CreatedAt
			return incoming
		},
	})
}

func TestStore_UpsertInsertsThenUpdates(t *testing.T) {
	store := newWidgetStore(t)
	ctx := context.Background()

	created, err := store.Upsert(ctx, "tenant-a", "widget-1", widgetRow{TenantID: "tenant-a", Name: "widget-1"})
	require.NoError(t, err)
	require.NotEmpty(t, created.ID)

	got, ok, err := store.GetByName(ctx, "tenant-a", "widget-1")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, created.ID, got.ID)

	updated, err := store.Upsert(ctx, "tenant-a", "widget-1", widgetRow{TenantID: "tenant-a", Name: "widget-1", Status: "active"})
	require.NoError(t, err)
	require.Equal(t, created.ID, updated.ID, "upsert on an existing name must reuse the id")

	count, err := store.Count(ctx, "tenant-a")
	require.NoError(t, err)
	require.Equal(t, 1, count)
}

func TestStore_TenantIsolation(t *testing.T) {
	store := newWidgetStore(t)
	ctx := context.Background()

	_, err := store.Upsert(ctx, "tenant-a", "shared-name", widgetRow{TenantID: "tenant-a", Name: "shared-name"})
	require.NoError(t, err)
	_, err = store.Upsert(ctx, "tenant-b", "shared-name", widgetRow{TenantID: "tenant-b", Name: "shared-name"})
	require.NoError(t, err)

	listA, err := store.List(ctx, "tenant-a")
	require.NoError(t, err)
	require.Len(t, listA, 1)

	listB, err := store.List(ctx, "tenant-b")
	require.NoError(t, err)
	require.Len(t, listB, 1)

	require.NotEqual(t, listA[0].ID, listB[0].ID)
}

func TestStore_DeleteRemovesFromIndexes(t *testing.T) {
	store := newWidgetStore(t)
	ctx := context.Background()

	created, err := store.Upsert(ctx, "tenant-a", "widget-1", widgetRow{TenantID: "tenant-a", Name: "widget-1"})
	require.NoError(t, err)

	ok, err := store.Delete(ctx, created.ID)
	require.NoError(t, err)
	require.True(t, ok)

	_, found, err := store.Get(ctx, created.ID)
	require.NoError(t, err)
	require.False(t, found)

	_, found, err = store.GetByName(ctx, "tenant-a", "widget-1")
	require.NoError(t, err)
	require.False(t, found)
}

func TestStore_DeleteMissingIsNotAnError(t *testing.T) {
	store := newWidgetStore(t)
	ok, err := store.Delete(context.Background(), "does-not-exist")
	require.NoError(t, err)
	require.False(t, ok)
}

func TestStore_LoadsExistingRowsOnFirstUse(t *testing.T) {
	store := newWidgetStore(t)
	ctx := context.Background()

	_, err := store.Upsert(ctx, "tenant-a", "widget-1", widgetRow{TenantID: "tenant-a", Name: "widget-1"})
	require.NoError(t, err)

	// A brand-new Store over the same underlying table must rehydrate its
	// indexes from SQLite on first access rather than starting empty.
	fresh := New(Config[widgetRow]{
		DB:           store.DB(),
		Table:        "widgets",
		SelectAllSQL: `SELECT id, tenant_id, name, status, created_at FROM widgets WHERE status != 'deleted'`,
		IDOf:         func(r widgetRow) string { return r.ID },
		TenantOf:     func(r widgetRow) string { return r.TenantID },
		NameOf:       func(r widgetRow) string { return r.Name },
	})

	_, ok, err := fresh.GetByName(ctx, "tenant-a", "widget-1")
	require.NoError(t, err)
	require.True(t, ok)
}
