// Package registry implements the generic cache-fronted SQLite store engine
// shared by every entity-kind registry in pkg/aria.
package registry

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/jmoiron/sqlx"
)

// Config wires a Store[T] to one SQLite table. T is the row type scanned
// directly by sqlx (its fields carry `db:"..."` tags matching the table's
// columns). Callers supply small accessor/merge functions instead of the
// engine reaching into T via reflection, keeping the generic engine ignorant
// of any entity's payload shape.
type Config[T any] struct {
	DB    *sqlx.DB
	Table string

	// SoftDelete selects the delete strategy: true sets status='deleted'
	// (Agent/Tool/Feed/Pipeline/Memory/Network), false removes the row
	// (Cron/Container/Instance).
	SoftDelete bool

	SelectAllSQL string // rows visible to ensureLoaded (status != 'deleted' for soft-delete kinds)
	InsertSQL    string // named-parameter INSERT, binds the full row struct
	UpdateSQL    string // named-parameter UPDATE by :id, binds the full row struct
	HardDeleteSQL string // "DELETE FROM <table> WHERE id = ?"
	SoftDeleteSQL string // "UPDATE <table> SET status='deleted', updated_at=? WHERE id = ?"

	IDOf     func(T) string
	TenantOf func(T) string
	NameOf   func(T) string
	// NetworkOf is non-nil only for entity kinds that participate in the
	// network_index (Container).
	NetworkOf func(T) string

	// Prepare finalizes a row before persistence: on insert, existing is
	// nil and Prepare must mint an ID/CreatedAt; on update, existing is the
	// current cached row and Prepare must bump UpdatedAt (and Version, for
	// Agents/Tools).
	Prepare func(existing *T, incoming T, now time.Time) T
}

// Store is a cache-fronted, SQLite-backed store for one entity kind. All
// public operations acquire mu for the duration of the in-memory index
// manipulation; persistence I/O happens outside that critical section,
// per the "no public op holds a lock across I/O" rule.
type Store[T any] struct {
	cfg Config[T]

	loaded  atomic.Bool
	loadMu  sync.Mutex

	mu           sync.RWMutex
	cache        map[string]T
	tenantIndex  map[string]map[string]struct{}
	nameIndex    map[string]string // "tenant:name" -> id
	networkIndex map[string]map[string]struct{}
}

// New constructs a Store from Config. Indexes are not populated until the
// first call touches the store (load-on-first-use).
func New[T any](cfg Config[T]) *Store[T] {
	return &Store[T]{
		cfg:          cfg,
		cache:        make(map[string]T),
		tenantIndex:  make(map[string]map[string]struct{}),
		nameIndex:    make(map[string]string),
		networkIndex: make(map[string]map[string]struct{}),
	}
}

func nameKey(tenantID, name string) string {
	return tenantID + ":" + name
}

// ensureLoaded populates the in-memory indexes from SQLite exactly once,
// guarded by the one-shot atomic.Bool described in the registry contract.
func (s *Store[T]) ensureLoaded(ctx context.Context) error {
	if s.loaded.Load() {
		return nil
	}

	s.loadMu.Lock()
	defer s.loadMu.Unlock()
	if s.loaded.Load() {
		return nil
	}

	var rows []T
	if err := s.cfg.DB.SelectContext(ctx, &rows, s.cfg.SelectAllSQL); err != nil {
		return fmt.Errorf("load %s: %w", s.cfg.Table, err)
	}

	s.mu.Lock()
	for _, row := range rows {
		s.indexLocked(row)
	}
	s.mu.Unlock()

	s.loaded.Store(true)
	return nil
}

// indexLocked inserts row into cache and all secondary indexes. Caller must
// hold s.mu for writing.
func (s *Store[T]) indexLocked(row T) {
	id := s.cfg.IDOf(row)
	tenant := s.cfg.TenantOf(row)

	s.cache[id] = row

	if s.tenantIndex[tenant] == nil {
		s.tenantIndex[tenant] = make(map[string]struct{})
	}
	s.tenantIndex[tenant][id] = struct{}{}

	if name := s.cfg.NameOf(row); name != "" {
		s.nameIndex[nameKey(tenant, name)] = id
	}

	if s.cfg.NetworkOf != nil {
		if net := s.cfg.NetworkOf(row); net != "" {
			if s.networkIndex[net] == nil {
				s.networkIndex[net] = make(map[string]struct{})
			}
			s.networkIndex[net][id] = struct{}{}
		}
	}
}

// deindexLocked removes row from every index. Caller must hold s.mu.
func (s *Store[T]) deindexLocked(row T) {
	id := s.cfg.IDOf(row)
	tenant := s.cfg.TenantOf(row)

	delete(s.cache, id)
	if ids := s.tenantIndex[tenant]; ids != nil {
		delete(ids, id)
	}
	if name := s.cfg.NameOf(row); name != "" {
		delete(s.nameIndex, nameKey(tenant, name))
	}
	if s.cfg.NetworkOf != nil {
		if net := s.cfg.NetworkOf(row); net != "" {
			if ids := s.networkIndex[net]; ids != nil {
				delete(ids, id)
			}
		}
	}
}

// Get returns the cached row for id.
func (s *Store[T]) Get(ctx context.Context, id string) (T, bool, error) {
	var zero T
	if err := s.ensureLoaded(ctx); err != nil {
		return zero, false, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	row, ok := s.cache[id]
	return row, ok, nil
}

// GetByName resolves (tenantID, name) through the name index.
func (s *Store[T]) GetByName(ctx context.Context, tenantID, name string) (T, bool, error) {
	var zero T
	if err := s.ensureLoaded(ctx); err != nil {
		return zero, false, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.nameIndex[nameKey(tenantID, name)]
	if !ok {
		return zero, false, nil
	}
	row, ok := s.cache[id]
	return row, ok, nil
}

// List returns all live rows for a tenant.
func (s *Store[T]) List(ctx context.Context, tenantID string) ([]T, error) {
	if err := s.ensureLoaded(ctx); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	ids := s.tenantIndex[tenantID]
	out := make([]T, 0, len(ids))
	for id := range ids {
		out = append(out, s.cache[id])
	}
	return out, nil
}

// ListAll returns every live row across all tenants.
func (s *Store[T]) ListAll(ctx context.Context) ([]T, error) {
	if err := s.ensureLoaded(ctx); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]T, 0, len(s.cache))
	for _, row := range s.cache {
		out = append(out, row)
	}
	return out, nil
}

// ListByNetwork returns every live container-kind row joined to networkID.
// Only meaningful for stores configured with NetworkOf.
func (s *Store[T]) ListByNetwork(ctx context.Context, networkID string) ([]T, error) {
	if err := s.ensureLoaded(ctx); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	ids := s.networkIndex[networkID]
	out := make([]T, 0, len(ids))
	for id := range ids {
		out = append(out, s.cache[id])
	}
	return out, nil
}

// Count returns the number of live rows for a tenant.
func (s *Store[T]) Count(ctx context.Context, tenantID string) (int, error) {
	if err := s.ensureLoaded(ctx); err != nil {
		return 0, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.tenantIndex[tenantID]), nil
}

// Upsert inserts a new row or updates the existing row at (tenantID, name).
// The caller's Prepare hook is responsible for minting an id/created_at on
// insert and bumping updated_at/version on update. If the upsert changes an
// entity's network (the Container case), the old and new network_index
// entries are both adjusted.
func (s *Store[T]) Upsert(ctx context.Context, tenantID, name string, incoming T) (T, error) {
	var zero T
	if err := s.ensureLoaded(ctx); err != nil {
		return zero, err
	}

	now := time.Now()

	s.mu.Lock()
	existingID, hasExisting := s.nameIndex[nameKey(tenantID, name)]
	var existingPtr *T
	var existingRow T
	if hasExisting {
		existingRow = s.cache[existingID]
		existingPtr = &existingRow
	}
	s.mu.Unlock()

	prepared := s.cfg.Prepare(existingPtr, incoming, now)

	if hasExisting {
		if _, err := s.cfg.DB.NamedExecContext(ctx, s.cfg.UpdateSQL, prepared); err != nil {
			return zero, fmt.Errorf("update %s: %w", s.cfg.Table, err)
		}
	} else {
		if _, err := s.cfg.DB.NamedExecContext(ctx, s.cfg.InsertSQL, prepared); err != nil {
			return zero, fmt.Errorf("insert %s: %w", s.cfg.Table, err)
		}
	}

	s.mu.Lock()
	if hasExisting {
		s.deindexLocked(existingRow)
	}
	s.indexLocked(prepared)
	s.mu.Unlock()

	return prepared, nil
}

// Insert unconditionally inserts incoming as a brand new row — unlike
// Upsert, it never looks up an existing (tenantID, name) match first. Used
// by entity kinds (Instance) whose uniqueness constraint is enforced by the
// database and should surface as an error on a duplicate, not a silent
// revision.
func (s *Store[T]) Insert(ctx context.Context, incoming T) (T, error) {
	var zero T
	if err := s.ensureLoaded(ctx); err != nil {
		return zero, err
	}

	prepared := s.cfg.Prepare(nil, incoming, time.Now())

	if _, err := s.cfg.DB.NamedExecContext(ctx, s.cfg.InsertSQL, prepared); err != nil {
		return zero, fmt.Errorf("insert %s: %w", s.cfg.Table, err)
	}

	s.mu.Lock()
	s.indexLocked(prepared)
	s.mu.Unlock()

	return prepared, nil
}

// Delete removes id per the store's configured delete strategy: soft-delete
// entities set status='deleted' and drop out of the indexes; hard-delete
// entities have their row removed outright. Deleting a missing id returns
// false with no error.
func (s *Store[T]) Delete(ctx context.Context, id string) (bool, error) {
	if err := s.ensureLoaded(ctx); err != nil {
		return false, err
	}

	s.mu.RLock()
	row, ok := s.cache[id]
	s.mu.RUnlock()
	if !ok {
		return false, nil
	}

	if s.cfg.SoftDelete {
		if _, err := s.cfg.DB.ExecContext(ctx, s.cfg.SoftDeleteSQL, time.Now(), id); err != nil {
			return false, fmt.Errorf("soft delete %s: %w", s.cfg.Table, err)
		}
	} else {
		if _, err := s.cfg.DB.ExecContext(ctx, s.cfg.HardDeleteSQL, id); err != nil {
			return false, fmt.Errorf("delete %s: %w", s.cfg.Table, err)
		}
	}

	s.mu.Lock()
	s.deindexLocked(row)
	s.mu.Unlock()

	return true, nil
}

// DB returns the underlying database handle, for entity-specific updates
// that fall outside the generic Upsert/Delete shape (e.g. a task's run
// status transition, which does not touch the name/tenant indexes).
func (s *Store[T]) DB() *sqlx.DB {
	return s.cfg.DB
}

// UpdateCached replaces the cached entry for id in place after a caller has
// already persisted an entity-specific field update (e.g. update_status,
// update_runtime_state) directly via SQL. It re-derives all indexes for the
// row, since name/network may have moved.
func (s *Store[T]) UpdateCached(id string, row T) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if old, ok := s.cache[id]; ok {
		s.deindexLocked(old)
	}
	s.indexLocked(row)
}
