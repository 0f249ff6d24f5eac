package lifecycle

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/cuemby/aria/pkg/log"
	"github.com/cuemby/aria/pkg/registry"
	"github.com/cuemby/aria/pkg/types"
)

// sleeperScript writes an executable shell script that ignores its
// arguments and sleeps well past any test's lifetime, standing in for the
// real daemon binary lifecycle forks.
func sleeperScript(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "sleeper.sh")
	require.NoError(t, os.WriteFile(path, []byte("#!/bin/sh\nexec sleep 300\n"), 0755))
	return path
}

type testFixture struct {
	mgr       *Manager
	instances *registry.InstanceRegistry
	dir       string
}

func newFixture(t *testing.T, binPath string) testFixture {
	t.Helper()
	root := t.TempDir()
	db, err := registry.Open(filepath.Join(root, "aria.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	instances := registry.NewInstanceRegistry(db)
	mgr := NewManager(instances, binPath, time.Second)
	return testFixture{mgr: mgr, instances: instances, dir: root}
}

func (f testFixture) createInstance(t *testing.T, name string, port int) types.Instance {
	t.Helper()
	instDir := filepath.Join(f.dir, name)
	require.NoError(t, os.MkdirAll(instDir, 0755))
	require.NoError(t, os.WriteFile(filepath.Join(instDir, "config.toml"), []byte("name = \""+name+"\"\n"), 0600))

	inst, err := f.instances.Create(context.Background(), registry.InstanceCreate{
		Name:       name,
		Port:       port,
		ConfigPath: filepath.Join(instDir, "config.toml"),
	})
	require.NoError(t, err)
	return inst
}

func TestManager_StartThenStop(t *testing.T) {
	f := newFixture(t, sleeperScript(t))
	ctx := context.Background()
	f.createInstance(t, "tenant-a", 9001)

	require.NoError(t, f.mgr.Start(ctx, "tenant-a"))

	got, ok, err := f.instances.GetByName(ctx, "tenant-a")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, types.InstanceRunning, got.Status)
	require.NotZero(t, got.PID)
	require.True(t, IsPIDAlive(got.PID))

	require.NoError(t, f.mgr.Stop(ctx, "tenant-a"))

	got, ok, err = f.instances.GetByName(ctx, "tenant-a")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, types.InstanceStopped, got.Status)
	require.Zero(t, got.PID)

	l := NewLayout(InstanceDir(got))
	_, err = ReadPID(l.PIDPath())
	require.Error(t, err)
}

func TestManager_Start_AlreadyRunning(t *testing.T) {
	f := newFixture(t, sleeperScript(t))
	ctx := context.Background()
	f.createInstance(t, "tenant-a", 9002)

	require.NoError(t, f.mgr.Start(ctx, "tenant-a"))
	t.Cleanup(func() { _ = f.mgr.Stop(ctx, "tenant-a") })

	err := f.mgr.Start(ctx, "tenant-a")
	require.Error(t, err)
	kind, ok := ErrorKind(err)
	require.True(t, ok)
	require.Equal(t, KindAlreadyRunning, kind)
}

func TestManager_Stop_NotRunning(t *testing.T) {
	f := newFixture(t, sleeperScript(t))
	ctx := context.Background()
	f.createInstance(t, "tenant-a", 9003)

	err := f.mgr.Stop(ctx, "tenant-a")
	require.Error(t, err)
	kind, ok := ErrorKind(err)
	require.True(t, ok)
	require.Equal(t, KindNotRunning, kind)
	require.Contains(t, err.Error(), "not running")
}

func TestManager_Stop_OwnershipMismatch(t *testing.T) {
	f := newFixture(t, sleeperScript(t))
	ctx := context.Background()
	inst := f.createInstance(t, "tenant-a", 9004)

	l := NewLayout(InstanceDir(inst))
	require.NoError(t, WritePID(l.PIDPath(), os.Getpid()))

	err := f.mgr.Stop(ctx, "tenant-a")
	require.Error(t, err)
	kind, ok := ErrorKind(err)
	require.True(t, ok)
	require.Equal(t, KindOwnershipMismatch, kind)
	require.Contains(t, err.Error(), "does NOT belong")

	// The foreign process must be left untouched.
	require.True(t, IsPIDAlive(os.Getpid()))
}

func TestManager_Start_StalePidfileIgnored(t *testing.T) {
	f := newFixture(t, sleeperScript(t))
	ctx := context.Background()
	inst := f.createInstance(t, "tenant-a", 9005)

	l := NewLayout(InstanceDir(inst))
	require.NoError(t, WritePID(l.PIDPath(), 999999)) // almost certainly dead

	require.NoError(t, f.mgr.Start(ctx, "tenant-a"))
	t.Cleanup(func() { _ = f.mgr.Stop(ctx, "tenant-a") })

	got, ok, err := f.instances.GetByName(ctx, "tenant-a")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, types.InstanceRunning, got.Status)
	require.NotEqual(t, 999999, got.PID)
}

func TestManager_Start_RollbackOnPostSpawnFailure(t *testing.T) {
	f := newFixture(t, sleeperScript(t))
	ctx := context.Background()
	inst := f.createInstance(t, "tenant-a", 9006)

	l := NewLayout(InstanceDir(inst))
	// Occupy the pidfile path with a directory so WritePID fails after the
	// daemon has already been spawned, forcing the rollback path.
	require.NoError(t, os.MkdirAll(l.PIDPath(), 0755))

	err := f.mgr.Start(ctx, "tenant-a")
	require.Error(t, err)
	kind, ok := ErrorKind(err)
	require.True(t, ok)
	require.Equal(t, KindPostSpawnBookkeepingFailed, kind)
	require.Contains(t, err.Error(), "killed spawned daemon")

	got, ok, err := f.instances.GetByName(ctx, "tenant-a")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, types.InstanceStopped, got.Status)
}

// updatePIDFailingStore wraps a real InstanceRegistry but forces UpdatePID
// to fail, so the UpdateStatus(running)-succeeds/UpdatePID-fails ordering
// inside startLocked's rollback is exercised directly, not just the
// earlier WritePID failure point.
type updatePIDFailingStore struct {
	*registry.InstanceRegistry
}

func (s updatePIDFailingStore) UpdatePID(ctx context.Context, id string, pid int) error {
	if pid != 0 {
		// Let the rollback's own UpdatePID(..., 0) call through so the
		// cached PID is actually cleared; only the post-spawn write fails.
		return errors.New("injected: UpdatePID failure")
	}
	return s.InstanceRegistry.UpdatePID(ctx, id, pid)
}

func TestManager_Start_RollbackRevertsRegistryStatusWhenUpdatePIDFails(t *testing.T) {
	root := t.TempDir()
	db, err := registry.Open(filepath.Join(root, "aria.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	instances := registry.NewInstanceRegistry(db)
	failing := updatePIDFailingStore{InstanceRegistry: instances}
	mgr := &Manager{
		instances: failing,
		binPath:   sleeperScript(t),
		stopGrace: time.Second,
		logger:    log.WithComponent("lifecycle"),
	}

	f := testFixture{mgr: mgr, instances: instances, dir: root}
	ctx := context.Background()
	f.createInstance(t, "tenant-a", 9106)

	err = mgr.Start(ctx, "tenant-a")
	require.Error(t, err)
	kind, ok := ErrorKind(err)
	require.True(t, ok)
	require.Equal(t, KindPostSpawnBookkeepingFailed, kind)
	require.Contains(t, err.Error(), "killed spawned daemon")

	got, ok, err := instances.GetByName(ctx, "tenant-a")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, types.InstanceStopped, got.Status, "UpdateStatus(running) succeeding before UpdatePID fails must not leave the registry stuck on running")
	require.Zero(t, got.PID)

	// The spawned child must not still be alive under our ownership proof.
	l := NewLayout(InstanceDir(got))
	_, err = ReadPID(l.PIDPath())
	require.Error(t, err, "pidfile must have been removed by rollback")
}

func TestManager_Restart(t *testing.T) {
	f := newFixture(t, sleeperScript(t))
	ctx := context.Background()
	f.createInstance(t, "tenant-a", 9007)

	require.NoError(t, f.mgr.Start(ctx, "tenant-a"))
	before, _, err := f.instances.GetByName(ctx, "tenant-a")
	require.NoError(t, err)

	require.NoError(t, f.mgr.Restart(ctx, "tenant-a"))
	t.Cleanup(func() { _ = f.mgr.Stop(ctx, "tenant-a") })

	after, ok, err := f.instances.GetByName(ctx, "tenant-a")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, types.InstanceRunning, after.Status)
	require.NotEqual(t, before.PID, after.PID)
}
