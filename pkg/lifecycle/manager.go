package lifecycle

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"syscall"
	"time"

	"github.com/gofrs/flock"
	"github.com/rs/zerolog"

	"github.com/cuemby/aria/pkg/log"
	"github.com/cuemby/aria/pkg/metrics"
	"github.com/cuemby/aria/pkg/registry"
	"github.com/cuemby/aria/pkg/types"
)

// DefaultStopGrace is how long Stop waits for SIGTERM to take effect before
// escalating to SIGKILL.
const DefaultStopGrace = 10 * time.Second

// instanceStore is the slice of *registry.InstanceRegistry's API the
// lifecycle manager depends on. Declared as an interface so tests can
// substitute a fake that fails a single call (e.g. UpdatePID) without
// disturbing the others, which a concrete *registry.InstanceRegistry
// cannot do since both UpdateStatus and UpdatePID share one SQLite
// connection.
type instanceStore interface {
	GetByName(ctx context.Context, name string) (types.Instance, bool, error)
	UpdateStatus(ctx context.Context, id string, status types.InstanceStatus) error
	UpdatePID(ctx context.Context, id string, pid int) error
}

// Manager orchestrates atomic start/stop/restart transitions for instances,
// backed by the instance registry and a pidfile/lockfile discipline on
// disk. One Manager is the control plane's single instance-lifecycle
// singleton.
type Manager struct {
	instances instanceStore
	binPath   string // ZEROCLAW_BIN: path to the daemon binary lifecycle spawns
	stopGrace time.Duration
	logger    zerolog.Logger
}

// NewManager constructs a Manager. binPath is the daemon binary lifecycle
// forks/execs (normally sourced from the ZEROCLAW_BIN environment
// variable); an empty stopGrace defaults to DefaultStopGrace.
func NewManager(instances *registry.InstanceRegistry, binPath string, stopGrace time.Duration) *Manager {
	if stopGrace <= 0 {
		stopGrace = DefaultStopGrace
	}
	return &Manager{
		instances: instances,
		binPath:   binPath,
		stopGrace: stopGrace,
		logger:    log.WithComponent("lifecycle"),
	}
}

func (m *Manager) resolve(ctx context.Context, name string) (types.Instance, error) {
	inst, ok, err := m.instances.GetByName(ctx, name)
	if err != nil {
		return types.Instance{}, newError(KindNotFound, "resolve instance", err)
	}
	if !ok {
		return types.Instance{}, newError(KindNotFound, fmt.Sprintf("instance %q not found", name), nil)
	}
	return inst, nil
}

// acquireLock takes a non-blocking exclusive lock on the instance's
// lifecycle.lock. The returned release func must be deferred by the caller.
func acquireLock(l Layout) (*flock.Flock, func(), error) {
	fl := flock.New(l.LockPath())
	locked, err := fl.TryLock()
	if err != nil {
		return nil, nil, newError(KindLockHeld, "acquire lifecycle lock", err)
	}
	if !locked {
		return nil, nil, newError(KindLockHeld, "lifecycle operation already in progress", nil)
	}
	return fl, func() { _ = fl.Unlock() }, nil
}

// Start resolves name, acquires the instance's lifecycle lock, and forks
// the daemon binary with ZEROCLAW_HOME=<instance_dir> and --port <port>.
func (m *Manager) Start(ctx context.Context, name string) (err error) {
	timer := metrics.NewTimer()
	defer func() {
		outcome := "success"
		if err != nil {
			outcome = "error"
		}
		timer.ObserveDurationVec(metrics.LifecycleOpDuration, "start")
		metrics.LifecycleOpsTotal.WithLabelValues("start", outcome).Inc()
	}()

	inst, err := m.resolve(ctx, name)
	if err != nil {
		return err
	}
	l := NewLayout(instanceDirOf(inst))

	_, release, err := acquireLock(l)
	if err != nil {
		return err
	}
	defer release()

	return m.startLocked(ctx, inst, l)
}

// startLocked performs the start algorithm assuming the caller already
// holds the instance's lifecycle lock.
func (m *Manager) startLocked(ctx context.Context, inst types.Instance, l Layout) error {
	if pid, err := ReadPID(l.PIDPath()); err == nil {
		if IsPIDAlive(pid) {
			if owned, _ := VerifyOwnership(pid, l.Dir); owned {
				return newError(KindAlreadyRunning, fmt.Sprintf("instance %q is already running (pid %d)", inst.Name, pid), nil)
			}
		}
		// Stale pidfile: either the PID is dead, or it is alive but not
		// ours (PID reuse) — either way the prior daemon is gone.
		if err := RemovePIDFile(l.PIDPath()); err != nil {
			return newError(KindConfigError, "remove stale pidfile", err)
		}
	}

	if err := RotateLog(l); err != nil {
		m.logger.Warn().Err(err).Str("instance", inst.Name).Msg("log rotation failed, continuing")
	}

	logFile, err := os.OpenFile(l.LogPath(), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return newError(KindConfigError, "open daemon log", err)
	}
	defer logFile.Close()

	bin := m.binPath
	if bin == "" {
		bin = os.Getenv("ZEROCLAW_BIN")
	}

	cmd := exec.Command(bin, "--port", strconv.Itoa(inst.Port))
	cmd.Env = append(os.Environ(), environPrefix(l.Dir))
	cmd.Stdout = logFile
	cmd.Stderr = logFile
	cmd.SysProcAttr = &syscall.SysProcAttr{Setsid: true}

	if err := cmd.Start(); err != nil {
		return newError(KindSpawnFailed, fmt.Sprintf("spawn daemon for %q", inst.Name), err)
	}
	childPID := cmd.Process.Pid
	// Detach: the control plane supervises via pidfile + ownership probe,
	// not by holding a wait() on the child.
	_ = cmd.Process.Release()

	rollback := func(cause error) error {
		_ = syscall.Kill(childPID, syscall.SIGKILL)
		_ = RemovePIDFile(l.PIDPath())
		if err := m.instances.UpdateStatus(ctx, inst.ID, types.InstanceStopped); err != nil {
			m.logger.Warn().Err(err).Str("instance", inst.Name).Msg("rollback: failed to reset registry status to stopped")
		}
		if err := m.instances.UpdatePID(ctx, inst.ID, 0); err != nil {
			m.logger.Warn().Err(err).Str("instance", inst.Name).Msg("rollback: failed to clear cached pid")
		}
		return newError(KindPostSpawnBookkeepingFailed,
			fmt.Sprintf("post-spawn bookkeeping failed for %q, killed spawned daemon", inst.Name), cause)
	}

	if err := WritePID(l.PIDPath(), childPID); err != nil {
		return rollback(err)
	}

	if err := m.instances.UpdateStatus(ctx, inst.ID, types.InstanceRunning); err != nil {
		return rollback(err)
	}
	if err := m.instances.UpdatePID(ctx, inst.ID, childPID); err != nil {
		return rollback(err)
	}

	m.logger.Info().Str("instance", inst.Name).Int("pid", childPID).Msg("instance started")
	return nil
}

// Stop resolves name, acquires the instance's lifecycle lock, and tears
// down its daemon process (SIGTERM, grace window, SIGKILL).
func (m *Manager) Stop(ctx context.Context, name string) (err error) {
	timer := metrics.NewTimer()
	defer func() {
		outcome := "success"
		if err != nil {
			outcome = "error"
		}
		timer.ObserveDurationVec(metrics.LifecycleOpDuration, "stop")
		metrics.LifecycleOpsTotal.WithLabelValues("stop", outcome).Inc()
	}()

	inst, err := m.resolve(ctx, name)
	if err != nil {
		return err
	}
	l := NewLayout(instanceDirOf(inst))

	_, release, err := acquireLock(l)
	if err != nil {
		return err
	}
	defer release()

	return m.stopLocked(ctx, inst, l)
}

// stopLocked performs the stop algorithm assuming the caller already holds
// the instance's lifecycle lock.
func (m *Manager) stopLocked(ctx context.Context, inst types.Instance, l Layout) error {
	pid, err := ReadPID(l.PIDPath())
	if err != nil {
		return newError(KindNotRunning, fmt.Sprintf("instance %q is not running", inst.Name), nil)
	}

	if IsPIDAlive(pid) {
		owned, _ := VerifyOwnership(pid, l.Dir)
		if !owned {
			return newError(KindOwnershipMismatch,
				fmt.Sprintf("pid %d does NOT belong to instance %q", pid, inst.Name), nil)
		}

		_ = syscall.Kill(pid, syscall.SIGTERM)

		deadline := time.Now().Add(m.stopGrace)
		for time.Now().Before(deadline) {
			if !IsPIDAlive(pid) {
				break
			}
			time.Sleep(50 * time.Millisecond)
		}
		if IsPIDAlive(pid) {
			_ = syscall.Kill(pid, syscall.SIGKILL)
		}
	}

	if err := RemovePIDFile(l.PIDPath()); err != nil {
		return newError(KindConfigError, "remove pidfile", err)
	}
	if err := m.instances.UpdateStatus(ctx, inst.ID, types.InstanceStopped); err != nil {
		return newError(KindConfigError, "update registry status", err)
	}
	if err := m.instances.UpdatePID(ctx, inst.ID, 0); err != nil {
		return newError(KindConfigError, "clear cached pid", err)
	}

	m.logger.Info().Str("instance", inst.Name).Msg("instance stopped")
	return nil
}

// Restart stops then starts an instance, holding the lifecycle lock across
// both halves rather than releasing and re-acquiring it.
func (m *Manager) Restart(ctx context.Context, name string) (err error) {
	timer := metrics.NewTimer()
	defer func() {
		outcome := "success"
		if err != nil {
			outcome = "error"
		}
		timer.ObserveDurationVec(metrics.LifecycleOpDuration, "restart")
		metrics.LifecycleOpsTotal.WithLabelValues("restart", outcome).Inc()
	}()

	inst, err := m.resolve(ctx, name)
	if err != nil {
		return err
	}
	l := NewLayout(instanceDirOf(inst))

	_, release, err := acquireLock(l)
	if err != nil {
		return err
	}
	defer release()

	if err := m.stopLocked(ctx, inst, l); err != nil {
		if kind, ok := ErrorKind(err); !ok || kind != KindNotRunning {
			return err
		}
		// Already stopped is fine for a restart — proceed to start.
	}

	// Re-resolve: stopLocked may have updated status/pid.
	inst, err = m.resolve(ctx, name)
	if err != nil {
		return err
	}
	return m.startLocked(ctx, inst, l)
}

// InstanceDir derives an instance's root directory from its config path,
// per the on-disk layout contract (config.toml lives directly under
// instance_dir).
func InstanceDir(inst types.Instance) string {
	return filepath.Dir(inst.ConfigPath)
}

func instanceDirOf(inst types.Instance) string { return InstanceDir(inst) }
