package reconciler

import (
	"context"
	"path/filepath"
	"strconv"
	"time"

	"github.com/gofrs/flock"
	"github.com/rs/zerolog"

	"github.com/cuemby/aria/pkg/events"
	"github.com/cuemby/aria/pkg/lifecycle"
	"github.com/cuemby/aria/pkg/log"
	"github.com/cuemby/aria/pkg/metrics"
	"github.com/cuemby/aria/pkg/registry"
	"github.com/cuemby/aria/pkg/runtime"
	"github.com/cuemby/aria/pkg/types"
)

const tickInterval = 10 * time.Second

// PruneConfig configures the orthogonal sandbox-pruning sweep. A nil Driver
// disables pruning entirely.
type PruneConfig struct {
	Driver     runtime.Driver
	IdleHours  int
	MaxAgeDays int
}

// Reconciler is the control plane's supervisor: it never starts or stops a
// process, only corrects drift between the registry's declared status and
// each instance's observed on-disk status.
type Reconciler struct {
	instances *registry.InstanceRegistry
	prune     PruneConfig
	broker    *events.Broker
	logger    zerolog.Logger
	stopCh    chan struct{}
}

// NewReconciler constructs a Reconciler. broker may be nil if no event
// fan-out is wired up.
func NewReconciler(instances *registry.InstanceRegistry, prune PruneConfig, broker *events.Broker) *Reconciler {
	return &Reconciler{
		instances: instances,
		prune:     prune,
		broker:    broker,
		logger:    log.WithComponent("reconciler"),
		stopCh:    make(chan struct{}),
	}
}

// Start begins the periodic reconciliation loop.
func (r *Reconciler) Start() {
	go r.run()
}

// Stop halts the reconciliation loop.
func (r *Reconciler) Stop() {
	close(r.stopCh)
}

func (r *Reconciler) run() {
	ticker := time.NewTicker(tickInterval)
	defer ticker.Stop()

	r.logger.Info().Msg("supervisor started")

	for {
		select {
		case <-ticker.C:
			r.cycle(context.Background())
		case <-r.stopCh:
			r.logger.Info().Msg("supervisor stopped")
			return
		}
	}
}

// StartupReconcile runs one reconciliation pass synchronously, intended to
// be called once at control-plane startup before the periodic loop begins
// — so instances left running by a prior control-plane process are
// reflected in the registry immediately, not after the first tick.
func (r *Reconciler) StartupReconcile(ctx context.Context) {
	r.cycle(ctx)
}

// cycle performs one reconciliation pass over every non-archived instance,
// then (subject to its own internal rate limit) a sandbox-pruning sweep.
// Errors are logged and swallowed: the supervisor never crashes the
// control plane.
func (r *Reconciler) cycle(ctx context.Context) {
	timer := metrics.NewTimer()
	defer func() {
		timer.ObserveDuration(metrics.ReconciliationDuration)
		metrics.ReconciliationCyclesTotal.Inc()
	}()

	instances, err := r.instances.List(ctx)
	if err != nil {
		r.logger.Error().Err(err).Msg("failed to list instances")
		return
	}

	for _, inst := range instances {
		if inst.Status == types.InstanceArchived {
			continue
		}
		r.reconcileInstance(ctx, inst)
	}

	if r.prune.Driver != nil {
		pruned, err := runtime.PruneSandboxes(ctx, r.prune.Driver, r.prune.IdleHours, r.prune.MaxAgeDays)
		if err != nil {
			r.logger.Error().Err(err).Msg("sandbox prune sweep failed")
		} else if pruned > 0 {
			r.logger.Info().Int("pruned", pruned).Msg("pruned sandbox containers")
			r.publish(events.EventSandboxPruned, "", map[string]string{"pruned": strconv.Itoa(pruned)})
		}
	}
}

// reconcileInstance corrects drift for a single instance. A lifecycle lock
// held by a concurrent start/stop/restart causes this instance to be
// skipped for the cycle — the supervisor is advisory, never forcing.
func (r *Reconciler) reconcileInstance(ctx context.Context, inst types.Instance) {
	l := lifecycle.NewLayout(filepath.Dir(inst.ConfigPath))

	fl := flock.New(l.LockPath())
	locked, err := fl.TryLock()
	if err != nil || !locked {
		r.logger.Debug().Str("instance", inst.Name).Msg("lifecycle lock held, skipping reconcile")
		return
	}
	defer fl.Unlock()

	observed := liveStatus(l)
	declared := inst.Status

	switch {
	case declared == types.InstanceRunning && observed == types.InstanceStopped:
		r.logger.Warn().Str("instance", inst.Name).Msg("crash detected, correcting to stopped")
		if err := lifecycle.RemovePIDFile(l.PIDPath()); err != nil {
			r.logger.Error().Err(err).Str("instance", inst.Name).Msg("failed to remove stale pidfile")
		}
		if err := r.instances.UpdateStatus(ctx, inst.ID, types.InstanceStopped); err != nil {
			r.logger.Error().Err(err).Str("instance", inst.Name).Msg("failed to correct status to stopped")
			return
		}
		if err := r.instances.UpdatePID(ctx, inst.ID, 0); err != nil {
			r.logger.Error().Err(err).Str("instance", inst.Name).Msg("failed to clear cached pid")
		}
		metrics.DriftCorrectionsTotal.WithLabelValues("crash").Inc()
		r.publish(events.EventInstanceCrashed, inst.ID, nil)

	case declared == types.InstanceStopped && observed == types.InstanceRunning:
		pid, _ := lifecycle.ReadPID(l.PIDPath())
		r.logger.Warn().Str("instance", inst.Name).Int("pid", pid).Msg("drift detected, correcting to running")
		if err := r.instances.UpdateStatus(ctx, inst.ID, types.InstanceRunning); err != nil {
			r.logger.Error().Err(err).Str("instance", inst.Name).Msg("failed to correct status to running")
			return
		}
		if err := r.instances.UpdatePID(ctx, inst.ID, pid); err != nil {
			r.logger.Error().Err(err).Str("instance", inst.Name).Msg("failed to cache observed pid")
		}
		metrics.DriftCorrectionsTotal.WithLabelValues("drift").Inc()
		r.publish(events.EventInstanceDrifted, inst.ID, nil)

	default:
		// declared and observed agree; nothing to do.
	}
}

// liveStatus reports "running" iff a pidfile exists, its PID is alive, and
// ownership verifies; otherwise "stopped". On platforms without
// /proc/<pid>/environ, VerifyOwnership fails closed (returns false), so
// liveStatus conservatively reports "stopped" rather than ever guessing a
// process is ours.
func liveStatus(l lifecycle.Layout) types.InstanceStatus {
	pid, err := lifecycle.ReadPID(l.PIDPath())
	if err != nil {
		return types.InstanceStopped
	}
	if !lifecycle.IsPIDAlive(pid) {
		return types.InstanceStopped
	}
	owned, err := lifecycle.VerifyOwnership(pid, l.Dir)
	if err != nil || !owned {
		return types.InstanceStopped
	}
	return types.InstanceRunning
}

func (r *Reconciler) publish(typ events.EventType, instanceID string, meta map[string]string) {
	if r.broker == nil {
		return
	}
	r.broker.Publish(&events.Event{
		Type:     typ,
		Message:  string(typ),
		Metadata: mergeInstanceID(meta, instanceID),
	})
}

func mergeInstanceID(meta map[string]string, instanceID string) map[string]string {
	if instanceID == "" {
		return meta
	}
	out := map[string]string{"instance_id": instanceID}
	for k, v := range meta {
		out[k] = v
	}
	return out
}
