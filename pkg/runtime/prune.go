package runtime

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/cuemby/aria/pkg/log"
	"github.com/cuemby/aria/pkg/metrics"
)

// pruneIntervalMs is the minimum spacing between prune sweeps.
const pruneIntervalMs = 5 * 60 * 1000

// lastPruneMs tracks the last sweep's epoch-millisecond timestamp, CAS-guarded
// so concurrent callers never race into overlapping sweeps.
var lastPruneMs atomic.Int64

func nowMs() int64 { return time.Now().UnixMilli() }

// ShouldPrune reports whether enough time has passed since the last prune
// sweep and, if so, atomically claims this moment as the new last-prune
// timestamp so a racing caller observes false.
func ShouldPrune() bool {
	now := nowMs()
	last := lastPruneMs.Load()
	if now-last < pruneIntervalMs {
		return false
	}
	return lastPruneMs.CompareAndSwap(last, now)
}

// resetPruneTimer clears the rate limiter; used only by tests.
func resetPruneTimer() { lastPruneMs.Store(0) }

// IsIdle reports whether a sandbox container has been idle longer than
// idleHours. Exited/errored containers are idle once their exit time (or,
// absent that, their creation time) is older than the threshold; containers
// with no timestamp information at all are treated as idle. Pending
// containers idle out by creation time alone; running/starting containers
// are never idle.
func IsIdle(status SandboxStatus, idleHours int) bool {
	threshold := time.Now().Add(-time.Duration(idleHours) * time.Hour)

	switch status.State {
	case SandboxExited, SandboxError:
		if status.HasExited {
			return status.ExitedAt.Before(threshold)
		}
		if !status.CreatedAt.IsZero() {
			return status.CreatedAt.Before(threshold)
		}
		return true
	case SandboxPending:
		if !status.CreatedAt.IsZero() {
			return status.CreatedAt.Before(threshold)
		}
		return false
	default:
		return false
	}
}

// IsTooOld reports whether a sandbox container is older than maxAgeDays
// regardless of its current state, as a hard backstop against containers
// that never transition out of a state IsIdle tracks.
func IsTooOld(status SandboxStatus, maxAgeDays int) bool {
	threshold := time.Now().Add(-time.Duration(maxAgeDays) * 24 * time.Hour)

	if !status.CreatedAt.IsZero() {
		return status.CreatedAt.Before(threshold)
	}
	if status.HasStarted {
		return status.StartedAt.Before(threshold)
	}
	return false
}

// PruneSandboxes stops and removes sandbox containers that are idle or too
// old. It is rate-limited to run at most once every five minutes; a call
// inside that window returns (0, nil) without touching the driver. Per-
// container stop/remove failures are logged and do not abort the sweep.
func PruneSandboxes(ctx context.Context, driver Driver, idleHours, maxAgeDays int) (int, error) {
	if !ShouldPrune() {
		return 0, nil
	}

	sandboxes, err := driver.ListSandboxes(ctx)
	if err != nil {
		return 0, err
	}

	deleted := 0
	for _, s := range sandboxes {
		if !(IsTooOld(s, maxAgeDays) || IsIdle(s, idleHours)) {
			continue
		}

		log.Info("pruning sandbox container: " + s.Slug + " (" + string(s.State) + ")")

		if s.State == SandboxRunning {
			if err := driver.StopContainer(ctx, s.Slug); err != nil {
				log.Errorf("stop sandbox before pruning: "+s.Slug, err)
			}
		}

		if err := driver.RemoveContainer(ctx, s.Slug); err != nil {
			log.Errorf("remove sandbox during prune: "+s.Slug, err)
			continue
		}
		deleted++
	}

	metrics.SandboxPrunedTotal.Add(float64(deleted))
	return deleted, nil
}
