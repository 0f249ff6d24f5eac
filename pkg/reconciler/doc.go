/*
Package reconciler implements the control plane's supervisor: a periodic
loop (plus a one-shot startup pass) that reconciles each instance's
declared status in the registry against its observed status on disk, and
never the other way around.

# Reconciliation loop

For every non-archived instance:

 1. Attempt a non-blocking lifecycle lock; if another actor already holds
    it, skip this instance for the cycle rather than racing a concurrent
    lifecycle operation.
 2. Compute declared = registry status and observed = live_status(instance
    dir), where live_status is "running" iff a pidfile exists, its PID is
    alive, and ownership verifies (ZEROCLAW_HOME matches), else "stopped".
 3. declared=running, observed=stopped → crash detected: set the registry
    to stopped, clear the cached PID, remove any stale pidfile.
 4. declared=stopped, observed=running → drift detected: set the registry
    to running, cache the observed PID.
 5. Otherwise: no-op.

The supervisor never starts or stops a process itself — only pkg/lifecycle
does that. A reconcile cycle that races a live lifecycle operation (lock
held) is skipped for that instance, never forced.

# Sandbox pruning

An orthogonal, independently rate-limited task (see pkg/runtime.
PruneSandboxes) runs at most once every five minutes: it lists
sandbox-labeled containers, stops then removes the ones that exceed the
configured idle-time or absolute-age thresholds.

Reconciler errors are logged and swallowed — a failed cycle never crashes
the control plane; the next tick tries again.
*/
package reconciler
