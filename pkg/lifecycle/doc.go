/*
Package lifecycle implements atomic per-instance start/stop/restart for the
control plane's tenant daemons.

Every instance is rooted at an instance_dir holding config.toml (mode 0600),
daemon.pid (the OS PID of the running daemon, ASCII/UTF-8), lifecycle.lock
(an empty file used only for its advisory exclusive lock), and logs/
daemon.log (+ a single-generation daemon.log.1 rotation).

# Ownership proof

A "running" instance is one with (a) a pidfile, (b) a live PID, and (c) a
process whose environment contains ZEROCLAW_HOME=<instance_dir>. That
environment variable is the only thing distinguishing "this control plane's
child" from "some unrelated process that happens to reuse the PID" — PID
reuse by the OS is otherwise indistinguishable from ownership.

# Locking

At most one lifecycle operation per instance proceeds at a time, enforced by
a non-blocking exclusive lock on lifecycle.lock (github.com/gofrs/flock).
Restart acquires the lock once and holds it across both the stop and start
halves, rather than releasing and re-acquiring between them.

# Rollback

If post-spawn bookkeeping (writing the pidfile or updating the registry)
fails after a child has already been forked, the child is sent SIGKILL, any
partially-written pidfile is removed, and the returned error mentions
"killed spawned daemon" so callers and tests can recognize the rollback
path without string-matching the rest of the message.
*/
package lifecycle
