/*
Package runtime abstracts the container backend that hosts tenant daemons.

The control plane never talks to Docker or containerd directly outside this
package: every caller depends on the Driver interface, and picks a concrete
implementation at startup based on configuration.

# Drivers

CLIDriver shells out to a runtime CLI (docker by default, overridable via
the control-plane config's runtime_binary) using os/exec. It is the default backend: it requires no
socket connection, works against any Docker-API-compatible CLI, and exposes
the full hardening flag set (--cap-drop, --security-opt=no-new-privileges,
--read-only, --pids-limit, --ulimit, --tmpfs) directly as run arguments.

ContainerdDriver talks to an embedded or external containerd daemon over its
client API, scoping all operations to a dedicated namespace. It reuses
containerd's OCI spec builder for resource limits (CPU shares and CFS quota,
memory limit) and the SIGTERM-then-SIGKILL task-kill sequence for graceful
stop. It trades some of CLIDriver's hardening surface (ulimits, tmpfs,
no-new-privileges are not wired as OCI spec opts here) for not depending on
an external CLI binary at all.

# Sandbox containers

Every container a driver's CreateContainer starts carries two labels:
aria.sandbox=true and aria.created_at_ms=<epoch ms>; there is no separate
creation path without them. ListSandboxes returns only containers
carrying the first label; PruneSandboxes (see prune.go) uses both labels,
plus each container's observed state, to decide whether a sandbox is idle
or has simply overstayed a hard age limit, and removes it if so. Pruning is
rate-limited to once per five minutes regardless of how often it is invoked,
since both the startup reconciler and the periodic supervisor loop may call
it independently.

# Stats parsing

ContainerStats on CLIDriver shells out to the runtime CLI's stats command
and parses its human-readable output (stats.go): CPU percentage strings like
"1.23%", usage/limit pairs like "46.5MiB / 256MiB", and PID counts.
Unparseable fields default to zero rather than failing the whole stats
call — a degraded reading is preferred over no reading at all.
*/
package runtime
