package runtime

import (
	"context"
	"errors"
	"time"

	"github.com/cuemby/aria/pkg/types"
)

// ErrNotFound is returned by driver verbs whose target container does not
// exist. Stop/Remove treat it as success; other
// verbs propagate it.
var ErrNotFound = errors.New("container not found")

// CreateSpec carries everything create_container needs to apply the full
// security hardening contract: dropped capabilities, no-new-privileges,
// read-only rootfs, process/ulimits, memory+swap, CPU quota, ephemeral tmpfs,
// non-root user, loopback-only port publish, restart policy, log rotation,
// three volume mounts, and environment injection.
type CreateSpec struct {
	Slug      string
	Port      int
	UID       int
	Env       map[string]string
	MemoryMB  int
	CPULimit  float64
	// WorkspaceDir, MemoryDir and HomeDir are bind-mounted at fixed
	// in-container paths (workspace, .../memory, .../home) mirroring the
	// three required volume mounts.
	WorkspaceDir string
	MemoryDir    string
	HomeDir      string
}

// Driver is the control plane's view of a container runtime: only the
// verbs the lifecycle manager, supervisor, and sandbox pruner need. Docker
// (via CLIDriver) and an embedded containerd are both valid backends.
type Driver interface {
	HealthCheck(ctx context.Context) error

	CreateContainer(ctx context.Context, spec CreateSpec) (containerID string, err error)
	StartContainer(ctx context.Context, slug string) error
	StopContainer(ctx context.Context, slug string) error
	RestartContainer(ctx context.Context, slug string) error
	RemoveContainer(ctx context.Context, slug string) error

	Logs(ctx context.Context, slug string, tail int) (string, error)
	Inspect(ctx context.Context, slug string) (string, error)
	IsRunning(ctx context.Context, slug string) (bool, error)
	ExecInContainer(ctx context.Context, slug string, cmd []string, timeout time.Duration) (string, error)
	ContainerStats(ctx context.Context, slug string) (types.ContainerStats, error)

	// ListSandboxes returns every container this driver manages that
	// carries the sandbox label, for the supervisor's pruning sweep.
	ListSandboxes(ctx context.Context) ([]SandboxStatus, error)

	// JoinNetwork attaches an already-created container to a named
	// network. Failures are warn-only at the caller per the creation
	// contract ("a join failure is warned but does not fail the create").
	JoinNetwork(ctx context.Context, slug, network string) error
}

// SandboxState is the lifecycle phase of a sandbox container as reported by
// the runtime, used to drive idle/age pruning decisions.
type SandboxState string

const (
	SandboxRunning SandboxState = "running"
	SandboxExited  SandboxState = "exited"
	SandboxError   SandboxState = "error"
	SandboxPending SandboxState = "pending"
)

// SandboxStatus is a point-in-time snapshot of one sandbox-labeled
// container, as much as the pruning sweep needs to decide idle/age.
type SandboxStatus struct {
	Slug        string
	State       SandboxState
	CreatedAt   time.Time
	StartedAt   time.Time
	ExitedAt    time.Time
	HasStarted  bool
	HasExited   bool
}

// TenantContainerName derives the runtime-visible container name for a
// tenant slug, matching the original's "zc-tenant-<slug>" convention.
func TenantContainerName(slug string) string {
	return "zc-tenant-" + slug
}
