package runtime

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
	"time"

	"github.com/cuemby/aria/pkg/log"
	"github.com/cuemby/aria/pkg/types"
)

// DefaultBinary is the runtime CLI shelled out to when NewCLIDriver is given
// no binary (cmd/ariad passes the control-plane config's runtime_binary).
// Override to point at a drop-in compatible CLI (e.g. a quilt-style
// tool) that understands the same verb surface.
const DefaultBinary = "docker"

// SandboxLabel marks a container as managed by this control plane and
// eligible for the supervisor's idle/age pruning sweep.
const SandboxLabel = "aria.sandbox"

// CreatedAtLabel records a sandbox container's creation time, read back by
// the pruning sweep when the runtime doesn't otherwise expose it cheaply.
const CreatedAtLabel = "aria.created_at_ms"

// CLIDriver implements Driver by shelling out to a runtime CLI binary,
// grounded on the original docker/mod.rs DockerManager: same verb set,
// same container-name convention, same stats JSON parsing, same
// absent-target error tolerance on stop/remove.
type CLIDriver struct {
	Binary       string
	DataDir      string
	Network      string
	Image        string
	GatewayFlag  string // e.g. "--port"; appended with the gateway port on create
}

// NewCLIDriver constructs a CLIDriver. binary defaults to DefaultBinary if
// empty.
func NewCLIDriver(binary, dataDir, network, image string) *CLIDriver {
	if binary == "" {
		binary = DefaultBinary
	}
	return &CLIDriver{Binary: binary, DataDir: dataDir, Network: network, Image: image, GatewayFlag: "--port"}
}

type cliOutput struct {
	stdout  string
	stderr  string
	success bool
}

func (d *CLIDriver) exec(ctx context.Context, args ...string) (cliOutput, error) {
	cmd := exec.CommandContext(ctx, d.Binary, args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	out := cliOutput{
		stdout:  stdout.String(),
		stderr:  stderr.String(),
		success: err == nil,
	}
	if err != nil {
		if _, ok := err.(*exec.ExitError); !ok {
			return out, fmt.Errorf("exec %s: %w", d.Binary, err)
		}
	}
	return out, nil
}

func (d *CLIDriver) HealthCheck(ctx context.Context) error {
	out, err := d.exec(ctx, "info", "--format", "{{.ServerVersion}}")
	if err != nil {
		return err
	}
	if !out.success {
		return fmt.Errorf("runtime health check failed: %s", strings.TrimSpace(out.stderr))
	}
	return nil
}

func (d *CLIDriver) CreateContainer(ctx context.Context, spec CreateSpec) (string, error) {
	name := TenantContainerName(spec.Slug)

	workspaceVol := fmt.Sprintf("%s:/zeroclaw-data/workspace", spec.WorkspaceDir)
	memoryVol := fmt.Sprintf("%s:/zeroclaw-data/.zeroclaw/memory:rw", spec.MemoryDir)
	homeVol := fmt.Sprintf("%s:/zeroclaw-data/.zeroclaw:rw", spec.HomeDir)
	userFlag := fmt.Sprintf("%d:%d", spec.UID, spec.UID)
	memoryFlag := fmt.Sprintf("%dm", spec.MemoryMB)
	cpuFlag := fmt.Sprintf("%.1f", spec.CPULimit)
	portFlag := fmt.Sprintf("127.0.0.1:%d:%d", spec.Port, spec.Port)
	createdAtMS := strconv.FormatInt(time.Now().UnixMilli(), 10)

	args := []string{
		"run", "-d",
		"--name", name,
		"--network", "bridge",
		"--cap-drop=ALL",
		"--security-opt=no-new-privileges",
		"--read-only",
		"--pids-limit=50",
		"--memory", memoryFlag,
		"--memory-swap", memoryFlag,
		"--cpus", cpuFlag,
		"--ulimit", "nofile=256:256",
		"--ulimit", "nproc=50:50",
		"--tmpfs", "/tmp:size=50m,noexec,nosuid",
		"--user", userFlag,
		"--restart=unless-stopped",
		"--log-opt", "max-size=10m",
		"--log-opt", "max-file=3",
		"--label", SandboxLabel + "=true",
		"--label", CreatedAtLabel + "=" + createdAtMS,
		"-v", workspaceVol,
		"-v", homeVol,
		"-v", memoryVol,
		"-p", portFlag,
	}

	for k, v := range spec.Env {
		args = append(args, "-e", k+"="+v)
	}

	args = append(args, d.Image, "daemon", d.GatewayFlag, strconv.Itoa(spec.Port))

	out, err := d.exec(ctx, args...)
	if err != nil {
		return "", err
	}
	if !out.success {
		return "", fmt.Errorf("runtime create failed: %s", strings.TrimSpace(out.stderr))
	}
	containerID := strings.TrimSpace(out.stdout)

	if err := d.JoinNetwork(ctx, spec.Slug, d.Network); err != nil {
		// warn-only: the primary bridge network already publishes the
		// port; internal-network join is for inter-tenant routing.
		log.Logger.Warn().
			Err(err).
			Str("container", name).
			Str("network", d.Network).
			Msg("failed to join container to internal network")
		return containerID, nil
	}

	return containerID, nil
}

func (d *CLIDriver) JoinNetwork(ctx context.Context, slug, network string) error {
	if network == "" {
		return nil
	}
	name := TenantContainerName(slug)
	out, err := d.exec(ctx, "network", "connect", network, name)
	if err != nil {
		return err
	}
	if !out.success {
		return fmt.Errorf("network connect failed: %s", strings.TrimSpace(out.stderr))
	}
	return nil
}

func (d *CLIDriver) StopContainer(ctx context.Context, slug string) error {
	name := TenantContainerName(slug)
	out, err := d.exec(ctx, "stop", "-t", "10", name)
	if err != nil {
		return err
	}
	if !out.success && !strings.Contains(out.stderr, "No such container") {
		return fmt.Errorf("runtime stop failed: %s", strings.TrimSpace(out.stderr))
	}
	return nil
}

func (d *CLIDriver) StartContainer(ctx context.Context, slug string) error {
	name := TenantContainerName(slug)
	out, err := d.exec(ctx, "start", name)
	if err != nil {
		return err
	}
	if !out.success {
		return fmt.Errorf("runtime start failed: %s", strings.TrimSpace(out.stderr))
	}
	return nil
}

func (d *CLIDriver) RestartContainer(ctx context.Context, slug string) error {
	name := TenantContainerName(slug)
	out, err := d.exec(ctx, "restart", "-t", "10", name)
	if err != nil {
		return err
	}
	if !out.success {
		return fmt.Errorf("runtime restart failed: %s", strings.TrimSpace(out.stderr))
	}
	return nil
}

func (d *CLIDriver) RemoveContainer(ctx context.Context, slug string) error {
	name := TenantContainerName(slug)
	out, err := d.exec(ctx, "rm", "-f", name)
	if err != nil {
		return err
	}
	if !out.success && !strings.Contains(out.stderr, "No such container") {
		return fmt.Errorf("runtime rm failed: %s", strings.TrimSpace(out.stderr))
	}
	return nil
}

func (d *CLIDriver) Logs(ctx context.Context, slug string, tail int) (string, error) {
	name := TenantContainerName(slug)
	out, err := d.exec(ctx, "logs", "--tail", strconv.Itoa(tail), name)
	if err != nil {
		return "", err
	}
	return out.stdout + out.stderr, nil
}

func (d *CLIDriver) Inspect(ctx context.Context, slug string) (string, error) {
	name := TenantContainerName(slug)
	out, err := d.exec(ctx, "inspect", name)
	if err != nil {
		return "", err
	}
	if !out.success {
		return "", fmt.Errorf("runtime inspect failed: %s", strings.TrimSpace(out.stderr))
	}
	return out.stdout, nil
}

func (d *CLIDriver) IsRunning(ctx context.Context, slug string) (bool, error) {
	name := TenantContainerName(slug)
	out, err := d.exec(ctx, "inspect", "-f", "{{.State.Running}}", name)
	if err != nil {
		return false, err
	}
	return out.success && strings.TrimSpace(out.stdout) == "true", nil
}

func (d *CLIDriver) ExecInContainer(ctx context.Context, slug string, cmd []string, timeout time.Duration) (string, error) {
	name := TenantContainerName(slug)

	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	args := append([]string{"exec", name}, cmd...)
	out, err := d.exec(ctx, args...)
	if err != nil {
		return "", err
	}
	if !out.success {
		return "", fmt.Errorf("exec failed: %s", strings.TrimSpace(out.stderr))
	}
	return strings.TrimSpace(out.stdout), nil
}

// dockerStatsJSON mirrors the subset of `docker stats --format '{{json .}}'`
// required fields parsed.
type dockerStatsJSON struct {
	CPUPerc  string `json:"CPUPerc"`
	MemUsage string `json:"MemUsage"`
	NetIO    string `json:"NetIO"`
	PIDs     string `json:"PIDs"`
}

func (d *CLIDriver) ContainerStats(ctx context.Context, slug string) (types.ContainerStats, error) {
	name := TenantContainerName(slug)
	out, err := d.exec(ctx, "stats", "--no-stream", "--format", "{{json .}}", name)
	if err != nil {
		return types.ContainerStats{}, err
	}
	if !out.success {
		return types.ContainerStats{}, fmt.Errorf("runtime stats failed for %s: %s", slug, strings.TrimSpace(out.stderr))
	}
	return parseDockerStatsJSON(strings.TrimSpace(out.stdout))
}

func parseDockerStatsJSON(raw string) (types.ContainerStats, error) {
	var v dockerStatsJSON
	if err := json.Unmarshal([]byte(raw), &v); err != nil {
		return types.ContainerStats{}, fmt.Errorf("parse runtime stats JSON: %w", err)
	}

	memUsed, memLimit := parseUsageLimit(v.MemUsage)
	netIn, netOut := parseUsageLimit(v.NetIO)

	return types.ContainerStats{
		CPUPercent:  parsePercent(v.CPUPerc),
		MemBytes:    memUsed,
		MemLimit:    memLimit,
		NetInBytes:  netIn,
		NetOutBytes: netOut,
		PIDs:        parsePIDs(v.PIDs),
	}, nil
}

// dockerPSEntry mirrors `docker ps -a --filter label=... --format '{{json .}}'`.
type dockerPSEntry struct {
	Names        string `json:"Names"`
	State        string `json:"State"`
	CreatedAt    string `json:"CreatedAt"`
	Labels       string `json:"Labels"`
	RunningFor   string `json:"RunningFor"`
}

func (d *CLIDriver) ListSandboxes(ctx context.Context) ([]SandboxStatus, error) {
	out, err := d.exec(ctx, "ps", "-a",
		"--filter", "label="+SandboxLabel+"=true",
		"--format", "{{json .}}")
	if err != nil {
		return nil, err
	}
	if !out.success {
		return nil, fmt.Errorf("runtime ps failed: %s", strings.TrimSpace(out.stderr))
	}

	var statuses []SandboxStatus
	for _, line := range strings.Split(out.stdout, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		var entry dockerPSEntry
		if err := json.Unmarshal([]byte(line), &entry); err != nil {
			continue
		}

		statuses = append(statuses, SandboxStatus{
			Slug:       strings.TrimPrefix(entry.Names, "zc-tenant-"),
			State:      mapDockerState(entry.State),
			CreatedAt:  createdAtFromLabels(entry.Labels),
			HasExited:  strings.EqualFold(entry.State, "exited"),
			HasStarted: !strings.EqualFold(entry.State, "created"),
		})
	}
	return statuses, nil
}

func mapDockerState(state string) SandboxState {
	switch strings.ToLower(state) {
	case "running":
		return SandboxRunning
	case "exited":
		return SandboxExited
	case "dead":
		return SandboxError
	default:
		return SandboxPending
	}
}

func createdAtFromLabels(labels string) time.Time {
	for _, kv := range strings.Split(labels, ",") {
		parts := strings.SplitN(kv, "=", 2)
		if len(parts) != 2 || parts[0] != CreatedAtLabel {
			continue
		}
		ms, err := strconv.ParseInt(parts[1], 10, 64)
		if err != nil {
			continue
		}
		return time.UnixMilli(ms)
	}
	return time.Time{}
}
