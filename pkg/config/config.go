package config

import (
	"fmt"
	"os"

	"github.com/pelletier/go-toml/v2"
)

// ControlPlane is the control plane process's own configuration, distinct
// from any one instance's config.toml.
type ControlPlane struct {
	ListenAddr    string `toml:"listen_addr"`
	InstancesDir  string `toml:"instances_dir"`
	RegistryPath  string `toml:"registry_path"`
	DaemonBinary  string `toml:"daemon_binary"` // ZEROCLAW_BIN default
	RuntimeBinary string `toml:"runtime_binary"`
	RuntimeNetwork  string `toml:"runtime_network"`
	RuntimeImage    string `toml:"runtime_image"`
	PruneIdleHours  int    `toml:"prune_idle_hours"`
	PruneMaxAgeDays int    `toml:"prune_max_age_days"`
}

// DefaultControlPlane returns the zero-config baseline, overridden by
// whatever a control-plane config file on disk supplies.
func DefaultControlPlane() ControlPlane {
	return ControlPlane{
		ListenAddr:      ":7700",
		InstancesDir:    "/var/lib/aria/instances",
		RegistryPath:    "/var/lib/aria/registry.db",
		DaemonBinary:    "zeroclawd",
		RuntimeBinary:   "docker",
		RuntimeNetwork:  "aria",
		RuntimeImage:    "aria/agent:latest",
		PruneIdleHours:  24,
		PruneMaxAgeDays: 30,
	}
}

// LoadControlPlane decodes a control-plane config file at path over the
// defaults. A missing file is not an error — the defaults stand.
func LoadControlPlane(path string) (ControlPlane, error) {
	cfg := DefaultControlPlane()
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return cfg, fmt.Errorf("read control plane config: %w", err)
	}
	if err := toml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parse control plane config: %w", err)
	}
	return cfg, nil
}

// Instance is the declarative per-instance config.toml: the tenant daemon's
// own view of itself, separate from the registry row the control plane
// keeps. It is written with mode 0600 per the lifecycle manager's
// invariant.
type Instance struct {
	Name         string            `toml:"name"`
	Port         int               `toml:"port"`
	TenantID     string            `toml:"tenant_id"`
	WorkspaceDir string            `toml:"workspace_dir"`
	MemoryDir    string            `toml:"memory_dir"`
	HomeDir      string            `toml:"home_dir"`
	Env          map[string]string `toml:"env"`
}

// WriteInstanceConfig marshals cfg to TOML and writes it to path with mode
// 0600, per the on-disk layout contract.
func WriteInstanceConfig(path string, cfg Instance) error {
	data, err := toml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshal instance config: %w", err)
	}
	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("write instance config: %w", err)
	}
	return nil
}

// ReadInstanceConfig decodes the config.toml at path.
func ReadInstanceConfig(path string) (Instance, error) {
	var cfg Instance
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("read instance config: %w", err)
	}
	if err := toml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parse instance config: %w", err)
	}
	return cfg, nil
}
