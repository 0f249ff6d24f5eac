package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestWriteInstanceConfig_Mode0600(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")

	cfg := Instance{
		Name:         "tenant-a",
		Port:         8801,
		TenantID:     "t-1",
		WorkspaceDir: "/var/lib/aria/instances/t-1/workspace",
		Env:          map[string]string{"FOO": "bar"},
	}
	require.NoError(t, WriteInstanceConfig(path, cfg))

	info, err := os.Stat(path)
	require.NoError(t, err)
	require.Equal(t, os.FileMode(0600), info.Mode().Perm())

	got, err := ReadInstanceConfig(path)
	require.NoError(t, err)
	require.Equal(t, cfg.Name, got.Name)
	require.Equal(t, cfg.Port, got.Port)
	require.Equal(t, cfg.Env["FOO"], got.Env["FOO"])
}

func TestLoadControlPlane_MissingFileUsesDefaults(t *testing.T) {
	cfg, err := LoadControlPlane(filepath.Join(t.TempDir(), "missing.toml"))
	require.NoError(t, err)
	require.Equal(t, DefaultControlPlane(), cfg)
}
