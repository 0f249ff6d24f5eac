package lifecycle

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
)

// Layout is the set of on-disk paths rooted at one instance's instance_dir.
type Layout struct {
	Dir string
}

func NewLayout(instanceDir string) Layout { return Layout{Dir: instanceDir} }

func (l Layout) ConfigPath() string   { return filepath.Join(l.Dir, "config.toml") }
func (l Layout) PIDPath() string      { return filepath.Join(l.Dir, "daemon.pid") }
func (l Layout) LockPath() string     { return filepath.Join(l.Dir, "lifecycle.lock") }
func (l Layout) LogDir() string       { return filepath.Join(l.Dir, "logs") }
func (l Layout) LogPath() string      { return filepath.Join(l.LogDir(), "daemon.log") }
func (l Layout) RotatedLogPath() string { return filepath.Join(l.LogDir(), "daemon.log.1") }
func (l Layout) WorkspaceDir() string { return filepath.Join(l.Dir, "workspace") }

// ReadPID reads the ASCII PID recorded in a pidfile. Returns an error
// (including os.ErrNotExist) if the file is absent or unparseable.
func ReadPID(pidPath string) (int, error) {
	data, err := os.ReadFile(pidPath)
	if err != nil {
		return 0, err
	}
	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil {
		return 0, fmt.Errorf("parse pidfile %s: %w", pidPath, err)
	}
	return pid, nil
}

// WritePID writes pid to pidPath with mode 0600. It truncates and rewrites
// the file in place; it is not an atomic replace.
func WritePID(pidPath string, pid int) error {
	return os.WriteFile(pidPath, []byte(strconv.Itoa(pid)), 0600)
}

// RemovePIDFile removes pidPath, tolerating its absence.
func RemovePIDFile(pidPath string) error {
	err := os.Remove(pidPath)
	if err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

// IsPIDAlive probes process liveness via kill(pid, 0): ESRCH means the
// process does not exist (false); a nil error or EPERM (it exists but this
// process may not signal it) both mean the process is alive (true).
func IsPIDAlive(pid int) bool {
	if pid <= 0 {
		return false
	}
	err := syscall.Kill(pid, 0)
	if err == nil {
		return true
	}
	if err == syscall.EPERM {
		return true
	}
	return false
}

// environPrefix is the environment-variable assignment that proves a
// process was spawned by this control plane for the given instance dir.
func environPrefix(instanceDir string) string {
	return "ZEROCLAW_HOME=" + instanceDir
}

// VerifyOwnership reads /proc/<pid>/environ and reports whether it contains
// ZEROCLAW_HOME=<instanceDir>, the ownership proof required before this
// control plane will act on a process it did not observe spawning. On
// platforms without /proc, or if the process has already exited, this
// conservatively returns (false, err) rather than guessing: behavior
// without an ownership proof is to refuse to correct drift, not assume
// ownership.
func VerifyOwnership(pid int, instanceDir string) (bool, error) {
	data, err := os.ReadFile(fmt.Sprintf("/proc/%d/environ", pid))
	if err != nil {
		return false, err
	}
	want := []byte(environPrefix(instanceDir))
	for _, entry := range bytes.Split(data, []byte{0}) {
		if bytes.Equal(entry, want) {
			return true, nil
		}
	}
	return false, nil
}

// RotateLog renames the current daemon.log to daemon.log.1, overwriting any
// prior generation. Best-effort: a missing current log is not an error.
func RotateLog(l Layout) error {
	if err := os.MkdirAll(l.LogDir(), 0755); err != nil {
		return fmt.Errorf("create log dir: %w", err)
	}
	if _, err := os.Stat(l.LogPath()); err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	return os.Rename(l.LogPath(), l.RotatedLogPath())
}
