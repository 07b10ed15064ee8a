package process

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"github.com/shirou/gopsutil/v3/process"
	log "github.com/sirupsen/logrus"
)

// samePath compares executable paths, ignoring case on Windows
func samePath(a, b string) bool {
	a, b = filepath.Clean(a), filepath.Clean(b)
	if runtime.GOOS == "windows" {
		return strings.EqualFold(a, b)
	}
	return a == b
}

// IsRunning checks if any process was started from the executable at exePath
func IsRunning(ctx context.Context, exePath string) bool {
	abs, err := filepath.Abs(exePath)
	if err != nil {
		return false
	}

	procs, err := process.ProcessesWithContext(ctx)
	if err != nil {
		log.Debugf("failed to list processes: %v", err)
		return false
	}

	for _, p := range procs {
		exe, err := p.ExeWithContext(ctx)
		if err != nil || exe == "" {
			continue
		}
		if samePath(exe, abs) {
			return true
		}
	}
	return false
}

// WaitForExit polls until no process runs exePath.
// Returns true if it exited, false if timeout occurred.
func WaitForExit(ctx context.Context, exePath string, timeout time.Duration) bool {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if !IsRunning(ctx, exePath) {
			return true
		}
		select {
		case <-ctx.Done():
			return false
		case <-time.After(250 * time.Millisecond):
		}
	}
	return false
}

// IsPermissionError reports whether a spawn failed with EACCES or EPERM
func IsPermissionError(err error) bool {
	return errors.Is(err, fs.ErrPermission)
}

// EnsureExecutable sets the owner execute bit when it is missing. It is a
// no-op on Windows.
func EnsureExecutable(path string) error {
	if runtime.GOOS == "windows" {
		return nil
	}
	info, err := os.Stat(path)
	if err != nil {
		return err
	}
	if info.Mode().Perm()&0100 != 0 {
		return nil
	}
	if err := os.Chmod(path, 0755); err != nil {
		return fmt.Errorf("failed to make %s executable: %w", path, err)
	}
	return nil
}

// StartDetached starts path with args in its own session or process group,
// so the child outlives the launcher. The returned command can be waited on
// to observe the child's exit.
func StartDetached(path string, args []string, dir string) (*exec.Cmd, error) {
	cmd := exec.Command(path, args...)
	cmd.Dir = dir
	cmd.Stdin = nil
	cmd.Stdout = nil
	cmd.Stderr = nil
	setDetachedProcAttr(cmd)

	if err := cmd.Start(); err != nil {
		return nil, err
	}
	return cmd, nil
}
