//go:build !unix

package runner

import (
	"log/slog"
	"os"
	"os/exec"
)

func setProcGroup(_ *exec.Cmd) {}

// KillGroup on non-POSIX platforms kills only the immediate process;
// descendants it spawned are not reaped.
func KillGroup(pid int) bool {
	if pid <= 1 {
		slog.Warn("refusing to kill process: unsafe target", slog.Int("pid", pid))
		return false
	}
	proc, err := os.FindProcess(pid)
	if err != nil {
		return false
	}
	if err := proc.Kill(); err != nil {
		slog.Warn("kill process failed", slog.Int("pid", pid), slog.Any("error", err))
		return false
	}
	return true
}
