//go:build unix

package runner

import (
	"errors"
	"log/slog"
	"os/exec"
	"syscall"
)

func setProcGroup(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
}

// KillGroup sends SIGKILL to the whole process group of pid. It
// refuses pid <= 1 as unsafe. A group that already exited is not an
// error. Returns true if the signal was delivered.
func KillGroup(pid int) bool {
	if pid <= 1 {
		slog.Warn("refusing to kill process group: unsafe target", slog.Int("pid", pid))
		return false
	}
	err := syscall.Kill(-pid, syscall.SIGKILL)
	if err == nil {
		return true
	}
	if errors.Is(err, syscall.ESRCH) {
		slog.Debug("process group already exited", slog.Int("pid", pid))
	} else {
		slog.Warn("kill process group failed", slog.Int("pid", pid), slog.Any("error", err))
	}
	return false
}
