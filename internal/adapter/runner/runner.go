// Package runner launches helper scripts in their own process group so
// that a timeout or cancel can terminate the whole process tree.
package runner

import (
	"bytes"
	"fmt"
	"os"
	"os/exec"
	"sync"

	"github.com/fairyhunter13/oj-problem-hub/internal/domain"
)

// Launcher starts helper scripts under a configured interpreter prefix
// with stdout and stderr captured.
type Launcher struct {
	// Command is the program invocation the script name and args are
	// appended to, e.g. ["uv", "run", "python3"].
	Command []string
	// Dir is the working directory helpers run in.
	Dir string
	// ExtraEnv holds KEY=VALUE pairs appended to the inherited env.
	ExtraEnv []string
}

// New returns a Launcher for the given interpreter prefix and workdir.
func New(command []string, dir string, extraEnv ...string) *Launcher {
	return &Launcher{Command: command, Dir: dir, ExtraEnv: extraEnv}
}

var _ domain.HelperLauncher = (*Launcher)(nil)

// Proc is a started helper process. Wait may be called once.
type Proc struct {
	pid    int
	cmd    *exec.Cmd
	stdout bytes.Buffer
	stderr bytes.Buffer

	waitOnce sync.Once
	waitErr  error
}

// Start launches script with the validated args appended. The child is
// made the leader of a new process group on POSIX platforms; elsewhere
// it is spawned normally and KillGroup degrades to killing only the
// immediate process.
func (l *Launcher) Start(script string, args ...string) (domain.HelperProcess, error) {
	if len(l.Command) == 0 {
		return nil, fmt.Errorf("op=runner.Start: empty helper command")
	}
	argv := make([]string, 0, len(l.Command)+1+len(args))
	argv = append(argv, l.Command...)
	argv = append(argv, script)
	argv = append(argv, args...)

	cmd := exec.Command(argv[0], argv[1:]...) // #nosec G204 -- args validated upstream
	cmd.Dir = l.Dir
	if len(l.ExtraEnv) > 0 {
		cmd.Env = append(os.Environ(), l.ExtraEnv...)
	}
	p := &Proc{cmd: cmd}
	cmd.Stdout = &p.stdout
	cmd.Stderr = &p.stderr
	setProcGroup(cmd)

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("op=runner.Start: %w", err)
	}
	p.pid = cmd.Process.Pid
	return p, nil
}

// KillGroup delivers SIGKILL to the process group led by pid. It
// satisfies the launcher port; the real work lives in the per-platform
// killGroup implementations.
func (l *Launcher) KillGroup(pid int) bool { return KillGroup(pid) }

// PID returns the process id, which equals the group id on POSIX.
func (p *Proc) PID() int { return p.pid }

// Wait blocks until the process exits and returns the captured output.
// err is nil on exit 0, an *exec.ExitError on a nonzero exit, and
// something else on an I/O failure. The buffers are valid only after
// Wait returns.
func (p *Proc) Wait() (stdout, stderr []byte, err error) {
	p.waitOnce.Do(func() {
		p.waitErr = p.cmd.Wait()
	})
	return p.stdout.Bytes(), p.stderr.Bytes(), p.waitErr
}
