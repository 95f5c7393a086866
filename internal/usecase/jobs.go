// Package usecase contains the application services behind the HTTP
// layer: supervised crawler and embedding jobs, the daily-challenge
// fallback, and similarity search.
package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/fairyhunter13/oj-problem-hub/internal/adapter/observability"
	"github.com/fairyhunter13/oj-problem-hub/internal/domain"
	"github.com/fairyhunter13/oj-problem-hub/pkg/textx"
	"github.com/google/uuid"
)

// SlotStatus is the status document of a job slot. CurrentJob is set
// while a job runs; LastJob is the most recent finished job otherwise.
// History is newest-first and capped; output buffers are elided from
// every job it contains.
type SlotStatus struct {
	Running    bool         `json:"running"`
	CurrentJob *domain.Job  `json:"current_job,omitempty"`
	LastJob    *domain.Job  `json:"last_job,omitempty"`
	History    []domain.Job `json:"history"`
}

// JobOutput carries the captured streams of one finished job. A nil
// stream means no bytes were retained for it.
type JobOutput struct {
	JobID  string  `json:"job_id"`
	Stdout *string `json:"stdout"`
	Stderr *string `json:"stderr"`
}

// slot is a named singleton holding at most one running job plus a
// bounded FIFO of finished ones. The slot mutex guards current and
// history; the pid cell has its own lock so cancel can read it without
// waiting out a terminal transition.
type slot struct {
	kind       domain.JobKind
	launcher   domain.HelperLauncher
	logsDir    string
	busyDetail string

	// onFinish, when set, runs after each terminal transition with a
	// copy of the finished job.
	onFinish func(domain.Job)

	mu      sync.Mutex
	current *domain.Job
	history []domain.Job

	pidMu sync.Mutex
	pid   int
}

func newSlot(kind domain.JobKind, launcher domain.HelperLauncher, logsDir, busyDetail string) *slot {
	return &slot{kind: kind, launcher: launcher, logsDir: logsDir, busyDetail: busyDetail}
}

// trigger claims the slot for job, spawns script and hands the process
// to a supervising goroutine. It returns ErrConflict while a previous
// job is still running.
func (s *slot) trigger(ctx context.Context, job domain.Job, script string, timeout time.Duration) (string, error) {
	_, span := otel.Tracer("usecase.jobs").Start(ctx, "slot.trigger")
	defer span.End()
	span.SetAttributes(
		attribute.String("job.kind", string(s.kind)),
		attribute.String("job.source", string(job.Source)),
	)

	job.Status = domain.JobRunning
	job.StartedAt = time.Now().UTC()

	s.mu.Lock()
	if s.current != nil && !s.current.Status.Terminal() {
		s.mu.Unlock()
		return "", fmt.Errorf("%w: %s", domain.ErrConflict, s.busyDetail)
	}
	cur := job
	s.current = &cur
	s.mu.Unlock()

	observability.StartJob(string(s.kind), string(job.Source))
	slog.Info("job starting",
		slog.String("kind", string(s.kind)),
		slog.String("job_id", job.ID),
		slog.String("script", script),
		slog.Any("args", job.Args))

	proc, err := s.launcher.Start(script, job.Args...)
	if err != nil {
		span.RecordError(err)
		slog.Error("helper spawn failed",
			slog.String("kind", string(s.kind)),
			slog.String("script", script),
			slog.Any("error", err))
		now := time.Now().UTC()
		s.mu.Lock()
		if !cur.Status.Terminal() {
			cur.Status = domain.JobFailed
			cur.FinishedAt = &now
			cur.Stderr = "spawn: " + err.Error()
		}
		st := cur.Status
		s.archiveLocked(cur)
		s.mu.Unlock()
		observability.FinishJob(string(s.kind), string(st), 0)
		return "", fmt.Errorf("%w: start %s: %v", domain.ErrInternal, script, err)
	}

	s.pidMu.Lock()
	s.pid = proc.PID()
	s.pidMu.Unlock()

	// A cancel may have landed between the claim and the pid store; it
	// had no pid to signal, so reap the group here.
	s.mu.Lock()
	if cur.Status == domain.JobCancelled {
		s.pidMu.Lock()
		pid := s.pid
		s.pid = 0
		s.pidMu.Unlock()
		if pid > 1 {
			s.launcher.KillGroup(pid)
		}
	}
	s.mu.Unlock()

	go s.wait(&cur, proc, timeout)
	return cur.ID, nil
}

// wait supervises the process to its exit and applies the terminal
// transition. The pid cell is cleared before the status is inspected
// so a racing cancel cannot signal a pid this job no longer owns.
func (s *slot) wait(job *domain.Job, proc domain.HelperProcess, timeout time.Duration) {
	res := superviseExit(s.launcher, proc, timeout, s.kind, job.ID)

	stdout := textx.TailString(res.stdout, domain.OutputCap)
	stderr := textx.TailString(res.stderr, domain.OutputCap)

	s.mu.Lock()
	s.pidMu.Lock()
	s.pid = 0
	s.pidMu.Unlock()

	now := time.Now().UTC()
	if !job.Status.Terminal() {
		job.Status = res.status
		job.FinishedAt = &now
	}
	job.Stdout = stdout
	job.Stderr = stderr
	if res.exited {
		// writing the log files under the slot mutex keeps the
		// transition atomic against status and output reads
		writeJobLogs(s.logsDir, job.ID, res.stdout, res.stderr)
	}
	finished := *job
	s.archiveLocked(finished)
	s.mu.Unlock()

	dur := time.Duration(0)
	if finished.FinishedAt != nil {
		dur = finished.FinishedAt.Sub(finished.StartedAt)
	}
	observability.FinishJob(string(s.kind), string(finished.Status), dur)
	slog.Info("job finished",
		slog.String("kind", string(s.kind)),
		slog.String("job_id", finished.ID),
		slog.String("status", string(finished.Status)),
		slog.Duration("duration", dur))

	if s.onFinish != nil {
		s.onFinish(finished)
	}
}

// cancel kills the running job's process group and marks it cancelled.
// The supervisor still archives it once the group exits.
func (s *slot) cancel() (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.current == nil || s.current.Status.Terminal() {
		return "", fmt.Errorf("%w: no running %s job", domain.ErrConflict, s.kind)
	}

	s.pidMu.Lock()
	pid := s.pid
	s.pid = 0
	s.pidMu.Unlock()
	if pid > 1 {
		s.launcher.KillGroup(pid)
	}

	now := time.Now().UTC()
	s.current.Status = domain.JobCancelled
	s.current.FinishedAt = &now
	slog.Info("job cancelled",
		slog.String("kind", string(s.kind)),
		slog.String("job_id", s.current.ID),
		slog.Int("pid", pid))
	return s.current.ID, nil
}

func (s *slot) status() SlotStatus {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc := SlotStatus{History: make([]domain.Job, 0, len(s.history))}
	for i := len(s.history) - 1; i >= 0; i-- {
		doc.History = append(doc.History, s.history[i].WithoutOutput())
	}
	if s.current != nil {
		j := s.current.WithoutOutput()
		if j.Status == domain.JobRunning {
			doc.Running = true
			doc.CurrentJob = &j
		} else {
			doc.LastJob = &j
		}
	}
	return doc
}

// output returns the captured streams for jobID, from the in-memory
// history first and the on-disk log files after eviction.
func (s *slot) output(ctx context.Context, jobID string) (JobOutput, error) {
	_, span := otel.Tracer("usecase.jobs").Start(ctx, "slot.output")
	defer span.End()

	if _, err := uuid.Parse(jobID); err != nil {
		return JobOutput{}, fmt.Errorf("%w: malformed job id", domain.ErrInvalidArgument)
	}

	s.mu.Lock()
	for i := len(s.history) - 1; i >= 0; i-- {
		if s.history[i].ID == jobID {
			stdout, stderr := s.history[i].Stdout, s.history[i].Stderr
			s.mu.Unlock()
			return JobOutput{JobID: jobID, Stdout: &stdout, Stderr: &stderr}, nil
		}
	}
	s.mu.Unlock()

	out := JobOutput{JobID: jobID}
	if b, err := os.ReadFile(s.logPath(jobID, "stdout")); err == nil {
		v := textx.TailString(b, domain.OutputCap)
		out.Stdout = &v
	}
	if b, err := os.ReadFile(s.logPath(jobID, "stderr")); err == nil {
		v := textx.TailString(b, domain.OutputCap)
		out.Stderr = &v
	}
	if out.Stdout == nil && out.Stderr == nil {
		return JobOutput{}, fmt.Errorf("%w: no output for job %s", domain.ErrNotFound, jobID)
	}
	return out, nil
}

func (s *slot) logPath(jobID, stream string) string {
	// jobID is uuid-validated by every caller, so the join cannot
	// escape the logs directory
	return filepath.Join(s.logsDir, jobID+"."+stream+".log")
}

// archiveLocked appends a finished job to the FIFO, evicting the
// oldest entry at capacity. Caller holds s.mu.
func (s *slot) archiveLocked(j domain.Job) {
	if len(s.history) >= domain.HistoryCap {
		n := copy(s.history, s.history[1:])
		s.history = s.history[:n]
	}
	s.history = append(s.history, j)
}

// exitResult is the interpreted outcome of one supervised wait. exited
// is true for a natural or signalled exit, distinguishing it from a
// wait I/O failure and from the timeout path.
type exitResult struct {
	status domain.JobStatus
	stdout []byte
	stderr []byte
	exited bool
}

// superviseExit waits for proc, enforcing timeout by killing its whole
// process group and then reaping the final exit so no zombie remains.
func superviseExit(launcher domain.HelperLauncher, proc domain.HelperProcess, timeout time.Duration, kind domain.JobKind, jobID string) exitResult {
	type waitDone struct {
		stdout, stderr []byte
		err            error
	}
	done := make(chan waitDone, 1)
	go func() {
		so, se, err := proc.Wait()
		done <- waitDone{so, se, err}
	}()

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case d := <-done:
		res := exitResult{stdout: d.stdout, stderr: d.stderr}
		var exitErr *exec.ExitError
		switch {
		case d.err == nil:
			res.status = domain.JobCompleted
			res.exited = true
		case errors.As(d.err, &exitErr):
			res.status = domain.JobFailed
			res.exited = true
			slog.Info("helper exited nonzero",
				slog.String("kind", string(kind)),
				slog.String("job_id", jobID),
				slog.Int("exit_code", exitErr.ExitCode()))
		default:
			res.status = domain.JobFailed
			slog.Warn("helper wait failed",
				slog.String("kind", string(kind)),
				slog.String("job_id", jobID),
				slog.Any("error", d.err))
		}
		return res
	case <-timer.C:
		slog.Warn("helper timed out, killing process group",
			slog.String("kind", string(kind)),
			slog.String("job_id", jobID),
			slog.Duration("timeout", timeout))
		launcher.KillGroup(proc.PID())
		d := <-done
		return exitResult{status: domain.JobTimedOut, stdout: d.stdout, stderr: d.stderr}
	}
}

// writeJobLogs persists the full output streams under logsDir. Empty
// streams produce no file; write failures are logged and swallowed.
func writeJobLogs(logsDir, jobID string, stdout, stderr []byte) {
	write := func(stream string, data []byte) {
		if len(data) == 0 {
			return
		}
		path := filepath.Join(logsDir, jobID+"."+stream+".log")
		if err := os.WriteFile(path, data, 0o600); err != nil {
			slog.Warn("write job log failed",
				slog.String("path", path), slog.Any("error", err))
		}
	}
	write("stdout", stdout)
	write("stderr", stderr)
}
