package usecase

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/fairyhunter13/oj-problem-hub/internal/domain"
)

// EmbeddingBuildRequest describes one embedding build run.
type EmbeddingBuildRequest struct {
	Source    string `json:"source"`
	Rebuild   bool   `json:"rebuild"`
	DryRun    bool   `json:"dry_run"`
	BatchSize int    `json:"batch_size"`
	Filter    string `json:"filter"`
}

// EmbeddingStatus is the embedding slot document plus the progress the
// helper reports for the current or most recent job.
type EmbeddingStatus struct {
	SlotStatus
	Progress json.RawMessage `json:"progress,omitempty"`
}

const (
	embedBatchMax  = 256
	embedFilterMax = 200
)

// unknownProgress is served whenever the helper's progress file is
// missing or unreadable.
var unknownProgress = json.RawMessage(`{"phase":"unknown"}`)

// EmbeddingService owns the embedding job slot. Builds run the
// embedding helper over the whole catalog and report progress through
// a per-job file the helper rewrites as it goes.
type EmbeddingService struct {
	slot    *slot
	timeout time.Duration
}

func NewEmbeddingService(launcher domain.HelperLauncher, logsDir string, timeout time.Duration) *EmbeddingService {
	e := &EmbeddingService{
		slot:    newSlot(domain.KindEmbedding, launcher, logsDir, "an embedding job is already running"),
		timeout: timeout,
	}
	e.slot.onFinish = e.finalizeProgress
	return e
}

// Trigger starts an embedding build. The job id is minted first so the
// helper can write its progress file under it.
func (e *EmbeddingService) Trigger(ctx context.Context, req EmbeddingBuildRequest) (string, error) {
	args, source, err := buildEmbedArgs(req)
	if err != nil {
		return "", err
	}
	jobID := uuid.NewString()
	args = append(args, "--job-id", jobID)

	job := domain.Job{
		ID:      jobID,
		Source:  domain.Source(source),
		Args:    args,
		Trigger: domain.TriggerAdmin,
	}
	return e.slot.trigger(ctx, job, domain.EmbeddingScript, e.timeout)
}

// Cancel kills the running build, if any.
func (e *EmbeddingService) Cancel() (string, error) { return e.slot.cancel() }

// Status reports the slot document with the latest progress attached.
func (e *EmbeddingService) Status() EmbeddingStatus {
	doc := EmbeddingStatus{SlotStatus: e.slot.status()}
	var jobID string
	switch {
	case doc.CurrentJob != nil:
		jobID = doc.CurrentJob.ID
	case doc.LastJob != nil:
		jobID = doc.LastJob.ID
	}
	if jobID != "" {
		doc.Progress = e.readProgress(jobID)
	}
	return doc
}

// Output returns the captured streams of a finished build.
func (e *EmbeddingService) Output(ctx context.Context, jobID string) (JobOutput, error) {
	return e.slot.output(ctx, jobID)
}

// Progress returns the raw progress document for jobID. A missing or
// corrupt file reads as phase "unknown".
func (e *EmbeddingService) Progress(jobID string) (json.RawMessage, error) {
	if _, err := uuid.Parse(jobID); err != nil {
		return nil, fmt.Errorf("%w: malformed job id", domain.ErrInvalidArgument)
	}
	return e.readProgress(jobID), nil
}

func (e *EmbeddingService) progressPath(jobID string) string {
	// jobID is uuid-validated by every caller
	return filepath.Join(e.slot.logsDir, jobID+".progress.json")
}

func (e *EmbeddingService) readProgress(jobID string) json.RawMessage {
	raw, err := os.ReadFile(e.progressPath(jobID))
	if err != nil || !json.Valid(raw) {
		return unknownProgress
	}
	return json.RawMessage(raw)
}

// finalizeProgress folds the job's terminal status into the progress
// file so pollers that only watch the file see the run end.
func (e *EmbeddingService) finalizeProgress(j domain.Job) {
	doc := map[string]any{}
	if raw, err := os.ReadFile(e.progressPath(j.ID)); err == nil {
		// a corrupt file starts the document over
		_ = json.Unmarshal(raw, &doc)
	}
	doc["phase"] = string(j.Status)

	buf, err := json.Marshal(doc)
	if err != nil {
		return
	}
	if err := os.WriteFile(e.progressPath(j.ID), buf, 0o600); err != nil {
		slog.Warn("finalize progress failed",
			slog.String("job_id", j.ID), slog.Any("error", err))
	}
}

// buildEmbedArgs maps a build request onto the embedding helper's
// flags and reports the effective source label.
func buildEmbedArgs(req EmbeddingBuildRequest) ([]string, string, error) {
	args := []string{"--build"}
	if req.Rebuild {
		args = append(args, "--rebuild")
	}
	if req.DryRun {
		args = append(args, "--dry-run")
	}

	source := req.Source
	switch source {
	case "", "all":
		source = "all"
	default:
		if _, err := domain.ParseSource(source); err != nil {
			return nil, "", err
		}
		args = append(args, "--source", source)
	}

	if req.BatchSize != 0 {
		if req.BatchSize < 1 || req.BatchSize > embedBatchMax {
			return nil, "", fmt.Errorf("%w: batch_size must be between 1 and %d", domain.ErrInvalidArgument, embedBatchMax)
		}
		args = append(args, "--batch-size", strconv.Itoa(req.BatchSize))
	}
	if req.Filter != "" {
		if len(req.Filter) > embedFilterMax {
			return nil, "", fmt.Errorf("%w: filter must be at most %d bytes", domain.ErrInvalidArgument, embedFilterMax)
		}
		args = append(args, "--filter", req.Filter)
	}
	return args, source, nil
}
