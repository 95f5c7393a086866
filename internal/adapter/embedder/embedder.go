// Package embedder adapts the one-shot embedding helper to the
// TextEmbedder port. Each call spawns the helper once; concurrency is
// bounded by a weighted semaphore and each run by a timeout that kills
// the helper's whole process group.
package embedder

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/fairyhunter13/oj-problem-hub/internal/adapter/observability"
	"github.com/fairyhunter13/oj-problem-hub/internal/domain"
	"github.com/fairyhunter13/oj-problem-hub/pkg/textx"
)

// Client invokes the embedding helper for ad-hoc texts.
type Client struct {
	launcher domain.HelperLauncher
	script   string
	timeout  time.Duration
	sem      *semaphore.Weighted
}

var _ domain.TextEmbedder = (*Client)(nil)

// New returns a Client running at most maxConcurrent helpers at once.
func New(launcher domain.HelperLauncher, timeout time.Duration, maxConcurrent int64) *Client {
	if maxConcurrent < 1 {
		maxConcurrent = 1
	}
	return &Client{
		launcher: launcher,
		script:   domain.EmbeddingScript,
		timeout:  timeout,
		sem:      semaphore.NewWeighted(maxConcurrent),
	}
}

// EmbedText runs the helper with --embed-text and returns the decoded
// vector. Callers queue on the semaphore until a slot frees up or ctx
// is done.
func (c *Client) EmbedText(ctx context.Context, text string) ([]float32, error) {
	if err := c.sem.Acquire(ctx, 1); err != nil {
		return nil, fmt.Errorf("%w: embedder queue: %v", domain.ErrInternal, err)
	}
	defer c.sem.Release(1)

	start := time.Now()
	vec, outcome, err := c.run(text)
	observability.ObserveEmbedText(outcome, time.Since(start))
	return vec, err
}

func (c *Client) run(text string) ([]float32, string, error) {
	proc, err := c.launcher.Start(c.script, "--embed-text", text)
	if err != nil {
		return nil, "spawn_error", fmt.Errorf("%w: embedder spawn: %v", domain.ErrUpstreamFailure, err)
	}

	type waitDone struct {
		stdout, stderr []byte
		err            error
	}
	done := make(chan waitDone, 1)
	go func() {
		so, se, err := proc.Wait()
		done <- waitDone{so, se, err}
	}()

	timer := time.NewTimer(c.timeout)
	defer timer.Stop()

	select {
	case d := <-done:
		if d.err != nil {
			slog.Warn("embedder helper failed",
				slog.Any("error", d.err),
				slog.String("stderr", textx.TailString(d.stderr, 2048)))
			return nil, "exit_error", fmt.Errorf("%w: embedder exited: %v", domain.ErrUpstreamFailure, d.err)
		}
		var out struct {
			Embedding []float32 `json:"embedding"`
		}
		if err := json.Unmarshal(d.stdout, &out); err != nil {
			return nil, "parse_error", fmt.Errorf("%w: embedder output: %v", domain.ErrUpstreamFailure, err)
		}
		if len(out.Embedding) != domain.EmbeddingDim {
			return nil, "bad_dimensions", fmt.Errorf("%w: embedder returned %d dimensions, want %d",
				domain.ErrUpstreamFailure, len(out.Embedding), domain.EmbeddingDim)
		}
		return out.Embedding, "ok", nil
	case <-timer.C:
		// kill the whole group so a wedged helper cannot linger
		c.launcher.KillGroup(proc.PID())
		<-done
		return nil, "timeout", fmt.Errorf("%w: embedder timed out after %s", domain.ErrUpstreamTimeout, c.timeout)
	}
}
