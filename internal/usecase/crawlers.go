package usecase

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/fairyhunter13/oj-problem-hub/internal/domain"
)

// CrawlerService owns the crawler job slot. One crawl runs at a time
// across all sources.
type CrawlerService struct {
	slot       *slot
	timeoutFor func(domain.Source) time.Duration
}

// NewCrawlerService wires the crawler slot. timeoutFor resolves the
// per-source run timeout.
func NewCrawlerService(launcher domain.HelperLauncher, logsDir string, timeoutFor func(domain.Source) time.Duration) *CrawlerService {
	return &CrawlerService{
		slot:       newSlot(domain.KindCrawler, launcher, logsDir, "a crawler is already running"),
		timeoutFor: timeoutFor,
	}
}

// Trigger validates args against the source's declared flag set and
// starts the crawler helper. Returns ErrConflict while a crawl is
// already running.
func (c *CrawlerService) Trigger(ctx context.Context, source string, args []string) (string, error) {
	src, err := domain.ParseSource(source)
	if err != nil {
		return "", err
	}
	validated, err := domain.ValidateArgs(src, args)
	if err != nil {
		return "", err
	}
	job := domain.Job{
		ID:      uuid.NewString(),
		Source:  src,
		Args:    validated,
		Trigger: domain.TriggerAdmin,
	}
	return c.slot.trigger(ctx, job, src.ScriptName(), c.timeoutFor(src))
}

// Cancel kills the running crawl, if any.
func (c *CrawlerService) Cancel() (string, error) { return c.slot.cancel() }

// Status reports the slot document.
func (c *CrawlerService) Status() SlotStatus { return c.slot.status() }

// Output returns the captured streams of a finished crawl.
func (c *CrawlerService) Output(ctx context.Context, jobID string) (JobOutput, error) {
	return c.slot.output(ctx, jobID)
}
