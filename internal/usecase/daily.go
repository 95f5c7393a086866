package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/fairyhunter13/oj-problem-hub/internal/adapter/observability"
	"github.com/fairyhunter13/oj-problem-hub/internal/domain"
)

const (
	// earliest date LeetCode served a daily challenge
	minDailyDate = "2020-04-01"

	fallbackRetryAfter = 30
	fallbackCooldown   = 30 * time.Second
	fallbackLinger     = 60 * time.Second
)

// fallbackEntry tracks one in-flight or recently finished on-demand
// fetch for a (site, date) pair. Entries are compared by pointer so a
// stale cleanup can never remove a newer attempt for the same key.
type fallbackEntry struct {
	status        domain.JobStatus
	startedAt     time.Time
	cooldownUntil time.Time
}

// DailyService serves daily challenges and coordinates fallback
// fetches when today's entry has not been crawled yet.
type DailyService struct {
	repo     domain.DailyRepository
	launcher domain.HelperLauncher
	logsDir  string
	timeout  time.Duration
	allowed  map[string]bool

	cooldown time.Duration
	linger   time.Duration

	mu      sync.Mutex
	entries map[string]*fallbackEntry
}

// NewDailyService wires the daily lookup path. allowedSites lists the
// leetcode domains fallback fetches may run for; timeout is the
// crawler timeout applied to each fetch.
func NewDailyService(repo domain.DailyRepository, launcher domain.HelperLauncher, logsDir string, timeout time.Duration, allowedSites []string) *DailyService {
	allowed := make(map[string]bool, len(allowedSites))
	for _, s := range allowedSites {
		allowed[s] = true
	}
	return &DailyService{
		repo:     repo,
		launcher: launcher,
		logsDir:  logsDir,
		timeout:  timeout,
		allowed:  allowed,
		cooldown: fallbackCooldown,
		linger:   fallbackLinger,
		entries:  map[string]*fallbackEntry{},
	}
}

// Get returns the challenge for (site, date). retryAfter > 0 signals
// that the row is missing but a fallback fetch is running or cooling
// down and the client should poll again after that many seconds.
func (d *DailyService) Get(ctx context.Context, site, date string) (domain.DailyChallenge, int, error) {
	var zero domain.DailyChallenge

	if site != "com" && site != "cn" {
		return zero, 0, fmt.Errorf("%w: domain must be com or cn", domain.ErrInvalidArgument)
	}
	if _, err := domain.ParseISODate(date); err != nil {
		return zero, 0, fmt.Errorf("%w: date must be a valid YYYY-MM-DD", domain.ErrInvalidArgument)
	}
	today := todayFor(site)
	if date < minDailyDate || date > today {
		return zero, 0, fmt.Errorf("%w: date must be between %s and %s", domain.ErrInvalidArgument, minDailyDate, today)
	}

	ch, err := d.repo.Get(ctx, site, date)
	if err == nil {
		return ch, 0, nil
	}
	if !errors.Is(err, domain.ErrNotFound) {
		return zero, 0, err
	}

	// fallback only fills today's hole, and only for allowed sites
	if !d.allowed[site] || date != today {
		return zero, 0, fmt.Errorf("%w: no daily challenge found for this date", domain.ErrNotFound)
	}
	return zero, d.schedule(site, date), nil
}

// schedule claims the (site, date) key or reports how long to wait for
// the attempt that already owns it. Exactly one fetch runs per key.
func (d *DailyService) schedule(site, date string) int {
	key := site + ":" + date

	d.mu.Lock()
	if e, ok := d.entries[key]; ok {
		if e.status == domain.JobRunning {
			d.mu.Unlock()
			return fallbackRetryAfter
		}
		if wait := time.Until(e.cooldownUntil); wait > 0 {
			d.mu.Unlock()
			return int(math.Ceil(wait.Seconds()))
		}
	}
	e := &fallbackEntry{status: domain.JobRunning, startedAt: time.Now()}
	d.entries[key] = e
	d.mu.Unlock()

	go d.fetch(key, e, site, date)
	return fallbackRetryAfter
}

// fetch runs one fallback fetch to completion, applies its outcome to
// the entry and removes the entry after a linger window. Both writes
// check the entry is still the one this attempt created.
func (d *DailyService) fetch(key string, e *fallbackEntry, site, date string) {
	job := domain.Job{
		ID:        uuid.NewString(),
		Source:    domain.SourceLeetCode,
		Args:      []string{"--daily", "--domain", site},
		Trigger:   domain.TriggerDailyFallback,
		StartedAt: time.Now().UTC(),
		Status:    domain.JobRunning,
	}

	observability.StartJob(string(domain.KindDailyFallback), string(job.Source))
	start := time.Now()
	status := d.run(job)
	observability.FinishJob(string(domain.KindDailyFallback), string(status), time.Since(start))
	observability.ObserveDailyFallback(site, string(status))

	d.mu.Lock()
	if d.entries[key] == e {
		e.status = status
		if status != domain.JobCompleted {
			e.cooldownUntil = time.Now().Add(d.cooldown)
		}
	}
	d.mu.Unlock()

	time.Sleep(d.linger)

	d.mu.Lock()
	if d.entries[key] == e {
		delete(d.entries, key)
	}
	d.mu.Unlock()
}

// run spawns the leetcode helper for one fetch and supervises it with
// the usual capture, timeout and group-kill discipline.
func (d *DailyService) run(job domain.Job) domain.JobStatus {
	proc, err := d.launcher.Start(job.Source.ScriptName(), job.Args...)
	if err != nil {
		slog.Error("daily fallback spawn failed",
			slog.String("job_id", job.ID), slog.Any("error", err))
		return domain.JobFailed
	}
	res := superviseExit(d.launcher, proc, d.timeout, domain.KindDailyFallback, job.ID)
	if res.exited {
		writeJobLogs(d.logsDir, job.ID, res.stdout, res.stderr)
	}
	return res.status
}

// todayFor returns today's ISO date in the site's reference timezone:
// UTC for com, UTC+8 for cn.
func todayFor(site string) string {
	now := time.Now().UTC()
	if site == "cn" {
		now = now.Add(8 * time.Hour)
	}
	return now.Format("2006-01-02")
}
