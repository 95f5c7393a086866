package app

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// LogSweeper prunes old job artifacts from the logs directory. Helpers
// leave one or two stream logs and a progress file per job; without
// retention the directory grows without bound.
type LogSweeper struct {
	Dir           string
	RetentionDays int
}

// NewLogSweeper creates a sweeper over dir.
func NewLogSweeper(dir string, retentionDays int) *LogSweeper {
	if retentionDays <= 0 {
		retentionDays = 30
	}
	return &LogSweeper{Dir: dir, RetentionDays: retentionDays}
}

// sweepable reports whether name looks like a job artifact. Only files
// the job system writes are eligible; anything else in the directory is
// left alone.
func sweepable(name string) bool {
	return strings.HasSuffix(name, ".log") || strings.HasSuffix(name, ".progress.json")
}

// Sweep removes job artifacts older than the retention period and
// returns how many files were deleted.
func (s *LogSweeper) Sweep(ctx context.Context) (int, error) {
	cutoff := time.Now().AddDate(0, 0, -s.RetentionDays)

	entries, err := os.ReadDir(s.Dir)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, nil
		}
		return 0, fmt.Errorf("op=logsweep.read_dir: %w", err)
	}

	deleted := 0
	for _, entry := range entries {
		if ctx.Err() != nil {
			return deleted, ctx.Err()
		}
		if entry.IsDir() || !sweepable(entry.Name()) {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		if info.ModTime().After(cutoff) {
			continue
		}
		if err := os.Remove(filepath.Join(s.Dir, entry.Name())); err != nil {
			slog.Warn("log sweep remove failed",
				slog.String("file", entry.Name()), slog.Any("error", err))
			continue
		}
		deleted++
	}

	if deleted > 0 {
		slog.Info("log sweep completed",
			slog.Int("deleted", deleted),
			slog.Time("cutoff", cutoff))
	}
	return deleted, nil
}

// RunPeriodic sweeps on a ticker until ctx is cancelled. The first
// sweep runs immediately.
func (s *LogSweeper) RunPeriodic(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = 24 * time.Hour
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	if _, err := s.Sweep(ctx); err != nil {
		slog.Error("initial log sweep failed", slog.Any("error", err))
	}

	for {
		select {
		case <-ctx.Done():
			slog.Info("log sweeper stopping")
			return
		case <-ticker.C:
			if _, err := s.Sweep(ctx); err != nil {
				slog.Error("periodic log sweep failed", slog.Any("error", err))
			}
		}
	}
}
