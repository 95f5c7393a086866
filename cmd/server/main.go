// Command server starts the problem-hub HTTP server.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/fairyhunter13/oj-problem-hub/internal/adapter/embedder"
	httpserver "github.com/fairyhunter13/oj-problem-hub/internal/adapter/httpserver"
	"github.com/fairyhunter13/oj-problem-hub/internal/adapter/observability"
	"github.com/fairyhunter13/oj-problem-hub/internal/adapter/repo/postgres"
	"github.com/fairyhunter13/oj-problem-hub/internal/adapter/runner"
	"github.com/fairyhunter13/oj-problem-hub/internal/app"
	"github.com/fairyhunter13/oj-problem-hub/internal/config"
	"github.com/fairyhunter13/oj-problem-hub/internal/domain"
	"github.com/fairyhunter13/oj-problem-hub/internal/usecase"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}

	logger := observability.SetupLogger(cfg)
	slog.SetDefault(logger)

	// Register all Prometheus metrics once per process so that /metrics
	// exposes HTTP and job instrumentation.
	observability.InitMetrics()

	shutdownTracer, err := observability.SetupTracing(cfg)
	if err != nil {
		slog.Error("failed to setup tracing", slog.Any("error", err))
	}
	defer func() {
		if shutdownTracer != nil {
			_ = shutdownTracer(context.Background())
		}
	}()

	// Helpers write their stream logs and progress files here.
	if err := os.MkdirAll(cfg.LogsDir, 0o750); err != nil {
		slog.Error("logs dir create failed", slog.String("dir", cfg.LogsDir), slog.Any("error", err))
		os.Exit(1)
	}

	// Infra: split pools. Catalog reads go through the read-only pool;
	// the write pool stays small for admin mutations.
	ctx := context.Background()
	roPool, err := postgres.NewPool(ctx, cfg.DBURL, cfg.DBROMaxConns, true)
	if err != nil {
		slog.Error("db connect failed (ro)", slog.Any("error", err))
		os.Exit(1)
	}
	defer roPool.Close()
	rwPool, err := postgres.NewPool(ctx, cfg.DBURL, cfg.DBRWMaxConns, false)
	if err != nil {
		slog.Error("db connect failed (rw)", slog.Any("error", err))
		os.Exit(1)
	}
	defer rwPool.Close()

	// Repositories
	problemsRO := postgres.NewProblemRepo(roPool)
	problemsRW := postgres.NewProblemRepo(rwPool)
	dailyRepo := postgres.NewDailyRepo(roPool)
	embedRepo := postgres.NewEmbeddingRepo(roPool)
	tokenRepo := postgres.NewTokenRepo(rwPool)
	settingsRepo := postgres.NewSettingsRepo(rwPool)

	// Token enforcement survives restarts through the settings table.
	tokenAuthEnabled, err := settingsRepo.TokenAuthEnabled(ctx)
	if err != nil {
		slog.Error("settings load failed", slog.Any("error", err))
		os.Exit(1)
	}
	tokenAuth := httpserver.NewTokenAuth(tokenRepo, tokenAuthEnabled)

	// Log artifact retention.
	sweeper := app.NewLogSweeper(cfg.LogsDir, cfg.LogRetentionDays)
	go sweeper.RunPeriodic(ctx, cfg.CleanupInterval)
	slog.Info("log sweeper started",
		slog.Int("retention_days", cfg.LogRetentionDays),
		slog.Duration("interval", cfg.CleanupInterval))

	// Helper launcher. Helpers inherit the env plus CONFIG_PATH when a
	// shared helper config is configured.
	var extraEnv []string
	if cfg.HelperConfigPath != "" {
		extraEnv = append(extraEnv, "CONFIG_PATH="+cfg.HelperConfigPath)
	}
	launcher := runner.New(cfg.HelperCommand, cfg.ScriptsDir, extraEnv...)

	timeouts, err := config.LoadCrawlerTimeouts(cfg.CrawlerTimeoutsFile, cfg.CrawlerTimeout)
	if err != nil {
		slog.Error("crawler timeouts load failed", slog.Any("error", err))
		os.Exit(1)
	}

	// Usecases
	crawlerSvc := usecase.NewCrawlerService(launcher, cfg.LogsDir, func(s domain.Source) time.Duration {
		return timeouts.For(string(s))
	})
	embeddingSvc := usecase.NewEmbeddingService(launcher, cfg.LogsDir, cfg.EmbeddingTimeout)
	dailySvc := usecase.NewDailyService(dailyRepo, launcher, cfg.LogsDir,
		timeouts.For(string(domain.SourceLeetCode)), cfg.DailyFallbackDomains)
	textEmbedder := embedder.New(launcher, cfg.EmbedTextTimeout, cfg.EmbedWorkers())
	similarSvc := usecase.NewSimilarService(problemsRO, embedRepo, textEmbedder, cfg.OverFetch())

	dbCheck, dimCheck := app.BuildHealthChecks(roPool)

	srv := &httpserver.Server{
		Cfg:        cfg,
		Problems:   problemsRO,
		ProblemsRW: problemsRW,
		Daily:      dailySvc,
		Similar:    similarSvc,
		Crawlers:   crawlerSvc,
		Embeddings: embeddingSvc,
		Tokens:     tokenRepo,
		Settings:   settingsRepo,
		TokenAuth:  tokenAuth,
		DBCheck:    dbCheck,
		DimCheck:   dimCheck,
	}

	var admin *httpserver.AdminServer
	if cfg.AdminEnabled() {
		admin, err = httpserver.NewAdminServer(cfg, srv)
		if err != nil {
			slog.Error("admin console init failed", slog.Any("error", err))
			os.Exit(1)
		}
	} else {
		slog.Warn("admin console disabled: credentials not configured")
	}

	handler := app.BuildRouter(cfg, srv, admin)

	srvHTTP := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           handler,
		ReadTimeout:       cfg.HTTPReadTimeout,
		WriteTimeout:      cfg.HTTPWriteTimeout,
		IdleTimeout:       cfg.HTTPIdleTimeout,
		ReadHeaderTimeout: 10 * time.Second,
	}

	// Graceful shutdown. Running helper jobs are left alone; their
	// waiters finish in the background and the history is in-memory
	// anyway.
	errCh := make(chan error, 1)
	go func() {
		slog.Info("http server starting", slog.Int("port", cfg.Port))
		errCh <- srvHTTP.ListenAndServe()
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		slog.Info("shutdown signal received", slog.String("signal", sig.String()))
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("server error", slog.Any("error", err))
			os.Exit(1)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ServerShutdownTimeout)
	defer cancel()
	_ = srvHTTP.Shutdown(shutdownCtx)
}
