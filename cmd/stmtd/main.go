// Command stmtd is the long-running ingestion daemon: it watches drop
// directories for statement files, runs each through the pipeline on a
// worker pool, persists results, and serves Prometheus metrics.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/parsebank/statement-parser/internal/async"
	"github.com/parsebank/statement-parser/internal/common"
	"github.com/parsebank/statement-parser/internal/ingest"
	"github.com/parsebank/statement-parser/internal/observability"
	"github.com/parsebank/statement-parser/internal/pipeline"
	"github.com/parsebank/statement-parser/internal/repository"
	"github.com/parsebank/statement-parser/internal/template"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	inbox := os.Getenv("STMT_INBOX")
	if inbox == "" {
		logger.Error("STMT_INBOX env var is required (directory to watch)")
		os.Exit(2)
	}
	addr := os.Getenv("HTTP_ADDR")
	if addr == "" {
		addr = ":9090"
	}
	if !strings.HasPrefix(addr, ":") {
		addr = ":" + addr
	}
	accountID := os.Getenv("STMT_ACCOUNT_ID")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app := common.LoadConfig()
	if err := app.Validate(); err != nil {
		logger.Error("invalid configuration", "error", err)
		os.Exit(2)
	}

	cfg := pipeline.DefaultConfig()
	if path := os.Getenv("STMT_CONFIG"); path != "" {
		var err error
		cfg, err = pipeline.LoadConfig(path)
		if err != nil {
			logger.Error("loading run config", "path", path, "error", err)
			os.Exit(2)
		}
	}
	if accountID != "" {
		cfg.AccountID = accountID
	}
	if cfg.TemplatesDir == "" {
		cfg.TemplatesDir = app.Templates.Dir
	}

	templates, err := template.Load(cfg.TemplatesDir, logger)
	if err != nil {
		logger.Error("loading templates", "error", err)
		os.Exit(2)
	}
	logger.Info("templates loaded", "count", templates.Len())

	repo, cleanup, err := openRepository(ctx, app, logger)
	if err != nil {
		logger.Error("opening repository", "error", err)
		os.Exit(1)
	}
	defer cleanup()

	metrics := observability.NewMetrics(prometheus.DefaultRegisterer)
	ctrl := pipeline.New(cfg, pipeline.BuildPool(app, templates, logger), logger, metrics)

	proc := &statementProcessor{
		ctrl:      ctrl,
		repo:      repo,
		accountID: cfg.AccountID,
		logger:    logger,
		seen:      map[string]struct{}{},
	}
	queue := async.NewStatementQueue(proc, logger,
		async.WithWorkers(4),
		async.WithProcessTimeout(5*time.Minute),
	)

	events, watchErrs, err := ingest.StartWatcher(ctx, ingest.WatchConfig{
		Roots:       []string{inbox},
		InitialScan: true,
		Debounce:    2 * time.Second,
	})
	if err != nil {
		logger.Error("starting watcher", "inbox", inbox, "error", err)
		os.Exit(1)
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		fmt.Fprintln(w, "ok")
	})
	srv := &http.Server{Addr: addr, Handler: mux}
	go func() {
		logger.Info("metrics listening", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("http server", "error", err)
		}
	}()

	logger.Info("watching inbox", "dir", inbox)
	for {
		select {
		case <-ctx.Done():
			logger.Info("shutting down")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			queue.Shutdown(shutdownCtx)
			_ = srv.Shutdown(shutdownCtx)
			cancel()
			return
		case path, ok := <-events:
			if !ok {
				return
			}
			_ = queue.Enqueue(ctx, async.Job{
				Path:        path,
				AccountID:   cfg.AccountID,
				SubmittedAt: time.Now(),
			})
		case err, ok := <-watchErrs:
			if ok && err != nil {
				logger.Error("watch error", "error", err)
			}
		}
	}
}

func openRepository(ctx context.Context, app *common.Config, logger *slog.Logger) (repository.StatementRepository, func(), error) {
	if app.Database.DSN != "" {
		pool, err := repository.Open(ctx, repository.Config{
			DSN:              app.Database.DSN,
			MaxConns:         app.Database.MaxConns,
			MinConns:         app.Database.MinConns,
			MaxConnLifetime:  app.Database.MaxConnLifetime,
			MaxConnIdleTime:  app.Database.MaxConnIdleTime,
			DialTimeout:      app.Database.DialTimeout,
			StatementTimeout: app.Database.StatementTimeout,
		}, logger)
		if err != nil {
			return nil, nil, err
		}
		if err := repository.Migrate(ctx, pool); err != nil {
			pool.Close()
			return nil, nil, err
		}
		return repository.NewPostgresRepository(pool, logger),
			func() { repository.Close(pool, logger) }, nil
	}
	repo, db, err := repository.OpenSQLite(ctx, app.Database.SQLitePath, logger)
	if err != nil {
		return nil, nil, err
	}
	return repo, func() { _ = db.Close() }, nil
}
