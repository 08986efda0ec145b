package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	corecfg "github.com/aevon-lab/cohort/internal/core/config"
	"github.com/aevon-lab/cohort/internal/core/storage"
	_ "github.com/aevon-lab/cohort/internal/core/storage/all"
	"github.com/aevon-lab/cohort/internal/core/storage/postgres"
	"github.com/aevon-lab/cohort/internal/core/storage/sqldb"
	"github.com/aevon-lab/cohort/internal/metrics"
	"github.com/aevon-lab/cohort/internal/migrations"
	"github.com/aevon-lab/cohort/internal/pipeline"
	"github.com/aevon-lab/cohort/internal/server"
)

func main() {
	configPath := flag.String("config", "cohort.yaml", "Path to configuration file")
	runNames := flag.String("run", "", "Comma-separated pipelines to run once (default: all)")
	serve := flag.Bool("serve", false, "Serve the HTTP API instead of running once")
	flag.Parse()

	// 0. Initialize Logger (stdout belongs to console sinks)
	slog.SetDefault(newLogger(os.Stderr))

	// 1. Load Configuration and pipelines
	cfg, err := corecfg.Load(*configPath)
	if err != nil {
		slog.Error("Failed to load config", "error", err)
		os.Exit(1)
	}
	slog.Info("Loaded config",
		"pipelines", len(cfg.PipelineLoading.Definitions),
		"pipelines_dir", cfg.PipelineLoading.Dir,
		"connections", len(cfg.Connections),
		"sources", storage.SourceKinds(),
		"sinks", storage.SinkKinds(),
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// 2. Initialize Metrics
	recorder, err := metrics.NewRecorder()
	if err != nil {
		slog.Error("Failed to initialize metrics", "error", err)
		os.Exit(1)
	}

	// 3. Initialize Run Store (optional)
	var runs *postgres.RunsAdapter
	if cfg.Database.DSN != "" {
		runs, err = openRunStore(ctx, cfg.Database)
		if err != nil {
			slog.Error("Failed to initialize run store", "error", err)
			os.Exit(1)
		}
		defer runs.Close()
	} else {
		slog.Info("Run store disabled (database.dsn is empty)")
	}

	// 4. Initialize Runner
	repo, err := pipeline.NewStaticRepository(cfg.PipelineLoading.Definitions...)
	if err != nil {
		slog.Error("Failed to index pipelines", "error", err)
		os.Exit(1)
	}
	opts := []pipeline.Option{pipeline.WithMetrics(recorder)}
	if runs != nil {
		opts = append(opts, pipeline.WithRunStore(runs))
	}
	runner := pipeline.NewRunner(repo, pipeline.ParametersFromConfig(cfg), opts...)

	// Signal handler → triggers the shutdown sequence below.
	go func() {
		quit := make(chan os.Signal, 1)
		signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
		<-quit
		slog.Info("Signal received, shutting down...")
		cancel()
	}()

	if !*serve {
		if err := runOnce(ctx, runner, *runNames); err != nil {
			slog.Error("Pipeline run failed", "error", err)
			os.Exit(1)
		}
		return
	}

	// 5. Start Scheduler if enabled
	if cfg.Runner.Schedule {
		scheduler := pipeline.NewScheduler(cfg.Runner.IntervalDuration(), runner)
		go func() {
			if err := scheduler.Start(ctx); err != nil {
				slog.Error("Scheduler stopped with error", "error", err)
			}
		}()
	} else {
		slog.Info("Pipeline scheduler disabled by config")
	}

	// 6. Initialize Server
	var health server.HealthChecker
	var runStore storage.RunStore
	if runs != nil {
		health, runStore = runs, runs
	}
	srv := server.New(fmtAddr(cfg.Server.Host, cfg.Server.Port), health, cfg.Server.Mode, recorder)
	srv.Mount(pipeline.NewHandler(runner, runStore))

	// HTTP server blocks until ctx is cancelled.
	if err := srv.Run(ctx); err != nil {
		slog.Error("Server stopped with error", "error", err)
	}

	slog.Info("Shutdown complete")
}

// openRunStore opens the audit database, applies migrations and prepares the
// run store on the same pool.
func openRunStore(ctx context.Context, cfg corecfg.DatabaseConfig) (*postgres.RunsAdapter, error) {
	db, err := sqldb.Open(ctx, postgres.Dialect.Driver, cfg.DSN, cfg.MaxOpenConns, cfg.MaxIdleConns)
	if err != nil {
		return nil, err
	}
	if err := migrations.RunMigrations(db, cfg.AutoMigrate); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to run database migrations: %w", err)
	}
	runs, err := postgres.NewRunsAdapterFromDB(ctx, db)
	if err != nil {
		db.Close()
		return nil, err
	}
	return runs, nil
}

// runOnce runs the named pipelines in order, or every pipeline when names is
// empty.
func runOnce(ctx context.Context, runner *pipeline.Runner, names string) error {
	if strings.TrimSpace(names) == "" {
		_, err := runner.RunAll(ctx)
		return err
	}
	for _, name := range strings.Split(names, ",") {
		name = strings.TrimSpace(name)
		if name == "" {
			continue
		}
		if _, err := runner.Run(ctx, name, pipeline.RunOptions{}); err != nil {
			return fmt.Errorf("pipeline %q: %w", name, err)
		}
	}
	return nil
}

func fmtAddr(host string, port int) string {
	return fmt.Sprintf("%s:%d", host, port)
}

func newLogger(w io.Writer) *slog.Logger {
	return slog.New(slog.NewTextHandler(w, nil))
}
