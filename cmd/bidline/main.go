package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"golang.org/x/sync/errgroup"

	"github.com/bidline-lab/bidline/internal/config"
	"github.com/bidline-lab/bidline/internal/core/audit"
	"github.com/bidline-lab/bidline/internal/core/command"
	"github.com/bidline-lab/bidline/internal/core/engine"
	"github.com/bidline-lab/bidline/internal/core/storage/postgres"
	"github.com/bidline-lab/bidline/internal/intake"
	"github.com/bidline-lab/bidline/internal/live"
	"github.com/bidline-lab/bidline/internal/metrics"
	"github.com/bidline-lab/bidline/internal/migrations"
	"github.com/bidline-lab/bidline/internal/projection"
	"github.com/bidline-lab/bidline/internal/server"
	"github.com/bidline-lab/bidline/internal/snapshot"
)

func main() {
	configPath := flag.String("config", "bidline.yaml", "Path to configuration file")
	flag.Parse()

	// 0. Initialize Logger
	logger := slog.New(slog.NewTextHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	// 1. Load Configuration
	cfg, err := config.Load(*configPath)
	if err != nil {
		slog.Error("Failed to load config", "error", err)
		os.Exit(1)
	}
	slog.Info("Loaded config", "config", cfg)

	// 2. Initialize Storage (PostgreSQL)
	store, err := postgres.NewAdapter(
		cfg.Database.DSN,
		cfg.Database.MaxOpenConns,
		cfg.Database.MaxIdleConns,
	)
	if err != nil {
		slog.Error("Failed to initialize database", "error", err)
		os.Exit(1)
	}
	defer store.Close()

	// 2.1. Run Database Migrations
	if err := migrations.RunMigrations(store.DB(), cfg.Database.AutoMigrate); err != nil {
		slog.Error("Failed to run database migrations", "error", err)
		os.Exit(1)
	}

	// 3. Initialize the command engine with its subscribers. The snapshot
	// manager submits checkpoints back through the engine, so it is built
	// against a late-bound reference.
	recorder := metrics.NewRecorder()
	hub := live.NewHub(logger)

	var eng *engine.Engine
	snapshotMgr := snapshot.NewManager(engineRef{&eng}, cfg.Snapshot.EveryN, logger)

	notifiers := engine.Notifiers{snapshotMgr}
	if cfg.Live.Enabled {
		notifiers = append(notifiers, hub)
	}
	eng = engine.New(store, logger,
		engine.WithNotifier(notifiers),
		engine.WithRecorder(recorder),
	)

	// 3.1. Verify canonical state against the audit log on startup.
	years, err := store.ListBidYears(context.Background())
	if err != nil {
		slog.Error("Failed to list bid years", "error", err)
		os.Exit(1)
	}
	for _, y := range years {
		if err := eng.VerifyReplay(context.Background(), y.Year); err != nil {
			if errors.Is(err, engine.ErrPartitionHalted) {
				slog.Error("Bid year halted after replay divergence", "year", y.Year, "error", err)
				continue
			}
			slog.Error("Replay verification failed", "year", y.Year, "error", err)
			os.Exit(1)
		}
	}

	// 4. Initialize HTTP surfaces
	intakeHandler := intake.NewHandler(eng)
	projectionSvc := projection.NewService(store)

	srv := server.New(fmtAddr(cfg.Server.Host, cfg.Server.Port), store.DB(), cfg.Server.Mode)
	srv.Register(intakeHandler, projectionSvc, recorder)
	if cfg.Live.Enabled {
		srv.Register(hub)
	}

	// 5. Run until a signal arrives.
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		err := snapshotMgr.Run(ctx)
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	})
	g.Go(func() error {
		return srv.Run(ctx)
	})

	if err := g.Wait(); err != nil {
		slog.Error("Server stopped with error", "error", err)
		os.Exit(1)
	}
	slog.Info("Shutdown complete")
}

// engineRef defers the engine dependency so the snapshot manager can be
// registered as a notifier of the engine it submits to.
type engineRef struct {
	eng **engine.Engine
}

func (r engineRef) Submit(ctx context.Context, cmd command.Command, actor audit.Actor, cause audit.Cause) (audit.Event, error) {
	return (*r.eng).Submit(ctx, cmd, actor, cause)
}

func fmtAddr(host string, port int) string {
	return fmt.Sprintf("%s:%d", host, port)
}
