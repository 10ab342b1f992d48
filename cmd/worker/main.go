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

	"github.com/robfig/cron/v3"
	"golang.org/x/sync/errgroup"

	"gramflow/internal/infra/db"
	workerPkg "gramflow/internal/infra/worker"
	"gramflow/internal/observability/logging"
	"gramflow/internal/resilience/deadletter"
	"gramflow/pkg/config"
)

func main() {
	logger := logging.NewLogger()
	slog.SetDefault(logger)

	workerConfig, err := workerPkg.LoadConfig()
	if err != nil {
		logger.Error("failed to load worker configuration", slog.Any("error", err))
		os.Exit(1)
	}
	logger.Info("worker configuration loaded",
		slog.String("prune_schedule", workerConfig.PruneSchedule),
		slog.String("timezone", workerConfig.Timezone),
		slog.Duration("drain_interval", workerConfig.DrainInterval),
		slog.Int("drain_batch", workerConfig.DrainBatch),
		slog.Int("health_port", workerConfig.HealthPort))

	dbConfig := db.ConfigFromEnv()
	if err := dbConfig.Validate(); err != nil {
		logger.Error("invalid database configuration", slog.Any("error", err))
		os.Exit(1)
	}

	dbc := db.NewContext(dbConfig, logging.ForComponent(logger, "db"))
	defer func() {
		if err := dbc.Close(); err != nil {
			logger.Error("failed to close database context", slog.Any("error", err))
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	monitor := db.NewMonitor(dbc, logging.ForComponent(logger, "db.monitor"),
		workerConfig.MonitorInterval, db.DefaultLeakFactor)
	monitor.Start(ctx)

	sink := deadletter.NewPostgresSink(dbc, logging.ForComponent(logger, "deadletter"))
	pruner := workerPkg.NewPruner(sink, logger, workerConfig.DeadLetterTTL)

	scheduler := cron.New(cron.WithLocation(mustLoadLocation(workerConfig.Timezone)))
	if _, err := scheduler.AddFunc(workerConfig.PruneSchedule, func() { pruner.Run(ctx) }); err != nil {
		logger.Error("failed to schedule dead-letter pruner", slog.Any("error", err))
		os.Exit(1)
	}
	scheduler.Start()
	defer scheduler.Stop()

	dispatchURL := config.GetEnvString("JOB_DISPATCH_URL", "")
	var drain *workerPkg.Drain
	if dispatchURL != "" {
		dispatcher := workerPkg.NewHTTPDispatcher(dispatchURL)
		drain = workerPkg.NewDrain(dbc, dispatcher, sink,
			logging.ForComponent(logger, "drain"), workerConfig)
	} else {
		logger.Warn("JOB_DISPATCH_URL not set, outbox drain disabled")
	}

	group, groupCtx := errgroup.WithContext(ctx)

	group.Go(func() error {
		err := startMetricsServer(groupCtx, logger, workerConfig.MetricsPort)
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	})

	group.Go(func() error {
		healthAddr := fmt.Sprintf(":%d", workerConfig.HealthPort)
		err := workerPkg.NewHealthServer(healthAddr, logger, dbc).Start(groupCtx)
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	})

	if workerConfig.GRPCHealthPort > 0 {
		group.Go(func() error {
			grpcAddr := fmt.Sprintf(":%d", workerConfig.GRPCHealthPort)
			return workerPkg.NewGRPCHealthServer(grpcAddr, logger, dbc).Start(groupCtx)
		})
	}

	if drain != nil {
		group.Go(func() error {
			err := drain.Run(groupCtx)
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		})
	}

	logger.Info("worker started")
	if err := group.Wait(); err != nil {
		logger.Error("worker exited with error", slog.Any("error", err))
		os.Exit(1)
	}
	logger.Info("worker stopped")
}

func mustLoadLocation(name string) *time.Location {
	loc, err := time.LoadLocation(name)
	if err != nil {
		// Validate() already checked the timezone.
		return time.UTC
	}
	return loc
}
