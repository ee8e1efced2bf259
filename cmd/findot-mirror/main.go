package main

import (
	"context"
	"errors"
	"os"

	"golang.org/x/sync/errgroup"

	"findot/internal/amqp"
	"findot/internal/backend"
	"findot/internal/cli"
	"findot/internal/config"
	apphttp "findot/internal/http"
	"findot/internal/log"
	"findot/internal/worker"
)

// findot-mirror consumes ledger events and keeps a SQLite copy of the
// ledger at SQLITE_DB_PATH.
func main() {
	cli.LoadEnvFile()
	cfg := cli.LoadConfig(func(c *config.Config) error {
		if err := c.Validate(); err != nil {
			return err
		}
		if c.AMQPURL == "" {
			return errors.New("AMQP_URL is required for the mirror")
		}
		if c.DataBackend == string(backend.SQLiteBackend) {
			return errors.New("the mirror copies a sheets or memory ledger; DATA_BACKEND must not be sqlite")
		}
		return nil
	})
	logger := cli.SetupLogger(cfg)
	logger.Info("Starting findot-mirror", log.FieldOperation, log.OpStartup)

	ctx, stop := cli.SignalContext(logger)
	defer stop()

	repo := cli.InitSQLite(logger, cfg.SQLiteDBPath)
	defer repo.Close()

	client, err := amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue, logger)
	if err != nil {
		logger.Error("Failed to initialize AMQP client", log.FieldError, err)
		os.Exit(1)
	}
	defer client.Close()

	mirror := worker.NewMirrorWorker(repo, logger)

	// catch up with rows written while the mirror was down
	if bc, err := backend.FromAppConfig(cfg); err == nil {
		if res, err := backend.NewFactory(logger).CreateBackend(ctx, bc); err != nil {
			logger.Warn("Source ledger unavailable, skipping backfill", log.FieldError, err)
		} else {
			if err := mirror.Backfill(ctx, res.Store); err != nil {
				logger.Error("Backfill failed", log.FieldError, err)
			}
			if res.Cleanup != nil {
				_ = res.Cleanup()
			}
		}
	}

	srv := apphttp.NewServer(":"+cfg.Port, repo, logger)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return client.Consume(gctx, mirror.HandleEvent) })
	g.Go(func() error { return srv.Run(gctx) })

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("findot-mirror stopped with error", log.FieldError, err)
		os.Exit(1)
	}
	logger.Info("findot-mirror stopped gracefully", log.FieldOperation, log.OpShutdown)
}
