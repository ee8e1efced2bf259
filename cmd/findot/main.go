package main

import (
	"context"
	"errors"
	"os"
	"time"

	"golang.org/x/sync/errgroup"

	"findot/internal/actions"
	"findot/internal/amqp"
	"findot/internal/backend"
	"findot/internal/bot"
	"findot/internal/bot/telegram"
	"findot/internal/budget"
	"findot/internal/cli"
	"findot/internal/config"
	"findot/internal/core"
	"findot/internal/events"
	apphttp "findot/internal/http"
	"findot/internal/log"
	"findot/internal/middleware/ratelimit"
	"findot/internal/services"
	"findot/internal/sheets/retrying"
	"findot/internal/speech"
)

func main() {
	cli.LoadEnvFile()
	cfg := cli.LoadConfig((*config.Config).ValidateBot)
	logger := cli.SetupLogger(cfg)
	logger.Info("Starting findot", log.FieldOperation, log.OpStartup, "backend", cfg.DataBackend)

	ctx, stop := cli.SignalContext(logger)
	defer stop()

	bc, err := backend.FromAppConfig(cfg)
	if err != nil {
		logger.Error("Invalid backend configuration", log.FieldError, err)
		os.Exit(1)
	}
	res, err := backend.NewFactory(logger).CreateBackend(ctx, bc)
	if err != nil {
		logger.Error("Failed to create backend", log.FieldError, err)
		os.Exit(1)
	}
	if res.Cleanup != nil {
		defer res.Cleanup()
	}

	attempts := uint(cfg.RetryAttempts)
	ledger := retrying.New(res.Store,
		retrying.ReadPolicy(attempts, cfg.RetryDelay),
		retrying.WritePolicy(attempts, cfg.RetryDelay),
		logger)

	var publisher events.Publisher = events.Nop{}
	if cfg.AMQPURL != "" {
		client, err := amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue, logger)
		if err != nil {
			logger.Warn("Failed to initialize AMQP client, continuing without ledger events", log.FieldError, err)
		} else {
			defer client.Close()
			publisher = client
			logger.Info("Publishing ledger events", "exchange", cfg.AMQPExchange, "queue", cfg.AMQPQueue)
		}
	}

	actionCache := actions.NewCache(cfg.ActionCacheSize, cfg.UndoWindow)
	expenses := services.NewExpenseService(ledger, core.NewParser(core.NormalizerFor(cfg.CategoryLocale)),
		actionCache, publisher, cfg.Location(), logger)
	acts := actions.NewService(actionCache, ledger, publisher, logger)

	limiter := ratelimit.NewLimiter(ratelimit.Config{RequestsPerMinute: cfg.RateLimitPerMinute})
	defer limiter.Stop()

	opts := bot.Options{
		Currency:         cfg.Currency,
		MaxVoiceDuration: cfg.MaxVoiceDuration,
		Limiter:          limiter,
	}
	if cfg.SpeechURL != "" {
		opts.Transcriber = speech.NewClient(speech.Config{
			BaseURL:  cfg.SpeechURL,
			Language: cfg.SpeechLanguage,
			Timeout:  30 * time.Second,
		})
		logger.Info("Voice notes enabled", "speech_url", cfg.SpeechURL)
	}
	handler := bot.NewHandler(expenses, acts, budget.NewTracker(), opts, logger)

	runner, err := telegram.New(cfg.TelegramToken, handler, 8, logger)
	if err != nil {
		logger.Error("Failed to start Telegram bot", log.FieldError, err)
		os.Exit(1)
	}
	srv := apphttp.NewServer(":"+cfg.Port, ledger, logger)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return runner.Run(gctx) })
	g.Go(func() error { return srv.Run(gctx) })

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("findot stopped with error", log.FieldError, err)
		os.Exit(1)
	}
	logger.Info("findot stopped gracefully", log.FieldOperation, log.OpShutdown)
}
