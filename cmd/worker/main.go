package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/Diego-II/expense-tracker-api/internal/backend"
	"github.com/Diego-II/expense-tracker-api/internal/config"
	"github.com/Diego-II/expense-tracker-api/internal/email"
	"github.com/Diego-II/expense-tracker-api/internal/jobs"
	jobsamqp "github.com/Diego-II/expense-tracker-api/internal/jobs/amqp"
	"github.com/Diego-II/expense-tracker-api/internal/jobs/inmemory"
	"github.com/Diego-II/expense-tracker-api/internal/logger"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		l := logger.New()
		l.Fatal().Err(err).Msg("Failed to load configuration")
	}

	// Initialize logger
	log := logger.NewWithOptions(logger.Options{Level: cfg.LogLevel, JSON: cfg.JSONLogs()})

	if err := cfg.Validate(); err != nil {
		log.Fatal().Err(err).Msg("Invalid configuration")
	}
	if cfg.QueueBackend != config.QueueAMQP {
		log.Fatal().Str("queue_backend", cfg.QueueBackend).Msg("The worker consumes from AMQP; set QUEUE_BACKEND=amqp")
	}

	// Create context that cancels on interrupt
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	ctx = logger.WithContext(ctx, log)

	if err := run(ctx, cfg, log); err != nil {
		log.Error().Err(err).Msg("Worker exited with error")
		os.Exit(1)
	}
	log.Info().Msg("Worker stopped")
}

func run(ctx context.Context, cfg *config.Config, log zerolog.Logger) error {
	factory := backend.NewFactory(log)

	store, err := factory.NewRecordStore(ctx, *cfg)
	if err != nil {
		return err
	}
	defer store.Close()

	ex, err := factory.NewExtractor(ctx, *cfg)
	if err != nil {
		return err
	}
	emailHandler := email.NewHandler(ex, store)

	// Job state is kept for this process's logs only
	client, err := jobsamqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue, inmemory.NewStore())
	if err != nil {
		return err
	}
	defer client.Close()

	log.Info().
		Str("exchange", cfg.AMQPExchange).
		Str("queue", cfg.AMQPQueue).
		Msg("Starting worker service")

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return client.Start(gctx, jobs.EmailEventHandler(emailHandler.HandleEvent))
	})

	g.Go(func() error {
		<-gctx.Done()
		log.Info().Msg("Shutting down worker...")

		// Wait for the in-flight message
		stopCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		return client.Stop(stopCtx)
	})

	return g.Wait()
}
