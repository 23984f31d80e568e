package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/Diego-II/expense-tracker-api/internal/api"
	"github.com/Diego-II/expense-tracker-api/internal/api/handlers"
	"github.com/Diego-II/expense-tracker-api/internal/backend"
	"github.com/Diego-II/expense-tracker-api/internal/config"
	"github.com/Diego-II/expense-tracker-api/internal/email"
	"github.com/Diego-II/expense-tracker-api/internal/gcs"
	"github.com/Diego-II/expense-tracker-api/internal/jobs"
	jobsamqp "github.com/Diego-II/expense-tracker-api/internal/jobs/amqp"
	"github.com/Diego-II/expense-tracker-api/internal/jobs/inmemory"
	"github.com/Diego-II/expense-tracker-api/internal/ledger"
	"github.com/Diego-II/expense-tracker-api/internal/logger"
	"github.com/Diego-II/expense-tracker-api/internal/recordstore"
)

func main() {
	// Parse command-line flags
	port := flag.String("port", "", "HTTP server port (overrides PORT)")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		l := logger.New()
		l.Fatal().Err(err).Msg("Failed to load configuration")
	}
	if *port != "" {
		cfg.Port = *port
	}

	// Initialize logger
	log := logger.NewWithOptions(logger.Options{Level: cfg.LogLevel, JSON: cfg.JSONLogs()})

	if err := cfg.ValidateForAPI(); err != nil {
		log.Fatal().Err(err).Msg("Invalid configuration")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	ctx = logger.WithContext(ctx, log)

	if err := run(ctx, cfg, log); err != nil {
		log.Error().Err(err).Msg("Server exited with error")
		os.Exit(1)
	}
	log.Info().Msg("Server exited")
}

func run(ctx context.Context, cfg *config.Config, log zerolog.Logger) error {
	// Clients are created once and shared by every request
	objects, err := gcs.NewClient(ctx)
	if err != nil {
		return err
	}
	defer objects.Close()

	writer := ledger.NewWriter(objects, ledger.WithConditionalWrites(cfg.LedgerConditionalWrites))

	factory := backend.NewFactory(log)
	store, err := factory.NewRecordStore(ctx, *cfg)
	if err != nil {
		return err
	}
	defer store.Close()

	routes := api.Routes{
		Expenses: handlers.NewExpensesHandler(writer, store, cfg.ExpensesBucket, log),
	}

	g, gctx := errgroup.WithContext(ctx)

	switch cfg.QueueBackend {
	case config.QueueAMQP:
		// Events are published for cmd/worker to consume
		client, err := jobsamqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue, nil)
		if err != nil {
			return err
		}
		defer client.Close()
		routes.Events = handlers.NewEventsHandler(client, log)

	default:
		queue, jobStore, err := startInMemoryWorker(gctx, cfg, factory, store, log)
		if err != nil {
			return err
		}
		defer func() {
			stopCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer cancel()
			// Stop job queue and wait for in-flight jobs
			if err := queue.Stop(stopCtx); err != nil {
				log.Error().Err(err).Msg("Error stopping job queue")
			}
			if err := queue.Close(); err != nil {
				log.Error().Err(err).Msg("Failed to close job queue")
			}
		}()
		routes.Events = handlers.NewEventsHandler(queue, log)
		routes.Jobs = handlers.NewJobsHandler(jobStore, log)
	}

	// Create HTTP server
	server := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      api.NewRouter(routes, log),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	g.Go(func() error {
		log.Info().Str("port", cfg.Port).Msg("Starting API server")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		log.Info().Msg("Shutting down server...")

		// Graceful shutdown
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})

	return g.Wait()
}

// startInMemoryWorker runs email events in-process with retries.
func startInMemoryWorker(ctx context.Context, cfg *config.Config, factory *backend.Factory, store recordstore.Store, log zerolog.Logger) (*inmemory.Queue, *inmemory.Store, error) {
	ex, err := factory.NewExtractor(ctx, *cfg)
	if err != nil {
		return nil, nil, err
	}
	emailHandler := email.NewHandler(ex, store)

	jobStore := inmemory.NewStore()
	queue := inmemory.NewQueue(100, jobStore,
		inmemory.WithMaxRetries(cfg.QueueMaxRetries),
		inmemory.WithRetryDelay(cfg.QueueRetryDelay),
	)

	log.Info().Msg("Starting job worker")
	if err := queue.Start(ctx, jobs.EmailEventHandler(emailHandler.HandleEvent)); err != nil {
		return nil, nil, err
	}
	return queue, jobStore, nil
}
