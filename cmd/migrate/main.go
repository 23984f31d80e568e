package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"cloud.google.com/go/bigquery"
	"github.com/rs/zerolog"

	"github.com/Diego-II/expense-tracker-api/internal/config"
	bqstore "github.com/Diego-II/expense-tracker-api/internal/infra/bigquery"
	ddbstore "github.com/Diego-II/expense-tracker-api/internal/infra/dynamodb"
	pgstore "github.com/Diego-II/expense-tracker-api/internal/infra/postgres"
	sqlitestore "github.com/Diego-II/expense-tracker-api/internal/infra/sqlite"
	"github.com/Diego-II/expense-tracker-api/internal/logger"
)

var (
	appliedBy = flag.String("applied-by", "migrate-cli", "Name of the tool applying migrations")
	wait      = flag.Duration("wait", 2*time.Minute, "How long to wait for a new DynamoDB table to become active")
)

func main() {
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		l := logger.New()
		l.Fatal().Err(err).Msg("Failed to load configuration")
	}
	log := logger.NewWithOptions(logger.Options{Level: cfg.LogLevel, JSON: cfg.JSONLogs()})

	if err := cfg.Validate(); err != nil {
		log.Fatal().Err(err).Msg("Invalid configuration")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
	defer cancel()
	ctx = logger.WithContext(ctx, log)

	if err := migrate(ctx, cfg, log); err != nil {
		log.Error().Err(err).Str("record_store", cfg.RecordStore).Msg("Migration failed")
		os.Exit(1)
	}
}

// migrate prepares the schema of the configured record store.
func migrate(ctx context.Context, cfg *config.Config, log zerolog.Logger) error {
	switch cfg.RecordStore {
	case config.RecordStoreBigQuery:
		client, err := bigquery.NewClient(ctx, cfg.GCPProject)
		if err != nil {
			return fmt.Errorf("create BigQuery client: %w", err)
		}
		defer client.Close()

		log.Info().Str("project", cfg.GCPProject).Str("dataset", cfg.BigQueryDataset).Msg("Connected to BigQuery")

		m := bqstore.NewMigrator(client, cfg.GCPProject, cfg.BigQueryDataset, cfg.BigQueryTable, *appliedBy, log)
		n, err := m.Up(ctx)
		if err != nil {
			return err
		}
		if n == 0 {
			log.Info().Msg("No new migrations to apply. Dataset is up to date.")
		} else {
			log.Info().Int("applied", n).Msg("Successfully applied migrations")
		}
		return nil

	case config.RecordStoreDynamoDB:
		store, err := ddbstore.NewStore(ctx, cfg.AWSRegion, cfg.DynamoDBTable, cfg.DynamoDBEndpoint)
		if err != nil {
			return err
		}
		created, err := store.EnsureTable(ctx, *wait)
		if err != nil {
			return err
		}
		log.Info().Str("table", cfg.DynamoDBTable).Bool("created", created).Msg("DynamoDB table ready")
		return nil

	case config.RecordStorePostgres:
		if err := pgstore.RunMigrations(cfg.DatabaseURL); err != nil {
			return err
		}
		log.Info().Msg("Postgres migrations applied")
		return nil

	case config.RecordStoreSQLite:
		if err := os.MkdirAll(filepath.Dir(cfg.SQLitePath), 0755); err != nil {
			return fmt.Errorf("create database directory: %w", err)
		}
		if err := sqlitestore.RunMigrations(cfg.SQLitePath); err != nil {
			return err
		}
		log.Info().Str("db_path", cfg.SQLitePath).Msg("SQLite migrations applied")
		return nil

	case config.RecordStoreMemory:
		log.Info().Msg("In-memory record store needs no migrations")
		return nil

	default:
		return fmt.Errorf("unsupported record store: %s", cfg.RecordStore)
	}
}
