// Package backend builds the configured record store.
package backend

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/Diego-II/expense-tracker-api/internal/config"
	"github.com/Diego-II/expense-tracker-api/internal/extractor"
	bqstore "github.com/Diego-II/expense-tracker-api/internal/infra/bigquery"
	ddbstore "github.com/Diego-II/expense-tracker-api/internal/infra/dynamodb"
	pgstore "github.com/Diego-II/expense-tracker-api/internal/infra/postgres"
	sqlitestore "github.com/Diego-II/expense-tracker-api/internal/infra/sqlite"
	"github.com/Diego-II/expense-tracker-api/internal/recordstore"
)

// Factory creates record stores based on configuration.
type Factory struct {
	log zerolog.Logger
}

// NewFactory creates a new backend factory.
func NewFactory(log zerolog.Logger) *Factory {
	return &Factory{log: log}
}

// NewRecordStore opens the record store selected by cfg.RecordStore.
func (f *Factory) NewRecordStore(ctx context.Context, cfg config.Config) (recordstore.Store, error) {
	switch cfg.RecordStore {
	case config.RecordStoreBigQuery:
		store, err := bqstore.NewStore(ctx, cfg.GCPProject, cfg.BigQueryDataset, cfg.BigQueryTable)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize BigQuery store: %w", err)
		}
		f.log.Info().
			Str("project", cfg.GCPProject).
			Str("dataset", cfg.BigQueryDataset).
			Str("table", cfg.BigQueryTable).
			Msg("Initialized BigQuery record store")
		return store, nil

	case config.RecordStoreDynamoDB:
		store, err := ddbstore.NewStore(ctx, cfg.AWSRegion, cfg.DynamoDBTable, cfg.DynamoDBEndpoint)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize DynamoDB store: %w", err)
		}
		f.log.Info().
			Str("region", cfg.AWSRegion).
			Str("table", cfg.DynamoDBTable).
			Msg("Initialized DynamoDB record store")
		return store, nil

	case config.RecordStorePostgres:
		store, err := pgstore.NewStore(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize Postgres store: %w", err)
		}
		f.log.Info().Msg("Initialized Postgres record store")
		return store, nil

	case config.RecordStoreSQLite:
		store, err := sqlitestore.NewStore(cfg.SQLitePath)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize SQLite store: %w", err)
		}
		f.log.Info().Str("db_path", cfg.SQLitePath).Msg("Initialized SQLite record store")
		return store, nil

	case config.RecordStoreMemory:
		f.log.Warn().Msg("Using in-memory record store; records are lost on exit")
		return recordstore.NewMemoryStore(), nil

	default:
		return nil, fmt.Errorf("unsupported record store: %s", cfg.RecordStore)
	}
}

// NewExtractor connects to the Gemini API and returns an extractor using the
// configured model settings.
func (f *Factory) NewExtractor(ctx context.Context, cfg config.Config) (*extractor.Extractor, error) {
	client, err := extractor.NewGenAIClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize genai client: %w", err)
	}
	f.log.Info().
		Str("model", cfg.ModelName).
		Int("max_output_tokens", cfg.ModelMaxOutputTokens).
		Msg("Initialized email extractor")
	return extractor.New(client.Models,
		extractor.WithModel(cfg.ModelName),
		extractor.WithMaxOutputTokens(cfg.ModelMaxOutputTokens),
	), nil
}
