// Package config loads service configuration from the environment.
package config

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/v2"
)

// Record store backends.
const (
	RecordStoreBigQuery = "bigquery"
	RecordStoreDynamoDB = "dynamodb"
	RecordStorePostgres = "postgres"
	RecordStoreSQLite   = "sqlite"
	RecordStoreMemory   = "memory"
)

// Queue backends for email events.
const (
	QueueMemory = "memory"
	QueueAMQP   = "amqp"
)

// Config holds the application configuration loaded from environment variables.
type Config struct {
	// Port is the HTTP listen port.
	// Environment variable: PORT
	Port string `koanf:"PORT"`

	// LogLevel is a zerolog level name.
	// Environment variable: LOG_LEVEL
	LogLevel string `koanf:"LOG_LEVEL"`

	// LogFormat is "console" or "json".
	// Environment variable: LOG_FORMAT
	LogFormat string `koanf:"LOG_FORMAT"`

	// ExpensesBucket is the GCS bucket holding the monthly CSV ledgers.
	// Environment variable: EXPENSES_BUCKET
	ExpensesBucket string `koanf:"EXPENSES_BUCKET"`

	// LedgerConditionalWrites makes ledger appends fail on a concurrent update
	// instead of silently overwriting it.
	// Environment variable: LEDGER_CONDITIONAL_WRITES
	LedgerConditionalWrites bool `koanf:"LEDGER_CONDITIONAL_WRITES"`

	// RecordStore selects the expense record backend.
	// Environment variable: RECORD_STORE
	RecordStore string `koanf:"RECORD_STORE"`

	// GCPProject is used by the BigQuery record store.
	// Environment variable: GOOGLE_CLOUD_PROJECT
	GCPProject string `koanf:"GOOGLE_CLOUD_PROJECT"`

	// BigQueryDataset and BigQueryTable locate the expenses table.
	// Environment variables: BIGQUERY_DATASET, BIGQUERY_TABLE
	BigQueryDataset string `koanf:"BIGQUERY_DATASET"`
	BigQueryTable   string `koanf:"BIGQUERY_TABLE"`

	// DynamoDB record store settings.
	// Environment variables: DYNAMODB_TABLE, AWS_REGION, DYNAMODB_ENDPOINT
	DynamoDBTable    string `koanf:"DYNAMODB_TABLE"`
	AWSRegion        string `koanf:"AWS_REGION"`
	DynamoDBEndpoint string `koanf:"DYNAMODB_ENDPOINT"`

	// DatabaseURL is the Postgres connection string.
	// Environment variable: DATABASE_URL
	DatabaseURL string `koanf:"DATABASE_URL"`

	// SQLitePath is the database file for the sqlite record store.
	// Environment variable: SQLITE_DB_PATH
	SQLitePath string `koanf:"SQLITE_DB_PATH"`

	// ModelName is the Gemini model used for email extraction.
	// Environment variable: GENAI_MODEL
	ModelName string `koanf:"GENAI_MODEL"`

	// ModelMaxOutputTokens caps the extraction response.
	// Environment variable: GENAI_MAX_OUTPUT_TOKENS
	ModelMaxOutputTokens int `koanf:"GENAI_MAX_OUTPUT_TOKENS"`

	// QueueBackend selects how email events are delivered.
	// Environment variable: QUEUE_BACKEND
	QueueBackend string `koanf:"QUEUE_BACKEND"`

	// QueueMaxRetries bounds redelivery in the in-memory queue.
	// Environment variable: QUEUE_MAX_RETRIES
	QueueMaxRetries int `koanf:"QUEUE_MAX_RETRIES"`

	// QueueRetryDelay is the base backoff between in-memory redeliveries.
	// Environment variable: QUEUE_RETRY_DELAY
	QueueRetryDelay time.Duration `koanf:"QUEUE_RETRY_DELAY"`

	// AMQP transport settings.
	// Environment variables: AMQP_URL, AMQP_EXCHANGE, AMQP_QUEUE
	AMQPURL      string `koanf:"AMQP_URL"`
	AMQPExchange string `koanf:"AMQP_EXCHANGE"`
	AMQPQueue    string `koanf:"AMQP_QUEUE"`
}

// Defaults returns a Config populated with the built-in defaults.
func Defaults() Config {
	return Config{
		Port:                 "8080",
		LogLevel:             "info",
		LogFormat:            "console",
		RecordStore:          RecordStoreBigQuery,
		BigQueryDataset:      "expenses",
		BigQueryTable:        "expenses",
		DynamoDBTable:        "ExpensesTable",
		AWSRegion:            "us-east-1",
		SQLitePath:           "./data/expenses.db",
		ModelName:            "gemini-2.5-flash",
		ModelMaxOutputTokens: 2000,
		QueueBackend:         QueueMemory,
		QueueMaxRetries:      3,
		QueueRetryDelay:      time.Second,
		AMQPExchange:         "expenses",
		AMQPQueue:            "email_events",
	}
}

// Load reads a local .env file when present and then the process environment.
func Load() (*Config, error) {
	// A missing .env is normal outside local development.
	_ = godotenv.Load()
	return LoadFromEnv()
}

// LoadFromEnv builds the configuration from environment variables over Defaults.
func LoadFromEnv() (*Config, error) {
	k := koanf.New(".")
	if err := k.Load(env.Provider("", ".", nil), nil); err != nil {
		return nil, fmt.Errorf("loading environment: %w", err)
	}

	cfg := Defaults()
	if err := k.UnmarshalWithConf("", &cfg, koanf.UnmarshalConf{Tag: "koanf", FlatPaths: true}); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	return &cfg, nil
}

// JSONLogs reports whether logs should be emitted as JSON.
func (c *Config) JSONLogs() bool {
	return strings.EqualFold(c.LogFormat, "json")
}

// Validate validates the configuration and returns an error if invalid
func (c *Config) Validate() error {
	var errors []string

	if port, err := strconv.Atoi(c.Port); err != nil {
		errors = append(errors, fmt.Sprintf("invalid port '%s': must be a number", c.Port))
	} else if port < 1 || port > 65535 {
		errors = append(errors, fmt.Sprintf("invalid port %d: must be between 1 and 65535", port))
	}

	switch c.RecordStore {
	case RecordStoreBigQuery:
		if c.GCPProject == "" {
			errors = append(errors, "GOOGLE_CLOUD_PROJECT is required when using the bigquery record store")
		}
		if c.BigQueryDataset == "" || c.BigQueryTable == "" {
			errors = append(errors, "BIGQUERY_DATASET and BIGQUERY_TABLE cannot be empty")
		}
	case RecordStoreDynamoDB:
		if c.DynamoDBTable == "" {
			errors = append(errors, "DYNAMODB_TABLE is required when using the dynamodb record store")
		}
	case RecordStorePostgres:
		if c.DatabaseURL == "" {
			errors = append(errors, "DATABASE_URL is required when using the postgres record store")
		}
	case RecordStoreSQLite:
		if c.SQLitePath == "" {
			errors = append(errors, "SQLITE_DB_PATH cannot be empty when using the sqlite record store")
		}
	case RecordStoreMemory:
	default:
		errors = append(errors, fmt.Sprintf("invalid record store '%s': must be one of %v", c.RecordStore,
			[]string{RecordStoreBigQuery, RecordStoreDynamoDB, RecordStorePostgres, RecordStoreSQLite, RecordStoreMemory}))
	}

	switch c.QueueBackend {
	case QueueMemory:
	case QueueAMQP:
		if c.AMQPURL == "" {
			errors = append(errors, "AMQP_URL is required when using the amqp queue backend")
		}
	default:
		errors = append(errors, fmt.Sprintf("invalid queue backend '%s': must be one of %v", c.QueueBackend,
			[]string{QueueMemory, QueueAMQP}))
	}

	if c.AMQPURL != "" {
		if parsedURL, err := url.Parse(c.AMQPURL); err != nil {
			errors = append(errors, fmt.Sprintf("invalid AMQP URL '%s': %v", c.AMQPURL, err))
		} else if parsedURL.Scheme != "amqp" && parsedURL.Scheme != "amqps" {
			errors = append(errors, fmt.Sprintf("invalid AMQP URL scheme '%s': must be 'amqp' or 'amqps'", parsedURL.Scheme))
		}
		if c.AMQPExchange == "" || c.AMQPQueue == "" {
			errors = append(errors, "AMQP exchange and queue names cannot be empty when AMQP URL is provided")
		}
	}

	if c.ModelMaxOutputTokens < 1 {
		errors = append(errors, fmt.Sprintf("invalid max output tokens %d: must be at least 1", c.ModelMaxOutputTokens))
	}
	if c.QueueMaxRetries < 0 {
		errors = append(errors, fmt.Sprintf("invalid queue max retries %d: must not be negative", c.QueueMaxRetries))
	}

	if len(errors) > 0 {
		return fmt.Errorf("configuration validation failed:\n- %s", strings.Join(errors, "\n- "))
	}

	return nil
}

// ValidateForAPI additionally requires the ledger bucket.
func (c *Config) ValidateForAPI() error {
	if err := c.Validate(); err != nil {
		return err
	}
	if c.ExpensesBucket == "" {
		return fmt.Errorf("configuration validation failed:\n- EXPENSES_BUCKET is required")
	}
	return nil
}
