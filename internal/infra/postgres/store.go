// Package postgres provides a PostgreSQL record store for expenses.
package postgres

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"time"

	"github.com/golang-migrate/migrate/v4"
	pgxmigrate "github.com/golang-migrate/migrate/v4/database/pgx/v5"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/jackc/pgx/v5/pgxpool"
	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/Diego-II/expense-tracker-api/internal/domain"
	"github.com/Diego-II/expense-tracker-api/internal/recordstore"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

const insertExpenseSQL = `
	INSERT INTO expenses (id, amount, merchant, name, card, timestamp, year, month, source)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`

// Store writes expenses to PostgreSQL.
type Store struct {
	pool *pgxpool.Pool
}

// NewStore connects to databaseURL and verifies the connection.
func NewStore(ctx context.Context, databaseURL string) (*Store, error) {
	poolConfig, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("parsing connection string: %w", err)
	}

	poolConfig.MaxConns = 10
	poolConfig.MaxConnLifetime = 1 * time.Hour
	poolConfig.MaxConnIdleTime = 30 * time.Minute
	poolConfig.HealthCheckPeriod = 1 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("creating connection pool: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}

	return &Store{pool: pool}, nil
}

// PutExpense inserts rec. A NULL amount or card is stored as SQL NULL.
func (s *Store) PutExpense(ctx context.Context, rec *domain.ExpenseRecord) error {
	_, err := s.pool.Exec(ctx, insertExpenseSQL,
		rec.ID,
		rec.Amount,
		rec.Merchant,
		rec.Name,
		rec.Card,
		rec.Timestamp,
		rec.Year(),
		rec.Month(),
		rec.Source,
	)
	if err != nil {
		return fmt.Errorf("%w: insert expense %s: %w", recordstore.ErrStorageWrite, rec.ID, err)
	}
	return nil
}

// Close closes the connection pool.
func (s *Store) Close() error {
	s.pool.Close()
	return nil
}

// RunMigrations applies the embedded migrations to databaseURL.
func RunMigrations(databaseURL string) error {
	// A separate connection keeps migration locks off the store's pool.
	db, err := sql.Open("pgx", databaseURL)
	if err != nil {
		return fmt.Errorf("open migration database: %w", err)
	}
	defer db.Close()

	driver, err := pgxmigrate.WithInstance(db, &pgxmigrate.Config{})
	if err != nil {
		return fmt.Errorf("create pgx driver: %w", err)
	}

	d, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("create iofs source: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", d, "pgx5", driver)
	if err != nil {
		return fmt.Errorf("create migrate instance: %w", err)
	}
	defer m.Close()

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("run migrations: %w", err)
	}

	return nil
}

var _ recordstore.Store = (*Store)(nil)
