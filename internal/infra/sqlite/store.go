// Package sqlite provides a local single-file record store for expenses.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"

	"github.com/Diego-II/expense-tracker-api/internal/domain"
	"github.com/Diego-II/expense-tracker-api/internal/recordstore"
)

// Store writes expenses to a SQLite database.
type Store struct {
	db *sql.DB
}

// NewStore opens (creating if needed) the database at dbPath and applies
// migrations.
func NewStore(dbPath string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if err := RunMigrations(dbPath); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &Store{db: db}, nil
}

// PutExpense inserts rec. The amount is kept as decimal text.
func (s *Store) PutExpense(ctx context.Context, rec *domain.ExpenseRecord) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO expenses (id, amount, merchant, name, card, timestamp, year, month, source)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.ID,
		rec.Amount,
		rec.Merchant,
		rec.Name,
		rec.Card,
		rec.TimestampString(),
		rec.Year(),
		rec.Month(),
		rec.Source,
	)
	if err != nil {
		return fmt.Errorf("%w: insert expense %s: %w", recordstore.ErrStorageWrite, rec.ID, err)
	}
	return nil
}

// Close closes the database.
func (s *Store) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

var _ recordstore.Store = (*Store)(nil)
