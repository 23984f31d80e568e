package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/Diego-II/expense-tracker-api/internal/domain"
	"github.com/Diego-II/expense-tracker-api/internal/recordstore"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := NewStore(filepath.Join(t.TempDir(), "nested", "expenses.db"))
	if err != nil {
		t.Fatalf("NewStore() error = %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func TestStore_PutExpense(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	at := time.Date(2024, time.March, 7, 18, 4, 5, 123000000, time.UTC)
	card := "account"
	rec := domain.NewExpenseRecord("id-1", at, domain.ExpenseFields{
		Amount:   decimal.NewNullDecimal(decimal.RequireFromString("0.10")),
		Merchant: "Bob \"The Banker\"",
		Name:     "Fee",
		Card:     &card,
	}, domain.SourceEmail)

	if err := store.PutExpense(ctx, rec); err != nil {
		t.Fatalf("PutExpense() error = %v", err)
	}

	var (
		amount, gotCard      sql.NullString
		merchant, ts, source string
	)
	err := store.db.QueryRowContext(ctx,
		`SELECT amount, merchant, card, timestamp, source FROM expenses WHERE year = ? AND month = ?`,
		"2024", "03").Scan(&amount, &merchant, &gotCard, &ts, &source)
	if err != nil {
		t.Fatalf("query: %v", err)
	}

	if amount.String != "0.1" {
		t.Errorf("amount = %q, want 0.1", amount.String)
	}
	if merchant != `Bob "The Banker"` || gotCard.String != "account" || source != "email" {
		t.Errorf("row = %q %q %q", merchant, gotCard.String, source)
	}
	if ts != "2024-03-07T18:04:05.123Z" {
		t.Errorf("timestamp = %q", ts)
	}
}

func TestStore_NullCardAndAmount(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	rec := domain.NewExpenseRecord("id-2", time.Now(), domain.ExpenseFields{Merchant: "Cash"}, "")
	if err := store.PutExpense(ctx, rec); err != nil {
		t.Fatalf("PutExpense() error = %v", err)
	}

	var amount, card sql.NullString
	if err := store.db.QueryRowContext(ctx, `SELECT amount, card FROM expenses WHERE id = ?`, "id-2").Scan(&amount, &card); err != nil {
		t.Fatalf("query: %v", err)
	}
	if amount.Valid || card.Valid {
		t.Errorf("amount = %+v, card = %+v, want NULL", amount, card)
	}
}

func TestStore_DuplicateID(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	rec := domain.NewExpenseRecord("dup", time.Now(), domain.ExpenseFields{}, "")
	if err := store.PutExpense(ctx, rec); err != nil {
		t.Fatalf("PutExpense() error = %v", err)
	}
	if err := store.PutExpense(ctx, rec); !errors.Is(err, recordstore.ErrStorageWrite) {
		t.Errorf("duplicate PutExpense() error = %v, want ErrStorageWrite", err)
	}
}

func TestRunMigrations_Idempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "expenses.db")
	if err := RunMigrations(path); err != nil {
		t.Fatalf("first RunMigrations() error = %v", err)
	}
	if err := RunMigrations(path); err != nil {
		t.Fatalf("second RunMigrations() error = %v", err)
	}
}
