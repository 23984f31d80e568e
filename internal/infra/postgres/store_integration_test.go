//go:build integration

package postgres

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/testcontainers/testcontainers-go"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"

	"github.com/Diego-II/expense-tracker-api/internal/domain"
	"github.com/Diego-II/expense-tracker-api/internal/recordstore"
)

func startPostgres(t *testing.T) string {
	t.Helper()
	ctx := context.Background()

	ctr, err := tcpostgres.Run(ctx, "postgres:16-alpine",
		tcpostgres.WithDatabase("expenses"),
		tcpostgres.WithUsername("expenses"),
		tcpostgres.WithPassword("expenses"),
		tcpostgres.BasicWaitStrategies(),
	)
	testcontainers.CleanupContainer(t, ctr)
	if err != nil {
		t.Fatalf("start postgres container: %v", err)
	}

	dsn, err := ctr.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		t.Fatalf("connection string: %v", err)
	}
	return dsn
}

func TestStore_PutExpense(t *testing.T) {
	dsn := startPostgres(t)
	ctx := context.Background()

	if err := RunMigrations(dsn); err != nil {
		t.Fatalf("RunMigrations() error = %v", err)
	}
	// Applying twice is a no-op.
	if err := RunMigrations(dsn); err != nil {
		t.Fatalf("second RunMigrations() error = %v", err)
	}

	store, err := NewStore(ctx, dsn)
	if err != nil {
		t.Fatalf("NewStore() error = %v", err)
	}
	defer store.Close()

	at := time.Date(2024, time.March, 7, 18, 4, 5, 123000000, time.UTC)
	card := "credit"
	withCard := domain.NewExpenseRecord("id-1", at, domain.ExpenseFields{
		Amount:   decimal.NewNullDecimal(decimal.RequireFromString("1234.50")),
		Merchant: "Coffee, Inc.",
		Name:     "Beans",
		Card:     &card,
	}, "")
	noCard := domain.NewExpenseRecord("id-2", at.Add(time.Minute), domain.ExpenseFields{Merchant: "Cash"}, domain.SourceEmail)

	for _, rec := range []*domain.ExpenseRecord{withCard, noCard} {
		if err := store.PutExpense(ctx, rec); err != nil {
			t.Fatalf("PutExpense(%s) error = %v", rec.ID, err)
		}
	}

	rows, err := store.pool.Query(ctx,
		`SELECT id, amount::text, card, source FROM expenses WHERE year = $1 AND month = $2 ORDER BY timestamp`,
		"2024", "03")
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	defer rows.Close()

	type result struct {
		id     string
		amount *string
		card   *string
		source string
	}
	var got []result
	for rows.Next() {
		var r result
		if err := rows.Scan(&r.id, &r.amount, &r.card, &r.source); err != nil {
			t.Fatalf("scan: %v", err)
		}
		got = append(got, r)
	}
	if err := rows.Err(); err != nil {
		t.Fatalf("rows: %v", err)
	}

	if len(got) != 2 {
		t.Fatalf("got %d rows, want 2", len(got))
	}
	if got[0].amount == nil || *got[0].amount != "1234.5" || got[0].card == nil || *got[0].card != "credit" {
		t.Errorf("first row = %+v", got[0])
	}
	if got[1].amount != nil || got[1].card != nil || got[1].source != "email" {
		t.Errorf("second row should have NULL amount and card: %+v", got[1])
	}

	// Duplicate ids are rejected by the primary key.
	err = store.PutExpense(ctx, withCard)
	if !errors.Is(err, recordstore.ErrStorageWrite) {
		t.Errorf("duplicate PutExpense() error = %v, want ErrStorageWrite", err)
	}
}
