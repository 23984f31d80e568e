package bigquery

import (
	"context"
	"fmt"

	"github.com/Diego-II/expense-tracker-api/internal/recordstore"
)

// rowInserter is the subset of *bigquery.Inserter used by the store.
type rowInserter interface {
	Put(ctx context.Context, src interface{}) error
}

func insertExpense(ctx context.Context, inserter rowInserter, row *ExpenseRow) error {
	if err := inserter.Put(ctx, row); err != nil {
		return fmt.Errorf("%w: InsertExpense: inserting row %s: %w", recordstore.ErrStorageWrite, row.ID, err)
	}
	return nil
}
