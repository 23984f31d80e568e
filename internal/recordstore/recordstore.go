// Package recordstore defines the keyed store that holds one entry per
// expense, indexed by id with a secondary (year, month) index.
package recordstore

import (
	"context"
	"errors"

	"github.com/Diego-II/expense-tracker-api/internal/domain"
)

// ErrStorageWrite is returned by every backend when a put fails.
var ErrStorageWrite = errors.New("record store write failed")

// Store persists expense records. Implementations insert the record under its
// id, including the derived year and month, and store a missing card as NULL.
type Store interface {
	PutExpense(ctx context.Context, rec *domain.ExpenseRecord) error
	Close() error
}
