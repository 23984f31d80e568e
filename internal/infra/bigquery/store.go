package bigquery

import (
	"context"
	"fmt"

	"cloud.google.com/go/bigquery"
	"google.golang.org/api/option"

	"github.com/Diego-II/expense-tracker-api/internal/domain"
	"github.com/Diego-II/expense-tracker-api/internal/recordstore"
)

// Store is the BigQuery implementation of recordstore.Store. It holds a
// shared BigQuery client to avoid creating a new connection for each
// operation.
type Store struct {
	client   *bigquery.Client
	inserter rowInserter
}

// NewStore creates a Store writing to projectID.datasetID.table.
func NewStore(ctx context.Context, projectID, datasetID, table string, opts ...option.ClientOption) (*Store, error) {
	client, err := bigquery.NewClient(ctx, projectID, opts...)
	if err != nil {
		return nil, fmt.Errorf("NewStore: creating client: %w", err)
	}
	return NewStoreWithClient(client, projectID, datasetID, table), nil
}

// NewStoreWithClient creates a Store over an existing client.
func NewStoreWithClient(client *bigquery.Client, projectID, datasetID, table string) *Store {
	return &Store{
		client:   client,
		inserter: client.DatasetInProject(projectID, datasetID).Table(table).Inserter(),
	}
}

// Close closes the BigQuery client connection. This should be called when
// the store is no longer needed to release resources.
func (s *Store) Close() error {
	if s.client != nil {
		return s.client.Close()
	}
	return nil
}

// PutExpense streams one record into the expenses table.
func (s *Store) PutExpense(ctx context.Context, rec *domain.ExpenseRecord) error {
	return insertExpense(ctx, s.inserter, ExpenseRowFromRecord(rec))
}

var _ recordstore.Store = (*Store)(nil)
