// Package dynamodb stores expense records in a DynamoDB table keyed by id
// with a byDate global secondary index on (year, month).
package dynamodb

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/Diego-II/expense-tracker-api/internal/domain"
	"github.com/Diego-II/expense-tracker-api/internal/recordstore"
)

// ByDateIndex is the name of the (year, month) global secondary index.
const ByDateIndex = "byDate"

// API is the subset of the DynamoDB client used by Store.
type API interface {
	PutItem(ctx context.Context, params *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	CreateTable(ctx context.Context, params *dynamodb.CreateTableInput, optFns ...func(*dynamodb.Options)) (*dynamodb.CreateTableOutput, error)
	DescribeTable(ctx context.Context, params *dynamodb.DescribeTableInput, optFns ...func(*dynamodb.Options)) (*dynamodb.DescribeTableOutput, error)
}

// expenseItem is one item of the expenses table. amount and card are set
// separately so that absent values are stored as NULL.
type expenseItem struct {
	ID        string `dynamodbav:"id"`
	Merchant  string `dynamodbav:"merchant"`
	Name      string `dynamodbav:"name"`
	Timestamp string `dynamodbav:"timestamp"`
	Year      string `dynamodbav:"year"`
	Month     string `dynamodbav:"month"`
	Source    string `dynamodbav:"source"`
}

// Store is the DynamoDB implementation of recordstore.Store.
type Store struct {
	db    API
	table string
}

// NewStore loads the default AWS configuration for region and creates a
// Store for table. A non-empty endpoint points the client at a local
// DynamoDB.
func NewStore(ctx context.Context, region, table, endpoint string) (*Store, error) {
	cfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("load AWS config: %w", err)
	}
	client := dynamodb.NewFromConfig(cfg, func(o *dynamodb.Options) {
		if endpoint != "" {
			o.BaseEndpoint = aws.String(endpoint)
		}
	})
	return NewStoreWithClient(client, table), nil
}

// NewStoreWithClient creates a Store over an existing client.
func NewStoreWithClient(db API, table string) *Store {
	return &Store{db: db, table: table}
}

// PutExpense writes rec as a single item.
func (s *Store) PutExpense(ctx context.Context, rec *domain.ExpenseRecord) error {
	av, err := marshalExpense(rec)
	if err != nil {
		return fmt.Errorf("%w: marshal expense %s: %w", recordstore.ErrStorageWrite, rec.ID, err)
	}

	_, err = s.db.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(s.table),
		Item:      av,
	})
	if err != nil {
		return fmt.Errorf("%w: put expense %s: %w", recordstore.ErrStorageWrite, rec.ID, err)
	}
	return nil
}

// Close implements recordstore.Store. The SDK client holds no resources
// that need releasing.
func (s *Store) Close() error { return nil }

func marshalExpense(rec *domain.ExpenseRecord) (map[string]types.AttributeValue, error) {
	av, err := attributevalue.MarshalMap(expenseItem{
		ID:        rec.ID,
		Merchant:  rec.Merchant,
		Name:      rec.Name,
		Timestamp: rec.TimestampString(),
		Year:      rec.Year(),
		Month:     rec.Month(),
		Source:    rec.Source,
	})
	if err != nil {
		return nil, err
	}

	if rec.Amount.Valid {
		av["amount"] = &types.AttributeValueMemberN{Value: rec.Amount.Decimal.String()}
	} else {
		av["amount"] = &types.AttributeValueMemberNULL{Value: true}
	}
	if rec.Card != nil {
		av["card"] = &types.AttributeValueMemberS{Value: *rec.Card}
	} else {
		av["card"] = &types.AttributeValueMemberNULL{Value: true}
	}
	return av, nil
}

// EnsureTable creates the expenses table with its byDate index when it does
// not exist yet, and waits until it is active.
func (s *Store) EnsureTable(ctx context.Context, wait time.Duration) (created bool, err error) {
	_, err = s.db.DescribeTable(ctx, &dynamodb.DescribeTableInput{TableName: aws.String(s.table)})
	if err == nil {
		return false, nil
	}
	var notFound *types.ResourceNotFoundException
	if !errors.As(err, &notFound) {
		return false, fmt.Errorf("describe table %s: %w", s.table, err)
	}

	_, err = s.db.CreateTable(ctx, CreateTableInput(s.table))
	if err != nil {
		var inUse *types.ResourceInUseException
		if errors.As(err, &inUse) {
			return false, nil
		}
		return false, fmt.Errorf("create table %s: %w", s.table, err)
	}

	waiter := dynamodb.NewTableExistsWaiter(s.db)
	if err := waiter.Wait(ctx, &dynamodb.DescribeTableInput{TableName: aws.String(s.table)}, wait); err != nil {
		return true, fmt.Errorf("wait for table %s: %w", s.table, err)
	}
	return true, nil
}

// CreateTableInput describes the expenses table: hash key id, on-demand
// billing, and the byDate index (year hash, month range, all attributes).
func CreateTableInput(table string) *dynamodb.CreateTableInput {
	return &dynamodb.CreateTableInput{
		TableName:   aws.String(table),
		BillingMode: types.BillingModePayPerRequest,
		AttributeDefinitions: []types.AttributeDefinition{
			{AttributeName: aws.String("id"), AttributeType: types.ScalarAttributeTypeS},
			{AttributeName: aws.String("year"), AttributeType: types.ScalarAttributeTypeS},
			{AttributeName: aws.String("month"), AttributeType: types.ScalarAttributeTypeS},
		},
		KeySchema: []types.KeySchemaElement{
			{AttributeName: aws.String("id"), KeyType: types.KeyTypeHash},
		},
		GlobalSecondaryIndexes: []types.GlobalSecondaryIndex{
			{
				IndexName: aws.String(ByDateIndex),
				KeySchema: []types.KeySchemaElement{
					{AttributeName: aws.String("year"), KeyType: types.KeyTypeHash},
					{AttributeName: aws.String("month"), KeyType: types.KeyTypeRange},
				},
				Projection: &types.Projection{ProjectionType: types.ProjectionTypeAll},
			},
		},
	}
}

var _ recordstore.Store = (*Store)(nil)
