package dynamodb

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/shopspring/decimal"

	"github.com/Diego-II/expense-tracker-api/internal/domain"
	"github.com/Diego-II/expense-tracker-api/internal/recordstore"
)

// MockAPI is a mock implementation of API for testing.
type MockAPI struct {
	PutItemFunc       func(ctx context.Context, params *dynamodb.PutItemInput) (*dynamodb.PutItemOutput, error)
	CreateTableFunc   func(ctx context.Context, params *dynamodb.CreateTableInput) (*dynamodb.CreateTableOutput, error)
	DescribeTableFunc func(ctx context.Context, params *dynamodb.DescribeTableInput) (*dynamodb.DescribeTableOutput, error)
}

func (m *MockAPI) PutItem(ctx context.Context, params *dynamodb.PutItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error) {
	if m.PutItemFunc != nil {
		return m.PutItemFunc(ctx, params)
	}
	return &dynamodb.PutItemOutput{}, nil
}

func (m *MockAPI) CreateTable(ctx context.Context, params *dynamodb.CreateTableInput, _ ...func(*dynamodb.Options)) (*dynamodb.CreateTableOutput, error) {
	if m.CreateTableFunc != nil {
		return m.CreateTableFunc(ctx, params)
	}
	return &dynamodb.CreateTableOutput{}, nil
}

func (m *MockAPI) DescribeTable(ctx context.Context, params *dynamodb.DescribeTableInput, _ ...func(*dynamodb.Options)) (*dynamodb.DescribeTableOutput, error) {
	if m.DescribeTableFunc != nil {
		return m.DescribeTableFunc(ctx, params)
	}
	return &dynamodb.DescribeTableOutput{Table: &types.TableDescription{TableStatus: types.TableStatusActive}}, nil
}

func record(card *string, amount decimal.NullDecimal) *domain.ExpenseRecord {
	at := time.Date(2024, time.December, 31, 23, 59, 59, 0, time.UTC)
	return domain.NewExpenseRecord("id-7", at, domain.ExpenseFields{
		Amount:   amount,
		Merchant: "Coffee, Inc.",
		Name:     "Beans",
		Card:     card,
	}, "")
}

func TestPutExpense(t *testing.T) {
	var got *dynamodb.PutItemInput
	api := &MockAPI{PutItemFunc: func(ctx context.Context, params *dynamodb.PutItemInput) (*dynamodb.PutItemOutput, error) {
		got = params
		return &dynamodb.PutItemOutput{}, nil
	}}
	card := "debit"
	store := NewStoreWithClient(api, "ExpensesTable")

	err := store.PutExpense(context.Background(), record(&card, decimal.NewNullDecimal(decimal.RequireFromString("1234.50"))))
	if err != nil {
		t.Fatalf("PutExpense() error = %v", err)
	}

	if aws.ToString(got.TableName) != "ExpensesTable" {
		t.Errorf("TableName = %q", aws.ToString(got.TableName))
	}
	item := got.Item
	if n, ok := item["amount"].(*types.AttributeValueMemberN); !ok || n.Value != "1234.5" {
		t.Errorf("amount = %#v", item["amount"])
	}
	if s, ok := item["card"].(*types.AttributeValueMemberS); !ok || s.Value != "debit" {
		t.Errorf("card = %#v", item["card"])
	}
	for k, want := range map[string]string{"id": "id-7", "year": "2024", "month": "12", "timestamp": "2024-12-31T23:59:59.000Z", "source": ""} {
		s, ok := item[k].(*types.AttributeValueMemberS)
		if !ok || s.Value != want {
			t.Errorf("%s = %#v, want %q", k, item[k], want)
		}
	}
}

func TestPutExpense_NullCardAndAmount(t *testing.T) {
	var got *dynamodb.PutItemInput
	api := &MockAPI{PutItemFunc: func(ctx context.Context, params *dynamodb.PutItemInput) (*dynamodb.PutItemOutput, error) {
		got = params
		return &dynamodb.PutItemOutput{}, nil
	}}

	if err := NewStoreWithClient(api, "t").PutExpense(context.Background(), record(nil, decimal.NullDecimal{})); err != nil {
		t.Fatalf("PutExpense() error = %v", err)
	}
	for _, k := range []string{"card", "amount"} {
		if _, ok := got.Item[k].(*types.AttributeValueMemberNULL); !ok {
			t.Errorf("%s = %#v, want NULL", k, got.Item[k])
		}
	}
}

func TestPutExpense_Error(t *testing.T) {
	api := &MockAPI{PutItemFunc: func(ctx context.Context, params *dynamodb.PutItemInput) (*dynamodb.PutItemOutput, error) {
		return nil, errors.New("throttled")
	}}

	err := NewStoreWithClient(api, "t").PutExpense(context.Background(), record(nil, decimal.NullDecimal{}))
	if !errors.Is(err, recordstore.ErrStorageWrite) {
		t.Errorf("PutExpense() error = %v, want ErrStorageWrite", err)
	}
}

func TestEnsureTable_Exists(t *testing.T) {
	api := &MockAPI{CreateTableFunc: func(ctx context.Context, params *dynamodb.CreateTableInput) (*dynamodb.CreateTableOutput, error) {
		t.Fatal("CreateTable should not be called for an existing table")
		return nil, nil
	}}

	created, err := NewStoreWithClient(api, "t").EnsureTable(context.Background(), time.Second)
	if err != nil || created {
		t.Errorf("EnsureTable() = %v, %v", created, err)
	}
}

func TestEnsureTable_DescribeError(t *testing.T) {
	api := &MockAPI{DescribeTableFunc: func(ctx context.Context, params *dynamodb.DescribeTableInput) (*dynamodb.DescribeTableOutput, error) {
		return nil, errors.New("access denied")
	}}

	if _, err := NewStoreWithClient(api, "t").EnsureTable(context.Background(), time.Second); err == nil {
		t.Error("EnsureTable() should fail when the table cannot be described")
	}
}

func TestCreateTableInput(t *testing.T) {
	in := CreateTableInput("ExpensesTable")

	if len(in.KeySchema) != 1 || aws.ToString(in.KeySchema[0].AttributeName) != "id" {
		t.Errorf("KeySchema = %+v", in.KeySchema)
	}
	if len(in.GlobalSecondaryIndexes) != 1 {
		t.Fatalf("got %d indexes, want 1", len(in.GlobalSecondaryIndexes))
	}
	gsi := in.GlobalSecondaryIndexes[0]
	if aws.ToString(gsi.IndexName) != ByDateIndex {
		t.Errorf("IndexName = %q", aws.ToString(gsi.IndexName))
	}
	if aws.ToString(gsi.KeySchema[0].AttributeName) != "year" || gsi.KeySchema[0].KeyType != types.KeyTypeHash {
		t.Errorf("index hash key = %+v", gsi.KeySchema[0])
	}
	if aws.ToString(gsi.KeySchema[1].AttributeName) != "month" || gsi.KeySchema[1].KeyType != types.KeyTypeRange {
		t.Errorf("index range key = %+v", gsi.KeySchema[1])
	}
	if gsi.Projection.ProjectionType != types.ProjectionTypeAll {
		t.Errorf("ProjectionType = %v", gsi.Projection.ProjectionType)
	}
}
