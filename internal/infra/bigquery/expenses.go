package bigquery

import (
	"time"

	"cloud.google.com/go/bigquery"
	"cloud.google.com/go/civil"

	"github.com/Diego-II/expense-tracker-api/internal/domain"
)

// ExpenseRow mirrors one row of the expenses table.
type ExpenseRow struct {
	ID string `bigquery:"id"` // REQUIRED

	Amount   bigquery.NullString `bigquery:"amount"`   // NULLABLE NUMERIC, sent as decimal text
	Merchant string              `bigquery:"merchant"` // REQUIRED STRING
	Name     string              `bigquery:"name"`     // REQUIRED STRING
	Card     bigquery.NullString `bigquery:"card"`     // NULLABLE

	Timestamp time.Time  `bigquery:"timestamp"`    // REQUIRED
	Date      civil.Date `bigquery:"expense_date"` // REQUIRED, UTC date of Timestamp, partitioning column
	Year      string     `bigquery:"year"`         // REQUIRED, clustering column
	Month     string     `bigquery:"month"`        // REQUIRED, clustering column

	Source string `bigquery:"source"` // empty for HTTP
}

// ExpenseRowFromRecord converts a domain record into a table row.
func ExpenseRowFromRecord(rec *domain.ExpenseRecord) *ExpenseRow {
	row := &ExpenseRow{
		ID:        rec.ID,
		Merchant:  rec.Merchant,
		Name:      rec.Name,
		Timestamp: rec.Timestamp,
		Date:      civil.DateOf(rec.Timestamp.UTC()),
		Year:      rec.Year(),
		Month:     rec.Month(),
		Source:    rec.Source,
	}
	if rec.Amount.Valid {
		row.Amount = bigquery.NullString{StringVal: rec.Amount.Decimal.String(), Valid: true}
	}
	if rec.Card != nil {
		row.Card = bigquery.NullString{StringVal: *rec.Card, Valid: true}
	}
	return row
}

// Save implements bigquery.ValueSaver. Null columns are sent as JSON null and
// the record id doubles as the streaming insert id.
func (r *ExpenseRow) Save() (map[string]bigquery.Value, string, error) {
	row := map[string]bigquery.Value{
		"id":           r.ID,
		"amount":       nil,
		"merchant":     r.Merchant,
		"name":         r.Name,
		"card":         nil,
		"timestamp":    r.Timestamp.UTC().Format(domain.TimestampLayout),
		"expense_date": r.Date.String(),
		"year":         r.Year,
		"month":        r.Month,
		"source":       r.Source,
	}
	if r.Amount.Valid {
		row["amount"] = r.Amount.StringVal
	}
	if r.Card.Valid {
		row["card"] = r.Card.StringVal
	}
	return row, r.ID, nil
}

var _ bigquery.ValueSaver = (*ExpenseRow)(nil)
