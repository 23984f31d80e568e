package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// TimestampLayout renders instants as ISO-8601 UTC with millisecond precision,
// e.g. 2024-03-07T18:04:05.123Z.
const TimestampLayout = "2006-01-02T15:04:05.000Z07:00"

// SourceEmail tags records produced by the email ingest path.
const SourceEmail = "email"

// Card kinds the extractor may report.
const (
	CardCredit  = "credit"
	CardDebit   = "debit"
	CardAccount = "account"
)

// ValidCard reports whether card is one of the known card kinds.
func ValidCard(card string) bool {
	switch card {
	case CardCredit, CardDebit, CardAccount:
		return true
	}
	return false
}

// ExpenseInput is the JSON body accepted by POST /expenses. Every field is
// optional: only the type shape is enforced by decoding.
type ExpenseInput struct {
	Amount   decimal.NullDecimal `json:"amount"`
	Merchant *string             `json:"merchant"`
	Name     *string             `json:"name"`
	Card     *string             `json:"card"`
}

// Fields converts the input into record fields.
func (in ExpenseInput) Fields() ExpenseFields {
	return ExpenseFields{
		Amount:   in.Amount,
		Merchant: deref(in.Merchant),
		Name:     deref(in.Name),
		Card:     normalizeCard(in.Card),
	}
}

// ExpenseFields are the user supplied parts of an expense.
type ExpenseFields struct {
	Amount   decimal.NullDecimal
	Merchant string
	Name     string
	// Card is nil when no card was given; an empty string is treated as absent.
	Card *string
}

// ExpenseRecord is one persisted expense. Year and Month are not stored on the
// struct; they are always derived from Timestamp.
type ExpenseRecord struct {
	ID        string
	Amount    decimal.NullDecimal
	Merchant  string
	Name      string
	Card      *string
	Timestamp time.Time
	Source    string
}

// NewExpenseRecord builds a record stamped at the given instant. The timestamp
// is normalized to UTC and truncated to milliseconds so that the stored value
// and its textual form agree.
func NewExpenseRecord(id string, at time.Time, f ExpenseFields, source string) *ExpenseRecord {
	return &ExpenseRecord{
		ID:        id,
		Amount:    f.Amount,
		Merchant:  f.Merchant,
		Name:      f.Name,
		Card:      normalizeCard(f.Card),
		Timestamp: NormalizeTime(at),
		Source:    source,
	}
}

// Year returns the 4-digit UTC year of the record timestamp.
func (r *ExpenseRecord) Year() string {
	year, _ := Bucket(r.Timestamp)
	return year
}

// Month returns the zero-padded UTC month of the record timestamp.
func (r *ExpenseRecord) Month() string {
	_, month := Bucket(r.Timestamp)
	return month
}

// TimestampString formats the record timestamp with TimestampLayout.
func (r *ExpenseRecord) TimestampString() string {
	return FormatTimestamp(r.Timestamp)
}

// NormalizeTime converts t to UTC with millisecond precision.
func NormalizeTime(t time.Time) time.Time {
	return t.UTC().Truncate(time.Millisecond)
}

// FormatTimestamp formats t in UTC with TimestampLayout.
func FormatTimestamp(t time.Time) string {
	return t.UTC().Format(TimestampLayout)
}

// Bucket returns the UTC calendar year ("2024") and month ("03") of t.
func Bucket(t time.Time) (year, month string) {
	u := t.UTC()
	return u.Format("2006"), u.Format("01")
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func normalizeCard(card *string) *string {
	if card == nil || *card == "" {
		return nil
	}
	c := *card
	return &c
}
