package domain

import (
	"encoding/json"
	"testing"
	"time"
)

func TestBucket(t *testing.T) {
	tokyo := time.FixedZone("JST", 9*60*60)

	tests := []struct {
		name      string
		at        time.Time
		wantYear  string
		wantMonth string
	}{
		{"mid month", time.Date(2024, time.March, 15, 12, 0, 0, 0, time.UTC), "2024", "03"},
		{"december", time.Date(2023, time.December, 31, 23, 59, 59, 0, time.UTC), "2023", "12"},
		// 2024-02-01 05:00 in Tokyo is still January in UTC.
		{"local zone before utc rollover", time.Date(2024, time.February, 1, 5, 0, 0, 0, tokyo), "2024", "01"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			year, month := Bucket(tt.at)
			if year != tt.wantYear || month != tt.wantMonth {
				t.Errorf("Bucket() = %s/%s, want %s/%s", year, month, tt.wantYear, tt.wantMonth)
			}
		})
	}
}

func TestNewExpenseRecord_DerivesYearMonthFromTimestamp(t *testing.T) {
	local := time.FixedZone("CLT", -4*60*60)
	at := time.Date(2024, time.June, 30, 22, 30, 0, 123456789, local)

	rec := NewExpenseRecord("id-1", at, ExpenseFields{Merchant: "Store"}, "")

	if rec.Timestamp.Location() != time.UTC {
		t.Errorf("timestamp location = %v, want UTC", rec.Timestamp.Location())
	}
	if got := rec.TimestampString(); got != "2024-07-01T02:30:00.123Z" {
		t.Errorf("TimestampString() = %q", got)
	}
	if rec.Year() != "2024" || rec.Month() != "07" {
		t.Errorf("Year/Month = %s/%s, want 2024/07", rec.Year(), rec.Month())
	}

	year, month := Bucket(rec.Timestamp)
	if rec.Year() != year || rec.Month() != month {
		t.Error("record year/month disagree with its own timestamp")
	}
}

func TestExpenseInput_Fields(t *testing.T) {
	tests := []struct {
		name     string
		body     string
		wantCard *string
		wantAmt  string
	}{
		{"empty object", `{}`, nil, ""},
		{"null card", `{"card":null,"amount":12.50}`, nil, "12.5"},
		{"empty card", `{"card":""}`, nil, ""},
		{"credit card", `{"card":"credit","amount":3}`, strPtr("credit"), "3"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var in ExpenseInput
			if err := json.Unmarshal([]byte(tt.body), &in); err != nil {
				t.Fatalf("unmarshal: %v", err)
			}
			f := in.Fields()

			if (f.Card == nil) != (tt.wantCard == nil) {
				t.Fatalf("Card = %v, want %v", f.Card, tt.wantCard)
			}
			if f.Card != nil && *f.Card != *tt.wantCard {
				t.Errorf("Card = %q, want %q", *f.Card, *tt.wantCard)
			}

			gotAmt := ""
			if f.Amount.Valid {
				gotAmt = f.Amount.Decimal.String()
			}
			if gotAmt != tt.wantAmt {
				t.Errorf("Amount = %q, want %q", gotAmt, tt.wantAmt)
			}
		})
	}
}

func TestValidCard(t *testing.T) {
	for _, c := range []string{CardCredit, CardDebit, CardAccount} {
		if !ValidCard(c) {
			t.Errorf("ValidCard(%q) = false", c)
		}
	}
	for _, c := range []string{"", "Credit", "cash"} {
		if ValidCard(c) {
			t.Errorf("ValidCard(%q) = true", c)
		}
	}
}

func strPtr(s string) *string { return &s }
