// Package email consumes queued email notifications, extracts an expense
// from each email and persists it.
package email

import (
	"context"
	"fmt"
	"runtime/debug"
	"time"

	"github.com/google/uuid"

	"github.com/Diego-II/expense-tracker-api/internal/domain"
	"github.com/Diego-II/expense-tracker-api/internal/extractor"
	"github.com/Diego-II/expense-tracker-api/internal/logger"
	"github.com/Diego-II/expense-tracker-api/internal/recordstore"
)

// Extractor summarizes email text.
type Extractor interface {
	Extract(ctx context.Context, emailText string) (*extractor.Summary, error)
}

// Handler processes email events.
type Handler struct {
	extractor Extractor
	store     recordstore.Store
	clock     func() time.Time
	newID     func() string
}

// Option configures a Handler.
type Option func(*Handler)

// WithClock overrides the clock used to stamp records.
func WithClock(clock func() time.Time) Option {
	return func(h *Handler) { h.clock = clock }
}

// WithIDGenerator overrides record id generation.
func WithIDGenerator(newID func() string) Option {
	return func(h *Handler) { h.newID = newID }
}

// NewHandler creates a Handler.
func NewHandler(ex Extractor, store recordstore.Store, opts ...Option) *Handler {
	h := &Handler{
		extractor: ex,
		store:     store,
		clock:     time.Now,
		newID:     uuid.NewString,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// HandleEvent processes the records of ev one after another. The first
// failure is logged with the goroutine stack and returned; later records are
// not attempted so that the delivery layer redelivers the whole batch.
func (h *Handler) HandleEvent(ctx context.Context, ev Event) error {
	log := logger.FromContext(ctx)

	for i, rec := range ev.Records {
		if _, err := h.ProcessRecord(ctx, rec); err != nil {
			log.Error().
				Err(err).
				Str("error_type", fmt.Sprintf("%T", err)).
				Str("message_id", rec.MessageID).
				Int("record_index", i).
				Int("record_count", len(ev.Records)).
				Str("stack", string(debug.Stack())).
				Msg("Error processing email record")
			return fmt.Errorf("process record %d (%s): %w", i, rec.MessageID, err)
		}
	}

	log.Info().Int("records", len(ev.Records)).Msg("Email event processed")
	return nil
}

// ProcessRecord decodes one notification and stores the extracted expense.
func (h *Handler) ProcessRecord(ctx context.Context, rec Record) (*domain.ExpenseRecord, error) {
	raw, err := DecodeRecord(rec)
	if err != nil {
		return nil, err
	}
	return h.ProcessEmail(ctx, raw)
}

// ProcessEmail extracts an expense from a raw email and stores it tagged
// with source "email".
func (h *Handler) ProcessEmail(ctx context.Context, raw []byte) (*domain.ExpenseRecord, error) {
	text, err := DecodeText(raw)
	if err != nil {
		return nil, err
	}

	summary, err := h.extractor.Extract(ctx, text)
	if err != nil {
		return nil, err
	}

	expense := domain.NewExpenseRecord(h.newID(), h.clock(), summary.Fields(), domain.SourceEmail)
	if err := h.store.PutExpense(ctx, expense); err != nil {
		return nil, fmt.Errorf("save expense %s: %w", expense.ID, err)
	}

	log := logger.FromContext(ctx)
	log.Info().
		Str("expense_id", expense.ID).
		Str("merchant", expense.Merchant).
		Str("year", expense.Year()).
		Str("month", expense.Month()).
		Msg("Expense saved from email")
	return expense, nil
}
