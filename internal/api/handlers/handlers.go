package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/Diego-II/expense-tracker-api/internal/api/middleware"
	"github.com/Diego-II/expense-tracker-api/internal/domain"
	"github.com/Diego-II/expense-tracker-api/internal/email"
	"github.com/Diego-II/expense-tracker-api/internal/jobs"
	"github.com/Diego-II/expense-tracker-api/internal/logger"
	"github.com/Diego-II/expense-tracker-api/internal/recordstore"
)

// ErrValidation marks a request the client must fix.
var ErrValidation = errors.New("validation error")

// LedgerAppender appends one row to a monthly ledger and returns its key.
type LedgerAppender interface {
	Append(ctx context.Context, bucket, year, month string, row []any) (string, error)
}

// ExpensesHandler handles expense ingest endpoints.
type ExpensesHandler struct {
	ledger LedgerAppender
	store  recordstore.Store
	bucket string
	log    zerolog.Logger
	clock  func() time.Time
	newID  func() string
}

// ExpensesOption configures an ExpensesHandler.
type ExpensesOption func(*ExpensesHandler)

// WithClock overrides the time source.
func WithClock(clock func() time.Time) ExpensesOption {
	return func(h *ExpensesHandler) { h.clock = clock }
}

// WithIDGenerator overrides how record ids are generated.
func WithIDGenerator(newID func() string) ExpensesOption {
	return func(h *ExpensesHandler) { h.newID = newID }
}

// NewExpensesHandler creates a new expenses handler.
func NewExpensesHandler(ledger LedgerAppender, store recordstore.Store, bucket string, log zerolog.Logger, opts ...ExpensesOption) *ExpensesHandler {
	h := &ExpensesHandler{
		ledger: ledger,
		store:  store,
		bucket: bucket,
		log:    log,
		clock:  time.Now,
		newID:  func() string { return uuid.New().String() },
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// CreateExpense handles POST /expenses
func (h *ExpensesHandler) CreateExpense(w http.ResponseWriter, r *http.Request) {
	log := logger.FromContextOr(r.Context(), h.log)
	ctx := logger.WithContext(r.Context(), log)

	body, err := readBody(r)
	if err != nil {
		if errors.Is(err, ErrValidation) {
			middleware.WriteError(w, http.StatusBadRequest, "Request body is required")
			return
		}
		log.Error().Err(err).Msg("Failed to read request body")
		middleware.WriteError(w, http.StatusInternalServerError, "Failed to save expense")
		return
	}

	id, key, err := h.saveExpense(ctx, body)
	if err != nil {
		log.Error().Err(err).Msg("Failed to save expense")
		middleware.WriteError(w, http.StatusInternalServerError, "Failed to save expense")
		return
	}

	middleware.WriteJSON(w, http.StatusOK, map[string]string{
		"message": "Expense saved successfully",
		"id":      id,
		"csvPath": key,
	})
}

// saveExpense decodes body and saves it with SaveExpense.
func (h *ExpensesHandler) saveExpense(ctx context.Context, body []byte) (id, key string, err error) {
	var in domain.ExpenseInput
	if err := json.Unmarshal(body, &in); err != nil {
		return "", "", fmt.Errorf("decode expense: %w", err)
	}
	return h.SaveExpense(ctx, in)
}

// SaveExpense appends the ledger row first and then persists the record. It
// returns the new record id and the ledger key.
func (h *ExpensesHandler) SaveExpense(ctx context.Context, in domain.ExpenseInput) (id, key string, err error) {
	rec := domain.NewExpenseRecord(h.newID(), h.clock(), in.Fields(), "")

	row := []any{rec.Amount, rec.Merchant, rec.Name, rec.Card, rec.Timestamp}
	key, err = h.ledger.Append(ctx, h.bucket, rec.Year(), rec.Month(), row)
	if err != nil {
		return "", "", fmt.Errorf("append ledger row: %w", err)
	}

	if err := h.store.PutExpense(ctx, rec); err != nil {
		return "", "", fmt.Errorf("save expense %s: %w", rec.ID, err)
	}

	log := logger.FromContext(ctx)
	log.Info().
		Str("id", rec.ID).
		Str("csv_path", key).
		Msg("Expense saved")

	return rec.ID, key, nil
}

func readBody(r *http.Request) ([]byte, error) {
	if r.Body == nil {
		return nil, fmt.Errorf("%w: empty body", ErrValidation)
	}
	body, err := io.ReadAll(r.Body)
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}
	if len(body) == 0 {
		return nil, fmt.Errorf("%w: empty body", ErrValidation)
	}
	return body, nil
}

// HealthHandler handles GET /health
func HealthHandler(w http.ResponseWriter, r *http.Request) {
	middleware.WriteJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
}

// EventsHandler accepts email events for asynchronous processing.
type EventsHandler struct {
	publisher jobs.Publisher
	log       zerolog.Logger
}

// NewEventsHandler creates a new events handler.
func NewEventsHandler(publisher jobs.Publisher, log zerolog.Logger) *EventsHandler {
	return &EventsHandler{
		publisher: publisher,
		log:       log,
	}
}

// EnqueueEmailEvent handles POST /events/email
func (h *EventsHandler) EnqueueEmailEvent(w http.ResponseWriter, r *http.Request) {
	var ev email.Event
	if err := json.NewDecoder(r.Body).Decode(&ev); err != nil {
		middleware.WriteError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	if len(ev.Records) == 0 {
		middleware.WriteError(w, http.StatusBadRequest, "records are required")
		return
	}

	log := logger.FromContextOr(r.Context(), h.log)
	ctx := logger.WithContext(r.Context(), log)

	job := &jobs.EmailEventJob{Event: ev}
	if err := h.publisher.PublishEmailEvent(ctx, job); err != nil {
		log.Error().Err(err).Msg("Failed to enqueue email event")
		middleware.WriteError(w, http.StatusInternalServerError, "Failed to enqueue email event")
		return
	}

	log.Info().
		Str("job_id", job.JobID).
		Strs("message_ids", job.MessageIDs()).
		Msg("Email event enqueued")

	middleware.WriteJSON(w, http.StatusAccepted, map[string]string{
		"job_id": job.JobID,
		"status": string(job.Status),
	})
}

// JobsHandler handles job-related endpoints.
type JobsHandler struct {
	store jobs.JobStore
	log   zerolog.Logger
}

// NewJobsHandler creates a new jobs handler.
func NewJobsHandler(store jobs.JobStore, log zerolog.Logger) *JobsHandler {
	return &JobsHandler{
		store: store,
		log:   log,
	}
}

// GetJob handles GET /api/jobs/{id}
func (h *JobsHandler) GetJob(w http.ResponseWriter, r *http.Request, jobID string) {
	ctx := r.Context()

	job, err := h.store.GetJob(ctx, jobID)
	if err != nil {
		if errors.Is(err, jobs.ErrJobNotFound) {
			middleware.WriteError(w, http.StatusNotFound, "Job not found")
			return
		}
		h.log.Error().Err(err).Str("job_id", jobID).Msg("Failed to get job")
		middleware.WriteError(w, http.StatusInternalServerError, "Failed to get job")
		return
	}

	middleware.WriteJSON(w, http.StatusOK, job)
}

// ListJobs handles GET /api/jobs
func (h *JobsHandler) ListJobs(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	// Parse query parameters
	query := r.URL.Query()
	filter := jobs.JobFilter{
		MessageID: query.Get("message_id"),
		Status:    jobs.JobStatus(query.Get("status")),
	}

	if limitStr := query.Get("limit"); limitStr != "" {
		if limit, err := strconv.Atoi(limitStr); err == nil {
			filter.Limit = limit
		}
	}

	if offsetStr := query.Get("offset"); offsetStr != "" {
		if offset, err := strconv.Atoi(offsetStr); err == nil {
			filter.Offset = offset
		}
	}

	jobsList, err := h.store.ListJobs(ctx, filter)
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to list jobs")
		middleware.WriteError(w, http.StatusInternalServerError, "Failed to list jobs")
		return
	}

	middleware.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"jobs":  jobsList,
		"count": len(jobsList),
	})
}
