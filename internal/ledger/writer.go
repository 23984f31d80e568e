package ledger

import (
	"context"
	"errors"
	"fmt"

	"github.com/Diego-II/expense-tracker-api/internal/gcs"
	"github.com/Diego-II/expense-tracker-api/internal/logger"
)

// ContentType of ledger documents.
const ContentType = "text/csv"

var (
	// ErrStorageRead is returned when the existing ledger document cannot be read.
	ErrStorageRead = errors.New("ledger storage read failed")

	// ErrStorageWrite is returned when the updated document cannot be written.
	ErrStorageWrite = errors.New("ledger storage write failed")

	// ErrConflict is returned when a conditional write lost against another
	// writer. It also matches ErrStorageWrite.
	ErrConflict = fmt.Errorf("%w: concurrent modification", ErrStorageWrite)
)

// Key returns the object key of the ledger document for a month.
func Key(year, month string) string {
	return fmt.Sprintf("%s/%s/expenses.csv", year, month)
}

// Writer appends rows to per-month CSV documents in an object store.
type Writer struct {
	store       gcs.ObjectStore
	conditional bool
}

// Option configures a Writer.
type Option func(*Writer)

// WithConditionalWrites makes every write conditional on the generation that
// was read, so concurrent appends fail with ErrConflict instead of silently
// dropping a row.
func WithConditionalWrites(enabled bool) Option {
	return func(w *Writer) {
		w.conditional = enabled
	}
}

// NewWriter creates a ledger writer over store.
func NewWriter(store gcs.ObjectStore, opts ...Option) *Writer {
	w := &Writer{store: store}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Append adds row to the document for year/month and returns its key.
// The whole document is read, extended and written back. Without conditional
// writes the last writer wins.
func (w *Writer) Append(ctx context.Context, bucket, year, month string, row []any) (string, error) {
	key := Key(year, month)
	log := logger.FromContext(ctx).With().Str("bucket", bucket).Str("key", key).Logger()

	var (
		existing   []byte
		generation int64
		exists     bool
	)
	obj, err := w.store.ReadObject(ctx, bucket, key)
	switch {
	case errors.Is(err, gcs.ErrObjectNotFound):
		log.Debug().Msg("Ledger document not found, starting a new one")
	case err != nil:
		return "", fmt.Errorf("%w: read %s/%s: %w", ErrStorageRead, bucket, key, err)
	default:
		existing = obj.Data
		generation = obj.Generation
		exists = true
	}

	line := FormatRow(row)
	var content []byte
	if len(existing) == 0 {
		content = append([]byte(Header), line...)
	} else {
		content = append(existing, line...)
	}

	opts := gcs.WriteOptions{ContentType: ContentType}
	if w.conditional {
		if exists {
			opts.IfGenerationMatch = generation
		} else {
			opts.IfDoesNotExist = true
		}
	}

	if err := w.store.WriteObject(ctx, bucket, key, content, opts); err != nil {
		if errors.Is(err, gcs.ErrPreconditionFailed) {
			return "", fmt.Errorf("%w: write %s/%s: %w", ErrConflict, bucket, key, err)
		}
		return "", fmt.Errorf("%w: write %s/%s: %w", ErrStorageWrite, bucket, key, err)
	}

	log.Debug().Int("bytes", len(content)).Msg("Ledger document updated")
	return key, nil
}
