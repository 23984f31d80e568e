package main

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/Diego-II/expense-tracker-api/internal/domain"
	"github.com/Diego-II/expense-tracker-api/internal/email"
	"github.com/Diego-II/expense-tracker-api/internal/jobs"
)

const sampleMbox = `From bank@example.com Mon Mar  4 10:00:00 2024
From: bank@example.com
Subject: Compra

Compra por $12.500 en Cafe

From bank@example.com Tue Mar  5 10:00:00 2024
From: bank@example.com
Subject: Compra

Compra por $3.000 en Kiosko
`

func TestImportMbox(t *testing.T) {
	var bodies []string
	process := func(ctx context.Context, raw []byte) (*domain.ExpenseRecord, error) {
		bodies = append(bodies, string(raw))
		return &domain.ExpenseRecord{}, nil
	}

	n, err := importMbox(context.Background(), strings.NewReader(sampleMbox), process)
	if err != nil {
		t.Fatalf("importMbox() error = %v", err)
	}
	if n != 2 || len(bodies) != 2 {
		t.Fatalf("imported %d messages, processed %d, want 2", n, len(bodies))
	}
	if !strings.Contains(bodies[0], "Cafe") || !strings.Contains(bodies[1], "Kiosko") {
		t.Errorf("bodies = %q", bodies)
	}
}

func TestImportMbox_StopsAtFirstFailure(t *testing.T) {
	calls := 0
	process := func(ctx context.Context, raw []byte) (*domain.ExpenseRecord, error) {
		calls++
		return nil, errors.New("model unavailable")
	}

	n, err := importMbox(context.Background(), strings.NewReader(sampleMbox), process)
	if err == nil || !strings.Contains(err.Error(), "process message 1") {
		t.Fatalf("importMbox() error = %v", err)
	}
	if n != 0 || calls != 1 {
		t.Errorf("n = %d, calls = %d, want 0 and 1", n, calls)
	}
}

type MockPublisher struct {
	PublishFunc func(ctx context.Context, job *jobs.EmailEventJob) error
}

func (m *MockPublisher) PublishEmailEvent(ctx context.Context, job *jobs.EmailEventJob) error {
	return m.PublishFunc(ctx, job)
}

func (m *MockPublisher) Close() error { return nil }

func TestPublishEmail(t *testing.T) {
	raw := []byte("From: bank@example.com\r\nSubject: Compra\r\n\r\nCompra por $12.500 en Cafe\r\n")

	var published *jobs.EmailEventJob
	pub := &MockPublisher{PublishFunc: func(ctx context.Context, job *jobs.EmailEventJob) error {
		published = job
		return nil
	}}

	job, err := publishEmail(context.Background(), pub, "msg-1.eml", raw)
	if err != nil {
		t.Fatalf("publishEmail() error = %v", err)
	}
	if job != published {
		t.Fatal("returned job is not the published job")
	}
	if len(job.Event.Records) != 1 {
		t.Fatalf("records = %d, want 1", len(job.Event.Records))
	}

	rec := job.Event.Records[0]
	if rec.MessageID != "msg-1.eml" {
		t.Errorf("MessageID = %q, want msg-1.eml", rec.MessageID)
	}
	got, err := email.DecodeRecord(rec)
	if err != nil {
		t.Fatalf("DecodeRecord() error = %v", err)
	}
	if string(got) != string(raw) {
		t.Errorf("decoded email = %q, want %q", got, raw)
	}
}

func TestPublishEmail_PublishError(t *testing.T) {
	pub := &MockPublisher{PublishFunc: func(ctx context.Context, job *jobs.EmailEventJob) error {
		return errors.New("broker down")
	}}

	if _, err := publishEmail(context.Background(), pub, "msg-1", []byte("x")); err == nil {
		t.Fatal("publishEmail() error = nil, want error")
	}
}
