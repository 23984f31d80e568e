package amqp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"testing"

	"github.com/rabbitmq/amqp091-go"

	"github.com/Diego-II/expense-tracker-api/internal/email"
	"github.com/Diego-II/expense-tracker-api/internal/jobs"
	"github.com/Diego-II/expense-tracker-api/internal/jobs/inmemory"
)

// fakeAcknowledger records how a delivery was settled.
type fakeAcknowledger struct {
	acked    bool
	nacked   bool
	requeued bool
}

func (f *fakeAcknowledger) Ack(tag uint64, multiple bool) error {
	f.acked = true
	return nil
}

func (f *fakeAcknowledger) Nack(tag uint64, multiple, requeue bool) error {
	f.nacked = true
	f.requeued = requeue
	return nil
}

func (f *fakeAcknowledger) Reject(tag uint64, requeue bool) error {
	return f.Nack(tag, false, requeue)
}

func delivery(t *testing.T, ack *fakeAcknowledger, redelivered bool) amqp091.Delivery {
	t.Helper()
	body, err := json.Marshal(jobs.EmailEventJob{
		JobID:  "job-1",
		Status: jobs.JobStatusPending,
		Event:  email.Event{Records: []email.Record{{MessageID: "m1", Message: `{"content":"SG9sYQ=="}`}}},
	})
	if err != nil {
		t.Fatal(err)
	}
	return amqp091.Delivery{Acknowledger: ack, DeliveryTag: 1, Body: body, Redelivered: redelivered}
}

func TestSettle(t *testing.T) {
	boom := errors.New("boom")
	tests := []struct {
		name        string
		err         error
		redelivered bool
		want        disposition
	}{
		{"success", nil, false, ack},
		{"success on redelivery", nil, true, ack},
		{"first failure", boom, false, requeue},
		{"second failure", boom, true, deadLetter},
		{"canceled", context.Canceled, false, requeue},
		{"canceled on redelivery", fmt.Errorf("extract: %w", context.Canceled), true, requeue},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := settle(tt.err, tt.redelivered); got != tt.want {
				t.Errorf("settle() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestHandleDelivery_Success(t *testing.T) {
	store := inmemory.NewStore()
	c := &Client{store: store}
	ack := &fakeAcknowledger{}

	var got email.Event
	handler := jobs.EmailEventHandler(func(ctx context.Context, ev email.Event) error {
		got = ev
		return nil
	})
	c.handleDelivery(context.Background(), delivery(t, ack, false), handler)

	if !ack.acked || ack.nacked {
		t.Errorf("delivery settled as %+v, want ack", ack)
	}
	if len(got.Records) != 1 || got.Records[0].MessageID != "m1" {
		t.Errorf("handler got %+v", got)
	}
	job, err := store.GetJob(context.Background(), "job-1")
	if err != nil || job.Status != jobs.JobStatusCompleted {
		t.Errorf("job = %+v, %v", job, err)
	}
}

func TestHandleDelivery_RequeueThenDeadLetter(t *testing.T) {
	store := inmemory.NewStore()
	c := &Client{store: store}
	failing := func(ctx context.Context, job jobs.Job) error { return errors.New("model unavailable") }

	first := &fakeAcknowledger{}
	c.handleDelivery(context.Background(), delivery(t, first, false), failing)
	if !first.nacked || !first.requeued {
		t.Errorf("first failure settled as %+v, want nack with requeue", first)
	}
	job, _ := store.GetJob(context.Background(), "job-1")
	if job.Status != jobs.JobStatusRetrying {
		t.Errorf("status after first failure = %q", job.Status)
	}

	second := &fakeAcknowledger{}
	c.handleDelivery(context.Background(), delivery(t, second, true), failing)
	if !second.nacked || second.requeued {
		t.Errorf("second failure settled as %+v, want nack without requeue", second)
	}
	job, _ = store.GetJob(context.Background(), "job-1")
	if job.Status != jobs.JobStatusFailed || job.RetryCount != 1 || job.Error != "model unavailable" {
		t.Errorf("job after dead-letter = %+v", job)
	}
}

func TestHandleDelivery_CanceledRedeliveryIsRequeued(t *testing.T) {
	store := inmemory.NewStore()
	c := &Client{store: store}
	ack := &fakeAcknowledger{}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	c.handleDelivery(ctx, delivery(t, ack, true), func(ctx context.Context, job jobs.Job) error {
		return fmt.Errorf("process record 0: %w", ctx.Err())
	})

	if !ack.nacked || !ack.requeued {
		t.Errorf("canceled redelivery settled as %+v, want nack with requeue", ack)
	}
	job, _ := store.GetJob(context.Background(), "job-1")
	if job.Status != jobs.JobStatusRetrying {
		t.Errorf("status = %q, want %q", job.Status, jobs.JobStatusRetrying)
	}
}

func TestHandleDelivery_MalformedBody(t *testing.T) {
	c := &Client{}
	ack := &fakeAcknowledger{}
	called := false

	c.handleDelivery(context.Background(), amqp091.Delivery{Acknowledger: ack, Body: []byte("not json")},
		func(ctx context.Context, job jobs.Job) error {
			called = true
			return nil
		})

	if called {
		t.Error("handler should not run for an undecodable message")
	}
	if !ack.nacked || ack.requeued {
		t.Errorf("malformed message settled as %+v, want dead-letter", ack)
	}
}

func TestDeadLetterNames(t *testing.T) {
	if DeadLetterExchange("expenses") != "expenses.dlx" {
		t.Errorf("DeadLetterExchange() = %q", DeadLetterExchange("expenses"))
	}
	if DeadLetterQueue("email_events") != "email_events.dead" {
		t.Errorf("DeadLetterQueue() = %q", DeadLetterQueue("email_events"))
	}
}
