// Package amqp delivers email event jobs over RabbitMQ. Failed deliveries are
// requeued once and then dead-lettered.
package amqp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rabbitmq/amqp091-go"

	"github.com/Diego-II/expense-tracker-api/internal/jobs"
	"github.com/Diego-II/expense-tracker-api/internal/logger"
)

// Client publishes and consumes email event jobs.
type Client struct {
	conn         *amqp091.Connection
	channel      *amqp091.Channel
	exchangeName string
	queueName    string
	store        jobs.JobStore

	mu      sync.Mutex
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	stopped bool
}

// DeadLetterExchange returns the exchange that receives rejected messages.
func DeadLetterExchange(exchangeName string) string {
	return exchangeName + ".dlx"
}

// DeadLetterQueue returns the queue bound to the dead-letter exchange.
func DeadLetterQueue(queueName string) string {
	return queueName + ".dead"
}

// NewClient dials url and declares the exchange, the work queue and its
// dead-letter queue. store may be nil.
func NewClient(url, exchangeName, queueName string, store jobs.JobStore) (*Client, error) {
	conn, err := amqp091.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("dial AMQP: %w", err)
	}

	channel, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("open channel: %w", err)
	}

	client := &Client{
		conn:         conn,
		channel:      channel,
		exchangeName: exchangeName,
		queueName:    queueName,
		store:        store,
	}

	if err := client.setup(); err != nil {
		client.Close()
		return nil, fmt.Errorf("setup exchange and queue: %w", err)
	}

	return client, nil
}

func (c *Client) setup() error {
	dlx := DeadLetterExchange(c.exchangeName)
	dlq := DeadLetterQueue(c.queueName)

	for _, name := range []string{c.exchangeName, dlx} {
		err := c.channel.ExchangeDeclare(
			name,     // name
			"direct", // type
			true,     // durable
			false,    // auto-deleted
			false,    // internal
			false,    // no-wait
			nil,      // arguments
		)
		if err != nil {
			return fmt.Errorf("declare exchange %s: %w", name, err)
		}
	}

	if _, err := c.channel.QueueDeclare(dlq, true, false, false, false, nil); err != nil {
		return fmt.Errorf("declare dead-letter queue: %w", err)
	}
	if err := c.channel.QueueBind(dlq, c.queueName, dlx, false, nil); err != nil {
		return fmt.Errorf("bind dead-letter queue: %w", err)
	}

	_, err := c.channel.QueueDeclare(
		c.queueName, // name
		true,        // durable
		false,       // delete when unused
		false,       // exclusive
		false,       // no-wait
		amqp091.Table{
			"x-dead-letter-exchange":    dlx,
			"x-dead-letter-routing-key": c.queueName,
		},
	)
	if err != nil {
		return fmt.Errorf("declare queue: %w", err)
	}

	// Routing key is the queue name on the direct exchange.
	if err := c.channel.QueueBind(c.queueName, c.queueName, c.exchangeName, false, nil); err != nil {
		return fmt.Errorf("bind queue: %w", err)
	}

	// One unacknowledged message at a time keeps batches sequential.
	if err := c.channel.Qos(1, 0, false); err != nil {
		return fmt.Errorf("set qos: %w", err)
	}

	return nil
}

// PublishEmailEvent implements jobs.Publisher.
func (c *Client) PublishEmailEvent(ctx context.Context, job *jobs.EmailEventJob) error {
	if job.JobID == "" {
		job.JobID = uuid.New().String()
	}
	if job.Status == "" {
		job.Status = jobs.JobStatusPending
	}
	if job.CreatedAt.IsZero() {
		job.CreatedAt = time.Now()
	}
	if job.MaxRetries == 0 {
		// A message is requeued once before it is dead-lettered.
		job.MaxRetries = 1
	}

	body, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("marshal job: %w", err)
	}

	if c.store != nil {
		if err := c.store.SaveJob(ctx, job); err != nil {
			return fmt.Errorf("failed to save job: %w", err)
		}
	}

	pubCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	err = c.channel.PublishWithContext(
		pubCtx,
		c.exchangeName, // exchange
		c.queueName,    // routing key
		false,          // mandatory
		false,          // immediate
		amqp091.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp091.Persistent,
			MessageId:    job.JobID,
			Timestamp:    time.Now(),
			Body:         body,
		},
	)
	if err != nil {
		return fmt.Errorf("publish message: %w", err)
	}

	log := logger.FromContext(ctx)
	log.Info().
		Str("job_id", job.JobID).
		Int("records", len(job.Event.Records)).
		Str("exchange", c.exchangeName).
		Str("queue", c.queueName).
		Msg("Published email event")

	return nil
}

// Start implements jobs.Consumer. Deliveries are handled one at a time on a
// background goroutine until Stop is called or ctx is done.
func (c *Client) Start(ctx context.Context, handler jobs.JobHandler) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.stopped {
		return jobs.ErrQueueClosed
	}

	msgs, err := c.channel.Consume(
		c.queueName, // queue
		"",          // consumer
		false,       // auto-ack (we want manual ack)
		false,       // exclusive
		false,       // no-local
		false,       // no-wait
		nil,         // args
	)
	if err != nil {
		return fmt.Errorf("start consuming: %w", err)
	}

	ctx, c.cancel = context.WithCancel(ctx)
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		c.consume(ctx, msgs, handler)
	}()

	log := logger.FromContext(ctx)
	log.Info().Str("queue", c.queueName).Msg("Started consuming email events")
	return nil
}

func (c *Client) consume(ctx context.Context, msgs <-chan amqp091.Delivery, handler jobs.JobHandler) {
	log := logger.FromContext(ctx)
	for {
		select {
		case <-ctx.Done():
			log.Info().Err(ctx.Err()).Msg("Stopping message consumption")
			return
		case delivery, ok := <-msgs:
			if !ok {
				log.Warn().Msg("Message channel closed")
				return
			}
			c.handleDelivery(ctx, delivery, handler)
		}
	}
}

// handleDelivery runs handler for one delivery and settles it.
func (c *Client) handleDelivery(ctx context.Context, delivery amqp091.Delivery, handler jobs.JobHandler) {
	log := logger.FromContext(ctx)

	var job jobs.EmailEventJob
	if err := json.Unmarshal(delivery.Body, &job); err != nil {
		log.Error().Err(err).Str("message_id", delivery.MessageId).Msg("Failed to unmarshal message")
		_ = delivery.Nack(false, false) // dead-letter, retrying cannot help
		return
	}
	log = log.With().Str("job_id", job.JobID).Logger()

	now := time.Now()
	job.Status = jobs.JobStatusRunning
	job.StartedAt = &now
	if delivery.Redelivered {
		job.RetryCount = 1
	}
	c.save(ctx, &job)

	err := handler(ctx, &job)

	completedAt := time.Now()
	job.CompletedAt = &completedAt

	switch settle(err, delivery.Redelivered) {
	case ack:
		job.Status = jobs.JobStatusCompleted
		job.Error = ""
		_ = delivery.Ack(false)
		log.Info().Msg("Successfully processed email event")
	case requeue:
		job.Status = jobs.JobStatusRetrying
		job.Error = err.Error()
		_ = delivery.Nack(false, true)
		log.Warn().Err(err).Msg("Failed to handle message, requeueing")
	case deadLetter:
		job.Status = jobs.JobStatusFailed
		job.Error = err.Error()
		_ = delivery.Nack(false, false)
		log.Error().Err(err).Msg("Failed to handle redelivered message, dead-lettering")
	}
	c.save(ctx, &job)
}

type disposition int

const (
	ack disposition = iota
	requeue
	deadLetter
)

// settle decides how a delivery is settled: requeue on the first failure,
// dead-letter on the second. A handler interrupted by Stop is always
// requeued; the interruption says nothing about the message.
func settle(err error, redelivered bool) disposition {
	switch {
	case err == nil:
		return ack
	case errors.Is(err, context.Canceled):
		return requeue
	case redelivered:
		return deadLetter
	default:
		return requeue
	}
}

func (c *Client) save(ctx context.Context, job *jobs.EmailEventJob) {
	if c.store == nil {
		return
	}
	if err := c.store.SaveJob(ctx, job); err != nil {
		log := logger.FromContext(ctx)
		log.Warn().Err(err).Str("job_id", job.JobID).Msg("Failed to save job state")
	}
}

// Stop implements jobs.Consumer. It waits for the in-flight delivery.
func (c *Client) Stop(ctx context.Context) error {
	c.mu.Lock()
	c.stopped = true
	if c.cancel != nil {
		c.cancel()
	}
	c.mu.Unlock()

	done := make(chan struct{})
	go func() {
		c.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close stops consuming and closes the channel and connection.
func (c *Client) Close() error {
	_ = c.Stop(context.Background())
	if c.channel != nil {
		c.channel.Close()
	}
	if c.conn != nil {
		return c.conn.Close()
	}
	return nil
}

var _ jobs.Publisher = (*Client)(nil)
var _ jobs.Consumer = (*Client)(nil)
