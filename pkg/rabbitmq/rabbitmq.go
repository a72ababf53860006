package rabbitmq

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/petercegoh/cs203-MatchMage/pkg/mailer"

	amqp "github.com/streadway/amqp"
	"go.uber.org/zap"
)

// VerificationEmail is the queued job for one verification message.
type VerificationEmail struct {
	To   string `json:"to"`
	Link string `json:"link"`
}

// Client holds the RabbitMQ connection and channel.
type Client struct {
	conn    *amqp.Connection
	channel *amqp.Channel
	queue   string
	logger  *zap.Logger
	// amqp channels are not safe for concurrent publishing.
	mu sync.Mutex
}

// Config holds RabbitMQ connection details.
type Config struct {
	URL   string
	Queue string
}

// NewClient connects to RabbitMQ, opens a channel and declares the durable email queue.
func NewClient(cfg Config, logger *zap.Logger) (*Client, error) {
	conn, err := amqp.Dial(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to RabbitMQ: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to open channel: %w", err)
	}

	if err := declare(ch, cfg.Queue); err != nil {
		ch.Close()
		conn.Close()
		return nil, err
	}

	logger.Info("RabbitMQ client connected", zap.String("queue", cfg.Queue))

	return &Client{
		conn:    conn,
		channel: ch,
		queue:   cfg.Queue,
		logger:  logger,
	}, nil
}

func declare(ch *amqp.Channel, queue string) error {
	_, err := ch.QueueDeclare(
		queue, // name
		true,  // durable
		false, // delete when unused
		false, // exclusive
		false, // no-wait
		nil,   // arguments
	)
	if err != nil {
		return fmt.Errorf("failed to declare %s: %w", queue, err)
	}
	return nil
}

// Close closes the RabbitMQ channel and connection.
func (c *Client) Close() error {
	var errs []error
	if c.channel != nil {
		if err := c.channel.Close(); err != nil {
			errs = append(errs, fmt.Errorf("failed to close channel: %w", err))
		}
	}
	if c.conn != nil {
		if err := c.conn.Close(); err != nil {
			errs = append(errs, fmt.Errorf("failed to close connection: %w", err))
		}
	}
	return errors.Join(errs...)
}

// SendVerificationEmail enqueues the message; delivery happens in the consumer.
// Implements mailer.Mailer.
func (c *Client) SendVerificationEmail(_ context.Context, to, link string) error {
	if c.channel == nil {
		return errors.New("RabbitMQ channel is not available")
	}

	body, err := json.Marshal(VerificationEmail{To: to, Link: link})
	if err != nil {
		return fmt.Errorf("failed to marshal verification email job: %w", err)
	}

	c.mu.Lock()
	err = c.channel.Publish(
		"",      // default exchange
		c.queue, // routing key: the queue name
		false,   // mandatory
		false,   // immediate
		amqp.Publishing{
			ContentType:  "application/json",
			Body:         body,
			DeliveryMode: amqp.Persistent,
			Timestamp:    time.Now(),
		})
	c.mu.Unlock()
	if err != nil {
		return fmt.Errorf("failed to publish verification email job: %w", err)
	}

	c.logger.Debug("verification email queued", zap.String("to", to))
	return nil
}

// ConsumeVerificationEmails starts a goroutine that hands every job to
// messageHandler. Every job is acked once handled; failed deliveries are
// logged and not redelivered.
func (c *Client) ConsumeVerificationEmails(messageHandler func(msg amqp.Delivery) error) error {
	if c.channel == nil {
		return errors.New("RabbitMQ channel is not available for consumption")
	}

	msgs, err := c.channel.Consume(
		c.queue, // queue
		"",      // consumer tag
		false,   // auto-ack
		false,   // exclusive
		false,   // no-local
		false,   // no-wait
		nil,     // args
	)
	if err != nil {
		return fmt.Errorf("failed to register consumer: %w", err)
	}

	c.logger.Info("waiting for verification email jobs", zap.String("queue", c.queue))

	go func() {
		for msg := range msgs {
			settle(msg, messageHandler(msg), c.logger)
		}
	}()

	return nil
}

// acknowledger is the part of amqp.Delivery used to settle a message.
type acknowledger interface {
	Ack(multiple bool) error
}

func settle(msg acknowledger, handlerErr error, logger *zap.Logger) {
	if handlerErr != nil {
		logger.Error("verification email not delivered, dropping job", zap.Error(handlerErr))
	}
	if err := msg.Ack(false); err != nil {
		logger.Error("failed to ack message", zap.Error(err))
	}
}

// ErrMalformedJob marks a job that can never be delivered.
var ErrMalformedJob = errors.New("malformed verification email job")

// HandleVerificationEmail returns a consumer handler delivering jobs through m.
// Malformed jobs are dropped after logging; delivery errors are returned so
// settle can log them.
func HandleVerificationEmail(m mailer.Mailer, timeout time.Duration, logger *zap.Logger) func(msg amqp.Delivery) error {
	return func(msg amqp.Delivery) error {
		job, err := DecodeVerificationEmail(msg.Body)
		if err != nil {
			logger.Error("dropping verification email job", zap.Error(err))
			return nil
		}

		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()
		return m.SendVerificationEmail(ctx, job.To, job.Link)
	}
}

// DecodeVerificationEmail parses and checks a queued job.
func DecodeVerificationEmail(body []byte) (*VerificationEmail, error) {
	var job VerificationEmail
	if err := json.Unmarshal(body, &job); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedJob, err)
	}
	if job.To == "" || job.Link == "" {
		return nil, fmt.Errorf("%w: missing recipient or link", ErrMalformedJob)
	}
	return &job, nil
}
