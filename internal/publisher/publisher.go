// Package publisher publishes domain events to RabbitMQ.  Errors are logged
// and returned so callers can ignore failures without interrupting the
// main request flow; a committed gate transition is never undone because
// its event could not be delivered.
package publisher

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"

	q "github.com/iliyamo/ticket-admission/internal/queue"
)

// AMQP publishes persistent JSON messages to durable queues on the
// default exchange.  A connection is dialled per message; admission
// traffic is low enough that pooling is not needed.
type AMQP struct {
	url    string
	logger *slog.Logger
}

// NewAMQP returns a publisher for the broker at url.
func NewAMQP(url string, logger *slog.Logger) *AMQP {
	return &AMQP{url: url, logger: logger.With("component", "publisher")}
}

// PublishAdmission publishes ev to the ticket.admission queue.
func (p *AMQP) PublishAdmission(ctx context.Context, ev q.AdmissionEvent) error {
	return p.publish(ctx, q.AdmissionQueue, ev)
}

// PublishIssued publishes ev to the tickets.issued queue.
func (p *AMQP) PublishIssued(ctx context.Context, ev q.TicketsIssuedEvent) error {
	return p.publish(ctx, q.IssuedQueue, ev)
}

func (p *AMQP) publish(ctx context.Context, queueName string, event any) error {
	log := p.logger.With("queue", queueName)
	conn, err := amqp.Dial(p.url)
	if err != nil {
		log.Warn("dial failed", "err", err)
		return err
	}
	defer func() { _ = conn.Close() }()

	ch, err := conn.Channel()
	if err != nil {
		log.Warn("channel open failed", "err", err)
		return err
	}
	defer func() { _ = ch.Close() }()

	// Ensure the queue exists (idempotent). Durable so messages survive broker restarts.
	if _, err := ch.QueueDeclare(
		queueName, // name
		true,      // durable
		false,     // autoDelete
		false,     // exclusive
		false,     // noWait
		nil,       // args
	); err != nil {
		log.Warn("queue declare failed", "err", err)
		return err
	}

	body, err := json.Marshal(event)
	if err != nil {
		log.Warn("marshal event failed", "err", err)
		return err
	}

	pub := amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent, // store on disk
		MessageId:    uuid.NewString(),
		Timestamp:    time.Now().UTC(),
		Body:         body,
	}
	if err := ch.PublishWithContext(ctx,
		"",        // default exchange
		queueName, // routing key = queue name
		false,     // mandatory
		false,     // immediate
		pub,
	); err != nil {
		log.Warn("publish failed", "err", err)
		return err
	}
	return nil
}

// Nop drops every event.  It is used when EVENTS_ENABLED is false.
type Nop struct{}

func (Nop) PublishAdmission(context.Context, q.AdmissionEvent) error { return nil }
func (Nop) PublishIssued(context.Context, q.TicketsIssuedEvent) error { return nil }
