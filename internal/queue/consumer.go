// Package queue contains the background consumer that listens to the
// ticket.admission queue and writes one line per gate transition to
// logs/admission.log.
package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
)

// StartAdmissionConsumer connects to RabbitMQ, declares the
// ticket.admission queue (durable), and starts consuming messages.  Each
// message is appended to admission.log under logDir in a single-line,
// human-friendly format.  The function runs a reconnect loop and only
// returns when ctx is cancelled; processing errors are logged and the
// offending message is rejected so the consumer keeps running.
func StartAdmissionConsumer(ctx context.Context, url, logDir string, logger *slog.Logger) error {
	logger = logger.With("component", "admission-consumer")
	backoff := time.Second
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		conn, err := amqp.Dial(url)
		if err != nil {
			logger.Warn("failed to dial broker", "err", err, "retry_in", backoff)
			if !sleepCtx(ctx, backoff) {
				return ctx.Err()
			}
			if backoff < 30*time.Second {
				backoff *= 2
			}
			continue
		}
		backoff = time.Second // reset after successful connect

		err = consumeLoop(ctx, conn, logDir, logger)
		_ = conn.Close()
		if ctx.Err() != nil {
			return ctx.Err()
		}
		logger.Warn("consume loop ended; reconnecting", "err", err)
		if !sleepCtx(ctx, 2*time.Second) {
			return ctx.Err()
		}
	}
}

func consumeLoop(ctx context.Context, conn *amqp.Connection, logDir string, logger *slog.Logger) error {
	ch, err := conn.Channel()
	if err != nil {
		return fmt.Errorf("channel open: %w", err)
	}
	defer func() { _ = ch.Close() }()

	if err := ch.Qos(50, 0, false); err != nil {
		logger.Warn("set QoS failed", "err", err)
	}

	if _, err := ch.QueueDeclare(AdmissionQueue, true, false, false, false, nil); err != nil {
		return fmt.Errorf("queue declare: %w", err)
	}

	msgs, err := ch.ConsumeWithContext(ctx, AdmissionQueue, "", false, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("queue consume: %w", err)
	}

	for d := range msgs {
		if err := handleMessage(logDir, d.Body); err != nil {
			logger.Error("handle message failed", "err", err)
			_ = d.Nack(false, false) // reject, do not requeue to avoid tight loops
			continue
		}
		_ = d.Ack(false)
	}
	return errors.New("deliveries channel closed")
}

func handleMessage(logDir string, body []byte) error {
	var ev AdmissionEvent
	if err := json.Unmarshal(body, &ev); err != nil {
		return fmt.Errorf("unmarshal: %w", err)
	}
	if ev.TicketID == 0 || (ev.Direction != "in" && ev.Direction != "out") {
		return fmt.Errorf("invalid admission event: ticket=%d direction=%q", ev.TicketID, ev.Direction)
	}
	if err := os.MkdirAll(logDir, 0o755); err != nil {
		return fmt.Errorf("mkdir logs: %w", err)
	}
	f, err := os.OpenFile(filepath.Join(logDir, "admission.log"), os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("open log file: %w", err)
	}
	defer f.Close()

	device := ev.DeviceID
	if device == "" {
		device = "-"
	}
	line := fmt.Sprintf("[%s] Ticket %s | ticket_id=%d | gate_id=%d | device=%s | dwell=%ds | scan_event_id=%d\n",
		ev.OccurredAt, ev.Direction, ev.TicketID, ev.GateID, device, ev.DwellSeconds, ev.ScanEventID)
	if _, err := f.WriteString(line); err != nil {
		return fmt.Errorf("write log: %w", err)
	}
	return nil
}

func sleepCtx(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
