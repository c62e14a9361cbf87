package rabbitmq

import (
	"context"
	"encoding/json"

	"clinic-auth-service/internal/core/domain"
	"clinic-auth-service/internal/core/ports"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/rs/zerolog"
)

// AuditConsumer drains the audit queue and projects events into the ledger.
// Deliveries are acknowledged only after the record is durably stored;
// failures are rejected without requeue so they land on the dead-letter
// queue instead of being silently dropped.
type AuditConsumer struct {
	client   *Client
	queue    string
	auditSvc ports.AuditService
	log      zerolog.Logger
}

// NewAuditConsumer creates a consumer for the audit queue.
func NewAuditConsumer(client *Client, queue string, auditSvc ports.AuditService, log zerolog.Logger) *AuditConsumer {
	return &AuditConsumer{
		client:   client,
		queue:    queue,
		auditSvc: auditSvc,
		log:      log,
	}
}

// Run consumes deliveries until ctx is cancelled or the channel closes.
// It blocks; callers run it in a goroutine.
func (c *AuditConsumer) Run(ctx context.Context) error {
	deliveries, err := c.client.chn.Consume(
		c.queue,
		"audit-recorder", // consumer tag
		false,            // auto-ack off: ack only after persistence
		false,            // exclusive
		false,            // no-local
		false,            // no-wait
		nil,              // args
	)
	if err != nil {
		return err
	}

	c.log.Info().Str("queue", c.queue).Msg("audit consumer started")

	for {
		select {
		case <-ctx.Done():
			c.log.Info().Msg("audit consumer stopping")
			return nil
		case d, ok := <-deliveries:
			if !ok {
				c.log.Warn().Msg("audit delivery channel closed")
				return nil
			}
			c.handle(ctx, d)
		}
	}
}

func (c *AuditConsumer) handle(ctx context.Context, d amqp.Delivery) {
	var event domain.AuditableEvent
	if err := json.Unmarshal(d.Body, &event); err != nil {
		// Malformed payload can never succeed; dead-letter it.
		c.log.Error().Err(err).Str("routing_key", d.RoutingKey).Msg("undecodable audit event")
		c.nack(d)
		return
	}

	if err := c.auditSvc.Record(ctx, event); err != nil {
		// Acking a failed write would turn at-least-once into silent loss;
		// reject so the delivery routes to the dead-letter queue.
		c.log.Error().Err(err).
			Str("event_id", event.EventID.String()).
			Str("event_type", event.EventType).
			Msg("failed to record audit event, dead-lettering")
		c.nack(d)
		return
	}

	if err := d.Ack(false); err != nil {
		c.log.Warn().Err(err).Str("event_id", event.EventID.String()).Msg("failed to ack audit delivery")
	}
}

func (c *AuditConsumer) nack(d amqp.Delivery) {
	if err := d.Nack(false, false); err != nil {
		c.log.Warn().Err(err).Msg("failed to nack audit delivery")
	}
}
