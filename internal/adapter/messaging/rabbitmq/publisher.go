package rabbitmq

import (
	"context"
	"encoding/json"
	"fmt"

	"clinic-auth-service/internal/core/domain"

	amqp "github.com/rabbitmq/amqp091-go"
)

// Publisher implements ports.EventPublisher over the topic exchange.
// Messages are persistent and carry the eventId as MessageId so consumers
// can deduplicate under at-least-once delivery.
type Publisher struct {
	client *Client
}

// NewPublisher creates a publisher bound to the client's exchange.
func NewPublisher(client *Client) *Publisher {
	return &Publisher{client: client}
}

// Publish sends the event with its eventType as routing key. The caller
// bounds ctx; a slow broker fails the publish, never the business call.
func (p *Publisher) Publish(ctx context.Context, event domain.AuditableEvent) error {
	body, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshaling event: %w", err)
	}

	err = p.client.chn.PublishWithContext(
		ctx,
		p.client.exchange,
		event.RoutingKey(),
		false, // mandatory
		false, // immediate
		amqp.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp.Persistent,
			MessageId:    event.EventID.String(),
			Timestamp:    event.OccurredOn,
			Body:         body,
		},
	)
	if err != nil {
		return fmt.Errorf("publishing %s: %w", event.EventType, err)
	}
	return nil
}
