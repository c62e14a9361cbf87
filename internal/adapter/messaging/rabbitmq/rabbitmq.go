package rabbitmq

import (
	"context"
	"fmt"

	"clinic-auth-service/config"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/rs/zerolog"
)

// Audit queue bindings: one pattern per publishing domain of the platform.
var auditBindings = []string{
	"identity.#",
	"historia.#",
	"transcripcion.#",
	"exportacion.#",
}

// Client wraps an AMQP connection and channel with the exchange topology
// used by the clinic platform: one durable topic exchange for events plus a
// dead-letter exchange for audit deliveries that could not be persisted.
type Client struct {
	conn     *amqp.Connection
	chn      *amqp.Channel
	exchange string
	log      zerolog.Logger
}

// NewClient dials the broker, opens a channel and declares the topology.
func NewClient(cfg config.BrokerConfig, log zerolog.Logger) (*Client, error) {
	conn, err := amqp.Dial(cfg.URL())
	if err != nil {
		return nil, fmt.Errorf("dialing broker: %w", err)
	}

	chn, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("opening channel: %w", err)
	}

	c := &Client{conn: conn, chn: chn, exchange: cfg.Exchange, log: log}
	if err := c.declareTopology(cfg); err != nil {
		c.Close()
		return nil, err
	}

	log.Info().
		Str("host", cfg.Host).
		Str("exchange", cfg.Exchange).
		Str("audit_queue", cfg.AuditQueue).
		Msg("RabbitMQ connection established")

	return c, nil
}

// declareTopology sets up the topic exchange, the audit queue with its
// dead-letter route, and the wildcard bindings. Declarations are idempotent
// so every service can run them on startup.
func (c *Client) declareTopology(cfg config.BrokerConfig) error {
	if err := c.chn.ExchangeDeclare(
		cfg.Exchange, // name
		"topic",      // kind
		true,         // durable
		false,        // auto-delete
		false,        // internal
		false,        // no-wait
		nil,          // arguments
	); err != nil {
		return fmt.Errorf("declaring exchange: %w", err)
	}

	dlx := cfg.Exchange + ".dlx"
	if err := c.chn.ExchangeDeclare(dlx, "fanout", true, false, false, false, nil); err != nil {
		return fmt.Errorf("declaring dead-letter exchange: %w", err)
	}

	dlq := cfg.AuditQueue + ".dlq"
	if _, err := c.chn.QueueDeclare(dlq, true, false, false, false, nil); err != nil {
		return fmt.Errorf("declaring dead-letter queue: %w", err)
	}
	if err := c.chn.QueueBind(dlq, "", dlx, false, nil); err != nil {
		return fmt.Errorf("binding dead-letter queue: %w", err)
	}

	// Rejected audit deliveries route to the DLX instead of being dropped.
	if _, err := c.chn.QueueDeclare(
		cfg.AuditQueue,
		true,  // durable
		false, // auto-delete
		false, // exclusive
		false, // no-wait
		amqp.Table{"x-dead-letter-exchange": dlx},
	); err != nil {
		return fmt.Errorf("declaring audit queue: %w", err)
	}

	for _, pattern := range auditBindings {
		if err := c.chn.QueueBind(cfg.AuditQueue, pattern, cfg.Exchange, false, nil); err != nil {
			return fmt.Errorf("binding audit queue with %q: %w", pattern, err)
		}
	}

	return nil
}

// Close shuts down the channel and connection.
func (c *Client) Close() error {
	if err := c.chn.Close(); err != nil {
		c.conn.Close()
		return err
	}
	return c.conn.Close()
}

// HealthCheck implements ports.HealthChecker for the broker connection.
type HealthCheck struct {
	client *Client
}

// NewHealthCheck creates a RabbitMQ health checker.
func NewHealthCheck(client *Client) *HealthCheck {
	return &HealthCheck{client: client}
}

// Ping checks broker connectivity.
func (h *HealthCheck) Ping(_ context.Context) error {
	if h.client.conn.IsClosed() {
		return fmt.Errorf("amqp connection closed")
	}
	return nil
}

// Name returns the dependency name.
func (h *HealthCheck) Name() string {
	return "rabbitmq"
}
