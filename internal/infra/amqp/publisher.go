// internal/infra/amqp/publisher.go
package amqp

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"provider-dispatch/internal/domain"

	"github.com/streadway/amqp"
)

// envelope is the JSON shape published to the exchange. Downstream gateway
// workers own the actual delivery to the provider.
type envelope struct {
	To       string            `json:"to"`
	Template string            `json:"template,omitempty"`
	Params   map[string]string `json:"params,omitempty"`
	Body     string            `json:"body,omitempty"`
}

// Publisher implements domain.Notifier on a RabbitMQ fanout exchange.
type Publisher struct {
	conn     *amqp.Connection
	channel  *amqp.Channel
	exchange string
	logger   *slog.Logger
}

// NewPublisher connects to RabbitMQ and declares the notification exchange.
func NewPublisher(amqpURL, exchange string, logger *slog.Logger) (*Publisher, error) {
	conn, err := amqp.Dial(amqpURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to rabbitmq: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to open rabbitmq channel: %w", err)
	}
	if err := ch.ExchangeDeclare(
		exchange,
		"fanout",
		true,  // durable
		false, // auto-deleted
		false, // internal
		false, // no-wait
		nil,
	); err != nil {
		ch.Close()
		conn.Close()
		return nil, fmt.Errorf("failed to declare exchange %s: %w", exchange, err)
	}
	return &Publisher{
		conn:     conn,
		channel:  ch,
		exchange: exchange,
		logger:   logger.With("component", "amqp-notifier"),
	}, nil
}

// Send publishes the message to the notification exchange.
func (p *Publisher) Send(ctx context.Context, address string, msg domain.Message) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	body, err := json.Marshal(envelope{
		To:       address,
		Template: msg.Template,
		Params:   msg.Params,
		Body:     msg.Body,
	})
	if err != nil {
		return fmt.Errorf("failed to encode notification: %w", err)
	}

	if err := p.channel.Publish(
		p.exchange,
		"",
		false,
		false,
		amqp.Publishing{
			ContentType: "application/json",
			Body:        body,
		},
	); err != nil {
		return fmt.Errorf("failed to publish notification: %w", err)
	}

	p.logger.Debug("notification published", "to", address, "exchange", p.exchange)
	return nil
}

// Close closes the RabbitMQ channel and connection.
func (p *Publisher) Close() {
	if p.channel != nil {
		p.channel.Close()
	}
	if p.conn != nil {
		p.conn.Close()
	}
}
