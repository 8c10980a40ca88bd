package broker

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"

	"github.com/gowebpki/jcs"
	amqp "github.com/rabbitmq/amqp091-go"

	"wallet-service/internal/domain"
)

type RabbitMQ struct {
	Connection *amqp.Connection
	Channel    *amqp.Channel
	URL        string
}

func NewRabbitMQ(url string) *RabbitMQ {
	return &RabbitMQ{URL: url}
}

func (r *RabbitMQ) Connect() error {
	conn, err := amqp.Dial(r.URL)
	if err != nil {
		return fmt.Errorf("rabbitmq dial: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return fmt.Errorf("rabbitmq channel: %w", err)
	}

	r.Connection = conn
	r.Channel = ch

	return nil
}

// DeclareExchange makes sure the topic exchange events are published to exists.
func (r *RabbitMQ) DeclareExchange(name string) error {
	if err := r.Channel.ExchangeDeclare(name, amqp.ExchangeTopic, true, false, false, false, nil); err != nil {
		return fmt.Errorf("rabbitmq declare exchange %s: %w", name, err)
	}
	return nil
}

func (r *RabbitMQ) Close() {
	if r.Channel != nil {
		r.Channel.Close()
	}
	if r.Connection != nil {
		r.Connection.Close()
	}
}

// Channel is the subset of *amqp.Channel the publisher needs.
type Channel interface {
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
}

// RabbitMQPublisher publishes account events to a topic exchange using the
// event type as routing key. Bodies are JCS-canonical JSON, and the message
// id is the SHA-256 of that body so consumers can deduplicate redeliveries.
type RabbitMQPublisher struct {
	channel  Channel
	exchange string
}

func NewRabbitMQPublisher(ch Channel, exchange string) *RabbitMQPublisher {
	return &RabbitMQPublisher{
		channel:  ch,
		exchange: exchange,
	}
}

func (p *RabbitMQPublisher) Publish(ctx context.Context, event *domain.AccountEvent) error {
	body, err := CanonicalBody(event)
	if err != nil {
		return fmt.Errorf("encode event %s: %w", event.Type, err)
	}

	sum := sha256.Sum256(body)

	err = p.channel.PublishWithContext(
		ctx,
		p.exchange,
		event.Type,
		false,
		false,
		amqp.Publishing{
			ContentType:  "application/json",
			Body:         body,
			DeliveryMode: amqp.Persistent,
			MessageId:    hex.EncodeToString(sum[:]),
			Timestamp:    time.Now().UTC(),
			Type:         event.Type,
			Headers: amqp.Table{
				"event_type": event.Type,
				"account_id": event.AccountID.String(),
			},
		},
	)
	if err != nil {
		return fmt.Errorf("publish event %s for account %s: %w", event.Type, event.AccountID, err)
	}

	return nil
}

// CanonicalBody renders the event as RFC 8785 canonical JSON.
func CanonicalBody(event *domain.AccountEvent) ([]byte, error) {
	raw, err := json.Marshal(event)
	if err != nil {
		return nil, err
	}
	return jcs.Transform(raw)
}
