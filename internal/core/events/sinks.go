package events

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/go-redis/redis/v8"
	"github.com/streadway/amqp"

	"github.com/MuhamadAgungGumelar/donor-engagement-be/internal/shared/config"
	"github.com/MuhamadAgungGumelar/donor-engagement-be/internal/shared/utils"
)

// NewSinkFromConfig picks the sink named by EVENT_SINK.
func NewSinkFromConfig(cfg *config.Config) (Sink, error) {
	switch cfg.EventSink {
	case "", "log":
		return LogSink{}, nil
	case "redis":
		return NewRedisSink(cfg.RedisURL, cfg.RedisChannel)
	case "amqp", "rabbitmq":
		return NewAMQPSink(cfg.AMQPURL, cfg.AMQPExchange)
	default:
		return nil, fmt.Errorf("unknown event sink: %s", cfg.EventSink)
	}
}

// LogSink writes events to the structured log. Default for development.
type LogSink struct{}

func (LogSink) Name() string { return "log" }

func (LogSink) Send(_ context.Context, evt Event) error {
	utils.LogDebug("event published", map[string]interface{}{
		"event_type": evt.Type,
		"event_id":   evt.ID,
		"tenant_id":  evt.TenantID,
	})
	return nil
}

func (LogSink) Close() error { return nil }

// RedisSink publishes every event as JSON on one pub/sub channel, where the
// realtime notification service picks it up.
type RedisSink struct {
	client  *redis.Client
	channel string
}

func NewRedisSink(url, channel string) (*RedisSink, error) {
	if url == "" {
		return nil, fmt.Errorf("REDIS_URL is required for the redis event sink")
	}
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("invalid REDIS_URL: %w", err)
	}
	return &RedisSink{client: redis.NewClient(opts), channel: channel}, nil
}

func (s *RedisSink) Name() string { return "redis" }

func (s *RedisSink) Send(ctx context.Context, evt Event) error {
	data, err := json.Marshal(evt)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	return s.client.Publish(ctx, s.channel, data).Err()
}

func (s *RedisSink) Close() error { return s.client.Close() }

// AMQPSink publishes to a topic exchange with the event type as routing key.
type AMQPSink struct {
	conn     *amqp.Connection
	ch       *amqp.Channel
	exchange string
}

func NewAMQPSink(url, exchange string) (*AMQPSink, error) {
	if url == "" {
		return nil, fmt.Errorf("AMQP_URL is required for the amqp event sink")
	}
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to RabbitMQ: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to open a channel: %w", err)
	}
	if err := ch.ExchangeDeclare(
		exchange, // name
		"topic",  // kind
		true,     // durable
		false,    // auto-deleted
		false,    // internal
		false,    // no-wait
		nil,      // arguments
	); err != nil {
		ch.Close()
		conn.Close()
		return nil, fmt.Errorf("failed to declare exchange: %w", err)
	}
	return &AMQPSink{conn: conn, ch: ch, exchange: exchange}, nil
}

func (s *AMQPSink) Name() string { return "amqp" }

// Send ignores ctx: streadway/amqp publishes are not cancellable.
func (s *AMQPSink) Send(_ context.Context, evt Event) error {
	data, err := json.Marshal(evt)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	return s.ch.Publish(
		s.exchange, // exchange
		evt.Type,   // routing key
		false,      // mandatory
		false,      // immediate
		amqp.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp.Persistent,
			MessageId:    evt.ID,
			Timestamp:    evt.OccurredAt,
			Body:         data,
		},
	)
}

func (s *AMQPSink) Close() error {
	if err := s.ch.Close(); err != nil {
		s.conn.Close()
		return err
	}
	return s.conn.Close()
}
