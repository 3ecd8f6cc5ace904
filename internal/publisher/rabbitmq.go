package publisher

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"

	"autokudo/internal/domain"
)

const (
	ActionGiven  = "kudo.given"
	ActionFailed = "kudo.failed"
)

type Config struct {
	URL        string
	Exchange   string
	RoutingKey string
	QueueName  string
}

// RabbitMQ publishes one message per kudo attempt to a durable direct exchange.
type RabbitMQ struct {
	conn       *amqp.Connection
	channel    *amqp.Channel
	exchange   string
	routingKey string
	logger     *slog.Logger
	now        func() time.Time
}

func NewRabbitMQ(cfg Config, logger *slog.Logger) (*RabbitMQ, error) {
	conn, err := amqp.Dial(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("connect to rabbitmq: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("open channel: %w", err)
	}

	if err := declare(ch, cfg); err != nil {
		ch.Close()
		conn.Close()
		return nil, err
	}

	logger = logger.With("component", "publisher")
	logger.Info("connected to rabbitmq",
		"exchange", cfg.Exchange,
		"queue", cfg.QueueName,
		"routing_key", cfg.RoutingKey,
	)

	return &RabbitMQ{
		conn:       conn,
		channel:    ch,
		exchange:   cfg.Exchange,
		routingKey: cfg.RoutingKey,
		logger:     logger,
		now:        time.Now,
	}, nil
}

func declare(ch *amqp.Channel, cfg Config) error {
	if err := ch.ExchangeDeclare(cfg.Exchange, "direct", true, false, false, false, nil); err != nil {
		return fmt.Errorf("declare exchange: %w", err)
	}

	q, err := ch.QueueDeclare(cfg.QueueName, true, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("declare queue: %w", err)
	}

	if err := ch.QueueBind(q.Name, cfg.RoutingKey, cfg.Exchange, false, nil); err != nil {
		return fmt.Errorf("bind queue: %w", err)
	}
	return nil
}

// KudoMessage is the JSON body of every published outcome.
type KudoMessage struct {
	Action     string    `json:"action"`
	RunID      uuid.UUID `json:"run_id"`
	Index      int       `json:"index"`
	ActivityID string    `json:"activity_id"`
	Athlete    string    `json:"athlete"`
	Name       string    `json:"name"`
	Error      string    `json:"error,omitempty"`
	Timestamp  time.Time `json:"timestamp"`
}

// NewKudoMessage builds the message for one outcome of run runID.
func NewKudoMessage(runID uuid.UUID, outcome domain.KudoOutcome, now time.Time) KudoMessage {
	msg := KudoMessage{
		Action:     ActionGiven,
		RunID:      runID,
		Index:      outcome.Index,
		ActivityID: outcome.Activity.ID,
		Athlete:    outcome.Activity.Athlete,
		Name:       outcome.Activity.Name,
		Timestamp:  now.UTC(),
	}
	if !outcome.OK() {
		msg.Action = ActionFailed
		msg.Error = outcome.Err.Error()
	}
	return msg
}

func (r *RabbitMQ) Publish(ctx context.Context, runID uuid.UUID, outcome domain.KudoOutcome) error {
	now := r.now()
	msg := NewKudoMessage(runID, outcome, now)

	body, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal message: %w", err)
	}

	err = r.channel.PublishWithContext(
		ctx,
		r.exchange,
		r.routingKey,
		false,
		false,
		amqp.Publishing{
			DeliveryMode: amqp.Persistent,
			ContentType:  "application/json",
			MessageId:    fmt.Sprintf("%s/%d", runID, outcome.Index),
			Body:         body,
			Timestamp:    now,
		},
	)
	if err != nil {
		return fmt.Errorf("publish message: %w", err)
	}

	r.logger.Debug("published kudo outcome",
		"run_id", runID,
		"activity_id", msg.ActivityID,
		"action", msg.Action,
	)

	return nil
}

func (r *RabbitMQ) Close() error {
	if r.channel != nil {
		r.channel.Close()
	}
	if r.conn != nil {
		return r.conn.Close()
	}
	return nil
}
