package mq

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
)

// MessageType — тип сообщения.
type MessageType string

const (
	MessageTypeRunPending  MessageType = "run.pending"
	MessageTypeRunFinished MessageType = "run.finished"
)

// Message — конверт сообщения в очереди.
type Message struct {
	ID        string      `json:"id"`
	Type      MessageType `json:"type"`
	Payload   any         `json:"payload"`
	Timestamp time.Time   `json:"timestamp"`
}

// NewMessage оборачивает payload в конверт с новым ID.
func NewMessage(t MessageType, payload any) *Message {
	return &Message{
		ID:        uuid.New().String(),
		Type:      t,
		Payload:   payload,
		Timestamp: time.Now().UTC(),
	}
}

// RunPendingPayload — run поставлен в очередь на исполнение.
type RunPendingPayload struct {
	RunID      uuid.UUID `json:"run_id"`
	WorkflowID string    `json:"workflow_id,omitempty"`
}

// RunFinishedPayload — run дошёл до терминального статуса.
type RunFinishedPayload struct {
	RunID      uuid.UUID `json:"run_id"`
	WorkflowID string    `json:"workflow_id"`
	Status     string    `json:"status"`
	Reason     string    `json:"reason,omitempty"`
	Steps      int       `json:"steps"`
	DurationMs int64     `json:"duration_ms"`
}

// Publisher публикует события запусков.
type Publisher struct {
	conn   *Connection
	logger *slog.Logger
}

// NewPublisher создаёт Publisher поверх соединения.
func NewPublisher(conn *Connection, logger *slog.Logger) *Publisher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Publisher{conn: conn, logger: logger}
}

// Publish отправляет конверт в exchange как persistent JSON.
func (p *Publisher) Publish(ctx context.Context, exchange Exchange, key RoutingKey, msg *Message) error {
	body, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal message: %w", err)
	}

	pub := amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		MessageId:    msg.ID,
		Type:         string(msg.Type),
		Timestamp:    msg.Timestamp,
		Body:         body,
	}

	return p.conn.WithChannel(ctx, func(ch *amqp.Channel) error {
		if err := ch.PublishWithContext(ctx, string(exchange), string(key), false, false, pub); err != nil {
			return fmt.Errorf("publish to %s/%s: %w", exchange, key, err)
		}

		p.logger.Debug("published message",
			"exchange", exchange,
			"routing_key", key,
			"message_id", msg.ID,
			"type", msg.Type,
		)
		return nil
	})
}

// PublishRunPending сообщает воркерам о новом run.
func (p *Publisher) PublishRunPending(ctx context.Context, runID uuid.UUID, workflowID string) error {
	msg := NewMessage(MessageTypeRunPending, RunPendingPayload{RunID: runID, WorkflowID: workflowID})
	return p.Publish(ctx, ExchangeRuns, RoutingKeyPending, msg)
}

// PublishRunFinished сообщает о завершении run.
func (p *Publisher) PublishRunFinished(ctx context.Context, payload RunFinishedPayload) error {
	msg := NewMessage(MessageTypeRunFinished, payload)
	return p.Publish(ctx, ExchangeRuns, RoutingKeyFinished, msg)
}
