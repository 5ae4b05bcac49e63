package mq

import (
	"context"
	"fmt"
	"strings"

	amqp "github.com/rabbitmq/amqp091-go"
)

// Exchange — имя обменника.
type Exchange string

// Queue — имя очереди.
type Queue string

// RoutingKey — ключ маршрутизации.
type RoutingKey string

const (
	ExchangeRuns Exchange = "graphflow.runs"
	ExchangeDLQ  Exchange = "graphflow.dlq"
)

const (
	QueueRunsPending  Queue = "runs.pending"
	QueueRunsFinished Queue = "runs.finished"
	QueueDLQRuns      Queue = "dlq.runs"
)

const (
	RoutingKeyPending  RoutingKey = "run.pending"
	RoutingKeyFinished RoutingKey = "run.finished"
	RoutingKeyDLQRuns  RoutingKey = "runs"
)

type exchangeDecl struct {
	name Exchange
	kind string
}

type queueDecl struct {
	name Queue
	args amqp.Table
}

type bindingDecl struct {
	queue    Queue
	key      RoutingKey
	exchange Exchange
}

// Topology — полный набор объявлений для брокера.
type Topology struct {
	exchanges []exchangeDecl
	queues    []queueDecl
	bindings  []bindingDecl
}

// RunsTopology описывает очереди запусков с DLQ для runs.pending.
func RunsTopology() Topology {
	pendingArgs := amqp.Table{
		"x-dead-letter-exchange":    string(ExchangeDLQ),
		"x-dead-letter-routing-key": string(RoutingKeyDLQRuns),
	}

	return Topology{
		exchanges: []exchangeDecl{
			{ExchangeRuns, amqp.ExchangeDirect},
			{ExchangeDLQ, amqp.ExchangeDirect},
		},
		queues: []queueDecl{
			{QueueRunsPending, pendingArgs},
			{QueueRunsFinished, nil},
			{QueueDLQRuns, nil},
		},
		bindings: []bindingDecl{
			{QueueRunsPending, RoutingKeyPending, ExchangeRuns},
			{QueueRunsFinished, RoutingKeyFinished, ExchangeRuns},
			{QueueDLQRuns, RoutingKeyDLQRuns, ExchangeDLQ},
		},
	}
}

// Queues возвращает имена объявляемых очередей.
func (t Topology) Queues() []Queue {
	out := make([]Queue, 0, len(t.queues))
	for _, q := range t.queues {
		out = append(out, q.name)
	}
	return out
}

// DeadLetterFor возвращает обменник DLQ очереди, если он настроен.
func (t Topology) DeadLetterFor(q Queue) (Exchange, bool) {
	for _, decl := range t.queues {
		if decl.name != q || decl.args == nil {
			continue
		}
		if ex, ok := decl.args["x-dead-letter-exchange"].(string); ok {
			return Exchange(ex), true
		}
	}
	return "", false
}

// Declare объявляет обменники, очереди и привязки на канале.
func (t Topology) Declare(ch *amqp.Channel) error {
	for _, ex := range t.exchanges {
		if err := ch.ExchangeDeclare(string(ex.name), ex.kind, true, false, false, false, nil); err != nil {
			return fmt.Errorf("declare exchange %s: %w", ex.name, err)
		}
	}

	for _, q := range t.queues {
		if _, err := ch.QueueDeclare(string(q.name), true, false, false, false, q.args); err != nil {
			return fmt.Errorf("declare queue %s: %w", q.name, err)
		}
	}

	for _, b := range t.bindings {
		if err := ch.QueueBind(string(b.queue), string(b.key), string(b.exchange), false, nil); err != nil {
			return fmt.Errorf("bind queue %s to %s: %w", b.queue, b.exchange, err)
		}
	}

	return nil
}

// String рисует топологию для стартового лога.
func (t Topology) String() string {
	var sb strings.Builder
	for _, ex := range t.exchanges {
		fmt.Fprintf(&sb, "%s (%s)\n", ex.name, ex.kind)
		for _, b := range t.bindings {
			if b.exchange != ex.name {
				continue
			}
			fmt.Fprintf(&sb, "  %s [routing: %s]", b.queue, b.key)
			if dlx, ok := t.DeadLetterFor(b.queue); ok {
				fmt.Fprintf(&sb, " dlx: %s", dlx)
			}
			sb.WriteString("\n")
		}
	}
	return sb.String()
}

// SetupTopology объявляет топологию запусков через соединение.
func SetupTopology(ctx context.Context, conn *Connection) error {
	return conn.WithChannel(ctx, RunsTopology().Declare)
}
