package cancel

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/redis/go-redis/v9"
)

// DefaultChannel — канал Redis для запросов отмены.
const DefaultChannel = "graphflow:cancel"

// RedisBus рассылает запросы отмены между процессами.
type RedisBus struct {
	client   *redis.Client
	channel  string
	registry *Registry
	logger   *slog.Logger

	ready     chan struct{}
	readyOnce sync.Once
}

// NewRedisBus создаёт шину отмены поверх registry.
func NewRedisBus(client *redis.Client, registry *Registry, logger *slog.Logger) *RedisBus {
	if logger == nil {
		logger = slog.Default()
	}
	return &RedisBus{
		client:   client,
		channel:  DefaultChannel,
		registry: registry,
		logger:   logger,
		ready:    make(chan struct{}),
	}
}

// NewRedisClient создаёт клиента по URL вида redis://host:port/db.
func NewRedisClient(url string) (*redis.Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	return redis.NewClient(opts), nil
}

// Ready закрывается, когда подписка Listen подтверждена.
func (b *RedisBus) Ready() <-chan struct{} {
	return b.ready
}

// CancelRun отменяет run локально и публикует запрос для остальных процессов.
// Ошибка возвращается только при сбое публикации.
func (b *RedisBus) CancelRun(ctx context.Context, runID string) error {
	local := b.registry.Cancel(runID)

	if err := b.client.Publish(ctx, b.channel, runID).Err(); err != nil {
		return fmt.Errorf("publish cancel %s: %w", runID, err)
	}

	b.logger.Info("cancel requested",
		slog.String("run_id", runID),
		slog.Bool("local", local),
	)
	return nil
}

// Listen подписывается на канал и отменяет локальные run'ы.
// Блокируется до отмены ctx.
func (b *RedisBus) Listen(ctx context.Context) error {
	sub := b.client.Subscribe(ctx, b.channel)
	defer sub.Close()

	if _, err := sub.Receive(ctx); err != nil {
		return fmt.Errorf("subscribe %s: %w", b.channel, err)
	}
	b.readyOnce.Do(func() { close(b.ready) })

	b.logger.Info("listening for cancel requests", slog.String("channel", b.channel))

	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			if b.registry.Cancel(msg.Payload) {
				b.logger.Info("run cancelled", slog.String("run_id", msg.Payload))
			}
		}
	}
}
