package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/redis/go-redis/v9"

	"github.com/zatekoja/eventscan/internal/domain/entities"
	"github.com/zatekoja/eventscan/internal/domain/providers"
	redisclient "github.com/zatekoja/eventscan/internal/infrastructure/clients/redis"
	"github.com/zatekoja/eventscan/internal/infrastructure/observability"
)

const subscriberBuffer = 100

// channelSubscription is one Redis subscription fanned out to local listeners
type channelSubscription struct {
	pubsub    *redis.PubSub
	listeners map[chan *entities.EventUpdate]struct{}
}

// RedisEventBus implements the EventBus interface using Redis Pub/Sub
type RedisEventBus struct {
	client   *redisclient.Client
	mu       sync.RWMutex
	channels map[string]*channelSubscription
	ctx      context.Context
	cancel   context.CancelFunc
}

// NewRedisEventBus creates a new Redis-based event bus
func NewRedisEventBus(client *redisclient.Client) *RedisEventBus {
	ctx, cancel := context.WithCancel(context.Background())
	return &RedisEventBus{
		client:   client,
		channels: make(map[string]*channelSubscription),
		ctx:      ctx,
		cancel:   cancel,
	}
}

var _ providers.EventBus = (*RedisEventBus)(nil)

// Publish publishes an update to all subscribers
func (b *RedisEventBus) Publish(ctx context.Context, channel string, update *entities.EventUpdate) error {
	data, err := json.Marshal(update)
	if err != nil {
		return fmt.Errorf("failed to marshal event update: %w", err)
	}

	if err := b.client.Client().Publish(ctx, channel, data).Err(); err != nil {
		return fmt.Errorf("failed to publish event update: %w", err)
	}

	observability.LoggerFromContext(ctx).Debug().
		Str("channel", channel).
		Str("event_id", update.EventID).
		Str("type", string(update.Type)).
		Msg("Published event update")
	return nil
}

// Subscribe subscribes to updates on a channel. The returned channel is closed when ctx
// is done or the channel is unsubscribed.
func (b *RedisEventBus) Subscribe(ctx context.Context, channel string) (<-chan *entities.EventUpdate, error) {
	listener := make(chan *entities.EventUpdate, subscriberBuffer)

	b.mu.Lock()
	sub, ok := b.channels[channel]
	if !ok {
		sub = &channelSubscription{
			pubsub:    b.client.Client().Subscribe(b.ctx, channel),
			listeners: make(map[chan *entities.EventUpdate]struct{}),
		}
		b.channels[channel] = sub
		go b.receive(channel, sub.pubsub)
	}
	sub.listeners[listener] = struct{}{}
	count := len(sub.listeners)
	b.mu.Unlock()

	observability.GetLogger().Info().Str("channel", channel).Int("subscribers", count).Msg("Subscribed to channel")

	go func() {
		select {
		case <-ctx.Done():
		case <-b.ctx.Done():
		}
		b.removeListener(channel, listener)
	}()

	return listener, nil
}

func (b *RedisEventBus) receive(channel string, pubsub *redis.PubSub) {
	logger := observability.GetLogger()
	messages := pubsub.Channel()

	for {
		select {
		case <-b.ctx.Done():
			return
		case msg, ok := <-messages:
			if !ok {
				return
			}

			var update entities.EventUpdate
			if err := json.Unmarshal([]byte(msg.Payload), &update); err != nil {
				logger.Warn().Err(err).Str("channel", channel).Msg("Dropping malformed event update")
				continue
			}

			b.mu.RLock()
			if sub, ok := b.channels[channel]; ok {
				for listener := range sub.listeners {
					select {
					case listener <- &update:
					default:
						logger.Warn().Str("channel", channel).Str("event_id", update.EventID).Msg("Subscriber full, dropping event update")
					}
				}
			}
			b.mu.RUnlock()
		}
	}
}

func (b *RedisEventBus) removeListener(channel string, listener chan *entities.EventUpdate) {
	b.mu.Lock()
	defer b.mu.Unlock()

	sub, ok := b.channels[channel]
	if !ok {
		return
	}
	if _, ok := sub.listeners[listener]; !ok {
		return
	}

	delete(sub.listeners, listener)
	close(listener)

	if len(sub.listeners) == 0 {
		_ = sub.pubsub.Close()
		delete(b.channels, channel)
	}
}

func (b *RedisEventBus) closeChannel(channel string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	sub, ok := b.channels[channel]
	if !ok {
		return nil
	}

	for listener := range sub.listeners {
		close(listener)
	}
	delete(b.channels, channel)

	if err := sub.pubsub.Close(); err != nil {
		return fmt.Errorf("failed to close subscription %s: %w", channel, err)
	}
	return nil
}

// Unsubscribe unsubscribes every listener from a channel
func (b *RedisEventBus) Unsubscribe(ctx context.Context, channel string) error {
	if err := b.closeChannel(channel); err != nil {
		return err
	}
	observability.LoggerFromContext(ctx).Info().Str("channel", channel).Msg("Unsubscribed from channel")
	return nil
}

// Close closes the event bus and all subscriptions
func (b *RedisEventBus) Close() error {
	b.cancel()

	b.mu.RLock()
	names := make([]string, 0, len(b.channels))
	for name := range b.channels {
		names = append(names, name)
	}
	b.mu.RUnlock()

	var errs []error
	for _, name := range names {
		errs = append(errs, b.closeChannel(name))
	}
	return errors.Join(errs...)
}
