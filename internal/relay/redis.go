package relay

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/redis/go-redis/v9"
	"github.com/vk/modgate/internal/statestore"
	"github.com/vmihailenco/msgpack/v5"
)

// RedisBus publishes and receives Update envelopes on a Redis channel.
type RedisBus struct {
	client  *redis.Client
	channel string
}

// NewRedisClient connects to addr. The connection is checked with PING.
func NewRedisClient(ctx context.Context, addr, password string, db int) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to redis at %s: %w", addr, err)
	}
	return client, nil
}

// NewRedisBus uses client to talk on channel.
func NewRedisBus(client *redis.Client, channel string) *RedisBus {
	return &RedisBus{client: client, channel: channel}
}

// Publish sends env to every subscriber.
func (b *RedisBus) Publish(ctx context.Context, env *Envelope) error {
	data, err := encodePayload(env)
	if err != nil {
		return err
	}
	if err := b.client.Publish(ctx, b.channel, data).Err(); err != nil {
		return fmt.Errorf("failed to publish to %s: %w", b.channel, err)
	}
	return nil
}

// Subscribe streams envelopes until ctx is cancelled. Undecodable messages
// are logged and dropped.
func (b *RedisBus) Subscribe(ctx context.Context, logger *slog.Logger) (<-chan *Envelope, error) {
	sub := b.client.Subscribe(ctx, b.channel)
	if _, err := sub.Receive(ctx); err != nil {
		_ = sub.Close()
		return nil, fmt.Errorf("failed to subscribe to %s: %w", b.channel, err)
	}

	out := make(chan *Envelope, 64)
	go func() {
		defer close(out)
		defer sub.Close()
		msgs := sub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-msgs:
				if !ok {
					return
				}
				env, err := decodePayload(msg.Payload)
				if err != nil {
					logger.Warn("Dropping malformed relay message.", "channel", b.channel, "error", err)
					continue
				}
				select {
				case out <- env:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return out, nil
}

// Forwarder returns a statestore.Forwarder that publishes updates on the bus.
func (b *RedisBus) Forwarder(ctx context.Context) statestore.Forwarder {
	return statestore.ForwarderFunc(func(u statestore.Update) error {
		return b.Publish(ctx, NewUpdate(u))
	})
}

func encodePayload(env *Envelope) ([]byte, error) {
	data, err := msgpack.Marshal(env)
	if err != nil {
		return nil, fmt.Errorf("failed to encode %s envelope: %w", env.Kind, err)
	}
	return data, nil
}

func decodePayload(payload string) (*Envelope, error) {
	var env Envelope
	if err := msgpack.Unmarshal([]byte(payload), &env); err != nil {
		return nil, fmt.Errorf("failed to decode envelope: %w", err)
	}
	return &env, nil
}
