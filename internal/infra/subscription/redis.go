package subscription

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/redis/go-redis/v9"

	redisclient "github.com/vietddude/orchestrator/internal/infra/redis"
)

// messageSource is the part of *redis.PubSub the subscriber reads from.
type messageSource interface {
	Channel(opts ...redis.ChannelOption) <-chan *redis.Message
	Close() error
}

// RedisPubSub receives block JSON published on a Redis channel.
type RedisPubSub struct {
	channel string
	open    func(ctx context.Context, channel string) messageSource
	log     *slog.Logger
}

// NewRedisPubSub creates a subscriber on the given pub/sub channel.
func NewRedisPubSub(client *redisclient.Client, channel string, log *slog.Logger) *RedisPubSub {
	return newRedisPubSub(channel, func(ctx context.Context, ch string) messageSource {
		return client.Subscribe(ctx, ch)
	}, log)
}

func newRedisPubSub(
	channel string,
	open func(ctx context.Context, channel string) messageSource,
	log *slog.Logger,
) *RedisPubSub {
	if log == nil {
		log = slog.Default()
	}
	return &RedisPubSub{
		channel: channel,
		open:    open,
		log:     log.With("component", "subscription", "type", "redis"),
	}
}

// Subscribe delivers blocks until ctx is done. go-redis reconnects the
// underlying connection on its own.
func (s *RedisPubSub) Subscribe(ctx context.Context, handler Handler) error {
	if s.channel == "" {
		return fmt.Errorf("redis subscription requires a channel")
	}

	ps := s.open(ctx, s.channel)
	defer ps.Close()
	s.log.Info("Subscribed to block channel", "channel", s.channel)

	msgs := ps.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-msgs:
			if !ok {
				return fmt.Errorf("redis channel %s closed", s.channel)
			}
			deliver(ctx, s.log, "redis", []byte(msg.Payload), handler)
		}
	}
}
