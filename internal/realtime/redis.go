package realtime

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	goredis "github.com/redis/go-redis/v9"
)

// EventsChannel receives every event from every conversation.
const EventsChannel = "symposium:events"

// ConversationChannel is the per-conversation channel name.
func ConversationChannel(conversationID string) string {
	return "symposium:" + conversationID
}

// RedisPublisher publishes state events with Redis PUBLISH.
type RedisPublisher struct {
	rdb *goredis.Client
	log *slog.Logger
}

// NewRedisPublisher connects to addr and verifies the connection with PING.
func NewRedisPublisher(ctx context.Context, addr string, logger *slog.Logger) (*RedisPublisher, error) {
	if addr == "" {
		return nil, fmt.Errorf("missing REDIS_ADDR")
	}
	if logger == nil {
		logger = slog.Default()
	}
	rdb := goredis.NewClient(&goredis.Options{
		Addr:        addr,
		DialTimeout: 5 * time.Second,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return &RedisPublisher{rdb: rdb, log: logger.With("component", "redis_publisher")}, nil
}

func (p *RedisPublisher) Publish(ctx context.Context, ev StateEvent) error {
	raw, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal state event: %w", err)
	}
	pipe := p.rdb.Pipeline()
	pipe.Publish(ctx, ConversationChannel(ev.ConversationID), raw)
	pipe.Publish(ctx, EventsChannel, raw)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis publish: %w", err)
	}
	return nil
}

// Follow subscribes to one conversation (or every conversation when the id is empty)
// and calls onEvent for each event until ctx ends or onEvent returns false.
func (p *RedisPublisher) Follow(ctx context.Context, conversationID string, onEvent func(StateEvent) bool) error {
	channel := EventsChannel
	if conversationID != "" {
		channel = ConversationChannel(conversationID)
	}
	sub := p.rdb.Subscribe(ctx, channel)
	defer sub.Close()

	if _, err := sub.Receive(ctx); err != nil {
		return fmt.Errorf("redis subscribe: %w", err)
	}

	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case m, ok := <-ch:
			if !ok || m == nil {
				return nil
			}
			var ev StateEvent
			if err := json.Unmarshal([]byte(m.Payload), &ev); err != nil {
				p.log.Warn("Bad state event payload", "channel", m.Channel, "error", err)
				continue
			}
			if !onEvent(ev) {
				return nil
			}
		}
	}
}

func (p *RedisPublisher) Close() error {
	return p.rdb.Close()
}
