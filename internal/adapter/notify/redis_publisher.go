package notify

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/rl1809/stockroom/internal/core/domain"
)

// RedisPublisher publishes stock changes to a Redis pub/sub channel.
// Subscribers that are not listening at publish time miss the event, which
// matches the best-effort contract.
type RedisPublisher struct {
	client  *redis.Client
	channel string
}

func NewRedisPublisher(client *redis.Client, channel string) *RedisPublisher {
	return &RedisPublisher{client: client, channel: channel}
}

func (p *RedisPublisher) PublishStockChange(ctx context.Context, change domain.StockChange) error {
	payload, err := encodeStockChange(change)
	if err != nil {
		return fmt.Errorf("encode stock change: %w", err)
	}

	if err := p.client.Publish(ctx, p.channel, payload).Err(); err != nil {
		return fmt.Errorf("publish to %s: %w", p.channel, err)
	}
	return nil
}
