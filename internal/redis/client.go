package redis

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
)

const sessionEventPrefix = "session-events:"

type Client struct {
	*redis.Client
}

// NewClient connects and pings within ctx. The client is closed again when
// the ping fails.
func NewClient(ctx context.Context, redisURL string) (*Client, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}

	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}

	return &Client{client}, nil
}

func (c *Client) Close() error {
	return c.Client.Close()
}

// PublishSessionEvent sends an encoded lifecycle event to every replica
// subscribed to the session.
func (c *Client) PublishSessionEvent(ctx context.Context, sessionID string, payload []byte) error {
	if err := c.Publish(ctx, SessionEventChannel(sessionID), payload).Err(); err != nil {
		return fmt.Errorf("publish session event: %w", err)
	}
	return nil
}

// SubscribeSessionEvents returns a subscription to one session's lifecycle
// events. The caller closes it.
func (c *Client) SubscribeSessionEvents(ctx context.Context, sessionID string) *redis.PubSub {
	return c.Subscribe(ctx, SessionEventChannel(sessionID))
}

// SessionEventChannel is the pub/sub channel carrying lifecycle events of one session.
func SessionEventChannel(sessionID string) string {
	return sessionEventPrefix + sessionID
}
