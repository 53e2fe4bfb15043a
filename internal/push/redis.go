package push

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisTransport delivers project events over Redis pub/sub. The
// service publishes each event to the channel "project.<id>", so a
// subscription to that one channel is exactly the project room.
type RedisTransport struct {
	client *redis.Client
}

// NewRedisTransport connects to Redis and verifies the connection.
func NewRedisTransport(redisURL string) (*RedisTransport, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}

	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("connect to redis: %w", err)
	}

	return &RedisTransport{client: client}, nil
}

// NewRedisTransportWithClient creates a transport from an existing
// Redis client.
func NewRedisTransportWithClient(client *redis.Client) *RedisTransport {
	return &RedisTransport{client: client}
}

func channelName(projectID int64) string {
	return fmt.Sprintf("project.%d", projectID)
}

// Join subscribes to the project's channel. The stop function
// unsubscribes; the message channel closes shortly after.
func (t *RedisTransport) Join(ctx context.Context, projectID int64) (<-chan Message, func(), error) {
	sub := t.client.Subscribe(ctx, channelName(projectID))

	// Receive forces the SUBSCRIBE round trip so a failed join surfaces
	// here instead of as a silent dead channel.
	if _, err := sub.Receive(ctx); err != nil {
		_ = sub.Close()
		return nil, nil, fmt.Errorf("join project %d: %w", projectID, err)
	}

	out := make(chan Message)
	go func() {
		defer close(out)
		for raw := range sub.Channel() {
			var m Message
			if err := json.Unmarshal([]byte(raw.Payload), &m); err != nil {
				log.Printf("push: drop malformed event on %s: %v", raw.Channel, err)
				continue
			}
			out <- m
		}
	}()

	stop := func() {
		if err := sub.Close(); err != nil {
			log.Printf("push: close subscription: %v", err)
		}
	}
	return out, stop, nil
}

// Ping checks if Redis is reachable.
func (t *RedisTransport) Ping(ctx context.Context) error {
	return t.client.Ping(ctx).Err()
}

// Close closes the Redis connection.
func (t *RedisTransport) Close() error {
	return t.client.Close()
}
