package events

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/redis/go-redis/v9"
)

// RedisNotifier pushes events onto per-user pub/sub channels so connected
// clients see confirmations without polling.
type RedisNotifier struct {
	client redis.UniversalClient
	prefix string
}

func NewRedisNotifier(client redis.UniversalClient, prefix string) *RedisNotifier {
	prefix = strings.TrimSuffix(strings.TrimSpace(prefix), ":")
	if prefix == "" {
		prefix = "sendflow"
	}
	return &RedisNotifier{client: client, prefix: prefix}
}

func (n *RedisNotifier) Channel(userID int) string {
	return fmt.Sprintf("%s:user:%d", n.prefix, userID)
}

func (n *RedisNotifier) Publish(ctx context.Context, event Event) error {
	if len(event.UserIDs) == 0 {
		return nil
	}
	body, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to encode event: %w", err)
	}
	for _, id := range event.UserIDs {
		if err := n.client.Publish(ctx, n.Channel(id), body).Err(); err != nil {
			return fmt.Errorf("failed to notify user %d: %w", id, err)
		}
	}
	return nil
}

// Subscribe streams raw event payloads for one user until ctx is done.
func (n *RedisNotifier) Subscribe(ctx context.Context, userID int) (<-chan []byte, error) {
	sub := n.client.Subscribe(ctx, n.Channel(userID))
	if _, err := sub.Receive(ctx); err != nil {
		sub.Close()
		return nil, fmt.Errorf("failed to subscribe to %s: %w", n.Channel(userID), err)
	}

	out := make(chan []byte)
	go func() {
		defer close(out)
		defer sub.Close()
		messages := sub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-messages:
				if !ok {
					return
				}
				select {
				case out <- []byte(msg.Payload):
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return out, nil
}
