package events

import (
	"context"
	"encoding/json"
	"log"

	"github.com/redis/go-redis/v9"

	"reporthub-backend/internal/collab"
)

// ChannelFor returns the pub/sub channel carrying a session's events.
// The publisher writes to it; the websocket hub subscribes while the
// session has connected clients.
func ChannelFor(sessionID string) string {
	return "collab_updates:" + sessionID
}

// RedisPublisher bridges coordinator events onto Redis pub/sub for the
// push binding. Publish failures are logged and dropped; the poll
// binding still sees every update through the log.
type RedisPublisher struct {
	client *redis.Client
}

func NewRedisPublisher(client *redis.Client) *RedisPublisher {
	return &RedisPublisher{client: client}
}

func (p *RedisPublisher) PublishUpdate(ctx context.Context, sessionID string, event collab.UpdateEvent) {
	data, err := json.Marshal(event)
	if err != nil {
		log.Printf("event publish: marshal failed for session %s: %v", sessionID, err)
		return
	}
	if err := p.client.Publish(ctx, ChannelFor(sessionID), data).Err(); err != nil {
		log.Printf("event publish: redis publish failed for session %s: %v", sessionID, err)
	}
}
