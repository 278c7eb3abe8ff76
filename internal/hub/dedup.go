package hub

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const inboundDedupKeyPrefix = "inbound_seen:"

// RedisDeduper remembers channel-native message ids for a TTL so webhook
// redeliveries can be dropped before they reach the ledger. The unique index
// on (conversation_id, external_message_id) remains the durable guard.
type RedisDeduper struct {
	redis *redis.Client
	ttl   time.Duration
}

// NewRedisDeduper returns nil when client is nil so callers can treat the
// guard as optional.
func NewRedisDeduper(client *redis.Client, ttl time.Duration) *RedisDeduper {
	if client == nil {
		return nil
	}
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &RedisDeduper{redis: client, ttl: ttl}
}

// MarkSeen records the id and reports whether this is its first sighting.
// An empty externalMessageID is always treated as first.
func (d *RedisDeduper) MarkSeen(ctx context.Context, channel Channel, externalMessageID string) (bool, error) {
	if d == nil || d.redis == nil || externalMessageID == "" {
		return true, nil
	}
	first, err := d.redis.SetNX(ctx, inboundDedupKey(channel, externalMessageID), 1, d.ttl).Result()
	if err != nil {
		return true, fmt.Errorf("hub: mark inbound seen: %w", err)
	}
	return first, nil
}

// Forget drops a mark so a failed delivery can be processed again.
func (d *RedisDeduper) Forget(ctx context.Context, channel Channel, externalMessageID string) error {
	if d == nil || d.redis == nil || externalMessageID == "" {
		return nil
	}
	if err := d.redis.Del(ctx, inboundDedupKey(channel, externalMessageID)).Err(); err != nil {
		return fmt.Errorf("hub: forget inbound: %w", err)
	}
	return nil
}

func inboundDedupKey(channel Channel, externalMessageID string) string {
	return fmt.Sprintf("%s%s:%s", inboundDedupKeyPrefix, channel, externalMessageID)
}
