package hub

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func TestRedisDeduper_MarkSeen(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis: %v", err)
	}
	defer mr.Close()

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()

	d := NewRedisDeduper(client, time.Minute)
	ctx := context.Background()

	first, err := d.MarkSeen(ctx, ChannelTelegram, "101")
	if err != nil || !first {
		t.Fatalf("expected first sighting, got first=%v err=%v", first, err)
	}
	again, err := d.MarkSeen(ctx, ChannelTelegram, "101")
	if err != nil || again {
		t.Fatalf("expected repeat, got first=%v err=%v", again, err)
	}
	other, err := d.MarkSeen(ctx, ChannelInstagram, "101")
	if err != nil || !other {
		t.Fatalf("channels must not share keys, got first=%v err=%v", other, err)
	}

	mr.FastForward(2 * time.Minute)
	expired, err := d.MarkSeen(ctx, ChannelTelegram, "101")
	if err != nil || !expired {
		t.Fatalf("expected mark to expire, got first=%v err=%v", expired, err)
	}

	if err := d.Forget(ctx, ChannelTelegram, "101"); err != nil {
		t.Fatalf("forget: %v", err)
	}
	if mr.Exists(inboundDedupKey(ChannelTelegram, "101")) {
		t.Fatalf("expected key removed")
	}
}

func TestRedisDeduper_NilIsPassThrough(t *testing.T) {
	var d *RedisDeduper = NewRedisDeduper(nil, 0)
	first, err := d.MarkSeen(context.Background(), ChannelTelegram, "1")
	if err != nil || !first {
		t.Fatalf("nil deduper should always report first, got %v %v", first, err)
	}
	if err := d.Forget(context.Background(), ChannelTelegram, "1"); err != nil {
		t.Fatalf("nil forget: %v", err)
	}
}
