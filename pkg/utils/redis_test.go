package utils

import (
	"context"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
)

func TestLeaseScriptsInitialized(t *testing.T) {
	if leaseAcquireScript == nil || leaseReleaseScript == nil {
		t.Fatalf("expected scripts to be initialized")
	}
}

func TestLease_RejectsBadArguments(t *testing.T) {
	ctx := context.Background()
	rdb := redis.NewClient(&redis.Options{Addr: "127.0.0.1:0"})
	defer rdb.Close()

	if _, err := AcquireLease(ctx, nil, "k", "o", time.Minute); err == nil {
		t.Fatalf("expected error for nil client")
	}
	if _, err := AcquireLease(ctx, rdb, "", "o", time.Minute); err == nil {
		t.Fatalf("expected error for empty key")
	}
	if _, err := AcquireLease(ctx, rdb, "k", "", time.Minute); err == nil {
		t.Fatalf("expected error for empty owner")
	}
	if _, err := AcquireLease(ctx, rdb, "k", "o", 0); err == nil {
		t.Fatalf("expected error for zero ttl")
	}
	if err := ReleaseLease(ctx, rdb, "k", ""); err == nil {
		t.Fatalf("expected error for empty owner on release")
	}
}

func TestOpenRedis_RequiresAddr(t *testing.T) {
	if _, err := OpenRedis(context.Background(), RedisConfig{}); err == nil {
		t.Fatalf("expected error without addr")
	}
}

func TestRedisConfigDefaults(t *testing.T) {
	c := RedisConfig{Addr: "x:6379", PoolSize: 10}.withDefaults()
	if c.PoolSize != 10 {
		t.Fatalf("explicit pool size overwritten: %d", c.PoolSize)
	}
	if c.DialTimeout != 3*time.Second || c.PingTimeout != 2*time.Second {
		t.Fatalf("unexpected defaults %+v", c)
	}
}
