package utils

import (
	"context"
	"testing"
	"time"
)

func TestRedisConfig_Defaults(t *testing.T) {
	got := RedisConfig{Addr: "localhost:6379"}.withDefaults()

	if got.DialTimeout != 3*time.Second {
		t.Fatalf("DialTimeout default = %s, want 3s", got.DialTimeout)
	}
	if got.PoolSize != 20 {
		t.Fatalf("PoolSize default = %d, want 20", got.PoolSize)
	}
	if got.PingTimeout != 2*time.Second {
		t.Fatalf("PingTimeout default = %s, want 2s", got.PingTimeout)
	}
}

func TestAcquireConcurrencyCap_ValidatesArgs(t *testing.T) {
	ctx := context.Background()

	if _, err := AcquireConcurrencyCap(ctx, nil, "k", 1, time.Second); err == nil {
		t.Fatalf("expected error for nil client")
	}
	if err := ReleaseConcurrencyCap(ctx, nil, "k"); err == nil {
		t.Fatalf("expected error for nil client")
	}
}

func TestConcurrencyScriptsCompile(t *testing.T) {
	if concurrencyAcquireScript == nil || concurrencyReleaseScript == nil {
		t.Fatalf("expected scripts to be initialized")
	}
}
