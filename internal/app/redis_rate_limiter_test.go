package app

import (
	"context"
	"testing"
	"time"
)

func TestConsumeRateLimit_DisabledWithoutClient(t *testing.T) {
	var limiter *RedisQrRateLimiter
	count, retryAfter, err := limiter.ConsumeRateLimit(context.Background(), "qr_initiate", "10.0.0.9", 30, time.Minute)
	if err != nil {
		t.Fatalf("nil limiter returned error: %v", err)
	}
	if count != 0 || retryAfter != 0 {
		t.Fatalf("expected disabled limiter to pass through, got count=%d retryAfter=%d", count, retryAfter)
	}

	limiter = NewRedisQrRateLimiter(nil, "")
	if count, _, _ := limiter.ConsumeRateLimit(context.Background(), "qr_initiate", "10.0.0.9", 30, time.Minute); count != 0 {
		t.Fatalf("expected clientless limiter to pass through, got count=%d", count)
	}
}

func TestRetryAfterSeconds(t *testing.T) {
	cases := []struct {
		name     string
		ttlMs    int64
		windowMs int64
		want     int
	}{
		{"full window remaining", 60000, 60000, 60},
		{"partial second rounds up", 1500, 60000, 2},
		{"sub-second floors to one", 400, 60000, 1},
		{"expired window floors to one", 0, 60000, 1},
		{"missing ttl falls back to window", -1, 60000, 60},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := retryAfterSeconds(tc.ttlMs, tc.windowMs); got != tc.want {
				t.Errorf("retryAfterSeconds(%d, %d) = %d, want %d", tc.ttlMs, tc.windowMs, got, tc.want)
			}
		})
	}
}
