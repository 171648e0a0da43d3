package ratelimit

import (
	"context"
	"fmt"
	"strings"

	"github.com/craftora/craftora/internal/config"
	redis "github.com/redis/go-redis/v9"
)

const keyWebhookSource = "webhook:stripe:%s"

// WebhookLimiter guards the public webhook endpoint per source address.
// A nil limiter (no Redis configured) allows everything, so the endpoint
// degrades open rather than dropping provider deliveries.
type WebhookLimiter struct {
	bucket *TokenBucket
	rate   float64
	burst  int
}

func NewWebhookLimiter(cfg config.Config) *WebhookLimiter {
	addr := strings.TrimSpace(cfg.RedisAddr)
	if addr == "" {
		return nil
	}
	if cfg.WebhookRateLimit <= 0 || cfg.WebhookBurst <= 0 {
		return nil
	}

	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: strings.TrimSpace(cfg.RedisPassword),
	})

	return &WebhookLimiter{
		bucket: NewTokenBucket(client),
		rate:   cfg.WebhookRateLimit,
		burst:  cfg.WebhookBurst,
	}
}

// Allow reports whether a delivery from source may proceed.
func (l *WebhookLimiter) Allow(ctx context.Context, source string) (*Result, error) {
	if l == nil {
		return &Result{Allowed: true}, nil
	}
	if strings.TrimSpace(source) == "" {
		source = "unknown"
	}
	return l.bucket.Allow(ctx, fmt.Sprintf(keyWebhookSource, source), l.rate, l.burst)
}
