package kv

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// ClusterOptions configures the clustered driver.
type ClusterOptions struct {
	Addrs       []string
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
}

// clusterBackend talks to a Redis cluster. Readiness is established with a
// bounded number of attempts and capped exponential backoff between them.
type clusterBackend struct {
	ops
	maxAttempts int
	baseDelay   time.Duration
	maxDelay    time.Duration
}

const (
	defaultMaxAttempts = 3
	defaultBaseDelay   = 250 * time.Millisecond
	defaultMaxDelay    = 2 * time.Second
)

// NewCluster constructs the clustered driver.
func NewCluster(opt ClusterOptions) Backend {
	cli := redis.NewClusterClient(&redis.ClusterOptions{
		Addrs: opt.Addrs,
	})
	cli.AddHook(metricsHook{})

	b := &clusterBackend{
		ops:         ops{cli: cli},
		maxAttempts: opt.MaxAttempts,
		baseDelay:   opt.BaseDelay,
		maxDelay:    opt.MaxDelay,
	}
	if b.maxAttempts <= 0 {
		b.maxAttempts = defaultMaxAttempts
	}
	if b.baseDelay <= 0 {
		b.baseDelay = defaultBaseDelay
	}
	if b.maxDelay <= 0 {
		b.maxDelay = defaultMaxDelay
	}
	return b
}

// WaitForConnection pings up to MaxAttempts times, doubling the delay
// between attempts from BaseDelay up to the MaxDelay cap. Exhausting the
// budget surfaces as ErrConnectionTimeout.
func (b *clusterBackend) WaitForConnection(ctx context.Context) error {
	delay := b.baseDelay
	var lastErr error

	for attempt := 1; attempt <= b.maxAttempts; attempt++ {
		pingCtx, cancel := context.WithTimeout(ctx, b.maxDelay)
		lastErr = b.cli.Ping(pingCtx).Err()
		cancel()
		if lastErr == nil {
			return nil
		}
		if attempt == b.maxAttempts {
			break
		}
		select {
		case <-ctx.Done():
			return fmt.Errorf("cluster %w: %v", ErrConnectionTimeout, ctx.Err())
		case <-time.After(delay):
		}
		delay *= 2
		if delay > b.maxDelay {
			delay = b.maxDelay
		}
	}

	return fmt.Errorf("cluster %w after %d attempts: %v", ErrConnectionTimeout, b.maxAttempts, lastErr)
}
