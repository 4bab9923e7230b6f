package kv

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// SingleOptions configures the single-node driver.
type SingleOptions struct {
	Addr           string
	ConnectTimeout time.Duration
}

// singleBackend talks to one Redis node. Transient failures are retried by
// the underlying client; readiness is bounded by one fixed connect timeout.
type singleBackend struct {
	ops
	connectTimeout time.Duration
}

const defaultConnectTimeout = 10 * time.Second

// NewSingle constructs the single-node driver. The address may be a plain
// host:port or a redis:// URL.
func NewSingle(opt SingleOptions) (Backend, error) {
	var rdbOpts *redis.Options
	if strings.Contains(opt.Addr, "://") {
		parsed, err := redis.ParseURL(opt.Addr)
		if err != nil {
			return nil, fmt.Errorf("kv: invalid redis url %q: %w", opt.Addr, err)
		}
		rdbOpts = parsed
	} else {
		rdbOpts = &redis.Options{Addr: opt.Addr}
	}

	cli := redis.NewClient(rdbOpts)
	cli.AddHook(metricsHook{})

	timeout := opt.ConnectTimeout
	if timeout <= 0 {
		timeout = defaultConnectTimeout
	}

	return &singleBackend{
		ops:            ops{cli: cli},
		connectTimeout: timeout,
	}, nil
}

// WaitForConnection pings until the node answers or the fixed timeout
// elapses. A timeout surfaces as ErrConnectionTimeout, never a hang.
func (b *singleBackend) WaitForConnection(ctx context.Context) error {
	deadline := time.Now().Add(b.connectTimeout)
	ctx, cancel := context.WithDeadline(ctx, deadline)
	defer cancel()

	ticker := time.NewTicker(500 * time.Millisecond)
	defer ticker.Stop()

	for {
		if err := b.cli.Ping(ctx).Err(); err == nil {
			return nil
		}
		select {
		case <-ctx.Done():
			return fmt.Errorf("single node %w after %s", ErrConnectionTimeout, b.connectTimeout)
		case <-ticker.C:
		}
	}
}
