// Package kv provides the key-value data plane and pub/sub transport used
// for rate limiting, shared presence state, and cross-process event fan-out.
// Two drivers implement the same contract: a single-node driver and a
// clustered driver with different connection and retry topology.
package kv

import (
	"context"
	"errors"
	"fmt"
	"time"

	"podium/internal/config"
)

// ErrConnectionTimeout is returned by WaitForConnection when the retry
// budget is exhausted without the transport reporting ready.
var ErrConnectionTimeout = errors.New("kv: backend not reachable within retry budget")

// ErrTransportUnavailable marks a transient transport failure. Callers must
// treat operations failing with this error as retryable.
var ErrTransportUnavailable = errors.New("kv: transport unavailable")

// Message is a single pub/sub delivery.
type Message struct {
	Channel string
	Payload string
}

// Subscription is a live pub/sub subscription. Closing it releases the
// underlying connection and closes the message channel.
type Subscription interface {
	Messages() <-chan Message
	Close() error
}

// Backend is the operation contract shared by both drivers.
type Backend interface {
	Get(ctx context.Context, key string) (value string, ok bool, err error)
	Set(ctx context.Context, key, value string, ttl time.Duration) error
	Del(ctx context.Context, keys ...string) (int64, error)
	Exists(ctx context.Context, key string) (bool, error)
	Expire(ctx context.Context, key string, ttl time.Duration) (bool, error)
	MGet(ctx context.Context, keys ...string) ([]*string, error)
	MSet(ctx context.Context, pairs map[string]string) error
	Incr(ctx context.Context, key string) (int64, error)
	Decr(ctx context.Context, key string) (int64, error)
	SAdd(ctx context.Context, key string, members ...string) error
	SMembers(ctx context.Context, key string) ([]string, error)
	SRem(ctx context.Context, key string, members ...string) error
	Ping(ctx context.Context) error
	Publish(ctx context.Context, channel, payload string) error
	PSubscribe(ctx context.Context, patterns ...string) Subscription

	// WaitForConnection blocks until the transport reports ready, bounded
	// by the driver's retry budget. It returns ErrConnectionTimeout once
	// the budget is exhausted; it never hangs.
	WaitForConnection(ctx context.Context) error

	Close() error
}

// New selects and constructs the backend driver once at startup. The
// returned handle is the single long-lived instance for the process.
func New(cfg *config.Config) (Backend, error) {
	switch cfg.RedisMode {
	case "cluster":
		return NewCluster(ClusterOptions{
			Addrs:       cfg.ClusterAddrs(),
			MaxAttempts: cfg.RedisMaxConnectAttempts,
			BaseDelay:   cfg.BackoffBase(),
			MaxDelay:    cfg.BackoffCap(),
		}), nil
	case "single":
		return NewSingle(SingleOptions{
			Addr:           cfg.RedisURL,
			ConnectTimeout: cfg.ConnectTimeout(),
		})
	default:
		return nil, fmt.Errorf("kv: unknown backend mode %q", cfg.RedisMode)
	}
}
