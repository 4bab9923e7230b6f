package kv

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"time"

	"podium/internal/observability"

	"github.com/redis/go-redis/v9"
)

// metricsHook counts command errors so transport degradation is visible
// before retry budgets are exhausted.
type metricsHook struct{}

func (h metricsHook) DialHook(next redis.DialHook) redis.DialHook {
	return next
}

func (h metricsHook) ProcessHook(next redis.ProcessHook) redis.ProcessHook {
	return func(ctx context.Context, cmd redis.Cmder) error {
		err := next(ctx, cmd)
		if err != nil && !errors.Is(err, redis.Nil) {
			observability.RedisErrors.WithLabelValues(cmd.Name()).Inc()
		}
		return err
	}
}

func (h metricsHook) ProcessPipelineHook(next redis.ProcessPipelineHook) redis.ProcessPipelineHook {
	return func(ctx context.Context, cmds []redis.Cmder) error {
		err := next(ctx, cmds)
		if err != nil && !errors.Is(err, redis.Nil) {
			observability.RedisErrors.WithLabelValues("pipeline").Inc()
		}
		return err
	}
}

// wrapErr maps driver errors to the retryable transport error. The go-redis
// client already retries transient failures internally; anything that still
// surfaces here exhausted that budget.
func wrapErr(op string, err error) error {
	if err == nil || errors.Is(err, redis.Nil) {
		return nil
	}
	return fmt.Errorf("%s: %w: %v", op, ErrTransportUnavailable, err)
}

// ops implements the Backend operation set over any go-redis client.
// Both drivers embed it; only connection establishment differs.
type ops struct {
	cli redis.UniversalClient
}

func (o *ops) Get(ctx context.Context, key string) (string, bool, error) {
	val, err := o.cli.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, wrapErr("get", err)
	}
	return val, true, nil
}

func (o *ops) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	return wrapErr("set", o.cli.Set(ctx, key, value, ttl).Err())
}

func (o *ops) Del(ctx context.Context, keys ...string) (int64, error) {
	n, err := o.cli.Del(ctx, keys...).Result()
	return n, wrapErr("del", err)
}

func (o *ops) Exists(ctx context.Context, key string) (bool, error) {
	n, err := o.cli.Exists(ctx, key).Result()
	if err != nil {
		return false, wrapErr("exists", err)
	}
	return n > 0, nil
}

func (o *ops) Expire(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	ok, err := o.cli.Expire(ctx, key, ttl).Result()
	return ok, wrapErr("expire", err)
}

func (o *ops) MGet(ctx context.Context, keys ...string) ([]*string, error) {
	vals, err := o.cli.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, wrapErr("mget", err)
	}
	out := make([]*string, len(vals))
	for i, v := range vals {
		if s, ok := v.(string); ok {
			s := s
			out[i] = &s
		}
	}
	return out, nil
}

func (o *ops) MSet(ctx context.Context, pairs map[string]string) error {
	if len(pairs) == 0 {
		return nil
	}
	args := make([]interface{}, 0, len(pairs)*2)
	for k, v := range pairs {
		args = append(args, k, v)
	}
	return wrapErr("mset", o.cli.MSet(ctx, args...).Err())
}

func (o *ops) Incr(ctx context.Context, key string) (int64, error) {
	n, err := o.cli.Incr(ctx, key).Result()
	return n, wrapErr("incr", err)
}

func (o *ops) Decr(ctx context.Context, key string) (int64, error) {
	n, err := o.cli.Decr(ctx, key).Result()
	return n, wrapErr("decr", err)
}

func (o *ops) SAdd(ctx context.Context, key string, members ...string) error {
	if len(members) == 0 {
		return nil
	}
	args := make([]interface{}, len(members))
	for i, m := range members {
		args[i] = m
	}
	return wrapErr("sadd", o.cli.SAdd(ctx, key, args...).Err())
}

func (o *ops) SMembers(ctx context.Context, key string) ([]string, error) {
	vals, err := o.cli.SMembers(ctx, key).Result()
	return vals, wrapErr("smembers", err)
}

func (o *ops) SRem(ctx context.Context, key string, members ...string) error {
	if len(members) == 0 {
		return nil
	}
	args := make([]interface{}, len(members))
	for i, m := range members {
		args[i] = m
	}
	return wrapErr("srem", o.cli.SRem(ctx, key, args...).Err())
}

func (o *ops) Ping(ctx context.Context) error {
	return wrapErr("ping", o.cli.Ping(ctx).Err())
}

// Publish is fan-out only: no subscriber acknowledgement is awaited, so
// publishers never block on subscriber processing.
func (o *ops) Publish(ctx context.Context, channel, payload string) error {
	return wrapErr("publish", o.cli.Publish(ctx, channel, payload).Err())
}

func (o *ops) PSubscribe(ctx context.Context, patterns ...string) Subscription {
	sub := o.cli.PSubscribe(ctx, patterns...)
	s := &subscription{
		sub: sub,
		out: make(chan Message, 256),
	}
	go s.pump(ctx)
	return s
}

func (o *ops) Close() error {
	return o.cli.Close()
}

type subscription struct {
	sub *redis.PubSub
	out chan Message
}

func (s *subscription) Messages() <-chan Message {
	return s.out
}

func (s *subscription) Close() error {
	return s.sub.Close()
}

// pump relays driver messages to the typed channel. The go-redis PubSub
// reconnects internally on transient errors, so the loop only exits when
// the subscription is closed or the context is cancelled.
func (s *subscription) pump(ctx context.Context) {
	defer close(s.out)
	defer func() {
		if r := recover(); r != nil {
			observability.GlobalLogger.Error("panic in kv subscription pump",
				"panic", fmt.Sprint(r), "stack", string(debug.Stack()))
		}
	}()

	ch := s.sub.Channel()
	for {
		select {
		case <-ctx.Done():
			_ = s.sub.Close()
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			select {
			case s.out <- Message{Channel: msg.Channel, Payload: msg.Payload}:
			default:
				// Subscribers are fan-out only; drop rather than block the pump.
				observability.RedisErrors.WithLabelValues("subscribe_drop").Inc()
			}
		}
	}
}
