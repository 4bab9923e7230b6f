package kv

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestBackend(t *testing.T) (Backend, *miniredis.Miniredis) {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	b, err := NewSingle(SingleOptions{Addr: mr.Addr(), ConnectTimeout: 2 * time.Second})
	require.NoError(t, err)
	t.Cleanup(func() { _ = b.Close() })
	return b, mr
}

func TestSingleWaitForConnection(t *testing.T) {
	b, _ := newTestBackend(t)
	require.NoError(t, b.WaitForConnection(context.Background()))
}

func TestSingleWaitForConnectionTimesOut(t *testing.T) {
	// Nothing listens on this port; the ping loop must give up within the
	// configured budget instead of hanging.
	b, err := NewSingle(SingleOptions{Addr: "127.0.0.1:1", ConnectTimeout: 300 * time.Millisecond})
	require.NoError(t, err)
	defer func() { _ = b.Close() }()

	start := time.Now()
	err = b.WaitForConnection(context.Background())
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrConnectionTimeout))
	assert.Less(t, time.Since(start), 3*time.Second)
}

func TestClusterWaitForConnectionExhaustsAttempts(t *testing.T) {
	b := NewCluster(ClusterOptions{
		Addrs:       []string{"127.0.0.1:1"},
		MaxAttempts: 2,
		BaseDelay:   10 * time.Millisecond,
		MaxDelay:    50 * time.Millisecond,
	})
	defer func() { _ = b.Close() }()

	err := b.WaitForConnection(context.Background())
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrConnectionTimeout))
	assert.Contains(t, err.Error(), "2 attempts")
}

func TestGetSetDel(t *testing.T) {
	b, _ := newTestBackend(t)
	ctx := context.Background()

	_, ok, err := b.Get(ctx, "missing")
	require.NoError(t, err)
	assert.False(t, ok, "absent key must not be an error")

	require.NoError(t, b.Set(ctx, "k", "v", 0))
	val, ok, err := b.Get(ctx, "k")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "v", val)

	n, err := b.Del(ctx, "k", "missing")
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
}

func TestSetWithTTLExpires(t *testing.T) {
	b, mr := newTestBackend(t)
	ctx := context.Background()

	require.NoError(t, b.Set(ctx, "session", "abc", time.Minute))
	mr.FastForward(2 * time.Minute)

	_, ok, err := b.Get(ctx, "session")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestExistsAndExpire(t *testing.T) {
	b, mr := newTestBackend(t)
	ctx := context.Background()

	ok, err := b.Exists(ctx, "k")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, b.Set(ctx, "k", "v", 0))
	ok, err = b.Exists(ctx, "k")
	require.NoError(t, err)
	assert.True(t, ok)

	set, err := b.Expire(ctx, "k", time.Minute)
	require.NoError(t, err)
	assert.True(t, set)

	mr.FastForward(2 * time.Minute)
	ok, err = b.Exists(ctx, "k")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestMGetMSet(t *testing.T) {
	b, _ := newTestBackend(t)
	ctx := context.Background()

	require.NoError(t, b.MSet(ctx, map[string]string{"a": "1", "b": "2"}))

	vals, err := b.MGet(ctx, "a", "missing", "b")
	require.NoError(t, err)
	require.Len(t, vals, 3)
	require.NotNil(t, vals[0])
	assert.Equal(t, "1", *vals[0])
	assert.Nil(t, vals[1], "absent key maps to nil, not an error")
	require.NotNil(t, vals[2])
	assert.Equal(t, "2", *vals[2])
}

func TestIncrDecr(t *testing.T) {
	b, _ := newTestBackend(t)
	ctx := context.Background()

	n, err := b.Incr(ctx, "counter")
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	n, err = b.Incr(ctx, "counter")
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	n, err = b.Decr(ctx, "counter")
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
}

func TestSetOps(t *testing.T) {
	b, _ := newTestBackend(t)
	ctx := context.Background()

	require.NoError(t, b.SAdd(ctx, "online", "u1", "u2"))
	require.NoError(t, b.SAdd(ctx, "online", "u2"), "duplicate add is a no-op")

	members, err := b.SMembers(ctx, "online")
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"u1", "u2"}, members)

	require.NoError(t, b.SRem(ctx, "online", "u1"))
	members, err = b.SMembers(ctx, "online")
	require.NoError(t, err)
	assert.Equal(t, []string{"u2"}, members)
}

func TestPublishSubscribe(t *testing.T) {
	b, _ := newTestBackend(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sub := b.PSubscribe(ctx, "chat:room:*")
	defer func() { _ = sub.Close() }()

	// Give the subscriber a moment to register before publishing.
	require.Eventually(t, func() bool {
		_ = b.Publish(context.Background(), "chat:room:7", "hello")
		select {
		case msg := <-sub.Messages():
			assert.Equal(t, "chat:room:7", msg.Channel)
			assert.Equal(t, "hello", msg.Payload)
			return true
		default:
			return false
		}
	}, 2*time.Second, 20*time.Millisecond)
}

func TestSubscriptionStopsOnCancel(t *testing.T) {
	b, _ := newTestBackend(t)
	ctx, cancel := context.WithCancel(context.Background())

	sub := b.PSubscribe(ctx, "presence:room:*")
	cancel()

	// The pump closes the output channel once the context is cancelled.
	assert.Eventually(t, func() bool {
		select {
		case _, ok := <-sub.Messages():
			return !ok
		default:
			return false
		}
	}, 2*time.Second, 10*time.Millisecond)
}

func TestTransportErrorIsRetryable(t *testing.T) {
	b, mr := newTestBackend(t)
	mr.Close()

	err := b.Set(context.Background(), "k", "v", 0)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrTransportUnavailable))
}
