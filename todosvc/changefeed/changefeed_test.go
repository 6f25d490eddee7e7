package changefeed

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func receive(t *testing.T, ch <-chan struct{}) {
	t.Helper()
	select {
	case _, ok := <-ch:
		require.True(t, ok, "channel closed")
	case <-time.After(2 * time.Second):
		t.Fatal("no change signal received")
	}
}

func silent(t *testing.T, ch <-chan struct{}) {
	t.Helper()
	select {
	case <-ch:
		t.Fatal("unexpected change signal")
	case <-time.After(50 * time.Millisecond):
	}
}

func closed(t *testing.T, ch <-chan struct{}) {
	t.Helper()
	select {
	case _, ok := <-ch:
		require.False(t, ok, "expected channel to be closed")
	case <-time.After(2 * time.Second):
		t.Fatal("channel was not closed")
	}
}

func testFeed(t *testing.T, feed Feed) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	mine, err := feed.Subscribe(ctx, 1)
	require.NoError(t, err)
	theirs, err := feed.Subscribe(ctx, 2)
	require.NoError(t, err)

	require.NoError(t, feed.Publish(ctx, 1))
	receive(t, mine)
	silent(t, theirs)

	cancel()
	closed(t, mine)
	closed(t, theirs)
}

func TestBroker(t *testing.T) {
	testFeed(t, NewBroker())
}

func TestBrokerCoalescesSignals(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	feed := NewBroker()
	ch, err := feed.Subscribe(ctx, 1)
	require.NoError(t, err)

	for i := 0; i < 5; i++ {
		require.NoError(t, feed.Publish(ctx, 1))
	}
	receive(t, ch)
	silent(t, ch)
}

func TestBrokerForgetsCancelledSubscribers(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())

	b := NewBroker().(*broker)
	ch, err := b.Subscribe(ctx, 7)
	require.NoError(t, err)
	assert.Equal(t, 1, b.subscribers(7))

	cancel()
	closed(t, ch)
	assert.Equal(t, 0, b.subscribers(7))
	assert.NoError(t, b.Publish(context.Background(), 7))
}

func TestRedisFeed(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()

	testFeed(t, NewRedisFeed(client))
}
