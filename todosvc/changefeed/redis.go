package changefeed

import (
	"context"
	"strconv"

	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
)

const channelPrefix = "todos:"

type redisFeed struct {
	client *redis.Client
}

// NewRedisFeed returns a Feed backed by redis pub/sub, so that changes made
// through any todosvc instance reach streams served by any other process.
func NewRedisFeed(client *redis.Client) Feed {
	return &redisFeed{client}
}

func channel(owner uint64) string {
	return channelPrefix + strconv.FormatUint(owner, 10)
}

func (f *redisFeed) Publish(ctx context.Context, owner uint64) error {
	err := f.client.Publish(ctx, channel(owner), "changed").Err()
	return errors.WithMessagef(err, "publish change for owner %d", owner)
}

func (f *redisFeed) Subscribe(ctx context.Context, owner uint64) (<-chan struct{}, error) {
	pubsub := f.client.Subscribe(ctx, channel(owner))

	// Wait for the subscription to be confirmed so that no publish issued
	// after Subscribe returns can be missed.
	if _, err := pubsub.Receive(ctx); err != nil {
		pubsub.Close()
		return nil, errors.WithMessagef(err, "subscribe to changes of owner %d", owner)
	}

	ch := make(chan struct{}, 1)
	go func() {
		defer close(ch)
		defer pubsub.Close()

		msgs := pubsub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case _, ok := <-msgs:
				if !ok {
					return
				}
				signal(ch)
			}
		}
	}()

	return ch, nil
}
