// Package changefeed carries payload-less "the todos of this owner changed"
// signals from the todo service to whoever streams them to clients.
package changefeed

import (
	"context"
	"sync"
)

// Feed publishes and subscribes to per-owner invalidation signals.
//
// A subscription lives until ctx is cancelled, after which its channel is
// closed. Signals are coalesced: a slow subscriber sees at least one signal
// after the last publish, never a backlog.
type Feed interface {
	Publish(ctx context.Context, owner uint64) error
	Subscribe(ctx context.Context, owner uint64) (<-chan struct{}, error)
}

type broker struct {
	mtx  sync.Mutex
	subs map[uint64]map[chan struct{}]struct{}
}

// NewBroker returns an in-process Feed, suitable when a single todosvc
// instance serves the change stream itself.
func NewBroker() Feed {
	return &broker{subs: map[uint64]map[chan struct{}]struct{}{}}
}

func (b *broker) Publish(_ context.Context, owner uint64) error {
	b.mtx.Lock()
	defer b.mtx.Unlock()

	for ch := range b.subs[owner] {
		signal(ch)
	}
	return nil
}

func (b *broker) Subscribe(ctx context.Context, owner uint64) (<-chan struct{}, error) {
	ch := make(chan struct{}, 1)

	b.mtx.Lock()
	if b.subs[owner] == nil {
		b.subs[owner] = map[chan struct{}]struct{}{}
	}
	b.subs[owner][ch] = struct{}{}
	b.mtx.Unlock()

	go func() {
		<-ctx.Done()

		b.mtx.Lock()
		defer b.mtx.Unlock()

		delete(b.subs[owner], ch)
		if len(b.subs[owner]) == 0 {
			delete(b.subs, owner)
		}
		close(ch)
	}()

	return ch, nil
}

func (b *broker) subscribers(owner uint64) int {
	b.mtx.Lock()
	defer b.mtx.Unlock()
	return len(b.subs[owner])
}

func signal(ch chan struct{}) {
	select {
	case ch <- struct{}{}:
	default:
	}
}
