package notify

import (
	"context"
	"sync"

	"github.com/rs/zerolog/log"
)

const subscriberBuffer = 64

// Bus is an in-process Stream used by tests and single-node deployments,
// and as the local dispatch fan-out behind the JetStream consumer.
type Bus struct {
	mu     sync.Mutex
	nextID int
	subs   map[int]*busSubscriber
}

type busSubscriber struct {
	filter Filter
	ch     chan Event
}

// NewBus creates an empty in-process event bus.
func NewBus() *Bus {
	return &Bus{subs: make(map[int]*busSubscriber)}
}

// Subscribe registers a new subscriber. The subscription ends when Cancel is
// called or ctx is done, whichever comes first.
func (b *Bus) Subscribe(ctx context.Context, f Filter) (*Subscription, error) {
	b.mu.Lock()
	id := b.nextID
	b.nextID++
	sub := &busSubscriber{
		filter: f,
		ch:     make(chan Event, subscriberBuffer),
	}
	b.subs[id] = sub
	b.mu.Unlock()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			b.mu.Lock()
			if _, ok := b.subs[id]; ok {
				delete(b.subs, id)
				close(sub.ch)
			}
			b.mu.Unlock()
		})
	}

	go func() {
		<-ctx.Done()
		cancel()
	}()

	return &Subscription{C: sub.ch, cancel: cancel}, nil
}

// Publish fans the event out to every matching subscriber. Slow subscribers
// lose events rather than blocking the publisher; a lost event only delays
// the next re-fetch until the following change. Sends happen under the lock
// so a concurrent Cancel cannot close a channel mid-send; they never block.
func (b *Bus) Publish(ev Event) {
	b.mu.Lock()
	defer b.mu.Unlock()

	for _, sub := range b.subs {
		if !sub.filter.matches(ev) {
			continue
		}
		select {
		case sub.ch <- ev:
		default:
			log.Warn().
				Str("table", string(ev.Table)).
				Str("kind", string(ev.Kind)).
				Msg("subscriber buffer full, dropping event")
		}
	}
}
