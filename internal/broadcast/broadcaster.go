// Package broadcast publishes the backend availability signal to an arbitrary
// number of subscribers. Every subscriber receives the latest committed snapshot
// on subscribe and each subsequent update in commit order; a slow subscriber only
// ever misses intermediate values, never the latest one.
package broadcast

import (
	"sync"
	"time"
)

// ReasonStopped is the reason carried by the initial snapshot before any
// transition has been committed.
const ReasonStopped = "stopped"

// Snapshot is the availability value exposed to the presentation layer.
type Snapshot struct {
	// Available reports whether the backend is running and healthy
	Available bool `json:"available"`

	// Reason is a short human-readable explanation when unavailable
	Reason string `json:"reason,omitempty"`

	// AsOf is when this snapshot was committed
	AsOf time.Time `json:"asOf"`
}

// Broadcaster is a multicast, replay-latest publisher of availability snapshots.
// Publish is called from a single committer (the coordinator loop); Subscribe,
// Latest and Cancel are safe from any goroutine.
type Broadcaster struct {
	mu     sync.Mutex
	latest Snapshot
	subs   map[uint64]*Subscription
	nextID uint64
}

// Subscription is one subscriber's handle onto the broadcaster.
type Subscription struct {
	id uint64
	ch chan Snapshot
	b  *Broadcaster
}

// New creates a broadcaster whose initial snapshot is unavailable/stopped.
func New() *Broadcaster {
	return &Broadcaster{
		latest: Snapshot{Available: false, Reason: ReasonStopped, AsOf: time.Now()},
		subs:   make(map[uint64]*Subscription),
	}
}

// Subscribe registers a new subscriber. The current snapshot is already
// buffered on the returned subscription, so the first receive never blocks
// and never yields a zero value.
func (b *Broadcaster) Subscribe() *Subscription {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.nextID++
	sub := &Subscription{
		id: b.nextID,
		ch: make(chan Snapshot, 1),
		b:  b,
	}
	sub.ch <- b.latest
	b.subs[sub.id] = sub
	return sub
}

// Latest returns the most recently published snapshot.
func (b *Broadcaster) Latest() Snapshot {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.latest
}

// Publish commits a new snapshot and notifies all subscribers. Delivery to one
// subscriber never blocks delivery to another: each subscription holds a single
// slot, and an unconsumed stale value is replaced rather than queued behind.
func (b *Broadcaster) Publish(s Snapshot) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.latest = s
	for _, sub := range b.subs {
		select {
		case sub.ch <- s:
		default:
			// Slot occupied by a value the subscriber has not consumed yet;
			// drop it and install the newer one. Only the latest matters.
			select {
			case <-sub.ch:
			default:
			}
			select {
			case sub.ch <- s:
			default:
			}
		}
	}
}

// Updates returns the channel snapshots are delivered on.
func (s *Subscription) Updates() <-chan Snapshot {
	return s.ch
}

// Cancel releases the subscription. The channel is not closed; a cancelled
// subscriber simply stops receiving updates.
func (s *Subscription) Cancel() {
	s.b.mu.Lock()
	defer s.b.mu.Unlock()
	delete(s.b.subs, s.id)
}
