package broadcast_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pixels-app/pixels-supervisor/internal/broadcast"
)

// recv reads one snapshot or fails the test after a timeout.
func recv(t *testing.T, sub *broadcast.Subscription) broadcast.Snapshot {
	t.Helper()
	select {
	case snap := <-sub.Updates():
		return snap
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for snapshot")
		return broadcast.Snapshot{}
	}
}

// expectNone asserts no snapshot is delivered within the window.
func expectNone(t *testing.T, sub *broadcast.Subscription, window time.Duration) {
	t.Helper()
	select {
	case snap := <-sub.Updates():
		t.Fatalf("unexpected snapshot delivered: %+v", snap)
	case <-time.After(window):
	}
}

func TestSubscribeReplaysInitialSnapshot(t *testing.T) {
	t.Parallel()

	b := broadcast.New()
	sub := b.Subscribe()
	defer sub.Cancel()

	snap := recv(t, sub)
	assert.False(t, snap.Available)
	assert.Equal(t, broadcast.ReasonStopped, snap.Reason)
	assert.False(t, snap.AsOf.IsZero())
}

func TestSubscribeReplaysLatestCommittedSnapshot(t *testing.T) {
	t.Parallel()

	b := broadcast.New()
	b.Publish(broadcast.Snapshot{Available: true, AsOf: time.Now()})

	sub := b.Subscribe()
	defer sub.Cancel()

	snap := recv(t, sub)
	assert.True(t, snap.Available)
}

func TestPublishDeliversInCommitOrder(t *testing.T) {
	t.Parallel()

	b := broadcast.New()
	sub := b.Subscribe()
	defer sub.Cancel()

	// Consume the replayed initial value before publishing.
	recv(t, sub)

	b.Publish(broadcast.Snapshot{Reason: "starting", AsOf: time.Now()})
	snap := recv(t, sub)
	assert.Equal(t, "starting", snap.Reason)

	b.Publish(broadcast.Snapshot{Available: true, AsOf: time.Now()})
	snap = recv(t, sub)
	assert.True(t, snap.Available)
}

func TestSlowSubscriberOnlySeesLatest(t *testing.T) {
	t.Parallel()

	b := broadcast.New()
	sub := b.Subscribe()
	defer sub.Cancel()

	// Do not consume anything; the single slot must end up holding the
	// last published value, with intermediates coalesced away.
	b.Publish(broadcast.Snapshot{Reason: "starting", AsOf: time.Now()})
	b.Publish(broadcast.Snapshot{Reason: "restarting", AsOf: time.Now()})
	b.Publish(broadcast.Snapshot{Available: true, AsOf: time.Now()})

	snap := recv(t, sub)
	assert.True(t, snap.Available)
	expectNone(t, sub, 50*time.Millisecond)
}

func TestMultipleSubscribersAllReceive(t *testing.T) {
	t.Parallel()

	b := broadcast.New()
	first := b.Subscribe()
	defer first.Cancel()
	second := b.Subscribe()
	defer second.Cancel()

	recv(t, first)
	recv(t, second)

	b.Publish(broadcast.Snapshot{Available: true, AsOf: time.Now()})

	assert.True(t, recv(t, first).Available)
	assert.True(t, recv(t, second).Available)
}

func TestSlowSubscriberDoesNotBlockOthers(t *testing.T) {
	t.Parallel()

	b := broadcast.New()
	slow := b.Subscribe()
	defer slow.Cancel()
	fast := b.Subscribe()
	defer fast.Cancel()

	recv(t, fast)

	// The slow subscriber never reads; publishing must still deliver to
	// the fast one without blocking.
	for i := 0; i < 10; i++ {
		b.Publish(broadcast.Snapshot{Available: i%2 == 0, AsOf: time.Now()})
		recv(t, fast)
	}
}

func TestCancelStopsDelivery(t *testing.T) {
	t.Parallel()

	b := broadcast.New()
	sub := b.Subscribe()
	recv(t, sub)
	sub.Cancel()

	b.Publish(broadcast.Snapshot{Available: true, AsOf: time.Now()})
	expectNone(t, sub, 50*time.Millisecond)
}

func TestLatest(t *testing.T) {
	t.Parallel()

	b := broadcast.New()
	require.Equal(t, broadcast.ReasonStopped, b.Latest().Reason)

	b.Publish(broadcast.Snapshot{Available: true, AsOf: time.Now()})
	assert.True(t, b.Latest().Available)
}
