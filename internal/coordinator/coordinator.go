// Package coordinator serializes every backend lifecycle event through a
// single ordered queue. Lifecycle intents, start completions, crash
// notifications and retry timers are processed one at a time, so the
// supervisor never observes concurrent transitions, and every committed
// transition is reflected into the status broadcaster before the next event
// is taken. This ordering is what removes the race between "app just
// backgrounded" and "backend just finished crashing".
package coordinator

import (
	"context"
	"log/slog"
	"time"

	"github.com/pixels-app/pixels-supervisor/internal/backend"
	"github.com/pixels-app/pixels-supervisor/internal/broadcast"
	"github.com/pixels-app/pixels-supervisor/internal/lifecycle"
	"github.com/pixels-app/pixels-supervisor/internal/supervisor"
	"github.com/pixels-app/pixels-supervisor/internal/telemetry"
)

// eventQueueSize bounds the ordered event queue. The loop drains far faster
// than events arrive; the buffer only absorbs bursts around restarts.
const eventQueueSize = 64

// Reasons carried on availability snapshots for each unavailable state.
const (
	// ReasonStarting means a start attempt is in flight
	ReasonStarting = "starting"

	// ReasonStopping means the backend is shutting down
	ReasonStopping = "stopping"

	// ReasonRestarting means the backend failed and a restart is scheduled
	ReasonRestarting = "restarting"

	// ReasonPermanentlyFailed means retries are exhausted; presentation may
	// offer a manual retry
	ReasonPermanentlyFailed = "permanently failed"
)

// Option configures the coordinator
type Option func(*Coordinator)

// WithMetrics attaches supervision metrics to the underlying supervisor.
func WithMetrics(m *telemetry.SupervisorMetrics) Option {
	return func(c *Coordinator) {
		c.supOpts = append(c.supOpts, supervisor.WithMetrics(m))
	}
}

// Coordinator owns the supervisor and the event queue driving it.
type Coordinator struct {
	sup         *supervisor.Supervisor
	broadcaster *broadcast.Broadcaster
	supOpts     []supervisor.Option

	events  chan event
	desired lifecycle.Intent

	// last mirrors the most recently published snapshot so identical
	// consecutive states are not re-broadcast
	last broadcast.Snapshot

	// Lifecycle management
	cancelFunc context.CancelFunc
	done       chan struct{}
}

// New creates a coordinator supervising a backend reached through controller.
// The coordinator constructs its own supervisor so that all supervisor events
// are guaranteed to flow through its queue.
func New(
	controller backend.Controller,
	cfg supervisor.Config,
	broadcaster *broadcast.Broadcaster,
	opts ...Option,
) *Coordinator {
	c := &Coordinator{
		broadcaster: broadcaster,
		events:      make(chan event, eventQueueSize),
		desired:     lifecycle.IntentWantStopped,
		last:        broadcaster.Latest(),
		done:        make(chan struct{}),
	}

	for _, opt := range opts {
		opt(c)
	}

	c.sup = supervisor.New(controller, cfg, func(ev supervisor.Event) {
		c.events <- supervisorEvent{ev: ev}
	}, c.supOpts...)

	return c
}

// Run processes events in strict arrival order until ctx is cancelled.
// Blocks; on shutdown the backend is torn down before returning.
func (c *Coordinator) Run(ctx context.Context) error {
	slog.Info("Starting backend lifecycle coordinator")

	runCtx, cancel := context.WithCancel(ctx)
	c.cancelFunc = cancel
	defer func() {
		close(c.done)
		slog.Info("Backend lifecycle coordinator shut down")
	}()

	for {
		select {
		case <-runCtx.Done():
			// Host is detaching: the backend must not outlive the
			// coordinator.
			c.sup.Stop(context.Background())
			c.publish()
			return nil
		case ev := <-c.events:
			c.handleEvent(runCtx, ev)
			c.publish()
		}
	}
}

// Stop cancels the loop and waits for teardown to complete.
func (c *Coordinator) Stop() error {
	if c.cancelFunc != nil {
		slog.Info("Stopping backend lifecycle coordinator")
		c.cancelFunc()
		<-c.done
	}
	return nil
}

// OnIntent enqueues a lifecycle intent. This is the observer's emit target.
func (c *Coordinator) OnIntent(intent lifecycle.Intent) {
	c.events <- intentEvent{intent: intent}
}

// Retry enqueues a manual re-arm request. Only meaningful after the backend
// has permanently failed; harmless otherwise.
func (c *Coordinator) Retry() {
	c.events <- retryRequest{}
}

func (c *Coordinator) handleEvent(ctx context.Context, e event) {
	switch ev := e.(type) {
	case intentEvent:
		c.handleIntent(ctx, ev.intent)
	case supervisorEvent:
		c.handleSupervisorEvent(ctx, ev.ev)
	case retryRequest:
		if c.sup.ResetFailure() && c.desired == lifecycle.IntentWantRunning {
			c.sup.Start(ctx)
		}
	}
}

func (c *Coordinator) handleIntent(ctx context.Context, intent lifecycle.Intent) {
	c.desired = intent
	switch intent {
	case lifecycle.IntentWantRunning:
		c.sup.Start(ctx)
	case lifecycle.IntentWantStopped:
		c.sup.Stop(ctx)
	}
}

func (c *Coordinator) handleSupervisorEvent(ctx context.Context, e supervisor.Event) {
	switch ev := e.(type) {
	case supervisor.StartResult:
		c.sup.HandleStartResult(ctx, ev)
	case supervisor.CrashDetected:
		c.sup.HandleCrash(ctx, ev)
	case supervisor.RetryElapsed:
		// A retry only fires while the app still wants the backend up and
		// the failed attempt has not been superseded.
		if c.desired == lifecycle.IntentWantRunning && c.sup.RetryDue(ev) {
			c.sup.Start(ctx)
		}
	}
}

// publish reflects the supervisor's committed state into the broadcaster.
// Called after every processed event, before the next one is taken.
func (c *Coordinator) publish() {
	snap := snapshotFor(c.sup.CurrentState())
	if snap.Available == c.last.Available && snap.Reason == c.last.Reason {
		return
	}
	snap.AsOf = time.Now()
	c.last = snap
	c.broadcaster.Publish(snap)
}

// snapshotFor derives the availability snapshot for a committed state.
func snapshotFor(st supervisor.Status) broadcast.Snapshot {
	switch st.State {
	case supervisor.StateRunning:
		return broadcast.Snapshot{Available: true}
	case supervisor.StateStarting:
		return broadcast.Snapshot{Reason: ReasonStarting}
	case supervisor.StateStopping:
		return broadcast.Snapshot{Reason: ReasonStopping}
	case supervisor.StateCrashed:
		return broadcast.Snapshot{Reason: ReasonRestarting}
	case supervisor.StatePermanentlyFailed:
		return broadcast.Snapshot{Reason: ReasonPermanentlyFailed}
	default:
		return broadcast.Snapshot{Reason: broadcast.ReasonStopped}
	}
}
