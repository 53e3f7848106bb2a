package lifecycle

import (
	"log/slog"
	"sync"
	"time"
)

// DefaultBackgroundGracePeriod is how long the observer waits after the app
// backgrounds before asking for the backend to stop. Long enough to absorb a
// share sheet or a quick app switch, short enough not to burn battery.
const DefaultBackgroundGracePeriod = 3 * time.Second

// Observer maps lifecycle phases to intents:
//
//   - resumed emits IntentWantRunning immediately and cancels any pending
//     grace timer
//   - paused and detached arm a grace timer that emits IntentWantStopped on
//     expiry, unless the app resumed in the meantime
//   - inactive emits nothing
type Observer struct {
	grace time.Duration
	emit  func(Intent)

	mu    sync.Mutex
	timer *time.Timer
	gen   uint64
}

// NewObserver creates an observer emitting intents through emit. A zero grace
// period falls back to DefaultBackgroundGracePeriod.
func NewObserver(grace time.Duration, emit func(Intent)) *Observer {
	if grace == 0 {
		grace = DefaultBackgroundGracePeriod
	}
	return &Observer{
		grace: grace,
		emit:  emit,
	}
}

// Attach subscribes the observer to a lifecycle event source.
func (o *Observer) Attach(src EventSource) {
	src.AddListener(o.OnPhase)
}

// OnPhase handles one lifecycle phase change. Safe for concurrent use.
func (o *Observer) OnPhase(p Phase) {
	switch p {
	case PhaseResumed:
		o.cancelPending()
		slog.Debug("Lifecycle resumed", "intent", IntentWantRunning)
		o.emit(IntentWantRunning)
	case PhasePaused, PhaseDetached:
		o.armGraceTimer(p)
	case PhaseInactive:
		// Transient blip, no intent.
	default:
		slog.Warn("Ignoring unknown lifecycle phase", "phase", p)
	}
}

// cancelPending invalidates any armed grace timer. Mandatory on resume:
// without this a stale stop would fire after the user has returned.
func (o *Observer) cancelPending() {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.gen++
	if o.timer != nil {
		o.timer.Stop()
		o.timer = nil
	}
}

func (o *Observer) armGraceTimer(p Phase) {
	o.mu.Lock()
	defer o.mu.Unlock()

	o.gen++
	gen := o.gen
	if o.timer != nil {
		o.timer.Stop()
	}
	slog.Debug("Lifecycle backgrounded, arming grace timer", "phase", p, "grace", o.grace)
	o.timer = time.AfterFunc(o.grace, func() {
		o.mu.Lock()
		// A phase change since arming supersedes this timer.
		stale := o.gen != gen
		if !stale {
			o.timer = nil
		}
		o.mu.Unlock()
		if stale {
			return
		}
		slog.Debug("Grace period expired", "intent", IntentWantStopped)
		o.emit(IntentWantStopped)
	})
}
