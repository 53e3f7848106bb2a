package supervisor

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v5"

	"github.com/pixels-app/pixels-supervisor/internal/backend"
	"github.com/pixels-app/pixels-supervisor/internal/telemetry"
)

const (
	// DefaultBaseDelay is the first restart delay after a failure
	DefaultBaseDelay = 1 * time.Second

	// DefaultMaxDelay caps the restart delay
	DefaultMaxDelay = 30 * time.Second

	// DefaultMaxRetries bounds consecutive failures before giving up
	DefaultMaxRetries = 5

	// DefaultStartTimeout bounds how long an attempt may stay Starting
	DefaultStartTimeout = 15 * time.Second

	// DefaultHealthCheckInterval is the steady-state probe interval
	DefaultHealthCheckInterval = 5 * time.Second

	// startupPollInterval is the probe interval while waiting for a fresh
	// launch to become healthy; much shorter than the steady-state interval
	// so startup latency stays low
	startupPollInterval = 250 * time.Millisecond

	// crashThreshold is the number of consecutive probe failures that
	// constitute a crash; a single failure is treated as a transient hiccup
	crashThreshold = 2
)

// Config holds the supervisor tunables. Zero values fall back to the
// documented defaults.
type Config struct {
	// BaseDelay is the first restart delay; delay n is
	// min(BaseDelay * 2^(n-1), MaxDelay)
	BaseDelay time.Duration

	// MaxDelay caps the restart delay
	MaxDelay time.Duration

	// MaxRetries bounds consecutive failures before PermanentlyFailed
	MaxRetries int

	// StartTimeout bounds a start attempt
	StartTimeout time.Duration

	// HealthCheckInterval is the steady-state probe interval
	HealthCheckInterval time.Duration
}

func (c Config) withDefaults() Config {
	if c.BaseDelay == 0 {
		c.BaseDelay = DefaultBaseDelay
	}
	if c.MaxDelay == 0 {
		c.MaxDelay = DefaultMaxDelay
	}
	if c.MaxRetries == 0 {
		c.MaxRetries = DefaultMaxRetries
	}
	if c.StartTimeout == 0 {
		c.StartTimeout = DefaultStartTimeout
	}
	if c.HealthCheckInterval == 0 {
		c.HealthCheckInterval = DefaultHealthCheckInterval
	}
	return c
}

// newBackOff builds the deterministic bounded-exponential policy from the
// configuration. No jitter: restart timing must be predictable for a single
// supervised process.
func newBackOff(cfg Config) *backoff.ExponentialBackOff {
	b := &backoff.ExponentialBackOff{
		InitialInterval:     cfg.BaseDelay,
		RandomizationFactor: 0,
		Multiplier:          2,
		MaxInterval:         cfg.MaxDelay,
	}
	b.Reset()
	return b
}

// Option configures the supervisor
type Option func(*Supervisor)

// WithMetrics attaches supervision metrics. Nil metrics are a no-op.
func WithMetrics(m *telemetry.SupervisorMetrics) Option {
	return func(s *Supervisor) {
		s.metrics = m
	}
}

// Supervisor drives the backend through its lifecycle state machine. It owns
// the process handle exclusively; no other component touches the backend.
type Supervisor struct {
	controller backend.Controller
	cfg        Config
	sink       EventSink
	metrics    *telemetry.SupervisorMetrics

	// mu guards the fields below. Mutations only happen on the coordinator
	// loop goroutine; the lock exists for CurrentState readers and the
	// goroutines spawned per attempt.
	mu            sync.RWMutex
	status        Status
	handle        *backend.Handle
	cancelAttempt context.CancelFunc
	retryTimer    *time.Timer
	policy        *backoff.ExponentialBackOff
}

// New creates a supervisor in the Stopped state. Events produced by
// asynchronous work (launch completions, crash detections, retry timers) are
// delivered through sink and must be routed back into the serialized loop.
func New(controller backend.Controller, cfg Config, sink EventSink, opts ...Option) *Supervisor {
	cfg = cfg.withDefaults()
	s := &Supervisor{
		controller: controller,
		cfg:        cfg,
		sink:       sink,
		status:     Status{State: StateStopped},
		policy:     newBackOff(cfg),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// CurrentState returns a snapshot of the supervisor state. Non-blocking, safe
// from any goroutine.
func (s *Supervisor) CurrentState() Status {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.status
}

// Start launches the backend. No-op when already Starting or Running, and
// when permanently failed (only ResetFailure re-arms a failed supervisor).
func (s *Supervisor) Start(ctx context.Context) {
	attempt, retryCount, ok := s.beginStart()
	if !ok {
		return
	}

	if retryCount > 0 {
		s.metrics.RecordRestart(ctx, retryCount)
	}
	slog.Info("Starting backend", "attempt", attempt, "retry_count", retryCount)

	attemptCtx, cancel := context.WithTimeout(context.Background(), s.cfg.StartTimeout)
	s.mu.Lock()
	s.cancelAttempt = cancel
	s.mu.Unlock()

	go s.runStart(attemptCtx, attempt)
}

// beginStart commits the transition into Starting and allocates the attempt
// id. Returns ok=false when the current state does not permit starting.
func (s *Supervisor) beginStart() (attempt uint64, retryCount int, ok bool) {
	s.mu.Lock()
	switch s.status.State {
	case StateStarting, StateRunning, StateStopping, StatePermanentlyFailed:
		s.mu.Unlock()
		return 0, 0, false
	}

	from := s.status.State
	s.status.Attempt++
	s.status.State = StateStarting
	s.status.NextRetryAt = time.Time{}
	attempt = s.status.Attempt
	retryCount = s.status.RetryCount
	if s.retryTimer != nil {
		s.retryTimer.Stop()
		s.retryTimer = nil
	}
	s.mu.Unlock()

	s.committed(from, StateStarting)
	return attempt, retryCount, true
}

// runStart launches the backend and polls its health until it comes up, the
// start timeout expires, or the attempt is cancelled. Runs off-loop; its only
// output is a StartResult pushed through the sink.
func (s *Supervisor) runStart(ctx context.Context, attempt uint64) {
	started := time.Now()

	handle, err := s.controller.Launch(ctx)
	if err != nil {
		slog.Warn("Backend launch failed", "attempt", attempt, "error", err)
		s.sink(StartResult{Attempt: attempt, Err: err})
		return
	}

	ticker := time.NewTicker(startupPollInterval)
	defer ticker.Stop()

	for {
		if err := s.controller.ProbeHealth(ctx, handle); err == nil {
			s.sink(StartResult{Attempt: attempt, Handle: handle, Elapsed: time.Since(started)})
			return
		}

		select {
		case <-ctx.Done():
			// Timed out or superseded. The launched process must not
			// leak; this goroutine still owns it until a successful
			// result is committed.
			_ = s.controller.Terminate(context.Background(), handle)
			resultErr := error(ErrStartTimeout)
			if ctx.Err() == context.Canceled {
				resultErr = ErrAttemptCancelled
			}
			s.sink(StartResult{Attempt: attempt, Err: resultErr})
			return
		case <-ticker.C:
		}
	}
}

// HandleStartResult folds a start attempt outcome into the state machine.
// Results for a superseded attempt are discarded; a stale success still
// carries a live process, which is terminated here.
func (s *Supervisor) HandleStartResult(ctx context.Context, ev StartResult) {
	s.mu.Lock()
	if ev.Attempt != s.status.Attempt || s.status.State != StateStarting {
		s.mu.Unlock()
		slog.Debug("Discarding stale start result", "attempt", ev.Attempt)
		if ev.Handle != nil {
			_ = s.controller.Terminate(ctx, ev.Handle)
		}
		return
	}

	if s.cancelAttempt != nil {
		s.cancelAttempt()
		s.cancelAttempt = nil
	}

	if ev.Err != nil {
		s.mu.Unlock()
		s.recordFailure(ev.Err)
		return
	}

	from := s.status.State
	s.handle = ev.Handle
	s.status.State = StateRunning
	s.status.RetryCount = 0
	s.status.LastError = ""
	s.status.StartedAt = time.Now()
	s.status.NextRetryAt = time.Time{}
	s.policy.Reset()
	s.mu.Unlock()

	s.committed(from, StateRunning)
	s.metrics.RecordStartDuration(ctx, ev.Elapsed)
	slog.Info("Backend running",
		"attempt", ev.Attempt,
		"instance_id", ev.Handle.ID,
		"pid", ev.Handle.PID,
		"startup", ev.Elapsed)

	s.startMonitor(ev.Attempt, ev.Handle)
}

// HandleCrash folds a crash notification from the health monitor into the
// state machine, applying the same retry policy as a failed start.
func (s *Supervisor) HandleCrash(ctx context.Context, ev CrashDetected) {
	s.mu.Lock()
	if ev.Attempt != s.status.Attempt || s.status.State != StateRunning {
		s.mu.Unlock()
		slog.Debug("Discarding stale crash notification", "attempt", ev.Attempt)
		return
	}
	if s.cancelAttempt != nil {
		s.cancelAttempt()
		s.cancelAttempt = nil
	}
	handle := s.handle
	s.handle = nil
	s.mu.Unlock()

	slog.Warn("Backend crash detected", "attempt", ev.Attempt)
	if handle != nil {
		// The process may be wedged rather than dead; make sure it is gone
		// before a replacement is scheduled.
		_ = s.controller.Terminate(ctx, handle)
	}
	s.recordFailure(ErrCrashed)
}

// RetryDue reports whether a retry notification is still current: the failed
// attempt it was scheduled for has not been superseded and the supervisor is
// still waiting in Crashed.
func (s *Supervisor) RetryDue(ev RetryElapsed) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return ev.Attempt == s.status.Attempt && s.status.State == StateCrashed
}

// Stop cancels any in-flight start attempt, terminates the backend and
// transitions to Stopped. Idempotent; a no-op from Stopped and from
// PermanentlyFailed (which keeps its state for the manual-retry affordance).
func (s *Supervisor) Stop(ctx context.Context) {
	s.mu.Lock()
	if s.status.State == StateStopped || s.status.State.Terminal() {
		s.mu.Unlock()
		return
	}

	// Invalidate the in-flight attempt: any late completion is stale.
	s.status.Attempt++
	cancel := s.cancelAttempt
	s.cancelAttempt = nil
	timer := s.retryTimer
	s.retryTimer = nil
	handle := s.handle
	s.handle = nil
	from := s.status.State
	s.status.State = StateStopping
	s.status.NextRetryAt = time.Time{}
	s.mu.Unlock()

	s.committed(from, StateStopping)
	if cancel != nil {
		cancel()
	}
	if timer != nil {
		timer.Stop()
	}
	if handle != nil {
		_ = s.controller.Terminate(ctx, handle)
	}

	s.mu.Lock()
	s.status.State = StateStopped
	s.mu.Unlock()
	s.committed(StateStopping, StateStopped)
	slog.Info("Backend stopped")
}

// ResetFailure re-arms a permanently failed supervisor, transitioning back to
// Stopped with a fresh retry budget. Used by the manual-retry affordance;
// never invoked automatically.
func (s *Supervisor) ResetFailure() bool {
	s.mu.Lock()
	if s.status.State != StatePermanentlyFailed {
		s.mu.Unlock()
		return false
	}
	from := s.status.State
	s.status.State = StateStopped
	s.status.RetryCount = 0
	s.status.LastError = ""
	s.policy.Reset()
	s.mu.Unlock()

	s.committed(from, StateStopped)
	slog.Info("Backend failure reset, retry budget restored")
	return true
}

// recordFailure applies the retry/backoff policy after a failed start or a
// crash: schedule Crashed with the next backoff delay, or give up into
// PermanentlyFailed once the retry budget is exhausted.
func (s *Supervisor) recordFailure(cause error) {
	s.mu.Lock()
	from := s.status.State
	s.status.RetryCount++
	s.status.LastError = cause.Error()
	s.handle = nil

	if s.status.RetryCount < s.cfg.MaxRetries {
		delay := s.policy.NextBackOff()
		s.status.State = StateCrashed
		s.status.NextRetryAt = time.Now().Add(delay)
		attempt := s.status.Attempt
		retryCount := s.status.RetryCount
		if s.retryTimer != nil {
			s.retryTimer.Stop()
		}
		s.retryTimer = time.AfterFunc(delay, func() {
			s.sink(RetryElapsed{Attempt: attempt})
		})
		s.mu.Unlock()

		s.committed(from, StateCrashed)
		slog.Warn("Backend failed, retry scheduled",
			"error", cause,
			"retry_count", retryCount,
			"max_retries", s.cfg.MaxRetries,
			"delay", delay)
		return
	}

	s.status.State = StatePermanentlyFailed
	s.status.NextRetryAt = time.Time{}
	retryCount := s.status.RetryCount
	s.mu.Unlock()

	s.committed(from, StatePermanentlyFailed)
	slog.Error("Backend permanently failed, retries exhausted",
		"error", cause,
		"retry_count", retryCount)
}

// startMonitor begins the steady-state health check for a running backend.
// Two consecutive probe failures constitute a crash.
func (s *Supervisor) startMonitor(attempt uint64, handle *backend.Handle) {
	monCtx, cancel := context.WithCancel(context.Background())
	s.mu.Lock()
	s.cancelAttempt = cancel
	s.mu.Unlock()

	go s.runMonitor(monCtx, attempt, handle)
}

func (s *Supervisor) runMonitor(ctx context.Context, attempt uint64, handle *backend.Handle) {
	ticker := time.NewTicker(s.cfg.HealthCheckInterval)
	defer ticker.Stop()

	failures := 0
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		if err := s.controller.ProbeHealth(ctx, handle); err != nil {
			failures++
			s.metrics.RecordProbeFailure(ctx)
			slog.Warn("Health probe failed",
				"attempt", attempt,
				"consecutive_failures", failures,
				"error", err)
			if failures >= crashThreshold {
				s.sink(CrashDetected{Attempt: attempt})
				return
			}
			continue
		}
		failures = 0
	}
}

// committed logs and measures one committed state transition.
func (s *Supervisor) committed(from, to State) {
	s.metrics.RecordTransition(context.Background(), string(from), string(to))
	slog.Debug("Backend state transition", "from", from, "to", to)
}
