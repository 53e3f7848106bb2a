// Package supervisor owns the backend process state machine. It executes
// start, stop and restart with a bounded exponential backoff policy and runs a
// periodic health check while the backend should be running.
//
// All state-mutating methods must be invoked from a single serialized context
// (the coordinator loop). Asynchronous work spawned by the supervisor never
// touches state directly; completions are folded back through the event sink.
package supervisor

import (
	"errors"
	"time"

	"github.com/pixels-app/pixels-supervisor/internal/backend"
)

// State is the backend lifecycle state. Exactly one value exists at any
// instant and transitions are serialized by the coordinator loop.
type State string

const (
	// StateStopped means no backend instance exists
	StateStopped State = "stopped"

	// StateStarting means a launch attempt is in flight
	StateStarting State = "starting"

	// StateRunning means the backend is up and passing health checks
	StateRunning State = "running"

	// StateCrashed means the backend failed and a retry is scheduled
	StateCrashed State = "crashed"

	// StateStopping means the backend is being terminated
	StateStopping State = "stopping"

	// StatePermanentlyFailed means retries are exhausted; no further
	// automatic attempts are made
	StatePermanentlyFailed State = "permanently-failed"
)

// Terminal reports whether no automatic transitions leave this state.
func (s State) Terminal() bool {
	return s == StatePermanentlyFailed
}

// Status is a read-only snapshot of the supervisor's state.
type Status struct {
	// State is the current backend lifecycle state
	State State

	// Attempt is the id of the current (or most recent) start attempt.
	// Monotonically increasing; results tagged with an older id are stale.
	Attempt uint64

	// RetryCount counts consecutive failures since the backend last
	// reached Running. Bounded by Config.MaxRetries.
	RetryCount int

	// LastError describes the most recent failure, empty after a
	// successful start
	LastError string

	// NextRetryAt is when the next automatic restart fires, zero when no
	// retry is scheduled
	NextRetryAt time.Time

	// StartedAt is when the backend last reached Running
	StartedAt time.Time
}

// Sentinel errors for the supervisor's failure taxonomy. Launch failures are
// reported by the backend controller itself (backend.LaunchError).
var (
	// ErrStartTimeout means the health check never succeeded within the
	// start timeout
	ErrStartTimeout = errors.New("backend did not become healthy within start timeout")

	// ErrAttemptCancelled means a start attempt was superseded by a newer
	// intent; never surfaced to presentation
	ErrAttemptCancelled = errors.New("start attempt superseded")

	// ErrCrashed means a running backend stopped responding to health probes
	ErrCrashed = errors.New("backend stopped responding while running")
)

// Event is an asynchronous supervisor completion fed back into the
// coordinator loop.
type Event interface {
	attemptID() uint64
}

// StartResult reports the outcome of a start attempt.
type StartResult struct {
	// Attempt tags the start attempt this result belongs to
	Attempt uint64

	// Handle is the launched backend instance, nil on failure
	Handle *backend.Handle

	// Elapsed is how long the attempt took to reach healthy
	Elapsed time.Duration

	// Err is nil on success
	Err error
}

func (r StartResult) attemptID() uint64 { return r.Attempt }

// CrashDetected reports that the periodic health check declared the backend dead.
type CrashDetected struct {
	// Attempt tags the running attempt the crash belongs to
	Attempt uint64
}

func (c CrashDetected) attemptID() uint64 { return c.Attempt }

// RetryElapsed reports that a scheduled restart delay has passed.
type RetryElapsed struct {
	// Attempt tags the failed attempt the retry was scheduled for
	Attempt uint64
}

func (r RetryElapsed) attemptID() uint64 { return r.Attempt }

// EventSink receives supervisor events for serialized processing.
type EventSink func(Event)
