package supervisor

import (
	"context"
	"errors"
	"testing"
	"time"

	"pgregory.net/rapid"

	"github.com/pixels-app/pixels-supervisor/internal/backend"
)

// nopController satisfies backend.Controller without touching any process.
type nopController struct{}

func (nopController) Launch(context.Context) (*backend.Handle, error) {
	return &backend.Handle{ID: "stub", PID: 1}, nil
}

func (nopController) ProbeHealth(context.Context, *backend.Handle) error { return nil }

func (nopController) Terminate(context.Context, *backend.Handle) error { return nil }

// allowedTransitions are the state edges observable after one serialized
// operation. Stopping is transient inside Stop and never observed from outside.
var allowedTransitions = map[State][]State{
	StateStopped:           {StateStarting},
	StateStarting:          {StateRunning, StateCrashed, StatePermanentlyFailed, StateStopped},
	StateRunning:           {StateCrashed, StatePermanentlyFailed, StateStopped},
	StateCrashed:           {StateStarting, StateStopped},
	StatePermanentlyFailed: {StateStopped},
}

func transitionAllowed(from, to State) bool {
	if from == to {
		return true
	}
	for _, s := range allowedTransitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// TestStateMachineInvariants throws random operation sequences at the
// supervisor and checks the structural invariants hold after every step.
func TestStateMachineInvariants(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		maxRetries := rapid.IntRange(1, 6).Draw(t, "maxRetries")
		cfg := Config{
			BaseDelay:           time.Hour,
			MaxDelay:            time.Hour,
			MaxRetries:          maxRetries,
			StartTimeout:        time.Hour,
			HealthCheckInterval: time.Hour,
		}
		s := New(nopController{}, cfg, func(Event) {})
		ctx := context.Background()

		ops := rapid.SliceOfN(rapid.IntRange(0, 5), 1, 40).Draw(t, "ops")
		for i, op := range ops {
			cur := s.CurrentState()

			switch op {
			case 0:
				s.beginStart()
			case 1:
				s.HandleStartResult(ctx, StartResult{
					Attempt: cur.Attempt,
					Handle:  &backend.Handle{ID: "h", PID: 1},
				})
			case 2:
				s.HandleStartResult(ctx, StartResult{
					Attempt: cur.Attempt,
					Err:     errors.New("synthetic failure"),
				})
			case 3:
				s.HandleCrash(ctx, CrashDetected{Attempt: cur.Attempt})
			case 4:
				s.Stop(ctx)
			case 5:
				s.ResetFailure()
			}

			next := s.CurrentState()

			if !transitionAllowed(cur.State, next.State) {
				t.Fatalf("op %d (%d): illegal transition %s -> %s", i, op, cur.State, next.State)
			}
			if next.Attempt < cur.Attempt {
				t.Fatalf("op %d (%d): attempt id went backwards: %d -> %d", i, op, cur.Attempt, next.Attempt)
			}
			if next.RetryCount > maxRetries {
				t.Fatalf("op %d (%d): retry count %d exceeds budget %d", i, op, next.RetryCount, maxRetries)
			}
			if next.State == StateRunning && next.RetryCount != 0 {
				t.Fatalf("op %d (%d): running with nonzero retry count %d", i, op, next.RetryCount)
			}
			if next.State == StatePermanentlyFailed && next.RetryCount != maxRetries {
				t.Fatalf("op %d (%d): permanently failed with retry count %d, budget %d", i, op, next.RetryCount, maxRetries)
			}
			if next.State == StateCrashed && next.NextRetryAt.IsZero() {
				t.Fatalf("op %d (%d): crashed without a scheduled retry", i, op)
			}
			if next.State != StateCrashed && next.State != StateStarting && !next.NextRetryAt.IsZero() {
				t.Fatalf("op %d (%d): state %s carries a scheduled retry", i, op, next.State)
			}
		}

		s.Stop(ctx)
	})
}
