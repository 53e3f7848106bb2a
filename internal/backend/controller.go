// Package backend defines the control surface for the supervised Pixels backend
// process. The supervisor owns the backend exclusively through this interface and
// never reaches past it; everything behind Launch, Terminate and ProbeHealth is
// opaque to the rest of the system.
package backend

import (
	"context"
	"errors"
	"os/exec"
)

//go:generate mockgen -destination=mocks/mock_controller.go -package=mocks -source=controller.go Controller

// ErrUnhealthy is returned by ProbeHealth when the backend responded but is not
// reporting a healthy status.
var ErrUnhealthy = errors.New("backend reported unhealthy")

// LaunchError wraps a failure to start the backend process (executable missing,
// permission denied, resource conflict). Launch failures are transient from the
// supervisor's point of view and are retried under backoff.
type LaunchError struct {
	Err error
}

// Error returns the error message
func (e *LaunchError) Error() string {
	return "failed to launch backend: " + e.Err.Error()
}

// Unwrap returns the underlying error
func (e *LaunchError) Unwrap() error {
	return e.Err
}

// Handle identifies one launched backend instance. It is created by Launch,
// owned by the supervisor, and released by Terminate.
type Handle struct {
	// ID uniquely identifies this backend instance across restarts
	ID string

	// PID is the operating system process ID
	PID int

	// HealthURL is the backend's health endpoint
	HealthURL string

	cmd      *exec.Cmd
	waitDone chan error
}

// Controller launches, probes and terminates backend instances.
type Controller interface {
	// Launch starts a new backend instance and returns its handle.
	// The returned process outlives ctx; ctx only bounds the launch itself.
	Launch(ctx context.Context) (*Handle, error)

	// ProbeHealth checks whether the backend behind handle is responsive.
	// It returns within a bounded time and reports an error when the backend
	// is unreachable or unhealthy.
	ProbeHealth(ctx context.Context, handle *Handle) error

	// Terminate stops the backend instance, escalating to forced termination
	// if it does not exit within the configured stop timeout. Idempotent.
	Terminate(ctx context.Context, handle *Handle) error
}
