package backend

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"syscall"
	"time"

	"github.com/google/uuid"

	"github.com/pixels-app/pixels-supervisor/internal/httpclient"
)

const (
	// DefaultProbeTimeout bounds a single health probe
	DefaultProbeTimeout = 2 * time.Second

	// DefaultStopTimeout is how long Terminate waits for a graceful exit
	// before killing the process
	DefaultStopTimeout = 5 * time.Second
)

// ProcessConfig describes how to launch and reach the backend process.
type ProcessConfig struct {
	// Command is the backend executable (e.g. "pixels")
	Command string

	// Args are passed to the executable (e.g. "serve --host localhost --port 5000")
	Args []string

	// HealthURL is the backend health endpoint (e.g. "http://localhost:5000/health")
	HealthURL string

	// ProbeTimeout bounds a single health probe
	ProbeTimeout time.Duration

	// StopTimeout bounds graceful termination before SIGKILL
	StopTimeout time.Duration
}

// ProcessController launches the backend as a child process and probes it over HTTP.
type ProcessController struct {
	cfg    ProcessConfig
	client httpclient.Client
}

// NewProcessController creates a controller for the given process configuration.
func NewProcessController(cfg ProcessConfig) *ProcessController {
	if cfg.ProbeTimeout == 0 {
		cfg.ProbeTimeout = DefaultProbeTimeout
	}
	if cfg.StopTimeout == 0 {
		cfg.StopTimeout = DefaultStopTimeout
	}
	return &ProcessController{
		cfg:    cfg,
		client: httpclient.NewDefaultClient(cfg.ProbeTimeout),
	}
}

// Launch starts the backend process. The process is not tied to ctx; once
// started it runs until Terminate.
func (c *ProcessController) Launch(ctx context.Context) (*Handle, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	cmd := exec.Command(c.cfg.Command, c.cfg.Args...)
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr

	if err := cmd.Start(); err != nil {
		return nil, &LaunchError{Err: err}
	}

	handle := &Handle{
		ID:        uuid.NewString(),
		PID:       cmd.Process.Pid,
		HealthURL: c.cfg.HealthURL,
		cmd:       cmd,
		waitDone:  make(chan error, 1),
	}

	// Reap the process as soon as it exits to avoid zombies.
	go func() {
		handle.waitDone <- cmd.Wait()
		close(handle.waitDone)
	}()

	slog.Info("Launched backend process",
		"instance_id", handle.ID,
		"pid", handle.PID,
		"command", c.cfg.Command)

	return handle, nil
}

// ProbeHealth performs a bounded-time GET against the backend health endpoint.
func (c *ProcessController) ProbeHealth(ctx context.Context, handle *Handle) error {
	if handle == nil {
		return fmt.Errorf("nil backend handle")
	}

	probeCtx, cancel := context.WithTimeout(ctx, c.cfg.ProbeTimeout)
	defer cancel()

	if _, err := c.client.Get(probeCtx, handle.HealthURL); err != nil {
		return fmt.Errorf("%w: %w", ErrUnhealthy, err)
	}
	return nil
}

// Terminate asks the process to exit with SIGTERM and escalates to SIGKILL
// after the stop timeout. Safe to call on an already-exited instance.
func (c *ProcessController) Terminate(ctx context.Context, handle *Handle) error {
	if handle == nil || handle.cmd == nil || handle.cmd.Process == nil {
		return nil
	}

	// The process may already be gone; a failed signal is not an error worth
	// surfacing, the wait below resolves the true state.
	if err := handle.cmd.Process.Signal(syscall.SIGTERM); err != nil {
		slog.Debug("SIGTERM failed, process likely already exited",
			"instance_id", handle.ID,
			"pid", handle.PID,
			"error", err)
	}

	timer := time.NewTimer(c.cfg.StopTimeout)
	defer timer.Stop()

	select {
	case <-handle.waitDone:
		slog.Info("Backend process exited", "instance_id", handle.ID, "pid", handle.PID)
		return nil
	case <-timer.C:
	case <-ctx.Done():
	}

	slog.Warn("Backend did not exit in time, killing",
		"instance_id", handle.ID,
		"pid", handle.PID)
	if err := handle.cmd.Process.Kill(); err != nil {
		slog.Debug("Kill failed, process likely already exited",
			"instance_id", handle.ID,
			"error", err)
	}
	<-handle.waitDone
	return nil
}
