// Package lifecycle translates host application lifecycle phases into
// desired-backend-state intents. The host runtime (the mobile shell embedding
// the supervisor) reports phases through an EventSource; the observer debounces
// background transitions so quick app switches never thrash the backend.
package lifecycle

import "fmt"

// Phase is a host application lifecycle phase.
type Phase string

const (
	// PhaseResumed means the application is in the foreground and interactive
	PhaseResumed Phase = "resumed"

	// PhaseInactive means the application is transiently not receiving input
	// (e.g. an incoming call overlay); treated as a blip, no intent is derived
	PhaseInactive Phase = "inactive"

	// PhasePaused means the application is in the background
	PhasePaused Phase = "paused"

	// PhaseDetached means the application is being torn down by the host
	PhaseDetached Phase = "detached"
)

// ParsePhase converts a string into a Phase, rejecting unknown values.
func ParsePhase(s string) (Phase, error) {
	switch Phase(s) {
	case PhaseResumed, PhaseInactive, PhasePaused, PhaseDetached:
		return Phase(s), nil
	default:
		return "", fmt.Errorf("unknown lifecycle phase %q", s)
	}
}

// Intent is the desired backend state derived from lifecycle phases.
type Intent int

const (
	// IntentWantRunning means the backend should be running
	IntentWantRunning Intent = iota

	// IntentWantStopped means the backend should be stopped
	IntentWantStopped
)

// String returns a human-readable intent name.
func (i Intent) String() string {
	switch i {
	case IntentWantRunning:
		return "want-running"
	case IntentWantStopped:
		return "want-stopped"
	default:
		return fmt.Sprintf("intent(%d)", int(i))
	}
}

// EventSource is the host-provided hook delivering lifecycle phases. It
// abstracts the platform callback mechanism so the observer never depends on a
// specific host runtime.
type EventSource interface {
	// AddListener registers a listener invoked for every phase change.
	AddListener(func(Phase))
}
