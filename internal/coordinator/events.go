package coordinator

import (
	"github.com/pixels-app/pixels-supervisor/internal/lifecycle"
	"github.com/pixels-app/pixels-supervisor/internal/supervisor"
)

// event is anything the loop processes: lifecycle intents, supervisor
// completions, and manual retry requests. All of them flow through the same
// ordered queue.
type event interface {
	isCoordinatorEvent()
}

// intentEvent carries a desired-backend-state intent from the lifecycle observer.
type intentEvent struct {
	intent lifecycle.Intent
}

func (intentEvent) isCoordinatorEvent() {}

// supervisorEvent carries an asynchronous supervisor completion.
type supervisorEvent struct {
	ev supervisor.Event
}

func (supervisorEvent) isCoordinatorEvent() {}

// retryRequest carries a manual re-arm request after permanent failure.
type retryRequest struct{}

func (retryRequest) isCoordinatorEvent() {}
