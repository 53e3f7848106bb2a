// Package v1 provides the HTTP handlers wiring the host runtime and the
// presentation layer to the lifecycle coordinator.
package v1

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/pixels-app/pixels-supervisor/internal/broadcast"
	"github.com/pixels-app/pixels-supervisor/internal/lifecycle"
	"github.com/pixels-app/pixels-supervisor/internal/versions"
)

// StatusSource exposes the availability signal: the latest snapshot for
// polling clients and subscriptions for streaming ones.
type StatusSource interface {
	Latest() broadcast.Snapshot
	Subscribe() *broadcast.Subscription
}

// ErrorResponse represents a standardized error response
type ErrorResponse struct {
	Error string `json:"error"`
}

// Routes holds the coordinator-facing dependencies for the v1 endpoints.
type Routes struct {
	status  StatusSource
	onPhase func(lifecycle.Phase)
	onRetry func()
}

// NewRoutes creates the v1 route set. onPhase receives host lifecycle phases;
// onRetry requests a manual re-arm after permanent failure.
func NewRoutes(status StatusSource, onPhase func(lifecycle.Phase), onRetry func()) *Routes {
	return &Routes{
		status:  status,
		onPhase: onPhase,
		onRetry: onRetry,
	}
}

// Router assembles the v1 endpoints.
func (rt *Routes) Router() http.Handler {
	r := chi.NewRouter()
	r.Get("/status", rt.getStatus)
	r.Get("/status/stream", rt.streamStatus)
	r.Post("/lifecycle/{phase}", rt.postLifecyclePhase)
	r.Post("/retry", rt.postRetry)
	return r
}

// getStatus returns the latest availability snapshot.
func (rt *Routes) getStatus(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, rt.status.Latest())
}

// streamStatus delivers the availability signal as server-sent events. The
// first event is always the current snapshot; afterwards the client receives
// every committed update, coalesced to the latest value if it reads slowly.
func (rt *Routes) streamStatus(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "streaming not supported")
		return
	}

	sub := rt.status.Subscribe()
	defer sub.Cancel()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	for {
		select {
		case <-r.Context().Done():
			return
		case snap := <-sub.Updates():
			payload, err := json.Marshal(snap)
			if err != nil {
				slog.Error("Failed to encode availability snapshot", "error", err)
				return
			}
			fmt.Fprintf(w, "data: %s\n\n", payload)
			flusher.Flush()
		}
	}
}

// postLifecyclePhase accepts a host lifecycle phase report.
func (rt *Routes) postLifecyclePhase(w http.ResponseWriter, r *http.Request) {
	phase, err := lifecycle.ParsePhase(chi.URLParam(r, "phase"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	rt.onPhase(phase)
	w.WriteHeader(http.StatusNoContent)
}

// postRetry requests a manual re-arm after permanent failure.
func (rt *Routes) postRetry(w http.ResponseWriter, _ *http.Request) {
	rt.onRetry()
	w.WriteHeader(http.StatusAccepted)
}

// HealthResponse is the supervisor's own health payload.
type HealthResponse struct {
	Status    string    `json:"status"`
	Version   string    `json:"version"`
	Timestamp time.Time `json:"timestamp"`
}

// HealthHandler reports the health of the supervisor process itself (not the
// supervised backend; that is what /v1/status is for).
func HealthHandler(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, HealthResponse{
		Status:    "ok",
		Version:   versions.GetVersionInfo().Version,
		Timestamp: time.Now(),
	})
}

// VersionHandler returns full build version information.
func VersionHandler(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, versions.GetVersionInfo())
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("Failed to encode response", "error", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, ErrorResponse{Error: msg})
}
