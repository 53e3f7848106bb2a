package v1_test

import (
	"bufio"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pixels-app/pixels-supervisor/internal/api"
	v1 "github.com/pixels-app/pixels-supervisor/internal/api/v1"
	"github.com/pixels-app/pixels-supervisor/internal/broadcast"
	"github.com/pixels-app/pixels-supervisor/internal/lifecycle"
)

type testServer struct {
	srv     *httptest.Server
	bc      *broadcast.Broadcaster
	phases  chan lifecycle.Phase
	retries chan struct{}
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()

	ts := &testServer{
		bc:      broadcast.New(),
		phases:  make(chan lifecycle.Phase, 8),
		retries: make(chan struct{}, 8),
	}
	routes := v1.NewRoutes(ts.bc,
		func(p lifecycle.Phase) { ts.phases <- p },
		func() { ts.retries <- struct{}{} },
	)
	ts.srv = httptest.NewServer(api.NewServer(routes))
	t.Cleanup(ts.srv.Close)
	return ts
}

func TestGetStatus(t *testing.T) {
	t.Parallel()

	ts := newTestServer(t)
	ts.bc.Publish(broadcast.Snapshot{Available: true, AsOf: time.Now()})

	resp, err := http.Get(ts.srv.URL + "/v1/status")
	require.NoError(t, err)
	defer resp.Body.Close()

	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "application/json", resp.Header.Get("Content-Type"))

	var snap broadcast.Snapshot
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&snap))
	assert.True(t, snap.Available)
}

func TestGetStatusInitial(t *testing.T) {
	t.Parallel()

	ts := newTestServer(t)

	resp, err := http.Get(ts.srv.URL + "/v1/status")
	require.NoError(t, err)
	defer resp.Body.Close()

	var snap broadcast.Snapshot
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&snap))
	assert.False(t, snap.Available)
	assert.Equal(t, broadcast.ReasonStopped, snap.Reason)
}

func TestPostLifecyclePhase(t *testing.T) {
	t.Parallel()

	tests := []struct {
		phase      string
		wantStatus int
		wantPhase  lifecycle.Phase
	}{
		{phase: "resumed", wantStatus: http.StatusNoContent, wantPhase: lifecycle.PhaseResumed},
		{phase: "paused", wantStatus: http.StatusNoContent, wantPhase: lifecycle.PhasePaused},
		{phase: "detached", wantStatus: http.StatusNoContent, wantPhase: lifecycle.PhaseDetached},
		{phase: "hibernating", wantStatus: http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.phase, func(t *testing.T) {
			t.Parallel()

			ts := newTestServer(t)

			resp, err := http.Post(ts.srv.URL+"/v1/lifecycle/"+tt.phase, "", nil)
			require.NoError(t, err)
			defer resp.Body.Close()

			require.Equal(t, tt.wantStatus, resp.StatusCode)
			if tt.wantStatus == http.StatusNoContent {
				assert.Equal(t, tt.wantPhase, <-ts.phases)
			} else {
				var errResp v1.ErrorResponse
				require.NoError(t, json.NewDecoder(resp.Body).Decode(&errResp))
				assert.Contains(t, errResp.Error, "unknown lifecycle phase")
			}
		})
	}
}

func TestPostRetry(t *testing.T) {
	t.Parallel()

	ts := newTestServer(t)

	resp, err := http.Post(ts.srv.URL+"/v1/retry", "", nil)
	require.NoError(t, err)
	defer resp.Body.Close()

	require.Equal(t, http.StatusAccepted, resp.StatusCode)
	select {
	case <-ts.retries:
	case <-time.After(2 * time.Second):
		t.Fatal("retry callback never invoked")
	}
}

func TestStreamStatus(t *testing.T) {
	t.Parallel()

	ts := newTestServer(t)

	resp, err := http.Get(ts.srv.URL + "/v1/status/stream")
	require.NoError(t, err)
	defer resp.Body.Close()

	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	reader := bufio.NewReader(resp.Body)

	readEvent := func() broadcast.Snapshot {
		t.Helper()
		for {
			line, err := reader.ReadString('\n')
			require.NoError(t, err)
			line = strings.TrimSpace(line)
			if !strings.HasPrefix(line, "data: ") {
				continue
			}
			var snap broadcast.Snapshot
			require.NoError(t, json.Unmarshal([]byte(strings.TrimPrefix(line, "data: ")), &snap))
			return snap
		}
	}

	// First event is the replayed current snapshot.
	first := readEvent()
	assert.False(t, first.Available)
	assert.Equal(t, broadcast.ReasonStopped, first.Reason)

	ts.bc.Publish(broadcast.Snapshot{Available: true, AsOf: time.Now()})
	second := readEvent()
	assert.True(t, second.Available)
}

func TestHealthEndpoint(t *testing.T) {
	t.Parallel()

	ts := newTestServer(t)

	resp, err := http.Get(ts.srv.URL + "/health")
	require.NoError(t, err)
	defer resp.Body.Close()

	require.Equal(t, http.StatusOK, resp.StatusCode)

	var health v1.HealthResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&health))
	assert.Equal(t, "ok", health.Status)
	assert.False(t, health.Timestamp.IsZero())
}

func TestVersionEndpoint(t *testing.T) {
	t.Parallel()

	ts := newTestServer(t)

	resp, err := http.Get(ts.srv.URL + "/version")
	require.NoError(t, err)
	defer resp.Body.Close()

	require.Equal(t, http.StatusOK, resp.StatusCode)

	var payload map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&payload))
	assert.Contains(t, payload, "version")
}
