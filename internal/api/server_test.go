package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/net/websocket"

	"qsafp-harness/internal/events"
	"qsafp-harness/internal/failsafe"
	"qsafp-harness/internal/harness"
	"qsafp-harness/internal/report"
)

func newTestServer(t *testing.T) (*Server, *httptest.Server, *events.Bus) {
	t.Helper()

	engine, err := harness.New(harness.DefaultConfig(), report.New())
	require.NoError(t, err)

	bus := events.NewBus()
	engine.SetEventBus(bus)

	s := NewServer("127.0.0.1:0", engine, bus)
	ts := httptest.NewServer(s.Handler())
	t.Cleanup(func() {
		ts.Close()
		bus.Close()
	})
	return s, ts, bus
}

func getJSON(t *testing.T, url string, v any) {
	t.Helper()
	resp, err := http.Get(url)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "application/json", resp.Header.Get("Content-Type"))
	require.NoError(t, json.NewDecoder(resp.Body).Decode(v))
}

func postRun(t *testing.T, url, preset string) int {
	t.Helper()
	body := bytes.NewBufferString(`{"preset":"` + preset + `"}`)
	resp, err := http.Post(url+"/api/run", "application/json", body)
	require.NoError(t, err)
	resp.Body.Close()
	return resp.StatusCode
}

func waitIdle(t *testing.T, s *Server) {
	t.Helper()
	require.Eventually(t, func() bool {
		return !s.status().Running
	}, 5*time.Second, 10*time.Millisecond)
}

func TestStatusIdle(t *testing.T) {
	_, ts, _ := newTestServer(t)

	var status StatusResponse
	getJSON(t, ts.URL+"/api/status", &status)

	assert.False(t, status.Running)
	assert.Equal(t, "stub", status.Vendor)
	assert.Zero(t, status.Outcomes)
}

func TestMethodNotAllowed(t *testing.T) {
	_, ts, _ := newTestServer(t)

	for _, path := range []string{"/api/status", "/api/outcomes", "/api/metrics", "/api/vendors", "/api/presets"} {
		resp, err := http.Post(ts.URL+path, "application/json", nil)
		require.NoError(t, err)
		resp.Body.Close()
		assert.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode, path)
	}

	resp, err := http.Get(ts.URL + "/api/run")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)
}

func TestVendors(t *testing.T) {
	_, ts, _ := newTestServer(t)

	var vendors []VendorInfo
	getJSON(t, ts.URL+"/api/vendors", &vendors)

	byName := make(map[string]VendorInfo)
	for _, v := range vendors {
		byName[v.Name] = v
	}
	require.Contains(t, byName, "stub")
	assert.True(t, byName["stub"].Active)
	assert.False(t, byName["stub"].Biometric)
	assert.True(t, byName["anthropic"].Biometric)
}

func TestPresets(t *testing.T) {
	_, ts, _ := newTestServer(t)

	var presets []PresetInfo
	getJSON(t, ts.URL+"/api/presets", &presets)

	require.Len(t, presets, 4)
	assert.Equal(t, "baseline", presets[0].Name)
	assert.Equal(t, 1, presets[0].Scenarios)
	assert.Equal(t, "idle", presets[1].Name)
}

func TestRunUnknownPreset(t *testing.T) {
	_, ts, _ := newTestServer(t)
	assert.Equal(t, http.StatusNotFound, postRun(t, ts.URL, "chaos"))
}

func TestRunInvalidBody(t *testing.T) {
	_, ts, _ := newTestServer(t)

	resp, err := http.Post(ts.URL+"/api/run", "application/json", strings.NewReader("{"))
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestRunPresetRecordsOutcomes(t *testing.T) {
	s, ts, _ := newTestServer(t)

	require.Equal(t, http.StatusAccepted, postRun(t, ts.URL, "idle"))
	waitIdle(t, s)

	var outcomes []failsafe.Outcome
	getJSON(t, ts.URL+"/api/outcomes", &outcomes)
	require.Len(t, outcomes, 1)
	assert.Equal(t, "IDLE", outcomes[0].ScenarioID)
	assert.Equal(t, failsafe.ReasonLeaseExpiry, outcomes[0].TriggerReason)

	var m MetricsResponse
	getJSON(t, ts.URL+"/api/metrics", &m)
	assert.Equal(t, uint64(1), m.Scenarios)
	assert.Equal(t, uint64(1), m.LeaseTriggers)
	assert.Equal(t, 1, m.HostAlertsTrigger)

	var status StatusResponse
	getJSON(t, ts.URL+"/api/status", &status)
	assert.Equal(t, "idle", status.Preset)
	assert.NotEmpty(t, status.RunID)
	assert.Positive(t, status.LastRunMs)
}

func TestRunConflict(t *testing.T) {
	s, ts, _ := newTestServer(t)

	require.Equal(t, http.StatusAccepted, postRun(t, ts.URL, "saturation"))
	assert.Equal(t, http.StatusConflict, postRun(t, ts.URL, "idle"))
	waitIdle(t, s)

	assert.Equal(t, http.StatusAccepted, postRun(t, ts.URL, "idle"))
	waitIdle(t, s)
}

func TestWaitForBackgroundRun(t *testing.T) {
	s, ts, _ := newTestServer(t)

	require.Equal(t, http.StatusAccepted, postRun(t, ts.URL, "idle"))
	s.Wait()

	assert.False(t, s.engine.IsRunning())
	assert.Len(t, s.engine.Reporter().Outcomes(), 1)
}

func TestOutcomesFromStore(t *testing.T) {
	sink, err := report.OpenSQLite(filepath.Join(t.TempDir(), "outcomes.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = sink.Close() })

	engine, err := harness.New(harness.DefaultConfig(), report.New(sink))
	require.NoError(t, err)
	s := NewServer("127.0.0.1:0", engine, nil)
	s.SetStore(sink)
	ts := httptest.NewServer(s.Handler())
	t.Cleanup(ts.Close)

	require.Equal(t, http.StatusAccepted, postRun(t, ts.URL, "idle"))
	s.Wait()
	first := engine.RunID()
	require.Equal(t, http.StatusAccepted, postRun(t, ts.URL, "idle"))
	s.Wait()

	var all []failsafe.Outcome
	getJSON(t, ts.URL+"/api/outcomes", &all)
	require.Len(t, all, 2)
	assert.Equal(t, first, all[0].RunID)

	var one []failsafe.Outcome
	getJSON(t, ts.URL+"/api/outcomes?run_id="+first, &one)
	require.Len(t, one, 1)
	assert.Equal(t, "IDLE", one[0].ScenarioID)

	var none []failsafe.Outcome
	getJSON(t, ts.URL+"/api/outcomes?run_id=unknown", &none)
	assert.Empty(t, none)
}

type wsMessage struct {
	Type  string       `json:"type"`
	Event events.Event `json:"event"`
	RunID string       `json:"run_id"`
}

func TestWebSocketStreamsEvents(t *testing.T) {
	s, ts, bus := newTestServer(t)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go s.broadcastLoop(ctx)

	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws"
	ws, err := websocket.Dial(wsURL, "", "http://localhost/")
	require.NoError(t, err)
	defer ws.Close()

	require.Eventually(t, func() bool {
		return s.clientCount() == 1 && bus.SubscriberCount() == 1
	}, 2*time.Second, 5*time.Millisecond)

	require.Equal(t, http.StatusAccepted, postRun(t, ts.URL, "idle"))

	require.NoError(t, ws.SetReadDeadline(time.Now().Add(5*time.Second)))

	var sawCompleted, sawRunComplete bool
	for !sawCompleted || !sawRunComplete {
		var raw string
		require.NoError(t, websocket.Message.Receive(ws, &raw))

		var msg wsMessage
		require.NoError(t, json.Unmarshal([]byte(raw), &msg))

		switch msg.Type {
		case "event":
			if msg.Event.Type == events.EventFailSafeCompleted {
				assert.Equal(t, "IDLE", msg.Event.ScenarioID)
				sawCompleted = true
			}
		case "run_complete":
			assert.NotEmpty(t, msg.RunID)
			sawRunComplete = true
		}
	}

	waitIdle(t, s)
}
