package api

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/enginelab/test-orchestrator/engine"
	"github.com/enginelab/test-orchestrator/registry"
	"github.com/enginelab/test-orchestrator/runner"
	"github.com/enginelab/test-orchestrator/types"
)

func testTree() *engine.Node {
	return &engine.Node{Name: "EditMode", FullName: "EditMode", HasChildren: true, Children: []*engine.Node{
		{Name: "CoreTests", FullName: "CoreTests", HasChildren: true, Children: []*engine.Node{
			{Name: "TestAdd", FullName: "CoreTests.TestAdd"},
			{Name: "TestSub", FullName: "CoreTests.TestSub"},
		}},
	}}
}

func newTestServer(t *testing.T, simCfg engine.SimConfig) *httptest.Server {
	t.Helper()
	if simCfg.Trees == nil {
		simCfg.Trees = map[string]*engine.Node{"EditMode": testTree()}
	}
	sim := engine.NewSim(simCfg)
	reg := registry.New(registry.Config{})
	controller, err := runner.New(runner.Config{
		Engine:   sim,
		Registry: reg,
		TreeWait: 2 * time.Second,
	})
	require.NoError(t, err)
	t.Cleanup(controller.Close)

	ts := httptest.NewServer(NewServer(controller, nil).Router())
	t.Cleanup(ts.Close)
	return ts
}

type testEnvelope struct {
	Success bool            `json:"success"`
	Message string          `json:"message"`
	Error   string          `json:"error"`
	Data    json.RawMessage `json:"data"`
}

func decodeEnvelope(t *testing.T, resp *http.Response) testEnvelope {
	t.Helper()
	defer resp.Body.Close()
	var env testEnvelope
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&env))
	return env
}

func postJSON(t *testing.T, url string, body any) *http.Response {
	t.Helper()
	data, err := json.Marshal(body)
	require.NoError(t, err)
	resp, err := http.Post(url, "application/json", bytes.NewReader(data))
	require.NoError(t, err)
	return resp
}

func TestListTestsEndpoint(t *testing.T) {
	ts := newTestServer(t, engine.SimConfig{})

	resp, err := http.Get(ts.URL + "/api/v1/tests?mode=EditMode")
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	env := decodeEnvelope(t, resp)
	assert.True(t, env.Success)

	var entries []types.CatalogEntry
	require.NoError(t, json.Unmarshal(env.Data, &entries))
	require.Len(t, entries, 2)
	assert.Equal(t, "CoreTests.TestAdd", entries[0].FullName)
	assert.Equal(t, "EditMode/CoreTests/TestAdd", entries[0].Path)
}

func TestStartRunEndpointWaits(t *testing.T) {
	ts := newTestServer(t, engine.SimConfig{
		Fail: map[string]string{"CoreTests.TestSub": "boom"},
	})

	resp := postJSON(t, ts.URL+"/api/v1/runs", map[string]any{
		"mode":           "EditMode",
		"timeoutSeconds": 10,
	})
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	env := decodeEnvelope(t, resp)
	assert.True(t, env.Success)
	assert.Contains(t, env.Message, "finished with state Failed")

	var data struct {
		RunID         string           `json:"runId"`
		StartedNewRun bool             `json:"startedNewRun"`
		Result        *types.RunResult `json:"result"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &data))
	assert.True(t, data.StartedNewRun)
	require.NotNil(t, data.Result)
	assert.Equal(t, data.RunID, data.Result.RunID)
	assert.Equal(t, types.RunStateFailed, data.Result.State)
	assert.Equal(t, 1, data.Result.Failed())
}

func TestStartRunEndpointNoWait(t *testing.T) {
	ts := newTestServer(t, engine.SimConfig{StepDelay: 100 * time.Millisecond})

	resp := postJSON(t, ts.URL+"/api/v1/runs", map[string]any{
		"mode":              "EditMode",
		"waitForCompletion": false,
	})
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	env := decodeEnvelope(t, resp)
	assert.True(t, env.Success)
	assert.Equal(t, "test run started", env.Message)

	var data struct {
		RunID  string           `json:"runId"`
		Status *types.RunStatus `json:"status"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &data))
	assert.NotEmpty(t, data.RunID)
	require.NotNil(t, data.Status)
	assert.False(t, data.Status.State.Terminal())

	// Poll the status endpoint until the run finishes
	require.Eventually(t, func() bool {
		resp, err := http.Get(ts.URL + "/api/v1/runs/status?runId=" + data.RunID)
		if err != nil {
			return false
		}
		env := decodeEnvelope(t, resp)
		var status types.RunStatus
		if err := json.Unmarshal(env.Data, &status); err != nil {
			return false
		}
		return status.State.Terminal()
	}, 5*time.Second, 50*time.Millisecond)
}

func TestStartRunEndpointWaitTimeout(t *testing.T) {
	ts := newTestServer(t, engine.SimConfig{StepDelay: 2 * time.Second})

	resp := postJSON(t, ts.URL+"/api/v1/runs", map[string]any{
		"mode":           "EditMode",
		"timeoutSeconds": 1,
	})
	// Timeout is a non-terminal outcome, not an HTTP failure
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	env := decodeEnvelope(t, resp)
	assert.False(t, env.Success)
	assert.NotEmpty(t, env.Error)

	var data struct {
		RunID  string           `json:"runId"`
		Status *types.RunStatus `json:"status"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &data))
	require.NotNil(t, data.Status)
	assert.False(t, data.Status.State.Terminal())
}

func TestStatusEndpointNotFound(t *testing.T) {
	ts := newTestServer(t, engine.SimConfig{})

	resp, err := http.Get(ts.URL + "/api/v1/runs/status?runId=no-such-run")
	require.NoError(t, err)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	env := decodeEnvelope(t, resp)
	assert.False(t, env.Success)
	assert.NotEmpty(t, env.Error)
}

func TestResultEndpoint(t *testing.T) {
	ts := newTestServer(t, engine.SimConfig{})

	// Run to completion first
	resp := postJSON(t, ts.URL+"/api/v1/runs", map[string]any{"mode": "EditMode", "timeoutSeconds": 10})
	env := decodeEnvelope(t, resp)
	require.True(t, env.Success)

	// Empty runId falls back to the last run
	resp, err := http.Get(ts.URL + "/api/v1/runs/result")
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	env = decodeEnvelope(t, resp)
	assert.True(t, env.Success)
	var result types.RunResult
	require.NoError(t, json.Unmarshal(env.Data, &result))
	assert.Equal(t, types.RunStateCompleted, result.State)
	assert.Equal(t, 2, result.Passed())
}

func TestCancelEndpoint(t *testing.T) {
	ts := newTestServer(t, engine.SimConfig{StepDelay: 200 * time.Millisecond})

	start := postJSON(t, ts.URL+"/api/v1/runs", map[string]any{
		"mode":              "EditMode",
		"waitForCompletion": false,
	})
	env := decodeEnvelope(t, start)
	var data struct {
		RunID string `json:"runId"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &data))

	resp := postJSON(t, ts.URL+"/api/v1/runs/cancel", map[string]any{"runId": data.RunID})
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	env = decodeEnvelope(t, resp)
	assert.True(t, env.Success)
	var status types.RunStatus
	require.NoError(t, json.Unmarshal(env.Data, &status))
	assert.Equal(t, types.RunStateCancelling, status.State)

	// Cancelling a terminal run is a conflict
	require.Eventually(t, func() bool {
		resp, err := http.Get(ts.URL + "/api/v1/runs/status?runId=" + data.RunID)
		if err != nil {
			return false
		}
		env := decodeEnvelope(t, resp)
		var st types.RunStatus
		return json.Unmarshal(env.Data, &st) == nil && st.State.Terminal()
	}, 5*time.Second, 50*time.Millisecond)

	resp = postJSON(t, ts.URL+"/api/v1/runs/cancel", map[string]any{"runId": data.RunID})
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
}

func TestRerunFailedEndpoint(t *testing.T) {
	ts := newTestServer(t, engine.SimConfig{
		Fail: map[string]string{"CoreTests.TestSub": "boom"},
	})

	resp := postJSON(t, ts.URL+"/api/v1/runs", map[string]any{"mode": "EditMode", "timeoutSeconds": 10})
	env := decodeEnvelope(t, resp)
	require.True(t, env.Success)

	// Empty runId reruns the last run's failures
	resp = postJSON(t, ts.URL+"/api/v1/runs/rerun-failed", map[string]any{"timeoutSeconds": 10})
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	env = decodeEnvelope(t, resp)
	assert.True(t, env.Success)
	var data struct {
		Result *types.RunResult `json:"result"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &data))
	require.NotNil(t, data.Result)
	assert.Equal(t, 1, data.Result.Total(), "only the failed test reruns")
}

func TestRerunFailedEndpointWithoutFailures(t *testing.T) {
	ts := newTestServer(t, engine.SimConfig{})

	resp := postJSON(t, ts.URL+"/api/v1/runs", map[string]any{"mode": "EditMode", "timeoutSeconds": 10})
	env := decodeEnvelope(t, resp)
	require.True(t, env.Success)

	resp = postJSON(t, ts.URL+"/api/v1/runs/rerun-failed", map[string]any{})
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
	env = decodeEnvelope(t, resp)
	assert.Contains(t, env.Error, "no failed tests")
}

func TestStartRunEndpointBadBody(t *testing.T) {
	ts := newTestServer(t, engine.SimConfig{})

	resp, err := http.Post(ts.URL+"/api/v1/runs", "application/json", bytes.NewReader([]byte("{broken")))
	require.NoError(t, err)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestStartRunEndpointRejectsUnknownMode(t *testing.T) {
	ts := newTestServer(t, engine.SimConfig{})

	resp := postJSON(t, ts.URL+"/api/v1/runs", map[string]any{"mode": "BogusMode"})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	env := decodeEnvelope(t, resp)
	assert.False(t, env.Success)
	assert.Contains(t, env.Error, "invalid mode")

	// An omitted mode still defaults.
	resp = postJSON(t, ts.URL+"/api/v1/runs", map[string]any{"timeoutSeconds": 10})
	env = decodeEnvelope(t, resp)
	assert.True(t, env.Success)
}
