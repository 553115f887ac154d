package service

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/petrijr/agentflow"
)

func newTestService(t *testing.T) (*Service, http.Handler) {
	t.Helper()

	rt, err := agentflow.NewRuntime(agentflow.RuntimeConfig{
		BaseDir: t.TempDir(),
		Metadata: []agentflow.AgentMetadata{
			{ID: "plan"},
			{ID: "build", Parallel: true},
			{ID: "lint", Parallel: true},
		},
	})
	require.NoError(t, err)

	for _, id := range []string{"plan", "build", "lint"} {
		id := id
		require.NoError(t, rt.RegisterAgent(id, func() agentflow.Agent {
			return agentflow.AgentFunc(func(ctx context.Context, tc *agentflow.TaskContext) (any, error) {
				return id + " done", nil
			})
		}))
	}
	require.NoError(t, agentflow.NewFlow("serial").Step("plan").Step("build").Register(rt))

	svc, err := New(Config{Runtime: rt})
	require.NoError(t, err)
	return svc, svc.Handler()
}

func doJSON(t *testing.T, h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestService_RunFlow(t *testing.T) {
	_, h := newTestService(t)

	rec := doJSON(t, h, http.MethodPost, "/flows/run", `{"story_id":"story-1"}`)
	require.Equal(t, http.StatusOK, rec.Code)

	var res agentflow.FlowResult
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &res))
	require.NotEmpty(t, res.WorkflowID)
	require.Equal(t, "plan done", res.Results["plan"])
	require.Len(t, res.Completed, 3)
}

func TestService_RunNamedFlow(t *testing.T) {
	_, h := newTestService(t)

	rec := doJSON(t, h, http.MethodPost, "/flows/run", `{"flow":"serial","story_id":"story-1"}`)
	require.Equal(t, http.StatusOK, rec.Code)

	var res agentflow.FlowResult
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &res))
	require.Equal(t, []string{"plan", "build"}, res.Completed)
}

func TestService_RunFlowErrors(t *testing.T) {
	_, h := newTestService(t)

	rec := doJSON(t, h, http.MethodPost, "/flows/run", `{"flow":"nope","story_id":"story-1"}`)
	require.Equal(t, http.StatusNotFound, rec.Code)

	rec = doJSON(t, h, http.MethodPost, "/flows/run", `{"story_id":"../bad"}`)
	require.Equal(t, http.StatusBadRequest, rec.Code)

	rec = doJSON(t, h, http.MethodPost, "/flows/run", `not json`)
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestService_RunFlowStream(t *testing.T) {
	_, h := newTestService(t)

	rec := doJSON(t, h, http.MethodPost, "/flows/run/stream", `{"story_id":"story-1"}`)
	require.Equal(t, "text/event-stream", rec.Header().Get("Content-Type"))

	body := rec.Body.String()
	require.Contains(t, body, "event: progress")
	require.Contains(t, body, "event: result")
	require.Contains(t, body, "event: done")
	require.Contains(t, body, `"results"`)
}

func TestService_RunFlowStreamError(t *testing.T) {
	_, h := newTestService(t)

	rec := doJSON(t, h, http.MethodPost, "/flows/run/stream", `{"flow":"nope","story_id":"story-1"}`)
	body := rec.Body.String()
	require.Contains(t, body, "event: error")
	require.NotContains(t, body, "event: done")
}

func TestService_WorkflowLifecycle(t *testing.T) {
	_, h := newTestService(t)

	rec := doJSON(t, h, http.MethodPost, "/workflows", `{"workflow_id":"wf-1","story_id":"story-1","agents":["plan","build"]}`)
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = doJSON(t, h, http.MethodGet, "/workflows/wf-1", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var st agentflow.WorkflowStatus
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &st))
	require.Equal(t, agentflow.StatePending, st.AgentStatuses["plan"].Status)

	rec = doJSON(t, h, http.MethodGet, "/workflows?story_id=story-1", "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), "wf-1")

	rec = doJSON(t, h, http.MethodGet, "/workflows?active=true", "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), "wf-1")

	rec = doJSON(t, h, http.MethodPost, "/workflows/wf-1/reset", "")
	require.Equal(t, http.StatusOK, rec.Code)

	rec = doJSON(t, h, http.MethodPost, "/workflows/cleanup?retention_days=30", "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.JSONEq(t, `{"removed":0}`, rec.Body.String())

	rec = doJSON(t, h, http.MethodDelete, "/workflows/wf-1", "")
	require.Equal(t, http.StatusNoContent, rec.Code)

	rec = doJSON(t, h, http.MethodGet, "/workflows/wf-1", "")
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestService_History(t *testing.T) {
	_, h := newTestService(t)

	rec := doJSON(t, h, http.MethodPost, "/flows/run", `{"workflow_id":"wf-h","story_id":"story-1"}`)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = doJSON(t, h, http.MethodGet, "/workflows/wf-h/history?limit=2", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var body struct {
		History []agentflow.HistoryEntry `json:"history"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Len(t, body.History, 2)
}

func TestService_Memory(t *testing.T) {
	_, h := newTestService(t)

	rec := doJSON(t, h, http.MethodPut, "/memory/shared/notes", `{"value":{"n":1}}`)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = doJSON(t, h, http.MethodGet, "/memory/shared/notes", "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.JSONEq(t, `{"key":"notes","value":{"n":1}}`, rec.Body.String())

	rec = doJSON(t, h, http.MethodGet, "/memory/shared/absent", "")
	require.Equal(t, http.StatusNotFound, rec.Code)

	rec = doJSON(t, h, http.MethodPut, "/memory/bogus/key", `{"value":1}`)
	require.Equal(t, http.StatusBadRequest, rec.Code, "invalid scope")

	rec = doJSON(t, h, http.MethodPut, "/memory/isolated/nocolon", `{"value":1}`)
	require.Equal(t, http.StatusBadRequest, rec.Code, "isolated keys need a separator")

	rec = doJSON(t, h, http.MethodGet, "/memory/stats", "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), `"cache_size":1`)

	rec = doJSON(t, h, http.MethodPost, "/memory/clear-cache", "")
	require.Equal(t, http.StatusOK, rec.Code)

	rec = doJSON(t, h, http.MethodPost, "/memory/flush", "")
	require.Equal(t, http.StatusOK, rec.Code)

	// Replay after cache clear returns the same value.
	rec = doJSON(t, h, http.MethodGet, "/memory/shared/notes", "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.JSONEq(t, `{"key":"notes","value":{"n":1}}`, rec.Body.String())
}

func TestService_Health(t *testing.T) {
	_, h := newTestService(t)

	rec := doJSON(t, h, http.MethodGet, "/health", "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), `"state":"healthy"`)
}

func TestNew_RequiresRuntime(t *testing.T) {
	_, err := New(Config{})
	require.Error(t, err)
}
