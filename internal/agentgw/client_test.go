package agentgw

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ideagraph/internal/config"
	igerrors "ideagraph/internal/errors"
)

func newTestClient(t *testing.T, handler http.Handler) *Client {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	return NewClient(config.AgentSettings{Enabled: true, BaseURL: server.URL, Token: "test"}, nil)
}

func TestInvoke(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/agents/text-summary/invoke", r.URL.Path)
		assert.Equal(t, "Bearer test", r.Header.Get("Authorization"))
		_, _ = w.Write([]byte(`{"result":"{\"summary\":\"short\"}","tokens":12,"model":"m1"}`))
	}))

	res, err := client.Invoke(context.Background(), AgentSummary, "summarize this", nil)
	require.NoError(t, err)
	assert.Equal(t, 12, res.Tokens)

	payload, err := Decode[SummaryResult](res.Result)
	require.NoError(t, err)
	assert.Equal(t, "short", payload.Summary)
}

func TestInvokeRetriesTransientStatus(t *testing.T) {
	var calls atomic.Int32
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		_, _ = w.Write([]byte(`{"result":"ok"}`))
	}))

	res, err := client.Invoke(context.Background(), AgentSummary, "p", nil)
	require.NoError(t, err)
	assert.Equal(t, "ok", res.Result)
	assert.Equal(t, int32(2), calls.Load())
}

func TestInvokeDisabled(t *testing.T) {
	client := NewClient(config.AgentSettings{Enabled: false}, nil)
	_, err := client.Invoke(context.Background(), AgentSummary, "p", nil)
	assert.True(t, igerrors.IsDisabled(err))
}

func TestListAgentsCached(t *testing.T) {
	var calls atomic.Int32
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		_, _ = w.Write([]byte(`{"agents":[{"name":"text-summary"},{"name":"qa-answer"}]}`))
	}))

	ctx := context.Background()
	agents, err := client.ListAgents(ctx)
	require.NoError(t, err)
	assert.Len(t, agents, 2)

	_, err = client.ListAgents(ctx)
	require.NoError(t, err)
	assert.Equal(t, int32(1), calls.Load(), "second call must hit the cache")

	assert.True(t, client.HasAgent(ctx, "qa-answer"))
	assert.False(t, client.HasAgent(ctx, "missing"))
}

func TestDecodeRepairsBrokenJSON(t *testing.T) {
	// Trailing comma plus a code fence: both routinely produced by agents.
	raw := "```json\n{\"kind\": \"create\", \"task_title\": \"Fix it\",}\n```"
	payload, err := Decode[ClassifierResult](raw)
	require.NoError(t, err)
	assert.Equal(t, ClassifyCreate, payload.Kind)
	assert.Equal(t, "Fix it", payload.TaskTitle)
	assert.NoError(t, payload.Validate())
}

func TestDecodeRejectsGarbage(t *testing.T) {
	_, err := Decode[ClassifierResult]("I could not decide, sorry!")
	require.Error(t, err)
	assert.False(t, igerrors.IsTransient(err))
}

func TestClassifierValidate(t *testing.T) {
	assert.Error(t, (&ClassifierResult{Kind: ClassifyCreate}).Validate())
	assert.NoError(t, (&ClassifierResult{Kind: ClassifyIgnore, Reason: "chatter"}).Validate())
	assert.Error(t, (&ClassifierResult{Kind: "maybe"}).Validate())
}

func TestMockGateway(t *testing.T) {
	mock := NewMock().Respond(AgentSummary, `{"summary":"a"}`).Respond(AgentSummary, `{"summary":"b"}`)

	res, err := mock.Invoke(context.Background(), AgentSummary, "one", nil)
	require.NoError(t, err)
	assert.Contains(t, res.Result, "a")

	res, err = mock.Invoke(context.Background(), AgentSummary, "two", nil)
	require.NoError(t, err)
	assert.Contains(t, res.Result, "b")

	// Last response repeats.
	res, err = mock.Invoke(context.Background(), AgentSummary, "three", nil)
	require.NoError(t, err)
	assert.Contains(t, res.Result, "b")

	assert.Len(t, mock.Calls, 3)
}
