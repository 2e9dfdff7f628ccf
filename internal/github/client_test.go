package github

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ideagraph/internal/config"
	igerrors "ideagraph/internal/errors"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	return NewClient(config.GitHubSettings{Enabled: true, Token: "pat"}, server.URL, nil)
}

func TestListIssuesSince(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/repos/acme/widgets/issues", r.URL.Path)
		assert.Equal(t, "Bearer pat", r.Header.Get("Authorization"))
		assert.NotEmpty(t, r.URL.Query().Get("since"))
		_, _ = w.Write([]byte(`[
			{"number":7,"title":"Crash on start","state":"open","updated_at":"2026-08-01T10:00:00Z",
			 "user":{"login":"alice"},"html_url":"https://github.example/7"},
			{"number":8,"title":"Add caching","state":"open","updated_at":"2026-08-01T11:00:00Z",
			 "user":{"login":"bob"},"pull_request":{}}
		]`))
	})

	issues, err := client.ListIssuesSince(context.Background(), "acme", "widgets", time.Now().Add(-time.Hour), 25)
	require.NoError(t, err)
	require.Len(t, issues, 2)
	assert.False(t, issues[0].IsPullRequest())
	assert.True(t, issues[1].IsPullRequest())
	assert.Equal(t, "alice", issues[0].User.Login)
}

func TestCreateIssue(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"number":42,"title":"New task","state":"open","html_url":"https://github.example/42"}`))
	})

	issue, err := client.CreateIssue(context.Background(), "acme", "widgets", "New task", "body", []string{"triage"})
	require.NoError(t, err)
	assert.Equal(t, 42, issue.Number)
}

func TestRateLimitExhaustionIsTransientWithHint(t *testing.T) {
	reset := time.Now().Add(90 * time.Second).Unix()
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-RateLimit-Remaining", "0")
		w.Header().Set("X-RateLimit-Reset", fmt.Sprint(reset))
		w.WriteHeader(http.StatusForbidden)
	})

	_, err := client.GetIssue(context.Background(), "acme", "widgets", 1)
	require.Error(t, err)
	assert.True(t, igerrors.IsTransient(err))

	var transient *igerrors.TransientError
	require.True(t, igerrors.As(err, &transient))
	assert.Greater(t, transient.RetryAfter, 60)
}

func TestLowRemainingQuotaWaitsForReset(t *testing.T) {
	var hits int
	reset := time.Now().Add(time.Hour).Unix()
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		hits++
		w.Header().Set("X-RateLimit-Remaining", "2")
		w.Header().Set("X-RateLimit-Reset", fmt.Sprint(reset))
		_, _ = w.Write([]byte(`{"number":1,"title":"t","state":"open"}`))
	})

	// First call succeeds but reports the quota below the floor.
	_, err := client.GetIssue(context.Background(), "acme", "widgets", 1)
	require.NoError(t, err)
	assert.Equal(t, 1, hits)

	// The next call waits for the reset; a cancelled context interrupts the
	// wait before the request is sent.
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = client.GetIssue(ctx, "acme", "widgets", 1)
	require.Error(t, err)
	assert.True(t, igerrors.IsTransient(err))
	assert.Equal(t, 1, hits)
}

func TestNotFoundIsPermanent(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})

	_, err := client.GetIssue(context.Background(), "acme", "widgets", 999)
	require.Error(t, err)
	assert.False(t, igerrors.IsTransient(err))
	assert.Equal(t, http.StatusNotFound, igerrors.HTTPStatus(err))
}
