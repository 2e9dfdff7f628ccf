package websearch

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ideagraph/internal/config"
	igerrors "ideagraph/internal/errors"
)

func TestUnconfiguredIsDisabled(t *testing.T) {
	_, err := New(config.WebSearchSettings{}, nil)
	assert.True(t, igerrors.IsDisabled(err))
}

func TestGoogleSearch(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "g-key", r.URL.Query().Get("key"))
		assert.Equal(t, "g-cx", r.URL.Query().Get("cx"))
		_, _ = w.Write([]byte(`{"items":[{"title":"Go docs","link":"https://go.dev","snippet":"The Go site"}]}`))
	}))
	defer server.Close()

	searcher, err := NewWithEndpoints(config.WebSearchSettings{
		GoogleEnabled: true, GoogleKey: "g-key", GoogleCX: "g-cx",
	}, server.URL, "", nil)
	require.NoError(t, err)

	results, err := searcher.Search(context.Background(), "golang", 5)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "https://go.dev", results[0].URL)
}

func TestBraveFallbackWhenGoogleFails(t *testing.T) {
	google := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer google.Close()

	brave := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "b-key", r.Header.Get("X-Subscription-Token"))
		_, _ = w.Write([]byte(`{"web":{"results":[{"title":"Answer","url":"https://example.org","description":"snippet"}]}}`))
	}))
	defer brave.Close()

	searcher, err := NewWithEndpoints(config.WebSearchSettings{
		GoogleEnabled: true, GoogleKey: "g", GoogleCX: "cx", BraveKey: "b-key",
	}, google.URL, brave.URL, nil)
	require.NoError(t, err)

	results, err := searcher.Search(context.Background(), "anything", 5)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "Answer", results[0].Title)
}
