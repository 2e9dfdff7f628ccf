// Package websearch adapts external search providers for the advisor's
// external mode: Google Programmable Search first, Brave as fallback.
package websearch

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"ideagraph/internal/config"
	igerrors "ideagraph/internal/errors"
	"ideagraph/internal/logging"
)

// Result is one search hit.
type Result struct {
	Title   string `json:"title"`
	URL     string `json:"url"`
	Snippet string `json:"snippet"`
}

// Searcher runs a web query.
type Searcher interface {
	Search(ctx context.Context, query string, limit int) ([]Result, error)
}

const (
	googleEndpoint = "https://www.googleapis.com/customsearch/v1"
	braveEndpoint  = "https://api.search.brave.com/res/v1/web/search"
)

// New builds the configured search chain. With no provider configured it
// returns a feature-disabled error; the advisor surfaces that as
// search_unconfigured.
func New(settings config.WebSearchSettings, logger logging.Logger) (Searcher, error) {
	return NewWithEndpoints(settings, googleEndpoint, braveEndpoint, logger)
}

// NewWithEndpoints is New with endpoint overrides for tests.
func NewWithEndpoints(settings config.WebSearchSettings, googleURL, braveURL string, logger logging.Logger) (Searcher, error) {
	logger = logging.OrNop(logger)
	httpClient := &http.Client{Timeout: 15 * time.Second}

	var providers []Searcher
	if settings.GoogleEnabled && settings.GoogleKey != "" && settings.GoogleCX != "" {
		providers = append(providers, &googleSearcher{
			key: settings.GoogleKey, cx: settings.GoogleCX,
			endpoint: googleURL, httpClient: httpClient,
		})
	}
	if settings.BraveKey != "" {
		providers = append(providers, &braveSearcher{
			key: settings.BraveKey, endpoint: braveURL, httpClient: httpClient,
		})
	}
	if len(providers) == 0 {
		return nil, igerrors.Disabled("web search")
	}
	return &chain{providers: providers, logger: logger}, nil
}

// chain tries providers in order, falling through on failure.
type chain struct {
	providers []Searcher
	logger    logging.Logger
}

func (c *chain) Search(ctx context.Context, query string, limit int) ([]Result, error) {
	var lastErr error
	for _, provider := range c.providers {
		results, err := provider.Search(ctx, query, limit)
		if err == nil {
			return results, nil
		}
		lastErr = err
		c.logger.Warn("websearch: provider failed, trying next: %v", err)
	}
	return nil, lastErr
}

type googleSearcher struct {
	key, cx    string
	endpoint   string
	httpClient *http.Client
}

func (g *googleSearcher) Search(ctx context.Context, query string, limit int) ([]Result, error) {
	if limit <= 0 || limit > 10 {
		limit = 5
	}
	params := url.Values{
		"key": {g.key},
		"cx":  {g.cx},
		"q":   {query},
		"num": {strconv.Itoa(limit)},
	}

	var resp struct {
		Items []struct {
			Title   string `json:"title"`
			Link    string `json:"link"`
			Snippet string `json:"snippet"`
		} `json:"items"`
	}
	if err := getJSON(ctx, g.httpClient, g.endpoint+"?"+params.Encode(), nil, &resp); err != nil {
		return nil, fmt.Errorf("google search: %w", err)
	}

	results := make([]Result, 0, len(resp.Items))
	for _, item := range resp.Items {
		results = append(results, Result{Title: item.Title, URL: item.Link, Snippet: item.Snippet})
	}
	return results, nil
}

type braveSearcher struct {
	key        string
	endpoint   string
	httpClient *http.Client
}

func (b *braveSearcher) Search(ctx context.Context, query string, limit int) ([]Result, error) {
	if limit <= 0 || limit > 20 {
		limit = 5
	}
	params := url.Values{
		"q":     {query},
		"count": {strconv.Itoa(limit)},
	}

	var resp struct {
		Web struct {
			Results []struct {
				Title       string `json:"title"`
				URL         string `json:"url"`
				Description string `json:"description"`
			} `json:"results"`
		} `json:"web"`
	}
	headers := map[string]string{"X-Subscription-Token": b.key}
	if err := getJSON(ctx, b.httpClient, b.endpoint+"?"+params.Encode(), headers, &resp); err != nil {
		return nil, fmt.Errorf("brave search: %w", err)
	}

	results := make([]Result, 0, len(resp.Web.Results))
	for _, item := range resp.Web.Results {
		results = append(results, Result{Title: item.Title, URL: item.URL, Snippet: item.Description})
	}
	return results, nil
}

func getJSON(ctx context.Context, client *http.Client, rawURL string, headers map[string]string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return igerrors.Permanent(err)
	}
	req.Header.Set("Accept", "application/json")
	for name, value := range headers {
		req.Header.Set(name, value)
	}

	resp, err := client.Do(req)
	if err != nil {
		return igerrors.Transient(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 256))
		return igerrors.FromHTTPStatus(resp.StatusCode,
			fmt.Errorf("status %d: %s", resp.StatusCode, string(snippet)))
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
