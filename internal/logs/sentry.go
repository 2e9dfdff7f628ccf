package logs

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"ideagraph/internal/config"
	igerrors "ideagraph/internal/errors"
	"ideagraph/internal/logging"
)

const defaultSentryBaseURL = "https://sentry.io"

// SentryFetcher pages the last day of unresolved issues from the Sentry API
// and flattens them into analyzable lines.
type SentryFetcher struct {
	settings   config.SentrySettings
	baseURL    string
	httpClient *http.Client
	logger     logging.Logger
}

// NewSentryFetcher creates a fetcher. baseURL overrides the public API for
// tests; pass "" for the default.
func NewSentryFetcher(settings config.SentrySettings, baseURL string, logger logging.Logger) *SentryFetcher {
	if baseURL == "" {
		baseURL = defaultSentryBaseURL
	}
	return &SentryFetcher{
		settings:   settings,
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: 30 * time.Second},
		logger:     logging.OrNop(logger),
	}
}

type sentryIssue struct {
	Title    string `json:"title"`
	Culprit  string `json:"culprit"`
	Count    string `json:"count"`
	Level    string `json:"level"`
	LastSeen string `json:"lastSeen"`
}

func (f *SentryFetcher) Fetch(ctx context.Context) (string, error) {
	if f.settings.Token == "" || f.settings.OrgSlug == "" || f.settings.DSNProject == "" {
		return "", igerrors.Disabled("sentry")
	}

	query := url.Values{
		"query":       {"is:unresolved"},
		"statsPeriod": {"24h"},
		"sort":        {"freq"},
	}
	endpoint := fmt.Sprintf("%s/api/0/projects/%s/%s/issues/?%s",
		f.baseURL, url.PathEscape(f.settings.OrgSlug), url.PathEscape(f.settings.DSNProject), query.Encode())

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return "", igerrors.Permanent(err)
	}
	req.Header.Set("Authorization", "Bearer "+f.settings.Token)

	resp, err := f.httpClient.Do(req)
	if err != nil {
		return "", igerrors.Transient(fmt.Errorf("sentry request: %w", err))
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return "", igerrors.FromHTTPStatus(resp.StatusCode,
			fmt.Errorf("sentry issues: status %d: %s", resp.StatusCode, string(snippet)))
	}

	var issues []sentryIssue
	if err := json.NewDecoder(resp.Body).Decode(&issues); err != nil {
		return "", igerrors.Permanent(fmt.Errorf("decode sentry response: %w", err))
	}
	f.logger.Debug("sentry: fetched %d unresolved issues", len(issues))

	var lines []string
	for _, issue := range issues {
		line := fmt.Sprintf("[%s] %s", strings.ToUpper(issue.Level), issue.Title)
		if issue.Culprit != "" {
			line += " at " + issue.Culprit
		}
		if issue.Count != "" {
			line += fmt.Sprintf(" (%s events, last %s)", issue.Count, issue.LastSeen)
		}
		lines = append(lines, line)
	}
	return strings.Join(lines, "\n"), nil
}
