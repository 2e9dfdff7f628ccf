// Package github is the minimal REST v3 client behind the GitHub issue
// poller: issues, comments, and pull requests, with a rate-limit guard that
// waits out the reset window when remaining calls run low and converts
// exhaustion into a retryable error carrying the reset hint.
package github

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"sync"
	"time"

	"ideagraph/internal/config"
	igerrors "ideagraph/internal/errors"
	"ideagraph/internal/logging"
)

const defaultBaseURL = "https://api.github.com"

// rateLimitFloor is the remaining-call count under which the client stops
// spending quota and waits for the reset window instead.
const rateLimitFloor = 3

// Client calls the GitHub REST API with PAT auth.
type Client struct {
	settings   config.GitHubSettings
	baseURL    string
	httpClient *http.Client
	logger     logging.Logger

	mu         sync.Mutex
	pauseUntil time.Time
}

// NewClient creates a GitHub client. baseURL overrides the public API for
// tests; pass "" for the default.
func NewClient(settings config.GitHubSettings, baseURL string, logger logging.Logger) *Client {
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	return &Client{
		settings:   settings,
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: 30 * time.Second},
		logger:     logging.OrNop(logger),
	}
}

// Issue is the subset of a GitHub issue the poller consumes. Pull requests
// appear in the issues list with PullRequest set.
type Issue struct {
	Number      int        `json:"number"`
	Title       string     `json:"title"`
	Body        string     `json:"body"`
	State       string     `json:"state"`
	HTMLURL     string     `json:"html_url"`
	UpdatedAt   time.Time  `json:"updated_at"`
	User        *Account   `json:"user"`
	Assignee    *Account   `json:"assignee"`
	PullRequest *struct{}  `json:"pull_request,omitempty"`
	ClosedAt    *time.Time `json:"closed_at"`
}

// IsPullRequest reports whether the issue row is actually a PR.
func (i *Issue) IsPullRequest() bool { return i.PullRequest != nil }

// Account is a GitHub user reference.
type Account struct {
	Login string `json:"login"`
	ID    int64  `json:"id"`
}

// IssueComment is one comment on an issue.
type IssueComment struct {
	ID        int64     `json:"id"`
	Body      string    `json:"body"`
	User      *Account  `json:"user"`
	CreatedAt time.Time `json:"created_at"`
	HTMLURL   string    `json:"html_url"`
}

// PullRequest is the subset of a PR used for status derivation.
type PullRequest struct {
	Number  int      `json:"number"`
	State   string   `json:"state"`
	Merged  bool     `json:"merged"`
	Draft   bool     `json:"draft"`
	HTMLURL string   `json:"html_url"`
	User    *Account `json:"user"`
}

// ListIssuesSince returns issues (and PRs) of the repo updated after since,
// oldest first.
func (c *Client) ListIssuesSince(ctx context.Context, owner, repo string, since time.Time, max int) ([]*Issue, error) {
	query := url.Values{
		"state":     {"all"},
		"sort":      {"updated"},
		"direction": {"asc"},
		"per_page":  {strconv.Itoa(max)},
	}
	if !since.IsZero() {
		query.Set("since", since.UTC().Format(time.RFC3339))
	}

	var issues []*Issue
	path := fmt.Sprintf("/repos/%s/%s/issues?%s", url.PathEscape(owner), url.PathEscape(repo), query.Encode())
	if err := c.get(ctx, path, &issues); err != nil {
		return nil, fmt.Errorf("list issues %s/%s: %w", owner, repo, err)
	}
	return issues, nil
}

// GetIssue fetches one issue.
func (c *Client) GetIssue(ctx context.Context, owner, repo string, number int) (*Issue, error) {
	var issue Issue
	path := fmt.Sprintf("/repos/%s/%s/issues/%d", url.PathEscape(owner), url.PathEscape(repo), number)
	if err := c.get(ctx, path, &issue); err != nil {
		return nil, fmt.Errorf("get issue #%d: %w", number, err)
	}
	return &issue, nil
}

// CreateIssue opens an issue and returns it.
func (c *Client) CreateIssue(ctx context.Context, owner, repo, title, body string, labels []string) (*Issue, error) {
	payload := map[string]any{"title": title, "body": body}
	if len(labels) > 0 {
		payload["labels"] = labels
	}

	var issue Issue
	path := fmt.Sprintf("/repos/%s/%s/issues", url.PathEscape(owner), url.PathEscape(repo))
	if err := c.post(ctx, path, payload, &issue); err != nil {
		return nil, fmt.Errorf("create issue: %w", err)
	}
	return &issue, nil
}

// ListIssueComments returns comments created after since, oldest first.
func (c *Client) ListIssueComments(ctx context.Context, owner, repo string, number int, since time.Time) ([]*IssueComment, error) {
	query := url.Values{}
	if !since.IsZero() {
		query.Set("since", since.UTC().Format(time.RFC3339))
	}

	var comments []*IssueComment
	path := fmt.Sprintf("/repos/%s/%s/issues/%d/comments?%s",
		url.PathEscape(owner), url.PathEscape(repo), number, query.Encode())
	if err := c.get(ctx, path, &comments); err != nil {
		return nil, fmt.Errorf("list comments of #%d: %w", number, err)
	}
	return comments, nil
}

// CreateIssueComment posts a comment on an issue.
func (c *Client) CreateIssueComment(ctx context.Context, owner, repo string, number int, body string) (*IssueComment, error) {
	var comment IssueComment
	path := fmt.Sprintf("/repos/%s/%s/issues/%d/comments", url.PathEscape(owner), url.PathEscape(repo), number)
	if err := c.post(ctx, path, map[string]string{"body": body}, &comment); err != nil {
		return nil, fmt.Errorf("comment on #%d: %w", number, err)
	}
	return &comment, nil
}

// GetPullRequest fetches one PR.
func (c *Client) GetPullRequest(ctx context.Context, owner, repo string, number int) (*PullRequest, error) {
	var pr PullRequest
	path := fmt.Sprintf("/repos/%s/%s/pulls/%d", url.PathEscape(owner), url.PathEscape(repo), number)
	if err := c.get(ctx, path, &pr); err != nil {
		return nil, fmt.Errorf("get PR #%d: %w", number, err)
	}
	return &pr, nil
}

func (c *Client) get(ctx context.Context, path string, out any) error {
	return c.do(ctx, http.MethodGet, path, nil, out)
}

func (c *Client) post(ctx context.Context, path string, in, out any) error {
	body, err := json.Marshal(in)
	if err != nil {
		return igerrors.Permanent(fmt.Errorf("marshal request: %w", err))
	}
	return c.do(ctx, http.MethodPost, path, bytes.NewReader(body), out)
}

func (c *Client) do(ctx context.Context, method, path string, body io.Reader, out any) error {
	if err := c.waitForRateLimit(ctx); err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return igerrors.Permanent(err)
	}
	req.Header.Set("Accept", "application/vnd.github+json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.settings.Token != "" {
		req.Header.Set("Authorization", "Bearer "+c.settings.Token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return igerrors.Transient(fmt.Errorf("github request: %w", err))
	}
	defer resp.Body.Close()

	c.noteRateLimit(resp)
	if err := c.checkRateLimit(resp); err != nil {
		return err
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return igerrors.FromHTTPStatus(resp.StatusCode,
			fmt.Errorf("github %s %s: status %d: %s", method, path, resp.StatusCode, string(snippet)))
	}
	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return igerrors.Permanent(fmt.Errorf("decode github response: %w", err))
		}
	}
	return nil
}

// waitForRateLimit sleeps until the recorded reset time when the remaining
// quota has dropped below the floor. Cancellation interrupts the wait.
func (c *Client) waitForRateLimit(ctx context.Context) error {
	c.mu.Lock()
	until := c.pauseUntil
	c.mu.Unlock()

	wait := time.Until(until)
	if wait <= 0 {
		return nil
	}
	c.logger.Warn("github rate limit low, waiting %s for reset", wait.Round(time.Second))
	timer := time.NewTimer(wait)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return igerrors.Transient(ctx.Err())
	case <-timer.C:
		return nil
	}
}

// noteRateLimit counts the remaining calls reported by the response and,
// below the floor, records the reset time for waitForRateLimit.
func (c *Client) noteRateLimit(resp *http.Response) {
	remaining, err := strconv.Atoi(resp.Header.Get("X-RateLimit-Remaining"))
	if err != nil || remaining > rateLimitFloor {
		return
	}
	reset, err := strconv.ParseInt(resp.Header.Get("X-RateLimit-Reset"), 10, 64)
	if err != nil {
		return
	}
	until := time.Unix(reset, 0)
	c.mu.Lock()
	if until.After(c.pauseUntil) {
		c.pauseUntil = until
	}
	c.mu.Unlock()
}

// checkRateLimit converts primary-limit exhaustion into a transient error
// with the reset time as Retry-After hint.
func (c *Client) checkRateLimit(resp *http.Response) error {
	remaining := resp.Header.Get("X-RateLimit-Remaining")
	if remaining != "0" {
		return nil
	}
	if resp.StatusCode != http.StatusForbidden && resp.StatusCode != http.StatusTooManyRequests {
		return nil
	}

	retryAfter := 60
	if reset, err := strconv.ParseInt(resp.Header.Get("X-RateLimit-Reset"), 10, 64); err == nil {
		if wait := time.Until(time.Unix(reset, 0)); wait > 0 {
			retryAfter = int(wait.Seconds()) + 1
		}
	}
	c.logger.Warn("github rate limit exhausted, reset in ~%ds", retryAfter)
	return &igerrors.TransientError{
		Err:        fmt.Errorf("github rate limit exhausted"),
		StatusCode: resp.StatusCode,
		RetryAfter: retryAfter,
	}
}
