// Package msgraph is the Microsoft Graph client used by the mail and Teams
// pollers, the identity resolver, and the document-library operations of
// uploads and task moves.
package msgraph

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"ideagraph/internal/config"
	igerrors "ideagraph/internal/errors"
	"ideagraph/internal/logging"
)

const defaultBaseURL = "https://graph.microsoft.com/v1.0"

// Client calls Microsoft Graph with app-only (client credentials) auth.
type Client struct {
	settings   config.GraphSettings
	baseURL    string
	httpClient *http.Client
	tokens     *tokenSource
	logger     logging.Logger
}

// NewClient creates a Graph client from settings. BaseURL in settings
// overrides the public endpoint (tests point it at a local server).
func NewClient(settings config.GraphSettings, logger logging.Logger) *Client {
	baseURL := settings.BaseURL
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	httpClient := &http.Client{Timeout: 30 * time.Second}
	return &Client{
		settings:   settings,
		baseURL:    baseURL,
		httpClient: httpClient,
		tokens:     newTokenSource(settings, httpClient),
		logger:     logging.OrNop(logger),
	}
}

func (c *Client) get(ctx context.Context, path string, out any) error {
	return c.do(ctx, http.MethodGet, path, "", nil, out)
}

func (c *Client) post(ctx context.Context, path string, in, out any) error {
	body, err := json.Marshal(in)
	if err != nil {
		return igerrors.Permanent(fmt.Errorf("marshal request: %w", err))
	}
	return c.do(ctx, http.MethodPost, path, "application/json", bytes.NewReader(body), out)
}

func (c *Client) patch(ctx context.Context, path string, in, out any) error {
	body, err := json.Marshal(in)
	if err != nil {
		return igerrors.Permanent(fmt.Errorf("marshal request: %w", err))
	}
	return c.do(ctx, http.MethodPatch, path, "application/json", bytes.NewReader(body), out)
}

func (c *Client) delete(ctx context.Context, path string) error {
	return c.do(ctx, http.MethodDelete, path, "", nil, nil)
}

// put streams raw bytes, used by drive uploads.
func (c *Client) put(ctx context.Context, path, contentType string, data []byte, out any) error {
	return c.do(ctx, http.MethodPut, path, contentType, bytes.NewReader(data), out)
}

func (c *Client) do(ctx context.Context, method, path, contentType string, body io.Reader, out any) error {
	token, err := c.tokens.Token(ctx)
	if err != nil {
		return fmt.Errorf("acquire graph token: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return igerrors.Permanent(err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return igerrors.Transient(fmt.Errorf("graph request: %w", err))
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized {
		// Token may have been revoked early; drop it so the next call
		// re-authenticates.
		c.tokens.Invalidate()
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return igerrors.FromHTTPStatus(resp.StatusCode,
			fmt.Errorf("graph %s %s: status %d: %s", method, path, resp.StatusCode, string(snippet)))
	}
	if out != nil && resp.StatusCode != http.StatusNoContent {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return igerrors.Permanent(fmt.Errorf("decode graph response: %w", err))
		}
	}
	return nil
}
