package knowledge

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	igerrors "ideagraph/internal/errors"
)

// CloudConfig holds configuration for the remote vector index service.
type CloudConfig struct {
	URL     string // base URL of the service
	APIKey  string
	Timeout time.Duration // default 30s
}

// cloudIndex implements Index against the remote HTTP service.
type cloudIndex struct {
	config     CloudConfig
	httpClient *http.Client
}

// NewCloudIndex creates a client for the remote index.
func NewCloudIndex(config CloudConfig) (Index, error) {
	if config.URL == "" {
		return nil, igerrors.Permanent(fmt.Errorf("vector index URL is required in cloud mode"))
	}
	if config.Timeout == 0 {
		config.Timeout = 30 * time.Second
	}
	config.URL = strings.TrimRight(config.URL, "/")

	return &cloudIndex{
		config:     config,
		httpClient: &http.Client{Timeout: config.Timeout},
	}, nil
}

func (x *cloudIndex) Upsert(ctx context.Context, obj Object) error {
	return x.do(ctx, http.MethodPut, "/v1/objects/"+url.PathEscape(obj.ID), obj, nil)
}

func (x *cloudIndex) Delete(ctx context.Context, id string) error {
	err := x.do(ctx, http.MethodDelete, "/v1/objects/"+url.PathEscape(id), nil, nil)
	if err != nil && igerrors.HTTPStatus(err) == http.StatusNotFound {
		return nil
	}
	return err
}

func (x *cloudIndex) DeleteFileChunks(ctx context.Context, fileID string) error {
	body := map[string]string{"fileId": fileID}
	return x.do(ctx, http.MethodPost, "/v1/objects/delete-by-file", body, nil)
}

func (x *cloudIndex) Search(ctx context.Context, query string, alpha float64, limit int, filter Filter) ([]Hit, error) {
	if limit <= 0 {
		limit = 10
	}
	reqBody := map[string]any{
		"query": query,
		"alpha": alpha,
		"limit": limit,
	}
	if filter.Type != "" {
		reqBody["type"] = string(filter.Type)
	}
	if filter.ItemID != "" {
		reqBody["itemId"] = filter.ItemID
	}

	var resp struct {
		Hits []Hit `json:"hits"`
	}
	if err := x.do(ctx, http.MethodPost, "/v1/search", reqBody, &resp); err != nil {
		return nil, err
	}
	return resp.Hits, nil
}

// Count returns the remote object count, or 0 when the service is down.
func (x *cloudIndex) Count() int {
	ctx, cancel := context.WithTimeout(context.Background(), x.config.Timeout)
	defer cancel()

	var resp struct {
		Count int `json:"count"`
	}
	if err := x.do(ctx, http.MethodGet, "/v1/count", nil, &resp); err != nil {
		return 0
	}
	return resp.Count
}

func (x *cloudIndex) Close() error {
	x.httpClient.CloseIdleConnections()
	return nil
}

// do issues one request and decodes the response into out when non-nil.
// Non-2xx statuses map onto the transient/permanent taxonomy.
func (x *cloudIndex) do(ctx context.Context, method, path string, in, out any) error {
	var bodyReader io.Reader
	if in != nil {
		body, err := json.Marshal(in)
		if err != nil {
			return igerrors.Permanent(fmt.Errorf("marshal request: %w", err))
		}
		bodyReader = bytes.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, method, x.config.URL+path, bodyReader)
	if err != nil {
		return igerrors.Permanent(err)
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if x.config.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+x.config.APIKey)
	}

	resp, err := x.httpClient.Do(req)
	if err != nil {
		return igerrors.Transient(fmt.Errorf("vector index request: %w", err))
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return igerrors.FromHTTPStatus(resp.StatusCode,
			fmt.Errorf("vector index %s %s: status %d: %s", method, path, resp.StatusCode, string(snippet)))
	}

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return igerrors.Permanent(fmt.Errorf("decode response: %w", err))
		}
	}
	return nil
}
