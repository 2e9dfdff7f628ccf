// Package agentgw is the client for the remote agent runtime. Agents are
// invoked synchronously by name; results come back as free text that the
// typed decoders in schemas.go turn into structured payloads.
package agentgw

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"

	"ideagraph/internal/config"
	igerrors "ideagraph/internal/errors"
	"ideagraph/internal/logging"
	"ideagraph/internal/metrics"
)

// Agent names known to the runtime.
const (
	AgentClassifier       = "message-classifier"
	AgentSummary          = "text-summary"
	AgentTaskDerivation   = "text-analysis-task-derivation"
	AgentSummaryEnhance   = "summary-enhancer"
	AgentMarkdownToHTML   = "markdown-to-html-converter"
	AgentTeamsSupport     = "teams-support-analysis"
	AgentQuestionOptimize = "question-optimization"
	AgentQuestionAnswer   = "question-answering"
	AgentAdvisorInternal  = "support-advisor-internal"
	AgentAdvisorExternal  = "support-advisor-external"
)

// InvokeResult carries one agent response.
type InvokeResult struct {
	Result string `json:"result"`
	Tokens int    `json:"tokens"`
	Model  string `json:"model"`
}

// AgentInfo describes one agent the runtime advertises.
type AgentInfo struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

// Gateway is the call surface the pipelines depend on.
type Gateway interface {
	Invoke(ctx context.Context, agent, prompt string, params map[string]any) (*InvokeResult, error)
	ListAgents(ctx context.Context) ([]AgentInfo, error)
}

const agentListTTL = 5 * time.Minute

// Client is the HTTP gateway client with retry and a circuit breaker per
// process. The agent capability list is read-through cached.
type Client struct {
	settings   config.AgentSettings
	timeout    time.Duration
	httpClient *http.Client
	breaker    *igerrors.CircuitBreaker
	logger     logging.Logger
	agentCache *expirable.LRU[string, []AgentInfo]
}

// NewClient creates a gateway client from settings.
func NewClient(settings config.AgentSettings, logger logging.Logger) *Client {
	timeout := config.DefaultAgentTimeout
	return &Client{
		settings:   settings,
		timeout:    timeout,
		httpClient: &http.Client{Timeout: timeout + 5*time.Second},
		breaker:    igerrors.NewCircuitBreaker("agent-gateway", igerrors.DefaultCircuitBreakerConfig()),
		logger:     logging.OrNop(logger),
		agentCache: expirable.NewLRU[string, []AgentInfo](1, nil, agentListTTL),
	}
}

// Invoke calls one agent and returns its raw result. Transient failures are
// retried; a run of failures opens the breaker and fails fast.
func (c *Client) Invoke(ctx context.Context, agent, prompt string, params map[string]any) (*InvokeResult, error) {
	if !c.settings.Enabled {
		return nil, igerrors.Disabled("agent gateway")
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	result, err := igerrors.Execute(c.breaker, ctx, func(ctx context.Context) (*InvokeResult, error) {
		return igerrors.RetryWithResult(ctx, igerrors.DefaultRetryConfig(), c.logger,
			func(ctx context.Context) (*InvokeResult, error) {
				return c.invokeOnce(ctx, agent, prompt, params)
			})
	})
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	metrics.AgentInvocations.WithLabelValues(agent, outcome).Inc()
	return result, err
}

func (c *Client) invokeOnce(ctx context.Context, agent, prompt string, params map[string]any) (*InvokeResult, error) {
	reqBody := map[string]any{
		"prompt":     prompt,
		"max_tokens": c.maxTokens(),
	}
	if len(params) > 0 {
		reqBody["params"] = params
	}

	var result InvokeResult
	path := "/api/agents/" + url.PathEscape(agent) + "/invoke"
	if err := c.post(ctx, path, reqBody, &result); err != nil {
		return nil, fmt.Errorf("invoke agent %s: %w", agent, err)
	}
	return &result, nil
}

// ListAgents returns the runtime's advertised agents, cached for a few
// minutes so pollers do not hammer the capability endpoint.
func (c *Client) ListAgents(ctx context.Context) ([]AgentInfo, error) {
	if !c.settings.Enabled {
		return nil, igerrors.Disabled("agent gateway")
	}
	if cached, ok := c.agentCache.Get("agents"); ok {
		return cached, nil
	}

	var resp struct {
		Agents []AgentInfo `json:"agents"`
	}
	if err := c.get(ctx, "/api/agents", &resp); err != nil {
		return nil, fmt.Errorf("list agents: %w", err)
	}
	c.agentCache.Add("agents", resp.Agents)
	return resp.Agents, nil
}

// HasAgent reports whether the runtime advertises the named agent.
func (c *Client) HasAgent(ctx context.Context, name string) bool {
	agents, err := c.ListAgents(ctx)
	if err != nil {
		return false
	}
	for _, a := range agents {
		if a.Name == name {
			return true
		}
	}
	return false
}

func (c *Client) maxTokens() int {
	if c.settings.MaxTokens > 0 {
		return c.settings.MaxTokens
	}
	return config.DefaultAgentMaxTokens
}

func (c *Client) post(ctx context.Context, path string, in, out any) error {
	body, err := json.Marshal(in)
	if err != nil {
		return igerrors.Permanent(fmt.Errorf("marshal request: %w", err))
	}
	return c.do(ctx, http.MethodPost, path, bytes.NewReader(body), out)
}

func (c *Client) get(ctx context.Context, path string, out any) error {
	return c.do(ctx, http.MethodGet, path, nil, out)
}

func (c *Client) do(ctx context.Context, method, path string, body io.Reader, out any) error {
	req, err := http.NewRequestWithContext(ctx, method, c.settings.BaseURL+path, body)
	if err != nil {
		return igerrors.Permanent(err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.settings.Token != "" {
		req.Header.Set("Authorization", "Bearer "+c.settings.Token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return igerrors.Transient(fmt.Errorf("gateway request: %w", err))
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return igerrors.FromHTTPStatus(resp.StatusCode,
			fmt.Errorf("gateway %s %s: status %d: %s", method, path, resp.StatusCode, string(snippet)))
	}
	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return igerrors.Permanent(fmt.Errorf("decode response: %w", err))
		}
	}
	return nil
}
