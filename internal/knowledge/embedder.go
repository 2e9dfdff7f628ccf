package knowledge

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	igerrors "ideagraph/internal/errors"
)

// EmbedderConfig holds embedding configuration.
type EmbedderConfig struct {
	Model     string // default "text-embedding-3-small"
	APIKey    string
	BaseURL   string // OpenAI-compatible endpoint, defaults to api.openai.com
	CacheSize int    // LRU entries, default 10000
}

// Embedder generates text embeddings with an LRU cache in front of the API.
type Embedder struct {
	config     EmbedderConfig
	httpClient *http.Client
	cache      *lru.Cache[string, []float32]
}

// NewEmbedder creates an embedder backed by an OpenAI-compatible API.
func NewEmbedder(config EmbedderConfig) (*Embedder, error) {
	if config.Model == "" {
		config.Model = "text-embedding-3-small"
	}
	if config.BaseURL == "" {
		config.BaseURL = "https://api.openai.com/v1"
	}
	if config.CacheSize == 0 {
		config.CacheSize = 10000
	}

	cache, err := lru.New[string, []float32](config.CacheSize)
	if err != nil {
		return nil, fmt.Errorf("create cache: %w", err)
	}

	return &Embedder{
		config:     config,
		httpClient: &http.Client{Timeout: 60 * time.Second},
		cache:      cache,
	}, nil
}

// Embed generates the embedding for one text.
func (e *Embedder) Embed(ctx context.Context, text string) ([]float32, error) {
	if cached, ok := e.cache.Get(text); ok {
		return cached, nil
	}

	embedding, err := igerrors.RetryWithResult(ctx, igerrors.DefaultRetryConfig(), nil,
		func(ctx context.Context) ([]float32, error) {
			return e.callAPI(ctx, text)
		})
	if err != nil {
		return nil, fmt.Errorf("embed text: %w", err)
	}

	e.cache.Add(text, embedding)
	return embedding, nil
}

// Func adapts the embedder to the EmbedFunc the local index expects.
func (e *Embedder) Func() EmbedFunc {
	return e.Embed
}

func (e *Embedder) callAPI(ctx context.Context, text string) ([]float32, error) {
	body, err := json.Marshal(map[string]any{
		"model": e.config.Model,
		"input": []string{text},
	})
	if err != nil {
		return nil, igerrors.Permanent(fmt.Errorf("marshal request: %w", err))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.config.BaseURL+"/embeddings", bytes.NewReader(body))
	if err != nil {
		return nil, igerrors.Permanent(err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+e.config.APIKey)

	resp, err := e.httpClient.Do(req)
	if err != nil {
		return nil, igerrors.Transient(fmt.Errorf("embeddings request: %w", err))
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, igerrors.FromHTTPStatus(resp.StatusCode,
			fmt.Errorf("embeddings API status %d: %s", resp.StatusCode, string(snippet)))
	}

	var apiResp struct {
		Data []struct {
			Embedding []float32 `json:"embedding"`
		} `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&apiResp); err != nil {
		return nil, igerrors.Permanent(fmt.Errorf("decode response: %w", err))
	}
	if len(apiResp.Data) == 0 {
		return nil, igerrors.Permanent(fmt.Errorf("embeddings API returned no data"))
	}
	return apiResp.Data[0].Embedding, nil
}
