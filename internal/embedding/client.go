// Package embedding provides the query-embedding client. Stored candidate
// embeddings are produced by the ingestion worker; this client only embeds
// incoming job descriptions, behind the Embedding cache layer and a
// per-process coalescer.
package embedding

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/delimatsuo/headhunter-sub011/internal/cache"
	"github.com/delimatsuo/headhunter-sub011/internal/config"
	"github.com/delimatsuo/headhunter-sub011/internal/observability"
	"github.com/delimatsuo/headhunter-sub011/internal/resilience"
)

// Client calls an OpenAI-compatible /v1/embeddings endpoint.
type Client struct {
	config     config.EmbeddingConfig
	httpClient *http.Client
	cache      cache.Cache
	flight     *cache.Flight
	logger     observability.Logger
}

// NewClient creates an embedding client. The cache may be a noop.
func NewClient(cfg config.EmbeddingConfig, c cache.Cache, flight *cache.Flight, logger observability.Logger) *Client {
	return &Client{
		config:     cfg,
		httpClient: &http.Client{Timeout: cfg.Timeout()},
		cache:      c,
		flight:     flight,
		logger:     logger.WithPrefix("embedding"),
	}
}

type embeddingRequest struct {
	Input      string `json:"input"`
	Model      string `json:"model"`
	Dimensions *int   `json:"dimensions,omitempty"`
}

type embeddingResponse struct {
	Data []struct {
		Embedding []float32 `json:"embedding"`
		Index     int       `json:"index"`
	} `json:"data"`
	Model string `json:"model"`
}

// EmbedQuery returns the embedding for text, serving repeats from the
// Embedding cache layer. Concurrent identical requests share one upstream
// call. The cache key is the content hash plus the model version, so a model
// change invalidates naturally.
func (c *Client) EmbedQuery(ctx context.Context, tenantID, text string) ([]float32, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, nil
	}

	identifier := c.cacheIdentifier(text)
	vec, _, err := cache.GetOrCompute(ctx, c.cache, c.flight, cache.Embedding, tenantID, identifier,
		func(ctx context.Context) ([]float32, error) {
			return c.embed(ctx, text)
		})
	return vec, err
}

// cacheIdentifier hashes the content together with the model version.
func (c *Client) cacheIdentifier(text string) string {
	sum := sha256.Sum256([]byte(c.config.Model + "\x00" + text))
	return hex.EncodeToString(sum[:])
}

// embed performs the HTTP call with retries on transient upstream failures.
func (c *Client) embed(ctx context.Context, text string) ([]float32, error) {
	retryCfg := resilience.RetryConfig{
		MaxRetries:      c.config.RetryMax,
		InitialInterval: c.config.RetryDelay(),
		MaxInterval:     c.config.Timeout(),
		Multiplier:      2.0,
		MaxElapsedTime:  c.config.Timeout() * 3,
		RetryIfFn:       isTransient,
	}
	return resilience.RetryWithResult(ctx, retryCfg, c.logger, "embed query", func() ([]float32, error) {
		return c.callAPI(ctx, text)
	})
}

func (c *Client) callAPI(ctx context.Context, text string) ([]float32, error) {
	reqBody := embeddingRequest{
		Input: text,
		Model: c.config.Model,
	}
	if c.config.Dimensions > 0 {
		reqBody.Dimensions = &c.config.Dimensions
	}

	jsonData, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal embedding request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.config.BaseURL+"/embeddings", bytes.NewBuffer(jsonData))
	if err != nil {
		return nil, fmt.Errorf("failed to create embedding request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.config.APIKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("embedding request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read embedding response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, &apiError{status: resp.StatusCode, body: string(body)}
	}

	var parsed embeddingResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, fmt.Errorf("failed to parse embedding response: %w", err)
	}
	if len(parsed.Data) == 0 {
		return nil, fmt.Errorf("no embedding data in response")
	}
	return parsed.Data[0].Embedding, nil
}

// apiError carries the upstream status so retry classification can see it.
type apiError struct {
	status int
	body   string
}

func (e *apiError) Error() string {
	return fmt.Sprintf("embedding API error (status %d): %s", e.status, e.body)
}

// isTransient limits retries to 5xx responses and transport failures.
func isTransient(err error) bool {
	var apiErr *apiError
	if errors.As(err, &apiErr) {
		return apiErr.status >= 500
	}
	return true
}
