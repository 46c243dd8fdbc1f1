// Package embed generates text embeddings through an OpenAI-compatible API.
package embed

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"golang.org/x/time/rate"
)

// Default configuration values.
const (
	DefaultBaseURL    = "https://api.openai.com/v1"
	DefaultModel      = "text-embedding-3-small"
	DefaultTimeout    = 60 * time.Second
	DefaultMaxRetries = 5
)

// Config holds configuration for the embeddings client.
type Config struct {
	// APIKey is the API key (required).
	APIKey string

	// BaseURL is the API base URL (default: https://api.openai.com/v1).
	BaseURL string

	// Model is the embedding model to use (default: text-embedding-3-small).
	Model string

	// Dimensions is the requested vector size. Required: the vector index
	// schema is created with this dimension and queries against a different
	// one are rejected.
	Dimensions int

	// Timeout is the per-request timeout (default: 60s).
	Timeout time.Duration

	// RequestsPerSecond throttles calls to the API. Zero disables throttling.
	RequestsPerSecond float64
}

// Client generates embeddings using an OpenAI-compatible /embeddings endpoint.
type Client struct {
	client     *http.Client
	baseURL    string
	apiKey     string
	model      string
	dimensions int
	maxRetries int
	limiter    *rate.Limiter
}

// embeddingRequest is the API request format.
type embeddingRequest struct {
	Model      string   `json:"model"`
	Input      []string `json:"input"`
	Dimensions int      `json:"dimensions,omitempty"`
}

// embeddingResponse is the API response format.
type embeddingResponse struct {
	Data []struct {
		Embedding []float32 `json:"embedding"`
		Index     int       `json:"index"`
	} `json:"data"`
	Error *struct {
		Message string `json:"message"`
		Type    string `json:"type"`
	} `json:"error,omitempty"`
}

// NewClient creates a new embeddings client.
func NewClient(cfg Config) (*Client, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("embed: API key is required")
	}
	if cfg.Dimensions <= 0 {
		return nil, fmt.Errorf("embed: dimensions must be positive")
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = DefaultTimeout
	}

	var limiter *rate.Limiter
	if cfg.RequestsPerSecond > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), 1)
	}

	return &Client{
		client:     &http.Client{Timeout: cfg.Timeout},
		baseURL:    cfg.BaseURL,
		apiKey:     cfg.APIKey,
		model:      cfg.Model,
		dimensions: cfg.Dimensions,
		maxRetries: DefaultMaxRetries,
		limiter:    limiter,
	}, nil
}

// Embed generates a vector embedding for a single text.
func (c *Client) Embed(ctx context.Context, text string) ([]float32, error) {
	vectors, err := c.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	if len(vectors) == 0 {
		return nil, fmt.Errorf("embed: no embedding returned")
	}
	return vectors[0], nil
}

// EmbedBatch generates embeddings for multiple texts in one API call,
// preserving input order. Rate-limit and server errors are retried with
// exponential backoff up to a bounded attempt count; request errors such as
// a bad API key are surfaced immediately.
func (c *Client) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	var lastErr error
	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if c.limiter != nil {
			if err := c.limiter.Wait(ctx); err != nil {
				return nil, err
			}
		}

		vectors, retryable, err := c.embedOnce(ctx, texts)
		if err == nil {
			return vectors, nil
		}
		if !retryable {
			return nil, err
		}
		lastErr = err

		if attempt < c.maxRetries {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(retryDelay(attempt, err)):
			}
		}
	}
	return nil, fmt.Errorf("embed: retries exhausted: %w", lastErr)
}

// Dimensions returns the embedding vector size.
func (c *Client) Dimensions() int {
	return c.dimensions
}

// ModelName returns the name of the embedding model being used.
func (c *Client) ModelName() string {
	return c.model
}

// retryAfterError carries the server-requested backoff for 429 responses.
type retryAfterError struct {
	status int
	after  time.Duration
	body   string
}

func (e *retryAfterError) Error() string {
	return fmt.Sprintf("embed: API returned status %d: %s", e.status, e.body)
}

func (c *Client) embedOnce(ctx context.Context, texts []string) (vectors [][]float32, retryable bool, err error) {
	reqBody := embeddingRequest{
		Model:      c.model,
		Input:      texts,
		Dimensions: c.dimensions,
	}
	jsonBody, err := json.Marshal(reqBody)
	if err != nil {
		return nil, false, fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.baseURL+"/embeddings", bytes.NewReader(jsonBody))
	if err != nil {
		return nil, false, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.client.Do(req)
	if err != nil {
		// Transport failures are worth a retry unless the context is gone.
		if ctx.Err() != nil {
			return nil, false, ctx.Err()
		}
		return nil, true, fmt.Errorf("send request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, true, fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
		return nil, true, &retryAfterError{
			status: resp.StatusCode,
			after:  parseRetryAfter(resp.Header.Get("Retry-After")),
			body:   string(body),
		}
	}
	if resp.StatusCode != http.StatusOK {
		return nil, false, fmt.Errorf("embed: API returned status %d: %s", resp.StatusCode, string(body))
	}

	var embedResp embeddingResponse
	if err := json.Unmarshal(body, &embedResp); err != nil {
		return nil, false, fmt.Errorf("decode response: %w", err)
	}
	if embedResp.Error != nil {
		return nil, false, fmt.Errorf("embed: API error: %s", embedResp.Error.Message)
	}
	if len(embedResp.Data) != len(texts) {
		return nil, false, fmt.Errorf("embed: got %d embeddings for %d inputs", len(embedResp.Data), len(texts))
	}

	// Order by the index field rather than response position.
	vectors = make([][]float32, len(texts))
	for _, data := range embedResp.Data {
		if data.Index < 0 || data.Index >= len(texts) {
			return nil, false, fmt.Errorf("embed: response index %d out of range", data.Index)
		}
		if len(data.Embedding) != c.dimensions {
			return nil, false, fmt.Errorf("embed: got %d-dimension vector, expected %d",
				len(data.Embedding), c.dimensions)
		}
		vectors[data.Index] = data.Embedding
	}
	for i, v := range vectors {
		if v == nil {
			return nil, false, fmt.Errorf("embed: missing embedding for input %d", i)
		}
	}
	return vectors, false, nil
}

func parseRetryAfter(header string) time.Duration {
	if header == "" {
		return 0
	}
	secs, err := strconv.Atoi(header)
	if err != nil || secs <= 0 {
		return 0
	}
	return time.Duration(secs) * time.Second
}

// retryDelay returns the backoff before the next attempt, honoring any
// Retry-After requested by the server and capping exponential growth at 5s.
func retryDelay(attempt int, err error) time.Duration {
	if ra, ok := err.(*retryAfterError); ok && ra.after > 0 {
		return ra.after
	}
	d := 200 * time.Millisecond << attempt
	if d > 5*time.Second {
		d = 5 * time.Second
	}
	return d
}
