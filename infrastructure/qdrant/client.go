// Package qdrant provides a REST client for the Qdrant vector database.
package qdrant

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"
)

// ErrCollectionMismatch indicates the collection exists with a different
// vector size or distance than configured. This is fatal: continuing
// would silently mix incompatible embeddings.
var ErrCollectionMismatch = errors.New("existing collection does not match configured dimension and distance")

// distanceCosine is the similarity metric every collection uses.
const distanceCosine = "Cosine"

// StoreError describes a failed Qdrant operation.
type StoreError struct {
	operation  string
	statusCode int
	message    string
	cause      error
}

// NewStoreError creates a new StoreError.
func NewStoreError(operation string, statusCode int, message string, cause error) *StoreError {
	return &StoreError{
		operation:  operation,
		statusCode: statusCode,
		message:    message,
		cause:      cause,
	}
}

// Operation returns the failed operation name.
func (e *StoreError) Operation() string { return e.operation }

// StatusCode returns the HTTP status (0 when the request never reached
// the server).
func (e *StoreError) StatusCode() int { return e.statusCode }

// Message returns the error message.
func (e *StoreError) Message() string { return e.message }

// Error implements the error interface.
func (e *StoreError) Error() string {
	if e.statusCode != 0 {
		return fmt.Sprintf("qdrant %s: status %d: %s", e.operation, e.statusCode, e.message)
	}
	return fmt.Sprintf("qdrant %s: %s", e.operation, e.message)
}

// Unwrap returns the underlying cause.
func (e *StoreError) Unwrap() error { return e.cause }

// Client talks to one Qdrant collection over its REST API.
type Client struct {
	baseURL       string
	apiKey        string
	collection    string
	dimension     int
	batchSize     int
	maxRetries    int
	initialDelay  time.Duration
	backoffFactor float64
	httpClient    *http.Client
}

// ClientOption is a functional option for Client.
type ClientOption func(*Client)

// WithAPIKey sets the api-key header value.
func WithAPIKey(key string) ClientOption {
	return func(c *Client) { c.apiKey = key }
}

// WithBatchSize sets how many points one upsert request carries.
func WithBatchSize(n int) ClientOption {
	return func(c *Client) {
		if n > 0 {
			c.batchSize = n
		}
	}
}

// WithMaxRetries sets the maximum retry count.
func WithMaxRetries(n int) ClientOption {
	return func(c *Client) { c.maxRetries = n }
}

// WithInitialDelay sets the initial retry delay.
func WithInitialDelay(d time.Duration) ClientOption {
	return func(c *Client) { c.initialDelay = d }
}

// WithBackoffFactor sets the backoff multiplier.
func WithBackoffFactor(f float64) ClientOption {
	return func(c *Client) { c.backoffFactor = f }
}

// WithHTTPTimeout sets the per-request HTTP timeout.
func WithHTTPTimeout(d time.Duration) ClientOption {
	return func(c *Client) { c.httpClient.Timeout = d }
}

// WithHTTPClient replaces the HTTP client (for testing or proxies).
func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *Client) { c.httpClient = hc }
}

// NewClient creates a Client for one collection. dimension is the
// vector size every point must carry.
func NewClient(baseURL, collection string, dimension int, opts ...ClientOption) *Client {
	c := &Client{
		baseURL:       strings.TrimRight(baseURL, "/"),
		collection:    collection,
		dimension:     dimension,
		batchSize:     100,
		maxRetries:    5,
		initialDelay:  2 * time.Second,
		backoffFactor: 2.0,
		httpClient: &http.Client{
			Timeout: 60 * time.Second,
		},
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

// Collection returns the collection name the client operates on.
func (c *Client) Collection() string { return c.collection }

// Dimension returns the configured vector size.
func (c *Client) Dimension() int { return c.dimension }

// collectionInfo is the subset of GET /collections/{name} we inspect.
type collectionInfo struct {
	Result struct {
		Config struct {
			Params struct {
				Vectors struct {
					Size     int    `json:"size"`
					Distance string `json:"distance"`
				} `json:"vectors"`
			} `json:"params"`
		} `json:"config"`
	} `json:"result"`
}

// createCollectionRequest is the PUT /collections/{name} body.
type createCollectionRequest struct {
	Vectors vectorParams `json:"vectors"`
}

type vectorParams struct {
	Size     int    `json:"size"`
	Distance string `json:"distance"`
}

// Initialize ensures the collection exists with the configured vector
// size and cosine distance, creating it when absent. A collection with
// different parameters yields ErrCollectionMismatch.
func (c *Client) Initialize(ctx context.Context) error {
	status, body, err := c.do(ctx, http.MethodGet, "/collections/"+c.collection, nil)
	if err != nil {
		return NewStoreError("initialize", 0, "get collection", err)
	}

	switch status {
	case http.StatusOK:
		var info collectionInfo
		if err := json.Unmarshal(body, &info); err != nil {
			return NewStoreError("initialize", status, "decode collection info", err)
		}
		params := info.Result.Config.Params.Vectors
		if params.Size != c.dimension || params.Distance != distanceCosine {
			return fmt.Errorf(
				"%w: collection %q has size=%d distance=%q, want size=%d distance=%q",
				ErrCollectionMismatch, c.collection, params.Size, params.Distance, c.dimension, distanceCosine,
			)
		}
		return nil
	case http.StatusNotFound:
		return c.createCollection(ctx)
	default:
		return NewStoreError("initialize", status, string(body), nil)
	}
}

func (c *Client) createCollection(ctx context.Context) error {
	req := createCollectionRequest{
		Vectors: vectorParams{Size: c.dimension, Distance: distanceCosine},
	}
	return c.withRetry(ctx, func() error {
		status, body, err := c.do(ctx, http.MethodPut, "/collections/"+c.collection, req)
		if err != nil {
			return NewStoreError("create_collection", 0, "request failed", err)
		}
		if status != http.StatusOK {
			return NewStoreError("create_collection", status, string(body), nil)
		}
		return nil
	})
}

// HealthCheck verifies the Qdrant endpoint responds.
func (c *Client) HealthCheck(ctx context.Context) error {
	status, body, err := c.do(ctx, http.MethodGet, "/collections", nil)
	if err != nil {
		return NewStoreError("health_check", 0, "request failed", err)
	}
	if status != http.StatusOK {
		return NewStoreError("health_check", status, string(body), nil)
	}
	return nil
}

// do performs one request and returns status and body. Transport
// failures return an error with status 0.
func (c *Client) do(ctx context.Context, method, path string, payload any) (int, []byte, error) {
	var reader io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return 0, nil, fmt.Errorf("marshal request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return 0, nil, fmt.Errorf("create request: %w", err)
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.apiKey != "" {
		req.Header.Set("api-key", c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, nil, err
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return resp.StatusCode, nil, fmt.Errorf("read response: %w", err)
	}
	return resp.StatusCode, body, nil
}

// withRetry executes the function with exponential backoff retry.
func (c *Client) withRetry(ctx context.Context, fn func() error) error {
	delay := c.initialDelay
	var lastErr error

	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		lastErr = fn()
		if lastErr == nil {
			return nil
		}

		if !isRetryable(lastErr) {
			return lastErr
		}

		if attempt < c.maxRetries {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(delay):
				delay = time.Duration(float64(delay) * c.backoffFactor)
			}
		}
	}

	return fmt.Errorf("max retries exceeded: %w", lastErr)
}

// isRetryable determines if an error should be retried: rate limits,
// server-side failures, and network timeouts.
func isRetryable(err error) bool {
	var storeErr *StoreError
	if errors.As(err, &storeErr) {
		switch storeErr.StatusCode() {
		case http.StatusTooManyRequests,
			http.StatusInternalServerError,
			http.StatusBadGateway,
			http.StatusServiceUnavailable,
			http.StatusGatewayTimeout:
			return true
		case 0:
			// Fall through to the transport checks below.
		default:
			return false
		}
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	return false
}
