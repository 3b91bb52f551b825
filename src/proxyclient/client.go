// Package proxyclient talks to the local inference proxy and reduces its
// streaming responses into completed content blocks.
package proxyclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/parleyhq/parley/src/chat"
)

const (
	defaultBaseURL      = "http://127.0.0.1:8080"
	defaultMessagesPath = "/v1/messages"

	// How much of an error body is kept when reporting an upstream failure.
	maxErrorBodyBytes = 2048
)

// Config holds the configuration for the proxy client.
type Config struct {
	BaseURL      string
	APIKey       string
	MessagesPath string
	RetryCount   int
	RetryDelay   time.Duration
	Logger       *slog.Logger
	HTTPClient   *http.Client
}

// Client is the inference proxy API client.
type Client struct {
	config     Config
	httpClient *http.Client
	logger     *slog.Logger
	decoder    *Decoder
}

// New creates a new proxy client.
func New(config Config) *Client {
	if config.BaseURL == "" {
		config.BaseURL = defaultBaseURL
	}
	if config.MessagesPath == "" {
		config.MessagesPath = defaultMessagesPath
	}
	if config.RetryCount == 0 {
		config.RetryCount = 3
	}
	if config.RetryDelay == 0 {
		config.RetryDelay = time.Second
	}

	httpClient := config.HTTPClient
	if httpClient == nil {
		// No global timeout: a streaming turn legitimately stays open for
		// as long as the model generates. Cancellation comes from ctx.
		httpClient = &http.Client{}
	}

	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "proxy_client")

	return &Client{
		config:     config,
		httpClient: httpClient,
		logger:     logger,
		decoder:    NewDecoder(logger),
	}
}

// Turn sends one model turn and decodes the response into completed blocks,
// delivering progress notifications to notify as they occur. The caller does
// not need to know whether the proxy streamed or answered with a single
// JSON document.
func (c *Client) Turn(ctx context.Context, req *chat.MessagesRequest, notify Notifier) ([]chat.ContentBlock, error) {
	resp, err := c.postMessages(ctx, req)
	if err != nil {
		return nil, err
	}
	return c.decoder.Decode(ctx, resp, notify)
}

// postMessages issues the POST and returns the raw response for decoding.
func (c *Client) postMessages(ctx context.Context, req *chat.MessagesRequest) (*http.Response, error) {
	logger := c.logger.With("method", "postMessages", "model", req.Model)

	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	httpReq, err := c.newRequest(ctx, http.MethodPost, c.config.MessagesPath, body)
	if err != nil {
		return nil, err
	}

	resp, err := c.doRequestWithRetry(httpReq)
	if err != nil {
		if chat.IsAborted(err) || ctx.Err() != nil {
			return nil, chat.ErrAborted
		}
		logger.Error("request failed", "error", err)
		return nil, &chat.TransportError{Err: err}
	}

	logger.Debug("turn request accepted", "status", resp.StatusCode)
	return resp, nil
}

// newRequest creates a new HTTP request with the appropriate headers.
func (c *Client) newRequest(ctx context.Context, method, path string, body []byte) (*http.Request, error) {
	url := c.config.BaseURL + path

	req, err := http.NewRequestWithContext(ctx, method, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json, text/event-stream")
	if c.config.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.config.APIKey)
	}

	return req, nil
}

// doRequestWithRetry performs an HTTP request, retrying transport failures
// and server errors with linear backoff. Client errors (4xx) are returned
// to the caller immediately; a server error on the last attempt is also
// returned as a response, so the caller sees the status instead of a
// transport failure.
func (c *Client) doRequestWithRetry(req *http.Request) (*http.Response, error) {
	var lastErr error

	logger := c.logger.With("method", "doRequestWithRetry", "url", req.URL.String())

	var bodyBytes []byte
	if req.Body != nil {
		var err error
		bodyBytes, err = io.ReadAll(req.Body)
		if err != nil {
			return nil, fmt.Errorf("failed to read request body: %w", err)
		}
	}

	for i := 0; i < c.config.RetryCount; i++ {
		if err := req.Context().Err(); err != nil {
			return nil, err
		}

		reqCopy := req.Clone(req.Context())
		if bodyBytes != nil {
			reqCopy.Body = io.NopCloser(bytes.NewReader(bodyBytes))
		}

		resp, err := c.httpClient.Do(reqCopy)
		if err != nil {
			lastErr = err
			logger.Debug("request attempt failed", "attempt", i+1, "error", err)
			if sleepErr := sleepCtx(req.Context(), c.config.RetryDelay*time.Duration(i+1)); sleepErr != nil {
				return nil, sleepErr
			}
			continue
		}

		if resp.StatusCode < 500 {
			return resp, nil
		}

		if i == c.config.RetryCount-1 {
			// Out of retries: hand the 5xx response back so the decoder
			// reports it as an upstream failure with status and body.
			return resp, nil
		}

		resp.Body.Close()
		lastErr = fmt.Errorf("server error: %d", resp.StatusCode)
		logger.Debug("server error, retrying", "attempt", i+1, "status_code", resp.StatusCode)
		if sleepErr := sleepCtx(req.Context(), c.config.RetryDelay*time.Duration(i+1)); sleepErr != nil {
			return nil, sleepErr
		}
	}

	logger.Error("request failed after all retries", "retry_count", c.config.RetryCount, "error", lastErr)
	return nil, fmt.Errorf("request failed after %d retries: %w", c.config.RetryCount, lastErr)
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
