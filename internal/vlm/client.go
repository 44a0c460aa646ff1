package vlm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const defaultTimeout = 300 * time.Second

// Client calls a fixed-contract inference endpoint: POST {image_url, text},
// 200 response body is a JSON-encoded string with the model's raw text.
//
// The client never retries: a failed request becomes the task's captured
// failure, and resume passes are the retry mechanism.
type Client struct {
	endpointURL string
	httpClient  *http.Client
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if c == nil || hc == nil {
			return
		}
		c.httpClient = hc
	}
}

// WithTimeout sets the per-request timeout.
func WithTimeout(timeout time.Duration) Option {
	return func(c *Client) {
		if c == nil || timeout <= 0 {
			return
		}
		if c.httpClient == nil {
			c.httpClient = &http.Client{}
		}
		c.httpClient.Timeout = timeout
	}
}

// NewClient constructs a Client for the given endpoint URL.
func NewClient(endpointURL string, opts ...Option) *Client {
	c := &Client{
		endpointURL: strings.TrimSpace(endpointURL),
		httpClient:  &http.Client{Timeout: defaultTimeout},
	}
	for _, opt := range opts {
		if opt != nil {
			opt(c)
		}
	}
	return c
}

// APIError represents a non-200 response from the endpoint.
type APIError struct {
	StatusCode int
	Status     string
	Body       []byte
}

// Error formats the API error string.
func (e *APIError) Error() string {
	if e == nil {
		return "vlm: api error <nil>"
	}

	body := strings.TrimSpace(string(e.Body))
	if body == "" {
		return fmt.Sprintf("vlm: api error (%s)", e.Status)
	}
	if len(body) > 200 {
		body = body[:200]
	}
	return fmt.Sprintf("vlm: api error (%s): %s", e.Status, body)
}

type generateRequest struct {
	ImageURL string `json:"image_url"`
	Text     string `json:"text"`
}

// Name identifies the backend.
func (c *Client) Name() string {
	return "endpoint"
}

// Generate sends one request and returns the model's raw text.
func (c *Client) Generate(ctx context.Context, imageURL string, text string) (string, error) {
	if c == nil || c.httpClient == nil {
		return "", errors.New("vlm: nil client")
	}
	if ctx == nil {
		return "", errors.New("vlm: nil context")
	}
	if strings.TrimSpace(c.endpointURL) == "" {
		return "", errors.New("vlm: empty endpoint url")
	}

	payload, err := json.Marshal(generateRequest{ImageURL: imageURL, Text: text})
	if err != nil {
		return "", fmt.Errorf("vlm: marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpointURL, bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("vlm: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 16*1024*1024))
	if err != nil {
		return "", fmt.Errorf("vlm: read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return "", &APIError{
			StatusCode: resp.StatusCode,
			Status:     resp.Status,
			Body:       body,
		}
	}

	var raw string
	if err := json.Unmarshal(body, &raw); err != nil {
		return "", fmt.Errorf("vlm: decode response: %w", err)
	}
	return raw, nil
}
