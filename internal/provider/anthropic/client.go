// Package anthropic implements the generation client for the Anthropic
// messages API, with retries for transient overload responses.
package anthropic

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/prodyapp/bodhi/internal/domain"
	"github.com/prodyapp/bodhi/internal/provider"
)

const (
	defaultBaseURL = "https://api.anthropic.com"
	defaultModel   = "claude-3-5-haiku-latest"
	defaultName    = "anthropic"

	// apiVersion is the anthropic-version header value.
	apiVersion = "2023-06-01"

	// statusOverloaded is Anthropic's transient overload status.
	statusOverloaded = 529

	// defaultMaxRetries is the default number of retry attempts for overload errors.
	defaultMaxRetries = 2
	// defaultBaseDelay is the base delay for exponential backoff.
	defaultBaseDelay = 500 * time.Millisecond
	// defaultMaxDelay caps the backoff delay.
	defaultMaxDelay = 5 * time.Second
)

// ClientOption configures the client.
type ClientOption func(*Client)

// WithName sets the configured provider name reported in stats and errors.
func WithName(name string) ClientOption {
	return func(c *Client) {
		c.name = name
	}
}

// WithBaseURL sets a custom base URL.
func WithBaseURL(baseURL string) ClientOption {
	return func(c *Client) {
		c.baseURL = strings.TrimSuffix(baseURL, "/")
	}
}

// WithModel sets the model used for generations.
func WithModel(model string) ClientOption {
	return func(c *Client) {
		c.model = model
	}
}

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(httpClient *http.Client) ClientOption {
	return func(c *Client) {
		c.httpClient = httpClient
	}
}

// WithMaxRetries sets the maximum number of retries for overload errors.
func WithMaxRetries(maxRetries int) ClientOption {
	return func(c *Client) {
		c.maxRetries = maxRetries
	}
}

// WithLogger sets the logger used for retry warnings.
func WithLogger(logger *slog.Logger) ClientOption {
	return func(c *Client) {
		c.logger = logger
	}
}

// Client is a custom HTTP client for the Anthropic API.
type Client struct {
	name       string
	apiKey     string
	baseURL    string
	model      string
	httpClient *http.Client
	maxRetries int
	logger     *slog.Logger
}

var _ provider.Client = (*Client)(nil)

// NewClient creates a new Anthropic API client.
func NewClient(apiKey string, opts ...ClientOption) *Client {
	c := &Client{
		name:       defaultName,
		apiKey:     apiKey,
		baseURL:    defaultBaseURL,
		model:      defaultModel,
		httpClient: http.DefaultClient,
		maxRetries: defaultMaxRetries,
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Name returns the configured provider name.
func (c *Client) Name() string { return c.name }

// Generate sends one messages request, retrying transient 529 overload
// responses with exponential backoff before giving up.
func (c *Client) Generate(ctx context.Context, req *provider.Request) (*provider.Generation, error) {
	var gen *provider.Generation
	var lastErr error

	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		gen, lastErr = c.createMessage(ctx, req)
		if lastErr == nil {
			return gen, nil
		}

		if !isOverloadedError(lastErr) {
			return nil, lastErr
		}

		if attempt == c.maxRetries {
			break
		}

		delay := calculateBackoff(attempt)
		c.logger.Warn("anthropic overloaded, retrying",
			slog.Int("attempt", attempt+1),
			slog.Int("max_retries", c.maxRetries),
			slog.Duration("backoff", delay),
		)

		select {
		case <-ctx.Done():
			return nil, c.classifyTransportError(ctx.Err())
		case <-time.After(delay):
		}
	}

	c.logger.Error("anthropic overloaded after all retries",
		slog.Int("retries", c.maxRetries),
		slog.String("error", lastErr.Error()),
	)
	return nil, domain.ErrProvider(c.name, "API is overloaded after retries").
		WithStatusCode(statusOverloaded)
}

func (c *Client) createMessage(ctx context.Context, req *provider.Request) (*provider.Generation, error) {
	body, err := json.Marshal(&messagesRequest{
		Model:     c.model,
		MaxTokens: req.MaxTokens,
		System:    req.System,
		Messages: []message{
			{Role: "user", Content: req.Prompt},
		},
		Temperature: 0.9,
	})
	if err != nil {
		return nil, domain.ErrProvider(c.name, "failed to marshal request").WithCause(err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/messages", bytes.NewReader(body))
	if err != nil {
		return nil, domain.ErrProvider(c.name, "failed to create request").WithCause(err)
	}

	c.setHeaders(httpReq)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, c.classifyTransportError(err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, domain.ErrNetwork(c.name, fmt.Errorf("read response: %w", err))
	}

	if resp.StatusCode != http.StatusOK {
		return nil, c.errorFromResponse(resp.StatusCode, respBody)
	}

	var result messagesResponse
	if err := json.Unmarshal(respBody, &result); err != nil {
		return nil, domain.ErrProvider(c.name, "malformed messages response").WithCause(err)
	}

	text := result.JoinedText()
	if text == "" {
		return nil, domain.ErrProvider(c.name, "response contained no text content")
	}

	return &provider.Generation{
		Text:         text,
		Model:        result.Model,
		InputTokens:  result.Usage.InputTokens,
		OutputTokens: result.Usage.OutputTokens,
	}, nil
}

func (c *Client) setHeaders(req *http.Request) {
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-api-key", c.apiKey)
	req.Header.Set("anthropic-version", apiVersion)
	req.Header.Set("User-Agent", "bodhi/1.0")
}

func (c *Client) classifyTransportError(err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return domain.ErrTimeout(c.name, err)
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return domain.ErrTimeout(c.name, err)
	}
	return domain.ErrNetwork(c.name, err)
}

func (c *Client) errorFromResponse(status int, body []byte) error {
	message := fmt.Sprintf("API error (status %d)", status)
	if apiErr, err := parseErrorResponse(body); err == nil && apiErr != nil {
		message = provider.Redact(apiErr.Message, c.apiKey)
	}

	switch {
	case status == http.StatusTooManyRequests:
		return domain.ErrRateLimited(c.name)
	default:
		return domain.ErrProvider(c.name, message).WithStatusCode(status)
	}
}

// isOverloadedError checks if the error is an Anthropic 529 overloaded error.
func isOverloadedError(err error) bool {
	var genErr *domain.GenError
	if errors.As(err, &genErr) {
		return genErr.StatusCode == statusOverloaded
	}
	return false
}

// calculateBackoff returns the delay for the given retry attempt using exponential backoff.
func calculateBackoff(attempt int) time.Duration {
	delay := float64(defaultBaseDelay) * math.Pow(2, float64(attempt))
	if delay > float64(defaultMaxDelay) {
		delay = float64(defaultMaxDelay)
	}
	return time.Duration(delay)
}
