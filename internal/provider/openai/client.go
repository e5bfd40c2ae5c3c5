// Package openai implements the generation client for the OpenAI
// chat-completions API.
package openai

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

	"github.com/prodyapp/bodhi/internal/domain"
	"github.com/prodyapp/bodhi/internal/provider"
)

const (
	defaultBaseURL = "https://api.openai.com/v1"
	defaultModel   = "gpt-4o-mini"
	defaultName    = "openai"
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

// Client is a custom HTTP client for the OpenAI API.
type Client struct {
	name       string
	apiKey     string
	baseURL    string
	model      string
	httpClient *http.Client
}

var _ provider.Client = (*Client)(nil)

// NewClient creates a new OpenAI API client.
func NewClient(apiKey string, opts ...ClientOption) *Client {
	c := &Client{
		name:       defaultName,
		apiKey:     apiKey,
		baseURL:    defaultBaseURL,
		model:      defaultModel,
		httpClient: http.DefaultClient,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Name returns the configured provider name.
func (c *Client) Name() string { return c.name }

// Generate sends one chat-completion request. The caller bounds the call via
// ctx; deadline failures surface as timeout errors.
func (c *Client) Generate(ctx context.Context, req *provider.Request) (*provider.Generation, error) {
	messages := make([]chatMessage, 0, 2)
	if req.System != "" {
		messages = append(messages, chatMessage{Role: "system", Content: req.System})
	}
	messages = append(messages, chatMessage{Role: "user", Content: req.Prompt})

	body, err := json.Marshal(&chatCompletionRequest{
		Model:          c.model,
		Messages:       messages,
		MaxTokens:      req.MaxTokens,
		Temperature:    0.9,
		ResponseFormat: &responseFormat{Type: "json_object"},
	})
	if err != nil {
		return nil, domain.ErrProvider(c.name, "failed to marshal request").WithCause(err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat/completions", bytes.NewReader(body))
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

	var result chatCompletionResponse
	if err := json.Unmarshal(respBody, &result); err != nil {
		return nil, domain.ErrProvider(c.name, "malformed completion response").WithCause(err)
	}
	if len(result.Choices) == 0 {
		return nil, domain.ErrProvider(c.name, "completion contained no choices")
	}

	return &provider.Generation{
		Text:         result.Choices[0].Message.Content,
		Model:        result.Model,
		InputTokens:  result.Usage.PromptTokens,
		OutputTokens: result.Usage.CompletionTokens,
	}, nil
}

func (c *Client) setHeaders(req *http.Request) {
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
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
