package agent

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"chat-relay/internal/domain"
)

const completionsPath = "/api/v1/chat/completions"

// completionRequest is the fixed request shape for the agent completions
// endpoint. Streaming and every auxiliary info block are switched off.
type completionRequest struct {
	Messages              []domain.ChatMessage `json:"messages"`
	Stream                bool                 `json:"stream"`
	IncludeFunctionsInfo  bool                 `json:"include_functions_info"`
	IncludeRetrievalInfo  bool                 `json:"include_retrieval_info"`
	IncludeGuardrailsInfo bool                 `json:"include_guardrails_info"`
}

// HTTPStatusError captures non-2xx responses from the agent endpoint.
type HTTPStatusError struct {
	StatusCode int
	Body       string
}

func (e *HTTPStatusError) Error() string {
	return fmt.Sprintf("agent: unexpected status %d: %s", e.StatusCode, e.Body)
}

func (e *HTTPStatusError) HTTPStatusCode() int {
	return e.StatusCode
}

// RequestError is returned for every failed agent call. Its message is always
// "agent request failed"; the cause is reachable through Unwrap for logging and
// classification but must not be shown to end users.
type RequestError struct {
	Err error
}

func (e *RequestError) Error() string {
	return "agent request failed"
}

func (e *RequestError) Unwrap() error {
	return e.Err
}

// Client sends single-message conversations to a hosted agent.
type Client struct {
	endpoint   string
	accessKey  string
	httpClient *http.Client
}

type Option func(*Client)

func WithHTTPClient(httpClient *http.Client) Option {
	return func(c *Client) {
		c.httpClient = httpClient
	}
}

// NewClient validates the endpoint and access key. Either one missing is a
// configuration error reported before any request is attempted.
func NewClient(endpoint, accessKey string, opts ...Option) (*Client, error) {
	endpoint = strings.TrimRight(strings.TrimSpace(endpoint), "/")
	accessKey = strings.TrimSpace(accessKey)
	if endpoint == "" {
		return nil, fmt.Errorf("agent: endpoint is empty: %w", domain.ErrNotConfigured)
	}
	if accessKey == "" {
		return nil, fmt.Errorf("agent: access key is empty: %w", domain.ErrNotConfigured)
	}
	u, err := url.Parse(endpoint)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return nil, fmt.Errorf("agent: endpoint must be an absolute http(s) URL: %w", domain.ErrNotConfigured)
	}
	c := &Client{
		endpoint:   endpoint,
		accessKey:  accessKey,
		httpClient: http.DefaultClient,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

func (c *Client) completionsURL() string {
	return c.endpoint + completionsPath
}

// Send posts message as the only user turn and returns the decoded reply.
// There are no retries; the request lives as long as ctx and the HTTP client
// allow.
func (c *Client) Send(ctx context.Context, message string) (domain.AgentReply, error) {
	if c == nil || c.endpoint == "" || c.accessKey == "" {
		return domain.AgentReply{}, fmt.Errorf("agent: client not configured: %w", domain.ErrNotConfigured)
	}

	body, err := json.Marshal(completionRequest{
		Messages: []domain.ChatMessage{{Role: "user", Content: message}},
	})
	if err != nil {
		return domain.AgentReply{}, fmt.Errorf("agent: marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.completionsURL(), bytes.NewReader(body))
	if err != nil {
		return domain.AgentReply{}, fmt.Errorf("agent: create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.accessKey)

	raw, err := c.doJSONRequest(req)
	if err != nil {
		return domain.AgentReply{}, c.fail(ctx, err)
	}

	var reply domain.AgentReply
	if err := json.Unmarshal(raw, &reply); err != nil {
		return domain.AgentReply{}, c.fail(ctx, fmt.Errorf("agent: decode response: %w", err))
	}
	return reply, nil
}

func (c *Client) fail(ctx context.Context, cause error) error {
	attrs := []any{"err", cause}
	var statusErr *HTTPStatusError
	if errors.As(cause, &statusErr) {
		attrs = append(attrs, "status", statusErr.StatusCode)
	}
	slog.ErrorContext(ctx, "agent API error", attrs...)
	return &RequestError{Err: cause}
}

func (c *Client) doJSONRequest(req *http.Request) ([]byte, error) {
	httpClient := c.httpClient
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	res, err := httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("agent: send request: %w", err)
	}
	defer func() { _ = res.Body.Close() }()

	if res.StatusCode < 200 || res.StatusCode >= 300 {
		buf, _ := io.ReadAll(io.LimitReader(res.Body, 4096))
		return nil, &HTTPStatusError{
			StatusCode: res.StatusCode,
			Body:       string(buf),
		}
	}

	buf, err := io.ReadAll(io.LimitReader(res.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("agent: read response body: %w", err)
	}
	return buf, nil
}
