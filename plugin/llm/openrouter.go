// Package llm is the completion gateway: a stateless adapter that wraps
// exactly one outbound chat-completion call per invocation. No streaming, no
// retries.
package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/pkg/errors"
)

const (
	defaultBaseURL = "https://openrouter.ai/api/v1"
	defaultModel   = "openai/gpt-4o-mini"

	// requestTimeout bounds the synchronous wait on the provider; a call that
	// exceeds it fails rather than hanging the request.
	requestTimeout = 60 * time.Second

	temperature = 0.2
	maxTokens   = 800
)

// Typed gateway failures. A missing credential is a configuration error,
// surfaced before any call is attempted.
var (
	ErrMissingAPIKey = errors.New("llm: missing API key")
	ErrUnauthorized  = errors.New("llm: unauthorized")
	ErrRateLimited   = errors.New("llm: rate limited")
	ErrTimeout       = errors.New("llm: request timed out")
)

// UpstreamError carries a non-2xx provider response that has no more specific
// mapping.
type UpstreamError struct {
	Status int
	Body   string
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("llm: upstream status %d: %s", e.Status, e.Body)
}

// Client calls an OpenAI-compatible chat-completions endpoint.
type Client struct {
	apiKey  string
	baseURL string
	model   string
	hc      *http.Client
}

// Option configures a Client.
type Option func(*Client)

// WithBaseURL overrides the provider endpoint (used by tests).
func WithBaseURL(u string) Option {
	return func(c *Client) { c.baseURL = u }
}

// WithModel overrides the completion model.
func WithModel(m string) Option {
	return func(c *Client) {
		if m != "" {
			c.model = m
		}
	}
}

// NewClient builds a gateway for the given API key.
func NewClient(apiKey string, opts ...Option) *Client {
	c := &Client{
		apiKey:  apiKey,
		baseURL: defaultBaseURL,
		model:   defaultModel,
		hc:      &http.Client{Timeout: requestTimeout},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type apiMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Complete sends the system prompt and the latest user text and returns the
// assistant reply.
func (c *Client) Complete(ctx context.Context, systemPrompt, userText string) (string, error) {
	if c.apiKey == "" {
		return "", ErrMissingAPIKey
	}

	payload := map[string]any{
		"model": c.model,
		"messages": []apiMessage{
			{Role: "system", Content: systemPrompt},
			{Role: "user", Content: userText},
		},
		"temperature": temperature,
		"max_tokens":  maxTokens,
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return "", errors.Wrap(err, "llm: encode request")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.baseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return "", errors.Wrap(err, "llm: build request")
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.hc.Do(req)
	if err != nil {
		if isTimeout(err) {
			return "", ErrTimeout
		}
		return "", errors.Wrap(err, "llm: request failed")
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		switch resp.StatusCode {
		case http.StatusUnauthorized, http.StatusForbidden:
			return "", ErrUnauthorized
		case http.StatusTooManyRequests:
			return "", ErrRateLimited
		default:
			return "", &UpstreamError{Status: resp.StatusCode, Body: string(raw)}
		}
	}

	var apiResp struct {
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&apiResp); err != nil {
		return "", &UpstreamError{Status: resp.StatusCode, Body: "malformed response body"}
	}
	if len(apiResp.Choices) == 0 {
		return "", &UpstreamError{Status: resp.StatusCode, Body: "empty choices"}
	}
	return apiResp.Choices[0].Message.Content, nil
}

func isTimeout(err error) bool {
	var netErr interface{ Timeout() bool }
	if errors.As(err, &netErr) {
		return netErr.Timeout()
	}
	return errors.Is(err, context.DeadlineExceeded)
}
