// Package imagegen is the image gateway: one outbound call to the Hugging
// Face inference API per invocation, returning the image as base64.
package imagegen

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/pkg/errors"
)

const (
	defaultBaseURL = "https://api-inference.huggingface.co/models"

	// DefaultModel substitutes for unrecognized model selectors; the client
	// stays simple because a bad key degrades to a working model, not an error.
	DefaultModel = "flux"

	// requestTimeout is generous because cold models can take minutes to spin up.
	requestTimeout = 120 * time.Second

	// minImageBytes guards against zero-byte "success" responses from a cold
	// provider.
	minImageBytes = 100
)

// models maps client-facing selectors to hosted model identifiers.
var models = map[string]string{
	"stable_diffusion": "runwayml/stable-diffusion-v1-5",
	"flux":             "black-forest-labs/FLUX.1-schnell",
	"sdxl":             "stabilityai/stable-diffusion-xl-base-1.0",
	"kandinsky":        "kandinsky-community/kandinsky-2-2-decoder",
}

// Typed gateway failures.
var (
	ErrMissingToken = errors.New("imagegen: missing API token")
	ErrModelLoading = errors.New("imagegen: model is loading, retry later")
	ErrUnauthorized = errors.New("imagegen: unauthorized")
	ErrNotFound     = errors.New("imagegen: model not found")
	ErrTimeout      = errors.New("imagegen: request timed out")
	ErrEmptyImage   = errors.New("imagegen: provider returned no image data")
)

// UpstreamError carries a non-2xx provider response with no specific mapping.
type UpstreamError struct {
	Status int
	Body   string
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("imagegen: upstream status %d: %s", e.Status, e.Body)
}

// Client calls the Hugging Face inference endpoint.
type Client struct {
	token   string
	baseURL string
	hc      *http.Client
}

// Option configures a Client.
type Option func(*Client)

// WithBaseURL overrides the provider endpoint (used by tests).
func WithBaseURL(u string) Option {
	return func(c *Client) { c.baseURL = u }
}

// NewClient builds a gateway for the given API token.
func NewClient(token string, opts ...Option) *Client {
	c := &Client{
		token:   token,
		baseURL: defaultBaseURL,
		hc:      &http.Client{Timeout: requestTimeout},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Models lists the recognized model selectors.
func Models() []string {
	out := make([]string, 0, len(models))
	for k := range models {
		out = append(out, k)
	}
	return out
}

// Generate renders prompt with the selected model and returns the image bytes
// base64-encoded. An unrecognized selector silently falls back to
// DefaultModel.
func (c *Client) Generate(ctx context.Context, prompt, model string) (string, error) {
	if c.token == "" {
		return "", ErrMissingToken
	}
	modelID, ok := models[model]
	if !ok {
		modelID = models[DefaultModel]
	}

	body, err := json.Marshal(map[string]string{"inputs": prompt})
	if err != nil {
		return "", errors.Wrap(err, "imagegen: encode request")
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.baseURL+"/"+modelID, bytes.NewReader(body))
	if err != nil {
		return "", errors.Wrap(err, "imagegen: build request")
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.hc.Do(req)
	if err != nil {
		if isTimeout(err) {
			return "", ErrTimeout
		}
		return "", errors.Wrap(err, "imagegen: request failed")
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
		// fall through to payload validation
	case http.StatusServiceUnavailable:
		return "", ErrModelLoading
	case http.StatusUnauthorized, http.StatusForbidden:
		return "", ErrUnauthorized
	case http.StatusNotFound:
		return "", ErrNotFound
	default:
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return "", &UpstreamError{Status: resp.StatusCode, Body: string(raw)}
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", errors.Wrap(err, "imagegen: read response")
	}
	if len(data) <= minImageBytes {
		return "", ErrEmptyImage
	}
	return base64.StdEncoding.EncodeToString(data), nil
}

func isTimeout(err error) bool {
	var netErr interface{ Timeout() bool }
	if errors.As(err, &netErr) {
		return netErr.Timeout()
	}
	return errors.Is(err, context.DeadlineExceeded)
}
