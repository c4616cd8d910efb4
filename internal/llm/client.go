package llm

import (
	"context"
	"errors"
	"fmt"
	"time"

	openai "github.com/sashabaranov/go-openai"
	"github.com/sethvargo/go-retry"

	"jumpgen/internal/model"
)

const (
	// DefaultMaxAttempts bounds the total number of calls per Invoke.
	DefaultMaxAttempts = 3

	// defaultBackoffBase is doubled on every retry: 2s, 4s, 8s, ...
	defaultBackoffBase = 2 * time.Second
)

// Client invokes a hosted chat-completion endpoint and masks transient
// upstream failures from the caller. Server-side errors (5xx) and
// transport failures are retried with exponential backoff; client errors
// (4xx) fail immediately, since retrying a malformed request only burns
// quota and hides the defect.
type Client struct {
	api         *openai.Client
	maxAttempts int
	backoffBase time.Duration
}

// Option tweaks client behaviour; used by tests to shrink backoff.
type Option func(*Client)

func WithMaxAttempts(n int) Option {
	return func(c *Client) {
		if n > 0 {
			c.maxAttempts = n
		}
	}
}

func WithBackoffBase(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.backoffBase = d
		}
	}
}

// NewClient builds a client for the given API key. baseURL overrides the
// endpoint when talking to a self-hosted gateway; empty keeps the default.
func NewClient(apiKey, baseURL string, opts ...Option) *Client {
	cfg := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = baseURL
	}
	c := &Client{
		api:         openai.NewClientWithConfig(cfg),
		maxAttempts: DefaultMaxAttempts,
		backoffBase: defaultBackoffBase,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Invoke sends prompt to modelName and returns the first choice's text.
// Cancellation of ctx aborts immediately, including mid-backoff. Failures
// surface as *model.UpstreamError: Exhausted=true when retries ran out,
// Exhausted=false for a non-retryable upstream rejection.
func (c *Client) Invoke(ctx context.Context, prompt, modelName string) (string, error) {
	var out string
	var lastStatus int
	var lastBody string
	attempts := 0

	backoff := retry.WithMaxRetries(uint64(c.maxAttempts-1), retry.NewExponential(c.backoffBase))
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		attempts++
		resp, err := c.api.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
			Model: modelName,
			Messages: []openai.ChatCompletionMessage{
				{Role: openai.ChatMessageRoleUser, Content: prompt},
			},
		})
		if err != nil {
			status, body := classify(err)
			lastStatus, lastBody = status, body
			if status >= 400 && status < 500 {
				return &model.UpstreamError{StatusCode: status, Body: body, Attempts: attempts}
			}
			// 5xx, or no HTTP status at all (connection reset, DNS, ...).
			return retry.RetryableError(err)
		}
		if len(resp.Choices) == 0 {
			lastStatus, lastBody = 200, "response contained no choices"
			return &model.UpstreamError{StatusCode: 200, Body: lastBody, Attempts: attempts}
		}
		out = resp.Choices[0].Message.Content
		return nil
	})
	if err != nil {
		var upstream *model.UpstreamError
		if errors.As(err, &upstream) {
			return "", upstream
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return "", fmt.Errorf("model invocation cancelled: %w", ctxErr)
		}
		return "", &model.UpstreamError{
			StatusCode: lastStatus,
			Body:       lastBody,
			Attempts:   attempts,
			Exhausted:  true,
		}
	}
	return out, nil
}

// classify digs the HTTP status and response body out of go-openai's two
// error shapes. Status 0 means the request never got an HTTP response.
func classify(err error) (int, string) {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return apiErr.HTTPStatusCode, apiErr.Message
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		return reqErr.HTTPStatusCode, reqErr.Error()
	}
	return 0, err.Error()
}
