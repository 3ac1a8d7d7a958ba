// Package llm implements the grading oracle on top of an
// OpenAI-compatible chat completion API.
package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"strconv"
	"time"

	openai "github.com/sashabaranov/go-openai"
)

// ErrBadPayload marks a model response that could not be parsed as the
// expected JSON structure. Callers can distinguish it from transport
// errors with errors.Is.
var ErrBadPayload = errors.New("model response is not the expected JSON structure")

// Client wraps an OpenAI-compatible API client with strict JSON parsing
// and bounded retry on transient errors.
type Client struct {
	api        *openai.Client
	model      string
	maxRetries int
	baseDelay  time.Duration
}

// New creates a new LLM client. An empty baseURL uses the default
// OpenAI endpoint; any OpenAI-compatible server works.
func New(baseURL, apiKey, modelName string) *Client {
	config := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		config.BaseURL = baseURL
	}
	return &Client{
		api:        openai.NewClientWithConfig(config),
		model:      modelName,
		maxRetries: 5,
		baseDelay:  2 * time.Second,
	}
}

// Ping verifies the endpoint is reachable and credentials are accepted.
func (c *Client) Ping(ctx context.Context) error {
	if _, err := c.api.ListModels(ctx); err != nil {
		return fmt.Errorf("LLM endpoint check: %w", err)
	}
	return nil
}

// GenerateJSON sends a system and user prompt and returns the raw JSON
// object from the model's reply. Transient API errors (rate limits,
// server errors) are retried with exponential backoff, honoring a
// provider-suggested delay when the error message carries one; after
// the retry budget is exhausted the last error is returned.
func (c *Client) GenerateJSON(ctx context.Context, systemPrompt, userPrompt string, temperature float32) ([]byte, error) {
	req := openai.ChatCompletionRequest{
		Model: c.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: systemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: userPrompt},
		},
		ResponseFormat: &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		},
		Temperature: temperature,
	}

	var lastErr error
	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if attempt > 0 {
			delay := c.backoffDelay(attempt, lastErr)
			slog.Warn("retrying LLM call", "attempt", attempt, "delay", delay, "error", lastErr)
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}

		resp, err := c.api.CreateChatCompletion(ctx, req)
		if err != nil {
			if retryable(err) {
				lastErr = err
				continue
			}
			return nil, fmt.Errorf("LLM API call: %w", err)
		}
		if len(resp.Choices) == 0 {
			return nil, fmt.Errorf("%w: model returned no choices", ErrBadPayload)
		}

		raw := resp.Choices[0].Message.Content
		slog.Debug("LLM response", "raw", raw)
		return ParsePayload(raw)
	}

	return nil, fmt.Errorf("LLM API call failed after %d retries: %w", c.maxRetries, lastErr)
}

// retryable reports whether an API error is worth retrying: rate limits
// and server-side failures, nothing else.
func retryable(err error) bool {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return apiErr.HTTPStatusCode == 429 || apiErr.HTTPStatusCode >= 500
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		return reqErr.HTTPStatusCode == 429 || reqErr.HTTPStatusCode >= 500
	}
	return false
}

var suggestedDelayRegex = regexp.MustCompile(`(?i)retry(?:ing)?\s+(?:after|in)\s+([0-9.]+)\s*s`)

// backoffDelay computes the wait before the given attempt. A delay
// suggested in the provider's error message overrides the exponential
// schedule.
func (c *Client) backoffDelay(attempt int, lastErr error) time.Duration {
	if lastErr != nil {
		if m := suggestedDelayRegex.FindStringSubmatch(lastErr.Error()); m != nil {
			if secs, err := strconv.ParseFloat(m[1], 64); err == nil && secs > 0 {
				return time.Duration(secs * float64(time.Second))
			}
		}
	}
	return c.baseDelay * time.Duration(1<<(attempt-1))
}

var jsonObjectRegex = regexp.MustCompile(`\{[\s\S]*\}`)

// fenceRegexes strip a leading/trailing markdown code fence that some
// models wrap around JSON despite the response format hint.
var (
	openFenceRegex  = regexp.MustCompile("^```(?:json)?\\s*")
	closeFenceRegex = regexp.MustCompile("\\s*```$")
)

// ParsePayload extracts a JSON object from a model reply. It tolerates
// markdown fences and leading chatter, but anything that does not
// contain a top-level JSON object fails with ErrBadPayload.
func ParsePayload(text string) ([]byte, error) {
	candidate := openFenceRegex.ReplaceAllString(closeFenceRegex.ReplaceAllString(text, ""), "")
	if payload, ok := asJSONObject(candidate); ok {
		return payload, nil
	}

	if m := jsonObjectRegex.FindString(text); m != "" {
		if payload, ok := asJSONObject(m); ok {
			return payload, nil
		}
	}

	return nil, fmt.Errorf("%w: %q", ErrBadPayload, truncateForError(text))
}

func asJSONObject(s string) ([]byte, bool) {
	var obj map[string]json.RawMessage
	if err := json.Unmarshal([]byte(s), &obj); err != nil {
		return nil, false
	}
	return []byte(s), true
}

func truncateForError(s string) string {
	const limit = 200
	if len(s) > limit {
		return s[:limit] + "..."
	}
	return s
}
