package llm

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	openai "github.com/sashabaranov/go-openai"
)

func TestParsePayload(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		wantErr bool
	}{
		{"plain object", `{"exam_id": "s1"}`, false},
		{"fenced json", "```json\n{\"exam_id\": \"s1\"}\n```", false},
		{"fenced without language", "```\n{\"exam_id\": \"s1\"}\n```", false},
		{"leading chatter", "Here is the result:\n{\"exam_id\": \"s1\"}", false},
		{"empty", "", true},
		{"not json", "the exam looks fine to me", true},
		{"top-level array", `[1, 2, 3]`, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			payload, err := ParsePayload(tt.input)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("expected error, got payload %s", payload)
				}
				if !errors.Is(err, ErrBadPayload) {
					t.Errorf("error should wrap ErrBadPayload, got %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			var obj map[string]any
			if err := json.Unmarshal(payload, &obj); err != nil {
				t.Errorf("payload is not a JSON object: %v", err)
			}
			if obj["exam_id"] != "s1" {
				t.Errorf("exam_id = %v, want s1", obj["exam_id"])
			}
		})
	}
}

func TestRetryable(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"rate limited", &openai.APIError{HTTPStatusCode: 429}, true},
		{"server error", &openai.APIError{HTTPStatusCode: 503}, true},
		{"bad request", &openai.APIError{HTTPStatusCode: 400}, false},
		{"unauthorized", &openai.APIError{HTTPStatusCode: 401}, false},
		{"request error 500", &openai.RequestError{HTTPStatusCode: 500}, true},
		{"plain error", errors.New("boom"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := retryable(tt.err); got != tt.want {
				t.Errorf("retryable(%v) = %v, want %v", tt.err, got, tt.want)
			}
		})
	}
}

func TestBackoffDelay(t *testing.T) {
	c := &Client{baseDelay: time.Second}

	t.Run("exponential schedule", func(t *testing.T) {
		wants := []time.Duration{time.Second, 2 * time.Second, 4 * time.Second}
		for i, want := range wants {
			if got := c.backoffDelay(i+1, errors.New("boom")); got != want {
				t.Errorf("attempt %d: delay = %v, want %v", i+1, got, want)
			}
		}
	})

	t.Run("provider suggested delay wins", func(t *testing.T) {
		err := errors.New("rate limit exceeded, please retry after 7s")
		if got := c.backoffDelay(1, err); got != 7*time.Second {
			t.Errorf("delay = %v, want 7s", got)
		}
	})

	t.Run("fractional suggested delay", func(t *testing.T) {
		err := errors.New("throttled, retrying in 1.5 s")
		if got := c.backoffDelay(3, err); got != 1500*time.Millisecond {
			t.Errorf("delay = %v, want 1.5s", got)
		}
	})
}

// newFakeServer returns a client pointed at a fake OpenAI-compatible
// endpoint that replies to chat completions with the given content.
func newFakeServer(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	c := New(srv.URL+"/v1", "test-key", "test-model")
	c.baseDelay = time.Millisecond
	return c
}

func completionReply(t *testing.T, w http.ResponseWriter, content string) {
	t.Helper()
	resp := map[string]any{
		"id":     "chatcmpl-test",
		"object": "chat.completion",
		"choices": []map[string]any{
			{
				"index":         0,
				"message":       map[string]any{"role": "assistant", "content": content},
				"finish_reason": "stop",
			},
		},
	}
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		t.Errorf("encode fake reply: %v", err)
	}
}

func TestGenerateJSONRetriesRateLimit(t *testing.T) {
	calls := 0
	c := newFakeServer(t, func(w http.ResponseWriter, r *http.Request) {
		calls++
		if calls < 3 {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusTooManyRequests)
			_, _ = w.Write([]byte(`{"error": {"message": "rate limited", "type": "rate_limit_error"}}`))
			return
		}
		completionReply(t, w, `{"exam_id": "s1"}`)
	})

	payload, err := c.GenerateJSON(context.Background(), "system", "user", 0)
	if err != nil {
		t.Fatalf("GenerateJSON: %v", err)
	}
	if calls != 3 {
		t.Errorf("expected 3 calls (2 retries), got %d", calls)
	}
	if string(payload) != `{"exam_id": "s1"}` {
		t.Errorf("payload = %s", payload)
	}
}

func TestGenerateJSONExhaustsRetries(t *testing.T) {
	c := newFakeServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = w.Write([]byte(`{"error": {"message": "rate limited", "type": "rate_limit_error"}}`))
	})
	c.maxRetries = 2

	_, err := c.GenerateJSON(context.Background(), "system", "user", 0)
	if err == nil {
		t.Fatal("expected error after retry budget exhausted")
	}
}

func TestGenerateJSONBadPayload(t *testing.T) {
	c := newFakeServer(t, func(w http.ResponseWriter, r *http.Request) {
		completionReply(t, w, "I could not grade this exam, sorry.")
	})

	_, err := c.GenerateJSON(context.Background(), "system", "user", 0)
	if !errors.Is(err, ErrBadPayload) {
		t.Errorf("expected ErrBadPayload, got %v", err)
	}
}

func TestGenerateJSONFatalOnClientError(t *testing.T) {
	calls := 0
	c := newFakeServer(t, func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error": {"message": "bad request", "type": "invalid_request_error"}}`))
	})

	_, err := c.GenerateJSON(context.Background(), "system", "user", 0)
	if err == nil {
		t.Fatal("expected error")
	}
	if calls != 1 {
		t.Errorf("client errors must not be retried, got %d calls", calls)
	}
}
