package llm

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func TestAnthropicComplete(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("x-api-key") != "test-key" {
			t.Errorf("x-api-key = %q", r.Header.Get("x-api-key"))
		}
		if r.Header.Get("anthropic-version") == "" {
			t.Error("missing anthropic-version header")
		}

		var payload struct {
			Model     string `json:"model"`
			MaxTokens int    `json:"max_tokens"`
			Messages  []struct {
				Role    string `json:"role"`
				Content string `json:"content"`
			} `json:"messages"`
		}
		if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
			t.Errorf("decode request: %v", err)
		}
		if payload.Model != "claude-sonnet-4-5" || payload.MaxTokens != 1024 {
			t.Errorf("payload = %+v", payload)
		}
		if len(payload.Messages) != 1 || !strings.Contains(payload.Messages[0].Content, "analyze") {
			t.Errorf("messages = %+v", payload.Messages)
		}

		_ = json.NewEncoder(w).Encode(map[string]any{
			"content": []map[string]string{
				{"type": "text", "text": "SUMMARY: a reply"},
			},
		})
	}))
	defer srv.Close()

	client := NewAnthropicClient(srv.URL, "claude-sonnet-4-5", "test-key", 5*time.Second)
	got, err := client.Complete(context.Background(), "please analyze this", 1024)
	if err != nil {
		t.Fatalf("complete: %v", err)
	}
	if got != "SUMMARY: a reply" {
		t.Errorf("reply = %q", got)
	}
}

func TestAnthropicError(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = w.Write([]byte(`{"error":{"type":"rate_limit_error"}}`))
	}))
	defer srv.Close()

	client := NewAnthropicClient(srv.URL, "claude-sonnet-4-5", "test-key", 5*time.Second)
	_, err := client.Complete(context.Background(), "prompt", 100)
	if err == nil {
		t.Fatal("expected an error")
	}
	if !strings.Contains(err.Error(), "rate_limit_error") {
		t.Errorf("error should carry body snippet, got %v", err)
	}
}

func TestAnthropicMisconfigured(t *testing.T) {
	t.Parallel()

	client := NewAnthropicClient("", "model", "", time.Second)
	if _, err := client.Complete(context.Background(), "prompt", 100); err == nil {
		t.Fatal("expected error with empty api key")
	}
}

func TestOpenAIComplete(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Authorization"); got != "Bearer test-key" {
			t.Errorf("authorization = %q", got)
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"choices": []map[string]any{
				{"message": map[string]string{"content": "SUMMARY: done"}},
			},
		})
	}))
	defer srv.Close()

	client := NewOpenAIClient(srv.URL, "gpt-4o", "test-key", 5*time.Second)
	got, err := client.Complete(context.Background(), "prompt", 500)
	if err != nil {
		t.Fatalf("complete: %v", err)
	}
	if got != "SUMMARY: done" {
		t.Errorf("reply = %q", got)
	}
}

func TestOpenAIEmptyChoices(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{"choices": []any{}})
	}))
	defer srv.Close()

	client := NewOpenAIClient(srv.URL, "gpt-4o", "test-key", 5*time.Second)
	if _, err := client.Complete(context.Background(), "prompt", 500); err == nil {
		t.Fatal("expected error on empty choices")
	}
}
