package ai

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestOpenAIProvider_IsAvailable(t *testing.T) {
	tests := []struct {
		name   string
		apiKey string
		model  string
		want   bool
	}{
		{"available with api key", "test-api-key", "llama-3.3-70b-versatile", true},
		{"not available without api key", "", "llama-3.3-70b-versatile", false},
		{"not available without model", "test-api-key", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := NewOpenAIProvider(OpenAIConfig{Name: "groq", APIKey: tt.apiKey, Model: tt.model})
			if got := p.IsAvailable(); got != tt.want {
				t.Errorf("IsAvailable() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestOpenAIProvider_Name(t *testing.T) {
	if got := NewOpenAIProvider(OpenAIConfig{APIKey: "k", Model: "m"}).Name(); got != "openai" {
		t.Errorf("Name() = %v, want openai", got)
	}
	if got := NewOpenAIProvider(OpenAIConfig{Name: "groq"}).Name(); got != "groq" {
		t.Errorf("Name() = %v, want groq", got)
	}
}

func TestConvertMessage(t *testing.T) {
	sys, err := convertMessage(Message{Role: RoleSystem, Content: "policy"})
	if err != nil || sys.OfSystem == nil {
		t.Fatalf("system: %v", err)
	}
	user, err := convertMessage(Message{Role: RoleUser, Content: "hi"})
	if err != nil || user.OfUser == nil {
		t.Fatalf("user: %v", err)
	}
	asst, err := convertMessage(Message{Role: RoleAssistant, Content: "hello"})
	if err != nil || asst.OfAssistant == nil {
		t.Fatalf("assistant: %v", err)
	}
	if _, err := convertMessage(Message{Role: "tool"}); err == nil {
		t.Fatal("expected error for unknown role")
	}
}

func completionServer(t *testing.T, content string, seen *map[string]any) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/chat/completions" {
			http.NotFound(w, r)
			return
		}
		if seen != nil {
			_ = json.NewDecoder(r.Body).Decode(seen)
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"id":      "chatcmpl-1",
			"object":  "chat.completion",
			"created": 1700000000,
			"model":   "llama-3.3-70b-versatile",
			"choices": []map[string]any{{
				"index":         0,
				"finish_reason": "stop",
				"message":       map[string]any{"role": "assistant", "content": content},
			}},
			"usage": map[string]any{"prompt_tokens": 10, "completion_tokens": 5, "total_tokens": 15},
		})
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestOpenAIProvider_Complete(t *testing.T) {
	var body map[string]any
	srv := completionServer(t, "  You can apply on the portal.  ", &body)
	p := NewOpenAIProvider(OpenAIConfig{
		Name:    "groq",
		APIKey:  "test",
		Model:   "llama-3.3-70b-versatile",
		BaseURL: srv.URL,
		Timeout: 2 * time.Second,
	})

	got, err := p.Complete(context.Background(), &CompletionRequest{
		Messages: []Message{
			{Role: RoleSystem, Content: "policy"},
			{Role: RoleUser, Content: "How do I apply?"},
		},
		MaxTokens:   150,
		Temperature: 0.7,
	})
	if err != nil {
		t.Fatalf("Complete() error = %v", err)
	}
	if got != "You can apply on the portal." {
		t.Errorf("Complete() = %q", got)
	}
	if body["model"] != "llama-3.3-70b-versatile" {
		t.Errorf("unexpected model in request: %v", body["model"])
	}
	if msgs, _ := body["messages"].([]any); len(msgs) != 2 {
		t.Errorf("expected 2 messages sent, got %v", body["messages"])
	}
}

func TestOpenAIProvider_CompleteEmpty(t *testing.T) {
	srv := completionServer(t, "   ", nil)
	p := NewOpenAIProvider(OpenAIConfig{APIKey: "test", Model: "m", BaseURL: srv.URL})

	_, err := p.Complete(context.Background(), &CompletionRequest{
		Messages: []Message{{Role: RoleUser, Content: "hi"}},
	})
	if !errors.Is(err, ErrEmptyCompletion) {
		t.Fatalf("expected ErrEmptyCompletion, got %v", err)
	}
}

func TestOpenAIProvider_CompleteServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":{"message":"overloaded"}}`, http.StatusServiceUnavailable)
	}))
	defer srv.Close()
	p := NewOpenAIProvider(OpenAIConfig{APIKey: "test", Model: "m", BaseURL: srv.URL})

	if _, err := p.Complete(context.Background(), &CompletionRequest{
		Messages: []Message{{Role: RoleUser, Content: "hi"}},
	}); err == nil {
		t.Fatal("expected error on 503")
	}
}
