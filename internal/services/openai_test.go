package services_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"taskflow/backend/internal/config"
	"taskflow/backend/internal/models"
	"taskflow/backend/internal/services"
)

func openAITestConfig(baseURL string) config.OpenAIConfig {
	return config.OpenAIConfig{
		APIKey:      "test-key",
		BaseURL:     baseURL,
		Model:       "gpt-4o-mini",
		Timeout:     5 * time.Second,
		MaxTokens:   1024,
		Temperature: 0.7,
	}
}

func chatReply(content string) map[string]interface{} {
	return map[string]interface{}{
		"choices": []map[string]interface{}{
			{"message": map[string]interface{}{"content": content}},
		},
	}
}

func TestGenerateTasksParsesDrafts(t *testing.T) {
	var gotAuth string
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		if r.URL.Path != "/v1/chat/completions" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		content := `Here are your tasks:
[
  {"title": "Add login rate limit", "description": "Throttle repeated failures", "priority": "high", "estimated_hours": 6, "performance_delta": 3},
  {"title": "Write API docs", "description": "Document the task endpoints", "priority": "weird", "estimated_hours": 4, "performance_delta": 1}
]`
		json.NewEncoder(w).Encode(chatReply(content))
	}))
	defer upstream.Close()

	svc := services.NewOpenAIService(openAITestConfig(upstream.URL))
	drafts, err := svc.GenerateTasks(context.Background(), "harden auth", services.GenerationContext{TeamSize: 3})
	if err != nil {
		t.Fatalf("GenerateTasks returned error: %v", err)
	}

	if gotAuth != "Bearer test-key" {
		t.Errorf("expected bearer auth header, got %q", gotAuth)
	}
	if len(drafts) != 2 {
		t.Fatalf("expected 2 drafts, got %d", len(drafts))
	}
	if drafts[0].Title != "Add login rate limit" {
		t.Errorf("unexpected first draft title %q", drafts[0].Title)
	}
	if drafts[1].Priority != models.PriorityMedium {
		t.Errorf("invalid priority should coerce to medium, got %q", drafts[1].Priority)
	}
}

func TestGenerateTasksUpstreamError(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "rate limited", http.StatusTooManyRequests)
	}))
	defer upstream.Close()

	svc := services.NewOpenAIService(openAITestConfig(upstream.URL))
	drafts, err := svc.GenerateTasks(context.Background(), "anything", services.GenerationContext{})
	if err == nil {
		t.Fatal("expected error from failing upstream, got none")
	}
	if !errors.Is(err, services.ErrUpstreamUnavailable) {
		t.Errorf("expected ErrUpstreamUnavailable, got %v", err)
	}
	if drafts != nil {
		t.Errorf("drafts must be nil on failure, got %v", drafts)
	}
}

func TestGenerateTasksUnreachableUpstream(t *testing.T) {
	svc := services.NewOpenAIService(openAITestConfig("http://127.0.0.1:1"))
	_, err := svc.GenerateTasks(context.Background(), "anything", services.GenerationContext{})
	if !errors.Is(err, services.ErrUpstreamUnavailable) {
		t.Errorf("expected ErrUpstreamUnavailable, got %v", err)
	}
}

func TestGenerateTasksUnparsableReply(t *testing.T) {
	cases := map[string]string{
		"no array":     "I cannot help with that.",
		"broken json":  "[{\"title\": ",
		"empty titles": `[{"description": "no title here"}]`,
	}
	for name, content := range cases {
		t.Run(name, func(t *testing.T) {
			upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				json.NewEncoder(w).Encode(chatReply(content))
			}))
			defer upstream.Close()

			svc := services.NewOpenAIService(openAITestConfig(upstream.URL))
			_, err := svc.GenerateTasks(context.Background(), "anything", services.GenerationContext{})
			if !errors.Is(err, services.ErrUnparsableResponse) {
				t.Errorf("expected ErrUnparsableResponse, got %v", err)
			}
		})
	}
}

func TestGenerateTasksNotConfigured(t *testing.T) {
	cfg := openAITestConfig("http://example.invalid")
	cfg.APIKey = ""
	svc := services.NewOpenAIService(cfg)

	if svc.Available() {
		t.Error("service without API key must not report available")
	}
	_, err := svc.GenerateTasks(context.Background(), "anything", services.GenerationContext{})
	if !errors.Is(err, services.ErrNotConfigured) {
		t.Errorf("expected ErrNotConfigured, got %v", err)
	}
}
