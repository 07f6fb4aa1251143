package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"taskflow/backend/internal/config"
	"taskflow/backend/internal/models"
)

// TaskDraft is a structured suggestion returned by the generation proxy.
// Drafts are relayed to the caller and never persisted here.
type TaskDraft struct {
	Title            string  `json:"title"`
	Description      string  `json:"description"`
	Priority         string  `json:"priority"`
	EstimatedHours   float64 `json:"estimated_hours"`
	PerformanceDelta float64 `json:"performance_delta"`
	Reasoning        string  `json:"reasoning,omitempty"`
}

// GenerationContext is what the proxy folds into the prompt alongside the
// caller's request.
type GenerationContext struct {
	ProjectContext string
	OpenTasks      []models.Task
	TeamSize       int
	AverageScore   float64
}

type GenerationService interface {
	Available() bool
	GenerateTasks(ctx context.Context, prompt string, genCtx GenerationContext) ([]TaskDraft, error)
}

type OpenAIService struct {
	cfg    config.OpenAIConfig
	client *http.Client
}

func NewOpenAIService(cfg config.OpenAIConfig) *OpenAIService {
	return &OpenAIService{
		cfg:    cfg,
		client: &http.Client{Timeout: cfg.Timeout},
	}
}

func (s *OpenAIService) Available() bool {
	return s.cfg.APIKey != ""
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	MaxTokens   int           `json:"max_tokens,omitempty"`
	Temperature float64       `json:"temperature,omitempty"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

// GenerateTasks calls the chat-completions endpoint and parses the reply
// into drafts. Upstream failure or an unusable reply is always an explicit
// error; an empty result never stands in for failure.
func (s *OpenAIService) GenerateTasks(ctx context.Context, prompt string, genCtx GenerationContext) ([]TaskDraft, error) {
	if !s.Available() {
		return nil, ErrNotConfigured
	}

	body := chatRequest{
		Model: s.cfg.Model,
		Messages: []chatMessage{
			{
				Role:    "system",
				Content: "You are a project manager generating actionable tasks for a software team. Output a valid JSON array only, no markdown fences.",
			},
			{Role: "user", Content: buildGenerationPrompt(prompt, genCtx)},
		},
		MaxTokens:   s.cfg.MaxTokens,
		Temperature: s.cfg.Temperature,
	}

	payload, err := json.Marshal(body)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		strings.TrimRight(s.cfg.BaseURL, "/")+"/v1/chat/completions", bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+s.cfg.APIKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUpstreamUnavailable, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: reading response: %v", ErrUpstreamUnavailable, err)
	}

	if resp.StatusCode/100 != 2 {
		return nil, fmt.Errorf("%w: status %d", ErrUpstreamUnavailable, resp.StatusCode)
	}

	var chat chatResponse
	if err := json.Unmarshal(raw, &chat); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnparsableResponse, err)
	}
	if len(chat.Choices) == 0 {
		return nil, fmt.Errorf("%w: no choices in reply", ErrUnparsableResponse)
	}

	drafts, err := parseDrafts(chat.Choices[0].Message.Content)
	if err != nil {
		return nil, err
	}
	return drafts, nil
}

func buildGenerationPrompt(prompt string, genCtx GenerationContext) string {
	var sb strings.Builder

	projectContext := genCtx.ProjectContext
	if projectContext == "" {
		projectContext = "general software development"
	}

	fmt.Fprintf(&sb, "Generate 3-5 actionable tasks for a team working on: %s\n\n", projectContext)
	fmt.Fprintf(&sb, "Request: %s\n\n", prompt)
	fmt.Fprintf(&sb, "Team size: %d, average performance score: %.1f\n\n", genCtx.TeamSize, genCtx.AverageScore)

	if len(genCtx.OpenTasks) > 0 {
		sb.WriteString("Tasks already in flight:\n")
		limit := len(genCtx.OpenTasks)
		if limit > 10 {
			limit = 10
		}
		for _, task := range genCtx.OpenTasks[:limit] {
			fmt.Fprintf(&sb, "- %s (%s, %s priority)\n", task.Title, task.Status, task.Priority)
		}
		sb.WriteString("\n")
	}

	sb.WriteString(`Respond with a JSON array of objects shaped like:
[
  {
    "title": "Task title",
    "description": "Detailed description with acceptance criteria",
    "priority": "low|medium|high|urgent",
    "estimated_hours": 8,
    "performance_delta": 5,
    "reasoning": "Why this task matters now"
  }
]
Tasks should be specific, scoped to 1-3 days, and complement the work in flight.`)

	return sb.String()
}

// parseDrafts extracts the JSON array from the model's reply. Models wrap
// output in prose often enough that we search for the array brackets rather
// than unmarshal the whole content.
func parseDrafts(content string) ([]TaskDraft, error) {
	start := strings.Index(content, "[")
	end := strings.LastIndex(content, "]")
	if start == -1 || end == -1 || end < start {
		return nil, fmt.Errorf("%w: no JSON array in reply", ErrUnparsableResponse)
	}

	var drafts []TaskDraft
	if err := json.Unmarshal([]byte(content[start:end+1]), &drafts); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnparsableResponse, err)
	}

	cleaned := drafts[:0]
	for _, d := range drafts {
		if d.Title == "" {
			continue
		}
		if !models.ValidPriority(d.Priority) {
			d.Priority = models.PriorityMedium
		}
		cleaned = append(cleaned, d)
	}
	if len(cleaned) == 0 {
		return nil, fmt.Errorf("%w: reply contained no usable drafts", ErrUnparsableResponse)
	}

	return cleaned, nil
}
