package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"taskflow/backend/internal/config"
	"taskflow/backend/internal/models"
)

// DeliveryResult reports the outcome of a single send attempt. There is no
// retry or queueing; the caller learns the result synchronously.
type DeliveryResult struct {
	Delivered bool  `json:"delivered"`
	MessageID int64 `json:"message_id,omitempty"`
}

type BotInfo struct {
	ID       int64  `json:"id"`
	Username string `json:"username"`
}

type NotificationService interface {
	Available() bool
	Send(ctx context.Context, message, target string) (*DeliveryResult, error)
	TestConnection(ctx context.Context) (*BotInfo, error)
}

type TelegramService struct {
	cfg    config.TelegramConfig
	client *http.Client
}

func NewTelegramService(cfg config.TelegramConfig) *TelegramService {
	return &TelegramService{
		cfg:    cfg,
		client: &http.Client{Timeout: cfg.Timeout},
	}
}

func (s *TelegramService) Available() bool {
	return s.cfg.BotToken != "" && s.cfg.ChatID != ""
}

type telegramResponse struct {
	OK     bool `json:"ok"`
	Result struct {
		MessageID int64  `json:"message_id"`
		ID        int64  `json:"id"`
		Username  string `json:"username"`
	} `json:"result"`
	Description string `json:"description"`
}

// Send pushes a message through the bot API in one attempt. An empty target
// falls back to the configured chat id.
func (s *TelegramService) Send(ctx context.Context, message, target string) (*DeliveryResult, error) {
	if s.cfg.BotToken == "" {
		return nil, ErrNotConfigured
	}
	chatID := target
	if chatID == "" {
		chatID = s.cfg.ChatID
	}
	if chatID == "" {
		return nil, ErrNotConfigured
	}

	payload, err := json.Marshal(map[string]interface{}{
		"chat_id":    chatID,
		"text":       message,
		"parse_mode": "MarkdownV2",
	})
	if err != nil {
		return nil, err
	}

	result, err := s.call(ctx, "sendMessage", payload)
	if err != nil {
		return nil, err
	}

	return &DeliveryResult{Delivered: true, MessageID: result.Result.MessageID}, nil
}

// TestConnection round-trips getMe to confirm the bot token works.
func (s *TelegramService) TestConnection(ctx context.Context) (*BotInfo, error) {
	if s.cfg.BotToken == "" {
		return nil, ErrNotConfigured
	}

	result, err := s.call(ctx, "getMe", nil)
	if err != nil {
		return nil, err
	}

	return &BotInfo{ID: result.Result.ID, Username: result.Result.Username}, nil
}

func (s *TelegramService) call(ctx context.Context, method string, payload []byte) (*telegramResponse, error) {
	url := fmt.Sprintf("%s/bot%s/%s", strings.TrimRight(s.cfg.BaseURL, "/"), s.cfg.BotToken, method)

	var req *http.Request
	var err error
	if payload != nil {
		req, err = http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
		if req != nil {
			req.Header.Set("Content-Type", "application/json")
		}
	} else {
		req, err = http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	}
	if err != nil {
		return nil, err
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUpstreamUnavailable, err)
	}
	defer resp.Body.Close()

	var result telegramResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnparsableResponse, err)
	}
	if resp.StatusCode/100 != 2 || !result.OK {
		reason := result.Description
		if reason == "" {
			reason = fmt.Sprintf("status %d", resp.StatusCode)
		}
		return nil, fmt.Errorf("%w: %s", ErrUpstreamUnavailable, reason)
	}

	return &result, nil
}

// FormatAssignment builds the MarkdownV2 message sent when a task is
// assigned.
func FormatAssignment(task *models.Task, assignee *models.User) string {
	var sb strings.Builder
	sb.WriteString("*Task assigned*\n\n")
	fmt.Fprintf(&sb, "*Task:* %s\n", EscapeMarkdown(task.Title))
	fmt.Fprintf(&sb, "*Assigned to:* @%s\n", EscapeMarkdown(assignee.Username))
	fmt.Fprintf(&sb, "*Priority:* %s", EscapeMarkdown(task.Priority))
	if task.DueDate != nil {
		fmt.Fprintf(&sb, "\n*Due:* %s", EscapeMarkdown(task.DueDate.Format("2006-01-02 15:04")))
	}
	return sb.String()
}

func FormatCompletion(task *models.Task, assignee *models.User) string {
	var sb strings.Builder
	sb.WriteString("*Task completed*\n\n")
	fmt.Fprintf(&sb, "*Task:* %s\n", EscapeMarkdown(task.Title))
	fmt.Fprintf(&sb, "*Completed by:* @%s\n", EscapeMarkdown(assignee.Username))
	fmt.Fprintf(&sb, "*Score delta:* %s", EscapeMarkdown(fmt.Sprintf("%+.1f", task.PerformanceDelta)))
	return sb.String()
}

func FormatStatusChange(task *models.Task, oldStatus string) string {
	var sb strings.Builder
	sb.WriteString("*Task status update*\n\n")
	fmt.Fprintf(&sb, "*Task:* %s\n", EscapeMarkdown(task.Title))
	fmt.Fprintf(&sb, "*Status:* %s to %s",
		EscapeMarkdown(strings.ReplaceAll(oldStatus, "_", " ")),
		EscapeMarkdown(strings.ReplaceAll(task.Status, "_", " ")))
	return sb.String()
}

// EscapeMarkdown escapes the characters Telegram's MarkdownV2 parser treats
// as syntax.
func EscapeMarkdown(text string) string {
	const special = `_*[]()~` + "`" + `>#+-=|{}.!`
	var sb strings.Builder
	for _, r := range text {
		if strings.ContainsRune(special, r) {
			sb.WriteByte('\\')
		}
		sb.WriteRune(r)
	}
	return sb.String()
}
