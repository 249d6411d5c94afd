// Package telegram is a thin Bot API client. It implements the notifier's
// Messenger and the registry's Authorizer.
package telegram

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"

	"github.com/Awuah-B/report-bot/internal/adapter"
	"github.com/Awuah-B/report-bot/internal/config"
	"github.com/Awuah-B/report-bot/internal/domain"
)

// chatMemberResponse is the getChatMember envelope
type chatMemberResponse struct {
	OK     bool `json:"ok"`
	Result struct {
		Status string `json:"status"`
	} `json:"result"`
	Description string `json:"description"`
}

// Client talks to the Telegram Bot API over the shared HTTP adapter.
type Client struct {
	httpClient adapter.HTTPClient
	baseURL    string
	token      string
}

// NewClient creates a Telegram Bot API client
func NewClient(httpClient adapter.HTTPClient, cfg config.TelegramConfig) *Client {
	return &Client{
		httpClient: httpClient,
		baseURL:    strings.TrimRight(cfg.APIBaseURL, "/"),
		token:      cfg.BotToken,
	}
}

// Send delivers a text message to a chat. A chat that no longer exists, has
// blocked the bot, or has kicked it is reported as domain.ErrTargetGone so
// the caller can retire the target instead of retrying.
func (c *Client) Send(ctx context.Context, chatID, text string) error {
	payload, err := json.Marshal(map[string]any{
		"chat_id":    chatID,
		"text":       text,
		"parse_mode": "HTML",
	})
	if err != nil {
		return fmt.Errorf("failed to encode sendMessage payload: %w", err)
	}

	_, err = c.httpClient.Post(ctx, c.methodURL("sendMessage"), "application/json", bytes.NewReader(payload))
	if err != nil {
		if isTargetGone(err.Error()) {
			return fmt.Errorf("%w: chat %s", domain.ErrTargetGone, chatID)
		}
		return fmt.Errorf("failed to send message to chat %s: %w", chatID, err)
	}

	return nil
}

// IsAdmin reports whether actorID is a creator or administrator of chatID.
// In a private chat the Bot API has no member roles; the chat owner is the
// actor, so actorID == chatID is treated as admin.
func (c *Client) IsAdmin(ctx context.Context, chatID, actorID string) (bool, error) {
	if chatID == actorID {
		return true, nil
	}

	params := url.Values{}
	params.Set("chat_id", chatID)
	params.Set("user_id", actorID)

	body, err := c.httpClient.GetRaw(ctx, c.methodURL("getChatMember"), params, nil)
	if err != nil {
		if isTargetGone(err.Error()) {
			return false, fmt.Errorf("%w: chat %s", domain.ErrTargetGone, chatID)
		}
		return false, fmt.Errorf("failed to get chat member: %w", err)
	}

	var resp chatMemberResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return false, fmt.Errorf("failed to decode getChatMember response: %w", err)
	}
	if !resp.OK {
		return false, fmt.Errorf("getChatMember rejected: %s", resp.Description)
	}

	switch resp.Result.Status {
	case "creator", "administrator":
		return true, nil
	}
	return false, nil
}

func (c *Client) methodURL(method string) string {
	return fmt.Sprintf("%s/bot%s/%s", c.baseURL, c.token, method)
}

// isTargetGone matches the Bot API error descriptions that mean the chat is
// permanently unreachable. The API reports these inside non-200 response
// bodies, which the HTTP adapter folds into the error text.
func isTargetGone(errText string) bool {
	errText = strings.ToLower(errText)
	for _, marker := range []string{
		"chat not found",
		"bot was blocked",
		"bot was kicked",
		"user is deactivated",
	} {
		if strings.Contains(errText, marker) {
			return true
		}
	}
	return false
}
