// Package telegram sends notifications and handles bot commands over the
// Telegram Bot API.
package telegram

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/codeGROOVE-dev/retry"
)

// DefaultAPIBaseURL is the Telegram Bot API origin.
const DefaultAPIBaseURL = "https://api.telegram.org"

// ChatNotFoundError indicates the chat no longer exists or blocked the
// bot; the subscriber should be pruned rather than retried.
type ChatNotFoundError struct {
	ChatID int64
}

func (e *ChatNotFoundError) Error() string {
	return fmt.Sprintf("chat not found: %d", e.ChatID)
}

// IsChatNotFound checks if an error means the chat is gone.
func IsChatNotFound(err error) bool {
	var cnf *ChatNotFoundError
	return errors.As(err, &cnf)
}

// Update is a single incoming event from getUpdates. Only message updates
// carry commands; everything else is ignored.
type Update struct {
	UpdateID int64    `json:"update_id"`
	Message  *Message `json:"message"`
}

// Message is an incoming chat message.
type Message struct {
	Chat Chat   `json:"chat"`
	Text string `json:"text"`
}

// Chat identifies where a message came from.
type Chat struct {
	ID int64 `json:"id"`
}

type apiResponse struct {
	OK          bool            `json:"ok"`
	Result      json.RawMessage `json:"result"`
	Description string          `json:"description"`
}

// Client is a minimal Telegram Bot API client.
type Client struct {
	httpClient *http.Client
	logger     *slog.Logger
	baseURL    string
	token      string
}

// NewClient creates a client for the given bot token.
func NewClient(token string, logger *slog.Logger) *Client {
	return NewClientWithBaseURL(DefaultAPIBaseURL, token, logger)
}

// NewClientWithBaseURL creates a client against an alternate API origin.
func NewClientWithBaseURL(baseURL, token string, logger *slog.Logger) *Client {
	return &Client{
		httpClient: &http.Client{Timeout: 65 * time.Second}, // above the long-poll window
		logger:     logger,
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		token:      token,
	}
}

// SendMessage delivers a Markdown message to one chat, retrying transient
// API failures. A dead chat is reported as ChatNotFoundError without
// retrying.
func (c *Client) SendMessage(ctx context.Context, chatID int64, text string) error {
	form := url.Values{}
	form.Set("chat_id", strconv.FormatInt(chatID, 10))
	form.Set("text", text)
	form.Set("parse_mode", "Markdown")
	form.Set("disable_web_page_preview", "true")

	err := retry.Do(
		func() error {
			_, err := c.call(ctx, "sendMessage", form)
			if err != nil {
				if isDeadChat(err) {
					return retry.Unrecoverable(&ChatNotFoundError{ChatID: chatID})
				}
				c.logger.Warn("Telegram send failed, will retry", "chat_id", chatID, "error", err)
				return err
			}
			return nil
		},
		retry.Attempts(5),
		retry.Delay(time.Second),
		retry.MaxDelay(time.Minute),
		retry.MaxJitter(5*time.Second),
		retry.Context(ctx),
		retry.OnRetry(func(n uint, err error) {
			c.logger.Info("Retrying Telegram send after error", "attempt", n, "error", err)
		}),
	)
	if err != nil {
		var cnf *ChatNotFoundError
		if errors.As(err, &cnf) {
			return cnf
		}
		return fmt.Errorf("send message after retries: %w", err)
	}

	c.logger.Debug("Message sent", "chat_id", chatID, "length", len(text))
	return nil
}

// Updates long-polls for incoming updates after the given offset. The
// timeout is the server-side hold in seconds.
func (c *Client) Updates(ctx context.Context, offset int64, timeout int) ([]Update, error) {
	form := url.Values{}
	form.Set("offset", strconv.FormatInt(offset, 10))
	form.Set("timeout", strconv.Itoa(timeout))
	form.Set("allowed_updates", `["message"]`)

	raw, err := c.call(ctx, "getUpdates", form)
	if err != nil {
		return nil, fmt.Errorf("get updates: %w", err)
	}

	var updates []Update
	if err := json.Unmarshal(raw, &updates); err != nil {
		return nil, fmt.Errorf("decode updates: %w", err)
	}
	return updates, nil
}

func (c *Client) call(ctx context.Context, method string, form url.Values) (json.RawMessage, error) {
	endpoint := fmt.Sprintf("%s/bot%s/%s", c.baseURL, c.token, method)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("do request: %w", err)
	}
	defer func() {
		if closeErr := resp.Body.Close(); closeErr != nil {
			c.logger.Warn("Failed to close response body", "error", closeErr)
		}
	}()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	var api apiResponse
	if err := json.Unmarshal(body, &api); err != nil {
		return nil, fmt.Errorf("telegram API %s: HTTP %d: %w", method, resp.StatusCode, err)
	}
	if !api.OK {
		return nil, fmt.Errorf("telegram API %s: %s", method, api.Description)
	}
	return api.Result, nil
}

func isDeadChat(err error) bool {
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "chat not found") ||
		strings.Contains(msg, "bot was blocked") ||
		strings.Contains(msg, "user is deactivated")
}
