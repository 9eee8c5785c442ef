// Package notifier talks to the Telegram Bot API: sending notifications,
// editing messages after button presses and long-polling for updates.
package notifier

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const defaultAPIBase = "https://api.telegram.org"

// InlineButton is one button of an inline keyboard.
type InlineButton struct {
	Text         string `json:"text"`
	CallbackData string `json:"callback_data"`
}

// InlineKeyboard is rows of inline buttons attached to a message.
type InlineKeyboard [][]InlineButton

// APIError is a non-200 response from the Bot API.
type APIError struct {
	Code        int
	Description string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("telegram API error %d: %s", e.Code, e.Description)
}

// IsRecipientGone reports whether the error means the recipient can no
// longer receive messages (bot blocked, account deleted, chat gone). Such
// errors are permanent for the recipient and must not be retried.
func IsRecipientGone(err error) bool {
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		return false
	}
	if apiErr.Code == http.StatusForbidden {
		return true
	}
	return apiErr.Code == http.StatusBadRequest &&
		strings.Contains(strings.ToLower(apiErr.Description), "chat not found")
}

// TelegramNotifier sends messages via the Telegram Bot API.
type TelegramNotifier struct {
	BotToken string
	APIBase  string
	Client   *http.Client
}

// NewTelegramNotifier creates a notifier with optional proxy support.
func NewTelegramNotifier(botToken, proxyURL string) *TelegramNotifier {
	transport := &http.Transport{}
	if proxyURL != "" {
		if u, err := url.Parse(proxyURL); err == nil {
			transport.Proxy = http.ProxyURL(u)
		}
	}
	return &TelegramNotifier{
		BotToken: botToken,
		APIBase:  defaultAPIBase,
		Client: &http.Client{
			Timeout:   30 * time.Second,
			Transport: transport,
		},
	}
}

func (t *TelegramNotifier) call(method string, payload map[string]any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}
	apiURL := fmt.Sprintf("%s/bot%s/%s", t.APIBase, t.BotToken, method)
	resp, err := t.Client.Post(apiURL, "application/json", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("%s: %w", method, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(resp.Body)
		var apiResp struct {
			Description string `json:"description"`
		}
		_ = json.Unmarshal(respBody, &apiResp)
		if apiResp.Description == "" {
			apiResp.Description = string(respBody)
		}
		return &APIError{Code: resp.StatusCode, Description: apiResp.Description}
	}
	return nil
}

// SendMessage sends an HTML-formatted message, optionally with an inline
// keyboard.
func (t *TelegramNotifier) SendMessage(chatID int64, text string, keyboard InlineKeyboard) error {
	payload := map[string]any{
		"chat_id":    chatID,
		"text":       text,
		"parse_mode": "HTML",
	}
	if keyboard != nil {
		payload["reply_markup"] = map[string]any{"inline_keyboard": keyboard}
	}
	return t.call("sendMessage", payload)
}

// EditMessageText replaces the text of an already sent message, dropping any
// keyboard it carried.
func (t *TelegramNotifier) EditMessageText(chatID int64, messageID int, text string) error {
	return t.call("editMessageText", map[string]any{
		"chat_id":    chatID,
		"message_id": messageID,
		"text":       text,
		"parse_mode": "HTML",
	})
}

// AnswerCallback acknowledges a callback query so the client stops showing
// the loading spinner.
func (t *TelegramNotifier) AnswerCallback(callbackID string) error {
	return t.call("answerCallbackQuery", map[string]any{
		"callback_query_id": callbackID,
	})
}

// SendWithRetry sends a message with exponential backoff retry. Errors that
// mean the recipient is gone are returned immediately.
func (t *TelegramNotifier) SendWithRetry(ctx context.Context, chatID int64, text string, keyboard InlineKeyboard, maxRetries int) error {
	var lastErr error
	for i := 0; i <= maxRetries; i++ {
		err := t.SendMessage(chatID, text, keyboard)
		if err == nil {
			return nil
		}
		if IsRecipientGone(err) {
			return err
		}
		lastErr = err
		backoff := time.Duration(1<<uint(i)) * time.Second
		log.Printf("[WARN] Telegram send to %d failed (attempt %d/%d): %v, retrying in %v",
			chatID, i+1, maxRetries+1, err, backoff)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff):
		}
	}
	return fmt.Errorf("all %d retries exhausted: %w", maxRetries+1, lastErr)
}
