package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/awaistahir/spotswitch/internal/transport"
)

const telegramAPIBase = "https://api.telegram.org"

// TelegramClient sends messages through the Telegram bot API
type TelegramClient struct {
	client  *transport.Client
	baseURL string
	token   string
	chatID  string
}

// NewTelegramClient creates a bot client posting to chatID
func NewTelegramClient(token, chatID string, opts ...transport.Option) *TelegramClient {
	return &TelegramClient{
		client:  transport.New("telegram", opts...),
		baseURL: telegramAPIBase,
		token:   token,
		chatID:  chatID,
	}
}

// WithBaseURL overrides the API root, e.g. for tests
func (c *TelegramClient) WithBaseURL(u string) *TelegramClient {
	c.baseURL = u
	return c
}

type sendMessageRequest struct {
	ChatID string `json:"chat_id"`
	Text   string `json:"text"`
}

type sendMessageResponse struct {
	OK          bool   `json:"ok"`
	Description string `json:"description"`
}

// Send posts text to the configured chat
func (c *TelegramClient) Send(ctx context.Context, text string) error {
	body, err := json.Marshal(sendMessageRequest{ChatID: c.chatID, Text: text})
	if err != nil {
		return fmt.Errorf("encoding message: %w", err)
	}

	endpoint := fmt.Sprintf("%s/bot%s/sendMessage", c.baseURL, c.token)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		if errors.Is(err, transport.ErrUnavailable) {
			return err
		}
		// the token is part of the URL; keep it out of logs
		return errors.New("sending telegram message: request failed")
	}
	defer resp.Body.Close()

	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	var result sendMessageResponse
	if err := json.Unmarshal(raw, &result); err != nil || !result.OK {
		if result.Description != "" {
			return fmt.Errorf("telegram returned status %d: %s", resp.StatusCode, result.Description)
		}
		return fmt.Errorf("telegram returned status %d", resp.StatusCode)
	}
	return nil
}
