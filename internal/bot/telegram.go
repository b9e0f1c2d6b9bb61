package bot

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/goccy/go-json"
)

// Chat identifies the conversation an update came from. Private chats carry
// the user's Telegram ID.
type Chat struct {
	ID        int64  `json:"id"`
	FirstName string `json:"first_name"`
}

// Message is the subset of the Bot API message object the command layer
// consumes.
type Message struct {
	MessageID int64  `json:"message_id"`
	Text      string `json:"text"`
	Chat      Chat   `json:"chat"`
}

// Update is an incoming webhook payload.
type Update struct {
	UpdateID int64    `json:"update_id"`
	Message  *Message `json:"message"`
}

// Sender delivers a text message to a chat. Implemented by Telegram and by
// test fakes.
type Sender interface {
	SendMessage(ctx context.Context, chatID int64, text string) error
}

// Telegram is a minimal Bot API client: the engine only ever needs
// sendMessage.
type Telegram struct {
	token   string
	baseURL string
	client  *http.Client
}

func NewTelegram(token string) *Telegram {
	return &Telegram{
		token:   token,
		baseURL: "https://api.telegram.org",
		client:  &http.Client{Timeout: 10 * time.Second},
	}
}

type sendMessageRequest struct {
	ChatID    int64  `json:"chat_id"`
	Text      string `json:"text"`
	ParseMode string `json:"parse_mode,omitempty"`
}

type apiResponse struct {
	OK          bool   `json:"ok"`
	Description string `json:"description"`
}

// SendMessage delivers one HTML-formatted message. Failures are returned to
// the caller; the scheduler treats them as a failed delivery attempt, never
// as a fatal condition.
func (t *Telegram) SendMessage(ctx context.Context, chatID int64, text string) error {
	body, err := json.Marshal(sendMessageRequest{ChatID: chatID, Text: text, ParseMode: "HTML"})
	if err != nil {
		return fmt.Errorf("encode sendMessage: %w", err)
	}

	url := fmt.Sprintf("%s/bot%s/sendMessage", t.baseURL, t.token)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build sendMessage request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := t.client.Do(req)
	if err != nil {
		return fmt.Errorf("send message to %d: %w", chatID, err)
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(io.LimitReader(resp.Body, 1<<16))
	if err != nil {
		return fmt.Errorf("read sendMessage response: %w", err)
	}

	var decoded apiResponse
	if err := json.Unmarshal(payload, &decoded); err != nil {
		return fmt.Errorf("decode sendMessage response: %w", err)
	}
	if !decoded.OK {
		return fmt.Errorf("telegram api error for %d: %s", chatID, decoded.Description)
	}
	return nil
}
