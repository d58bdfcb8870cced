package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"html"
	"net/http"
	"time"
)

// sendTimeout bounds one delivery attempt for either sender.
const sendTimeout = 10 * time.Second

// telegramMessage is the Bot API sendMessage request body.
type telegramMessage struct {
	ChatID    string `json:"chat_id"`
	Text      string `json:"text"`
	ParseMode string `json:"parse_mode"`
}

// TelegramSender delivers notifications via the Telegram Bot API.
type TelegramSender struct {
	token  string
	chatID string
	client *http.Client
}

// NewTelegramSender creates a TelegramSender for the given bot token and chat
// ID.
func NewTelegramSender(token, chatID string) *TelegramSender {
	return &TelegramSender{
		token:  token,
		chatID: chatID,
		client: &http.Client{Timeout: sendTimeout},
	}
}

// Send posts the notification to the configured chat: bold title, body, and
// the event type as a trailing hashtag so a chat can be searched per event.
func (t *TelegramSender) Send(ctx context.Context, n Notification) error {
	msg := telegramMessage{
		ChatID: t.chatID,
		Text: fmt.Sprintf("<b>%s</b>\n%s\n#%s",
			html.EscapeString(n.Title), html.EscapeString(n.Message), n.Event),
		ParseMode: "HTML",
	}
	body, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("telegram: marshal payload: %w", err)
	}

	url := fmt.Sprintf("https://api.telegram.org/bot%s/sendMessage", t.token)
	return postJSON(ctx, t.client, "telegram", url, body)
}

// Name returns the sender identifier.
func (t *TelegramSender) Name() string {
	return "telegram"
}
