package notify

import (
	"context"
	"fmt"

	"github.com/alanyoungcy/spikebot/internal/platform/telegram"
)

// TelegramSender delivers notifications to one Telegram chat.
type TelegramSender struct {
	client *telegram.Client
	chatID int64
}

// NewTelegramSender creates a TelegramSender posting to chatID.
func NewTelegramSender(client *telegram.Client, chatID int64) *TelegramSender {
	return &TelegramSender{client: client, chatID: chatID}
}

// Send posts the title and message as plain text. An empty title sends
// the message alone.
func (t *TelegramSender) Send(ctx context.Context, title, message string) error {
	text := message
	if title != "" {
		text = fmt.Sprintf("%s\n%s", title, message)
	}
	return t.client.SendMessage(ctx, t.chatID, text)
}

// SendImage uploads png with caption.
func (t *TelegramSender) SendImage(ctx context.Context, caption string, png []byte) error {
	return t.client.SendPhoto(ctx, t.chatID, png, caption)
}

// Name returns the sender identifier.
func (t *TelegramSender) Name() string {
	return "telegram"
}
