package bot

import (
	"context"
	"errors"
	"fmt"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"feedalert/internal/model"
	"feedalert/internal/notify"
)

var _ notify.Transport = (*Bot)(nil)

// Send delivers n as a Telegram message to the configured notify chat, or to
// the chat owning the source when none is configured. Muted notifications
// are delivered silently. Send returns when ctx is done even if the API
// call is still in flight.
func (b *Bot) Send(ctx context.Context, n model.Notification) error {
	chatID := b.cfg.NotifyChatID
	if chatID == 0 {
		chatID = n.ChatID
	}
	if chatID == 0 {
		return errors.New("no chat to notify")
	}

	msg := tgbotapi.NewMessage(chatID, FormatNotification(n))
	msg.DisableWebPagePreview = true
	msg.DisableNotification = n.Muted()

	done := make(chan error, 1)
	go func() {
		_, err := b.api.Send(msg)
		done <- err
	}()

	select {
	case err := <-done:
		if err != nil {
			return fmt.Errorf("telegram send: %w", err)
		}
		return nil
	case <-ctx.Done():
		return fmt.Errorf("telegram send: %w", ctx.Err())
	}
}
