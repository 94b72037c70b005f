package telegram

import "gopkg.in/telebot.v3"

// Client defines an interface for sending messages via a Telegram bot.
// It decouples the alerting logic from the specific bot library, which also
// makes the notifier trivially fakeable in tests.
type Client interface {
	SendMessage(recipientChatID int64, text string, options *telebot.SendOptions) error
}
