// Package alert sends operator notifications to a Telegram chat. The
// channel is optional: an unconfigured Alerter is a no-op, so call sites
// never need to guard.
package alert

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-telegram/bot"
)

const maxMessageLen = 4096

type Alerter struct {
	bot    *bot.Bot
	chatID int64
}

// New builds an Alerter. An empty token disables the channel.
func New(token string, chatID int64) *Alerter {
	if token == "" || chatID == 0 {
		return &Alerter{}
	}
	b, err := bot.New(token)
	if err != nil {
		slog.Error("create alert bot", "error", err)
		return &Alerter{}
	}
	return &Alerter{bot: b, chatID: chatID}
}

func (a *Alerter) Error(err error, context string) {
	a.send(fmt.Sprintf("❌ *Error*\n\n*Context:* %s\n*Error:* `%s`\n*Time:* %s",
		context, err.Error(), time.Now().Format("2006-01-02 15:04:05")))
}

func (a *Alerter) Registration(authID, name string) {
	a.send(fmt.Sprintf("👤 *New Registration*\n\n*Auth ID:* `%s`\n*Name:* %s", authID, name))
}

func (a *Alerter) send(message string) {
	if a.bot == nil {
		return
	}

	if len([]rune(message)) > maxMessageLen {
		message = string([]rune(message)[:maxMessageLen-20]) + "\n\n... (truncated)"
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	_, err := a.bot.SendMessage(ctx, &bot.SendMessageParams{
		ChatID:    a.chatID,
		Text:      message,
		ParseMode: "Markdown",
	})
	if err != nil {
		slog.Error("send telegram alert", "error", err)
	}
}
