// Package telegram is the Telegram channel adapter. Updates arrive by webhook;
// replies and report digests go out through the Bot API.
package telegram

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"unicode/utf8"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/wolfman30/guesthub/internal/dialog"
	"github.com/wolfman30/guesthub/pkg/logging"
)

// maxMessageRunes is the Bot API limit for one text message.
const maxMessageRunes = 4096

// ErrNoBot is returned when sending without a bot token configured.
var ErrNoBot = errors.New("telegram: bot not configured")

// Bot is the part of *tgbotapi.BotAPI the sender uses.
type Bot interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

// Sender delivers text to Telegram chats.
type Sender struct {
	bot    Bot
	logger *logging.Logger
}

// NewSender wraps bot. A nil bot yields a sender that always fails with ErrNoBot.
func NewSender(bot Bot, logger *logging.Logger) *Sender {
	if logger == nil {
		logger = logging.Default()
	}
	return &Sender{bot: bot, logger: logger.Component("telegram")}
}

// SendReply implements dialog.ReplySender. The external user id is the chat id.
func (s *Sender) SendReply(ctx context.Context, externalUserID, text string) (dialog.SendResult, error) {
	id, err := s.SendText(ctx, externalUserID, text)
	if err != nil {
		return dialog.SendResult{}, err
	}
	return dialog.SendResult{MessageID: strconv.Itoa(id)}, nil
}

// SendText sends text to chat, splitting it on line boundaries when it exceeds
// the Bot API limit. It returns the id of the last message sent. chat is a
// numeric chat id or an @channel username.
func (s *Sender) SendText(ctx context.Context, chat, text string) (int, error) {
	if s.bot == nil {
		return 0, ErrNoBot
	}
	chat = strings.TrimSpace(chat)
	if chat == "" {
		return 0, fmt.Errorf("telegram: chat id required")
	}

	var lastID int
	for _, part := range splitText(text, maxMessageRunes) {
		if err := ctx.Err(); err != nil {
			return lastID, err
		}
		msg, err := newTextMessage(chat, part)
		if err != nil {
			return lastID, err
		}
		sent, err := s.bot.Send(msg)
		if err != nil {
			s.logger.Error("telegram send failed", "chat_id", chat, "error", err)
			return lastID, fmt.Errorf("telegram: send message: %w", err)
		}
		lastID = sent.MessageID
	}
	return lastID, nil
}

func newTextMessage(chat, text string) (tgbotapi.MessageConfig, error) {
	if strings.HasPrefix(chat, "@") {
		return tgbotapi.NewMessageToChannel(chat, text), nil
	}
	chatID, err := strconv.ParseInt(chat, 10, 64)
	if err != nil {
		return tgbotapi.MessageConfig{}, fmt.Errorf("telegram: chat must be @username or numeric id, got %q", chat)
	}
	return tgbotapi.NewMessage(chatID, text), nil
}

// splitText cuts text into chunks of at most limit runes, preferring newline
// boundaries.
func splitText(text string, limit int) []string {
	if utf8.RuneCountInString(text) <= limit {
		return []string{text}
	}
	var (
		parts   []string
		current strings.Builder
		count   int
	)
	flush := func() {
		if current.Len() > 0 {
			parts = append(parts, strings.TrimRight(current.String(), "\n"))
			current.Reset()
			count = 0
		}
	}
	for _, line := range strings.SplitAfter(text, "\n") {
		n := utf8.RuneCountInString(line)
		if count+n > limit {
			flush()
		}
		for n > limit {
			runes := []rune(line)
			parts = append(parts, string(runes[:limit]))
			line = string(runes[limit:])
			n -= limit
		}
		current.WriteString(line)
		count += n
	}
	flush()
	return parts
}
