// Package notify delivers staff digests to a Telegram chat and, optionally,
// by email.
package notify

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/wolfman30/guesthub/pkg/logging"
)

// ErrNoRecipient is returned when a digest has neither a chat nor an email
// recipient.
var ErrNoRecipient = errors.New("notify: no recipient configured")

// ChatSender posts text to a staff chat.
type ChatSender interface {
	SendText(ctx context.Context, chat, text string) (int, error)
}

// Digest is one report addressed to a staff chat.
type Digest struct {
	ChatID  string
	Subject string
	Text    string
}

// Service fans a digest out to the configured destinations.
type Service struct {
	chat    ChatSender
	email   EmailSender
	emailTo string
	logger  *logging.Logger
}

// NewService creates a notifier. email may be nil; emailTo is ignored then.
func NewService(chat ChatSender, email EmailSender, emailTo string, logger *logging.Logger) *Service {
	if logger == nil {
		logger = logging.Default()
	}
	return &Service{
		chat:    chat,
		email:   email,
		emailTo: strings.TrimSpace(emailTo),
		logger:  logger.Component("notify"),
	}
}

// Deliver sends d to its chat and to the email recipient. Each destination is
// attempted; failures are joined.
func (s *Service) Deliver(ctx context.Context, d Digest) error {
	chatID := strings.TrimSpace(d.ChatID)
	sendChat := chatID != "" && s.chat != nil
	sendEmail := s.email != nil && s.emailTo != ""
	if !sendChat && !sendEmail {
		s.logger.Warn("digest has no destination", "subject", d.Subject)
		return ErrNoRecipient
	}

	var errs []error
	if sendChat {
		if _, err := s.chat.SendText(ctx, chatID, d.Text); err != nil {
			errs = append(errs, fmt.Errorf("notify: chat %s: %w", chatID, err))
		} else {
			s.logger.Info("digest posted", "chat_id", chatID, "subject", d.Subject)
		}
	}
	if sendEmail {
		if err := s.email.Send(ctx, EmailMessage{To: s.emailTo, Subject: d.Subject, Body: d.Text}); err != nil {
			errs = append(errs, fmt.Errorf("notify: email: %w", err))
		}
	}
	return errors.Join(errs...)
}
