package hub

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/wolfman30/guesthub/pkg/logging"
)

// Service implements the identity, conversation and transcript contracts on
// top of a Store. It holds no state of its own.
type Service struct {
	store  Store
	logger *logging.Logger
	tracer trace.Tracer
	now    func() time.Time
}

// NewService wraps store.
func NewService(store Store, logger *logging.Logger) *Service {
	if store == nil {
		panic("hub: store cannot be nil")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Service{
		store:  store,
		logger: logger.Component("hub"),
		tracer: otel.Tracer("guesthub.internal.hub"),
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// FindOrCreateContact returns the contact for (channel, externalID), creating it
// on first sight. Non-empty hints overwrite stored fields.
func (s *Service) FindOrCreateContact(ctx context.Context, channel Channel, externalID string, hints ContactHints) (Contact, error) {
	ctx, span := s.tracer.Start(ctx, "hub.find_or_create_contact",
		trace.WithAttributes(attribute.String("channel", string(channel))))
	defer span.End()

	if !channel.Valid() {
		return Contact{}, fmt.Errorf("%w: %q", ErrUnknownChannel, channel)
	}
	externalID = strings.TrimSpace(externalID)
	if externalID == "" {
		return Contact{}, fmt.Errorf("%w: external id required", ErrInvalidInput)
	}
	hints.DisplayName = strings.TrimSpace(hints.DisplayName)

	c, err := s.store.FindOrCreateContact(ctx, channel, externalID, hints)
	if err != nil {
		span.RecordError(err)
		return Contact{}, err
	}
	return c, nil
}

// GetContact loads a contact by id.
func (s *Service) GetContact(ctx context.Context, id string) (Contact, error) {
	return s.store.GetContact(ctx, id)
}

// FindOrCreateConversation returns the single conversation for (contactID, channel).
func (s *Service) FindOrCreateConversation(ctx context.Context, contactID string, channel Channel) (Conversation, error) {
	ctx, span := s.tracer.Start(ctx, "hub.find_or_create_conversation",
		trace.WithAttributes(attribute.String("channel", string(channel))))
	defer span.End()

	if !channel.Valid() {
		return Conversation{}, fmt.Errorf("%w: %q", ErrUnknownChannel, channel)
	}
	if strings.TrimSpace(contactID) == "" {
		return Conversation{}, fmt.Errorf("%w: contact id required", ErrInvalidInput)
	}
	c, err := s.store.FindOrCreateConversation(ctx, contactID, channel)
	if err != nil {
		span.RecordError(err)
		return Conversation{}, err
	}
	return c, nil
}

// GetConversation loads a conversation by id.
func (s *Service) GetConversation(ctx context.Context, id string) (Conversation, error) {
	return s.store.GetConversation(ctx, id)
}

// Touch advances lastMessageAt; out-of-order timestamps leave it unchanged.
func (s *Service) Touch(ctx context.Context, conversationID string, ts time.Time) error {
	return s.store.Touch(ctx, conversationID, ts.UTC())
}

// Append records msg, defaulting its id and timestamp, then touches the owning
// conversation. A redelivered inbound message returns the stored copy with
// ErrDuplicateMessage and does not touch the conversation. When only the touch
// fails the stored message is returned with ErrActivityNotUpdated.
func (s *Service) Append(ctx context.Context, msg Message) (Message, error) {
	ctx, span := s.tracer.Start(ctx, "hub.append",
		trace.WithAttributes(
			attribute.String("conversation_id", msg.ConversationID),
			attribute.String("direction", string(msg.Direction)),
		))
	defer span.End()

	if err := validateMessage(msg); err != nil {
		return Message{}, err
	}
	if msg.ID == "" {
		msg.ID = uuid.NewString()
	}
	if msg.Timestamp.IsZero() {
		msg.Timestamp = s.now()
	}
	msg.Timestamp = msg.Timestamp.UTC()

	stored, err := s.store.InsertMessage(ctx, msg)
	if err != nil {
		if errors.Is(err, ErrDuplicateMessage) {
			s.logger.Info("duplicate inbound message skipped",
				"conversation_id", msg.ConversationID,
				"external_message_id", msg.ExternalMessageID,
			)
			return stored, err
		}
		span.RecordError(err)
		return Message{}, err
	}

	if err := s.store.Touch(ctx, stored.ConversationID, stored.Timestamp); err != nil {
		span.RecordError(err)
		return stored, fmt.Errorf("%w: %w", ErrActivityNotUpdated, err)
	}
	return stored, nil
}

// Transcript returns a lazy view over the conversation's messages.
func (s *Service) Transcript(conversationID string) Transcript {
	return Transcript{conversationID: conversationID, store: s.store}
}

// List returns the conversation's messages ascending by timestamp.
func (s *Service) List(ctx context.Context, conversationID string) ([]Message, error) {
	return s.Transcript(conversationID).Collect(ctx)
}

// LinkBooking associates a confirmed booking with the conversation. Linking the
// same triple twice returns the original link.
func (s *Service) LinkBooking(ctx context.Context, contactID, conversationID, bookingID string) (BookingLink, error) {
	if contactID == "" || conversationID == "" || strings.TrimSpace(bookingID) == "" {
		return BookingLink{}, fmt.Errorf("%w: contact, conversation and booking ids required", ErrInvalidInput)
	}
	return s.store.LinkBooking(ctx, BookingLink{
		ContactID:      contactID,
		ConversationID: conversationID,
		BookingID:      strings.TrimSpace(bookingID),
	})
}

// ListConversations returns conversations most-recent first. A limit <= 0
// means DefaultConversationLimit.
func (s *Service) ListConversations(ctx context.Context, limit int) ([]Conversation, error) {
	if limit <= 0 {
		limit = DefaultConversationLimit
	}
	return s.store.ListConversations(ctx, limit)
}

// LastMessages returns the latest message per conversation, keyed by id.
func (s *Service) LastMessages(ctx context.Context, conversationIDs []string) (map[string]Message, error) {
	return s.store.LastMessages(ctx, conversationIDs)
}

// ConversationDetail gathers contact, transcript and booking links for one conversation.
func (s *Service) ConversationDetail(ctx context.Context, conversationID string) (ConversationDetail, error) {
	conv, err := s.store.GetConversation(ctx, conversationID)
	if err != nil {
		return ConversationDetail{}, err
	}
	contact, err := s.store.GetContact(ctx, conv.ContactID)
	if err != nil {
		return ConversationDetail{}, err
	}
	messages, err := s.List(ctx, conversationID)
	if err != nil {
		return ConversationDetail{}, err
	}
	links, err := s.store.ListBookingLinks(ctx, conversationID)
	if err != nil {
		return ConversationDetail{}, err
	}
	if messages == nil {
		messages = []Message{}
	}
	return ConversationDetail{
		Conversation: conv,
		Contact:      contact,
		Messages:     messages,
		Bookings:     links,
	}, nil
}

func validateMessage(msg Message) error {
	if msg.ConversationID == "" || msg.ContactID == "" {
		return fmt.Errorf("%w: conversation and contact ids required", ErrInvalidInput)
	}
	if !msg.Channel.Valid() {
		return fmt.Errorf("%w: %q", ErrUnknownChannel, msg.Channel)
	}
	if !msg.Direction.Valid() {
		return fmt.Errorf("%w: direction %q", ErrInvalidInput, msg.Direction)
	}
	return nil
}
