package hub

import (
	"context"
	"time"
)

// DefaultConversationLimit caps conversation listings that pass no limit.
const DefaultConversationLimit = 100

// Store is the persistence contract behind the hub. Implementations must make
// the FindOrCreate calls atomic on their unique keys so concurrent callers
// converge on one record.
type Store interface {
	FindOrCreateContact(ctx context.Context, channel Channel, externalID string, hints ContactHints) (Contact, error)
	GetContact(ctx context.Context, id string) (Contact, error)

	FindOrCreateConversation(ctx context.Context, contactID string, channel Channel) (Conversation, error)
	GetConversation(ctx context.Context, id string) (Conversation, error)
	// ListConversations returns at most limit conversations, DefaultConversationLimit
	// when limit <= 0.
	ListConversations(ctx context.Context, limit int) ([]Conversation, error)
	// Touch moves lastMessageAt forward to ts; earlier timestamps are ignored.
	Touch(ctx context.Context, conversationID string, ts time.Time) error

	// InsertMessage persists msg as-is. An inbound message whose external id is
	// already stored in the same conversation yields the stored copy and
	// ErrDuplicateMessage.
	InsertMessage(ctx context.Context, msg Message) (Message, error)
	// ListMessages returns messages ascending by timestamp, insertion order on ties.
	ListMessages(ctx context.Context, conversationID string) ([]Message, error)
	// LastMessages returns the latest message of each listed conversation.
	// Conversations without messages are absent from the map.
	LastMessages(ctx context.Context, conversationIDs []string) (map[string]Message, error)

	LinkBooking(ctx context.Context, link BookingLink) (BookingLink, error)
	ListBookingLinks(ctx context.Context, conversationID string) ([]BookingLink, error)
}
