package hub

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

type contactKey struct {
	channel    Channel
	externalID string
}

type conversationKey struct {
	contactID string
	channel   Channel
}

type inboundKey struct {
	conversationID    string
	externalMessageID string
}

type bookingKey struct {
	contactID      string
	conversationID string
	bookingID      string
}

type storedMessage struct {
	msg Message
	seq int64
}

// MemoryStore is an in-process Store. A single mutex stands in for the unique
// indexes of the Postgres backend.
type MemoryStore struct {
	mu  sync.RWMutex
	now func() time.Time

	contacts      map[string]Contact
	contactByKey  map[contactKey]string
	conversations map[string]Conversation
	convByKey     map[conversationKey]string
	messages      map[string][]storedMessage
	inbound       map[inboundKey]Message
	links         map[string][]BookingLink
	linkByKey     map[bookingKey]BookingLink
	seq           int64
}

var _ Store = (*MemoryStore)(nil)

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		now:           func() time.Time { return time.Now().UTC() },
		contacts:      make(map[string]Contact),
		contactByKey:  make(map[contactKey]string),
		conversations: make(map[string]Conversation),
		convByKey:     make(map[conversationKey]string),
		messages:      make(map[string][]storedMessage),
		inbound:       make(map[inboundKey]Message),
		links:         make(map[string][]BookingLink),
		linkByKey:     make(map[bookingKey]BookingLink),
	}
}

func (s *MemoryStore) FindOrCreateContact(ctx context.Context, channel Channel, externalID string, hints ContactHints) (Contact, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	key := contactKey{channel: channel, externalID: externalID}
	if id, ok := s.contactByKey[key]; ok {
		c := s.contacts[id]
		if hints.DisplayName != "" && hints.DisplayName != c.DisplayName {
			c.DisplayName = hints.DisplayName
			c.UpdatedAt = now
			s.contacts[id] = c
		}
		return c, nil
	}

	c := Contact{
		ID:          uuid.NewString(),
		Channel:     channel,
		ExternalID:  externalID,
		DisplayName: hints.DisplayName,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	s.contacts[c.ID] = c
	s.contactByKey[key] = c.ID
	return c, nil
}

func (s *MemoryStore) GetContact(ctx context.Context, id string) (Contact, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.contacts[id]
	if !ok {
		return Contact{}, ErrNotFound
	}
	return c, nil
}

func (s *MemoryStore) FindOrCreateConversation(ctx context.Context, contactID string, channel Channel) (Conversation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.contacts[contactID]; !ok {
		return Conversation{}, ErrNotFound
	}
	key := conversationKey{contactID: contactID, channel: channel}
	if id, ok := s.convByKey[key]; ok {
		return cloneConversation(s.conversations[id]), nil
	}

	c := Conversation{
		ID:        uuid.NewString(),
		ContactID: contactID,
		Channel:   channel,
		CreatedAt: s.now(),
	}
	s.conversations[c.ID] = c
	s.convByKey[key] = c.ID
	return cloneConversation(c), nil
}

func (s *MemoryStore) GetConversation(ctx context.Context, id string) (Conversation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.conversations[id]
	if !ok {
		return Conversation{}, ErrNotFound
	}
	return cloneConversation(c), nil
}

func (s *MemoryStore) ListConversations(ctx context.Context, limit int) ([]Conversation, error) {
	s.mu.RLock()
	out := make([]Conversation, 0, len(s.conversations))
	for _, c := range s.conversations {
		out = append(out, cloneConversation(c))
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		ai, aj := out[i].ActivityAt(), out[j].ActivityAt()
		if !ai.Equal(aj) {
			return ai.After(aj)
		}
		return out[i].ID < out[j].ID
	})
	if limit <= 0 {
		limit = DefaultConversationLimit
	}
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *MemoryStore) Touch(ctx context.Context, conversationID string, ts time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.conversations[conversationID]
	if !ok {
		return ErrNotFound
	}
	if c.LastMessageAt == nil || ts.After(*c.LastMessageAt) {
		t := ts
		c.LastMessageAt = &t
		s.conversations[conversationID] = c
	}
	return nil
}

func (s *MemoryStore) InsertMessage(ctx context.Context, msg Message) (Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.conversations[msg.ConversationID]; !ok {
		return Message{}, ErrNotFound
	}
	var key inboundKey
	dedup := msg.Direction == DirectionIn && msg.ExternalMessageID != ""
	if dedup {
		key = inboundKey{conversationID: msg.ConversationID, externalMessageID: msg.ExternalMessageID}
		if existing, ok := s.inbound[key]; ok {
			return cloneMessage(existing), ErrDuplicateMessage
		}
	}

	if msg.ID == "" {
		msg.ID = uuid.NewString()
	}
	msg.CreatedAt = s.now()
	msg = cloneMessage(msg)

	s.seq++
	s.messages[msg.ConversationID] = append(s.messages[msg.ConversationID], storedMessage{msg: msg, seq: s.seq})
	if dedup {
		s.inbound[key] = msg
	}
	return cloneMessage(msg), nil
}

func (s *MemoryStore) LastMessages(ctx context.Context, conversationIDs []string) (map[string]Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make(map[string]Message, len(conversationIDs))
	for _, id := range conversationIDs {
		var last *storedMessage
		for i := range s.messages[id] {
			sm := &s.messages[id][i]
			if last == nil || sm.msg.Timestamp.After(last.msg.Timestamp) ||
				(sm.msg.Timestamp.Equal(last.msg.Timestamp) && sm.seq > last.seq) {
				last = sm
			}
		}
		if last != nil {
			out[id] = cloneMessage(last.msg)
		}
	}
	return out, nil
}

func (s *MemoryStore) ListMessages(ctx context.Context, conversationID string) ([]Message, error) {
	s.mu.RLock()
	stored := append([]storedMessage(nil), s.messages[conversationID]...)
	s.mu.RUnlock()

	sort.SliceStable(stored, func(i, j int) bool {
		ti, tj := stored[i].msg.Timestamp, stored[j].msg.Timestamp
		if !ti.Equal(tj) {
			return ti.Before(tj)
		}
		return stored[i].seq < stored[j].seq
	})

	out := make([]Message, 0, len(stored))
	for _, sm := range stored {
		out = append(out, cloneMessage(sm.msg))
	}
	return out, nil
}

func (s *MemoryStore) LinkBooking(ctx context.Context, link BookingLink) (BookingLink, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := bookingKey{contactID: link.ContactID, conversationID: link.ConversationID, bookingID: link.BookingID}
	if existing, ok := s.linkByKey[key]; ok {
		return existing, nil
	}
	if _, ok := s.conversations[link.ConversationID]; !ok {
		return BookingLink{}, ErrNotFound
	}
	if link.ID == "" {
		link.ID = uuid.NewString()
	}
	link.CreatedAt = s.now()
	s.linkByKey[key] = link
	s.links[link.ConversationID] = append(s.links[link.ConversationID], link)
	return link, nil
}

func (s *MemoryStore) ListBookingLinks(ctx context.Context, conversationID string) ([]BookingLink, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]BookingLink{}, s.links[conversationID]...), nil
}
