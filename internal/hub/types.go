// Package hub keeps the contact, conversation and transcript ledger shared by
// every guest-facing channel.
package hub

import (
	"fmt"
	"strings"
	"time"
)

// Channel identifies a messaging platform. The set is closed; adapters for new
// platforms must add a constant here.
type Channel string

const (
	ChannelTelegram  Channel = "telegram"
	ChannelInstagram Channel = "instagram"
)

// Channels lists every supported channel.
func Channels() []Channel {
	return []Channel{ChannelTelegram, ChannelInstagram}
}

// Valid reports whether c is a known channel.
func (c Channel) Valid() bool {
	switch c {
	case ChannelTelegram, ChannelInstagram:
		return true
	default:
		return false
	}
}

func (c Channel) String() string { return string(c) }

// ParseChannel normalises s into a Channel.
func ParseChannel(s string) (Channel, error) {
	ch := Channel(strings.ToLower(strings.TrimSpace(s)))
	if !ch.Valid() {
		return "", fmt.Errorf("%w: %q", ErrUnknownChannel, s)
	}
	return ch, nil
}

// Direction of a transcript entry relative to the hub.
type Direction string

const (
	DirectionIn  Direction = "in"
	DirectionOut Direction = "out"
)

// Valid reports whether d is in or out.
func (d Direction) Valid() bool {
	return d == DirectionIn || d == DirectionOut
}

// Contact is a guest identity scoped to one channel.
type Contact struct {
	ID          string    `json:"id"`
	Channel     Channel   `json:"channel"`
	ExternalID  string    `json:"external_id"`
	DisplayName string    `json:"display_name,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// ContactHints carries optional fields applied on upsert. Empty fields are ignored.
type ContactHints struct {
	DisplayName string
}

// Conversation is the single thread between the hub and one contact on one channel.
type Conversation struct {
	ID            string     `json:"id"`
	ContactID     string     `json:"contact_id"`
	Channel       Channel    `json:"channel"`
	CreatedAt     time.Time  `json:"created_at"`
	LastMessageAt *time.Time `json:"last_message_at,omitempty"`
}

// ActivityAt is the time used to order conversations by recency.
func (c Conversation) ActivityAt() time.Time {
	if c.LastMessageAt != nil {
		return *c.LastMessageAt
	}
	return c.CreatedAt
}

// Attachment is an opaque media reference carried by some channel events.
type Attachment struct {
	Type string `json:"type"`
	URL  string `json:"url,omitempty"`
}

// Message is one immutable transcript entry.
type Message struct {
	ID                string       `json:"id"`
	ConversationID    string       `json:"conversation_id"`
	ContactID         string       `json:"contact_id"`
	Channel           Channel      `json:"channel"`
	Direction         Direction    `json:"direction"`
	Text              string       `json:"text,omitempty"`
	ExternalMessageID string       `json:"external_message_id,omitempty"`
	Attachments       []Attachment `json:"attachments,omitempty"`
	Timestamp         time.Time    `json:"timestamp"`
	CreatedAt         time.Time    `json:"created_at"`
}

// BookingLink ties a conversation to a confirmed booking in the property system.
type BookingLink struct {
	ID             string    `json:"id"`
	ContactID      string    `json:"contact_id"`
	ConversationID string    `json:"conversation_id"`
	BookingID      string    `json:"booking_id"`
	CreatedAt      time.Time `json:"created_at"`
}

// ConversationDetail is the admin view of one conversation.
type ConversationDetail struct {
	Conversation Conversation  `json:"conversation"`
	Contact      Contact       `json:"contact"`
	Messages     []Message     `json:"messages"`
	Bookings     []BookingLink `json:"bookings"`
}

func cloneMessage(m Message) Message {
	if len(m.Attachments) > 0 {
		m.Attachments = append([]Attachment(nil), m.Attachments...)
	}
	return m
}

func cloneConversation(c Conversation) Conversation {
	if c.LastMessageAt != nil {
		ts := *c.LastMessageAt
		c.LastMessageAt = &ts
	}
	return c
}
