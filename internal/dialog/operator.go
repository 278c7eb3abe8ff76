package dialog

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/wolfman30/guesthub/internal/hub"
	"github.com/wolfman30/guesthub/internal/pms"
)

// SendOperatorMessage records and sends a message typed by a human operator,
// bypassing classification. The transcript entry is kept when sending fails.
func (o *Orchestrator) SendOperatorMessage(ctx context.Context, conversationID, text string) (hub.Message, error) {
	ctx, span := o.tracer.Start(ctx, "dialog.operator_message")
	defer span.End()

	text = strings.TrimSpace(text)
	if text == "" {
		return hub.Message{}, ErrEmptyText
	}
	conv, err := o.ledger.GetConversation(ctx, conversationID)
	if err != nil {
		return hub.Message{}, err
	}
	contact, err := o.ledger.GetContact(ctx, conv.ContactID)
	if err != nil {
		return hub.Message{}, err
	}

	msg, err := o.ledger.Append(ctx, hub.Message{
		ConversationID: conv.ID,
		ContactID:      contact.ID,
		Channel:        conv.Channel,
		Direction:      hub.DirectionOut,
		Text:           text,
	})
	if errors.Is(err, hub.ErrActivityNotUpdated) {
		o.logger.Warn("operator message stored without activity update", "conversation_id", conv.ID, "error", err)
	} else if err != nil {
		return hub.Message{}, fmt.Errorf("dialog: append operator message: %w", err)
	}

	_, err = o.send(ctx, conv.Channel, contact.ExternalID, text)
	o.metrics.ObserveReply(string(conv.Channel), err == nil)
	if err != nil {
		span.RecordError(err)
		o.logger.Error("failed to send operator message", "conversation_id", conv.ID, "error", err)
		return msg, fmt.Errorf("dialog: send operator message: %w", err)
	}
	return msg, nil
}

// BookingRequest is an operator-confirmed booking for a conversation.
type BookingRequest struct {
	GuestName        string  `json:"guest_name"`
	Phone            string  `json:"phone,omitempty"`
	Email            string  `json:"email,omitempty"`
	ArrivalDate      string  `json:"arrival_date"`
	DepartureDate    string  `json:"departure_date"`
	RoomID           string  `json:"room_id"`
	Adults           int     `json:"adults"`
	Children         int     `json:"children"`
	Comment          string  `json:"comment,omitempty"`
	PrepaymentAmount float64 `json:"prepayment_amount,omitempty"`
}

func (r BookingRequest) validate() error {
	if strings.TrimSpace(r.ArrivalDate) == "" || strings.TrimSpace(r.DepartureDate) == "" {
		return fmt.Errorf("%w: arrival and departure dates required", hub.ErrInvalidInput)
	}
	if strings.TrimSpace(r.RoomID) == "" {
		return fmt.Errorf("%w: room id required", hub.ErrInvalidInput)
	}
	if r.Adults <= 0 {
		return fmt.Errorf("%w: at least one adult required", hub.ErrInvalidInput)
	}
	return nil
}

// BookingOutcome is the result of CreateBooking.
type BookingOutcome struct {
	Booking pms.BookingResult `json:"booking"`
	Link    hub.BookingLink   `json:"link"`
	Reply   string            `json:"reply"`
	SendErr error             `json:"-"`
}

// CreateBooking books a room in the property system, links the booking to the
// conversation and tells the guest the confirmation number. When the property
// system rejects the booking the guest is told so and the error is returned.
func (o *Orchestrator) CreateBooking(ctx context.Context, conversationID string, req BookingRequest) (BookingOutcome, error) {
	ctx, span := o.tracer.Start(ctx, "dialog.create_booking")
	defer span.End()

	if err := req.validate(); err != nil {
		return BookingOutcome{}, err
	}
	conv, err := o.ledger.GetConversation(ctx, conversationID)
	if err != nil {
		return BookingOutcome{}, err
	}
	contact, err := o.ledger.GetContact(ctx, conv.ContactID)
	if err != nil {
		return BookingOutcome{}, err
	}
	if req.GuestName == "" {
		req.GuestName = contact.DisplayName
	}

	var res *pms.BookingResult
	if o.pms == nil {
		err = pms.ErrNotConfigured
	} else {
		start := time.Now()
		res, err = o.pms.CreateBooking(ctx, pms.CreateBookingRequest{
			GuestName:        req.GuestName,
			Phone:            req.Phone,
			Email:            req.Email,
			ArrivalDate:      req.ArrivalDate,
			DepartureDate:    req.DepartureDate,
			RoomID:           req.RoomID,
			Adults:           req.Adults,
			Children:         req.Children,
			Comment:          req.Comment,
			PrepaymentAmount: req.PrepaymentAmount,
		})
		o.metrics.ObservePMS("create_booking", start, err)
	}

	out := Outcome{ConversationID: conv.ID, ContactID: contact.ID}
	if err != nil {
		span.RecordError(err)
		out.Reply = replyBookingFailed
		o.deliver(ctx, &out, conv, contact, contact.ExternalID, time.Time{})
		return BookingOutcome{Reply: out.Reply, SendErr: out.SendErr}, fmt.Errorf("dialog: create booking: %w", err)
	}

	link, err := o.ledger.LinkBooking(ctx, contact.ID, conv.ID, res.ID)
	if err != nil {
		// The booking exists in the property system; surface the link failure
		// but still confirm to the guest.
		o.logger.Error("failed to link booking", "conversation_id", conv.ID, "booking_id", res.ID, "error", err)
	}

	out.Reply = replyBookingCreated + res.Reference() + "."
	o.deliver(ctx, &out, conv, contact, contact.ExternalID, time.Time{})

	result := BookingOutcome{Booking: *res, Link: link, Reply: out.Reply, SendErr: out.SendErr}
	if err != nil {
		return result, fmt.Errorf("dialog: link booking: %w", err)
	}
	return result, nil
}
