// Package dialog runs the scripted guest conversation: it records inbound
// messages, classifies them, queries the property system when a stay is
// described and replies on the originating channel.
package dialog

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/wolfman30/guesthub/internal/hub"
	"github.com/wolfman30/guesthub/internal/intent"
	"github.com/wolfman30/guesthub/internal/observability/metrics"
	"github.com/wolfman30/guesthub/internal/pms"
	"github.com/wolfman30/guesthub/pkg/logging"
)

var (
	// ErrNoSender is returned when no ReplySender is registered for a channel.
	ErrNoSender = errors.New("dialog: no sender for channel")
	// ErrEmptyText is returned for blank operator messages.
	ErrEmptyText = errors.New("dialog: message text is empty")
)

// SendResult describes a delivered reply.
type SendResult struct {
	MessageID string
}

// ReplySender is the one capability every channel adapter provides.
type ReplySender interface {
	SendReply(ctx context.Context, externalUserID, text string) (SendResult, error)
}

// Ledger is the subset of the messaging hub the orchestrator writes to.
type Ledger interface {
	FindOrCreateContact(ctx context.Context, channel hub.Channel, externalID string, hints hub.ContactHints) (hub.Contact, error)
	GetContact(ctx context.Context, id string) (hub.Contact, error)
	FindOrCreateConversation(ctx context.Context, contactID string, channel hub.Channel) (hub.Conversation, error)
	GetConversation(ctx context.Context, id string) (hub.Conversation, error)
	Append(ctx context.Context, msg hub.Message) (hub.Message, error)
	LinkBooking(ctx context.Context, contactID, conversationID, bookingID string) (hub.BookingLink, error)
}

// Classifier maps text onto an intent.
type Classifier interface {
	Classify(text string) intent.Result
}

// responder is implemented by classifiers that carry canned replies.
type responder interface {
	Response(name string) (string, bool)
}

// InboundGuard drops channel redeliveries before they reach the ledger.
type InboundGuard interface {
	MarkSeen(ctx context.Context, channel hub.Channel, externalMessageID string) (bool, error)
	Forget(ctx context.Context, channel hub.Channel, externalMessageID string) error
}

// Incoming is one normalised guest message handed over by a channel adapter.
type Incoming struct {
	Channel           hub.Channel
	ExternalUserID    string
	DisplayName       string
	Text              string
	Timestamp         time.Time
	ExternalMessageID string
	Attachments       []hub.Attachment
	Structured        Structured
}

// State names the phase a message reached.
type State string

const (
	StateReceiving   State = "receiving"
	StateClassifying State = "classifying"
	StateComposing   State = "composing"
	StateDone        State = "done"
	StateDuplicate   State = "duplicate"
	StateFailed      State = "failed"
)

// Branch names the dialog path taken after classification.
type Branch string

const (
	BranchAvailability Branch = "availability_lookup"
	BranchPrice        Branch = "price_lookup"
	BranchAddons       Branch = "addons_offer"
	BranchBooking      Branch = "booking_flow"
	BranchFallback     Branch = "fallback"
)

// Outcome reports what happened to one inbound message. Err carries a local
// failure (storage); SendErr a channel delivery failure. Neither means the
// guest went unanswered unless Reply is empty.
type Outcome struct {
	State          State
	Branch         Branch
	Intent         intent.Result
	Params         Params
	ContactID      string
	ConversationID string
	Inbound        hub.Message
	Outbound       hub.Message
	Reply          string
	LookedUp       bool
	LookupErr      error
	SendResult     SendResult
	SendErr        error
	Err            error
}

// Option customizes an Orchestrator.
type Option func(*Orchestrator)

// WithSender registers the reply sender for a channel.
func WithSender(channel hub.Channel, sender ReplySender) Option {
	return func(o *Orchestrator) {
		if sender != nil {
			o.senders[channel] = sender
		}
	}
}

// WithHouseCatalog sets the catalog used for titles and capacities.
func WithHouseCatalog(c *HouseCatalog) Option {
	return func(o *Orchestrator) {
		if c != nil {
			o.catalog = c
		}
	}
}

// WithBookingBaseURL enables booking deep links.
func WithBookingBaseURL(base string) Option {
	return func(o *Orchestrator) {
		o.bookingBaseURL = strings.TrimSpace(base)
	}
}

// WithInboundGuard installs a redelivery guard in front of the ledger.
func WithInboundGuard(g InboundGuard) Option {
	return func(o *Orchestrator) {
		o.guard = g
	}
}

// WithMetrics records dialog metrics.
func WithMetrics(m *metrics.DialogMetrics) Option {
	return func(o *Orchestrator) {
		o.metrics = m
	}
}

// Orchestrator owns no storage; it drives the ledger, classifier, property
// system and channel senders for each inbound message.
type Orchestrator struct {
	ledger         Ledger
	classifier     Classifier
	pms            pms.Client
	senders        map[hub.Channel]ReplySender
	catalog        *HouseCatalog
	bookingBaseURL string
	guard          InboundGuard
	metrics        *metrics.DialogMetrics
	logger         *logging.Logger
	tracer         trace.Tracer
	now            func() time.Time
}

// NewOrchestrator wires the dialog. A nil property system client makes every
// lookup answer with the not-configured apology.
func NewOrchestrator(ledger Ledger, classifier Classifier, pmsClient pms.Client, logger *logging.Logger, opts ...Option) *Orchestrator {
	if ledger == nil {
		panic("dialog: ledger cannot be nil")
	}
	if classifier == nil {
		classifier = intent.DefaultTable()
	}
	if logger == nil {
		logger = logging.Default()
	}
	o := &Orchestrator{
		ledger:     ledger,
		classifier: classifier,
		pms:        pmsClient,
		senders:    make(map[hub.Channel]ReplySender),
		catalog:    NewHouseCatalog(DefaultHouses()),
		logger:     logger.Component("dialog"),
		tracer:     otel.Tracer("guesthub.internal.dialog"),
		now:        func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// HandleIncoming processes one inbound message end to end. It never returns
// an error: every path ends in a composed reply or a logged outcome.
func (o *Orchestrator) HandleIncoming(ctx context.Context, in Incoming) Outcome {
	ctx, span := o.tracer.Start(ctx, "dialog.handle_incoming",
		trace.WithAttributes(attribute.String("channel", string(in.Channel))))
	defer span.End()

	out := Outcome{State: StateReceiving}
	log := o.logger.With(
		"channel", in.Channel,
		"external_user_id", in.ExternalUserID,
		"external_message_id", in.ExternalMessageID,
	)

	if !in.Channel.Valid() {
		out.State = StateFailed
		out.Err = fmt.Errorf("%w: %q", hub.ErrUnknownChannel, in.Channel)
		log.Error("inbound message on unknown channel")
		o.metrics.ObserveInbound(string(in.Channel), string(out.State))
		return out
	}

	if o.guard != nil {
		first, err := o.guard.MarkSeen(ctx, in.Channel, in.ExternalMessageID)
		if err != nil {
			log.Warn("inbound guard unavailable", "error", err)
		} else if !first {
			out.State = StateDuplicate
			log.Info("redelivered inbound message dropped")
			o.metrics.ObserveInbound(string(in.Channel), string(out.State))
			return out
		}
	}

	contact, err := o.ledger.FindOrCreateContact(ctx, in.Channel, in.ExternalUserID, hub.ContactHints{DisplayName: in.DisplayName})
	if err != nil {
		return o.failLocal(ctx, in, out, "resolve contact", err)
	}
	out.ContactID = contact.ID

	conv, err := o.ledger.FindOrCreateConversation(ctx, contact.ID, in.Channel)
	if err != nil {
		return o.failLocal(ctx, in, out, "resolve conversation", err)
	}
	out.ConversationID = conv.ID

	inbound, err := o.ledger.Append(ctx, hub.Message{
		ConversationID:    conv.ID,
		ContactID:         contact.ID,
		Channel:           in.Channel,
		Direction:         hub.DirectionIn,
		Text:              in.Text,
		ExternalMessageID: in.ExternalMessageID,
		Attachments:       in.Attachments,
		Timestamp:         in.Timestamp,
	})
	if errors.Is(err, hub.ErrDuplicateMessage) {
		out.State = StateDuplicate
		out.Inbound = inbound
		log.Info("duplicate inbound message, no reply", "conversation_id", conv.ID)
		o.metrics.ObserveInbound(string(in.Channel), string(out.State))
		return out
	}
	if errors.Is(err, hub.ErrActivityNotUpdated) {
		// The message is stored, so a redelivery would be a duplicate.
		log.Warn("inbound stored without activity update", "conversation_id", conv.ID, "error", err)
		err = nil
	}
	if err != nil {
		return o.failLocal(ctx, in, out, "append inbound", err)
	}
	out.Inbound = inbound

	out.State = StateClassifying
	out.Intent = o.classifier.Classify(in.Text)
	o.metrics.ObserveIntent(out.Intent.Name)
	span.SetAttributes(attribute.String("intent", out.Intent.Name))

	out.State = StateComposing
	o.compose(ctx, in, &out)

	o.deliver(ctx, &out, conv, contact, in.ExternalUserID, inbound.Timestamp)
	out.State = StateDone

	log.Info("inbound message handled",
		"conversation_id", conv.ID,
		"intent", out.Intent.Name,
		"branch", out.Branch,
		"looked_up", out.LookedUp,
		"send_error", errString(out.SendErr),
	)
	o.metrics.ObserveInbound(string(in.Channel), "processed")
	return out
}

func (o *Orchestrator) compose(ctx context.Context, in Incoming, out *Outcome) {
	switch out.Intent.Name {
	case intent.Availability:
		out.Branch = BranchAvailability
		o.composeLookup(ctx, in, out, replyAvailabilityNeedDates, replyAvailabilityNeedAdults, func(p Params, offers []Offer) string {
			return availabilityReply(offers, o.linkFor(p, offers))
		})
	case intent.Price:
		out.Branch = BranchPrice
		o.composeLookup(ctx, in, out, replyPriceNeedDates, replyPriceNeedAdults, func(_ Params, offers []Offer) string {
			return priceReply(offers)
		})
	case intent.Booking:
		out.Branch = BranchBooking
		o.composeLookup(ctx, in, out, replyBookingNeedParams, replyBookingNeedParams, func(p Params, offers []Offer) string {
			return bookingReply(offers, o.linkFor(p, offers))
		})
	case intent.Addons:
		out.Branch = BranchAddons
		out.Reply = o.canned(intent.Addons, replyAddons)
	default:
		out.Branch = BranchFallback
		out.Reply = o.canned(intent.Fallback, replyFallback)
	}
}

func (o *Orchestrator) composeLookup(ctx context.Context, in Incoming, out *Outcome, needDates, needAdults string, render func(Params, []Offer) string) {
	p := ResolveParams(in.Text, in.Structured)
	out.Params = p
	if !p.HasDates() {
		out.Reply = needDates
		return
	}
	if p.Adults <= 0 {
		out.Reply = needAdults
		return
	}

	out.LookedUp = true
	offers, err := o.lookup(ctx, p)
	if err != nil {
		out.LookupErr = err
		out.Reply = lookupFailureReply(err)
		o.logger.Warn("availability lookup failed",
			"conversation_id", out.ConversationID,
			"error", err,
		)
		return
	}
	out.Reply = render(p, offers)
}

func (o *Orchestrator) lookup(ctx context.Context, p Params) ([]Offer, error) {
	if o.pms == nil {
		return nil, pms.ErrNotConfigured
	}
	ctx, span := o.tracer.Start(ctx, "dialog.pms_availability")
	defer span.End()

	start := time.Now()
	rooms, err := o.pms.GetAvailability(ctx, pms.AvailabilityRequest{
		ArrivalDate:   p.ArrivalDate,
		DepartureDate: p.DepartureDate,
		Adults:        p.Adults,
		Children:      p.Children,
	})
	o.metrics.ObservePMS("availability", start, err)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	return SelectRooms(rooms, p.TotalGuests(), o.catalog), nil
}

func (o *Orchestrator) linkFor(p Params, offers []Offer) string {
	var roomID string
	if len(offers) > 0 {
		roomID = offers[0].RoomID
	}
	return BuildBookingLink(o.bookingBaseURL, p, roomID)
}

func (o *Orchestrator) canned(name, fallback string) string {
	if r, ok := o.classifier.(responder); ok {
		if text, ok := r.Response(name); ok {
			return text
		}
	}
	return fallback
}

func lookupFailureReply(err error) string {
	if errors.Is(err, pms.ErrNotConfigured) {
		return replyNotConfigured
	}
	return replyLookupFailed
}

// deliver appends the reply to the transcript and sends it. The two steps are
// independent: a failed append still sends, a failed send keeps the append.
func (o *Orchestrator) deliver(ctx context.Context, out *Outcome, conv hub.Conversation, contact hub.Contact, externalUserID string, after time.Time) {
	ts := o.now()
	if ts.Before(after) {
		ts = after
	}
	msg, err := o.ledger.Append(ctx, hub.Message{
		ConversationID: conv.ID,
		ContactID:      contact.ID,
		Channel:        conv.Channel,
		Direction:      hub.DirectionOut,
		Text:           out.Reply,
		Timestamp:      ts,
	})
	switch {
	case errors.Is(err, hub.ErrActivityNotUpdated):
		o.logger.Warn("reply stored without activity update", "conversation_id", conv.ID, "error", err)
		out.Outbound = msg
	case err != nil:
		out.Err = fmt.Errorf("dialog: append reply: %w", err)
		o.logger.Error("failed to record outbound reply", "conversation_id", conv.ID, "error", err)
	default:
		out.Outbound = msg
	}

	res, err := o.send(ctx, conv.Channel, externalUserID, out.Reply)
	out.SendResult = res
	if err != nil {
		out.SendErr = err
		o.logger.Error("failed to send reply", "conversation_id", conv.ID, "channel", conv.Channel, "error", err)
	}
	o.metrics.ObserveReply(string(conv.Channel), err == nil)
}

func (o *Orchestrator) send(ctx context.Context, channel hub.Channel, externalUserID, text string) (SendResult, error) {
	sender, ok := o.senders[channel]
	if !ok {
		return SendResult{}, fmt.Errorf("%w: %s", ErrNoSender, channel)
	}
	ctx, span := o.tracer.Start(ctx, "dialog.send_reply",
		trace.WithAttributes(attribute.String("channel", string(channel))))
	defer span.End()

	res, err := sender.SendReply(ctx, externalUserID, text)
	if err != nil {
		span.RecordError(err)
		return SendResult{}, err
	}
	return res, nil
}

// failLocal answers the guest when the ledger is unavailable. The reply is
// not recorded and the redelivery mark is dropped so a retry can succeed.
func (o *Orchestrator) failLocal(ctx context.Context, in Incoming, out Outcome, step string, err error) Outcome {
	out.State = StateFailed
	out.Err = fmt.Errorf("dialog: %s: %w", step, err)
	o.logger.Error("inbound message failed", "step", step, "channel", in.Channel, "external_user_id", in.ExternalUserID, "error", err)

	if o.guard != nil {
		if ferr := o.guard.Forget(ctx, in.Channel, in.ExternalMessageID); ferr != nil {
			o.logger.Warn("failed to release inbound guard", "error", ferr)
		}
	}

	out.Reply = replyInternalError
	res, sendErr := o.send(ctx, in.Channel, in.ExternalUserID, out.Reply)
	out.SendResult = res
	out.SendErr = sendErr
	o.metrics.ObserveReply(string(in.Channel), sendErr == nil)
	o.metrics.ObserveInbound(string(in.Channel), string(out.State))
	return out
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
