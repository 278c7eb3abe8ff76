package dialog

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wolfman30/guesthub/internal/hub"
	"github.com/wolfman30/guesthub/internal/intent"
	"github.com/wolfman30/guesthub/internal/pms"
	"github.com/wolfman30/guesthub/pkg/logging"
)

type fakePMS struct {
	mu       sync.Mutex
	rooms    []pms.Room
	err      error
	calls    []pms.AvailabilityRequest
	booking  *pms.BookingResult
	bookErr  error
	bookings []pms.CreateBookingRequest
}

func (f *fakePMS) GetAvailability(ctx context.Context, req pms.AvailabilityRequest) ([]pms.Room, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, req)
	if f.err != nil {
		return nil, f.err
	}
	return f.rooms, nil
}

func (f *fakePMS) CreateBooking(ctx context.Context, req pms.CreateBookingRequest) (*pms.BookingResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.bookings = append(f.bookings, req)
	if f.bookErr != nil {
		return nil, f.bookErr
	}
	return f.booking, nil
}

func (f *fakePMS) BookingsCreatedBetween(ctx context.Context, from, to time.Time) ([]pms.Booking, error) {
	return nil, nil
}

func (f *fakePMS) BookingsByArrival(ctx context.Context, date time.Time) ([]pms.Booking, error) {
	return nil, nil
}

func (f *fakePMS) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

type sentReply struct {
	to   string
	text string
}

type fakeSender struct {
	mu   sync.Mutex
	sent []sentReply
	err  error
}

func (s *fakeSender) SendReply(ctx context.Context, externalUserID, text string) (SendResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return SendResult{}, s.err
	}
	s.sent = append(s.sent, sentReply{to: externalUserID, text: text})
	return SendResult{MessageID: "out-1"}, nil
}

func (s *fakeSender) replies() []sentReply {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]sentReply(nil), s.sent...)
}

type harness struct {
	orch   *Orchestrator
	hub    *hub.Service
	pms    *fakePMS
	sender *fakeSender
}

func newHarness(t *testing.T, opts ...Option) *harness {
	t.Helper()
	svc := hub.NewService(hub.NewMemoryStore(), logging.Discard())
	p := &fakePMS{}
	s := &fakeSender{}
	all := append([]Option{
		WithSender(hub.ChannelTelegram, s),
		WithSender(hub.ChannelInstagram, s),
	}, opts...)
	return &harness{
		orch:   NewOrchestrator(svc, intent.DefaultTable(), p, logging.Discard(), all...),
		hub:    svc,
		pms:    p,
		sender: s,
	}
}

func (h *harness) transcript(t *testing.T, conversationID string) []hub.Message {
	t.Helper()
	msgs, err := h.hub.List(context.Background(), conversationID)
	require.NoError(t, err)
	return msgs
}

func TestHandleIncoming_AvailabilityWithLink(t *testing.T) {
	h := newHarness(t, WithBookingBaseURL("https://drewno.example/booking"))
	h.pms.rooms = []pms.Room{
		{ID: "h3", AvailableUnits: 0},
		{ID: "h1", Title: "Домик 1 (до 4 гостей)", AvailableUnits: 1, Price: 15000, Currency: "RUB"},
	}

	out := h.orch.HandleIncoming(context.Background(), Incoming{
		Channel:           hub.ChannelTelegram,
		ExternalUserID:    "555",
		Text:              "12.11.2025 14.11.2025 2 взрослых",
		ExternalMessageID: "1001",
	})

	require.NoError(t, out.Err)
	assert.Equal(t, StateDone, out.State)
	assert.Equal(t, intent.Availability, out.Intent.Name)
	assert.Equal(t, BranchAvailability, out.Branch)
	assert.Equal(t, Params{ArrivalDate: "12.11.2025", DepartureDate: "14.11.2025", Adults: 2}, out.Params)
	assert.Contains(t, out.Reply, "Домик 1 (до 4 гостей)")
	assert.Contains(t, out.Reply, "arrival=12.11.2025&departure=14.11.2025&adults=2")
	assert.Contains(t, out.Reply, "Примерная стоимость: 15000 RUB.")
	assert.Contains(t, out.Reply, "house=h1")

	require.Len(t, h.pms.calls, 1)
	assert.Equal(t, pms.AvailabilityRequest{ArrivalDate: "12.11.2025", DepartureDate: "14.11.2025", Adults: 2}, h.pms.calls[0])

	replies := h.sender.replies()
	require.Len(t, replies, 1)
	assert.Equal(t, "555", replies[0].to)

	msgs := h.transcript(t, out.ConversationID)
	require.Len(t, msgs, 2)
	assert.Equal(t, hub.DirectionIn, msgs[0].Direction)
	assert.Equal(t, hub.DirectionOut, msgs[1].Direction)
	assert.Equal(t, out.Reply, msgs[1].Text)
}

func TestHandleIncoming_AvailabilityWithoutLinkBase(t *testing.T) {
	h := newHarness(t)
	h.pms.rooms = []pms.Room{{ID: "h2", AvailableUnits: 1}}

	out := h.orch.HandleIncoming(context.Background(), Incoming{
		Channel: hub.ChannelTelegram, ExternalUserID: "555", Text: "есть домик 12.11.2025 14.11.2025 на 2",
	})
	assert.Equal(t, "Свободные варианты:\n• Домик 2 (до 4 гостей)\n\nГотов оформить бронь? Могу прислать ссылку.", out.Reply)
	assert.NotContains(t, out.Reply, "http")
}

func TestHandleIncoming_PriceNeedsDates(t *testing.T) {
	h := newHarness(t)

	out := h.orch.HandleIncoming(context.Background(), Incoming{
		Channel: hub.ChannelTelegram, ExternalUserID: "555", Text: "сколько стоит?",
	})
	assert.Equal(t, intent.Price, out.Intent.Name)
	assert.Equal(t, "Чтобы подсчитать стоимость, пришлите даты заезда и выезда.", out.Reply)
	assert.False(t, out.LookedUp)
	assert.Zero(t, h.pms.callCount())
}

func TestHandleIncoming_PriceNeedsAdults(t *testing.T) {
	h := newHarness(t)

	out := h.orch.HandleIncoming(context.Background(), Incoming{
		Channel: hub.ChannelTelegram, ExternalUserID: "555", Text: "цена 12.11.2025 14.11.2025",
	})
	assert.Equal(t, "Напишите, сколько взрослых и детей планируется.", out.Reply)
	assert.Zero(t, h.pms.callCount())
}

func TestHandleIncoming_PriceWithOffers(t *testing.T) {
	h := newHarness(t)
	h.pms.rooms = []pms.Room{
		{ID: "h4", AvailableUnits: 1, Price: 24000, Currency: "RUB"},
	}
	adults := 5
	out := h.orch.HandleIncoming(context.Background(), Incoming{
		Channel:        hub.ChannelInstagram,
		ExternalUserID: "ig-1",
		Text:           "стоимость 12.11.2025 14.11.2025",
		Structured:     Structured{Adults: &adults},
	})
	assert.Equal(t, "Стоимость от 24000 RUB за весь период.\nСвободные варианты:\n• Большой дом (до 6 гостей)\nХотите оформить бронь?", out.Reply)
}

func TestHandleIncoming_BookingNoneAvailable(t *testing.T) {
	h := newHarness(t, WithBookingBaseURL("https://drewno.example/booking"))
	h.pms.rooms = []pms.Room{{ID: "h1", AvailableUnits: 1}}

	out := h.orch.HandleIncoming(context.Background(), Incoming{
		Channel: hub.ChannelTelegram, ExternalUserID: "555", Text: "бронь 12.11.2025 14.11.2025 6",
	})
	assert.Equal(t, "Не вижу доступных домиков на эти даты. Подскажете альтернативные даты?", out.Reply)
}

func TestHandleIncoming_BookingWithLink(t *testing.T) {
	h := newHarness(t, WithBookingBaseURL("https://drewno.example/booking"))
	h.pms.rooms = []pms.Room{{ID: "h1", AvailableUnits: 1}}

	out := h.orch.HandleIncoming(context.Background(), Incoming{
		Channel: hub.ChannelTelegram, ExternalUserID: "555", Text: "бронь 2025-11-12 2025-11-14 2 2",
	})
	assert.True(t, strings.HasPrefix(out.Reply, "Готово! Свободные варианты:\n• Домик 1 (до 4 гостей)\nСсылка на бронь: https://drewno.example/booking?"))
	assert.Contains(t, out.Reply, "children=2")
}

func TestHandleIncoming_AddonsAndFallback(t *testing.T) {
	h := newHarness(t)

	addons := h.orch.HandleIncoming(context.Background(), Incoming{
		Channel: hub.ChannelTelegram, ExternalUserID: "555", Text: "А баня есть?",
	})
	assert.Equal(t, BranchAddons, addons.Branch)
	assert.Equal(t, "Можем предложить баню и купель. Добавить что-то из этого к бронированию?", addons.Reply)

	fallback := h.orch.HandleIncoming(context.Background(), Incoming{
		Channel: hub.ChannelTelegram, ExternalUserID: "555", Text: "какая погода",
	})
	assert.Equal(t, intent.Fallback, fallback.Intent.Name)
	assert.Equal(t, "Напишите, пожалуйста, дату прибытия/выезда и количество гостей, чтобы подсказать по свободным домикам.", fallback.Reply)
	assert.Zero(t, h.pms.callCount())
}

func TestHandleIncoming_PMSErrorDegrades(t *testing.T) {
	h := newHarness(t)
	h.pms.err = errors.New("connection refused")

	out := h.orch.HandleIncoming(context.Background(), Incoming{
		Channel: hub.ChannelTelegram, ExternalUserID: "555", Text: "дата 12.11.2025 14.11.2025 2",
	})
	assert.Equal(t, StateDone, out.State)
	assert.Error(t, out.LookupErr)
	assert.NoError(t, out.Err)
	assert.Equal(t, "Не удалось получить доступность. Попробуйте позже или уточните данные.", out.Reply)
	assert.Len(t, h.sender.replies(), 1)
}

func TestHandleIncoming_PMSNotConfigured(t *testing.T) {
	svc := hub.NewService(hub.NewMemoryStore(), logging.Discard())
	sender := &fakeSender{}
	orch := NewOrchestrator(svc, nil, nil, logging.Discard(), WithSender(hub.ChannelTelegram, sender))

	out := orch.HandleIncoming(context.Background(), Incoming{
		Channel: hub.ChannelTelegram, ExternalUserID: "555", Text: "дата 12.11.2025 14.11.2025 2",
	})
	assert.ErrorIs(t, out.LookupErr, pms.ErrNotConfigured)
	assert.Equal(t, replyNotConfigured, out.Reply)
}

func TestHandleIncoming_SendFailureKeepsTranscript(t *testing.T) {
	h := newHarness(t)
	h.sender.err = errors.New("telegram: 403 bot was blocked")

	out := h.orch.HandleIncoming(context.Background(), Incoming{
		Channel: hub.ChannelTelegram, ExternalUserID: "555", Text: "привет",
	})
	assert.Equal(t, StateDone, out.State)
	assert.Error(t, out.SendErr)
	assert.NoError(t, out.Err)

	msgs := h.transcript(t, out.ConversationID)
	require.Len(t, msgs, 2)
	assert.Equal(t, hub.DirectionOut, msgs[1].Direction)
}

func TestHandleIncoming_NoSenderForChannel(t *testing.T) {
	svc := hub.NewService(hub.NewMemoryStore(), logging.Discard())
	orch := NewOrchestrator(svc, intent.DefaultTable(), &fakePMS{}, logging.Discard())

	out := orch.HandleIncoming(context.Background(), Incoming{
		Channel: hub.ChannelInstagram, ExternalUserID: "ig", Text: "привет",
	})
	assert.ErrorIs(t, out.SendErr, ErrNoSender)
}

func TestHandleIncoming_SameUserSameConversation(t *testing.T) {
	h := newHarness(t)
	t0 := time.Date(2025, 11, 10, 9, 0, 0, 0, time.UTC)
	t1 := t0.Add(5 * time.Minute)

	first := h.orch.HandleIncoming(context.Background(), Incoming{
		Channel: hub.ChannelInstagram, ExternalUserID: "ig-7", Text: "привет", Timestamp: t0, ExternalMessageID: "m1",
	})
	second := h.orch.HandleIncoming(context.Background(), Incoming{
		Channel: hub.ChannelInstagram, ExternalUserID: "ig-7", Text: "есть домик?", Timestamp: t1, ExternalMessageID: "m2",
	})

	require.Equal(t, first.ConversationID, second.ConversationID)
	assert.Equal(t, first.ContactID, second.ContactID)

	var inbound []hub.Message
	for _, m := range h.transcript(t, first.ConversationID) {
		if m.Direction == hub.DirectionIn {
			inbound = append(inbound, m)
		}
	}
	require.Len(t, inbound, 2)
	assert.Equal(t, "привет", inbound[0].Text)
	assert.Equal(t, "есть домик?", inbound[1].Text)
	assert.True(t, inbound[1].Timestamp.Equal(t1))

	conv, err := h.hub.GetConversation(context.Background(), first.ConversationID)
	require.NoError(t, err)
	require.NotNil(t, conv.LastMessageAt)
	assert.False(t, conv.LastMessageAt.Before(t1))
}

func TestHandleIncoming_DuplicateDeliverySkipsReply(t *testing.T) {
	h := newHarness(t)
	h.pms.rooms = []pms.Room{{ID: "h1", AvailableUnits: 1}}
	in := Incoming{
		Channel: hub.ChannelTelegram, ExternalUserID: "555", Text: "дата 12.11.2025 14.11.2025 2", ExternalMessageID: "77",
	}

	first := h.orch.HandleIncoming(context.Background(), in)
	second := h.orch.HandleIncoming(context.Background(), in)

	assert.Equal(t, StateDone, first.State)
	assert.Equal(t, StateDuplicate, second.State)
	assert.Equal(t, first.Inbound.ID, second.Inbound.ID)
	assert.Equal(t, 1, h.pms.callCount())
	assert.Len(t, h.sender.replies(), 1)
	assert.Len(t, h.transcript(t, first.ConversationID), 2)
}

type fakeGuard struct {
	seen      map[string]bool
	forgotten []string
}

func (g *fakeGuard) MarkSeen(ctx context.Context, channel hub.Channel, id string) (bool, error) {
	key := string(channel) + ":" + id
	if g.seen[key] {
		return false, nil
	}
	g.seen[key] = true
	return true, nil
}

func (g *fakeGuard) Forget(ctx context.Context, channel hub.Channel, id string) error {
	g.forgotten = append(g.forgotten, id)
	delete(g.seen, string(channel)+":"+id)
	return nil
}

func TestHandleIncoming_GuardDropsRedelivery(t *testing.T) {
	guard := &fakeGuard{seen: map[string]bool{}}
	h := newHarness(t, WithInboundGuard(guard))
	in := Incoming{Channel: hub.ChannelTelegram, ExternalUserID: "555", Text: "привет", ExternalMessageID: "9"}

	assert.Equal(t, StateDone, h.orch.HandleIncoming(context.Background(), in).State)
	assert.Equal(t, StateDuplicate, h.orch.HandleIncoming(context.Background(), in).State)
	assert.Len(t, h.sender.replies(), 1)
}

type failingLedger struct {
	Ledger
}

func (failingLedger) FindOrCreateContact(ctx context.Context, channel hub.Channel, externalID string, hints hub.ContactHints) (hub.Contact, error) {
	return hub.Contact{}, errors.New("db down")
}

func TestHandleIncoming_StorageFailureStillAnswers(t *testing.T) {
	guard := &fakeGuard{seen: map[string]bool{}}
	sender := &fakeSender{}
	orch := NewOrchestrator(failingLedger{}, intent.DefaultTable(), &fakePMS{}, logging.Discard(),
		WithSender(hub.ChannelTelegram, sender), WithInboundGuard(guard))

	out := orch.HandleIncoming(context.Background(), Incoming{
		Channel: hub.ChannelTelegram, ExternalUserID: "555", Text: "привет", ExternalMessageID: "5",
	})
	assert.Equal(t, StateFailed, out.State)
	assert.Error(t, out.Err)
	assert.Equal(t, replyInternalError, out.Reply)
	assert.Len(t, sender.replies(), 1)
	assert.Equal(t, []string{"5"}, guard.forgotten)
}

func TestHandleIncoming_UnknownChannel(t *testing.T) {
	h := newHarness(t)
	out := h.orch.HandleIncoming(context.Background(), Incoming{Channel: "sms", ExternalUserID: "1", Text: "hi"})
	assert.Equal(t, StateFailed, out.State)
	assert.ErrorIs(t, out.Err, hub.ErrUnknownChannel)
	assert.Empty(t, h.sender.replies())
}

func TestHandleIncoming_TableResponsesOverrideCannedReplies(t *testing.T) {
	table, err := intent.NewTable([]intent.Definition{
		{Name: intent.Addons, Examples: []string{"сауна"}, Response: "Есть сауна на дровах."},
		{Name: intent.Fallback},
	})
	require.NoError(t, err)
	svc := hub.NewService(hub.NewMemoryStore(), logging.Discard())
	sender := &fakeSender{}
	orch := NewOrchestrator(svc, table, &fakePMS{}, logging.Discard(), WithSender(hub.ChannelTelegram, sender))

	out := orch.HandleIncoming(context.Background(), Incoming{Channel: hub.ChannelTelegram, ExternalUserID: "1", Text: "сауна?"})
	assert.Equal(t, "Есть сауна на дровах.", out.Reply)

	out = orch.HandleIncoming(context.Background(), Incoming{Channel: hub.ChannelTelegram, ExternalUserID: "1", Text: "?"})
	assert.Equal(t, replyFallback, out.Reply)
}

// touchFailingStore fails the next n Touch calls.
type touchFailingStore struct {
	*hub.MemoryStore
	mu    sync.Mutex
	fails int
}

func (s *touchFailingStore) Touch(ctx context.Context, conversationID string, ts time.Time) error {
	s.mu.Lock()
	if s.fails > 0 {
		s.fails--
		s.mu.Unlock()
		return errors.New("db blip")
	}
	s.mu.Unlock()
	return s.MemoryStore.Touch(ctx, conversationID, ts)
}

func TestHandleIncoming_TouchFailureStillAnswers(t *testing.T) {
	store := &touchFailingStore{MemoryStore: hub.NewMemoryStore(), fails: 1}
	svc := hub.NewService(store, logging.Discard())
	sender := &fakeSender{}
	orch := NewOrchestrator(svc, intent.DefaultTable(), &fakePMS{}, logging.Discard(),
		WithSender(hub.ChannelTelegram, sender))

	in := Incoming{Channel: hub.ChannelTelegram, ExternalUserID: "555", Text: "какая погода", ExternalMessageID: "9"}
	out := orch.HandleIncoming(context.Background(), in)
	require.Equal(t, StateDone, out.State)
	assert.NoError(t, out.Err)
	assert.Equal(t, replyFallback, out.Reply)
	assert.NotEmpty(t, out.Outbound.ID)

	retry := orch.HandleIncoming(context.Background(), in)
	assert.Equal(t, StateDuplicate, retry.State)
	assert.Len(t, sender.replies(), 1)

	msgs, err := svc.List(context.Background(), out.ConversationID)
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	assert.Equal(t, hub.DirectionIn, msgs[0].Direction)
	assert.Equal(t, hub.DirectionOut, msgs[1].Direction)

	conv, err := svc.GetConversation(context.Background(), out.ConversationID)
	require.NoError(t, err)
	require.NotNil(t, conv.LastMessageAt)
	assert.True(t, conv.LastMessageAt.Equal(msgs[1].Timestamp))
}

func TestSendOperatorMessage_TouchFailureKeepsMessage(t *testing.T) {
	store := &touchFailingStore{MemoryStore: hub.NewMemoryStore()}
	svc := hub.NewService(store, logging.Discard())
	sender := &fakeSender{}
	orch := NewOrchestrator(svc, intent.DefaultTable(), &fakePMS{}, logging.Discard(),
		WithSender(hub.ChannelTelegram, sender))

	out := orch.HandleIncoming(context.Background(), Incoming{Channel: hub.ChannelTelegram, ExternalUserID: "555", Text: "привет"})
	require.Equal(t, StateDone, out.State)

	store.mu.Lock()
	store.fails = 1
	store.mu.Unlock()
	msg, err := orch.SendOperatorMessage(context.Background(), out.ConversationID, "Добрый день!")
	require.NoError(t, err)
	assert.NotEmpty(t, msg.ID)
	assert.Len(t, sender.replies(), 2)
}
