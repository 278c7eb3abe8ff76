package reports

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wolfman30/guesthub/internal/notify"
	"github.com/wolfman30/guesthub/internal/pms"
	"github.com/wolfman30/guesthub/pkg/logging"
)

type fakeSource struct {
	created    []pms.Booking
	arrivals   []pms.Booking
	err        error
	gotFrom    time.Time
	gotTo      time.Time
	gotArrival time.Time
}

func (f *fakeSource) BookingsCreatedBetween(ctx context.Context, from, to time.Time) ([]pms.Booking, error) {
	f.gotFrom, f.gotTo = from, to
	return f.created, f.err
}

func (f *fakeSource) BookingsByArrival(ctx context.Context, date time.Time) ([]pms.Booking, error) {
	f.gotArrival = date
	return f.arrivals, f.err
}

type fakeNotifier struct {
	digests []notify.Digest
	err     error
}

func (f *fakeNotifier) Deliver(ctx context.Context, d notify.Digest) error {
	f.digests = append(f.digests, d)
	return f.err
}

func minsk(t *testing.T) *time.Location {
	t.Helper()
	loc, err := time.LoadLocation("Europe/Minsk")
	require.NoError(t, err)
	return loc
}

func newTestService(t *testing.T, src *fakeSource, n *fakeNotifier) *Service {
	t.Helper()
	svc := NewService(src, n, Config{AdminChatID: "111", CheckinsChatID: "-100222", Location: minsk(t)}, logging.Discard())
	// 00:30 UTC on 13 Nov is already 03:30 on 13 Nov in Minsk.
	svc.now = func() time.Time { return time.Date(2025, 11, 13, 0, 30, 0, 0, time.UTC) }
	return svc
}

func TestSendMorningTasks(t *testing.T) {
	src := &fakeSource{created: []pms.Booking{
		{GuestName: "Иван Иванов", RoomTitle: "Домик 1", ArrivalDate: "2025-11-20", DepartureDate: "2025-11-22",
			TotalAmount: 15000, PrepaymentAmount: 5000, Phone: "+375291112233", Comment: "Поздний заезд"},
		{GuestName: "Оплачено", RoomTitle: "Домик 2", TotalAmount: 300, PrepaymentAmount: 300},
		{GuestName: "Без суммы", RoomTitle: "Большой дом", ArrivalDate: "2025-12-31", DepartureDate: "2025-12-31"},
	}}
	n := &fakeNotifier{}
	svc := newTestService(t, src, n)

	require.NoError(t, svc.SendMorningTasks(context.Background()))

	loc := minsk(t)
	assert.True(t, src.gotFrom.Equal(time.Date(2025, 11, 12, 0, 0, 0, 0, loc)))
	assert.True(t, src.gotTo.Equal(time.Date(2025, 11, 12, 23, 59, 59, int(999*time.Millisecond), loc)))

	require.Len(t, n.digests, 1)
	assert.Equal(t, "111", n.digests[0].ChatID)
	want := strings.Join([]string{
		"🌅 Утренние задачи DREWNO (новые брони за вчера без предоплаты)",
		"",
		"1) Иван Иванов — Домик 1",
		"📅 20 ноября – 22 ноября",
		"💰 15 000 BYN | Остаток: 10 000 BYN",
		"💸 Предоплата: 5 000 BYN → требуется звонок",
		"📞 +375291112233",
		"📝 Комментарий: Поздний заезд",
		"2) Без суммы — Большой дом",
		"📅 31 декабря",
		"💰 0 BYN | Остаток: 0 BYN",
		"💸 Предоплата: 0 BYN → требуется звонок",
		"📞 —",
	}, "\n")
	assert.Equal(t, want, n.digests[0].Text)
}

func TestSendMorningTasks_Empty(t *testing.T) {
	n := &fakeNotifier{}
	svc := newTestService(t, &fakeSource{}, n)

	require.NoError(t, svc.SendMorningTasks(context.Background()))
	assert.Equal(t, "🌅 Утренние задачи DREWNO за 12.11: задач нет.", n.digests[0].Text)
}

func TestSendTodayCheckins(t *testing.T) {
	src := &fakeSource{arrivals: []pms.Booking{
		{GuestName: "Анна", RoomTitle: "Домик 3", Adults: 2, Children: 1, ArrivalDate: "2025-11-13", DepartureDate: "2025-11-15",
			ArrivalTimeFrom: "14:00", ArrivalTimeTo: "16:00", Phone: "+375290000000", Status: "confirmed",
			Services: []pms.BookingService{{Title: "Баня", Quantity: 2, Comment: "вечером"}, {Title: "Купель"}},
			SpecialRequests: "Детская кроватка"},
		{GuestName: "Отмена", RoomTitle: "Домик 1", Status: "cancelled"},
		{GuestName: "Пётр", RoomTitle: "Большой дом", Adults: 4, ArrivalDate: "2025-11-13", DepartureDate: "2025-11-14",
			ArrivalTimeTo: "18:00"},
	}}
	n := &fakeNotifier{}
	svc := newTestService(t, src, n)

	require.NoError(t, svc.SendTodayCheckins(context.Background()))
	assert.Equal(t, "2025-11-13", src.gotArrival.Format("2006-01-02"))

	require.Len(t, n.digests, 1)
	assert.Equal(t, "-100222", n.digests[0].ChatID)
	want := strings.Join([]string{
		"🏡 Заселения на сегодня (13.11)",
		"",
		"1) Домик 3",
		"👥 2 взрослый(ых) + 1 ребёнок(а)",
		"🕒 Заезд: 14:00–16:00",
		"📅 13 ноября – 15 ноября",
		"📞 +375290000000 (Анна)",
		"🔥 Услуги: Баня x2 (вечером), Купель",
		"📝 Пожелания: Детская кроватка",
		"2) Большой дом",
		"👥 4 взрослый(ых)",
		"🕒 Заезд: —–18:00",
		"📅 13 ноября – 14 ноября",
		"📞 — (Пётр)",
	}, "\n")
	assert.Equal(t, want, n.digests[0].Text)
}

func TestSendTodayCheckins_Empty(t *testing.T) {
	n := &fakeNotifier{}
	svc := newTestService(t, &fakeSource{arrivals: []pms.Booking{{Status: "cancelled"}}}, n)

	require.NoError(t, svc.SendTodayCheckins(context.Background()))
	assert.Equal(t, "🏡 Заселения на сегодня (13.11): заездов нет.", n.digests[0].Text)
}

func TestReports_FetchFailureSendsNothing(t *testing.T) {
	n := &fakeNotifier{}
	svc := newTestService(t, &fakeSource{err: errors.New("bnovo: 503")}, n)

	assert.Error(t, svc.SendMorningTasks(context.Background()))
	assert.Error(t, svc.SendTodayCheckins(context.Background()))
	assert.Empty(t, n.digests)
}

func TestReports_DeliveryFailure(t *testing.T) {
	n := &fakeNotifier{err: notify.ErrNoRecipient}
	svc := newTestService(t, &fakeSource{}, n)

	assert.ErrorIs(t, svc.SendTodayCheckins(context.Background()), notify.ErrNoRecipient)
}

func TestFormatMoney(t *testing.T) {
	assert.Equal(t, "0 BYN", formatMoney(0))
	assert.Equal(t, "999 BYN", formatMoney(999))
	assert.Equal(t, "1 234 567 BYN", formatMoney(1234567))
	assert.Equal(t, "150,5 BYN", formatMoney(150.5))
	assert.Equal(t, "10,25 BYN", formatMoney(10.25))
}

func TestFormatDateRange(t *testing.T) {
	assert.Equal(t, "01 января – 03 января", formatDateRange("2026-01-01", "2026-01-03"))
	assert.Equal(t, "05 марта", formatDateRange("2026-03-05 14:00:00", "2026-03-05"))
	assert.Equal(t, "12 ноября – 14 ноября", formatDateRange("12.11.2025", "14.11.2025"))
	assert.Equal(t, "soon – 14 ноября", formatDateRange("soon", "2025-11-14"))
}

func TestNormalizeSpec(t *testing.T) {
	assert.Equal(t, "30 8 * * *", NormalizeSpec("8:30"))
	assert.Equal(t, "05 21 * * *", NormalizeSpec(" 21:05 "))
	assert.Equal(t, "0 9 * * 1-5", NormalizeSpec("0 9 * * 1-5"))
	assert.Equal(t, "", NormalizeSpec(""))
}

func TestScheduler_Schedule(t *testing.T) {
	loc := minsk(t)
	s := NewScheduler(loc, logging.Discard())

	ok, err := s.Schedule("admin", "08:30", func(context.Context) error { return nil })
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = s.Schedule("checkins", "", func(context.Context) error { return nil })
	require.NoError(t, err)
	assert.False(t, ok)

	_, err = s.Schedule("broken", "every day", func(context.Context) error { return nil })
	assert.Error(t, err)

	s.Start()
	defer s.Stop()
	next, found := s.Next("admin")
	require.True(t, found)
	local := next.In(loc)
	assert.Equal(t, 8, local.Hour())
	assert.Equal(t, 30, local.Minute())
}

func TestScheduler_RunLogsFailures(t *testing.T) {
	s := NewScheduler(nil, logging.Discard())
	ran := 0
	s.run("failing", func(context.Context) error { ran++; return errors.New("boom") })
	s.run("panicking", func(context.Context) error { ran++; panic("oops") })
	assert.Equal(t, 2, ran)
}
