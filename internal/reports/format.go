package reports

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/wolfman30/guesthub/internal/pms"
)

const (
	moneyCurrency = "BYN"
	nbsp          = "\u00a0"
	emptyField    = "—"
)

var genitiveMonths = [...]string{
	"января", "февраля", "марта", "апреля", "мая", "июня",
	"июля", "августа", "сентября", "октября", "ноября", "декабря",
}

// FormatMorningTasks renders the list of yesterday's bookings that still need
// a prepayment call.
func FormatMorningTasks(property string, bookings []pms.Booking, label string) string {
	if len(bookings) == 0 {
		return fmt.Sprintf("🌅 Утренние задачи %s за %s: задач нет.", property, label)
	}

	blocks := make([]string, 0, len(bookings))
	for i, b := range bookings {
		remaining := math.Max(b.TotalAmount-b.PrepaymentAmount, 0)
		lines := []string{
			fmt.Sprintf("%d) %s — %s", i+1, b.GuestName, b.RoomTitle),
			"📅 " + formatDateRange(b.ArrivalDate, b.DepartureDate),
			fmt.Sprintf("💰 %s | Остаток: %s", formatMoney(b.TotalAmount), formatMoney(remaining)),
			fmt.Sprintf("💸 Предоплата: %s → требуется звонок", formatMoney(b.PrepaymentAmount)),
			"📞 " + orDash(b.Phone),
		}
		if b.Comment != "" {
			lines = append(lines, "📝 Комментарий: "+b.Comment)
		}
		blocks = append(blocks, strings.Join(lines, "\n"))
	}

	header := fmt.Sprintf("🌅 Утренние задачи %s (новые брони за вчера без предоплаты)", property)
	return strings.Join(append([]string{header, ""}, blocks...), "\n")
}

// FormatTodayCheckins renders the arrivals list for the check-ins chat.
func FormatTodayCheckins(bookings []pms.Booking, label string) string {
	if len(bookings) == 0 {
		return fmt.Sprintf("🏡 Заселения на сегодня (%s): заездов нет.", label)
	}

	blocks := make([]string, 0, len(bookings))
	for i, b := range bookings {
		lines := []string{
			fmt.Sprintf("%d) %s", i+1, b.RoomTitle),
			"👥 " + formatGuests(b.Adults, b.Children),
		}
		if b.ArrivalTimeFrom != "" || b.ArrivalTimeTo != "" {
			window := "🕒 Заезд: " + orDash(b.ArrivalTimeFrom)
			if b.ArrivalTimeTo != "" {
				window += "–" + b.ArrivalTimeTo
			}
			lines = append(lines, window)
		}
		lines = append(lines,
			"📅 "+formatDateRange(b.ArrivalDate, b.DepartureDate),
			fmt.Sprintf("📞 %s (%s)", orDash(b.Phone), b.GuestName),
		)
		if services := formatServices(b.Services); services != "" {
			lines = append(lines, "🔥 Услуги: "+services)
		}
		if b.Comment != "" {
			lines = append(lines, "📝 Комментарий: "+b.Comment)
		}
		if b.SpecialRequests != "" {
			lines = append(lines, "📝 Пожелания: "+b.SpecialRequests)
		}
		blocks = append(blocks, strings.Join(lines, "\n"))
	}

	header := fmt.Sprintf("🏡 Заселения на сегодня (%s)", label)
	return strings.Join(append([]string{header, ""}, blocks...), "\n")
}

func formatServices(items []pms.BookingService) string {
	parts := make([]string, 0, len(items))
	for _, s := range items {
		part := s.Title
		if s.Quantity > 0 {
			part += " x" + strconv.Itoa(s.Quantity)
		}
		if s.Comment != "" {
			part += " (" + s.Comment + ")"
		}
		parts = append(parts, part)
	}
	return strings.Join(parts, ", ")
}

func formatGuests(adults, children int) string {
	out := strconv.Itoa(adults) + " взрослый(ых)"
	if children > 0 {
		out += " + " + strconv.Itoa(children) + " ребёнок(а)"
	}
	return out
}

// formatMoney renders v with Russian digit grouping: 15 000,5 BYN.
func formatMoney(v float64) string {
	neg := v < 0
	v = math.Abs(math.Round(v*100) / 100)
	whole := int64(v)
	frac := int64(math.Round((v - float64(whole)) * 100))

	digits := strconv.FormatInt(whole, 10)
	var b strings.Builder
	for i, r := range digits {
		if i > 0 && (len(digits)-i)%3 == 0 {
			b.WriteString(nbsp)
		}
		b.WriteRune(r)
	}
	out := b.String()
	if frac > 0 {
		out += "," + strings.TrimRight(fmt.Sprintf("%02d", frac), "0")
	}
	if neg {
		out = "-" + out
	}
	return out + " " + moneyCurrency
}

// formatDateRange renders "12 ноября – 14 ноября", collapsing equal ends.
// Unparseable values are shown as received.
func formatDateRange(from, to string) string {
	start, end := formatDay(from), formatDay(to)
	if start == end {
		return start
	}
	return start + " – " + end
}

func formatDay(s string) string {
	if len(s) >= 10 {
		if t, err := time.Parse("2006-01-02", s[:10]); err == nil {
			return fmt.Sprintf("%02d %s", t.Day(), genitiveMonths[t.Month()-1])
		}
	}
	if t, err := time.Parse("02.01.2006", s); err == nil {
		return fmt.Sprintf("%02d %s", t.Day(), genitiveMonths[t.Month()-1])
	}
	return s
}

func dayMonthLabel(t time.Time) string {
	return t.Format("02.01")
}

func orDash(s string) string {
	if strings.TrimSpace(s) == "" {
		return emptyField
	}
	return s
}
