package dialog

import (
	"strconv"
	"strings"
)

const (
	replyAddons   = "Можем предложить баню и купель. Добавить что-то из этого к бронированию?"
	replyFallback = "Напишите, пожалуйста, дату прибытия/выезда и количество гостей, чтобы подсказать по свободным домикам."

	replyAvailabilityNeedDates  = "Уточните, пожалуйста, даты заезда и выезда."
	replyAvailabilityNeedAdults = "Сколько взрослых и детей поедет?"
	replyAvailabilityNone       = "К сожалению, подходящих домиков на эти даты нет."
	replyAvailabilityOfferLink  = "Готов оформить бронь? Могу прислать ссылку."

	replyPriceNeedDates  = "Чтобы подсчитать стоимость, пришлите даты заезда и выезда."
	replyPriceNeedAdults = "Напишите, сколько взрослых и детей планируется."
	replyPriceNone       = "На выбранные даты нет свободных домиков. Предложить другие даты?"

	replyBookingNeedParams = "Пришлите даты заезда/выезда и количество гостей, чтобы я сформировал ссылку на бронь."
	replyBookingNone       = "Не вижу доступных домиков на эти даты. Подскажете альтернативные даты?"

	replyLookupFailed   = "Не удалось получить доступность. Попробуйте позже или уточните данные."
	replyNotConfigured  = "Сейчас не получается проверить свободные домики. Администратор свяжется с вами в ближайшее время."
	replyInternalError  = "Извините, что-то пошло не так. Попробуйте написать чуть позже."
	replyBookingCreated = "Бронь создана, номер брони: "
	replyBookingFailed  = "Не удалось создать бронь. Пожалуйста, уточните данные или попробуйте позже."
)

const defaultCurrency = "RUB"

func formatPrice(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

func currencyOr(c string) string {
	if c == "" {
		return defaultCurrency
	}
	return c
}

func houseList(offers []Offer) string {
	lines := make([]string, len(offers))
	for i, o := range offers {
		lines[i] = "• " + o.Title
	}
	return strings.Join(lines, "\n")
}

func availabilityReply(offers []Offer, link string) string {
	if len(offers) == 0 {
		return replyAvailabilityNone
	}
	var b strings.Builder
	b.WriteString("Свободные варианты:\n")
	b.WriteString(houseList(offers))
	if head := offers[0]; head.Price > 0 {
		b.WriteString("\nПримерная стоимость: " + formatPrice(head.Price) + " " + currencyOr(head.Currency) + ".")
	}
	if link != "" {
		b.WriteString("\n\nСсылка на бронирование: " + link)
	} else {
		b.WriteString("\n\n" + replyAvailabilityOfferLink)
	}
	return b.String()
}

func priceReply(offers []Offer) string {
	if len(offers) == 0 {
		return replyPriceNone
	}
	var b strings.Builder
	if head := offers[0]; head.Price > 0 {
		b.WriteString("Стоимость от " + formatPrice(head.Price) + " " + currencyOr(head.Currency) + " за весь период.\n")
	}
	b.WriteString("Свободные варианты:\n")
	b.WriteString(houseList(offers))
	b.WriteString("\nХотите оформить бронь?")
	return b.String()
}

func bookingReply(offers []Offer, link string) string {
	if len(offers) == 0 {
		return replyBookingNone
	}
	reply := "Готово! Свободные варианты:\n" + houseList(offers)
	if link != "" {
		reply += "\nСсылка на бронь: " + link
	}
	return reply
}
