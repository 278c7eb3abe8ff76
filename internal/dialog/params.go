package dialog

import (
	"regexp"
	"strconv"
	"time"
)

var (
	datePattern   = regexp.MustCompile(`\d{2}\.\d{2}\.\d{4}|\d{4}-\d{2}-\d{2}`)
	numberPattern = regexp.MustCompile(`\d+`)
)

// Params are the booking parameters recoverable from one message. Adults of
// zero means the count is unknown.
type Params struct {
	ArrivalDate   string
	DepartureDate string
	Adults        int
	Children      int
}

// HasDates reports whether both stay dates are known.
func (p Params) HasDates() bool {
	return p.ArrivalDate != "" && p.DepartureDate != ""
}

// TotalGuests is adults plus children.
func (p Params) TotalGuests() int {
	return p.Adults + p.Children
}

// Structured carries parameters supplied explicitly by a caller, such as a
// channel quick-reply form. Set fields override anything parsed from text.
type Structured struct {
	ArrivalDate   string `json:"arrivalDate,omitempty"`
	DepartureDate string `json:"departureDate,omitempty"`
	Adults        *int   `json:"adults,omitempty"`
	Children      *int   `json:"children,omitempty"`
}

// ExtractParams parses dates (DD.MM.YYYY or YYYY-MM-DD, first two tokens) and
// guest counts (first number adults, second children) from free text. Date
// tokens are removed before counting guests so their digits are not mistaken
// for guest numbers.
func ExtractParams(text string) Params {
	var p Params

	dates := datePattern.FindAllString(text, -1)
	var valid []string
	for _, d := range dates {
		if isCalendarDate(d) {
			valid = append(valid, d)
		}
	}
	if len(valid) >= 2 {
		p.ArrivalDate = valid[0]
		p.DepartureDate = valid[1]
	}

	rest := datePattern.ReplaceAllString(text, " ")
	var numbers []int
	for _, tok := range numberPattern.FindAllString(rest, 2) {
		n, err := strconv.Atoi(tok)
		if err != nil {
			continue
		}
		numbers = append(numbers, n)
	}
	switch len(numbers) {
	case 0:
	case 1:
		p.Adults = numbers[0]
	default:
		p.Adults = numbers[0]
		p.Children = numbers[1]
	}
	return p
}

// ResolveParams merges structured fields over values parsed from text.
func ResolveParams(text string, s Structured) Params {
	p := ExtractParams(text)
	if s.ArrivalDate != "" {
		p.ArrivalDate = s.ArrivalDate
	}
	if s.DepartureDate != "" {
		p.DepartureDate = s.DepartureDate
	}
	if s.Adults != nil {
		p.Adults = *s.Adults
	}
	if s.Children != nil {
		p.Children = *s.Children
	}
	return p
}

func isCalendarDate(s string) bool {
	for _, layout := range []string{"02.01.2006", "2006-01-02"} {
		if _, err := time.Parse(layout, s); err == nil {
			return true
		}
	}
	return false
}
