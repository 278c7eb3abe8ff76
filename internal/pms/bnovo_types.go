package pms

import (
	"bytes"
	"encoding/json"
	"strconv"
	"strings"
)

// flexString accepts JSON strings and numbers.
type flexString string

func (s *flexString) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || string(b) == "null" {
		return nil
	}
	if b[0] == '"' {
		var v string
		if err := json.Unmarshal(b, &v); err != nil {
			return err
		}
		*s = flexString(v)
		return nil
	}
	*s = flexString(string(b))
	return nil
}

// flexFloat accepts numbers and numeric strings; anything else reads as zero.
type flexFloat float64

func (f *flexFloat) UnmarshalJSON(b []byte) error {
	var s flexString
	if err := s.UnmarshalJSON(b); err != nil {
		return err
	}
	v, err := strconv.ParseFloat(strings.TrimSpace(string(s)), 64)
	if err != nil {
		*f = 0
		return nil
	}
	*f = flexFloat(v)
	return nil
}

type bnovoRoom struct {
	ID             flexString `json:"id"`
	Title          string     `json:"title"`
	Name           string     `json:"name"`
	Available      *bool      `json:"available"`
	AvailableUnits *int       `json:"available_units"`
	Capacity       int        `json:"capacity"`
	MaxGuests      int        `json:"max_guests"`
	Price          flexFloat  `json:"price"`
	Currency       string     `json:"currency"`
}

func (r bnovoRoom) toRoom(defaultCurrency string) Room {
	units := 0
	switch {
	case r.AvailableUnits != nil:
		units = *r.AvailableUnits
	case r.Available != nil && *r.Available:
		units = 1
	}
	title := r.Title
	if title == "" {
		title = r.Name
	}
	capacity := r.Capacity
	if capacity == 0 {
		capacity = r.MaxGuests
	}
	currency := r.Currency
	if currency == "" && r.Price > 0 {
		currency = defaultCurrency
	}
	return Room{
		ID:             string(r.ID),
		Title:          title,
		AvailableUnits: units,
		Capacity:       capacity,
		Price:          float64(r.Price),
		Currency:       currency,
	}
}

type bnovoGuest struct {
	Name  string `json:"name"`
	Phone string `json:"phone"`
}

type bnovoRoomRef struct {
	ID    flexString `json:"id"`
	Title string     `json:"title"`
}

type bnovoArrivalTime struct {
	From string `json:"from"`
	To   string `json:"to"`
}

type bnovoService struct {
	ID       flexString `json:"id"`
	Code     string     `json:"code"`
	Title    string     `json:"title"`
	Name     string     `json:"name"`
	Price    flexFloat  `json:"price"`
	Quantity flexFloat  `json:"quantity"`
	Comment  string     `json:"comment"`
}

// bnovoBooking covers the field spellings seen across Bnovo API versions.
type bnovoBooking struct {
	ID              flexString        `json:"id"`
	BookingID       flexString        `json:"booking_id"`
	CreatedAt       string            `json:"created_at"`
	Arrival         string            `json:"arrival"`
	ArrivalDate     string            `json:"arrival_date"`
	Departure       string            `json:"departure"`
	DepartureDate   string            `json:"departure_date"`
	Guest           *bnovoGuest       `json:"guest"`
	GuestName       string            `json:"guest_name"`
	Phone           string            `json:"phone"`
	GuestPhone      string            `json:"guest_phone"`
	Room            *bnovoRoomRef     `json:"room"`
	RoomID          flexString        `json:"room_id"`
	RoomName        string            `json:"room_name"`
	Adults          flexFloat         `json:"adults"`
	AdultsCount     flexFloat         `json:"adults_count"`
	Children        flexFloat         `json:"children"`
	ChildrenCount   flexFloat         `json:"children_count"`
	Amount          flexFloat         `json:"amount"`
	TotalAmount     flexFloat         `json:"total_amount"`
	Prepayment      flexFloat         `json:"prepayment"`
	PrepaymentAmt   flexFloat         `json:"prepayment_amount"`
	Currency        string            `json:"currency"`
	Status          string            `json:"status"`
	ArrivalTime     *bnovoArrivalTime `json:"arrival_time"`
	Comment         string            `json:"comment"`
	Notes           string            `json:"notes"`
	SpecialRequests string            `json:"special_requests"`
	Services        []bnovoService    `json:"services"`
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

func firstNonZero(values ...flexFloat) float64 {
	for _, v := range values {
		if v != 0 {
			return float64(v)
		}
	}
	return 0
}

func (b bnovoBooking) toBooking() Booking {
	out := Booking{
		ID:               firstNonEmpty(string(b.ID), string(b.BookingID)),
		CreatedAt:        b.CreatedAt,
		ArrivalDate:      firstNonEmpty(b.Arrival, b.ArrivalDate),
		DepartureDate:    firstNonEmpty(b.Departure, b.DepartureDate),
		GuestName:        b.GuestName,
		Phone:            firstNonEmpty(b.Phone, b.GuestPhone),
		RoomID:           string(b.RoomID),
		RoomTitle:        b.RoomName,
		Adults:           int(firstNonZero(b.Adults, b.AdultsCount)),
		Children:         int(firstNonZero(b.Children, b.ChildrenCount)),
		TotalAmount:      firstNonZero(b.Amount, b.TotalAmount),
		PrepaymentAmount: firstNonZero(b.Prepayment, b.PrepaymentAmt),
		Currency:         firstNonEmpty(b.Currency, "BYN"),
		Status:           b.Status,
		Comment:          firstNonEmpty(b.Comment, b.Notes),
		SpecialRequests:  b.SpecialRequests,
	}
	if b.Guest != nil {
		out.GuestName = firstNonEmpty(b.Guest.Name, out.GuestName)
		out.Phone = firstNonEmpty(b.Guest.Phone, out.Phone)
	}
	if b.Room != nil {
		out.RoomID = firstNonEmpty(string(b.Room.ID), out.RoomID)
		out.RoomTitle = firstNonEmpty(b.Room.Title, out.RoomTitle)
	}
	if b.ArrivalTime != nil {
		out.ArrivalTimeFrom = b.ArrivalTime.From
		out.ArrivalTimeTo = b.ArrivalTime.To
	}
	for _, s := range b.Services {
		out.Services = append(out.Services, BookingService{
			ID:       string(s.ID),
			Code:     s.Code,
			Title:    firstNonEmpty(s.Title, s.Name),
			Price:    float64(s.Price),
			Quantity: int(s.Quantity),
			Comment:  s.Comment,
		})
	}
	return out
}
