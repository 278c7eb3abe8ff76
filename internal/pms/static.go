package pms

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// StaticClient serves a fixed inventory and keeps created bookings in
// memory. It backs demos and local runs without Bnovo credentials.
type StaticClient struct {
	rooms []Room
	now   func() time.Time

	mu       sync.Mutex
	seq      int
	bookings []Booking
}

var _ Client = (*StaticClient)(nil)

// DefaultRooms is the demo inventory: three small houses and one large house,
// the third sold out.
func DefaultRooms() []Room {
	return []Room{
		{ID: "h1", Title: "Домик 1 (до 4 гостей)", AvailableUnits: 1, Capacity: 4, Price: 15000, Currency: "RUB"},
		{ID: "h2", Title: "Домик 2 (до 4 гостей)", AvailableUnits: 1, Capacity: 4, Price: 15000, Currency: "RUB"},
		{ID: "h3", Title: "Домик 3 (до 4 гостей)", AvailableUnits: 0, Capacity: 4},
		{ID: "h4", Title: "Большой дом (до 6 гостей)", AvailableUnits: 1, Capacity: 6, Price: 24000, Currency: "RUB"},
	}
}

// NewStaticClient returns a client over rooms, or DefaultRooms when empty.
func NewStaticClient(rooms []Room) *StaticClient {
	if len(rooms) == 0 {
		rooms = DefaultRooms()
	}
	return &StaticClient{rooms: append([]Room(nil), rooms...), now: time.Now}
}

func (s *StaticClient) GetAvailability(ctx context.Context, req AvailabilityRequest) ([]Room, error) {
	if _, err := NormalizeDate(req.ArrivalDate); err != nil {
		return nil, err
	}
	if _, err := NormalizeDate(req.DepartureDate); err != nil {
		return nil, err
	}
	return append([]Room(nil), s.rooms...), nil
}

func (s *StaticClient) CreateBooking(ctx context.Context, req CreateBookingRequest) (*BookingResult, error) {
	arrival, err := NormalizeDate(req.ArrivalDate)
	if err != nil {
		return nil, err
	}
	departure, err := NormalizeDate(req.DepartureDate)
	if err != nil {
		return nil, err
	}

	var room *Room
	for i := range s.rooms {
		if s.rooms[i].ID == req.RoomID {
			room = &s.rooms[i]
			break
		}
	}
	if room == nil || room.AvailableUnits <= 0 {
		return nil, fmt.Errorf("pms: room %q not available", req.RoomID)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.seq++
	id := fmt.Sprintf("DEMO-%04d", s.seq)
	s.bookings = append(s.bookings, Booking{
		ID:               id,
		CreatedAt:        s.now().UTC().Format(time.RFC3339),
		ArrivalDate:      arrival,
		DepartureDate:    departure,
		GuestName:        req.GuestName,
		Phone:            req.Phone,
		RoomID:           room.ID,
		RoomTitle:        room.Title,
		Adults:           req.Adults,
		Children:         req.Children,
		TotalAmount:      room.Price,
		PrepaymentAmount: req.PrepaymentAmount,
		Currency:         room.Currency,
		Status:           "confirmed",
		Comment:          req.Comment,
	})
	return &BookingResult{ID: id, ConfirmationNumber: id}, nil
}

func (s *StaticClient) BookingsCreatedBetween(ctx context.Context, from, to time.Time) ([]Booking, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []Booking
	for _, b := range s.bookings {
		created, err := time.Parse(time.RFC3339, b.CreatedAt)
		if err != nil {
			continue
		}
		if !created.Before(from) && !created.After(to) {
			out = append(out, b)
		}
	}
	return out, nil
}

func (s *StaticClient) BookingsByArrival(ctx context.Context, date time.Time) ([]Booking, error) {
	day := date.Format("2006-01-02")
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []Booking
	for _, b := range s.bookings {
		if b.ArrivalDate == day {
			out = append(out, b)
		}
	}
	return out, nil
}
