// Package pms talks to the property-management system that owns room
// inventory and bookings.
package pms

import (
	"context"
	"errors"
	"time"
)

// ErrNotConfigured is returned when base URL or credentials are missing.
var ErrNotConfigured = errors.New("pms: not configured")

// Client is the narrow surface the dialog and reports depend on.
type Client interface {
	GetAvailability(ctx context.Context, req AvailabilityRequest) ([]Room, error)
	CreateBooking(ctx context.Context, req CreateBookingRequest) (*BookingResult, error)
	BookingsCreatedBetween(ctx context.Context, from, to time.Time) ([]Booking, error)
	BookingsByArrival(ctx context.Context, date time.Time) ([]Booking, error)
}

// AvailabilityRequest uses dates as the guest wrote them (DD.MM.YYYY or
// YYYY-MM-DD); clients normalise before calling the remote API.
type AvailabilityRequest struct {
	ArrivalDate   string
	DepartureDate string
	Adults        int
	Children      int
}

// Room is one availability line. Capacity is zero when the PMS does not
// report it.
type Room struct {
	ID             string  `json:"roomId"`
	Title          string  `json:"roomTitle"`
	AvailableUnits int     `json:"availableUnits"`
	Capacity       int     `json:"capacity,omitempty"`
	Price          float64 `json:"price,omitempty"`
	Currency       string  `json:"currency,omitempty"`
}

// ServiceOrder requests an add-on service on a new booking.
type ServiceOrder struct {
	ServiceID string `json:"service_id"`
	Quantity  int    `json:"quantity,omitempty"`
}

type CreateBookingRequest struct {
	GuestName        string         `json:"guest_name"`
	Phone            string         `json:"phone,omitempty"`
	Email            string         `json:"email,omitempty"`
	ArrivalDate      string         `json:"arrival_date"`
	DepartureDate    string         `json:"departure_date"`
	RoomID           string         `json:"room_id"`
	Adults           int            `json:"adults"`
	Children         int            `json:"children"`
	Comment          string         `json:"comment,omitempty"`
	Services         []ServiceOrder `json:"services,omitempty"`
	PrepaymentAmount float64        `json:"prepayment_amount,omitempty"`
}

type BookingResult struct {
	ID                 string `json:"id"`
	ConfirmationNumber string `json:"confirmationNumber,omitempty"`
}

// Reference returns the number shown to the guest.
func (r BookingResult) Reference() string {
	if r.ConfirmationNumber != "" {
		return r.ConfirmationNumber
	}
	return r.ID
}

type BookingService struct {
	ID       string  `json:"id"`
	Code     string  `json:"code,omitempty"`
	Title    string  `json:"title"`
	Price    float64 `json:"price,omitempty"`
	Quantity int     `json:"quantity,omitempty"`
	Comment  string  `json:"comment,omitempty"`
}

// Booking is an existing reservation as used by the daily reports.
type Booking struct {
	ID               string           `json:"id"`
	CreatedAt        string           `json:"createdAt"`
	ArrivalDate      string           `json:"arrivalDate"`
	DepartureDate    string           `json:"departureDate"`
	GuestName        string           `json:"guestName"`
	Phone            string           `json:"phone,omitempty"`
	RoomID           string           `json:"roomId"`
	RoomTitle        string           `json:"roomTitle"`
	Adults           int              `json:"adults"`
	Children         int              `json:"children"`
	TotalAmount      float64          `json:"totalAmount"`
	PrepaymentAmount float64          `json:"prepaymentAmount"`
	Currency         string           `json:"currency"`
	Status           string           `json:"status"`
	ArrivalTimeFrom  string           `json:"arrivalTimeFrom,omitempty"`
	ArrivalTimeTo    string           `json:"arrivalTimeTo,omitempty"`
	Comment          string           `json:"comment,omitempty"`
	SpecialRequests  string           `json:"specialRequests,omitempty"`
	Services         []BookingService `json:"services,omitempty"`
}

// NormalizeDate converts DD.MM.YYYY to YYYY-MM-DD and passes ISO dates through.
func NormalizeDate(s string) (string, error) {
	for _, layout := range []string{"2006-01-02", "02.01.2006"} {
		if t, err := time.Parse(layout, s); err == nil {
			return t.Format("2006-01-02"), nil
		}
	}
	return "", errors.New("pms: unrecognised date " + s)
}
