package pms

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/wolfman30/guesthub/pkg/logging"
)

const (
	defaultTimeout  = 10 * time.Second
	defaultTokenTTL = 50 * time.Minute
	bookingsLimit   = 20
)

// BnovoConfig holds credentials for the Bnovo REST API.
type BnovoConfig struct {
	BaseURL         string
	AccountID       string
	APIKey          string
	HotelID         string
	Timeout         time.Duration
	DefaultCurrency string
}

// BnovoClient wraps the Bnovo endpoints used for availability, booking
// creation and the daily booking reports.
type BnovoClient struct {
	httpClient *http.Client
	cfg        BnovoConfig
	baseURL    string
	logger     *logging.Logger
	now        func() time.Time

	mu          sync.Mutex
	token       string
	tokenExpiry time.Time
}

var _ Client = (*BnovoClient)(nil)

// NewBnovoClient constructs a client. Missing credentials are not an error
// here; every call returns ErrNotConfigured instead.
func NewBnovoClient(cfg BnovoConfig, logger *logging.Logger) *BnovoClient {
	if logger == nil {
		logger = logging.Default()
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	if cfg.DefaultCurrency == "" {
		cfg.DefaultCurrency = "RUB"
	}
	return &BnovoClient{
		httpClient: &http.Client{Timeout: cfg.Timeout},
		cfg:        cfg,
		baseURL:    strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/"),
		logger:     logger.Component("bnovo"),
		now:        time.Now,
	}
}

// Configured reports whether credentials and hotel are set.
func (c *BnovoClient) Configured() bool {
	return c.baseURL != "" && c.cfg.AccountID != "" && c.cfg.APIKey != "" && c.cfg.HotelID != ""
}

func (c *BnovoClient) GetAvailability(ctx context.Context, req AvailabilityRequest) ([]Room, error) {
	if !c.Configured() {
		return nil, ErrNotConfigured
	}
	arrival, err := NormalizeDate(req.ArrivalDate)
	if err != nil {
		return nil, err
	}
	departure, err := NormalizeDate(req.DepartureDate)
	if err != nil {
		return nil, err
	}

	q := url.Values{}
	q.Set("hotel_id", c.cfg.HotelID)
	q.Set("arrival_date", arrival)
	q.Set("departure_date", departure)
	q.Set("adults", strconv.Itoa(req.Adults))
	q.Set("children", strconv.Itoa(req.Children))

	var wrapped struct {
		Data struct {
			Rooms []bnovoRoom `json:"rooms"`
		} `json:"data"`
	}
	if err := c.doAuthorized(ctx, http.MethodGet, "/api/v1/availability?"+q.Encode(), nil, &wrapped); err != nil {
		return nil, fmt.Errorf("pms: get availability: %w", err)
	}

	rooms := make([]Room, 0, len(wrapped.Data.Rooms))
	for _, r := range wrapped.Data.Rooms {
		rooms = append(rooms, r.toRoom(c.cfg.DefaultCurrency))
	}
	return rooms, nil
}

func (c *BnovoClient) CreateBooking(ctx context.Context, req CreateBookingRequest) (*BookingResult, error) {
	if !c.Configured() {
		return nil, ErrNotConfigured
	}
	var err error
	if req.ArrivalDate, err = NormalizeDate(req.ArrivalDate); err != nil {
		return nil, err
	}
	if req.DepartureDate, err = NormalizeDate(req.DepartureDate); err != nil {
		return nil, err
	}

	body := struct {
		HotelID string `json:"hotel_id"`
		CreateBookingRequest
	}{HotelID: c.cfg.HotelID, CreateBookingRequest: req}

	var wrapped struct {
		Data struct {
			ID                 flexString `json:"id"`
			ConfirmationNumber string     `json:"confirmation_number"`
			Number             string     `json:"number"`
		} `json:"data"`
	}
	if err := c.doAuthorized(ctx, http.MethodPost, "/api/v1/bookings", body, &wrapped); err != nil {
		return nil, fmt.Errorf("pms: create booking: %w", err)
	}
	if wrapped.Data.ID == "" {
		return nil, fmt.Errorf("pms: create booking: empty booking id")
	}
	res := &BookingResult{ID: string(wrapped.Data.ID), ConfirmationNumber: wrapped.Data.ConfirmationNumber}
	if res.ConfirmationNumber == "" {
		res.ConfirmationNumber = wrapped.Data.Number
	}
	return res, nil
}

// BookingsCreatedBetween lists bookings created within [from, to].
func (c *BnovoClient) BookingsCreatedBetween(ctx context.Context, from, to time.Time) ([]Booking, error) {
	q := url.Values{}
	q.Set("date_from", from.Format("2006-01-02"))
	q.Set("date_to", to.Format("2006-01-02"))
	q.Set("created_from", from.Format(time.RFC3339))
	q.Set("created_to", to.Format(time.RFC3339))
	bookings, err := c.listBookings(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("pms: bookings created between: %w", err)
	}
	return bookings, nil
}

// BookingsByArrival lists bookings arriving on date.
func (c *BnovoClient) BookingsByArrival(ctx context.Context, date time.Time) ([]Booking, error) {
	day := date.Format("2006-01-02")
	q := url.Values{}
	q.Set("date_from", day)
	q.Set("date_to", date.AddDate(0, 0, 1).Format("2006-01-02"))
	q.Set("arrival", day)
	bookings, err := c.listBookings(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("pms: bookings by arrival: %w", err)
	}
	return bookings, nil
}

func (c *BnovoClient) listBookings(ctx context.Context, q url.Values) ([]Booking, error) {
	if !c.Configured() {
		return nil, ErrNotConfigured
	}
	q.Set("hotel_id", c.cfg.HotelID)
	q.Set("offset", "0")
	q.Set("limit", strconv.Itoa(bookingsLimit))

	var wrapped struct {
		Data struct {
			Bookings []bnovoBooking `json:"bookings"`
		} `json:"data"`
	}
	if err := c.doAuthorized(ctx, http.MethodGet, "/api/v1/bookings?"+q.Encode(), nil, &wrapped); err != nil {
		return nil, err
	}
	out := make([]Booking, 0, len(wrapped.Data.Bookings))
	for _, b := range wrapped.Data.Bookings {
		out = append(out, b.toBooking())
	}
	return out, nil
}

func (c *BnovoClient) authToken(ctx context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.token != "" && c.now().Before(c.tokenExpiry) {
		return c.token, nil
	}

	var resp struct {
		Data struct {
			AccessToken string `json:"access_token"`
			ExpiresIn   int    `json:"expires_in"`
		} `json:"data"`
	}
	body := map[string]string{"id": c.cfg.AccountID, "password": c.cfg.APIKey}
	if err := c.doJSON(ctx, http.MethodPost, "/api/v1/auth", "", body, &resp); err != nil {
		return "", fmt.Errorf("auth: %w", err)
	}
	if resp.Data.AccessToken == "" {
		return "", fmt.Errorf("auth: access token missing in response")
	}

	ttl := defaultTokenTTL
	if resp.Data.ExpiresIn > 0 {
		// Refresh a minute before the server-side expiry.
		ttl = time.Duration(resp.Data.ExpiresIn)*time.Second - time.Minute
		if ttl <= 0 {
			ttl = time.Duration(resp.Data.ExpiresIn) * time.Second
		}
	}
	c.token = resp.Data.AccessToken
	c.tokenExpiry = c.now().Add(ttl)
	return c.token, nil
}

func (c *BnovoClient) invalidateToken() {
	c.mu.Lock()
	c.token = ""
	c.mu.Unlock()
}

func (c *BnovoClient) doAuthorized(ctx context.Context, method, path string, body, out interface{}) error {
	token, err := c.authToken(ctx)
	if err != nil {
		return err
	}
	err = c.doJSON(ctx, method, path, token, body, out)
	if err != nil && isUnauthorized(err) {
		c.invalidateToken()
	}
	return err
}

type statusError struct {
	status int
	body   string
}

func (e *statusError) Error() string {
	return fmt.Sprintf("bnovo API returned %d: %s", e.status, e.body)
}

func isUnauthorized(err error) bool {
	se, ok := err.(*statusError)
	return ok && se.status == http.StatusUnauthorized
}

func (c *BnovoClient) doJSON(ctx context.Context, method, path, token string, body, out interface{}) error {
	endpoint := c.baseURL + path

	var bodyReader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		bodyReader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, bodyReader)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("http request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg := string(respBody)
		if len(msg) > 300 {
			msg = msg[:300]
		}
		c.logger.Warn("bnovo API non-2xx response", "status", resp.StatusCode, "path", strings.SplitN(path, "?", 2)[0], "body", msg)
		return &statusError{status: resp.StatusCode, body: msg}
	}

	if len(respBody) == 0 || out == nil {
		return nil
	}
	if err := json.Unmarshal(respBody, out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
