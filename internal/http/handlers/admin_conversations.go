package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/wolfman30/guesthub/internal/dialog"
	"github.com/wolfman30/guesthub/internal/http/middleware"
	"github.com/wolfman30/guesthub/internal/hub"
	"github.com/wolfman30/guesthub/internal/pms"
	"github.com/wolfman30/guesthub/pkg/logging"
)

const (
	defaultListLimit = 50
	maxListLimit     = 200
	maxBodyBytes     = 64 << 10
)

// ConversationReader is the read side of the messaging hub.
type ConversationReader interface {
	ListConversations(ctx context.Context, limit int) ([]hub.Conversation, error)
	ConversationDetail(ctx context.Context, conversationID string) (hub.ConversationDetail, error)
	GetContact(ctx context.Context, id string) (hub.Contact, error)
	LastMessages(ctx context.Context, conversationIDs []string) (map[string]hub.Message, error)
}

// Operator performs staff actions inside a conversation.
type Operator interface {
	SendOperatorMessage(ctx context.Context, conversationID, text string) (hub.Message, error)
	CreateBooking(ctx context.Context, conversationID string, req dialog.BookingRequest) (dialog.BookingOutcome, error)
}

// AdminConversationsHandler serves the admin panel's conversation views.
type AdminConversationsHandler struct {
	reader   ConversationReader
	operator Operator
	logger   *logging.Logger
}

func NewAdminConversationsHandler(reader ConversationReader, operator Operator, logger *logging.Logger) *AdminConversationsHandler {
	if logger == nil {
		logger = logging.Default()
	}
	return &AdminConversationsHandler{
		reader:   reader,
		operator: operator,
		logger:   logger.Component("admin"),
	}
}

// ConversationSummary is one row of the conversation list.
type ConversationSummary struct {
	ID              string      `json:"id"`
	ContactID       string      `json:"contact_id"`
	ContactName     string      `json:"contact_name"`
	Channel         hub.Channel `json:"channel"`
	LastMessageText string      `json:"last_message_text,omitempty"`
	LastMessageAt   *time.Time  `json:"last_message_at,omitempty"`
	CreatedAt       time.Time   `json:"created_at"`
}

// ConversationsListResponse wraps the list endpoint payload.
type ConversationsListResponse struct {
	Conversations []ConversationSummary `json:"conversations"`
	Limit         int                   `json:"limit"`
}

type sendMessageRequest struct {
	Text string `json:"text"`
}

type bookingResponse struct {
	Booking pms.BookingResult `json:"booking"`
	Link    hub.BookingLink   `json:"link"`
	Reply   string            `json:"reply"`
	Sent    bool              `json:"sent"`
}

// ListConversations handles GET /admin/conversations?limit=N.
func (h *AdminConversationsHandler) ListConversations(w http.ResponseWriter, r *http.Request) {
	limit, err := parseLimit(r.URL.Query().Get("limit"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	convs, err := h.reader.ListConversations(r.Context(), limit)
	if err != nil {
		h.logger.Error("list conversations failed", "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	ids := make([]string, 0, len(convs))
	for _, c := range convs {
		ids = append(ids, c.ID)
	}
	last, err := h.reader.LastMessages(r.Context(), ids)
	if err != nil {
		h.logger.Warn("last messages lookup failed", "error", err)
	}

	out := make([]ConversationSummary, 0, len(convs))
	for _, c := range convs {
		summary := ConversationSummary{
			ID:            c.ID,
			ContactID:     c.ContactID,
			Channel:       c.Channel,
			LastMessageAt: c.LastMessageAt,
			CreatedAt:     c.CreatedAt,
		}
		if contact, err := h.reader.GetContact(r.Context(), c.ContactID); err == nil {
			summary.ContactName = contactName(contact)
		} else {
			h.logger.Warn("contact lookup failed", "contact_id", c.ContactID, "error", err)
		}
		if m, ok := last[c.ID]; ok {
			summary.LastMessageText = m.Text
		}
		out = append(out, summary)
	}
	writeJSON(w, http.StatusOK, ConversationsListResponse{Conversations: out, Limit: limit})
}

// GetConversation handles GET /admin/conversations/{id}.
func (h *AdminConversationsHandler) GetConversation(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	detail, err := h.reader.ConversationDetail(r.Context(), id)
	if err != nil {
		h.writeServiceError(w, "get conversation", id, err)
		return
	}
	writeJSON(w, http.StatusOK, detail)
}

// SendMessage handles POST /admin/conversations/{id}/messages.
func (h *AdminConversationsHandler) SendMessage(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	var req sendMessageRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	msg, err := h.operator.SendOperatorMessage(r.Context(), id, req.Text)
	if err != nil && msg.ID == "" {
		h.writeServiceError(w, "send operator message", id, err)
		return
	}
	if err != nil {
		// Recorded in the transcript but the channel refused it.
		h.logger.Warn("operator message recorded but not delivered", "conversation_id", id, "error", err)
		writeJSON(w, http.StatusBadGateway, map[string]any{"message": msg, "error": "delivery failed"})
		return
	}

	operatorID := ""
	if claims, ok := middleware.OperatorFromContext(r.Context()); ok {
		operatorID = claims.Subject
	}
	h.logger.Info("operator message sent", "conversation_id", id, "message_id", msg.ID, "operator", operatorID)
	writeJSON(w, http.StatusCreated, msg)
}

// CreateBooking handles POST /admin/conversations/{id}/bookings.
func (h *AdminConversationsHandler) CreateBooking(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	var req dialog.BookingRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	res, err := h.operator.CreateBooking(r.Context(), id, req)
	if err != nil && res.Booking.ID == "" {
		h.writeServiceError(w, "create booking", id, err)
		return
	}
	if err != nil {
		h.logger.Error("booking created but not linked", "conversation_id", id, "booking_id", res.Booking.ID, "error", err)
	}
	writeJSON(w, http.StatusCreated, bookingResponse{
		Booking: res.Booking,
		Link:    res.Link,
		Reply:   res.Reply,
		Sent:    res.SendErr == nil,
	})
}

func (h *AdminConversationsHandler) writeServiceError(w http.ResponseWriter, action, conversationID string, err error) {
	switch {
	case errors.Is(err, hub.ErrNotFound):
		writeError(w, http.StatusNotFound, "conversation not found")
	case errors.Is(err, hub.ErrInvalidInput), errors.Is(err, dialog.ErrEmptyText):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, pms.ErrNotConfigured):
		writeError(w, http.StatusServiceUnavailable, "property system not configured")
	default:
		h.logger.Error(action+" failed", "conversation_id", conversationID, "error", err)
		writeError(w, http.StatusBadGateway, action+" failed")
	}
}

func parseLimit(raw string) (int, error) {
	if strings.TrimSpace(raw) == "" {
		return defaultListLimit, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 {
		return 0, errors.New("limit must be a positive integer")
	}
	return min(n, maxListLimit), nil
}

func contactName(c hub.Contact) string {
	if c.DisplayName != "" {
		return c.DisplayName
	}
	return c.ExternalID
}

func decodeBody(r *http.Request, dst any) error {
	dec := json.NewDecoder(http.MaxBytesReader(nil, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	return dec.Decode(dst)
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
