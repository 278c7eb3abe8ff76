package telegram

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/wolfman30/guesthub/internal/dialog"
	"github.com/wolfman30/guesthub/internal/hub"
	"github.com/wolfman30/guesthub/internal/observability/metrics"
	"github.com/wolfman30/guesthub/pkg/logging"
)

const (
	secretHeader   = "X-Telegram-Bot-Api-Secret-Token"
	maxWebhookBody = 1 << 20
)

// Enqueuer accepts normalised inbound messages.
type Enqueuer interface {
	Enqueue(ctx context.Context, in dialog.Incoming) error
}

// WebhookHandler receives Bot API updates pushed to the webhook URL.
type WebhookHandler struct {
	secret  string
	sink    Enqueuer
	metrics *metrics.DialogMetrics
	logger  *logging.Logger
}

// NewWebhookHandler creates a handler. When secret is non-empty every request
// must carry it in the secret-token header.
func NewWebhookHandler(secret string, sink Enqueuer, m *metrics.DialogMetrics, logger *logging.Logger) *WebhookHandler {
	if logger == nil {
		logger = logging.Default()
	}
	return &WebhookHandler{
		secret:  strings.TrimSpace(secret),
		sink:    sink,
		metrics: m,
		logger:  logger.Component("telegram"),
	}
}

func (h *WebhookHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	defer func() {
		h.metrics.ObserveWebhookLatency(string(hub.ChannelTelegram), time.Since(start).Seconds())
	}()

	if h.secret != "" {
		got := r.Header.Get(secretHeader)
		if subtle.ConstantTimeCompare([]byte(got), []byte(h.secret)) != 1 {
			h.logger.Warn("telegram webhook secret mismatch")
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBody))
	if err != nil {
		http.Error(w, "Bad Request", http.StatusBadRequest)
		return
	}
	var update tgbotapi.Update
	if err := json.Unmarshal(body, &update); err != nil {
		http.Error(w, "Bad Request", http.StatusBadRequest)
		return
	}

	in, ok := IncomingFromUpdate(update)
	if !ok {
		// Non-message updates are acknowledged so Telegram stops retrying them.
		w.WriteHeader(http.StatusOK)
		return
	}
	if h.sink != nil {
		if err := h.sink.Enqueue(r.Context(), in); err != nil {
			h.logger.Error("failed to enqueue telegram message", "update_id", update.UpdateID, "error", err)
			http.Error(w, "Service Unavailable", http.StatusServiceUnavailable)
			return
		}
	}
	w.WriteHeader(http.StatusOK)
}

// IncomingFromUpdate normalises a message update. Updates without a chat, or
// without text and media, are reported as not ok.
func IncomingFromUpdate(update tgbotapi.Update) (dialog.Incoming, bool) {
	msg := update.Message
	if msg == nil || msg.Chat == nil {
		return dialog.Incoming{}, false
	}

	text := msg.Text
	if text == "" {
		text = msg.Caption
	}
	attachments := collectAttachments(msg)
	if strings.TrimSpace(text) == "" && len(attachments) == 0 {
		return dialog.Incoming{}, false
	}

	in := dialog.Incoming{
		Channel:           hub.ChannelTelegram,
		ExternalUserID:    strconv.FormatInt(msg.Chat.ID, 10),
		DisplayName:       displayName(msg),
		Text:              text,
		ExternalMessageID: messageKey(msg.Chat.ID, msg.MessageID),
		Attachments:       attachments,
	}
	if msg.Date > 0 {
		in.Timestamp = time.Unix(int64(msg.Date), 0).UTC()
	}
	return in, true
}

// messageKey scopes a message id to its chat; Bot API ids are only unique
// within one chat.
func messageKey(chatID int64, messageID int) string {
	return strconv.FormatInt(chatID, 10) + ":" + strconv.Itoa(messageID)
}

func displayName(msg *tgbotapi.Message) string {
	if msg.From == nil {
		return strings.TrimSpace(msg.Chat.Title)
	}
	name := strings.TrimSpace(msg.From.FirstName + " " + msg.From.LastName)
	if name == "" {
		name = strings.TrimSpace(msg.From.UserName)
	}
	return name
}

// collectAttachments records Bot API file ids as opaque references; resolving
// them to URLs would embed the bot token.
func collectAttachments(msg *tgbotapi.Message) []hub.Attachment {
	var out []hub.Attachment
	if len(msg.Photo) > 0 {
		out = append(out, fileRef("image", largestPhoto(msg.Photo).FileID))
	}
	if msg.Document != nil {
		out = append(out, fileRef("file", msg.Document.FileID))
	}
	if msg.Voice != nil {
		out = append(out, fileRef("voice", msg.Voice.FileID))
	}
	if msg.Video != nil {
		out = append(out, fileRef("video", msg.Video.FileID))
	}
	if msg.Sticker != nil {
		out = append(out, fileRef("sticker", msg.Sticker.FileID))
	}
	return out
}

func fileRef(kind, fileID string) hub.Attachment {
	return hub.Attachment{Type: kind, URL: "tg-file:" + fileID}
}

func largestPhoto(items []tgbotapi.PhotoSize) tgbotapi.PhotoSize {
	best := items[0]
	for _, item := range items[1:] {
		if item.Width*item.Height > best.Width*best.Height {
			best = item
		}
	}
	return best
}
