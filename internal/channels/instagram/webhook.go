package instagram

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/wolfman30/guesthub/internal/dialog"
	"github.com/wolfman30/guesthub/internal/hub"
	"github.com/wolfman30/guesthub/pkg/logging"
)

const maxWebhookBody = 1 << 20

// Enqueuer accepts normalised inbound messages.
type Enqueuer interface {
	Enqueue(ctx context.Context, in dialog.Incoming) error
}

// WebhookHandler handles Meta verification and inbound DM events.
type WebhookHandler struct {
	verifyToken string
	appSecret   string
	sink        Enqueuer
	logger      *logging.Logger
}

// NewWebhookHandler creates a webhook handler feeding sink.
func NewWebhookHandler(verifyToken, appSecret string, sink Enqueuer, logger *logging.Logger) *WebhookHandler {
	if logger == nil {
		logger = logging.Default()
	}
	return &WebhookHandler{
		verifyToken: verifyToken,
		appSecret:   appSecret,
		sink:        sink,
		logger:      logger.Component("instagram"),
	}
}

// HandleVerification answers the GET subscription challenge.
func (h *WebhookHandler) HandleVerification(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	if h.verifyToken != "" && q.Get("hub.mode") == "subscribe" && q.Get("hub.verify_token") == h.verifyToken {
		w.WriteHeader(http.StatusOK)
		fmt.Fprint(w, q.Get("hub.challenge"))
		return
	}
	http.Error(w, "Forbidden", http.StatusForbidden)
}

// HandleInbound verifies and acknowledges a POST event, then queues every
// guest message it carries.
func (h *WebhookHandler) HandleInbound(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBody))
	if err != nil {
		http.Error(w, "Bad Request", http.StatusBadRequest)
		return
	}
	if !VerifySignature(h.appSecret, body, r.Header.Get("X-Hub-Signature-256")) {
		h.logger.Warn("instagram webhook signature mismatch")
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	var event WebhookEvent
	if err := json.Unmarshal(body, &event); err != nil {
		http.Error(w, "Bad Request", http.StatusBadRequest)
		return
	}

	w.WriteHeader(http.StatusOK)

	for _, in := range ParseWebhookEvent(event) {
		if h.sink == nil {
			continue
		}
		if err := h.sink.Enqueue(r.Context(), in); err != nil {
			h.logger.Error("failed to enqueue instagram message",
				"external_message_id", in.ExternalMessageID,
				"error", err,
			)
		}
	}
}

// ParseWebhookEvent turns a webhook event into inbound messages. Echoes of the
// page's own messages and events without content are skipped.
func ParseWebhookEvent(event WebhookEvent) []dialog.Incoming {
	var out []dialog.Incoming
	for _, entry := range event.Entry {
		for _, m := range entry.Messaging {
			if m.Sender.ID == "" {
				continue
			}
			in := dialog.Incoming{
				Channel:        hub.ChannelInstagram,
				ExternalUserID: m.Sender.ID,
			}
			if m.Timestamp > 0 {
				in.Timestamp = time.UnixMilli(m.Timestamp).UTC()
			}

			switch {
			case m.Message != nil:
				if m.Message.IsEcho {
					continue
				}
				in.Text = m.Message.Text
				in.ExternalMessageID = m.Message.MID
				for _, a := range m.Message.Attachments {
					in.Attachments = append(in.Attachments, hub.Attachment{Type: a.Type, URL: a.Payload.URL})
				}
			case m.Postback != nil:
				in.Text = m.Postback.Title
				in.ExternalMessageID = m.Postback.MID
			default:
				continue
			}
			if strings.TrimSpace(in.Text) == "" && len(in.Attachments) == 0 {
				continue
			}
			out = append(out, in)
		}
	}
	return out
}

// VerifySignature checks the X-Hub-Signature-256 header ("sha256=<hex>").
func VerifySignature(appSecret string, body []byte, signature string) bool {
	const prefix = "sha256="
	if appSecret == "" || !strings.HasPrefix(signature, prefix) || len(signature) == len(prefix) {
		return false
	}
	mac := hmac.New(sha256.New, []byte(appSecret))
	mac.Write(body)
	expected := hex.EncodeToString(mac.Sum(nil))
	return hmac.Equal([]byte(expected), []byte(signature[len(prefix):]))
}
