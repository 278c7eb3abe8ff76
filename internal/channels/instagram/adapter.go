// Package instagram is the Instagram Direct channel adapter: Meta webhooks in,
// Graph API sends out.
package instagram

import (
	"context"
	"net/http"
	"time"

	"github.com/wolfman30/guesthub/internal/dialog"
	"github.com/wolfman30/guesthub/internal/hub"
	"github.com/wolfman30/guesthub/internal/observability/metrics"
	"github.com/wolfman30/guesthub/pkg/logging"
)

// AdapterConfig wires an Adapter.
type AdapterConfig struct {
	PageAccessToken string
	AppSecret       string
	VerifyToken     string
	Sink            Enqueuer
	Metrics         *metrics.DialogMetrics
	Logger          *logging.Logger
}

// Adapter bundles the webhook handler and the Graph API client.
type Adapter struct {
	client  *Client
	webhook *WebhookHandler
	metrics *metrics.DialogMetrics
}

// NewAdapter creates an Instagram adapter.
func NewAdapter(cfg AdapterConfig) *Adapter {
	return &Adapter{
		client:  NewClient(cfg.PageAccessToken, cfg.Logger),
		webhook: NewWebhookHandler(cfg.VerifyToken, cfg.AppSecret, cfg.Sink, cfg.Logger),
		metrics: cfg.Metrics,
	}
}

// Client exposes the Graph API client, e.g. for tests overriding the base URL.
func (a *Adapter) Client() *Client { return a.client }

// HandleVerification handles GET /webhooks/instagram.
func (a *Adapter) HandleVerification(w http.ResponseWriter, r *http.Request) {
	a.webhook.HandleVerification(w, r)
}

// HandleWebhook handles POST /webhooks/instagram.
func (a *Adapter) HandleWebhook(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	a.webhook.HandleInbound(w, r)
	a.metrics.ObserveWebhookLatency(string(hub.ChannelInstagram), time.Since(start).Seconds())
}

// SendReply implements dialog.ReplySender.
func (a *Adapter) SendReply(ctx context.Context, externalUserID, text string) (dialog.SendResult, error) {
	return a.client.SendReply(ctx, externalUserID, text)
}
