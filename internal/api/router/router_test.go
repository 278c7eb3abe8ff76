package router

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/wolfman30/guesthub/internal/channels/instagram"
	"github.com/wolfman30/guesthub/internal/channels/telegram"
	"github.com/wolfman30/guesthub/internal/dialog"
	"github.com/wolfman30/guesthub/internal/http/handlers"
	httpmiddleware "github.com/wolfman30/guesthub/internal/http/middleware"
	"github.com/wolfman30/guesthub/internal/hub"
	"github.com/wolfman30/guesthub/internal/intent"
	"github.com/wolfman30/guesthub/internal/pms"
	"github.com/wolfman30/guesthub/pkg/logging"
)

const testSecret = "router-test-secret"

type recordingSink struct {
	mu  sync.Mutex
	got []dialog.Incoming
}

func (s *recordingSink) Enqueue(ctx context.Context, in dialog.Incoming) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.got = append(s.got, in)
	return nil
}

func newTestRouter(t *testing.T, sink *recordingSink, limiter *httpmiddleware.RateLimiter, checks map[string]Checker) http.Handler {
	t.Helper()

	logger := logging.Discard()
	ledger := hub.NewService(hub.NewMemoryStore(), logger)
	orch := dialog.NewOrchestrator(ledger, intent.DefaultTable(), pms.NewStaticClient(nil), logger)

	return New(&Config{
		Logger:          logger,
		TelegramWebhook: telegram.NewWebhookHandler("tg-secret", sink, nil, logger),
		InstagramWebhook: instagram.NewAdapter(instagram.AdapterConfig{
			VerifyToken: "verify-me",
			Sink:        sink,
			Logger:      logger,
		}),
		AdminConversations: handlers.NewAdminConversationsHandler(ledger, orch, logger),
		AdminAuthSecret:    testSecret,
		MetricsHandler: http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte("# metrics"))
		}),
		WebhookLimiter: limiter,
		Checks:         checks,
	})
}

func adminToken(t *testing.T) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub": "operator-1",
		"exp": time.Now().Add(time.Hour).Unix(),
	})
	signed, err := token.SignedString([]byte(testSecret))
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return signed
}

func TestRouterHealthEndpoint(t *testing.T) {
	router := newTestRouter(t, &recordingSink{}, nil, nil)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rr := httptest.NewRecorder()

	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status %d, got %d", http.StatusOK, rr.Code)
	}

	var resp map[string]string
	if err := json.NewDecoder(rr.Body).Decode(&resp); err != nil {
		t.Fatalf("failed to decode health response: %v", err)
	}

	if resp["status"] != "ok" {
		t.Errorf("expected status 'ok', got %q", resp["status"])
	}
}

func TestRouterReadinessReportsFailingDependency(t *testing.T) {
	router := newTestRouter(t, &recordingSink{}, nil, map[string]Checker{
		"database": func(context.Context) error { return nil },
		"redis":    func(context.Context) error { return errors.New("connection refused") },
	})

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/ready", nil))

	if rr.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", rr.Code)
	}
	var resp map[string]string
	if err := json.NewDecoder(rr.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp["database"] != "ok" || resp["redis"] != "connection refused" || resp["status"] != "degraded" {
		t.Fatalf("unexpected readiness body: %v", resp)
	}
}

func TestRouterMetricsEndpoint(t *testing.T) {
	router := newTestRouter(t, &recordingSink{}, nil, nil)

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	if rr.Code != http.StatusOK || rr.Body.String() != "# metrics" {
		t.Fatalf("unexpected metrics response %d %q", rr.Code, rr.Body.String())
	}
}

func TestRouterTelegramWebhook(t *testing.T) {
	sink := &recordingSink{}
	router := newTestRouter(t, sink, nil, nil)

	body := `{"update_id":1,"message":{"message_id":7,"date":1731400000,"chat":{"id":42,"type":"private"},"from":{"id":42,"first_name":"Анна"},"text":"есть домик?"}}`

	req := httptest.NewRequest(http.MethodPost, "/webhooks/telegram", strings.NewReader(body))
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)
	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without secret, got %d", rr.Code)
	}

	req = httptest.NewRequest(http.MethodPost, "/webhooks/telegram", strings.NewReader(body))
	req.Header.Set("X-Telegram-Bot-Api-Secret-Token", "tg-secret")
	rr = httptest.NewRecorder()
	router.ServeHTTP(rr, req)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	if len(sink.got) != 1 || sink.got[0].ExternalUserID != "42" || sink.got[0].Text != "есть домик?" {
		t.Fatalf("unexpected enqueued messages: %+v", sink.got)
	}
}

func TestRouterInstagramVerification(t *testing.T) {
	router := newTestRouter(t, &recordingSink{}, nil, nil)

	req := httptest.NewRequest(http.MethodGet, "/webhooks/instagram?hub.mode=subscribe&hub.verify_token=verify-me&hub.challenge=abc", nil)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK || rr.Body.String() != "abc" {
		t.Fatalf("expected challenge echo, got %d %q", rr.Code, rr.Body.String())
	}
}

func TestRouterWebhookRateLimit(t *testing.T) {
	limiter := httpmiddleware.NewRateLimiter(0.001, 1)
	router := newTestRouter(t, &recordingSink{}, limiter, nil)

	codes := make([]int, 0, 2)
	for range 2 {
		rr := httptest.NewRecorder()
		router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/webhooks/instagram?hub.mode=subscribe&hub.verify_token=verify-me&hub.challenge=abc", nil))
		codes = append(codes, rr.Code)
	}
	if codes[0] != http.StatusOK || codes[1] != http.StatusTooManyRequests {
		t.Fatalf("expected [200 429], got %v", codes)
	}
}

func TestRouterAdminRequiresToken(t *testing.T) {
	router := newTestRouter(t, &recordingSink{}, nil, nil)

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/admin/conversations", nil))
	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rr.Code)
	}

	req := httptest.NewRequest(http.MethodGet, "/admin/conversations", nil)
	req.Header.Set("Authorization", "Bearer "+adminToken(t))
	rr = httptest.NewRecorder()
	router.ServeHTTP(rr, req)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200 with token, got %d", rr.Code)
	}
}

func TestRouterAdminConversationRoutes(t *testing.T) {
	router := newTestRouter(t, &recordingSink{}, nil, nil)
	token := adminToken(t)

	for _, tc := range []struct {
		method, path, body string
		want               int
	}{
		{http.MethodGet, "/admin/conversations/missing", "", http.StatusNotFound},
		{http.MethodPost, "/admin/conversations/missing/messages", `{"text":"hi"}`, http.StatusNotFound},
		{http.MethodPost, "/admin/conversations/missing/bookings", `{"arrival_date":"2025-11-12","departure_date":"2025-11-14","room_id":"h1","adults":2}`, http.StatusNotFound},
	} {
		req := httptest.NewRequest(tc.method, tc.path, strings.NewReader(tc.body))
		req.Header.Set("Authorization", "Bearer "+token)
		rr := httptest.NewRecorder()
		router.ServeHTTP(rr, req)
		if rr.Code != tc.want {
			t.Errorf("%s %s: expected %d, got %d", tc.method, tc.path, tc.want, rr.Code)
		}
	}
}

func TestRouterAdminNotMountedWithoutSecret(t *testing.T) {
	logger := logging.Discard()
	ledger := hub.NewService(hub.NewMemoryStore(), logger)
	router := New(&Config{
		Logger:             logger,
		AdminConversations: handlers.NewAdminConversationsHandler(ledger, nil, logger),
	})

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/admin/conversations", nil))
	if rr.Code != http.StatusNotFound {
		t.Fatalf("expected 404 when admin auth is unset, got %d", rr.Code)
	}
}
