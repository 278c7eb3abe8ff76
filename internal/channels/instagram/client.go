package instagram

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/wolfman30/guesthub/internal/dialog"
	"github.com/wolfman30/guesthub/pkg/logging"
)

const (
	defaultGraphAPIBase = "https://graph.facebook.com/v18.0"
	defaultHTTPTimeout  = 10 * time.Second
)

// ErrNoAccessToken is returned when sending without a page access token.
var ErrNoAccessToken = errors.New("instagram: page access token not configured")

// Client sends direct messages through the Graph API.
type Client struct {
	pageAccessToken string
	graphAPIBase    string
	httpClient      *http.Client
	logger          *logging.Logger
}

// NewClient creates a Graph API client.
func NewClient(pageAccessToken string, logger *logging.Logger) *Client {
	if logger == nil {
		logger = logging.Default()
	}
	return &Client{
		pageAccessToken: strings.TrimSpace(pageAccessToken),
		graphAPIBase:    defaultGraphAPIBase,
		httpClient:      &http.Client{Timeout: defaultHTTPTimeout},
		logger:          logger.Component("instagram"),
	}
}

// SetGraphAPIBase overrides the Graph API base URL.
func (c *Client) SetGraphAPIBase(base string) {
	c.graphAPIBase = strings.TrimRight(base, "/")
}

// SendText sends a plain text message to recipientID.
func (c *Client) SendText(ctx context.Context, recipientID, text string) (*SendResponse, error) {
	if c.pageAccessToken == "" {
		return nil, ErrNoAccessToken
	}
	body, err := json.Marshal(SendRequest{
		Recipient: Participant{ID: recipientID},
		Message:   SendMessage{Text: text},
	})
	if err != nil {
		return nil, fmt.Errorf("instagram: marshal send request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.graphAPIBase+"/me/messages", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("instagram: create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.pageAccessToken)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("instagram: send message: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("instagram: read response: %w", err)
	}

	var out SendResponse
	if err := json.Unmarshal(raw, &out); err != nil && resp.StatusCode == http.StatusOK {
		return nil, fmt.Errorf("instagram: decode response: %w", err)
	}
	if out.Error != nil {
		return &out, fmt.Errorf("instagram: API error %d: %s", out.Error.Code, out.Error.Message)
	}
	if resp.StatusCode != http.StatusOK {
		snippet := string(raw)
		if len(snippet) > 300 {
			snippet = snippet[:300]
		}
		c.logger.Warn("graph API non-2xx response", "status", resp.StatusCode, "body", snippet)
		return &out, fmt.Errorf("instagram: unexpected status %d", resp.StatusCode)
	}
	return &out, nil
}

// SendReply implements dialog.ReplySender.
func (c *Client) SendReply(ctx context.Context, externalUserID, text string) (dialog.SendResult, error) {
	resp, err := c.SendText(ctx, externalUserID, text)
	if err != nil {
		return dialog.SendResult{}, err
	}
	return dialog.SendResult{MessageID: resp.MessageID}, nil
}
