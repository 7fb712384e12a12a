// Package automation forwards enriched chat payloads to the external
// workflow webhook and relays its responses untouched.
package automation

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"
)

// DefaultTimeout bounds a single webhook delivery.
const DefaultTimeout = 60 * time.Second

// ErrTimeout indicates the webhook did not answer within the delivery budget.
var ErrTimeout = errors.New("automation: webhook timed out")

// Request is the structured command payload forwarded to the workflow
// engine. UID is always set server-side from the verified identity; values a
// client supplies for it are discarded before this struct is built.
type Request struct {
	Message     string `json:"message"`
	BotID       string `json:"botId"`
	AvatarID    string `json:"avatarId,omitempty"`
	VoiceID     string `json:"voiceId,omitempty"`
	VideoWidth  int    `json:"videoWidth,omitempty"`
	VideoHeight int    `json:"videoHeight,omitempty"`
	Type        string `json:"type"`
	UID         string `json:"uid"`
}

// Response carries the webhook's raw reply.
type Response struct {
	Body        []byte
	ContentType string
}

// ClientConfig configures a Client.
type ClientConfig struct {
	WebhookURL string
	Timeout    time.Duration
	HTTPClient *http.Client
}

// Client delivers payloads to a fixed webhook URL.
type Client struct {
	webhookURL string
	httpClient *http.Client
}

// NewClient validates the webhook URL and builds a Client.
func NewClient(cfg ClientConfig) (*Client, error) {
	webhookURL := strings.TrimSpace(cfg.WebhookURL)
	if webhookURL == "" {
		return nil, fmt.Errorf("webhook URL is required")
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = DefaultTimeout
		}
		httpClient = &http.Client{Timeout: timeout}
	}
	return &Client{webhookURL: webhookURL, httpClient: httpClient}, nil
}

// Forward posts the payload to the webhook and returns the raw response. A
// delivery that exceeds the budget yields ErrTimeout; any other transport
// failure or non-success upstream status is a plain error for the caller to
// map to an upstream-failure response.
func (c *Client) Forward(ctx context.Context, payload Request) (Response, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return Response{}, fmt.Errorf("encode webhook payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.webhookURL, bytes.NewReader(body))
	if err != nil {
		return Response{}, fmt.Errorf("build webhook request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if isTimeout(err) {
			return Response{}, fmt.Errorf("%w: %v", ErrTimeout, err)
		}
		return Response{}, fmt.Errorf("deliver webhook payload: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		if isTimeout(err) {
			return Response{}, fmt.Errorf("%w: %v", ErrTimeout, err)
		}
		return Response{}, fmt.Errorf("read webhook response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return Response{}, fmt.Errorf("webhook returned status %d: %s", resp.StatusCode, strings.TrimSpace(string(raw)))
	}

	return Response{Body: raw, ContentType: resp.Header.Get("Content-Type")}, nil
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}
