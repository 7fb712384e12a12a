// Package catalog wraps the external video-generation API's read-only
// catalog endpoints (voices and avatars).
package catalog

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const (
	// DefaultBaseURL points at the hosted catalog API.
	DefaultBaseURL = "https://api.heygen.com/v2"

	defaultRequestTimeout = 10 * time.Second

	apiKeyHeader = "x-api-key"
)

// KindVoices and KindAvatars name the two catalog resource kinds served by
// the gateway. They double as cache keys.
const (
	KindVoices  = "voices"
	KindAvatars = "avatars"
)

// ClientConfig configures a Client.
type ClientConfig struct {
	BaseURL    string
	APIKey     string
	HTTPClient *http.Client
}

// Client fetches catalog payloads. Responses pass through untouched; the
// gateway never reshapes upstream catalog JSON.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

// NewClient constructs a catalog Client with a bounded request timeout.
func NewClient(cfg ClientConfig) *Client {
	baseURL := strings.TrimSuffix(strings.TrimSpace(cfg.BaseURL), "/")
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: defaultRequestTimeout}
	}
	return &Client{
		baseURL:    baseURL,
		apiKey:     strings.TrimSpace(cfg.APIKey),
		httpClient: httpClient,
	}
}

// Voices fetches the voice catalog.
func (c *Client) Voices(ctx context.Context) (json.RawMessage, error) {
	return c.get(ctx, KindVoices)
}

// Avatars fetches the avatar catalog.
func (c *Client) Avatars(ctx context.Context) (json.RawMessage, error) {
	return c.get(ctx, KindAvatars)
}

func (c *Client) get(ctx context.Context, kind string) (json.RawMessage, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/"+kind, nil)
	if err != nil {
		return nil, fmt.Errorf("build %s request: %w", kind, err)
	}
	req.Header.Set("Accept", "application/json")
	if c.apiKey != "" {
		req.Header.Set(apiKeyHeader, c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch %s catalog: %w", kind, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read %s catalog response: %w", kind, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("%s catalog returned status %d: %s", kind, resp.StatusCode, truncate(body, 256))
	}
	return json.RawMessage(body), nil
}

func truncate(body []byte, limit int) string {
	text := strings.TrimSpace(string(body))
	if len(text) > limit {
		return text[:limit] + "..."
	}
	return text
}
