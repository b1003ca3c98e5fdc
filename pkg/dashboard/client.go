// Package dashboard pushes connector state to the central dashboard's
// ingest API. The connector registers itself once, then pushes full
// snapshots on an interval and single events as they happen. Pushes are
// fire-and-forget: a failed push is logged and the next interval tries
// again with fresh data.
package dashboard

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/grothdavid/ccdashboard-freepbx2/pkg/version"
)

// Connector identity reported at registration.
const (
	Source        = "freepbx-connector"
	ConnectorID   = "freepbx-local"
	ConnectorType = "freepbx"
)

// Capabilities advertised at registration.
var Capabilities = []string{
	"real_time_calls",
	"agent_status",
	"queue_stats",
	"historical_data",
}

// DefaultTimeout bounds one push when the config does not say otherwise.
const DefaultTimeout = 30 * time.Second

// ErrInvalidConfig indicates a Config that cannot produce a client.
var ErrInvalidConfig = errors.New("invalid dashboard configuration")

// Config holds the dashboard endpoint and credentials.
type Config struct {
	// URL is the dashboard base URL, e.g. "https://dash.example.com".
	URL string

	// Token is sent as a bearer token when non-empty.
	Token string

	// Timeout bounds each request. Zero means DefaultTimeout.
	Timeout time.Duration

	// HTTPClient overrides the transport. Nil builds one from Timeout.
	HTTPClient *http.Client

	Logger zerolog.Logger
}

// Client talks to the dashboard ingest API.
type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client
	logger     zerolog.Logger
}

// New validates the config and returns a client. The base URL is stored
// with the trailing slash stripped; request URLs are built by
// concatenation.
func New(cfg Config) (*Client, error) {
	if cfg.URL == "" {
		return nil, fmt.Errorf("%w: url is required", ErrInvalidConfig)
	}
	parsed, err := url.Parse(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("%w: bad url %q: %v", ErrInvalidConfig, cfg.URL, err)
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return nil, fmt.Errorf("%w: url %q must be http or https", ErrInvalidConfig, cfg.URL)
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = DefaultTimeout
		}
		httpClient = &http.Client{Timeout: timeout}
	}

	return &Client{
		baseURL:    strings.TrimRight(cfg.URL, "/"),
		token:      cfg.Token,
		httpClient: httpClient,
		logger:     cfg.Logger.With().Str("component", "dashboard").Logger(),
	}, nil
}

type registration struct {
	ConnectorID   string    `json:"connector_id"`
	ConnectorType string    `json:"connector_type"`
	Version       string    `json:"version"`
	Capabilities  []string  `json:"capabilities"`
	Timestamp     time.Time `json:"timestamp"`
}

type update struct {
	Source    string    `json:"source"`
	Timestamp time.Time `json:"timestamp"`
	Data      any       `json:"data"`
}

type event struct {
	Type      string    `json:"type"`
	Timestamp time.Time `json:"timestamp"`
	Data      any       `json:"data"`
}

// Register announces the connector and its capabilities.
func (c *Client) Register(ctx context.Context) error {
	payload := registration{
		ConnectorID:   ConnectorID,
		ConnectorType: ConnectorType,
		Version:       version.Connector,
		Capabilities:  Capabilities,
		Timestamp:     time.Now().UTC(),
	}
	if err := c.post(ctx, "/api/connector/register", payload); err != nil {
		return err
	}
	c.logger.Info().Str("connector_id", ConnectorID).Msg("Registered with dashboard")
	return nil
}

// PushUpdate sends one state snapshot wrapped in the source envelope.
func (c *Client) PushUpdate(ctx context.Context, data any) error {
	payload := update{
		Source:    Source,
		Timestamp: time.Now().UTC(),
		Data:      data,
	}
	return c.post(ctx, "/api/connector/update", payload)
}

// PushEvent sends one real-time event, e.g. "call_started".
func (c *Client) PushEvent(ctx context.Context, eventType string, data any) error {
	payload := event{
		Type:      eventType,
		Timestamp: time.Now().UTC(),
		Data:      data,
	}
	return c.post(ctx, "/api/connector/event", payload)
}

// Health checks that the dashboard answers on its health endpoint.
func (c *Client) Health(ctx context.Context) error {
	return c.do(ctx, http.MethodGet, "/api/health", nil)
}

func (c *Client) post(ctx context.Context, path string, body any) error {
	return c.do(ctx, http.MethodPost, path, body)
}

func (c *Client) do(ctx context.Context, method, path string, body any) error {
	var bodyReader io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("dashboard: encoding %s body: %w", path, err)
		}
		bodyReader = bytes.NewReader(encoded)
	}

	request, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bodyReader)
	if err != nil {
		return fmt.Errorf("dashboard: building %s request: %w", path, err)
	}
	if body != nil {
		request.Header.Set("Content-Type", "application/json")
	}
	request.Header.Set("User-Agent", version.UserAgent())
	if c.token != "" {
		request.Header.Set("Authorization", "Bearer "+c.token)
	}

	response, err := c.httpClient.Do(request)
	if err != nil {
		return fmt.Errorf("dashboard: %s %s: %w", method, path, err)
	}
	defer response.Body.Close()

	if response.StatusCode >= 200 && response.StatusCode < 300 {
		return nil
	}

	// Include a bounded slice of the body; ingest errors are short text.
	detail, _ := io.ReadAll(io.LimitReader(response.Body, 4096))
	return fmt.Errorf("dashboard: %s %s returned %d: %s",
		method, path, response.StatusCode, strings.TrimSpace(string(detail)))
}
