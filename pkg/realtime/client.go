package realtime

import (
	"context"
	"net/http"
)

const (
	// DefaultWebSocketURL is the default WebSocket endpoint.
	DefaultWebSocketURL = "wss://api.openai.com/v1/realtime"

	// DefaultSignalingURL is the default HTTP endpoint for the SDP
	// offer/answer exchange.
	DefaultSignalingURL = "https://api.openai.com/v1/realtime"
)

// Client opens realtime sessions.
type Client struct {
	config *clientConfig
}

type clientConfig struct {
	apiKey       string
	wsURL        string
	signalingURL string
	httpClient   *http.Client
}

// Option configures the Client.
type Option func(*clientConfig)

// NewClient creates a realtime client. The apiKey is required.
func NewClient(apiKey string, opts ...Option) *Client {
	if apiKey == "" {
		panic("realtime: API key is required")
	}

	cfg := &clientConfig{
		apiKey:       apiKey,
		wsURL:        DefaultWebSocketURL,
		signalingURL: DefaultSignalingURL,
		httpClient:   http.DefaultClient,
	}
	for _, opt := range opts {
		opt(cfg)
	}
	return &Client{config: cfg}
}

// WithWebSocketURL sets the WebSocket URL.
func WithWebSocketURL(url string) Option {
	return func(c *clientConfig) {
		c.wsURL = url
	}
}

// WithSignalingURL sets the HTTP URL for the SDP exchange.
func WithSignalingURL(url string) Option {
	return func(c *clientConfig) {
		c.signalingURL = url
	}
}

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(c *clientConfig) {
		c.httpClient = client
	}
}

// ConnectWebSocket establishes a WebSocket session. Suitable for
// server-side use where media tracks are not available.
func (c *Client) ConnectWebSocket(ctx context.Context, config *ConnectConfig) (Session, error) {
	return c.connectWebSocket(ctx, config)
}

// ConnectWebRTC establishes a WebRTC session. The returned WebRTCSession
// additionally exposes the media tracks and the remote-audio tap.
func (c *Client) ConnectWebRTC(ctx context.Context, config *ConnectConfig) (*WebRTCSession, error) {
	return c.connectWebRTC(ctx, config)
}
