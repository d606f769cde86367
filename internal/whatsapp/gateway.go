package whatsapp

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/clicksaudeagendamento/clicksaudeagendamento-backend/pkg/logging"
)

// Gateway is the client for the WhatsApp gateway sidecar: commands go over
// HTTP, session events arrive over a websocket stream.
type Gateway struct {
	baseURL     string
	token       string
	sessionName string
	httpClient  *http.Client
	dialer      *websocket.Dialer
	logger      *logging.Logger

	// mu guards conn: Open runs on the connect path while Close may arrive
	// from the admin API or the reconnect timer.
	mu   sync.Mutex
	conn *websocket.Conn
}

// GatewayOption is a functional option for configuring the Gateway.
type GatewayOption func(*Gateway)

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(client *http.Client) GatewayOption {
	return func(g *Gateway) {
		g.httpClient = client
	}
}

// WithLogger sets a custom logger.
func WithLogger(logger *logging.Logger) GatewayOption {
	return func(g *Gateway) {
		g.logger = logger
	}
}

// WithToken sets the bearer token for gateway requests.
func WithToken(token string) GatewayOption {
	return func(g *Gateway) {
		g.token = token
	}
}

// WithSessionName overrides the gateway session identifier.
func WithSessionName(name string) GatewayOption {
	return func(g *Gateway) {
		g.sessionName = name
	}
}

// NewGateway creates a gateway client. baseURL is the sidecar service URL
// (e.g. "http://localhost:3000").
func NewGateway(baseURL string, opts ...GatewayOption) *Gateway {
	g := &Gateway{
		baseURL:     strings.TrimRight(baseURL, "/"),
		sessionName: "main-session",
		httpClient: &http.Client{
			Timeout: 60 * time.Second,
		},
		dialer: websocket.DefaultDialer,
		logger: logging.Default(),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

type startRequest struct {
	Session     string `json:"session"`
	Credentials string `json:"credentials,omitempty"`
}

type sendRequest struct {
	Session string `json:"session"`
	To      string `json:"to"`
	Body    string `json:"body"`
}

type gatewayResponse struct {
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`
}

// Open starts the gateway session with the persisted credentials and attaches
// to its event stream. The returned channel is closed when the stream dies.
func (g *Gateway) Open(ctx context.Context, credentials string) (<-chan Event, error) {
	if err := g.post(ctx, "/api/v1/session/start", startRequest{Session: g.sessionName, Credentials: credentials}); err != nil {
		return nil, fmt.Errorf("whatsapp: start session: %w", err)
	}

	wsEndpoint, err := g.eventsURL()
	if err != nil {
		return nil, fmt.Errorf("whatsapp: events url: %w", err)
	}
	header := http.Header{}
	if g.token != "" {
		header.Set("Authorization", "Bearer "+g.token)
	}
	conn, resp, err := g.dialer.DialContext(ctx, wsEndpoint, header)
	if err != nil {
		if resp != nil {
			resp.Body.Close()
		}
		return nil, fmt.Errorf("whatsapp: dial event stream: %w", err)
	}
	if resp != nil {
		resp.Body.Close()
	}

	g.mu.Lock()
	if g.conn != nil {
		_ = g.conn.Close()
	}
	g.conn = conn
	g.mu.Unlock()

	events := make(chan Event, 16)
	go g.readLoop(conn, events)
	return events, nil
}

func (g *Gateway) readLoop(conn *websocket.Conn, events chan<- Event) {
	defer close(events)
	for {
		var ev Event
		if err := conn.ReadJSON(&ev); err != nil {
			g.logger.Warn("whatsapp event stream closed", "error", err)
			return
		}
		events <- ev
	}
}

// Send dispatches one message through the gateway session.
func (g *Gateway) Send(ctx context.Context, to, body string) error {
	if err := g.post(ctx, "/api/v1/session/send", sendRequest{Session: g.sessionName, To: to, Body: body}); err != nil {
		return fmt.Errorf("whatsapp: send: %w", err)
	}
	return nil
}

// Ready probes whether the gateway's underlying page is open and usable.
func (g *Gateway) Ready(ctx context.Context) bool {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		g.baseURL+"/api/v1/session/ready?session="+url.QueryEscape(g.sessionName), nil)
	if err != nil {
		return false
	}
	if g.token != "" {
		req.Header.Set("Authorization", "Bearer "+g.token)
	}
	resp, err := g.httpClient.Do(req)
	if err != nil {
		return false
	}
	defer resp.Body.Close()
	return resp.StatusCode == http.StatusOK
}

// Close tears down the event stream. Safe to call when never opened and
// safe to call concurrently with Open.
func (g *Gateway) Close() error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.conn == nil {
		return nil
	}
	err := g.conn.Close()
	g.conn = nil
	return err
}

func (g *Gateway) post(ctx context.Context, path string, payload any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if g.token != "" {
		req.Header.Set("Authorization", "Bearer "+g.token)
	}

	resp, err := g.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 8192))
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("status %d: %s", resp.StatusCode, strings.TrimSpace(string(raw)))
	}
	var parsed gatewayResponse
	if len(raw) > 0 && json.Unmarshal(raw, &parsed) == nil && !parsed.Success && parsed.Error != "" {
		return fmt.Errorf("gateway error: %s", parsed.Error)
	}
	return nil
}

func (g *Gateway) eventsURL() (string, error) {
	u, err := url.Parse(g.baseURL)
	if err != nil {
		return "", err
	}
	switch u.Scheme {
	case "https":
		u.Scheme = "wss"
	default:
		u.Scheme = "ws"
	}
	u.Path = "/api/v1/session/events"
	u.RawQuery = "session=" + url.QueryEscape(g.sessionName)
	return u.String(), nil
}
