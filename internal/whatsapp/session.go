// Package whatsapp owns the single WhatsApp session: the connect/QR/ready
// lifecycle, automatic reconnection, outbound sends and the inbound message
// callback. All other components go through the Session; none of them hold
// the underlying transport.
package whatsapp

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/clicksaudeagendamento/clicksaudeagendamento-backend/pkg/logging"
)

var sendTracer = otel.Tracer("clicksaude.internal.whatsapp.send")

// ErrNotConnected is returned by Send when the session is not CONNECTED.
var ErrNotConnected = errors.New("whatsapp: session not connected")

// ErrConnectInProgress means a connect attempt is already running;
// callers should not start another.
var ErrConnectInProgress = errors.New("whatsapp: connect already in progress")

// Transport abstracts the gateway connection so the session state machine
// can be tested without a live sidecar.
type Transport interface {
	Open(ctx context.Context, credentials string) (<-chan Event, error)
	Send(ctx context.Context, to, body string) error
	Ready(ctx context.Context) bool
	Close() error
}

// Session is the process-wide session manager.
type Session struct {
	transport Transport
	creds     CredentialStore
	logger    *logging.Logger

	reconnectDelay     time.Duration // after a clean disconnect
	authReconnectDelay time.Duration // after auth failure or client error

	mu             sync.Mutex
	status         Status
	connecting     bool
	gen            int
	lastQR         string
	reconnectTimer *time.Timer

	onQR      func(qr string)
	onStatus  func(status Status)
	onReady   func()
	onMessage func(msg InboundMessage)
}

// SessionOption configures a Session.
type SessionOption func(*Session)

// WithReconnectDelays overrides the fixed reconnect delays (disconnect,
// auth-failure/error).
func WithReconnectDelays(disconnect, authFailure time.Duration) SessionOption {
	return func(s *Session) {
		if disconnect > 0 {
			s.reconnectDelay = disconnect
		}
		if authFailure > 0 {
			s.authReconnectDelay = authFailure
		}
	}
}

// WithSessionLogger sets a custom logger.
func WithSessionLogger(logger *logging.Logger) SessionOption {
	return func(s *Session) {
		s.logger = logger
	}
}

// NewSession creates the session manager. creds may be nil, in which case
// every connect starts a fresh pairing.
func NewSession(transport Transport, creds CredentialStore, opts ...SessionOption) *Session {
	s := &Session{
		transport:          transport,
		creds:              creds,
		logger:             logging.Default(),
		reconnectDelay:     5 * time.Second,
		authReconnectDelay: 10 * time.Second,
		status:             StatusDisconnected,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// OnQR registers the QR callback used during pairing.
func (s *Session) OnQR(fn func(qr string)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onQR = fn
}

// OnStatus registers the status-change callback.
func (s *Session) OnStatus(fn func(status Status)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onStatus = fn
}

// OnReady registers the callback invoked when the session becomes CONNECTED.
func (s *Session) OnReady(fn func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onReady = fn
}

// OnMessage registers the single inbound-message handler. Only one consumer
// is supported; a later registration replaces the earlier one.
func (s *Session) OnMessage(fn func(msg InboundMessage)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onMessage = fn
}

// Connect establishes the session. It is a no-op when already CONNECTED and
// refuses to overlap an in-flight attempt. On failure the state is left
// DISCONNECTED and the caller (or the reconnect timer) may retry.
func (s *Session) Connect(ctx context.Context) error {
	s.mu.Lock()
	if s.connecting {
		s.mu.Unlock()
		return ErrConnectInProgress
	}
	if s.status == StatusConnected {
		s.mu.Unlock()
		return nil
	}
	s.connecting = true
	s.gen++
	gen := s.gen
	s.setStatusLocked(StatusConnecting)
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		s.connecting = false
		s.mu.Unlock()
	}()

	// Tear down any half-dead transport before building a new one.
	if err := s.transport.Close(); err != nil {
		s.logger.Warn("closing previous transport", "error", err)
	}

	var credentials string
	if s.creds != nil {
		stored, err := s.creds.Load(ctx)
		if err != nil {
			s.logger.Warn("loading session credentials", "error", err)
		} else {
			credentials = stored
		}
	}

	events, err := s.transport.Open(ctx, credentials)
	if err != nil {
		s.mu.Lock()
		s.setStatusLocked(StatusDisconnected)
		s.mu.Unlock()
		return fmt.Errorf("whatsapp: connect: %w", err)
	}

	s.mu.Lock()
	s.setStatusLocked(StatusWaitingQR)
	s.mu.Unlock()
	go s.consume(gen, events)

	s.logger.Info("whatsapp session initialized, waiting for QR or restore")
	return nil
}

// StartAutoReconnect arms an immediate connect attempt, retrying forever on
// failure. Called once at process start.
func (s *Session) StartAutoReconnect() {
	s.scheduleReconnect(0)
}

func (s *Session) consume(gen int, events <-chan Event) {
	for ev := range events {
		if !s.currentGen(gen) {
			return
		}
		s.handleEvent(gen, ev)
	}
	// Stream closed underneath us: treat as a disconnect.
	if s.currentGen(gen) {
		s.mu.Lock()
		stale := s.status == StatusDisconnected || s.status == StatusAuthFailed
		if !stale {
			s.setStatusLocked(StatusDisconnected)
		}
		s.mu.Unlock()
		if !stale {
			s.logger.Warn("whatsapp event stream ended, scheduling reconnect")
			s.scheduleReconnect(s.reconnectDelay)
		}
	}
}

func (s *Session) handleEvent(gen int, ev Event) {
	switch ev.Type {
	case EventQR:
		s.mu.Lock()
		s.lastQR = ev.QR
		s.setStatusLocked(StatusWaitingQR)
		cb := s.onQR
		s.mu.Unlock()
		s.logger.Info("whatsapp QR code generated for authentication")
		if cb != nil {
			cb(ev.QR)
		}

	case EventAuthenticated:
		if s.creds != nil && ev.Credentials != "" {
			if err := s.creds.Save(context.Background(), ev.Credentials); err != nil {
				s.logger.Error("saving session credentials", "error", err)
			}
		}

	case EventReady:
		s.mu.Lock()
		s.lastQR = ""
		s.setStatusLocked(StatusConnected)
		cb := s.onReady
		s.mu.Unlock()
		s.logger.Info("whatsapp session connected, ready for sending")
		if cb != nil {
			cb()
		}

	case EventDisconnected:
		s.logger.Warn("whatsapp session disconnected", "reason", ev.Reason)
		s.dropAndReconnect(StatusDisconnected, s.reconnectDelay)

	case EventAuthFailure:
		s.logger.Error("whatsapp authentication failed")
		s.dropAndReconnect(StatusAuthFailed, s.authReconnectDelay)

	case EventError:
		s.logger.Error("whatsapp client error", "reason", ev.Reason)
		s.dropAndReconnect(StatusDisconnected, s.authReconnectDelay)

	case EventMessage:
		if ev.Message == nil || ev.Message.FromMe {
			return
		}
		msg := *ev.Message
		msg.Body = strings.ToLower(strings.TrimSpace(msg.Body))
		if msg.Timestamp.IsZero() {
			msg.Timestamp = time.Now()
		}
		s.mu.Lock()
		cb := s.onMessage
		s.mu.Unlock()
		if cb != nil {
			cb(msg)
		}
	}
}

func (s *Session) dropAndReconnect(status Status, delay time.Duration) {
	s.mu.Lock()
	s.gen++
	s.setStatusLocked(status)
	s.mu.Unlock()
	if err := s.transport.Close(); err != nil {
		s.logger.Warn("closing transport after drop", "error", err)
	}
	s.scheduleReconnect(delay)
}

// scheduleReconnect arms a single reconnect timer, replacing any pending one.
// The attempt is a no-op when a connect is in flight or already CONNECTED,
// and re-arms itself on failure: reconnection retries indefinitely with a
// fixed delay.
func (s *Session) scheduleReconnect(delay time.Duration) {
	s.mu.Lock()
	if s.reconnectTimer != nil {
		s.reconnectTimer.Stop()
	}
	s.reconnectTimer = time.AfterFunc(delay, func() {
		s.mu.Lock()
		busy := s.connecting || s.status == StatusConnected
		s.mu.Unlock()
		if busy {
			return
		}
		s.logger.Info("attempting to (re)connect whatsapp session")
		if err := s.Connect(context.Background()); err != nil && !errors.Is(err, ErrConnectInProgress) {
			s.logger.Warn("reconnect failed, retrying", "error", err, "retry_in", s.authReconnectDelay)
			s.scheduleReconnect(s.authReconnectDelay)
		}
	})
	s.mu.Unlock()
}

// Send delivers one message. The session must be CONNECTED.
func (s *Session) Send(ctx context.Context, to, body string) error {
	if !s.IsConnected() {
		return ErrNotConnected
	}

	ctx, span := sendTracer.Start(ctx, "whatsapp.session.send")
	defer span.End()
	span.SetAttributes(attribute.String("clicksaude.to", to))

	if err := s.transport.Send(ctx, to, body); err != nil {
		span.RecordError(err)
		return err
	}
	return nil
}

// Ready probes the transport's page-open check. False while disconnected.
func (s *Session) Ready(ctx context.Context) bool {
	if !s.IsConnected() {
		return false
	}
	return s.transport.Ready(ctx)
}

// Disconnect tears the session down deterministically and cancels any
// pending reconnect. Connect may be called again afterwards.
func (s *Session) Disconnect() error {
	s.mu.Lock()
	if s.reconnectTimer != nil {
		s.reconnectTimer.Stop()
		s.reconnectTimer = nil
	}
	s.gen++
	s.setStatusLocked(StatusDisconnected)
	s.mu.Unlock()
	return s.transport.Close()
}

// Status returns the current lifecycle state.
func (s *Session) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}

// IsConnected reports whether the session can send.
func (s *Session) IsConnected() bool {
	return s.Status() == StatusConnected
}

// LastQR returns the most recent QR payload, empty once paired.
func (s *Session) LastQR() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastQR
}

func (s *Session) currentGen(gen int) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.gen == gen
}

// setStatusLocked requires s.mu held. The status callback runs on its own
// goroutine so a slow observer cannot stall the event loop.
func (s *Session) setStatusLocked(status Status) {
	if s.status == status {
		return
	}
	s.status = status
	if s.onStatus != nil {
		go s.onStatus(status)
	}
}
