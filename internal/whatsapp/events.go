package whatsapp

import "time"

// Status is the session lifecycle state.
type Status string

const (
	StatusDisconnected Status = "DISCONNECTED"
	StatusConnecting   Status = "CONNECTING"
	StatusWaitingQR    Status = "WAITING_QR"
	StatusConnected    Status = "CONNECTED"
	StatusAuthFailed   Status = "AUTH_FAILED"
)

// Event types emitted by the gateway over the event stream.
const (
	EventQR            = "qr"
	EventAuthenticated = "authenticated"
	EventReady         = "ready"
	EventDisconnected  = "disconnected"
	EventAuthFailure   = "auth_failure"
	EventError         = "error"
	EventMessage       = "message"
)

// Event is one gateway notification. Fields are populated per event type:
// QR for "qr", Credentials for "authenticated", Reason for
// "disconnected"/"error", Message for "message".
type Event struct {
	Type        string          `json:"type"`
	QR          string          `json:"qr,omitempty"`
	Reason      string          `json:"reason,omitempty"`
	Credentials string          `json:"credentials,omitempty"`
	Message     *InboundMessage `json:"message,omitempty"`
}

// InboundMessage is a message received on the WhatsApp session. From keeps
// the gateway address form ("<digits>@c.us").
type InboundMessage struct {
	From      string    `json:"from"`
	Body      string    `json:"body"`
	FromMe    bool      `json:"fromMe"`
	Timestamp time.Time `json:"timestamp"`
}
