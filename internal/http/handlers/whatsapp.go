package handlers

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/clicksaudeagendamento/clicksaudeagendamento-backend/internal/whatsapp"
	"github.com/clicksaudeagendamento/clicksaudeagendamento-backend/pkg/logging"
)

type sessionController interface {
	Connect(ctx context.Context) error
	Disconnect() error
	Status() whatsapp.Status
	Ready(ctx context.Context) bool
	LastQR() string
}

// WhatsAppHandler exposes session lifecycle admin endpoints.
type WhatsAppHandler struct {
	session sessionController
	logger  *logging.Logger
}

// NewWhatsAppHandler creates the session admin handler.
func NewWhatsAppHandler(session sessionController, logger *logging.Logger) *WhatsAppHandler {
	if logger == nil {
		logger = logging.Default()
	}
	return &WhatsAppHandler{session: session, logger: logger}
}

// Connect starts the session. Pairing continues asynchronously; poll
// Status for the QR code.
// POST /whatsapp/connect
func (h *WhatsAppHandler) Connect(w http.ResponseWriter, r *http.Request) {
	if err := h.session.Connect(r.Context()); err != nil {
		if errors.Is(err, whatsapp.ErrConnectInProgress) {
			http.Error(w, "connect already in progress", http.StatusConflict)
			return
		}
		h.logger.Error("session connect failed", "error", err)
		http.Error(w, "failed to connect", http.StatusBadGateway)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]any{"status": h.session.Status()})
}

type sessionStatusResponse struct {
	Status    whatsapp.Status `json:"status"`
	Connected bool            `json:"connected"`
	Ready     bool            `json:"ready"`
	QR        string          `json:"qr,omitempty"`
	Timestamp time.Time       `json:"timestamp"`
}

// Status reports the session lifecycle state, the transport ready probe and
// the pending QR payload during pairing.
// GET /whatsapp/status
func (h *WhatsAppHandler) Status(w http.ResponseWriter, r *http.Request) {
	status := h.session.Status()
	writeJSON(w, http.StatusOK, sessionStatusResponse{
		Status:    status,
		Connected: status == whatsapp.StatusConnected,
		Ready:     h.session.Ready(r.Context()),
		QR:        h.session.LastQR(),
		Timestamp: time.Now().UTC(),
	})
}

// Reconnect tears the session down and connects again.
// POST /whatsapp/reconnect
func (h *WhatsAppHandler) Reconnect(w http.ResponseWriter, r *http.Request) {
	if err := h.session.Disconnect(); err != nil {
		h.logger.Warn("disconnect before reconnect failed", "error", err)
	}
	if err := h.session.Connect(r.Context()); err != nil {
		h.logger.Error("session reconnect failed", "error", err)
		http.Error(w, "failed to reconnect", http.StatusBadGateway)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]any{"status": h.session.Status()})
}

// Disconnect tears the session down and cancels automatic reconnection.
// DELETE /whatsapp/disconnect
func (h *WhatsAppHandler) Disconnect(w http.ResponseWriter, r *http.Request) {
	if err := h.session.Disconnect(); err != nil {
		h.logger.Error("session disconnect failed", "error", err)
		http.Error(w, "failed to disconnect", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": h.session.Status()})
}
