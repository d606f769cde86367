// Package handlers contains the admin HTTP endpoints for the reminder
// pipeline and the WhatsApp session.
package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/clicksaudeagendamento/clicksaudeagendamento-backend/internal/appointments"
	"github.com/clicksaudeagendamento/clicksaudeagendamento-backend/internal/jobs"
	"github.com/clicksaudeagendamento/clicksaudeagendamento-backend/internal/reminder"
	"github.com/clicksaudeagendamento/clicksaudeagendamento-backend/pkg/logging"
)

type reminderScheduler interface {
	ProcessNextDay(ctx context.Context) (reminder.Summary, error)
	ProcessDate(ctx context.Context, date string) (reminder.Summary, error)
}

type responseStatsSource interface {
	CountByStatus(ctx context.Context) (appointments.StatusCounts, error)
}

type messageSession interface {
	IsConnected() bool
	Send(ctx context.Context, to, body string) error
}

// QueueHandler exposes the reminder queue admin endpoints.
type QueueHandler struct {
	scheduler   reminderScheduler
	tracker     jobs.Tracker
	stats       responseStatsSource
	session     messageSession
	countryCode string
	logger      *logging.Logger
}

// NewQueueHandler creates the queue admin handler. tracker and stats may be
// nil; their endpoints then return 503.
func NewQueueHandler(scheduler reminderScheduler, tracker jobs.Tracker, stats responseStatsSource, session messageSession, countryCode string, logger *logging.Logger) *QueueHandler {
	if logger == nil {
		logger = logging.Default()
	}
	if countryCode == "" {
		countryCode = "55"
	}
	return &QueueHandler{
		scheduler:   scheduler,
		tracker:     tracker,
		stats:       stats,
		session:     session,
		countryCode: countryCode,
		logger:      logger,
	}
}

// ProcessNextDay triggers the next-day sweep on demand.
// POST /appointment-queue/process-next-day
func (h *QueueHandler) ProcessNextDay(w http.ResponseWriter, r *http.Request) {
	summary, err := h.scheduler.ProcessNextDay(r.Context())
	if err != nil {
		h.logger.Error("process next day failed", "error", err)
		http.Error(w, "failed to process appointments", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

type processDateRequest struct {
	Date string `json:"date"`
}

// ProcessDate triggers a sweep for an arbitrary calendar day.
// POST /appointment-queue/process-date
func (h *QueueHandler) ProcessDate(w http.ResponseWriter, r *http.Request) {
	var req processDateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || strings.TrimSpace(req.Date) == "" {
		http.Error(w, "invalid request body, expected {\"date\":\"yyyy-mm-dd\"}", http.StatusBadRequest)
		return
	}

	summary, err := h.scheduler.ProcessDate(r.Context(), req.Date)
	if err != nil {
		if strings.Contains(err.Error(), "invalid date") {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		h.logger.Error("process date failed", "date", req.Date, "error", err)
		http.Error(w, "failed to process appointments", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

// Stats returns job counts per lifecycle state.
// GET /appointment-queue/stats
func (h *QueueHandler) Stats(w http.ResponseWriter, r *http.Request) {
	if h.tracker == nil {
		http.Error(w, "job tracking disabled", http.StatusServiceUnavailable)
		return
	}
	stats, err := h.tracker.Stats(r.Context())
	if err != nil {
		h.logger.Error("queue stats failed", "error", err)
		http.Error(w, "failed to load queue stats", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

type responseStatsPayload struct {
	Total     int `json:"total"`
	Confirmed int `json:"confirmed"`
	Cancelled int `json:"cancelled"`
	Unknown   int `json:"unknown"`
}

// ResponseStats aggregates appointment statuses into confirmation totals.
// GET /appointment-queue/response-stats
func (h *QueueHandler) ResponseStats(w http.ResponseWriter, r *http.Request) {
	if h.stats == nil {
		http.Error(w, "response stats disabled", http.StatusServiceUnavailable)
		return
	}
	counts, err := h.stats.CountByStatus(r.Context())
	if err != nil {
		h.logger.Error("response stats failed", "error", err)
		http.Error(w, "failed to load response stats", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, responseStatsPayload{
		Total:     counts.Total,
		Confirmed: counts.Confirmed,
		Cancelled: counts.Cancelled,
		Unknown:   counts.Unknown,
	})
}

type testMessageRequest struct {
	Phone   string `json:"phone"`
	Message string `json:"message"`
}

// TestMessage sends an ad-hoc message through the live session so operators
// can verify connectivity.
// POST /appointment-queue/test-message
func (h *QueueHandler) TestMessage(w http.ResponseWriter, r *http.Request) {
	var req testMessageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if strings.TrimSpace(req.Phone) == "" || strings.TrimSpace(req.Message) == "" {
		http.Error(w, "phone and message are required", http.StatusBadRequest)
		return
	}
	if h.session == nil || !h.session.IsConnected() {
		http.Error(w, "whatsapp session not connected", http.StatusServiceUnavailable)
		return
	}

	phone := reminder.FormatPhoneNumber(req.Phone, h.countryCode)
	if err := h.session.Send(r.Context(), reminder.ChatAddress(phone), req.Message); err != nil {
		h.logger.Error("test message failed", "phone", phone, "error", err)
		http.Error(w, "failed to send message", http.StatusBadGateway)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"sent": true, "phone": phone})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
