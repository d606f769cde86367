package reminder

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/clicksaudeagendamento/clicksaudeagendamento-backend/internal/appointments"
	"github.com/clicksaudeagendamento/clicksaudeagendamento-backend/internal/ledger"
	"github.com/clicksaudeagendamento/clicksaudeagendamento-backend/internal/observability/metrics"
	"github.com/clicksaudeagendamento/clicksaudeagendamento-backend/internal/whatsapp"
	"github.com/clicksaudeagendamento/clicksaudeagendamento-backend/pkg/logging"
)

// Routing outcomes reported by HandleInbound.
const (
	OutcomeInstitutional = "institutional"
	OutcomeDuplicate     = "duplicate"
	OutcomeConfirmation  = "confirmation"
	OutcomeCancellation  = "cancellation"
	OutcomeReinforcement = "reinforcement"
	OutcomeError         = "error"
)

type routerLedger interface {
	LogMessage(ctx context.Context, rec ledger.Record) error
	GetReminderSent(ctx context.Context, appointmentID uuid.UUID, phone string) (*ledger.Record, error)
	HasReceivedSimNao(ctx context.Context, appointmentID uuid.UUID, phone string) (bool, error)
	HasSentConfirmationOrCancellation(ctx context.Context, appointmentID uuid.UUID, phone string) (bool, error)
	HasSentReinforcement(ctx context.Context, appointmentID uuid.UUID, phone string) (bool, error)
	LogInfoIfNotExists(ctx context.Context, phone, content string) error
}

type appointmentDirectory interface {
	FindScheduledByPhone(ctx context.Context, phone string) (*appointments.Appointment, error)
	UpdateStatus(ctx context.Context, id uuid.UUID, status string) error
}

type messageSender interface {
	Send(ctx context.Context, to, body string) error
}

// Router turns inbound patient messages into replies and appointment
// status changes.
type Router struct {
	session       messageSender
	ledger        routerLedger
	appts         appointmentDirectory
	metrics       *metrics.ReminderMetrics
	logger        *logging.Logger
	rescheduleURL string
	now           func() time.Time
}

// RouterOption configures a Router.
type RouterOption func(*Router)

// WithRescheduleURL overrides the link in cancellation replies.
func WithRescheduleURL(url string) RouterOption {
	return func(r *Router) {
		if url != "" {
			r.rescheduleURL = url
		}
	}
}

// WithRouterMetrics attaches pipeline metrics.
func WithRouterMetrics(m *metrics.ReminderMetrics) RouterOption {
	return func(r *Router) {
		r.metrics = m
	}
}

// WithRouterLogger sets a custom logger.
func WithRouterLogger(logger *logging.Logger) RouterOption {
	return func(r *Router) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// WithRouterClock overrides the time source, used in tests.
func WithRouterClock(now func() time.Time) RouterOption {
	return func(r *Router) {
		if now != nil {
			r.now = now
		}
	}
}

// NewRouter builds the inbound message router.
func NewRouter(session messageSender, store routerLedger, appts appointmentDirectory, opts ...RouterOption) *Router {
	r := &Router{
		session:       session,
		ledger:        store,
		appts:         appts,
		logger:        logging.Default(),
		rescheduleURL: "https://clicksaude.app/agendar",
		now:           time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// HandleInbound routes one patient message. It never propagates errors to
// the session event loop; the returned outcome is for observability and
// tests. The body is expected pre-normalized (lowercased, trimmed).
func (r *Router) HandleInbound(ctx context.Context, msg whatsapp.InboundMessage) string {
	outcome := r.route(ctx, msg)
	r.metrics.ObserveInbound(outcome)
	return outcome
}

func (r *Router) route(ctx context.Context, msg whatsapp.InboundMessage) string {
	phone := PhoneFromChatAddress(msg.From)
	r.logger.Info("handling inbound message", "phone", phone)

	// Correlate sender to their most recent scheduled appointment. A failed
	// lookup degrades to "no appointment": the sender still gets the
	// institutional reply.
	appt, err := r.appts.FindScheduledByPhone(ctx, phone)
	if err != nil {
		r.logger.Error("appointment lookup failed", "phone", phone, "error", err)
		appt = nil
	}

	// The raw message is recorded before any routing decision.
	var apptID *uuid.UUID
	if appt != nil {
		apptID = &appt.ID
	}
	if err := r.ledger.LogMessage(ctx, ledger.Record{
		AppointmentID: apptID,
		PatientPhone:  phone,
		Type:          ledger.TypeOther,
		Direction:     ledger.DirectionReceived,
		Content:       msg.Body,
	}); err != nil {
		r.logger.Error("failed to log inbound message", "phone", phone, "error", err)
	}

	if appt == nil {
		return r.sendInstitutional(ctx, msg.From, phone)
	}

	reminder, err := r.ledger.GetReminderSent(ctx, appt.ID, phone)
	if err != nil {
		r.logger.Error("reminder lookup failed", "appointment_id", appt.ID, "error", err)
		return OutcomeError
	}

	// No reminder conversation, or the appointment time has passed: the
	// reply cannot change anything anymore.
	if reminder == nil || (!appt.ScheduledAt.IsZero() && r.now().After(appt.ScheduledAt)) {
		return r.sendInstitutional(ctx, msg.From, phone)
	}

	alreadyResponded, err := r.ledger.HasReceivedSimNao(ctx, appt.ID, phone)
	if err != nil {
		r.logger.Error("response history lookup failed", "appointment_id", appt.ID, "error", err)
		return OutcomeError
	}
	if alreadyResponded {
		r.logger.Info("already responded", "appointment_id", appt.ID, "phone", phone)
		return OutcomeDuplicate
	}

	switch Classify(msg.Body) {
	case ResponseConfirmed:
		return r.resolve(ctx, msg.From, phone, appt, ResponseConfirmed, msg.Body)
	case ResponseCancelled:
		return r.resolve(ctx, msg.From, phone, appt, ResponseCancelled, msg.Body)
	default:
		return r.reinforce(ctx, msg.From, phone, appt.ID)
	}
}

func (r *Router) resolve(ctx context.Context, from, phone string, appt *appointments.Appointment, response Response, body string) string {
	status := appointments.StatusConfirmed
	msgType := ledger.TypeConfirmation
	responseType := ledger.ResponseSim
	reply := ConfirmationReply
	outcome := OutcomeConfirmation
	if response == ResponseCancelled {
		status = appointments.StatusCancelled
		msgType = ledger.TypeCancellation
		responseType = ledger.ResponseNao
		reply = CancellationReply(r.rescheduleURL)
		outcome = OutcomeCancellation
	}

	if err := r.appts.UpdateStatus(ctx, appt.ID, status); err != nil {
		r.logger.Error("failed to update appointment status",
			"appointment_id", appt.ID, "status", status, "error", err)
		return OutcomeError
	}
	r.logger.Info("appointment status updated", "appointment_id", appt.ID, "status", status)

	alreadySent, err := r.ledger.HasSentConfirmationOrCancellation(ctx, appt.ID, phone)
	if err != nil {
		r.logger.Error("reply history lookup failed", "appointment_id", appt.ID, "error", err)
		alreadySent = true
	}
	apptID := appt.ID
	if !alreadySent {
		if err := r.session.Send(ctx, from, reply); err != nil {
			r.logger.Error("failed to send reply", "phone", phone, "error", err)
		} else if err := r.ledger.LogMessage(ctx, ledger.Record{
			AppointmentID:    &apptID,
			PatientPhone:     phone,
			Type:             msgType,
			Direction:        ledger.DirectionSent,
			Content:          reply,
			ResponseType:     responseType,
			AlreadyResponded: true,
		}); err != nil {
			r.logger.Error("failed to log reply", "phone", phone, "error", err)
		}
	}

	if err := r.ledger.LogMessage(ctx, ledger.Record{
		AppointmentID:    &apptID,
		PatientPhone:     phone,
		Type:             msgType,
		Direction:        ledger.DirectionReceived,
		Content:          body,
		ResponseType:     responseType,
		AlreadyResponded: true,
	}); err != nil {
		r.logger.Error("failed to log classified response", "phone", phone, "error", err)
	}
	return outcome
}

func (r *Router) reinforce(ctx context.Context, from, phone string, appointmentID uuid.UUID) string {
	sent, err := r.ledger.HasSentReinforcement(ctx, appointmentID, phone)
	if err != nil {
		r.logger.Error("reinforcement history lookup failed", "appointment_id", appointmentID, "error", err)
		return OutcomeError
	}
	if sent {
		r.logger.Info("reinforcement already sent", "appointment_id", appointmentID, "phone", phone)
		return OutcomeDuplicate
	}

	if err := r.session.Send(ctx, from, ReinforcementMessage); err != nil {
		r.logger.Error("failed to send reinforcement", "phone", phone, "error", err)
		return OutcomeError
	}
	if err := r.ledger.LogMessage(ctx, ledger.Record{
		AppointmentID: &appointmentID,
		PatientPhone:  phone,
		Type:          ledger.TypeReinforcement,
		Direction:     ledger.DirectionSent,
		Content:       ReinforcementMessage,
	}); err != nil {
		r.logger.Error("failed to log reinforcement", "phone", phone, "error", err)
	}
	r.logger.Info("sent reinforcement message", "phone", phone)
	return OutcomeReinforcement
}

func (r *Router) sendInstitutional(ctx context.Context, from, phone string) string {
	if err := r.session.Send(ctx, from, InstitutionalMessage); err != nil {
		r.logger.Error("failed to send institutional message", "phone", phone, "error", err)
		return OutcomeError
	}
	if err := r.ledger.LogInfoIfNotExists(ctx, phone, InstitutionalMessage); err != nil {
		r.logger.Error("failed to log institutional message", "phone", phone, "error", err)
	}
	r.logger.Info("sent institutional message", "phone", phone)
	return OutcomeInstitutional
}
