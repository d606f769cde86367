// Package reminder implements the appointment reminder pipeline: the
// scheduler that enqueues next-day reminders, the worker that delivers them
// over WhatsApp with retries, and the router that turns patient replies into
// appointment status changes.
package reminder

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/clicksaudeagendamento/clicksaudeagendamento-backend/internal/appointments"
	"github.com/clicksaudeagendamento/clicksaudeagendamento-backend/internal/jobs"
	"github.com/clicksaudeagendamento/clicksaudeagendamento-backend/internal/observability/metrics"
	"github.com/clicksaudeagendamento/clicksaudeagendamento-backend/pkg/logging"
)

const dateLayout = "2006-01-02"

type appointmentSource interface {
	FindScheduledForDate(ctx context.Context, date string) ([]appointments.Appointment, error)
}

type scheduleLedger interface {
	HasSentReminderForDate(ctx context.Context, appointmentID uuid.UUID, phone, date string) (bool, error)
}

// Service enqueues reminder jobs for upcoming appointments.
type Service struct {
	queue       queueClient
	appts       appointmentSource
	ledger      scheduleLedger
	tracker     jobs.Tracker
	metrics     *metrics.ReminderMetrics
	logger      *logging.Logger
	countryCode string
	interval    time.Duration
	now         func() time.Time
}

// ServiceOption configures the scheduler service.
type ServiceOption func(*Service)

// WithCountryCode overrides the phone country code prefix.
func WithCountryCode(code string) ServiceOption {
	return func(s *Service) {
		if code != "" {
			s.countryCode = code
		}
	}
}

// WithSchedulerInterval overrides the sweep interval.
func WithSchedulerInterval(d time.Duration) ServiceOption {
	return func(s *Service) {
		if d > 0 {
			s.interval = d
		}
	}
}

// WithServiceMetrics attaches pipeline metrics.
func WithServiceMetrics(m *metrics.ReminderMetrics) ServiceOption {
	return func(s *Service) {
		s.metrics = m
	}
}

// WithServiceLogger sets a custom logger.
func WithServiceLogger(logger *logging.Logger) ServiceOption {
	return func(s *Service) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithClock overrides the time source, used in tests.
func WithClock(now func() time.Time) ServiceOption {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

// NewService builds the scheduler. tracker may be nil when job stats are
// not wanted.
func NewService(queue queueClient, appts appointmentSource, ledger scheduleLedger, tracker jobs.Tracker, opts ...ServiceOption) *Service {
	if queue == nil {
		panic("reminder: queue cannot be nil")
	}
	s := &Service{
		queue:       queue,
		appts:       appts,
		ledger:      ledger,
		tracker:     tracker,
		logger:      logging.Default(),
		countryCode: "55",
		interval:    time.Hour,
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Summary reports one scheduling sweep.
type Summary struct {
	Date    string `json:"date"`
	Total   int    `json:"total"`
	Queued  int    `json:"queued"`
	Skipped int    `json:"skipped"`
	Errors  int    `json:"errors"`
}

// Run sweeps immediately, then once per interval until ctx is done.
func (s *Service) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.sweep(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.sweep(ctx)
		}
	}
}

func (s *Service) sweep(ctx context.Context) {
	summary, err := s.ProcessNextDay(ctx)
	if err != nil {
		s.logger.Error("reminder sweep failed", "error", err)
		return
	}
	s.logger.Info("reminder sweep finished",
		"date", summary.Date, "total", summary.Total,
		"queued", summary.Queued, "skipped", summary.Skipped, "errors", summary.Errors)
}

// ProcessNextDay enqueues reminders for tomorrow's appointments.
func (s *Service) ProcessNextDay(ctx context.Context) (Summary, error) {
	tomorrow := s.now().AddDate(0, 0, 1).Format(dateLayout)
	return s.ProcessDate(ctx, tomorrow)
}

// ProcessDate enqueues reminders for every still-scheduled appointment on
// the given calendar day (yyyy-mm-dd). Individual appointment failures are
// counted, not fatal.
func (s *Service) ProcessDate(ctx context.Context, date string) (Summary, error) {
	if _, err := time.Parse(dateLayout, date); err != nil {
		return Summary{}, fmt.Errorf("reminder: invalid date %q: %w", date, err)
	}

	appts, err := s.appts.FindScheduledForDate(ctx, date)
	if err != nil {
		return Summary{}, fmt.Errorf("reminder: list appointments for %s: %w", date, err)
	}

	summary := Summary{Date: date, Total: len(appts)}
	for i := range appts {
		switch outcome, err := s.enqueueOne(ctx, &appts[i]); {
		case err != nil:
			summary.Errors++
			s.metrics.ObserveEnqueue("error")
			s.logger.Error("failed to enqueue reminder",
				"appointment_id", appts[i].ID, "error", err)
		case outcome == "queued":
			summary.Queued++
			s.metrics.ObserveEnqueue("queued")
		default:
			summary.Skipped++
			s.metrics.ObserveEnqueue("skipped")
			s.logger.Warn("skipping appointment", "appointment_id", appts[i].ID, "reason", outcome)
		}
	}
	return summary, nil
}

func (s *Service) enqueueOne(ctx context.Context, appt *appointments.Appointment) (string, error) {
	if appt.PatientName == "" || appt.PatientPrimaryPhone == "" {
		return "missing patient information", nil
	}
	if appt.ScheduledAt.IsZero() {
		return "missing schedule date time", nil
	}
	if appt.ProfessionalName == "" {
		return "missing professional information", nil
	}

	phone := FormatPhoneNumber(appt.PatientPrimaryPhone, s.countryCode)
	date := appt.ScheduledAt.Format(dateLayout)

	alreadySent, err := s.ledger.HasSentReminderForDate(ctx, appt.ID, phone, date)
	if err != nil {
		return "", fmt.Errorf("check reminder history: %w", err)
	}
	if alreadySent {
		return "reminder already sent for date " + date, nil
	}

	job := Job{
		ID:            uuid.NewString(),
		AppointmentID: appt.ID,
		PatientName:   appt.PatientName,
		Phone:         phone,
		Message:       BuildReminderMessage(appt),
		ScheduledAt:   appt.ScheduledAt,
		Date:          date,
		Attempt:       1,
	}

	if s.tracker != nil {
		if err := s.tracker.MarkWaiting(ctx, &jobs.Record{
			JobID:         job.ID,
			AppointmentID: appt.ID.String(),
			PatientPhone:  phone,
		}); err != nil {
			s.logger.Warn("failed to track reminder job", "job_id", job.ID, "error", err)
		}
	}

	body, err := encodeJob(job)
	if err != nil {
		return "", err
	}
	if err := s.queue.Send(ctx, body, 0); err != nil {
		return "", fmt.Errorf("enqueue job: %w", err)
	}

	s.logger.Info("reminder queued",
		"appointment_id", appt.ID, "patient", appt.PatientName, "date", date)
	return "queued", nil
}
