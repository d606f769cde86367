package reminder

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/clicksaudeagendamento/clicksaudeagendamento-backend/internal/jobs"
	"github.com/clicksaudeagendamento/clicksaudeagendamento-backend/internal/ledger"
	"github.com/clicksaudeagendamento/clicksaudeagendamento-backend/internal/notify"
	"github.com/clicksaudeagendamento/clicksaudeagendamento-backend/internal/observability/metrics"
	"github.com/clicksaudeagendamento/clicksaudeagendamento-backend/pkg/logging"
)

// permanentError marks failures that retrying cannot fix.
type permanentError struct {
	msg string
}

func (e *permanentError) Error() string { return e.msg }

func permanentErrorf(format string, args ...any) error {
	return &permanentError{msg: fmt.Sprintf(format, args...)}
}

// IsPermanent reports whether err is a non-retryable delivery failure.
func IsPermanent(err error) bool {
	var pe *permanentError
	return errors.As(err, &pe)
}

// Sender is the WhatsApp session surface the worker needs.
type Sender interface {
	IsConnected() bool
	Connect(ctx context.Context) error
	Ready(ctx context.Context) bool
	Send(ctx context.Context, to, body string) error
}

type processorLedger interface {
	HasSentReminderForDate(ctx context.Context, appointmentID uuid.UUID, phone, date string) (bool, error)
	LogMessage(ctx context.Context, rec ledger.Record) error
}

// Processor consumes reminder jobs from the queue and delivers them.
type Processor struct {
	queue   queueClient
	session Sender
	ledger  processorLedger
	tracker jobs.Tracker
	alerts  *notify.Service
	metrics *metrics.ReminderMetrics
	logger  *logging.Logger

	maxAttempts int
	baseDelay   time.Duration
	sendTimeout time.Duration
	settleDelay time.Duration
}

// ProcessorOption configures a Processor.
type ProcessorOption func(*Processor)

// WithRetryPolicy sets the attempt cap and the exponential backoff base.
func WithRetryPolicy(maxAttempts int, baseDelay time.Duration) ProcessorOption {
	return func(p *Processor) {
		if maxAttempts > 0 {
			p.maxAttempts = maxAttempts
		}
		if baseDelay > 0 {
			p.baseDelay = baseDelay
		}
	}
}

// WithSendTimeout caps a single WhatsApp send.
func WithSendTimeout(d time.Duration) ProcessorOption {
	return func(p *Processor) {
		if d > 0 {
			p.sendTimeout = d
		}
	}
}

// WithSettleDelay sets the wait after an on-demand connect before sending.
func WithSettleDelay(d time.Duration) ProcessorOption {
	return func(p *Processor) {
		if d >= 0 {
			p.settleDelay = d
		}
	}
}

// WithAlerts attaches the operator alert service.
func WithAlerts(alerts *notify.Service) ProcessorOption {
	return func(p *Processor) {
		p.alerts = alerts
	}
}

// WithProcessorMetrics attaches pipeline metrics.
func WithProcessorMetrics(m *metrics.ReminderMetrics) ProcessorOption {
	return func(p *Processor) {
		p.metrics = m
	}
}

// WithProcessorLogger sets a custom logger.
func WithProcessorLogger(logger *logging.Logger) ProcessorOption {
	return func(p *Processor) {
		if logger != nil {
			p.logger = logger
		}
	}
}

// NewProcessor builds a reminder worker.
func NewProcessor(queue queueClient, session Sender, store processorLedger, tracker jobs.Tracker, opts ...ProcessorOption) *Processor {
	if queue == nil {
		panic("reminder: queue cannot be nil")
	}
	if session == nil {
		panic("reminder: session cannot be nil")
	}
	p := &Processor{
		queue:       queue,
		session:     session,
		ledger:      store,
		tracker:     tracker,
		logger:      logging.Default(),
		maxAttempts: 3,
		baseDelay:   2 * time.Second,
		sendTimeout: 30 * time.Second,
		settleDelay: 5 * time.Second,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Run polls the queue until ctx is done. Receive errors back off briefly so
// a broken queue does not spin the loop.
func (p *Processor) Run(ctx context.Context) {
	for {
		if ctx.Err() != nil {
			return
		}
		messages, err := p.queue.Receive(ctx, 5, 10)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			p.logger.Error("queue receive failed", "error", err)
			select {
			case <-ctx.Done():
				return
			case <-time.After(time.Second):
			}
			continue
		}
		for _, msg := range messages {
			p.handleMessage(ctx, msg)
		}
	}
}

func (p *Processor) handleMessage(ctx context.Context, msg queueMessage) {
	job, err := decodeJob(msg.Body)
	if err != nil {
		p.logger.Error("dropping undecodable job", "message_id", msg.ID, "error", err)
		p.deleteMessage(ctx, msg)
		return
	}

	p.markActive(ctx, job)

	sendErr := p.sendReminder(ctx, job)
	switch {
	case sendErr == nil:
		p.markCompleted(ctx, job)
		p.metrics.ObserveSend("sent")
		p.logger.Info("reminder delivered",
			"job_id", job.ID, "appointment_id", job.AppointmentID, "patient", job.PatientName, "attempt", job.Attempt)

	case IsPermanent(sendErr):
		p.metrics.ObserveSend("permanent_failure")
		p.logger.Warn("not retrying reminder",
			"job_id", job.ID, "appointment_id", job.AppointmentID, "error", sendErr)
		p.fail(ctx, job, sendErr)

	case job.Attempt >= p.maxAttempts:
		p.metrics.ObserveSend("exhausted")
		p.logger.Error("reminder retries exhausted",
			"job_id", job.ID, "appointment_id", job.AppointmentID, "attempts", job.Attempt, "error", sendErr)
		p.fail(ctx, job, sendErr)

	default:
		p.metrics.ObserveSend("retry")
		delay := p.baseDelay << (job.Attempt - 1)
		p.logger.Warn("reminder send failed, retrying",
			"job_id", job.ID, "attempt", job.Attempt, "retry_in", delay, "error", sendErr)
		p.requeue(ctx, job, delay)
	}

	p.deleteMessage(ctx, msg)
}

// sendReminder performs one delivery attempt. Returning a permanent error
// stops retries; any other error is considered transient.
func (p *Processor) sendReminder(ctx context.Context, job Job) error {
	cleanPhone := CleanPhone(job.Phone)
	if len(cleanPhone) < 10 {
		return permanentErrorf("invalid phone number format: %s", job.Phone)
	}
	if strings.TrimSpace(job.Message) == "" {
		return permanentErrorf("message cannot be empty")
	}

	if !p.session.IsConnected() {
		p.logger.Warn("whatsapp not connected, attempting to connect", "job_id", job.ID)
		if err := p.session.Connect(ctx); err != nil {
			return fmt.Errorf("connect whatsapp: %w", err)
		}
		if p.settleDelay > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(p.settleDelay):
			}
		}
	}

	if !p.session.Ready(ctx) {
		return permanentErrorf("whatsapp page is not ready")
	}

	// One reminder per appointment per day, even across racing workers.
	if p.ledger != nil {
		alreadySent, err := p.ledger.HasSentReminderForDate(ctx, job.AppointmentID, cleanPhone, job.Date)
		if err != nil {
			return fmt.Errorf("check reminder history: %w", err)
		}
		if alreadySent {
			p.logger.Warn("reminder already sent",
				"appointment_id", job.AppointmentID, "phone", cleanPhone, "date", job.Date)
			return nil
		}

		// The ledger row is written before the send.
		apptID := job.AppointmentID
		if err := p.ledger.LogMessage(ctx, ledger.Record{
			AppointmentID: &apptID,
			PatientPhone:  cleanPhone,
			Type:          ledger.TypeReminder,
			Direction:     ledger.DirectionSent,
			Content:       job.Message,
			Date:          job.Date,
		}); err != nil {
			return fmt.Errorf("log reminder: %w", err)
		}
	}

	sendCtx, cancel := context.WithTimeout(ctx, p.sendTimeout)
	defer cancel()

	start := time.Now()
	err := p.session.Send(sendCtx, ChatAddress(cleanPhone), job.Message)
	p.metrics.ObserveSendLatency(time.Since(start).Seconds())
	if err != nil {
		return fmt.Errorf("send message: %w", err)
	}
	return nil
}

func (p *Processor) requeue(ctx context.Context, job Job, delay time.Duration) {
	job.Attempt++
	body, err := encodeJob(job)
	if err != nil {
		p.logger.Error("failed to encode retry job", "job_id", job.ID, "error", err)
		return
	}
	if err := p.queue.Send(ctx, body, delay); err != nil {
		p.logger.Error("failed to requeue job", "job_id", job.ID, "error", err)
	}
}

func (p *Processor) fail(ctx context.Context, job Job, cause error) {
	if p.tracker != nil {
		if err := p.tracker.MarkFailed(ctx, job.ID, cause.Error()); err != nil && !errors.Is(err, jobs.ErrJobNotFound) {
			p.logger.Warn("failed to track job failure", "job_id", job.ID, "error", err)
		}
	}
	p.alerts.NotifyReminderFailed(ctx, notify.ReminderFailure{
		JobID:         job.ID,
		AppointmentID: job.AppointmentID.String(),
		PatientName:   job.PatientName,
		Phone:         job.Phone,
		Attempts:      job.Attempt,
		LastError:     cause.Error(),
	})
}

func (p *Processor) markActive(ctx context.Context, job Job) {
	if p.tracker == nil {
		return
	}
	if err := p.tracker.MarkActive(ctx, job.ID, job.Attempt); err != nil && !errors.Is(err, jobs.ErrJobNotFound) {
		p.logger.Warn("failed to track job activation", "job_id", job.ID, "error", err)
	}
}

func (p *Processor) markCompleted(ctx context.Context, job Job) {
	if p.tracker == nil {
		return
	}
	if err := p.tracker.MarkCompleted(ctx, job.ID); err != nil && !errors.Is(err, jobs.ErrJobNotFound) {
		p.logger.Warn("failed to track job completion", "job_id", job.ID, "error", err)
	}
}

func (p *Processor) deleteMessage(ctx context.Context, msg queueMessage) {
	if err := p.queue.Delete(ctx, msg.ReceiptHandle); err != nil {
		p.logger.Error("failed to delete queue message", "message_id", msg.ID, "error", err)
	}
}
