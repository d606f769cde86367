package notify

import (
	"context"
	"fmt"

	"github.com/clicksaudeagendamento/clicksaudeagendamento-backend/pkg/logging"
)

// Service sends operator alerts for pipeline failures. A nil sender or
// empty operator address disables alerts without failing the pipeline.
type Service struct {
	sender   EmailSender
	operator string
	logger   *logging.Logger
}

// NewService builds the alert service.
func NewService(sender EmailSender, operatorEmail string, logger *logging.Logger) *Service {
	if logger == nil {
		logger = logging.Default()
	}
	return &Service{sender: sender, operator: operatorEmail, logger: logger}
}

// ReminderFailure describes a reminder whose delivery retries were exhausted.
type ReminderFailure struct {
	JobID         string
	AppointmentID string
	PatientName   string
	Phone         string
	Attempts      int
	LastError     string
}

// NotifyReminderFailed emails the operator about a permanently failed
// reminder. Errors are logged and swallowed so callers never fail on
// alerting problems.
func (s *Service) NotifyReminderFailed(ctx context.Context, failure ReminderFailure) {
	if s == nil || s.sender == nil || s.operator == "" {
		return
	}

	subject := fmt.Sprintf("[Click Saúde] Falha no envio de lembrete (%s)", failure.AppointmentID)
	body := fmt.Sprintf(
		"O lembrete de consulta não pôde ser entregue.\n\n"+
			"Paciente: %s\n"+
			"Telefone: %s\n"+
			"Agendamento: %s\n"+
			"Job: %s\n"+
			"Tentativas: %d\n"+
			"Último erro: %s\n",
		failure.PatientName, failure.Phone, failure.AppointmentID,
		failure.JobID, failure.Attempts, failure.LastError)

	if err := s.sender.Send(ctx, EmailMessage{
		To:      s.operator,
		Subject: subject,
		Body:    body,
	}); err != nil {
		s.logger.Error("failed to send reminder failure alert", "error", err, "job_id", failure.JobID)
		return
	}
	s.logger.Info("reminder failure alert sent", "job_id", failure.JobID, "to", s.operator)
}
