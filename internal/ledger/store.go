// Package ledger persists the message-history ledger: an append-only audit
// log of every sent and received WhatsApp message that doubles as the
// idempotency guard for reminder, confirmation and cancellation sends.
package ledger

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// MessageType classifies a ledger record.
type MessageType string

const (
	TypeReminder      MessageType = "reminder"
	TypeConfirmation  MessageType = "confirmation"
	TypeCancellation  MessageType = "cancellation"
	TypeInfo          MessageType = "info"
	TypeReinforcement MessageType = "reinforcement"
	TypeOther         MessageType = "other"
)

// Direction marks whether we sent or received the message.
type Direction string

const (
	DirectionSent     Direction = "sent"
	DirectionReceived Direction = "received"
)

// ResponseType records how a classified patient reply was interpreted.
type ResponseType string

const (
	ResponseSim   ResponseType = "sim"
	ResponseNao   ResponseType = "nao"
	ResponseOther ResponseType = "other"
)

// Record is a single immutable ledger entry. AppointmentID is nil for
// unsolicited traffic (institutional replies to unknown senders).
type Record struct {
	ID               uuid.UUID
	AppointmentID    *uuid.UUID
	PatientPhone     string
	Type             MessageType
	Direction        Direction
	Content          string
	ResponseType     ResponseType
	AlreadyResponded bool
	Date             string // calendar day yyyy-mm-dd, set for reminders only
	CreatedAt        time.Time
}

type Querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Store persists ledger records in Postgres.
type Store struct {
	pool Querier
}

func NewStore(pool Querier) *Store {
	if pool == nil {
		return nil
	}
	return &Store{pool: pool}
}

// LogMessage appends a record. Duplicate suppression is check-then-write at
// the call sites; this method never deduplicates on its own.
func (s *Store) LogMessage(ctx context.Context, rec Record) error {
	if rec.ID == uuid.Nil {
		rec.ID = uuid.New()
	}
	query := `
		INSERT INTO message_history (
			id, appointment_id, patient_phone, type, direction,
			content, response_type, already_responded, date
		)
		VALUES ($1,$2,$3,$4,$5,$6,NULLIF($7,''),$8,NULLIF($9,''))
	`
	_, err := s.pool.Exec(ctx, query,
		rec.ID, rec.AppointmentID, rec.PatientPhone, string(rec.Type), string(rec.Direction),
		rec.Content, string(rec.ResponseType), rec.AlreadyResponded, rec.Date)
	if err != nil {
		return fmt.Errorf("ledger: log message: %w", err)
	}
	return nil
}

// HasSentReminderForDate reports whether a reminder was already sent for the
// exact (appointment, phone, calendar day) tuple.
func (s *Store) HasSentReminderForDate(ctx context.Context, appointmentID uuid.UUID, phone, date string) (bool, error) {
	query := `
		SELECT 1 FROM message_history
		WHERE appointment_id = $1
			AND patient_phone = $2
			AND type = 'reminder'
			AND direction = 'sent'
			AND date = $3
		LIMIT 1
	`
	return s.exists(ctx, "check sent reminder", query, appointmentID, phone, date)
}

// HasSentConfirmationOrCancellation is scoped per appointment lifecycle, not
// per calendar day.
func (s *Store) HasSentConfirmationOrCancellation(ctx context.Context, appointmentID uuid.UUID, phone string) (bool, error) {
	query := `
		SELECT 1 FROM message_history
		WHERE appointment_id = $1
			AND patient_phone = $2
			AND type IN ('confirmation', 'cancellation')
			AND direction = 'sent'
		LIMIT 1
	`
	return s.exists(ctx, "check sent confirmation", query, appointmentID, phone)
}

// HasReceivedSimNao reports whether a classified SIM/NÃO reply was already
// recorded for the appointment and phone.
func (s *Store) HasReceivedSimNao(ctx context.Context, appointmentID uuid.UUID, phone string) (bool, error) {
	query := `
		SELECT 1 FROM message_history
		WHERE appointment_id = $1
			AND patient_phone = $2
			AND type IN ('confirmation', 'cancellation')
			AND direction = 'received'
		LIMIT 1
	`
	return s.exists(ctx, "check received reply", query, appointmentID, phone)
}

// HasSentReinforcement reports whether the reinforcement nudge already went
// out for the pair. Durable replacement for a process-local flag: it must
// survive restarts.
func (s *Store) HasSentReinforcement(ctx context.Context, appointmentID uuid.UUID, phone string) (bool, error) {
	query := `
		SELECT 1 FROM message_history
		WHERE appointment_id = $1
			AND patient_phone = $2
			AND type = 'reinforcement'
			AND direction = 'sent'
		LIMIT 1
	`
	return s.exists(ctx, "check sent reinforcement", query, appointmentID, phone)
}

// LogInfoIfNotExists appends an institutional/info record unless an identical
// one (phone, content, sent) already exists.
func (s *Store) LogInfoIfNotExists(ctx context.Context, phone, content string) error {
	query := `
		SELECT 1 FROM message_history
		WHERE patient_phone = $1
			AND type = 'info'
			AND direction = 'sent'
			AND content = $2
		LIMIT 1
	`
	exists, err := s.exists(ctx, "check info message", query, phone, content)
	if err != nil {
		return err
	}
	if exists {
		return nil
	}
	return s.LogMessage(ctx, Record{
		PatientPhone: phone,
		Type:         TypeInfo,
		Direction:    DirectionSent,
		Content:      content,
	})
}

// GetReminderSent returns the most recent sent reminder for the pair, or nil.
func (s *Store) GetReminderSent(ctx context.Context, appointmentID uuid.UUID, phone string) (*Record, error) {
	query := `
		SELECT id, appointment_id, patient_phone, type, direction,
			content, COALESCE(response_type, ''), already_responded, COALESCE(date, ''), created_at
		FROM message_history
		WHERE appointment_id = $1
			AND patient_phone = $2
			AND type = 'reminder'
			AND direction = 'sent'
		ORDER BY created_at DESC
		LIMIT 1
	`
	var rec Record
	var typ, dir, respType string
	err := s.pool.QueryRow(ctx, query, appointmentID, phone).Scan(
		&rec.ID, &rec.AppointmentID, &rec.PatientPhone, &typ, &dir,
		&rec.Content, &respType, &rec.AlreadyResponded, &rec.Date, &rec.CreatedAt)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("ledger: get sent reminder: %w", err)
	}
	rec.Type = MessageType(typ)
	rec.Direction = Direction(dir)
	rec.ResponseType = ResponseType(respType)
	return &rec, nil
}

func (s *Store) exists(ctx context.Context, verb, query string, args ...any) (bool, error) {
	var one int
	if err := s.pool.QueryRow(ctx, query, args...).Scan(&one); err != nil {
		if err == pgx.ErrNoRows {
			return false, nil
		}
		return false, fmt.Errorf("ledger: %s: %w", verb, err)
	}
	return true, nil
}
