// Package appointments is the reminder pipeline's view of the appointment
// service. The pipeline only reads appointments and writes status changes on
// classified patient replies; all other appointment CRUD lives elsewhere.
package appointments

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// Status values mirror the appointment service's lifecycle.
const (
	StatusScheduled = "scheduled"
	StatusConfirmed = "confirmed"
	StatusCompleted = "completed"
	StatusCancelled = "cancelled"
)

// Appointment carries the denormalized fields the pipeline needs to build a
// reminder and correlate replies.
type Appointment struct {
	ID                    uuid.UUID
	ScheduleID            uuid.UUID
	ScheduledAt           time.Time
	Status                string
	PatientName           string
	PatientPrimaryPhone   string
	PatientSecondaryPhone string
	ProfessionalName      string
	ProfessionalSpecialty string
	ProfessionalAddress   string
	CreatedAt             time.Time
}

type Querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Store reads and updates appointments in Postgres.
type Store struct {
	pool Querier
}

func NewStore(pool Querier) *Store {
	if pool == nil {
		return nil
	}
	return &Store{pool: pool}
}

const appointmentColumns = `
	id, schedule_id, scheduled_at, status,
	patient_name, patient_primary_phone, COALESCE(patient_secondary_phone, ''),
	COALESCE(professional_name, ''), COALESCE(professional_specialty, ''), COALESCE(professional_address, ''),
	created_at`

// FindScheduledForDate returns still-scheduled appointments whose
// scheduled_at falls on the given calendar day (yyyy-mm-dd).
func (s *Store) FindScheduledForDate(ctx context.Context, date string) ([]Appointment, error) {
	query := `
		SELECT` + appointmentColumns + `
		FROM appointments
		WHERE status = 'scheduled'
			AND scheduled_at::date = $1::date
		ORDER BY scheduled_at
	`
	rows, err := s.pool.Query(ctx, query, date)
	if err != nil {
		return nil, fmt.Errorf("appointments: find for date: %w", err)
	}
	defer rows.Close()

	var out []Appointment
	for rows.Next() {
		appt, err := scanAppointment(rows)
		if err != nil {
			return nil, fmt.Errorf("appointments: scan: %w", err)
		}
		out = append(out, appt)
	}
	return out, rows.Err()
}

// FindByID returns the appointment or nil when absent.
func (s *Store) FindByID(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	query := `
		SELECT` + appointmentColumns + `
		FROM appointments
		WHERE id = $1
	`
	appt, err := scanAppointment(s.pool.QueryRow(ctx, query, id))
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("appointments: find by id: %w", err)
	}
	return &appt, nil
}

// FindScheduledByPhone resolves the most recent scheduled appointment whose
// patient phone contains the given digits. This is the inbound-reply
// correlation lookup.
func (s *Store) FindScheduledByPhone(ctx context.Context, phone string) (*Appointment, error) {
	query := `
		SELECT` + appointmentColumns + `
		FROM appointments
		WHERE status = 'scheduled'
			AND patient_primary_phone LIKE '%' || $1 || '%'
		ORDER BY created_at DESC
		LIMIT 1
	`
	appt, err := scanAppointment(s.pool.QueryRow(ctx, query, phone))
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("appointments: find by phone: %w", err)
	}
	return &appt, nil
}

// UpdateStatus writes the new status. Ownership of status semantics stays
// with the appointment service; the pipeline only calls this for
// confirmed/cancelled transitions.
func (s *Store) UpdateStatus(ctx context.Context, id uuid.UUID, status string) error {
	query := `
		UPDATE appointments
		SET status = $2, updated_at = now()
		WHERE id = $1
	`
	tag, err := s.pool.Exec(ctx, query, id, status)
	if err != nil {
		return fmt.Errorf("appointments: update status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("appointments: update status: appointment %s not found", id)
	}
	return nil
}

// StatusCounts aggregates appointments by status for the response-stats
// surface. "unknown" maps to still-scheduled appointments.
type StatusCounts struct {
	Total     int `json:"total"`
	Confirmed int `json:"confirmed"`
	Cancelled int `json:"cancelled"`
	Unknown   int `json:"unknown"`
}

func (s *Store) CountByStatus(ctx context.Context) (StatusCounts, error) {
	query := `
		SELECT status, COUNT(*)
		FROM appointments
		GROUP BY status
	`
	rows, err := s.pool.Query(ctx, query)
	if err != nil {
		return StatusCounts{}, fmt.Errorf("appointments: count by status: %w", err)
	}
	defer rows.Close()

	var counts StatusCounts
	for rows.Next() {
		var status string
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return StatusCounts{}, fmt.Errorf("appointments: scan count: %w", err)
		}
		counts.Total += n
		switch status {
		case StatusConfirmed:
			counts.Confirmed = n
		case StatusCancelled:
			counts.Cancelled = n
		case StatusScheduled:
			counts.Unknown = n
		}
	}
	return counts, rows.Err()
}

func scanAppointment(row pgx.Row) (Appointment, error) {
	var a Appointment
	err := row.Scan(
		&a.ID, &a.ScheduleID, &a.ScheduledAt, &a.Status,
		&a.PatientName, &a.PatientPrimaryPhone, &a.PatientSecondaryPhone,
		&a.ProfessionalName, &a.ProfessionalSpecialty, &a.ProfessionalAddress,
		&a.CreatedAt)
	return a, err
}
