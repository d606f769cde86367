package jobs

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// Querier is the subset of pgxpool.Pool the tracker needs.
type Querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// PGTracker persists job state to PostgreSQL. This is the default backend;
// everything else in the pipeline already runs against the same database.
type PGTracker struct {
	db Querier
}

var _ Tracker = (*PGTracker)(nil)

// NewPGTracker builds a Postgres-backed tracker.
func NewPGTracker(db Querier) *PGTracker {
	if db == nil {
		panic("jobs: querier cannot be nil")
	}
	return &PGTracker{db: db}
}

// MarkWaiting inserts the job in the waiting state. Re-enqueueing the same
// job ID resets it to waiting rather than erroring.
func (t *PGTracker) MarkWaiting(ctx context.Context, job *Record) error {
	if job == nil {
		return errors.New("jobs: job cannot be nil")
	}
	now := time.Now().UTC()
	job.State = StateWaiting
	job.CreatedAt = now.Format(time.RFC3339Nano)
	job.UpdatedAt = job.CreatedAt

	if _, err := t.db.Exec(ctx, `
		INSERT INTO reminder_jobs (job_id, appointment_id, patient_phone, state, attempts, error_message, created_at, updated_at)
		VALUES ($1, $2, $3, $4, 0, '', $5, $5)
		ON CONFLICT (job_id) DO UPDATE
		SET state = EXCLUDED.state, updated_at = EXCLUDED.updated_at
	`, job.JobID, job.AppointmentID, job.PatientPhone, StateWaiting, now); err != nil {
		return fmt.Errorf("jobs: failed to persist job: %w", err)
	}
	return nil
}

// MarkActive records that a worker picked the job up for the given attempt.
func (t *PGTracker) MarkActive(ctx context.Context, jobID string, attempt int) error {
	return t.update(ctx, jobID, `
		UPDATE reminder_jobs
		SET state = $2, attempts = $3, updated_at = $4
		WHERE job_id = $1
	`, StateActive, attempt, time.Now().UTC())
}

// MarkCompleted records successful delivery.
func (t *PGTracker) MarkCompleted(ctx context.Context, jobID string) error {
	return t.update(ctx, jobID, `
		UPDATE reminder_jobs
		SET state = $2, error_message = '', updated_at = $3
		WHERE job_id = $1
	`, StateCompleted, time.Now().UTC())
}

// MarkFailed records permanent failure after retries are exhausted.
func (t *PGTracker) MarkFailed(ctx context.Context, jobID string, errMsg string) error {
	return t.update(ctx, jobID, `
		UPDATE reminder_jobs
		SET state = $2, error_message = $3, updated_at = $4
		WHERE job_id = $1
	`, StateFailed, errMsg, time.Now().UTC())
}

// Stats counts jobs per state.
func (t *PGTracker) Stats(ctx context.Context) (Stats, error) {
	rows, err := t.db.Query(ctx, `
		SELECT state, COUNT(*)
		FROM reminder_jobs
		GROUP BY state
	`)
	if err != nil {
		return Stats{}, fmt.Errorf("jobs: failed to query stats: %w", err)
	}
	defer rows.Close()

	var stats Stats
	for rows.Next() {
		var state string
		var count int
		if err := rows.Scan(&state, &count); err != nil {
			return Stats{}, fmt.Errorf("jobs: failed to scan stats row: %w", err)
		}
		switch State(state) {
		case StateWaiting:
			stats.Waiting = count
		case StateActive:
			stats.Active = count
		case StateCompleted:
			stats.Completed = count
		case StateFailed:
			stats.Failed = count
		}
	}
	if err := rows.Err(); err != nil {
		return Stats{}, fmt.Errorf("jobs: failed to read stats rows: %w", err)
	}
	return stats, nil
}

func (t *PGTracker) update(ctx context.Context, jobID, sql string, args ...any) error {
	if jobID == "" {
		return errors.New("jobs: jobID required")
	}
	result, err := t.db.Exec(ctx, sql, append([]any{jobID}, args...)...)
	if err != nil {
		return fmt.Errorf("jobs: failed to update job %s: %w", jobID, err)
	}
	if result.RowsAffected() == 0 {
		return ErrJobNotFound
	}
	return nil
}
