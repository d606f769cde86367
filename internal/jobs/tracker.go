// Package jobs tracks reminder job lifecycle state so operators can see
// queue health: how many reminders are waiting, in flight, delivered or
// permanently failed.
package jobs

import (
	"context"
	"errors"
	"time"
)

// State is the lifecycle position of a reminder job.
type State string

const (
	StateWaiting   State = "waiting"
	StateActive    State = "active"
	StateCompleted State = "completed"
	StateFailed    State = "failed"
)

// ErrJobNotFound indicates the tracked job ID does not exist.
var ErrJobNotFound = errors.New("jobs: job not found")

// Record is the persisted state of one reminder job.
type Record struct {
	JobID         string `dynamodbav:"jobId" json:"jobId"`
	AppointmentID string `dynamodbav:"appointmentId" json:"appointmentId"`
	PatientPhone  string `dynamodbav:"patientPhone" json:"patientPhone"`
	State         State  `dynamodbav:"state" json:"state"`
	Attempts      int    `dynamodbav:"attempts" json:"attempts"`
	ErrorMessage  string `dynamodbav:"errorMessage,omitempty" json:"errorMessage,omitempty"`
	CreatedAt     string `dynamodbav:"createdAt" json:"createdAt"`
	UpdatedAt     string `dynamodbav:"updatedAt" json:"updatedAt"`
	ExpiresAt     int64  `dynamodbav:"expiresAt,omitempty" json:"-"`
}

// Stats is a point-in-time count per state.
type Stats struct {
	Waiting   int `json:"waiting"`
	Active    int `json:"active"`
	Completed int `json:"completed"`
	Failed    int `json:"failed"`
}

// Tracker records job state transitions and answers stats queries.
type Tracker interface {
	MarkWaiting(ctx context.Context, job *Record) error
	MarkActive(ctx context.Context, jobID string, attempt int) error
	MarkCompleted(ctx context.Context, jobID string) error
	MarkFailed(ctx context.Context, jobID string, errMsg string) error
	Stats(ctx context.Context) (Stats, error)
}

const recordTTL = 7 * 24 * time.Hour
