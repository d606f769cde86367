package reminder

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Job is one pending reminder delivery, serialized onto the queue.
// Attempt counts from 1; re-enqueued retries carry the next attempt number.
type Job struct {
	ID            string    `json:"id"`
	AppointmentID uuid.UUID `json:"appointmentId"`
	PatientName   string    `json:"patientName"`
	Phone         string    `json:"phone"`
	Message       string    `json:"message"`
	ScheduledAt   time.Time `json:"scheduledAt"`
	Date          string    `json:"date"` // calendar day yyyy-mm-dd of the appointment
	Attempt       int       `json:"attempt"`
}

func encodeJob(job Job) (string, error) {
	data, err := json.Marshal(job)
	if err != nil {
		return "", fmt.Errorf("reminder: failed to encode job: %w", err)
	}
	return string(data), nil
}

func decodeJob(body string) (Job, error) {
	var job Job
	if err := json.Unmarshal([]byte(body), &job); err != nil {
		return Job{}, fmt.Errorf("reminder: failed to decode job: %w", err)
	}
	if job.Attempt <= 0 {
		job.Attempt = 1
	}
	return job, nil
}
