package reminder

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/clicksaudeagendamento/clicksaudeagendamento-backend/internal/ledger"
	"github.com/clicksaudeagendamento/clicksaudeagendamento-backend/internal/notify"
)

type fakeSession struct {
	mu           sync.Mutex
	connected    bool
	ready        bool
	connectErr   error
	sendErr      error
	connectCalls int
	sent         []struct{ To, Body string }
}

func (f *fakeSession) IsConnected() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.connected
}

func (f *fakeSession) Connect(context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.connectCalls++
	if f.connectErr != nil {
		return f.connectErr
	}
	f.connected = true
	return nil
}

func (f *fakeSession) Ready(context.Context) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.ready
}

func (f *fakeSession) Send(_ context.Context, to, body string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.sendErr != nil {
		return f.sendErr
	}
	f.sent = append(f.sent, struct{ To, Body string }{to, body})
	return nil
}

type fakeProcessorLedger struct {
	mu          sync.Mutex
	alreadySent bool
	logged      []ledger.Record
}

func (f *fakeProcessorLedger) HasSentReminderForDate(context.Context, uuid.UUID, string, string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.alreadySent, nil
}

func (f *fakeProcessorLedger) LogMessage(_ context.Context, rec ledger.Record) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.logged = append(f.logged, rec)
	return nil
}

type recordingEmail struct {
	mu       sync.Mutex
	messages []notify.EmailMessage
}

func (r *recordingEmail) Send(_ context.Context, msg notify.EmailMessage) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.messages = append(r.messages, msg)
	return nil
}

func testJob() Job {
	return Job{
		ID:            uuid.NewString(),
		AppointmentID: uuid.New(),
		PatientName:   "Maria Silva",
		Phone:         "5511999998888",
		Message:       "Olá, Maria!",
		ScheduledAt:   time.Date(2026, time.September, 2, 14, 0, 0, 0, time.UTC),
		Date:          "2026-09-02",
		Attempt:       1,
	}
}

func enqueueJob(t *testing.T, q *MemoryQueue, job Job) queueMessage {
	t.Helper()
	body, err := encodeJob(job)
	require.NoError(t, err)
	return queueMessage{ID: "m1", Body: body, ReceiptHandle: "r1"}
}

func TestProcessorDeliversReminder(t *testing.T) {
	queue := NewMemoryQueue(16)
	session := &fakeSession{connected: true, ready: true}
	led := &fakeProcessorLedger{}
	tracker := newFakeTracker()

	p := NewProcessor(queue, session, led, tracker, WithSettleDelay(0))
	job := testJob()
	p.handleMessage(context.Background(), enqueueJob(t, queue, job))

	require.Len(t, session.sent, 1)
	assert.Equal(t, "5511999998888@c.us", session.sent[0].To)
	assert.Equal(t, job.Message, session.sent[0].Body)

	require.Len(t, led.logged, 1)
	assert.Equal(t, ledger.TypeReminder, led.logged[0].Type)
	assert.Equal(t, ledger.DirectionSent, led.logged[0].Direction)
	assert.Equal(t, "2026-09-02", led.logged[0].Date)

	assert.Equal(t, []string{job.ID}, tracker.completed)
	assert.Empty(t, tracker.failed)
}

func TestProcessorSkipsDuplicateReminder(t *testing.T) {
	queue := NewMemoryQueue(16)
	session := &fakeSession{connected: true, ready: true}
	led := &fakeProcessorLedger{alreadySent: true}
	tracker := newFakeTracker()

	p := NewProcessor(queue, session, led, tracker, WithSettleDelay(0))
	job := testJob()
	p.handleMessage(context.Background(), enqueueJob(t, queue, job))

	assert.Empty(t, session.sent)
	assert.Empty(t, led.logged)
	// A duplicate resolves as completed, not failed.
	assert.Equal(t, []string{job.ID}, tracker.completed)
}

func TestProcessorConnectsWhenDisconnected(t *testing.T) {
	queue := NewMemoryQueue(16)
	session := &fakeSession{connected: false, ready: true}
	led := &fakeProcessorLedger{}

	p := NewProcessor(queue, session, led, nil, WithSettleDelay(0))
	p.handleMessage(context.Background(), enqueueJob(t, queue, testJob()))

	assert.Equal(t, 1, session.connectCalls)
	assert.Len(t, session.sent, 1)
}

func TestProcessorInvalidPhoneIsPermanent(t *testing.T) {
	queue := NewMemoryQueue(16)
	session := &fakeSession{connected: true, ready: true}
	tracker := newFakeTracker()
	email := &recordingEmail{}
	alerts := notify.NewService(email, "ops@clicksaude.app", nil)

	p := NewProcessor(queue, session, &fakeProcessorLedger{}, tracker,
		WithSettleDelay(0), WithAlerts(alerts))

	job := testJob()
	job.Phone = "123"
	p.handleMessage(context.Background(), enqueueJob(t, queue, job))

	assert.Empty(t, session.sent)
	assert.Empty(t, drainQueue(t, queue), "permanent failures must not requeue")
	assert.Contains(t, tracker.failed[job.ID], "invalid phone number")
	require.Len(t, email.messages, 1)
}

func TestProcessorPageNotReadyIsPermanent(t *testing.T) {
	queue := NewMemoryQueue(16)
	session := &fakeSession{connected: true, ready: false}
	tracker := newFakeTracker()

	p := NewProcessor(queue, session, &fakeProcessorLedger{}, tracker, WithSettleDelay(0))
	job := testJob()
	p.handleMessage(context.Background(), enqueueJob(t, queue, job))

	assert.Empty(t, session.sent)
	assert.Empty(t, drainQueue(t, queue))
	assert.Contains(t, tracker.failed[job.ID], "not ready")
}

func TestProcessorRetriesTransientFailure(t *testing.T) {
	queue := NewMemoryQueue(16)
	session := &fakeSession{connected: true, ready: true, sendErr: errors.New("send message timeout")}
	tracker := newFakeTracker()

	p := NewProcessor(queue, session, &fakeProcessorLedger{}, tracker,
		WithSettleDelay(0), WithRetryPolicy(3, 5*time.Millisecond))

	job := testJob()
	p.handleMessage(context.Background(), enqueueJob(t, queue, job))

	// The retry is enqueued with a delay; wait for the timer to fire.
	time.Sleep(50 * time.Millisecond)
	requeued := drainQueue(t, queue)
	require.Len(t, requeued, 1)
	assert.Equal(t, job.ID, requeued[0].ID)
	assert.Equal(t, 2, requeued[0].Attempt)
	assert.Empty(t, tracker.failed)
}

func TestProcessorExhaustsRetries(t *testing.T) {
	queue := NewMemoryQueue(16)
	session := &fakeSession{connected: true, ready: true, sendErr: errors.New("send message timeout")}
	tracker := newFakeTracker()
	email := &recordingEmail{}
	alerts := notify.NewService(email, "ops@clicksaude.app", nil)

	p := NewProcessor(queue, session, &fakeProcessorLedger{}, tracker,
		WithSettleDelay(0), WithRetryPolicy(3, 5*time.Millisecond), WithAlerts(alerts))

	job := testJob()
	job.Attempt = 3
	p.handleMessage(context.Background(), enqueueJob(t, queue, job))

	time.Sleep(50 * time.Millisecond)
	assert.Empty(t, drainQueue(t, queue))
	assert.Contains(t, tracker.failed[job.ID], "send message timeout")
	require.Len(t, email.messages, 1)
	assert.Contains(t, email.messages[0].Body, "Maria Silva")
}

func TestProcessorDropsUndecodableMessage(t *testing.T) {
	queue := NewMemoryQueue(16)
	session := &fakeSession{connected: true, ready: true}

	p := NewProcessor(queue, session, &fakeProcessorLedger{}, nil, WithSettleDelay(0))
	p.handleMessage(context.Background(), queueMessage{ID: "m1", Body: "{not json", ReceiptHandle: "r1"})

	assert.Empty(t, session.sent)
	assert.Empty(t, drainQueue(t, queue))
}
