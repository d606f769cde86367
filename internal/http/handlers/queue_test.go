package handlers

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/clicksaudeagendamento/clicksaudeagendamento-backend/internal/appointments"
	"github.com/clicksaudeagendamento/clicksaudeagendamento-backend/internal/jobs"
	"github.com/clicksaudeagendamento/clicksaudeagendamento-backend/internal/reminder"
)

type fakeScheduler struct {
	lastDate string
	summary  reminder.Summary
	err      error
}

func (f *fakeScheduler) ProcessNextDay(context.Context) (reminder.Summary, error) {
	return f.summary, f.err
}

func (f *fakeScheduler) ProcessDate(_ context.Context, date string) (reminder.Summary, error) {
	f.lastDate = date
	if f.err != nil {
		return reminder.Summary{}, f.err
	}
	s := f.summary
	s.Date = date
	return s, nil
}

type staticTracker struct {
	stats jobs.Stats
}

func (f *staticTracker) MarkWaiting(context.Context, *jobs.Record) error  { return nil }
func (f *staticTracker) MarkActive(context.Context, string, int) error    { return nil }
func (f *staticTracker) MarkCompleted(context.Context, string) error      { return nil }
func (f *staticTracker) MarkFailed(context.Context, string, string) error { return nil }
func (f *staticTracker) Stats(context.Context) (jobs.Stats, error)        { return f.stats, nil }

type staticStats struct {
	counts appointments.StatusCounts
}

func (f *staticStats) CountByStatus(context.Context) (appointments.StatusCounts, error) {
	return f.counts, nil
}

type fakeMessageSession struct {
	connected bool
	sendErr   error
	sent      []struct{ To, Body string }
}

func (f *fakeMessageSession) IsConnected() bool { return f.connected }

func (f *fakeMessageSession) Send(_ context.Context, to, body string) error {
	if f.sendErr != nil {
		return f.sendErr
	}
	f.sent = append(f.sent, struct{ To, Body string }{to, body})
	return nil
}

func TestProcessNextDayEndpoint(t *testing.T) {
	scheduler := &fakeScheduler{summary: reminder.Summary{Date: "2026-09-02", Total: 2, Queued: 2}}
	h := NewQueueHandler(scheduler, nil, nil, nil, "55", nil)

	req := httptest.NewRequest(http.MethodPost, "/appointment-queue/process-next-day", nil)
	rec := httptest.NewRecorder()
	h.ProcessNextDay(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"queued":2`)
}

func TestProcessDateEndpoint(t *testing.T) {
	scheduler := &fakeScheduler{summary: reminder.Summary{Total: 1, Queued: 1}}
	h := NewQueueHandler(scheduler, nil, nil, nil, "55", nil)

	req := httptest.NewRequest(http.MethodPost, "/appointment-queue/process-date",
		strings.NewReader(`{"date":"2026-09-05"}`))
	rec := httptest.NewRecorder()
	h.ProcessDate(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "2026-09-05", scheduler.lastDate)
}

func TestProcessDateEndpointRejectsBadBody(t *testing.T) {
	h := NewQueueHandler(&fakeScheduler{}, nil, nil, nil, "55", nil)

	req := httptest.NewRequest(http.MethodPost, "/appointment-queue/process-date",
		strings.NewReader(`{}`))
	rec := httptest.NewRecorder()
	h.ProcessDate(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestProcessDateEndpointRejectsMalformedDate(t *testing.T) {
	scheduler := &fakeScheduler{err: fmt.Errorf("reminder: invalid date %q", "05-09-2026")}
	h := NewQueueHandler(scheduler, nil, nil, nil, "55", nil)

	req := httptest.NewRequest(http.MethodPost, "/appointment-queue/process-date",
		strings.NewReader(`{"date":"05-09-2026"}`))
	rec := httptest.NewRecorder()
	h.ProcessDate(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestStatsEndpoint(t *testing.T) {
	tracker := &staticTracker{stats: jobs.Stats{Waiting: 1, Completed: 4}}
	h := NewQueueHandler(&fakeScheduler{}, tracker, nil, nil, "55", nil)

	req := httptest.NewRequest(http.MethodGet, "/appointment-queue/stats", nil)
	rec := httptest.NewRecorder()
	h.Stats(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"completed":4`)
}

func TestStatsEndpointDisabled(t *testing.T) {
	h := NewQueueHandler(&fakeScheduler{}, nil, nil, nil, "55", nil)

	rec := httptest.NewRecorder()
	h.Stats(rec, httptest.NewRequest(http.MethodGet, "/appointment-queue/stats", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestResponseStatsEndpoint(t *testing.T) {
	stats := &staticStats{counts: appointments.StatusCounts{Total: 10, Confirmed: 6, Cancelled: 2, Unknown: 2}}
	h := NewQueueHandler(&fakeScheduler{}, nil, stats, nil, "55", nil)

	req := httptest.NewRequest(http.MethodGet, "/appointment-queue/response-stats", nil)
	rec := httptest.NewRecorder()
	h.ResponseStats(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"confirmed":6`)
	assert.Contains(t, rec.Body.String(), `"unknown":2`)
}

func TestTestMessageEndpoint(t *testing.T) {
	session := &fakeMessageSession{connected: true}
	h := NewQueueHandler(&fakeScheduler{}, nil, nil, session, "55", nil)

	req := httptest.NewRequest(http.MethodPost, "/appointment-queue/test-message",
		strings.NewReader(`{"phone":"(11) 99999-8888","message":"ping"}`))
	rec := httptest.NewRecorder()
	h.TestMessage(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	require.Len(t, session.sent, 1)
	assert.Equal(t, "5511999998888@c.us", session.sent[0].To)
	assert.Equal(t, "ping", session.sent[0].Body)
}

func TestTestMessageEndpointRequiresConnection(t *testing.T) {
	session := &fakeMessageSession{connected: false}
	h := NewQueueHandler(&fakeScheduler{}, nil, nil, session, "55", nil)

	req := httptest.NewRequest(http.MethodPost, "/appointment-queue/test-message",
		strings.NewReader(`{"phone":"11999998888","message":"ping"}`))
	rec := httptest.NewRecorder()
	h.TestMessage(rec, req)

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Empty(t, session.sent)
}

func TestTestMessageEndpointSendFailure(t *testing.T) {
	session := &fakeMessageSession{connected: true, sendErr: errors.New("boom")}
	h := NewQueueHandler(&fakeScheduler{}, nil, nil, session, "55", nil)

	req := httptest.NewRequest(http.MethodPost, "/appointment-queue/test-message",
		strings.NewReader(`{"phone":"11999998888","message":"ping"}`))
	rec := httptest.NewRecorder()
	h.TestMessage(rec, req)

	assert.Equal(t, http.StatusBadGateway, rec.Code)
}
