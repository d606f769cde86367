package ledger

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	pgxmock "github.com/pashagolub/pgxmock/v4"
)

func TestStoreLogMessage(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("pgxmock: %v", err)
	}
	defer mock.Close()

	store := &Store{pool: mock}
	apptID := uuid.New()
	mock.ExpectExec("INSERT INTO message_history").
		WithArgs(pgxmock.AnyArg(), &apptID, "5585999990000", "reminder", "sent", "lembrete", "", false, "2026-09-02").
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	err = store.LogMessage(context.Background(), Record{
		AppointmentID: &apptID,
		PatientPhone:  "5585999990000",
		Type:          TypeReminder,
		Direction:     DirectionSent,
		Content:       "lembrete",
		Date:          "2026-09-02",
	})
	if err != nil {
		t.Fatalf("log message: %v", err)
	}
}

func TestStoreHasSentReminderForDate(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("pgxmock: %v", err)
	}
	defer mock.Close()

	store := &Store{pool: mock}
	apptID := uuid.New()

	mock.ExpectQuery("SELECT 1 FROM message_history").
		WithArgs(apptID, "5585999990000", "2026-09-02").
		WillReturnRows(pgxmock.NewRows([]string{"?column?"}).AddRow(1))
	sent, err := store.HasSentReminderForDate(context.Background(), apptID, "5585999990000", "2026-09-02")
	if err != nil {
		t.Fatalf("has sent reminder: %v", err)
	}
	if !sent {
		t.Fatal("expected reminder to be reported as sent")
	}

	mock.ExpectQuery("SELECT 1 FROM message_history").
		WithArgs(apptID, "5585999990000", "2026-09-03").
		WillReturnError(pgx.ErrNoRows)
	sent, err = store.HasSentReminderForDate(context.Background(), apptID, "5585999990000", "2026-09-03")
	if err != nil {
		t.Fatalf("has sent reminder (no rows): %v", err)
	}
	if sent {
		t.Fatal("expected no reminder for other date")
	}
}

func TestStoreLogInfoIfNotExists(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("pgxmock: %v", err)
	}
	defer mock.Close()

	store := &Store{pool: mock}

	// Already present: no insert.
	mock.ExpectQuery("SELECT 1 FROM message_history").
		WithArgs("5585999990000", "oi").
		WillReturnRows(pgxmock.NewRows([]string{"?column?"}).AddRow(1))
	if err := store.LogInfoIfNotExists(context.Background(), "5585999990000", "oi"); err != nil {
		t.Fatalf("log info (exists): %v", err)
	}

	// Absent: insert happens.
	mock.ExpectQuery("SELECT 1 FROM message_history").
		WithArgs("5585999990000", "oi").
		WillReturnError(pgx.ErrNoRows)
	mock.ExpectExec("INSERT INTO message_history").
		WithArgs(pgxmock.AnyArg(), (*uuid.UUID)(nil), "5585999990000", "info", "sent", "oi", "", false, "").
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	if err := store.LogInfoIfNotExists(context.Background(), "5585999990000", "oi"); err != nil {
		t.Fatalf("log info (absent): %v", err)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestStoreGetReminderSentNoRows(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("pgxmock: %v", err)
	}
	defer mock.Close()

	store := &Store{pool: mock}
	apptID := uuid.New()

	mock.ExpectQuery("SELECT id, appointment_id, patient_phone").
		WithArgs(apptID, "5585999990000").
		WillReturnError(pgx.ErrNoRows)

	rec, err := store.GetReminderSent(context.Background(), apptID, "5585999990000")
	if err != nil {
		t.Fatalf("get reminder sent: %v", err)
	}
	if rec != nil {
		t.Fatal("expected nil record when no reminder was sent")
	}
}
