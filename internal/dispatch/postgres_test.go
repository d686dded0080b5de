package dispatch

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
)

func jobColumns() []string {
	return []string{"id", "recipient", "query", "context", "status", "error", "created_at", "updated_at"}
}

func TestPGClaimMovesJobToQuerying(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	defer db.Close()

	now := time.Now().UTC()
	rows := sqlmock.NewRows(jobColumns()).
		AddRow("01JX", "user-7", "list overdue", "{}", "querying", "", now, now)
	mock.ExpectQuery("update report_jobs").WillReturnRows(rows)

	q := NewPGQueue(db)
	job, ok, err := q.Claim(context.Background())
	if err != nil || !ok {
		t.Fatalf("claim: ok=%v err=%v", ok, err)
	}
	if job.Status != StatusQuerying {
		t.Fatalf("status = %q, want %q", job.Status, StatusQuerying)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestPGClaimEmptyQueue(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	defer db.Close()

	mock.ExpectQuery("update report_jobs").WillReturnError(sql.ErrNoRows)

	q := NewPGQueue(db)
	_, ok, err := q.Claim(context.Background())
	if err != nil {
		t.Fatalf("claim: %v", err)
	}
	if ok {
		t.Fatal("empty queue must not yield a job")
	}
}

func TestPGEnqueueValidation(t *testing.T) {
	db, _, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	defer db.Close()

	q := NewPGQueue(db)
	if _, err := q.Enqueue(context.Background(), "user-1", "  ", ""); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput, got %v", err)
	}
}

func TestPGSetStatusUnknownJob(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	defer db.Close()

	mock.ExpectExec("update report_jobs").WithArgs("missing", "done").
		WillReturnResult(sqlmock.NewResult(0, 0))

	q := NewPGQueue(db)
	if err := q.SetStatus(context.Background(), "missing", StatusDone); !errors.Is(err, ErrJobNotFound) {
		t.Fatalf("expected ErrJobNotFound, got %v", err)
	}
}

func TestPGFailRecordsReason(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	defer db.Close()

	mock.ExpectExec("update report_jobs").WithArgs("01JX", "ai query: exhausted").
		WillReturnResult(sqlmock.NewResult(0, 1))

	q := NewPGQueue(db)
	if err := q.Fail(context.Background(), "01JX", "ai query: exhausted"); err != nil {
		t.Fatalf("fail: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}
