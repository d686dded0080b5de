package token

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
)

func TestPGConsumeWinner(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	defer db.Close()

	now := time.Now().UTC()
	rows := sqlmock.NewRows([]string{"id", "recipient", "kind", "target_type", "target_id", "created_at", "expires_at"}).
		AddRow("aabb", "+1555", "upload", "unit", "123", now, now.Add(15*time.Minute))
	mock.ExpectQuery("update capability_tokens").WithArgs("aabb").WillReturnRows(rows)

	s := NewPGStore(db)
	tok, err := s.Consume(context.Background(), "aabb")
	if err != nil {
		t.Fatalf("Consume: %v", err)
	}
	if !tok.Used {
		t.Fatal("consumed token must be marked used")
	}
	if tok.Recipient != "+1555" || tok.TargetID != "123" {
		t.Fatalf("unexpected record: %+v", tok)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestPGConsumeClassifiesLoser(t *testing.T) {
	cases := []struct {
		name    string
		used    bool
		expired bool
		want    error
	}{
		{"already used", true, false, ErrAlreadyUsed},
		{"used wins over expired", true, true, ErrAlreadyUsed},
		{"expired", false, true, ErrExpired},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			db, mock, err := sqlmock.New()
			if err != nil {
				t.Fatalf("sqlmock.New: %v", err)
			}
			defer db.Close()

			mock.ExpectQuery("update capability_tokens").WithArgs("aabb").WillReturnError(sql.ErrNoRows)
			mock.ExpectQuery("select used, expires_at").WithArgs("aabb").
				WillReturnRows(sqlmock.NewRows([]string{"used", "expired"}).AddRow(tc.used, tc.expired))

			s := NewPGStore(db)
			if _, err := s.Consume(context.Background(), "aabb"); !errors.Is(err, tc.want) {
				t.Fatalf("expected %v, got %v", tc.want, err)
			}
			if err := mock.ExpectationsWereMet(); err != nil {
				t.Fatalf("unmet expectations: %v", err)
			}
		})
	}
}

func TestPGConsumeNotFound(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	defer db.Close()

	mock.ExpectQuery("update capability_tokens").WithArgs("missing").WillReturnError(sql.ErrNoRows)
	mock.ExpectQuery("select used, expires_at").WithArgs("missing").WillReturnError(sql.ErrNoRows)

	s := NewPGStore(db)
	if _, err := s.Consume(context.Background(), "missing"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestPGPeekDoesNotUpdate(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	defer db.Close()

	now := time.Now().UTC()
	rows := sqlmock.NewRows([]string{"id", "recipient", "kind", "target_type", "target_id", "used", "created_at", "expires_at", "expired"}).
		AddRow("aabb", "+1555", "authorize", "", "", false, now, now.Add(time.Minute), false)
	mock.ExpectQuery("select id, recipient, kind").WithArgs("aabb").WillReturnRows(rows)

	s := NewPGStore(db)
	tok, err := s.Peek(context.Background(), "aabb")
	if err != nil {
		t.Fatalf("Peek: %v", err)
	}
	if tok.Used {
		t.Fatal("peeked token must not be marked used")
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestPGIssueValidation(t *testing.T) {
	db, _, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	defer db.Close()

	s := NewPGStore(db)
	if _, err := s.Issue(context.Background(), "", KindAuthorize, Target{}, time.Minute); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput, got %v", err)
	}
}

func TestPGPurgeExpired(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	defer db.Close()

	mock.ExpectExec("delete from capability_tokens").WillReturnResult(sqlmock.NewResult(0, 3))

	s := NewPGStore(db)
	n, err := s.PurgeExpired(context.Background())
	if err != nil {
		t.Fatalf("PurgeExpired: %v", err)
	}
	if n != 3 {
		t.Fatalf("expected 3 purged, got %d", n)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}
