package store

import (
	"context"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
)

func TestInsertGeneration_PropagatesDriverError(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	defer db.Close()

	boom := errors.New("disk full")
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO generations")).WillReturnError(boom)

	s := New(db, DialectPostgres)
	_, err = s.InsertGeneration(context.Background(), GenerationRecord{UserID: "u1", Model: "m"})
	if !errors.Is(err, boom) {
		t.Fatalf("want wrapped driver error, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestIncrementUsage_SingleAtomicStatement(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	defer db.Close()

	now := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	mock.ExpectExec(regexp.QuoteMeta("SET daily_usage_count = daily_usage_count + $1")).
		WithArgs(1, 12, now.UnixMilli(), "u1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery(regexp.QuoteMeta("FROM usage_profiles WHERE user_id = $1")).
		WithArgs("u1").
		WillReturnRows(sqlmock.NewRows([]string{"user_id", "tier", "daily_usage_count", "daily_reset_at", "monthly_words_used", "monthly_reset_at"}).
			AddRow("u1", "enterprise", 3, now.UnixMilli(), 112, now.UnixMilli()))

	s := New(db, DialectPostgres)
	s.now = func() time.Time { return now }
	p, err := s.IncrementUsage(context.Background(), "u1", 1, 12)
	if err != nil {
		t.Fatalf("increment: %v", err)
	}
	if p.Tier != "plus" || p.DailyUsageCount != 3 || p.MonthlyWordsUsed != 112 {
		t.Fatalf("profile: %+v", p)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestIncrementUsage_MissingProfile(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	defer db.Close()
	mock.ExpectExec("UPDATE usage_profiles").WillReturnResult(sqlmock.NewResult(0, 0))

	_, err = New(db, DialectSQLite).IncrementUsage(context.Background(), "ghost", 1, 1)
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("want ErrNotFound, got %v", err)
	}
}
