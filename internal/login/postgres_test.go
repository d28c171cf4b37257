package login

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
)

func TestPGStoreFindBySubject(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	defer db.Close()

	now := time.Now()
	until := now.Add(30 * time.Minute)
	rows := sqlmock.NewRows([]string{
		"id", "subject", "password_hash", "authorities", "failed_attempts", "locked",
		"locked_until", "reset_token", "reset_token_expires_at", "created_at", "updated_at",
	}).AddRow("01J", "analyst1", "$2a$10$hash", []byte(`["ROLE_ANALYST"]`), 3, true, until, nil, nil, now, now)

	mock.ExpectQuery("select id, subject, password_hash").WithArgs("analyst1").WillReturnRows(rows)

	store := NewPGStore(db)
	cred, err := store.FindBySubject(context.Background(), "analyst1")
	if err != nil {
		t.Fatalf("FindBySubject: %v", err)
	}
	if cred.Subject != "analyst1" || cred.FailedAttempts != 3 || !cred.Locked {
		t.Fatalf("unexpected credential: %+v", cred)
	}
	if cred.LockedUntil == nil || !cred.LockedUntil.Equal(until) {
		t.Fatalf("unexpected lockedUntil: %v", cred.LockedUntil)
	}
	if len(cred.Authorities) != 1 || cred.Authorities[0] != "ROLE_ANALYST" {
		t.Fatalf("unexpected authorities: %v", cred.Authorities)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestPGStoreFindBySubjectNotFound(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	defer db.Close()

	mock.ExpectQuery("select id, subject, password_hash").WithArgs("ghost").
		WillReturnRows(sqlmock.NewRows([]string{"id"}))

	store := NewPGStore(db)
	if _, err := store.FindBySubject(context.Background(), "ghost"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestPGStoreIncrementFailedAttempts(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	defer db.Close()

	mock.ExpectQuery("update user_credentials").WithArgs("analyst1").
		WillReturnRows(sqlmock.NewRows([]string{"failed_attempts"}).AddRow(4))

	store := NewPGStore(db)
	attempts, err := store.IncrementFailedAttempts(context.Background(), "analyst1")
	if err != nil {
		t.Fatalf("IncrementFailedAttempts: %v", err)
	}
	if attempts != 4 {
		t.Fatalf("attempts=%d, want 4", attempts)
	}
}

func TestPGStoreSetLockAndReset(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	defer db.Close()

	until := time.Now().Add(30 * time.Minute)
	mock.ExpectExec("update user_credentials set locked = true").
		WithArgs("analyst1", until).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("update user_credentials set failed_attempts = 0").
		WithArgs("analyst1").WillReturnResult(sqlmock.NewResult(0, 1))

	store := NewPGStore(db)
	if err := store.SetLock(context.Background(), "analyst1", until); err != nil {
		t.Fatalf("SetLock: %v", err)
	}
	if err := store.ResetLoginState(context.Background(), "analyst1"); err != nil {
		t.Fatalf("ResetLoginState: %v", err)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestPGStoreUpdatePasswordMissingRow(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	defer db.Close()

	mock.ExpectExec("update user_credentials").WithArgs("ghost", "$2a$10$new").
		WillReturnResult(sqlmock.NewResult(0, 0))

	store := NewPGStore(db)
	if err := store.UpdatePassword(context.Background(), "ghost", "$2a$10$new"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}
