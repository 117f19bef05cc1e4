package users

import (
	"context"
	"database/sql"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/dmitrijs2005/folioguard/internal/common"
	"github.com/dmitrijs2005/folioguard/internal/server/models"
	"github.com/jackc/pgx/v5/pgconn"
)

func newRepoWithMock(t *testing.T) (*PostgresRepository, sqlmock.Sqlmock, *sql.DB) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	if err != nil {
		t.Fatalf("sqlmock.New error: %v", err)
	}
	return NewPostgresRepository(db), mock, db
}

var userCols = []string{"id", "email", "name", "password_hash", "is_admin",
	"failed_login_attempts", "account_locked_until",
	"email_verified", "email_verification_token", "email_verification_expiry",
	"password_reset_token", "password_reset_expiry",
	"last_login_at", "password_changed_at", "is_active", "deactivated_at", "deactivation_reason",
	"created_at", "updated_at"}

func userRow(id int64, email string, lockedUntil any, resetHash any, resetExpiry any) *sqlmock.Rows {
	now := time.Now()
	return sqlmock.NewRows(userCols).AddRow(id, email, "Jane", "$2a$hash", false,
		2, lockedUntil,
		true, nil, nil,
		resetHash, resetExpiry,
		nil, nil, true, nil, nil,
		now, now)
}

func wantDBError(t *testing.T, err error, msg string) {
	t.Helper()
	if err == nil || !regexp.MustCompile(`db error: .*`+msg).MatchString(err.Error()) {
		t.Fatalf("expected wrapped db error, got %v", err)
	}
}

func TestCreate_Success(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	q := `(?s)^INSERT\s+INTO\s+users\s*\(email,\s*name,\s*password_hash,\s*is_admin\)\s*VALUES\s*\(\$1,\s*\$2,\s*\$3,\s*\$4\)\s*RETURNING\s+id,\s*is_active,\s*created_at,\s*updated_at\s*$`
	now := time.Now()
	mock.ExpectQuery(q).
		WithArgs("jane@example.com", "Jane", "hash", false).
		WillReturnRows(sqlmock.NewRows([]string{"id", "is_active", "created_at", "updated_at"}).AddRow(int64(42), true, now, now))

	u, err := repo.Create(context.Background(), &models.User{Email: "jane@example.com", Name: "Jane", PasswordHash: "hash"})
	if err != nil {
		t.Fatalf("Create error: %v", err)
	}
	if u.ID != 42 || !u.IsActive {
		t.Fatalf("unexpected user: %+v", u)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestCreate_Duplicate(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	mock.ExpectQuery(`INSERT\s+INTO\s+users`).WillReturnError(&pgconn.PgError{Code: "23505"})

	_, err := repo.Create(context.Background(), &models.User{Email: "jane@example.com"})
	if !errors.Is(err, common.ErrorAlreadyExists) {
		t.Fatalf("want ErrorAlreadyExists, got %v", err)
	}
}

func TestCreate_DBError(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	mock.ExpectQuery(`INSERT\s+INTO\s+users`).WillReturnError(errors.New("db down"))

	_, err := repo.Create(context.Background(), &models.User{Email: "jane@example.com"})
	wantDBError(t, err, "db down")
}

func TestGetByEmail_Found(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	mock.ExpectQuery(`(?s)^SELECT\s+id,.*FROM\s+users\s+WHERE\s+lower\(email\)\s*=\s*lower\(\$1\)$`).
		WithArgs("jane@example.com").
		WillReturnRows(userRow(7, "jane@example.com", nil, nil, nil))

	u, err := repo.GetByEmail(context.Background(), "jane@example.com")
	if err != nil {
		t.Fatalf("GetByEmail error: %v", err)
	}
	if u.ID != 7 || u.FailedLoginAttempts != 2 || u.AccountLockedUntil != nil || !u.IsActive {
		t.Fatalf("unexpected user: %+v", u)
	}
}

func TestGetByEmail_NotFound(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	mock.ExpectQuery(`FROM\s+users\s+WHERE\s+lower\(email\)`).
		WithArgs("ghost@example.com").
		WillReturnError(sql.ErrNoRows)

	_, err := repo.GetByEmail(context.Background(), "ghost@example.com")
	if !errors.Is(err, common.ErrorNotFound) {
		t.Fatalf("want ErrorNotFound, got %v", err)
	}
}

func TestGetByID_DBError(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	mock.ExpectQuery(`FROM\s+users\s+WHERE\s+id\s*=\s*\$1`).
		WithArgs(int64(1)).
		WillReturnError(errors.New("db err"))

	_, err := repo.GetByID(context.Background(), 1)
	wantDBError(t, err, "db err")
}

func TestGetByResetTokenForUpdate(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	exp := time.Now().Add(10 * time.Minute)
	mock.ExpectQuery(`(?s)FROM\s+users\s+WHERE\s+password_reset_token\s*=\s*\$1\s+FOR\s+UPDATE$`).
		WithArgs("hash").
		WillReturnRows(userRow(3, "a@b.c", nil, "hash", exp))

	u, err := repo.GetByResetTokenForUpdate(context.Background(), "hash")
	if err != nil {
		t.Fatalf("error: %v", err)
	}
	if u.PasswordResetToken == nil || *u.PasswordResetToken != "hash" || u.PasswordResetExpiry == nil {
		t.Fatalf("unexpected reset fields: %+v", u)
	}
}

func TestGetByEmailForUpdate_LocksRow(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	mock.ExpectQuery(`(?s)WHERE\s+lower\(email\)\s*=\s*lower\(\$1\)\s+FOR\s+UPDATE$`).
		WithArgs("a@b.c").
		WillReturnRows(userRow(3, "a@b.c", nil, nil, nil))

	if _, err := repo.GetByEmailForUpdate(context.Background(), "a@b.c"); err != nil {
		t.Fatalf("error: %v", err)
	}
}

func TestGetLockState(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	until := time.Now().Add(time.Minute)
	mock.ExpectQuery(`(?s)^SELECT\s+failed_login_attempts,\s*account_locked_until\s+FROM\s+users\s+WHERE\s+id\s*=\s*\$1\s*$`).
		WithArgs(int64(5)).
		WillReturnRows(sqlmock.NewRows([]string{"failed_login_attempts", "account_locked_until"}).AddRow(5, until))

	st, err := repo.GetLockState(context.Background(), 5)
	if err != nil {
		t.Fatalf("error: %v", err)
	}
	if st.FailedAttempts != 5 || st.LockedUntil == nil || !st.LockedUntil.Equal(until) {
		t.Fatalf("unexpected state: %+v", st)
	}
}

func TestGetLockState_NotFound(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	mock.ExpectQuery(`SELECT\s+failed_login_attempts`).WillReturnError(sql.ErrNoRows)

	if _, err := repo.GetLockState(context.Background(), 5); !errors.Is(err, common.ErrorNotFound) {
		t.Fatalf("want ErrorNotFound, got %v", err)
	}
}

func TestIncrementFailedAttempts(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	lockUntil := time.Now().Add(15 * time.Minute)
	q := `(?s)^UPDATE\s+users\s+SET\s+failed_login_attempts\s*=\s*failed_login_attempts\s*\+\s*1,.*CASE\s+WHEN\s+failed_login_attempts\s*\+\s*1\s*>=\s*\$2\s+THEN\s+\$3.*RETURNING\s+failed_login_attempts,\s*account_locked_until\s*$`
	mock.ExpectQuery(q).
		WithArgs(int64(9), 5, lockUntil).
		WillReturnRows(sqlmock.NewRows([]string{"failed_login_attempts", "account_locked_until"}).AddRow(5, lockUntil))

	st, err := repo.IncrementFailedAttempts(context.Background(), 9, 5, lockUntil)
	if err != nil {
		t.Fatalf("error: %v", err)
	}
	if st.FailedAttempts != 5 || st.LockedUntil == nil {
		t.Fatalf("unexpected state: %+v", st)
	}
}

func TestIncrementFailedAttempts_DBError(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	mock.ExpectQuery(`UPDATE\s+users\s+SET`).WillReturnError(errors.New("boom"))

	_, err := repo.IncrementFailedAttempts(context.Background(), 9, 5, time.Now())
	wantDBError(t, err, "boom")
}

func TestClearExpiredLock(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	now := time.Now()
	q := `(?s)^UPDATE\s+users\s+SET\s+failed_login_attempts\s*=\s*0,\s*account_locked_until\s*=\s*NULL.*WHERE\s+id\s*=\s*\$1\s+AND\s+account_locked_until\s+IS\s+NOT\s+NULL\s+AND\s+account_locked_until\s*<=\s*\$2\s*$`
	mock.ExpectExec(q).WithArgs(int64(1), now).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(q).WithArgs(int64(1), now).WillReturnResult(sqlmock.NewResult(0, 0))

	cleared, err := repo.ClearExpiredLock(context.Background(), 1, now)
	if err != nil || !cleared {
		t.Fatalf("want cleared, got %v %v", cleared, err)
	}
	cleared, err = repo.ClearExpiredLock(context.Background(), 1, now)
	if err != nil || cleared {
		t.Fatalf("want not cleared, got %v %v", cleared, err)
	}
}

func TestRecordLogin(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	at := time.Now()
	mock.ExpectExec(`(?s)^UPDATE\s+users\s+SET\s+failed_login_attempts\s*=\s*0,\s*account_locked_until\s*=\s*NULL,\s*last_login_at\s*=\s*\$2`).
		WithArgs(int64(1), at).
		WillReturnResult(sqlmock.NewResult(0, 1))

	if err := repo.RecordLogin(context.Background(), 1, at); err != nil {
		t.Fatalf("error: %v", err)
	}
}

func TestRecordPasswordChange_NotFound(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	mock.ExpectExec(`password_changed_at\s*=\s*\$2`).WillReturnResult(sqlmock.NewResult(0, 0))

	if err := repo.RecordPasswordChange(context.Background(), 1, time.Now()); !errors.Is(err, common.ErrorNotFound) {
		t.Fatalf("want ErrorNotFound, got %v", err)
	}
}

func TestResetLockout_DBError(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	mock.ExpectExec(`UPDATE\s+users\s+SET\s+failed_login_attempts\s*=\s*0`).WillReturnError(errors.New("down"))

	wantDBError(t, repo.ResetLockout(context.Background(), 1), "down")
}

func TestSetVerificationToken(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	exp := time.Now().Add(time.Hour)
	mock.ExpectExec(`(?s)^UPDATE\s+users\s+SET\s+email_verification_token\s*=\s*\$2,\s*email_verification_expiry\s*=\s*\$3`).
		WithArgs(int64(1), "h", exp).
		WillReturnResult(sqlmock.NewResult(0, 1))

	if err := repo.SetVerificationToken(context.Background(), 1, "h", exp); err != nil {
		t.Fatalf("error: %v", err)
	}
}

func TestConsumeVerificationToken(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	now := time.Now()
	q := `(?s)^UPDATE\s+users\s+SET\s+email_verified\s*=\s*TRUE,\s*email_verification_token\s*=\s*NULL,.*WHERE\s+email_verification_token\s*=\s*\$1\s+AND\s+email_verification_expiry\s*>\s*\$2\s+RETURNING\s+id,\s*email\s*$`
	mock.ExpectQuery(q).WithArgs("h", now).
		WillReturnRows(sqlmock.NewRows([]string{"id", "email"}).AddRow(int64(4), "a@b.c"))
	mock.ExpectQuery(q).WithArgs("h", now).WillReturnError(sql.ErrNoRows)

	u, err := repo.ConsumeVerificationToken(context.Background(), "h", now)
	if err != nil {
		t.Fatalf("error: %v", err)
	}
	if u.ID != 4 || !u.EmailVerified {
		t.Fatalf("unexpected user: %+v", u)
	}

	if _, err := repo.ConsumeVerificationToken(context.Background(), "h", now); !errors.Is(err, common.ErrorNotFound) {
		t.Fatalf("replay: want ErrorNotFound, got %v", err)
	}
}

func TestSetResetToken(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	exp := time.Now().Add(30 * time.Minute)
	mock.ExpectExec(`(?s)^UPDATE\s+users\s+SET\s+password_reset_token\s*=\s*\$2,\s*password_reset_expiry\s*=\s*\$3`).
		WithArgs(int64(2), "h", exp).
		WillReturnResult(sqlmock.NewResult(0, 1))

	if err := repo.SetResetToken(context.Background(), 2, "h", exp); err != nil {
		t.Fatalf("error: %v", err)
	}
}

func TestUpdatePassword_ClearsResetToken(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	q := `(?s)^UPDATE\s+users\s+SET\s+password_hash\s*=\s*\$2,\s*password_reset_token\s*=\s*NULL,\s*password_reset_expiry\s*=\s*NULL`
	mock.ExpectExec(q).WithArgs(int64(2), "newhash").WillReturnResult(sqlmock.NewResult(0, 1))

	if err := repo.UpdatePassword(context.Background(), 2, "newhash"); err != nil {
		t.Fatalf("error: %v", err)
	}
}

func TestDeactivate(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	at := time.Now()
	mock.ExpectExec(`(?s)^UPDATE\s+users\s+SET\s+is_active\s*=\s*FALSE,\s*deactivated_at\s*=\s*\$2,\s*deactivation_reason\s*=\s*\$3`).
		WithArgs(int64(2), at, "abuse").
		WillReturnResult(sqlmock.NewResult(0, 1))

	if err := repo.Deactivate(context.Background(), 2, "abuse", at); err != nil {
		t.Fatalf("error: %v", err)
	}
}
