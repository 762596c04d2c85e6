package pg

import (
	"context"
	"database/sql/driver"
	"errors"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/jackc/pgx/v5/pgconn"

	"utshob.org/internal/auth"
)

func fakePgError(code string) error {
	return &pgconn.PgError{Code: code}
}

// anyValue lets non-driver.Value args (slices, typed strings) through so
// mocks can match them with AnyArg.
type anyValue struct{}

func (anyValue) ConvertValue(v any) (driver.Value, error) { return v, nil }

func newMockStore(t *testing.T) (*Store, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.ValueConverterOption(anyValue{}))
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return NewWithDB(db), mock
}

func accountRows() *sqlmock.Rows {
	return sqlmock.NewRows([]string{
		"id", "email", "full_name", "password_hash", "role", "permissions",
		"active", "subject_id", "created_at", "created_by", "last_login",
	})
}

func TestFindByEmail(t *testing.T) {
	store, mock := newMockStore(t)

	created := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	mock.ExpectQuery(`select .+ from staff_accounts\s+where email = \$1`).
		WithArgs("mod@utshob.org").
		WillReturnRows(accountRows().AddRow(
			"acc-1", "mod@utshob.org", "Mod One", "hash", "moderator",
			[]byte(`["view_registrations"]`), true, "", created, "root@utshob.org", nil,
		))

	account, err := store.FindByEmail(context.Background(), "mod@utshob.org")
	if err != nil {
		t.Fatalf("FindByEmail: %v", err)
	}
	if account == nil {
		t.Fatal("expected account")
	}
	if account.Role != auth.RoleModerator {
		t.Fatalf("role = %q", account.Role)
	}
	if len(account.Permissions) != 1 || account.Permissions[0] != "view_registrations" {
		t.Fatalf("permissions = %v", account.Permissions)
	}
	if account.LastLogin != nil {
		t.Fatal("expected nil last_login")
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatal(err)
	}
}

func TestFindByEmailMissing(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectQuery(`select .+ from staff_accounts\s+where email = \$1`).
		WithArgs("ghost@utshob.org").
		WillReturnRows(accountRows())

	account, err := store.FindByEmail(context.Background(), "ghost@utshob.org")
	if err != nil {
		t.Fatalf("FindByEmail: %v", err)
	}
	if account != nil {
		t.Fatal("expected nil account for missing row")
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatal(err)
	}
}

func TestInsertAccountConflict(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectQuery(`insert into staff_accounts`).
		WillReturnError(fakePgError(pgErrUniqueViolation))

	account := &auth.Account{
		ID:           "acc-2",
		Email:        "dup@utshob.org",
		FullName:     "Dup",
		PasswordHash: "hash",
		Role:         auth.RoleOrganizer,
		Active:       true,
		CreatedAt:    time.Now(),
	}
	_, err := store.Insert(context.Background(), account)
	if !errors.Is(err, auth.ErrConflict) {
		t.Fatalf("err = %v, want ErrConflict", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatal(err)
	}
}

func TestUpdateAccountMissing(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectExec(`update staff_accounts`).
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := store.Update(context.Background(), "ghost", auth.AccountUpdate{})
	if !errors.Is(err, auth.ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatal(err)
	}
}

func TestListExcludesAdmins(t *testing.T) {
	store, mock := newMockStore(t)

	created := time.Now().UTC()
	mock.ExpectQuery(`select .+ from staff_accounts\s+where role <> 'admin'`).
		WillReturnRows(accountRows().AddRow(
			"acc-3", "org@utshob.org", "Org", "hash", "organizer",
			[]byte(`[]`), true, "", created, "", nil,
		))

	accounts, err := store.List(context.Background(), false)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(accounts) != 1 || accounts[0].Email != "org@utshob.org" {
		t.Fatalf("accounts = %+v", accounts)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatal(err)
	}
}
