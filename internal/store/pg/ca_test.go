package pg

import (
	"context"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"

	"utshob.org/internal/ca"
)

func applicationRows() *sqlmock.Rows {
	return sqlmock.NewRows([]string{
		"id", "ca_code", "full_name", "email", "institution", "class_year",
		"phone", "motivation", "profile_picture", "status", "subject_id",
		"ip_address", "applied_at", "status_updated_at",
	})
}

func TestFindApplication(t *testing.T) {
	store, mock := newMockStore(t)

	applied := time.Date(2026, 2, 10, 8, 0, 0, 0, time.UTC)
	mock.ExpectQuery(`from ca_applications\s+where id = \$1`).
		WithArgs("app-1").
		WillReturnRows(applicationRows().AddRow(
			"app-1", "", "Nusrat Jahan", "nusrat@example.com", "Viqarunnisa",
			"Class 11", "01812345678", "I want to bring the festival to my school and help classmates join.",
			"", "pending", "", "", applied, nil,
		))

	app, err := store.FindApplication(context.Background(), "app-1")
	if err != nil {
		t.Fatalf("FindApplication: %v", err)
	}
	if app == nil {
		t.Fatal("expected application")
	}
	if app.Status != ca.StatusPending {
		t.Fatalf("status = %q", app.Status)
	}
	if app.StatusUpdatedAt != nil {
		t.Fatal("expected nil status_updated_at")
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatal(err)
	}
}

func TestUpdateStatusKeepsExistingCode(t *testing.T) {
	store, mock := newMockStore(t)

	// coalesce(ca_code, nullif($3, '')) ignores the new code once one exists.
	mock.ExpectExec(`update ca_applications\s+set status = \$2,\s+ca_code = coalesce\(ca_code, nullif\(\$3, ''\)\)`).
		WithArgs("app-1", sqlmock.AnyArg(), "CA-XYZ789", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	n, err := store.UpdateStatus(context.Background(), "app-1", ca.StatusApproved, "CA-XYZ789", time.Now())
	if err != nil {
		t.Fatalf("UpdateStatus: %v", err)
	}
	if n != 1 {
		t.Fatalf("n = %d", n)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatal(err)
	}
}

func TestListApplicationsByStatus(t *testing.T) {
	store, mock := newMockStore(t)

	applied := time.Now().UTC()
	updated := applied.Add(time.Hour)
	mock.ExpectQuery(`from ca_applications\s+where 1=1 and status = \$1`).
		WithArgs(ca.StatusApproved).
		WillReturnRows(applicationRows().AddRow(
			"app-2", "CA-H2K4M6", "Rafi Ahmed", "rafi@example.com", "Notre Dame",
			"Class 12", "01912345678", "Our debate club wants to send a full contingent this year.",
			"", "approved", "", "", applied, updated,
		))

	list, err := store.ListApplications(context.Background(), ca.Filter{Status: ca.StatusApproved})
	if err != nil {
		t.Fatalf("ListApplications: %v", err)
	}
	if len(list) != 1 || list[0].Code != "CA-H2K4M6" {
		t.Fatalf("list = %+v", list)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatal(err)
	}
}
