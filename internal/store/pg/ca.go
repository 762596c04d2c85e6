package pg

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"utshob.org/internal/ca"
)

var _ ca.Store = (*Store)(nil)

const applicationColumns = `id, coalesce(ca_code, ''), full_name, email, institution,
	class_year, phone, motivation, coalesce(profile_picture, ''), status,
	coalesce(subject_id, ''), coalesce(ip_address, ''), applied_at, status_updated_at`

func scanApplication(row interface{ Scan(...any) error }) (*ca.Application, error) {
	var (
		a         ca.Application
		updatedAt sql.NullTime
	)
	err := row.Scan(&a.ID, &a.Code, &a.FullName, &a.Email, &a.Institution,
		&a.ClassYear, &a.Phone, &a.Motivation, &a.ProfilePicture, &a.Status,
		&a.SubjectID, &a.IPAddress, &a.AppliedAt, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if updatedAt.Valid {
		t := updatedAt.Time
		a.StatusUpdatedAt = &t
	}
	return &a, nil
}

func (s *Store) InsertApplication(ctx context.Context, a *ca.Application) (string, error) {
	if s.db == nil {
		return "", errors.New("database connection unavailable")
	}
	var id string
	err := s.db.QueryRowContext(ctx, `
		insert into ca_applications
			(id, full_name, email, institution, class_year, phone, motivation,
			 profile_picture, status, subject_id, ip_address, applied_at)
		values ($1, $2, $3, $4, $5, $6, $7, nullif($8, ''), $9,
			nullif($10, ''), nullif($11, ''), $12)
		returning id
	`, a.ID, a.FullName, a.Email, a.Institution, a.ClassYear, a.Phone,
		a.Motivation, a.ProfilePicture, a.Status, a.SubjectID, a.IPAddress,
		a.AppliedAt).Scan(&id)
	if err != nil {
		if pgErr, ok := maybePgError(err); ok && pgErr.Code == pgErrUniqueViolation {
			return "", fmt.Errorf("%w: application already exists", ca.ErrInvalidInput)
		}
		return "", err
	}
	return id, nil
}

func (s *Store) FindApplication(ctx context.Context, id string) (*ca.Application, error) {
	if s.db == nil {
		return nil, errors.New("database connection unavailable")
	}
	row := s.db.QueryRowContext(ctx, `
		select `+applicationColumns+`
		from ca_applications
		where id = $1
	`, id)
	return scanApplication(row)
}

func (s *Store) ListApplications(ctx context.Context, f ca.Filter) ([]ca.Application, error) {
	if s.db == nil {
		return nil, errors.New("database connection unavailable")
	}
	query := `
		select ` + applicationColumns + `
		from ca_applications
		where 1=1`
	var args []any
	if f.Status != "" {
		args = append(args, f.Status)
		query += fmt.Sprintf(" and status = $%d", len(args))
	}
	if f.Search != "" {
		args = append(args, "%"+f.Search+"%")
		n := len(args)
		query += fmt.Sprintf(` and (full_name ilike $%d or email ilike $%d
			or institution ilike $%d or coalesce(ca_code, '') ilike $%d)`,
			n, n, n, n)
	}
	query += " order by applied_at desc"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []ca.Application
	for rows.Next() {
		a, err := scanApplication(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *a)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

// UpdateStatus flips the status and, when code is non-empty, records the
// referral code. An existing code is never overwritten.
func (s *Store) UpdateStatus(ctx context.Context, id string, status ca.Status, code string, at time.Time) (int64, error) {
	if s.db == nil {
		return 0, errors.New("database connection unavailable")
	}
	res, err := s.db.ExecContext(ctx, `
		update ca_applications
		set status = $2,
			ca_code = coalesce(ca_code, nullif($3, '')),
			status_updated_at = $4
		where id = $1
	`, id, status, code, at)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
