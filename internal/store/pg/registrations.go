package pg

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"utshob.org/internal/registration"
)

var _ registration.Store = (*Store)(nil)

const registrationColumns = `id, full_name, email, institution, segment_id, segment_name,
	coalesce(category, ''), coalesce(submission_link, ''), coalesce(ca_ref, ''),
	payment_number, transaction_id, verified, coalesce(subject_id, ''),
	coalesce(ip_address, ''), coalesce(user_agent, ''), registered_at, verified_at`

func scanRegistration(row interface{ Scan(...any) error }) (*registration.Registration, error) {
	var (
		r          registration.Registration
		verifiedAt sql.NullTime
	)
	err := row.Scan(&r.ID, &r.FullName, &r.Email, &r.Institution, &r.SegmentID,
		&r.SegmentName, &r.Category, &r.SubmissionLink, &r.CARef, &r.PaymentNumber,
		&r.TransactionID, &r.Verified, &r.SubjectID, &r.IPAddress, &r.UserAgent,
		&r.RegisteredAt, &verifiedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if verifiedAt.Valid {
		t := verifiedAt.Time
		r.VerifiedAt = &t
	}
	return &r, nil
}

// InsertRegistration writes the row and bumps the segment's participant
// counter in one transaction.
func (s *Store) InsertRegistration(ctx context.Context, r *registration.Registration) (string, error) {
	if s.db == nil {
		return "", errors.New("database connection unavailable")
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return "", err
	}
	defer func() { _ = tx.Rollback() }()

	var id string
	err = tx.QueryRowContext(ctx, `
		insert into registrations
			(id, full_name, email, institution, segment_id, segment_name, category,
			 submission_link, ca_ref, payment_number, transaction_id, verified,
			 subject_id, ip_address, user_agent, registered_at)
		values ($1, $2, $3, $4, $5, $6, nullif($7, ''), nullif($8, ''), nullif($9, ''),
			$10, $11, false, nullif($12, ''), nullif($13, ''), nullif($14, ''), $15)
		returning id
	`, r.ID, r.FullName, r.Email, r.Institution, r.SegmentID, r.SegmentName,
		r.Category, r.SubmissionLink, r.CARef, r.PaymentNumber, r.TransactionID,
		r.SubjectID, r.IPAddress, r.UserAgent, r.RegisteredAt).Scan(&id)
	if err != nil {
		if pgErr, ok := maybePgError(err); ok && pgErr.Code == pgErrForeignKeyViolation {
			return "", fmt.Errorf("%w: unknown segment", registration.ErrInvalidInput)
		}
		return "", err
	}

	if _, err := tx.ExecContext(ctx, `
		update segments set current_participants = current_participants + 1
		where id = $1
	`, r.SegmentID); err != nil {
		return "", err
	}

	if err := tx.Commit(); err != nil {
		return "", err
	}
	return id, nil
}

func (s *Store) FindRegistration(ctx context.Context, id string) (*registration.Registration, error) {
	if s.db == nil {
		return nil, errors.New("database connection unavailable")
	}
	row := s.db.QueryRowContext(ctx, `
		select `+registrationColumns+`
		from registrations
		where id = $1
	`, id)
	return scanRegistration(row)
}

func (s *Store) FindVerifiedBySegment(ctx context.Context, email, segmentID string) (bool, error) {
	if s.db == nil {
		return false, errors.New("database connection unavailable")
	}
	var exists bool
	err := s.db.QueryRowContext(ctx, `
		select exists(
			select 1 from registrations
			where email = $1 and segment_id = $2 and verified
		)
	`, email, segmentID).Scan(&exists)
	if err != nil {
		return false, err
	}
	return exists, nil
}

func (s *Store) ListRegistrations(ctx context.Context, f registration.Filter) ([]registration.Registration, error) {
	if s.db == nil {
		return nil, errors.New("database connection unavailable")
	}
	query := `
		select ` + registrationColumns + `
		from registrations
		where 1=1`
	var args []any
	if f.SegmentID != "" {
		args = append(args, f.SegmentID)
		query += fmt.Sprintf(" and segment_id = $%d", len(args))
	}
	if f.Verified != nil {
		args = append(args, *f.Verified)
		query += fmt.Sprintf(" and verified = $%d", len(args))
	}
	if f.Search != "" {
		args = append(args, "%"+f.Search+"%")
		n := len(args)
		args = append(args, f.Search)
		query += fmt.Sprintf(` and (full_name ilike $%d or email ilike $%d
			or payment_number ilike $%d or transaction_id ilike $%d or id = $%d)`,
			n, n, n, n, n+1)
	}
	query += " order by registered_at desc"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []registration.Registration
	for rows.Next() {
		r, err := scanRegistration(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *r)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

func (s *Store) MarkVerified(ctx context.Context, ids []string, at time.Time) (int64, error) {
	if s.db == nil {
		return 0, errors.New("database connection unavailable")
	}
	res, err := s.db.ExecContext(ctx, `
		update registrations set verified = true, verified_at = $2
		where id = any($1) and not verified
	`, ids, at)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func (s *Store) FindSegment(ctx context.Context, id string) (*registration.Segment, error) {
	if s.db == nil {
		return nil, errors.New("database connection unavailable")
	}
	var (
		seg  registration.Segment
		cats []byte
	)
	err := s.db.QueryRowContext(ctx, `
		select id, name, type, price, categories, is_free_for_all,
			max_participants, current_participants
		from segments
		where id = $1
	`, id).Scan(&seg.ID, &seg.Name, &seg.Type, &seg.Price, &cats,
		&seg.FreeForAll, &seg.MaxEntrants, &seg.CurrentCount)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if len(cats) > 0 {
		if err := json.Unmarshal(cats, &seg.Categories); err != nil {
			return nil, fmt.Errorf("decode categories: %w", err)
		}
	}
	return &seg, nil
}

func (s *Store) ListSegments(ctx context.Context) ([]registration.Segment, error) {
	if s.db == nil {
		return nil, errors.New("database connection unavailable")
	}
	rows, err := s.db.QueryContext(ctx, `
		select id, name, type, price, categories, is_free_for_all,
			max_participants, current_participants
		from segments
		order by name
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []registration.Segment
	for rows.Next() {
		var (
			seg  registration.Segment
			cats []byte
		)
		if err := rows.Scan(&seg.ID, &seg.Name, &seg.Type, &seg.Price, &cats,
			&seg.FreeForAll, &seg.MaxEntrants, &seg.CurrentCount); err != nil {
			return nil, err
		}
		if len(cats) > 0 {
			if err := json.Unmarshal(cats, &seg.Categories); err != nil {
				return nil, fmt.Errorf("decode categories: %w", err)
			}
		}
		result = append(result, seg)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

func (s *Store) Stats(ctx context.Context) (registration.DashboardStats, error) {
	if s.db == nil {
		return registration.DashboardStats{}, errors.New("database connection unavailable")
	}
	var stats registration.DashboardStats
	err := s.db.QueryRowContext(ctx, `
		select
			(select count(*) from registrations),
			(select count(*) from registrations where verified),
			(select count(*) from segments)
	`).Scan(&stats.Total, &stats.Verified, &stats.Segments)
	if err != nil {
		return registration.DashboardStats{}, err
	}
	return stats, nil
}

func (s *Store) CountsByDay(ctx context.Context) ([]registration.CountRow, error) {
	if s.db == nil {
		return nil, errors.New("database connection unavailable")
	}
	rows, err := s.db.QueryContext(ctx, `
		select to_char(registered_at, 'YYYY-MM-DD') as day, count(*)
		from registrations
		group by day
		order by day
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectCounts(rows)
}

// groupColumns whitelists the dimensions CountsBy accepts; the column name is
// interpolated into SQL.
var groupColumns = map[string]bool{
	"category":     true,
	"segment_name": true,
	"ca_ref":       true,
}

func (s *Store) CountsBy(ctx context.Context, dimension string) ([]registration.CountRow, error) {
	if s.db == nil {
		return nil, errors.New("database connection unavailable")
	}
	if !groupColumns[dimension] {
		return nil, fmt.Errorf("unsupported group dimension %q", dimension)
	}
	rows, err := s.db.QueryContext(ctx, fmt.Sprintf(`
		select coalesce(%s, ''), count(*)
		from registrations
		group by 1
		order by 2 desc
	`, dimension))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectCounts(rows)
}

func collectCounts(rows *sql.Rows) ([]registration.CountRow, error) {
	var result []registration.CountRow
	for rows.Next() {
		var row registration.CountRow
		if err := rows.Scan(&row.Key, &row.Count); err != nil {
			return nil, err
		}
		result = append(result, row)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}
