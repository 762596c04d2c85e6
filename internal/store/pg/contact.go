package pg

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"utshob.org/internal/contact"
)

var _ contact.Store = (*Store)(nil)

const messageColumns = `id, name, institution, email, body, status, archived,
	coalesce(ip_address, ''), submitted_at`

func scanMessage(row interface{ Scan(...any) error }) (*contact.Message, error) {
	var m contact.Message
	err := row.Scan(&m.ID, &m.Name, &m.Institution, &m.Email, &m.Body,
		&m.Status, &m.Archived, &m.IPAddress, &m.SubmittedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &m, nil
}

func (s *Store) InsertMessage(ctx context.Context, m *contact.Message) (string, error) {
	if s.db == nil {
		return "", errors.New("database connection unavailable")
	}
	var id string
	err := s.db.QueryRowContext(ctx, `
		insert into contact_messages
			(id, name, institution, email, body, status, archived, ip_address, submitted_at)
		values ($1, $2, $3, $4, $5, $6, false, nullif($7, ''), $8)
		returning id
	`, m.ID, m.Name, m.Institution, m.Email, m.Body, m.Status,
		m.IPAddress, m.SubmittedAt).Scan(&id)
	if err != nil {
		return "", err
	}
	return id, nil
}

func (s *Store) FindMessage(ctx context.Context, id string) (*contact.Message, error) {
	if s.db == nil {
		return nil, errors.New("database connection unavailable")
	}
	row := s.db.QueryRowContext(ctx, `
		select `+messageColumns+`
		from contact_messages
		where id = $1
	`, id)
	return scanMessage(row)
}

func (s *Store) ListMessages(ctx context.Context, f contact.Filter) ([]contact.Message, error) {
	if s.db == nil {
		return nil, errors.New("database connection unavailable")
	}
	query := `
		select ` + messageColumns + `
		from contact_messages
		where 1=1`
	var args []any
	if f.Status != "" {
		args = append(args, f.Status)
		query += fmt.Sprintf(" and status = $%d", len(args))
	}
	args = append(args, f.Archived)
	query += fmt.Sprintf(" and archived = $%d", len(args))
	query += " order by submitted_at desc"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []contact.Message
	for rows.Next() {
		m, err := scanMessage(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *m)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

func (s *Store) UpdateMessage(ctx context.Context, id string, u contact.StatusUpdate) (int64, error) {
	if s.db == nil {
		return 0, errors.New("database connection unavailable")
	}
	var (
		status   sql.NullString
		archived sql.NullBool
	)
	if u.Status != nil {
		status = sql.NullString{String: string(*u.Status), Valid: true}
	}
	if u.Archived != nil {
		archived = sql.NullBool{Bool: *u.Archived, Valid: true}
	}
	res, err := s.db.ExecContext(ctx, `
		update contact_messages
		set status = coalesce($2, status),
			archived = coalesce($3, archived)
		where id = $1
	`, id, status, archived)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func (s *Store) DeleteMessage(ctx context.Context, id string) (int64, error) {
	if s.db == nil {
		return 0, errors.New("database connection unavailable")
	}
	res, err := s.db.ExecContext(ctx, `delete from contact_messages where id = $1`, id)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// CountMessages reports unread and total among non-archived messages.
func (s *Store) CountMessages(ctx context.Context) (contact.Counts, error) {
	if s.db == nil {
		return contact.Counts{}, errors.New("database connection unavailable")
	}
	var c contact.Counts
	err := s.db.QueryRowContext(ctx, `
		select
			count(*) filter (where status = 'unread'),
			count(*)
		from contact_messages
		where not archived
	`).Scan(&c.Unread, &c.Total)
	if err != nil {
		return contact.Counts{}, err
	}
	return c, nil
}
