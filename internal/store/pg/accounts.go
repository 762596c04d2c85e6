package pg

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"utshob.org/internal/auth"
)

var _ auth.CredentialStore = (*Store)(nil)

const accountColumns = `id, email, full_name, password_hash, role, permissions, active,
	coalesce(subject_id, ''), created_at, coalesce(created_by, ''), last_login`

func scanAccount(row interface{ Scan(...any) error }) (*auth.Account, error) {
	var (
		a        auth.Account
		role     string
		rawPerms []byte
		last     sql.NullTime
	)
	err := row.Scan(&a.ID, &a.Email, &a.FullName, &a.PasswordHash, &role, &rawPerms,
		&a.Active, &a.SubjectID, &a.CreatedAt, &a.CreatedBy, &last)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	a.Role = auth.Role(role)
	if len(rawPerms) > 0 {
		if err := json.Unmarshal(rawPerms, &a.Permissions); err != nil {
			return nil, fmt.Errorf("decode permissions: %w", err)
		}
	}
	if last.Valid {
		t := last.Time
		a.LastLogin = &t
	}
	return &a, nil
}

func (s *Store) FindByEmail(ctx context.Context, email string) (*auth.Account, error) {
	if s.db == nil {
		return nil, errors.New("database connection unavailable")
	}
	row := s.db.QueryRowContext(ctx, `
		select `+accountColumns+`
		from staff_accounts
		where email = $1
	`, email)
	return scanAccount(row)
}

func (s *Store) FindByID(ctx context.Context, id string) (*auth.Account, error) {
	if s.db == nil {
		return nil, errors.New("database connection unavailable")
	}
	row := s.db.QueryRowContext(ctx, `
		select `+accountColumns+`
		from staff_accounts
		where id = $1
	`, id)
	return scanAccount(row)
}

func (s *Store) Insert(ctx context.Context, account *auth.Account) (string, error) {
	if s.db == nil {
		return "", errors.New("database connection unavailable")
	}
	perms, err := json.Marshal(account.Permissions)
	if err != nil {
		return "", fmt.Errorf("marshal permissions: %w", err)
	}
	var id string
	err = s.db.QueryRowContext(ctx, `
		insert into staff_accounts
			(id, email, full_name, password_hash, role, permissions, active, subject_id, created_at, created_by)
		values ($1, $2, $3, $4, $5, $6, $7, nullif($8, ''), $9, nullif($10, ''))
		returning id
	`, account.ID, account.Email, account.FullName, account.PasswordHash,
		string(account.Role), perms, account.Active, account.SubjectID,
		account.CreatedAt, account.CreatedBy).Scan(&id)
	if err != nil {
		if pgErr, ok := maybePgError(err); ok && pgErr.Code == pgErrUniqueViolation {
			return "", auth.ErrConflict
		}
		return "", err
	}
	return id, nil
}

// Update applies the partial update in one statement so concurrent operator
// edits cannot interleave within a single row.
func (s *Store) Update(ctx context.Context, id string, upd auth.AccountUpdate) error {
	if s.db == nil {
		return errors.New("database connection unavailable")
	}
	var perms []byte
	if upd.Permissions != nil {
		bytes, err := json.Marshal(*upd.Permissions)
		if err != nil {
			return fmt.Errorf("marshal permissions: %w", err)
		}
		perms = bytes
	}
	var role sql.NullString
	if upd.Role != nil {
		role = sql.NullString{String: string(*upd.Role), Valid: true}
	}
	var hash sql.NullString
	if upd.PasswordHash != nil {
		hash = sql.NullString{String: *upd.PasswordHash, Valid: true}
	}
	var active sql.NullBool
	if upd.Active != nil {
		active = sql.NullBool{Bool: *upd.Active, Valid: true}
	}
	var last sql.NullTime
	if upd.LastLogin != nil {
		last = sql.NullTime{Time: *upd.LastLogin, Valid: true}
	}

	res, err := s.db.ExecContext(ctx, `
		update staff_accounts set
			password_hash = coalesce($2, password_hash),
			role          = coalesce($3, role),
			permissions   = coalesce($4, permissions),
			active        = coalesce($5, active),
			last_login    = coalesce($6, last_login)
		where id = $1
	`, id, hash, role, perms, active, last)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return auth.ErrNotFound
	}
	return nil
}

func (s *Store) Delete(ctx context.Context, id string) error {
	if s.db == nil {
		return errors.New("database connection unavailable")
	}
	res, err := s.db.ExecContext(ctx, `delete from staff_accounts where id = $1`, id)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return auth.ErrNotFound
	}
	return nil
}

func (s *Store) List(ctx context.Context, includeAdmins bool) ([]auth.Account, error) {
	if s.db == nil {
		return nil, errors.New("database connection unavailable")
	}
	query := `
		select ` + accountColumns + `
		from staff_accounts
	`
	if !includeAdmins {
		query += ` where role <> 'admin'`
	}
	query += ` order by created_at desc`

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []auth.Account
	for rows.Next() {
		a, err := scanAccount(rows)
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
