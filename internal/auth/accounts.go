package auth

import (
	"context"
	"fmt"
	"strings"
	"time"

	"utshob.org/internal/ids"
)

// Actor identifies the staff principal performing a management operation.
type Actor struct {
	Email string
	Role  Role
}

// Accounts manages the staff credential directory: authentication, creation,
// deletion, password resets, and activation toggles. Management operations
// enforce the role hierarchy: only an admin may create or delete an admin,
// and nobody deletes or deactivates themselves.
type Accounts struct {
	store  CredentialStore
	issuer *Issuer
	now    func() time.Time
}

func NewAccounts(store CredentialStore, issuer *Issuer) *Accounts {
	return &Accounts{store: store, issuer: issuer, now: time.Now}
}

// Authenticate verifies a staff email/password pair and, on success, issues a
// signed token and records the login time. Inactive accounts cannot
// authenticate regardless of password.
func (s *Accounts) Authenticate(ctx context.Context, email, password string) (*Account, string, time.Time, error) {
	email = normalizeEmail(email)
	account, err := s.store.FindByEmail(ctx, email)
	if err != nil || account == nil {
		return nil, "", time.Time{}, ErrUnauthorized
	}
	if !account.Active {
		return nil, "", time.Time{}, fmt.Errorf("%w: account deactivated", ErrUnauthorized)
	}
	if VerifyPassword(account.PasswordHash, password) != nil {
		return nil, "", time.Time{}, ErrUnauthorized
	}

	token, expiresAt, err := s.issuer.Issue(account.Email, account.Role)
	if err != nil {
		return nil, "", time.Time{}, err
	}

	loginAt := s.now().UTC()
	_ = s.store.Update(ctx, account.ID, AccountUpdate{LastLogin: &loginAt})
	account.LastLogin = &loginAt
	return account, token, expiresAt, nil
}

// CreateParams describes a new staff account.
type CreateParams struct {
	Email    string
	FullName string
	Password string
	Role     Role
}

// Create adds a staff account. Admins and executives may create staff, but
// only an admin may mint another admin. Permissions always start as the
// role's static grants; overrides go through SetPermissions afterwards.
func (s *Accounts) Create(ctx context.Context, actor Actor, p CreateParams) (*Account, error) {
	if err := s.requireManager(actor, p.Role); err != nil {
		return nil, err
	}
	p.Email = normalizeEmail(p.Email)
	if p.Email == "" || !strings.Contains(p.Email, "@") {
		return nil, fmt.Errorf("%w: invalid email", ErrInvalidInput)
	}
	if len(p.Password) < MinPasswordLength {
		return nil, fmt.Errorf("%w: password must be at least %d characters", ErrInvalidInput, MinPasswordLength)
	}
	role, err := ParseRole(string(p.Role))
	if err != nil {
		return nil, err
	}
	if !role.IsStaff() {
		return nil, fmt.Errorf("%w: %q is not a staff role", ErrInvalidInput, role)
	}

	hash, err := HashPassword(p.Password)
	if err != nil {
		return nil, err
	}
	account := &Account{
		ID:           ids.New(),
		Email:        p.Email,
		FullName:     strings.TrimSpace(p.FullName),
		PasswordHash: hash,
		Role:         role,
		Permissions:  DefaultPermissions(role),
		Active:       true,
		CreatedAt:    s.now().UTC(),
		CreatedBy:    actor.Email,
	}
	id, err := s.store.Insert(ctx, account)
	if err != nil {
		return nil, err
	}
	account.ID = id
	return account, nil
}

// Delete removes a staff account. Self-deletion is always rejected, and only
// an admin may delete an admin.
func (s *Accounts) Delete(ctx context.Context, actor Actor, id string) error {
	target, err := s.store.FindByID(ctx, id)
	if err != nil {
		return err
	}
	if target == nil {
		return ErrNotFound
	}
	if strings.EqualFold(target.Email, actor.Email) {
		return fmt.Errorf("%w: cannot delete your own account", ErrForbidden)
	}
	if err := s.requireManager(actor, target.Role); err != nil {
		return err
	}
	return s.store.Delete(ctx, id)
}

// ResetPassword replaces the target account's password hash.
func (s *Accounts) ResetPassword(ctx context.Context, actor Actor, id, password string) error {
	if len(password) < MinPasswordLength {
		return fmt.Errorf("%w: password must be at least %d characters", ErrInvalidInput, MinPasswordLength)
	}
	target, err := s.store.FindByID(ctx, id)
	if err != nil {
		return err
	}
	if target == nil {
		return ErrNotFound
	}
	if err := s.requireManager(actor, target.Role); err != nil {
		return err
	}
	hash, err := HashPassword(password)
	if err != nil {
		return err
	}
	return s.store.Update(ctx, id, AccountUpdate{PasswordHash: &hash})
}

// SetActive toggles the activation flag. Deactivation cuts off the account on
// its very next request; self-deactivation is rejected.
func (s *Accounts) SetActive(ctx context.Context, actor Actor, id string, active bool) error {
	target, err := s.store.FindByID(ctx, id)
	if err != nil {
		return err
	}
	if target == nil {
		return ErrNotFound
	}
	if !active && strings.EqualFold(target.Email, actor.Email) {
		return fmt.Errorf("%w: cannot deactivate your own account", ErrForbidden)
	}
	if err := s.requireManager(actor, target.Role); err != nil {
		return err
	}
	return s.store.Update(ctx, id, AccountUpdate{Active: &active})
}

// SetPermissions replaces an account's explicit grant set.
func (s *Accounts) SetPermissions(ctx context.Context, actor Actor, id string, perms []string) error {
	target, err := s.store.FindByID(ctx, id)
	if err != nil {
		return err
	}
	if target == nil {
		return ErrNotFound
	}
	if err := s.requireManager(actor, target.Role); err != nil {
		return err
	}
	return s.store.Update(ctx, id, AccountUpdate{Permissions: &perms})
}

// List returns staff accounts visible to the actor. Executives do not see
// admin accounts.
func (s *Accounts) List(ctx context.Context, actor Actor) ([]Account, error) {
	if actor.Role != RoleAdmin && actor.Role != RoleExecutive {
		return nil, ErrForbidden
	}
	return s.store.List(ctx, actor.Role == RoleAdmin)
}

// Bootstrap ensures the first admin account exists. It is idempotent: when
// the email is already registered nothing changes, so restarts are safe.
func (s *Accounts) Bootstrap(ctx context.Context, email, password string) (*Account, error) {
	email = normalizeEmail(email)
	if email == "" || password == "" {
		return nil, fmt.Errorf("%w: bootstrap email and password are required", ErrInvalidInput)
	}
	existing, err := s.store.FindByEmail(ctx, email)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return existing, nil
	}
	if len(password) < MinPasswordLength {
		return nil, fmt.Errorf("%w: password must be at least %d characters", ErrInvalidInput, MinPasswordLength)
	}
	hash, err := HashPassword(password)
	if err != nil {
		return nil, err
	}
	account := &Account{
		ID:           ids.New(),
		Email:        email,
		FullName:     "Administrator",
		PasswordHash: hash,
		Role:         RoleAdmin,
		Permissions:  DefaultPermissions(RoleAdmin),
		Active:       true,
		CreatedAt:    s.now().UTC(),
		CreatedBy:    "bootstrap",
	}
	id, err := s.store.Insert(ctx, account)
	if err != nil {
		return nil, err
	}
	account.ID = id
	return account, nil
}

// requireManager enforces the two-level hierarchy: admin manages everyone,
// executive manages non-admin staff, everyone else manages nobody.
func (s *Accounts) requireManager(actor Actor, targetRole Role) error {
	switch actor.Role {
	case RoleAdmin:
		return nil
	case RoleExecutive:
		if targetRole == RoleAdmin {
			return fmt.Errorf("%w: only an admin may manage admin accounts", ErrForbidden)
		}
		return nil
	default:
		return fmt.Errorf("%w: role %q cannot manage accounts", ErrForbidden, actor.Role)
	}
}

func normalizeEmail(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}
