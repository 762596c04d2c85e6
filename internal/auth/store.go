package auth

import (
	"context"
	"time"
)

// Account represents any authenticated principal: back-office staff with a
// local password credential, or a participant delegated to the external
// identity provider.
type Account struct {
	ID           string     `json:"id"`
	Email        string     `json:"email"`
	FullName     string     `json:"full_name"`
	PasswordHash string     `json:"-"`
	Role         Role       `json:"role"`
	Permissions  []string   `json:"permissions"`
	Active       bool       `json:"active"`
	SubjectID    string     `json:"subject_id,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
	CreatedBy    string     `json:"created_by,omitempty"`
	LastLogin    *time.Time `json:"last_login,omitempty"`
}

// HasCapability reports membership of capability in the account's explicit
// permission set, honoring the wildcard. Admin callers should not reach this:
// the guard short-circuits them.
func (a *Account) HasCapability(capability string) bool {
	for _, p := range a.Permissions {
		if p == capability || p == CapabilityAll {
			return true
		}
	}
	return false
}

// AccountUpdate carries partial updates. Every field is applied in a single
// statement scoped by account id so concurrent operator edits cannot
// interleave within one document.
type AccountUpdate struct {
	PasswordHash *string
	Role         *Role
	Permissions  *[]string
	Active       *bool
	LastLogin    *time.Time
}

// CredentialStore describes the persistence operations the authorization core
// requires. Reads are unsynchronized point reads; updates are atomic per
// account.
type CredentialStore interface {
	FindByEmail(ctx context.Context, email string) (*Account, error)
	FindByID(ctx context.Context, id string) (*Account, error)
	Insert(ctx context.Context, account *Account) (string, error)
	Update(ctx context.Context, id string, upd AccountUpdate) error
	Delete(ctx context.Context, id string) error
	// List returns staff accounts sorted by creation time, newest first.
	// When includeAdmins is false, admin accounts are filtered out.
	List(ctx context.Context, includeAdmins bool) ([]Account, error)
}
