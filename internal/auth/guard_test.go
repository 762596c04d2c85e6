package auth

import (
	"context"
	"errors"
	"testing"
	"time"

	"utshob.org/internal/identity"
	"utshob.org/internal/session"
)

type fakeStore struct {
	byEmail map[string]*Account
	byID    map[string]*Account
	err     error

	inserted []*Account
	updates  map[string][]AccountUpdate
	deleted  []string
}

func newFakeStore(accounts ...*Account) *fakeStore {
	s := &fakeStore{
		byEmail: map[string]*Account{},
		byID:    map[string]*Account{},
		updates: map[string][]AccountUpdate{},
	}
	for _, a := range accounts {
		s.byEmail[a.Email] = a
		s.byID[a.ID] = a
	}
	return s
}

func (s *fakeStore) FindByEmail(_ context.Context, email string) (*Account, error) {
	if s.err != nil {
		return nil, s.err
	}
	a, ok := s.byEmail[email]
	if !ok {
		return nil, nil
	}
	cp := *a
	return &cp, nil
}

func (s *fakeStore) FindByID(_ context.Context, id string) (*Account, error) {
	if s.err != nil {
		return nil, s.err
	}
	a, ok := s.byID[id]
	if !ok {
		return nil, nil
	}
	cp := *a
	return &cp, nil
}

func (s *fakeStore) Insert(_ context.Context, account *Account) (string, error) {
	if s.err != nil {
		return "", s.err
	}
	if _, ok := s.byEmail[account.Email]; ok {
		return "", ErrConflict
	}
	s.inserted = append(s.inserted, account)
	s.byEmail[account.Email] = account
	s.byID[account.ID] = account
	return account.ID, nil
}

func (s *fakeStore) Update(_ context.Context, id string, upd AccountUpdate) error {
	if s.err != nil {
		return s.err
	}
	a, ok := s.byID[id]
	if !ok {
		return ErrNotFound
	}
	s.updates[id] = append(s.updates[id], upd)
	if upd.Active != nil {
		a.Active = *upd.Active
	}
	if upd.PasswordHash != nil {
		a.PasswordHash = *upd.PasswordHash
	}
	if upd.Permissions != nil {
		a.Permissions = *upd.Permissions
	}
	if upd.LastLogin != nil {
		a.LastLogin = upd.LastLogin
	}
	return nil
}

func (s *fakeStore) Delete(_ context.Context, id string) error {
	if s.err != nil {
		return s.err
	}
	a, ok := s.byID[id]
	if !ok {
		return ErrNotFound
	}
	delete(s.byID, id)
	delete(s.byEmail, a.Email)
	s.deleted = append(s.deleted, id)
	return nil
}

func (s *fakeStore) List(_ context.Context, includeAdmins bool) ([]Account, error) {
	if s.err != nil {
		return nil, s.err
	}
	var out []Account
	for _, a := range s.byID {
		if !includeAdmins && a.Role == RoleAdmin {
			continue
		}
		out = append(out, *a)
	}
	return out, nil
}

type fakeProvider struct {
	verifyErrs   map[string]error
	verifyInfo   map[string]identity.TokenInfo
	refreshCreds identity.Credentials
	refreshErr   error
	refreshCalls int
}

func (p *fakeProvider) SignIn(context.Context, string, string) (identity.Credentials, error) {
	return identity.Credentials{}, identity.ErrAuthFailed
}

func (p *fakeProvider) SignUp(context.Context, string, string, string) (identity.Credentials, error) {
	return identity.Credentials{}, identity.ErrAuthFailed
}

func (p *fakeProvider) Refresh(_ context.Context, refreshToken string) (identity.Credentials, error) {
	p.refreshCalls++
	if p.refreshErr != nil {
		return identity.Credentials{}, p.refreshErr
	}
	return p.refreshCreds, nil
}

func (p *fakeProvider) VerifyAccessToken(_ context.Context, token string) (identity.TokenInfo, error) {
	if err, ok := p.verifyErrs[token]; ok {
		return identity.TokenInfo{}, err
	}
	if info, ok := p.verifyInfo[token]; ok {
		return info, nil
	}
	return identity.TokenInfo{}, identity.ErrInvalidToken
}

func (p *fakeProvider) GetUserInfo(ctx context.Context, token string) (identity.TokenInfo, error) {
	return p.VerifyAccessToken(ctx, token)
}

func (p *fakeProvider) SendEmailVerification(context.Context, string) error { return nil }
func (p *fakeProvider) SendPasswordReset(context.Context, string) error     { return nil }

func staffAccount(email string, role Role) *Account {
	return &Account{
		ID:          "acct-" + email,
		Email:       email,
		Role:        role,
		Permissions: DefaultPermissions(role),
		Active:      true,
		CreatedAt:   time.Now().UTC(),
	}
}

func staffSession(issuer *Issuer, email string, role Role) *session.Session {
	token, _, err := issuer.Issue(email, role)
	if err != nil {
		panic(err)
	}
	sess := &session.Session{}
	sess.SetStaffCredential(token, string(role), email)
	return sess
}

func TestAuthorizeNoCredential(t *testing.T) {
	issuer, _ := NewIssuer("test-secret")
	guard, _ := NewGuard(issuer, &fakeProvider{}, newFakeStore())

	d := guard.Authorize(context.Background(), &session.Session{}, []Role{RoleAdmin})
	if d.Authorized {
		t.Fatal("empty session must not authorize")
	}
	if d.Reason != DenyNoCredential {
		t.Errorf("reason = %s, want no_credential", d.Reason)
	}
	if d.RedirectTo != StaffLoginPath {
		t.Errorf("redirect = %s, want %s", d.RedirectTo, StaffLoginPath)
	}

	d = guard.Authorize(context.Background(), nil, []Role{RoleEndUser})
	if d.Authorized || d.RedirectTo != EndUserLoginPath {
		t.Errorf("nil session on participant route: authorized=%v redirect=%s", d.Authorized, d.RedirectTo)
	}
}

func TestAuthorizeStaffHappyPath(t *testing.T) {
	issuer, _ := NewIssuer("test-secret")
	store := newFakeStore(staffAccount("mod@utshob.org", RoleModerator))
	guard, _ := NewGuard(issuer, &fakeProvider{}, store)

	sess := staffSession(issuer, "mod@utshob.org", RoleModerator)
	d := guard.Authorize(context.Background(), sess, []Role{RoleAdmin, RoleModerator})
	if !d.Authorized {
		t.Fatalf("expected authorized, got reason %s", d.Reason)
	}
	if d.Role != RoleModerator || d.Email != "mod@utshob.org" {
		t.Errorf("principal = %s/%s", d.Email, d.Role)
	}
	if d.Account == nil || d.Account.ID != "acct-mod@utshob.org" {
		t.Error("decision should carry the store-fresh account")
	}
	if d.ClearSession || d.SessionUpdated {
		t.Error("authorized staff decision must not touch the session")
	}
}

func TestAuthorizeStaffExpired(t *testing.T) {
	clock := time.Now()
	issuer, _ := NewIssuer("test-secret", WithClock(func() time.Time { return clock }))
	store := newFakeStore(staffAccount("mod@utshob.org", RoleModerator))
	guard, _ := NewGuard(issuer, &fakeProvider{}, store)

	sess := staffSession(issuer, "mod@utshob.org", RoleModerator)
	clock = clock.Add(2 * time.Hour)

	d := guard.Authorize(context.Background(), sess, []Role{RoleModerator})
	if d.Authorized {
		t.Fatal("expired token must not authorize")
	}
	if d.Reason != DenyExpiredCredential {
		t.Errorf("reason = %s, want expired_credential", d.Reason)
	}
	if !d.ClearSession {
		t.Error("expired staff credential must clear the session")
	}
	if d.RedirectTo != StaffLoginPath {
		t.Errorf("redirect = %s, want staff login", d.RedirectTo)
	}
}

func TestAuthorizeStaffTampered(t *testing.T) {
	issuer, _ := NewIssuer("test-secret")
	store := newFakeStore(staffAccount("mod@utshob.org", RoleModerator))
	guard, _ := NewGuard(issuer, &fakeProvider{}, store)

	sess := &session.Session{}
	sess.SetStaffCredential("not.a.token", string(RoleModerator), "mod@utshob.org")

	d := guard.Authorize(context.Background(), sess, []Role{RoleModerator})
	if d.Authorized {
		t.Fatal("malformed token must not authorize")
	}
	if d.Reason != DenyMalformedCredential || !d.ClearSession {
		t.Errorf("reason=%s clear=%v", d.Reason, d.ClearSession)
	}
}

func TestAuthorizeStaffDeactivated(t *testing.T) {
	issuer, _ := NewIssuer("test-secret")
	acct := staffAccount("mod@utshob.org", RoleModerator)
	store := newFakeStore(acct)
	guard, _ := NewGuard(issuer, &fakeProvider{}, store)

	sess := staffSession(issuer, "mod@utshob.org", RoleModerator)

	// Deactivation between token issuance and the next request takes effect
	// immediately even though the token is still within its lifetime.
	acct.Active = false
	d := guard.Authorize(context.Background(), sess, []Role{RoleModerator})
	if d.Authorized {
		t.Fatal("deactivated account must not authorize")
	}
	if d.Reason != DenyInactiveAccount || !d.ClearSession {
		t.Errorf("reason=%s clear=%v", d.Reason, d.ClearSession)
	}
}

func TestAuthorizeStaffUnknownAccount(t *testing.T) {
	issuer, _ := NewIssuer("test-secret")
	guard, _ := NewGuard(issuer, &fakeProvider{}, newFakeStore())

	sess := staffSession(issuer, "ghost@utshob.org", RoleModerator)
	if d := guard.Authorize(context.Background(), sess, []Role{RoleModerator}); d.Authorized {
		t.Fatal("deleted account with a live token must not authorize")
	}
}

func TestAuthorizeStaffInsufficientRole(t *testing.T) {
	issuer, _ := NewIssuer("test-secret")
	store := newFakeStore(staffAccount("mod@utshob.org", RoleModerator))
	guard, _ := NewGuard(issuer, &fakeProvider{}, store)

	sess := staffSession(issuer, "mod@utshob.org", RoleModerator)
	d := guard.Authorize(context.Background(), sess, []Role{RoleAdmin})
	if d.Authorized {
		t.Fatal("moderator must not pass an admin-only gate")
	}
	if d.Reason != DenyInsufficientRole {
		t.Errorf("reason = %s, want insufficient_role", d.Reason)
	}
	if d.ClearSession {
		t.Error("a valid session denied on role must be kept")
	}
	if d.RedirectTo != StaffDashboardPath {
		t.Errorf("redirect = %s, want dashboard", d.RedirectTo)
	}
}

// Widening the allowed set never flips an authorized outcome to denied.
func TestAuthorizeMonotonic(t *testing.T) {
	issuer, _ := NewIssuer("test-secret")
	store := newFakeStore(staffAccount("org@utshob.org", RoleOrganizer))
	guard, _ := NewGuard(issuer, &fakeProvider{}, store)

	narrow := []Role{RoleOrganizer}
	wide := []Role{RoleAdmin, RoleExecutive, RoleOrganizer, RoleModerator}

	sess := staffSession(issuer, "org@utshob.org", RoleOrganizer)
	if !guard.Authorize(context.Background(), sess, narrow).Authorized {
		t.Fatal("narrow set should authorize organizer")
	}
	if !guard.Authorize(context.Background(), sess, wide).Authorized {
		t.Fatal("superset must still authorize")
	}
}

func TestAuthorizeEndUserHappyPath(t *testing.T) {
	issuer, _ := NewIssuer("test-secret")
	provider := &fakeProvider{
		verifyInfo: map[string]identity.TokenInfo{
			"live-token": {SubjectID: "sub-1", Email: "p@example.com", EmailVerified: true},
		},
	}
	guard, _ := NewGuard(issuer, provider, newFakeStore())

	sess := &session.Session{}
	sess.SetEndUserCredential("live-token", "refresh-1", "p@example.com", false)

	d := guard.Authorize(context.Background(), sess, []Role{RoleEndUser})
	if !d.Authorized {
		t.Fatalf("expected authorized, got %s", d.Reason)
	}
	if d.Role != RoleEndUser {
		t.Errorf("role = %s, want end_user", d.Role)
	}
	if d.SessionUpdated {
		t.Error("no refresh happened, session not updated")
	}
	if !sess.EmailVerified {
		t.Error("verification flag should be refreshed from the provider")
	}
	if provider.refreshCalls != 0 {
		t.Errorf("refresh calls = %d, want 0", provider.refreshCalls)
	}
}

func TestAuthorizeEndUserRefreshOnce(t *testing.T) {
	issuer, _ := NewIssuer("test-secret")
	provider := &fakeProvider{
		verifyErrs: map[string]error{"stale-token": identity.ErrExpiredToken},
		verifyInfo: map[string]identity.TokenInfo{
			"fresh-token": {SubjectID: "sub-1", Email: "p@example.com", EmailVerified: true},
		},
		refreshCreds: identity.Credentials{AccessToken: "fresh-token", RefreshToken: "refresh-2"},
	}
	guard, _ := NewGuard(issuer, provider, newFakeStore())

	sess := &session.Session{}
	sess.SetEndUserCredential("stale-token", "refresh-1", "p@example.com", true)

	d := guard.Authorize(context.Background(), sess, []Role{RoleEndUser})
	if !d.Authorized {
		t.Fatalf("expected authorized after refresh, got %s", d.Reason)
	}
	if !d.SessionUpdated {
		t.Error("refresh must flag the session for persistence")
	}
	if sess.Token != "fresh-token" || sess.RefreshToken != "refresh-2" {
		t.Errorf("session tokens = %s/%s after rotation", sess.Token, sess.RefreshToken)
	}
	if provider.refreshCalls != 1 {
		t.Errorf("refresh calls = %d, want exactly 1", provider.refreshCalls)
	}
}

func TestAuthorizeEndUserRefreshFails(t *testing.T) {
	issuer, _ := NewIssuer("test-secret")
	provider := &fakeProvider{
		verifyErrs: map[string]error{"stale-token": identity.ErrExpiredToken},
		refreshErr: identity.ErrInvalidToken,
	}
	guard, _ := NewGuard(issuer, provider, newFakeStore())

	sess := &session.Session{}
	sess.SetEndUserCredential("stale-token", "refresh-1", "p@example.com", true)

	d := guard.Authorize(context.Background(), sess, []Role{RoleEndUser})
	if d.Authorized {
		t.Fatal("failed refresh must not authorize")
	}
	if !d.ClearSession {
		t.Error("failed refresh must clear the session")
	}
	if d.RedirectTo != EndUserLoginPath {
		t.Errorf("redirect = %s, want participant login", d.RedirectTo)
	}
	if provider.refreshCalls != 1 {
		t.Errorf("refresh calls = %d, want exactly 1", provider.refreshCalls)
	}
}

func TestAuthorizeEndUserProviderDown(t *testing.T) {
	issuer, _ := NewIssuer("test-secret")
	provider := &fakeProvider{
		verifyErrs: map[string]error{"live-token": identity.ErrUnavailable},
	}
	guard, _ := NewGuard(issuer, provider, newFakeStore())

	sess := &session.Session{}
	sess.SetEndUserCredential("live-token", "refresh-1", "p@example.com", true)

	// Provider outage fails closed: treated the same as a bad credential.
	d := guard.Authorize(context.Background(), sess, []Role{RoleEndUser})
	if d.Authorized {
		t.Fatal("provider outage must not authorize")
	}
	if !d.ClearSession || d.RedirectTo != EndUserLoginPath {
		t.Errorf("clear=%v redirect=%s", d.ClearSession, d.RedirectTo)
	}
}

func TestAuthorizeEndUserOnStaffRoute(t *testing.T) {
	issuer, _ := NewIssuer("test-secret")
	provider := &fakeProvider{
		verifyInfo: map[string]identity.TokenInfo{
			"live-token": {SubjectID: "sub-1", Email: "p@example.com"},
		},
	}
	guard, _ := NewGuard(issuer, provider, newFakeStore())

	sess := &session.Session{}
	sess.SetEndUserCredential("live-token", "refresh-1", "p@example.com", true)

	d := guard.Authorize(context.Background(), sess, []Role{RoleAdmin, RoleExecutive})
	if d.Authorized {
		t.Fatal("participant session must never satisfy a staff route")
	}
	if d.Reason != DenyInsufficientRole {
		t.Errorf("reason = %s, want insufficient_role", d.Reason)
	}
	if provider.refreshCalls != 0 {
		t.Error("staff route must not trigger a participant refresh")
	}
}

func TestHasPermission(t *testing.T) {
	issuer, _ := NewIssuer("test-secret")
	acct := staffAccount("org@utshob.org", RoleOrganizer)
	store := newFakeStore(acct)
	guard, _ := NewGuard(issuer, &fakeProvider{}, store)
	ctx := context.Background()

	// Admin short-circuits without a store read, even for capabilities
	// outside the static table.
	if !guard.HasPermission(ctx, "root@utshob.org", RoleAdmin, "anything_at_all") {
		t.Error("admin must hold every capability")
	}

	if !guard.HasPermission(ctx, "org@utshob.org", RoleOrganizer, CapExportData) {
		t.Error("organizer default grants include export_data")
	}
	if guard.HasPermission(ctx, "org@utshob.org", RoleOrganizer, CapManageUsers) {
		t.Error("organizer must not hold manage_users")
	}

	// The check is store-fresh: an edit is visible on the next call.
	acct.Permissions = []string{CapManageUsers}
	if !guard.HasPermission(ctx, "org@utshob.org", RoleOrganizer, CapManageUsers) {
		t.Error("granted capability must be visible without a new session")
	}

	acct.Active = false
	if guard.HasPermission(ctx, "org@utshob.org", RoleOrganizer, CapManageUsers) {
		t.Error("deactivated account holds no capabilities")
	}

	if guard.HasPermission(ctx, "ghost@utshob.org", RoleOrganizer, CapExportData) {
		t.Error("unknown account holds no capabilities")
	}
}

func TestHasPermissionStoreError(t *testing.T) {
	issuer, _ := NewIssuer("test-secret")
	store := newFakeStore(staffAccount("org@utshob.org", RoleOrganizer))
	store.err = errors.New("connection reset")
	guard, _ := NewGuard(issuer, &fakeProvider{}, store)

	if guard.HasPermission(context.Background(), "org@utshob.org", RoleOrganizer, CapExportData) {
		t.Error("store failure must fail closed")
	}
}
