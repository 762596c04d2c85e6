package httpapi

import (
	"context"
	"strings"
	"sync"
	"time"

	"utshob.org/internal/auth"
	"utshob.org/internal/ca"
	"utshob.org/internal/contact"
	"utshob.org/internal/identity"
	"utshob.org/internal/registration"
)

// memCredentials is an in-memory auth.CredentialStore.
type memCredentials struct {
	mu      sync.Mutex
	byEmail map[string]*auth.Account
	byID    map[string]*auth.Account
}

func newMemCredentials(accounts ...*auth.Account) *memCredentials {
	s := &memCredentials{
		byEmail: map[string]*auth.Account{},
		byID:    map[string]*auth.Account{},
	}
	for _, a := range accounts {
		s.byEmail[a.Email] = a
		s.byID[a.ID] = a
	}
	return s
}

func (s *memCredentials) FindByEmail(_ context.Context, email string) (*auth.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.byEmail[strings.ToLower(email)]
	if !ok {
		return nil, nil
	}
	cp := *a
	return &cp, nil
}

func (s *memCredentials) FindByID(_ context.Context, id string) (*auth.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.byID[id]
	if !ok {
		return nil, nil
	}
	cp := *a
	return &cp, nil
}

func (s *memCredentials) Insert(_ context.Context, account *auth.Account) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.byEmail[account.Email]; ok {
		return "", auth.ErrConflict
	}
	cp := *account
	s.byEmail[cp.Email] = &cp
	s.byID[cp.ID] = &cp
	return cp.ID, nil
}

func (s *memCredentials) Update(_ context.Context, id string, upd auth.AccountUpdate) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.byID[id]
	if !ok {
		return auth.ErrNotFound
	}
	if upd.PasswordHash != nil {
		a.PasswordHash = *upd.PasswordHash
	}
	if upd.Role != nil {
		a.Role = *upd.Role
	}
	if upd.Permissions != nil {
		a.Permissions = *upd.Permissions
	}
	if upd.Active != nil {
		a.Active = *upd.Active
	}
	if upd.LastLogin != nil {
		t := *upd.LastLogin
		a.LastLogin = &t
	}
	return nil
}

func (s *memCredentials) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.byID[id]
	if !ok {
		return auth.ErrNotFound
	}
	delete(s.byID, id)
	delete(s.byEmail, a.Email)
	return nil
}

func (s *memCredentials) List(_ context.Context, includeAdmins bool) ([]auth.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []auth.Account
	for _, a := range s.byID {
		if !includeAdmins && a.Role == auth.RoleAdmin {
			continue
		}
		out = append(out, *a)
	}
	return out, nil
}

// memRegistrations is an in-memory registration.Store.
type memRegistrations struct {
	mu       sync.Mutex
	segments map[string]*registration.Segment
	regs     map[string]*registration.Registration
}

func newMemRegistrations(segments ...*registration.Segment) *memRegistrations {
	s := &memRegistrations{
		segments: map[string]*registration.Segment{},
		regs:     map[string]*registration.Registration{},
	}
	for _, seg := range segments {
		s.segments[seg.ID] = seg
	}
	return s
}

func (s *memRegistrations) InsertRegistration(_ context.Context, r *registration.Registration) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *r
	s.regs[cp.ID] = &cp
	if seg, ok := s.segments[cp.SegmentID]; ok {
		seg.CurrentCount++
	}
	return cp.ID, nil
}

func (s *memRegistrations) FindRegistration(_ context.Context, id string) (*registration.Registration, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.regs[id]
	if !ok {
		return nil, nil
	}
	cp := *r
	return &cp, nil
}

func (s *memRegistrations) FindVerifiedBySegment(_ context.Context, email, segmentID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, r := range s.regs {
		if r.Email == email && r.SegmentID == segmentID && r.Verified {
			return true, nil
		}
	}
	return false, nil
}

func (s *memRegistrations) ListRegistrations(_ context.Context, f registration.Filter) ([]registration.Registration, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []registration.Registration
	for _, r := range s.regs {
		if f.SegmentID != "" && r.SegmentID != f.SegmentID {
			continue
		}
		if f.Verified != nil && r.Verified != *f.Verified {
			continue
		}
		out = append(out, *r)
	}
	return out, nil
}

func (s *memRegistrations) MarkVerified(_ context.Context, ids []string, at time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for _, id := range ids {
		if r, ok := s.regs[id]; ok && !r.Verified {
			r.Verified = true
			t := at
			r.VerifiedAt = &t
			n++
		}
	}
	return n, nil
}

func (s *memRegistrations) FindSegment(_ context.Context, id string) (*registration.Segment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	seg, ok := s.segments[id]
	if !ok {
		return nil, nil
	}
	cp := *seg
	return &cp, nil
}

func (s *memRegistrations) ListSegments(_ context.Context) ([]registration.Segment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []registration.Segment
	for _, seg := range s.segments {
		out = append(out, *seg)
	}
	return out, nil
}

func (s *memRegistrations) Stats(_ context.Context) (registration.DashboardStats, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	stats := registration.DashboardStats{Segments: int64(len(s.segments))}
	for _, r := range s.regs {
		stats.Total++
		if r.Verified {
			stats.Verified++
		}
	}
	return stats, nil
}

func (s *memRegistrations) CountsByDay(_ context.Context) ([]registration.CountRow, error) {
	return nil, nil
}

func (s *memRegistrations) CountsBy(_ context.Context, _ string) ([]registration.CountRow, error) {
	return nil, nil
}

// memApplications is an in-memory ca.Store.
type memApplications struct {
	mu   sync.Mutex
	apps map[string]*ca.Application
}

func newMemApplications() *memApplications {
	return &memApplications{apps: map[string]*ca.Application{}}
}

func (s *memApplications) InsertApplication(_ context.Context, a *ca.Application) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *a
	s.apps[cp.ID] = &cp
	return cp.ID, nil
}

func (s *memApplications) FindApplication(_ context.Context, id string) (*ca.Application, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.apps[id]
	if !ok {
		return nil, nil
	}
	cp := *a
	return &cp, nil
}

func (s *memApplications) ListApplications(_ context.Context, f ca.Filter) ([]ca.Application, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []ca.Application
	for _, a := range s.apps {
		if f.Status != "" && a.Status != f.Status {
			continue
		}
		out = append(out, *a)
	}
	return out, nil
}

func (s *memApplications) UpdateStatus(_ context.Context, id string, status ca.Status, code string, at time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.apps[id]
	if !ok {
		return 0, nil
	}
	a.Status = status
	if a.Code == "" && code != "" {
		a.Code = code
	}
	t := at
	a.StatusUpdatedAt = &t
	return 1, nil
}

// memMessages is an in-memory contact.Store.
type memMessages struct {
	mu   sync.Mutex
	msgs map[string]*contact.Message
}

func newMemMessages() *memMessages {
	return &memMessages{msgs: map[string]*contact.Message{}}
}

func (s *memMessages) InsertMessage(_ context.Context, m *contact.Message) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *m
	s.msgs[cp.ID] = &cp
	return cp.ID, nil
}

func (s *memMessages) FindMessage(_ context.Context, id string) (*contact.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.msgs[id]
	if !ok {
		return nil, nil
	}
	cp := *m
	return &cp, nil
}

func (s *memMessages) ListMessages(_ context.Context, f contact.Filter) ([]contact.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []contact.Message
	for _, m := range s.msgs {
		if m.Archived != f.Archived {
			continue
		}
		if f.Status != "" && m.Status != f.Status {
			continue
		}
		out = append(out, *m)
	}
	return out, nil
}

func (s *memMessages) UpdateMessage(_ context.Context, id string, upd contact.StatusUpdate) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.msgs[id]
	if !ok {
		return 0, nil
	}
	if upd.Status != nil {
		m.Status = *upd.Status
	}
	if upd.Archived != nil {
		m.Archived = *upd.Archived
	}
	return 1, nil
}

func (s *memMessages) DeleteMessage(_ context.Context, id string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.msgs[id]; !ok {
		return 0, nil
	}
	delete(s.msgs, id)
	return 1, nil
}

func (s *memMessages) CountMessages(_ context.Context) (contact.Counts, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var c contact.Counts
	for _, m := range s.msgs {
		if m.Archived {
			continue
		}
		c.Total++
		if m.Status == contact.StatusUnread {
			c.Unread++
		}
	}
	return c, nil
}

// stubProvider is a canned identity.Provider for participant-path tests.
type stubProvider struct {
	creds    identity.Credentials
	info     map[string]identity.TokenInfo
	signErr  error
	resetLog []string
}

func newStubProvider() *stubProvider {
	return &stubProvider{
		creds: identity.Credentials{AccessToken: "access-1", RefreshToken: "refresh-1"},
		info: map[string]identity.TokenInfo{
			"access-1": {SubjectID: "sub-1", Email: "user@example.com", EmailVerified: true},
		},
	}
}

func (p *stubProvider) SignIn(_ context.Context, email, password string) (identity.Credentials, error) {
	if p.signErr != nil {
		return identity.Credentials{}, p.signErr
	}
	return p.creds, nil
}

func (p *stubProvider) SignUp(_ context.Context, email, password, displayName string) (identity.Credentials, error) {
	if p.signErr != nil {
		return identity.Credentials{}, p.signErr
	}
	return p.creds, nil
}

func (p *stubProvider) Refresh(_ context.Context, refreshToken string) (identity.Credentials, error) {
	return identity.Credentials{}, identity.ErrInvalidToken
}

func (p *stubProvider) VerifyAccessToken(_ context.Context, token string) (identity.TokenInfo, error) {
	info, ok := p.info[token]
	if !ok {
		return identity.TokenInfo{}, identity.ErrInvalidToken
	}
	return info, nil
}

func (p *stubProvider) GetUserInfo(ctx context.Context, token string) (identity.TokenInfo, error) {
	return p.VerifyAccessToken(ctx, token)
}

func (p *stubProvider) SendEmailVerification(_ context.Context, token string) error { return nil }

func (p *stubProvider) SendPasswordReset(_ context.Context, email string) error {
	p.resetLog = append(p.resetLog, email)
	return nil
}
