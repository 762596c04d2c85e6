// Package session keeps per-browser authentication state server-side. The
// client holds only an opaque, HMAC-signed session id in an HttpOnly cookie;
// the credential material lives in the session store.
package session

import "errors"

// Kind distinguishes the two credential paths.
type Kind string

const (
	KindStaff   Kind = "staff"
	KindEndUser Kind = "end_user"
)

// ErrNotFound is returned when no session exists for an id.
var ErrNotFound = errors.New("session: not found")

// Flash is a one-shot user-visible message carried across a redirect.
type Flash struct {
	Level   string `json:"level"`
	Message string `json:"message"`
}

// Session is the persisted state. Only the fields needed to re-validate on
// the next request are stored; permission lists are never cached here.
type Session struct {
	ID            string  `json:"-"`
	Kind          Kind    `json:"kind,omitempty"`
	Token         string  `json:"token,omitempty"`
	RefreshToken  string  `json:"refresh_token,omitempty"`
	Role          string  `json:"role,omitempty"`
	Email         string  `json:"email,omitempty"`
	EmailVerified bool    `json:"email_verified,omitempty"`
	Flashes       []Flash `json:"flashes,omitempty"`
}

// HasCredential reports whether any credential is present at all.
func (s *Session) HasCredential() bool {
	return s != nil && s.Token != ""
}

// SetStaffCredential replaces the session credential with a staff token.
func (s *Session) SetStaffCredential(token, role, email string) {
	s.Kind = KindStaff
	s.Token = token
	s.RefreshToken = ""
	s.Role = role
	s.Email = email
	s.EmailVerified = false
}

// SetEndUserCredential replaces the session credential with a provider token
// pair and the mirrored email_verified flag.
func (s *Session) SetEndUserCredential(token, refreshToken, email string, emailVerified bool) {
	s.Kind = KindEndUser
	s.Token = token
	s.RefreshToken = refreshToken
	s.Role = ""
	s.Email = email
	s.EmailVerified = emailVerified
}

// ClearCredential drops the credential but keeps pending flashes so the user
// still sees why they were signed out.
func (s *Session) ClearCredential() {
	s.Kind = ""
	s.Token = ""
	s.RefreshToken = ""
	s.Role = ""
	s.Email = ""
	s.EmailVerified = false
}

// AddFlash queues a one-shot message.
func (s *Session) AddFlash(level, message string) {
	s.Flashes = append(s.Flashes, Flash{Level: level, Message: message})
}

// ConsumeFlashes returns pending messages and clears the queue.
func (s *Session) ConsumeFlashes() []Flash {
	out := s.Flashes
	s.Flashes = nil
	return out
}
