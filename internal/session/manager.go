package session

import (
	"context"
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"net/http"
	"strings"
	"time"
)

const defaultCookieName = "utshob_session"

// Manager binds the opaque session id to an HTTP cookie. The cookie value is
// "id.signature" where the signature is an HMAC over the id, so a forged or
// truncated cookie never reaches the store.
type Manager struct {
	store      Store
	secret     []byte
	cookieName string
	lifetime   time.Duration
	secure     bool
	now        func() time.Time
}

// NewManager constructs a Manager. The secret is required and should be
// randomly generated for production deployments.
func NewManager(store Store, secret string, lifetime time.Duration, secure bool) (*Manager, error) {
	trimmed := strings.TrimSpace(secret)
	if trimmed == "" {
		return nil, errors.New("session: cookie secret must be configured")
	}
	if store == nil {
		return nil, errors.New("session: store is required")
	}
	if lifetime <= 0 {
		lifetime = 24 * time.Hour
	}
	return &Manager{
		store:      store,
		secret:     []byte(trimmed),
		cookieName: defaultCookieName,
		lifetime:   lifetime,
		secure:     secure,
		now:        time.Now,
	}, nil
}

// Load resolves the request's session. A missing or tamper-evident cookie
// yields (nil, nil): the caller starts an anonymous request.
func (m *Manager) Load(r *http.Request) (*Session, error) {
	cookie, err := r.Cookie(m.cookieName)
	if err != nil || cookie.Value == "" {
		return nil, nil
	}
	id, ok := m.verifyCookieValue(cookie.Value)
	if !ok {
		return nil, nil
	}
	sess, err := m.store.Load(r.Context(), id)
	if errors.Is(err, ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return sess, nil
}

// Begin creates a fresh session, persists it, and sets the cookie.
func (m *Manager) Begin(ctx context.Context, w http.ResponseWriter) (*Session, error) {
	id, err := newSessionID()
	if err != nil {
		return nil, err
	}
	sess := &Session{ID: id}
	if err := m.store.Save(ctx, sess); err != nil {
		return nil, err
	}
	http.SetCookie(w, &http.Cookie{
		Name:     m.cookieName,
		Value:    m.signCookieValue(id),
		Path:     "/",
		HttpOnly: true,
		Secure:   m.secure,
		SameSite: http.SameSiteLaxMode,
		Expires:  m.now().Add(m.lifetime),
	})
	return sess, nil
}

// Save persists mutated session state under the existing id.
func (m *Manager) Save(ctx context.Context, sess *Session) error {
	if sess == nil || sess.ID == "" {
		return errors.New("session: cannot save session without id")
	}
	return m.store.Save(ctx, sess)
}

// Destroy removes the session state and expires the cookie.
func (m *Manager) Destroy(ctx context.Context, w http.ResponseWriter, sess *Session) error {
	http.SetCookie(w, &http.Cookie{
		Name:     m.cookieName,
		Value:    "",
		Path:     "/",
		HttpOnly: true,
		Secure:   m.secure,
		SameSite: http.SameSiteLaxMode,
		Expires:  time.Unix(0, 0),
		MaxAge:   -1,
	})
	if sess == nil || sess.ID == "" {
		return nil
	}
	return m.store.Delete(ctx, sess.ID)
}

func (m *Manager) signCookieValue(id string) string {
	mac := hmac.New(sha256.New, m.secret)
	mac.Write([]byte(id))
	return id + "." + base64.RawURLEncoding.EncodeToString(mac.Sum(nil))
}

func (m *Manager) verifyCookieValue(value string) (string, bool) {
	parts := strings.Split(value, ".")
	if len(parts) != 2 {
		return "", false
	}
	provided, err := base64.RawURLEncoding.DecodeString(parts[1])
	if err != nil {
		return "", false
	}
	mac := hmac.New(sha256.New, m.secret)
	mac.Write([]byte(parts[0]))
	if !hmac.Equal(provided, mac.Sum(nil)) {
		return "", false
	}
	return parts[0], true
}

func newSessionID() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}
