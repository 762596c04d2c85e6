package httpapi

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"utshob.org/internal/auth"
	"utshob.org/internal/identity"
	"utshob.org/internal/session"
)

type staffLoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type staffLoginResponse struct {
	Email     string    `json:"email"`
	FullName  string    `json:"full_name"`
	Role      string    `json:"role"`
	ExpiresAt time.Time `json:"expires_at"`
}

func (a *API) handleStaffLogin(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	var req staffLoginRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}

	account, token, expiresAt, err := a.accounts.Authenticate(r.Context(), req.Email, req.Password)
	if err != nil {
		if errors.Is(err, auth.ErrUnauthorized) {
			writeError(w, r, http.StatusUnauthorized, "invalid email or password")
			return
		}
		writeError(w, r, http.StatusInternalServerError, "login failed")
		return
	}

	sess, err := a.beginFreshSession(w, r)
	if err != nil {
		writeError(w, r, http.StatusInternalServerError, "session store unavailable")
		return
	}
	sess.SetStaffCredential(token, string(account.Role), account.Email)
	if err := a.sessions.Save(r.Context(), sess); err != nil {
		writeError(w, r, http.StatusInternalServerError, "session store unavailable")
		return
	}

	a.audit(r, "staff.login", map[string]any{"email": account.Email, "role": account.Role})
	writeJSON(w, http.StatusOK, staffLoginResponse{
		Email:     account.Email,
		FullName:  account.FullName,
		Role:      string(account.Role),
		ExpiresAt: expiresAt,
	})
}

func (a *API) handleStaffLogout(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	sess, _ := a.sessions.Load(r)
	if sess != nil && sess.Email != "" {
		a.audit(r, "staff.logout", map[string]any{"email": sess.Email})
	}
	_ = a.sessions.Destroy(r.Context(), w, sess)
	writeJSON(w, http.StatusOK, map[string]any{"status": "logged_out"})
}

type signupRequest struct {
	Email       string `json:"email"`
	Password    string `json:"password"`
	DisplayName string `json:"display_name"`
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (a *API) handleSignup(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	if a.provider == nil {
		writeError(w, r, http.StatusServiceUnavailable, "participant accounts are not enabled")
		return
	}
	var req signupRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	req.Email = strings.ToLower(strings.TrimSpace(req.Email))
	if req.Email == "" || req.Password == "" {
		writeError(w, r, http.StatusBadRequest, "email and password are required")
		return
	}

	creds, err := a.provider.SignUp(r.Context(), req.Email, req.Password, strings.TrimSpace(req.DisplayName))
	if err != nil {
		handleProviderError(w, r, err)
		return
	}
	// Verification mail failures are non-fatal; the user can request a
	// resend after logging in.
	_ = a.provider.SendEmailVerification(r.Context(), creds.AccessToken)

	if err := a.establishEndUserSession(w, r, creds); err != nil {
		writeError(w, r, http.StatusInternalServerError, "session store unavailable")
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"status": "registered", "email": req.Email})
}

func (a *API) handleLogin(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	if a.provider == nil {
		writeError(w, r, http.StatusServiceUnavailable, "participant accounts are not enabled")
		return
	}
	var req loginRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	req.Email = strings.ToLower(strings.TrimSpace(req.Email))

	creds, err := a.provider.SignIn(r.Context(), req.Email, req.Password)
	if err != nil {
		handleProviderError(w, r, err)
		return
	}
	if err := a.establishEndUserSession(w, r, creds); err != nil {
		writeError(w, r, http.StatusInternalServerError, "session store unavailable")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "logged_in", "email": req.Email})
}

func (a *API) handleLogout(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	sess, _ := a.sessions.Load(r)
	_ = a.sessions.Destroy(r.Context(), w, sess)
	writeJSON(w, http.StatusOK, map[string]any{"status": "logged_out"})
}

type passwordResetRequest struct {
	Email string `json:"email"`
}

func (a *API) handlePasswordReset(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	if a.provider == nil {
		writeError(w, r, http.StatusServiceUnavailable, "participant accounts are not enabled")
		return
	}
	var req passwordResetRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	req.Email = strings.ToLower(strings.TrimSpace(req.Email))
	if req.Email == "" {
		writeError(w, r, http.StatusBadRequest, "email is required")
		return
	}
	// The response never reveals whether the email exists.
	_ = a.provider.SendPasswordReset(r.Context(), req.Email)
	writeJSON(w, http.StatusOK, map[string]any{"status": "reset_email_sent"})
}

func (a *API) handleVerifyEmail(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	if a.provider == nil {
		writeError(w, r, http.StatusServiceUnavailable, "participant accounts are not enabled")
		return
	}
	sess, err := a.sessions.Load(r)
	if err != nil || sess == nil || sess.Kind != session.KindEndUser {
		writeError(w, r, http.StatusUnauthorized, "login required")
		return
	}
	if err := a.provider.SendEmailVerification(r.Context(), sess.Token); err != nil {
		handleProviderError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "verification_email_sent"})
}

// handleSession reports who the cookie belongs to and drains pending flashes.
// It never fails: an anonymous request gets an anonymous body.
func (a *API) handleSession(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}
	sess, err := a.sessions.Load(r)
	if err != nil {
		writeError(w, r, http.StatusInternalServerError, "session store unavailable")
		return
	}
	body := map[string]any{"authenticated": false}
	if sess != nil {
		if flashes := sess.ConsumeFlashes(); len(flashes) > 0 {
			body["flashes"] = flashes
			_ = a.sessions.Save(r.Context(), sess)
		}
		if sess.HasCredential() {
			body["authenticated"] = true
			body["kind"] = sess.Kind
			body["email"] = sess.Email
			if sess.Kind == session.KindStaff {
				body["role"] = sess.Role
			} else {
				body["email_verified"] = sess.EmailVerified
			}
		}
	}
	writeJSON(w, http.StatusOK, body)
}

// handleMe is the guarded variant: the token has been re-validated by the
// time this runs.
func (a *API) handleMe(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}
	sess := sessionFromContext(r.Context())
	writeJSON(w, http.StatusOK, map[string]any{
		"email":          sess.Email,
		"email_verified": sess.EmailVerified,
	})
}

// beginFreshSession discards any existing session before minting a new one,
// so a login never reuses the anonymous session id.
func (a *API) beginFreshSession(w http.ResponseWriter, r *http.Request) (*session.Session, error) {
	if old, err := a.sessions.Load(r); err == nil && old != nil {
		_ = a.sessions.Destroy(r.Context(), w, old)
	}
	return a.sessions.Begin(r.Context(), w)
}

func (a *API) establishEndUserSession(w http.ResponseWriter, r *http.Request, creds identity.Credentials) error {
	info, err := a.provider.VerifyAccessToken(r.Context(), creds.AccessToken)
	if err != nil {
		return err
	}
	sess, err := a.beginFreshSession(w, r)
	if err != nil {
		return err
	}
	sess.SetEndUserCredential(creds.AccessToken, creds.RefreshToken, info.Email, info.EmailVerified)
	return a.sessions.Save(r.Context(), sess)
}

func handleProviderError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, identity.ErrAuthFailed):
		writeError(w, r, http.StatusUnauthorized, "invalid email or password")
	case errors.Is(err, identity.ErrExpiredToken), errors.Is(err, identity.ErrInvalidToken):
		writeError(w, r, http.StatusUnauthorized, "login required")
	default:
		writeError(w, r, http.StatusBadGateway, "identity provider unavailable")
	}
}
