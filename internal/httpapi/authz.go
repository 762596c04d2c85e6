package httpapi

import (
	"context"
	"net/http"
	"strings"

	"utshob.org/internal/auth"
	"utshob.org/internal/session"
)

type sessionKey struct{}

func contextWithSession(ctx context.Context, sess *session.Session) context.Context {
	return context.WithValue(ctx, sessionKey{}, sess)
}

func sessionFromContext(ctx context.Context) *session.Session {
	sess, _ := ctx.Value(sessionKey{}).(*session.Session)
	return sess
}

// protect runs the authorization guard before the handler. Denials honour the
// guard's decision: the credential is dropped when the decision says so, the
// flash is queued, and browser clients get a redirect while API clients get a
// JSON error.
func (a *API) protect(allowed []auth.Role, next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		sess, err := a.sessions.Load(r)
		if err != nil {
			writeError(w, r, http.StatusInternalServerError, "session store unavailable")
			return
		}

		decision := a.guard.Authorize(ctx, sess, allowed)
		if !decision.Authorized {
			a.denyRequest(w, r, sess, decision)
			return
		}
		if decision.SessionUpdated {
			if err := a.sessions.Save(ctx, sess); err != nil {
				writeError(w, r, http.StatusInternalServerError, "session store unavailable")
				return
			}
		}

		ctx = contextWithSession(ctx, sess)
		ctx = auth.ContextWithActor(ctx, decision.Email, decision.Role)
		next(w, r.WithContext(ctx))
	}
}

func (a *API) denyRequest(w http.ResponseWriter, r *http.Request, sess *session.Session, decision auth.Decision) {
	ctx := r.Context()
	if sess != nil {
		if decision.ClearSession {
			sess.ClearCredential()
		}
		if decision.Flash != "" {
			sess.AddFlash("error", decision.Flash)
		}
		if decision.ClearSession || decision.Flash != "" {
			_ = a.sessions.Save(ctx, sess)
		}
	}

	if wantsHTML(r) && decision.RedirectTo != "" {
		http.Redirect(w, r, decision.RedirectTo, http.StatusSeeOther)
		return
	}

	code := http.StatusUnauthorized
	if decision.Reason == auth.DenyInsufficientRole {
		code = http.StatusForbidden
	}
	msg := decision.Flash
	if msg == "" {
		msg = "authentication required"
	}
	writeError(w, r, code, msg)
}

func wantsHTML(r *http.Request) bool {
	accept := r.Header.Get("Accept")
	return strings.Contains(accept, "text/html")
}
