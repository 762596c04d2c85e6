// Package httpapi is the HTTP layer. Routes split into a public surface
// (catalogue, registration, CA and contact intake, participant auth) and a
// staff surface under /admin guarded per-route by role.
package httpapi

import (
	"context"
	"database/sql"
	"encoding/json"
	"net/http"
	"time"

	"utshob.org/internal/auth"
	"utshob.org/internal/ca"
	"utshob.org/internal/contact"
	"utshob.org/internal/identity"
	"utshob.org/internal/obs"
	"utshob.org/internal/registration"
	"utshob.org/internal/session"
)

// ReadyProbe checks downstream readiness, currently a database ping.
type ReadyProbe struct {
	DB *sql.DB
}

func (rp ReadyProbe) Check(ctx context.Context) error {
	if rp.DB == nil {
		return nil
	}
	return rp.DB.PingContext(ctx)
}

var (
	viewRoles = []auth.Role{
		auth.RoleAdmin, auth.RoleExecutive, auth.RoleOrganizer, auth.RoleModerator,
	}
	manageRoles = []auth.Role{auth.RoleAdmin, auth.RoleExecutive}
	userRoles   = []auth.Role{auth.RoleEndUser}
)

// API owns the mux and the services behind it.
type API struct {
	mux           *http.ServeMux
	readyProbe    ReadyProbe
	version       string
	sessions      *session.Manager
	guard         *auth.Guard
	accounts      *auth.Accounts
	provider      identity.Provider
	registrations *registration.Service
	applications  *ca.Service
	messages      *contact.Service
}

// Config bundles the API dependencies.
type Config struct {
	ReadyProbe    ReadyProbe
	Version       string
	Sessions      *session.Manager
	Guard         *auth.Guard
	Accounts      *auth.Accounts
	Provider      identity.Provider
	Registrations *registration.Service
	Applications  *ca.Service
	Messages      *contact.Service
}

func New(cfg Config) *API {
	a := &API{
		mux:           http.NewServeMux(),
		readyProbe:    cfg.ReadyProbe,
		version:       cfg.Version,
		sessions:      cfg.Sessions,
		guard:         cfg.Guard,
		accounts:      cfg.Accounts,
		provider:      cfg.Provider,
		registrations: cfg.Registrations,
		applications:  cfg.Applications,
		messages:      cfg.Messages,
	}

	a.mux.HandleFunc("/healthz", a.Healthz)
	a.mux.HandleFunc("/readyz", a.Ready)
	a.mux.Handle("/metrics", obs.Handler())

	// Public surface.
	a.mux.HandleFunc("/segments", a.handleSegments)
	a.mux.HandleFunc("/segments/", a.handleSegmentResource)
	a.mux.HandleFunc("/register", a.handleRegister)
	a.mux.HandleFunc("/ca/apply", a.handleCAApply)
	a.mux.HandleFunc("/contact", a.handleContact)

	// Participant auth.
	a.mux.HandleFunc("/auth/signup", a.handleSignup)
	a.mux.HandleFunc("/auth/login", a.handleLogin)
	a.mux.HandleFunc("/auth/logout", a.handleLogout)
	a.mux.HandleFunc("/auth/password-reset", a.handlePasswordReset)
	a.mux.HandleFunc("/auth/verify-email", a.handleVerifyEmail)
	a.mux.HandleFunc("/auth/session", a.handleSession)
	a.mux.HandleFunc("/auth/me", a.protect(userRoles, a.handleMe))

	// Staff auth.
	a.mux.HandleFunc("/admin/login", a.handleStaffLogin)
	a.mux.HandleFunc("/admin/logout", a.handleStaffLogout)

	// Staff surface.
	a.mux.HandleFunc("/admin/dashboard", a.protect(viewRoles, a.handleDashboard))
	a.mux.HandleFunc("/admin/analytics", a.protect(viewRoles, a.handleAnalytics))
	a.mux.HandleFunc("/admin/registrations", a.protect(viewRoles, a.handleRegistrations))
	a.mux.HandleFunc("/admin/registrations/export", a.protect(viewRoles, a.handleRegistrationsExport))
	a.mux.HandleFunc("/admin/registrations/bulk-verify", a.protect(manageRoles, a.handleBulkVerify))
	a.mux.HandleFunc("/admin/registrations/", a.protect(viewRoles, a.handleRegistrationResource))
	a.mux.HandleFunc("/admin/ca", a.protect(viewRoles, a.handleApplications))
	a.mux.HandleFunc("/admin/ca/export", a.protect(viewRoles, a.handleApplicationsExport))
	a.mux.HandleFunc("/admin/ca/", a.protect(viewRoles, a.handleApplicationResource))
	a.mux.HandleFunc("/admin/messages", a.protect(viewRoles, a.handleMessages))
	a.mux.HandleFunc("/admin/messages/", a.protect(viewRoles, a.handleMessageResource))
	a.mux.HandleFunc("/admin/users", a.protect(manageRoles, a.handleUsers))
	a.mux.HandleFunc("/admin/users/", a.protect(manageRoles, a.handleUserResource))

	a.mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	})

	return a
}

// Handler wraps the mux with metrics instrumentation.
func (a *API) Handler() http.Handler {
	return obs.Instrument(a.mux)
}

func (a *API) Healthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"service": "utshob-api",
		"version": a.version,
	})
}

func (a *API) Ready(w http.ResponseWriter, r *http.Request) {
	if err := a.readyProbe.Check(r.Context()); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]any{
			"status": "not_ready",
			"error":  err.Error(),
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status": "ready",
	})
}

// --- helpers ---

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func nowUTC() time.Time { return time.Now().UTC() }
