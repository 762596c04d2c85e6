package httpapi

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"utshob.org/internal/auth"
	"utshob.org/internal/ca"
	"utshob.org/internal/contact"
	"utshob.org/internal/export"
	"utshob.org/internal/registration"
)

func actorFrom(r *http.Request) auth.Actor {
	actor, _ := auth.ActorFromContext(r.Context())
	return actor
}

func (a *API) handleDashboard(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}
	stats, err := a.registrations.Stats(r.Context())
	if err != nil {
		writeError(w, r, http.StatusInternalServerError, "could not load dashboard")
		return
	}
	counts, err := a.messages.Counts(r.Context())
	if err != nil {
		writeError(w, r, http.StatusInternalServerError, "could not load dashboard")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"registrations": map[string]any{
			"total":    stats.Total,
			"verified": stats.Verified,
			"pending":  stats.Total - stats.Verified,
		},
		"segments": stats.Segments,
		"messages": map[string]any{
			"unread": counts.Unread,
			"total":  counts.Total,
		},
	})
}

func (a *API) handleAnalytics(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}
	analytics, err := a.registrations.Analytics(r.Context())
	if err != nil {
		writeError(w, r, http.StatusInternalServerError, "could not load analytics")
		return
	}
	writeJSON(w, http.StatusOK, analytics)
}

func registrationFilter(r *http.Request) registration.Filter {
	q := r.URL.Query()
	f := registration.Filter{
		SegmentID: strings.TrimSpace(q.Get("segment_id")),
		Search:    strings.TrimSpace(q.Get("search")),
	}
	switch q.Get("verified") {
	case "true":
		v := true
		f.Verified = &v
	case "false":
		v := false
		f.Verified = &v
	}
	return f
}

func (a *API) handleRegistrations(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}
	regs, err := a.registrations.List(r.Context(), registrationFilter(r))
	if err != nil {
		writeError(w, r, http.StatusInternalServerError, "could not list registrations")
		return
	}
	if regs == nil {
		regs = []registration.Registration{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": regs, "count": len(regs)})
}

// handleRegistrationResource serves /admin/registrations/{id} and the
// /verify action on it. Verification needs a manage role even though the
// parent route is viewable.
func (a *API) handleRegistrationResource(w http.ResponseWriter, r *http.Request) {
	path := strings.Trim(strings.TrimPrefix(r.URL.Path, "/admin/registrations/"), "/")
	if path == "" {
		writeError(w, r, http.StatusNotFound, "resource not found")
		return
	}
	if id, ok := strings.CutSuffix(path, "/verify"); ok {
		id = strings.Trim(id, "/")
		if id == "" {
			writeError(w, r, http.StatusNotFound, "resource not found")
			return
		}
		if r.Method != http.MethodPost {
			methodNotAllowed(w, r, http.MethodPost)
			return
		}
		if !a.requireManageRole(w, r) {
			return
		}
		if err := a.registrations.Verify(r.Context(), id); err != nil {
			handleRegistrationError(w, r, err)
			return
		}
		a.audit(r, "registrations.verify", map[string]any{"registration_id": id})
		writeJSON(w, http.StatusOK, map[string]any{"id": id, "verified": true})
		return
	}
	if strings.Contains(path, "/") {
		writeError(w, r, http.StatusNotFound, "resource not found")
		return
	}
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}
	reg, err := a.registrations.Get(r.Context(), path)
	if err != nil {
		handleRegistrationError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, reg)
}

type bulkVerifyRequest struct {
	IDs []string `json:"ids"`
}

func (a *API) handleBulkVerify(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	var req bulkVerifyRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	n, err := a.registrations.BulkVerify(r.Context(), req.IDs)
	if err != nil {
		handleRegistrationError(w, r, err)
		return
	}
	a.audit(r, "registrations.bulk_verify", map[string]any{
		"requested": len(req.IDs),
		"verified":  n,
	})
	writeJSON(w, http.StatusOK, map[string]any{"verified": n})
}

func (a *API) handleRegistrationsExport(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}
	regs, err := a.registrations.List(r.Context(), registrationFilter(r))
	if err != nil {
		writeError(w, r, http.StatusInternalServerError, "could not export registrations")
		return
	}
	a.audit(r, "registrations.export", map[string]any{"count": len(regs)})
	a.serveExport(w, r, "registrations", func(format string) ([]byte, string, error) {
		if format == "xlsx" {
			data, err := export.RegistrationsXLSX(regs)
			return data, export.XLSXContentType, err
		}
		data, err := export.RegistrationsCSV(regs)
		return data, export.CSVContentType, err
	})
}

func (a *API) handleApplications(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}
	apps, err := a.applications.List(r.Context(), applicationFilter(r))
	if err != nil {
		writeError(w, r, http.StatusInternalServerError, "could not list applications")
		return
	}
	if apps == nil {
		apps = []ca.Application{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": apps, "count": len(apps)})
}

func applicationFilter(r *http.Request) ca.Filter {
	q := r.URL.Query()
	f := ca.Filter{Search: strings.TrimSpace(q.Get("search"))}
	if raw := q.Get("status"); raw != "" {
		if status, err := ca.ParseStatus(raw); err == nil {
			f.Status = status
		}
	}
	return f
}

type caStatusRequest struct {
	Status string `json:"status"`
}

func (a *API) handleApplicationResource(w http.ResponseWriter, r *http.Request) {
	path := strings.Trim(strings.TrimPrefix(r.URL.Path, "/admin/ca/"), "/")
	if path == "" {
		writeError(w, r, http.StatusNotFound, "resource not found")
		return
	}
	if id, ok := strings.CutSuffix(path, "/status"); ok {
		id = strings.Trim(id, "/")
		if id == "" {
			writeError(w, r, http.StatusNotFound, "resource not found")
			return
		}
		if r.Method != http.MethodPost {
			methodNotAllowed(w, r, http.MethodPost)
			return
		}
		if !a.requireManageRole(w, r) {
			return
		}
		var req caStatusRequest
		if err := decodeJSON(w, r, &req); err != nil {
			writeError(w, r, http.StatusBadRequest, err.Error())
			return
		}
		status, err := ca.ParseStatus(req.Status)
		if err != nil {
			writeError(w, r, http.StatusBadRequest, err.Error())
			return
		}
		app, err := a.applications.UpdateStatus(r.Context(), id, status)
		if err != nil {
			handleCAError(w, r, err)
			return
		}
		a.audit(r, "ca.status_update", map[string]any{
			"application_id": id,
			"status":         app.Status,
		})
		writeJSON(w, http.StatusOK, app)
		return
	}
	if strings.Contains(path, "/") {
		writeError(w, r, http.StatusNotFound, "resource not found")
		return
	}
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}
	app, err := a.applications.Get(r.Context(), path)
	if err != nil {
		handleCAError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, app)
}

func (a *API) handleApplicationsExport(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}
	apps, err := a.applications.List(r.Context(), applicationFilter(r))
	if err != nil {
		writeError(w, r, http.StatusInternalServerError, "could not export applications")
		return
	}
	a.audit(r, "ca.export", map[string]any{"count": len(apps)})
	a.serveExport(w, r, "ca_applications", func(format string) ([]byte, string, error) {
		if format == "xlsx" {
			data, err := export.ApplicationsXLSX(apps)
			return data, export.XLSXContentType, err
		}
		data, err := export.ApplicationsCSV(apps)
		return data, export.CSVContentType, err
	})
}

func (a *API) handleMessages(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}
	q := r.URL.Query()
	f := contact.Filter{Archived: q.Get("archived") == "true"}
	if raw := q.Get("status"); raw != "" {
		if status, err := contact.ParseStatus(raw); err == nil {
			f.Status = status
		}
	}
	msgs, err := a.messages.List(r.Context(), f)
	if err != nil {
		writeError(w, r, http.StatusInternalServerError, "could not list messages")
		return
	}
	if msgs == nil {
		msgs = []contact.Message{}
	}
	counts, err := a.messages.Counts(r.Context())
	if err != nil {
		writeError(w, r, http.StatusInternalServerError, "could not list messages")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"items":  msgs,
		"unread": counts.Unread,
		"total":  counts.Total,
	})
}

type messageUpdateRequest struct {
	Status   *string `json:"status"`
	Archived *bool   `json:"archived"`
}

func (a *API) handleMessageResource(w http.ResponseWriter, r *http.Request) {
	id := strings.Trim(strings.TrimPrefix(r.URL.Path, "/admin/messages/"), "/")
	if id == "" || strings.Contains(id, "/") {
		writeError(w, r, http.StatusNotFound, "resource not found")
		return
	}
	switch r.Method {
	case http.MethodPost:
		if !a.requireManageRole(w, r) {
			return
		}
		var req messageUpdateRequest
		if err := decodeJSON(w, r, &req); err != nil {
			writeError(w, r, http.StatusBadRequest, err.Error())
			return
		}
		upd := contact.StatusUpdate{Archived: req.Archived}
		if req.Status != nil {
			status, err := contact.ParseStatus(*req.Status)
			if err != nil {
				writeError(w, r, http.StatusBadRequest, err.Error())
				return
			}
			upd.Status = &status
		}
		if err := a.messages.UpdateStatus(r.Context(), id, upd); err != nil {
			handleContactError(w, r, err)
			return
		}
		a.audit(r, "messages.update", map[string]any{"message_id": id})
		writeJSON(w, http.StatusOK, map[string]any{"id": id, "status": "updated"})
	case http.MethodDelete:
		if !a.requireManageRole(w, r) {
			return
		}
		if err := a.messages.Delete(r.Context(), id); err != nil {
			handleContactError(w, r, err)
			return
		}
		a.audit(r, "messages.delete", map[string]any{"message_id": id})
		w.WriteHeader(http.StatusNoContent)
	default:
		methodNotAllowed(w, r, http.MethodPost, http.MethodDelete)
	}
}

// requireManageRole narrows a view-level route for its mutating actions.
func (a *API) requireManageRole(w http.ResponseWriter, r *http.Request) bool {
	actor := actorFrom(r)
	if actor.Role == auth.RoleAdmin || actor.Role == auth.RoleExecutive {
		return true
	}
	writeError(w, r, http.StatusForbidden, "Insufficient permissions")
	return false
}

func (a *API) serveExport(w http.ResponseWriter, r *http.Request, prefix string, build func(format string) ([]byte, string, error)) {
	format := r.URL.Query().Get("format")
	if format != "xlsx" {
		format = "csv"
	}
	data, contentType, err := build(format)
	if err != nil {
		writeError(w, r, http.StatusInternalServerError, "export failed")
		return
	}
	filename := export.Filename(prefix, format, nowUTC())
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	_, _ = w.Write(data)
}

// --- user management ---

type createUserRequest struct {
	Email    string `json:"email"`
	FullName string `json:"full_name"`
	Password string `json:"password"`
	Role     string `json:"role"`
}

func (a *API) handleUsers(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		accounts, err := a.accounts.List(r.Context(), actorFrom(r))
		if err != nil {
			handleAccountError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"items": accounts, "count": len(accounts)})
	case http.MethodPost:
		var req createUserRequest
		if err := decodeJSON(w, r, &req); err != nil {
			writeError(w, r, http.StatusBadRequest, err.Error())
			return
		}
		role, err := auth.ParseRole(req.Role)
		if err != nil {
			writeError(w, r, http.StatusBadRequest, err.Error())
			return
		}
		account, err := a.accounts.Create(r.Context(), actorFrom(r), auth.CreateParams{
			Email:    req.Email,
			FullName: req.FullName,
			Password: req.Password,
			Role:     role,
		})
		if err != nil {
			handleAccountError(w, r, err)
			return
		}
		a.audit(r, "accounts.create", map[string]any{
			"account_id": account.ID,
			"email":      account.Email,
			"role":       account.Role,
		})
		writeJSON(w, http.StatusCreated, account)
	default:
		methodNotAllowed(w, r, http.MethodGet, http.MethodPost)
	}
}

type passwordRequest struct {
	Password string `json:"password"`
}

type activeRequest struct {
	Active bool `json:"active"`
}

type permissionsRequest struct {
	Permissions []string `json:"permissions"`
}

func (a *API) handleUserResource(w http.ResponseWriter, r *http.Request) {
	path := strings.Trim(strings.TrimPrefix(r.URL.Path, "/admin/users/"), "/")
	if path == "" {
		writeError(w, r, http.StatusNotFound, "resource not found")
		return
	}
	parts := strings.Split(path, "/")
	id := parts[0]
	actor := actorFrom(r)

	if len(parts) == 1 {
		if r.Method != http.MethodDelete {
			methodNotAllowed(w, r, http.MethodDelete)
			return
		}
		if err := a.accounts.Delete(r.Context(), actor, id); err != nil {
			handleAccountError(w, r, err)
			return
		}
		a.audit(r, "accounts.delete", map[string]any{"account_id": id})
		w.WriteHeader(http.StatusNoContent)
		return
	}
	if len(parts) != 2 || r.Method != http.MethodPost {
		writeError(w, r, http.StatusNotFound, "resource not found")
		return
	}

	switch parts[1] {
	case "password":
		var req passwordRequest
		if err := decodeJSON(w, r, &req); err != nil {
			writeError(w, r, http.StatusBadRequest, err.Error())
			return
		}
		if err := a.accounts.ResetPassword(r.Context(), actor, id, req.Password); err != nil {
			handleAccountError(w, r, err)
			return
		}
		a.audit(r, "accounts.reset_password", map[string]any{"account_id": id})
		writeJSON(w, http.StatusOK, map[string]any{"id": id, "status": "password_reset"})
	case "active":
		var req activeRequest
		if err := decodeJSON(w, r, &req); err != nil {
			writeError(w, r, http.StatusBadRequest, err.Error())
			return
		}
		if err := a.accounts.SetActive(r.Context(), actor, id, req.Active); err != nil {
			handleAccountError(w, r, err)
			return
		}
		a.audit(r, "accounts.set_active", map[string]any{
			"account_id": id,
			"active":     req.Active,
		})
		writeJSON(w, http.StatusOK, map[string]any{"id": id, "active": req.Active})
	case "permissions":
		var req permissionsRequest
		if err := decodeJSON(w, r, &req); err != nil {
			writeError(w, r, http.StatusBadRequest, err.Error())
			return
		}
		if err := a.accounts.SetPermissions(r.Context(), actor, id, req.Permissions); err != nil {
			handleAccountError(w, r, err)
			return
		}
		a.audit(r, "accounts.set_permissions", map[string]any{
			"account_id": id,
			"count":      len(req.Permissions),
		})
		writeJSON(w, http.StatusOK, map[string]any{"id": id, "status": "permissions_updated"})
	default:
		writeError(w, r, http.StatusNotFound, "resource not found")
	}
}

func handleAccountError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, auth.ErrInvalidInput):
		writeError(w, r, http.StatusBadRequest, err.Error())
	case errors.Is(err, auth.ErrConflict):
		writeError(w, r, http.StatusConflict, err.Error())
	case errors.Is(err, auth.ErrNotFound):
		writeError(w, r, http.StatusNotFound, err.Error())
	case errors.Is(err, auth.ErrForbidden):
		writeError(w, r, http.StatusForbidden, err.Error())
	default:
		writeError(w, r, http.StatusInternalServerError, "account operation failed")
	}
}
