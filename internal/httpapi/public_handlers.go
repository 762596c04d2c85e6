package httpapi

import (
	"errors"
	"net/http"
	"strings"

	"utshob.org/internal/ca"
	"utshob.org/internal/contact"
	"utshob.org/internal/registration"
	"utshob.org/internal/session"
)

func (a *API) handleSegments(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}
	segments, err := a.registrations.Segments(r.Context())
	if err != nil {
		writeError(w, r, http.StatusInternalServerError, "could not load segments")
		return
	}
	if segments == nil {
		segments = []registration.Segment{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"segments": segments})
}

func (a *API) handleSegmentResource(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}
	id := strings.Trim(strings.TrimPrefix(r.URL.Path, "/segments/"), "/")
	if id == "" || strings.Contains(id, "/") {
		writeError(w, r, http.StatusNotFound, "resource not found")
		return
	}
	segment, err := a.registrations.Segment(r.Context(), id)
	if err != nil {
		handleRegistrationError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, segment)
}

type registerRequest struct {
	FullName       string `json:"full_name"`
	Email          string `json:"email"`
	Institution    string `json:"institution"`
	SegmentID      string `json:"segment_id"`
	Category       string `json:"category"`
	SubmissionLink string `json:"submission_link"`
	CARef          string `json:"ca_ref"`
	PaymentNumber  string `json:"payment_number"`
	TransactionID  string `json:"transaction_id"`
}

func (a *API) handleRegister(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	var req registerRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}

	params := registration.CreateParams{
		FullName:       req.FullName,
		Email:          req.Email,
		Institution:    req.Institution,
		SegmentID:      req.SegmentID,
		Category:       req.Category,
		SubmissionLink: req.SubmissionLink,
		CARef:          req.CARef,
		PaymentNumber:  req.PaymentNumber,
		TransactionID:  req.TransactionID,
		IPAddress:      clientIP(r),
		UserAgent:      r.UserAgent(),
	}
	// A logged-in participant gets their provider subject id attached so
	// staff can correlate entries with accounts. Best effort only; a
	// provider outage must not block the public form.
	if sess, err := a.sessions.Load(r); err == nil && sess != nil &&
		sess.Kind == session.KindEndUser && a.provider != nil {
		if info, err := a.provider.VerifyAccessToken(r.Context(), sess.Token); err == nil {
			params.SubjectID = info.SubjectID
		}
	}

	reg, err := a.registrations.Create(r.Context(), params)
	if err != nil {
		handleRegistrationError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{
		"id":      reg.ID,
		"segment": reg.SegmentName,
		"status":  "pending_verification",
	})
}

type caApplyRequest struct {
	FullName       string `json:"full_name"`
	Email          string `json:"email"`
	Institution    string `json:"institution"`
	ClassYear      string `json:"class_year"`
	Phone          string `json:"phone"`
	Motivation     string `json:"motivation"`
	ProfilePicture string `json:"profile_picture"`
}

func (a *API) handleCAApply(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	var req caApplyRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}

	app, err := a.applications.Apply(r.Context(), ca.ApplyParams{
		FullName:       req.FullName,
		Email:          req.Email,
		Institution:    req.Institution,
		ClassYear:      req.ClassYear,
		Phone:          req.Phone,
		Motivation:     req.Motivation,
		ProfilePicture: req.ProfilePicture,
		IPAddress:      clientIP(r),
	})
	if err != nil {
		handleCAError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{
		"id":     app.ID,
		"status": app.Status,
	})
}

type contactRequest struct {
	Name        string `json:"name"`
	Institution string `json:"institution"`
	Email       string `json:"email"`
	Message     string `json:"message"`
}

func (a *API) handleContact(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	var req contactRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}

	msg, err := a.messages.Submit(r.Context(), contact.SubmitParams{
		Name:        req.Name,
		Institution: req.Institution,
		Email:       req.Email,
		Body:        req.Message,
		IPAddress:   clientIP(r),
	})
	if err != nil {
		handleContactError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"id": msg.ID, "status": "received"})
}

func handleRegistrationError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, registration.ErrInvalidInput):
		writeError(w, r, http.StatusBadRequest, err.Error())
	case errors.Is(err, registration.ErrSegmentFull):
		writeError(w, r, http.StatusConflict, err.Error())
	case errors.Is(err, registration.ErrDuplicate):
		writeError(w, r, http.StatusConflict, err.Error())
	case errors.Is(err, registration.ErrNotFound):
		writeError(w, r, http.StatusNotFound, err.Error())
	default:
		writeError(w, r, http.StatusInternalServerError, "registration operation failed")
	}
}

func handleCAError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, ca.ErrInvalidInput):
		writeError(w, r, http.StatusBadRequest, err.Error())
	case errors.Is(err, ca.ErrNotFound):
		writeError(w, r, http.StatusNotFound, err.Error())
	default:
		writeError(w, r, http.StatusInternalServerError, "application operation failed")
	}
}

func handleContactError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, contact.ErrInvalidInput):
		writeError(w, r, http.StatusBadRequest, err.Error())
	case errors.Is(err, contact.ErrNotFound):
		writeError(w, r, http.StatusNotFound, err.Error())
	default:
		writeError(w, r, http.StatusInternalServerError, "message operation failed")
	}
}
