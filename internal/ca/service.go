package ca

import (
	"context"
	"crypto/rand"
	"fmt"
	"strings"
	"time"

	"utshob.org/internal/email"
	"utshob.org/internal/ids"
	"utshob.org/internal/obs"
	"utshob.org/internal/registration"
)

// Store is the persistence surface for applications.
type Store interface {
	InsertApplication(ctx context.Context, a *Application) (string, error)
	FindApplication(ctx context.Context, id string) (*Application, error)
	ListApplications(ctx context.Context, f Filter) ([]Application, error)
	// UpdateStatus sets the status, timestamp, and code (empty keeps the
	// existing one) in a single statement.
	UpdateStatus(ctx context.Context, id string, status Status, code string, at time.Time) (int64, error)
}

type Service struct {
	store  Store
	mailer email.Sender
	now    func() time.Time
}

func NewService(store Store, mailer email.Sender) *Service {
	if mailer == nil {
		mailer = email.NopSender{}
	}
	return &Service{store: store, mailer: mailer, now: time.Now}
}

// ApplyParams is the public application form.
type ApplyParams struct {
	FullName       string
	Email          string
	Institution    string
	ClassYear      string
	Phone          string
	Motivation     string
	ProfilePicture string
	SubjectID      string
	IPAddress      string
}

func (p *ApplyParams) validate() error {
	p.FullName = strings.TrimSpace(p.FullName)
	p.Email = strings.ToLower(strings.TrimSpace(p.Email))
	p.Institution = strings.TrimSpace(p.Institution)
	p.ClassYear = strings.TrimSpace(p.ClassYear)
	p.Phone = strings.TrimSpace(p.Phone)
	p.Motivation = strings.TrimSpace(p.Motivation)

	if l := len(p.FullName); l < 2 || l > 100 {
		return fmt.Errorf("%w: full name must be 2-100 characters", ErrInvalidInput)
	}
	if p.Email == "" || !strings.Contains(p.Email, "@") || len(p.Email) > 100 {
		return fmt.Errorf("%w: invalid email", ErrInvalidInput)
	}
	if l := len(p.Institution); l < 2 || l > 200 {
		return fmt.Errorf("%w: institution must be 2-200 characters", ErrInvalidInput)
	}
	if l := len(p.ClassYear); l < 1 || l > 50 {
		return fmt.Errorf("%w: class/year is required", ErrInvalidInput)
	}
	if !registration.ValidPaymentNumber(p.Phone) {
		return fmt.Errorf("%w: enter a valid mobile number", ErrInvalidInput)
	}
	if l := len(p.Motivation); l < 20 || l > 1000 {
		return fmt.Errorf("%w: motivation must be 20-1000 characters", ErrInvalidInput)
	}
	return nil
}

// Apply validates and records a new pending application.
func (s *Service) Apply(ctx context.Context, p ApplyParams) (*Application, error) {
	if err := p.validate(); err != nil {
		return nil, err
	}
	app := &Application{
		ID:             ids.New(),
		FullName:       p.FullName,
		Email:          p.Email,
		Institution:    p.Institution,
		ClassYear:      p.ClassYear,
		Phone:          p.Phone,
		Motivation:     p.Motivation,
		ProfilePicture: p.ProfilePicture,
		Status:         StatusPending,
		SubjectID:      p.SubjectID,
		IPAddress:      p.IPAddress,
		AppliedAt:      s.now().UTC(),
	}
	id, err := s.store.InsertApplication(ctx, app)
	if err != nil {
		return nil, err
	}
	app.ID = id
	return app, nil
}

// Get returns one application by id.
func (s *Service) Get(ctx context.Context, id string) (*Application, error) {
	app, err := s.store.FindApplication(ctx, id)
	if err != nil {
		return nil, err
	}
	if app == nil {
		return nil, ErrNotFound
	}
	return app, nil
}

// List returns applications matching the filter, newest first.
func (s *Service) List(ctx context.Context, f Filter) ([]Application, error) {
	f.Search = strings.TrimSpace(f.Search)
	return s.store.ListApplications(ctx, f)
}

// UpdateStatus moves an application between pending, approved, and rejected.
// First approval assigns a referral code and sends the approval mail; mail
// failure is logged, not returned.
func (s *Service) UpdateStatus(ctx context.Context, id string, status Status) (*Application, error) {
	if _, err := ParseStatus(string(status)); err != nil {
		return nil, err
	}
	current, err := s.store.FindApplication(ctx, id)
	if err != nil {
		return nil, err
	}
	if current == nil {
		return nil, ErrNotFound
	}

	code := ""
	if status == StatusApproved && current.Code == "" {
		code = NewCode()
	}
	if _, err := s.store.UpdateStatus(ctx, id, status, code, s.now().UTC()); err != nil {
		return nil, err
	}

	updated, err := s.store.FindApplication(ctx, id)
	if err != nil {
		return nil, err
	}
	if updated == nil {
		return nil, ErrNotFound
	}

	if status == StatusApproved {
		body := email.CAApprovalBody(updated.FullName, updated.Code)
		if err := s.mailer.Send(ctx, updated.Email, email.CAApprovalSubject, body); err != nil {
			obs.LogRequest(map[string]any{
				"event": "email.send_failed",
				"to":    updated.Email,
				"error": err.Error(),
			})
		}
	}
	return updated, nil
}

// code alphabet omits easily-confused characters.
const codeAlphabet = "ABCDEFGHJKMNPQRSTUVWXYZ23456789"

// NewCode produces a referral code like "CA-7XK2QD".
func NewCode() string {
	var b [6]byte
	_, _ = rand.Read(b[:])
	out := make([]byte, 6)
	for i, v := range b {
		out[i] = codeAlphabet[int(v)%len(codeAlphabet)]
	}
	return "CA-" + string(out)
}
