package registration

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"utshob.org/internal/email"
	"utshob.org/internal/ids"
	"utshob.org/internal/obs"
)

// Store is the persistence surface the service needs. Creation and the
// segment counter increment happen in one transaction on the pg side.
type Store interface {
	InsertRegistration(ctx context.Context, r *Registration) (string, error)
	FindRegistration(ctx context.Context, id string) (*Registration, error)
	// FindVerifiedBySegment reports whether email already holds a verified
	// entry in the segment.
	FindVerifiedBySegment(ctx context.Context, email, segmentID string) (bool, error)
	ListRegistrations(ctx context.Context, f Filter) ([]Registration, error)
	MarkVerified(ctx context.Context, ids []string, at time.Time) (int64, error)

	FindSegment(ctx context.Context, id string) (*Segment, error)
	ListSegments(ctx context.Context) ([]Segment, error)

	Stats(ctx context.Context) (DashboardStats, error)
	CountsByDay(ctx context.Context) ([]CountRow, error)
	CountsBy(ctx context.Context, dimension string) ([]CountRow, error)
}

// Service wires intake rules, verification, and aggregates together.
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

// CreateParams is the public intake form.
type CreateParams struct {
	FullName       string
	Email          string
	Institution    string
	SegmentID      string
	Category       string
	SubmissionLink string
	CARef          string
	PaymentNumber  string
	TransactionID  string
	SubjectID      string
	IPAddress      string
	UserAgent      string
}

func (p *CreateParams) validate() error {
	p.FullName = strings.TrimSpace(p.FullName)
	p.Email = strings.ToLower(strings.TrimSpace(p.Email))
	p.Institution = strings.TrimSpace(p.Institution)
	p.TransactionID = strings.TrimSpace(p.TransactionID)
	p.PaymentNumber = strings.TrimSpace(p.PaymentNumber)
	p.SubmissionLink = strings.TrimSpace(p.SubmissionLink)
	p.CARef = strings.TrimSpace(p.CARef)

	if l := len(p.FullName); l < 2 || l > 100 {
		return fmt.Errorf("%w: full name must be 2-100 characters", ErrInvalidInput)
	}
	if p.Email == "" || !strings.Contains(p.Email, "@") || len(p.Email) > 100 {
		return fmt.Errorf("%w: invalid email", ErrInvalidInput)
	}
	if l := len(p.Institution); l < 2 || l > 200 {
		return fmt.Errorf("%w: institution must be 2-200 characters", ErrInvalidInput)
	}
	if p.SegmentID == "" {
		return fmt.Errorf("%w: segment is required", ErrInvalidInput)
	}
	if !ValidPaymentNumber(p.PaymentNumber) {
		return fmt.Errorf("%w: enter a valid mobile number", ErrInvalidInput)
	}
	if l := len(p.TransactionID); l < 5 || l > 50 {
		return fmt.Errorf("%w: transaction id must be 5-50 characters", ErrInvalidInput)
	}
	if p.SubmissionLink != "" {
		u, err := url.Parse(p.SubmissionLink)
		if err != nil || u.Scheme == "" || u.Host == "" {
			return fmt.Errorf("%w: submission link must be a valid URL", ErrInvalidInput)
		}
	}
	return nil
}

// Create validates the form, checks segment capacity and the duplicate rule
// (one verified entry per email per segment), and persists the registration.
func (s *Service) Create(ctx context.Context, p CreateParams) (*Registration, error) {
	if err := p.validate(); err != nil {
		return nil, err
	}

	segment, err := s.store.FindSegment(ctx, p.SegmentID)
	if err != nil {
		return nil, err
	}
	if segment == nil {
		return nil, fmt.Errorf("%w: selected segment not found", ErrInvalidInput)
	}
	if !segment.HasCapacity() {
		return nil, ErrSegmentFull
	}
	if !segment.AllowsCategory(p.Category) {
		return nil, fmt.Errorf("%w: category %q not offered in this segment", ErrInvalidInput, p.Category)
	}

	exists, err := s.store.FindVerifiedBySegment(ctx, p.Email, p.SegmentID)
	if err != nil {
		return nil, err
	}
	if exists {
		return nil, ErrDuplicate
	}

	reg := &Registration{
		ID:             ids.New(),
		FullName:       p.FullName,
		Email:          p.Email,
		Institution:    p.Institution,
		SegmentID:      segment.ID,
		SegmentName:    segment.Name,
		Category:       p.Category,
		SubmissionLink: p.SubmissionLink,
		CARef:          p.CARef,
		PaymentNumber:  p.PaymentNumber,
		TransactionID:  p.TransactionID,
		SubjectID:      p.SubjectID,
		IPAddress:      p.IPAddress,
		UserAgent:      p.UserAgent,
		RegisteredAt:   s.now().UTC(),
	}
	id, err := s.store.InsertRegistration(ctx, reg)
	if err != nil {
		return nil, err
	}
	reg.ID = id
	return reg, nil
}

// Get returns one registration by id.
func (s *Service) Get(ctx context.Context, id string) (*Registration, error) {
	reg, err := s.store.FindRegistration(ctx, id)
	if err != nil {
		return nil, err
	}
	if reg == nil {
		return nil, ErrNotFound
	}
	return reg, nil
}

// List returns registrations matching the filter, newest first.
func (s *Service) List(ctx context.Context, f Filter) ([]Registration, error) {
	f.Search = strings.TrimSpace(f.Search)
	return s.store.ListRegistrations(ctx, f)
}

// Verify marks one registration verified and sends the confirmation mail.
// Mail failure is logged, not returned: the verification already happened.
func (s *Service) Verify(ctx context.Context, id string) error {
	n, err := s.store.MarkVerified(ctx, []string{id}, s.now().UTC())
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	reg, err := s.store.FindRegistration(ctx, id)
	if err != nil || reg == nil {
		return nil
	}
	s.sendConfirmation(ctx, reg)
	return nil
}

// BulkVerify marks every listed registration verified and mails each one.
// Returns the number of rows actually flipped.
func (s *Service) BulkVerify(ctx context.Context, regIDs []string) (int64, error) {
	if len(regIDs) == 0 {
		return 0, fmt.Errorf("%w: no registrations selected", ErrInvalidInput)
	}
	n, err := s.store.MarkVerified(ctx, regIDs, s.now().UTC())
	if err != nil {
		return 0, err
	}
	for _, id := range regIDs {
		reg, err := s.store.FindRegistration(ctx, id)
		if err != nil || reg == nil {
			continue
		}
		s.sendConfirmation(ctx, reg)
	}
	return n, nil
}

func (s *Service) sendConfirmation(ctx context.Context, reg *Registration) {
	body := email.ConfirmationBody(reg.FullName, reg.SegmentName, reg.ID)
	if err := s.mailer.Send(ctx, reg.Email, email.ConfirmationSubject, body); err != nil {
		obs.LogRequest(map[string]any{
			"event": "email.send_failed",
			"to":    reg.Email,
			"error": err.Error(),
		})
	}
}

// Segments lists every segment for the public catalogue and form dropdowns.
func (s *Service) Segments(ctx context.Context) ([]Segment, error) {
	return s.store.ListSegments(ctx)
}

// Segment returns one segment by id.
func (s *Service) Segment(ctx context.Context, id string) (*Segment, error) {
	segment, err := s.store.FindSegment(ctx, id)
	if err != nil {
		return nil, err
	}
	if segment == nil {
		return nil, ErrNotFound
	}
	return segment, nil
}

// Stats backs the staff dashboard header.
func (s *Service) Stats(ctx context.Context) (DashboardStats, error) {
	return s.store.Stats(ctx)
}

// Analytics assembles the four aggregate views in one call.
func (s *Service) Analytics(ctx context.Context) (Analytics, error) {
	daily, err := s.store.CountsByDay(ctx)
	if err != nil {
		return Analytics{}, err
	}
	category, err := s.store.CountsBy(ctx, "category")
	if err != nil {
		return Analytics{}, err
	}
	segment, err := s.store.CountsBy(ctx, "segment_name")
	if err != nil {
		return Analytics{}, err
	}
	caRef, err := s.store.CountsBy(ctx, "ca_ref")
	if err != nil {
		return Analytics{}, err
	}
	return Analytics{Daily: daily, Category: category, Segment: segment, CAReferral: caRef}, nil
}
