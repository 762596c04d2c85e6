package contact

import (
	"context"
	"fmt"
	"strings"
	"time"

	"utshob.org/internal/ids"
)

type Store interface {
	InsertMessage(ctx context.Context, m *Message) (string, error)
	FindMessage(ctx context.Context, id string) (*Message, error)
	ListMessages(ctx context.Context, f Filter) ([]Message, error)
	UpdateMessage(ctx context.Context, id string, upd StatusUpdate) (int64, error)
	DeleteMessage(ctx context.Context, id string) (int64, error)
	CountMessages(ctx context.Context) (Counts, error)
}

type Service struct {
	store Store
	now   func() time.Time
}

func NewService(store Store) *Service {
	return &Service{store: store, now: time.Now}
}

// SubmitParams is the public contact form.
type SubmitParams struct {
	Name        string
	Institution string
	Email       string
	Body        string
	IPAddress   string
}

func (p *SubmitParams) validate() error {
	p.Name = strings.TrimSpace(p.Name)
	p.Institution = strings.TrimSpace(p.Institution)
	p.Email = strings.ToLower(strings.TrimSpace(p.Email))
	p.Body = strings.TrimSpace(p.Body)

	if l := len(p.Name); l < 2 || l > 100 {
		return fmt.Errorf("%w: name must be 2-100 characters", ErrInvalidInput)
	}
	if l := len(p.Institution); l < 2 || l > 200 {
		return fmt.Errorf("%w: institution must be 2-200 characters", ErrInvalidInput)
	}
	if p.Email == "" || !strings.Contains(p.Email, "@") || len(p.Email) > 100 {
		return fmt.Errorf("%w: invalid email", ErrInvalidInput)
	}
	if l := len(p.Body); l < 10 || l > 2000 {
		return fmt.Errorf("%w: message must be 10-2000 characters", ErrInvalidInput)
	}
	return nil
}

// Submit records a new unread message.
func (s *Service) Submit(ctx context.Context, p SubmitParams) (*Message, error) {
	if err := p.validate(); err != nil {
		return nil, err
	}
	msg := &Message{
		ID:          ids.New(),
		Name:        p.Name,
		Institution: p.Institution,
		Email:       p.Email,
		Body:        p.Body,
		Status:      StatusUnread,
		IPAddress:   p.IPAddress,
		SubmittedAt: s.now().UTC(),
	}
	id, err := s.store.InsertMessage(ctx, msg)
	if err != nil {
		return nil, err
	}
	msg.ID = id
	return msg, nil
}

// List returns messages matching the filter, newest first.
func (s *Service) List(ctx context.Context, f Filter) ([]Message, error) {
	return s.store.ListMessages(ctx, f)
}

// Counts reports unread and total non-archived message counts.
func (s *Service) Counts(ctx context.Context) (Counts, error) {
	return s.store.CountMessages(ctx)
}

// UpdateStatus applies a partial triage update: status, archive flag, or both.
func (s *Service) UpdateStatus(ctx context.Context, id string, upd StatusUpdate) error {
	if upd.Status == nil && upd.Archived == nil {
		return fmt.Errorf("%w: nothing to update", ErrInvalidInput)
	}
	if upd.Status != nil {
		if _, err := ParseStatus(string(*upd.Status)); err != nil {
			return err
		}
	}
	n, err := s.store.UpdateMessage(ctx, id, upd)
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// Delete removes a message permanently.
func (s *Service) Delete(ctx context.Context, id string) error {
	n, err := s.store.DeleteMessage(ctx, id)
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}
