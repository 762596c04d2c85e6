package registration

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"
)

type fakeStore struct {
	segments      map[string]*Segment
	registrations map[string]*Registration
	verifiedPairs map[string]bool
	verifiedIDs   []string
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		segments: map[string]*Segment{
			"seg-1": {ID: "seg-1", Name: "Poetry Recitation", Type: "Solo", Price: 100, Categories: []string{"P", "J", "S", "HS"}, MaxEntrants: 2},
			"seg-2": {ID: "seg-2", Name: "Photography", Type: "Submission", Price: 100, FreeForAll: true},
		},
		registrations: map[string]*Registration{},
		verifiedPairs: map[string]bool{},
	}
}

func (s *fakeStore) InsertRegistration(_ context.Context, r *Registration) (string, error) {
	s.registrations[r.ID] = r
	s.segments[r.SegmentID].CurrentCount++
	return r.ID, nil
}

func (s *fakeStore) FindRegistration(_ context.Context, id string) (*Registration, error) {
	r, ok := s.registrations[id]
	if !ok {
		return nil, nil
	}
	return r, nil
}

func (s *fakeStore) FindVerifiedBySegment(_ context.Context, email, segmentID string) (bool, error) {
	return s.verifiedPairs[email+"|"+segmentID], nil
}

func (s *fakeStore) ListRegistrations(_ context.Context, f Filter) ([]Registration, error) {
	var out []Registration
	for _, r := range s.registrations {
		if f.SegmentID != "" && r.SegmentID != f.SegmentID {
			continue
		}
		if f.Verified != nil && r.Verified != *f.Verified {
			continue
		}
		if f.Search != "" && !strings.Contains(r.Email, f.Search) && !strings.Contains(r.FullName, f.Search) {
			continue
		}
		out = append(out, *r)
	}
	return out, nil
}

func (s *fakeStore) MarkVerified(_ context.Context, regIDs []string, at time.Time) (int64, error) {
	var n int64
	for _, id := range regIDs {
		r, ok := s.registrations[id]
		if !ok || r.Verified {
			continue
		}
		r.Verified = true
		r.VerifiedAt = &at
		s.verifiedIDs = append(s.verifiedIDs, id)
		n++
	}
	return n, nil
}

func (s *fakeStore) FindSegment(_ context.Context, id string) (*Segment, error) {
	seg, ok := s.segments[id]
	if !ok {
		return nil, nil
	}
	return seg, nil
}

func (s *fakeStore) ListSegments(_ context.Context) ([]Segment, error) {
	var out []Segment
	for _, seg := range s.segments {
		out = append(out, *seg)
	}
	return out, nil
}

func (s *fakeStore) Stats(_ context.Context) (DashboardStats, error) {
	return DashboardStats{Total: int64(len(s.registrations)), Segments: int64(len(s.segments))}, nil
}

func (s *fakeStore) CountsByDay(_ context.Context) ([]CountRow, error) { return nil, nil }

func (s *fakeStore) CountsBy(_ context.Context, _ string) ([]CountRow, error) { return nil, nil }

type recordingSender struct {
	sent []string
	err  error
}

func (r *recordingSender) Send(_ context.Context, to, _, _ string) error {
	if r.err != nil {
		return r.err
	}
	r.sent = append(r.sent, to)
	return nil
}

func validParams() CreateParams {
	return CreateParams{
		FullName:      "Arif Hossain",
		Email:         "Arif@Example.com",
		Institution:   "Notre Dame College",
		SegmentID:     "seg-1",
		Category:      "HS",
		PaymentNumber: "01712345678",
		TransactionID: "TXN12345",
	}
}

func TestCreate(t *testing.T) {
	store := newFakeStore()
	svc := NewService(store, &recordingSender{})

	reg, err := svc.Create(context.Background(), validParams())
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if reg.ID == "" || reg.Verified {
		t.Errorf("id=%q verified=%v", reg.ID, reg.Verified)
	}
	if reg.Email != "arif@example.com" {
		t.Errorf("email should be normalized, got %q", reg.Email)
	}
	if reg.SegmentName != "Poetry Recitation" {
		t.Errorf("segment name = %q, want denormalized copy", reg.SegmentName)
	}
	if store.segments["seg-1"].CurrentCount != 1 {
		t.Errorf("segment count = %d", store.segments["seg-1"].CurrentCount)
	}
}

func TestCreateValidation(t *testing.T) {
	svc := NewService(newFakeStore(), &recordingSender{})
	ctx := context.Background()

	cases := []struct {
		name   string
		mutate func(*CreateParams)
	}{
		{"short name", func(p *CreateParams) { p.FullName = "A" }},
		{"bad email", func(p *CreateParams) { p.Email = "not-an-email" }},
		{"short institution", func(p *CreateParams) { p.Institution = "X" }},
		{"bad payment number", func(p *CreateParams) { p.PaymentNumber = "12345" }},
		{"foreign payment number", func(p *CreateParams) { p.PaymentNumber = "+4412345678" }},
		{"short transaction id", func(p *CreateParams) { p.TransactionID = "TX" }},
		{"bad submission link", func(p *CreateParams) { p.SubmissionLink = "not a url" }},
		{"missing segment", func(p *CreateParams) { p.SegmentID = "" }},
		{"category not offered", func(p *CreateParams) { p.Category = "K" }},
	}
	for _, tc := range cases {
		p := validParams()
		tc.mutate(&p)
		if _, err := svc.Create(ctx, p); !errors.Is(err, ErrInvalidInput) {
			t.Errorf("%s: got %v, want ErrInvalidInput", tc.name, err)
		}
	}

	p := validParams()
	p.SegmentID = "no-such-segment"
	if _, err := svc.Create(ctx, p); !errors.Is(err, ErrInvalidInput) {
		t.Errorf("unknown segment: %v", err)
	}
}

func TestCreateSegmentFull(t *testing.T) {
	store := newFakeStore()
	store.segments["seg-1"].CurrentCount = 2
	svc := NewService(store, &recordingSender{})

	if _, err := svc.Create(context.Background(), validParams()); !errors.Is(err, ErrSegmentFull) {
		t.Fatalf("got %v, want ErrSegmentFull", err)
	}
}

func TestCreateDuplicateVerified(t *testing.T) {
	store := newFakeStore()
	store.verifiedPairs["arif@example.com|seg-1"] = true
	svc := NewService(store, &recordingSender{})

	if _, err := svc.Create(context.Background(), validParams()); !errors.Is(err, ErrDuplicate) {
		t.Fatalf("got %v, want ErrDuplicate", err)
	}
}

func TestCreateFreeForAllIgnoresCategory(t *testing.T) {
	svc := NewService(newFakeStore(), &recordingSender{})
	p := validParams()
	p.SegmentID = "seg-2"
	p.Category = ""
	if _, err := svc.Create(context.Background(), p); err != nil {
		t.Fatalf("free-for-all segment should accept any category: %v", err)
	}
}

func TestVerifySendsMail(t *testing.T) {
	store := newFakeStore()
	sender := &recordingSender{}
	svc := NewService(store, sender)

	reg, err := svc.Create(context.Background(), validParams())
	if err != nil {
		t.Fatal(err)
	}
	if err := svc.Verify(context.Background(), reg.ID); err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if !store.registrations[reg.ID].Verified {
		t.Error("registration should be verified")
	}
	if len(sender.sent) != 1 || sender.sent[0] != "arif@example.com" {
		t.Errorf("sent = %v", sender.sent)
	}

	if err := svc.Verify(context.Background(), "no-such-id"); !errors.Is(err, ErrNotFound) {
		t.Errorf("missing id: %v", err)
	}
}

func TestVerifyMailFailureIsNotFatal(t *testing.T) {
	store := newFakeStore()
	sender := &recordingSender{err: errors.New("smtp down")}
	svc := NewService(store, sender)

	reg, _ := svc.Create(context.Background(), validParams())
	if err := svc.Verify(context.Background(), reg.ID); err != nil {
		t.Fatalf("mail failure must not fail verification: %v", err)
	}
	if !store.registrations[reg.ID].Verified {
		t.Error("registration should still be verified")
	}
}

func TestBulkVerify(t *testing.T) {
	store := newFakeStore()
	sender := &recordingSender{}
	svc := NewService(store, sender)
	ctx := context.Background()

	first, _ := svc.Create(ctx, validParams())
	second := validParams()
	second.Email = "rina@example.com"
	secondReg, _ := svc.Create(ctx, second)

	n, err := svc.BulkVerify(ctx, []string{first.ID, secondReg.ID, "no-such-id"})
	if err != nil {
		t.Fatalf("BulkVerify: %v", err)
	}
	if n != 2 {
		t.Errorf("verified count = %d, want 2", n)
	}
	if len(sender.sent) != 2 {
		t.Errorf("mails sent = %d, want 2", len(sender.sent))
	}

	if _, err := svc.BulkVerify(ctx, nil); !errors.Is(err, ErrInvalidInput) {
		t.Errorf("empty selection: %v", err)
	}
}
