// Package registration implements participant sign-ups for festival segments:
// intake with capacity and duplicate checks, staff verification, and the
// aggregate views the back office reads.
package registration

import (
	"errors"
	"regexp"
	"time"
)

var (
	ErrNotFound     = errors.New("registration: not found")
	ErrInvalidInput = errors.New("registration: invalid input")
	ErrSegmentFull  = errors.New("registration: segment is full")
	ErrDuplicate    = errors.New("registration: already registered for this segment")
)

// Segment is a festival event participants register for. Categories are
// school-level codes; an empty set with FreeForAll means anyone may enter.
type Segment struct {
	ID           string   `json:"id"`
	Name         string   `json:"name"`
	Type         string   `json:"type"`
	Price        int      `json:"price"`
	Categories   []string `json:"categories"`
	FreeForAll   bool     `json:"is_free_for_all"`
	MaxEntrants  int      `json:"max_participants"`
	CurrentCount int      `json:"current_participants"`
}

// HasCapacity reports whether another registration fits. Zero MaxEntrants
// means unlimited.
func (s *Segment) HasCapacity() bool {
	return s.MaxEntrants <= 0 || s.CurrentCount < s.MaxEntrants
}

// AllowsCategory reports whether the category code may enter this segment.
func (s *Segment) AllowsCategory(category string) bool {
	if s.FreeForAll || len(s.Categories) == 0 {
		return true
	}
	for _, c := range s.Categories {
		if c == category {
			return true
		}
	}
	return false
}

// Registration is one participant's entry in one segment. SegmentName is
// denormalized at creation time so exports and mail survive segment renames.
type Registration struct {
	ID             string     `json:"id"`
	FullName       string     `json:"full_name"`
	Email          string     `json:"email"`
	Institution    string     `json:"institution"`
	SegmentID      string     `json:"segment_id"`
	SegmentName    string     `json:"segment_name"`
	Category       string     `json:"category"`
	SubmissionLink string     `json:"submission_link,omitempty"`
	CARef          string     `json:"ca_ref,omitempty"`
	PaymentNumber  string     `json:"payment_number"`
	TransactionID  string     `json:"transaction_id"`
	Verified       bool       `json:"verified"`
	SubjectID      string     `json:"subject_id,omitempty"`
	IPAddress      string     `json:"ip_address,omitempty"`
	UserAgent      string     `json:"user_agent,omitempty"`
	RegisteredAt   time.Time  `json:"registered_at"`
	VerifiedAt     *time.Time `json:"verified_at,omitempty"`
}

// Filter narrows staff listings. Search matches name, email, payment number,
// transaction id, or exact id.
type Filter struct {
	SegmentID string
	Verified  *bool
	Search    string
}

// DashboardStats backs the staff landing page.
type DashboardStats struct {
	Total    int64 `json:"total_registrations"`
	Verified int64 `json:"verified_registrations"`
	Segments int64 `json:"total_segments"`
}

// CountRow is one bucket of a group-by aggregate.
type CountRow struct {
	Key   string `json:"key"`
	Count int64  `json:"count"`
}

// Analytics bundles the aggregate views: registrations per day, per category,
// per segment, and per CA referral code.
type Analytics struct {
	Daily     []CountRow `json:"daily"`
	Category  []CountRow `json:"category"`
	Segment   []CountRow `json:"segment"`
	CAReferral []CountRow `json:"ca_ref"`
}

var paymentNumberRe = regexp.MustCompile(`^01[3-9]\d{8}$`)

// ValidPaymentNumber reports whether s is a Bangladeshi mobile number in the
// form the payment provider accepts.
func ValidPaymentNumber(s string) bool {
	return paymentNumberRe.MatchString(s)
}
