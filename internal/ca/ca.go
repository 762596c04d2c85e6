// Package ca handles campus ambassador applications: public intake, staff
// review, and referral code assignment on approval.
package ca

import (
	"errors"
	"time"
)

var (
	ErrNotFound      = errors.New("ca: application not found")
	ErrInvalidInput  = errors.New("ca: invalid input")
	ErrInvalidStatus = errors.New("ca: invalid status")
)

// Status of an application. New applications start pending; staff move them
// to approved or rejected, and may move them back.
type Status string

const (
	StatusPending  Status = "pending"
	StatusApproved Status = "approved"
	StatusRejected Status = "rejected"
)

func ParseStatus(s string) (Status, error) {
	switch Status(s) {
	case StatusPending, StatusApproved, StatusRejected:
		return Status(s), nil
	default:
		return "", ErrInvalidStatus
	}
}

// Application is one campus ambassador candidacy. Code is assigned when the
// application is approved and doubles as the referral code participants cite.
type Application struct {
	ID              string     `json:"id"`
	Code            string     `json:"ca_code,omitempty"`
	FullName        string     `json:"full_name"`
	Email           string     `json:"email"`
	Institution     string     `json:"institution"`
	ClassYear       string     `json:"class_year"`
	Phone           string     `json:"phone"`
	Motivation      string     `json:"motivation"`
	ProfilePicture  string     `json:"profile_picture,omitempty"`
	Status          Status     `json:"status"`
	SubjectID       string     `json:"subject_id,omitempty"`
	IPAddress       string     `json:"ip_address,omitempty"`
	AppliedAt       time.Time  `json:"applied_at"`
	StatusUpdatedAt *time.Time `json:"status_updated_at,omitempty"`
}

// Filter narrows staff listings. Search matches name, email, phone,
// institution, code, or exact id.
type Filter struct {
	Status Status
	Search string
}
