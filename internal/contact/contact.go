// Package contact stores messages submitted through the public contact form
// and the read/replied workflow staff use to triage them.
package contact

import (
	"errors"
	"time"
)

var (
	ErrNotFound      = errors.New("contact: message not found")
	ErrInvalidInput  = errors.New("contact: invalid input")
	ErrInvalidStatus = errors.New("contact: invalid status")
)

type Status string

const (
	StatusUnread  Status = "unread"
	StatusRead    Status = "read"
	StatusReplied Status = "replied"
)

func ParseStatus(s string) (Status, error) {
	switch Status(s) {
	case StatusUnread, StatusRead, StatusReplied:
		return Status(s), nil
	default:
		return "", ErrInvalidStatus
	}
}

// Message is one contact form submission.
type Message struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Institution string    `json:"institution"`
	Email       string    `json:"email"`
	Body        string    `json:"message"`
	Status      Status    `json:"status"`
	Archived    bool      `json:"archived"`
	IPAddress   string    `json:"ip_address,omitempty"`
	SubmittedAt time.Time `json:"submitted_at"`
}

// Filter narrows staff listings. Status empty means all statuses.
type Filter struct {
	Status   Status
	Archived bool
}

// Counts backs the inbox header.
type Counts struct {
	Unread int64 `json:"unread"`
	Total  int64 `json:"total"`
}

// StatusUpdate carries the partial update the triage endpoint accepts.
type StatusUpdate struct {
	Status   *Status
	Archived *bool
}
