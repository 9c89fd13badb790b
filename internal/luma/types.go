package luma

import (
	"errors"
	"fmt"
	"time"
)

var (
	// ErrAuthRejected means the platform refused the account credentials.
	// Retrying with the same password cannot succeed.
	ErrAuthRejected = errors.New("authentication rejected")

	// ErrUnauthorized means the session cookie is expired or revoked.
	ErrUnauthorized = errors.New("session unauthorized")

	// ErrGuestNotFound means no registration matches the proxy key.
	ErrGuestNotFound = errors.New("guest not found")
)

// APIError is a terminal platform response outside the sentinel cases.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("platform returned status %d", e.Status)
	}
	return fmt.Sprintf("platform returned status %d: %s", e.Status, e.Message)
}

// Session is the result of a successful password sign-in. Token is the
// response cookies joined into a single Cookie header value; ExpiresAt
// is the earliest cookie expiry, nil when the platform did not say.
type Session struct {
	Token     string
	ExpiresAt *time.Time
}

// GuestRecord is the registration the platform holds for a proxy key.
// Only the fields the gate acts on are decoded; everything else in the
// envelope is ignored.
type GuestRecord struct {
	APIID           string  `json:"api_id"`
	Name            string  `json:"name"`
	Email           string  `json:"email"`
	ApprovalStatus  string  `json:"approval_status"`
	LastCheckedInAt *string `json:"last_checked_in_at"`
	RegisteredAt    *string `json:"registered_at"`
	EventTicket     *Ticket `json:"event_ticket"`
}

type Ticket struct {
	APIID string `json:"api_id"`
	Name  string `json:"name"`
}

const ApprovalStatusApproved = "approved"

// Approved reports whether the registration admits the guest.
func (g *GuestRecord) Approved() bool {
	return g.ApprovalStatus == ApprovalStatusApproved
}

// CheckedIn reports whether the platform already holds a check-in
// timestamp for this guest.
func (g *GuestRecord) CheckedIn() bool {
	return g.LastCheckedInAt != nil && *g.LastCheckedInAt != ""
}

// TicketName returns the ticket tier when the platform included one.
func (g *GuestRecord) TicketName() string {
	if g.EventTicket == nil {
		return ""
	}
	return g.EventTicket.Name
}

type guestEnvelope struct {
	Guest *GuestRecord `json:"guest"`
}

type apiMessage struct {
	Message string `json:"message"`
}

type signInRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type guestQuery struct {
	EventAPIID string `url:"event_api_id"`
	ProxyKey   string `url:"proxy_key"`
}
