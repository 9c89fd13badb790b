package gate

import (
	"time"
)

// Status classifies what a processed scan meant at the door.
type Status string

const (
	StatusCheckedIn        Status = "checked_in"
	StatusAlreadyCheckedIn Status = "already_checked_in"
	StatusNotFound         Status = "not_found"
	StatusInvalidCode      Status = "invalid_code"
	StatusTransientFailure Status = "transient_failure"
	StatusFatalFailure     Status = "fatal_failure"
)

// GuestSummary is what the gate retains about a resolved guest.
type GuestSummary struct {
	Name   string `json:"name,omitempty"`
	Email  string `json:"email,omitempty"`
	Ticket string `json:"ticket,omitempty"`
}

// Outcome is the single record emitted per processed scan. Suppressed
// duplicates never produce one.
type Outcome struct {
	ScanID       string        `json:"scan_id"`
	Status       Status        `json:"status"`
	EventAPIID   string        `json:"event_api_id,omitempty"`
	ProxyKeyHash string        `json:"-"`
	Source       string        `json:"source"`
	Guest        *GuestSummary `json:"guest,omitempty"`
	Reason       string        `json:"reason,omitempty"`
	At           time.Time     `json:"at"`
}
