package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/diagnosis/luma-gate/pkg/logger"
)

type Publisher interface {
	Publish(ctx context.Context, subject string, data interface{}) error
	Close() error
}

type NATSEventBus struct {
	conn *nats.Conn
}

func NewNATSEventBus(url string) (*NATSEventBus, error) {
	conn, err := nats.Connect(url)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}

	return &NATSEventBus{conn: conn}, nil
}

func (n *NATSEventBus) Publish(ctx context.Context, subject string, data interface{}) error {
	payload, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("failed to marshal event data: %w", err)
	}

	logger.DebugContext(ctx, "Publishing event", "subject", subject, "data", string(payload))

	return n.conn.Publish(subject, payload)
}

func (n *NATSEventBus) Close() error {
	n.conn.Close()
	return nil
}

// Check-in outcome subjects, one per status. The unlock relay binds to
// CheckinCheckedIn; dashboards typically subscribe to gate.checkin.>.
const (
	CheckinCheckedIn        = "gate.checkin.checked_in"
	CheckinAlreadyCheckedIn = "gate.checkin.already_checked_in"
	CheckinNotFound         = "gate.checkin.not_found"
	CheckinInvalidCode      = "gate.checkin.invalid_code"
	CheckinTransientFailure = "gate.checkin.transient_failure"
	CheckinFatalFailure     = "gate.checkin.fatal_failure"
)

// CheckinSubject maps an outcome status onto its subject.
func CheckinSubject(status string) string {
	return "gate.checkin." + status
}

// CheckinEvent is the payload published for every emitted outcome.
type CheckinEvent struct {
	ScanID     string    `json:"scan_id"`
	Gate       string    `json:"gate"`
	EventAPIID string    `json:"event_api_id"`
	Status     string    `json:"status"`
	GuestName  string    `json:"guest_name,omitempty"`
	GuestEmail string    `json:"guest_email,omitempty"`
	TicketName string    `json:"ticket_name,omitempty"`
	Reason     string    `json:"reason,omitempty"`
	Source     string    `json:"source"`
	At         time.Time `json:"at"`
}
