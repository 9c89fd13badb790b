package gate

import (
	"context"
	"fmt"
	"sync"

	"github.com/diagnosis/luma-gate/internal/metrics"
	"github.com/diagnosis/luma-gate/internal/repo/postgres"
	"github.com/diagnosis/luma-gate/pkg/events"
	"github.com/diagnosis/luma-gate/pkg/logger"
)

// Sink consumes emitted outcomes.
type Sink interface {
	Emit(ctx context.Context, o Outcome) error
}

// MultiSink fans out to each sink in order. A failing sink is logged
// and does not stop the rest.
type MultiSink []Sink

func (m MultiSink) Emit(ctx context.Context, o Outcome) error {
	for _, s := range m {
		if err := s.Emit(ctx, o); err != nil {
			logger.ErrorContext(ctx, "outcome sink failed", "status", string(o.Status), "error", err.Error())
		}
	}
	return nil
}

// LogSink writes one structured line per outcome.
type LogSink struct{}

func (LogSink) Emit(ctx context.Context, o Outcome) error {
	args := []any{
		"scan_id", o.ScanID,
		"status", string(o.Status),
		"source", o.Source,
	}
	if o.EventAPIID != "" {
		args = append(args, "event_api_id", o.EventAPIID)
	}
	if o.Guest != nil && o.Guest.Name != "" {
		args = append(args, "guest", o.Guest.Name)
	}
	if o.Reason != "" {
		args = append(args, "reason", o.Reason)
	}

	switch o.Status {
	case StatusTransientFailure, StatusFatalFailure:
		logger.ErrorContext(ctx, "check-in failed", args...)
	default:
		logger.InfoContext(ctx, "check-in outcome", args...)
	}
	return nil
}

// MetricsSink counts outcomes by status.
type MetricsSink struct{}

func (MetricsSink) Emit(ctx context.Context, o Outcome) error {
	metrics.OutcomesTotal.WithLabelValues(string(o.Status)).Inc()
	return nil
}

// BusSink publishes outcomes on the event bus; the unlock relay and
// dashboards subscribe there.
type BusSink struct {
	bus  events.Publisher
	gate string
}

func NewBusSink(bus events.Publisher, gate string) *BusSink {
	return &BusSink{bus: bus, gate: gate}
}

func (s *BusSink) Emit(ctx context.Context, o Outcome) error {
	ev := events.CheckinEvent{
		ScanID:     o.ScanID,
		Gate:       s.gate,
		EventAPIID: o.EventAPIID,
		Status:     string(o.Status),
		Reason:     o.Reason,
		Source:     o.Source,
		At:         o.At,
	}
	if o.Guest != nil {
		ev.GuestName = o.Guest.Name
		ev.GuestEmail = o.Guest.Email
		ev.TicketName = o.Guest.Ticket
	}

	if err := s.bus.Publish(ctx, events.CheckinSubject(string(o.Status)), ev); err != nil {
		return fmt.Errorf("failed to publish outcome: %w", err)
	}
	return nil
}

// AuditSink appends outcomes to the Postgres check-in log.
type AuditSink struct {
	repo postgres.CheckinRepo
	gate string
}

func NewAuditSink(repo postgres.CheckinRepo, gate string) *AuditSink {
	return &AuditSink{repo: repo, gate: gate}
}

func (s *AuditSink) Emit(ctx context.Context, o Outcome) error {
	rec := &postgres.CheckinRecord{
		ScanID:       o.ScanID,
		Gate:         s.gate,
		EventAPIID:   o.EventAPIID,
		ProxyKeyHash: o.ProxyKeyHash,
		Status:       string(o.Status),
		Reason:       o.Reason,
		Source:       o.Source,
		ScannedAt:    o.At,
	}
	if o.Guest != nil {
		rec.GuestName = o.Guest.Name
		rec.GuestEmail = o.Guest.Email
		rec.TicketName = o.Guest.Ticket
	}

	if err := s.repo.Record(ctx, rec); err != nil {
		return fmt.Errorf("failed to audit outcome: %w", err)
	}
	return nil
}

// RecentBuffer keeps the latest outcomes in memory for the status
// endpoint. It doubles as the check-in listing when no database is
// configured.
type RecentBuffer struct {
	mu   sync.Mutex
	max  int
	outs []Outcome
}

func NewRecentBuffer(max int) *RecentBuffer {
	return &RecentBuffer{max: max}
}

func (b *RecentBuffer) Emit(ctx context.Context, o Outcome) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.outs = append(b.outs, o)
	if len(b.outs) > b.max {
		b.outs = b.outs[len(b.outs)-b.max:]
	}
	return nil
}

// Snapshot returns the buffered outcomes, newest first.
func (b *RecentBuffer) Snapshot() []Outcome {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]Outcome, len(b.outs))
	for i, o := range b.outs {
		out[len(b.outs)-1-i] = o
	}
	return out
}
