package gate

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/diagnosis/luma-gate/internal/dedup"
	"github.com/diagnosis/luma-gate/internal/luma"
	"github.com/diagnosis/luma-gate/internal/metrics"
	"github.com/diagnosis/luma-gate/internal/scan"
	"github.com/diagnosis/luma-gate/pkg/logger"
)

// GuestLookup resolves a scanned code to a registration.
type GuestLookup interface {
	LookupGuest(ctx context.Context, eventAPIID, proxyKey string) (*luma.GuestRecord, error)
}

// Orchestrator drains the scan queue and turns each scan into exactly
// one outcome: parse, dedup, look up the registration, classify.
type Orchestrator struct {
	guests GuestLookup
	dedup  *dedup.Deduplicator
	sink   Sink
	scans  <-chan scan.Raw
	prefix string
	gate   string
}

func NewOrchestrator(guests GuestLookup, d *dedup.Deduplicator, sink Sink, scans <-chan scan.Raw, prefix, gate string) *Orchestrator {
	return &Orchestrator{
		guests: guests,
		dedup:  d,
		sink:   sink,
		scans:  scans,
		prefix: prefix,
		gate:   gate,
	}
}

// Run processes scans until the queue closes or the context is
// cancelled. It returns a non-nil error only when the loop cannot
// continue: the context ended, or the platform rejected the account
// credentials and every further lookup would fail the same way.
func (o *Orchestrator) Run(ctx context.Context) error {
	logger.Info("Gate loop started", "gate", o.gate)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case item, ok := <-o.scans:
			if !ok {
				logger.Info("Scan queue closed, gate loop stopping", "gate", o.gate)
				return nil
			}

			out, err := o.process(ctx, item)
			if out != nil {
				if serr := o.sink.Emit(ctx, *out); serr != nil {
					logger.ErrorContext(ctx, "outcome sink failed", "scan_id", out.ScanID, "error", serr.Error())
				}
			}
			if err != nil {
				return err
			}
		}
	}
}

// process handles a single raw scan. A nil outcome with a nil error
// means the scan was suppressed as a duplicate.
func (o *Orchestrator) process(ctx context.Context, item scan.Raw) (*Outcome, error) {
	metrics.ScansTotal.WithLabelValues(item.Source).Inc()

	ev, perr := scan.Parse(item.Payload, o.prefix, item.Source)
	if perr != nil {
		return &Outcome{
			ScanID: uuid.New().String(),
			Status: StatusInvalidCode,
			Source: item.Source,
			Reason: perr.Error(),
			At:     time.Now().UTC(),
		}, nil
	}

	ctx = context.WithValue(ctx, logger.ScanIDKey, ev.ID)

	if !o.dedup.ShouldProcess(ctx, ev) {
		return nil, nil
	}

	guest, err := o.guests.LookupGuest(ctx, ev.EventAPIID, ev.ProxyKey)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return o.classifyError(ev, err)
	}
	return o.classifyGuest(ev, guest), nil
}

func (o *Orchestrator) classifyError(ev scan.Event, err error) (*Outcome, error) {
	out := o.newOutcome(ev)

	switch {
	case errors.Is(err, luma.ErrAuthRejected):
		out.Status = StatusFatalFailure
		out.Reason = "platform rejected the account credentials"
		return out, fmt.Errorf("gate cannot continue: %w", err)
	case errors.Is(err, luma.ErrGuestNotFound):
		out.Status = StatusNotFound
		out.Reason = "no registration for this code"
		return out, nil
	default:
		out.Status = StatusTransientFailure
		out.Reason = err.Error()
		return out, nil
	}
}

func (o *Orchestrator) classifyGuest(ev scan.Event, guest *luma.GuestRecord) *Outcome {
	out := o.newOutcome(ev)
	out.Guest = &GuestSummary{
		Name:   guest.Name,
		Email:  guest.Email,
		Ticket: guest.TicketName(),
	}

	switch {
	case !guest.Approved():
		out.Status = StatusInvalidCode
		out.Reason = fmt.Sprintf("registration not approved (status %q)", guest.ApprovalStatus)
	case guest.CheckedIn():
		out.Status = StatusAlreadyCheckedIn
		out.Reason = fmt.Sprintf("first checked in at %s", *guest.LastCheckedInAt)
	default:
		out.Status = StatusCheckedIn
	}
	return out
}

func (o *Orchestrator) newOutcome(ev scan.Event) *Outcome {
	return &Outcome{
		ScanID:       ev.ID,
		EventAPIID:   ev.EventAPIID,
		ProxyKeyHash: dedup.Key(ev.EventAPIID, ev.ProxyKey),
		Source:       ev.Source,
		At:           time.Now().UTC(),
	}
}
