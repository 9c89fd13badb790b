package gate

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/diagnosis/luma-gate/internal/dedup"
	"github.com/diagnosis/luma-gate/internal/luma"
	"github.com/diagnosis/luma-gate/internal/scan"
)

const testPrefix = "https://lu.ma/check-in/"

type fakeLookup struct {
	mu    sync.Mutex
	calls int
	fn    func(eventAPIID, proxyKey string) (*luma.GuestRecord, error)
}

func (f *fakeLookup) LookupGuest(ctx context.Context, eventAPIID, proxyKey string) (*luma.GuestRecord, error) {
	f.mu.Lock()
	f.calls++
	f.mu.Unlock()
	return f.fn(eventAPIID, proxyKey)
}

func (f *fakeLookup) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

type captureSink struct {
	mu   sync.Mutex
	outs []Outcome
}

func (s *captureSink) Emit(ctx context.Context, o Outcome) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.outs = append(s.outs, o)
	return nil
}

func (s *captureSink) outcomes() []Outcome {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Outcome(nil), s.outs...)
}

func approvedGuest(name string) *luma.GuestRecord {
	return &luma.GuestRecord{
		APIID:          "gst-1",
		Name:           name,
		Email:          "guest@example.com",
		ApprovalStatus: luma.ApprovalStatusApproved,
		EventTicket:    &luma.Ticket{APIID: "tkt-1", Name: "General Admission"},
	}
}

// runGate pushes the payloads through a fresh orchestrator and returns
// the emitted outcomes along with Run's error.
func runGate(t *testing.T, lookup GuestLookup, cooldown time.Duration, payloads ...string) ([]Outcome, error) {
	t.Helper()

	sink := &captureSink{}
	scans := make(chan scan.Raw, len(payloads))
	for _, p := range payloads {
		scans <- scan.Raw{Payload: p, Source: scan.SourceScanner}
	}
	close(scans)

	orch := NewOrchestrator(lookup, dedup.NewDeduplicator(dedup.NewMemoryStore(cooldown)), sink, scans, testPrefix, "gate-1")
	err := orch.Run(context.Background())
	return sink.outcomes(), err
}

func TestOrchestratorChecksInApprovedGuest(t *testing.T) {
	lookup := &fakeLookup{fn: func(eventAPIID, proxyKey string) (*luma.GuestRecord, error) {
		if eventAPIID != "evt-1" || proxyKey != "g-abc" {
			t.Errorf("unexpected lookup args: %s %s", eventAPIID, proxyKey)
		}
		return approvedGuest("Ada Lovelace"), nil
	}}

	outs, err := runGate(t, lookup, time.Minute, testPrefix+"evt-1?pk=g-abc")
	if err != nil {
		t.Fatalf("expected nil error, got %v", err)
	}
	if len(outs) != 1 {
		t.Fatalf("expected 1 outcome, got %d", len(outs))
	}

	out := outs[0]
	if out.Status != StatusCheckedIn {
		t.Errorf("expected status %s, got %s", StatusCheckedIn, out.Status)
	}
	if out.EventAPIID != "evt-1" {
		t.Errorf("expected event id evt-1, got %s", out.EventAPIID)
	}
	if out.Guest == nil || out.Guest.Name != "Ada Lovelace" {
		t.Errorf("expected guest summary for Ada Lovelace, got %+v", out.Guest)
	}
	if out.Guest.Ticket != "General Admission" {
		t.Errorf("expected ticket name, got %q", out.Guest.Ticket)
	}
	if out.ScanID == "" {
		t.Error("expected a scan id")
	}
	if out.ProxyKeyHash != dedup.Key("evt-1", "g-abc") {
		t.Error("expected proxy key hash to match the dedup key")
	}
}

func TestOrchestratorRejectsInvalidPayload(t *testing.T) {
	lookup := &fakeLookup{fn: func(_, _ string) (*luma.GuestRecord, error) {
		return approvedGuest("x"), nil
	}}

	outs, err := runGate(t, lookup, time.Minute, "not-a-qr-code")
	if err != nil {
		t.Fatalf("expected nil error, got %v", err)
	}
	if lookup.callCount() != 0 {
		t.Errorf("expected no lookup calls, got %d", lookup.callCount())
	}
	if len(outs) != 1 {
		t.Fatalf("expected 1 outcome, got %d", len(outs))
	}
	if outs[0].Status != StatusInvalidCode {
		t.Errorf("expected status %s, got %s", StatusInvalidCode, outs[0].Status)
	}
	if outs[0].Reason == "" {
		t.Error("expected a reason for the rejection")
	}
	if outs[0].ScanID == "" {
		t.Error("expected a scan id even for an unparsable payload")
	}
}

func TestOrchestratorSuppressesDuplicates(t *testing.T) {
	lookup := &fakeLookup{fn: func(_, _ string) (*luma.GuestRecord, error) {
		return approvedGuest("x"), nil
	}}

	outs, err := runGate(t, lookup, time.Minute,
		testPrefix+"evt-1?pk=g-abc",
		testPrefix+"evt-1?pk=g-abc",
		testPrefix+"evt-1?pk=g-other",
	)
	if err != nil {
		t.Fatalf("expected nil error, got %v", err)
	}
	if lookup.callCount() != 2 {
		t.Errorf("expected 2 lookup calls, got %d", lookup.callCount())
	}
	if len(outs) != 2 {
		t.Fatalf("expected 2 outcomes, got %d", len(outs))
	}
	if outs[0].ProxyKeyHash == outs[1].ProxyKeyHash {
		t.Error("expected distinct proxy key hashes for distinct guests")
	}
}

func TestOrchestratorReportsAlreadyCheckedIn(t *testing.T) {
	at := "2026-08-21T18:00:00Z"
	lookup := &fakeLookup{fn: func(_, _ string) (*luma.GuestRecord, error) {
		g := approvedGuest("Ada Lovelace")
		g.LastCheckedInAt = &at
		return g, nil
	}}

	outs, err := runGate(t, lookup, time.Minute, testPrefix+"evt-1?pk=g-abc")
	if err != nil {
		t.Fatalf("expected nil error, got %v", err)
	}
	if len(outs) != 1 {
		t.Fatalf("expected 1 outcome, got %d", len(outs))
	}
	if outs[0].Status != StatusAlreadyCheckedIn {
		t.Errorf("expected status %s, got %s", StatusAlreadyCheckedIn, outs[0].Status)
	}
	if !strings.Contains(outs[0].Reason, at) {
		t.Errorf("expected reason to carry the first check-in time, got %q", outs[0].Reason)
	}
}

func TestOrchestratorRejectsUnapprovedGuest(t *testing.T) {
	lookup := &fakeLookup{fn: func(_, _ string) (*luma.GuestRecord, error) {
		g := approvedGuest("Ada Lovelace")
		g.ApprovalStatus = "pending_approval"
		return g, nil
	}}

	outs, err := runGate(t, lookup, time.Minute, testPrefix+"evt-1?pk=g-abc")
	if err != nil {
		t.Fatalf("expected nil error, got %v", err)
	}
	if len(outs) != 1 {
		t.Fatalf("expected 1 outcome, got %d", len(outs))
	}
	if outs[0].Status != StatusInvalidCode {
		t.Errorf("expected status %s, got %s", StatusInvalidCode, outs[0].Status)
	}
	if !strings.Contains(outs[0].Reason, "pending_approval") {
		t.Errorf("expected reason to name the approval status, got %q", outs[0].Reason)
	}
}

func TestOrchestratorReportsUnknownGuest(t *testing.T) {
	lookup := &fakeLookup{fn: func(_, _ string) (*luma.GuestRecord, error) {
		return nil, luma.ErrGuestNotFound
	}}

	outs, err := runGate(t, lookup, time.Minute, testPrefix+"evt-1?pk=g-abc")
	if err != nil {
		t.Fatalf("expected nil error, got %v", err)
	}
	if len(outs) != 1 {
		t.Fatalf("expected 1 outcome, got %d", len(outs))
	}
	if outs[0].Status != StatusNotFound {
		t.Errorf("expected status %s, got %s", StatusNotFound, outs[0].Status)
	}
}

func TestOrchestratorContinuesAfterTransientFailure(t *testing.T) {
	lookup := &fakeLookup{}
	lookup.fn = func(_, _ string) (*luma.GuestRecord, error) {
		if lookup.callCount() == 1 {
			return nil, fmt.Errorf("get guest failed after 3 attempts: connection refused")
		}
		return approvedGuest("x"), nil
	}

	outs, err := runGate(t, lookup, time.Minute,
		testPrefix+"evt-1?pk=g-abc",
		testPrefix+"evt-1?pk=g-other",
	)
	if err != nil {
		t.Fatalf("expected nil error, got %v", err)
	}
	if len(outs) != 2 {
		t.Fatalf("expected 2 outcomes, got %d", len(outs))
	}
	if outs[0].Status != StatusTransientFailure {
		t.Errorf("expected status %s, got %s", StatusTransientFailure, outs[0].Status)
	}
	if outs[1].Status != StatusCheckedIn {
		t.Errorf("expected the loop to keep going, got %s", outs[1].Status)
	}
}

func TestOrchestratorTreatsTerminalAPIErrorAsTransient(t *testing.T) {
	lookup := &fakeLookup{fn: func(_, _ string) (*luma.GuestRecord, error) {
		return nil, &luma.APIError{Status: 400, Message: "missing event_api_id"}
	}}

	outs, err := runGate(t, lookup, time.Minute, testPrefix+"evt-1?pk=g-abc")
	if err != nil {
		t.Fatalf("expected nil error, got %v", err)
	}
	if len(outs) != 1 {
		t.Fatalf("expected 1 outcome, got %d", len(outs))
	}
	if outs[0].Status != StatusTransientFailure {
		t.Errorf("expected status %s, got %s", StatusTransientFailure, outs[0].Status)
	}
}

func TestOrchestratorHaltsOnRejectedCredentials(t *testing.T) {
	lookup := &fakeLookup{fn: func(_, _ string) (*luma.GuestRecord, error) {
		return nil, fmt.Errorf("failed to sign in as gate@example.com: %w", luma.ErrAuthRejected)
	}}

	outs, err := runGate(t, lookup, time.Minute,
		testPrefix+"evt-1?pk=g-abc",
		testPrefix+"evt-1?pk=g-other",
	)
	if !errors.Is(err, luma.ErrAuthRejected) {
		t.Fatalf("expected ErrAuthRejected, got %v", err)
	}
	if lookup.callCount() != 1 {
		t.Errorf("expected the loop to halt after the first lookup, got %d calls", lookup.callCount())
	}
	if len(outs) != 1 {
		t.Fatalf("expected 1 outcome, got %d", len(outs))
	}
	if outs[0].Status != StatusFatalFailure {
		t.Errorf("expected status %s, got %s", StatusFatalFailure, outs[0].Status)
	}
}

func TestOrchestratorPreservesScanOrder(t *testing.T) {
	lookup := &fakeLookup{fn: func(eventAPIID, _ string) (*luma.GuestRecord, error) {
		return approvedGuest(eventAPIID), nil
	}}

	outs, err := runGate(t, lookup, time.Minute,
		testPrefix+"evt-1?pk=g-a",
		testPrefix+"evt-2?pk=g-b",
		testPrefix+"evt-3?pk=g-c",
	)
	if err != nil {
		t.Fatalf("expected nil error, got %v", err)
	}
	if len(outs) != 3 {
		t.Fatalf("expected 3 outcomes, got %d", len(outs))
	}
	for i, want := range []string{"evt-1", "evt-2", "evt-3"} {
		if outs[i].EventAPIID != want {
			t.Errorf("outcome %d: expected %s, got %s", i, want, outs[i].EventAPIID)
		}
	}
}

func TestOrchestratorStopsOnCancel(t *testing.T) {
	lookup := &fakeLookup{fn: func(_, _ string) (*luma.GuestRecord, error) {
		return approvedGuest("x"), nil
	}}

	sink := &captureSink{}
	scans := make(chan scan.Raw)
	orch := NewOrchestrator(lookup, dedup.NewDeduplicator(dedup.NewMemoryStore(time.Minute)), sink, scans, testPrefix, "gate-1")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	done := make(chan error, 1)
	go func() { done <- orch.Run(ctx) }()

	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Errorf("expected context.Canceled, got %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("orchestrator did not stop after cancellation")
	}
}
