package luma

import (
	"context"
	"errors"
	"testing"
)

type mockGuestAPI struct {
	calls  int
	tokens []string
	errs   []error // per-call result; nil means return guest
	guest  *GuestRecord
}

func (m *mockGuestAPI) GetGuest(ctx context.Context, token, eventID, proxyKey string) (*GuestRecord, error) {
	idx := m.calls
	m.calls++
	m.tokens = append(m.tokens, token)
	if idx < len(m.errs) && m.errs[idx] != nil {
		return nil, m.errs[idx]
	}
	return m.guest, nil
}

type mockSessions struct {
	tokens      []string
	next        int
	invalidated int
	err         error
}

func (m *mockSessions) SessionToken(ctx context.Context) (string, error) {
	if m.err != nil {
		return "", m.err
	}
	if m.next >= len(m.tokens) {
		return m.tokens[len(m.tokens)-1], nil
	}
	token := m.tokens[m.next]
	m.next++
	return token, nil
}

func (m *mockSessions) Invalidate() {
	m.invalidated++
}

func TestLookupGuestHappyPath(t *testing.T) {
	api := &mockGuestAPI{guest: &GuestRecord{Name: "Ada", ApprovalStatus: "approved"}}
	sessions := &mockSessions{tokens: []string{"fresh"}}
	svc := NewGuestService(api, sessions)

	guest, err := svc.LookupGuest(context.Background(), "evt-1", "g-1")
	if err != nil {
		t.Fatalf("lookup failed: %v", err)
	}
	if guest.Name != "Ada" {
		t.Errorf("unexpected guest %+v", guest)
	}
	if api.calls != 1 {
		t.Errorf("expected 1 api call, got %d", api.calls)
	}
	if sessions.invalidated != 0 {
		t.Errorf("expected no invalidation, got %d", sessions.invalidated)
	}
}

func TestLookupGuestReauthenticatesOnce(t *testing.T) {
	api := &mockGuestAPI{
		guest: &GuestRecord{Name: "Ada"},
		errs:  []error{ErrUnauthorized, nil},
	}
	sessions := &mockSessions{tokens: []string{"stale", "fresh"}}
	svc := NewGuestService(api, sessions)

	guest, err := svc.LookupGuest(context.Background(), "evt-1", "g-1")
	if err != nil {
		t.Fatalf("lookup failed: %v", err)
	}
	if guest == nil || guest.Name != "Ada" {
		t.Fatalf("unexpected guest %+v", guest)
	}
	if api.calls != 2 {
		t.Errorf("expected 2 api calls, got %d", api.calls)
	}
	if sessions.invalidated != 1 {
		t.Errorf("expected exactly 1 invalidation, got %d", sessions.invalidated)
	}
	if api.tokens[0] != "stale" || api.tokens[1] != "fresh" {
		t.Errorf("expected stale then fresh token, got %v", api.tokens)
	}
}

func TestLookupGuestSecondRejectionFails(t *testing.T) {
	api := &mockGuestAPI{errs: []error{ErrUnauthorized, ErrUnauthorized}}
	sessions := &mockSessions{tokens: []string{"stale", "fresh"}}
	svc := NewGuestService(api, sessions)

	_, err := svc.LookupGuest(context.Background(), "evt-1", "g-1")
	if !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized, got %v", err)
	}
	if api.calls != 2 {
		t.Errorf("expected exactly 2 api calls, got %d", api.calls)
	}
	if sessions.invalidated != 1 {
		t.Errorf("expected exactly 1 invalidation, got %d", sessions.invalidated)
	}
}

func TestLookupGuestNotFoundNoReauth(t *testing.T) {
	api := &mockGuestAPI{errs: []error{ErrGuestNotFound}}
	sessions := &mockSessions{tokens: []string{"fresh"}}
	svc := NewGuestService(api, sessions)

	_, err := svc.LookupGuest(context.Background(), "evt-1", "g-1")
	if !errors.Is(err, ErrGuestNotFound) {
		t.Fatalf("expected ErrGuestNotFound, got %v", err)
	}
	if api.calls != 1 {
		t.Errorf("expected 1 api call, got %d", api.calls)
	}
	if sessions.invalidated != 0 {
		t.Errorf("expected no invalidation, got %d", sessions.invalidated)
	}
}

func TestLookupGuestSessionErrorSkipsLookup(t *testing.T) {
	api := &mockGuestAPI{}
	sessions := &mockSessions{err: ErrAuthRejected}
	svc := NewGuestService(api, sessions)

	_, err := svc.LookupGuest(context.Background(), "evt-1", "g-1")
	if !errors.Is(err, ErrAuthRejected) {
		t.Fatalf("expected ErrAuthRejected, got %v", err)
	}
	if api.calls != 0 {
		t.Errorf("expected no api calls, got %d", api.calls)
	}
}
