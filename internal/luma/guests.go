package luma

import (
	"context"
	"errors"

	"github.com/diagnosis/luma-gate/pkg/logger"
)

// SessionProvider supplies a valid session token and accepts
// invalidation when the platform rejects one.
type SessionProvider interface {
	SessionToken(ctx context.Context) (string, error)
	Invalidate()
}

// GuestAPI is the platform surface GuestService needs.
type GuestAPI interface {
	GetGuest(ctx context.Context, sessionToken, eventID, proxyKey string) (*GuestRecord, error)
}

// GuestService resolves guest registrations for scans, transparently
// re-authenticating when the held session has gone stale.
type GuestService struct {
	api      GuestAPI
	sessions SessionProvider
}

func NewGuestService(api GuestAPI, sessions SessionProvider) *GuestService {
	return &GuestService{api: api, sessions: sessions}
}

// LookupGuest obtains a session and performs the lookup. A rejected
// session triggers exactly one invalidate + re-login + retry of the
// call; a second rejection is returned as-is.
func (s *GuestService) LookupGuest(ctx context.Context, eventID, proxyKey string) (*GuestRecord, error) {
	token, err := s.sessions.SessionToken(ctx)
	if err != nil {
		return nil, err
	}

	guest, err := s.api.GetGuest(ctx, token, eventID, proxyKey)
	if !errors.Is(err, ErrUnauthorized) {
		return guest, err
	}

	logger.InfoContext(ctx, "session rejected by platform, re-authenticating")
	s.sessions.Invalidate()

	token, err = s.sessions.SessionToken(ctx)
	if err != nil {
		return nil, err
	}
	return s.api.GetGuest(ctx, token, eventID, proxyKey)
}
