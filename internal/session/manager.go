package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/diagnosis/luma-gate/internal/credstore"
	"github.com/diagnosis/luma-gate/internal/luma"
	"github.com/diagnosis/luma-gate/internal/metrics"
	"github.com/diagnosis/luma-gate/internal/utils"
	"github.com/diagnosis/luma-gate/pkg/logger"
)

// State describes where the manager sits in the session lifecycle.
type State string

const (
	StateUnauthenticated State = "unauthenticated"
	StateAuthenticating  State = "authenticating"
	StateAuthenticated   State = "authenticated"
	StateExpired         State = "expired"
	StateInvalidated     State = "invalidated"
)

// Authenticator performs the password sign-in against the platform.
type Authenticator interface {
	SignIn(ctx context.Context, email, password string) (*luma.Session, error)
}

// Manager owns the platform session lifecycle: one held credential, at
// most one login in flight, persistence across restarts. Concurrent
// EnsureSession callers serialize on the login and share its result.
type Manager struct {
	auth     Authenticator
	store    *credstore.Store
	email    string
	password string

	mu    sync.Mutex
	cred  *credstore.Credential
	state atomic.Value // State, readable while a login is in flight
}

func NewManager(auth Authenticator, store *credstore.Store, email, password string) *Manager {
	m := &Manager{
		auth:     auth,
		store:    store,
		email:    utils.NormalizeEmail(email),
		password: password,
	}
	if cred := store.Load(); cred != nil {
		m.cred = cred
		m.setState(StateAuthenticated)
		logger.Info("loaded stored platform session", "account", cred.AccountEmail)
	} else {
		m.setState(StateUnauthenticated)
	}
	return m
}

// EnsureSession returns a valid credential, logging in when none is
// held, the held one expired, or it was invalidated.
func (m *Manager) EnsureSession(ctx context.Context) (credstore.Credential, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.cred != nil {
		if !m.cred.Expired(time.Now()) {
			m.setState(StateAuthenticated)
			return *m.cred, nil
		}
		m.setState(StateExpired)
		logger.Info("platform session expired, re-authenticating", "account", m.cred.AccountEmail)
		m.cred = nil
	}

	return m.login(ctx)
}

// login runs with m.mu held.
func (m *Manager) login(ctx context.Context) (credstore.Credential, error) {
	m.setState(StateAuthenticating)

	session, err := m.auth.SignIn(ctx, m.email, m.password)
	if err != nil {
		m.setState(StateUnauthenticated)
		if errors.Is(err, luma.ErrAuthRejected) {
			metrics.LoginsTotal.WithLabelValues("rejected").Inc()
			logger.Error("platform rejected account credentials", "account", m.email)
			return credstore.Credential{}, fmt.Errorf("failed to sign in as %s: %w", m.email, err)
		}
		metrics.LoginsTotal.WithLabelValues("error").Inc()
		return credstore.Credential{}, fmt.Errorf("failed to sign in: %w", err)
	}

	cred := &credstore.Credential{
		AccountEmail: m.email,
		SessionToken: session.Token,
		IssuedAt:     time.Now().UTC(),
		ExpiresAt:    session.ExpiresAt,
	}

	// The in-memory session stays usable even when persistence fails.
	if err := m.store.Save(cred); err != nil {
		logger.Error("failed to persist session credential", "error", err.Error())
	}

	m.cred = cred
	m.setState(StateAuthenticated)
	metrics.LoginsTotal.WithLabelValues("ok").Inc()
	logger.Info("signed in to platform", "account", m.email)
	return *cred, nil
}

// Invalidate discards the held credential so the next EnsureSession
// performs a fresh login.
func (m *Manager) Invalidate() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cred = nil
	m.setState(StateInvalidated)
}

// Reset clears the persisted credential and invalidates the session,
// forcing a fresh login on the next scan.
func (m *Manager) Reset() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cred = nil
	m.setState(StateInvalidated)
	if err := m.store.Clear(); err != nil {
		return fmt.Errorf("failed to clear stored credential: %w", err)
	}
	return nil
}

// SessionToken implements luma.SessionProvider.
func (m *Manager) SessionToken(ctx context.Context) (string, error) {
	cred, err := m.EnsureSession(ctx)
	if err != nil {
		return "", err
	}
	return cred.SessionToken, nil
}

func (m *Manager) State() State {
	return m.state.Load().(State)
}

// AccountEmail returns the configured operator account.
func (m *Manager) AccountEmail() string {
	return m.email
}

func (m *Manager) setState(s State) {
	m.state.Store(s)
}
