package credstore

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/diagnosis/luma-gate/pkg/logger"
)

// Credential is the persisted operator session for the platform API.
// SessionToken is the joined cookie string and must never be logged.
type Credential struct {
	AccountEmail string     `json:"account_email"`
	SessionToken string     `json:"session_token"`
	IssuedAt     time.Time  `json:"issued_at"`
	ExpiresAt    *time.Time `json:"expires_at,omitempty"`
}

// Expired reports whether the credential is past its known expiry.
// A credential without a known expiry only lapses via invalidation.
func (c *Credential) Expired(now time.Time) bool {
	return c.ExpiresAt != nil && !now.Before(*c.ExpiresAt)
}

// Store persists a single credential as a JSON file so the gate does
// not have to log in on every restart.
type Store struct {
	path string
}

func NewStore(path string) *Store {
	return &Store{path: path}
}

// Load returns the stored credential, or nil when the file is missing,
// unreadable or corrupt. A corrupt store behaves like an absent one and
// forces a fresh login.
func (s *Store) Load() *Credential {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			logger.Debug("credential file unreadable, treating as absent", "path", s.path, "error", err.Error())
		}
		return nil
	}

	var cred Credential
	if err := json.Unmarshal(data, &cred); err != nil {
		logger.Debug("credential file corrupt, treating as absent", "path", s.path)
		return nil
	}
	if cred.SessionToken == "" {
		return nil
	}
	return &cred
}

// Save writes the credential atomically: temp file in the same
// directory, then rename over the target. A crash mid-write never
// leaves a truncated store behind.
func (s *Store) Save(cred *Credential) error {
	data, err := json.MarshalIndent(cred, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode credential: %w", err)
	}

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("failed to create credential directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".credentials-*")
	if err != nil {
		return fmt.Errorf("failed to create temp credential file: %w", err)
	}
	tmpName := tmp.Name()

	if err := tmp.Chmod(0o600); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("failed to set credential file mode: %w", err)
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("failed to write credential file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to close credential file: %w", err)
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to replace credential file: %w", err)
	}
	return nil
}

// Clear removes the stored credential. A missing file is not an error.
func (s *Store) Clear() error {
	if err := os.Remove(s.path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("failed to remove credential file: %w", err)
	}
	return nil
}
