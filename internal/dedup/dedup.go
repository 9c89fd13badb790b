package dedup

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"sync"
	"time"

	"github.com/diagnosis/luma-gate/internal/metrics"
	"github.com/diagnosis/luma-gate/internal/scan"
	"github.com/diagnosis/luma-gate/pkg/logger"
)

// Store records first sightings of scan keys within a cooldown window.
type Store interface {
	// FirstSeen reports whether key is new within the window, recording
	// it when it is. A suppressed key keeps its original sighting time.
	FirstSeen(ctx context.Context, key string) (bool, error)
}

// Key derives a stable dedup key. Raw proxy keys never reach a shared
// backend.
func Key(eventID, proxyKey string) string {
	sum := sha256.Sum256([]byte(eventID + "\n" + proxyKey))
	return hex.EncodeToString(sum[:])
}

// MemoryStore is the default single-lane backend.
type MemoryStore struct {
	cooldown time.Duration

	mu        sync.Mutex
	seen      map[string]time.Time
	lastSweep time.Time
}

func NewMemoryStore(cooldown time.Duration) *MemoryStore {
	return &MemoryStore{
		cooldown:  cooldown,
		seen:      make(map[string]time.Time),
		lastSweep: time.Now(),
	}
}

func (s *MemoryStore) FirstSeen(ctx context.Context, key string) (bool, error) {
	now := time.Now()

	s.mu.Lock()
	defer s.mu.Unlock()

	s.sweep(now)

	if at, ok := s.seen[key]; ok && now.Sub(at) < s.cooldown {
		return false, nil
	}
	s.seen[key] = now
	return true, nil
}

// sweep drops entries past the cooldown, at most once per window.
func (s *MemoryStore) sweep(now time.Time) {
	if now.Sub(s.lastSweep) < s.cooldown {
		return
	}
	for key, at := range s.seen {
		if now.Sub(at) >= s.cooldown {
			delete(s.seen, key)
		}
	}
	s.lastSweep = now
}

// Deduplicator applies the cooldown policy to parsed scans.
type Deduplicator struct {
	store Store
}

func NewDeduplicator(store Store) *Deduplicator {
	return &Deduplicator{store: store}
}

// ShouldProcess reports whether the scan is the first sighting in its
// window. A backend error fails open and the scan is processed.
func (d *Deduplicator) ShouldProcess(ctx context.Context, ev scan.Event) bool {
	first, err := d.store.FirstSeen(ctx, Key(ev.EventAPIID, ev.ProxyKey))
	if err != nil {
		logger.WarnContext(ctx, "dedup store unavailable, processing scan", "error", err.Error())
		return true
	}
	if !first {
		metrics.DuplicatesSuppressedTotal.Inc()
		logger.DebugContext(ctx, "duplicate scan suppressed", "event_api_id", ev.EventAPIID)
	}
	return first
}
