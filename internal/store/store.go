// Package store persists per-request compression savings.
//
// DESIGN: Every compressed request produces one Record. Records are
// append-only; Totals aggregates them for /stats and startup reporting.
//
//   - MemoryStore: bounded in-memory ledger with a retention window
//   - SQLiteStore: durable ledger in a single SQLite file (sqlite.go)
//
// Records hold counts only, never prompt text.
package store

import (
	"context"
	"sync"
	"time"
)

// Default retention values for MemoryStore.
const (
	DefaultRetention  = 24 * time.Hour
	DefaultMaxRecords = 10000
)

// Record is the savings ledger entry for one request.
type Record struct {
	RequestID    string    `json:"request_id"`
	Timestamp    time.Time `json:"timestamp"`
	Model        string    `json:"model,omitempty"`
	Fragments    int       `json:"fragments"`
	TokensBefore int       `json:"tokens_before"`
	TokensAfter  int       `json:"tokens_after"`
}

// Saved returns the tokens removed by compression.
func (r Record) Saved() int { return r.TokensBefore - r.TokensAfter }

// Totals aggregates records.
type Totals struct {
	Requests     int `json:"requests"`
	Fragments    int `json:"fragments"`
	TokensBefore int `json:"tokens_before"`
	TokensAfter  int `json:"tokens_after"`
}

// Saved returns the tokens removed across all records.
func (t Totals) Saved() int { return t.TokensBefore - t.TokensAfter }

// SavedPercent returns the share of tokens removed, 0 when nothing was counted.
func (t Totals) SavedPercent() float64 {
	if t.TokensBefore <= 0 {
		return 0
	}
	return float64(t.Saved()) / float64(t.TokensBefore) * 100
}

func (t *Totals) add(r Record) {
	t.Requests++
	t.Fragments += r.Fragments
	t.TokensBefore += r.TokensBefore
	t.TokensAfter += r.TokensAfter
}

// Store defines the interface for the savings ledger.
type Store interface {
	// Record appends a ledger entry.
	Record(ctx context.Context, r Record) error

	// Totals aggregates every retained entry.
	Totals(ctx context.Context) (Totals, error)

	// Recent returns up to limit entries, newest first.
	Recent(ctx context.Context, limit int) ([]Record, error)

	// Close releases resources.
	Close() error
}

// MemoryStore is an in-memory Store. Entries older than the retention
// window are dropped by a background cleanup, and at most maxRecords are kept.
type MemoryStore struct {
	records    []Record
	mu         sync.RWMutex
	retention  time.Duration
	maxRecords int
	stopChan   chan struct{}
	stopped    bool
}

// NewMemoryStore creates a new in-memory store with default limits.
func NewMemoryStore() *MemoryStore {
	return NewMemoryStoreWithRetention(DefaultRetention, DefaultMaxRecords)
}

// NewMemoryStoreWithRetention creates a store with explicit limits.
func NewMemoryStoreWithRetention(retention time.Duration, maxRecords int) *MemoryStore {
	if maxRecords < 1 {
		maxRecords = DefaultMaxRecords
	}
	s := &MemoryStore{
		retention:  retention,
		maxRecords: maxRecords,
		stopChan:   make(chan struct{}),
	}

	go s.cleanup()

	return s
}

// Record appends r, evicting the oldest entry when full.
func (s *MemoryStore) Record(_ context.Context, r Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.stopped {
		return nil
	}
	if r.Timestamp.IsZero() {
		r.Timestamp = time.Now()
	}
	if len(s.records) >= s.maxRecords {
		s.records = s.records[1:]
	}
	s.records = append(s.records, r)
	return nil
}

// Totals aggregates retained entries.
func (s *MemoryStore) Totals(_ context.Context) (Totals, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var t Totals
	cutoff := s.cutoff()
	for _, r := range s.records {
		if r.Timestamp.Before(cutoff) {
			continue
		}
		t.add(r)
	}
	return t, nil
}

// Recent returns up to limit entries, newest first.
func (s *MemoryStore) Recent(_ context.Context, limit int) ([]Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	limit = max(limit, 0)
	out := make([]Record, 0, min(limit, len(s.records)))
	for i := len(s.records) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, s.records[i])
	}
	return out, nil
}

// Close stops the cleanup goroutine and clears data.
func (s *MemoryStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.stopped {
		s.stopped = true
		close(s.stopChan)
		s.records = nil
	}
	return nil
}

// cutoff returns the oldest timestamp still retained (called with lock held).
func (s *MemoryStore) cutoff() time.Time {
	if s.retention <= 0 {
		return time.Time{}
	}
	return time.Now().Add(-s.retention)
}

// cleanup periodically removes expired entries.
func (s *MemoryStore) cleanup() {
	ticker := time.NewTicker(5 * time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-s.stopChan:
			return
		case <-ticker.C:
			s.mu.Lock()
			if !s.stopped {
				cutoff := s.cutoff()
				kept := s.records[:0]
				for _, r := range s.records {
					if !r.Timestamp.Before(cutoff) {
						kept = append(kept, r)
					}
				}
				s.records = kept
			}
			s.mu.Unlock()
		}
	}
}

// Ensure MemoryStore implements Store
var _ Store = (*MemoryStore)(nil)
