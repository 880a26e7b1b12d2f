// Package monitoring - savings.go tracks compression savings.
//
// DESIGN: SavingsTracker keeps process-lifetime counters in memory and
// appends one entry per compressed request to a store.Store ledger (in
// memory or SQLite). /stats reads both: the session view and the ledger.
package monitoring

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/compresr/lingua-gateway/internal/store"
)

// SavingsTracker accumulates compression savings.
type SavingsTracker struct {
	mu sync.RWMutex

	TotalRequests      int
	CompressedRequests int
	Fragments          int
	TokensBefore       int
	TokensAfter        int

	ledger store.Store
}

// SavingsReport is the computed savings summary.
type SavingsReport struct {
	TotalRequests       int     `json:"total_requests"`
	CompressedRequests  int     `json:"compressed_requests"`
	PassthroughRequests int     `json:"passthrough_requests"`
	Fragments           int     `json:"fragments"`
	TokensBefore        int     `json:"tokens_before"`
	TokensAfter         int     `json:"tokens_after"`
	TokensSaved         int     `json:"tokens_saved"`
	TokenSavedPct       float64 `json:"token_saved_pct"`

	Ledger *store.Totals `json:"ledger,omitempty"`
}

// NewSavingsTracker creates a tracker writing to ledger. A nil ledger
// defaults to an in-memory store.
func NewSavingsTracker(ledger store.Store) *SavingsTracker {
	if ledger == nil {
		ledger = store.NewMemoryStore()
	}
	return &SavingsTracker{ledger: ledger}
}

// RecordRequest accounts one request through the compression path.
// Requests that saved nothing only bump the request counter.
func (st *SavingsTracker) RecordRequest(ctx context.Context, requestID, model string, fragments, tokensBefore, tokensAfter int) {
	st.mu.Lock()
	st.TotalRequests++
	if tokensBefore > 0 {
		st.CompressedRequests++
		st.Fragments += fragments
		st.TokensBefore += tokensBefore
		st.TokensAfter += tokensAfter
	}
	st.mu.Unlock()

	if tokensBefore <= 0 {
		return
	}
	err := st.ledger.Record(ctx, store.Record{
		RequestID:    requestID,
		Timestamp:    time.Now(),
		Model:        model,
		Fragments:    fragments,
		TokensBefore: tokensBefore,
		TokensAfter:  tokensAfter,
	})
	if err != nil {
		log.Warn().Err(err).Str("request_id", requestID).Msg("savings: ledger write failed")
	}
}

// GetReport returns the session report plus ledger totals.
func (st *SavingsTracker) GetReport(ctx context.Context) SavingsReport {
	st.mu.RLock()
	report := SavingsReport{
		TotalRequests:       st.TotalRequests,
		CompressedRequests:  st.CompressedRequests,
		PassthroughRequests: st.TotalRequests - st.CompressedRequests,
		Fragments:           st.Fragments,
		TokensBefore:        st.TokensBefore,
		TokensAfter:         st.TokensAfter,
		TokensSaved:         st.TokensBefore - st.TokensAfter,
	}
	st.mu.RUnlock()

	if report.TokensBefore > 0 {
		report.TokenSavedPct = float64(report.TokensSaved) / float64(report.TokensBefore) * 100
	}

	if totals, err := st.ledger.Totals(ctx); err == nil {
		report.Ledger = &totals
	} else {
		log.Warn().Err(err).Msg("savings: ledger read failed")
	}
	return report
}

// Close closes the ledger.
func (st *SavingsTracker) Close() error {
	return st.ledger.Close()
}
