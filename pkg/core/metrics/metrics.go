// Package metrics implements the MetricsRegistry spec.md's external
// interfaces imply but never name a home for: per-market counters the API
// layer and operators read to answer `round_status`/`executor_health`-style
// questions without re-deriving them from logs.
//
// No metrics library appears anywhere in the retrieval pack (DESIGN.md
// records the justification); this is a thin typed wrapper over
// sync/atomic counters, the same "no hidden globals, one owned component"
// shape the rest of the core follows.
package metrics

import (
	"sync"
	"sync/atomic"

	"github.com/phantompool/phantompool/pkg/core/orderpool"
	"github.com/phantompool/phantompool/pkg/core/round"
)

// MarketCounters are the running totals for one market.
type MarketCounters struct {
	OrdersSubmitted    uint64
	OrdersRejected     uint64
	OrdersCancelled    uint64
	RoundsCompleted    uint64
	RoundsAborted      uint64
	TotalMatchedVolume uint64
	TotalPairs         uint64
}

type marketState struct {
	ordersSubmitted    atomic.Uint64
	ordersRejected     atomic.Uint64
	ordersCancelled    atomic.Uint64
	roundsCompleted    atomic.Uint64
	roundsAborted      atomic.Uint64
	totalMatchedVolume atomic.Uint64
	totalPairs         atomic.Uint64

	rejectionsByKind sync.Map // orderpool.RejectionKind -> *atomic.Uint64
	abortsByReason   sync.Map // round.AbortReason -> *atomic.Uint64
}

func newMarketState() *marketState { return &marketState{} }

// Registry tracks per-market counters, keyed by market symbol. A Registry
// is safe for concurrent use by every market's Engine/Scheduler/API
// handler goroutines.
type Registry struct {
	mu      sync.RWMutex
	markets map[string]*marketState
}

func NewRegistry() *Registry {
	return &Registry{markets: make(map[string]*marketState)}
}

func (r *Registry) state(market string) *marketState {
	r.mu.RLock()
	st, ok := r.markets[market]
	r.mu.RUnlock()
	if ok {
		return st
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if st, ok := r.markets[market]; ok {
		return st
	}
	st = newMarketState()
	r.markets[market] = st
	return st
}

// RecordSubmission increments the accepted-order counter for market.
func (r *Registry) RecordSubmission(market string) {
	r.state(market).ordersSubmitted.Add(1)
}

// RecordRejection increments both the aggregate and per-kind rejection
// counters for market.
func (r *Registry) RecordRejection(market string, kind orderpool.RejectionKind) {
	st := r.state(market)
	st.ordersRejected.Add(1)
	counterFor(&st.rejectionsByKind, kind).Add(1)
}

// RecordCancellation increments the cancelled-order counter for market.
func (r *Registry) RecordCancellation(market string) {
	r.state(market).ordersCancelled.Add(1)
}

// RecordResult folds a completed round's outcome into market's counters,
// the natural callback target for the onResult callback scheduler.New takes.
func (r *Registry) RecordResult(market string, result *round.Result, aborted *round.AbortedEvent) {
	st := r.state(market)
	switch {
	case aborted != nil:
		st.roundsAborted.Add(1)
		counterFor(&st.abortsByReason, aborted.Reason).Add(1)
	case result != nil:
		st.roundsCompleted.Add(1)
		st.totalMatchedVolume.Add(result.TotalMatchedVolume)
		st.totalPairs.Add(uint64(len(result.Pairs)))
	}
}

// Snapshot returns the current counters for market, zero-valued if the
// market has recorded nothing yet.
func (r *Registry) Snapshot(market string) MarketCounters {
	st := r.state(market)
	return MarketCounters{
		OrdersSubmitted:    st.ordersSubmitted.Load(),
		OrdersRejected:     st.ordersRejected.Load(),
		OrdersCancelled:    st.ordersCancelled.Load(),
		RoundsCompleted:    st.roundsCompleted.Load(),
		RoundsAborted:      st.roundsAborted.Load(),
		TotalMatchedVolume: st.totalMatchedVolume.Load(),
		TotalPairs:         st.totalPairs.Load(),
	}
}

// RejectionBreakdown reports per-RejectionKind counts for market.
func (r *Registry) RejectionBreakdown(market string) map[orderpool.RejectionKind]uint64 {
	st := r.state(market)
	out := make(map[orderpool.RejectionKind]uint64)
	st.rejectionsByKind.Range(func(k, v any) bool {
		out[k.(orderpool.RejectionKind)] = v.(*atomic.Uint64).Load()
		return true
	})
	return out
}

// AbortBreakdown reports per-AbortReason counts for market.
func (r *Registry) AbortBreakdown(market string) map[round.AbortReason]uint64 {
	st := r.state(market)
	out := make(map[round.AbortReason]uint64)
	st.abortsByReason.Range(func(k, v any) bool {
		out[k.(round.AbortReason)] = v.(*atomic.Uint64).Load()
		return true
	})
	return out
}

func counterFor[K comparable](m *sync.Map, key K) *atomic.Uint64 {
	v, _ := m.LoadOrStore(key, &atomic.Uint64{})
	return v.(*atomic.Uint64)
}
