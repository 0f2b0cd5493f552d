// Package scheduler implements the ClockAndRoundScheduler spec.md §4.7
// names: the driver that decides when a market's MatchingEngine runs a
// round, on whichever of three triggers fires first — fixed cadence, pool
// fullness, or an explicit external trigger.
//
// Grounded in the teacher's pkg/consensus/pacemaker.go: a Clock-driven wait
// loop (here polling rather than a single timer, since this scheduler also
// watches pool fullness) built on pkg/util.Clock so tests can inject a fake
// clock instead of sleeping real time.
package scheduler

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/phantompool/phantompool/pkg/core/matching"
	"github.com/phantompool/phantompool/pkg/core/orderpool"
	"github.com/phantompool/phantompool/pkg/core/round"
	"github.com/phantompool/phantompool/pkg/util"
)

// Config bounds one market's scheduling policy, per spec.md §6's
// Configuration section.
type Config struct {
	// RoundInterval is the fixed cadence at which a round runs even if the
	// pool never fills.
	RoundInterval time.Duration
	// MinInterRound is the floor pool-fullness preemption may never
	// shorten the gap between rounds below, per SPEC_FULL.md §12's
	// resolution of the cadence-vs-fullness open question.
	MinInterRound time.Duration
	// HighWaterMark triggers an early round once either side's pending
	// order count reaches it.
	HighWaterMark int
	// PollInterval is how often the scheduler checks pool fullness between
	// cadence ticks. Defaults to a tenth of RoundInterval.
	PollInterval time.Duration
}

// Scheduler drives one market's round cadence. One Scheduler exists per
// registered market, paired one-to-one with its matching.Engine.
type Scheduler struct {
	cfg    Config
	engine *matching.Engine
	pool   *orderpool.Pool
	clock  util.Clock

	mu          sync.Mutex
	lastRoundAt time.Time
	triggerCh   chan struct{}

	onResult func(*round.Result, *round.AbortedEvent, error)
}

// New constructs a Scheduler for one market. onResult, if non-nil, is
// called after every RunRound attempt that actually ran (skipped attempts
// from a round already in progress don't call it), so a caller can wire
// round results into settlement or metrics without the scheduler depending
// on either.
func New(cfg Config, engine *matching.Engine, pool *orderpool.Pool, clock util.Clock, onResult func(*round.Result, *round.AbortedEvent, error)) *Scheduler {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = cfg.RoundInterval / 10
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 100 * time.Millisecond
	}
	return &Scheduler{
		cfg:       cfg,
		engine:    engine,
		pool:      pool,
		clock:     clock,
		triggerCh: make(chan struct{}, 1),
		onResult:  onResult,
	}
}

// Trigger requests an out-of-cadence round, per spec.md §4.7's explicit
// trigger(market) path. Non-blocking: a trigger already pending is not
// queued twice.
func (s *Scheduler) Trigger() {
	select {
	case s.triggerCh <- struct{}{}:
	default:
	}
}

// NextTickIn reports how long until the fixed cadence fires next, the
// projection SPEC_FULL.md §7.2 adds for `round_status`.
func (s *Scheduler) NextTickIn() time.Duration {
	s.mu.Lock()
	last := s.lastRoundAt
	s.mu.Unlock()
	if last.IsZero() {
		return 0
	}
	elapsed := s.clock.Now().Sub(last)
	remaining := s.cfg.RoundInterval - elapsed
	if remaining < 0 {
		return 0
	}
	return remaining
}

// Run blocks, polling for cadence, fullness, or explicit triggers, and
// invoking one round each time a trigger fires. It returns when ctx is
// cancelled.
func (s *Scheduler) Run(ctx context.Context) error {
	s.mu.Lock()
	s.lastRoundAt = s.clock.Now()
	s.mu.Unlock()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-s.triggerCh:
			s.runIfDue(ctx, true)
		case <-s.clock.After(s.cfg.PollInterval):
			s.runIfDue(ctx, false)
		}
	}
}

// runIfDue decides whether a round should run now. explicitTrigger bypasses
// the cadence/fullness check but never the MinInterRound floor, so an
// explicit trigger storm can't starve the executors.
func (s *Scheduler) runIfDue(ctx context.Context, explicitTrigger bool) {
	s.mu.Lock()
	elapsed := s.clock.Now().Sub(s.lastRoundAt)
	// RoundInterval <= 0 disables the fixed cadence (spec.md §6's
	// round_interval_ms: "0 disables periodic matching"), leaving only
	// fullness and explicit triggers to fire a round.
	due := s.cfg.RoundInterval > 0 && elapsed >= s.cfg.RoundInterval
	if !due && elapsed >= s.cfg.MinInterRound {
		due = explicitTrigger || s.poolIsFull()
	}
	s.mu.Unlock()
	if !due {
		return
	}

	result, aborted, err := s.engine.RunRound(ctx)
	if errors.Is(err, matching.ErrRoundInProgress) {
		return
	}

	s.mu.Lock()
	s.lastRoundAt = s.clock.Now()
	s.mu.Unlock()

	if s.onResult != nil {
		s.onResult(result, aborted, err)
	}
}

func (s *Scheduler) poolIsFull() bool {
	if s.cfg.HighWaterMark <= 0 {
		return false
	}
	return s.pool.Buys.Len() >= s.cfg.HighWaterMark || s.pool.Sells.Len() >= s.cfg.HighWaterMark
}
