// Package matching implements the MatchingEngine spec.md §4.7 describes:
// the per-market round state machine that freezes an OrderPool snapshot,
// shuffles it under a VRF, clears a uniform auction price, pairs buys
// against sells, and emits a MatchingResult.
//
// Grounded in the teacher's pkg/consensus/engine.go (one linear driver
// function walking fixed stages under a single mutex, each stage logged
// before/after) and pkg/consensus/pacemaker.go (context-based cancellation
// threaded through every external call).
package matching

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"go.uber.org/zap"

	"github.com/phantompool/phantompool/pkg/core/executor"
	"github.com/phantompool/phantompool/pkg/core/market"
	"github.com/phantompool/phantompool/pkg/core/orderpool"
	"github.com/phantompool/phantompool/pkg/core/round"
	"github.com/phantompool/phantompool/pkg/crypto/elgamal"
	"github.com/phantompool/phantompool/pkg/crypto/vrf"
	"github.com/phantompool/phantompool/pkg/util"
)

// ErrRoundInProgress is returned by RunRound/Trigger when the market's
// engine is mid-round; the scheduler is expected to skip this tick and try
// again next cadence.
var ErrRoundInProgress = fmt.Errorf("matching: round already in progress")

// Engine drives one market's round state machine. One Engine exists per
// registered market, matching the teacher's one-driver-goroutine-per-
// validator shape generalized to one-driver-goroutine-per-market
// (SPEC_FULL.md §6).
type Engine struct {
	mu sync.Mutex

	symbol string
	params market.Params
	pool   *orderpool.Pool
	exec   *executor.Coordinator
	vrfKey vrf.KeyPair
	clock  util.Clock
	logger *zap.SugaredLogger
	workers *workpool

	roundID uint64
	phase   Phase
}

func NewEngine(symbol string, params market.Params, pool *orderpool.Pool, exec *executor.Coordinator, vrfKey vrf.KeyPair, clock util.Clock, logger *zap.SugaredLogger, workerPoolSize int) *Engine {
	return &Engine{
		symbol: symbol,
		params: params,
		pool:   pool,
		exec:   exec,
		vrfKey: vrfKey,
		clock:  clock,
		logger: logger,
		workers: newWorkpool(workerPoolSize),
		phase:  Collecting,
	}
}

// Phase reports the engine's current state, the projection
// SPEC_FULL.md §7.2 adds for `round_status`.
func (e *Engine) Phase() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.phase.String()
}

// RoundID reports the last round number assigned (0 until the first
// non-empty round starts; a RunRound call that finds both sides of the pool
// empty takes no number).
func (e *Engine) RoundID() uint64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.roundID
}

func (e *Engine) setPhase(p Phase) {
	e.mu.Lock()
	e.phase = p
	e.mu.Unlock()
	if e.logger != nil {
		e.logger.Debugw("phase", "market", e.symbol, "phase", p.String())
	}
}

// RunRound executes exactly one pass of the round state machine, per
// spec.md §4.7's numbered algorithm. It returns either a completed Result,
// an AbortedEvent (a TransientFailure or InvariantViolation that leaves
// every order back in the pool), or an error if the engine was already
// mid-round. When both sides of the pool are empty it runs no round and
// returns nil for all three.
func (e *Engine) RunRound(ctx context.Context) (*round.Result, *round.AbortedEvent, error) {
	e.mu.Lock()
	if e.phase != Collecting && e.phase != Idle {
		e.mu.Unlock()
		return nil, nil, ErrRoundInProgress
	}
	roundID := e.roundID + 1
	e.mu.Unlock()

	// Step 1: freeze.
	e.setPhase(Freezing)
	buySnap, buyOrders := e.pool.Buys.Snapshot()
	sellSnap, sellOrders := e.pool.Sells.Snapshot()
	if len(buyOrders) == 0 && len(sellOrders) == 0 {
		e.setPhase(Collecting)
		return nil, nil, nil
	}
	e.mu.Lock()
	e.roundID = roundID
	e.mu.Unlock()

	abort := func(reason round.AbortReason) (*round.Result, *round.AbortedEvent, error) {
		if err := e.pool.Buys.Replay(buyOrders); err != nil && e.logger != nil {
			e.logger.Errorw("replay_failed", "market", e.symbol, "side", "buy", "err", err)
		}
		if err := e.pool.Sells.Replay(sellOrders); err != nil && e.logger != nil {
			e.logger.Errorw("replay_failed", "market", e.symbol, "side", "sell", "err", err)
		}
		e.setPhase(Collecting)
		return nil, &round.AbortedEvent{RoundID: roundID, Market: e.symbol, Reason: reason}, nil
	}

	// Step 2: shuffle.
	e.setPhase(Aggregating)
	gamma, proof, err := e.shuffleRound(roundID, buySnap, sellSnap, &buyOrders, &sellOrders)
	if err != nil {
		// A VRF proof that fails to self-verify indicates a bug in this
		// node's own key material rather than a transient executor fault,
		// per spec.md §4.7. The round still aborts and returns orders to
		// the pool like any other failure; InvalidVRFProof distinguishes
		// the reason for operators inspecting aborted-round logs.
		return abort(round.InvalidVRFProof)
	}

	// Step 3: decrypt aggregates.
	e.setPhase(Decrypting)
	totalBuy, totalSell, transcript, err := e.decryptAggregates(ctx, buySnap, sellSnap)
	if err != nil {
		switch Classify(err) {
		case InvariantViolation:
			return abort(round.DiscreteLogOutOfRange)
		default:
			return abort(round.QuorumNotReached)
		}
	}

	// Step 4: clearing price.
	e.setPhase(Pricing)
	matchedVolume := min64(totalBuy, totalSell)
	if matchedVolume == 0 {
		result := &round.Result{RoundID: roundID, Market: e.symbol, VRFGamma: gamma, VRFProofC: proof.C, VRFProofS: proof.S, DecryptionLog: transcript}
		if err := e.pool.Buys.Replay(buyOrders); err != nil {
			return nil, nil, err
		}
		if err := e.pool.Sells.Replay(sellOrders); err != nil {
			return nil, nil, err
		}
		e.setPhase(Collecting)
		return result, nil, nil
	}
	clearingPrice, err := e.clearingPrice(ctx, buyOrders, sellOrders)
	if err != nil {
		switch Classify(err) {
		case InvariantViolation:
			return abort(round.DiscreteLogOutOfRange)
		default:
			return abort(round.QuorumNotReached)
		}
	}

	// Step 5: pair.
	e.setPhase(Pairing)
	pairs, unmatchedBuys, unmatchedSells, err := e.pairOrders(ctx, buyOrders, sellOrders, clearingPrice)
	if err != nil {
		switch Classify(err) {
		case InvariantViolation:
			return abort(round.DiscreteLogOutOfRange)
		default:
			return abort(round.QuorumNotReached)
		}
	}

	// Step 6: emit.
	e.setPhase(Emitting)
	sort.Slice(pairs, func(i, j int) bool {
		if pairs[i].BuyID != pairs[j].BuyID {
			return pairs[i].BuyID < pairs[j].BuyID
		}
		return pairs[i].SellID < pairs[j].SellID
	})
	var totalMatched uint64
	for _, p := range pairs {
		totalMatched += p.Amount
	}

	if err := e.pool.Buys.Replay(unmatchedBuys); err != nil {
		return nil, nil, fmt.Errorf("matching: replay unmatched buys: %w", err)
	}
	if err := e.pool.Sells.Replay(unmatchedSells); err != nil {
		return nil, nil, fmt.Errorf("matching: replay unmatched sells: %w", err)
	}

	result := &round.Result{
		RoundID:            roundID,
		Market:             e.symbol,
		ClearingPrice:       clearingPrice,
		TotalMatchedVolume: totalMatched,
		Pairs:              pairs,
		VRFGamma:           gamma,
		VRFProofC:          proof.C,
		VRFProofS:          proof.S,
		DecryptionLog:      transcript,
	}
	e.setPhase(Collecting)
	return result, nil, nil
}

// decryptBatch fans each ciphertext's threshold decryption out onto the
// engine's bounded compute pool, per SPEC_FULL.md §8: a round's pricing and
// pairing stages can need dozens of tick-bucket or per-order decryptions,
// and running them one at a time (as executor.Coordinator.BatchDecrypt
// does) leaves that concurrency on the table.
func (e *Engine) decryptBatch(ctx context.Context, cts []elgamal.Ciphertext) ([]uint64, error) {
	out := make([]uint64, len(cts))
	errs := make([]error, len(cts))
	for i, ct := range cts {
		i, ct := i, ct
		e.workers.Go(func() {
			v, err := e.exec.Decrypt(ctx, ct)
			out[i] = v
			errs[i] = err
		})
	}
	e.workers.Wait()
	for i, err := range errs {
		if err != nil {
			return nil, fmt.Errorf("decrypt[%d]: %w", i, err)
		}
	}
	return out, nil
}

func min64(a, b uint64) uint64 {
	if a < b {
		return a
	}
	return b
}
