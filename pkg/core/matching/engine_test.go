package matching

import (
	"bytes"
	"context"
	"encoding/gob"
	"fmt"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/phantompool/phantompool/pkg/core/executor"
	"github.com/phantompool/phantompool/pkg/core/market"
	"github.com/phantompool/phantompool/pkg/core/orderpool"
	"github.com/phantompool/phantompool/pkg/core/round"
	"github.com/phantompool/phantompool/pkg/crypto/bulletproof"
	"github.com/phantompool/phantompool/pkg/crypto/curve"
	"github.com/phantompool/phantompool/pkg/crypto/elgamal"
	"github.com/phantompool/phantompool/pkg/crypto/shamir"
	"github.com/phantompool/phantompool/pkg/crypto/tss"
	"github.com/phantompool/phantompool/pkg/crypto/vrf"
	"github.com/phantompool/phantompool/pkg/transport"
	"github.com/phantompool/phantompool/pkg/util"
)

// inprocExecutorWire and the wire types below are what the loopback
// executor handlers registered by buildFixtureWithOffline decode and
// encode. Those handlers give end-to-end round tests a live 3-of-5
// ExecutorCoordinator over a LoopbackTransport, in the teacher's
// DummySigner test-double spirit: a real cryptographic quorum, just not
// one running in separate processes.
type inprocExecutorWire struct {
	C1, C2 []byte
}

type inprocPartialWire struct {
	Index                       int
	D, ProofA1, ProofA2         []byte
	ProofC, ProofS              []byte
}

type inprocCommitWire struct {
	Commitment []byte
}

type inprocSigWire struct {
	Index     int
	Signature []byte
}

func gobEncode(v any) []byte {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(v); err != nil {
		panic(err)
	}
	return buf.Bytes()
}

func gobDecode(b []byte, v any) error {
	return gob.NewDecoder(bytes.NewReader(b)).Decode(v)
}

type fixture struct {
	elgPK  curve.Point
	exec   *executor.Coordinator
	pool   *orderpool.Pool
	params market.Params
	vrfKey vrf.KeyPair
	engine *Engine
}

func buildFixture(t *testing.T) *fixture {
	t.Helper()
	return buildFixtureWithOffline(t, nil)
}

// buildFixtureWithOffline mirrors buildFixture but leaves any index present
// in offlineIndexes unregistered on the loopback transport, the same
// shape spec.md §8's S4/S5 executor-fault scenarios exercise.
func buildFixtureWithOffline(t *testing.T, offlineIndexes map[int]bool) *fixture {
	t.Helper()
	kp, err := elgamal.KeyGen()
	if err != nil {
		t.Fatalf("elgamal keygen: %v", err)
	}
	const n, threshold = 5, 3
	shares, err := shamir.Share(kp.SK, threshold, n)
	if err != nil {
		t.Fatalf("shamir share: %v", err)
	}

	lt := transport.NewLoopbackTransport()
	descs := make([]executor.Descriptor, n)
	for i := 0; i < n; i++ {
		idx := i + 1
		share := shares[i]
		seed := make([]byte, 32)
		seed[0] = byte('a' + i)
		signer, err := tss.NewSignerFromSeed(seed)
		if err != nil {
			t.Fatalf("tss signer: %v", err)
		}
		endpoint := fmt.Sprintf("executor-%d", idx)
		descs[i] = executor.Descriptor{
			Index:        idx,
			PublicShare:  curve.MulGen(share.Value),
			SignerPubKey: signer.PublicKey(),
			Endpoint:     endpoint,
		}
		if offlineIndexes[idx] {
			continue
		}
		skShare := share.Value
		lt.Register(endpoint, func(ctx context.Context, req transport.Request) (transport.Response, error) {
			switch req.Op {
			case "decrypt":
				var wire inprocExecutorWire
				if err := gobDecode(req.Payload, &wire); err != nil {
					return transport.Response{Err: err.Error()}, nil
				}
				c1, err := curve.DeserializePoint(wire.C1)
				if err != nil {
					return transport.Response{Err: err.Error()}, nil
				}
				pd, err := elgamal.PartialDecrypt(idx, skShare, curve.MulGen(skShare), c1)
				if err != nil {
					return transport.Response{Err: err.Error()}, nil
				}
				return transport.Response{Payload: gobEncode(inprocPartialWire{
					Index:   pd.Index,
					D:       pd.D.Serialize(),
					ProofA1: pd.Proof.A1.Serialize(),
					ProofA2: pd.Proof.A2.Serialize(),
					ProofC:  pd.Proof.C.Serialize(),
					ProofS:  pd.Proof.S.Serialize(),
				})}, nil
			case "sign":
				var wire inprocCommitWire
				if err := gobDecode(req.Payload, &wire); err != nil {
					return transport.Response{Err: err.Error()}, nil
				}
				share, err := signer.SignShare(wire.Commitment)
				if err != nil {
					return transport.Response{Err: err.Error()}, nil
				}
				return transport.Response{Payload: gobEncode(inprocSigWire{Index: idx, Signature: share})}, nil
			default:
				return transport.Response{Err: "unknown op"}, nil
			}
		})
	}

	coord := executor.NewCoordinator(descs, executor.Config{
		Threshold:      threshold,
		SoftTimeout:    50 * time.Millisecond,
		HardTimeout:    500 * time.Millisecond,
		MaxRoundVolume: 1 << 20,
	}, lt, util.RealClock{})

	params := market.Params{
		Symbol:              "BASE/QUOTE",
		MaxAmount:           1 << 40,
		MaxPrice:            1_000_000,
		TickSize:            10,
		PoolCapacityPerSide: 100,
	}
	pool := orderpool.NewManager().Open(params, kp.PK)

	vrfKey, err := vrf.KeyGen()
	if err != nil {
		t.Fatalf("vrf keygen: %v", err)
	}

	engine := NewEngine(params.Symbol, params, pool, coord, vrfKey, util.RealClock{}, zap.NewNop().Sugar(), 4)

	return &fixture{elgPK: kp.PK, exec: coord, pool: pool, params: params, vrfKey: vrfKey, engine: engine}
}

func makeOrder(t *testing.T, f *fixture, side orderpool.Side, owner string, nonce, amount, limitPrice uint64) *orderpool.Order {
	t.Helper()
	bpParams, err := bulletproof.Setup(bulletproof.DefaultNBits)
	if err != nil {
		t.Fatalf("bulletproof setup: %v", err)
	}
	gamma, err := curve.RandomScalar()
	if err != nil {
		t.Fatalf("random gamma: %v", err)
	}
	proof, err := bulletproof.Prove(bpParams, amount, gamma)
	if err != nil {
		t.Fatalf("prove: %v", err)
	}
	encAmount, err := elgamal.Encrypt(f.elgPK, amount, f.params.MaxAmount)
	if err != nil {
		t.Fatalf("encrypt amount: %v", err)
	}
	encPrice, err := elgamal.Encrypt(f.elgPK, limitPrice, f.params.MaxAmount)
	if err != nil {
		t.Fatalf("encrypt price: %v", err)
	}
	return &orderpool.Order{
		Owner:               owner,
		Market:              f.params.Symbol,
		Side:                side,
		EncryptedAmount:     encAmount,
		EncryptedLimitPrice: encPrice,
		TickIndex:           f.params.TickIndex(limitPrice),
		SolvencyProof:       proof,
		Signature:           []byte("sig"),
		SubmitTime:          1,
		Nonce:               nonce,
	}
}

type alwaysVerify struct{}

func (alwaysVerify) VerifyOwner(owner string, message []byte, signature []byte) bool { return true }

func submit(t *testing.T, f *fixture, o *orderpool.Order) {
	t.Helper()
	bpParams, err := bulletproof.Setup(bulletproof.DefaultNBits)
	if err != nil {
		t.Fatalf("bulletproof setup: %v", err)
	}
	var book *orderpool.SideBook
	if o.Side == orderpool.Buy {
		book = f.pool.Buys
	} else {
		book = f.pool.Sells
	}
	if err := book.Submit(o, alwaysVerify{}, bpParams); err != nil {
		t.Fatalf("submit: %v", err)
	}
}

// TestSimpleMatch is spec.md §8's S1: a single buy and sell at the same
// limit and amount fully cross.
func TestSimpleMatch(t *testing.T) {
	f := buildFixture(t)
	submit(t, f, makeOrder(t, f, orderpool.Buy, "alice", 1, 10, 100))
	submit(t, f, makeOrder(t, f, orderpool.Sell, "bob", 1, 10, 100))

	result, aborted, err := f.engine.RunRound(context.Background())
	if err != nil {
		t.Fatalf("run round: %v", err)
	}
	if aborted != nil {
		t.Fatalf("unexpected abort: %+v", aborted)
	}
	if result == nil {
		t.Fatalf("expected a result")
	}
	if result.TotalMatchedVolume != 10 {
		t.Fatalf("matched volume = %d, want 10", result.TotalMatchedVolume)
	}
	if len(result.Pairs) != 1 || result.Pairs[0].Amount != 10 {
		t.Fatalf("pairs = %+v, want one pair of amount 10", result.Pairs)
	}
	if result.ClearingPrice != 100 {
		t.Fatalf("clearing price = %d, want 100", result.ClearingPrice)
	}
}

// TestVolumeAsymmetryReturnsRemainderToPool is spec.md §8's S2.
func TestVolumeAsymmetryReturnsRemainderToPool(t *testing.T) {
	f := buildFixture(t)
	submit(t, f, makeOrder(t, f, orderpool.Buy, "alice", 1, 15, 100))
	submit(t, f, makeOrder(t, f, orderpool.Sell, "bob", 1, 10, 100))

	result, aborted, err := f.engine.RunRound(context.Background())
	if err != nil {
		t.Fatalf("run round: %v", err)
	}
	if aborted != nil {
		t.Fatalf("unexpected abort: %+v", aborted)
	}
	if result.TotalMatchedVolume != 10 {
		t.Fatalf("matched volume = %d, want 10", result.TotalMatchedVolume)
	}
	if f.pool.Buys.Len() != 1 {
		t.Fatalf("expected the 5-unit buy remainder back in the pool, Len() = %d", f.pool.Buys.Len())
	}
}

// TestNoCrossReturnsBothSides is spec.md §8's S3.
func TestNoCrossReturnsBothSides(t *testing.T) {
	f := buildFixture(t)
	submit(t, f, makeOrder(t, f, orderpool.Buy, "alice", 1, 10, 90))
	submit(t, f, makeOrder(t, f, orderpool.Sell, "bob", 1, 10, 110))

	result, aborted, err := f.engine.RunRound(context.Background())
	if err != nil {
		t.Fatalf("run round: %v", err)
	}
	if aborted != nil {
		t.Fatalf("unexpected abort: %+v", aborted)
	}
	if len(result.Pairs) != 0 || result.TotalMatchedVolume != 0 {
		t.Fatalf("expected no matches, got %+v", result)
	}
	if f.pool.Buys.Len() != 1 || f.pool.Sells.Len() != 1 {
		t.Fatalf("expected both orders returned to the pool")
	}
}

// TestEmptyPoolIsANoOp covers the "nothing to do" short-circuit: an empty
// round emits neither a Result nor an AbortedEvent.
func TestEmptyPoolIsANoOp(t *testing.T) {
	f := buildFixture(t)
	result, aborted, err := f.engine.RunRound(context.Background())
	if err != nil || result != nil || aborted != nil {
		t.Fatalf("expected a silent no-op, got result=%v aborted=%v err=%v", result, aborted, err)
	}
	if f.engine.RoundID() != 0 {
		t.Fatalf("round id should not advance on an empty round")
	}
}

// TestRunRoundRejectsConcurrentInvocation covers round atomicity: a second
// RunRound call while one is in flight (simulated by advancing the phase
// directly) is rejected rather than interleaved.
func TestRunRoundRejectsConcurrentInvocation(t *testing.T) {
	f := buildFixture(t)
	f.engine.setPhase(Pricing)
	if _, _, err := f.engine.RunRound(context.Background()); err != ErrRoundInProgress {
		t.Fatalf("expected ErrRoundInProgress, got %v", err)
	}
}

// TestClearingInvariant checks the volume side of Testable Property 9: the
// paired amounts never sum past min(total buy, total sell) = 15. It does
// not compare each pair's limits against the clearing price.
func TestClearingInvariant(t *testing.T) {
	f := buildFixture(t)
	submit(t, f, makeOrder(t, f, orderpool.Buy, "alice", 1, 10, 120))
	submit(t, f, makeOrder(t, f, orderpool.Buy, "carol", 2, 5, 100))
	submit(t, f, makeOrder(t, f, orderpool.Sell, "bob", 1, 8, 90))
	submit(t, f, makeOrder(t, f, orderpool.Sell, "dave", 2, 7, 100))

	result, aborted, err := f.engine.RunRound(context.Background())
	if err != nil {
		t.Fatalf("run round: %v", err)
	}
	if aborted != nil {
		t.Fatalf("unexpected abort: %+v", aborted)
	}
	var matched uint64
	for _, p := range result.Pairs {
		matched += p.Amount
	}
	if matched > 15 {
		t.Fatalf("matched %d exceeds min(total_buy=15, total_sell=15)", matched)
	}
}

// TestExecutorFaultToleratesTwoOffline is spec.md §8's S4: with 2 of 5
// executors offline, the remaining 3 still meet the threshold and the round
// clears exactly as the all-online case would.
func TestExecutorFaultToleratesTwoOffline(t *testing.T) {
	f := buildFixtureWithOffline(t, map[int]bool{4: true, 5: true})
	submit(t, f, makeOrder(t, f, orderpool.Buy, "alice", 1, 10, 100))
	submit(t, f, makeOrder(t, f, orderpool.Sell, "bob", 1, 10, 100))

	result, aborted, err := f.engine.RunRound(context.Background())
	if err != nil {
		t.Fatalf("run round: %v", err)
	}
	if aborted != nil {
		t.Fatalf("unexpected abort with 3 of 5 executors online: %+v", aborted)
	}
	if len(result.Pairs) != 1 || result.Pairs[0].Amount != 10 {
		t.Fatalf("expected one pair of amount 10, got %+v", result.Pairs)
	}
	if result.ClearingPrice != 100 {
		t.Fatalf("clearing price = %d, want 100", result.ClearingPrice)
	}
}

// TestQuorumLostAbortsAndRetainsOrders is spec.md §8's S5: with 3 of 5
// executors offline, the round aborts with QuorumNotReached and both
// orders remain pending rather than partially matching.
func TestQuorumLostAbortsAndRetainsOrders(t *testing.T) {
	f := buildFixtureWithOffline(t, map[int]bool{3: true, 4: true, 5: true})
	submit(t, f, makeOrder(t, f, orderpool.Buy, "alice", 1, 10, 100))
	submit(t, f, makeOrder(t, f, orderpool.Sell, "bob", 1, 10, 100))

	result, aborted, err := f.engine.RunRound(context.Background())
	if err != nil {
		t.Fatalf("run round: %v", err)
	}
	if result != nil {
		t.Fatalf("expected no result on quorum loss, got %+v", result)
	}
	if aborted == nil || aborted.Reason != round.QuorumNotReached {
		t.Fatalf("expected QuorumNotReached abort, got %+v", aborted)
	}
	if f.pool.Buys.Len() != 1 || f.pool.Sells.Len() != 1 {
		t.Fatalf("expected both orders retained in pool, got buys=%d sells=%d", f.pool.Buys.Len(), f.pool.Sells.Len())
	}
}
