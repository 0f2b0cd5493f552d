package scheduler

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/phantompool/phantompool/pkg/core/market"
	"github.com/phantompool/phantompool/pkg/core/matching"
	"github.com/phantompool/phantompool/pkg/core/orderpool"
	"github.com/phantompool/phantompool/pkg/core/round"
	"github.com/phantompool/phantompool/pkg/crypto/bulletproof"
	"github.com/phantompool/phantompool/pkg/crypto/curve"
	"github.com/phantompool/phantompool/pkg/crypto/elgamal"
	"github.com/phantompool/phantompool/pkg/crypto/vrf"
	"github.com/phantompool/phantompool/pkg/util"
)

// fakeClock is a manually-advanced util.Clock, the same test-double shape
// spec.md's teacher precedent (pkg/consensus/pacemaker.go) is built to
// accept instead of real time.After.
type fakeClock struct {
	mu      sync.Mutex
	now     time.Time
	waiters []chan time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Unix(0, 0)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) After(d time.Duration) <-chan time.Time {
	ch := make(chan time.Time, 1)
	c.mu.Lock()
	c.waiters = append(c.waiters, ch)
	c.mu.Unlock()
	return ch
}

// Advance moves time forward and fires every pending waiter, mirroring how
// a real timer would fire once its duration elapses.
func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	waiters := c.waiters
	c.waiters = nil
	now := c.now
	c.mu.Unlock()
	for _, w := range waiters {
		w <- now
	}
}

func newTestScheduler(t *testing.T, cfg Config) (*Scheduler, *fakeClock, *orderpool.Pool) {
	t.Helper()
	kp, err := elgamal.KeyGen()
	if err != nil {
		t.Fatalf("elgamal keygen: %v", err)
	}
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
	clock := newFakeClock()
	engine := matching.NewEngine(params.Symbol, params, pool, nil, vrfKey, clock, nil, 2)
	s := New(cfg, engine, pool, clock, nil)
	return s, clock, pool
}

func TestRunFiresOnCadence(t *testing.T) {
	var calls int
	var mu sync.Mutex
	cfg := Config{RoundInterval: time.Second, MinInterRound: 0, PollInterval: 100 * time.Millisecond}
	s, clock, _ := newTestScheduler(t, cfg)
	s.onResult = func(r *round.Result, a *round.AbortedEvent, err error) {
		mu.Lock()
		calls++
		mu.Unlock()
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go s.Run(ctx)

	for i := 0; i < 10; i++ {
		clock.Advance(100 * time.Millisecond)
		time.Sleep(time.Millisecond)
	}

	mu.Lock()
	defer mu.Unlock()
	if calls == 0 {
		t.Fatalf("expected at least one round to fire by cadence")
	}
}

func TestTriggerFiresImmediatelyPastMinInterRound(t *testing.T) {
	var fired bool
	var mu sync.Mutex
	cfg := Config{RoundInterval: time.Hour, MinInterRound: 0, PollInterval: 50 * time.Millisecond}
	s, _, _ := newTestScheduler(t, cfg)
	s.onResult = func(r *round.Result, a *round.AbortedEvent, err error) {
		mu.Lock()
		fired = true
		mu.Unlock()
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go s.Run(ctx)

	s.Trigger()
	time.Sleep(100 * time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	if !fired {
		t.Fatalf("expected an explicit trigger to fire a round")
	}
}

func TestZeroRoundIntervalDisablesCadenceButNotTriggers(t *testing.T) {
	var calls int
	var mu sync.Mutex
	cfg := Config{RoundInterval: 0, MinInterRound: 0, PollInterval: 10 * time.Millisecond}
	s, clock, _ := newTestScheduler(t, cfg)
	s.onResult = func(r *round.Result, a *round.AbortedEvent, err error) {
		mu.Lock()
		calls++
		mu.Unlock()
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go s.Run(ctx)

	for i := 0; i < 5; i++ {
		clock.Advance(10 * time.Millisecond)
		time.Sleep(time.Millisecond)
	}
	mu.Lock()
	unprompted := calls
	mu.Unlock()
	if unprompted != 0 {
		t.Fatalf("expected no rounds to fire on cadence alone with RoundInterval=0, got %d", unprompted)
	}

	s.Trigger()
	time.Sleep(50 * time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	if calls == 0 {
		t.Fatalf("expected an explicit trigger to still fire a round with RoundInterval=0")
	}
}

type allowAllVerifier struct{}

func (allowAllVerifier) VerifyOwner(owner string, message []byte, signature []byte) bool { return true }

func TestPoolFullnessReportsAtHighWaterMark(t *testing.T) {
	cfg := Config{RoundInterval: time.Hour, MinInterRound: 200 * time.Millisecond, HighWaterMark: 1, PollInterval: 10 * time.Millisecond}
	s, _, pool := newTestScheduler(t, cfg)

	if s.poolIsFull() {
		t.Fatalf("empty pool should not report full")
	}

	bpParams, err := bulletproof.Setup(bulletproof.DefaultNBits)
	if err != nil {
		t.Fatalf("bulletproof setup: %v", err)
	}
	gamma, err := curve.RandomScalar()
	if err != nil {
		t.Fatalf("random gamma: %v", err)
	}
	proof, err := bulletproof.Prove(bpParams, 1, gamma)
	if err != nil {
		t.Fatalf("prove: %v", err)
	}
	encAmount, err := elgamal.Encrypt(curve.MulGen(gamma), 1, 1<<40)
	if err != nil {
		t.Fatalf("encrypt: %v", err)
	}
	order := &orderpool.Order{
		Owner:               "alice",
		Market:              "BASE/QUOTE",
		Side:                orderpool.Buy,
		EncryptedAmount:     encAmount,
		EncryptedLimitPrice: encAmount,
		TickIndex:           5,
		SolvencyProof:       proof,
		Signature:           []byte("sig"),
		Nonce:               1,
	}
	if err := pool.Buys.Submit(order, allowAllVerifier{}, bpParams); err != nil {
		t.Fatalf("submit: %v", err)
	}

	if !s.poolIsFull() {
		t.Fatalf("expected pool to report full at high-water mark 1 after one order")
	}
}
