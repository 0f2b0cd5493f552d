package orderpool

import (
	"crypto/sha256"
	"fmt"
	"sync"

	"github.com/google/uuid"

	"github.com/phantompool/phantompool/pkg/core/market"
	"github.com/phantompool/phantompool/pkg/core/round"
	"github.com/phantompool/phantompool/pkg/crypto/bulletproof"
	"github.com/phantompool/phantompool/pkg/crypto/curve"
	"github.com/phantompool/phantompool/pkg/crypto/elgamal"
)

// SignatureVerifier is the narrow slice of the out-of-core wallet
// collaborator OrderPool depends on (spec.md §6: `wallet.verify_signature`).
// Submit never imports pkg/wallet directly, matching spec.md §1's "wallet
// signature verification (an opaque interface)".
type SignatureVerifier interface {
	VerifyOwner(owner string, message []byte, signature []byte) bool
}

// SideBook is the per-market, per-side mutable pool spec.md §4.6 and §3
// describe: an ordered sequence of pending orders plus a cached
// homomorphic aggregate and a running VRF seed.
type SideBook struct {
	mu sync.RWMutex

	market market.Params
	side   Side
	pk     curve.Point

	orders    []*Order
	nonceSeen map[string]map[uint64]struct{}
	sum       elgamal.Ciphertext
	hasSum    bool
	vrfSeed   [32]byte
	status    market.Status
}

func newSideBook(params market.Params, side Side, pk curve.Point) *SideBook {
	return &SideBook{
		market:    params,
		side:      side,
		pk:        pk,
		nonceSeen: make(map[string]map[uint64]struct{}),
		status:    market.Active,
	}
}

// SetStatus updates the book's view of its market's status, checked by
// Submit. A pool is opened Active; the registry is the source of truth
// once an operator pauses or closes the market, and the caller (the
// admin status endpoint in pkg/api) is responsible for keeping the two in
// sync.
func (b *SideBook) SetStatus(status market.Status) {
	b.mu.Lock()
	b.status = status
	b.mu.Unlock()
}

// Submit implements spec.md §4.6's submit operation.
func (b *SideBook) Submit(order *Order, sigVerifier SignatureVerifier, bpParams bulletproof.Params) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if !sigVerifier.VerifyOwner(order.Owner, order.SigningMessage(), order.Signature) {
		return reject(InvalidSignature)
	}
	if !bulletproof.Verify(bpParams, order.SolvencyProof) {
		return reject(SolvencyFailed)
	}
	if nonces, ok := b.nonceSeen[order.Owner]; ok {
		if _, seen := nonces[order.Nonce]; seen {
			return reject(DuplicateNonce)
		}
	}
	if b.status != market.Active {
		return reject(MarketClosed)
	}
	if order.TickIndex*b.market.TickSize > b.market.MaxPrice {
		return reject(AmountOutOfRange)
	}
	if b.market.PoolCapacityPerSide > 0 && len(b.orders) >= b.market.PoolCapacityPerSide {
		return reject(PoolFull)
	}

	if order.ID == "" {
		order.ID = uuid.NewString()
	}
	b.orders = append(b.orders, order)
	if nonces, ok := b.nonceSeen[order.Owner]; ok {
		nonces[order.Nonce] = struct{}{}
	} else {
		b.nonceSeen[order.Owner] = map[uint64]struct{}{order.Nonce: {}}
	}

	if b.hasSum {
		b.sum = elgamal.HomomorphicAdd(b.sum, order.EncryptedAmount)
	} else {
		b.sum = order.EncryptedAmount
		b.hasSum = true
	}
	b.vrfSeed = accumulateSeed(b.vrfSeed, order.commitmentBytes())
	return nil
}

// accumulateSeed implements hash(seed || order.commitment) per spec.md
// §4.6's submit operation.
func accumulateSeed(seed [32]byte, commitment []byte) [32]byte {
	h := sha256.New()
	h.Write(seed[:])
	h.Write(commitment)
	var out [32]byte
	copy(out[:], h.Sum(nil))
	return out
}

// Cancel implements spec.md §4.6's cancel operation. It takes the same
// exclusive lock Snapshot takes, so a cancel racing a snapshot is strictly
// ordered: whichever acquires the lock first determines whether the order
// is still present, satisfying Testable Property 11's idempotent-cancel
// requirement without a separate "in-flight round" flag.
func (b *SideBook) Cancel(owner string, nonce uint64) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	for i, o := range b.orders {
		if o.Owner == owner && o.Nonce == nonce {
			b.orders = append(b.orders[:i], b.orders[i+1:]...)
			if nonces, ok := b.nonceSeen[owner]; ok {
				delete(nonces, nonce)
			}
			b.sum = elgamal.Ciphertext{}
			b.hasSum = false
			for _, rest := range b.orders {
				if b.hasSum {
					b.sum = elgamal.HomomorphicAdd(b.sum, rest.EncryptedAmount)
				} else {
					b.sum = rest.EncryptedAmount
					b.hasSum = true
				}
			}
			return true
		}
	}
	return false
}

// Snapshot atomically drains the book into a frozen round.SideSnapshot and
// resets the pool's caches, per spec.md §4.6's snapshot operation.
func (b *SideBook) Snapshot() (round.SideSnapshot, []*Order) {
	b.mu.Lock()
	defer b.mu.Unlock()

	drained := b.orders
	ids := make([]string, len(drained))
	for i, o := range drained {
		ids[i] = o.ID
	}
	snap := round.SideSnapshot{OrderIDs: ids, Sum: b.sum, HasSum: b.hasSum}

	b.orders = nil
	b.nonceSeen = make(map[string]map[uint64]struct{})
	b.sum = elgamal.Ciphertext{}
	b.hasSum = false
	b.vrfSeed = [32]byte{}
	return snap, drained
}

// PublicKey returns the market's ElGamal public key, used by MatchingEngine
// to re-encrypt the leftover remainder of a partially-filled order before
// replaying it (spec.md §4.7 step 5's pro-rata pairing). Immutable after
// construction, so no lock is needed.
func (b *SideBook) PublicKey() curve.Point {
	return b.pk
}

// VRFSeed returns the current accumulated seed without mutating the book.
// MatchingEngine does not call it: its vrf_input is built from the round
// id, the market and the snapshot's order IDs.
func (b *SideBook) VRFSeed() [32]byte {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.vrfSeed
}

// Replay re-inserts orders a round left unmatched, rerandomizing their
// ciphertexts first (spec.md §4.2's rerandomize, applied per §7 of
// SPEC_FULL.md's supplemented features so unmatched orders don't leak which
// round they survived via unchanged ciphertext bytes). A rerandomization
// failure is a fault in the configured market caps, not in the order, so it
// aborts the whole replay batch rather than silently dropping the order.
func (b *SideBook) Replay(orders []*Order) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	for _, o := range orders {
		rerandAmount, err := elgamal.Rerandomize(b.pk, o.EncryptedAmount, b.market.MaxAmount)
		if err != nil {
			return fmt.Errorf("orderpool: replay %s: rerandomize amount: %w", o.ID, err)
		}
		rerandPrice, err := elgamal.Rerandomize(b.pk, o.EncryptedLimitPrice, b.market.MaxPrice)
		if err != nil {
			return fmt.Errorf("orderpool: replay %s: rerandomize limit price: %w", o.ID, err)
		}
		o.EncryptedAmount = rerandAmount
		o.EncryptedLimitPrice = rerandPrice
		b.orders = append(b.orders, o)
		if nonces, ok := b.nonceSeen[o.Owner]; ok {
			nonces[o.Nonce] = struct{}{}
		} else {
			b.nonceSeen[o.Owner] = map[uint64]struct{}{o.Nonce: {}}
		}
		if b.hasSum {
			b.sum = elgamal.HomomorphicAdd(b.sum, o.EncryptedAmount)
		} else {
			b.sum = o.EncryptedAmount
			b.hasSum = true
		}
		b.vrfSeed = accumulateSeed(b.vrfSeed, o.commitmentBytes())
	}
	return nil
}

// Len reports the number of pending orders, used by the scheduler's
// pool-fullness preemption trigger (spec.md §4.7).
func (b *SideBook) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.orders)
}

// Pool bundles both sides of one market.
type Pool struct {
	Buys  *SideBook
	Sells *SideBook
}

// SetStatus propagates a market.Registry status change to both sides of
// the pool, so Submit starts rejecting MarketClosed the moment an operator
// pauses or closes the market.
func (p *Pool) SetStatus(status market.Status) {
	p.Buys.SetStatus(status)
	p.Sells.SetStatus(status)
}

// Manager owns one Pool per registered market symbol.
type Manager struct {
	mu    sync.RWMutex
	pools map[string]*Pool
}

func NewManager() *Manager {
	return &Manager{pools: make(map[string]*Pool)}
}

func (m *Manager) Open(params market.Params, pk curve.Point) *Pool {
	m.mu.Lock()
	defer m.mu.Unlock()
	pool := &Pool{
		Buys:  newSideBook(params, Buy, pk),
		Sells: newSideBook(params, Sell, pk),
	}
	m.pools[params.Symbol] = pool
	return pool
}

func (m *Manager) Get(symbol string) (*Pool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	p, ok := m.pools[symbol]
	if !ok {
		return nil, fmt.Errorf("orderpool: unknown market %q", symbol)
	}
	return p, nil
}
