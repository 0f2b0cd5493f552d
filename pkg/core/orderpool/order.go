// Package orderpool implements the OrderPool spec.md §4.6 describes: the
// mutable per-market, per-side state of pending encrypted orders, their
// homomorphically-aggregated ciphertext, and the accumulating VRF seed.
//
// Generalized from the teacher's pkg/app/core/orderbook/orderbook.go (the
// per-book sync.RWMutex, FIFO-per-key ordering) and
// pkg/app/core/mempool/mempool.go (rejection-kind classification before
// admission), away from a continuous price-time-priority book onto a batch
// pool that exists only to be frozen into a RoundSnapshot.
package orderpool

import (
	"encoding/binary"
	"fmt"

	"github.com/phantompool/phantompool/pkg/crypto/bulletproof"
	"github.com/phantompool/phantompool/pkg/crypto/elgamal"
)

// Side is the direction of an order.
type Side int

const (
	Buy Side = iota
	Sell
)

func (s Side) String() string {
	if s == Buy {
		return "buy"
	}
	return "sell"
}

// Order is one pending encrypted order, per spec.md §3.
type Order struct {
	ID                  string
	Owner               string
	Market              string
	Side                Side
	EncryptedAmount     elgamal.Ciphertext
	EncryptedLimitPrice elgamal.Ciphertext
	TickIndex           uint64
	SolvencyProof       bulletproof.BulletProof
	Signature           []byte
	SubmitTime          int64
	Nonce               uint64
}

// SigningMessage reconstructs the canonical byte sequence a submission's
// signature binds: (owner, market, side, commitment, nonce, submit_time)
// per spec.md §3. Changing any of these fields after signing makes the
// recomputed message, and therefore the signature check, fail — Testable
// Property 10.
func (o *Order) SigningMessage() []byte {
	var buf []byte
	buf = append(buf, []byte(o.Owner)...)
	buf = append(buf, []byte(o.Market)...)
	buf = append(buf, byte(o.Side))
	buf = append(buf, o.SolvencyProof.V.Serialize()...)
	var nonce [8]byte
	binary.BigEndian.PutUint64(nonce[:], o.Nonce)
	buf = append(buf, nonce[:]...)
	var submitTime [8]byte
	binary.BigEndian.PutUint64(submitTime[:], uint64(o.SubmitTime))
	buf = append(buf, submitTime[:]...)
	return buf
}

// commitmentBytes is the order's commitment (its solvency proof's V) that
// feeds the pool's running VRF seed: hash(seed || order.commitment) per
// spec.md §4.6.
func (o *Order) commitmentBytes() []byte {
	return o.SolvencyProof.V.Serialize()
}

// RejectionKind enumerates spec.md §4.6's named rejection reasons.
type RejectionKind int

const (
	_ RejectionKind = iota
	InvalidSignature
	SolvencyFailed
	DuplicateNonce
	MarketClosed
	AmountOutOfRange
	PoolFull
)

func (k RejectionKind) String() string {
	switch k {
	case InvalidSignature:
		return "invalid_signature"
	case SolvencyFailed:
		return "solvency_failed"
	case DuplicateNonce:
		return "duplicate_nonce"
	case MarketClosed:
		return "market_closed"
	case AmountOutOfRange:
		return "amount_out_of_range"
	case PoolFull:
		return "pool_full"
	default:
		return "unknown"
	}
}

// RejectedError carries the rejection kind back to the submitting caller,
// per spec.md §7's InputRejection class: reported synchronously, never
// counted as a system fault.
type RejectedError struct {
	Kind RejectionKind
}

func (e *RejectedError) Error() string {
	return fmt.Sprintf("orderpool: rejected: %s", e.Kind)
}

func reject(kind RejectionKind) error { return &RejectedError{Kind: kind} }
