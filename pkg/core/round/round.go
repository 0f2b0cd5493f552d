// Package round holds the plain value types that flow between OrderPool,
// MatchingEngine, and ExecutorCoordinator: RoundSnapshot, MatchingResult,
// and the RoundAborted event. Factored out of orderpool/matching to avoid a
// cyclic import; shaped after the teacher's pkg/consensus/types.go plain
// value Block/Certificate pattern (immutable structs passed by value
// between pipeline stages, no owned behavior).
package round

import (
	"github.com/phantompool/phantompool/pkg/crypto/curve"
	"github.com/phantompool/phantompool/pkg/crypto/elgamal"
)

// SideSnapshot is one side (buy or sell) of a frozen OrderPool at the
// moment a round began.
type SideSnapshot struct {
	OrderIDs []string
	Sum      elgamal.Ciphertext
	HasSum   bool
}

// Snapshot is the frozen, immutable pair of sequences a MatchingEngine
// round operates on, per spec.md §3's RoundSnapshot.
type Snapshot struct {
	RoundID  uint64
	Market   string
	Buys     SideSnapshot
	Sells    SideSnapshot
	VRFGamma curve.Point
	VRFProof []byte
}

// Pair is one matched (buy, sell) with its cleared amount, in the same
// micro-units as the originating orders.
type Pair struct {
	BuyID  string
	SellID string
	Amount uint64
}

// DecryptionTranscriptEntry records one executor's contribution to a
// reconstructed plaintext, per spec.md §6's decryption_transcript field.
type DecryptionTranscriptEntry struct {
	ExecutorIndex int
	Proof         curve.DLEqProof
	Partial       curve.Point
}

// Result is the output of a completed round, per spec.md §3's
// MatchingResult.
type Result struct {
	RoundID            uint64
	Market             string
	ClearingPrice      uint64
	TotalMatchedVolume uint64
	Pairs              []Pair
	VRFGamma           curve.Point
	VRFProofC          curve.Scalar
	VRFProofS          curve.Scalar
	DecryptionLog      []DecryptionTranscriptEntry
}

// AbortReason enumerates why a round produced no result.
type AbortReason int

const (
	_ AbortReason = iota
	QuorumNotReached
	DiscreteLogOutOfRange
	InvalidVRFProof
	ExecutorTimeout
)

func (r AbortReason) String() string {
	switch r {
	case QuorumNotReached:
		return "quorum_not_reached"
	case DiscreteLogOutOfRange:
		return "discrete_log_out_of_range"
	case InvalidVRFProof:
		return "invalid_vrf_proof"
	case ExecutorTimeout:
		return "executor_timeout"
	default:
		return "unknown"
	}
}

// AbortedEvent is emitted per spec.md §4.7's failure policy: the round is
// abandoned, orders return to the pool, and no partial result is ever
// emitted.
type AbortedEvent struct {
	RoundID uint64
	Market  string
	Reason  AbortReason
}
