package matching

import (
	"errors"

	"github.com/phantompool/phantompool/pkg/core/executor"
	"github.com/phantompool/phantompool/pkg/crypto/elgamal"
)

// Kind is the error taxonomy spec.md §7 names, collapsed into one switch so
// the engine's failure policy (§4.7) branches on a single enum instead of
// duplicating sentinel-error lists.
type Kind int

const (
	Unknown Kind = iota
	InputRejection
	TransientFailure
	IntegrityFailure
	InvariantViolation
)

func (k Kind) String() string {
	switch k {
	case InputRejection:
		return "input_rejection"
	case TransientFailure:
		return "transient_failure"
	case IntegrityFailure:
		return "integrity_failure"
	case InvariantViolation:
		return "invariant_violation"
	default:
		return "unknown"
	}
}

// Classify maps an error surfaced anywhere in a round back to its spec.md
// §7 taxonomy, driving the failure policy in RunRound: every failing kind
// aborts the round and returns orders to the pool; InvariantViolation
// aborts with reason DiscreteLogOutOfRange and every other kind with
// QuorumNotReached.
func Classify(err error) Kind {
	switch {
	case err == nil:
		return Unknown
	case errors.Is(err, executor.ErrQuorumNotReached):
		return TransientFailure
	case errors.Is(err, elgamal.ErrDiscreteLogOutOfRange):
		return InvariantViolation
	case errors.Is(err, elgamal.ErrInvalidPartialProof):
		return IntegrityFailure
	default:
		return Unknown
	}
}
