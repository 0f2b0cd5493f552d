package elgamal

import (
	"encoding/base64"
	"errors"
	"sync"

	"github.com/phantompool/phantompool/pkg/crypto/curve"
)

// ErrDiscreteLogOutOfRange is returned when a point does not correspond to
// any value in [0, maxRoundVolume) — an InvariantViolation per spec.md §7,
// meaning orders exceeded the configured caps.
var ErrDiscreteLogOutOfRange = errors.New("elgamal: discrete log out of range")

// BSGSTable is a process-wide, lazily-built baby-step-giant-step table for
// recovering m from m*G within a bounded range. spec.md §9 recommends a
// table of roughly 2^24 precomputed points shared read-only across threads;
// BSGSTable follows that shape: Build runs once (guarded by sync.Once) and
// Recover only ever reads the resulting map afterward, so concurrent rounds
// across markets can share one table safely.
type BSGSTable struct {
	once     sync.Once
	buildErr error

	maxRoundVolume uint64
	babySteps      uint64 // m = ceil(sqrt(maxRoundVolume)) + 1

	babyTable map[string]uint64 // serialize(j*G) -> j, for j in [0, babySteps)
	giantStep curve.Point       // -babySteps*G, added each giant step
}

// NewBSGSTable constructs a table sized for the given cap. Building is
// deferred to the first Recover call so process startup doesn't pay the
// precomputation cost unless decryption is actually exercised.
func NewBSGSTable(maxRoundVolume uint64) *BSGSTable {
	return &BSGSTable{maxRoundVolume: maxRoundVolume}
}

func (t *BSGSTable) build() {
	t.babySteps = isqrtCeil(t.maxRoundVolume) + 1
	t.babyTable = make(map[string]uint64, t.babySteps)

	acc := curve.Infinity()
	g := curve.Generator()
	for j := uint64(0); j < t.babySteps; j++ {
		t.babyTable[encodePoint(acc)] = j
		acc = acc.Add(g)
	}
	negBabySteps := curve.NewScalarFromUint64(t.babySteps).Neg()
	t.giantStep = g.Mul(negBabySteps)
}

// Recover solves M = m*G for m in [0, maxRoundVolume), failing with
// ErrDiscreteLogOutOfRange if no such m exists within the configured bound
// (spec.md §4.2).
func (t *BSGSTable) Recover(M curve.Point) (uint64, error) {
	t.once.Do(t.build)

	giantSteps := t.maxRoundVolume/t.babySteps + 1
	cur := M
	for i := uint64(0); i <= giantSteps; i++ {
		if j, ok := t.babyTable[encodePoint(cur)]; ok {
			m := i*t.babySteps + j
			if m < t.maxRoundVolume {
				return m, nil
			}
		}
		cur = cur.Add(t.giantStep)
	}
	return 0, ErrDiscreteLogOutOfRange
}

func encodePoint(p curve.Point) string {
	return base64.StdEncoding.EncodeToString(p.Serialize())
}

func isqrtCeil(n uint64) uint64 {
	if n == 0 {
		return 0
	}
	x := isqrtFloor(n)
	if x*x < n {
		x++
	}
	return x
}

func isqrtFloor(n uint64) uint64 {
	if n == 0 {
		return 0
	}
	x := n
	y := (x + 1) / 2
	for y < x {
		x = y
		y = (x + n/x) / 2
	}
	return x
}
