// Package shamir implements polynomial secret sharing of a scalar over
// pkg/crypto/curve's prime order, and Lagrange-coefficient reconstruction
// (spec.md §4.3).
//
// The dealer/share/reconstruct split here follows the algorithmic shape of
// Pedersen verifiable secret sharing as shown in the wider example pack
// (kevincharm-kyber's share/vss/pedersen-vss.go, DeDiS-crypto's
// share/vss.go), but operates directly on curve.Scalar rather than a
// separate group library: circl/group already provides every scalar
// operation this package needs.
package shamir

import (
	"errors"
	"fmt"

	"github.com/phantompool/phantompool/pkg/crypto/curve"
)

var (
	// ErrDuplicateIndex is returned when two shares carry the same index.
	ErrDuplicateIndex = errors.New("shamir: duplicate share index")
	// ErrTooFewShares is returned when Reconstruct is given fewer than t
	// shares.
	ErrTooFewShares = errors.New("shamir: fewer than threshold shares supplied")
	// ErrZeroIndex is returned by LagrangeZero for index 0, which is
	// reserved for the secret itself (p(0) = sk).
	ErrZeroIndex = errors.New("shamir: index 0 is reserved for the secret")
)

// Share is a pair (index, value) with value = p(index) mod n for a secret
// polynomial p with p(0) = sk (spec.md §3).
type Share struct {
	Index int
	Value curve.Scalar
}

// Share implements share(sk, t, n): sample t-1 random coefficients, define
// p(x) = sk + a1*x + ... + a_{t-1}*x^{t-1} mod n, and emit Share(i, p(i))
// for i in 1..n.
func Share(sk curve.Scalar, t, n int) ([]Share, error) {
	if t < 1 || n < t {
		return nil, fmt.Errorf("shamir: invalid threshold t=%d n=%d", t, n)
	}
	coeffs := make([]curve.Scalar, t)
	coeffs[0] = sk
	for i := 1; i < t; i++ {
		c, err := curve.RandomScalar()
		if err != nil {
			return nil, fmt.Errorf("shamir: sample coefficient: %w", err)
		}
		coeffs[i] = c
	}

	shares := make([]Share, n)
	for i := 1; i <= n; i++ {
		shares[i-1] = Share{Index: i, Value: evalPoly(coeffs, i)}
	}
	return shares, nil
}

// evalPoly evaluates p(x) = Σ coeffs[k] * x^k mod n using Horner's method.
func evalPoly(coeffs []curve.Scalar, x int) curve.Scalar {
	xs := curve.NewScalarFromUint64(uint64(x))
	acc := curve.ZeroScalar()
	for k := len(coeffs) - 1; k >= 0; k-- {
		acc = acc.Mul(xs).Add(coeffs[k])
	}
	return acc
}

// LagrangeZero implements lagrange_zero(indexes, i): the Lagrange basis
// polynomial for index i, evaluated at x=0, over the given set of distinct
// indexes: Π_{j != i} (-j) * (i-j)^-1 mod n.
func LagrangeZero(indexes []int, i int) (curve.Scalar, error) {
	if err := requireDistinct(indexes); err != nil {
		return curve.Scalar{}, err
	}
	if i == 0 {
		return curve.Scalar{}, ErrZeroIndex
	}

	num := curve.NewScalarFromUint64(1)
	den := curve.NewScalarFromUint64(1)
	for _, j := range indexes {
		if j == i {
			continue
		}
		num = num.Mul(curve.NewScalarFromUint64(uint64(j)).Neg())
		diff := curve.NewScalarFromUint64(uint64(i)).Sub(curve.NewScalarFromUint64(uint64(j)))
		den = den.Mul(diff)
	}
	denInv, err := den.Inverse()
	if err != nil {
		return curve.Scalar{}, fmt.Errorf("shamir: lagrange_zero: %w", err)
	}
	return num.Mul(denInv), nil
}

// Reconstruct implements reconstruct(shares, t): requires at least t
// shares, uses the first t (which must carry distinct indexes), and
// computes Σ λ_i·share_i over them.
func Reconstruct(shares []Share, t int) (curve.Scalar, error) {
	if len(shares) < t {
		return curve.Scalar{}, ErrTooFewShares
	}
	shares = shares[:t]

	indexes := make([]int, len(shares))
	for i, s := range shares {
		indexes[i] = s.Index
	}

	acc := curve.ZeroScalar()
	for _, s := range shares {
		lambda, err := LagrangeZero(indexes, s.Index)
		if err != nil {
			return curve.Scalar{}, err
		}
		acc = acc.Add(lambda.Mul(s.Value))
	}
	return acc, nil
}

func requireDistinct(indexes []int) error {
	seen := make(map[int]struct{}, len(indexes))
	for _, idx := range indexes {
		if _, ok := seen[idx]; ok {
			return ErrDuplicateIndex
		}
		seen[idx] = struct{}{}
	}
	return nil
}
