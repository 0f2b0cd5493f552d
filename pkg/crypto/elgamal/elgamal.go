// Package elgamal implements additively homomorphic ElGamal encryption over
// pkg/crypto/curve's group, including threshold decryption via Schnorr-style
// partial-decryption proofs and Lagrange combination (spec.md §4.2).
package elgamal

import (
	"errors"
	"fmt"

	"github.com/phantompool/phantompool/pkg/crypto/curve"
	"github.com/phantompool/phantompool/pkg/crypto/shamir"
)

const dstPartialDecrypt = "phantompool/v1/partial-decrypt"

var (
	// ErrAmountOutOfRange is returned by Encrypt when the plaintext falls
	// outside [0, maxAmount).
	ErrAmountOutOfRange = errors.New("elgamal: amount out of range")
	// ErrInvalidPartialProof is returned by Combine when a partial
	// decryption's NIZK fails to verify.
	ErrInvalidPartialProof = errors.New("elgamal: invalid partial decryption proof")
	// ErrInsufficientShares is returned when Combine is given fewer
	// partials than the reconstruction threshold.
	ErrInsufficientShares = errors.New("elgamal: insufficient partial decryptions")
)

// KeyPair is KeyMaterial from spec.md §3: a private scalar and its derived
// public point. Private keys never leave the component that generated them
// — callers that need threshold decryption instead hold a shamir.Share of
// the private scalar, never the scalar itself.
type KeyPair struct {
	SK curve.Scalar
	PK curve.Point
}

// KeyGen implements keygen: sk uniform non-zero, PK = sk*G.
func KeyGen() (KeyPair, error) {
	sk, err := curve.RandomScalar()
	if err != nil {
		return KeyPair{}, fmt.Errorf("elgamal: keygen: %w", err)
	}
	return KeyPair{SK: sk, PK: curve.MulGen(sk)}, nil
}

// Ciphertext is an ElGamal encryption (C1, C2) of a message m under some
// public key: C1 = r*G, C2 = m*G + r*PK.
type Ciphertext struct {
	C1, C2 curve.Point
}

// Encrypt implements encrypt. r is fresh uniform non-zero randomness; m must
// satisfy 0 <= m < maxAmount, the configured cap that keeps later discrete-log
// recovery tractable (spec.md §3).
func Encrypt(pk curve.Point, m uint64, maxAmount uint64) (Ciphertext, error) {
	if m >= maxAmount {
		return Ciphertext{}, ErrAmountOutOfRange
	}
	r, err := curve.RandomScalar()
	if err != nil {
		return Ciphertext{}, fmt.Errorf("elgamal: encrypt: %w", err)
	}
	c1 := curve.MulGen(r)
	mG := curve.MulGen(curve.NewScalarFromUint64(m))
	rPK := pk.Mul(r)
	c2 := mG.Add(rPK)
	return Ciphertext{C1: c1, C2: c2}, nil
}

// HomomorphicAdd implements homomorphic_add: Enc(m1) ⊕ Enc(m2) = Enc(m1+m2)
// via componentwise point addition.
func HomomorphicAdd(a, b Ciphertext) Ciphertext {
	return Ciphertext{C1: a.C1.Add(b.C1), C2: a.C2.Add(b.C2)}
}

// Rerandomize adds a fresh encryption of zero to c, producing an
// unlinkable-but-equivalent ciphertext under the same public key. Used when
// unmatched orders are replayed back into the pool (spec.md §9 design
// notes), so a ciphertext that failed to clear one round can't be
// fingerprinted across rounds.
func Rerandomize(pk curve.Point, c Ciphertext, maxAmount uint64) (Ciphertext, error) {
	zero, err := Encrypt(pk, 0, maxAmount)
	if err != nil {
		return Ciphertext{}, err
	}
	return HomomorphicAdd(c, zero), nil
}

// PartialDecryption is D_i = sk_i*C1 plus a NIZK binding it to the
// executor's public share and to C1 (spec.md §3).
type PartialDecryption struct {
	Index int
	D     curve.Point
	Proof curve.DLEqProof
}

// PartialDecrypt implements partial_decrypt: an executor holding share
// sk_i (with public share PK_i = sk_i*G) computes D_i = sk_i*C1 and a
// Schnorr-style proof that D_i is consistent with PK_i under the same
// exponent.
func PartialDecrypt(index int, skShare curve.Scalar, pkShare curve.Point, c1 curve.Point) (PartialDecryption, error) {
	d := c1.Mul(skShare)
	proof, err := curve.ProveDLEq(dstPartialDecrypt, curve.Generator(), c1, pkShare, d, skShare)
	if err != nil {
		return PartialDecryption{}, fmt.Errorf("elgamal: partial decrypt: %w", err)
	}
	return PartialDecryption{Index: index, D: d, Proof: proof}, nil
}

// VerifyPartial checks a PartialDecryption's proof against the executor's
// known public share and the ciphertext's C1. Flipping one byte of D
// breaks the DLEq relation and the proof is rejected (Testable Property 4).
func VerifyPartial(pkShare curve.Point, c1 curve.Point, pd PartialDecryption) bool {
	return curve.VerifyDLEq(dstPartialDecrypt, curve.Generator(), c1, pkShare, pd.D, pd.Proof)
}

// Combine implements combine: verify every partial's proof, compute
// Lagrange coefficients at 0 over the participating indexes, reconstruct
// sk*C1 = Σ λ_i·D_i, then recover m from C2 - Σλ_i·D_i via bounded BSGS.
func Combine(pkShares map[int]curve.Point, c Ciphertext, partials []PartialDecryption, threshold int, table *BSGSTable) (uint64, error) {
	if len(partials) < threshold {
		return 0, ErrInsufficientShares
	}
	partials = partials[:threshold]

	indexes := make([]int, 0, len(partials))
	for _, pd := range partials {
		pk, ok := pkShares[pd.Index]
		if !ok || !VerifyPartial(pk, c.C1, pd) {
			return 0, fmt.Errorf("%w: executor %d", ErrInvalidPartialProof, pd.Index)
		}
		indexes = append(indexes, pd.Index)
	}

	var acc curve.Point = curve.Infinity()
	for _, pd := range partials {
		lambda, err := shamir.LagrangeZero(indexes, pd.Index)
		if err != nil {
			return 0, fmt.Errorf("elgamal: combine: %w", err)
		}
		acc = acc.Add(pd.D.Mul(lambda))
	}

	M := c.C2.Sub(acc)
	return table.Recover(M)
}

// Decrypt implements the non-threshold decrypt path: compute M = C2 - sk*C1
// and recover m by bounded BSGS. Used in tests and single-party settings;
// production decryption always goes through Combine so no single component
// ever holds the unsharded private key.
func Decrypt(sk curve.Scalar, c Ciphertext, table *BSGSTable) (uint64, error) {
	M := c.C2.Sub(c.C1.Mul(sk))
	return table.Recover(M)
}
