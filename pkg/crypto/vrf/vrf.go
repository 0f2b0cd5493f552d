// Package vrf implements a verifiable random function over pkg/crypto/curve
// (spec.md §4.4), used to derive deterministic, publicly-checkable
// per-round randomness that shuffles order arrivals before matching.
//
// The proof is a discrete-log-equality NIZK between (G, PK) and (H, gamma)
// where H = hash_to_curve(alpha) — the same Sigma-protocol shape as the
// Chaum-Pedersen decryption proof shown in the wider example pack's
// vocdoni-davinci-node elgamal implementation, reused here via
// pkg/crypto/curve's shared DLEq helper.
package vrf

import (
	"crypto/sha256"
	"fmt"

	"github.com/phantompool/phantompool/pkg/crypto/curve"
)

const (
	dstHashToCurve = "phantompool/v1/vrf-hash-to-curve"
	dstVRFProof    = "phantompool/v1/vrf-proof"
)

// KeyPair is a VRF keypair; in PhantomPool it is the executor coordinator's
// round-randomness key, distinct from any ElGamal or settlement key.
type KeyPair struct {
	SK curve.Scalar
	PK curve.Point
}

// KeyGen produces a fresh VRF keypair.
func KeyGen() (KeyPair, error) {
	sk, err := curve.RandomScalar()
	if err != nil {
		return KeyPair{}, fmt.Errorf("vrf: keygen: %w", err)
	}
	return KeyPair{SK: sk, PK: curve.MulGen(sk)}, nil
}

// Proof is the non-interactive proof pi = (c, s) plus the VRF output gamma.
type Proof struct {
	Gamma curve.Point
	C     curve.Scalar
	S     curve.Scalar
}

// hashToCurve maps arbitrary input bytes to a curve point H, used as the
// second base of the VRF's DLEq relation. It hashes to a scalar and then
// multiplies the generator by it; this is sufficient here because nothing
// in the protocol requires knowledge of H's discrete log relative to G to
// remain hidden (unlike, say, a Pedersen commitment's second generator).
func hashToCurve(alpha []byte) curve.Point {
	h := curve.HashToScalar(dstHashToCurve, alpha)
	return curve.MulGen(h)
}

// Prove implements prove(sk, alpha) -> (gamma, pi). It is deterministic in
// sk and alpha only insofar as gamma = sk*H is always the same; the proof's
// randomness k is freshly sampled each call (Fiat-Shamir NIZKs don't need a
// deterministic nonce to satisfy spec.md Testable Property 5, which only
// requires that the *output* gamma be deterministic and that verification
// accept exactly the proofs prove produced for that key).
func Prove(sk curve.Scalar, alpha []byte) (curve.Point, Proof, error) {
	H := hashToCurve(alpha)
	gamma := H.Mul(sk)
	pk := curve.MulGen(sk)

	dleq, err := curve.ProveDLEq(dstVRFProof, curve.Generator(), H, pk, gamma, sk)
	if err != nil {
		return curve.Point{}, Proof{}, fmt.Errorf("vrf: prove: %w", err)
	}
	return gamma, Proof{Gamma: gamma, C: dleq.C, S: dleq.S}, nil
}

// toDLEq rebuilds a full DLEqProof from a Proof, which carries only
// (gamma, c, s); Verify uses it to recompute the commitments A1, A2 before
// handing the proof to VerifyDLEq.
func toDLEq(gamma curve.Point, proof Proof, H, pk curve.Point) curve.DLEqProof {
	// Recompute A1, A2 the same way VerifyDLEq does internally, by solving
	// for them from s and c: A1 = s*G - c*PK, A2 = s*H - c*gamma.
	a1 := curve.Generator().Mul(proof.S).Sub(pk.Mul(proof.C))
	a2 := H.Mul(proof.S).Sub(gamma.Mul(proof.C))
	return curve.DLEqProof{A1: a1, A2: a2, C: proof.C, S: proof.S}
}

// Verify implements verify(PK, alpha, gamma, pi) -> bool.
func Verify(pk curve.Point, alpha []byte, gamma curve.Point, proof Proof) bool {
	H := hashToCurve(alpha)
	dleq := toDLEq(gamma, proof, H, pk)
	return curve.VerifyDLEq(dstVRFProof, curve.Generator(), H, pk, gamma, dleq)
}

// ToUniformBytes implements to_uniform_bytes(gamma): a fixed 32-byte
// uniform output derived from the VRF output point.
func ToUniformBytes(gamma curve.Point) [32]byte {
	return sha256.Sum256(append([]byte("phantompool/v1/vrf-uniform-bytes"), gamma.Serialize()...))
}
