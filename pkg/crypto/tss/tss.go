// Package tss implements the settlement signature layer spec.md §4.6 asks
// ExecutorCoordinator.Sign to produce: once t-of-n executors agree on a
// cleared trade list, each contributes a partial signature over the
// settlement payload, and any t of those combine into a single aggregate
// signature a settlement venue can verify against the public committee key.
//
// This is adapted directly from the teacher's pkg/crypto/bls.go and
// pkg/crypto/tss.go: the ThresholdSigner interface shape, DummySigner test
// double, and BLS key/sign/aggregate/verify-aggregate functions carry over
// unchanged in spirit, restructured around a named Signer/Committee pair
// instead of free functions over *bls.PrivateKey.
package tss

import (
	"errors"
	"fmt"

	bls "github.com/cloudflare/circl/sign/bls"
)

type scheme = bls.KeyG1SigG2

// PublicKey is an executor's settlement verification key.
type PublicKey = bls.PublicKey[scheme]

// Signature is a single partial signature share, or (after Combine) an
// aggregate signature. BLS signatures and their aggregates share a wire
// format, which is what makes aggregation possible without a separate
// combine-proof step.
type Signature = []byte

var (
	ErrNoShares         = errors.New("tss: no signature shares to combine")
	ErrShareCountBelowT = errors.New("tss: fewer shares than the settlement threshold")
)

// ThresholdSigner is the interface ExecutorCoordinator.Sign drives: each
// executor signs its own share locally, and the coordinator combines any
// t-of-n shares into a single settlement signature.
type ThresholdSigner interface {
	SignShare(msg []byte) (Signature, error)
	PublicKey() *PublicKey
}

// Signer wraps one executor's BLS settlement keypair.
type Signer struct {
	sk *bls.PrivateKey[scheme]
	pk *PublicKey
}

// NewSignerFromSeed derives a settlement keypair deterministically from a
// seed, matching the teacher's NewBLSSignerFromSeed — used by node bootstrap
// to re-derive the same key across restarts from a configured seed, and by
// tests to construct reproducible committees.
func NewSignerFromSeed(seed []byte) (*Signer, error) {
	sk, err := bls.KeyGen[scheme](seed, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("tss: keygen: %w", err)
	}
	return &Signer{sk: sk, pk: sk.PublicKey()}, nil
}

func (s *Signer) PublicKey() *PublicKey { return s.pk }

func (s *Signer) SignShare(msg []byte) (Signature, error) {
	return bls.Sign(s.sk, msg), nil
}

// VerifyShare checks a single executor's partial signature, used by the
// coordinator to reject a malformed or forged share before it pollutes an
// aggregate (spec.md's executor fault-handling: a bad share must be
// attributable to the executor that produced it, not silently absorbed).
func VerifyShare(pk *PublicKey, msg []byte, share Signature) bool {
	return bls.Verify(pk, msg, bls.Signature(share))
}

// Combine aggregates t-of-n verified partial signatures over the same
// settlement payload into one signature, requiring at least t shares.
func Combine(shares []Signature, threshold int) (Signature, error) {
	if len(shares) == 0 {
		return nil, ErrNoShares
	}
	if len(shares) < threshold {
		return nil, ErrShareCountBelowT
	}
	sigs := make([]bls.Signature, 0, len(shares))
	for _, s := range shares {
		if len(s) == 0 {
			continue
		}
		sigs = append(sigs, bls.Signature(s))
	}
	agg, err := bls.Aggregate(bls.G1{}, sigs)
	if err != nil {
		return nil, fmt.Errorf("tss: aggregate: %w", err)
	}
	return agg, nil
}

// VerifyAggregate checks a combined signature against the public keys of
// exactly the executors whose shares went into it.
func VerifyAggregate(pks []*PublicKey, msg []byte, aggSig Signature) bool {
	return bls.VerifyAggregate(pks, [][]byte{msg}, bls.Signature(aggSig))
}

// DummySigner is an in-process test double for scenarios that need a
// ThresholdSigner without paying for real BLS operations, matching the
// teacher's DummySigner: its "signature" is the message itself. No test in
// this repository uses it; the executor tests build real BLS committees
// with NewSignerFromSeed.
type DummySigner struct {
	Key *PublicKey
}

func (d DummySigner) SignShare(msg []byte) (Signature, error) {
	return append([]byte{}, msg...), nil
}

func (d DummySigner) PublicKey() *PublicKey { return d.Key }
