package vrf

import (
	"crypto/sha256"
	"encoding/binary"
)

// counterXOF expands a 32-byte seed into an arbitrarily long byte stream by
// hashing seed || counter, incrementing counter each block — the "SHA-256 in
// counter mode" construction spec.md §4.4 names explicitly.
type counterXOF struct {
	seed    [32]byte
	counter uint64
	buf     []byte
}

func newCounterXOF(seed [32]byte) *counterXOF {
	return &counterXOF{seed: seed}
}

func (x *counterXOF) next() byte {
	if len(x.buf) == 0 {
		var ctr [8]byte
		binary.BigEndian.PutUint64(ctr[:], x.counter)
		x.counter++
		h := sha256.Sum256(append(append([]byte{}, x.seed[:]...), ctr[:]...))
		x.buf = h[:]
	}
	b := x.buf[0]
	x.buf = x.buf[1:]
	return b
}

// uint32Below returns a uniform random value in [0, n) by rejection
// sampling 4-byte blocks from the XOF, avoiding modulo bias.
func (x *counterXOF) uint32Below(n uint32) uint32 {
	if n == 0 {
		return 0
	}
	limit := (1 << 32) - (1<<32)%uint64(n)
	for {
		var b [4]byte
		for i := range b {
			b[i] = x.next()
		}
		v := uint64(binary.BigEndian.Uint32(b[:]))
		if v < limit {
			return uint32(v % uint64(n))
		}
	}
}

// Shuffle implements the deterministic Fisher-Yates permutation seeded by
// to_uniform_bytes(gamma): equal seeds produce equal permutations; distinct
// round inputs (round id || market) yield distinct permutations, since
// gamma itself is bound to alpha through the VRF relation.
func Shuffle(seed [32]byte, n int) []int {
	order := make([]int, n)
	for i := range order {
		order[i] = i
	}
	x := newCounterXOF(seed)
	for i := n - 1; i > 0; i-- {
		j := int(x.uint32Below(uint32(i + 1)))
		order[i], order[j] = order[j], order[i]
	}
	return order
}

// Apply permutes items according to an ordering returned by Shuffle,
// returning a new slice without mutating the input. T is generic so both
// buy-side and sell-side order slices can reuse it.
func Apply[T any](items []T, order []int) []T {
	out := make([]T, len(items))
	for newIdx, oldIdx := range order {
		out[newIdx] = items[oldIdx]
	}
	return out
}
