package matching

import (
	"crypto/sha256"
	"encoding/binary"
	"fmt"
	"sort"

	"github.com/phantompool/phantompool/pkg/core/orderpool"
	"github.com/phantompool/phantompool/pkg/core/round"
	"github.com/phantompool/phantompool/pkg/crypto/curve"
	"github.com/phantompool/phantompool/pkg/crypto/vrf"
)

// merkleRoot implements spec.md §4.7's merkle_root(order_ids): a standard
// binary Merkle tree over sha256-hashed leaves, duplicating the final odd
// leaf each level (the common Bitcoin-style convention), built the same
// way the teacher's HashOfBlock reduces structured fields to one digest
// via sha256.
func merkleRoot(ids []string) [32]byte {
	if len(ids) == 0 {
		return sha256.Sum256(nil)
	}
	level := make([][32]byte, len(ids))
	sorted := append([]string(nil), ids...)
	sort.Strings(sorted)
	for i, id := range sorted {
		level[i] = sha256.Sum256([]byte(id))
	}
	for len(level) > 1 {
		next := make([][32]byte, 0, (len(level)+1)/2)
		for i := 0; i < len(level); i += 2 {
			if i+1 == len(level) {
				next = append(next, sha256.Sum256(append(level[i][:], level[i][:]...)))
				continue
			}
			next = append(next, sha256.Sum256(append(level[i][:], level[i+1][:]...)))
		}
		level = next
	}
	return level[0]
}

// vrfInput implements spec.md §4.7's vrf_input = round_id || market_id ||
// merkle_root(order_ids).
func vrfInput(roundID uint64, market string, ids []string) []byte {
	var rid [8]byte
	binary.BigEndian.PutUint64(rid[:], roundID)
	root := merkleRoot(ids)
	buf := append([]byte{}, rid[:]...)
	buf = append(buf, []byte(market)...)
	buf = append(buf, root[:]...)
	return buf
}

// shuffleRound computes the round's VRF output and permutes both order
// slices in place under two domain-separated derived seeds, so the buy and
// sell permutations are independent even though they share one gamma.
func (e *Engine) shuffleRound(roundID uint64, buySnap, sellSnap round.SideSnapshot, buyOrders, sellOrders *[]*orderpool.Order) (curve.Point, vrf.Proof, error) {
	allIDs := append(append([]string{}, buySnap.OrderIDs...), sellSnap.OrderIDs...)
	alpha := vrfInput(roundID, e.symbol, allIDs)

	gamma, proof, err := vrf.Prove(e.vrfKey.SK, alpha)
	if err != nil {
		return curve.Point{}, vrf.Proof{}, fmt.Errorf("matching: vrf prove: %w", err)
	}
	if !vrf.Verify(e.vrfKey.PK, alpha, gamma, proof) {
		return curve.Point{}, vrf.Proof{}, fmt.Errorf("matching: vrf self-verify failed")
	}

	base := vrf.ToUniformBytes(gamma)
	buySeed := sha256.Sum256(append(append([]byte{}, base[:]...), []byte("buy")...))
	sellSeed := sha256.Sum256(append(append([]byte{}, base[:]...), []byte("sell")...))

	*buyOrders = vrf.Apply(*buyOrders, vrf.Shuffle(buySeed, len(*buyOrders)))
	*sellOrders = vrf.Apply(*sellOrders, vrf.Shuffle(sellSeed, len(*sellOrders)))
	return gamma, proof, nil
}
