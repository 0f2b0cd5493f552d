package matching

import (
	"context"
	"fmt"
	"sort"

	"github.com/phantompool/phantompool/pkg/core/orderpool"
	"github.com/phantompool/phantompool/pkg/crypto/elgamal"
)

// clearingPrice implements spec.md §4.7 step 4's two-pass tick-bucket
// schema: bucket orders by their publicly-committed tick index, threshold-
// decrypt only the bucket sums (never individual orders), then pick the
// tick that maximizes matched volume, breaking ties toward the midpoint of the aggregate
// bid and ask tick means.
func (e *Engine) clearingPrice(ctx context.Context, buyOrders, sellOrders []*orderpool.Order) (uint64, error) {
	buyBuckets := bucketByTick(buyOrders)
	sellBuckets := bucketByTick(sellOrders)

	buyTicks := sortedKeys(buyBuckets)
	sellTicks := sortedKeys(sellBuckets)

	cts := make([]elgamal.Ciphertext, 0, len(buyTicks)+len(sellTicks))
	for _, t := range buyTicks {
		cts = append(cts, buyBuckets[t])
	}
	for _, t := range sellTicks {
		cts = append(cts, sellBuckets[t])
	}
	volumes, err := e.decryptBatch(ctx, cts)
	if err != nil {
		return 0, fmt.Errorf("matching: decrypt tick buckets: %w", err)
	}

	buyVol := make(map[uint64]uint64, len(buyTicks))
	for i, t := range buyTicks {
		buyVol[t] = volumes[i]
	}
	sellVol := make(map[uint64]uint64, len(sellTicks))
	for i, t := range sellTicks {
		sellVol[t] = volumes[len(buyTicks)+i]
	}

	// buySuffix[i] = total buy volume at ticks >= buyTicks[i] (buyTicks
	// ascending, so this is a suffix sum).
	buySuffix := make([]uint64, len(buyTicks))
	var running uint64
	for i := len(buyTicks) - 1; i >= 0; i-- {
		running += buyVol[buyTicks[i]]
		buySuffix[i] = running
	}
	// sellPrefix[i] = total sell volume at ticks <= sellTicks[i].
	sellPrefix := make([]uint64, len(sellTicks))
	running = 0
	for i, t := range sellTicks {
		running += sellVol[t]
		sellPrefix[i] = running
	}

	buyAtOrAbove := func(p uint64) uint64 {
		idx := sort.Search(len(buyTicks), func(i int) bool { return buyTicks[i] >= p })
		if idx == len(buyTicks) {
			return 0
		}
		return buySuffix[idx]
	}
	sellAtOrBelow := func(p uint64) uint64 {
		idx := sort.Search(len(sellTicks), func(i int) bool { return sellTicks[i] > p })
		if idx == 0 {
			return 0
		}
		return sellPrefix[idx-1]
	}

	candidates := mergeUnique(buyTicks, sellTicks)
	if len(candidates) == 0 {
		return 0, nil
	}

	midpoint := tickMidpoint(buyTicks, sellTicks)

	var bestTick uint64
	var bestMatched uint64
	haveBest := false
	for _, p := range candidates {
		matched := min64(buyAtOrAbove(p), sellAtOrBelow(p))
		if !haveBest || matched > bestMatched || (matched == bestMatched && closerToMidpoint(p, bestTick, midpoint)) {
			bestTick = p
			bestMatched = matched
			haveBest = true
		}
	}
	return bestTick * e.params.TickSize, nil
}

func bucketByTick(orders []*orderpool.Order) map[uint64]elgamal.Ciphertext {
	buckets := make(map[uint64]elgamal.Ciphertext)
	for _, o := range orders {
		if sum, ok := buckets[o.TickIndex]; ok {
			buckets[o.TickIndex] = elgamal.HomomorphicAdd(sum, o.EncryptedAmount)
		} else {
			buckets[o.TickIndex] = o.EncryptedAmount
		}
	}
	return buckets
}

func sortedKeys(m map[uint64]elgamal.Ciphertext) []uint64 {
	keys := make([]uint64, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })
	return keys
}

func mergeUnique(a, b []uint64) []uint64 {
	seen := make(map[uint64]struct{}, len(a)+len(b))
	out := make([]uint64, 0, len(a)+len(b))
	for _, s := range [][]uint64{a, b} {
		for _, v := range s {
			if _, ok := seen[v]; !ok {
				seen[v] = struct{}{}
				out = append(out, v)
			}
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

func tickMidpoint(buyTicks, sellTicks []uint64) uint64 {
	meanBuy := meanOf(buyTicks)
	meanSell := meanOf(sellTicks)
	return (meanBuy + meanSell) / 2
}

func meanOf(ticks []uint64) uint64 {
	if len(ticks) == 0 {
		return 0
	}
	var sum uint64
	for _, t := range ticks {
		sum += t
	}
	return sum / uint64(len(ticks))
}

// closerToMidpoint reports whether candidate p is at least as close to
// midpoint as the current best, with p preferred on an exact tie so the
// search remains deterministic over a sorted candidate list.
func closerToMidpoint(p, best, midpoint uint64) bool {
	return absDiff(p, midpoint) <= absDiff(best, midpoint)
}

func absDiff(a, b uint64) uint64 {
	if a > b {
		return a - b
	}
	return b - a
}
