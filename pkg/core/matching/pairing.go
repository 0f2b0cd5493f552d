package matching

import (
	"context"
	"fmt"

	"github.com/phantompool/phantompool/pkg/core/orderpool"
	"github.com/phantompool/phantompool/pkg/core/round"
	"github.com/phantompool/phantompool/pkg/crypto/curve"
	"github.com/phantompool/phantompool/pkg/crypto/elgamal"
)

// pairOrders implements spec.md §4.7 step 5: walk the already VRF-shuffled,
// price-eligible buys and sells pro-rata at the clearing price, decrypting
// only the per-order amounts needed to do so. An order left with a nonzero
// remainder because the other side ran out is re-encrypted at its leftover
// amount and handed back for replay, same as a never-eligible order.
func (e *Engine) pairOrders(ctx context.Context, buyOrders, sellOrders []*orderpool.Order, clearingPrice uint64) ([]round.Pair, []*orderpool.Order, []*orderpool.Order, error) {
	eligibleBuys, ineligibleBuys := splitEligible(buyOrders, func(o *orderpool.Order) bool {
		return o.TickIndex*e.params.TickSize >= clearingPrice
	})
	eligibleSells, ineligibleSells := splitEligible(sellOrders, func(o *orderpool.Order) bool {
		return o.TickIndex*e.params.TickSize <= clearingPrice
	})

	cts := make([]elgamal.Ciphertext, 0, len(eligibleBuys)+len(eligibleSells))
	for _, o := range eligibleBuys {
		cts = append(cts, o.EncryptedAmount)
	}
	for _, o := range eligibleSells {
		cts = append(cts, o.EncryptedAmount)
	}
	amounts, err := e.decryptBatch(ctx, cts)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("matching: decrypt order amounts: %w", err)
	}
	buyRemaining := amounts[:len(eligibleBuys)]
	sellRemaining := amounts[len(eligibleBuys):]

	var pairs []round.Pair
	i, j := 0, 0
	for i < len(eligibleBuys) && j < len(eligibleSells) {
		amt := min64(buyRemaining[i], sellRemaining[j])
		if amt > 0 {
			pairs = append(pairs, round.Pair{
				BuyID:  eligibleBuys[i].ID,
				SellID: eligibleSells[j].ID,
				Amount: amt,
			})
		}
		buyRemaining[i] -= amt
		sellRemaining[j] -= amt
		if buyRemaining[i] == 0 {
			i++
		}
		if sellRemaining[j] == 0 {
			j++
		}
	}

	pk := e.pool.Buys.PublicKey()
	leftoverBuys, err := leftovers(eligibleBuys, buyRemaining, pk, e.params.MaxAmount)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("matching: re-encrypt leftover buys: %w", err)
	}
	leftoverSells, err := leftovers(eligibleSells, sellRemaining, pk, e.params.MaxAmount)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("matching: re-encrypt leftover sells: %w", err)
	}

	unmatchedBuys := append(ineligibleBuys, leftoverBuys...)
	unmatchedSells := append(ineligibleSells, leftoverSells...)
	return pairs, unmatchedBuys, unmatchedSells, nil
}

func splitEligible(orders []*orderpool.Order, pred func(*orderpool.Order) bool) (eligible, ineligible []*orderpool.Order) {
	for _, o := range orders {
		if pred(o) {
			eligible = append(eligible, o)
		} else {
			ineligible = append(ineligible, o)
		}
	}
	return eligible, ineligible
}

// leftovers re-encrypts the unconsumed remainder of each order whose
// remaining amount is still positive after pairing, so the order can be
// replayed without ever exposing its plaintext leftover on the wire.
func leftovers(orders []*orderpool.Order, remaining []uint64, pk curve.Point, maxAmount uint64) ([]*orderpool.Order, error) {
	var out []*orderpool.Order
	for i, o := range orders {
		if remaining[i] == 0 {
			continue
		}
		ct, err := elgamal.Encrypt(pk, remaining[i], maxAmount)
		if err != nil {
			return nil, fmt.Errorf("order %s: %w", o.ID, err)
		}
		o.EncryptedAmount = ct
		out = append(out, o)
	}
	return out, nil
}
