// Package settlement defines the `submit(batch) → tx-id` collaborator
// spec.md §6 names and leaves opaque: what happens to a threshold-signed
// batch of matched pairs after a round emits is explicitly out of scope.
// This package supplies the interface and a logging stub only; a real chain
// client is not part of this repo.
package settlement

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"fmt"

	"go.uber.org/zap"

	"github.com/phantompool/phantompool/pkg/core/round"
	"github.com/phantompool/phantompool/pkg/crypto/tss"
)

// CommitmentFor hashes a round's public outcome into the fixed-size
// message executors thereshold-sign via Coordinator.Sign, per spec.md
// §4.8's sign(batch_commitment). Binding round id, market, clearing price,
// matched volume, and every pair means a signature over this commitment
// attests to the full result, not just a subset a malicious aggregator
// could selectively disclose.
func CommitmentFor(res *round.Result) []byte {
	h := sha256.New()
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], res.RoundID)
	h.Write(buf[:])
	h.Write([]byte(res.Market))
	binary.BigEndian.PutUint64(buf[:], res.ClearingPrice)
	h.Write(buf[:])
	binary.BigEndian.PutUint64(buf[:], res.TotalMatchedVolume)
	h.Write(buf[:])
	for _, p := range res.Pairs {
		h.Write([]byte(p.BuyID))
		h.Write([]byte(p.SellID))
		binary.BigEndian.PutUint64(buf[:], p.Amount)
		h.Write(buf[:])
	}
	return h.Sum(nil)
}

// Batch is everything a settlement sink needs to finalize one round: the
// matching result and the executors' threshold signature over its
// commitment, per SPEC_FULL.md §12's "Settlement signing" design note.
type Batch struct {
	Result    *round.Result
	Signature tss.Signature
}

// Sink is the `settlement.submit` collaborator. Implementations own
// whatever happens after a round clears — writing to a chain, a clearing
// house API, or nothing at all.
type Sink interface {
	Submit(ctx context.Context, batch Batch) (txID string, err error)
}

// LogSink is a Sink that records the batch and returns a deterministic
// local identifier instead of talking to a real settlement layer. Matches
// the teacher's convention of a working no-op collaborator instead of a
// panic stub, so the rest of the system can be wired and run end to end
// before a real sink exists.
type LogSink struct {
	logger *zap.SugaredLogger
}

func NewLogSink(logger *zap.SugaredLogger) *LogSink {
	return &LogSink{logger: logger}
}

func (s *LogSink) Submit(ctx context.Context, batch Batch) (string, error) {
	if batch.Result == nil {
		return "", fmt.Errorf("settlement: nil result")
	}
	txID := fmt.Sprintf("local-%s-%d", batch.Result.Market, batch.Result.RoundID)
	if s.logger != nil {
		s.logger.Infow("settlement_submit",
			"tx_id", txID,
			"market", batch.Result.Market,
			"round_id", batch.Result.RoundID,
			"clearing_price", batch.Result.ClearingPrice,
			"matched_volume", batch.Result.TotalMatchedVolume,
			"pairs", len(batch.Result.Pairs),
			"signature", hex.EncodeToString(batch.Signature),
		)
	}
	return txID, nil
}
