package matching

import (
	"context"
	"fmt"

	"github.com/phantompool/phantompool/pkg/core/executor"
	"github.com/phantompool/phantompool/pkg/core/round"
)

func transcriptFromShares(shares []executor.DecryptionShare) []round.DecryptionTranscriptEntry {
	out := make([]round.DecryptionTranscriptEntry, len(shares))
	for i, s := range shares {
		out[i] = round.DecryptionTranscriptEntry{ExecutorIndex: s.Index, Proof: s.Proof, Partial: s.Partial}
	}
	return out
}

// decryptAggregates implements spec.md §4.7 step 3: reconstruct the two
// side totals from their homomorphically-summed ciphertexts via the
// executor coordinator's threshold decryption, never touching any
// individual order's amount. The returned transcript is the quorum of
// executor shares that reconstructed each total, surfaced verbatim in the
// round's decryption_transcript (spec.md §6).
func (e *Engine) decryptAggregates(ctx context.Context, buySnap, sellSnap round.SideSnapshot) (uint64, uint64, []round.DecryptionTranscriptEntry, error) {
	var totalBuy, totalSell uint64
	var transcript []round.DecryptionTranscriptEntry
	if buySnap.HasSum {
		v, shares, err := e.exec.DecryptWithTranscript(ctx, buySnap.Sum)
		if err != nil {
			return 0, 0, nil, fmt.Errorf("matching: decrypt buy aggregate: %w", err)
		}
		totalBuy = v
		transcript = append(transcript, transcriptFromShares(shares)...)
	}
	if sellSnap.HasSum {
		v, shares, err := e.exec.DecryptWithTranscript(ctx, sellSnap.Sum)
		if err != nil {
			return 0, 0, nil, fmt.Errorf("matching: decrypt sell aggregate: %w", err)
		}
		totalSell = v
		transcript = append(transcript, transcriptFromShares(shares)...)
	}
	return totalBuy, totalSell, transcript, nil
}
