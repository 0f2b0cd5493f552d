package executor

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/phantompool/phantompool/pkg/crypto/curve"
	"github.com/phantompool/phantompool/pkg/crypto/elgamal"
	"github.com/phantompool/phantompool/pkg/transport"
)

// ErrQuorumNotReached is the TransientFailure spec.md §7 names for a round
// that could not collect enough valid partial decryptions before the hard
// deadline.
var ErrQuorumNotReached = errors.New("executor: quorum not reached")

type partialResult struct {
	index int
	pd    elgamal.PartialDecryption
	err   error
}

// DecryptionShare records one executor's verified contribution to a
// reconstructed plaintext, the unit spec.md §6's decryption_transcript is
// built from.
type DecryptionShare struct {
	Index   int
	Proof   curve.DLEqProof
	Partial curve.Point
}

// Decrypt implements spec.md §4.8's `decrypt(ciphertext, required=t) → m`:
// broadcast to every non-Offline executor, verify each partial's NIZK as it
// arrives, and, once every request has answered or hit the hard deadline,
// reconstruct via Lagrange from the first `threshold` valid partials.
// Executors that time out or answer with an invalid proof are never
// counted, and Decrypt records every executor's outcome against its
// rolling error count regardless of whether the round as a whole succeeds.
func (c *Coordinator) Decrypt(ctx context.Context, ct elgamal.Ciphertext) (uint64, error) {
	m, _, err := c.DecryptWithTranscript(ctx, ct)
	return m, err
}

// DecryptWithTranscript is Decrypt, additionally returning the quorum of
// verified partials that reconstructed the plaintext, so callers can
// populate spec.md §6's decryption_transcript field.
func (c *Coordinator) DecryptWithTranscript(ctx context.Context, ct elgamal.Ciphertext) (uint64, []DecryptionShare, error) {
	soft, hard := c.requestTimeout()
	hardCtx, cancel := context.WithTimeout(ctx, hard)
	defer cancel()

	quorum := c.selectQuorum(len(c.states))
	if len(quorum) < c.cfg.Threshold {
		return 0, nil, fmt.Errorf("%w: only %d non-offline executors, need %d", ErrQuorumNotReached, len(quorum), c.cfg.Threshold)
	}

	results := make(chan partialResult, len(quorum))
	var wg sync.WaitGroup
	for _, st := range quorum {
		wg.Add(1)
		go func(st *executorState) {
			defer wg.Done()
			done := make(chan struct{})
			go c.watchSoftTimeout(st.desc.Index, soft, done)
			pd, err := c.requestPartial(hardCtx, st.desc, ct)
			close(done)
			results <- partialResult{index: st.desc.Index, pd: pd, err: err}
		}(st)
	}
	go func() {
		wg.Wait()
		close(results)
	}()

	pkShares := make(map[int]curve.Point, len(c.states))
	for _, st := range c.states {
		pkShares[st.desc.Index] = st.desc.PublicShare
	}

	var valid []elgamal.PartialDecryption
	for res := range results {
		if res.err != nil {
			c.recordFailure(res.index)
			continue
		}
		if !elgamal.VerifyPartial(pkShares[res.index], ct.C1, res.pd) {
			c.recordFailure(res.index)
			continue
		}
		c.recordSuccess(res.index)
		if len(valid) < c.cfg.Threshold {
			valid = append(valid, res.pd)
		}
	}
	if len(valid) < c.cfg.Threshold {
		return 0, nil, fmt.Errorf("%w: collected %d of %d", ErrQuorumNotReached, len(valid), c.cfg.Threshold)
	}

	m, err := elgamal.Combine(pkShares, ct, valid, c.cfg.Threshold, c.bsgs)
	if err != nil {
		return 0, nil, err
	}
	shares := make([]DecryptionShare, len(valid))
	for i, pd := range valid {
		shares[i] = DecryptionShare{Index: pd.Index, Proof: pd.Proof, Partial: pd.D}
	}
	return m, shares, nil
}

// BatchDecrypt pipelines Decrypt over several ciphertexts, per spec.md
// §4.8's `batch_decrypt`. Each item is requested independently rather than
// in one combined wire round trip, since the teacher's transport layer has
// no batched-RPC precedent to generalize from; a real batch proof over all
// requested items is the natural follow-up once an executor binary exists
// to produce one.
func (c *Coordinator) BatchDecrypt(ctx context.Context, cts []elgamal.Ciphertext) ([]uint64, error) {
	out := make([]uint64, len(cts))
	for i, ct := range cts {
		m, err := c.Decrypt(ctx, ct)
		if err != nil {
			return nil, fmt.Errorf("executor: batch_decrypt[%d]: %w", i, err)
		}
		out[i] = m
	}
	return out, nil
}

func (c *Coordinator) requestPartial(ctx context.Context, desc Descriptor, ct elgamal.Ciphertext) (elgamal.PartialDecryption, error) {
	payload, err := gobEncode(encodeCiphertext(ct))
	if err != nil {
		return elgamal.PartialDecryption{}, err
	}
	resp, err := c.sender.Send(ctx, desc.Endpoint, transport.Request{Op: "decrypt", Payload: payload})
	if err != nil {
		return elgamal.PartialDecryption{}, err
	}
	if resp.Err != "" {
		return elgamal.PartialDecryption{}, errors.New(resp.Err)
	}

	var wire decryptWireResponse
	if err := gobDecode(resp.Payload, &wire); err != nil {
		return elgamal.PartialDecryption{}, err
	}
	d, err := curve.DeserializePoint(wire.D)
	if err != nil {
		return elgamal.PartialDecryption{}, err
	}
	a1, err := curve.DeserializePoint(wire.ProofA1)
	if err != nil {
		return elgamal.PartialDecryption{}, err
	}
	a2, err := curve.DeserializePoint(wire.ProofA2)
	if err != nil {
		return elgamal.PartialDecryption{}, err
	}
	pc, err := curve.DeserializeScalar(wire.ProofC)
	if err != nil {
		return elgamal.PartialDecryption{}, err
	}
	ps, err := curve.DeserializeScalar(wire.ProofS)
	if err != nil {
		return elgamal.PartialDecryption{}, err
	}
	return elgamal.PartialDecryption{
		Index: wire.Index,
		D:     d,
		Proof: curve.DLEqProof{A1: a1, A2: a2, C: pc, S: ps},
	}, nil
}
