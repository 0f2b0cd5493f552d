package executor

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/phantompool/phantompool/pkg/crypto/tss"
	"github.com/phantompool/phantompool/pkg/transport"
)

type signShareResult struct {
	index int
	share tss.Signature
	err   error
}

// Sign implements spec.md §4.8's `sign(batch_commitment) → threshold_
// signature`: collect signature shares from a quorum, verify each under
// the signer's own public key before counting it, then combine into a
// settlement-ready aggregate the same way Decrypt combines partial
// decryptions.
func (c *Coordinator) Sign(ctx context.Context, batchCommitment []byte) (tss.Signature, error) {
	soft, hard := c.requestTimeout()
	hardCtx, cancel := context.WithTimeout(ctx, hard)
	defer cancel()

	quorum := c.selectQuorum(len(c.states))
	if len(quorum) < c.cfg.Threshold {
		return nil, fmt.Errorf("%w: only %d non-offline executors, need %d", ErrQuorumNotReached, len(quorum), c.cfg.Threshold)
	}

	results := make(chan signShareResult, len(quorum))
	var wg sync.WaitGroup
	for _, st := range quorum {
		wg.Add(1)
		go func(st *executorState) {
			defer wg.Done()
			done := make(chan struct{})
			go c.watchSoftTimeout(st.desc.Index, soft, done)
			share, err := c.requestSignShare(hardCtx, st.desc, batchCommitment)
			close(done)
			results <- signShareResult{index: st.desc.Index, share: share, err: err}
		}(st)
	}
	go func() {
		wg.Wait()
		close(results)
	}()

	var shares []tss.Signature
	var contributors []*tss.PublicKey
	for res := range results {
		st := c.find(res.index)
		if res.err != nil || st == nil || st.desc.SignerPubKey == nil {
			c.recordFailure(res.index)
			continue
		}
		if !tss.VerifyShare(st.desc.SignerPubKey, batchCommitment, res.share) {
			c.recordFailure(res.index)
			continue
		}
		c.recordSuccess(res.index)
		if len(shares) < c.cfg.Threshold {
			shares = append(shares, res.share)
			contributors = append(contributors, st.desc.SignerPubKey)
		}
	}
	if len(shares) < c.cfg.Threshold {
		return nil, fmt.Errorf("%w: collected %d of %d signature shares", ErrQuorumNotReached, len(shares), c.cfg.Threshold)
	}

	agg, err := tss.Combine(shares, c.cfg.Threshold)
	if err != nil {
		return nil, fmt.Errorf("executor: combine signature shares: %w", err)
	}
	if !tss.VerifyAggregate(contributors, batchCommitment, agg) {
		return nil, fmt.Errorf("executor: aggregate signature failed verification")
	}
	return agg, nil
}

func (c *Coordinator) requestSignShare(ctx context.Context, desc Descriptor, batchCommitment []byte) (tss.Signature, error) {
	payload, err := gobEncode(signWireRequest{Commitment: batchCommitment})
	if err != nil {
		return nil, err
	}
	resp, err := c.sender.Send(ctx, desc.Endpoint, transport.Request{Op: "sign", Payload: payload})
	if err != nil {
		return nil, err
	}
	if resp.Err != "" {
		return nil, errors.New(resp.Err)
	}
	var wire signWireResponse
	if err := gobDecode(resp.Payload, &wire); err != nil {
		return nil, err
	}
	return wire.Signature, nil
}
