// Package storage implements the optional result archive SPEC_FULL.md's
// component table names: a durable record of completed and aborted rounds,
// keyed by market and round id, so an operator can answer `get_result`
// after a process restart instead of only serving from in-memory state.
//
// Grounded in the teacher's pkg/storage/pebble_store.go: same key-prefix
// convention and gob encoding, repointed from consensus blocks/certs at
// round.Result/round.AbortedEvent.
package storage

import (
	"fmt"

	"github.com/cockroachdb/pebble"

	"github.com/phantompool/phantompool/pkg/core/round"
)

// ResultStore persists completed and aborted round outcomes per market.
type ResultStore struct {
	db *pebble.DB
}

func NewResultStore(path string) (*ResultStore, error) {
	db, err := pebble.Open(path, &pebble.Options{})
	if err != nil {
		return nil, err
	}
	return &ResultStore{db: db}, nil
}

func (s *ResultStore) Close() error { return s.db.Close() }

// keys: r:<market>:<8-byte-round-id>  -> gob(round.Result)
//       a:<market>:<8-byte-round-id>  -> gob(round.AbortedEvent)

func kResult(market string, id uint64) []byte {
	return append([]byte(fmt.Sprintf("r:%s:", market)), roundIDKey(id)...)
}

func kAborted(market string, id uint64) []byte {
	return append([]byte(fmt.Sprintf("a:%s:", market)), roundIDKey(id)...)
}

func resultPrefix(market string) []byte {
	return []byte(fmt.Sprintf("r:%s:", market))
}

func keyUpperBound(prefix []byte) []byte {
	upper := make([]byte, len(prefix))
	copy(upper, prefix)
	for i := len(upper) - 1; i >= 0; i-- {
		upper[i]++
		if upper[i] != 0 {
			return upper[:i+1]
		}
	}
	return nil
}

// SaveResult archives a completed round.
func (s *ResultStore) SaveResult(res *round.Result) error {
	val, err := encodeGob(res)
	if err != nil {
		return fmt.Errorf("storage: encode result: %w", err)
	}
	if err := s.db.Set(kResult(res.Market, res.RoundID), val, pebble.Sync); err != nil {
		return fmt.Errorf("storage: save result: %w", err)
	}
	return nil
}

// GetResult loads one market's round by id. ok is false if no result (or
// abort) was ever recorded for that round id.
func (s *ResultStore) GetResult(market string, roundID uint64) (round.Result, bool, error) {
	val, closer, err := s.db.Get(kResult(market, roundID))
	if err == pebble.ErrNotFound {
		return round.Result{}, false, nil
	}
	if err != nil {
		return round.Result{}, false, fmt.Errorf("storage: get result: %w", err)
	}
	defer closer.Close()

	var out round.Result
	if err := decodeGob(val, &out); err != nil {
		return round.Result{}, false, fmt.Errorf("storage: decode result: %w", err)
	}
	return out, true, nil
}

// SaveAborted archives a round that produced no result.
func (s *ResultStore) SaveAborted(ev *round.AbortedEvent) error {
	val, err := encodeGob(ev)
	if err != nil {
		return fmt.Errorf("storage: encode aborted event: %w", err)
	}
	if err := s.db.Set(kAborted(ev.Market, ev.RoundID), val, pebble.Sync); err != nil {
		return fmt.Errorf("storage: save aborted event: %w", err)
	}
	return nil
}

// GetAborted loads the abort reason recorded for a market's round id, if
// any.
func (s *ResultStore) GetAborted(market string, roundID uint64) (round.AbortedEvent, bool, error) {
	val, closer, err := s.db.Get(kAborted(market, roundID))
	if err == pebble.ErrNotFound {
		return round.AbortedEvent{}, false, nil
	}
	if err != nil {
		return round.AbortedEvent{}, false, fmt.Errorf("storage: get aborted event: %w", err)
	}
	defer closer.Close()

	var out round.AbortedEvent
	if err := decodeGob(val, &out); err != nil {
		return round.AbortedEvent{}, false, fmt.Errorf("storage: decode aborted event: %w", err)
	}
	return out, true, nil
}

// LoadRecentResults returns up to limit of a market's most recently
// completed rounds, newest first.
func (s *ResultStore) LoadRecentResults(market string, limit int) ([]round.Result, error) {
	prefix := resultPrefix(market)
	iter, err := s.db.NewIter(&pebble.IterOptions{
		LowerBound: prefix,
		UpperBound: keyUpperBound(prefix),
	})
	if err != nil {
		return nil, fmt.Errorf("storage: iterate results: %w", err)
	}
	defer iter.Close()

	var results []round.Result
	for iter.Last(); iter.Valid() && len(results) < limit; iter.Prev() {
		var res round.Result
		if err := decodeGob(iter.Value(), &res); err != nil {
			continue
		}
		results = append(results, res)
	}
	return results, nil
}
