package storage

import (
	"path/filepath"
	"testing"

	"github.com/phantompool/phantompool/pkg/core/round"
)

func openTestStore(t *testing.T) *ResultStore {
	t.Helper()
	s, err := NewResultStore(filepath.Join(t.TempDir(), "results"))
	if err != nil {
		t.Fatalf("open result store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestSaveAndGetResult(t *testing.T) {
	s := openTestStore(t)
	res := &round.Result{
		RoundID:            3,
		Market:             "BASE/QUOTE",
		ClearingPrice:      150,
		TotalMatchedVolume: 20,
		Pairs:              []round.Pair{{BuyID: "b1", SellID: "s1", Amount: 20}},
	}
	if err := s.SaveResult(res); err != nil {
		t.Fatalf("save result: %v", err)
	}

	got, ok, err := s.GetResult("BASE/QUOTE", 3)
	if err != nil {
		t.Fatalf("get result: %v", err)
	}
	if !ok {
		t.Fatalf("expected result to be found")
	}
	if got.ClearingPrice != 150 || got.TotalMatchedVolume != 20 || len(got.Pairs) != 1 {
		t.Fatalf("unexpected result: %+v", got)
	}
}

func TestGetResultNotFound(t *testing.T) {
	s := openTestStore(t)
	_, ok, err := s.GetResult("BASE/QUOTE", 999)
	if err != nil {
		t.Fatalf("get result: %v", err)
	}
	if ok {
		t.Fatalf("expected not found")
	}
}

func TestSaveAndGetAborted(t *testing.T) {
	s := openTestStore(t)
	ev := &round.AbortedEvent{RoundID: 4, Market: "BASE/QUOTE", Reason: round.QuorumNotReached}
	if err := s.SaveAborted(ev); err != nil {
		t.Fatalf("save aborted: %v", err)
	}

	got, ok, err := s.GetAborted("BASE/QUOTE", 4)
	if err != nil {
		t.Fatalf("get aborted: %v", err)
	}
	if !ok {
		t.Fatalf("expected aborted event to be found")
	}
	if got.Reason != round.QuorumNotReached {
		t.Fatalf("expected QuorumNotReached, got %v", got.Reason)
	}
}

func TestLoadRecentResultsOrdersNewestFirstPerMarket(t *testing.T) {
	s := openTestStore(t)
	for _, id := range []uint64{1, 2, 3} {
		if err := s.SaveResult(&round.Result{RoundID: id, Market: "BASE/QUOTE"}); err != nil {
			t.Fatalf("save result %d: %v", id, err)
		}
	}
	if err := s.SaveResult(&round.Result{RoundID: 1, Market: "OTHER/QUOTE"}); err != nil {
		t.Fatalf("save result for other market: %v", err)
	}

	recent, err := s.LoadRecentResults("BASE/QUOTE", 2)
	if err != nil {
		t.Fatalf("load recent: %v", err)
	}
	if len(recent) != 2 {
		t.Fatalf("expected 2 results, got %d", len(recent))
	}
	if recent[0].RoundID != 3 || recent[1].RoundID != 2 {
		t.Fatalf("expected newest-first order [3,2], got [%d,%d]", recent[0].RoundID, recent[1].RoundID)
	}
}
