package orderpool

import "testing"

func TestSigningMessageChangesWithEveryBoundField(t *testing.T) {
	base := &Order{Owner: "alice", Market: "BASE/QUOTE", Side: Buy, Nonce: 1, SubmitTime: 1000}
	baseMsg := base.SigningMessage()

	variants := []*Order{
		{Owner: "bob", Market: base.Market, Side: base.Side, Nonce: base.Nonce, SubmitTime: base.SubmitTime},
		{Owner: base.Owner, Market: "OTHER/PAIR", Side: base.Side, Nonce: base.Nonce, SubmitTime: base.SubmitTime},
		{Owner: base.Owner, Market: base.Market, Side: Sell, Nonce: base.Nonce, SubmitTime: base.SubmitTime},
		{Owner: base.Owner, Market: base.Market, Side: base.Side, Nonce: 2, SubmitTime: base.SubmitTime},
		{Owner: base.Owner, Market: base.Market, Side: base.Side, Nonce: base.Nonce, SubmitTime: 2000},
	}
	for i, v := range variants {
		if string(v.SigningMessage()) == string(baseMsg) {
			t.Fatalf("variant %d produced an identical signing message", i)
		}
	}
}

func TestRejectionKindStrings(t *testing.T) {
	cases := map[RejectionKind]string{
		InvalidSignature: "invalid_signature",
		SolvencyFailed:   "solvency_failed",
		DuplicateNonce:   "duplicate_nonce",
		MarketClosed:     "market_closed",
		AmountOutOfRange: "amount_out_of_range",
		PoolFull:         "pool_full",
	}
	for kind, want := range cases {
		if got := kind.String(); got != want {
			t.Fatalf("RejectionKind(%d).String() = %s, want %s", kind, got, want)
		}
	}
	err := reject(PoolFull)
	if err.Error() == "" {
		t.Fatalf("RejectedError.Error() returned empty string")
	}
}
