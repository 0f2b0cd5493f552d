package api

import (
	"bytes"
	"context"
	"encoding/gob"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	gethcrypto "github.com/ethereum/go-ethereum/crypto"
	"go.uber.org/zap"

	"github.com/phantompool/phantompool/pkg/core/executor"
	"github.com/phantompool/phantompool/pkg/core/market"
	"github.com/phantompool/phantompool/pkg/core/matching"
	"github.com/phantompool/phantompool/pkg/core/metrics"
	"github.com/phantompool/phantompool/pkg/core/orderpool"
	"github.com/phantompool/phantompool/pkg/core/scheduler"
	"github.com/phantompool/phantompool/pkg/crypto/bulletproof"
	"github.com/phantompool/phantompool/pkg/crypto/curve"
	"github.com/phantompool/phantompool/pkg/crypto/elgamal"
	"github.com/phantompool/phantompool/pkg/crypto/shamir"
	"github.com/phantompool/phantompool/pkg/crypto/tss"
	"github.com/phantompool/phantompool/pkg/crypto/vrf"
	"github.com/phantompool/phantompool/pkg/storage"
	"github.com/phantompool/phantompool/pkg/transport"
	"github.com/phantompool/phantompool/pkg/util"
	"github.com/phantompool/phantompool/pkg/wallet"
)

type serverWireMsg struct {
	C1, C2              []byte
	Index               int
	D, ProofA1, ProofA2 []byte
	ProofC, ProofS      []byte
}

func gobEnc(v any) []byte {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(v); err != nil {
		panic(err)
	}
	return buf.Bytes()
}

func gobDec(b []byte, v any) error {
	return gob.NewDecoder(bytes.NewReader(b)).Decode(v)
}

type serverFixture struct {
	symbol  string
	pk      curve.Point
	params  market.Params
	bp      bulletproof.Params
	pools   *orderpool.Manager
	srv     *Server
	handler http.Handler
}

func buildServerFixture(t *testing.T) *serverFixture {
	t.Helper()
	const symbol = "BASE-QUOTE"
	const n, threshold = 5, 3

	kp, err := elgamal.KeyGen()
	if err != nil {
		t.Fatalf("elgamal keygen: %v", err)
	}
	shares, err := shamir.Share(kp.SK, threshold, n)
	if err != nil {
		t.Fatalf("shamir share: %v", err)
	}

	lt := transport.NewLoopbackTransport()
	descs := make([]executor.Descriptor, n)
	for i := 0; i < n; i++ {
		idx := i + 1
		skShare := shares[i].Value
		signer, err := tss.NewSignerFromSeed(bytes.Repeat([]byte{byte('a' + i)}, 32))
		if err != nil {
			t.Fatalf("tss signer: %v", err)
		}
		endpoint := fmt.Sprintf("executor-%d", idx)
		descs[i] = executor.Descriptor{
			Index:        idx,
			PublicShare:  curve.MulGen(skShare),
			SignerPubKey: signer.PublicKey(),
			Endpoint:     endpoint,
		}
		lt.Register(endpoint, func(ctx context.Context, req transport.Request) (transport.Response, error) {
			if req.Op != "decrypt" {
				return transport.Response{Err: "unknown op"}, nil
			}
			var wire serverWireMsg
			if err := gobDec(req.Payload, &wire); err != nil {
				return transport.Response{Err: err.Error()}, nil
			}
			c1, err := curve.DeserializePoint(wire.C1)
			if err != nil {
				return transport.Response{Err: err.Error()}, nil
			}
			pd, err := elgamal.PartialDecrypt(idx, skShare, curve.MulGen(skShare), c1)
			if err != nil {
				return transport.Response{Err: err.Error()}, nil
			}
			return transport.Response{Payload: gobEnc(serverWireMsg{
				Index: pd.Index, D: pd.D.Serialize(),
				ProofA1: pd.Proof.A1.Serialize(), ProofA2: pd.Proof.A2.Serialize(),
				ProofC: pd.Proof.C.Serialize(), ProofS: pd.Proof.S.Serialize(),
			})}, nil
		})
	}

	coord := executor.NewCoordinator(descs, executor.Config{
		Threshold:      threshold,
		SoftTimeout:    50 * time.Millisecond,
		HardTimeout:    500 * time.Millisecond,
		MaxRoundVolume: 1 << 20,
	}, lt, util.RealClock{})

	params := market.Params{
		Symbol:              symbol,
		MaxAmount:           1 << 40,
		MaxPrice:            1_000_000,
		TickSize:            10,
		PoolCapacityPerSide: 100,
	}
	pools := orderpool.NewManager()
	pool := pools.Open(params, kp.PK)

	vrfKey, err := vrf.KeyGen()
	if err != nil {
		t.Fatalf("vrf keygen: %v", err)
	}
	engine := matching.NewEngine(symbol, params, pool, coord, vrfKey, util.RealClock{}, zap.NewNop().Sugar(), 4)

	bpParams, err := bulletproof.Setup(bulletproof.DefaultNBits)
	if err != nil {
		t.Fatalf("bulletproof setup: %v", err)
	}

	store, err := storage.NewResultStore(t.TempDir() + "/results")
	if err != nil {
		t.Fatalf("open result store: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	markets := market.NewRegistry()
	if err := markets.Register(params); err != nil {
		t.Fatalf("register market: %v", err)
	}

	srv := NewServer(
		markets, pools,
		map[string]*matching.Engine{symbol: engine},
		map[string]*scheduler.Scheduler{},
		coord, store, storage.NewNopWAL(), metrics.NewRegistry(), bpParams, zap.NewNop().Sugar(),
	)

	return &serverFixture{symbol: symbol, pk: kp.PK, params: params, bp: bpParams, pools: pools, srv: srv, handler: srv.router}
}

func signedOrderRequest(t *testing.T, f *serverFixture, side string, amount, limitPrice, nonce uint64) OrderRequest {
	t.Helper()
	signer, err := wallet.GenerateKey()
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}

	gamma, err := curve.RandomScalar()
	if err != nil {
		t.Fatalf("random gamma: %v", err)
	}
	proof, err := bulletproof.Prove(f.bp, amount, gamma)
	if err != nil {
		t.Fatalf("prove solvency: %v", err)
	}
	encAmount, err := elgamal.Encrypt(f.pk, amount, f.params.MaxAmount)
	if err != nil {
		t.Fatalf("encrypt amount: %v", err)
	}
	encPrice, err := elgamal.Encrypt(f.pk, limitPrice, f.params.MaxAmount)
	if err != nil {
		t.Fatalf("encrypt price: %v", err)
	}

	amtJSON, err := ciphertextToJSON(encAmount)
	if err != nil {
		t.Fatalf("ciphertext json: %v", err)
	}
	priceJSON, err := ciphertextToJSON(encPrice)
	if err != nil {
		t.Fatalf("ciphertext json: %v", err)
	}

	var proofBuf bytes.Buffer
	if err := gob.NewEncoder(&proofBuf).Encode(proof); err != nil {
		t.Fatalf("encode solvency proof: %v", err)
	}

	req := OrderRequest{
		Owner:               signer.Address().Hex(),
		Side:                side,
		EncryptedAmount:     amtJSON,
		EncryptedLimitPrice: priceJSON,
		TickIndex:           f.params.TickIndex(limitPrice),
		SolvencyProof:       hex.EncodeToString(proofBuf.Bytes()),
		Nonce:               nonce,
		SubmitTime:          1,
	}

	sidePlaceholder := orderpool.Buy
	if side == "sell" {
		sidePlaceholder = orderpool.Sell
	}
	order := &orderpool.Order{
		Owner:         req.Owner,
		Market:        f.symbol,
		Side:          sidePlaceholder,
		TickIndex:     req.TickIndex,
		SolvencyProof: proof,
		SubmitTime:    req.SubmitTime,
		Nonce:         req.Nonce,
	}
	digest := gethcrypto.Keccak256Hash(order.SigningMessage())
	sig, err := signer.Sign(digest.Bytes())
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	req.Signature = hex.EncodeToString(sig)
	return req
}

func TestSubmitOrderAccepted(t *testing.T) {
	f := buildServerFixture(t)
	req := signedOrderRequest(t, f, "buy", 10, 100, 1)
	body, _ := json.Marshal(req)

	rr := httptest.NewRecorder()
	httpReq := httptest.NewRequest(http.MethodPost, "/api/v1/markets/"+f.symbol+"/orders", bytes.NewReader(body))
	f.handler.ServeHTTP(rr, httpReq)

	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rr.Code, rr.Body.String())
	}
	var resp SubmitOrderResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if !resp.Accepted {
		t.Fatalf("expected order to be accepted, reason=%s", resp.Reason)
	}
	if resp.ID == "" {
		t.Fatalf("expected a non-empty order id")
	}
}

func TestSubmitOrderRejectsBadSignature(t *testing.T) {
	f := buildServerFixture(t)
	req := signedOrderRequest(t, f, "buy", 10, 100, 1)
	req.Signature = hex.EncodeToString(bytes.Repeat([]byte{0xAB}, 65))
	body, _ := json.Marshal(req)

	rr := httptest.NewRecorder()
	httpReq := httptest.NewRequest(http.MethodPost, "/api/v1/markets/"+f.symbol+"/orders", bytes.NewReader(body))
	f.handler.ServeHTTP(rr, httpReq)

	var resp SubmitOrderResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.Accepted {
		t.Fatalf("expected rejection, got accepted")
	}
	if resp.Reason != "invalid_signature" {
		t.Fatalf("reason = %s, want invalid_signature", resp.Reason)
	}
}

func TestCancelOrderRoundTrips(t *testing.T) {
	f := buildServerFixture(t)
	req := signedOrderRequest(t, f, "sell", 5, 50, 7)
	body, _ := json.Marshal(req)

	rr := httptest.NewRecorder()
	f.handler.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/api/v1/markets/"+f.symbol+"/orders", bytes.NewReader(body)))
	if rr.Code != http.StatusOK {
		t.Fatalf("submit failed: %s", rr.Body.String())
	}

	cancelBody, _ := json.Marshal(CancelOrderRequest{Owner: req.Owner, Nonce: 7})
	rr2 := httptest.NewRecorder()
	f.handler.ServeHTTP(rr2, httptest.NewRequest(http.MethodPost, "/api/v1/markets/"+f.symbol+"/orders/cancel", bytes.NewReader(cancelBody)))

	var resp CancelOrderResponse
	if err := json.Unmarshal(rr2.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if !resp.Cancelled {
		t.Fatalf("expected cancellation to succeed")
	}
}

func TestRoundStatusReportsPendingCounts(t *testing.T) {
	f := buildServerFixture(t)
	req := signedOrderRequest(t, f, "buy", 10, 100, 1)
	body, _ := json.Marshal(req)
	rr := httptest.NewRecorder()
	f.handler.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/api/v1/markets/"+f.symbol+"/orders", bytes.NewReader(body)))
	if rr.Code != http.StatusOK {
		t.Fatalf("submit failed: %s", rr.Body.String())
	}

	rr2 := httptest.NewRecorder()
	f.handler.ServeHTTP(rr2, httptest.NewRequest(http.MethodGet, "/api/v1/markets/"+f.symbol+"/round", nil))
	var status RoundStatusResponse
	if err := json.Unmarshal(rr2.Body.Bytes(), &status); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if status.PendingBuys != 1 {
		t.Fatalf("pending_buys = %d, want 1", status.PendingBuys)
	}
}

func TestSetMarketStatusClosesAndReopensSubmission(t *testing.T) {
	f := buildServerFixture(t)

	statusBody, _ := json.Marshal(SetMarketStatusRequest{Status: "paused"})
	rr := httptest.NewRecorder()
	f.handler.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/api/v1/markets/"+f.symbol+"/status", bytes.NewReader(statusBody)))
	if rr.Code != http.StatusOK {
		t.Fatalf("set status failed: %d %s", rr.Code, rr.Body.String())
	}

	req := signedOrderRequest(t, f, "buy", 10, 100, 1)
	body, _ := json.Marshal(req)
	rr2 := httptest.NewRecorder()
	f.handler.ServeHTTP(rr2, httptest.NewRequest(http.MethodPost, "/api/v1/markets/"+f.symbol+"/orders", bytes.NewReader(body)))
	var resp SubmitOrderResponse
	if err := json.Unmarshal(rr2.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.Accepted || resp.Reason != "market_closed" {
		t.Fatalf("expected market_closed rejection while paused, got accepted=%v reason=%s", resp.Accepted, resp.Reason)
	}

	reopenBody, _ := json.Marshal(SetMarketStatusRequest{Status: "active"})
	rr3 := httptest.NewRecorder()
	f.handler.ServeHTTP(rr3, httptest.NewRequest(http.MethodPost, "/api/v1/markets/"+f.symbol+"/status", bytes.NewReader(reopenBody)))
	if rr3.Code != http.StatusOK {
		t.Fatalf("reopen failed: %d %s", rr3.Code, rr3.Body.String())
	}

	rr4 := httptest.NewRecorder()
	f.handler.ServeHTTP(rr4, httptest.NewRequest(http.MethodPost, "/api/v1/markets/"+f.symbol+"/orders", bytes.NewReader(body)))
	var resp2 SubmitOrderResponse
	if err := json.Unmarshal(rr4.Body.Bytes(), &resp2); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if !resp2.Accepted {
		t.Fatalf("expected acceptance once reopened, got reason=%s", resp2.Reason)
	}
}

func TestExecutorHealthListsEveryExecutor(t *testing.T) {
	f := buildServerFixture(t)
	rr := httptest.NewRecorder()
	f.handler.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/v1/executors/health", nil))
	var entries []ExecutorHealthEntry
	if err := json.Unmarshal(rr.Body.Bytes(), &entries); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if len(entries) != 5 {
		t.Fatalf("expected 5 executor entries, got %d", len(entries))
	}
}

