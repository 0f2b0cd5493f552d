package api

import (
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/rs/cors"
	"go.uber.org/zap"

	"github.com/phantompool/phantompool/pkg/core/executor"
	"github.com/phantompool/phantompool/pkg/core/market"
	"github.com/phantompool/phantompool/pkg/core/matching"
	"github.com/phantompool/phantompool/pkg/core/metrics"
	"github.com/phantompool/phantompool/pkg/core/orderpool"
	"github.com/phantompool/phantompool/pkg/core/round"
	"github.com/phantompool/phantompool/pkg/core/scheduler"
	"github.com/phantompool/phantompool/pkg/crypto/bulletproof"
	"github.com/phantompool/phantompool/pkg/storage"
)

// Server exposes the Core API spec.md §6 names (submit_order, cancel_order,
// round_status, get_result, executor_health) over REST, plus a WebSocket
// push channel for round phase/result notifications, generalized from the
// teacher's gorilla/mux + rs/cors REST server and its Hub/Client WebSocket
// broadcast pattern.
type Server struct {
	markets    *market.Registry
	pools      *orderpool.Manager
	engines    map[string]*matching.Engine
	schedulers map[string]*scheduler.Scheduler
	exec       *executor.Coordinator
	store      *storage.ResultStore
	wal        storage.WAL
	metrics    *metrics.Registry
	bpParams   bulletproof.Params
	verifier   orderpool.SignatureVerifier

	router *mux.Router
	hub    *Hub
	logger *zap.SugaredLogger
}

// NewServer wires one Core API server over an already-provisioned set of
// per-market engines and schedulers. engines and schedulers must share
// exactly the markets registered in markets/pools.
func NewServer(
	markets *market.Registry,
	pools *orderpool.Manager,
	engines map[string]*matching.Engine,
	schedulers map[string]*scheduler.Scheduler,
	exec *executor.Coordinator,
	store *storage.ResultStore,
	wal storage.WAL,
	metricsReg *metrics.Registry,
	bpParams bulletproof.Params,
	logger *zap.SugaredLogger,
) *Server {
	if wal == nil {
		wal = storage.NewNopWAL()
	}
	s := &Server{
		markets:    markets,
		pools:      pools,
		engines:    engines,
		schedulers: schedulers,
		exec:       exec,
		store:      store,
		wal:        wal,
		metrics:    metricsReg,
		bpParams:   bpParams,
		verifier:   walletVerifier{},
		router:     mux.NewRouter(),
		hub:        NewHub(logger),
		logger:     logger,
	}
	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	api := s.router.PathPrefix("/api/v1").Subrouter()

	api.HandleFunc("/markets/{symbol}/orders", s.handleSubmitOrder).Methods("POST")
	api.HandleFunc("/markets/{symbol}/orders/cancel", s.handleCancelOrder).Methods("POST")
	api.HandleFunc("/markets/{symbol}/round", s.handleRoundStatus).Methods("GET")
	api.HandleFunc("/markets/{symbol}/results/{round_id}", s.handleGetResult).Methods("GET")
	api.HandleFunc("/executors/health", s.handleExecutorHealth).Methods("GET")
	api.HandleFunc("/markets/{symbol}/status", s.handleSetMarketStatus).Methods("POST")

	s.router.HandleFunc("/ws", s.handleWebSocket)
	s.router.HandleFunc("/health", s.handleHealth).Methods("GET")
}

// Start runs the WebSocket hub and blocks serving HTTP on addr.
func (s *Server) Start(addr string) error {
	go s.hub.Run()

	c := cors.New(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Content-Type", "Authorization"},
		AllowCredentials: false,
	})

	if s.logger != nil {
		s.logger.Infow("api_listen", "addr", addr)
	}
	return http.ListenAndServe(addr, c.Handler(s.router))
}

func (s *Server) engineFor(symbol string) (*matching.Engine, error) {
	e, ok := s.engines[symbol]
	if !ok {
		return nil, fmt.Errorf("api: unknown market %q", symbol)
	}
	return e, nil
}

// handleSubmitOrder implements spec.md §6's `submit_order(order) →
// { accepted, id?, reason? }`.
func (s *Server) handleSubmitOrder(w http.ResponseWriter, r *http.Request) {
	symbol := mux.Vars(r)["symbol"]
	pool, err := s.pools.Get(symbol)
	if err != nil {
		respondError(w, http.StatusNotFound, "unknown_market", err.Error())
		return
	}

	var req OrderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_body", err.Error())
		return
	}

	order, side, err := orderFromRequest(symbol, req)
	if err != nil {
		respondJSON(w, SubmitOrderResponse{Accepted: false, Reason: err.Error()})
		return
	}

	book := pool.Buys
	if side == orderpool.Sell {
		book = pool.Sells
	}
	if err := book.Submit(order, s.verifier, s.bpParams); err != nil {
		var rejected *orderpool.RejectedError
		if errors.As(err, &rejected) {
			s.metrics.RecordRejection(symbol, rejected.Kind)
			respondJSON(w, SubmitOrderResponse{Accepted: false, Reason: rejected.Kind.String()})
			return
		}
		respondError(w, http.StatusInternalServerError, "submit_failed", err.Error())
		return
	}

	s.metrics.RecordSubmission(symbol)
	respondJSON(w, SubmitOrderResponse{Accepted: true, ID: order.ID})
}

func orderFromRequest(symbol string, req OrderRequest) (*orderpool.Order, orderpool.Side, error) {
	var side orderpool.Side
	switch req.Side {
	case "buy":
		side = orderpool.Buy
	case "sell":
		side = orderpool.Sell
	default:
		return nil, 0, fmt.Errorf("invalid side %q", req.Side)
	}

	amount, err := jsonToCiphertext(req.EncryptedAmount)
	if err != nil {
		return nil, 0, fmt.Errorf("encrypted_amount: %w", err)
	}
	limitPrice, err := jsonToCiphertext(req.EncryptedLimitPrice)
	if err != nil {
		return nil, 0, fmt.Errorf("encrypted_limit_price: %w", err)
	}
	proof, err := bulletproofFromHex(req.SolvencyProof)
	if err != nil {
		return nil, 0, fmt.Errorf("solvency_proof: %w", err)
	}
	sig, err := hex.DecodeString(req.Signature)
	if err != nil {
		return nil, 0, fmt.Errorf("signature: %w", err)
	}

	order := &orderpool.Order{
		Owner:               req.Owner,
		Market:              symbol,
		Side:                side,
		EncryptedAmount:     amount,
		EncryptedLimitPrice: limitPrice,
		TickIndex:           req.TickIndex,
		SolvencyProof:       proof,
		Signature:           sig,
		SubmitTime:          req.SubmitTime,
		Nonce:               req.Nonce,
	}
	return order, side, nil
}

// handleCancelOrder implements spec.md §6's `cancel_order`. The request
// doesn't carry which side the order is on, so both books are tried;
// cancellation is idempotent either way (Testable Property 11).
func (s *Server) handleCancelOrder(w http.ResponseWriter, r *http.Request) {
	symbol := mux.Vars(r)["symbol"]
	pool, err := s.pools.Get(symbol)
	if err != nil {
		respondError(w, http.StatusNotFound, "unknown_market", err.Error())
		return
	}

	var req CancelOrderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_body", err.Error())
		return
	}

	cancelled := pool.Buys.Cancel(req.Owner, req.Nonce) || pool.Sells.Cancel(req.Owner, req.Nonce)
	if cancelled {
		s.metrics.RecordCancellation(symbol)
	}
	respondJSON(w, CancelOrderResponse{Cancelled: cancelled})
}

// handleRoundStatus implements spec.md §6's `round_status()`.
func (s *Server) handleRoundStatus(w http.ResponseWriter, r *http.Request) {
	symbol := mux.Vars(r)["symbol"]
	engine, err := s.engineFor(symbol)
	if err != nil {
		respondError(w, http.StatusNotFound, "unknown_market", err.Error())
		return
	}
	pool, err := s.pools.Get(symbol)
	if err != nil {
		respondError(w, http.StatusNotFound, "unknown_market", err.Error())
		return
	}

	var nextTickMs int64
	if sch, ok := s.schedulers[symbol]; ok {
		nextTickMs = sch.NextTickIn().Milliseconds()
	}

	respondJSON(w, RoundStatusResponse{
		RoundID:       engine.RoundID(),
		Phase:         engine.Phase(),
		NextRoundInMs: nextTickMs,
		PendingBuys:   pool.Buys.Len(),
		PendingSells:  pool.Sells.Len(),
	})
}

// handleGetResult implements spec.md §6's `get_result(round_id)`.
func (s *Server) handleGetResult(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	symbol := vars["symbol"]
	var roundID uint64
	if _, err := fmt.Sscanf(vars["round_id"], "%d", &roundID); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_round_id", err.Error())
		return
	}

	res, ok, err := s.store.GetResult(symbol, roundID)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "lookup_failed", err.Error())
		return
	}
	if !ok {
		if ev, ok2, err2 := s.store.GetAborted(symbol, roundID); err2 == nil && ok2 {
			respondJSON(w, map[string]string{"round_id": vars["round_id"], "status": "aborted", "reason": ev.Reason.String()})
			return
		}
		respondError(w, http.StatusNotFound, "not_found", "round result not found")
		return
	}

	wire, err := matchingResultToJSON(&res)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "encode_failed", err.Error())
		return
	}
	respondJSON(w, wire)
}

// handleExecutorHealth implements spec.md §6's `executor_health()`.
func (s *Server) handleExecutorHealth(w http.ResponseWriter, r *http.Request) {
	health := s.exec.Health()
	out := make([]ExecutorHealthEntry, len(health))
	for i, h := range health {
		out[i] = ExecutorHealthEntry{
			Index:           h.Index,
			Status:          h.Status,
			ErrorRate:       h.ErrorRate,
			LastHeartbeatMs: h.LastHeartbeatMs,
		}
	}
	respondJSON(w, out)
}

// handleSetMarketStatus is the admin operation backing spec.md §4.6's
// MarketClosed rejection: flips a market's status in the registry and
// propagates it to the live pool so Submit starts (or stops) rejecting
// orders immediately, without waiting for a round boundary.
func (s *Server) handleSetMarketStatus(w http.ResponseWriter, r *http.Request) {
	symbol := mux.Vars(r)["symbol"]

	var req SetMarketStatusRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_body", err.Error())
		return
	}
	status, err := market.ParseStatus(req.Status)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid_status", err.Error())
		return
	}

	if err := s.markets.SetStatus(symbol, status); err != nil {
		respondError(w, http.StatusNotFound, "set_status_failed", err.Error())
		return
	}
	pool, err := s.pools.Get(symbol)
	if err != nil {
		respondError(w, http.StatusNotFound, "unknown_market", err.Error())
		return
	}
	pool.SetStatus(status)

	if s.logger != nil {
		s.logger.Infow("market_status_changed", "market", symbol, "status", status.String())
	}
	respondJSON(w, SetMarketStatusResponse{Symbol: symbol, Status: status.String()})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, map[string]string{"status": "ok"})
}

// HandleRoundOutcome is the onResult callback passed to scheduler.New: record
// metrics, archive the outcome, and push a notification to subscribers of
// "round:<market>". Wired in once per market at process startup.
func (s *Server) HandleRoundOutcome(symbol string) func(*round.Result, *round.AbortedEvent, error) {
	return func(res *round.Result, aborted *round.AbortedEvent, err error) {
		if err != nil {
			if s.logger != nil {
				s.logger.Errorw("round_failed", "market", symbol, "err", err)
			}
			return
		}
		s.metrics.RecordResult(symbol, res, aborted)

		if res != nil {
			s.wal.Append(fmt.Sprintf("round_result market=%s round=%d clearing_price=%d matched_volume=%d pairs=%d",
				symbol, res.RoundID, res.ClearingPrice, res.TotalMatchedVolume, len(res.Pairs)))
			if err := s.store.SaveResult(res); err != nil && s.logger != nil {
				s.logger.Errorw("save_result_failed", "market", symbol, "round_id", res.RoundID, "err", err)
			}
			wire, err := matchingResultToJSON(res)
			if err != nil {
				if s.logger != nil {
					s.logger.Errorw("encode_result_failed", "market", symbol, "err", err)
				}
				return
			}
			s.hub.BroadcastToChannel("round:"+symbol, RoundNotificationMessage{
				Type: "round_result", Market: symbol, Result: &wire,
			})
			return
		}

		if aborted != nil {
			s.wal.Append(fmt.Sprintf("round_aborted market=%s round=%d reason=%s", symbol, aborted.RoundID, aborted.Reason.String()))
			if err := s.store.SaveAborted(aborted); err != nil && s.logger != nil {
				s.logger.Errorw("save_aborted_failed", "market", symbol, "round_id", aborted.RoundID, "err", err)
			}
			s.hub.BroadcastToChannel("round:"+symbol, RoundNotificationMessage{
				Type: "round_phase", Market: symbol, Phase: aborted.Reason.String(),
			})
		}
	}
}

func respondJSON(w http.ResponseWriter, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(data)
}

func respondError(w http.ResponseWriter, status int, errCode string, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(ErrorResponse{Error: errCode, Message: message})
}
