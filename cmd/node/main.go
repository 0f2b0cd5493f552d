// Command node runs a single-process PhantomPool devnet: one matching
// engine and scheduler per configured market, a threshold-ElGamal executor
// quorum simulated in-process over a loopback transport, and the Core API
// server in front of all of it.
//
// A production deployment would run each executor as its own process,
// holding one Shamir share each, talking over pkg/transport's libp2p
// implementation instead of the loopback transport — mirroring the
// teacher's own SingleNode-vs-multi-validator split in cmd/node/main.go.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/phantompool/phantompool/params"
	"github.com/phantompool/phantompool/pkg/api"
	"github.com/phantompool/phantompool/pkg/core/executor"
	"github.com/phantompool/phantompool/pkg/core/market"
	"github.com/phantompool/phantompool/pkg/core/matching"
	"github.com/phantompool/phantompool/pkg/core/metrics"
	"github.com/phantompool/phantompool/pkg/core/orderpool"
	"github.com/phantompool/phantompool/pkg/core/round"
	"github.com/phantompool/phantompool/pkg/core/scheduler"
	"github.com/phantompool/phantompool/pkg/crypto/bulletproof"
	"github.com/phantompool/phantompool/pkg/crypto/curve"
	"github.com/phantompool/phantompool/pkg/crypto/elgamal"
	"github.com/phantompool/phantompool/pkg/crypto/shamir"
	"github.com/phantompool/phantompool/pkg/crypto/tss"
	"github.com/phantompool/phantompool/pkg/crypto/vrf"
	"github.com/phantompool/phantompool/pkg/settlement"
	"github.com/phantompool/phantompool/pkg/storage"
	"github.com/phantompool/phantompool/pkg/transport"
	"github.com/phantompool/phantompool/pkg/util"
)

func main() {
	cfg := params.LoadFromEnv("")

	logFile := os.Getenv("LOG_FILE")
	if logFile == "" {
		logFile = "data/node.log"
	}
	logger, err := util.NewLoggerWithFile(logFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()
	sugar := logger.Sugar()
	sugar.Infow("logger_initialized", "log_file", logFile)

	symbols := params.Symbols()
	if len(symbols) == 0 {
		symbols = []string{"BASE-QUOTE"}
	}

	bpParams, err := bulletproof.Setup(bulletproof.DefaultNBits)
	if err != nil {
		sugar.Fatalw("bulletproof_setup_failed", "err", err)
	}

	markets := market.NewRegistry()
	pools := orderpool.NewManager()
	engines := make(map[string]*matching.Engine)
	schedulers := make(map[string]*scheduler.Scheduler)
	sink := settlement.NewLogSink(sugar)

	store, err := storage.NewResultStore(os.Getenv("RESULT_STORE_PATH"))
	if err != nil {
		sugar.Fatalw("result_store_open_failed", "err", err)
	}
	defer store.Close()

	walPath := os.Getenv("WAL_PATH")
	if walPath == "" {
		walPath = "data/node.wal"
	}
	wal, err := storage.NewFileWAL(walPath)
	if err != nil {
		sugar.Fatalw("wal_open_failed", "path", walPath, "err", err)
	}
	defer wal.Close()

	metricsReg := metrics.NewRegistry()
	clock := util.RealClock{}

	// One ElGamal keypair and one executor committee serve every market:
	// homomorphic aggregation only needs a consistent public key within a
	// market's own pool, so nothing requires per-market key material, and
	// spec.md's executor_health() surface describes one shared committee,
	// not one per market.
	kp, err := elgamal.KeyGen()
	if err != nil {
		sugar.Fatalw("elgamal_keygen_failed", "err", err)
	}
	coord, err := buildDevnetCoordinator(kp, cfg, clock)
	if err != nil {
		sugar.Fatalw("executor_quorum_setup_failed", "err", err)
	}

	srv := api.NewServer(markets, pools, engines, schedulers, coord, store, wal, metricsReg, bpParams, sugar)

	for _, symbol := range symbols {
		marketParams := market.Params{
			Symbol:              symbol,
			MaxAmount:           cfg.Market.MaxAmount,
			MaxPrice:            cfg.Market.MaxPrice,
			TickSize:            cfg.Market.TickSize,
			PoolCapacityPerSide: cfg.Market.PoolCapacityPerSide,
			RoundIntervalMs:     cfg.Round.RoundIntervalMs,
			MinInterRoundMs:     cfg.Round.MinInterRoundMs,
		}
		if err := markets.Register(marketParams); err != nil {
			sugar.Fatalw("market_register_failed", "symbol", symbol, "err", err)
		}

		pool := pools.Open(marketParams, kp.PK)

		vrfKey, err := vrf.KeyGen()
		if err != nil {
			sugar.Fatalw("vrf_keygen_failed", "symbol", symbol, "err", err)
		}

		engine := matching.NewEngine(symbol, marketParams, pool, coord, vrfKey, clock, sugar, 4)
		engines[symbol] = engine

		onResult := combineOutcomeHandlers(
			srv.HandleRoundOutcome(symbol),
			settlementOutcomeHandler(symbol, coord, sink, sugar),
		)

		sch := scheduler.New(scheduler.Config{
			RoundInterval: cfg.Round.RoundInterval(),
			MinInterRound: cfg.Round.MinInterRound(),
			HighWaterMark: marketParams.PoolCapacityPerSide,
		}, engine, pool, clock, onResult)
		schedulers[symbol] = sch

		sugar.Infow("market_initialized",
			"symbol", symbol,
			"round_interval_ms", cfg.Round.RoundIntervalMs,
			"threshold_t", cfg.Round.ThresholdT,
			"executors_n", cfg.Round.ExecutorsN,
		)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	for symbol, sch := range schedulers {
		sch := sch
		symbol := symbol
		go func() {
			if err := sch.Run(ctx); err != nil && ctx.Err() == nil {
				sugar.Errorw("scheduler_stopped", "symbol", symbol, "err", err)
			}
		}()
	}

	apiAddr := os.Getenv("API_ADDR")
	if apiAddr == "" {
		apiAddr = ":8080"
	}
	go func() {
		sugar.Infow("api_server_starting", "addr", apiAddr)
		if err := srv.Start(apiAddr); err != nil {
			sugar.Fatalw("api_server_failed", "err", err)
		}
	}()

	sugar.Infow("node_started", "markets", symbols, "api_addr", apiAddr)
	<-ctx.Done()
	sugar.Info("node_shutting_down")
}

// buildDevnetCoordinator Shamir-shares a fresh ElGamal secret key across
// cfg.Round.ExecutorsN in-process executors and wires them behind a
// loopback transport, so a single binary can exercise the full threshold-
// decryption and threshold-signing path without a multi-process deployment.
func buildDevnetCoordinator(kp elgamal.KeyPair, cfg params.Config, clock util.Clock) (*executor.Coordinator, error) {
	n, t := cfg.Round.ExecutorsN, cfg.Round.ThresholdT
	shares, err := shamir.Share(kp.SK, t, n)
	if err != nil {
		return nil, fmt.Errorf("shamir share: %w", err)
	}

	lt := transport.NewLoopbackTransport()
	descs := make([]executor.Descriptor, n)
	for i := 0; i < n; i++ {
		idx := i + 1
		skShare := shares[i].Value
		seed := make([]byte, 32)
		seed[0] = byte(idx)
		seed[1] = byte('p')
		signer, err := tss.NewSignerFromSeed(seed)
		if err != nil {
			return nil, fmt.Errorf("tss signer %d: %w", idx, err)
		}
		endpoint := fmt.Sprintf("devnet-executor-%d", idx)
		descs[i] = executor.Descriptor{
			Index:        idx,
			PublicShare:  curve.MulGen(skShare),
			SignerPubKey: signer.PublicKey(),
			Endpoint:     endpoint,
		}
		executor.RegisterDevnetHandler(lt, endpoint, idx, skShare, signer)
	}

	return executor.NewCoordinator(descs, executor.Config{
		Threshold:          t,
		SoftTimeout:        cfg.Executor.SoftTimeout(),
		HardTimeout:        cfg.Executor.HardTimeout(),
		MaxRoundVolume:     cfg.Market.MaxRoundVolume,
		ConsecutiveOffline: cfg.Executor.ConsecutiveOfflineThreshold,
	}, lt, clock), nil
}

// combineOutcomeHandlers fans one round outcome out to every interested
// subsystem, since scheduler.New accepts only a single onResult callback.
func combineOutcomeHandlers(handlers ...func(*round.Result, *round.AbortedEvent, error)) func(*round.Result, *round.AbortedEvent, error) {
	return func(res *round.Result, aborted *round.AbortedEvent, err error) {
		for _, h := range handlers {
			h(res, aborted, err)
		}
	}
}

// settlementOutcomeHandler threshold-signs a cleared round's commitment and
// hands it to the settlement sink, per spec.md §4.8's sign(batch_commitment)
// and SPEC_FULL.md §12's settlement-signing design note. Aborted rounds
// have nothing to settle.
func settlementOutcomeHandler(symbol string, coord *executor.Coordinator, sink settlement.Sink, logger *zap.SugaredLogger) func(*round.Result, *round.AbortedEvent, error) {
	return func(res *round.Result, aborted *round.AbortedEvent, err error) {
		if err != nil || res == nil {
			return
		}
		commitment := settlement.CommitmentFor(res)
		sig, sigErr := coord.Sign(context.Background(), commitment)
		if sigErr != nil {
			logger.Errorw("settlement_sign_failed", "symbol", symbol, "round_id", res.RoundID, "err", sigErr)
			return
		}
		if _, subErr := sink.Submit(context.Background(), settlement.Batch{Result: res, Signature: sig}); subErr != nil {
			logger.Errorw("settlement_submit_failed", "symbol", symbol, "round_id", res.RoundID, "err", subErr)
		}
	}
}
