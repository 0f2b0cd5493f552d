// Package params defines PhantomPool's runtime configuration: defaults
// plus .env/environment-variable overrides, mirroring the teacher's
// Default()/LoadFromEnv() split.
package params

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Round bounds the batch-auction cadence and threshold-decryption quorum.
type Round struct {
	// RoundIntervalMs is the cadence between scheduled matching rounds.
	// Zero disables periodic matching; rounds then run only on pool
	// fullness or an explicit trigger.
	RoundIntervalMs int64
	MinInterRoundMs int64
	ThresholdT      int
	ExecutorsN      int
}

// Market bounds what OrderPool.Submit will accept and how the BSGS table
// used to invert the final discrete-log decryption is sized.
type Market struct {
	MaxAmount           uint64
	MaxPrice            uint64
	MaxRoundVolume      uint64
	TickSize            uint64
	PoolCapacityPerSide int
}

// Executor bounds how long the coordinator waits for a decryption or
// signing quorum before treating a slow executor as failed.
type Executor struct {
	SoftTimeoutMs int64
	HardTimeoutMs int64
	// ConsecutiveOfflineThreshold is how many failed requests in a row (an
	// error, a missed hard deadline, or an invalid proof) mark an executor
	// Offline, which drops it from quorum selection until a heartbeat.
	ConsecutiveOfflineThreshold int
}

type Config struct {
	Round    Round
	Market   Market
	Executor Executor
}

// Default returns spec.md §6's Configuration section's named defaults.
func Default() Config {
	return Config{
		Round: Round{
			RoundIntervalMs: 30000,
			MinInterRoundMs: 1000,
			ThresholdT:      3,
			ExecutorsN:      5,
		},
		Market: Market{
			MaxAmount:           1 << 40,
			MaxPrice:            1 << 40,
			MaxRoundVolume:      1 << 24,
			TickSize:            1,
			PoolCapacityPerSide: 10000,
		},
		Executor: Executor{
			SoftTimeoutMs:               500,
			HardTimeoutMs:               2000,
			ConsecutiveOfflineThreshold: 3,
		},
	}
}

// LoadFromEnv loads configuration from a .env file (if present) and
// environment variables. Priority: ENV > .env file > defaults.
func LoadFromEnv(envPath string) Config {
	cfg := Default()

	if envPath != "" {
		_ = godotenv.Load(envPath)
	} else {
		_ = godotenv.Load()
	}

	if v := os.Getenv("ROUND_INTERVAL_MS"); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			cfg.Round.RoundIntervalMs = n
		}
	}
	if v := os.Getenv("MIN_INTER_ROUND_MS"); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			cfg.Round.MinInterRoundMs = n
		}
	}
	if v := os.Getenv("THRESHOLD_T"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Round.ThresholdT = n
		}
	}
	if v := os.Getenv("EXECUTORS_N"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Round.ExecutorsN = n
		}
	}

	if v := os.Getenv("MAX_AMOUNT"); v != "" {
		if n, err := strconv.ParseUint(v, 10, 64); err == nil {
			cfg.Market.MaxAmount = n
		}
	}
	if v := os.Getenv("MAX_PRICE"); v != "" {
		if n, err := strconv.ParseUint(v, 10, 64); err == nil {
			cfg.Market.MaxPrice = n
		}
	}
	if v := os.Getenv("MAX_ROUND_VOLUME"); v != "" {
		if n, err := strconv.ParseUint(v, 10, 64); err == nil {
			cfg.Market.MaxRoundVolume = n
		}
	}
	if v := os.Getenv("TICK_SIZE"); v != "" {
		if n, err := strconv.ParseUint(v, 10, 64); err == nil {
			cfg.Market.TickSize = n
		}
	}
	if v := os.Getenv("POOL_CAPACITY_PER_SIDE"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Market.PoolCapacityPerSide = n
		}
	}

	if v := os.Getenv("EXECUTOR_SOFT_TIMEOUT_MS"); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			cfg.Executor.SoftTimeoutMs = n
		}
	}
	if v := os.Getenv("EXECUTOR_HARD_TIMEOUT_MS"); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			cfg.Executor.HardTimeoutMs = n
		}
	}

	return cfg
}

// SoftTimeout and HardTimeout convert the executor quorum deadlines into
// time.Duration for executor.Config.
func (e Executor) SoftTimeout() time.Duration { return time.Duration(e.SoftTimeoutMs) * time.Millisecond }
func (e Executor) HardTimeout() time.Duration { return time.Duration(e.HardTimeoutMs) * time.Millisecond }

// RoundInterval and MinInterRound convert the round cadence fields into
// time.Duration for scheduler.Config.
func (r Round) RoundInterval() time.Duration { return time.Duration(r.RoundIntervalMs) * time.Millisecond }
func (r Round) MinInterRound() time.Duration { return time.Duration(r.MinInterRoundMs) * time.Millisecond }

// Symbols splits a comma-separated PHANTOMPOOL_SYMBOLS env var, e.g.
// "BASE-QUOTE,FOO-BAR", trimming whitespace around each entry.
func Symbols() []string {
	v := os.Getenv("PHANTOMPOOL_SYMBOLS")
	if v == "" {
		return nil
	}
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}
