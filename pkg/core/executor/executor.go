// Package executor implements the ExecutorCoordinator spec.md §4.8
// describes: a fixed registry of decryption/signing executors, quorum
// selection under crash-fault tolerance, and the Online/Degraded/Offline
// status machine that tracks their liveness.
//
// Grounded in the teacher's pkg/consensus/safety.go (status bookkeeping
// under one mutex, no separate background goroutine) and
// pkg/consensus/pacemaker.go (a soft and a hard timeout per request). The
// soft timeout runs on a time.Timer and the hard deadline on
// context.WithTimeout, both in real time; pkg/util.Clock only stamps
// heartbeats.
package executor

import (
	"sort"
	"sync"
	"time"

	"github.com/phantompool/phantompool/pkg/crypto/curve"
	"github.com/phantompool/phantompool/pkg/crypto/elgamal"
	"github.com/phantompool/phantompool/pkg/crypto/tss"
	"github.com/phantompool/phantompool/pkg/transport"
	"github.com/phantompool/phantompool/pkg/util"
)

// Status is an executor's liveness state, per spec.md §4.8.
type Status int

const (
	Online Status = iota
	Degraded
	Offline
)

func (s Status) String() string {
	switch s {
	case Online:
		return "online"
	case Degraded:
		return "degraded"
	case Offline:
		return "offline"
	default:
		return "unknown"
	}
}

// Descriptor is the static identity of one registered executor: its index,
// its ElGamal public share (for verifying partial decryptions), its BLS
// public key (for verifying signature shares), and its opaque transport
// endpoint.
type Descriptor struct {
	Index        int
	PublicShare  curve.Point
	SignerPubKey *tss.PublicKey
	Endpoint     string
}

type executorState struct {
	desc Descriptor

	status             Status
	rollingErrorCount  int
	requestsSeen       int
	consecutiveFailure int
	lastHeartbeatMs    int64
}

// Health is the projection spec.md §6's `executor_health()` response needs,
// per SPEC_FULL.md §7's error-rate supplement.
type Health struct {
	Index           int
	Status          string
	ErrorRate       float64
	LastHeartbeatMs int64
}

// Config bounds quorum timeouts, per spec.md §6's Configuration section.
type Config struct {
	Threshold         int
	SoftTimeout       time.Duration
	HardTimeout       time.Duration
	MaxRoundVolume    uint64
	ConsecutiveOffline int // default 3, per spec.md §4.8
}

// Coordinator is the ExecutorCoordinator. All state mutation happens under
// mu, matching the teacher's Safety struct's one-mutex-per-component shape.
type Coordinator struct {
	mu      sync.Mutex
	states  []*executorState
	cfg     Config
	sender  transport.Transport
	clock   util.Clock
	bsgs    *elgamal.BSGSTable
}

func NewCoordinator(descs []Descriptor, cfg Config, sender transport.Transport, clock util.Clock) *Coordinator {
	if cfg.ConsecutiveOffline <= 0 {
		cfg.ConsecutiveOffline = 3
	}
	states := make([]*executorState, len(descs))
	for i, d := range descs {
		states[i] = &executorState{desc: d, status: Online}
	}
	return &Coordinator{
		states: states,
		cfg:    cfg,
		sender: sender,
		clock:  clock,
		bsgs:   elgamal.NewBSGSTable(cfg.MaxRoundVolume),
	}
}

// Heartbeat marks an executor's liveness, letting a previously Offline
// executor rejoin (spec.md §4.8, supplemented in SPEC_FULL.md §7.1).
func (c *Coordinator) Heartbeat(index int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	st := c.find(index)
	if st == nil {
		return
	}
	st.lastHeartbeatMs = c.clock.Now().UnixMilli()
	if st.status == Offline {
		st.status = Online
		st.consecutiveFailure = 0
	}
}

func (c *Coordinator) find(index int) *executorState {
	for _, st := range c.states {
		if st.desc.Index == index {
			return st
		}
	}
	return nil
}

// Health reports the current status of every registered executor.
func (c *Coordinator) Health() []Health {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]Health, len(c.states))
	for i, st := range c.states {
		rate := 0.0
		if st.requestsSeen > 0 {
			rate = float64(st.rollingErrorCount) / float64(st.requestsSeen)
		}
		out[i] = Health{
			Index:           st.desc.Index,
			Status:          st.status.String(),
			ErrorRate:       rate,
			LastHeartbeatMs: st.lastHeartbeatMs,
		}
	}
	return out
}

// selectQuorum returns up to `want` non-Offline (Online or Degraded)
// executors, ordered by lowest
// rolling error count with index as a deterministic tiebreaker, per
// spec.md §4.8's quorum selection policy.
func (c *Coordinator) selectQuorum(want int) []*executorState {
	c.mu.Lock()
	defer c.mu.Unlock()

	candidates := make([]*executorState, 0, len(c.states))
	for _, st := range c.states {
		if st.status != Offline {
			candidates = append(candidates, st)
		}
	}
	sort.Slice(candidates, func(i, j int) bool {
		if candidates[i].rollingErrorCount != candidates[j].rollingErrorCount {
			return candidates[i].rollingErrorCount < candidates[j].rollingErrorCount
		}
		return candidates[i].desc.Index < candidates[j].desc.Index
	})
	if len(candidates) > want {
		candidates = candidates[:want]
	}
	return candidates
}

func (c *Coordinator) recordSuccess(index int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	st := c.find(index)
	if st == nil {
		return
	}
	st.requestsSeen++
	st.consecutiveFailure = 0
	if st.status == Degraded {
		st.status = Online
	}
}

// markSoftTimeout demotes an Online executor to Degraded when its request
// has not answered by the soft deadline, per spec.md §4.8's two-stage
// timeout policy. It does not touch rollingErrorCount or
// consecutiveFailure: a late-but-eventually-valid answer still reaches
// recordSuccess and clears the Degraded mark, and a genuine miss is
// counted once, at the hard deadline, by recordFailure.
func (c *Coordinator) markSoftTimeout(index int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	st := c.find(index)
	if st == nil {
		return
	}
	if st.status == Online {
		st.status = Degraded
	}
}

func (c *Coordinator) recordFailure(index int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	st := c.find(index)
	if st == nil {
		return
	}
	st.requestsSeen++
	st.rollingErrorCount++
	st.consecutiveFailure++
	switch {
	case st.consecutiveFailure >= c.cfg.ConsecutiveOffline:
		st.status = Offline
	default:
		st.status = Degraded
	}
}

// watchSoftTimeout marks index Degraded if done has not closed by the time
// soft elapses, i.e. the request is still outstanding past the soft
// deadline. Callers close done as soon as the request resolves, racing the
// two.
func (c *Coordinator) watchSoftTimeout(index int, soft time.Duration, done <-chan struct{}) {
	timer := time.NewTimer(soft)
	defer timer.Stop()
	select {
	case <-done:
	case <-timer.C:
		c.markSoftTimeout(index)
	}
}

func (c *Coordinator) requestTimeout() (soft, hard time.Duration) {
	soft, hard = c.cfg.SoftTimeout, c.cfg.HardTimeout
	if soft <= 0 {
		soft = 10 * time.Second
	}
	if hard <= 0 {
		hard = 20 * time.Second
	}
	return soft, hard
}
