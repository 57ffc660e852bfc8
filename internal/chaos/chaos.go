// Package chaos implements XDR's deterministic decision oracle: given a
// process-wide ChaosConfig and a per-agent cursor, it decides whether to
// inject latency, fail a request before payment, or fail it after payment
// (a "rug pull"). Decisions are a pure function of (seed, agent_id, cursor,
// config snapshot) so that a fixed seed and request order reproduce an
// identical sequence of outcomes.
package chaos

import (
	"fmt"
	"hash/fnv"
	"math/rand/v2"
	"sync"
	"sync/atomic"
)

// Config is the process-wide chaos configuration. Mutated only via the
// admin control endpoint, read by every request's chaos check.
type Config struct {
	Enabled      bool    `json:"enabled"`
	Seed         uint64  `json:"seed"`
	FailureRate  float64 `json:"failure_rate"`
	MinLatencyMs uint64  `json:"min_latency_ms"`
	MaxLatencyMs uint64  `json:"max_latency_ms"`
	RugRate      float64 `json:"rug_rate"`
}

// DefaultConfig returns chaos disabled with a fixed default seed, matching
// the source runtime's startup defaults.
func DefaultConfig() Config {
	return Config{
		Enabled:      false,
		Seed:         42,
		FailureRate:  0,
		MinLatencyMs: 0,
		MaxLatencyMs: 0,
		RugRate:      0,
	}
}

// Kind enumerates the possible chaos decisions.
type Kind int

const (
	KindNone Kind = iota
	KindInjectLatency
	KindFailPrePayment
	KindFailPostPayment
)

func (k Kind) String() string {
	switch k {
	case KindInjectLatency:
		return "chaos:latency"
	case KindFailPrePayment:
		return "chaos:drop"
	case KindFailPostPayment:
		return "chaos:rug"
	default:
		return "chaos:none"
	}
}

// Decision is the outcome of one Decide call.
type Decision struct {
	Kind      Kind
	LatencyMs uint64
	Status    int
}

// Engine holds the current config snapshot and per-agent cursors.
type Engine struct {
	cfg     atomic.Pointer[Config]
	cursors sync.Map // agent_id -> *atomic.Uint64
}

// New creates a chaos Engine with chaos disabled.
func New() *Engine {
	e := &Engine{}
	cfg := DefaultConfig()
	e.cfg.Store(&cfg)
	return e
}

// SetConfig atomically replaces the process-wide ChaosConfig. Requests
// already mid-flight keep the snapshot they took at the start of their
// chaos check; this never blocks a reader.
func (e *Engine) SetConfig(cfg Config) {
	c := cfg
	e.cfg.Store(&c)
}

// Config returns a copy of the current configuration.
func (e *Engine) Config() Config {
	return *e.cfg.Load()
}

// Cursor returns the current cursor value for an agent without advancing it.
func (e *Engine) Cursor(agentID string) uint64 {
	v, ok := e.cursors.Load(agentID)
	if !ok {
		return 0
	}
	return v.(*atomic.Uint64).Load()
}

func (e *Engine) nextCursor(agentID string) uint64 {
	actual, _ := e.cursors.LoadOrStore(agentID, new(atomic.Uint64))
	counter := actual.(*atomic.Uint64)
	return counter.Add(1) - 1
}

// Decide implements the decision algorithm from the component contract:
// draw r1 for a pre-payment failure, otherwise r2 for a rug pull,
// otherwise r3 for injected latency. When disabled it always returns
// KindNone and never advances the agent's cursor.
func (e *Engine) Decide(agentID string) Decision {
	cfg := e.Config()
	if !cfg.Enabled {
		return Decision{Kind: KindNone}
	}

	cursor := e.nextCursor(agentID)
	stream := newStream(cfg.Seed, agentID, cursor)

	r1 := stream.next()
	if r1 < cfg.FailureRate {
		status := 503
		if stream.next() >= 0.5 {
			status = 429
		}
		return Decision{Kind: KindFailPrePayment, Status: status}
	}

	r2 := stream.next()
	if r2 < cfg.RugRate {
		return Decision{Kind: KindFailPostPayment, Status: 500}
	}

	r3 := stream.next()
	if cfg.MaxLatencyMs > 0 {
		span := cfg.MaxLatencyMs - cfg.MinLatencyMs + 1
		ms := cfg.MinLatencyMs + uint64(r3*float64(span))
		return Decision{Kind: KindInjectLatency, LatencyMs: ms}
	}

	return Decision{Kind: KindNone}
}

// stream is a deterministic sequence of draws in [0,1) keyed by
// (seed, agent_id, cursor). Identical keys always produce identical
// sequences, satisfying the component's purity contract.
type stream struct {
	rng *rand.Rand
}

func newStream(seed uint64, agentID string, cursor uint64) *stream {
	key := fmt.Sprintf("%d|%s|%d", seed, agentID, cursor)
	s1 := fnvSeed(key, "a")
	s2 := fnvSeed(key, "b")
	return &stream{rng: rand.New(rand.NewPCG(s1, s2))}
}

func (s *stream) next() float64 {
	return s.rng.Float64()
}

func fnvSeed(key, salt string) uint64 {
	h := fnv.New64a()
	_, _ = h.Write([]byte(key))
	_, _ = h.Write([]byte(salt))
	return h.Sum64()
}
