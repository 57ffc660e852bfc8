// Package health provides a registry of named XDR-component checkers
// consulted by GET /healthz, plus constructors for the specific checks
// the proxy's own collaborators (chaos engine, forwarder) need — the
// ledger's own optional Postgres check is registered inline in
// internal/server, since it closes over a *sql.DB the caller already
// holds.
package health

import (
	"context"
	"fmt"
	"sync"

	"github.com/xdr-run/xdr/internal/chaos"
	"github.com/xdr-run/xdr/internal/forwarder"
)

// Status represents the health of one XDR component (the ledger store,
// the chaos engine, the upstream forwarder, ...).
type Status struct {
	Name    string `json:"name"`
	Healthy bool   `json:"healthy"`
	Detail  string `json:"detail,omitempty"`
}

// Checker reports the current health of one component.
type Checker func(ctx context.Context) Status

// Registry holds named component checkers and runs them on demand.
type Registry struct {
	mu       sync.RWMutex
	checkers []namedChecker
}

type namedChecker struct {
	name  string
	check Checker
}

// NewRegistry creates an empty component health registry.
func NewRegistry() *Registry {
	return &Registry{}
}

// Register adds a named component checker.
func (r *Registry) Register(name string, check Checker) {
	r.mu.Lock()
	r.checkers = append(r.checkers, namedChecker{name: name, check: check})
	r.mu.Unlock()
}

// CheckAll runs every registered checker and returns the aggregate health
// status plus each component's individual result.
func (r *Registry) CheckAll(ctx context.Context) (healthy bool, statuses []Status) {
	r.mu.RLock()
	checkers := make([]namedChecker, len(r.checkers))
	copy(checkers, r.checkers)
	r.mu.RUnlock()

	healthy = true
	statuses = make([]Status, len(checkers))

	for i, nc := range checkers {
		statuses[i] = nc.check(ctx)
		if !statuses[i].Healthy {
			healthy = false
		}
	}

	return healthy, statuses
}

// ChaosEngineChecker reports the chaos engine's current configuration.
// The engine itself has no failure mode to detect (it's an in-process
// snapshot read) — the value of this check is surfacing whether chaos is
// armed, since that's easy to forget having left enabled from a prior
// `xdr chaos enable` call.
func ChaosEngineChecker(engine *chaos.Engine) Checker {
	return func(ctx context.Context) Status {
		cfg := engine.Config()
		return Status{
			Name:    "chaos_engine",
			Healthy: true,
			Detail:  fmt.Sprintf("enabled=%v seed=%d failure_rate=%.2f rug_rate=%.2f", cfg.Enabled, cfg.Seed, cfg.FailureRate, cfg.RugRate),
		}
	}
}

// ForwarderChecker reports whether the upstream forwarder has a
// configured HTTP client to issue outbound calls with. It cannot probe
// reachability of a specific upstream, since XDR's upstream host is
// supplied per-request rather than fixed at startup.
func ForwarderChecker(f *forwarder.Forwarder) Checker {
	return func(ctx context.Context) Status {
		if !f.Ready() {
			return Status{Name: "forwarder", Healthy: false, Detail: "no HTTP client configured"}
		}
		return Status{Name: "forwarder", Healthy: true}
	}
}
