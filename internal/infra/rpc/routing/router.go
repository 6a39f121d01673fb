// Package routing handles provider selection, retry, and failover logic.
package routing

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/vietddude/buywatcher/internal/indexing/metrics"
	"github.com/vietddude/buywatcher/internal/infra/rpc/provider"
)

// ErrNoProviders is returned when a router has nothing to call.
var ErrNoProviders = errors.New("no providers configured")

type providerMetrics struct {
	successCount     int
	failureCount     int
	totalLatency     time.Duration
	consecutiveFails int
	circuitOpenUntil time.Time
}

// Router sends calls to the preferred provider and fails over in order.
// A provider that fails five times in a row is skipped for a cool-down period.
type Router struct {
	chain     string
	providers []provider.RPCProvider
	retry     RetryConfig
	coolDown  time.Duration
	now       func() time.Time

	mu        sync.Mutex
	preferred int
	health    map[string]*providerMetrics
}

// NewRouter creates a router over the given providers.
func NewRouter(chain string, providers []provider.RPCProvider, retry RetryConfig) *Router {
	health := make(map[string]*providerMetrics, len(providers))
	for _, p := range providers {
		health[p.GetName()] = &providerMetrics{}
	}
	return &Router{
		chain:     chain,
		providers: providers,
		retry:     retry,
		coolDown:  30 * time.Second,
		now:       time.Now,
		health:    health,
	}
}

// Providers returns the configured providers.
func (r *Router) Providers() []provider.RPCProvider {
	out := make([]provider.RPCProvider, len(r.providers))
	copy(out, r.providers)
	return out
}

// Call executes a JSON-RPC call with retry on the current provider and failover to the rest.
func (r *Router) Call(ctx context.Context, method string, params []any) (json.RawMessage, error) {
	return route(ctx, r, func(p provider.RPCProvider) (json.RawMessage, error) {
		return withRetry(ctx, r.retry, func() (json.RawMessage, error) {
			return p.Call(ctx, method, params)
		})
	})
}

// BatchCall executes a batch with the same retry and failover policy as Call.
func (r *Router) BatchCall(ctx context.Context, requests []provider.BatchRequest) ([]provider.BatchResponse, error) {
	return route(ctx, r, func(p provider.RPCProvider) ([]provider.BatchResponse, error) {
		return withRetry(ctx, r.retry, func() ([]provider.BatchResponse, error) {
			return p.BatchCall(ctx, requests)
		})
	})
}

func route[T any](ctx context.Context, r *Router, fn func(p provider.RPCProvider) (T, error)) (T, error) {
	var zero T
	order := r.order()
	if len(order) == 0 {
		return zero, ErrNoProviders
	}

	var lastErr error
	for _, idx := range order {
		if err := ctx.Err(); err != nil {
			return zero, err
		}
		p := r.providers[idx]

		start := r.now()
		result, err := fn(p)
		if err == nil {
			r.recordSuccess(idx, r.now().Sub(start))
			return result, nil
		}

		lastErr = err
		r.recordFailure(idx)

		if ClassifyError(err) == ActionFatal {
			return zero, err
		}
	}

	return zero, fmt.Errorf("all providers failed: %w", lastErr)
}

// order lists provider indexes starting at the preferred one, skipping open circuits
// and unavailable providers. If every provider is excluded the full rotation is returned.
func (r *Router) order() []int {
	r.mu.Lock()
	defer r.mu.Unlock()

	n := len(r.providers)
	all := make([]int, 0, n)
	usable := make([]int, 0, n)
	now := r.now()
	for i := 0; i < n; i++ {
		idx := (r.preferred + i) % n
		all = append(all, idx)

		p := r.providers[idx]
		if now.Before(r.health[p.GetName()].circuitOpenUntil) || !p.IsAvailable() {
			continue
		}
		usable = append(usable, idx)
	}
	if len(usable) == 0 {
		return all
	}
	return usable
}

func (r *Router) recordSuccess(idx int, latency time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()

	p := r.providers[idx]
	m := r.health[p.GetName()]
	m.successCount++
	m.totalLatency += latency
	m.consecutiveFails = 0
	m.circuitOpenUntil = time.Time{}
	r.preferred = idx

	metrics.ProviderStatus.WithLabelValues(r.chain, p.GetName()).Set(1)
}

func (r *Router) recordFailure(idx int) {
	r.mu.Lock()
	defer r.mu.Unlock()

	p := r.providers[idx]
	m := r.health[p.GetName()]
	m.failureCount++
	m.consecutiveFails++
	if m.consecutiveFails >= 5 {
		m.circuitOpenUntil = r.now().Add(r.coolDown)
		metrics.ProviderStatus.WithLabelValues(r.chain, p.GetName()).Set(0)
	} else {
		metrics.ProviderStatus.WithLabelValues(r.chain, p.GetName()).Set(0.5)
	}
}
