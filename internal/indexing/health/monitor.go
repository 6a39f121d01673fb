package health

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/vietddude/buywatcher/internal/infra/rpc/provider"
)

// HeightFetcher fetches the latest block height of the chain.
type HeightFetcher interface {
	CurrentHeight(ctx context.Context) (uint64, error)
}

// StateSource exposes the poller's last processed height.
type StateSource interface {
	State() (uint64, bool)
}

// Checker pings a dependency such as Redis or Postgres.
type Checker func(ctx context.Context) error

// Monitor aggregates health status from the poller, the chain and the stores.
type Monitor struct {
	chain     string
	heights   HeightFetcher
	state     StateSource
	providers []provider.Provider
	checkers  map[string]Checker

	degradedLag uint64
	criticalLag uint64
	cacheFor    time.Duration
	now         func() time.Time

	mu         sync.Mutex
	lastCheck  time.Time
	lastReport *HealthReport
}

// NewMonitor creates a new health monitor.
func NewMonitor(chain string, heights HeightFetcher, state StateSource, providers []provider.Provider) *Monitor {
	return &Monitor{
		chain:       chain,
		heights:     heights,
		state:       state,
		providers:   providers,
		checkers:    make(map[string]Checker),
		degradedLag: 10,
		criticalLag: 100,
		cacheFor:    10 * time.Second,
		now:         time.Now,
	}
}

// AddChecker registers a dependency ping under name.
func (m *Monitor) AddChecker(name string, c Checker) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.checkers[name] = c
}

// WithClock overrides the time source.
func (m *Monitor) WithClock(now func() time.Time) *Monitor {
	m.now = now
	return m
}

// CheckHealth builds a report, reusing the previous one for a few seconds to
// avoid hitting the node on every health request.
func (m *Monitor) CheckHealth(ctx context.Context) HealthReport {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.lastReport != nil && m.now().Sub(m.lastCheck) < m.cacheFor {
		return *m.lastReport
	}

	report := HealthReport{Chain: m.chainHealth(ctx)}
	report.SystemStatus = report.Chain.Status

	names := make([]string, 0, len(m.checkers))
	for name := range m.checkers {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		dep := DependencyHealth{Name: name, Status: StatusHealthy}
		if err := m.checkers[name](ctx); err != nil {
			dep.Status = StatusDegraded
			dep.Error = err.Error()
			report.SystemStatus = worst(report.SystemStatus, StatusDegraded)
		}
		report.Dependencies = append(report.Dependencies, dep)
	}

	m.lastCheck = m.now()
	m.lastReport = &report
	return report
}

func (m *Monitor) chainHealth(ctx context.Context) ChainHealth {
	h := ChainHealth{Chain: m.chain, Status: StatusHealthy}
	for _, p := range m.providers {
		ph := p.GetHealth()
		status := "unknown"
		if ph.MonitorStats != nil {
			status = ph.MonitorStats.Status.String()
		}
		h.Providers = append(h.Providers, ProviderHealth{
			Name:      p.GetName(),
			Available: p.IsAvailable(),
			Status:    status,
			LatencyMS: ph.Latency.Milliseconds(),
			ErrorRate: ph.ErrorRate,
		})
	}

	last, ok := m.state.State()
	if !ok {
		h.Status = StatusDegraded
		h.Error = "poller not started"
		return h
	}
	h.PollState = last

	head, err := m.heights.CurrentHeight(ctx)
	if err != nil {
		h.Status = StatusDegraded
		h.Error = err.Error()
		return h
	}
	h.ChainHead = head
	if head > last {
		h.BlockLag = head - last
	}

	switch {
	case h.BlockLag > m.criticalLag:
		h.Status = StatusCritical
	case h.BlockLag > m.degradedLag:
		h.Status = StatusDegraded
	}
	return h
}

func worst(a, b SystemStatus) SystemStatus {
	rank := map[SystemStatus]int{StatusHealthy: 0, StatusDegraded: 1, StatusCritical: 2}
	if rank[b] > rank[a] {
		return b
	}
	return a
}
