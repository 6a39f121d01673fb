// Package health provides system health monitoring and status reporting.
package health

// SystemStatus represents the overall health state of the system or a component.
type SystemStatus string

const (
	StatusHealthy  SystemStatus = "healthy"
	StatusDegraded SystemStatus = "degraded"
	StatusCritical SystemStatus = "critical"
)

// ChainHealth describes how far the poller trails the chain head.
type ChainHealth struct {
	Chain     string           `json:"chain"`
	Status    SystemStatus     `json:"status"`
	ChainHead uint64           `json:"chain_head"`
	PollState uint64           `json:"poll_state"`
	BlockLag  uint64           `json:"block_lag"`
	Error     string           `json:"error,omitempty"`
	Providers []ProviderHealth `json:"providers,omitempty"`
}

// ProviderHealth is the view of one RPC provider.
type ProviderHealth struct {
	Name      string  `json:"name"`
	Available bool    `json:"available"`
	Status    string  `json:"status"`
	LatencyMS int64   `json:"latency_ms"`
	ErrorRate float64 `json:"error_rate"`
}

// DependencyHealth is the result of pinging a backing service.
type DependencyHealth struct {
	Name   string       `json:"name"`
	Status SystemStatus `json:"status"`
	Error  string       `json:"error,omitempty"`
}

// HealthReport contains the full system health report.
type HealthReport struct {
	SystemStatus SystemStatus       `json:"system_status"`
	Chain        ChainHealth        `json:"chain"`
	Dependencies []DependencyHealth `json:"dependencies,omitempty"`
}
