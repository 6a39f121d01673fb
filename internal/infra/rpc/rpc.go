// Package rpc provides a resilient JSON-RPC client for EVM nodes.
//
// Calls go through a routing.Router that retries transient errors on the
// current provider and fails over to the next on throttling or outages:
//
//	client := rpc.NewClient("telos", []rpc.Endpoint{
//	    {Name: "primary", URL: primaryURL},
//	    {Name: "backup", URL: backupURL},
//	}, 10*time.Second)
//
//	result, err := client.Call(ctx, "eth_blockNumber", nil)
//
// The package is organized into sub-packages:
//
//   - provider/ - HTTPProvider and its throttle/latency monitor
//   - routing/  - retry, error classification and failover
package rpc

import (
	"context"
	"encoding/json"
	"time"

	"github.com/vietddude/buywatcher/internal/infra/rpc/provider"
	"github.com/vietddude/buywatcher/internal/infra/rpc/routing"
)

// RPCClient is the call surface chain adapters depend on.
type RPCClient interface {
	Call(ctx context.Context, method string, params []any) (json.RawMessage, error)
	BatchCall(ctx context.Context, requests []BatchRequest) ([]BatchResponse, error)
}

// BatchRequest represents a single request in a batch call.
type BatchRequest = provider.BatchRequest

// BatchResponse represents a single response from a batch call.
type BatchResponse = provider.BatchResponse

// Router retries and fails over across providers.
type Router = routing.Router

// Endpoint names one node URL.
type Endpoint struct {
	Name string
	URL  string
}

// NewClient builds a failover router over HTTP providers for the given endpoints.
func NewClient(chain string, endpoints []Endpoint, timeout time.Duration) *Router {
	providers := make([]provider.RPCProvider, 0, len(endpoints))
	for _, e := range endpoints {
		providers = append(providers, provider.NewHTTPProvider(e.Name, chain, e.URL, timeout))
	}
	return routing.NewRouter(chain, providers, routing.DefaultRetryConfig)
}

// Compile-time check
var _ RPCClient = (*Router)(nil)
