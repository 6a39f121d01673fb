package health

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/vietddude/buywatcher/internal/infra/rpc/provider"
)

// =============================================================================
// Mocks
// =============================================================================

type mockFetcher struct {
	height uint64
	err    error
	calls  int
}

func (m *mockFetcher) CurrentHeight(ctx context.Context) (uint64, error) {
	m.calls++
	return m.height, m.err
}

type stubState struct {
	last uint64
	ok   bool
}

func (s stubState) State() (uint64, bool) { return s.last, s.ok }

type stubProvider struct {
	name string
}

func (p stubProvider) GetName() string { return p.name }
func (p stubProvider) GetHealth() provider.HealthStatus {
	return provider.HealthStatus{Available: true, Latency: 120 * time.Millisecond}
}
func (p stubProvider) IsAvailable() bool { return true }
func (p stubProvider) Close() error      { return nil }

// =============================================================================
// Tests
// =============================================================================

func TestMonitorLag(t *testing.T) {
	tests := []struct {
		name string
		head uint64
		last uint64
		want SystemStatus
	}{
		{"healthy", 1005, 1000, StatusHealthy},
		{"head behind state", 990, 1000, StatusHealthy},
		{"degraded", 1050, 1000, StatusDegraded},
		{"critical", 1200, 1000, StatusCritical},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := NewMonitor("telos", &mockFetcher{height: tt.head}, stubState{last: tt.last, ok: true}, nil)
			report := m.CheckHealth(context.Background())
			if report.Chain.Status != tt.want || report.SystemStatus != tt.want {
				t.Errorf("status = %s/%s, want %s", report.Chain.Status, report.SystemStatus, tt.want)
			}
		})
	}
}

func TestMonitorDegradedWhenUnknown(t *testing.T) {
	m := NewMonitor("telos", &mockFetcher{height: 10}, stubState{}, nil)
	if got := m.CheckHealth(context.Background()).SystemStatus; got != StatusDegraded {
		t.Errorf("not started: %s", got)
	}

	m = NewMonitor("telos", &mockFetcher{err: errors.New("rpc down")}, stubState{last: 1, ok: true}, nil)
	report := m.CheckHealth(context.Background())
	if report.SystemStatus != StatusDegraded || report.Chain.Error == "" {
		t.Errorf("rpc down: %+v", report)
	}
}

func TestMonitorDependencies(t *testing.T) {
	m := NewMonitor("telos", &mockFetcher{height: 10}, stubState{last: 10, ok: true}, []provider.Provider{stubProvider{name: "telos-1"}})
	m.AddChecker("redis", func(ctx context.Context) error { return errors.New("refused") })
	m.AddChecker("postgres", func(ctx context.Context) error { return nil })

	report := m.CheckHealth(context.Background())
	if report.SystemStatus != StatusDegraded {
		t.Errorf("status = %s, want degraded", report.SystemStatus)
	}
	if len(report.Dependencies) != 2 || report.Dependencies[0].Name != "postgres" || report.Dependencies[1].Status != StatusDegraded {
		t.Errorf("dependencies = %+v", report.Dependencies)
	}
	if len(report.Chain.Providers) != 1 || report.Chain.Providers[0].LatencyMS != 120 {
		t.Errorf("providers = %+v", report.Chain.Providers)
	}
}

func TestMonitorCachesReport(t *testing.T) {
	now := time.Unix(1000, 0)
	fetcher := &mockFetcher{height: 10}
	m := NewMonitor("telos", fetcher, stubState{last: 10, ok: true}, nil).WithClock(func() time.Time { return now })

	m.CheckHealth(context.Background())
	m.CheckHealth(context.Background())
	if fetcher.calls != 1 {
		t.Errorf("fetcher called %d times within cache window", fetcher.calls)
	}
	now = now.Add(11 * time.Second)
	m.CheckHealth(context.Background())
	if fetcher.calls != 2 {
		t.Errorf("fetcher called %d times after cache expiry", fetcher.calls)
	}
}

func TestServerEndpoints(t *testing.T) {
	m := NewMonitor("telos", &mockFetcher{height: 1500}, stubState{last: 1000, ok: true}, nil)
	srv := httptest.NewServer(NewServer(m, 0).Handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/health")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusServiceUnavailable {
		t.Errorf("status code = %d, want 503", resp.StatusCode)
	}

	resp2, err := http.Get(srv.URL + "/health/detailed")
	if err != nil {
		t.Fatal(err)
	}
	defer resp2.Body.Close()
	var report HealthReport
	if err := json.NewDecoder(resp2.Body).Decode(&report); err != nil {
		t.Fatal(err)
	}
	if report.Chain.BlockLag != 500 || report.Chain.Chain != "telos" {
		t.Errorf("report = %+v", report)
	}

	resp3, err := http.Get(srv.URL + "/metrics")
	if err != nil {
		t.Fatal(err)
	}
	resp3.Body.Close()
	if resp3.StatusCode != http.StatusOK {
		t.Errorf("metrics status = %d", resp3.StatusCode)
	}
}

func TestGRPCUpdate(t *testing.T) {
	m := NewMonitor("telos", &mockFetcher{height: 1500}, stubState{last: 1000, ok: true}, nil)
	s := NewGRPCServer(m, 0)

	s.Update(context.Background())
	resp, err := s.health.Check(context.Background(), &healthpb.HealthCheckRequest{Service: "buywatcher"})
	if err != nil {
		t.Fatal(err)
	}
	if resp.Status != healthpb.HealthCheckResponse_NOT_SERVING {
		t.Errorf("status = %s, want NOT_SERVING", resp.Status)
	}
}

func TestServerStatusCodes(t *testing.T) {
	// a lag of 50 blocks is degraded, which still passes the check
	m := NewMonitor("telos", &mockFetcher{height: 1050}, stubState{last: 1000, ok: true}, nil)
	srv := httptest.NewServer(NewServer(m, 0).Handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/health")
	if err != nil {
		t.Fatal(err)
	}
	var body map[string]string
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK || body["status"] != "degraded" {
		t.Errorf("got %d %v, want 200 degraded", resp.StatusCode, body)
	}

	resp, err = http.Post(srv.URL+"/health", "application/json", nil)
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusMethodNotAllowed {
		t.Errorf("POST status = %d, want 405", resp.StatusCode)
	}
}
