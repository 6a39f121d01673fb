package provider

import (
	"strconv"
	"strings"
	"sync"
	"time"
)

// ProviderStatus is the state a monitor derives from recent responses.
type ProviderStatus int

const (
	StatusHealthy ProviderStatus = iota
	StatusDegraded
	StatusThrottled
	StatusBlocked
)

var statusNames = [...]string{"healthy", "degraded", "throttled", "blocked"}

func (s ProviderStatus) String() string {
	if s < 0 || int(s) >= len(statusNames) {
		return "unknown"
	}
	return statusNames[s]
}

const (
	latencyWindow    = 100
	slowAverage      = 3 * time.Second
	rateLimitedAfter = 5
	rateLimitBackoff = time.Minute
	forbiddenBackoff = 10 * time.Minute
)

// Error texts that nodes return in a 200 body when a quota is hit.
var throttlePhrases = []string{
	"rate limit exceeded",
	"too many requests",
	"daily request count exceeded",
	"project rate limit",
	"monthly quota exceeded",
}

// MonitorStats is a point-in-time view of a ProviderMonitor.
type MonitorStats struct {
	Status         ProviderStatus
	AverageLatency time.Duration
	RateLimited    int
	Forbidden      int
}

// ProviderMonitor keeps a latency ring and the backoff window opened by
// 429 and 403 responses.
type ProviderMonitor struct {
	mu  sync.RWMutex
	now func() time.Time

	latencies []time.Duration
	next      int

	rateLimited  int
	forbidden    int
	backoffUntil time.Time
}

func NewProviderMonitor() *ProviderMonitor {
	return &ProviderMonitor{
		now:       time.Now,
		latencies: make([]time.Duration, 0, latencyWindow),
	}
}

// WithClock overrides the monitor's time source.
func (pm *ProviderMonitor) WithClock(now func() time.Time) *ProviderMonitor {
	pm.now = now
	return pm
}

// RecordRequest adds a successful call's latency to the ring.
func (pm *ProviderMonitor) RecordRequest(latency time.Duration) {
	pm.mu.Lock()
	defer pm.mu.Unlock()

	if len(pm.latencies) < latencyWindow {
		pm.latencies = append(pm.latencies, latency)
		return
	}
	pm.latencies[pm.next] = latency
	pm.next = (pm.next + 1) % latencyWindow
}

// RecordThrottle opens a backoff window for a 429 or 403 response.
// retryAfter is the raw Retry-After header in seconds; a missing or bad
// value falls back to one minute.
func (pm *ProviderMonitor) RecordThrottle(statusCode int, retryAfter string) {
	pm.mu.Lock()
	defer pm.mu.Unlock()

	wait := rateLimitBackoff
	switch statusCode {
	case 429:
		pm.rateLimited++
		if secs, err := strconv.Atoi(strings.TrimSpace(retryAfter)); err == nil && secs > 0 {
			wait = time.Duration(secs) * time.Second
		}
	case 403:
		pm.forbidden++
		wait = forbiddenBackoff
	default:
		return
	}
	pm.backoffUntil = pm.now().Add(wait)
}

// DetectThrottlePattern reports whether message reads like a quota error.
func (pm *ProviderMonitor) DetectThrottlePattern(message string) bool {
	msg := strings.ToLower(message)
	for _, phrase := range throttlePhrases {
		if strings.Contains(msg, phrase) {
			return true
		}
	}
	return false
}

func (pm *ProviderMonitor) CheckProviderStatus() ProviderStatus {
	pm.mu.RLock()
	defer pm.mu.RUnlock()
	return pm.statusLocked()
}

func (pm *ProviderMonitor) statusLocked() ProviderStatus {
	backingOff := pm.now().Before(pm.backoffUntil)
	switch {
	case backingOff && pm.forbidden > 0:
		return StatusBlocked
	case backingOff && pm.rateLimited > rateLimitedAfter:
		return StatusThrottled
	case len(pm.latencies) > 10 && pm.averageLocked() > slowAverage:
		return StatusDegraded
	}
	return StatusHealthy
}

// GetRetryAfter returns how long the current backoff window still runs.
func (pm *ProviderMonitor) GetRetryAfter() time.Duration {
	pm.mu.RLock()
	defer pm.mu.RUnlock()

	if left := pm.backoffUntil.Sub(pm.now()); left > 0 {
		return left
	}
	return 0
}

func (pm *ProviderMonitor) averageLocked() time.Duration {
	if len(pm.latencies) == 0 {
		return 0
	}
	var total time.Duration
	for _, l := range pm.latencies {
		total += l
	}
	return total / time.Duration(len(pm.latencies))
}

func (pm *ProviderMonitor) GetStats() MonitorStats {
	pm.mu.RLock()
	defer pm.mu.RUnlock()

	return MonitorStats{
		Status:         pm.statusLocked(),
		AverageLatency: pm.averageLocked(),
		RateLimited:    pm.rateLimited,
		Forbidden:      pm.forbidden,
	}
}
