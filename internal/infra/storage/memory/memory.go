package memory

import (
	"context"
	"sync"
	"time"

	"github.com/vietddude/buywatcher/internal/core/domain"
)

// BuyStore keeps seen keys in process memory. Keys expire after ttl; zero keeps them forever.
type BuyStore struct {
	mu      sync.Mutex
	ttl     time.Duration
	now     func() time.Time
	seen    map[string]time.Time
	records []domain.BuyRecord
	limit   int
}

// NewBuyStore creates an in-memory store that retains at most limit records for Recent.
func NewBuyStore(ttl time.Duration, limit int) *BuyStore {
	if limit <= 0 {
		limit = 100
	}
	return &BuyStore{
		ttl:   ttl,
		now:   time.Now,
		seen:  make(map[string]time.Time),
		limit: limit,
	}
}

// WithClock overrides the time source.
func (s *BuyStore) WithClock(now func() time.Time) *BuyStore {
	s.now = now
	return s
}

func (s *BuyStore) MarkSeen(ctx context.Context, rec *domain.BuyRecord) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	if at, ok := s.seen[rec.Key]; ok {
		if s.ttl == 0 || now.Sub(at) < s.ttl {
			return false, nil
		}
	}
	s.seen[rec.Key] = now
	s.prune(now)

	s.records = append(s.records, *rec)
	if len(s.records) > s.limit {
		s.records = s.records[len(s.records)-s.limit:]
	}
	return true, nil
}

func (s *BuyStore) Recent(ctx context.Context, limit int) ([]domain.BuyRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if limit <= 0 || limit > len(s.records) {
		limit = len(s.records)
	}
	out := make([]domain.BuyRecord, 0, limit)
	for i := len(s.records) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, s.records[i])
	}
	return out, nil
}

// prune drops expired keys. Caller holds mu.
func (s *BuyStore) prune(now time.Time) {
	if s.ttl == 0 {
		return
	}
	for k, at := range s.seen {
		if now.Sub(at) >= s.ttl {
			delete(s.seen, k)
		}
	}
}
