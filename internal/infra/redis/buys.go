package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/vietddude/buywatcher/internal/core/domain"
)

const recentLimit = 500

// commands is the part of *redis.Client the buy store uses.
type commands interface {
	SetNX(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.BoolCmd
	TxPipeline() redis.Pipeliner
	ZRevRange(ctx context.Context, key string, start, stop int64) *redis.StringSliceCmd
	Get(ctx context.Context, key string) *redis.StringCmd
	ZRem(ctx context.Context, key string, members ...interface{}) *redis.IntCmd
}

// BuyStore implements storage.BuyStore using SetNX on a per-buy key.
type BuyStore struct {
	rdb   commands
	chain string
	ttl   time.Duration
}

// NewBuyStore creates a Redis-backed buy store. Seen keys expire after ttl.
func NewBuyStore(client *Client, chain string, ttl time.Duration) *BuyStore {
	return &BuyStore{
		rdb:   client.rdb,
		chain: chain,
		ttl:   ttl,
	}
}

// MarkSeen stores the record under its dedup key if the key is absent.
func (s *BuyStore) MarkSeen(ctx context.Context, rec *domain.BuyRecord) (bool, error) {
	data, err := json.Marshal(rec)
	if err != nil {
		return false, fmt.Errorf("failed to marshal buy: %w", err)
	}

	ok, err := s.rdb.SetNX(ctx, seenKey(s.chain, rec.Key), data, s.ttl).Result()
	if err != nil {
		return false, fmt.Errorf("setnx failed: %w", err)
	}
	if !ok {
		return false, nil
	}

	// Index for Recent, capped to the newest entries
	pipe := s.rdb.TxPipeline()
	pipe.ZAdd(ctx, recentKey(s.chain), redis.Z{
		Score:  float64(rec.DetectedAt.UnixMilli()),
		Member: rec.Key,
	})
	pipe.ZRemRangeByRank(ctx, recentKey(s.chain), 0, -recentLimit-1)
	if _, err := pipe.Exec(ctx); err != nil {
		return true, fmt.Errorf("failed to index buy: %w", err)
	}
	return true, nil
}

// Recent returns up to limit stored buys, newest first.
func (s *BuyStore) Recent(ctx context.Context, limit int) ([]domain.BuyRecord, error) {
	if limit <= 0 {
		limit = 20
	}
	keys, err := s.rdb.ZRevRange(ctx, recentKey(s.chain), 0, int64(limit-1)).Result()
	if err != nil {
		return nil, fmt.Errorf("zrevrange failed: %w", err)
	}

	records := make([]domain.BuyRecord, 0, len(keys))
	for _, key := range keys {
		data, err := s.rdb.Get(ctx, seenKey(s.chain, key)).Bytes()
		if err == redis.Nil {
			// Expired but still indexed, remove it
			s.rdb.ZRem(ctx, recentKey(s.chain), key)
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("failed to get buy: %w", err)
		}

		var rec domain.BuyRecord
		if err := json.Unmarshal(data, &rec); err != nil {
			continue
		}
		records = append(records, rec)
	}
	return records, nil
}
