package registry

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/shopspring/decimal"

	"github.com/vietddude/buywatcher/internal/core/domain"
	"github.com/vietddude/buywatcher/internal/indexing/metrics"
	"github.com/vietddude/buywatcher/internal/infra/storage"
)

// Store is the union of repositories backing a database registry.
// *postgres.TokenRepo satisfies it.
type Store interface {
	storage.TokenRepository
	storage.TierRepository
	storage.SettingsRepository
}

// DBRegistry reads the registry from a database on each Snapshot call. Rows
// that fail validation keep the last good snapshot; query errors are returned.
type DBRegistry struct {
	store Store
	log   *slog.Logger

	mu       sync.Mutex
	lastGood *Snapshot
}

func NewDBRegistry(store Store) *DBRegistry {
	return &DBRegistry{
		store: store,
		log:   slog.Default().With("component", "registry", "source", "postgres"),
	}
}

// Snapshot reads and validates the full registry.
func (r *DBRegistry) Snapshot(ctx context.Context) (*Snapshot, error) {
	tokens, err := r.store.ListTokens(ctx)
	if err != nil {
		return nil, err
	}
	tiers, err := r.store.ListTiers(ctx)
	if err != nil {
		return nil, err
	}
	rate, err := r.store.FallbackRate(ctx)
	if err != nil {
		return nil, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	snap, err := NewSnapshot(tokens, tiers, rate)
	if err != nil {
		metrics.RegistryReloads.WithLabelValues("postgres", "error").Inc()
		if r.lastGood == nil {
			return nil, err
		}
		r.log.Error("registry rows invalid, keeping last snapshot", "error", err)
		return r.lastGood, nil
	}
	metrics.RegistryReloads.WithLabelValues("postgres", "ok").Inc()
	r.lastGood = snap
	return snap, nil
}

// pinned returns the last good snapshot, loading one if none was taken yet.
func (r *DBRegistry) pinned(ctx context.Context) (*Snapshot, error) {
	r.mu.Lock()
	snap := r.lastGood
	r.mu.Unlock()
	if snap != nil {
		return snap, nil
	}
	return r.Snapshot(ctx)
}

func (r *DBRegistry) ActiveTokens(ctx context.Context) (domain.TokenSet, error) {
	snap, err := r.pinned(ctx)
	if err != nil {
		return nil, err
	}
	return snap.Active, nil
}

func (r *DBRegistry) FallbackRate(ctx context.Context) (decimal.Decimal, error) {
	snap, err := r.pinned(ctx)
	if err != nil {
		return decimal.Zero, err
	}
	return snap.FallbackRate, nil
}

func (r *DBRegistry) Tiers(ctx context.Context) ([]domain.Tier, error) {
	snap, err := r.pinned(ctx)
	if err != nil {
		return nil, err
	}
	return snap.Tiers, nil
}

// Import writes a snapshot into the database: tokens are upserted, tiers
// replaced and the fallback rate overwritten.
func Import(ctx context.Context, store Store, snap *Snapshot) error {
	for _, t := range snap.Tokens {
		if err := store.UpsertToken(ctx, t); err != nil {
			return fmt.Errorf("import token %s: %w", t.Symbol, err)
		}
	}
	if err := store.ReplaceTiers(ctx, snap.Tiers); err != nil {
		return fmt.Errorf("import tiers: %w", err)
	}
	if err := store.SetFallbackRate(ctx, snap.FallbackRate); err != nil {
		return fmt.Errorf("import fallback rate: %w", err)
	}
	return nil
}
