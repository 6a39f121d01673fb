// Package registry supplies the monitored tokens, alert tiers and fallback rate.
package registry

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/shopspring/decimal"

	"github.com/vietddude/buywatcher/internal/core/domain"
)

// ErrInvalidRegistry is returned when registry contents fail validation.
var ErrInvalidRegistry = errors.New("invalid registry")

// Registry is read once per poll cycle. Snapshot reloads the source and pins
// the result; ActiveTokens, FallbackRate and Tiers serve the pinned snapshot
// until the next Snapshot call, so edits land between cycles only.
type Registry interface {
	// Snapshot returns the full view, inactive tokens included
	Snapshot(ctx context.Context) (*Snapshot, error)

	ActiveTokens(ctx context.Context) (domain.TokenSet, error)
	FallbackRate(ctx context.Context) (decimal.Decimal, error)
	Tiers(ctx context.Context) ([]domain.Tier, error)
}

// Snapshot is one validated view of the registry.
type Snapshot struct {
	Tokens       []domain.MonitoredToken
	Active       domain.TokenSet
	Tiers        []domain.Tier
	FallbackRate decimal.Decimal
}

// NewSnapshot validates tokens, tiers and rate and sorts tiers by Min.
func NewSnapshot(tokens []domain.MonitoredToken, tiers []domain.Tier, rate decimal.Decimal) (*Snapshot, error) {
	active, err := domain.NewTokenSet(tokens)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidRegistry, err)
	}
	for _, t := range tiers {
		if err := t.Validate(); err != nil {
			return nil, fmt.Errorf("%w: %w", ErrInvalidRegistry, err)
		}
	}
	if rate.IsNegative() {
		return nil, fmt.Errorf("%w: negative fallback rate %s", ErrInvalidRegistry, rate.String())
	}

	sorted := make([]domain.Tier, len(tiers))
	copy(sorted, tiers)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Min.LessThan(sorted[j].Min) })

	return &Snapshot{
		Tokens:       append([]domain.MonitoredToken(nil), tokens...),
		Active:       active,
		Tiers:        sorted,
		FallbackRate: rate,
	}, nil
}

var (
	_ Registry = (*FileRegistry)(nil)
	_ Registry = (*DBRegistry)(nil)
)
