// Package tier selects the alert tier for a buy and renders its message.
package tier

import (
	"context"
	"errors"
	"sort"

	"github.com/shopspring/decimal"

	"github.com/vietddude/buywatcher/internal/core/domain"
)

// ErrNoTiers is returned when the tier list is empty.
var ErrNoTiers = errors.New("no tiers configured")

// Lookup returns the tier whose [Min, Max) contains amount. Tiers are
// checked in ascending Min order. When none matches, the tier with the
// highest Min is returned as the catch-all.
func Lookup(tiers []domain.Tier, amount decimal.Decimal) (domain.Tier, error) {
	if len(tiers) == 0 {
		return domain.Tier{}, ErrNoTiers
	}
	sorted := make([]domain.Tier, len(tiers))
	copy(sorted, tiers)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Min.LessThan(sorted[j].Min)
	})

	for _, t := range sorted {
		if t.Contains(amount) {
			return t, nil
		}
	}
	return sorted[len(sorted)-1], nil
}

// Source supplies the current tier list.
type Source interface {
	Tiers(ctx context.Context) ([]domain.Tier, error)
}

// Resolver looks tiers up against a live source.
type Resolver struct {
	source Source
}

func NewResolver(source Source) *Resolver {
	return &Resolver{source: source}
}

// TierFor returns the tier for a reference-token amount.
func (r *Resolver) TierFor(ctx context.Context, amount decimal.Decimal) (domain.Tier, error) {
	tiers, err := r.source.Tiers(ctx)
	if err != nil {
		return domain.Tier{}, err
	}
	return Lookup(tiers, amount)
}
