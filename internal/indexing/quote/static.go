package quote

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/vietddude/buywatcher/internal/core/domain"
)

// RateSource supplies the configured fallback conversion rate.
type RateSource interface {
	FallbackRate(ctx context.Context) (decimal.Decimal, error)
}

// StaticStrategy returns the fallback rate when it is greater than zero.
type StaticStrategy struct {
	rates RateSource
}

func NewStaticStrategy(rates RateSource) *StaticStrategy {
	return &StaticStrategy{rates: rates}
}

func (s *StaticStrategy) Name() string { return StrategyStatic }

func (s *StaticStrategy) Quote(ctx context.Context, _ domain.MonitoredToken) (decimal.Decimal, error) {
	rate, err := s.rates.FallbackRate(ctx)
	if err != nil {
		return decimal.Zero, err
	}
	if !rate.IsPositive() {
		return decimal.Zero, fmt.Errorf("fallback rate %s is not set", rate.String())
	}
	return rate, nil
}
