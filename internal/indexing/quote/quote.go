// Package quote prices monitored tokens in reference-token units by trying
// independent strategies in a fixed order.
package quote

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"

	"github.com/vietddude/buywatcher/internal/core/domain"
	"github.com/vietddude/buywatcher/internal/indexing/metrics"
)

// Strategy names.
const (
	StrategyReserve      = "reserve"
	StrategyAltPool      = "alt_pool"
	StrategyRecentTrades = "recent_trades"
	StrategyStatic       = "static"
)

var (
	// ErrUnpriceable is returned when no strategy produced a price.
	ErrUnpriceable = errors.New("token is unpriceable")
	// ErrPoolMismatch is returned when the pool does not pair the token with the reference token.
	ErrPoolMismatch = errors.New("pool does not pair token with reference")
	// ErrZeroReserve is returned when either pool reserve is empty.
	ErrZeroReserve = errors.New("zero reserve")
	// ErrNotImplemented is returned by strategies that are switched off.
	ErrNotImplemented = errors.New("strategy not implemented")
	// ErrNoTrades is returned when no recent transaction moved both tokens.
	ErrNoTrades = errors.New("no recent trades")
)

// Reference identifies the token prices are expressed in.
type Reference struct {
	Address  common.Address
	Decimals int32
}

// Strategy is one independent way of pricing a token.
type Strategy interface {
	Name() string
	Quote(ctx context.Context, token domain.MonitoredToken) (decimal.Decimal, error)
}

// Result is the outcome of one strategy attempt: a rate or the reason it failed.
type Result struct {
	Strategy string
	Rate     decimal.Decimal
	Err      error
}

// OK reports whether the attempt produced a usable price.
func (r Result) OK() bool {
	return r.Err == nil
}

// Resolver runs strategies in order and returns the first success.
type Resolver struct {
	strategies []Strategy
	log        *slog.Logger
}

func NewResolver(strategies ...Strategy) *Resolver {
	return &Resolver{
		strategies: strategies,
		log:        slog.Default().With("component", "quote"),
	}
}

// Strategies returns the strategy names in resolution order.
func (r *Resolver) Strategies() []string {
	names := make([]string, len(r.strategies))
	for i, s := range r.strategies {
		names[i] = s.Name()
	}
	return names
}

// Resolve returns the first successful quote. Later strategies are not invoked once one succeeds.
func (r *Resolver) Resolve(ctx context.Context, token domain.MonitoredToken) (domain.Quote, error) {
	var errs []error
	for _, s := range r.strategies {
		if err := ctx.Err(); err != nil {
			return domain.Quote{}, err
		}
		res := attempt(ctx, s, token)
		if res.OK() {
			metrics.QuoteResolutions.WithLabelValues(res.Strategy).Inc()
			r.log.Debug("quote resolved", "token", token.Symbol, "strategy", res.Strategy, "rate", res.Rate.String())
			return domain.Quote{Rate: res.Rate, Strategy: res.Strategy}, nil
		}
		r.log.Debug("quote strategy failed", "token", token.Symbol, "strategy", res.Strategy, "error", res.Err)
		errs = append(errs, res.Err)
	}

	metrics.QuoteResolutions.WithLabelValues("none").Inc()
	if len(errs) == 0 {
		return domain.Quote{}, fmt.Errorf("%w: %s: no strategies configured", ErrUnpriceable, token.Symbol)
	}
	return domain.Quote{}, fmt.Errorf("%w: %s: %w", ErrUnpriceable, token.Symbol, errors.Join(errs...))
}

// Trace runs every strategy regardless of earlier successes.
func (r *Resolver) Trace(ctx context.Context, token domain.MonitoredToken) []Result {
	results := make([]Result, 0, len(r.strategies))
	for _, s := range r.strategies {
		results = append(results, attempt(ctx, s, token))
	}
	return results
}

func attempt(ctx context.Context, s Strategy, token domain.MonitoredToken) Result {
	rate, err := s.Quote(ctx, token)
	if err == nil && !rate.IsPositive() {
		err = fmt.Errorf("non-positive rate %s", rate.String())
	}
	if err != nil {
		return Result{Strategy: s.Name(), Err: fmt.Errorf("%s: %w", s.Name(), err)}
	}
	return Result{Strategy: s.Name(), Rate: rate}
}

// humanRate converts raw reference and token amounts into reference units per token.
func humanRate(refRaw, tokenRaw decimal.Decimal, ref Reference, tokenDecimals uint8) decimal.Decimal {
	refHuman := refRaw.Shift(-ref.Decimals)
	tokenHuman := tokenRaw.Shift(-int32(tokenDecimals))
	return refHuman.Div(tokenHuman)
}
