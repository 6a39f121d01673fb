// Package pipeline turns classified buys into dispatched alerts.
package pipeline

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/vietddude/buywatcher/internal/core/domain"
	"github.com/vietddude/buywatcher/internal/indexing/metrics"
	"github.com/vietddude/buywatcher/internal/indexing/tier"
	"github.com/vietddude/buywatcher/internal/infra/storage"
)

// Outcome is what happened to one buy.
type Outcome string

const (
	OutcomeDispatched     Outcome = "dispatched"
	OutcomeDispatchFailed Outcome = "dispatch_failed"
	OutcomeDuplicate      Outcome = "duplicate"
	OutcomeNoTier         Outcome = "no_tier"
)

// TierResolver picks the tier for a reference amount.
type TierResolver interface {
	TierFor(ctx context.Context, amount decimal.Decimal) (domain.Tier, error)
}

// FiatSource converts one reference unit to fiat.
type FiatSource interface {
	Price(ctx context.Context) (decimal.Decimal, error)
}

// Dispatcher delivers a rendered alert. media may be empty.
type Dispatcher interface {
	Name() string
	Send(ctx context.Context, message, media string) error
}

type Pipeline struct {
	chain      string
	store      storage.BuyStore
	tiers      TierResolver
	fiat       FiatSource
	dispatcher Dispatcher
	now        func() time.Time
	log        *slog.Logger
}

// New creates a pipeline. fiat may be nil, in which case fiat values are zero.
func New(chain string, store storage.BuyStore, tiers TierResolver, fiat FiatSource, dispatcher Dispatcher) *Pipeline {
	return &Pipeline{
		chain:      chain,
		store:      store,
		tiers:      tiers,
		fiat:       fiat,
		dispatcher: dispatcher,
		now:        time.Now,
		log:        slog.Default().With("component", "pipeline", "chain", chain),
	}
}

// WithClock overrides the time source used for DetectedAt.
func (p *Pipeline) WithClock(now func() time.Time) *Pipeline {
	p.now = now
	return p
}

// Process alerts one buy at most once per dedup key. A buy whose dispatch
// fails still counts as alerted.
func (p *Pipeline) Process(ctx context.Context, buy domain.ClassifiedBuy) Outcome {
	log := p.log.With("tx", buy.TxHash, "token", buy.Token.Symbol, "buyer", buy.Buyer.Hex())

	t, err := p.tiers.TierFor(ctx, buy.ReferenceAmount)
	if err != nil {
		log.Error("no tier for buy", "amount", buy.ReferenceAmount.String(), "error", err)
		return OutcomeNoTier
	}

	fiatValue := p.fiatValue(ctx, buy.ReferenceAmount)
	message, err := tier.Render(t.Template, tier.Values(buy, fiatValue))
	if errors.Is(err, tier.ErrUnknownPlaceholder) {
		metrics.TemplateErrors.WithLabelValues(t.Name).Inc()
		log.Error("tier template has unknown placeholders", "tier", t.Name, "error", err)
	}

	rec := &domain.BuyRecord{
		ID:              uuid.NewString(),
		Key:             buy.Key(),
		TxHash:          strings.ToLower(buy.TxHash),
		BlockNumber:     buy.BlockNumber,
		Token:           buy.Token.Address.Hex(),
		Symbol:          buy.Token.Symbol,
		Buyer:           buy.Buyer.Hex(),
		TokenAmount:     buy.TokenAmount.String(),
		ReferenceAmount: buy.ReferenceAmount.String(),
		FiatValue:       fiatValue.String(),
		Strategy:        buy.Quote.Strategy,
		Tier:            t.Name,
		DetectedAt:      p.now().UTC(),
	}
	fresh, err := p.store.MarkSeen(ctx, rec)
	if err != nil {
		// A store outage falls through to dispatch
		log.Warn("dedup store unavailable", "key", rec.Key, "error", err)
		fresh = true
	}
	if !fresh {
		metrics.BuysDuplicate.WithLabelValues(p.chain).Inc()
		log.Debug("duplicate buy skipped", "key", rec.Key)
		return OutcomeDuplicate
	}

	metrics.BuysDetected.WithLabelValues(p.chain, buy.Token.Symbol).Inc()
	log.Info("buy detected",
		"amount", rec.TokenAmount,
		"value", rec.ReferenceAmount,
		"fiat", rec.FiatValue,
		"strategy", rec.Strategy,
		"tier", t.Name,
	)

	if err := p.dispatcher.Send(ctx, message, t.Media); err != nil {
		metrics.AlertsDispatched.WithLabelValues(p.dispatcher.Name(), "error").Inc()
		log.Error("alert dispatch failed", "dispatcher", p.dispatcher.Name(), "error", err)
		return OutcomeDispatchFailed
	}
	metrics.AlertsDispatched.WithLabelValues(p.dispatcher.Name(), "ok").Inc()
	return OutcomeDispatched
}

func (p *Pipeline) fiatValue(ctx context.Context, amount decimal.Decimal) decimal.Decimal {
	if p.fiat == nil {
		return decimal.Zero
	}
	price, err := p.fiat.Price(ctx)
	if err != nil {
		p.log.Warn("fiat price unavailable", "error", err)
	}
	if !price.IsPositive() {
		return decimal.Zero
	}
	return amount.Mul(price)
}
