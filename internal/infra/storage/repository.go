package storage

import (
	"context"
	"errors"

	"github.com/shopspring/decimal"

	"github.com/vietddude/buywatcher/internal/core/domain"
)

var (
	// ErrNotFound is returned when a requested row doesn't exist
	ErrNotFound = errors.New("not found")
)

// BuyStore records alerted buys. MarkSeen is the dedup gate of the pipeline.
type BuyStore interface {
	// MarkSeen stores the record and reports whether its key was new
	MarkSeen(ctx context.Context, rec *domain.BuyRecord) (bool, error)

	// Recent returns up to limit records, newest first
	Recent(ctx context.Context, limit int) ([]domain.BuyRecord, error)
}

// TokenRepository handles monitored token storage
type TokenRepository interface {
	// ListTokens returns every token, active or not
	ListTokens(ctx context.Context) ([]domain.MonitoredToken, error)

	// UpsertToken inserts or replaces a token by address
	UpsertToken(ctx context.Context, token domain.MonitoredToken) error

	// SetActive toggles monitoring for a token
	SetActive(ctx context.Context, address string, active bool) error
}

// TierRepository handles alert tier storage
type TierRepository interface {
	ListTiers(ctx context.Context) ([]domain.Tier, error)
	ReplaceTiers(ctx context.Context, tiers []domain.Tier) error
}

// SettingsRepository holds scalar settings such as the fallback rate
type SettingsRepository interface {
	FallbackRate(ctx context.Context) (decimal.Decimal, error)
	SetFallbackRate(ctx context.Context, rate decimal.Decimal) error
}
