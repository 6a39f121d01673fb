package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"

	"github.com/vietddude/buywatcher/internal/core/domain"
	"github.com/vietddude/buywatcher/internal/infra/storage"
)

const fallbackRateKey = "fallback_rate"

// TokenRepo implements storage.TokenRepository, storage.TierRepository
// and storage.SettingsRepository using PostgreSQL.
type TokenRepo struct {
	db *DB
}

// NewTokenRepo creates a new PostgreSQL token repository.
func NewTokenRepo(db *DB) *TokenRepo {
	return &TokenRepo{db: db}
}

type tokenRow struct {
	Address  string `db:"address"`
	Symbol   string `db:"symbol"`
	Decimals int    `db:"decimals"`
	Pool     string `db:"pool"`
	Active   bool   `db:"active"`
}

func (r *tokenRow) toDomain() (domain.MonitoredToken, error) {
	if !common.IsHexAddress(r.Address) || !common.IsHexAddress(r.Pool) {
		return domain.MonitoredToken{}, fmt.Errorf("%w: bad address in row %s", domain.ErrInvalidToken, r.Address)
	}
	if r.Decimals < 0 || r.Decimals > 255 {
		return domain.MonitoredToken{}, fmt.Errorf("%w: decimals %d", domain.ErrInvalidToken, r.Decimals)
	}
	return domain.MonitoredToken{
		Address:  common.HexToAddress(r.Address),
		Symbol:   r.Symbol,
		Decimals: uint8(r.Decimals),
		Pool:     common.HexToAddress(r.Pool),
		Active:   r.Active,
	}, nil
}

// ListTokens retrieves all tokens ordered by address.
func (r *TokenRepo) ListTokens(ctx context.Context) ([]domain.MonitoredToken, error) {
	query := `SELECT address, symbol, decimals, pool, active FROM tokens ORDER BY address`

	var rows []tokenRow
	if err := r.db.SelectContext(ctx, &rows, query); err != nil {
		return nil, fmt.Errorf("failed to list tokens: %w", err)
	}

	tokens := make([]domain.MonitoredToken, 0, len(rows))
	for i := range rows {
		t, err := rows[i].toDomain()
		if err != nil {
			return nil, err
		}
		tokens = append(tokens, t)
	}
	return tokens, nil
}

// UpsertToken inserts or replaces a token.
func (r *TokenRepo) UpsertToken(ctx context.Context, token domain.MonitoredToken) error {
	if err := token.Validate(); err != nil {
		return err
	}

	query := `
		INSERT INTO tokens (address, symbol, decimals, pool, active)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (address) DO UPDATE SET
			symbol = EXCLUDED.symbol,
			decimals = EXCLUDED.decimals,
			pool = EXCLUDED.pool,
			active = EXCLUDED.active,
			updated_at = NOW()
	`
	_, err := r.db.ExecContext(ctx, query,
		strings.ToLower(token.Address.Hex()),
		token.Symbol,
		int(token.Decimals),
		strings.ToLower(token.Pool.Hex()),
		token.Active,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert token: %w", err)
	}
	return nil
}

// SetActive toggles a token.
func (r *TokenRepo) SetActive(ctx context.Context, address string, active bool) error {
	query := `UPDATE tokens SET active = $1, updated_at = NOW() WHERE address = $2`
	res, err := r.db.ExecContext(ctx, query, active, strings.ToLower(address))
	if err != nil {
		return fmt.Errorf("failed to update token: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return storage.ErrNotFound
	}
	return nil
}

type tierRow struct {
	Name     string         `db:"name"`
	Min      string         `db:"min_amount"`
	Max      sql.NullString `db:"max_amount"`
	Template string         `db:"template"`
	Media    string         `db:"media"`
}

// ListTiers retrieves tiers in ascending min order.
func (r *TokenRepo) ListTiers(ctx context.Context) ([]domain.Tier, error) {
	query := `
		SELECT name, min_amount::text AS min_amount, max_amount::text AS max_amount, template, media
		FROM tiers
		ORDER BY min_amount
	`

	var rows []tierRow
	if err := r.db.SelectContext(ctx, &rows, query); err != nil {
		return nil, fmt.Errorf("failed to list tiers: %w", err)
	}

	tiers := make([]domain.Tier, 0, len(rows))
	for _, row := range rows {
		lo, err := decimal.NewFromString(row.Min)
		if err != nil {
			return nil, fmt.Errorf("%w: %q min: %v", domain.ErrInvalidTier, row.Name, err)
		}
		tier := domain.Tier{Name: row.Name, Min: lo, Template: row.Template, Media: row.Media}
		if row.Max.Valid {
			hi, err := decimal.NewFromString(row.Max.String)
			if err != nil {
				return nil, fmt.Errorf("%w: %q max: %v", domain.ErrInvalidTier, row.Name, err)
			}
			tier.Max = &hi
		}
		tiers = append(tiers, tier)
	}
	return tiers, nil
}

// ReplaceTiers swaps the whole tier table in one transaction.
func (r *TokenRepo) ReplaceTiers(ctx context.Context, tiers []domain.Tier) error {
	for _, t := range tiers {
		if err := t.Validate(); err != nil {
			return err
		}
	}

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM tiers`); err != nil {
		return fmt.Errorf("failed to clear tiers: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO tiers (name, min_amount, max_amount, template, media) VALUES ($1, $2, $3, $4, $5)`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, t := range tiers {
		var hi sql.NullString
		if t.Max != nil {
			hi = sql.NullString{String: t.Max.String(), Valid: true}
		}
		if _, err := stmt.ExecContext(ctx, t.Name, t.Min.String(), hi, t.Template, t.Media); err != nil {
			return fmt.Errorf("failed to insert tier %q: %w", t.Name, err)
		}
	}

	return tx.Commit()
}

// FallbackRate returns the static conversion rate, zero when unset.
func (r *TokenRepo) FallbackRate(ctx context.Context) (decimal.Decimal, error) {
	var value string
	err := r.db.GetContext(ctx, &value, `SELECT value FROM settings WHERE key = $1`, fallbackRateKey)
	if errors.Is(err, sql.ErrNoRows) {
		return decimal.Zero, nil
	}
	if err != nil {
		return decimal.Zero, fmt.Errorf("failed to get fallback rate: %w", err)
	}
	rate, err := decimal.NewFromString(value)
	if err != nil {
		return decimal.Zero, fmt.Errorf("invalid fallback rate %q: %w", value, err)
	}
	return rate, nil
}

// SetFallbackRate stores the static conversion rate.
func (r *TokenRepo) SetFallbackRate(ctx context.Context, rate decimal.Decimal) error {
	query := `
		INSERT INTO settings (key, value) VALUES ($1, $2)
		ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value
	`
	if _, err := r.db.ExecContext(ctx, query, fallbackRateKey, rate.String()); err != nil {
		return fmt.Errorf("failed to set fallback rate: %w", err)
	}
	return nil
}
