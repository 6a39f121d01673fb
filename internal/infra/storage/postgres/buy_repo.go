package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/vietddude/buywatcher/internal/core/domain"
)

// BuyRepo implements storage.BuyStore as a durable ledger.
type BuyRepo struct {
	db *DB
}

// NewBuyRepo creates a new PostgreSQL buy ledger.
func NewBuyRepo(db *DB) *BuyRepo {
	return &BuyRepo{db: db}
}

type buyRow struct {
	ID              string    `db:"id"`
	Key             string    `db:"dedup_key"`
	TxHash          string    `db:"tx_hash"`
	BlockNumber     int64     `db:"block_number"`
	Token           string    `db:"token"`
	Symbol          string    `db:"symbol"`
	Buyer           string    `db:"buyer"`
	TokenAmount     string    `db:"token_amount"`
	ReferenceAmount string    `db:"reference_amount"`
	FiatValue       string    `db:"fiat_value"`
	Strategy        string    `db:"strategy"`
	Tier            string    `db:"tier"`
	DetectedAt      time.Time `db:"detected_at"`
}

func (b *buyRow) toDomain() domain.BuyRecord {
	return domain.BuyRecord{
		ID:              b.ID,
		Key:             b.Key,
		TxHash:          b.TxHash,
		BlockNumber:     uint64(b.BlockNumber),
		Token:           b.Token,
		Symbol:          b.Symbol,
		Buyer:           b.Buyer,
		TokenAmount:     b.TokenAmount,
		ReferenceAmount: b.ReferenceAmount,
		FiatValue:       b.FiatValue,
		Strategy:        b.Strategy,
		Tier:            b.Tier,
		DetectedAt:      b.DetectedAt,
	}
}

// MarkSeen inserts the buy; an existing dedup key leaves the row unchanged.
func (r *BuyRepo) MarkSeen(ctx context.Context, rec *domain.BuyRecord) (bool, error) {
	query := `
		INSERT INTO buys (id, dedup_key, tx_hash, block_number, token, symbol, buyer,
			token_amount, reference_amount, fiat_value, strategy, tier, detected_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		ON CONFLICT (dedup_key) DO NOTHING
	`

	fiat := rec.FiatValue
	if fiat == "" {
		fiat = "0"
	}
	res, err := r.db.ExecContext(ctx, query,
		rec.ID,
		rec.Key,
		rec.TxHash,
		int64(rec.BlockNumber),
		rec.Token,
		rec.Symbol,
		rec.Buyer,
		rec.TokenAmount,
		rec.ReferenceAmount,
		fiat,
		rec.Strategy,
		rec.Tier,
		rec.DetectedAt,
	)
	if err != nil {
		return false, fmt.Errorf("failed to record buy: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to record buy: %w", err)
	}
	return n == 1, nil
}

// Recent lists the newest buys first.
func (r *BuyRepo) Recent(ctx context.Context, limit int) ([]domain.BuyRecord, error) {
	if limit <= 0 {
		limit = 20
	}
	query := `
		SELECT id::text AS id, dedup_key, tx_hash, block_number, token, symbol, buyer,
			token_amount::text AS token_amount, reference_amount::text AS reference_amount,
			fiat_value::text AS fiat_value, strategy, tier, detected_at
		FROM buys
		ORDER BY detected_at DESC
		LIMIT $1
	`

	var rows []buyRow
	if err := r.db.SelectContext(ctx, &rows, query, limit); err != nil {
		return nil, fmt.Errorf("failed to list buys: %w", err)
	}

	records := make([]domain.BuyRecord, 0, len(rows))
	for i := range rows {
		records = append(records, rows[i].toDomain())
	}
	return records, nil
}

// DeleteOlderThan removes buys detected before cutoff and returns how many went.
func (r *BuyRepo) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM buys WHERE detected_at < $1`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to prune buys: %w", err)
	}
	return res.RowsAffected()
}
