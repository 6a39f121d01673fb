package quote

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"

	"github.com/vietddude/buywatcher/internal/core/domain"
	"github.com/vietddude/buywatcher/internal/indexing/extractor"
	"github.com/vietddude/buywatcher/internal/infra/chain"
	"github.com/vietddude/buywatcher/internal/infra/chain/evm"
)

// RecentTradesStrategy derives a rate from the most recent transaction in a
// bounded block window that moved both the token and the reference token.
type RecentTradesStrategy struct {
	client     chain.Client
	ref        Reference
	window     uint64
	candidates int
}

func NewRecentTradesStrategy(client chain.Client, ref Reference, window uint64, candidates int) *RecentTradesStrategy {
	if window == 0 {
		window = 500
	}
	if candidates <= 0 {
		candidates = 5
	}
	return &RecentTradesStrategy{client: client, ref: ref, window: window, candidates: candidates}
}

func (s *RecentTradesStrategy) Name() string { return StrategyRecentTrades }

func (s *RecentTradesStrategy) Quote(ctx context.Context, token domain.MonitoredToken) (decimal.Decimal, error) {
	head, err := s.client.CurrentHeight(ctx)
	if err != nil {
		return decimal.Zero, err
	}
	from := uint64(0)
	if head > s.window {
		from = head - s.window
	}

	tokenMoves, err := s.transfers(ctx, token.Address, token.Pool, from, head)
	if err != nil {
		return decimal.Zero, err
	}
	refMoves, err := s.transfers(ctx, s.ref.Address, token.Pool, from, head)
	if err != nil {
		return decimal.Zero, err
	}

	var shared []domain.Transfer
	for tx, t := range tokenMoves {
		if _, ok := refMoves[tx]; ok {
			shared = append(shared, t)
		}
	}
	// Newest first
	sort.Slice(shared, func(i, j int) bool {
		if shared[i].BlockNumber != shared[j].BlockNumber {
			return shared[i].BlockNumber > shared[j].BlockNumber
		}
		return shared[i].LogIndex > shared[j].LogIndex
	})
	if len(shared) > s.candidates {
		shared = shared[:s.candidates]
	}

	for _, t := range shared {
		r := refMoves[strings.ToLower(t.TxHash)]
		if t.Amount.Sign() <= 0 || r.Amount.Sign() <= 0 {
			continue
		}
		return humanRate(decimal.NewFromBigInt(r.Amount, 0), decimal.NewFromBigInt(t.Amount, 0), s.ref, token.Decimals), nil
	}
	return decimal.Zero, fmt.Errorf("%w: blocks %d..%d", ErrNoTrades, from, head)
}

// transfers returns one transfer per transaction, preferring the first one
// that touches the pool.
func (s *RecentTradesStrategy) transfers(ctx context.Context, token, pool common.Address, from, to uint64) (map[string]domain.Transfer, error) {
	logs, err := s.client.GetLogs(ctx, domain.LogFilter{
		Address:   token,
		Topics:    []string{evm.TransferTopic.Hex()},
		FromBlock: from,
		ToBlock:   to,
	})
	if err != nil {
		return nil, err
	}

	byTx := make(map[string]domain.Transfer)
	for _, l := range logs {
		t, err := extractor.DecodeTransfer(l)
		if err != nil {
			continue
		}
		key := strings.ToLower(t.TxHash)
		prev, seen := byTx[key]
		touches := t.From == pool || t.To == pool
		switch {
		case !seen:
			byTx[key] = t
		case touches && prev.From != pool && prev.To != pool:
			byTx[key] = t
		}
	}
	return byTx, nil
}
