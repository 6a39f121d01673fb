package quote

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"

	"github.com/vietddude/buywatcher/internal/core/domain"
	"github.com/vietddude/buywatcher/internal/infra/chain"
	"github.com/vietddude/buywatcher/internal/infra/chain/evm"
)

// ReserveStrategy reads token0/token1/getReserves from a Uniswap V2 style pool.
type ReserveStrategy struct {
	client chain.Client
	ref    Reference
}

func NewReserveStrategy(client chain.Client, ref Reference) *ReserveStrategy {
	return &ReserveStrategy{client: client, ref: ref}
}

func (s *ReserveStrategy) Name() string { return StrategyReserve }

func (s *ReserveStrategy) Quote(ctx context.Context, token domain.MonitoredToken) (decimal.Decimal, error) {
	pair, err := readPair(ctx, s.client, token.Pool, []string{"token0"}, []string{"token1"}, []string{"getReserves"})
	if err != nil {
		return decimal.Zero, err
	}
	return pair.rate(token, s.ref)
}

// AltPoolStrategy covers pools exposing tokenA/tokenB/reserves. Each accessor
// falls back to its Uniswap V2 name when the alternative one fails.
// When disabled it always fails with ErrNotImplemented.
type AltPoolStrategy struct {
	client  chain.Client
	ref     Reference
	enabled bool
}

func NewAltPoolStrategy(client chain.Client, ref Reference, enabled bool) *AltPoolStrategy {
	return &AltPoolStrategy{client: client, ref: ref, enabled: enabled}
}

func (s *AltPoolStrategy) Name() string { return StrategyAltPool }

func (s *AltPoolStrategy) Quote(ctx context.Context, token domain.MonitoredToken) (decimal.Decimal, error) {
	if !s.enabled {
		return decimal.Zero, ErrNotImplemented
	}
	pair, err := readPair(ctx, s.client, token.Pool,
		[]string{"tokenA", "token0"},
		[]string{"tokenB", "token1"},
		[]string{"reserves", "getReserves"},
	)
	if err != nil {
		return decimal.Zero, err
	}
	return pair.rate(token, s.ref)
}

type pairState struct {
	token0, token1     common.Address
	reserve0, reserve1 *big.Int
}

// rate matches pool slots to the token and the reference by address.
func (p pairState) rate(token domain.MonitoredToken, ref Reference) (decimal.Decimal, error) {
	var tokenReserve, refReserve *big.Int
	switch {
	case p.token0 == token.Address && p.token1 == ref.Address:
		tokenReserve, refReserve = p.reserve0, p.reserve1
	case p.token1 == token.Address && p.token0 == ref.Address:
		tokenReserve, refReserve = p.reserve1, p.reserve0
	default:
		return decimal.Zero, fmt.Errorf("%w: pool holds %s/%s", ErrPoolMismatch, p.token0.Hex(), p.token1.Hex())
	}
	if tokenReserve.Sign() == 0 || refReserve.Sign() == 0 {
		return decimal.Zero, fmt.Errorf("%w: token=%s reference=%s", ErrZeroReserve, tokenReserve, refReserve)
	}
	return humanRate(decimal.NewFromBigInt(refReserve, 0), decimal.NewFromBigInt(tokenReserve, 0), ref, token.Decimals), nil
}

func readPair(ctx context.Context, client chain.Client, pool common.Address, token0, token1, reserves []string) (pairState, error) {
	var p pairState
	var err error
	if p.token0, err = firstAddress(ctx, client, pool, token0); err != nil {
		return p, err
	}
	if p.token1, err = firstAddress(ctx, client, pool, token1); err != nil {
		return p, err
	}
	if p.reserve0, p.reserve1, err = firstReserves(ctx, client, pool, reserves); err != nil {
		return p, err
	}
	return p, nil
}

func firstAddress(ctx context.Context, client chain.Client, pool common.Address, methods []string) (common.Address, error) {
	var lastErr error
	for _, m := range methods {
		data, err := callPool(ctx, client, pool, m)
		if err == nil {
			var addr common.Address
			if addr, err = evm.UnpackAddress(m, data); err == nil {
				return addr, nil
			}
		}
		lastErr = err
	}
	return common.Address{}, lastErr
}

func firstReserves(ctx context.Context, client chain.Client, pool common.Address, methods []string) (*big.Int, *big.Int, error) {
	var lastErr error
	for _, m := range methods {
		data, err := callPool(ctx, client, pool, m)
		if err == nil {
			var r0, r1 *big.Int
			if r0, r1, err = evm.UnpackReserves(m, data); err == nil {
				return r0, r1, nil
			}
		}
		lastErr = err
	}
	return nil, nil, lastErr
}

func callPool(ctx context.Context, client chain.Client, pool common.Address, method string) ([]byte, error) {
	input, err := evm.PackCall(method)
	if err != nil {
		return nil, err
	}
	out, err := client.Call(ctx, pool, input)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", method, err)
	}
	return out, nil
}
