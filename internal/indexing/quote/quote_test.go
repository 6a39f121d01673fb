package quote

import (
	"context"
	"errors"
	"math/big"
	"sync"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/shopspring/decimal"

	"github.com/vietddude/buywatcher/internal/core/config"
	"github.com/vietddude/buywatcher/internal/core/domain"
	"github.com/vietddude/buywatcher/internal/infra/chain/evm"
)

var (
	refAddr   = common.HexToAddress("0x568524DA340579887db50Ecf602Cd1BA8451b243")
	tokenAddr = common.HexToAddress("0x1000000000000000000000000000000000000001")
	poolAddr  = common.HexToAddress("0x2000000000000000000000000000000000000002")
	ref       = Reference{Address: refAddr, Decimals: 18}
	token     = domain.MonitoredToken{Address: tokenAddr, Symbol: "X", Decimals: 18, Pool: poolAddr, Active: true}
)

func e18(n int64) *big.Int {
	return new(big.Int).Mul(big.NewInt(n), new(big.Int).Exp(big.NewInt(10), big.NewInt(18), nil))
}

func word(b []byte) []byte { return common.LeftPadBytes(b, 32) }

// mockChain answers pool calls by method name and counts every call.
type mockChain struct {
	mu        sync.Mutex
	responses map[string][]byte
	callErr   map[string]error
	logs      map[common.Address][]domain.Log
	head      uint64
	calls     map[string]int
}

func newMockChain() *mockChain {
	return &mockChain{
		responses: map[string][]byte{},
		callErr:   map[string]error{},
		logs:      map[common.Address][]domain.Log{},
		calls:     map[string]int{},
	}
}

func (m *mockChain) setPair(t0, t1 common.Address, r0, r1 *big.Int) {
	m.responses["token0"] = word(t0.Bytes())
	m.responses["token1"] = word(t1.Bytes())
	m.responses["getReserves"] = append(append(word(r0.Bytes()), word(r1.Bytes())...), word(nil)...)
}

func (m *mockChain) count(name string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls[name]
}

func (m *mockChain) inc(name string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls[name]++
}

func (m *mockChain) CurrentHeight(ctx context.Context) (uint64, error) {
	m.inc("CurrentHeight")
	return m.head, nil
}

func (m *mockChain) GetBlock(ctx context.Context, height uint64) (*domain.Block, error) {
	return nil, errors.New("not used")
}

func (m *mockChain) GetReceipt(ctx context.Context, txHash string) (*domain.Receipt, error) {
	return nil, errors.New("not used")
}

func (m *mockChain) GetLogs(ctx context.Context, filter domain.LogFilter) ([]domain.Log, error) {
	m.inc("GetLogs")
	var out []domain.Log
	for _, l := range m.logs[filter.Address] {
		if l.BlockNumber >= filter.FromBlock && l.BlockNumber <= filter.ToBlock {
			out = append(out, l)
		}
	}
	return out, nil
}

func (m *mockChain) Call(ctx context.Context, contract common.Address, data []byte) ([]byte, error) {
	for name, method := range evm.PairABI.Methods {
		if len(data) >= 4 && string(method.ID) == string(data[:4]) {
			m.inc(name)
			if err := m.callErr[name]; err != nil {
				return nil, err
			}
			return m.responses[name], nil
		}
	}
	return nil, errors.New("unknown selector")
}

func (m *mockChain) GetCode(ctx context.Context, address common.Address) ([]byte, error) {
	return nil, nil
}

type fixedRate struct {
	rate  decimal.Decimal
	calls int
}

func (f *fixedRate) FallbackRate(ctx context.Context) (decimal.Decimal, error) {
	f.calls++
	return f.rate, nil
}

func transferLog(tok, from, to common.Address, amount *big.Int, tx string, block uint64) domain.Log {
	return domain.Log{
		Address:     tok,
		Topics:      []string{evm.TransferTopic.Hex(), common.BytesToHash(from.Bytes()).Hex(), common.BytesToHash(to.Bytes()).Hex()},
		Data:        hexutil.Encode(word(amount.Bytes())),
		TxHash:      tx,
		BlockNumber: block,
	}
}

func TestReserveStrategy(t *testing.T) {
	tests := []struct {
		name    string
		t0, t1  common.Address
		r0, r1  *big.Int
		want    string
		wantErr error
	}{
		{"token is token0", tokenAddr, refAddr, e18(20000), e18(100), "0.005", nil},
		{"token is token1", refAddr, tokenAddr, e18(100), e18(20000), "0.005", nil},
		{"reference missing", tokenAddr, common.HexToAddress("0x9"), e18(1), e18(1), "", ErrPoolMismatch},
		{"token missing", refAddr, common.HexToAddress("0x9"), e18(1), e18(1), "", ErrPoolMismatch},
		{"zero token reserve", tokenAddr, refAddr, big.NewInt(0), e18(100), "", ErrZeroReserve},
		{"zero reference reserve", tokenAddr, refAddr, e18(100), big.NewInt(0), "", ErrZeroReserve},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mc := newMockChain()
			mc.setPair(tt.t0, tt.t1, tt.r0, tt.r1)
			rate, err := NewReserveStrategy(mc, ref).Quote(context.Background(), token)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("got %v, want %v", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if !rate.Equal(decimal.RequireFromString(tt.want)) {
				t.Errorf("rate = %s, want %s", rate, tt.want)
			}
		})
	}
}

func TestReserveStrategyMixedDecimals(t *testing.T) {
	mc := newMockChain()
	// 1,000 tokens with 6 decimals against 50 reference units
	mc.setPair(tokenAddr, refAddr, big.NewInt(1_000_000_000), e18(50))
	tok := token
	tok.Decimals = 6
	rate, err := NewReserveStrategy(mc, ref).Quote(context.Background(), tok)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !rate.Equal(decimal.RequireFromString("0.05")) {
		t.Errorf("rate = %s, want 0.05", rate)
	}
}

func TestAltPoolStrategy(t *testing.T) {
	t.Run("disabled", func(t *testing.T) {
		mc := newMockChain()
		_, err := NewAltPoolStrategy(mc, ref, false).Quote(context.Background(), token)
		if !errors.Is(err, ErrNotImplemented) {
			t.Fatalf("got %v, want ErrNotImplemented", err)
		}
		if len(mc.calls) != 0 {
			t.Errorf("disabled strategy made calls: %v", mc.calls)
		}
	})

	t.Run("alternative accessors", func(t *testing.T) {
		mc := newMockChain()
		mc.responses["tokenA"] = word(tokenAddr.Bytes())
		mc.responses["tokenB"] = word(refAddr.Bytes())
		mc.responses["reserves"] = append(word(e18(400).Bytes()), word(e18(2).Bytes())...)
		rate, err := NewAltPoolStrategy(mc, ref, true).Quote(context.Background(), token)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if !rate.Equal(decimal.RequireFromString("0.005")) {
			t.Errorf("rate = %s, want 0.005", rate)
		}
	})

	t.Run("falls back to v2 names", func(t *testing.T) {
		mc := newMockChain()
		mc.setPair(tokenAddr, refAddr, e18(20000), e18(100))
		mc.callErr["tokenA"] = errors.New("execution reverted")
		mc.callErr["tokenB"] = errors.New("execution reverted")
		rate, err := NewAltPoolStrategy(mc, ref, true).Quote(context.Background(), token)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if !rate.Equal(decimal.RequireFromString("0.005")) {
			t.Errorf("rate = %s, want 0.005", rate)
		}
		if mc.count("reserves") != 1 || mc.count("getReserves") != 1 {
			t.Errorf("expected reserves then getReserves, got %v", mc.calls)
		}
	})
}

func TestRecentTradesStrategy(t *testing.T) {
	mc := newMockChain()
	mc.head = 1000
	buyer := common.HexToAddress("0xbeef")
	// Old trade outside the window
	mc.logs[tokenAddr] = append(mc.logs[tokenAddr], transferLog(tokenAddr, poolAddr, buyer, e18(10), "0xold", 100))
	mc.logs[refAddr] = append(mc.logs[refAddr], transferLog(refAddr, buyer, poolAddr, e18(1000), "0xold", 100))
	// Older in-window trade: 1 reference for 100 tokens
	mc.logs[tokenAddr] = append(mc.logs[tokenAddr], transferLog(tokenAddr, poolAddr, buyer, e18(100), "0xa", 600))
	mc.logs[refAddr] = append(mc.logs[refAddr], transferLog(refAddr, buyer, poolAddr, e18(1), "0xa", 600))
	// Newest trade: 3 reference for 200 tokens
	mc.logs[tokenAddr] = append(mc.logs[tokenAddr], transferLog(tokenAddr, poolAddr, buyer, e18(200), "0xb", 900))
	mc.logs[refAddr] = append(mc.logs[refAddr], transferLog(refAddr, buyer, poolAddr, e18(3), "0xb", 900))
	// Token-only transfer is not a trade
	mc.logs[tokenAddr] = append(mc.logs[tokenAddr], transferLog(tokenAddr, buyer, common.HexToAddress("0xcafe"), e18(1), "0xc", 950))

	rate, err := NewRecentTradesStrategy(mc, ref, 500, 5).Quote(context.Background(), token)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !rate.Equal(decimal.RequireFromString("0.015")) {
		t.Errorf("rate = %s, want 0.015", rate)
	}
}

func TestRecentTradesStrategyNoTrades(t *testing.T) {
	mc := newMockChain()
	mc.head = 10
	_, err := NewRecentTradesStrategy(mc, ref, 500, 5).Quote(context.Background(), token)
	if !errors.Is(err, ErrNoTrades) {
		t.Fatalf("got %v, want ErrNoTrades", err)
	}
}

func TestResolverOrder(t *testing.T) {
	mc := newMockChain()
	mc.setPair(tokenAddr, refAddr, e18(20000), e18(100))
	rates := &fixedRate{rate: decimal.NewFromInt(7)}

	r := NewResolver(
		NewReserveStrategy(mc, ref),
		NewAltPoolStrategy(mc, ref, true),
		NewRecentTradesStrategy(mc, ref, 500, 5),
		NewStaticStrategy(rates),
	)
	q, err := r.Resolve(context.Background(), token)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if q.Strategy != StrategyReserve {
		t.Errorf("strategy = %s, want reserve", q.Strategy)
	}
	if !q.Rate.Equal(decimal.RequireFromString("0.005")) {
		t.Errorf("rate = %s, want 0.005", q.Rate)
	}
	if mc.count("GetLogs") != 0 || mc.count("CurrentHeight") != 0 {
		t.Errorf("recent trades strategy was invoked: %v", mc.calls)
	}
	if mc.count("tokenA") != 0 {
		t.Errorf("alt pool strategy was invoked")
	}
	if rates.calls != 0 {
		t.Errorf("static strategy was invoked %d times", rates.calls)
	}
}

func TestResolverFallsThrough(t *testing.T) {
	mc := newMockChain()
	mc.callErr["token0"] = errors.New("execution reverted")
	rates := &fixedRate{rate: decimal.RequireFromString("0.25")}

	r := NewResolver(
		NewReserveStrategy(mc, ref),
		NewAltPoolStrategy(mc, ref, false),
		NewRecentTradesStrategy(mc, ref, 500, 5),
		NewStaticStrategy(rates),
	)
	q, err := r.Resolve(context.Background(), token)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if q.Strategy != StrategyStatic || !q.Rate.Equal(decimal.RequireFromString("0.25")) {
		t.Errorf("unexpected quote %+v", q)
	}
	if mc.count("GetLogs") != 2 {
		t.Errorf("recent trades should query both tokens, got %d", mc.count("GetLogs"))
	}
}

func TestResolverUnpriceable(t *testing.T) {
	mc := newMockChain()
	mc.setPair(tokenAddr, common.HexToAddress("0x9"), e18(1), e18(1))

	r := NewResolver(
		NewReserveStrategy(mc, ref),
		NewAltPoolStrategy(mc, ref, false),
		NewRecentTradesStrategy(mc, ref, 500, 5),
		NewStaticStrategy(&fixedRate{rate: decimal.Zero}),
	)
	_, err := r.Resolve(context.Background(), token)
	for _, want := range []error{ErrUnpriceable, ErrPoolMismatch, ErrNotImplemented, ErrNoTrades} {
		if !errors.Is(err, want) {
			t.Errorf("error %v does not wrap %v", err, want)
		}
	}
}

func TestResolverNoStrategies(t *testing.T) {
	_, err := NewResolver().Resolve(context.Background(), token)
	if !errors.Is(err, ErrUnpriceable) {
		t.Fatalf("got %v, want ErrUnpriceable", err)
	}
}

func TestResolverTrace(t *testing.T) {
	mc := newMockChain()
	mc.setPair(tokenAddr, refAddr, e18(20000), e18(100))
	r := NewResolver(NewReserveStrategy(mc, ref), NewAltPoolStrategy(mc, ref, false), NewStaticStrategy(&fixedRate{rate: decimal.NewFromInt(2)}))

	results := r.Trace(context.Background(), token)
	if len(results) != 3 {
		t.Fatalf("expected 3 results, got %d", len(results))
	}
	if !results[0].OK() || results[1].OK() || !results[2].OK() {
		t.Errorf("unexpected outcomes: %+v", results)
	}
}

func TestFromConfig(t *testing.T) {
	mc := newMockChain()
	r, err := FromConfig(config.QuoteConfig{Strategies: []string{"static", "reserve"}}, mc, ref, &fixedRate{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	got := r.Strategies()
	if len(got) != 2 || got[0] != StrategyStatic || got[1] != StrategyReserve {
		t.Errorf("strategies = %v", got)
	}

	if _, err := FromConfig(config.QuoteConfig{Strategies: []string{"oracle"}}, mc, ref, &fixedRate{}); err == nil {
		t.Error("expected error for unknown strategy")
	}
}
