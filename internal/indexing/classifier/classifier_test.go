package classifier

import (
	"context"
	"errors"
	"math/big"
	"math/rand"
	"reflect"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"

	"github.com/vietddude/buywatcher/internal/core/domain"
)

var (
	refAddr = common.HexToAddress("0x568524DA340579887db50Ecf602Cd1BA8451b243")
	tokenX  = domain.MonitoredToken{
		Address:  common.HexToAddress("0x1000000000000000000000000000000000000001"),
		Symbol:   "X",
		Decimals: 18,
		Pool:     common.HexToAddress("0x2000000000000000000000000000000000000002"),
		Active:   true,
	}
	wallet = common.HexToAddress("0x3000000000000000000000000000000000000003")
	router = common.HexToAddress("0x7a250d5630B4cF539739dF2C5dAcb4c659F2488D")
)

type mockCode struct {
	code  map[common.Address][]byte
	err   error
	calls int
}

func (m *mockCode) GetCode(ctx context.Context, address common.Address) ([]byte, error) {
	m.calls++
	if m.err != nil {
		return nil, m.err
	}
	return m.code[address], nil
}

type mockPricer struct {
	rate  decimal.Decimal
	err   error
	calls int
}

func (m *mockPricer) Resolve(ctx context.Context, token domain.MonitoredToken) (domain.Quote, error) {
	m.calls++
	if m.err != nil {
		return domain.Quote{}, m.err
	}
	return domain.Quote{Rate: m.rate, Strategy: "reserve"}, nil
}

func units(n int64) *big.Int {
	return new(big.Int).Mul(big.NewInt(n), new(big.Int).Exp(big.NewInt(10), big.NewInt(18), nil))
}

func transfer(token, from, to common.Address, amount *big.Int) domain.Transfer {
	return domain.Transfer{Token: token, From: from, To: to, Amount: amount, TxHash: "0xtx", BlockNumber: 7}
}

func newClassifier(code CodeInspector, pricer Pricer) *Classifier {
	return New(Config{
		Chain:         "test",
		Reference:     refAddr,
		DustThreshold: decimal.RequireFromString("0.01"),
		MaxCodeSize:   10000,
		DenyList:      []common.Address{router},
	}, code, pricer)
}

func tokens(t *testing.T, list ...domain.MonitoredToken) domain.TokenSet {
	t.Helper()
	set, err := domain.NewTokenSet(list)
	if err != nil {
		t.Fatalf("token set: %v", err)
	}
	return set
}

func TestClassifyBuy(t *testing.T) {
	pricer := &mockPricer{rate: decimal.RequireFromString("0.005")}
	c := newClassifier(&mockCode{}, pricer)

	res := c.Classify(context.Background(), "0xtx", 7, []domain.Transfer{
		transfer(tokenX.Address, tokenX.Pool, wallet, units(500)),
	}, tokens(t, tokenX))

	if len(res.Buys) != 1 {
		t.Fatalf("expected 1 buy, got %d (rejected %+v)", len(res.Buys), res.Rejected)
	}
	buy := res.Buys[0]
	if buy.Buyer != wallet || buy.TxHash != "0xtx" || buy.BlockNumber != 7 {
		t.Errorf("unexpected buy identity: %+v", buy)
	}
	if !buy.TokenAmount.Equal(decimal.NewFromInt(500)) {
		t.Errorf("token amount = %s, want 500", buy.TokenAmount)
	}
	if !buy.ReferenceAmount.Equal(decimal.RequireFromString("2.5")) {
		t.Errorf("reference amount = %s, want 2.5", buy.ReferenceAmount)
	}
	if buy.Quote.Strategy != "reserve" {
		t.Errorf("strategy = %s", buy.Quote.Strategy)
	}
}

func TestClassifyRejections(t *testing.T) {
	contract := common.HexToAddress("0x4000000000000000000000000000000000000004")
	smallContract := common.HexToAddress("0x5000000000000000000000000000000000000005")
	code := &mockCode{code: map[common.Address][]byte{
		contract:      make([]byte, 10001),
		smallContract: make([]byte, 10000),
	}}

	tests := []struct {
		name      string
		transfers []domain.Transfer
		rate      string
		priceErr  error
		want      Reason // empty means accepted
	}{
		{
			name: "round trip",
			transfers: []domain.Transfer{
				transfer(tokenX.Address, tokenX.Pool, wallet, units(10)),
				transfer(tokenX.Address, wallet, tokenX.Pool, units(10)),
			},
			rate: "1",
			want: ReasonRoundTrip,
		},
		{
			name:      "deny list",
			transfers: []domain.Transfer{transfer(tokenX.Address, tokenX.Pool, router, units(10))},
			rate:      "1",
			want:      ReasonDenyList,
		},
		{
			name:      "large contract",
			transfers: []domain.Transfer{transfer(tokenX.Address, tokenX.Pool, contract, units(10))},
			rate:      "1",
			want:      ReasonContract,
		},
		{
			name:      "contract at threshold",
			transfers: []domain.Transfer{transfer(tokenX.Address, tokenX.Pool, smallContract, units(10))},
			rate:      "1",
		},
		{
			name:      "unpriceable",
			transfers: []domain.Transfer{transfer(tokenX.Address, tokenX.Pool, wallet, units(10))},
			priceErr:  errors.New("no strategy"),
			want:      ReasonUnpriced,
		},
		{
			name:      "below dust",
			transfers: []domain.Transfer{transfer(tokenX.Address, tokenX.Pool, wallet, units(1))},
			rate:      "0.005",
			want:      ReasonDust,
		},
		{
			name:      "exactly dust",
			transfers: []domain.Transfer{transfer(tokenX.Address, tokenX.Pool, wallet, units(1))},
			rate:      "0.01",
		},
		{
			name:      "zero amount",
			transfers: []domain.Transfer{transfer(tokenX.Address, tokenX.Pool, wallet, big.NewInt(0))},
			rate:      "1",
			want:      ReasonDust,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			pricer := &mockPricer{err: tt.priceErr}
			if tt.rate != "" {
				pricer.rate = decimal.RequireFromString(tt.rate)
			}
			c := newClassifier(code, pricer)
			res := c.Classify(context.Background(), "0xtx", 7, tt.transfers, tokens(t, tokenX))

			if tt.want == "" {
				if len(res.Buys) != 1 || len(res.Rejected) != 0 {
					t.Fatalf("expected acceptance, got buys=%d rejected=%+v", len(res.Buys), res.Rejected)
				}
				return
			}
			if len(res.Buys) != 0 {
				t.Fatalf("expected rejection %s, got buy %+v", tt.want, res.Buys[0])
			}
			if len(res.Rejected) != 1 || res.Rejected[0].Reason != tt.want {
				t.Fatalf("rejections = %+v, want %s", res.Rejected, tt.want)
			}
		})
	}
}

func TestCodeLookupFailsOpen(t *testing.T) {
	c := newClassifier(&mockCode{err: errors.New("node down")}, &mockPricer{rate: decimal.NewFromInt(1)})
	res := c.Classify(context.Background(), "0xtx", 7, []domain.Transfer{
		transfer(tokenX.Address, tokenX.Pool, wallet, units(1)),
	}, tokens(t, tokenX))
	if len(res.Buys) != 1 {
		t.Fatalf("expected buy when code lookup fails, got %+v", res.Rejected)
	}
}

func TestScreenRunsBeforePricing(t *testing.T) {
	pricer := &mockPricer{rate: decimal.NewFromInt(1)}
	c := newClassifier(&mockCode{}, pricer)
	c.Classify(context.Background(), "0xtx", 7, []domain.Transfer{
		transfer(tokenX.Address, tokenX.Pool, router, units(1)),
	}, tokens(t, tokenX))
	if pricer.calls != 0 {
		t.Errorf("pricer called %d times for a denied buyer", pricer.calls)
	}
}

func TestClassifyMultipleBuyers(t *testing.T) {
	other := common.HexToAddress("0x6000000000000000000000000000000000000006")
	pricer := &mockPricer{rate: decimal.NewFromInt(1)}
	c := newClassifier(&mockCode{}, pricer)

	res := c.Classify(context.Background(), "0xtx", 7, []domain.Transfer{
		transfer(tokenX.Address, tokenX.Pool, wallet, units(1)),
		transfer(tokenX.Address, tokenX.Pool, other, units(2)),
		transfer(tokenX.Address, tokenX.Pool, wallet, units(3)),
	}, tokens(t, tokenX))

	if len(res.Buys) != 2 {
		t.Fatalf("expected 2 buys, got %d", len(res.Buys))
	}
	if res.Buys[0].Buyer != wallet || !res.Buys[0].TokenAmount.Equal(decimal.NewFromInt(4)) {
		t.Errorf("first buy = %+v, want wallet with 4", res.Buys[0])
	}
	if res.Buys[1].Buyer != other || !res.Buys[1].TokenAmount.Equal(decimal.NewFromInt(2)) {
		t.Errorf("second buy = %+v, want other with 2", res.Buys[1])
	}
	if pricer.calls != 1 {
		t.Errorf("pricer called %d times, want 1 per token", pricer.calls)
	}
	if res.Buys[0].Key() == res.Buys[1].Key() {
		t.Error("distinct buyers share a dedup key")
	}
}

func TestClassifySkipsReferenceAndOtherTokens(t *testing.T) {
	refToken := domain.MonitoredToken{Address: refAddr, Symbol: "MST", Decimals: 18, Pool: tokenX.Pool, Active: true}
	c := newClassifier(&mockCode{}, &mockPricer{rate: decimal.NewFromInt(1)})

	res := c.Classify(context.Background(), "0xtx", 7, []domain.Transfer{
		transfer(refAddr, tokenX.Pool, wallet, units(5)),
		transfer(common.HexToAddress("0x9"), tokenX.Pool, wallet, units(5)),
		transfer(tokenX.Address, common.HexToAddress("0x8"), wallet, units(5)),
	}, tokens(t, tokenX, refToken))

	if len(res.Buys) != 0 || len(res.Rejected) != 0 {
		t.Errorf("expected nothing, got buys=%+v rejected=%+v", res.Buys, res.Rejected)
	}
}

// Random transaction shapes never yield a buy for a buyer that also returned the token to the pool.
func TestRoundTripInvariant(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	addrs := []common.Address{
		tokenX.Pool,
		wallet,
		common.HexToAddress("0x6000000000000000000000000000000000000006"),
		common.HexToAddress("0x7000000000000000000000000000000000000007"),
	}
	c := newClassifier(&mockCode{}, &mockPricer{rate: decimal.NewFromInt(1)})
	set := tokens(t, tokenX)

	for i := 0; i < 500; i++ {
		n := 1 + rng.Intn(6)
		transfers := make([]domain.Transfer, 0, n)
		for j := 0; j < n; j++ {
			from := addrs[rng.Intn(len(addrs))]
			to := addrs[rng.Intn(len(addrs))]
			transfers = append(transfers, transfer(tokenX.Address, from, to, units(int64(1+rng.Intn(100)))))
		}

		returned := map[common.Address]bool{}
		for _, tr := range transfers {
			if tr.To == tokenX.Pool {
				returned[tr.From] = true
			}
		}

		res := c.Classify(context.Background(), "0xtx", 7, transfers, set)
		for _, b := range res.Buys {
			if returned[b.Buyer] {
				t.Fatalf("iteration %d: buyer %s round-tripped but was classified: %+v", i, b.Buyer.Hex(), transfers)
			}
			if b.Buyer == tokenX.Pool {
				t.Fatalf("iteration %d: pool classified as buyer", i)
			}
		}
	}
}

func TestClassifyDeterministic(t *testing.T) {
	tokenY := domain.MonitoredToken{
		Address:  common.HexToAddress("0x0a00000000000000000000000000000000000001"),
		Symbol:   "Y",
		Decimals: 6,
		Pool:     common.HexToAddress("0x0b00000000000000000000000000000000000002"),
		Active:   true,
	}
	transfers := []domain.Transfer{
		transfer(tokenX.Address, tokenX.Pool, wallet, units(5)),
		transfer(tokenY.Address, tokenY.Pool, wallet, big.NewInt(5_000_000)),
	}
	set := tokens(t, tokenX, tokenY)

	c := newClassifier(&mockCode{}, &mockPricer{rate: decimal.NewFromInt(1)})
	first := c.Classify(context.Background(), "0xtx", 7, transfers, set)
	for i := 0; i < 20; i++ {
		again := c.Classify(context.Background(), "0xtx", 7, transfers, set)
		if !reflect.DeepEqual(first, again) {
			t.Fatalf("run %d differs", i)
		}
	}
	if len(first.Buys) != 2 || first.Buys[0].Token.Symbol != "Y" {
		t.Errorf("tokens not visited in address order: %+v", first.Buys)
	}
}
