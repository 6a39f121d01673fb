// Package classifier decides which pool transfers inside a transaction are end-user buys.
package classifier

import (
	"context"
	"log/slog"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"

	"github.com/vietddude/buywatcher/internal/core/domain"
	"github.com/vietddude/buywatcher/internal/indexing/metrics"
)

// Reason explains why a candidate was not classified as a buy.
type Reason string

const (
	ReasonRoundTrip Reason = "round_trip"
	ReasonDenyList  Reason = "deny_list"
	ReasonContract  Reason = "contract"
	ReasonUnpriced  Reason = "unpriced"
	ReasonDust      Reason = "dust"
)

// CodeInspector returns deployed bytecode. chain.Client satisfies it.
type CodeInspector interface {
	GetCode(ctx context.Context, address common.Address) ([]byte, error)
}

// Pricer quotes a token in reference units. *quote.Resolver satisfies it.
type Pricer interface {
	Resolve(ctx context.Context, token domain.MonitoredToken) (domain.Quote, error)
}

// Config holds the classification thresholds.
type Config struct {
	Chain     string
	Reference common.Address
	// DustThreshold is the minimum reference value of a buy, inclusive
	DustThreshold decimal.Decimal
	// MaxCodeSize is the largest bytecode a buyer may have; 0 disables the check
	MaxCodeSize int
	DenyList    []common.Address
}

// Rejection records a candidate that was filtered out.
type Rejection struct {
	Token  common.Address
	Buyer  common.Address
	Reason Reason
}

// Result is the outcome for one transaction.
type Result struct {
	Buys     []domain.ClassifiedBuy
	Rejected []Rejection
}

type Classifier struct {
	cfg    Config
	deny   map[common.Address]struct{}
	code   CodeInspector
	pricer Pricer
	log    *slog.Logger
}

func New(cfg Config, code CodeInspector, pricer Pricer) *Classifier {
	deny := make(map[common.Address]struct{}, len(cfg.DenyList))
	for _, a := range cfg.DenyList {
		deny[a] = struct{}{}
	}
	return &Classifier{
		cfg:    cfg,
		deny:   deny,
		code:   code,
		pricer: pricer,
		log:    slog.Default().With("component", "classifier", "chain", cfg.Chain),
	}
}

type candidate struct {
	buyer  common.Address
	amount *big.Int
}

// Classify inspects every transfer of one transaction. Tokens are visited in
// address order and buyers in log order, so the same input always yields the
// same result. Transfers from one pool to the same buyer are summed into one buy.
func (c *Classifier) Classify(ctx context.Context, txHash string, blockNumber uint64, transfers []domain.Transfer, tokens domain.TokenSet) Result {
	var res Result
	if len(transfers) == 0 {
		return res
	}
	codeCache := make(map[common.Address]bool)

	for _, token := range tokens.Sorted() {
		if token.Address == c.cfg.Reference {
			continue
		}
		candidates, returned := collect(transfers, token)
		if len(candidates) == 0 {
			continue
		}

		price := &lazyQuote{}
		for _, cand := range candidates {
			buy, reason := c.evaluate(ctx, token, cand, returned, codeCache, price)
			if reason == "" {
				buy.TxHash = txHash
				buy.BlockNumber = blockNumber
				res.Buys = append(res.Buys, buy)
				continue
			}
			metrics.CandidatesRejected.WithLabelValues(c.cfg.Chain, string(reason)).Inc()
			c.log.Debug("buy candidate rejected", "tx", txHash, "token", token.Symbol, "buyer", cand.buyer.Hex(), "reason", reason)
			res.Rejected = append(res.Rejected, Rejection{Token: token.Address, Buyer: cand.buyer, Reason: reason})
		}
	}
	return res
}

// lazyQuote resolves a token price at most once per transaction, and only
// when some candidate survives the address checks.
type lazyQuote struct {
	done  bool
	quote domain.Quote
	err   error
}

func (l *lazyQuote) get(ctx context.Context, pricer Pricer, token domain.MonitoredToken) (domain.Quote, error) {
	if !l.done {
		l.quote, l.err = pricer.Resolve(ctx, token)
		l.done = true
	}
	return l.quote, l.err
}

// evaluate returns the buy for cand, or the reason it was rejected.
func (c *Classifier) evaluate(
	ctx context.Context,
	token domain.MonitoredToken,
	cand candidate,
	returned map[common.Address]struct{},
	codeCache map[common.Address]bool,
	price *lazyQuote,
) (domain.ClassifiedBuy, Reason) {
	if reason, rejected := c.screen(ctx, cand.buyer, returned, codeCache); rejected {
		return domain.ClassifiedBuy{}, reason
	}

	q, err := price.get(ctx, c.pricer, token)
	if err != nil {
		c.log.Debug("buy candidate unpriceable", "token", token.Symbol, "error", err)
		return domain.ClassifiedBuy{}, ReasonUnpriced
	}

	amount := decimal.NewFromBigInt(cand.amount, -int32(token.Decimals))
	value := amount.Mul(q.Rate)
	if !value.IsPositive() || value.LessThan(c.cfg.DustThreshold) {
		return domain.ClassifiedBuy{}, ReasonDust
	}
	return domain.ClassifiedBuy{
		Token:           token,
		Buyer:           cand.buyer,
		TokenAmount:     amount,
		ReferenceAmount: value,
		Quote:           q,
	}, ""
}

// screen applies the address checks in order: round trip, deny list, contract size.
func (c *Classifier) screen(ctx context.Context, buyer common.Address, returned map[common.Address]struct{}, codeCache map[common.Address]bool) (Reason, bool) {
	if _, ok := returned[buyer]; ok {
		return ReasonRoundTrip, true
	}
	if _, ok := c.deny[buyer]; ok {
		return ReasonDenyList, true
	}
	if c.isLargeContract(ctx, buyer, codeCache) {
		return ReasonContract, true
	}
	return "", false
}

// isLargeContract fails open: a lookup error counts as a wallet.
func (c *Classifier) isLargeContract(ctx context.Context, addr common.Address, cache map[common.Address]bool) bool {
	if c.cfg.MaxCodeSize <= 0 || c.code == nil {
		return false
	}
	if large, ok := cache[addr]; ok {
		return large
	}
	code, err := c.code.GetCode(ctx, addr)
	if err != nil {
		c.log.Debug("code lookup failed, treating as wallet", "address", addr.Hex(), "error", err)
		return false
	}
	large := len(code) > c.cfg.MaxCodeSize
	cache[addr] = large
	return large
}

// collect groups pool->buyer transfers of token by buyer and lists the
// addresses that sent token back to the pool.
func collect(transfers []domain.Transfer, token domain.MonitoredToken) ([]candidate, map[common.Address]struct{}) {
	var candidates []candidate
	index := make(map[common.Address]int)
	returned := make(map[common.Address]struct{})

	for _, t := range transfers {
		if t.Token != token.Address || t.Amount == nil {
			continue
		}
		switch {
		case t.From == token.Pool && t.To != token.Pool:
			if i, ok := index[t.To]; ok {
				candidates[i].amount.Add(candidates[i].amount, t.Amount)
				continue
			}
			index[t.To] = len(candidates)
			candidates = append(candidates, candidate{buyer: t.To, amount: new(big.Int).Set(t.Amount)})
		case t.To == token.Pool && t.From != token.Pool:
			returned[t.From] = struct{}{}
		}
	}
	return candidates, returned
}
