// Package poller drives the buy engine: it follows the chain head and feeds
// every new block through extraction, classification and the pipeline.
package poller

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/vietddude/buywatcher/internal/core/domain"
	"github.com/vietddude/buywatcher/internal/indexing/classifier"
	"github.com/vietddude/buywatcher/internal/indexing/extractor"
	"github.com/vietddude/buywatcher/internal/indexing/metrics"
	"github.com/vietddude/buywatcher/internal/indexing/pipeline"
	"github.com/vietddude/buywatcher/internal/infra/chain"
	"github.com/vietddude/buywatcher/internal/infra/chain/evm"
	"github.com/vietddude/buywatcher/internal/registry"
)

// RegistrySource is asked for a snapshot once per cycle. Implementations pin
// it, so the rate and tiers read while the range is processed stay the same.
type RegistrySource interface {
	Snapshot(ctx context.Context) (*registry.Snapshot, error)
}

// Classifier picks buys out of one transaction's transfers.
type Classifier interface {
	Classify(ctx context.Context, txHash string, blockNumber uint64, transfers []domain.Transfer, tokens domain.TokenSet) classifier.Result
}

// BuySink consumes classified buys.
type BuySink interface {
	Process(ctx context.Context, buy domain.ClassifiedBuy) pipeline.Outcome
}

// Config controls pacing and parallelism.
type Config struct {
	Chain        string
	Interval     time.Duration
	IdleInterval time.Duration
	Backoff      time.Duration
	Workers      int
	// UseBloom skips blocks whose logs bloom rules out a Transfer from any active token
	UseBloom bool
}

type Poller struct {
	cfg        Config
	client     chain.Client
	registry   RegistrySource
	extractor  *extractor.Extractor
	classifier Classifier
	sink       BuySink
	clock      Clock
	state      PollState
	log        *slog.Logger
}

func New(cfg Config, client chain.Client, reg RegistrySource, classifier Classifier, sink BuySink) *Poller {
	if cfg.Interval <= 0 {
		cfg.Interval = 5 * time.Second
	}
	if cfg.IdleInterval <= 0 {
		cfg.IdleInterval = 30 * time.Second
	}
	if cfg.Backoff <= 0 {
		cfg.Backoff = 10 * time.Second
	}
	if cfg.Workers <= 0 {
		cfg.Workers = 4
	}
	return &Poller{
		cfg:        cfg,
		client:     client,
		registry:   reg,
		extractor:  extractor.New(cfg.Chain),
		classifier: classifier,
		sink:       sink,
		clock:      realClock{},
		log:        slog.Default().With("component", "poller", "chain", cfg.Chain),
	}
}

// WithClock overrides the clock.
func (p *Poller) WithClock(c Clock) *Poller {
	p.clock = c
	return p
}

// State returns the last processed height.
func (p *Poller) State() (uint64, bool) {
	return p.state.Last()
}

// Run polls until ctx is cancelled. Transient errors never stop it.
func (p *Poller) Run(ctx context.Context) error {
	p.log.Info("poller started",
		"interval", p.cfg.Interval,
		"idle_interval", p.cfg.IdleInterval,
		"workers", p.cfg.Workers,
	)
	for {
		wait, err := p.Cycle(ctx)
		if ctx.Err() != nil {
			p.log.Info("poller stopped")
			return ctx.Err()
		}
		if err != nil {
			p.log.Error("poll cycle failed", "error", err, "retry_in", wait)
		}

		select {
		case <-ctx.Done():
			p.log.Info("poller stopped")
			return ctx.Err()
		case <-p.clock.After(wait):
		}
	}
}

// Cycle runs one poll cycle and returns how long to wait before the next one.
func (p *Poller) Cycle(ctx context.Context) (time.Duration, error) {
	log := p.log.With("cycle", uuid.NewString())

	height, err := p.client.CurrentHeight(ctx)
	if err != nil {
		metrics.PollCycles.WithLabelValues(p.cfg.Chain, "error").Inc()
		return p.cfg.Backoff, fmt.Errorf("current height: %w", err)
	}
	metrics.ChainLatestBlock.WithLabelValues(p.cfg.Chain).Set(float64(height))

	last, ok := p.state.Last()
	if !ok {
		// Buys before startup are never scanned
		p.advance(height)
		log.Info("poll state initialized", "height", height)
		return p.cfg.Interval, nil
	}

	snap, err := p.registry.Snapshot(ctx)
	if err != nil {
		metrics.PollCycles.WithLabelValues(p.cfg.Chain, "error").Inc()
		return p.cfg.Backoff, fmt.Errorf("registry snapshot: %w", err)
	}
	tokens := snap.Active
	metrics.ActiveTokens.WithLabelValues(p.cfg.Chain).Set(float64(len(tokens)))

	if len(tokens) == 0 {
		p.advance(height)
		metrics.PollCycles.WithLabelValues(p.cfg.Chain, "idle").Inc()
		log.Debug("no active tokens", "height", height)
		return p.cfg.IdleInterval, nil
	}
	if height <= last {
		metrics.PollCycles.WithLabelValues(p.cfg.Chain, "ok").Inc()
		return p.cfg.Interval, nil
	}

	start := p.clock.Now()
	failed := p.processRange(ctx, log, last+1, height, tokens)
	if err := ctx.Err(); err != nil {
		// State stays put so the range is processed again on the next run
		return 0, err
	}
	p.advance(height)

	metrics.CycleDuration.WithLabelValues(p.cfg.Chain).Observe(p.clock.Now().Sub(start).Seconds())
	metrics.PollCycles.WithLabelValues(p.cfg.Chain, "ok").Inc()
	log.Debug("range processed", "from", last+1, "to", height, "failed", failed)
	return p.cfg.Interval, nil
}

func (p *Poller) advance(height uint64) {
	p.state.Advance(height)
	metrics.PollStateBlock.WithLabelValues(p.cfg.Chain).Set(float64(height))
}

// processRange handles blocks [from, to] on the worker pool and returns the
// number of blocks that failed and were skipped.
func (p *Poller) processRange(ctx context.Context, log *slog.Logger, from, to uint64, tokens domain.TokenSet) int {
	addrs := make([]common.Address, 0, len(tokens))
	for addr := range tokens {
		addrs = append(addrs, addr)
	}

	failures := make([]bool, to-from+1)
	g := new(errgroup.Group)
	g.SetLimit(p.cfg.Workers)
	for h := from; h <= to; h++ {
		if ctx.Err() != nil {
			break
		}
		height := h
		g.Go(func() error {
			if err := p.processBlock(ctx, height, tokens, addrs); err != nil {
				failures[height-from] = true
				metrics.BlocksFailed.WithLabelValues(p.cfg.Chain).Inc()
				if !errors.Is(err, context.Canceled) {
					log.Warn("block skipped", "block", height, "error", err)
				}
			}
			metrics.BlocksProcessed.WithLabelValues(p.cfg.Chain).Inc()
			return nil
		})
	}
	_ = g.Wait()

	n := 0
	for _, f := range failures {
		if f {
			n++
		}
	}
	return n
}

func (p *Poller) processBlock(ctx context.Context, height uint64, tokens domain.TokenSet, addrs []common.Address) error {
	block, err := p.client.GetBlock(ctx, height)
	if err != nil {
		return err
	}
	if len(block.Transactions) == 0 {
		return nil
	}
	if p.cfg.UseBloom && !evm.MayContainTransfer(block.LogsBloom, addrs) {
		return nil
	}

	receipts := p.receipts(ctx, block)
	for i, tx := range block.Transactions {
		r := receipts[i]
		if r == nil || r.Status == domain.TxStatusFailed {
			continue
		}
		transfers := p.extractor.Extract(tx.Hash, block.Number, r.Logs)
		if len(transfers) == 0 {
			continue
		}
		res := p.classifier.Classify(ctx, tx.Hash, block.Number, transfers, tokens)
		for _, buy := range res.Buys {
			p.sink.Process(ctx, buy)
		}
	}
	return nil
}

// receipts returns one receipt per transaction, nil where the fetch failed.
func (p *Poller) receipts(ctx context.Context, block *domain.Block) []*domain.Receipt {
	hashes := make([]string, len(block.Transactions))
	for i, tx := range block.Transactions {
		hashes[i] = tx.Hash
	}

	if batcher, ok := p.client.(chain.ReceiptBatcher); ok {
		receipts, errs := batcher.GetReceipts(ctx, hashes)
		for i, err := range errs {
			if err != nil {
				p.log.Warn("receipt unavailable", "block", block.Number, "tx", hashes[i], "error", err)
			}
		}
		return receipts
	}

	receipts := make([]*domain.Receipt, len(hashes))
	for i, h := range hashes {
		r, err := p.client.GetReceipt(ctx, h)
		if err != nil {
			p.log.Warn("receipt unavailable", "block", block.Number, "tx", h, "error", err)
			continue
		}
		receipts[i] = r
	}
	return receipts
}
