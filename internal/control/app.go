// Package control wires the buy engine into a running service.
package control

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/vietddude/buywatcher/internal/core/config"
	"github.com/vietddude/buywatcher/internal/core/worker"
	"github.com/vietddude/buywatcher/internal/indexing/classifier"
	"github.com/vietddude/buywatcher/internal/indexing/health"
	"github.com/vietddude/buywatcher/internal/indexing/pipeline"
	"github.com/vietddude/buywatcher/internal/indexing/poller"
	"github.com/vietddude/buywatcher/internal/indexing/tier"
	"github.com/vietddude/buywatcher/internal/infra/fiat"
	"github.com/vietddude/buywatcher/internal/infra/notify"
	"github.com/vietddude/buywatcher/internal/infra/rpc/provider"
)

// App is the buy watcher service: one poller plus its health endpoints.
type App struct {
	components *Components
	poller     *poller.Poller
	monitor    *health.Monitor
	server     *health.Server
	grpc       *health.GRPCServer
	pruner     *worker.Pruner
	log        *slog.Logger

	cancel context.CancelFunc
	done   chan struct{}
}

// NewApp builds every component from cfg.
func NewApp(ctx context.Context, cfg *config.AppConfig) (*App, error) {
	c, err := Build(ctx, cfg)
	if err != nil {
		return nil, err
	}

	dispatcher, err := newDispatcher(cfg.Telegram)
	if err != nil {
		_ = c.Close()
		return nil, err
	}

	cls := classifier.New(classifier.Config{
		Chain:         cfg.Chain.Name,
		Reference:     cfg.ReferenceAddress(),
		DustThreshold: cfg.DustThreshold(),
		MaxCodeSize:   cfg.Classifier.MaxCodeSize,
		DenyList:      cfg.DenyList(),
	}, c.Chain, c.Resolver)

	pipe := pipeline.New(cfg.Chain.Name, c.Store, tier.NewResolver(c.Registry), newFiatSource(cfg.Fiat), dispatcher)

	p := poller.New(poller.Config{
		Chain:        cfg.Chain.Name,
		Interval:     cfg.Poller.Interval,
		IdleInterval: cfg.Poller.IdleInterval,
		Backoff:      cfg.Poller.Backoff,
		Workers:      cfg.Chain.Workers,
		UseBloom:     !cfg.Poller.DisableBloom,
	}, c.Chain, c.Registry, cls, pipe)

	rpcProviders := c.Router.Providers()
	providers := make([]provider.Provider, 0, len(rpcProviders))
	for _, rp := range rpcProviders {
		providers = append(providers, rp)
	}
	monitor := health.NewMonitor(cfg.Chain.Name, c.Chain, p, providers)
	if c.DB != nil {
		monitor.AddChecker("postgres", c.DB.Health)
	}
	if c.Redis != nil {
		monitor.AddChecker("redis", c.Redis.Health)
	}

	app := &App{
		components: c,
		poller:     p,
		monitor:    monitor,
		server:     health.NewServer(monitor, cfg.Server.Port),
		log:        slog.Default().With("component", "app", "chain", cfg.Chain.Name),
	}
	if cfg.Server.GRPCPort > 0 {
		app.grpc = health.NewGRPCServer(monitor, cfg.Server.GRPCPort)
	}
	if ledger, ok := c.Store.(worker.Ledger); ok && cfg.Database.Retention > 0 {
		app.pruner = worker.NewPruner(ledger, cfg.Database.Retention)
	}

	app.log.Info("buy watcher initialized",
		"dispatcher", dispatcher.Name(),
		"strategies", cfg.Quote.Strategies,
		"workers", cfg.Chain.Workers,
	)
	return app, nil
}

func newDispatcher(cfg config.TelegramConfig) (pipeline.Dispatcher, error) {
	if cfg.BotToken == "" {
		slog.Warn("telegram.bot_token empty, alerts go to the log")
		return notify.NewLog(nil), nil
	}
	tg, err := notify.NewTelegram(notify.TelegramConfig{
		BotToken: cfg.BotToken,
		ChatID:   cfg.ChatID,
		ThreadID: cfg.ThreadID,
		MediaDir: cfg.MediaDir,
		BaseURL:  cfg.BaseURL,
		MinGap:   cfg.MinGap,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to init telegram: %w", err)
	}
	return tg, nil
}

func newFiatSource(cfg config.FiatConfig) pipeline.FiatSource {
	switch cfg.Provider {
	case "coingecko":
		return fiat.NewCoinGecko(fiat.Config{
			URL:        cfg.URL,
			CoinID:     cfg.CoinID,
			VsCurrency: cfg.VsCurrency,
			TTL:        cfg.TTL,
		})
	case "static":
		return fiat.Static(cfg.StaticPrice())
	default:
		return nil
	}
}

// Start launches the health servers and the poller. It returns immediately.
func (a *App) Start(ctx context.Context) error {
	runCtx, cancel := context.WithCancel(ctx)
	a.cancel = cancel
	a.done = make(chan struct{})

	go func() {
		if err := a.server.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.log.Error("Health server failed", "error", err)
		}
	}()
	if a.grpc != nil {
		go func() {
			if err := a.grpc.Start(runCtx); err != nil {
				a.log.Error("gRPC health server failed", "error", err)
			}
		}()
	}
	if a.components.DB != nil {
		a.components.DB.StartMetricsCollector(runCtx)
	}
	if a.pruner != nil {
		go a.pruner.Start(runCtx)
	}

	go func() {
		defer close(a.done)
		_ = a.poller.Run(runCtx)
	}()
	return nil
}

// Stop cancels the poller and waits for in-flight blocks until ctx expires,
// then shuts the servers down and closes connections.
func (a *App) Stop(ctx context.Context) error {
	if a.cancel != nil {
		a.cancel()
		select {
		case <-a.done:
		case <-ctx.Done():
			a.log.Warn("poller did not stop before shutdown deadline")
		}
	}

	var errs []error
	if err := a.server.Stop(ctx); err != nil {
		errs = append(errs, fmt.Errorf("health server: %w", err))
	}
	if a.grpc != nil {
		a.grpc.Stop()
	}
	if err := a.components.Close(); err != nil {
		errs = append(errs, err)
	}
	if last, ok := a.poller.State(); ok {
		a.log.Info("stopped", "last_block", last)
	}
	return errors.Join(errs...)
}
