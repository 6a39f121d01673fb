package control

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/vietddude/buywatcher/internal/core/config"
	"github.com/vietddude/buywatcher/internal/indexing/quote"
	"github.com/vietddude/buywatcher/internal/infra/chain/evm"
	redisclient "github.com/vietddude/buywatcher/internal/infra/redis"
	"github.com/vietddude/buywatcher/internal/infra/rpc"
	"github.com/vietddude/buywatcher/internal/infra/storage"
	"github.com/vietddude/buywatcher/internal/infra/storage/memory"
	"github.com/vietddude/buywatcher/internal/infra/storage/postgres"
	"github.com/vietddude/buywatcher/internal/registry"
)

// ErrNoProviders is returned when chain.providers is empty.
var ErrNoProviders = errors.New("no rpc providers configured")

// Components are the dependencies shared by the service and the CLI commands.
type Components struct {
	Config   *config.AppConfig
	Router   *rpc.Router
	Chain    *evm.EVMAdapter
	Registry registry.Registry
	Store    storage.BuyStore
	Resolver *quote.Resolver

	// DB and Redis are nil when not configured
	DB    *postgres.DB
	Redis *redisclient.Client
}

// Build connects to the configured backends.
// With database.url set, tokens and tiers come from Postgres and the file registry is ignored.
func Build(ctx context.Context, cfg *config.AppConfig) (*Components, error) {
	if len(cfg.Chain.Providers) == 0 {
		return nil, ErrNoProviders
	}
	c := &Components{Config: cfg}

	endpoints := make([]rpc.Endpoint, 0, len(cfg.Chain.Providers))
	for _, p := range cfg.Chain.Providers {
		endpoints = append(endpoints, rpc.Endpoint{Name: p.Name, URL: p.URL})
	}
	c.Router = rpc.NewClient(cfg.Chain.Name, endpoints, cfg.Chain.CallTimeout)
	c.Chain = evm.NewEVMAdapter(cfg.Chain.Name, c.Router, evm.Options{
		CallTimeout:  cfg.Chain.CallTimeout,
		ReceiptBatch: cfg.Chain.ReceiptBatch,
	})

	reg, db, err := OpenRegistry(ctx, cfg)
	if err != nil {
		_ = c.Close()
		return nil, err
	}
	c.Registry, c.DB = reg, db

	c.Store = c.openStore(cfg)

	resolver, err := quote.FromConfig(cfg.Quote, c.Chain, quote.Reference{
		Address:  cfg.ReferenceAddress(),
		Decimals: int32(cfg.Reference.Decimals),
	}, c.Registry)
	if err != nil {
		_ = c.Close()
		return nil, err
	}
	c.Resolver = resolver
	return c, nil
}

// OpenRegistry returns the Postgres registry when database.url is set, else the file registry.
// The returned DB is nil for the file registry; the caller owns closing it.
func OpenRegistry(ctx context.Context, cfg *config.AppConfig) (registry.Registry, *postgres.DB, error) {
	if cfg.Database.URL == "" {
		reg, err := registry.NewFileRegistry(cfg.Registry.Path)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to load registry: %w", err)
		}
		slog.Info("Using file registry", "path", cfg.Registry.Path)
		return reg, nil, nil
	}

	db, err := OpenDB(ctx, cfg.Database)
	if err != nil {
		return nil, nil, err
	}
	slog.Info("Using PostgreSQL registry")
	return registry.NewDBRegistry(postgres.NewTokenRepo(db)), db, nil
}

// OpenDB connects and applies migrations.
func OpenDB(ctx context.Context, cfg postgres.Config) (*postgres.DB, error) {
	db, err := postgres.NewDB(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to init db: %w", err)
	}
	if err := db.Migrate(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to migrate db: %w", err)
	}
	return db, nil
}

// openStore prefers Redis, then the Postgres ledger, then process memory.
// An unreachable Redis is not fatal.
func (c *Components) openStore(cfg *config.AppConfig) storage.BuyStore {
	if cfg.Redis.URL != "" {
		client, err := redisclient.NewClient(cfg.Redis)
		if err == nil {
			c.Redis = client
			slog.Info("Using Redis dedup store")
			return redisclient.NewBuyStore(client, cfg.Chain.Name, cfg.Redis.DedupTTL)
		}
		slog.Warn("Failed to connect to Redis, falling back", "error", err)
	}
	if c.DB != nil {
		slog.Info("Using PostgreSQL dedup store")
		return postgres.NewBuyRepo(c.DB)
	}
	slog.Info("Using memory dedup store")
	return memory.NewBuyStore(cfg.Redis.DedupTTL, 100)
}

// Close releases every connection Build opened.
func (c *Components) Close() error {
	var errs []error
	if c.Redis != nil {
		errs = append(errs, c.Redis.Close())
	}
	if c.DB != nil {
		errs = append(errs, c.DB.Close())
	}
	if c.Router != nil {
		for _, p := range c.Router.Providers() {
			errs = append(errs, p.Close())
		}
	}
	return errors.Join(errs...)
}
