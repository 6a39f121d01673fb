package config

import (
	"time"

	redisclient "github.com/vietddude/buywatcher/internal/infra/redis"
	"github.com/vietddude/buywatcher/internal/infra/storage/postgres"
)

// Reference token defaults (MST on Telos EVM).
const (
	DefaultReferenceAddress  = "0x568524DA340579887db50Ecf602Cd1BA8451b243"
	DefaultReferenceSymbol   = "MST"
	DefaultReferenceDecimals = 18
)

// DefaultDenyList holds router and aggregator addresses that never count as buyers.
var DefaultDenyList = []string{
	"0x7a250d5630B4cF539739dF2C5dAcb4c659F2488D", // Uniswap V2 router
	"0xE54Ca86531e17Ef3616d22Ca28b0D458b6C89106", // PancakeSwap router
	"0x2F9bC2C529FaFdc9D8be9F9eF4c82fB6e9c6E1b7",
	"0x8888888888888888888888888888888888888888",
}

// AppConfig represents the top-level configuration.
type AppConfig struct {
	Server     ServerConfig       `yaml:"server"`
	Logging    LoggingConfig      `yaml:"logging"`
	Chain      ChainConfig        `yaml:"chain"`
	Poller     PollerConfig       `yaml:"poller"`
	Reference  ReferenceConfig    `yaml:"reference"`
	Classifier ClassifierConfig   `yaml:"classifier"`
	Quote      QuoteConfig        `yaml:"quote"`
	Fiat       FiatConfig         `yaml:"fiat"`
	Registry   RegistryConfig     `yaml:"registry"`
	Telegram   TelegramConfig     `yaml:"telegram"`
	Redis      redisclient.Config `yaml:"redis"`
	Database   postgres.Config    `yaml:"database"`
}

// ServerConfig holds HTTP and gRPC health server settings.
type ServerConfig struct {
	Port     int `yaml:"port"`
	GRPCPort int `yaml:"grpc_port"` // 0 = disabled
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level string `yaml:"level"` // debug, info, warn, error
}

// ChainConfig holds settings for the monitored chain.
type ChainConfig struct {
	Name         string           `yaml:"name"`
	Providers    []ProviderConfig `yaml:"providers"`
	CallTimeout  time.Duration    `yaml:"call_timeout"`
	Workers      int              `yaml:"workers"`
	ReceiptBatch int              `yaml:"receipt_batch"`
}

// ProviderConfig holds settings for an RPC provider.
type ProviderConfig struct {
	Name string `yaml:"name"`
	URL  string `yaml:"url"`
}

// PollerConfig controls cycle pacing.
type PollerConfig struct {
	Interval     time.Duration `yaml:"interval"`
	IdleInterval time.Duration `yaml:"idle_interval"`
	Backoff      time.Duration `yaml:"backoff"`

	// DisableBloom fetches receipts for every block instead of prefiltering on logsBloom
	DisableBloom bool `yaml:"disable_bloom"`
}

// ReferenceConfig describes the token all purchase values are expressed in.
type ReferenceConfig struct {
	Address  string `yaml:"address"`
	Symbol   string `yaml:"symbol"`
	Decimals int    `yaml:"decimals"`
}

// ClassifierConfig holds buy heuristics. Decimal values are strings in YAML.
type ClassifierConfig struct {
	DustThreshold string   `yaml:"dust_threshold"`
	MaxCodeSize   int      `yaml:"max_code_size"`
	DenyList      []string `yaml:"deny_list"`
}

// QuoteConfig controls the strategy chain of the quote resolver.
type QuoteConfig struct {
	Strategies       []string `yaml:"strategies"`
	RecentWindow     uint64   `yaml:"recent_window"`
	RecentCandidates int      `yaml:"recent_candidates"`
	AltPoolEnabled   bool     `yaml:"alt_pool_enabled"`
}

// FiatConfig configures the reference-to-fiat price source.
type FiatConfig struct {
	Provider   string        `yaml:"provider"` // coingecko, static, none
	URL        string        `yaml:"url"`
	CoinID     string        `yaml:"coin_id"`
	VsCurrency string        `yaml:"vs_currency"`
	TTL        time.Duration `yaml:"ttl"`

	// Price is the fixed fiat price of one reference unit for the static provider
	Price string `yaml:"price"`
}

// RegistryConfig points at the token/tier file. Ignored when a database is configured.
type RegistryConfig struct {
	Path string `yaml:"path"`
}

// TelegramConfig holds Bot API delivery settings. An empty bot token selects log-only dispatch.
type TelegramConfig struct {
	BotToken string        `yaml:"bot_token"`
	ChatID   string        `yaml:"chat_id"`
	ThreadID int64         `yaml:"thread_id"`
	MediaDir string        `yaml:"media_dir"`
	BaseURL  string        `yaml:"base_url"`
	MinGap   time.Duration `yaml:"min_gap"`
}
