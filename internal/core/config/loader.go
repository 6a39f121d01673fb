package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v2"
)

// ErrInvalidConfig is returned when a loaded configuration fails validation.
var ErrInvalidConfig = errors.New("invalid config")

// KnownStrategies lists the quote strategy names accepted in quote.strategies.
var KnownStrategies = []string{"reserve", "alt_pool", "recent_trades", "static"}

// Load reads configuration from a YAML file.
func Load(path string) (*AppConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	return Parse(data)
}

// Parse decodes YAML content, expanding ${ENV} references, then applies defaults and validates.
func Parse(data []byte) (*AppConfig, error) {
	var cfg AppConfig
	// Expand environment variables in the YAML content
	expandedData := os.ExpandEnv(string(data))
	if err := yaml.Unmarshal([]byte(expandedData), &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *AppConfig) applyDefaults() {
	if c.Server.Port == 0 {
		c.Server.Port = 8080
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}

	if c.Chain.Name == "" {
		c.Chain.Name = "telos"
	}
	if c.Chain.CallTimeout == 0 {
		c.Chain.CallTimeout = 10 * time.Second
	}
	if c.Chain.Workers == 0 {
		c.Chain.Workers = 4
	}
	if c.Chain.ReceiptBatch == 0 {
		c.Chain.ReceiptBatch = 10
	}
	for i := range c.Chain.Providers {
		if c.Chain.Providers[i].Name == "" {
			c.Chain.Providers[i].Name = fmt.Sprintf("%s-%d", c.Chain.Name, i)
		}
	}

	if c.Poller.Interval == 0 {
		c.Poller.Interval = 5 * time.Second
	}
	if c.Poller.IdleInterval == 0 {
		c.Poller.IdleInterval = 30 * time.Second
	}
	if c.Poller.Backoff == 0 {
		c.Poller.Backoff = 10 * time.Second
	}

	if c.Reference.Address == "" {
		c.Reference.Address = DefaultReferenceAddress
	}
	if c.Reference.Symbol == "" {
		c.Reference.Symbol = DefaultReferenceSymbol
	}
	if c.Reference.Decimals == 0 {
		c.Reference.Decimals = DefaultReferenceDecimals
	}

	if c.Classifier.DustThreshold == "" {
		c.Classifier.DustThreshold = "0.01"
	}
	if c.Classifier.MaxCodeSize == 0 {
		c.Classifier.MaxCodeSize = 10000
	}
	if c.Classifier.DenyList == nil {
		c.Classifier.DenyList = append([]string(nil), DefaultDenyList...)
	}

	if len(c.Quote.Strategies) == 0 {
		c.Quote.Strategies = append([]string(nil), KnownStrategies...)
	}
	if c.Quote.RecentWindow == 0 {
		c.Quote.RecentWindow = 500
	}
	if c.Quote.RecentCandidates == 0 {
		c.Quote.RecentCandidates = 5
	}

	if c.Fiat.Provider == "" {
		c.Fiat.Provider = "coingecko"
	}
	if c.Fiat.URL == "" {
		c.Fiat.URL = "https://api.coingecko.com/api/v3/simple/price"
	}
	if c.Fiat.CoinID == "" {
		c.Fiat.CoinID = "meridian-mst"
	}
	if c.Fiat.VsCurrency == "" {
		c.Fiat.VsCurrency = "usd"
	}
	if c.Fiat.TTL == 0 {
		c.Fiat.TTL = 5 * time.Minute
	}

	if c.Registry.Path == "" {
		c.Registry.Path = "tokens.yaml"
	}

	if c.Telegram.MediaDir == "" {
		c.Telegram.MediaDir = "videos"
	}
	if c.Telegram.BaseURL == "" {
		c.Telegram.BaseURL = "https://api.telegram.org"
	}
	if c.Telegram.MinGap == 0 {
		c.Telegram.MinGap = 1100 * time.Millisecond
	}

	if c.Redis.DedupTTL == 0 {
		c.Redis.DedupTTL = 24 * time.Hour
	}
}

// Validate checks values that cannot be defaulted.
func (c *AppConfig) Validate() error {
	if !common.IsHexAddress(c.Reference.Address) {
		return fmt.Errorf("%w: reference.address %q is not a hex address", ErrInvalidConfig, c.Reference.Address)
	}
	if c.Reference.Decimals < 0 || c.Reference.Decimals > 255 {
		return fmt.Errorf("%w: reference.decimals %d out of range", ErrInvalidConfig, c.Reference.Decimals)
	}
	dust, err := decimal.NewFromString(c.Classifier.DustThreshold)
	if err != nil {
		return fmt.Errorf("%w: classifier.dust_threshold: %v", ErrInvalidConfig, err)
	}
	if dust.IsNegative() {
		return fmt.Errorf("%w: classifier.dust_threshold must be >= 0", ErrInvalidConfig)
	}
	for _, addr := range c.Classifier.DenyList {
		if !common.IsHexAddress(addr) {
			return fmt.Errorf("%w: classifier.deny_list entry %q is not a hex address", ErrInvalidConfig, addr)
		}
	}
	if c.Chain.Workers < 1 {
		return fmt.Errorf("%w: chain.workers must be >= 1", ErrInvalidConfig)
	}
	for _, name := range c.Quote.Strategies {
		if !isKnownStrategy(name) {
			return fmt.Errorf("%w: unknown quote strategy %q", ErrInvalidConfig, name)
		}
	}
	switch c.Fiat.Provider {
	case "coingecko", "none":
	case "static":
		price, err := decimal.NewFromString(c.Fiat.Price)
		if err != nil {
			return fmt.Errorf("%w: fiat.price: %v", ErrInvalidConfig, err)
		}
		if price.IsNegative() {
			return fmt.Errorf("%w: fiat.price must be >= 0", ErrInvalidConfig)
		}
	default:
		return fmt.Errorf("%w: unknown fiat provider %q", ErrInvalidConfig, c.Fiat.Provider)
	}
	return nil
}

// StaticPrice returns the parsed static fiat price, zero when unset.
func (f FiatConfig) StaticPrice() decimal.Decimal {
	price, err := decimal.NewFromString(f.Price)
	if err != nil {
		return decimal.Zero
	}
	return price
}

// DustThreshold returns the parsed classifier dust threshold.
func (c *AppConfig) DustThreshold() decimal.Decimal {
	return decimal.RequireFromString(c.Classifier.DustThreshold)
}

// ReferenceAddress returns the parsed reference token address.
func (c *AppConfig) ReferenceAddress() common.Address {
	return common.HexToAddress(c.Reference.Address)
}

// DenyList returns the parsed deny list.
func (c *AppConfig) DenyList() []common.Address {
	out := make([]common.Address, 0, len(c.Classifier.DenyList))
	for _, addr := range c.Classifier.DenyList {
		out = append(out, common.HexToAddress(addr))
	}
	return out
}

func isKnownStrategy(name string) bool {
	for _, known := range KnownStrategies {
		if known == name {
			return true
		}
	}
	return false
}
