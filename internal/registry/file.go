package registry

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v2"

	"github.com/vietddude/buywatcher/internal/core/domain"
	"github.com/vietddude/buywatcher/internal/indexing/metrics"
)

type fileToken struct {
	Address  string `yaml:"address"`
	Symbol   string `yaml:"symbol"`
	Decimals int    `yaml:"decimals"`
	Pool     string `yaml:"pool"`
	Active   *bool  `yaml:"active"` // defaults to true
}

type fileTier struct {
	Name     string `yaml:"name"`
	Min      string `yaml:"min"`
	Max      string `yaml:"max"` // empty = unbounded
	Template string `yaml:"template"`
	Media    string `yaml:"media"`
}

type fileContents struct {
	FallbackRate string      `yaml:"fallback_rate"`
	Tokens       []fileToken `yaml:"tokens"`
	Tiers        []fileTier  `yaml:"tiers"`
}

// ParseFile decodes and validates registry YAML.
func ParseFile(data []byte) (*Snapshot, error) {
	var raw fileContents
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidRegistry, err)
	}

	tokens := make([]domain.MonitoredToken, 0, len(raw.Tokens))
	for i, t := range raw.Tokens {
		if !common.IsHexAddress(t.Address) {
			return nil, fmt.Errorf("%w: token %d: bad address %q", ErrInvalidRegistry, i, t.Address)
		}
		if !common.IsHexAddress(t.Pool) {
			return nil, fmt.Errorf("%w: token %s: bad pool %q", ErrInvalidRegistry, t.Address, t.Pool)
		}
		if t.Decimals < 0 || t.Decimals > 255 {
			return nil, fmt.Errorf("%w: token %s: decimals %d out of range", ErrInvalidRegistry, t.Address, t.Decimals)
		}
		active := true
		if t.Active != nil {
			active = *t.Active
		}
		tokens = append(tokens, domain.MonitoredToken{
			Address:  common.HexToAddress(t.Address),
			Symbol:   t.Symbol,
			Decimals: uint8(t.Decimals),
			Pool:     common.HexToAddress(t.Pool),
			Active:   active,
		})
	}

	tiers := make([]domain.Tier, 0, len(raw.Tiers))
	for _, t := range raw.Tiers {
		lo, err := decimal.NewFromString(orZero(t.Min))
		if err != nil {
			return nil, fmt.Errorf("%w: tier %q min: %v", ErrInvalidRegistry, t.Name, err)
		}
		tier := domain.Tier{Name: t.Name, Min: lo, Template: t.Template, Media: t.Media}
		if t.Max != "" {
			hi, err := decimal.NewFromString(t.Max)
			if err != nil {
				return nil, fmt.Errorf("%w: tier %q max: %v", ErrInvalidRegistry, t.Name, err)
			}
			tier.Max = &hi
		}
		tiers = append(tiers, tier)
	}

	rate, err := decimal.NewFromString(orZero(raw.FallbackRate))
	if err != nil {
		return nil, fmt.Errorf("%w: fallback_rate: %v", ErrInvalidRegistry, err)
	}
	return NewSnapshot(tokens, tiers, rate)
}

func orZero(s string) string {
	if s == "" {
		return "0"
	}
	return s
}

// FileRegistry serves a YAML file and re-reads it when its modification time
// changes. A bad edit keeps the last good snapshot.
type FileRegistry struct {
	path string
	log  *slog.Logger

	mu      sync.Mutex
	current *Snapshot
	modTime time.Time
}

// NewFileRegistry loads path. The first load must succeed.
func NewFileRegistry(path string) (*FileRegistry, error) {
	r := &FileRegistry{
		path: path,
		log:  slog.Default().With("component", "registry", "path", path),
	}
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("stat registry: %w", err)
	}
	snap, err := r.load()
	if err != nil {
		return nil, err
	}
	r.current = snap
	r.modTime = info.ModTime()
	metrics.RegistryReloads.WithLabelValues("file", "ok").Inc()
	return r, nil
}

func (r *FileRegistry) load() (*Snapshot, error) {
	data, err := os.ReadFile(r.path)
	if err != nil {
		return nil, fmt.Errorf("read registry: %w", err)
	}
	return ParseFile(data)
}

// Snapshot re-reads the file if it changed and pins the result.
// It never fails after construction.
func (r *FileRegistry) Snapshot(ctx context.Context) (*Snapshot, error) {
	return r.reload(), nil
}

func (r *FileRegistry) reload() *Snapshot {
	r.mu.Lock()
	defer r.mu.Unlock()

	info, err := os.Stat(r.path)
	if err != nil {
		r.log.Error("registry file unavailable, keeping last snapshot", "error", err)
		return r.current
	}
	if info.ModTime().Equal(r.modTime) {
		return r.current
	}

	snap, err := r.load()
	r.modTime = info.ModTime()
	if err != nil {
		metrics.RegistryReloads.WithLabelValues("file", "error").Inc()
		r.log.Error("registry reload failed, keeping last snapshot", "error", err)
		return r.current
	}
	metrics.RegistryReloads.WithLabelValues("file", "ok").Inc()
	r.log.Info("registry reloaded", "tokens", len(snap.Tokens), "active", len(snap.Active), "tiers", len(snap.Tiers))
	r.current = snap
	return snap
}

func (r *FileRegistry) pinned() *Snapshot {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.current
}

func (r *FileRegistry) ActiveTokens(ctx context.Context) (domain.TokenSet, error) {
	return r.pinned().Active, nil
}

func (r *FileRegistry) FallbackRate(ctx context.Context) (decimal.Decimal, error) {
	return r.pinned().FallbackRate, nil
}

func (r *FileRegistry) Tiers(ctx context.Context) ([]domain.Tier, error) {
	return r.pinned().Tiers, nil
}
