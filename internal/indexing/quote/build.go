package quote

import (
	"fmt"

	"github.com/vietddude/buywatcher/internal/core/config"
	"github.com/vietddude/buywatcher/internal/infra/chain"
)

// FromConfig builds a resolver whose strategy order follows cfg.Strategies.
func FromConfig(cfg config.QuoteConfig, client chain.Client, ref Reference, rates RateSource) (*Resolver, error) {
	strategies := make([]Strategy, 0, len(cfg.Strategies))
	for _, name := range cfg.Strategies {
		switch name {
		case StrategyReserve:
			strategies = append(strategies, NewReserveStrategy(client, ref))
		case StrategyAltPool:
			strategies = append(strategies, NewAltPoolStrategy(client, ref, cfg.AltPoolEnabled))
		case StrategyRecentTrades:
			strategies = append(strategies, NewRecentTradesStrategy(client, ref, cfg.RecentWindow, cfg.RecentCandidates))
		case StrategyStatic:
			strategies = append(strategies, NewStaticStrategy(rates))
		default:
			return nil, fmt.Errorf("unknown quote strategy %q", name)
		}
	}
	return NewResolver(strategies...), nil
}
