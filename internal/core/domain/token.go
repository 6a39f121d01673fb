package domain

import (
	"errors"
	"fmt"
	"sort"

	"github.com/ethereum/go-ethereum/common"
)

var (
	ErrInvalidToken = errors.New("invalid token")
)

// MonitoredToken is a token whose pool is watched for buys.
type MonitoredToken struct {
	Address  common.Address
	Symbol   string
	Decimals uint8
	Pool     common.Address
	Active   bool
}

// Validate checks the fields that consumers rely on.
func (t MonitoredToken) Validate() error {
	if t.Address == (common.Address{}) {
		return fmt.Errorf("%w: zero address", ErrInvalidToken)
	}
	if t.Pool == (common.Address{}) {
		return fmt.Errorf("%w: %s has no pool", ErrInvalidToken, t.Address.Hex())
	}
	if t.Pool == t.Address {
		return fmt.Errorf("%w: %s pool equals token", ErrInvalidToken, t.Address.Hex())
	}
	if t.Symbol == "" {
		return fmt.Errorf("%w: %s has no symbol", ErrInvalidToken, t.Address.Hex())
	}
	return nil
}

// TokenSet is an immutable snapshot of active tokens keyed by address.
type TokenSet map[common.Address]MonitoredToken

// NewTokenSet builds a snapshot with only active tokens.
func NewTokenSet(tokens []MonitoredToken) (TokenSet, error) {
	set := make(TokenSet, len(tokens))
	seen := make(map[common.Address]struct{}, len(tokens))
	for _, t := range tokens {
		if err := t.Validate(); err != nil {
			return nil, err
		}
		if _, dup := seen[t.Address]; dup {
			return nil, fmt.Errorf("%w: duplicate %s", ErrInvalidToken, t.Address.Hex())
		}
		seen[t.Address] = struct{}{}
		if t.Active {
			set[t.Address] = t
		}
	}
	return set, nil
}

// Sorted returns tokens ordered by address so iteration is deterministic.
func (s TokenSet) Sorted() []MonitoredToken {
	out := make([]MonitoredToken, 0, len(s))
	for _, t := range s {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].Address.Cmp(out[j].Address) < 0
	})
	return out
}
