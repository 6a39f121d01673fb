package domain

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

var ErrInvalidTier = errors.New("invalid tier")

// Tier maps a reference-amount range [Min, Max) to an alert template.
// A nil Max means the tier is unbounded above.
type Tier struct {
	Name     string
	Min      decimal.Decimal
	Max      *decimal.Decimal
	Template string
	Media    string
}

// Contains reports whether amount falls in [Min, Max).
func (t Tier) Contains(amount decimal.Decimal) bool {
	if amount.LessThan(t.Min) {
		return false
	}
	return t.Max == nil || amount.LessThan(*t.Max)
}

// Validate rejects empty templates and inverted ranges.
func (t Tier) Validate() error {
	if t.Template == "" {
		return fmt.Errorf("%w: %q has an empty template", ErrInvalidTier, t.Name)
	}
	if t.Min.IsNegative() {
		return fmt.Errorf("%w: %q has a negative min", ErrInvalidTier, t.Name)
	}
	if t.Max != nil && !t.Max.GreaterThan(t.Min) {
		return fmt.Errorf("%w: %q max must be greater than min", ErrInvalidTier, t.Name)
	}
	return nil
}
