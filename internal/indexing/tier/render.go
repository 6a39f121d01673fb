package tier

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"

	"github.com/shopspring/decimal"

	"github.com/vietddude/buywatcher/internal/core/domain"
)

// ErrUnknownPlaceholder is returned when a template names a field the renderer does not know.
// The rendered message is still returned with the placeholder left as written.
var ErrUnknownPlaceholder = errors.New("unknown template placeholder")

var placeholder = regexp.MustCompile(`\{([A-Za-z0-9_]+)\}`)

// Values returns the placeholder substitutions for a buy.
func Values(buy domain.ClassifiedBuy, fiatValue decimal.Decimal) map[string]string {
	return map[string]string{
		"amount":        FormatAmount(buy.TokenAmount),
		"symbol":        buy.Token.Symbol,
		"mst_value":     FormatAmount(buy.ReferenceAmount),
		"usd_value":     FormatFiat(fiatValue),
		"buyer_address": buy.Buyer.Hex(),
		"block_number":  strconv.FormatUint(buy.BlockNumber, 10),
		"tx_hash":       buy.TxHash,
	}
}

// Render substitutes {name} placeholders by exact name.
func Render(template string, values map[string]string) (string, error) {
	var unknown []string
	out := placeholder.ReplaceAllStringFunc(template, func(m string) string {
		name := m[1 : len(m)-1]
		if v, ok := values[name]; ok {
			return v
		}
		unknown = append(unknown, name)
		return m
	})
	if len(unknown) > 0 {
		return out, fmt.Errorf("%w: %v", ErrUnknownPlaceholder, unknown)
	}
	return out, nil
}
