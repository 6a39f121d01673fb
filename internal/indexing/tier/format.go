package tier

import (
	"github.com/shopspring/decimal"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

var (
	thousand = decimal.NewFromInt(1_000)
	million  = decimal.NewFromInt(1_000_000)
	billion  = decimal.NewFromInt(1_000_000_000)

	groupPrinter = message.NewPrinter(language.English)
)

// FormatAmount renders token and reference amounts: 1.23B, 4.56M and 7.89K
// above a thousand, otherwise the value rounded to 6 places without trailing zeros.
func FormatAmount(d decimal.Decimal) string {
	switch {
	case d.GreaterThanOrEqual(billion):
		return d.Div(billion).StringFixed(2) + "B"
	case d.GreaterThanOrEqual(million):
		return d.Div(million).StringFixed(2) + "M"
	case d.GreaterThanOrEqual(thousand):
		return d.Div(thousand).StringFixed(2) + "K"
	default:
		return d.Round(6).String()
	}
}

// FormatFiat renders fiat values: grouped whole units from a thousand up,
// two decimals from one up, four decimals below.
func FormatFiat(d decimal.Decimal) string {
	switch {
	case d.GreaterThanOrEqual(thousand):
		return groupPrinter.Sprintf("%d", d.Round(0).IntPart())
	case d.GreaterThanOrEqual(decimal.NewFromInt(1)):
		return d.StringFixed(2)
	default:
		return d.StringFixed(4)
	}
}
