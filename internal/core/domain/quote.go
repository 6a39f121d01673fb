package domain

import "github.com/shopspring/decimal"

// Quote is a rate in reference-token units per one monitored token.
type Quote struct {
	Rate     decimal.Decimal
	Strategy string
}
