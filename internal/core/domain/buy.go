package domain

import (
	"fmt"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
)

// ClassifiedBuy is a purchase that survived every classification filter.
type ClassifiedBuy struct {
	Token           MonitoredToken
	Buyer           common.Address
	TokenAmount     decimal.Decimal // human units
	ReferenceAmount decimal.Decimal
	Quote           Quote
	TxHash          string
	BlockNumber     uint64
}

// Key identifies a buy for deduplication: (tx, buyer, token).
func (b ClassifiedBuy) Key() string {
	return fmt.Sprintf("%s:%s:%s",
		strings.ToLower(b.TxHash),
		strings.ToLower(b.Buyer.Hex()),
		strings.ToLower(b.Token.Address.Hex()),
	)
}

// BuyRecord is the stored form of an alerted buy.
type BuyRecord struct {
	ID              string    `json:"id"`
	Key             string    `json:"key"`
	TxHash          string    `json:"tx_hash"`
	BlockNumber     uint64    `json:"block_number"`
	Token           string    `json:"token"`
	Symbol          string    `json:"symbol"`
	Buyer           string    `json:"buyer"`
	TokenAmount     string    `json:"token_amount"`
	ReferenceAmount string    `json:"reference_amount"`
	FiatValue       string    `json:"fiat_value"`
	Strategy        string    `json:"strategy"`
	Tier            string    `json:"tier"`
	DetectedAt      time.Time `json:"detected_at"`
}
