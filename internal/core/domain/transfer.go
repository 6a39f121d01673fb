package domain

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// Transfer is a decoded ERC20 Transfer log.
type Transfer struct {
	Token       common.Address
	From        common.Address
	To          common.Address
	Amount      *big.Int
	TxHash      string
	BlockNumber uint64
	LogIndex    uint64
}
