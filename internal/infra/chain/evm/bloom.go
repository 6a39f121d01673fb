package evm

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

// MayContainTransfer reports whether a block's logs bloom admits a Transfer log
// emitted by any of tokens. Blooms have no false negatives, so false means the
// block can be skipped. A missing or malformed bloom always returns true.
func MayContainTransfer(bloom []byte, tokens []common.Address) bool {
	if len(bloom) != types.BloomByteLength {
		return true
	}
	b := types.BytesToBloom(bloom)
	if !b.Test(TransferTopic.Bytes()) {
		return false
	}
	for _, t := range tokens {
		if b.Test(t.Bytes()) {
			return true
		}
	}
	return false
}
