package domain

import "github.com/ethereum/go-ethereum/common"

// Block represents a blockchain block fetched with full transaction bodies.
type Block struct {
	Number       uint64
	Hash         string
	ParentHash   string
	Timestamp    uint64
	LogsBloom    []byte // empty when the node omits it
	Transactions []Transaction
}

// Log is a raw contract log as returned by the node.
// Topics and Data keep the node's hex encoding; decoding is left to the extractor.
type Log struct {
	Address     common.Address
	Topics      []string
	Data        string
	BlockNumber uint64
	TxHash      string
	LogIndex    uint64
}

// LogFilter selects logs for eth_getLogs.
type LogFilter struct {
	Address   common.Address
	Topics    []string // positional, "" matches any value
	FromBlock uint64
	ToBlock   uint64
}
