package chain

import (
	"context"
	"errors"

	"github.com/ethereum/go-ethereum/common"

	"github.com/vietddude/buywatcher/internal/core/domain"
)

// ErrBlockNotFound is returned for heights the node has not produced or indexed yet.
var ErrBlockNotFound = errors.New("block not found")

// Client defines the chain reads the buy engine needs.
// Every call is a request/response round trip that may fail with a transport error.
type Client interface {
	// CurrentHeight returns the latest block number on the chain
	CurrentHeight(ctx context.Context) (uint64, error)

	// GetBlock fetches a block with full transaction bodies.
	// A block the node does not have yet returns ErrBlockNotFound.
	GetBlock(ctx context.Context, height uint64) (*domain.Block, error)

	// GetReceipt fetches the receipt of one transaction
	GetReceipt(ctx context.Context, txHash string) (*domain.Receipt, error)

	// GetLogs runs a log query
	GetLogs(ctx context.Context, filter domain.LogFilter) ([]domain.Log, error)

	// Call executes a read-only contract call with ABI-encoded input
	Call(ctx context.Context, contract common.Address, data []byte) ([]byte, error)

	// GetCode returns the deployed bytecode at address, empty for wallets
	GetCode(ctx context.Context, address common.Address) ([]byte, error)
}

// ReceiptBatcher is an optional interface for clients that can fetch many receipts in one round trip.
// Results align with hashes; a per-hash failure is reported in errs without failing the rest.
type ReceiptBatcher interface {
	GetReceipts(ctx context.Context, hashes []string) (receipts []*domain.Receipt, errs []error)
}
