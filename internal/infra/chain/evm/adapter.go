package evm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"golang.org/x/sync/errgroup"

	"github.com/vietddude/buywatcher/internal/core/domain"
	"github.com/vietddude/buywatcher/internal/infra/chain"
	"github.com/vietddude/buywatcher/internal/infra/rpc"
)

// ErrReceiptNotFound is returned when the node has no receipt for a hash.
var ErrReceiptNotFound = errors.New("receipt not found")

// Options tunes the adapter.
type Options struct {
	// CallTimeout bounds every single RPC round trip
	CallTimeout time.Duration
	// ReceiptBatch is the number of receipts per batch request
	ReceiptBatch int
	// BatchConcurrency caps concurrent batch requests
	BatchConcurrency int
}

type EVMAdapter struct {
	chain  string
	client rpc.RPCClient
	opts   Options
	log    *slog.Logger
}

func NewEVMAdapter(chainName string, client rpc.RPCClient, opts Options) *EVMAdapter {
	if opts.CallTimeout <= 0 {
		opts.CallTimeout = 10 * time.Second
	}
	if opts.ReceiptBatch <= 0 {
		opts.ReceiptBatch = 10
	}
	if opts.BatchConcurrency <= 0 {
		opts.BatchConcurrency = 3
	}
	return &EVMAdapter{
		chain:  chainName,
		client: client,
		opts:   opts,
		log:    slog.Default().With("component", "evm", "chain", chainName),
	}
}

var (
	_ chain.Client         = (*EVMAdapter)(nil)
	_ chain.ReceiptBatcher = (*EVMAdapter)(nil)
)

type rpcBlock struct {
	Number       hexutil.Uint64 `json:"number"`
	Hash         string         `json:"hash"`
	ParentHash   string         `json:"parentHash"`
	Timestamp    hexutil.Uint64 `json:"timestamp"`
	LogsBloom    hexutil.Bytes  `json:"logsBloom"`
	Transactions []rpcTx        `json:"transactions"`
}

type rpcTx struct {
	Hash             string         `json:"hash"`
	TransactionIndex hexutil.Uint64 `json:"transactionIndex"`
	From             string         `json:"from"`
	To               *string        `json:"to"`
}

type rpcLog struct {
	Address         common.Address `json:"address"`
	Topics          []string       `json:"topics"`
	Data            string         `json:"data"`
	BlockNumber     hexutil.Uint64 `json:"blockNumber"`
	TransactionHash string         `json:"transactionHash"`
	LogIndex        hexutil.Uint64 `json:"logIndex"`
}

type rpcReceipt struct {
	TransactionHash string          `json:"transactionHash"`
	BlockNumber     hexutil.Uint64  `json:"blockNumber"`
	Status          *hexutil.Uint64 `json:"status"` // absent before Byzantium
	Logs            []rpcLog        `json:"logs"`
}

func (a *EVMAdapter) call(ctx context.Context, method string, params []any, out any) error {
	ctx, cancel := context.WithTimeout(ctx, a.opts.CallTimeout)
	defer cancel()

	result, err := a.client.Call(ctx, method, params)
	if err != nil {
		return fmt.Errorf("%s failed: %w", method, err)
	}
	if isNull(result) {
		return errNullResult
	}
	if err := json.Unmarshal(result, out); err != nil {
		return fmt.Errorf("%s: decode result: %w", method, err)
	}
	return nil
}

var errNullResult = errors.New("null result")

func isNull(raw json.RawMessage) bool {
	return len(raw) == 0 || string(raw) == "null"
}

func (a *EVMAdapter) CurrentHeight(ctx context.Context) (uint64, error) {
	var height hexutil.Uint64
	if err := a.call(ctx, "eth_blockNumber", nil, &height); err != nil {
		return 0, err
	}
	return uint64(height), nil
}

func (a *EVMAdapter) GetBlock(ctx context.Context, height uint64) (*domain.Block, error) {
	var raw rpcBlock
	err := a.call(ctx, "eth_getBlockByNumber", []any{hexutil.EncodeUint64(height), true}, &raw)
	if errors.Is(err, errNullResult) {
		return nil, fmt.Errorf("%w: %d", chain.ErrBlockNotFound, height)
	}
	if err != nil {
		return nil, err
	}

	block := &domain.Block{
		Number:       uint64(raw.Number),
		Hash:         raw.Hash,
		ParentHash:   raw.ParentHash,
		Timestamp:    uint64(raw.Timestamp),
		LogsBloom:    raw.LogsBloom,
		Transactions: make([]domain.Transaction, 0, len(raw.Transactions)),
	}
	for _, tx := range raw.Transactions {
		to := ""
		if tx.To != nil {
			to = strings.ToLower(*tx.To)
		}
		block.Transactions = append(block.Transactions, domain.Transaction{
			Hash:        tx.Hash,
			BlockNumber: block.Number,
			Index:       int(tx.TransactionIndex),
			From:        strings.ToLower(tx.From),
			To:          to,
		})
	}
	return block, nil
}

func (a *EVMAdapter) GetReceipt(ctx context.Context, txHash string) (*domain.Receipt, error) {
	var raw rpcReceipt
	err := a.call(ctx, "eth_getTransactionReceipt", []any{txHash}, &raw)
	if errors.Is(err, errNullResult) {
		return nil, fmt.Errorf("%w: %s", ErrReceiptNotFound, txHash)
	}
	if err != nil {
		return nil, err
	}
	return raw.toDomain(), nil
}

// GetReceipts fetches receipts in batch requests of ReceiptBatch hashes.
// A failed batch marks each of its hashes as failed; other batches are unaffected.
func (a *EVMAdapter) GetReceipts(ctx context.Context, hashes []string) ([]*domain.Receipt, []error) {
	receipts := make([]*domain.Receipt, len(hashes))
	errs := make([]error, len(hashes))
	if len(hashes) == 0 {
		return receipts, errs
	}

	chunkSize := a.opts.ReceiptBatch
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(a.opts.BatchConcurrency)

	for start := 0; start < len(hashes); start += chunkSize {
		start := start
		end := min(start+chunkSize, len(hashes))

		g.Go(func() error {
			requests := make([]rpc.BatchRequest, 0, end-start)
			for _, h := range hashes[start:end] {
				requests = append(requests, rpc.BatchRequest{
					Method: "eth_getTransactionReceipt",
					Params: []any{h},
				})
			}

			callCtx, cancel := context.WithTimeout(gctx, a.opts.CallTimeout)
			defer cancel()

			responses, err := a.client.BatchCall(callCtx, requests)
			if err != nil {
				a.log.Warn("batch receipt fetch failed", "from", start, "count", end-start, "error", err)
				for i := start; i < end; i++ {
					errs[i] = fmt.Errorf("batch receipt fetch: %w", err)
				}
				return nil // Don't fail the other chunks
			}

			for j := start; j < end; j++ {
				k := j - start
				if k >= len(responses) {
					errs[j] = fmt.Errorf("%w: %s", ErrReceiptNotFound, hashes[j])
					continue
				}
				resp := responses[k]
				if resp.Error != nil {
					errs[j] = resp.Error
					continue
				}
				if isNull(resp.Result) {
					errs[j] = fmt.Errorf("%w: %s", ErrReceiptNotFound, hashes[j])
					continue
				}
				var raw rpcReceipt
				if err := json.Unmarshal(resp.Result, &raw); err != nil {
					errs[j] = fmt.Errorf("decode receipt %s: %w", hashes[j], err)
					continue
				}
				receipts[j] = raw.toDomain()
			}
			return nil
		})
	}

	_ = g.Wait()
	return receipts, errs
}

func (r *rpcReceipt) toDomain() *domain.Receipt {
	status := domain.TxStatusSuccess
	if r.Status != nil && *r.Status == 0 {
		status = domain.TxStatusFailed
	}
	return &domain.Receipt{
		TxHash:      r.TransactionHash,
		BlockNumber: uint64(r.BlockNumber),
		Status:      status,
		Logs:        convertLogs(r.Logs),
	}
}

func convertLogs(raw []rpcLog) []domain.Log {
	logs := make([]domain.Log, 0, len(raw))
	for _, l := range raw {
		logs = append(logs, domain.Log{
			Address:     l.Address,
			Topics:      l.Topics,
			Data:        l.Data,
			BlockNumber: uint64(l.BlockNumber),
			TxHash:      l.TransactionHash,
			LogIndex:    uint64(l.LogIndex),
		})
	}
	return logs
}

func (a *EVMAdapter) GetLogs(ctx context.Context, filter domain.LogFilter) ([]domain.Log, error) {
	query := map[string]any{
		"fromBlock": hexutil.EncodeUint64(filter.FromBlock),
		"toBlock":   hexutil.EncodeUint64(filter.ToBlock),
	}
	if filter.Address != (common.Address{}) {
		query["address"] = filter.Address.Hex()
	}
	if len(filter.Topics) > 0 {
		topics := make([]any, len(filter.Topics))
		for i, t := range filter.Topics {
			if t != "" {
				topics[i] = t
			}
		}
		query["topics"] = topics
	}

	var raw []rpcLog
	err := a.call(ctx, "eth_getLogs", []any{query}, &raw)
	if errors.Is(err, errNullResult) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return convertLogs(raw), nil
}

func (a *EVMAdapter) Call(ctx context.Context, contract common.Address, data []byte) ([]byte, error) {
	msg := map[string]any{
		"to":   contract.Hex(),
		"data": hexutil.Encode(data),
	}
	var out hexutil.Bytes
	if err := a.call(ctx, "eth_call", []any{msg, "latest"}, &out); err != nil {
		if errors.Is(err, errNullResult) {
			return nil, nil
		}
		return nil, err
	}
	return out, nil
}

func (a *EVMAdapter) GetCode(ctx context.Context, address common.Address) ([]byte, error) {
	var code hexutil.Bytes
	if err := a.call(ctx, "eth_getCode", []any{address.Hex(), "latest"}, &code); err != nil {
		if errors.Is(err, errNullResult) {
			return nil, nil
		}
		return nil, err
	}
	return code, nil
}
