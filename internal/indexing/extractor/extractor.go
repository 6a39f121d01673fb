// Package extractor decodes ERC20 Transfer logs from transaction receipts.
package extractor

import (
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"

	"github.com/vietddude/buywatcher/internal/core/domain"
	"github.com/vietddude/buywatcher/internal/indexing/metrics"
	"github.com/vietddude/buywatcher/internal/infra/chain/evm"
)

// ErrMalformedLog is returned for Transfer logs whose topics or data cannot be decoded.
var ErrMalformedLog = errors.New("malformed transfer log")

// ErrNotTransfer is returned for logs that are not ERC20 Transfer events.
var ErrNotTransfer = errors.New("not a transfer log")

var transferTopic = strings.ToLower(evm.TransferTopic.Hex())

// Extractor turns receipt logs into transfers.
type Extractor struct {
	chain string
	log   *slog.Logger
}

func New(chain string) *Extractor {
	return &Extractor{
		chain: chain,
		log:   slog.Default().With("component", "extractor"),
	}
}

// Extract decodes the Transfer logs of one transaction in log order.
// Malformed logs are skipped without affecting the rest.
func (e *Extractor) Extract(txHash string, blockNumber uint64, logs []domain.Log) []domain.Transfer {
	var transfers []domain.Transfer
	for _, l := range logs {
		t, err := DecodeTransfer(l)
		if errors.Is(err, ErrNotTransfer) {
			continue
		}
		if err != nil {
			metrics.MalformedLogs.WithLabelValues(e.chain).Inc()
			e.log.Debug("skip malformed transfer log", "tx", txHash, "log_index", l.LogIndex, "error", err)
			continue
		}
		t.TxHash = txHash
		t.BlockNumber = blockNumber
		transfers = append(transfers, t)
	}
	metrics.TransfersExtracted.WithLabelValues(e.chain).Add(float64(len(transfers)))
	return transfers
}

// DecodeTransfer decodes a single log. At least three topics are required;
// additional topics are ignored.
func DecodeTransfer(l domain.Log) (domain.Transfer, error) {
	if len(l.Topics) == 0 || strings.ToLower(l.Topics[0]) != transferTopic {
		return domain.Transfer{}, ErrNotTransfer
	}
	if len(l.Topics) < 3 {
		return domain.Transfer{}, fmt.Errorf("%w: %d topics", ErrMalformedLog, len(l.Topics))
	}

	from, err := topicAddress(l.Topics[1])
	if err != nil {
		return domain.Transfer{}, fmt.Errorf("%w: from: %v", ErrMalformedLog, err)
	}
	to, err := topicAddress(l.Topics[2])
	if err != nil {
		return domain.Transfer{}, fmt.Errorf("%w: to: %v", ErrMalformedLog, err)
	}
	amount, err := parseAmount(l.Data)
	if err != nil {
		return domain.Transfer{}, fmt.Errorf("%w: amount: %v", ErrMalformedLog, err)
	}

	return domain.Transfer{
		Token:       l.Address,
		From:        from,
		To:          to,
		Amount:      amount,
		TxHash:      l.TxHash,
		BlockNumber: l.BlockNumber,
		LogIndex:    l.LogIndex,
	}, nil
}

// topicAddress takes the low 20 bytes of a 32-byte topic.
func topicAddress(topic string) (common.Address, error) {
	b, err := decodeHex(topic)
	if err != nil {
		return common.Address{}, err
	}
	if len(b) != common.HashLength {
		return common.Address{}, fmt.Errorf("topic is %d bytes", len(b))
	}
	return common.BytesToAddress(b), nil
}

// parseAmount reads a big-endian uint256 from the data word.
func parseAmount(data string) (*big.Int, error) {
	b, err := decodeHex(data)
	if err != nil {
		return nil, err
	}
	if len(b) == 0 {
		return nil, errors.New("empty data")
	}
	if len(b) > common.HashLength {
		b = b[:common.HashLength]
	}
	return new(big.Int).SetBytes(b), nil
}

// decodeHex accepts both 0x-prefixed and bare hex.
func decodeHex(s string) ([]byte, error) {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "0x") && !strings.HasPrefix(s, "0X") {
		s = "0x" + s
	}
	return hexutil.Decode(s)
}
