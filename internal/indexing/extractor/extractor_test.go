package extractor

import (
	"errors"
	"math/big"
	"math/rand"
	"strings"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"

	"github.com/vietddude/buywatcher/internal/core/domain"
	"github.com/vietddude/buywatcher/internal/infra/chain/evm"
)

func transferLog(token, from, to common.Address, amount *big.Int) domain.Log {
	return domain.Log{
		Address: token,
		Topics: []string{
			evm.TransferTopic.Hex(),
			common.BytesToHash(from.Bytes()).Hex(),
			common.BytesToHash(to.Bytes()).Hex(),
		},
		Data: hexutil.Encode(common.LeftPadBytes(amount.Bytes(), 32)),
	}
}

func TestDecodeTransferRoundTrip(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	for i := 0; i < 200; i++ {
		var token, from, to common.Address
		rng.Read(token[:])
		rng.Read(from[:])
		rng.Read(to[:])
		raw := make([]byte, 1+rng.Intn(32))
		rng.Read(raw)
		amount := new(big.Int).SetBytes(raw)

		l := transferLog(token, from, to, amount)
		if i%2 == 1 {
			l.Data = strings.TrimPrefix(l.Data, "0x")
		}

		got, err := DecodeTransfer(l)
		if err != nil {
			t.Fatalf("iteration %d: %v", i, err)
		}
		if got.Token != token || got.From != from || got.To != to {
			t.Fatalf("iteration %d: addresses mismatch", i)
		}
		if got.Amount.Cmp(amount) != 0 {
			t.Fatalf("iteration %d: amount %s, want %s", i, got.Amount, amount)
		}

		reencoded := transferLog(got.Token, got.From, got.To, got.Amount)
		if reencoded.Topics[1] != l.Topics[1] || reencoded.Topics[2] != l.Topics[2] {
			t.Fatalf("iteration %d: topics do not round trip", i)
		}
	}
}

func TestDecodeTransferErrors(t *testing.T) {
	token := common.HexToAddress("0x1")
	from := common.HexToAddress("0x2")
	to := common.HexToAddress("0x3")
	valid := transferLog(token, from, to, big.NewInt(10))

	tests := []struct {
		name   string
		mutate func(l *domain.Log)
		want   error
	}{
		{"other event", func(l *domain.Log) { l.Topics[0] = common.HexToHash("0xabc").Hex() }, ErrNotTransfer},
		{"no topics", func(l *domain.Log) { l.Topics = nil }, ErrNotTransfer},
		{"two topics", func(l *domain.Log) { l.Topics = l.Topics[:2] }, ErrMalformedLog},
		{"bad address topic", func(l *domain.Log) { l.Topics[1] = "0xzz" }, ErrMalformedLog},
		{"short address topic", func(l *domain.Log) { l.Topics[2] = "0x1234" }, ErrMalformedLog},
		{"empty data", func(l *domain.Log) { l.Data = "0x" }, ErrMalformedLog},
		{"non hex data", func(l *domain.Log) { l.Data = "0xnothex" }, ErrMalformedLog},
		{"odd length data", func(l *domain.Log) { l.Data = "0x123" }, ErrMalformedLog},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			l := valid
			l.Topics = append([]string(nil), valid.Topics...)
			tt.mutate(&l)
			if _, err := DecodeTransfer(l); !errors.Is(err, tt.want) {
				t.Errorf("got %v, want %v", err, tt.want)
			}
		})
	}
}

func TestDecodeTransferExtraTopics(t *testing.T) {
	from := common.HexToAddress("0xaaaa")
	to := common.HexToAddress("0xbbbb")
	l := transferLog(common.HexToAddress("0x1"), from, to, big.NewInt(5))
	l.Topics = append(l.Topics, common.HexToHash("0x99").Hex())

	got, err := DecodeTransfer(l)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.From != from || got.To != to || got.Amount.Int64() != 5 {
		t.Errorf("unexpected transfer: %+v", got)
	}
}

func TestDecodeTransferUppercaseTopic(t *testing.T) {
	l := transferLog(common.HexToAddress("0x1"), common.HexToAddress("0x2"), common.HexToAddress("0x3"), big.NewInt(1))
	l.Topics[0] = "0x" + strings.ToUpper(strings.TrimPrefix(l.Topics[0], "0x"))
	if _, err := DecodeTransfer(l); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestExtractSkipsMalformed(t *testing.T) {
	token := common.HexToAddress("0x1")
	good1 := transferLog(token, common.HexToAddress("0x2"), common.HexToAddress("0x3"), big.NewInt(1))
	good1.LogIndex = 0
	bad := transferLog(token, common.HexToAddress("0x2"), common.HexToAddress("0x3"), big.NewInt(2))
	bad.Data = "0xgg"
	bad.LogIndex = 1
	approval := domain.Log{Address: token, Topics: []string{common.HexToHash("0x8c5b").Hex()}, LogIndex: 2}
	good2 := transferLog(token, common.HexToAddress("0x4"), common.HexToAddress("0x5"), big.NewInt(3))
	good2.LogIndex = 3

	e := New("test")
	got := e.Extract("0xtx", 42, []domain.Log{good1, bad, approval, good2})
	if len(got) != 2 {
		t.Fatalf("expected 2 transfers, got %d", len(got))
	}
	if got[0].Amount.Int64() != 1 || got[1].Amount.Int64() != 3 {
		t.Errorf("transfers out of order: %+v", got)
	}
	for _, tr := range got {
		if tr.TxHash != "0xtx" || tr.BlockNumber != 42 {
			t.Errorf("transfer not stamped with tx and block: %+v", tr)
		}
	}
	if got[1].LogIndex != 3 {
		t.Errorf("log index not kept: %d", got[1].LogIndex)
	}
}

func TestExtractEmpty(t *testing.T) {
	if got := New("test").Extract("0xtx", 1, nil); len(got) != 0 {
		t.Errorf("expected no transfers, got %d", len(got))
	}
}
