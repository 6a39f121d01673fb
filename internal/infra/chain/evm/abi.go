package evm

import (
	"errors"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

// TransferTopic is topic0 of the ERC20 Transfer(address,address,uint256) event.
var TransferTopic = crypto.Keccak256Hash([]byte("Transfer(address,address,uint256)"))

// Pair accessors. token0/token1/getReserves is the Uniswap V2 shape;
// tokenA/tokenB/reserves covers pools exposing the alternative naming.
const pairABIJSON = `[
	{"type":"function","name":"token0","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"address"}]},
	{"type":"function","name":"token1","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"address"}]},
	{"type":"function","name":"getReserves","stateMutability":"view","inputs":[],"outputs":[
		{"name":"reserve0","type":"uint112"},
		{"name":"reserve1","type":"uint112"},
		{"name":"blockTimestampLast","type":"uint32"}
	]},
	{"type":"function","name":"tokenA","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"address"}]},
	{"type":"function","name":"tokenB","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"address"}]},
	{"type":"function","name":"reserves","stateMutability":"view","inputs":[],"outputs":[
		{"name":"reserveA","type":"uint256"},
		{"name":"reserveB","type":"uint256"}
	]}
]`

// PairABI is the parsed pool ABI.
var PairABI = mustParseABI(pairABIJSON)

// ErrEmptyReturn is returned when a call to a non-contract or a missing method yields no data.
var ErrEmptyReturn = errors.New("empty return data")

func mustParseABI(def string) abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(def))
	if err != nil {
		panic(fmt.Sprintf("parse pair abi: %v", err))
	}
	return parsed
}

// PackCall encodes a no-argument pool method call.
func PackCall(method string) ([]byte, error) {
	data, err := PairABI.Pack(method)
	if err != nil {
		return nil, fmt.Errorf("pack %s: %w", method, err)
	}
	return data, nil
}

// UnpackAddress decodes the single address returned by method.
func UnpackAddress(method string, data []byte) (common.Address, error) {
	if len(data) == 0 {
		return common.Address{}, fmt.Errorf("%s: %w", method, ErrEmptyReturn)
	}
	out, err := PairABI.Unpack(method, data)
	if err != nil {
		return common.Address{}, fmt.Errorf("unpack %s: %w", method, err)
	}
	addr, ok := out[0].(common.Address)
	if !ok {
		return common.Address{}, fmt.Errorf("unpack %s: unexpected type %T", method, out[0])
	}
	return addr, nil
}

// UnpackReserves decodes the first two integers returned by method.
func UnpackReserves(method string, data []byte) (*big.Int, *big.Int, error) {
	if len(data) == 0 {
		return nil, nil, fmt.Errorf("%s: %w", method, ErrEmptyReturn)
	}
	out, err := PairABI.Unpack(method, data)
	if err != nil {
		return nil, nil, fmt.Errorf("unpack %s: %w", method, err)
	}
	if len(out) < 2 {
		return nil, nil, fmt.Errorf("unpack %s: got %d values", method, len(out))
	}
	r0, ok0 := out[0].(*big.Int)
	r1, ok1 := out[1].(*big.Int)
	if !ok0 || !ok1 {
		return nil, nil, fmt.Errorf("unpack %s: unexpected types %T, %T", method, out[0], out[1])
	}
	return r0, r1, nil
}
