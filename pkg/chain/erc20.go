package chain

import (
	"context"
	"encoding/binary"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/math"
)

// ERC20 functions used by the wallet
const erc20ABI = `[
{"constant":true,"inputs":[{"name":"_owner","type":"address"},{"name":"_spender","type":"address"}],"name":"allowance","outputs":[{"name":"","type":"uint256"}],"type":"function"},
{"constant":false,"inputs":[{"name":"_spender","type":"address"},{"name":"_value","type":"uint256"}],"name":"approve","outputs":[{"name":"","type":"bool"}],"type":"function"},
{"constant":false,"inputs":[{"name":"_to","type":"address"},{"name":"_value","type":"uint256"}],"name":"transfer","outputs":[{"name":"","type":"bool"}],"type":"function"},
{"constant":true,"inputs":[{"name":"_owner","type":"address"}],"name":"balanceOf","outputs":[{"name":"balance","type":"uint256"}],"type":"function"}
]`

// Disperse contract (disperse.app)
const disperseABI = `[
{"constant":false,"inputs":[{"name":"recipients","type":"address[]"},{"name":"values","type":"uint256[]"}],"name":"disperseEther","outputs":[],"payable":true,"type":"function"},
{"constant":false,"inputs":[{"name":"token","type":"address"},{"name":"recipients","type":"address[]"},{"name":"values","type":"uint256[]"}],"name":"disperseToken","outputs":[],"payable":false,"type":"function"}
]`

// MaxAllowance is approved so later swaps of the same token skip approval
var MaxAllowance = math.MaxBig256

var (
	erc20     = mustParseABI(erc20ABI)
	disperser = mustParseABI(disperseABI)
)

func mustParseABI(def string) abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(def))
	if err != nil {
		panic(fmt.Sprintf("failed to parse ABI: %v", err))
	}
	return parsed
}

// PackAllowance encodes allowance(owner, spender)
func PackAllowance(owner, spender common.Address) ([]byte, error) {
	return erc20.Pack("allowance", owner, spender)
}

// PackApprove encodes approve(spender, amount)
func PackApprove(spender common.Address, amount *big.Int) ([]byte, error) {
	return erc20.Pack("approve", spender, amount)
}

// PackTransfer encodes transfer(to, amount)
func PackTransfer(to common.Address, amount *big.Int) ([]byte, error) {
	return erc20.Pack("transfer", to, amount)
}

// PackBalanceOf encodes balanceOf(owner)
func PackBalanceOf(owner common.Address) ([]byte, error) {
	return erc20.Pack("balanceOf", owner)
}

// PackDisperseEther encodes disperseEther(recipients, values)
func PackDisperseEther(recipients []common.Address, values []*big.Int) ([]byte, error) {
	return disperser.Pack("disperseEther", recipients, values)
}

// PackDisperseToken encodes disperseToken(token, recipients, values)
func PackDisperseToken(token common.Address, recipients []common.Address, values []*big.Int) ([]byte, error) {
	return disperser.Pack("disperseToken", token, recipients, values)
}

// UnpackUint256 decodes a single uint256 return value
func UnpackUint256(result []byte) (*big.Int, error) {
	if len(result) != 32 {
		return nil, fmt.Errorf("unexpected return size %d", len(result))
	}
	return new(big.Int).SetBytes(result), nil
}

// ReadAllowance reads the ERC-20 allowance granted by owner to spender
func ReadAllowance(ctx context.Context, r Reader, token, owner, spender common.Address) (*big.Int, error) {
	data, err := PackAllowance(owner, spender)
	if err != nil {
		return nil, fmt.Errorf("failed to pack allowance data: %w", err)
	}
	result, err := r.ReadContract(ctx, token, data)
	if err != nil {
		return nil, fmt.Errorf("failed to call allowance: %w", err)
	}
	return UnpackUint256(result)
}

// ReadBalance reads the ERC-20 balance of owner
func ReadBalance(ctx context.Context, r Reader, token, owner common.Address) (*big.Int, error) {
	data, err := PackBalanceOf(owner)
	if err != nil {
		return nil, fmt.Errorf("failed to pack balanceOf data: %w", err)
	}
	result, err := r.ReadContract(ctx, token, data)
	if err != nil {
		return nil, fmt.Errorf("failed to call balanceOf: %w", err)
	}
	return UnpackUint256(result)
}

// AppendSignature appends a signature to call data as a 32-byte big-endian
// length word followed by the raw signature bytes
func AppendSignature(callData, signature []byte) []byte {
	word := make([]byte, 32)
	binary.BigEndian.PutUint64(word[24:], uint64(len(signature)))

	out := make([]byte, 0, len(callData)+len(word)+len(signature))
	out = append(out, callData...)
	out = append(out, word...)
	return append(out, signature...)
}
