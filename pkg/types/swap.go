package types

import (
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/signer/core/apitypes"
)

// NativeAssetAddress is the sentinel contract address of the chain's native asset
var NativeAssetAddress = common.HexToAddress("0xEeeeeEeeeEeEeeEeEeEeeEEEeeeeEeeeeeeeEEeE")

// Token describes an asset in the static registry
type Token struct {
	Symbol   string         `json:"symbol"`
	Address  common.Address `json:"address"`
	Decimals int            `json:"decimals"`
	ChainID  int64          `json:"chain_id"`
}

// IsNative reports whether the token is the chain's native asset
func (t Token) IsNative() bool {
	return t.Address == NativeAssetAddress
}

// IsZero reports whether no token was selected
func (t Token) IsZero() bool {
	return t.Symbol == "" && t.Address == (common.Address{})
}

// Same compares tokens by chain and contract address
func (t Token) Same(other Token) bool {
	return t.ChainID == other.ChainID && t.Address == other.Address
}

func (t Token) String() string {
	return strings.ToUpper(t.Symbol)
}

// SwapRequest represents a user's swap command
type SwapRequest struct {
	Amount      string
	SourceToken string
	DestToken   string
}

// TxPayload is the transaction descriptor returned by the pricing service
type TxPayload struct {
	To       common.Address
	Data     []byte
	Gas      uint64
	GasPrice *big.Int
	Value    *big.Int
}

// Quote is an immutable exchange offer for one (sell, buy, amount) triple
type Quote struct {
	SellToken  Token
	BuyToken   Token
	SellAmount *big.Int
	BuyAmount  *big.Int
	Taker      common.Address

	// Tx is nil for indicative quotes requested without a taker.
	Tx *TxPayload
	// Permit is set when the sell token needs an off-chain signed permit.
	Permit *apitypes.TypedData

	FetchedAt time.Time
}

// Executable reports whether the quote carries a submittable transaction
func (q *Quote) Executable() bool {
	return q != nil && q.Tx != nil && len(q.Tx.Data) > 0
}

// Matches reports whether the quote was produced for the given input
func (q *Quote) Matches(sell, buy Token, sellAmount *big.Int, taker common.Address) bool {
	if q == nil || sellAmount == nil || q.SellAmount == nil {
		return false
	}
	return q.SellToken.Same(sell) &&
		q.BuyToken.Same(buy) &&
		q.SellAmount.Cmp(sellAmount) == 0 &&
		q.Taker == taker
}

// AllowanceState is a point-in-time read of an ERC-20 allowance
type AllowanceState struct {
	Owner   common.Address
	Spender common.Address
	Token   Token
	Current *big.Int
}

// Sufficient reports whether the allowance covers required (equal is enough)
func (a AllowanceState) Sufficient(required *big.Int) bool {
	if a.Current == nil {
		return false
	}
	return a.Current.Cmp(required) >= 0
}
