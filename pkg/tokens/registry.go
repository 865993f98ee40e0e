package tokens

import (
	"fmt"
	"sort"
	"strings"

	"github.com/ethereum/go-ethereum/common"

	"swapdash/pkg/types"
)

const (
	ChainEthereum int64 = 1
	ChainBase     int64 = 8453
)

func token(chainID int64, symbol, address string, decimals int) types.Token {
	return types.Token{
		Symbol:   symbol,
		Address:  common.HexToAddress(address),
		Decimals: decimals,
		ChainID:  chainID,
	}
}

var builtin = []types.Token{
	{Symbol: "ETH", Address: types.NativeAssetAddress, Decimals: 18, ChainID: ChainEthereum},
	token(ChainEthereum, "USDT", "0xdAC17F958D2ee523a2206206994597C13D831ec7", 6),
	token(ChainEthereum, "USDC", "0xA0b86991c6218b36c1d19D4a2e9Eb0cE3606eB48", 6),
	token(ChainEthereum, "DAI", "0x6B175474E89094C44Da98b954EedeAC495271d0F", 18),
	token(ChainEthereum, "WETH", "0xC02aaA39b223FE8D0A0e5C4F27eAD9083C756Cc2", 18),
	token(ChainEthereum, "WBTC", "0x2260FAC5E5542a773Aa44fBCfeDf7C193bc2C599", 8),

	{Symbol: "ETH", Address: types.NativeAssetAddress, Decimals: 18, ChainID: ChainBase},
	token(ChainBase, "USDC", "0x833589fCD6eDb6E08f4c7C32D4f71b54bdA02913", 6),
	token(ChainBase, "WETH", "0x4200000000000000000000000000000000000006", 18),
	token(ChainBase, "DAI", "0x50c5725949A6F0c72E6C4a641F24049A917DB0Cb", 18),
}

// Registry is an immutable set of known tokens keyed by chain
type Registry struct {
	byChain map[int64][]types.Token
}

// Default returns the built-in registry
func Default() *Registry {
	return New(builtin...)
}

// New creates a registry from tokens; later duplicates (same chain and
// symbol) are ignored
func New(tokens ...types.Token) *Registry {
	r := &Registry{byChain: make(map[int64][]types.Token)}
	for _, t := range tokens {
		if _, err := r.Lookup(t.ChainID, t.Symbol); err == nil {
			continue
		}
		r.byChain[t.ChainID] = append(r.byChain[t.ChainID], t)
	}
	return r
}

// With returns a new registry extended by extra tokens
func (r *Registry) With(extra ...types.Token) *Registry {
	all := make([]types.Token, 0)
	for _, list := range r.byChain {
		all = append(all, list...)
	}
	return New(append(all, extra...)...)
}

// Lookup finds a token by symbol on a chain (case-insensitive)
func (r *Registry) Lookup(chainID int64, symbol string) (types.Token, error) {
	symbol = strings.ToUpper(strings.TrimSpace(symbol))
	for _, t := range r.byChain[chainID] {
		if strings.ToUpper(t.Symbol) == symbol {
			return t, nil
		}
	}
	return types.Token{}, fmt.Errorf("token '%s' not found on chain %d", symbol, chainID)
}

// ByAddress finds a token by contract address on a chain
func (r *Registry) ByAddress(chainID int64, address common.Address) (types.Token, bool) {
	for _, t := range r.byChain[chainID] {
		if t.Address == address {
			return t, true
		}
	}
	return types.Token{}, false
}

// Native returns the chain's native asset
func (r *Registry) Native(chainID int64) (types.Token, error) {
	t, ok := r.ByAddress(chainID, types.NativeAssetAddress)
	if !ok {
		return types.Token{}, fmt.Errorf("no native asset registered for chain %d", chainID)
	}
	return t, nil
}

// List returns the chain's tokens sorted by symbol
func (r *Registry) List(chainID int64) []types.Token {
	list := make([]types.Token, len(r.byChain[chainID]))
	copy(list, r.byChain[chainID])
	sort.Slice(list, func(i, j int) bool {
		return list[i].Symbol < list[j].Symbol
	})
	return list
}

// ERC20s returns the chain's non-native tokens
func (r *Registry) ERC20s(chainID int64) []types.Token {
	var list []types.Token
	for _, t := range r.List(chainID) {
		if !t.IsNative() {
			list = append(list, t)
		}
	}
	return list
}
