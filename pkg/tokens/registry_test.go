package tokens

import (
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/require"

	"swapdash/pkg/types"
)

func TestRegistry_Lookup(t *testing.T) {
	r := Default()

	usdt, err := r.Lookup(ChainEthereum, "usdt")
	require.NoError(t, err)
	require.Equal(t, 6, usdt.Decimals)
	require.False(t, usdt.IsNative())

	eth, err := r.Native(ChainEthereum)
	require.NoError(t, err)
	require.True(t, eth.IsNative())
	require.Equal(t, "ETH", eth.Symbol)

	_, err = r.Lookup(ChainEthereum, "NOPE")
	require.Error(t, err)

	_, err = r.Lookup(ChainBase, "USDT")
	require.Error(t, err, "USDT is not registered on Base")
}

func TestRegistry_With(t *testing.T) {
	r := Default()
	link := types.Token{
		Symbol:   "LINK",
		Address:  common.HexToAddress("0x514910771AF9Ca656af840dff83E8264EcF986CA"),
		Decimals: 18,
		ChainID:  ChainEthereum,
	}

	extended := r.With(link)

	got, err := extended.Lookup(ChainEthereum, "LINK")
	require.NoError(t, err)
	require.Equal(t, link, got)

	_, err = r.Lookup(ChainEthereum, "LINK")
	require.Error(t, err, "original registry must stay unchanged")

	// A remote duplicate never replaces a built-in entry.
	fake := link
	fake.Symbol = "USDC"
	require.NotEqual(t, fake.Address, mustLookup(t, extended.With(fake), "USDC").Address)
}

func TestRegistry_ERC20s(t *testing.T) {
	for _, tok := range Default().ERC20s(ChainEthereum) {
		require.False(t, tok.IsNative(), tok.Symbol)
	}
}

func mustLookup(t *testing.T, r *Registry, symbol string) types.Token {
	t.Helper()
	tok, err := r.Lookup(ChainEthereum, symbol)
	require.NoError(t, err)
	return tok
}
