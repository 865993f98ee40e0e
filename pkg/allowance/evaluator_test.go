package allowance

import (
	"context"
	"errors"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/require"

	"swapdash/pkg/types"
)

type fakeReader struct {
	reads     int
	allowance *big.Int
	err       error
}

func (r *fakeReader) ReadContract(_ context.Context, _ common.Address, _ []byte) ([]byte, error) {
	r.reads++
	if r.err != nil {
		return nil, r.err
	}
	return common.LeftPadBytes(r.allowance.Bytes(), 32), nil
}

func (r *fakeReader) BalanceAt(_ context.Context, _ common.Address) (*big.Int, error) {
	return new(big.Int), nil
}

var (
	owner   = common.HexToAddress("0x1111111111111111111111111111111111111111")
	spender = common.HexToAddress("0x000000000022D473030F116dDEE9F6B43aC78BA3")
	usdt    = types.Token{Symbol: "USDT", Address: common.HexToAddress("0xdAC17F958D2ee523a2206206994597C13D831ec7"), Decimals: 6, ChainID: 1}
	eth     = types.Token{Symbol: "ETH", Address: types.NativeAssetAddress, Decimals: 18, ChainID: 1}
)

func TestEvaluate_NativeSkipsChainRead(t *testing.T) {
	r := &fakeReader{}
	e := NewEvaluator(r, spender, nil)

	d, err := e.Evaluate(context.Background(), eth, owner, big.NewInt(1))
	require.NoError(t, err)
	require.False(t, d.NeedsApproval)
	require.Zero(t, r.reads)
}

func TestEvaluate_Boundary(t *testing.T) {
	required := big.NewInt(10_000_000)

	tests := []struct {
		name      string
		current   *big.Int
		needsAppr bool
	}{
		{"below", big.NewInt(9_999_999), true},
		{"equal is sufficient", big.NewInt(10_000_000), false},
		{"above", big.NewInt(10_000_001), false},
		{"zero", big.NewInt(0), true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := &fakeReader{allowance: tt.current}
			e := NewEvaluator(r, spender, nil)

			d, err := e.Evaluate(context.Background(), usdt, owner, required)
			require.NoError(t, err)
			require.Equal(t, tt.needsAppr, d.NeedsApproval)
			require.Equal(t, 0, d.State.Current.Cmp(tt.current))
			require.Equal(t, spender, d.State.Spender)
			require.Equal(t, 1, r.reads)
		})
	}
}

func TestEvaluate_ReadsEveryTime(t *testing.T) {
	r := &fakeReader{allowance: big.NewInt(5)}
	e := NewEvaluator(r, spender, nil)

	_, err := e.Evaluate(context.Background(), usdt, owner, big.NewInt(5))
	require.NoError(t, err)
	_, err = e.Evaluate(context.Background(), usdt, owner, big.NewInt(5))
	require.NoError(t, err)
	require.Equal(t, 2, r.reads)
}

func TestEvaluate_ReadFailureIsChainError(t *testing.T) {
	r := &fakeReader{err: errors.New("connection refused")}
	e := NewEvaluator(r, spender, nil)

	_, err := e.Evaluate(context.Background(), usdt, owner, big.NewInt(1))
	require.Error(t, err)
	require.Equal(t, types.KindChain, types.KindOf(err))
}
