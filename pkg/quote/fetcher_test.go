package quote

import (
	"context"
	"errors"
	"math/big"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"

	"swapdash/pkg/client"
	"swapdash/pkg/tokens"
	"swapdash/pkg/types"
)

type fakePricer struct {
	mu       sync.Mutex
	requests []client.PriceRequest
	err      error
	// gates blocks the response for a sell amount until the channel closes
	gates map[string]chan struct{}
}

func (p *fakePricer) GetQuote(ctx context.Context, req client.PriceRequest) (*client.PriceResponse, error) {
	p.mu.Lock()
	p.requests = append(p.requests, req)
	gate := p.gates[req.SellAmount.String()]
	err := p.err
	p.mu.Unlock()

	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if err != nil {
		return nil, err
	}

	buy := new(big.Int).Mul(req.SellAmount, big.NewInt(1_000_000_000))
	return &client.PriceResponse{
		BuyAmount: buy.String(),
		Transaction: &client.TransactionDTO{
			To:   "0x0000000000001ff3684f28c67538d4d072c22734",
			Data: "0x01",
		},
	}, nil
}

func (p *fakePricer) calls() []client.PriceRequest {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]client.PriceRequest(nil), p.requests...)
}

func testTokens(t *testing.T) (types.Token, types.Token) {
	t.Helper()
	reg := tokens.Default()
	usdc, err := reg.Lookup(tokens.ChainEthereum, "USDC")
	require.NoError(t, err)
	eth, err := reg.Lookup(tokens.ChainEthereum, "ETH")
	require.NoError(t, err)
	return usdc, eth
}

func newTestFetcher(p Pricer, debounce time.Duration) *Fetcher {
	logger := logrus.New()
	logger.SetLevel(logrus.WarnLevel)
	return NewFetcher(p, Options{ChainID: 1, Debounce: debounce, Logger: logger})
}

func TestFetcher_InvalidInputNeverCallsNetwork(t *testing.T) {
	usdc, eth := testTokens(t)

	tests := []struct {
		name    string
		input   Input
		wantErr error
	}{
		{"empty", Input{Sell: usdc, Buy: eth, Amount: ""}, ErrEmptyAmount},
		{"blank", Input{Sell: usdc, Buy: eth, Amount: "   "}, ErrEmptyAmount},
		{"zero", Input{Sell: usdc, Buy: eth, Amount: "0"}, ErrNoValidInput},
		{"zero fraction", Input{Sell: usdc, Buy: eth, Amount: "0.000"}, ErrNoValidInput},
		{"negative", Input{Sell: usdc, Buy: eth, Amount: "-1"}, ErrNoValidInput},
		{"non numeric", Input{Sell: usdc, Buy: eth, Amount: "ten"}, ErrNoValidInput},
		{"too many decimals", Input{Sell: usdc, Buy: eth, Amount: "1.0000001"}, ErrNoValidInput},
		{"missing buy token", Input{Sell: usdc, Amount: "1"}, ErrNoValidInput},
		{"same token", Input{Sell: usdc, Buy: usdc, Amount: "1"}, ErrNoValidInput},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := &fakePricer{}
			f := newTestFetcher(p, time.Millisecond)
			defer f.Close()

			f.SetInput(tt.input)
			time.Sleep(20 * time.Millisecond)

			snap := f.Current()
			require.Nil(t, snap.Quote)
			require.Empty(t, snap.BuyDisplay)
			require.ErrorIs(t, snap.Err, tt.wantErr)
			require.Equal(t, types.KindValidation, types.KindOf(snap.Err))
			require.Empty(t, p.calls())
		})
	}
}

func TestFetcher_DebounceIssuesOneCallWithFinalInput(t *testing.T) {
	usdc, eth := testTokens(t)
	p := &fakePricer{}
	f := newTestFetcher(p, 50*time.Millisecond)
	defer f.Close()

	for _, amount := range []string{"1", "12", "12.", "12.5"} {
		f.SetInput(Input{Sell: usdc, Buy: eth, Amount: amount})
		time.Sleep(5 * time.Millisecond)
	}

	require.Eventually(t, func() bool { return f.Current().Quote != nil }, time.Second, 5*time.Millisecond)
	time.Sleep(80 * time.Millisecond)

	calls := p.calls()
	require.Len(t, calls, 1)
	require.Equal(t, "12500000", calls[0].SellAmount.String())
	require.Equal(t, usdc.Address, calls[0].SellToken)

	snap := f.Current()
	require.NoError(t, snap.Err)
	require.False(t, snap.Loading)
	require.Equal(t, "0.0125", snap.BuyDisplay)
	require.True(t, f.IsCurrent(snap.Quote))
}

func TestFetcher_StaleResponseDiscarded(t *testing.T) {
	usdc, eth := testTokens(t)
	slow := make(chan struct{})
	p := &fakePricer{gates: map[string]chan struct{}{"1000000": slow}}
	f := newTestFetcher(p, time.Millisecond)
	defer f.Close()

	var mu sync.Mutex
	var seen []string
	unsubscribe := f.OnUpdate(func(s Snapshot) {
		if s.Quote == nil {
			return
		}
		mu.Lock()
		seen = append(seen, s.Quote.SellAmount.String())
		mu.Unlock()
	})
	defer unsubscribe()

	f.SetInput(Input{Sell: usdc, Buy: eth, Amount: "1"})
	require.Eventually(t, func() bool { return len(p.calls()) == 1 }, time.Second, time.Millisecond)

	f.SetInput(Input{Sell: usdc, Buy: eth, Amount: "2"})
	require.Eventually(t, func() bool { return f.Current().Quote != nil }, time.Second, time.Millisecond)

	close(slow)
	time.Sleep(30 * time.Millisecond)

	snap := f.Current()
	require.Equal(t, "2000000", snap.Quote.SellAmount.String())
	require.Equal(t, "2", snap.Input.Amount)

	mu.Lock()
	defer mu.Unlock()
	require.Equal(t, []string{"2000000"}, seen)
}

func TestFetcher_InputChangeInvalidatesHeldQuote(t *testing.T) {
	usdc, eth := testTokens(t)
	p := &fakePricer{}
	f := newTestFetcher(p, time.Millisecond)
	defer f.Close()

	f.SetInput(Input{Sell: usdc, Buy: eth, Amount: "5"})
	require.Eventually(t, func() bool { return f.Current().Quote != nil }, time.Second, time.Millisecond)
	held := f.Current().Quote

	f.SetInput(Input{Sell: usdc, Buy: eth, Amount: "6"})
	require.False(t, f.IsCurrent(held))
	require.Nil(t, f.Current().Quote)
	require.True(t, f.Current().Loading)

	f.SetInput(Input{Sell: usdc, Buy: eth, Amount: "abc"})
	require.False(t, f.IsCurrent(held))
	require.Nil(t, f.Current().Quote)
}

func TestFetcher_UpstreamErrorPreservesStatus(t *testing.T) {
	usdc, eth := testTokens(t)
	p := &fakePricer{err: &client.APIError{StatusCode: 429, Message: "RATE_LIMITED"}}
	f := newTestFetcher(p, time.Millisecond)
	defer f.Close()

	f.SetInput(Input{Sell: usdc, Buy: eth, Amount: "1"})
	require.Eventually(t, func() bool { return f.Current().Err != nil }, time.Second, time.Millisecond)

	snap := f.Current()
	require.Nil(t, snap.Quote)
	require.Equal(t, types.KindQuote, types.KindOf(snap.Err))

	var upstream *UpstreamError
	require.True(t, errors.As(snap.Err, &upstream))
	require.Equal(t, 429, upstream.StatusCode)
}

func TestFetcher_ClearAmountKeepsTokens(t *testing.T) {
	usdc, eth := testTokens(t)
	f := newTestFetcher(&fakePricer{}, time.Millisecond)
	defer f.Close()

	f.SetInput(Input{Sell: usdc, Buy: eth, Amount: "3"})
	require.Eventually(t, func() bool { return f.Current().Quote != nil }, time.Second, time.Millisecond)

	f.ClearAmount()
	snap := f.Current()
	require.Nil(t, snap.Quote)
	require.NoError(t, snap.Err)
	require.Empty(t, snap.Input.Amount)
	require.True(t, snap.Input.Sell.Same(usdc))
	require.True(t, snap.Input.Buy.Same(eth))
}

func TestFetcher_FetchOneShot(t *testing.T) {
	usdc, eth := testTokens(t)
	p := &fakePricer{}
	f := newTestFetcher(p, time.Hour)
	defer f.Close()

	taker := common.HexToAddress("0x1111111111111111111111111111111111111111")
	snap, err := f.Fetch(context.Background(), Input{Sell: usdc, Buy: eth, Amount: "10", Taker: taker})
	require.NoError(t, err)
	require.True(t, snap.Quote.Executable())
	require.Equal(t, taker, snap.Quote.Taker)
	require.Equal(t, "0.01", snap.BuyDisplay)

	rate, err := Rate(snap.Quote, 6)
	require.NoError(t, err)
	require.Equal(t, "0.001", rate)

	_, err = f.Fetch(context.Background(), Input{Sell: usdc, Buy: eth, Amount: "0"})
	require.ErrorIs(t, err, ErrNoValidInput)
	require.Len(t, p.calls(), 1)
}

func TestFetcher_DisplayTruncates(t *testing.T) {
	usdc, eth := testTokens(t)
	p := &fakePricer{}
	logger := logrus.New()
	f := NewFetcher(p, Options{ChainID: 1, DisplayDecimals: 3, Logger: logger})
	defer f.Close()

	// 1.999999 USDC -> 0.001999999 ETH, truncated to 0.001
	snap, err := f.Fetch(context.Background(), Input{Sell: usdc, Buy: eth, Amount: "1.999999"})
	require.NoError(t, err)
	require.Equal(t, "0.001", snap.BuyDisplay)
}
