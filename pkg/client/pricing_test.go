package client

import (
	"context"
	"errors"
	"math/big"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/require"
)

const quoteBody = `{
	"liquidityAvailable": true,
	"buyAmount": "3000000000000000",
	"sellAmount": "10000000",
	"transaction": {
		"to": "0x0000000000001ff3684f28c67538d4d072c22734",
		"data": "0xdeadbeef",
		"gas": "250000",
		"gasPrice": "1000000000",
		"value": "0"
	},
	"permit2": {
		"type": "Permit2",
		"hash": "0xabc",
		"eip712": {
			"types": {
				"EIP712Domain": [{"name": "name", "type": "string"}, {"name": "chainId", "type": "uint256"}],
				"Permit": [{"name": "amount", "type": "uint256"}]
			},
			"domain": {"name": "Permit2", "chainId": "1"},
			"message": {"amount": "10000000"},
			"primaryType": "Permit"
		}
	}
}`

func TestPricingClient_GetQuote(t *testing.T) {
	var gotQuery map[string]string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, quotePath, r.URL.Path)
		require.Equal(t, "secret", r.Header.Get("0x-api-key"))
		require.Equal(t, APIVersion, r.Header.Get("0x-version"))
		gotQuery = map[string]string{}
		for k := range r.URL.Query() {
			gotQuery[k] = r.URL.Query().Get(k)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(quoteBody))
	}))
	defer srv.Close()

	c := NewPricingClient(srv.URL, "secret", 0)
	resp, err := c.GetQuote(context.Background(), PriceRequest{
		ChainID:    1,
		SellToken:  common.HexToAddress("0xdAC17F958D2ee523a2206206994597C13D831ec7"),
		BuyToken:   common.HexToAddress("0xEeeeeEeeeEeEeeEeEeEeeEEEeeeeEeeeeeeeEEeE"),
		SellAmount: big.NewInt(10_000_000),
		Taker:      common.HexToAddress("0x1111111111111111111111111111111111111111"),
	})
	require.NoError(t, err)
	require.Equal(t, "1", gotQuery["chainId"])
	require.Equal(t, "10000000", gotQuery["sellAmount"])
	require.NotEmpty(t, gotQuery["taker"])

	parsed, err := resp.Parse()
	require.NoError(t, err)
	require.Equal(t, "3000000000000000", parsed.BuyAmount.String())
	require.Equal(t, []byte{0xde, 0xad, 0xbe, 0xef}, parsed.Tx.Data)
	require.Equal(t, uint64(250000), parsed.Tx.Gas)
	require.Equal(t, int64(1_000_000_000), parsed.Tx.GasPrice.Int64())
	require.NotNil(t, parsed.Permit)
	require.Equal(t, "Permit", parsed.Permit.PrimaryType)
}

func TestPricingClient_IndicativeWithoutTaker(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, pricePath, r.URL.Path)
		require.Empty(t, r.URL.Query().Get("taker"))
		_, _ = w.Write([]byte(`{"buyAmount": "42", "liquidityAvailable": true}`))
	}))
	defer srv.Close()

	c := NewPricingClient(srv.URL, "", 0)
	resp, err := c.GetQuote(context.Background(), PriceRequest{ChainID: 1, SellAmount: big.NewInt(1)})
	require.NoError(t, err)

	parsed, err := resp.Parse()
	require.NoError(t, err)
	require.Nil(t, parsed.Tx)
	require.Equal(t, "42", parsed.BuyAmount.String())
}

func TestPricingClient_ErrorStatusPreserved(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		body    string
		message string
	}{
		{"json message", http.StatusBadRequest, `{"name":"INPUT_INVALID","message":"sellAmount too small"}`, "sellAmount too small"},
		{"json name only", http.StatusTooManyRequests, `{"name":"RATE_LIMITED"}`, "RATE_LIMITED"},
		{"plain body", http.StatusBadGateway, `upstream down`, "upstream down"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			c := NewPricingClient(srv.URL, "", 0)
			_, err := c.GetQuote(context.Background(), PriceRequest{ChainID: 1, SellAmount: big.NewInt(1)})

			var apiErr *APIError
			require.True(t, errors.As(err, &apiErr))
			require.Equal(t, tt.status, apiErr.StatusCode)
			require.Equal(t, tt.message, apiErr.Message)
		})
	}
}

func TestPricingClient_NoLiquidity(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"liquidityAvailable": false}`))
	}))
	defer srv.Close()

	c := NewPricingClient(srv.URL, "", 0)
	_, err := c.GetQuote(context.Background(), PriceRequest{ChainID: 1, SellAmount: big.NewInt(1)})
	require.ErrorContains(t, err, "no liquidity")
}
