package client

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math/big"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/signer/core/apitypes"
)

const (
	APIVersion   = "v2"
	quotePath    = "/swap/permit2/quote"
	pricePath    = "/swap/permit2/price"
	maxErrorBody = 4 << 10
)

// APIError is a non-2xx answer from the pricing service
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("API error (status %d): %s", e.StatusCode, e.Message)
}

// PriceRequest carries the quote parameters
type PriceRequest struct {
	ChainID    int64
	SellToken  common.Address
	BuyToken   common.Address
	SellAmount *big.Int
	// Taker is optional; without it the service returns an indicative price
	// with no transaction.
	Taker common.Address
}

// PriceResponse is the subset of the pricing payload the core depends on
type PriceResponse struct {
	BuyAmount          string          `json:"buyAmount"`
	SellAmount         string          `json:"sellAmount"`
	LiquidityAvailable *bool           `json:"liquidityAvailable"`
	Transaction        *TransactionDTO `json:"transaction"`
	Permit2            *Permit2DTO     `json:"permit2"`
}

// TransactionDTO is the wire form of the swap transaction
type TransactionDTO struct {
	To       string `json:"to"`
	Data     string `json:"data"`
	Gas      string `json:"gas"`
	GasPrice string `json:"gasPrice"`
	Value    string `json:"value"`
}

// Permit2DTO holds the typed-data permit to sign
type Permit2DTO struct {
	Type   string              `json:"type"`
	Hash   string              `json:"hash"`
	EIP712 *apitypes.TypedData `json:"eip712"`
}

// PricingClient calls the remote swap-pricing service
type PricingClient struct {
	baseURL string
	apiKey  string
	http    *http.Client
}

// NewPricingClient creates a new pricing client
func NewPricingClient(baseURL, apiKey string, timeout time.Duration) *PricingClient {
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &PricingClient{
		baseURL: baseURL,
		apiKey:  apiKey,
		http:    &http.Client{Timeout: timeout},
	}
}

// GetQuote requests a firm quote, or an indicative price when req.Taker is zero
func (c *PricingClient) GetQuote(ctx context.Context, req PriceRequest) (*PriceResponse, error) {
	if req.SellAmount == nil || req.SellAmount.Sign() <= 0 {
		return nil, fmt.Errorf("sell amount must be positive")
	}

	params := url.Values{}
	params.Set("chainId", strconv.FormatInt(req.ChainID, 10))
	params.Set("sellToken", req.SellToken.Hex())
	params.Set("buyToken", req.BuyToken.Hex())
	params.Set("sellAmount", req.SellAmount.String())

	path := pricePath
	if req.Taker != (common.Address{}) {
		params.Set("taker", req.Taker.Hex())
		path = quotePath
	}

	endpoint := c.baseURL + path + "?" + params.Encode()
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}
	httpReq.Header.Set("Accept", "application/json")
	httpReq.Header.Set("0x-version", APIVersion)
	if c.apiKey != "" {
		httpReq.Header.Set("0x-api-key", c.apiKey)
	}

	httpResp, err := c.http.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("failed to get quote from API: %w", err)
	}
	defer httpResp.Body.Close()

	if httpResp.StatusCode < 200 || httpResp.StatusCode >= 300 {
		return nil, &APIError{
			StatusCode: httpResp.StatusCode,
			Message:    errorMessage(httpResp.Body),
		}
	}

	var resp PriceResponse
	if err := json.NewDecoder(httpResp.Body).Decode(&resp); err != nil {
		return nil, fmt.Errorf("failed to decode quote response: %w", err)
	}
	if resp.LiquidityAvailable != nil && !*resp.LiquidityAvailable {
		return nil, fmt.Errorf("no liquidity available for this pair")
	}
	if resp.BuyAmount == "" {
		return nil, fmt.Errorf("empty quote response")
	}

	return &resp, nil
}

// errorMessage extracts the most useful text from an error body
func errorMessage(body io.Reader) string {
	raw, err := io.ReadAll(io.LimitReader(body, maxErrorBody))
	if err != nil || len(raw) == 0 {
		return "no response body"
	}

	var errorResp map[string]interface{}
	if jsonErr := json.Unmarshal(raw, &errorResp); jsonErr == nil {
		if message, ok := errorResp["message"].(string); ok {
			return message
		}
		if name, ok := errorResp["name"].(string); ok {
			return name
		}
	}
	return string(raw)
}

// Parsed is the decoded numeric form of a PriceResponse
type Parsed struct {
	BuyAmount *big.Int
	Tx        *ParsedTx
	Permit    *apitypes.TypedData
}

// ParsedTx is the decoded transaction descriptor
type ParsedTx struct {
	To       common.Address
	Data     []byte
	Gas      uint64
	GasPrice *big.Int
	Value    *big.Int
}

// Parse decodes the string fields of the response
func (r *PriceResponse) Parse() (*Parsed, error) {
	buyAmount, ok := new(big.Int).SetString(r.BuyAmount, 10)
	if !ok {
		return nil, fmt.Errorf("failed to parse buyAmount: %s", r.BuyAmount)
	}

	parsed := &Parsed{BuyAmount: buyAmount}
	if r.Permit2 != nil {
		parsed.Permit = r.Permit2.EIP712
	}
	if r.Transaction == nil {
		return parsed, nil
	}

	if !common.IsHexAddress(r.Transaction.To) {
		return nil, fmt.Errorf("invalid transaction target: %s", r.Transaction.To)
	}
	data, err := hexutil.Decode(r.Transaction.Data)
	if err != nil {
		return nil, fmt.Errorf("failed to decode tx data: %w", err)
	}
	value, err := parseBig(r.Transaction.Value)
	if err != nil {
		return nil, fmt.Errorf("failed to parse tx value: %w", err)
	}
	gasPrice, err := parseBig(r.Transaction.GasPrice)
	if err != nil {
		return nil, fmt.Errorf("failed to parse gas price: %w", err)
	}
	var gas uint64
	if r.Transaction.Gas != "" {
		gas, err = strconv.ParseUint(r.Transaction.Gas, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("failed to parse gas: %w", err)
		}
	}

	parsed.Tx = &ParsedTx{
		To:       common.HexToAddress(r.Transaction.To),
		Data:     data,
		Gas:      gas,
		GasPrice: gasPrice,
		Value:    value,
	}
	return parsed, nil
}

func parseBig(s string) (*big.Int, error) {
	if s == "" {
		return new(big.Int), nil
	}
	v, ok := new(big.Int).SetString(s, 10)
	if !ok {
		return nil, fmt.Errorf("not an integer: %s", s)
	}
	return v, nil
}
