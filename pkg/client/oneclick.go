package client

import (
	"context"
	"fmt"
	"strings"

	oneclick "github.com/defuse-protocol/one-click-sdk-go"
	"github.com/ethereum/go-ethereum/common"

	"swapdash/pkg/types"
)

// blockchainNames maps EVM chain ids to 1Click blockchain identifiers
var blockchainNames = map[int64]string{
	1:     "eth",
	8453:  "base",
	42161: "arb",
	137:   "pol",
	56:    "bsc",
}

// OneClickClient wraps the 1Click SDK for token discovery
type OneClickClient struct {
	client *oneclick.APIClient
	ctx    context.Context
}

// NewOneClickClient creates a new 1Click API client
func NewOneClickClient(jwtToken string) *OneClickClient {
	config := oneclick.NewConfiguration()

	ctx := context.Background()
	if jwtToken != "" {
		ctx = context.WithValue(ctx, oneclick.ContextAccessToken, jwtToken)
	}

	return &OneClickClient{
		client: oneclick.NewAPIClient(config),
		ctx:    ctx,
	}
}

// GetSupportedTokens retrieves all supported tokens
func (c *OneClickClient) GetSupportedTokens() ([]oneclick.TokenResponse, error) {
	resp, httpResp, err := c.client.OneClickAPI.GetTokens(c.ctx).Execute()
	if err != nil {
		return nil, fmt.Errorf("failed to get tokens: %w", err)
	}
	defer httpResp.Body.Close()

	if httpResp.StatusCode != 200 {
		return nil, &APIError{StatusCode: httpResp.StatusCode, Message: "token list unavailable"}
	}

	return resp, nil
}

// TokensForChain returns the remote token list of an EVM chain as registry tokens
func (c *OneClickClient) TokensForChain(chainID int64) ([]types.Token, error) {
	name, ok := blockchainNames[chainID]
	if !ok {
		return nil, fmt.Errorf("chain %d is not listed by 1Click", chainID)
	}

	remote, err := c.GetSupportedTokens()
	if err != nil {
		return nil, err
	}

	return ConvertTokens(remote, name, chainID), nil
}

// ConvertTokens filters remote tokens to one blockchain and converts them
func ConvertTokens(remote []oneclick.TokenResponse, blockchain string, chainID int64) []types.Token {
	var list []types.Token
	for _, token := range remote {
		if !strings.EqualFold(token.GetBlockchain(), blockchain) {
			continue
		}

		address := types.NativeAssetAddress
		if contract := token.GetContractAddress(); contract != "" {
			if !common.IsHexAddress(contract) {
				continue
			}
			address = common.HexToAddress(contract)
		}

		list = append(list, types.Token{
			Symbol:   strings.ToUpper(token.GetSymbol()),
			Address:  address,
			Decimals: int(token.GetDecimals()),
			ChainID:  chainID,
		})
	}
	return list
}
