package chain

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	ethtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/ethereum/go-ethereum/signer/core/apitypes"
	"github.com/sirupsen/logrus"

	"swapdash/config"
	"swapdash/pkg/types"
)

// Backend is the subset of ethclient.Client the signer uses
type Backend interface {
	CallContract(ctx context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error)
	EstimateGas(ctx context.Context, msg ethereum.CallMsg) (uint64, error)
	PendingNonceAt(ctx context.Context, account common.Address) (uint64, error)
	SuggestGasPrice(ctx context.Context) (*big.Int, error)
	SendTransaction(ctx context.Context, tx *ethtypes.Transaction) error
	TransactionReceipt(ctx context.Context, txHash common.Hash) (*ethtypes.Receipt, error)
	BalanceAt(ctx context.Context, account common.Address, blockNumber *big.Int) (*big.Int, error)
}

var _ Collaborator = (*EVMSigner)(nil)

// EVMSigner signs and submits transactions with a local private key
type EVMSigner struct {
	backend    Backend
	closer     func()
	chainID    *big.Int
	privateKey *ecdsa.PrivateKey
	from       common.Address
	cfg        config.ChainConfig
	log        logrus.FieldLogger
}

// Dial connects to the configured RPC endpoint and loads the signing key
func Dial(cfg *config.Config, log logrus.FieldLogger) (*EVMSigner, error) {
	if err := cfg.RequireWallet(); err != nil {
		return nil, err
	}

	client, err := ethclient.Dial(cfg.RPCUrl)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to RPC endpoint: %w", err)
	}

	signer, err := NewEVMSigner(client, cfg.ChainID, cfg.PrivateKey, cfg.Chain, log)
	if err != nil {
		client.Close()
		return nil, err
	}
	signer.closer = client.Close
	return signer, nil
}

// NewEVMSigner creates a signer over an existing backend
func NewEVMSigner(backend Backend, chainID int64, hexKey string, cfg config.ChainConfig, log logrus.FieldLogger) (*EVMSigner, error) {
	privateKey, err := crypto.HexToECDSA(strings.TrimPrefix(hexKey, "0x"))
	if err != nil {
		return nil, fmt.Errorf("invalid private key: %w", err)
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = time.Second
	}
	if log == nil {
		log = logrus.StandardLogger()
	}

	return &EVMSigner{
		backend:    backend,
		chainID:    big.NewInt(chainID),
		privateKey: privateKey,
		from:       crypto.PubkeyToAddress(privateKey.PublicKey),
		cfg:        cfg,
		log:        log.WithField("component", "evm-signer"),
	}, nil
}

// Account returns the address derived from the signing key
func (e *EVMSigner) Account() (common.Address, error) {
	if e.privateKey == nil {
		return common.Address{}, ErrNotConnected
	}
	return e.from, nil
}

// ReadContract executes a read-only call against the latest block
func (e *EVMSigner) ReadContract(ctx context.Context, contract common.Address, data []byte) ([]byte, error) {
	return e.backend.CallContract(ctx, ethereum.CallMsg{
		From: e.from,
		To:   &contract,
		Data: data,
	}, nil)
}

// BalanceAt returns the native balance of account
func (e *EVMSigner) BalanceAt(ctx context.Context, account common.Address) (*big.Int, error) {
	return e.backend.BalanceAt(ctx, account, nil)
}

// Simulate dry-runs the intent and fills in gas parameters
func (e *EVMSigner) Simulate(ctx context.Context, intent types.TransactionIntent) (*PreparedTx, error) {
	msg := ethereum.CallMsg{
		From:  e.from,
		To:    &intent.Target,
		Value: intent.Value,
		Data:  intent.CallData,
	}

	if _, err := e.backend.CallContract(ctx, msg, nil); err != nil {
		return nil, fmt.Errorf("simulation reverted: %w", err)
	}

	gasLimit, err := e.gasLimit(ctx, msg, intent.Gas)
	if err != nil {
		return nil, err
	}

	gasPrice, err := e.gasPrice(ctx, intent.GasPrice)
	if err != nil {
		return nil, err
	}

	e.log.WithFields(logrus.Fields{
		"kind":      intent.Kind,
		"target":    intent.Target.Hex(),
		"gas":       gasLimit,
		"gas_price": gasPrice.String(),
	}).Debug("transaction simulated")

	return &PreparedTx{
		Intent:   intent,
		From:     e.from,
		Gas:      gasLimit,
		GasPrice: gasPrice,
	}, nil
}

func (e *EVMSigner) gasLimit(ctx context.Context, msg ethereum.CallMsg, hint uint64) (uint64, error) {
	if e.cfg.GasLimit != nil {
		return *e.cfg.GasLimit, nil
	}

	estimated, err := e.backend.EstimateGas(ctx, msg)
	if err != nil {
		if hint > 0 {
			return hint, nil
		}
		return 0, fmt.Errorf("failed to estimate gas: %w", err)
	}
	// Add 20% buffer
	gas := estimated * 120 / 100
	if hint > gas {
		gas = hint
	}
	return gas, nil
}

func (e *EVMSigner) gasPrice(ctx context.Context, hint *big.Int) (*big.Int, error) {
	if e.cfg.GasPrice != nil {
		return big.NewInt(*e.cfg.GasPrice), nil
	}
	if hint != nil && hint.Sign() > 0 {
		return new(big.Int).Set(hint), nil
	}

	gasPrice, err := e.backend.SuggestGasPrice(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get gas price: %w", err)
	}
	return gasPrice, nil
}

// SignTypedData signs EIP-712 typed data
func (e *EVMSigner) SignTypedData(_ context.Context, data apitypes.TypedData) ([]byte, error) {
	hash, _, err := apitypes.TypedDataAndHash(data)
	if err != nil {
		return nil, fmt.Errorf("failed to hash typed data: %w", err)
	}

	sig, err := crypto.Sign(hash, e.privateKey)
	if err != nil {
		return nil, fmt.Errorf("failed to sign typed data: %w", err)
	}
	sig[crypto.RecoveryIDOffset] += 27

	return sig, nil
}

// Submit signs the prepared transaction and broadcasts it
func (e *EVMSigner) Submit(ctx context.Context, prepared *PreparedTx) (common.Hash, error) {
	nonce, err := e.backend.PendingNonceAt(ctx, e.from)
	if err != nil {
		return common.Hash{}, fmt.Errorf("failed to get nonce: %w", err)
	}

	value := prepared.Intent.Value
	if value == nil {
		value = new(big.Int)
	}
	to := prepared.Intent.Target

	tx := ethtypes.NewTx(&ethtypes.LegacyTx{
		Nonce:    nonce,
		GasPrice: prepared.GasPrice,
		Gas:      prepared.Gas,
		To:       &to,
		Value:    value,
		Data:     prepared.Intent.CallData,
	})

	signedTx, err := ethtypes.SignTx(tx, ethtypes.NewEIP155Signer(e.chainID), e.privateKey)
	if err != nil {
		return common.Hash{}, fmt.Errorf("failed to sign transaction: %w", err)
	}

	if err := e.backend.SendTransaction(ctx, signedTx); err != nil {
		return common.Hash{}, fmt.Errorf("failed to send transaction: %w", err)
	}

	e.log.WithFields(logrus.Fields{
		"kind":  prepared.Intent.Kind,
		"hash":  signedTx.Hash().Hex(),
		"nonce": nonce,
	}).Info("transaction submitted")

	return signedTx.Hash(), nil
}

// WaitReceipt polls for the receipt until the transaction is mined
func (e *EVMSigner) WaitReceipt(ctx context.Context, hash common.Hash) (*ethtypes.Receipt, error) {
	if e.cfg.ReceiptTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.cfg.ReceiptTimeout)
		defer cancel()
	}

	ticker := time.NewTicker(e.cfg.PollInterval)
	defer ticker.Stop()

	for {
		receipt, err := e.backend.TransactionReceipt(ctx, hash)
		if err == nil {
			return receipt, nil
		}
		if !errors.Is(err, ethereum.NotFound) {
			return nil, fmt.Errorf("failed to get transaction receipt: %w", err)
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
		}
	}
}

// Receipt returns the receipt of hash; ethereum.NotFound means still pending
func (e *EVMSigner) Receipt(ctx context.Context, hash common.Hash) (*ethtypes.Receipt, error) {
	return e.backend.TransactionReceipt(ctx, hash)
}

// Close closes the client connection
func (e *EVMSigner) Close() {
	if e.closer != nil {
		e.closer()
	}
}
