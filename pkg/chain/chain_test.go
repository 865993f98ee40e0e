package chain

import (
	"context"
	"errors"
	"math/big"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	gethmath "github.com/ethereum/go-ethereum/common/math"
	ethtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/signer/core/apitypes"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"

	"swapdash/config"
	"swapdash/pkg/types"
)

const testKey = "b71c71a67e1177ad4e901695e1b4b9ee17ae16c6668d313eac2f96dbcda3f291"

type fakeBackend struct {
	mu          sync.Mutex
	callErr     error
	callResult  []byte
	estimate    uint64
	estimateErr error
	gasPrice    *big.Int
	sent        []*ethtypes.Transaction
	pendingPoll int
	receipt     *ethtypes.Receipt
}

func (f *fakeBackend) CallContract(_ context.Context, _ ethereum.CallMsg, _ *big.Int) ([]byte, error) {
	return f.callResult, f.callErr
}

func (f *fakeBackend) EstimateGas(_ context.Context, _ ethereum.CallMsg) (uint64, error) {
	return f.estimate, f.estimateErr
}

func (f *fakeBackend) PendingNonceAt(_ context.Context, _ common.Address) (uint64, error) {
	return 7, nil
}

func (f *fakeBackend) SuggestGasPrice(_ context.Context) (*big.Int, error) {
	return f.gasPrice, nil
}

func (f *fakeBackend) SendTransaction(_ context.Context, tx *ethtypes.Transaction) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, tx)
	return nil
}

func (f *fakeBackend) TransactionReceipt(_ context.Context, _ common.Hash) (*ethtypes.Receipt, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.pendingPoll > 0 {
		f.pendingPoll--
		return nil, ethereum.NotFound
	}
	return f.receipt, nil
}

func (f *fakeBackend) BalanceAt(_ context.Context, _ common.Address, _ *big.Int) (*big.Int, error) {
	return big.NewInt(1), nil
}

func newTestSigner(t *testing.T, backend Backend, cfg config.ChainConfig) *EVMSigner {
	t.Helper()
	logger := logrus.New()
	logger.SetLevel(logrus.WarnLevel)
	s, err := NewEVMSigner(backend, 1, "0x"+testKey, cfg, logger)
	require.NoError(t, err)
	return s
}

func TestAppendSignature(t *testing.T) {
	callData := []byte{0xaa, 0xbb}
	sig := make([]byte, 65)
	for i := range sig {
		sig[i] = byte(i)
	}

	out := AppendSignature(callData, sig)

	require.Len(t, out, 2+32+65)
	require.Equal(t, callData, out[:2])
	word := out[2:34]
	require.Equal(t, make([]byte, 31), word[:31])
	require.Equal(t, byte(65), word[31])
	require.Equal(t, sig, out[34:])
}

func TestAppendSignature_DoesNotAliasInput(t *testing.T) {
	callData := make([]byte, 2, 64)
	out := AppendSignature(callData, []byte{1})
	out[0] = 0xff
	require.Equal(t, byte(0), callData[0])
}

func TestPackSelectors(t *testing.T) {
	owner := common.HexToAddress("0x1111111111111111111111111111111111111111")
	spender := common.HexToAddress("0x2222222222222222222222222222222222222222")

	allowance, err := PackAllowance(owner, spender)
	require.NoError(t, err)
	require.Equal(t, "0xdd62ed3e", hexutil.Encode(allowance[:4]))
	require.Len(t, allowance, 4+64)

	approve, err := PackApprove(spender, MaxAllowance)
	require.NoError(t, err)
	require.Equal(t, "0x095ea7b3", hexutil.Encode(approve[:4]))

	transfer, err := PackTransfer(owner, big.NewInt(5))
	require.NoError(t, err)
	require.Equal(t, "0xa9059cbb", hexutil.Encode(transfer[:4]))

	balance, err := PackBalanceOf(owner)
	require.NoError(t, err)
	require.Equal(t, "0x70a08231", hexutil.Encode(balance[:4]))

	disperse, err := PackDisperseToken(spender, []common.Address{owner}, []*big.Int{big.NewInt(1)})
	require.NoError(t, err)
	require.Len(t, disperse, 4+32*7)
}

func TestUnpackUint256(t *testing.T) {
	v, err := UnpackUint256(common.LeftPadBytes(big.NewInt(1234).Bytes(), 32))
	require.NoError(t, err)
	require.Equal(t, int64(1234), v.Int64())

	_, err = UnpackUint256([]byte{1, 2})
	require.Error(t, err)
}

func TestReadAllowance(t *testing.T) {
	backend := &fakeBackend{callResult: common.LeftPadBytes(big.NewInt(500).Bytes(), 32)}
	s := newTestSigner(t, backend, config.ChainConfig{})

	got, err := ReadAllowance(context.Background(), s, common.Address{1}, common.Address{2}, common.Address{3})
	require.NoError(t, err)
	require.Equal(t, int64(500), got.Int64())
}

func TestEVMSigner_SimulateRevert(t *testing.T) {
	backend := &fakeBackend{callErr: errors.New("execution reverted")}
	s := newTestSigner(t, backend, config.ChainConfig{})

	_, err := s.Simulate(context.Background(), types.TransactionIntent{Kind: types.IntentSwap})
	require.ErrorContains(t, err, "reverted")
}

func TestEVMSigner_SimulateGas(t *testing.T) {
	override := uint64(90_000)
	price := int64(3)

	tests := []struct {
		name      string
		backend   *fakeBackend
		cfg       config.ChainConfig
		intent    types.TransactionIntent
		wantGas   uint64
		wantPrice int64
	}{
		{
			name:      "estimate with buffer",
			backend:   &fakeBackend{estimate: 100_000, gasPrice: big.NewInt(10)},
			wantGas:   120_000,
			wantPrice: 10,
		},
		{
			name:      "pricing hints",
			backend:   &fakeBackend{estimate: 100_000, gasPrice: big.NewInt(10)},
			intent:    types.TransactionIntent{Gas: 300_000, GasPrice: big.NewInt(20)},
			wantGas:   300_000,
			wantPrice: 20,
		},
		{
			name:      "configured overrides",
			backend:   &fakeBackend{estimate: 100_000, gasPrice: big.NewInt(10)},
			cfg:       config.ChainConfig{GasLimit: &override, GasPrice: &price},
			intent:    types.TransactionIntent{GasPrice: big.NewInt(20)},
			wantGas:   90_000,
			wantPrice: 3,
		},
		{
			name:      "estimate failure falls back to hint",
			backend:   &fakeBackend{estimateErr: errors.New("boom"), gasPrice: big.NewInt(10)},
			intent:    types.TransactionIntent{Gas: 50_000},
			wantGas:   50_000,
			wantPrice: 10,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newTestSigner(t, tt.backend, tt.cfg)
			prepared, err := s.Simulate(context.Background(), tt.intent)
			require.NoError(t, err)
			require.Equal(t, tt.wantGas, prepared.Gas)
			require.Equal(t, tt.wantPrice, prepared.GasPrice.Int64())
		})
	}
}

func TestEVMSigner_Submit(t *testing.T) {
	backend := &fakeBackend{estimate: 21_000, gasPrice: big.NewInt(1)}
	s := newTestSigner(t, backend, config.ChainConfig{})

	intent := types.TransactionIntent{
		Kind:   types.IntentDirectTransfer,
		Target: common.HexToAddress("0x3333333333333333333333333333333333333333"),
		Value:  big.NewInt(1000),
	}
	prepared, err := s.Simulate(context.Background(), intent)
	require.NoError(t, err)

	hash, err := s.Submit(context.Background(), prepared)
	require.NoError(t, err)
	require.Len(t, backend.sent, 1)

	tx := backend.sent[0]
	require.Equal(t, hash, tx.Hash())
	require.Equal(t, uint64(7), tx.Nonce())
	require.Equal(t, int64(1000), tx.Value().Int64())

	sender, err := ethtypes.Sender(ethtypes.NewEIP155Signer(big.NewInt(1)), tx)
	require.NoError(t, err)
	account, err := s.Account()
	require.NoError(t, err)
	require.Equal(t, account, sender)
}

func TestEVMSigner_SignTypedData(t *testing.T) {
	s := newTestSigner(t, &fakeBackend{}, config.ChainConfig{})

	data := apitypes.TypedData{
		Types: apitypes.Types{
			"EIP712Domain": {{Name: "name", Type: "string"}, {Name: "chainId", Type: "uint256"}},
			"Note":         {{Name: "contents", Type: "string"}},
		},
		PrimaryType: "Note",
		Domain:      apitypes.TypedDataDomain{Name: "Test", ChainId: gethmath.NewHexOrDecimal256(1)},
		Message:     apitypes.TypedDataMessage{"contents": "hello"},
	}

	sig, err := s.SignTypedData(context.Background(), data)
	require.NoError(t, err)
	require.Len(t, sig, 65)
	require.Contains(t, []byte{27, 28}, sig[64])

	hash, _, err := apitypes.TypedDataAndHash(data)
	require.NoError(t, err)
	recoverable := append([]byte{}, sig...)
	recoverable[64] -= 27
	pub, err := crypto.SigToPub(hash, recoverable)
	require.NoError(t, err)

	account, _ := s.Account()
	require.Equal(t, account, crypto.PubkeyToAddress(*pub))
}

func TestEVMSigner_WaitReceipt(t *testing.T) {
	backend := &fakeBackend{
		pendingPoll: 2,
		receipt:     &ethtypes.Receipt{Status: ethtypes.ReceiptStatusSuccessful},
	}
	s := newTestSigner(t, backend, config.ChainConfig{PollInterval: time.Millisecond})

	receipt, err := s.WaitReceipt(context.Background(), common.Hash{1})
	require.NoError(t, err)
	require.Equal(t, ethtypes.ReceiptStatusSuccessful, receipt.Status)
}

func TestEVMSigner_WaitReceiptCancelled(t *testing.T) {
	backend := &fakeBackend{pendingPoll: 1 << 30}
	s := newTestSigner(t, backend, config.ChainConfig{PollInterval: time.Millisecond})

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := s.WaitReceipt(ctx, common.Hash{1})
	require.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestEVMSigner_Receipt(t *testing.T) {
	backend := &fakeBackend{
		pendingPoll: 1,
		receipt:     &ethtypes.Receipt{Status: ethtypes.ReceiptStatusFailed},
	}
	s := newTestSigner(t, backend, config.ChainConfig{})

	_, err := s.Receipt(context.Background(), common.Hash{1})
	require.ErrorIs(t, err, ethereum.NotFound)

	receipt, err := s.Receipt(context.Background(), common.Hash{1})
	require.NoError(t, err)
	require.Equal(t, ethtypes.ReceiptStatusFailed, receipt.Status)
}

func TestConfirming_Rejects(t *testing.T) {
	backend := &fakeBackend{estimate: 21_000, gasPrice: big.NewInt(1)}
	inner := newTestSigner(t, backend, config.ChainConfig{})

	var prompts []string
	c := NewConfirming(inner, func(_ context.Context, prompt string) (bool, error) {
		prompts = append(prompts, prompt)
		return false, nil
	})

	prepared, err := c.Simulate(context.Background(), types.TransactionIntent{Kind: types.IntentApproval})
	require.NoError(t, err)

	_, err = c.Submit(context.Background(), prepared)
	require.ErrorIs(t, err, ErrUserRejected)
	require.Empty(t, backend.sent)

	_, err = c.SignTypedData(context.Background(), apitypes.TypedData{PrimaryType: "PermitTransferFrom"})
	require.ErrorIs(t, err, ErrUserRejected)
	require.Len(t, prompts, 2)
	require.Contains(t, prompts[0], "approval")
}
