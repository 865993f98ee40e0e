package history

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/require"

	"swapdash/pkg/types"
)

func TestStorage_RecordAndReload(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "history.json")

	s, err := NewStorage(path)
	require.NoError(t, err)
	require.Zero(t, s.Count())

	start := time.Now().Add(-time.Minute)
	err = s.Record(Entry{
		Kind:      "swap",
		Started:   start,
		Finished:  start.Add(30 * time.Second),
		Outcome:   OutcomeCompleted,
		SellToken: "USDT",
		BuyToken:  "ETH",
		Amount:    "10",
		Transactions: []types.TransactionRecord{
			{IntentKind: types.IntentApproval, Hash: common.Hash{1}, Status: types.ConfirmationConfirmed},
			{IntentKind: types.IntentSwap, Hash: common.Hash{2}, Status: types.ConfirmationConfirmed},
		},
	})
	require.NoError(t, err)

	_, err = os.Stat(path + ".tmp")
	require.True(t, os.IsNotExist(err))

	reloaded, err := NewStorage(path)
	require.NoError(t, err)
	require.Equal(t, 1, reloaded.Count())

	runs := reloaded.List("")
	require.Len(t, runs, 1)
	require.NotEmpty(t, runs[0].ID)
	require.Equal(t, 30*time.Second, runs[0].Duration())
	require.Len(t, runs[0].Transactions, 2)
	require.Equal(t, types.IntentApproval, runs[0].Transactions[0].IntentKind)

	got, err := reloaded.Get(runs[0].ID[:8])
	require.NoError(t, err)
	require.Equal(t, "USDT", got.SellToken)
}

func TestStorage_ListNewestFirstAndFilter(t *testing.T) {
	s, err := NewStorage(filepath.Join(t.TempDir(), "history.json"))
	require.NoError(t, err)

	base := time.Now()
	require.NoError(t, s.Record(Entry{ID: "a", Kind: "swap", Finished: base, Outcome: OutcomeCompleted}))
	require.NoError(t, s.Record(Entry{ID: "b", Kind: "payout", Finished: base.Add(time.Second), Outcome: OutcomeFailed, ErrorKind: "ValidationError"}))
	require.NoError(t, s.Record(Entry{ID: "c", Kind: "swap", Finished: base.Add(2 * time.Second), Outcome: OutcomeFailed}))

	all := s.List("")
	require.Equal(t, []string{"c", "b", "a"}, []string{all[0].ID, all[1].ID, all[2].ID})

	swaps := s.List("swap")
	require.Len(t, swaps, 2)

	require.Error(t, s.Record(Entry{ID: "a"}))
	_, err = s.Get("zzz")
	require.Error(t, err)
}

func TestStorage_CorruptFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "history.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0600))

	_, err := NewStorage(path)
	require.Error(t, err)
}
