package cmd

import (
	"bufio"
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"swapdash/pkg/history"
	"swapdash/pkg/orchestrator"
	"swapdash/pkg/quote"
	"swapdash/pkg/types"
)

func TestTruncateString(t *testing.T) {
	tests := []struct {
		in   string
		max  int
		want string
	}{
		{"short", 10, "short"},
		{"0x1234567890abcdef", 10, "0x12345..."},
		{"abcdef", 3, "abc"},
	}
	for _, tt := range tests {
		require.Equal(t, tt.want, truncateString(tt.in, tt.max))
	}
	require.Equal(t, "3f2a9c01", shortID("3f2a9c01-aaaa-bbbb"))
}

func TestEntryDetails(t *testing.T) {
	tests := []struct {
		name  string
		entry history.Entry
		want  string
	}{
		{
			name:  "swap",
			entry: history.Entry{SellToken: "USDC", BuyToken: "ETH", Amount: "10"},
			want:  "10 USDC -> ETH",
		},
		{
			name:  "payout",
			entry: history.Entry{SellToken: "USDC", Amount: "100", Recipient: "002010077777777771"},
			want:  "100 USDC -> 002010077777777771",
		},
		{
			name:  "no recipient",
			entry: history.Entry{SellToken: "ETH", Amount: "1"},
			want:  "1 ETH",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.Equal(t, tt.want, entryDetails(tt.entry))
		})
	}
}

func TestReadLines(t *testing.T) {
	lines := readLines(bufio.NewReader(strings.NewReader("sell usdc\r\namount 10\nswap")))

	var got []string
	for line := range lines {
		got = append(got, line)
	}
	require.Equal(t, []string{"sell usdc", "amount 10", "swap"}, got)
}

func TestLinePrompt(t *testing.T) {
	tests := []struct {
		answer string
		want   bool
	}{
		{"y", true},
		{" YES ", true},
		{"n", false},
		{"", false},
	}
	for _, tt := range tests {
		lines := make(chan string, 1)
		lines <- tt.answer
		ok, err := linePrompt(lines)(context.Background(), "Proceed?")
		require.NoError(t, err)
		require.Equal(t, tt.want, ok, tt.answer)
	}
}

func TestLinePrompt_Cancelled(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	_, err := linePrompt(make(chan string))(ctx, "Proceed?")
	require.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestQuoteErrorText(t *testing.T) {
	err := types.NewQuoteError("Unable to fetch a quote. Please try again.", &quote.UpstreamError{StatusCode: 429, Err: errors.New("rate limited")})
	require.Equal(t, "Unable to fetch a quote. Please try again. (HTTP 429)", quoteErrorText(err))

	require.Equal(t, "Enter an amount.", quoteErrorText(types.NewValidationError("Enter an amount.")))
}

func TestRunOutput(t *testing.T) {
	out := runOutput(orchestrator.Status{
		RunID: "abc",
		Kind:  orchestrator.KindSwap,
		Phase: orchestrator.PhaseIdle,
		Err:   types.NewSignatureRejected(errors.New("declined")),
	})
	require.Equal(t, "SignatureRejected", out["error_kind"])
	require.Equal(t, "Request rejected in wallet.", out["error"])
	require.NotContains(t, out, "message")

	out = runOutput(orchestrator.Status{Phase: orchestrator.PhaseCompleted, Message: "Sent 1 ETH."})
	require.Equal(t, "Sent 1 ETH.", out["message"])
	require.NotContains(t, out, "error")
}
