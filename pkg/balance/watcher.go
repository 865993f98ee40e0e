// Package balance keeps an account's balances fresh by re-reading them
// whenever a transaction that moves funds confirms.
package balance

import (
	"context"
	"fmt"
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"swapdash/pkg/chain"
	"swapdash/pkg/events"
	"swapdash/pkg/tokens"
	"swapdash/pkg/types"
)

const refreshTimeout = 30 * time.Second

// Balance is one token balance in base units
type Balance struct {
	Token  types.Token
	Amount *big.Int
}

// Display formats the balance truncated to precision fractional digits
func (b Balance) Display(precision int) string {
	return tokens.FormatUnits(b.Amount, b.Token.Decimals, precision)
}

// Snapshot is the set of balances read in one refresh
type Snapshot struct {
	Account  common.Address
	Balances []Balance
	At       time.Time
}

// Watcher re-reads balances on every "balances changed" event
type Watcher struct {
	reader  chain.Reader
	account common.Address
	tokens  []types.Token
	log     logrus.FieldLogger

	ctx    context.Context
	cancel context.CancelFunc

	mu          sync.Mutex
	latest      Snapshot
	onUpdate    func(Snapshot)
	unsubscribe func()
}

// NewWatcher creates a watcher for the given tokens of account
func NewWatcher(reader chain.Reader, account common.Address, list []types.Token, log logrus.FieldLogger) *Watcher {
	if log == nil {
		log = logrus.StandardLogger()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Watcher{
		reader:  reader,
		account: account,
		tokens:  list,
		log:     log.WithField("component", "balance"),
		ctx:     ctx,
		cancel:  cancel,
	}
}

// Refresh reads every balance concurrently
func (w *Watcher) Refresh(ctx context.Context) (Snapshot, error) {
	results := make([]Balance, len(w.tokens))

	g, ctx := errgroup.WithContext(ctx)
	for i, token := range w.tokens {
		i, token := i, token
		g.Go(func() error {
			var (
				amount *big.Int
				err    error
			)
			if token.IsNative() {
				amount, err = w.reader.BalanceAt(ctx, w.account)
			} else {
				amount, err = chain.ReadBalance(ctx, w.reader, token.Address, w.account)
			}
			if err != nil {
				return fmt.Errorf("failed to read %s balance: %w", token, err)
			}
			results[i] = Balance{Token: token, Amount: amount}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return Snapshot{}, err
	}

	snap := Snapshot{Account: w.account, Balances: results, At: time.Now()}

	w.mu.Lock()
	w.latest = snap
	fn := w.onUpdate
	w.mu.Unlock()

	if fn != nil {
		fn(snap)
	}
	return snap, nil
}

// Start subscribes to bus; the subscription ends with Close
func (w *Watcher) Start(bus *events.Bus) {
	unsubscribe := bus.Subscribe(events.BalancesChanged, func() {
		ctx, cancel := context.WithTimeout(w.ctx, refreshTimeout)
		defer cancel()

		if _, err := w.Refresh(ctx); err != nil {
			w.log.WithError(err).Warn("balance refresh failed")
		}
	})

	w.mu.Lock()
	defer w.mu.Unlock()
	if w.unsubscribe != nil {
		w.unsubscribe()
	}
	w.unsubscribe = unsubscribe
}

// OnUpdate sets the func called after every successful refresh
func (w *Watcher) OnUpdate(fn func(Snapshot)) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.onUpdate = fn
}

// Latest returns the last snapshot read
func (w *Watcher) Latest() Snapshot {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.latest
}

// Close unsubscribes and aborts in-flight refreshes
func (w *Watcher) Close() {
	w.cancel()

	w.mu.Lock()
	defer w.mu.Unlock()
	if w.unsubscribe != nil {
		w.unsubscribe()
		w.unsubscribe = nil
	}
}
