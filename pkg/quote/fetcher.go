// Package quote keeps a live swap quote in step with user input.
//
// Every input change restarts a quiet-period timer; only when the input has
// been stable for the debounce window is the pricing service called. Responses
// are applied only if no newer input arrived while they were in flight.
package quote

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/sirupsen/logrus"

	"swapdash/pkg/client"
	"swapdash/pkg/metrics"
	"swapdash/pkg/tokens"
	"swapdash/pkg/types"
)

var (
	ErrEmptyAmount  = errors.New("empty amount")
	ErrNoValidInput = errors.New("no valid input")
)

// UpstreamError is a failed pricing request; StatusCode is 0 when the
// service was unreachable
type UpstreamError struct {
	StatusCode int
	Err        error
}

func (e *UpstreamError) Error() string {
	if e.StatusCode == 0 {
		return fmt.Sprintf("pricing service unavailable: %v", e.Err)
	}
	return fmt.Sprintf("pricing service returned %d: %v", e.StatusCode, e.Err)
}

func (e *UpstreamError) Unwrap() error {
	return e.Err
}

// Pricer is the remote pricing service
type Pricer interface {
	GetQuote(ctx context.Context, req client.PriceRequest) (*client.PriceResponse, error)
}

// Input is the user-editable part of a swap
type Input struct {
	Sell   types.Token
	Buy    types.Token
	Amount string
	Taker  common.Address
}

func (in Input) equal(other Input) bool {
	return in.Sell.Same(other.Sell) &&
		in.Buy.Same(other.Buy) &&
		strings.TrimSpace(in.Amount) == strings.TrimSpace(other.Amount) &&
		in.Taker == other.Taker
}

// Snapshot is the displayed quote state for one input
type Snapshot struct {
	Input      Input
	Quote      *types.Quote
	BuyDisplay string
	Err        error
	Loading    bool
}

// Options configures a Fetcher
type Options struct {
	ChainID  int64
	Debounce time.Duration
	// DisplayDecimals caps the fractional digits of BuyDisplay; 0 keeps the
	// buy token's full precision.
	DisplayDecimals int
	Logger          logrus.FieldLogger
	Metrics         *metrics.Recorder
}

// Fetcher is a debounced, last-requested-wins quote source
type Fetcher struct {
	pricer Pricer
	opts   Options
	log    logrus.FieldLogger

	ctx    context.Context
	cancel context.CancelFunc

	mu     sync.Mutex
	seq    uint64
	input  Input
	amount *big.Int
	state  Snapshot
	timer  *time.Timer
	closed bool

	version uint64

	// deliverMu serializes observer delivery; never acquired under mu
	deliverMu sync.Mutex
	delivered uint64
	observers map[int]func(Snapshot)
	nextObsID int
}

// NewFetcher creates a Fetcher
func NewFetcher(pricer Pricer, opts Options) *Fetcher {
	if opts.Logger == nil {
		opts.Logger = logrus.StandardLogger()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Fetcher{
		pricer:    pricer,
		opts:      opts,
		log:       opts.Logger.WithField("component", "quote"),
		ctx:       ctx,
		cancel:    cancel,
		observers: make(map[int]func(Snapshot)),
	}
}

// Validate converts the input amount to base units, rejecting anything that
// must not reach the network
func Validate(in Input) (*big.Int, error) {
	if strings.TrimSpace(in.Amount) == "" {
		return nil, &types.Error{Kind: types.KindValidation, Message: "Enter an amount.", Err: ErrEmptyAmount}
	}
	if in.Sell.IsZero() || in.Buy.IsZero() {
		return nil, noValidInput("Select both tokens.", nil)
	}
	if in.Sell.Same(in.Buy) {
		return nil, noValidInput("Select two different tokens.", nil)
	}

	amount, err := tokens.ParseUnits(in.Amount, in.Sell.Decimals)
	if err != nil {
		switch {
		case errors.Is(err, tokens.ErrTooManyDecimals):
			return nil, noValidInput(fmt.Sprintf("%s supports at most %d decimals.", in.Sell, in.Sell.Decimals), err)
		case errors.Is(err, tokens.ErrNonPositiveAmount):
			return nil, noValidInput("Amount must be greater than 0.", err)
		default:
			return nil, noValidInput("Enter a valid amount.", err)
		}
	}
	return amount, nil
}

func noValidInput(message string, cause error) *types.Error {
	err := ErrNoValidInput
	if cause != nil {
		err = fmt.Errorf("%w: %v", ErrNoValidInput, cause)
	}
	return &types.Error{Kind: types.KindValidation, Message: message, Err: err}
}

// SetInput records a change to any input field. Invalid input clears the
// held quote immediately; valid input schedules a fetch after the quiet
// period, cancelling any pending one.
func (f *Fetcher) SetInput(in Input) {
	f.mu.Lock()
	if f.closed {
		f.mu.Unlock()
		return
	}

	f.seq++
	f.input = in
	f.stopTimerLocked()

	amount, err := Validate(in)
	if err != nil {
		f.amount = nil
		f.state = Snapshot{Input: in, Err: err}
		f.publishLocked()
		return
	}

	f.amount = amount
	f.state = Snapshot{Input: in, Loading: true}
	seq := f.seq
	f.timer = time.AfterFunc(f.opts.Debounce, func() {
		f.fire(seq, in, amount)
	})
	f.publishLocked()
}

func (f *Fetcher) stopTimerLocked() {
	if f.timer != nil {
		f.timer.Stop()
		f.timer = nil
	}
}

func (f *Fetcher) fire(seq uint64, in Input, amount *big.Int) {
	f.mu.Lock()
	if f.closed || seq != f.seq {
		f.mu.Unlock()
		return
	}
	f.timer = nil
	f.mu.Unlock()

	q, display, err := f.request(f.ctx, in, amount)

	f.mu.Lock()
	if f.closed || seq != f.seq || !f.input.equal(in) {
		f.mu.Unlock()
		f.opts.Metrics.QuoteRequest("stale")
		f.log.WithField("amount", in.Amount).Debug("discarding superseded quote")
		return
	}
	f.state = Snapshot{Input: in, Quote: q, BuyDisplay: display, Err: err}
	f.publishLocked()
}

// Fetch validates and quotes in once, without debounce or shared state
func (f *Fetcher) Fetch(ctx context.Context, in Input) (Snapshot, error) {
	amount, err := Validate(in)
	if err != nil {
		return Snapshot{Input: in, Err: err}, err
	}
	q, display, err := f.request(ctx, in, amount)
	return Snapshot{Input: in, Quote: q, BuyDisplay: display, Err: err}, err
}

func (f *Fetcher) request(ctx context.Context, in Input, amount *big.Int) (*types.Quote, string, error) {
	log := f.log.WithFields(logrus.Fields{
		"sell":   in.Sell.String(),
		"buy":    in.Buy.String(),
		"amount": amount.String(),
	})
	log.Debug("requesting quote")

	resp, err := f.pricer.GetQuote(ctx, client.PriceRequest{
		ChainID:    f.opts.ChainID,
		SellToken:  in.Sell.Address,
		BuyToken:   in.Buy.Address,
		SellAmount: amount,
		Taker:      in.Taker,
	})
	if err != nil {
		f.opts.Metrics.QuoteRequest("error")
		log.WithError(err).Warn("quote request failed")
		return nil, "", upstreamError(err)
	}

	parsed, err := resp.Parse()
	if err != nil {
		f.opts.Metrics.QuoteRequest("error")
		log.WithError(err).Warn("invalid quote response")
		return nil, "", types.NewQuoteError("Received an invalid quote. Please try again.", err)
	}
	f.opts.Metrics.QuoteRequest("success")

	q := &types.Quote{
		SellToken:  in.Sell,
		BuyToken:   in.Buy,
		SellAmount: new(big.Int).Set(amount),
		BuyAmount:  parsed.BuyAmount,
		Taker:      in.Taker,
		Permit:     parsed.Permit,
		FetchedAt:  time.Now(),
	}
	if parsed.Tx != nil {
		q.Tx = &types.TxPayload{
			To:       parsed.Tx.To,
			Data:     parsed.Tx.Data,
			Gas:      parsed.Tx.Gas,
			GasPrice: parsed.Tx.GasPrice,
			Value:    parsed.Tx.Value,
		}
	}

	return q, tokens.FormatUnits(parsed.BuyAmount, in.Buy.Decimals, f.opts.DisplayDecimals), nil
}

func upstreamError(err error) error {
	upstream := &UpstreamError{Err: err}
	var apiErr *client.APIError
	if errors.As(err, &apiErr) {
		upstream.StatusCode = apiErr.StatusCode
	}
	return types.NewQuoteError("Unable to fetch a quote. Please try again.", upstream)
}

// Current returns the displayed state
func (f *Fetcher) Current() Snapshot {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.state
}

// IsCurrent reports whether q still matches the current input
func (f *Fetcher) IsCurrent(q *types.Quote) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.amount == nil {
		return false
	}
	return q.Matches(f.input.Sell, f.input.Buy, f.amount, f.input.Taker)
}

// ClearAmount drops the amount and the held quote, keeping the token
// selection
func (f *Fetcher) ClearAmount() {
	f.mu.Lock()
	if f.closed {
		f.mu.Unlock()
		return
	}
	f.seq++
	f.stopTimerLocked()
	f.input.Amount = ""
	f.amount = nil
	f.state = Snapshot{Input: f.input}
	f.publishLocked()
}

// OnUpdate registers fn for every applied snapshot and returns its
// unsubscribe func. fn may call Current but must not call SetInput or
// ClearAmount synchronously.
func (f *Fetcher) OnUpdate(fn func(Snapshot)) func() {
	f.deliverMu.Lock()
	defer f.deliverMu.Unlock()

	id := f.nextObsID
	f.nextObsID++
	f.observers[id] = fn

	return func() {
		f.deliverMu.Lock()
		defer f.deliverMu.Unlock()
		delete(f.observers, id)
	}
}

// publishLocked releases f.mu and hands the state to observers. A snapshot
// older than one already delivered is dropped.
func (f *Fetcher) publishLocked() {
	f.version++
	version, snap := f.version, f.state
	f.mu.Unlock()

	f.deliverMu.Lock()
	defer f.deliverMu.Unlock()
	if version <= f.delivered {
		return
	}
	f.delivered = version
	for _, fn := range f.observers {
		fn(snap)
	}
}

// Close stops the timer and aborts any in-flight request
func (f *Fetcher) Close() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	f.stopTimerLocked()
	f.cancel()
}

// Rate derives the indicative price of one sell unit in buy units
func Rate(q *types.Quote, precision int32) (string, error) {
	if q == nil {
		return "", fmt.Errorf("no quote")
	}
	return tokens.Rate(q.SellAmount, q.SellToken.Decimals, q.BuyAmount, q.BuyToken.Decimals, precision)
}
