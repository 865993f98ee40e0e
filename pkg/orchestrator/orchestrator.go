// Package orchestrator sequences allowance checks, approval transactions and
// execution transactions into a single logical run with one status surface.
//
// Every flow (swap, direct transfer, payout, disperse) is the same machine:
//
//	Idle -> Evaluating -> [ApprovingAwaitingSignature -> ApprovingAwaitingConfirmation]
//	     -> AwaitingSignature -> AwaitingConfirmation -> Completed | Failed
//
// The approval branch exists only for flows that spend an ERC-20 allowance.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ethereum/go-ethereum/common"
	ethtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"swapdash/pkg/allowance"
	"swapdash/pkg/chain"
	"swapdash/pkg/events"
	"swapdash/pkg/history"
	"swapdash/pkg/metrics"
	"swapdash/pkg/types"
)

// Recorder persists finished runs
type Recorder interface {
	Record(entry history.Entry) error
}

// QuoteSource reports whether a held quote still matches the current input
type QuoteSource interface {
	IsCurrent(q *types.Quote) bool
}

// Options configures an Orchestrator
type Options struct {
	// Spender receives the allowance for swaps
	Spender          common.Address
	DisperseContract common.Address
	PayoutToken      types.Token
	PayoutDeposit    common.Address

	// ResetDelay is how long a completed run stays visible before the
	// status returns to Idle
	ResetDelay time.Duration
	// OnReset runs after a completed run of kind is cleared. It must not
	// start a run.
	OnReset func(kind Kind)

	Quotes  QuoteSource
	History Recorder
	Metrics *metrics.Recorder
	Logger  logrus.FieldLogger
}

type approvalPhase struct {
	token   types.Token
	spender common.Address
	amount  *big.Int
}

type runPlan struct {
	kind     Kind
	approval *approvalPhase
	// build produces the execution intent and may request a signature
	build func(ctx context.Context) (types.TransactionIntent, error)
	// check runs right before the execution transaction is submitted
	check   func() error
	success string
	entry   history.Entry
}

type run struct {
	id      string
	plan    *runPlan
	log     logrus.FieldLogger
	started time.Time
	txs     []types.TransactionRecord
}

type stage int

const (
	stageApproval stage = iota
	stageExecution
)

// Orchestrator runs at most one flow at a time
type Orchestrator struct {
	chain chain.Collaborator
	bus   *events.Bus
	opts  Options
	log   logrus.FieldLogger

	ctx    context.Context
	cancel context.CancelFunc

	// slotMu orders taking the run slot against the completion reset
	slotMu  sync.Mutex
	running atomic.Bool

	mu         sync.Mutex
	status     Status
	record     *types.TransactionRecord
	resetTimer *time.Timer
	version    uint64

	deliverMu sync.Mutex
	delivered uint64
	observers map[int]func(Status)
	nextObsID int
}

// New creates an Orchestrator; bus may be nil
func New(collab chain.Collaborator, bus *events.Bus, opts Options) *Orchestrator {
	if opts.Logger == nil {
		opts.Logger = logrus.StandardLogger()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Orchestrator{
		chain:     collab,
		bus:       bus,
		opts:      opts,
		log:       opts.Logger.WithField("component", "orchestrator"),
		ctx:       ctx,
		cancel:    cancel,
		status:    idleStatus(),
		observers: make(map[int]func(Status)),
	}
}

// start takes the run slot, applies the guards and executes the plan.
// Guard failures leave the phase at Idle.
func (o *Orchestrator) start(parent context.Context, kind Kind, guard func(owner common.Address) (*runPlan, error)) error {
	o.slotMu.Lock()
	if !o.running.CompareAndSwap(false, true) {
		o.slotMu.Unlock()
		o.log.WithField("kind", kind).Warn("execute rejected: run in progress")
		return ErrRunInProgress
	}
	o.stopResetTimer()
	o.slotMu.Unlock()
	defer o.running.Store(false)

	owner, err := o.chain.Account()
	if err != nil {
		verr := types.NewValidationError("Connect a wallet first.")
		o.rejectAtIdle(kind, verr)
		return verr
	}

	p, err := guard(owner)
	if err != nil {
		o.rejectAtIdle(kind, err)
		return err
	}

	ctx, cancel := context.WithCancel(parent)
	defer cancel()
	stop := context.AfterFunc(o.ctx, cancel)
	defer stop()

	return o.execute(ctx, owner, p)
}

func (o *Orchestrator) rejectAtIdle(kind Kind, err error) {
	o.log.WithFields(logrus.Fields{
		"kind":  kind,
		"error": err.Error(),
	}).Warn("execute rejected")

	o.update(func(s *Status) {
		*s = idleStatus()
		s.Kind = kind
		s.fail(err)
	})
}

func (o *Orchestrator) execute(ctx context.Context, owner common.Address, p *runPlan) error {
	r := &run{
		id:      uuid.New().String(),
		plan:    p,
		started: time.Now(),
	}
	r.log = o.log.WithFields(logrus.Fields{
		"run_id": r.id,
		"kind":   p.kind,
	})

	o.update(func(s *Status) {
		*s = idleStatus()
		s.RunID = r.id
		s.Kind = p.kind
		s.Phase = PhaseEvaluating
	})
	r.log.Info("run started")

	err := o.steps(ctx, r, owner)
	o.finish(r, err)
	return err
}

func (o *Orchestrator) steps(ctx context.Context, r *run, owner common.Address) error {
	if r.plan.approval != nil {
		if err := o.approve(ctx, r, owner); err != nil {
			return err
		}
	}

	o.setStage(stageExecution, StageAwaitingWalletSignature)
	intent, err := r.plan.build(ctx)
	if err != nil {
		return o.stageFailed(stageExecution, err)
	}

	return o.transact(ctx, r, stageExecution, intent, r.plan.check)
}

// approve runs the allowance check and, when needed, the approval stage
// followed by a fresh allowance read
func (o *Orchestrator) approve(ctx context.Context, r *run, owner common.Address) error {
	a := r.plan.approval
	evaluator := allowance.NewEvaluator(o.chain, a.spender, o.log)

	decision, err := evaluator.Evaluate(ctx, a.token, owner, a.amount)
	if err != nil {
		return err
	}
	if !decision.NeedsApproval {
		o.opts.Metrics.Approval("skipped")
		r.log.WithField("token", a.token.String()).Debug("allowance sufficient, skipping approval")
		return nil
	}

	r.log.WithFields(logrus.Fields{
		"token":    a.token.String(),
		"spender":  a.spender.Hex(),
		"current":  decision.State.Current.String(),
		"required": a.amount.String(),
	}).Info("allowance insufficient, requesting approval")

	o.setStage(stageApproval, StageAwaitingWalletSignature)
	data, err := chain.PackApprove(a.spender, chain.MaxAllowance)
	if err != nil {
		return o.stageFailed(stageApproval, fmt.Errorf("failed to pack approve data: %w", err))
	}

	intent := types.TransactionIntent{
		Kind:     types.IntentApproval,
		Target:   a.token.Address,
		CallData: data,
		Value:    new(big.Int),
	}
	if err := o.transact(ctx, r, stageApproval, intent, nil); err != nil {
		if types.KindOf(err) == types.KindSignatureRejected {
			o.opts.Metrics.Approval("rejected")
		} else {
			o.opts.Metrics.Approval("failed")
		}
		return err
	}
	o.opts.Metrics.Approval("confirmed")

	decision, err = evaluator.Evaluate(ctx, a.token, owner, a.amount)
	if err != nil {
		return err
	}
	if decision.NeedsApproval {
		return types.NewAllowanceInconsistency(fmt.Errorf(
			"allowance %s of %s for %s is below required %s after approval",
			decision.State.Current, a.token, a.spender.Hex(), a.amount))
	}
	return nil
}

// transact simulates, submits and confirms one transaction
func (o *Orchestrator) transact(ctx context.Context, r *run, st stage, intent types.TransactionIntent, check func() error) error {
	o.setStage(st, StageAwaitingWalletSignature)

	prepared, err := o.chain.Simulate(ctx, intent)
	if err != nil {
		return o.stageFailed(st, fmt.Errorf("simulate %s: %w", intent.Kind, err))
	}
	if check != nil {
		if err := check(); err != nil {
			return o.stageFailed(st, err)
		}
	}

	hash, err := o.chain.Submit(ctx, prepared)
	if err != nil {
		return o.stageFailed(st, fmt.Errorf("submit %s: %w", intent.Kind, err))
	}

	rec := &types.TransactionRecord{
		IntentKind: intent.Kind,
		Hash:       hash,
		Status:     types.ConfirmationPending,
	}
	if err := o.track(rec); err != nil {
		return o.stageFailed(st, err)
	}
	o.setStage(st, StageAwaitingChainConfirmation)
	log := r.log.WithField("hash", hash.Hex())
	log.Info("transaction submitted, awaiting confirmation")

	receipt, err := o.chain.WaitReceipt(ctx, hash)
	if err != nil {
		r.txs = append(r.txs, o.resolve(rec, types.ConfirmationFailed))
		return o.stageFailed(st, fmt.Errorf("wait for %s: %w", hash.Hex(), err))
	}
	if receipt.Status != ethtypes.ReceiptStatusSuccessful {
		r.txs = append(r.txs, o.resolve(rec, types.ConfirmationFailed))
		return o.stageFailed(st, fmt.Errorf("transaction %s reverted in block %v", hash.Hex(), receipt.BlockNumber))
	}

	r.txs = append(r.txs, o.resolve(rec, types.ConfirmationConfirmed))
	o.setStage(st, StageConfirmed)
	log.WithField("gas_used", receipt.GasUsed).Info("transaction confirmed")
	return nil
}

// classify converts collaborator failures into the error taxonomy
func classify(err error) error {
	if types.KindOf(err) != types.KindUnknown {
		return err
	}
	if errors.Is(err, chain.ErrUserRejected) {
		return types.NewSignatureRejected(err)
	}
	return types.NewChainError(err)
}

func (o *Orchestrator) stageFailed(st stage, err error) error {
	err = classify(err)
	switch types.KindOf(err) {
	case types.KindSignatureRejected:
		o.setStage(st, StageRejected)
	case types.KindChain:
		o.setStage(st, StageChainError)
	}
	return err
}

func (o *Orchestrator) setStage(st stage, state StageState) {
	o.update(func(s *Status) {
		if st == stageApproval {
			s.Approval = state
			switch state {
			case StageAwaitingWalletSignature:
				s.Phase = PhaseApprovingAwaitingSignature
			case StageAwaitingChainConfirmation:
				s.Phase = PhaseApprovingAwaitingConfirmation
			}
			return
		}

		s.Execution = state
		switch state {
		case StageAwaitingWalletSignature:
			s.Phase = PhaseAwaitingSignature
		case StageAwaitingChainConfirmation:
			s.Phase = PhaseAwaitingConfirmation
		}
	})
}

// track makes rec the live record; only one may be unresolved at a time
func (o *Orchestrator) track(rec *types.TransactionRecord) error {
	o.mu.Lock()
	if !o.record.Resolved() {
		live := o.record.Hash
		o.mu.Unlock()
		return fmt.Errorf("transaction %s is still pending", live.Hex())
	}
	o.record = rec
	copied := *rec
	o.status.Record = &copied
	o.publishLocked()
	return nil
}

func (o *Orchestrator) resolve(rec *types.TransactionRecord, status types.ConfirmationStatus) types.TransactionRecord {
	o.mu.Lock()
	rec.Status = status
	copied := *rec
	o.status.Record = &copied
	o.publishLocked()
	return copied
}

func (o *Orchestrator) finish(r *run, err error) {
	duration := time.Since(r.started)

	o.mu.Lock()
	o.record = nil
	o.mu.Unlock()

	entry := r.plan.entry
	entry.ID = r.id
	entry.Kind = string(r.plan.kind)
	entry.Started = r.started
	entry.Finished = time.Now()
	entry.Transactions = r.txs

	outcome := history.OutcomeCompleted
	if err == nil {
		o.update(func(s *Status) {
			s.Phase = PhaseCompleted
			s.succeed(r.plan.success)
		})
		r.log.WithField("duration", duration.Round(time.Millisecond)).Info("run completed")

		if o.bus != nil {
			o.bus.Emit(events.BalancesChanged)
		}
		o.scheduleReset()
	} else {
		outcome = history.OutcomeFailed
		kind := types.KindOf(err)
		entry.ErrorKind = kind.String()
		entry.Error = err.Error()

		switch kind {
		case types.KindSignatureRejected:
			r.log.Info("request rejected in wallet")
		case types.KindValidation, types.KindQuote:
			r.log.WithError(err).Warn("run failed")
		default:
			r.log.WithError(err).Error("run failed")
		}

		o.update(func(s *Status) {
			s.Phase = PhaseFailed
			s.fail(err)
		})
		if kind == types.KindSignatureRejected {
			o.update(func(s *Status) {
				s.Phase = PhaseIdle
			})
		}
	}

	o.opts.Metrics.RunFinished(string(r.plan.kind), string(outcome), duration)

	if o.opts.History != nil {
		if herr := o.opts.History.Record(entry); herr != nil {
			r.log.WithError(herr).Warn("failed to record run history")
		}
	}
}

func (o *Orchestrator) scheduleReset() {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.resetTimer != nil {
		o.resetTimer.Stop()
	}
	o.resetTimer = time.AfterFunc(o.opts.ResetDelay, o.resetCompleted)
}

func (o *Orchestrator) stopResetTimer() {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.resetTimer != nil {
		o.resetTimer.Stop()
		o.resetTimer = nil
	}
}

// resetCompleted holds slotMu through OnReset; no run can take the slot
// until it returns
func (o *Orchestrator) resetCompleted() {
	o.slotMu.Lock()
	defer o.slotMu.Unlock()

	o.mu.Lock()
	if o.running.Load() || o.status.Phase != PhaseCompleted {
		o.mu.Unlock()
		return
	}
	kind := o.status.Kind
	o.resetTimer = nil
	o.status = idleStatus()
	o.publishLocked()

	if o.opts.OnReset != nil {
		o.opts.OnReset(kind)
	}
}

// Reset clears a terminal status back to Idle; it is a no-op during a run
func (o *Orchestrator) Reset() {
	if o.running.Load() {
		return
	}
	o.mu.Lock()
	if o.status.Phase.Active() {
		o.mu.Unlock()
		return
	}
	o.status = idleStatus()
	o.publishLocked()
}

// Status returns the current status
func (o *Orchestrator) Status() Status {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.status
}

// Running reports whether a run is active
func (o *Orchestrator) Running() bool {
	return o.running.Load()
}

// OnStatus registers fn for every status change and returns its unsubscribe
// func. fn may call Status but must not start a run synchronously.
func (o *Orchestrator) OnStatus(fn func(Status)) func() {
	o.deliverMu.Lock()
	defer o.deliverMu.Unlock()

	id := o.nextObsID
	o.nextObsID++
	o.observers[id] = fn

	return func() {
		o.deliverMu.Lock()
		defer o.deliverMu.Unlock()
		delete(o.observers, id)
	}
}

func (o *Orchestrator) update(fn func(s *Status)) {
	o.mu.Lock()
	fn(&o.status)
	o.publishLocked()
}

// publishLocked releases o.mu and hands the status to observers
func (o *Orchestrator) publishLocked() {
	o.version++
	version, snap := o.version, o.status
	o.mu.Unlock()

	o.deliverMu.Lock()
	defer o.deliverMu.Unlock()
	if version <= o.delivered {
		return
	}
	o.delivered = version
	for _, fn := range o.observers {
		fn(snap)
	}
}

// Close cancels an active run and the pending reset
func (o *Orchestrator) Close() {
	o.cancel()
	o.stopResetTimer()
}
