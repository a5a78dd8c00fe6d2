// Package depositflow drives the ordered on-chain write sequence that opens
// a position: token approval, deposit, and optional certificate mint. The
// sequence has a real ordering dependency (the new position's index equals
// the owner's position count observed before the deposit is submitted), so
// the flow is modeled as an explicit state machine rather than loose flags.
package depositflow

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/common"

	"github.com/Olcmyk/Hodlock/reward"
)

// State is the flow's current step. Idle is both the initial state and the
// state every failure returns to; Done is terminal until the request
// materially changes.
type State uint8

const (
	StateIdle State = iota
	StateApproving
	StateDepositing
	StateMinting
	StateDone
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateApproving:
		return "approving"
	case StateDepositing:
		return "depositing"
	case StateMinting:
		return "minting"
	case StateDone:
		return "done"
	default:
		return fmt.Sprintf("unknown(%d)", uint8(s))
	}
}

// MaxApproval is the unbounded allowance submitted on approval, avoiding
// repeated approvals for future deposits.
var MaxApproval = new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), 256), big.NewInt(1))

var (
	// ErrFlowInFlight is returned when Run is called while a step is in
	// flight or awaiting confirmation. Only one flow may be active.
	ErrFlowInFlight = errors.New("deposit flow already in flight")
	// ErrFlowCompleted is returned when Run is called again after Done
	// without a material change to the request.
	ErrFlowCompleted = errors.New("deposit flow already completed for this request")
	// ErrAllowanceNotEffective is returned when a confirmed approval still
	// leaves the re-read allowance below the deposit amount.
	ErrAllowanceNotEffective = errors.New("allowance below deposit amount after approval confirmed")
)

// Validation failures, rejected before any chain call is attempted.
var (
	ErrInvalidAmount   = errors.New("deposit amount must be positive")
	ErrLockTooShort    = errors.New("lock duration below the minimum")
	ErrInvalidPenalty  = errors.New("penalty rate outside the permitted range")
	ErrPenaltyConflict = errors.New("permanent-lock flag conflicts with custom penalty rate")
	ErrMissingPool     = errors.New("pool address is required")
	ErrMissingToken    = errors.New("token address is required")
)

// --- Function Type Definitions for Dependencies ---

type ReadAllowanceFunc func(ctx context.Context, token, owner, spender common.Address) (*big.Int, error)
type ReadDepositCountFunc func(ctx context.Context, pool, owner common.Address) (uint64, error)
type ApproveFunc func(ctx context.Context, token, spender common.Address, amount *big.Int) (common.Hash, error)
type DepositFunc func(ctx context.Context, pool common.Address, amount *big.Int, lockSeconds, penaltyBps uint64, referrer common.Address) (common.Hash, error)
type MintCertificateFunc func(ctx context.Context, pool common.Address, index uint64) (common.Hash, error)

// WaitFunc blocks until the transaction is confirmed, returning an error on
// revert. A context deadline expiring inside WaitFunc is how "never
// confirms" becomes visible; the flow surfaces it as a retryable failure.
type WaitFunc func(ctx context.Context, tx common.Hash) error

// Config wires a Flow's dependencies.
type Config struct {
	Owner            common.Address
	ReadAllowance    ReadAllowanceFunc
	ReadDepositCount ReadDepositCountFunc
	Approve          ApproveFunc
	Deposit          DepositFunc
	MintCertificate  MintCertificateFunc
	Wait             WaitFunc
}

func (c *Config) validate() error {
	if c.Owner == (common.Address{}) {
		return errors.New("owner address is required")
	}
	if c.ReadAllowance == nil {
		return errors.New("read allowance function is required")
	}
	if c.ReadDepositCount == nil {
		return errors.New("read deposit count function is required")
	}
	if c.Approve == nil {
		return errors.New("approve function is required")
	}
	if c.Deposit == nil {
		return errors.New("deposit function is required")
	}
	if c.MintCertificate == nil {
		return errors.New("mint certificate function is required")
	}
	if c.Wait == nil {
		return errors.New("wait function is required")
	}
	return nil
}

// Request is the user's input to one deposit flow.
type Request struct {
	Pool        common.Address
	Token       common.Address
	Amount      *big.Int
	LockSeconds uint64
	PenaltyBps  uint64

	// NoEarlyWithdraw commits the depositor to the full penalty; it is
	// mutually exclusive with a custom PenaltyBps.
	NoEarlyWithdraw bool

	// MintCertificate mints the proof-of-position token right after the
	// deposit confirms.
	MintCertificate bool

	Referrer common.Address
}

// validate enforces the client-side preconditions before any chain call.
func (r *Request) validate() error {
	if r.Pool == (common.Address{}) {
		return ErrMissingPool
	}
	if r.Token == (common.Address{}) {
		return ErrMissingToken
	}
	if r.Amount == nil || r.Amount.Sign() <= 0 {
		return ErrInvalidAmount
	}
	if !reward.ValidLockDuration(r.LockSeconds) {
		return ErrLockTooShort
	}
	if r.NoEarlyWithdraw {
		if r.PenaltyBps != reward.PermanentLockBps {
			return ErrPenaltyConflict
		}
	} else if r.PenaltyBps == reward.PermanentLockBps || !reward.ValidPenaltyBps(r.PenaltyBps) {
		return ErrInvalidPenalty
	}
	return nil
}

// materiallyEqual reports whether two requests describe the same submission.
// A material change is what resets a completed flow back to Idle.
func (r *Request) materiallyEqual(other *Request) bool {
	if other == nil {
		return false
	}
	return r.Pool == other.Pool &&
		r.Token == other.Token &&
		r.Amount.Cmp(other.Amount) == 0 &&
		r.LockSeconds == other.LockSeconds &&
		r.PenaltyBps == other.PenaltyBps &&
		r.NoEarlyWithdraw == other.NoEarlyWithdraw &&
		r.MintCertificate == other.MintCertificate &&
		r.Referrer == other.Referrer
}

// Result reports a completed flow.
type Result struct {
	// PositionIndex is the new position's index: the owner's position
	// count snapshotted immediately before the deposit was submitted.
	PositionIndex uint64
	DepositTx     common.Hash
	MintTx        common.Hash
}

// StepError wraps a failure at a particular step. The flow is back at Idle
// and may be retried; steps that already confirmed are not re-run.
type StepError struct {
	Step State
	Err  error
}

func (e *StepError) Error() string {
	return fmt.Sprintf("deposit flow failed while %s: %v", e.Step, e.Err)
}

func (e *StepError) Unwrap() error {
	return e.Err
}

// Flow is a single-session deposit orchestrator. Methods are safe for
// concurrent use, but only one Run may be in flight at a time.
type Flow struct {
	cfg Config

	mu       sync.Mutex
	inFlight bool
	state    State
	req      *Request

	// Progress confirmed so far for req; preserved across retries so no
	// confirmed step ever re-runs.
	approvalDone  bool
	countSnapshot uint64
	snapshotTaken bool
	depositDone   bool
	depositTx     common.Hash

	// lastAllowance is the allowance captured before any approval was
	// submitted, kept so NeedsApproval stays answerable on input changes.
	lastAllowance *big.Int
}

// NewFlow validates the configuration and returns an idle Flow.
func NewFlow(cfg Config) (*Flow, error) {
	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("invalid deposit flow configuration: %w", err)
	}
	return &Flow{cfg: cfg, state: StateIdle}, nil
}

// State returns the flow's current step.
func (f *Flow) State() State {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.state
}

// NeedsApproval reports whether the last captured allowance covers the
// amount. Before any Run it returns true pessimistically.
func (f *Flow) NeedsApproval(amount *big.Int) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.lastAllowance == nil {
		return true
	}
	return f.lastAllowance.Cmp(amount) < 0
}

// Run drives the flow for the request until Done, resuming from the last
// confirmed step when retrying after a failure. A request that materially
// differs from the previous one resets all progress first.
func (f *Flow) Run(ctx context.Context, req Request) (*Result, error) {
	if err := req.validate(); err != nil {
		return nil, err
	}

	if err := f.begin(&req); err != nil {
		return nil, err
	}
	result, err := f.run(ctx, &req)
	f.finish(err == nil)
	return result, err
}

// begin claims the single in-flight slot and reconciles stored progress
// with the incoming request.
func (f *Flow) begin(req *Request) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.inFlight {
		return ErrFlowInFlight
	}
	if f.req != nil && !req.materiallyEqual(f.req) {
		// Material input change: drop all prior progress.
		f.approvalDone = false
		f.snapshotTaken = false
		f.depositDone = false
		f.depositTx = common.Hash{}
		f.state = StateIdle
	} else if f.state == StateDone {
		return ErrFlowCompleted
	}
	f.req = req
	f.inFlight = true
	return nil
}

func (f *Flow) finish(done bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.inFlight = false
	if done {
		f.state = StateDone
	} else {
		// Failures return to Idle; confirmed-step flags survive so a
		// retry resumes rather than re-running.
		f.state = StateIdle
	}
}

func (f *Flow) setState(s State) {
	f.mu.Lock()
	f.state = s
	f.mu.Unlock()
}

func (f *Flow) run(ctx context.Context, req *Request) (*Result, error) {
	if !f.depositDone {
		if err := f.ensureAllowance(ctx, req); err != nil {
			return nil, err
		}
		if err := f.ensureSnapshot(ctx, req); err != nil {
			return nil, err
		}
		if err := f.submitDeposit(ctx, req); err != nil {
			return nil, err
		}
	}

	result := &Result{PositionIndex: f.countSnapshot, DepositTx: f.depositTx}
	if req.MintCertificate {
		mintTx, err := f.submitMint(ctx, req)
		if err != nil {
			return nil, err
		}
		result.MintTx = mintTx
	}
	return result, nil
}

// ensureAllowance enters Approving only when the current allowance is below
// the deposit amount; otherwise the step is skipped entirely. Success from
// submission alone is never assumed: the approval is awaited and the
// allowance re-read before the flow proceeds.
func (f *Flow) ensureAllowance(ctx context.Context, req *Request) error {
	if f.approvalDone {
		return nil
	}

	allowance, err := f.cfg.ReadAllowance(ctx, req.Token, f.cfg.Owner, req.Pool)
	if err != nil {
		return &StepError{Step: StateIdle, Err: fmt.Errorf("failed to read allowance: %w", err)}
	}
	f.mu.Lock()
	f.lastAllowance = new(big.Int).Set(allowance)
	f.mu.Unlock()

	if allowance.Cmp(req.Amount) >= 0 {
		f.approvalDone = true
		return nil
	}

	f.setState(StateApproving)
	tx, err := f.cfg.Approve(ctx, req.Token, req.Pool, MaxApproval)
	if err != nil {
		return &StepError{Step: StateApproving, Err: err}
	}
	if err := f.cfg.Wait(ctx, tx); err != nil {
		return &StepError{Step: StateApproving, Err: err}
	}

	confirmed, err := f.cfg.ReadAllowance(ctx, req.Token, f.cfg.Owner, req.Pool)
	if err != nil {
		return &StepError{Step: StateApproving, Err: fmt.Errorf("failed to re-read allowance: %w", err)}
	}
	if confirmed.Cmp(req.Amount) < 0 {
		return &StepError{Step: StateApproving, Err: ErrAllowanceNotEffective}
	}
	f.mu.Lock()
	f.lastAllowance = new(big.Int).Set(confirmed)
	f.mu.Unlock()

	f.approvalDone = true
	return nil
}

// ensureSnapshot captures the owner's position count for the target pool
// before the deposit is submitted. The pool assigns indices by pre-deposit
// count, so this snapshot IS the new position's index; reading the count
// after the deposit would race with the deposit's own increment.
func (f *Flow) ensureSnapshot(ctx context.Context, req *Request) error {
	if f.snapshotTaken {
		return nil
	}
	count, err := f.cfg.ReadDepositCount(ctx, req.Pool, f.cfg.Owner)
	if err != nil {
		return &StepError{Step: StateIdle, Err: fmt.Errorf("failed to snapshot position count: %w", err)}
	}
	f.countSnapshot = count
	f.snapshotTaken = true
	return nil
}

func (f *Flow) submitDeposit(ctx context.Context, req *Request) error {
	f.setState(StateDepositing)
	tx, err := f.cfg.Deposit(ctx, req.Pool, req.Amount, req.LockSeconds, req.PenaltyBps, req.Referrer)
	if err != nil {
		return &StepError{Step: StateDepositing, Err: err}
	}
	if err := f.cfg.Wait(ctx, tx); err != nil {
		return &StepError{Step: StateDepositing, Err: err}
	}
	f.depositTx = tx
	f.depositDone = true
	return nil
}

func (f *Flow) submitMint(ctx context.Context, req *Request) (common.Hash, error) {
	f.setState(StateMinting)
	tx, err := f.cfg.MintCertificate(ctx, req.Pool, f.countSnapshot)
	if err != nil {
		return common.Hash{}, &StepError{Step: StateMinting, Err: err}
	}
	if err := f.cfg.Wait(ctx, tx); err != nil {
		return common.Hash{}, &StepError{Step: StateMinting, Err: err}
	}
	return tx, nil
}
