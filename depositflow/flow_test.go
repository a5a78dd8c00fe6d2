package depositflow

import (
	"context"
	"errors"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Olcmyk/Hodlock/reward"
)

var (
	testOwner    = common.HexToAddress("0xCAFE")
	testPool     = common.HexToAddress("0x11")
	testToken    = common.HexToAddress("0x22")
	testReferrer = common.HexToAddress("0x33")
)

// fakeChain simulates the pool and token contracts behind the flow's
// function dependencies, recording every interaction.
type fakeChain struct {
	allowance *big.Int
	count     uint64

	approveCalls int
	countReads   int
	depositCalls int
	mintCalls    int
	waited       []common.Hash

	approvedAmount *big.Int

	failApprove      bool
	failDepositOnce  bool
	failMintOnce     bool
	failWaitOnce     bool
	approveNoEffect  bool
	statesSeen       []State
	observeState     func() State
}

// errStuckTx stands in for a submitted transaction that never confirms
// before the wait deadline.
var errStuckTx = errors.New("transaction not confirmed before deadline")

func newFakeChain() *fakeChain {
	return &fakeChain{allowance: big.NewInt(0)}
}

func (c *fakeChain) record() {
	if c.observeState != nil {
		c.statesSeen = append(c.statesSeen, c.observeState())
	}
}

func (c *fakeChain) flowConfig() Config {
	return Config{
		Owner: testOwner,
		ReadAllowance: func(ctx context.Context, token, owner, spender common.Address) (*big.Int, error) {
			return new(big.Int).Set(c.allowance), nil
		},
		ReadDepositCount: func(ctx context.Context, pool, owner common.Address) (uint64, error) {
			c.countReads++
			return c.count, nil
		},
		Approve: func(ctx context.Context, token, spender common.Address, amount *big.Int) (common.Hash, error) {
			c.record()
			c.approveCalls++
			if c.failApprove {
				return common.Hash{}, errors.New("rpc error")
			}
			c.approvedAmount = new(big.Int).Set(amount)
			if !c.approveNoEffect {
				c.allowance = new(big.Int).Set(amount)
			}
			return common.HexToHash("0xA1"), nil
		},
		Deposit: func(ctx context.Context, pool common.Address, amount *big.Int, lockSeconds, penaltyBps uint64, referrer common.Address) (common.Hash, error) {
			c.record()
			c.depositCalls++
			if c.failDepositOnce {
				c.failDepositOnce = false
				return common.Hash{}, errors.New("rpc error")
			}
			c.count++
			return common.HexToHash("0xD1"), nil
		},
		MintCertificate: func(ctx context.Context, pool common.Address, index uint64) (common.Hash, error) {
			c.record()
			c.mintCalls++
			if c.failMintOnce {
				c.failMintOnce = false
				return common.Hash{}, errors.New("rpc error")
			}
			return common.HexToHash("0xE1"), nil
		},
		Wait: func(ctx context.Context, tx common.Hash) error {
			if c.failWaitOnce {
				c.failWaitOnce = false
				return errStuckTx
			}
			c.waited = append(c.waited, tx)
			return nil
		},
	}
}

func validRequest() Request {
	return Request{
		Pool:            testPool,
		Token:           testToken,
		Amount:          big.NewInt(1000),
		LockSeconds:     30 * reward.SecondsPerDay,
		PenaltyBps:      1000,
		MintCertificate: true,
		Referrer:        testReferrer,
	}
}

// --- Test Suite ---

func TestRunFullFlow(t *testing.T) {
	chain := newFakeChain()
	chain.count = 3 // pre-existing positions; the new index must be 3

	flow, err := NewFlow(chain.flowConfig())
	require.NoError(t, err)
	chain.observeState = flow.State

	assert.Equal(t, StateIdle, flow.State())
	assert.True(t, flow.NeedsApproval(big.NewInt(1)), "pessimistic before any allowance read")

	result, err := flow.Run(context.Background(), validRequest())
	require.NoError(t, err)

	assert.Equal(t, uint64(3), result.PositionIndex, "index is the pre-deposit count")
	assert.Equal(t, common.HexToHash("0xD1"), result.DepositTx)
	assert.Equal(t, common.HexToHash("0xE1"), result.MintTx)
	assert.Equal(t, StateDone, flow.State())

	// The write steps ran in order, each observed in its own state.
	assert.Equal(t, []State{StateApproving, StateDepositing, StateMinting}, chain.statesSeen)
	assert.Equal(t, 1, chain.approveCalls)
	assert.Equal(t, 0, MaxApproval.Cmp(chain.approvedAmount), "approval is for the maximum, not the deposit amount")
	assert.Len(t, chain.waited, 3, "every submission is awaited")
	assert.False(t, flow.NeedsApproval(big.NewInt(1000)))
}

func TestRunSkipsApprovalWhenAllowanceSufficient(t *testing.T) {
	chain := newFakeChain()
	chain.allowance = big.NewInt(5000)

	flow, err := NewFlow(chain.flowConfig())
	require.NoError(t, err)
	chain.observeState = flow.State

	req := validRequest()
	req.MintCertificate = false
	result, err := flow.Run(context.Background(), req)
	require.NoError(t, err)

	assert.Equal(t, uint64(0), result.PositionIndex)
	assert.Equal(t, 0, chain.approveCalls, "sufficient allowance must skip the approval step")
	assert.Equal(t, []State{StateDepositing}, chain.statesSeen)
	assert.Equal(t, common.Hash{}, result.MintTx)
}

func TestRunValidation(t *testing.T) {
	testCases := []struct {
		name    string
		mutate  func(r *Request)
		wantErr error
	}{
		{"Missing pool", func(r *Request) { r.Pool = common.Address{} }, ErrMissingPool},
		{"Missing token", func(r *Request) { r.Token = common.Address{} }, ErrMissingToken},
		{"Nil amount", func(r *Request) { r.Amount = nil }, ErrInvalidAmount},
		{"Zero amount", func(r *Request) { r.Amount = big.NewInt(0) }, ErrInvalidAmount},
		{"Lock below one day", func(r *Request) { r.LockSeconds = reward.MinLockSeconds - 1 }, ErrLockTooShort},
		{"Penalty below the custom range", func(r *Request) { r.PenaltyBps = reward.MinCustomPenaltyBps - 1 }, ErrInvalidPenalty},
		{"Penalty above the custom range", func(r *Request) { r.PenaltyBps = reward.MaxCustomPenaltyBps + 1 }, ErrInvalidPenalty},
		{"Full penalty without the no-early-withdraw commitment", func(r *Request) { r.PenaltyBps = reward.PermanentLockBps }, ErrInvalidPenalty},
		{"No-early-withdraw with a custom penalty", func(r *Request) {
			r.NoEarlyWithdraw = true
			r.PenaltyBps = 1000
		}, ErrPenaltyConflict},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			chain := newFakeChain()
			flow, err := NewFlow(chain.flowConfig())
			require.NoError(t, err)

			req := validRequest()
			tc.mutate(&req)
			_, err = flow.Run(context.Background(), req)
			require.ErrorIs(t, err, tc.wantErr)
			assert.Equal(t, 0, chain.depositCalls, "an invalid request must never reach the chain")
		})
	}
}

func TestRunNoEarlyWithdraw(t *testing.T) {
	chain := newFakeChain()
	chain.allowance = big.NewInt(5000)
	flow, err := NewFlow(chain.flowConfig())
	require.NoError(t, err)

	req := validRequest()
	req.MintCertificate = false
	req.NoEarlyWithdraw = true
	req.PenaltyBps = reward.PermanentLockBps

	_, err = flow.Run(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, 1, chain.depositCalls)
}

func TestRunApprovalNotEffective(t *testing.T) {
	chain := newFakeChain()
	chain.approveNoEffect = true

	flow, err := NewFlow(chain.flowConfig())
	require.NoError(t, err)

	_, err = flow.Run(context.Background(), validRequest())
	require.ErrorIs(t, err, ErrAllowanceNotEffective)

	var stepErr *StepError
	require.ErrorAs(t, err, &stepErr)
	assert.Equal(t, StateApproving, stepErr.Step)
	assert.Equal(t, StateIdle, flow.State(), "a failed run returns to Idle")
	assert.Equal(t, 0, chain.depositCalls, "the deposit must never be submitted on an unconfirmed approval")
}

func TestRunRetryResumesAfterDepositFailure(t *testing.T) {
	chain := newFakeChain()
	chain.count = 5
	chain.failDepositOnce = true

	flow, err := NewFlow(chain.flowConfig())
	require.NoError(t, err)

	req := validRequest()
	req.MintCertificate = false

	_, err = flow.Run(context.Background(), req)
	var stepErr *StepError
	require.ErrorAs(t, err, &stepErr)
	assert.Equal(t, StateDepositing, stepErr.Step)
	assert.Equal(t, StateIdle, flow.State())

	result, err := flow.Run(context.Background(), req)
	require.NoError(t, err)

	assert.Equal(t, uint64(5), result.PositionIndex, "the snapshot from the first attempt is reused")
	assert.Equal(t, 1, chain.approveCalls, "the confirmed approval is not re-run")
	assert.Equal(t, 1, chain.countReads, "the snapshot is not re-taken")
	assert.Equal(t, 2, chain.depositCalls)
}

func TestRunRetryResumesAfterConfirmationFailure(t *testing.T) {
	chain := newFakeChain()
	chain.count = 3
	chain.allowance = big.NewInt(1000)

	// The deposit submits fine but its confirmation wait fails, so the
	// deposit is not treated as done.
	chain.failWaitOnce = true

	flow, err := NewFlow(chain.flowConfig())
	require.NoError(t, err)

	_, err = flow.Run(context.Background(), validRequest())
	var stepErr *StepError
	require.ErrorAs(t, err, &stepErr)
	assert.Equal(t, StateDepositing, stepErr.Step)
	require.ErrorIs(t, err, errStuckTx)
	assert.Equal(t, StateIdle, flow.State())
	assert.Equal(t, 1, chain.depositCalls)

	result, err := flow.Run(context.Background(), validRequest())
	require.NoError(t, err)

	assert.Equal(t, uint64(3), result.PositionIndex, "the snapshot from the first attempt is reused")
	assert.Equal(t, 1, chain.countReads, "the snapshot is not re-taken")
	assert.Equal(t, 0, chain.approveCalls, "the sufficient allowance never needed approval")
	assert.Equal(t, 2, chain.depositCalls, "the unconfirmed deposit is re-submitted")
	assert.Equal(t, 1, chain.mintCalls)
	assert.Equal(t, StateDone, flow.State())
}

func TestRunRetryResumesAfterMintFailure(t *testing.T) {
	chain := newFakeChain()
	chain.failMintOnce = true

	flow, err := NewFlow(chain.flowConfig())
	require.NoError(t, err)

	req := validRequest()
	_, err = flow.Run(context.Background(), req)
	var stepErr *StepError
	require.ErrorAs(t, err, &stepErr)
	assert.Equal(t, StateMinting, stepErr.Step)

	result, err := flow.Run(context.Background(), req)
	require.NoError(t, err)

	assert.Equal(t, 1, chain.depositCalls, "the confirmed deposit is not re-run")
	assert.Equal(t, 2, chain.mintCalls)
	assert.Equal(t, common.HexToHash("0xD1"), result.DepositTx)
	assert.Equal(t, common.HexToHash("0xE1"), result.MintTx)
}

func TestRunCompletedFlow(t *testing.T) {
	chain := newFakeChain()
	flow, err := NewFlow(chain.flowConfig())
	require.NoError(t, err)

	req := validRequest()
	req.MintCertificate = false
	_, err = flow.Run(context.Background(), req)
	require.NoError(t, err)

	// Re-running the identical request is refused.
	_, err = flow.Run(context.Background(), req)
	require.ErrorIs(t, err, ErrFlowCompleted)

	// A materially different request starts a fresh flow.
	changed := req
	changed.Amount = big.NewInt(2000)
	result, err := flow.Run(context.Background(), changed)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), result.PositionIndex, "the fresh flow snapshots the new count")
	assert.Equal(t, 2, chain.depositCalls)
}

func TestStateString(t *testing.T) {
	assert.Equal(t, "idle", StateIdle.String())
	assert.Equal(t, "approving", StateApproving.String())
	assert.Equal(t, "depositing", StateDepositing.String())
	assert.Equal(t, "minting", StateMinting.String())
	assert.Equal(t, "done", StateDone.String())
}
