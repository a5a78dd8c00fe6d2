package positions

import (
	"context"
	"fmt"
	"math/big"
	"sync"
	"time"

	ethclients "github.com/Iwinswap/iwinswap-ethclients"
	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"

	hodlockabi "github.com/Olcmyk/Hodlock/abi"
	"github.com/Olcmyk/Hodlock/catalog"
)

const (
	// defaultRPCTimeout bounds each individual view call.
	defaultRPCTimeout = 10 * time.Second

	// DefaultBatchSize bounds simultaneous in-flight record reads to avoid
	// RPC rate-limit rejection.
	DefaultBatchSize = 10

	// DefaultBatchDelay is the pause inserted between batches.
	DefaultBatchDelay = 200 * time.Millisecond
)

// Aggregator lists a user's positions across an entire catalog. A zero
// value is not usable; construct with NewAggregator.
type Aggregator struct {
	batchSize  int
	batchDelay time.Duration

	// retries is how many times a failed record read is retried before the
	// entry is dropped from the result. The default of zero surfaces each
	// failure once, by omission.
	retries int
}

// Option configures an Aggregator.
type Option func(*Aggregator)

// WithBatchSize overrides the in-flight read bound.
func WithBatchSize(n int) Option {
	return func(a *Aggregator) {
		if n > 0 {
			a.batchSize = n
		}
	}
}

// WithBatchDelay overrides the pause between batches.
func WithBatchDelay(d time.Duration) Option {
	return func(a *Aggregator) {
		if d >= 0 {
			a.batchDelay = d
		}
	}
}

// WithRetries enables automatic retry of failed per-entry reads.
func WithRetries(n int) Option {
	return func(a *Aggregator) {
		if n >= 0 {
			a.retries = n
		}
	}
}

// NewAggregator returns an Aggregator with the default batching parameters.
func NewAggregator(opts ...Option) *Aggregator {
	a := &Aggregator{
		batchSize:  DefaultBatchSize,
		batchDelay: DefaultBatchDelay,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// workItem identifies one (pool, index) pair to read.
type workItem struct {
	descriptor catalog.PoolDescriptor
	index      uint64
}

// List enumerates every live position the owner holds in every catalog pool.
//
// Aggregation is best-effort: a failed read drops only that entry, and the
// dropped entries' errors are returned alongside the result. Withdrawn
// positions are excluded entirely. List performs no caching; it is safe to
// call again after any confirmed write to refresh the view, and two calls
// with no intervening writes produce the same set.
func (a *Aggregator) List(ctx context.Context, owner common.Address, cat *catalog.Catalog, client ethclients.ETHClient) ([]Position, []error) {
	pools := cat.Pools()
	if len(pools) == 0 {
		return nil, nil
	}

	// Step 1: position count per pool, one parallel read each.
	counts := make([]uint64, len(pools))
	countErrs := make([]error, len(pools))
	var wg sync.WaitGroup
	wg.Add(len(pools))
	for i, descriptor := range pools {
		go func(index int, pool common.Address) {
			defer wg.Done()
			if ctx.Err() != nil {
				countErrs[index] = ctx.Err()
				return
			}
			count, err := readDepositCount(ctx, client, pool, owner)
			if err != nil {
				countErrs[index] = fmt.Errorf("pool %s: failed to read position count: %w", pool.Hex(), err)
				return
			}
			counts[index] = count
		}(i, descriptor.PoolAddress)
	}
	wg.Wait()

	var failed []error
	var work []workItem
	for i, descriptor := range pools {
		if countErrs[i] != nil {
			failed = append(failed, countErrs[i])
			continue
		}
		for index := uint64(0); index < counts[i]; index++ {
			work = append(work, workItem{descriptor: descriptor, index: index})
		}
	}
	if len(work) == 0 {
		return nil, failed
	}

	// Step 2: process the work list in fixed-size batches with a short
	// delay between batches. Results land at their work-list index so the
	// output preserves (pool, index) order regardless of arrival order.
	results := make([]*Position, len(work))
	readErrs := make([]error, len(work))
	for start := 0; start < len(work); start += a.batchSize {
		end := min(start+a.batchSize, len(work))

		var batch sync.WaitGroup
		batch.Add(end - start)
		for i := start; i < end; i++ {
			go func(slot int, item workItem) {
				defer batch.Done()
				position, err := a.readPosition(ctx, client, owner, item)
				if err != nil {
					readErrs[slot] = err
					return
				}
				results[slot] = position
			}(i, work[i])
		}
		batch.Wait()

		if end < len(work) && a.batchDelay > 0 {
			select {
			case <-time.After(a.batchDelay):
			case <-ctx.Done():
				return collect(results, append(failed, readErrs...))
			}
		}
	}

	return collect(results, append(failed, readErrs...))
}

// collect flattens the result slots, dropping gaps, and strips nil errors.
func collect(results []*Position, errs []error) ([]Position, []error) {
	var out []Position
	for _, p := range results {
		if p != nil {
			out = append(out, *p)
		}
	}
	var failed []error
	for _, err := range errs {
		if err != nil {
			failed = append(failed, err)
		}
	}
	return out, failed
}

// readPosition reads one position record plus its certificate and pending
// reward annotations. A nil position with nil error means the record exists
// but is withdrawn. An entry is included only when every read for it
// succeeds; a half-annotated position would misrepresent on-chain state.
func (a *Aggregator) readPosition(ctx context.Context, client ethclients.ETHClient, owner common.Address, item workItem) (*Position, error) {
	record, err := a.readWithRetry(ctx, func() (*depositRecord, error) {
		return readDeposit(ctx, client, item.descriptor.PoolAddress, owner, item.index)
	})
	if err != nil {
		return nil, fmt.Errorf("pool %s position %d: %w", item.descriptor.PoolAddress.Hex(), item.index, err)
	}
	if record.withdrawn {
		return nil, nil
	}

	hasCertificate, err := readHasNFT(ctx, client, item.descriptor.PoolAddress, owner, item.index)
	if err != nil {
		return nil, fmt.Errorf("pool %s position %d: failed to read certificate: %w", item.descriptor.PoolAddress.Hex(), item.index, err)
	}
	pendingReward, err := readPendingReward(ctx, client, item.descriptor.PoolAddress, owner, item.index)
	if err != nil {
		return nil, fmt.Errorf("pool %s position %d: failed to read pending reward: %w", item.descriptor.PoolAddress.Hex(), item.index, err)
	}

	return &Position{
		Pool:              item.descriptor.PoolAddress,
		Token:             item.descriptor.TokenAddress,
		Symbol:            item.descriptor.Symbol,
		Index:             item.index,
		Principal:         record.amount,
		OriginalPrincipal: record.originalAmount,
		Share:             record.share,
		RewardDebt:        record.rewardDebt,
		DepositedAt:       record.depositTimestamp,
		UnlocksAt:         record.unlockTimestamp,
		PenaltyBps:        record.penaltyBps,
		HasCertificate:    hasCertificate,
		PendingReward:     pendingReward,
	}, nil
}

func (a *Aggregator) readWithRetry(ctx context.Context, read func() (*depositRecord, error)) (*depositRecord, error) {
	var lastErr error
	for attempt := 0; attempt <= a.retries; attempt++ {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		record, err := read()
		if err == nil {
			return record, nil
		}
		lastErr = err
	}
	return nil, lastErr
}

// depositRecord is the raw 8-tuple returned by the pool's position getter.
type depositRecord struct {
	amount           *big.Int
	originalAmount   *big.Int
	share            *big.Int
	rewardDebt       *big.Int
	depositTimestamp uint64
	unlockTimestamp  uint64
	penaltyBps       uint64
	withdrawn        bool
}

func readDepositCount(ctx context.Context, client ethclients.ETHClient, pool, owner common.Address) (uint64, error) {
	callData, err := hodlockabi.HodlockABI.Pack("getDepositCount", owner)
	if err != nil {
		return 0, err
	}
	data, err := callContract(ctx, client, pool, callData)
	if err != nil {
		return 0, err
	}
	if len(data) != 32 {
		return 0, fmt.Errorf("invalid response length for getDepositCount: got %d bytes", len(data))
	}
	return new(big.Int).SetBytes(data).Uint64(), nil
}

func readDeposit(ctx context.Context, client ethclients.ETHClient, pool, owner common.Address, index uint64) (*depositRecord, error) {
	callData, err := hodlockabi.HodlockABI.Pack("userDeposits", owner, new(big.Int).SetUint64(index))
	if err != nil {
		return nil, err
	}
	data, err := callContract(ctx, client, pool, callData)
	if err != nil {
		return nil, err
	}
	// The record is eight static values packed into 32-byte slots.
	if len(data) != 256 {
		return nil, fmt.Errorf("invalid response length for userDeposits: got %d bytes", len(data))
	}
	return &depositRecord{
		amount:           new(big.Int).SetBytes(data[0:32]),
		originalAmount:   new(big.Int).SetBytes(data[32:64]),
		share:            new(big.Int).SetBytes(data[64:96]),
		rewardDebt:       new(big.Int).SetBytes(data[96:128]),
		depositTimestamp: new(big.Int).SetBytes(data[128:160]).Uint64(),
		unlockTimestamp:  new(big.Int).SetBytes(data[160:192]).Uint64(),
		penaltyBps:       new(big.Int).SetBytes(data[192:224]).Uint64(),
		withdrawn:        data[255] != 0,
	}, nil
}

func readHasNFT(ctx context.Context, client ethclients.ETHClient, pool, owner common.Address, index uint64) (bool, error) {
	callData, err := hodlockabi.HodlockABI.Pack("hasNFT", owner, new(big.Int).SetUint64(index))
	if err != nil {
		return false, err
	}
	data, err := callContract(ctx, client, pool, callData)
	if err != nil {
		return false, err
	}
	if len(data) != 32 {
		return false, fmt.Errorf("invalid response length for hasNFT: got %d bytes", len(data))
	}
	return data[31] != 0, nil
}

func readPendingReward(ctx context.Context, client ethclients.ETHClient, pool, owner common.Address, index uint64) (*big.Int, error) {
	callData, err := hodlockabi.HodlockABI.Pack("pendingReward", owner, new(big.Int).SetUint64(index))
	if err != nil {
		return nil, err
	}
	data, err := callContract(ctx, client, pool, callData)
	if err != nil {
		return nil, err
	}
	if len(data) != 32 {
		return nil, fmt.Errorf("invalid response length for pendingReward: got %d bytes", len(data))
	}
	return new(big.Int).SetBytes(data), nil
}

// callContract performs a single eth_call with the package's RPC timeout.
func callContract(parentCtx context.Context, client ethclients.ETHClient, to common.Address, data []byte) ([]byte, error) {
	ctx, cancel := context.WithTimeout(parentCtx, defaultRPCTimeout)
	defer cancel()
	return client.CallContract(ctx, ethereum.CallMsg{To: &to, Data: data}, nil)
}
