package catalog

import (
	"context"
	"fmt"
	"math/big"
	"sync"
	"time"

	ethclients "github.com/Iwinswap/iwinswap-ethclients"
	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"golang.org/x/sync/errgroup"

	hodlockabi "github.com/Olcmyk/Hodlock/abi"
)

var (
	// Method signatures for the factory, pool and token view calls, loaded
	// from the ABI package rather than hardcoded hashes.
	allHodlocksLengthSig = hodlockabi.FactoryABI.Methods["allHodlocksLength"].ID
	tokenSig             = hodlockabi.HodlockABI.Methods["token"].ID
	symbolSig            = hodlockabi.ERC20ABI.Methods["symbol"].ID
	nameSig              = hodlockabi.ERC20ABI.Methods["name"].ID
	decimalsSig          = hodlockabi.ERC20ABI.Methods["decimals"].ID
)

const (
	// defaultRPCTimeout bounds each individual view call so a single slow
	// request cannot block a goroutine indefinitely.
	defaultRPCTimeout = 10 * time.Second

	// defaultMaxConcurrentCalls bounds the resolver's read fan-out.
	defaultMaxConcurrentCalls = 16
)

// AllowlistFunc reports whether a token may appear in the catalog. Pools
// bound to tokens outside the allow-list are dropped silently.
type AllowlistFunc func(token common.Address) bool

// Resolver enumerates every pool registered with the factory and resolves
// each to its token and token metadata. Resolve is idempotent and safe to
// call repeatedly; each call produces a fresh Catalog.
type Resolver struct {
	factory            common.Address
	inAllowlist        AllowlistFunc
	maxConcurrentCalls int
}

// NewResolver returns a Resolver for the given factory. The allow-list
// function is required: an unfiltered catalog would surface un-vetted tokens.
func NewResolver(factory common.Address, inAllowlist AllowlistFunc) (*Resolver, error) {
	if factory == (common.Address{}) {
		return nil, fmt.Errorf("factory address is required")
	}
	if inAllowlist == nil {
		return nil, fmt.Errorf("allowlist function is required")
	}
	return &Resolver{
		factory:            factory,
		inAllowlist:        inAllowlist,
		maxConcurrentCalls: defaultMaxConcurrentCalls,
	}, nil
}

// Resolve reads the full pool set from the factory and assembles a Catalog.
//
// A failure reading the pool count or any pool address aborts the whole
// cycle: without the complete address list the catalog would be silently
// truncated. A failure resolving one pool's token or metadata excludes only
// that pool; those errors are returned in skipped so callers can observe
// them without the cycle failing.
func (r *Resolver) Resolve(ctx context.Context, client ethclients.ETHClient) (cat *Catalog, skipped []error, err error) {
	count, err := r.poolCount(ctx, client)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to read pool count: %w", err)
	}
	if count == 0 {
		return New(nil), nil, nil
	}

	pools, err := r.poolAddresses(ctx, client, count)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to enumerate pools: %w", err)
	}

	// Resolve every pool concurrently; results land at the pool's factory
	// index so assembly preserves a stable iteration order.
	descriptors := make([]*PoolDescriptor, count)
	errs := make([]error, count)

	semaphore := make(chan struct{}, r.maxConcurrentCalls)
	var wg sync.WaitGroup
	wg.Add(len(pools))
	for i, pool := range pools {
		semaphore <- struct{}{}
		go func(index int, poolAddr common.Address) {
			defer func() {
				<-semaphore
				wg.Done()
			}()
			if ctx.Err() != nil {
				errs[index] = ctx.Err()
				return
			}
			descriptor, err := r.describePool(ctx, client, poolAddr)
			if err != nil {
				errs[index] = fmt.Errorf("pool %s: %w", poolAddr.Hex(), err)
				return
			}
			descriptors[index] = descriptor
		}(i, pool)
	}
	wg.Wait()

	included := make([]PoolDescriptor, 0, count)
	for i := range descriptors {
		if errs[i] != nil {
			skipped = append(skipped, errs[i])
			continue
		}
		if descriptors[i] == nil {
			continue // not in the allow-list, excluded silently
		}
		included = append(included, *descriptors[i])
	}
	return New(included), skipped, nil
}

// poolCount reads the factory's registered pool count.
func (r *Resolver) poolCount(ctx context.Context, client ethclients.ETHClient) (uint64, error) {
	data, err := callContract(ctx, client, r.factory, allHodlocksLengthSig)
	if err != nil {
		return 0, err
	}
	if len(data) != 32 {
		return 0, fmt.Errorf("invalid response length for allHodlocksLength: got %d bytes", len(data))
	}
	return new(big.Int).SetBytes(data).Uint64(), nil
}

// poolAddresses fetches every pool address by index in parallel. Any single
// failure is fatal to the enumeration.
func (r *Resolver) poolAddresses(ctx context.Context, client ethclients.ETHClient, count uint64) ([]common.Address, error) {
	pools := make([]common.Address, count)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.maxConcurrentCalls)
	for i := uint64(0); i < count; i++ {
		index := i
		g.Go(func() error {
			callData, err := hodlockabi.FactoryABI.Pack("allHodlocks", new(big.Int).SetUint64(index))
			if err != nil {
				return err
			}
			data, err := callContract(gctx, client, r.factory, callData)
			if err != nil {
				return fmt.Errorf("failed to read pool at index %d: %w", index, err)
			}
			addr, err := unpackAddress(data)
			if err != nil {
				return fmt.Errorf("pool at index %d: %w", index, err)
			}
			pools[index] = addr
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return pools, nil
}

// describePool resolves one pool's token binding and token metadata.
// A nil descriptor with nil error means the token failed the allow-list.
func (r *Resolver) describePool(ctx context.Context, client ethclients.ETHClient, pool common.Address) (*PoolDescriptor, error) {
	data, err := callContract(ctx, client, pool, tokenSig)
	if err != nil {
		return nil, fmt.Errorf("failed to read bound token: %w", err)
	}
	token, err := unpackAddress(data)
	if err != nil {
		return nil, fmt.Errorf("bound token: %w", err)
	}

	if !r.inAllowlist(token) {
		return nil, nil
	}

	symbol, err := readTokenString(ctx, client, token, "symbol", symbolSig)
	if err != nil {
		return nil, err
	}
	name, err := readTokenString(ctx, client, token, "name", nameSig)
	if err != nil {
		return nil, err
	}
	decimals, err := readTokenDecimals(ctx, client, token)
	if err != nil {
		return nil, err
	}

	return &PoolDescriptor{
		PoolAddress:  pool,
		TokenAddress: token,
		Symbol:       symbol,
		Name:         name,
		Decimals:     decimals,
	}, nil
}

func readTokenString(ctx context.Context, client ethclients.ETHClient, token common.Address, method string, sig []byte) (string, error) {
	data, err := callContract(ctx, client, token, sig)
	if err != nil {
		return "", fmt.Errorf("failed to read token %s: %w", method, err)
	}
	values, err := hodlockabi.ERC20ABI.Unpack(method, data)
	if err != nil {
		return "", fmt.Errorf("failed to decode token %s: %w", method, err)
	}
	value, ok := values[0].(string)
	if !ok {
		return "", fmt.Errorf("unexpected type decoding token %s", method)
	}
	return value, nil
}

func readTokenDecimals(ctx context.Context, client ethclients.ETHClient, token common.Address) (uint8, error) {
	data, err := callContract(ctx, client, token, decimalsSig)
	if err != nil {
		return 0, fmt.Errorf("failed to read token decimals: %w", err)
	}
	if len(data) != 32 {
		return 0, fmt.Errorf("invalid response length for decimals: got %d bytes", len(data))
	}
	value := new(big.Int).SetBytes(data)
	if !value.IsUint64() || value.Uint64() > 255 {
		return 0, fmt.Errorf("decimals out of range: %s", value)
	}
	return uint8(value.Uint64()), nil
}

// callContract performs a single eth_call with the package's RPC timeout.
func callContract(parentCtx context.Context, client ethclients.ETHClient, to common.Address, data []byte) ([]byte, error) {
	ctx, cancel := context.WithTimeout(parentCtx, defaultRPCTimeout)
	defer cancel()
	return client.CallContract(ctx, ethereum.CallMsg{To: &to, Data: data}, nil)
}

// unpackAddress decodes a single address return value. A valid address
// response from a view function is always 32 bytes long.
func unpackAddress(data []byte) (common.Address, error) {
	if len(data) != 32 {
		return common.Address{}, fmt.Errorf("invalid response length for address: got %d bytes", len(data))
	}
	return common.BytesToAddress(data), nil
}
