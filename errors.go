package hodlock

import (
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
)

// ResolveError indicates a failure while rebuilding the pool catalog from
// the factory.
type ResolveError struct {
	Factory common.Address
	Err     error
}

func (e *ResolveError) Error() string {
	return fmt.Sprintf("catalog resolve against factory %s: %v", e.Factory.Hex(), e.Err)
}

func (e *ResolveError) Unwrap() error {
	return e.Err
}

// PoolSkippedError records a pool that was excluded from a catalog refresh
// because its metadata could not be read. The rest of the catalog is
// unaffected.
type PoolSkippedError struct {
	Pool common.Address
	Err  error
}

func (e *PoolSkippedError) Error() string {
	return fmt.Sprintf("pool %s skipped during catalog refresh: %v", e.Pool.Hex(), e.Err)
}

func (e *PoolSkippedError) Unwrap() error {
	return e.Err
}

// AggregationError indicates a partial failure while listing an owner's
// positions; entries that could not be read are omitted, never zero-filled.
type AggregationError struct {
	Owner common.Address
	Err   error
}

func (e *AggregationError) Error() string {
	return fmt.Sprintf("position aggregation for %s: %v", e.Owner.Hex(), e.Err)
}

func (e *AggregationError) Unwrap() error {
	return e.Err
}

// determineErrorType maps an error to a low-cardinality label for metrics.
func determineErrorType(err error) string {
	var resolveErr *ResolveError
	var skippedErr *PoolSkippedError
	var aggErr *AggregationError
	switch {
	case errors.As(err, &resolveErr):
		return "catalog_resolve"
	case errors.As(err, &skippedErr):
		return "pool_skipped"
	case errors.As(err, &aggErr):
		return "aggregation"
	default:
		return "unknown"
	}
}
