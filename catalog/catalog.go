// Package catalog resolves the dynamic set of Hodlock pools registered with
// the factory into an immutable, allow-list-filtered catalog.
package catalog

import (
	"github.com/ethereum/go-ethereum/common"
)

// PoolDescriptor describes one deployed lock-pool instance and the token it
// accepts. Descriptors are never mutated after resolution.
type PoolDescriptor struct {
	PoolAddress  common.Address `json:"poolAddress"`
	TokenAddress common.Address `json:"tokenAddress"`
	Symbol       string         `json:"symbol"`
	Name         string         `json:"name"`
	Decimals     uint8          `json:"decimals"`
}

// Catalog is the set of pools currently known. It is immutable: a refresh
// produces a whole new Catalog, so instances may be read-shared across
// components without locking.
type Catalog struct {
	pools    []PoolDescriptor
	bySymbol map[string]int
	byPool   map[common.Address]int
}

// New builds a Catalog from descriptors in factory index order. When two
// pools resolve to the same token symbol the later entry wins in the symbol
// index; both remain reachable by pool address and in the ordered list.
func New(descriptors []PoolDescriptor) *Catalog {
	c := &Catalog{
		pools:    make([]PoolDescriptor, len(descriptors)),
		bySymbol: make(map[string]int, len(descriptors)),
		byPool:   make(map[common.Address]int, len(descriptors)),
	}
	copy(c.pools, descriptors)
	for i, d := range c.pools {
		c.bySymbol[d.Symbol] = i
		c.byPool[d.PoolAddress] = i
	}
	return c
}

// Pools returns the descriptors in factory index order. The returned slice
// is a copy; callers may not reach the catalog's internal state through it.
func (c *Catalog) Pools() []PoolDescriptor {
	out := make([]PoolDescriptor, len(c.pools))
	copy(out, c.pools)
	return out
}

// BySymbol looks a pool up by its token symbol.
func (c *Catalog) BySymbol(symbol string) (PoolDescriptor, bool) {
	i, ok := c.bySymbol[symbol]
	if !ok {
		return PoolDescriptor{}, false
	}
	return c.pools[i], true
}

// ByPool looks a descriptor up by pool address. Addresses absent from the
// catalog are not visible regardless of factory state.
func (c *Catalog) ByPool(pool common.Address) (PoolDescriptor, bool) {
	i, ok := c.byPool[pool]
	if !ok {
		return PoolDescriptor{}, false
	}
	return c.pools[i], true
}

// Len returns the number of pools in the catalog.
func (c *Catalog) Len() int {
	return len(c.pools)
}
