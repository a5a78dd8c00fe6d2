// Package hodlock orchestrates the client-side lifecycle of time-lock
// positions: it maintains a catalog of pools resolved from the factory and
// serves aggregated position views against that catalog.
package hodlock

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	ethclients "github.com/Iwinswap/iwinswap-ethclients"
	"github.com/ethereum/go-ethereum/common"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/Olcmyk/Hodlock/catalog"
	"github.com/Olcmyk/Hodlock/positions"
)

// Logger defines a standard interface for structured, leveled logging,
// compatible with the standard library's slog.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// --- Function Type Definitions for Dependencies ---

// These named types create a clear, maintainable contract for the system's dependencies.

type GetClientFunc func() (ethclients.ETHClient, error)
type ResolveCatalogFunc func(ctx context.Context, client ethclients.ETHClient) (*catalog.Catalog, []error, error)
type ListPositionsFunc func(ctx context.Context, owner common.Address, cat *catalog.Catalog, client ethclients.ETHClient) ([]positions.Position, []error)

type ErrorHandlerFunc func(err error)

// Config holds all the dependencies and settings for the HodlockSystem.
// Using a configuration struct makes initialization cleaner and more extensible.
type Config struct {
	SystemName       string
	PrometheusReg    prometheus.Registerer
	Factory          common.Address
	GetClient        GetClientFunc
	ResolveCatalog   ResolveCatalogFunc
	ListPositions    ListPositionsFunc
	ErrorHandler     ErrorHandlerFunc
	RefreshFrequency time.Duration
	Logger           Logger
}

// validate checks that all essential fields in the Config are provided.
func (c *Config) validate() error {
	if c.SystemName == "" {
		return errors.New("system name is required")
	}
	if c.Factory == (common.Address{}) {
		return errors.New("factory address is required")
	}
	if c.GetClient == nil {
		return errors.New("get client function is required")
	}
	if c.ResolveCatalog == nil {
		return errors.New("resolve catalog function is required")
	}
	if c.ListPositions == nil {
		return errors.New("list positions function is required")
	}
	if c.ErrorHandler == nil {
		return errors.New("error handler function is required")
	}
	if c.Logger == nil {
		return errors.New("logger is required")
	}

	return nil
}

// HodlockSystem is the main orchestrator that connects the pool catalog to
// the live blockchain. It refreshes the catalog, serves position views and
// manages state with thread-safety.
type HodlockSystem struct {
	systemName       string
	factory          common.Address
	getClient        GetClientFunc
	resolveCatalog   ResolveCatalogFunc
	listPositions    ListPositionsFunc
	cachedCatalog    atomic.Pointer[catalog.Catalog]
	lastRefreshedAt  atomic.Int64
	errorHandler     ErrorHandlerFunc
	refreshFrequency time.Duration
	metrics          *Metrics
	logger           Logger
}

// NewHodlockSystem constructs and returns a new, fully initialized system.
// An initial catalog refresh is performed synchronously so callers start
// with a populated view; the periodic refresher then keeps it current.
func NewHodlockSystem(ctx context.Context, cfg *Config) (*HodlockSystem, error) {
	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("invalid hodlock system configuration: %w", err)
	}

	metrics := NewMetrics(cfg.PrometheusReg, cfg.SystemName)

	system := &HodlockSystem{
		systemName:     cfg.SystemName,
		factory:        cfg.Factory,
		getClient:      cfg.GetClient,
		resolveCatalog: cfg.ResolveCatalog,
		listPositions:  cfg.ListPositions,
		errorHandler: func(err error) {
			errorType := determineErrorType(err)
			cfg.Logger.Error("HodlockSystem internal error", "system", cfg.SystemName, "type", errorType, "error", err)
			metrics.ErrorsTotal.WithLabelValues(errorType).Inc()

			cfg.ErrorHandler(err)
		},
		refreshFrequency: cfg.RefreshFrequency,
		metrics:          metrics,
		logger:           cfg.Logger,
	}

	system.cachedCatalog.Store(catalog.New(nil))
	if err := system.RefreshCatalog(ctx); err != nil {
		return nil, fmt.Errorf("initial catalog refresh failed: %w", err)
	}

	system.logger.Info("HodlockSystem started", "system", system.systemName, "pools", system.Catalog().Len())
	go system.startRefresher(ctx)

	return system, nil
}

// Catalog returns the latest catalog snapshot. This operation is lock-free
// and the snapshot is immutable; a concurrent refresh never mutates a
// snapshot a caller already holds.
func (s *HodlockSystem) Catalog() *catalog.Catalog {
	return s.cachedCatalog.Load()
}

// LastRefreshedAt returns the unix timestamp of the last successful
// catalog refresh, or zero if none has succeeded.
func (s *HodlockSystem) LastRefreshedAt() int64 {
	return s.lastRefreshedAt.Load()
}

// RefreshCatalog rebuilds the catalog from the factory and atomically swaps
// the cached snapshot. Pools whose metadata cannot be read are excluded and
// reported through the error handler; a failure to enumerate the factory
// leaves the previous snapshot in place and is returned.
func (s *HodlockSystem) RefreshCatalog(ctx context.Context) error {
	timer := prometheus.NewTimer(s.metrics.CatalogRefreshDur.WithLabelValues())
	defer timer.ObserveDuration()

	client, err := s.getClient()
	if err != nil {
		return fmt.Errorf("catalog refresh: failed to get eth client: %w", err)
	}

	cat, skipped, err := s.resolveCatalog(ctx, client)
	if err != nil {
		return &ResolveError{Factory: s.factory, Err: err}
	}

	for _, skipErr := range skipped {
		s.errorHandler(skipErr)
	}
	if len(skipped) > 0 {
		s.metrics.PoolsSkipped.WithLabelValues().Add(float64(len(skipped)))
	}

	s.cachedCatalog.Store(cat)
	now := time.Now().Unix()
	s.lastRefreshedAt.Store(now)
	s.metrics.PoolsInCatalog.WithLabelValues().Set(float64(cat.Len()))
	s.metrics.LastCatalogRefresh.WithLabelValues().Set(float64(now))

	s.logger.Info("Catalog refreshed", "pools", cat.Len(), "skipped", len(skipped))
	return nil
}

// Positions lists the owner's open positions across every pool in the
// current catalog. Per-entry read failures are reported through the error
// handler and the affected entries omitted; the returned slice contains
// only fully read positions.
func (s *HodlockSystem) Positions(ctx context.Context, owner common.Address) ([]positions.Position, error) {
	timer := prometheus.NewTimer(s.metrics.AggregationDur.WithLabelValues())
	defer timer.ObserveDuration()

	client, err := s.getClient()
	if err != nil {
		return nil, fmt.Errorf("position aggregation: failed to get eth client: %w", err)
	}

	list, errs := s.listPositions(ctx, owner, s.Catalog(), client)
	for _, listErr := range errs {
		s.errorHandler(&AggregationError{Owner: owner, Err: listErr})
	}

	s.metrics.PositionsListed.WithLabelValues().Observe(float64(len(list)))
	return list, nil
}

// startRefresher periodically rebuilds the catalog so newly created pools
// appear without a restart.
func (s *HodlockSystem) startRefresher(ctx context.Context) {
	if s.refreshFrequency <= 0 {
		return
	}
	ticker := time.NewTicker(s.refreshFrequency)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			if err := s.RefreshCatalog(ctx); err != nil {
				s.errorHandler(err)
			}
		case <-ctx.Done():
			s.logger.Info("HodlockSystem stopping due to context cancellation.")
			return
		}
	}
}
