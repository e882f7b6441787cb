// Package oracle assembles per-chain prices into one cached cross-chain snapshot.
package oracle

import (
	"context"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/patrickmn/go-cache"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"liquidityOracle/internal/amm"
	"liquidityOracle/internal/metrics"
	"liquidityOracle/internal/model"
	"liquidityOracle/internal/pricing"
	"liquidityOracle/internal/storage"
)

const (
	DefaultTTL          = 5 * time.Minute
	DefaultFetchTimeout = 20 * time.Second

	snapshotKey = "snapshot"
)

// Config controls cache lifetime and per-chain timeouts.
type Config struct {
	TTL          time.Duration
	FetchTimeout time.Duration
}

// ReferenceSource starts the reference asset bootstrap of one refresh cycle.
type ReferenceSource interface {
	Start(ctx context.Context) *pricing.ReferenceFuture
}

// Option configures an Oracle.
type Option func(*Oracle)

// WithPublishers adds sinks that receive every new snapshot.
func WithPublishers(publishers ...storage.Publisher) Option {
	return func(o *Oracle) {
		o.publishers = append(o.publishers, publishers...)
	}
}

// WithClock overrides the time source used to stamp snapshots.
func WithClock(now func() time.Time) Option {
	return func(o *Oracle) {
		if now != nil {
			o.now = now
		}
	}
}

// Oracle owns the snapshot cache. Concurrent callers that miss the cache share a
// single refresh and wait for its result.
type Oracle struct {
	cfg        Config
	reference  ReferenceSource
	fetchers   []pricing.Fetcher
	publishers []storage.Publisher
	logger     *zap.Logger
	now        func() time.Time

	snapshots *cache.Cache

	mu     sync.Mutex
	flight *flight
	last   time.Time
}

// flight is one in-progress refresh. It is cancelled once every waiter has left.
type flight struct {
	done     chan struct{}
	cancel   context.CancelFunc
	waiters  int
	snapshot *model.PriceSnapshot
	err      error
}

// New builds an oracle. reference may be nil when no EVM chain is configured.
func New(cfg Config, reference ReferenceSource, fetchers []pricing.Fetcher, logger *zap.Logger, opts ...Option) *Oracle {
	if cfg.TTL <= 0 {
		cfg.TTL = DefaultTTL
	}
	if cfg.FetchTimeout <= 0 {
		cfg.FetchTimeout = DefaultFetchTimeout
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	o := &Oracle{
		cfg:       cfg,
		reference: reference,
		fetchers:  append([]pricing.Fetcher(nil), fetchers...),
		logger:    logger,
		now:       time.Now,
		snapshots: cache.New(cfg.TTL, 2*cfg.TTL),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Snapshot returns the cached snapshot, or refreshes it when the cache has expired.
// A caller that gives up stops waiting; the refresh keeps running while any other
// caller still waits for it.
func (o *Oracle) Snapshot(ctx context.Context) (*model.PriceSnapshot, error) {
	if snapshot, ok := o.cached(); ok {
		metrics.CacheRequestsTotal.WithLabelValues("hit").Inc()
		return snapshot, nil
	}

	o.mu.Lock()
	if snapshot, ok := o.cached(); ok {
		o.mu.Unlock()
		metrics.CacheRequestsTotal.WithLabelValues("hit").Inc()
		return snapshot, nil
	}
	metrics.CacheRequestsTotal.WithLabelValues("miss").Inc()
	f := o.flight
	if f == nil {
		flightCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
		f = &flight{done: make(chan struct{}), cancel: cancel}
		o.flight = f
		go o.run(flightCtx, f)
	}
	f.waiters++
	o.mu.Unlock()

	select {
	case <-f.done:
		return f.snapshot, f.err
	case <-ctx.Done():
		o.leave(f)
		return nil, ctx.Err()
	}
}

// TVL returns the USD liquidity of one chain from the current snapshot.
func (o *Oracle) TVL(ctx context.Context, chainID model.ChainID) (float64, error) {
	snapshot, err := o.Snapshot(ctx)
	if err != nil {
		return 0, err
	}
	if tvl, ok := snapshot.ChainTVL(chainID); ok {
		return tvl, nil
	}
	if reason, failed := snapshot.Failures[chainID]; failed {
		return 0, fmt.Errorf("%w: %s: %s", ErrChainUnavailable, chainID, reason)
	}
	return 0, fmt.Errorf("%w: %s: no liquidity data", ErrChainUnavailable, chainID)
}

// Prime seeds the cache with a previously published snapshot for the rest of its
// TTL. It reports false when the snapshot is already stale or the cache is warm.
func (o *Oracle) Prime(snapshot *model.PriceSnapshot) bool {
	if snapshot == nil || len(snapshot.Prices) == 0 || snapshot.FetchedAt.IsZero() {
		return false
	}
	remaining := snapshot.FetchedAt.Add(o.cfg.TTL).Sub(o.now())
	if remaining <= 0 {
		return false
	}

	o.mu.Lock()
	defer o.mu.Unlock()
	if _, ok := o.cached(); ok {
		return false
	}
	o.snapshots.Set(snapshotKey, snapshot, remaining)
	if snapshot.FetchedAt.After(o.last) {
		o.last = snapshot.FetchedAt
	}
	metrics.SnapshotTimestamp.Set(float64(snapshot.FetchedAt.UnixNano()) / 1e9)
	o.logger.Info("cache primed", zap.Time("fetched_at", snapshot.FetchedAt), zap.Duration("remaining", remaining))
	return true
}

// Invalidate drops the cached snapshot so the next call refreshes.
func (o *Oracle) Invalidate() {
	o.snapshots.Delete(snapshotKey)
}

func (o *Oracle) cached() (*model.PriceSnapshot, bool) {
	value, ok := o.snapshots.Get(snapshotKey)
	if !ok {
		return nil, false
	}
	return value.(*model.PriceSnapshot), true
}

func (o *Oracle) leave(f *flight) {
	o.mu.Lock()
	defer o.mu.Unlock()
	f.waiters--
	if f.waiters > 0 {
		return
	}
	f.cancel()
	if o.flight == f {
		o.flight = nil
	}
	o.logger.Debug("refresh abandoned by all callers")
}

func (o *Oracle) run(ctx context.Context, f *flight) {
	defer f.cancel()

	snapshot, err := o.refresh(ctx)

	o.mu.Lock()
	if err == nil {
		snapshot.FetchedAt = o.stamp()
		o.snapshots.Set(snapshotKey, snapshot, o.cfg.TTL)
		metrics.SnapshotTimestamp.Set(float64(snapshot.FetchedAt.UnixNano()) / 1e9)
	}
	f.snapshot, f.err = snapshot, err
	if o.flight == f {
		o.flight = nil
	}
	o.mu.Unlock()
	close(f.done)

	if err == nil {
		o.publish(ctx, snapshot)
	}
}

// stamp returns the current time, never earlier than the previous snapshot.
func (o *Oracle) stamp() time.Time {
	now := o.now()
	if now.Before(o.last) {
		now = o.last
	}
	o.last = now
	return now
}

type chainResult struct {
	chain model.ChainID
	quote pricing.Quote
	err   error
}

func (o *Oracle) refresh(ctx context.Context) (*model.PriceSnapshot, error) {
	start := time.Now()

	refCtx, cancelRef := context.WithTimeout(ctx, o.cfg.FetchTimeout)
	defer cancelRef()
	ref := o.startReference(refCtx)

	results := make([]chainResult, len(o.fetchers))
	var g errgroup.Group
	for i, fetcher := range o.fetchers {
		g.Go(func() error {
			fetchCtx, cancel := context.WithTimeout(ctx, o.cfg.FetchTimeout)
			defer cancel()

			quote, err := fetchQuote(fetchCtx, fetcher, ref)
			results[i] = chainResult{chain: fetcher.Chain(), quote: quote, err: err}
			metrics.RecordChainFetch(fetcher.Chain().String(), err)
			return nil
		})
	}
	_ = g.Wait()

	var refUSD *float64
	if ref != nil {
		if price, err := ref.Wait(refCtx); err == nil {
			refUSD = &price
		}
	}

	snapshot, err := o.assemble(results, refUSD)
	switch {
	case err != nil:
		metrics.RecordRefresh(metrics.ResultError, start)
		o.logger.Error("refresh failed", zap.Error(err), zap.Duration("elapsed", time.Since(start)))
	case len(snapshot.Failures) > 0:
		metrics.RecordRefresh(metrics.ResultPartial, start)
		o.logger.Warn("refresh partial",
			zap.Int("priced", len(snapshot.Prices)),
			zap.Int("failed", len(snapshot.Failures)),
			zap.Duration("elapsed", time.Since(start)),
		)
	default:
		metrics.RecordRefresh(metrics.ResultSuccess, start)
		o.logger.Info("refresh complete",
			zap.Int("priced", len(snapshot.Prices)),
			zap.Float64("weighted_price_usd", snapshot.WeightedPriceUSD),
			zap.Duration("elapsed", time.Since(start)),
		)
	}
	return snapshot, err
}

// fetchQuote turns a panicking fetcher into a failure of its own chain.
func fetchQuote(ctx context.Context, fetcher pricing.Fetcher, ref *pricing.ReferenceFuture) (quote pricing.Quote, err error) {
	defer func() {
		if r := recover(); r != nil {
			quote, err = pricing.Quote{}, fmt.Errorf("%w: %s: fetch panicked: %v", ErrChainUnavailable, fetcher.Chain(), r)
		}
	}()
	return fetcher.Fetch(ctx, ref)
}

// startReference only bootstraps the reference asset when an EVM chain needs it.
func (o *Oracle) startReference(ctx context.Context) *pricing.ReferenceFuture {
	needed := false
	for _, fetcher := range o.fetchers {
		if fetcher.Chain().Kind() == model.KindEVM {
			needed = true
			break
		}
	}
	if !needed {
		return nil
	}
	if o.reference == nil {
		future := pricing.NewReferenceFuture()
		future.Resolve(0, fmt.Errorf("%w: no reference pool configured", pricing.ErrReferenceAssetUnavailable))
		return future
	}
	return o.reference.Start(ctx)
}

// assemble builds a snapshot from the successful chains only. Failed chains are
// listed in Failures and never given a price.
func (o *Oracle) assemble(results []chainResult, refUSD *float64) (*model.PriceSnapshot, error) {
	snapshot := &model.PriceSnapshot{
		Prices:            make(map[model.ChainID]float64, len(results)),
		TVL:               make(map[model.ChainID]float64, len(results)),
		ReferencePriceUSD: refUSD,
		Failures:          make(map[model.ChainID]string),
	}
	failures := make(map[model.ChainID]error)
	observations := make([]amm.Observation, 0, len(results))

	for _, result := range results {
		if result.err == nil && !usable(result.quote.PriceUSD) {
			result.err = fmt.Errorf("%w: %s: unusable price %v", ErrChainUnavailable, result.chain, result.quote.PriceUSD)
		}
		if result.err != nil {
			failures[result.chain] = result.err
			snapshot.Failures[result.chain] = result.err.Error()
			metrics.ChainPriceGauge.DeleteLabelValues(result.chain.String())
			metrics.ChainTVLGauge.DeleteLabelValues(result.chain.String())
			o.logger.Warn("chain fetch failed", zap.String("chain", result.chain.String()), zap.Error(result.err))
			continue
		}

		obs := amm.Observation{Chain: result.chain, Price: result.quote.PriceUSD}
		snapshot.Prices[result.chain] = result.quote.PriceUSD
		metrics.ChainPriceGauge.WithLabelValues(result.chain.String()).Set(result.quote.PriceUSD)
		if tvl := result.quote.TVLUSD; tvl != nil && *tvl >= 0 && !math.IsInf(*tvl, 0) {
			obs.Liquidity = *result.quote.TVLUSD
			snapshot.TVL[result.chain] = *result.quote.TVLUSD
			metrics.ChainTVLGauge.WithLabelValues(result.chain.String()).Set(*result.quote.TVLUSD)
		} else {
			metrics.ChainTVLGauge.DeleteLabelValues(result.chain.String())
		}
		observations = append(observations, obs)
	}

	if len(snapshot.Prices) == 0 {
		return nil, &AggregateError{Failures: failures}
	}

	weighted, err := amm.WeightedAverage(observations)
	if err != nil {
		for chain := range snapshot.Prices {
			failures[chain] = fmt.Errorf("weighted price: %w", err)
		}
		return nil, &AggregateError{Failures: failures}
	}
	snapshot.WeightedPriceUSD = weighted
	return snapshot, nil
}

func (o *Oracle) publish(ctx context.Context, snapshot *model.PriceSnapshot) {
	for _, publisher := range o.publishers {
		if err := publisher.Publish(ctx, snapshot); err != nil {
			o.logger.Warn("publish snapshot", zap.String("publisher", fmt.Sprintf("%T", publisher)), zap.Error(err))
		}
	}
}

// usable reports whether v is a finite, positive USD amount.
func usable(v float64) bool {
	return v > 0 && !math.IsNaN(v) && !math.IsInf(v, 0)
}
