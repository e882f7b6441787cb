package pricing

import (
	"context"
	"fmt"
	"math"
	"sync"

	"go.uber.org/zap"

	"liquidityOracle/internal/amm"
	"liquidityOracle/internal/dex"
	"liquidityOracle/internal/model"
)

// ReferenceFuture carries the reference asset USD price of one refresh cycle. It is
// resolved exactly once; later Resolve calls are ignored.
type ReferenceFuture struct {
	once  sync.Once
	done  chan struct{}
	price float64
	err   error
}

// NewReferenceFuture returns an unresolved future.
func NewReferenceFuture() *ReferenceFuture {
	return &ReferenceFuture{done: make(chan struct{})}
}

// ResolvedReference returns a future that already holds price.
func ResolvedReference(price float64) *ReferenceFuture {
	f := NewReferenceFuture()
	f.Resolve(price, nil)
	return f
}

// Resolve stores the bootstrap outcome and wakes every waiter.
func (f *ReferenceFuture) Resolve(price float64, err error) {
	f.once.Do(func() {
		f.price = price
		f.err = err
		close(f.done)
	})
}

// Wait blocks until the future is resolved or ctx is done.
func (f *ReferenceFuture) Wait(ctx context.Context) (float64, error) {
	select {
	case <-f.done:
		return f.price, f.err
	case <-ctx.Done():
		return 0, ctx.Err()
	}
}

// ReferenceBootstrapper prices the EVM reference asset from a designated stable pair.
// The stable side is taken as exactly one USD.
type ReferenceBootstrapper struct {
	cfg      model.ReferenceConfig
	resolver EndpointResolver[dex.ContractCaller]
	tokens   *dex.PoolTokensCache
	metas    *dex.TokenMetaCache
	logger   *zap.Logger
}

// NewReferenceBootstrapper validates cfg and builds a bootstrapper.
func NewReferenceBootstrapper(cfg model.ReferenceConfig, resolver EndpointResolver[dex.ContractCaller], logger *zap.Logger) (*ReferenceBootstrapper, error) {
	if cfg.Chain.Kind() != model.KindEVM {
		return nil, fmt.Errorf("reference chain %q is not an EVM chain", cfg.Chain)
	}
	switch cfg.Family {
	case model.FamilyV2, model.FamilyV3:
	default:
		return nil, fmt.Errorf("reference pool family %q is not supported", cfg.Family)
	}
	if cfg.Pool == "" {
		return nil, fmt.Errorf("reference pool is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ReferenceBootstrapper{
		cfg:      cfg,
		resolver: resolver,
		tokens:   dex.NewPoolTokensCache(),
		metas:    dex.NewTokenMetaCache(),
		logger:   logger.With(zap.String("component", "reference"), zap.String("chain", cfg.Chain.String())),
	}, nil
}

// Fetch returns the USD price of the reference asset. Every error matches
// ErrReferenceAssetUnavailable.
func (b *ReferenceBootstrapper) Fetch(ctx context.Context) (float64, error) {
	price, err := b.fetch(ctx)
	if err != nil {
		b.logger.Warn("reference bootstrap failed", zap.Error(err))
		return 0, fmt.Errorf("%w: %w", ErrReferenceAssetUnavailable, err)
	}
	b.logger.Debug("reference bootstrapped", zap.Float64("price_usd", price))
	return price, nil
}

// Start runs Fetch in the background and returns the future it resolves.
func (b *ReferenceBootstrapper) Start(ctx context.Context) *ReferenceFuture {
	future := NewReferenceFuture()
	go func() {
		future.Resolve(b.Fetch(ctx))
	}()
	return future
}

func (b *ReferenceBootstrapper) fetch(ctx context.Context) (float64, error) {
	caller, err := b.resolver.Resolve(ctx, b.cfg.Chain)
	if err != nil {
		return 0, &StageError{Chain: b.cfg.Chain, Stage: StageResolvingEndpoint, Err: err}
	}

	reader := dex.NewReader(caller, b.tokens, b.metas, b.logger)
	state, err := reader.Read(ctx, b.cfg.Family, b.cfg.Pool)
	if err != nil {
		invalidateOnTransport(b.resolver, b.cfg.Chain, err)
		return 0, &StageError{Chain: b.cfg.Chain, Stage: StageReadingPool, Err: err}
	}

	price, err := b.compute(state)
	if err != nil {
		return 0, &StageError{Chain: b.cfg.Chain, Stage: StageComputing, Err: err}
	}
	return price, nil
}

func (b *ReferenceBootstrapper) compute(state model.PoolState) (float64, error) {
	var (
		price float64
		err   error
	)
	switch s := state.(type) {
	case model.V2State:
		price, err = amm.V2TrackedPrice(s.Reserve0, s.Reserve1, b.cfg.ReferenceIsToken0, b.cfg.ReferenceDecimals, b.cfg.StableDecimals)
	case model.V3State:
		dec0, dec1 := b.cfg.StableDecimals, b.cfg.ReferenceDecimals
		if b.cfg.ReferenceIsToken0 {
			dec0, dec1 = b.cfg.ReferenceDecimals, b.cfg.StableDecimals
		}
		price, err = amm.V3TrackedPrice(s.SqrtPriceX96, dec0, dec1, b.cfg.ReferenceIsToken0)
	default:
		return 0, fmt.Errorf("unexpected pool state %T", state)
	}
	if err != nil {
		return 0, err
	}
	if !validPrice(price) {
		return 0, fmt.Errorf("%w: reference price %v", model.ErrInvalidPoolState, price)
	}
	return price, nil
}

func validPrice(price float64) bool {
	return price > 0 && !math.IsNaN(price) && !math.IsInf(price, 0)
}
