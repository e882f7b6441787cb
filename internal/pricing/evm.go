package pricing

import (
	"context"
	"fmt"
	"math/big"

	"go.uber.org/zap"

	"liquidityOracle/internal/amm"
	"liquidityOracle/internal/dex"
	"liquidityOracle/internal/model"
)

// EVMFetcher prices a token held in a V2 or V3 pool against the reference asset.
type EVMFetcher struct {
	token    model.TokenConfig
	resolver EndpointResolver[dex.ContractCaller]
	tokens   *dex.PoolTokensCache
	metas    *dex.TokenMetaCache
	logger   *zap.Logger
}

// NewEVMFetcher validates token and builds a fetcher for its chain.
func NewEVMFetcher(token model.TokenConfig, resolver EndpointResolver[dex.ContractCaller], logger *zap.Logger) (*EVMFetcher, error) {
	if token.Chain.Kind() != model.KindEVM {
		return nil, fmt.Errorf("chain %q is not an EVM chain", token.Chain)
	}
	switch token.Family {
	case model.FamilyV2, model.FamilyV3:
	default:
		return nil, fmt.Errorf("%s: pool family %q is not an EVM family", token.Chain, token.Family)
	}
	if token.Side == "" {
		token.Side = model.SideAuto
	}
	switch token.TVLMethod {
	case "":
		token.TVLMethod = model.TVLLiquidity
	case model.TVLLiquidity, model.TVLBalance:
	default:
		return nil, fmt.Errorf("%s: unsupported tvl method %q", token.Chain, token.TVLMethod)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &EVMFetcher{
		token:    token,
		resolver: resolver,
		tokens:   dex.NewPoolTokensCache(),
		metas:    dex.NewTokenMetaCache(),
		logger:   logger.With(zap.String("chain", token.Chain.String()), zap.String("pool", token.Pool)),
	}, nil
}

// Chain returns the chain this fetcher prices.
func (f *EVMFetcher) Chain() model.ChainID {
	return f.token.Chain
}

// evmPricing holds everything computed from one pool read.
type evmPricing struct {
	state           model.PoolState
	trackedIsToken0 bool
	trackedDecimals uint8
	pairDecimals    uint8
	pairToken       string
}

// Fetch reads the pool, waits for the reference price and converts the ratio to USD.
// Pool I/O happens before the wait so it overlaps with the reference bootstrap.
func (f *EVMFetcher) Fetch(ctx context.Context, ref *ReferenceFuture) (Quote, error) {
	chainID := f.token.Chain

	f.logger.Debug("fetch stage", zap.String("stage", string(StageResolvingEndpoint)))
	caller, err := f.resolver.Resolve(ctx, chainID)
	if err != nil {
		return Quote{}, &StageError{Chain: chainID, Stage: StageResolvingEndpoint, Err: err}
	}
	reader := dex.NewReader(caller, f.tokens, f.metas, f.logger)

	f.logger.Debug("fetch stage", zap.String("stage", string(StageReadingPool)))
	pool, err := f.read(ctx, reader)
	if err != nil {
		invalidateOnTransport(f.resolver, chainID, err)
		return Quote{}, &StageError{Chain: chainID, Stage: StageReadingPool, Err: err}
	}
	f.logPool(pool)

	f.logger.Debug("fetch stage", zap.String("stage", string(StageAwaitingReference)))
	if ref == nil {
		return Quote{}, &StageError{Chain: chainID, Stage: StageAwaitingReference, Err: fmt.Errorf("%w: no reference configured", ErrReferenceAssetUnavailable)}
	}
	refUSD, err := ref.Wait(ctx)
	if err != nil {
		return Quote{}, &StageError{Chain: chainID, Stage: StageAwaitingReference, Err: err}
	}

	f.logger.Debug("fetch stage", zap.String("stage", string(StageComputing)))
	ratio, err := f.ratio(pool)
	if err != nil {
		return Quote{}, &StageError{Chain: chainID, Stage: StageComputing, Err: err}
	}
	priceUSD := ratio * refUSD
	if !validPrice(priceUSD) {
		return Quote{}, &StageError{Chain: chainID, Stage: StageComputing, Err: fmt.Errorf("%w: price %v", model.ErrInvalidPoolState, priceUSD)}
	}

	quote := Quote{Chain: chainID, PriceUSD: priceUSD}
	tvl, err := f.tvl(ctx, reader, pool, priceUSD, refUSD)
	if err != nil {
		invalidateOnTransport(f.resolver, chainID, err)
		f.logger.Warn("tvl unavailable", zap.Error(err))
	} else {
		quote.TVLUSD = &tvl
	}

	f.logger.Debug("fetch done", zap.Float64("price_usd", priceUSD))
	return quote, nil
}

func (f *EVMFetcher) read(ctx context.Context, reader *dex.Reader) (evmPricing, error) {
	state, err := reader.Read(ctx, f.token.Family, f.token.Pool)
	if err != nil {
		return evmPricing{}, err
	}

	var token0, token1 string
	switch s := state.(type) {
	case model.V2State:
		token0, token1 = s.Token0, s.Token1
	case model.V3State:
		token0, token1 = s.Token0, s.Token1
	default:
		return evmPricing{}, fmt.Errorf("unexpected pool state %T", state)
	}

	trackedIsToken0, err := dex.ResolveSide(f.token.Side, f.token.Address, token0, token1)
	if err != nil {
		return evmPricing{}, err
	}
	pairToken := token1
	if !trackedIsToken0 {
		pairToken = token0
	}

	trackedDecimals, err := f.decimals(ctx, reader, f.token.Decimals, f.token.Address)
	if err != nil {
		return evmPricing{}, err
	}
	pairDecimals, err := f.decimals(ctx, reader, f.token.PairDecimals, pairToken)
	if err != nil {
		return evmPricing{}, err
	}

	return evmPricing{
		state:           state,
		trackedIsToken0: trackedIsToken0,
		trackedDecimals: trackedDecimals,
		pairDecimals:    pairDecimals,
		pairToken:       pairToken,
	}, nil
}

func (f *EVMFetcher) logPool(p evmPricing) {
	if !f.logger.Core().Enabled(zap.DebugLevel) {
		return
	}
	dec0, dec1 := p.orderedDecimals()
	switch s := p.state.(type) {
	case model.V2State:
		f.logger.Debug("pool read",
			zap.String("reserve0", amm.FormatAmount(s.Reserve0, dec0)),
			zap.String("reserve1", amm.FormatAmount(s.Reserve1, dec1)),
			zap.Bool("tracked_is_token0", p.trackedIsToken0),
		)
	case model.V3State:
		f.logger.Debug("pool read",
			zap.String("liquidity", amm.FormatAmount(s.Liquidity, 0)),
			zap.String("sqrt_price_x96", amm.FormatAmount(s.SqrtPriceX96, 0)),
			zap.Int32("tick", s.Tick),
			zap.Bool("tracked_is_token0", p.trackedIsToken0),
		)
	}
}

// decimals returns the configured value, or reads ERC20 decimals() when it is zero.
func (f *EVMFetcher) decimals(ctx context.Context, reader *dex.Reader, configured uint8, token string) (uint8, error) {
	if configured != 0 {
		return configured, nil
	}
	return reader.TokenDecimals(ctx, token)
}

func (f *EVMFetcher) ratio(p evmPricing) (float64, error) {
	switch s := p.state.(type) {
	case model.V2State:
		return amm.V2TrackedPrice(s.Reserve0, s.Reserve1, p.trackedIsToken0, p.trackedDecimals, p.pairDecimals)
	case model.V3State:
		dec0, dec1 := p.orderedDecimals()
		return amm.V3TrackedPrice(s.SqrtPriceX96, dec0, dec1, p.trackedIsToken0)
	default:
		return 0, fmt.Errorf("unexpected pool state %T", p.state)
	}
}

// orderedDecimals returns the decimals of token0 and token1.
func (p evmPricing) orderedDecimals() (uint8, uint8) {
	if p.trackedIsToken0 {
		return p.trackedDecimals, p.pairDecimals
	}
	return p.pairDecimals, p.trackedDecimals
}

// orderedUSD returns the USD price of token0 and token1.
func (p evmPricing) orderedUSD(trackedUSD, pairUSD float64) (float64, float64) {
	if p.trackedIsToken0 {
		return trackedUSD, pairUSD
	}
	return pairUSD, trackedUSD
}

func (f *EVMFetcher) tvl(ctx context.Context, reader *dex.Reader, p evmPricing, trackedUSD, pairUSD float64) (float64, error) {
	dec0, dec1 := p.orderedDecimals()
	usd0, usd1 := p.orderedUSD(trackedUSD, pairUSD)

	if f.token.TVLMethod == model.TVLBalance {
		return balanceTVL(ctx, reader, p.state, dec0, dec1, usd0, usd1)
	}

	switch s := p.state.(type) {
	case model.V2State:
		return V2TVL(s, dec0, dec1, usd0, usd1), nil
	case model.V3State:
		return V3LiquidityTVL(s, dec0, dec1, usd0, usd1)
	default:
		return 0, fmt.Errorf("unexpected pool state %T", p.state)
	}
}

func balanceTVL(ctx context.Context, reader *dex.Reader, state model.PoolState, dec0, dec1 uint8, usd0, usd1 float64) (float64, error) {
	var pool, token0, token1 string
	switch s := state.(type) {
	case model.V2State:
		pool, token0, token1 = s.Pool, s.Token0, s.Token1
	case model.V3State:
		pool, token0, token1 = s.Pool, s.Token0, s.Token1
	default:
		return 0, fmt.Errorf("unexpected pool state %T", state)
	}

	balance0, err := reader.BalanceOf(ctx, token0, pool)
	if err != nil {
		return 0, fmt.Errorf("balanceOf token0: %w", err)
	}
	balance1, err := reader.BalanceOf(ctx, token1, pool)
	if err != nil {
		return 0, fmt.Errorf("balanceOf token1: %w", err)
	}
	return BalanceTVL(balance0, balance1, dec0, dec1, usd0, usd1), nil
}

// V2TVL values both reserves of a constant-product pool.
func V2TVL(state model.V2State, dec0, dec1 uint8, usd0, usd1 float64) float64 {
	return amm.Normalize(state.Reserve0, dec0)*usd0 + amm.Normalize(state.Reserve1, dec1)*usd1
}

// V3LiquidityTVL values the in-range liquidity approximation of a concentrated pool.
// It only covers liquidity at the current tick.
func V3LiquidityTVL(state model.V3State, dec0, dec1 uint8, usd0, usd1 float64) (float64, error) {
	amount0, amount1, err := amm.V3Amounts(state.Liquidity, state.SqrtPriceX96, dec0, dec1)
	if err != nil {
		return 0, err
	}
	return amount0*usd0 + amount1*usd1, nil
}

// BalanceTVL values the pool's token balances.
func BalanceTVL(balance0, balance1 *big.Int, dec0, dec1 uint8, usd0, usd1 float64) float64 {
	return amm.Normalize(balance0, dec0)*usd0 + amm.Normalize(balance1, dec1)*usd1
}
