package dex

import (
	"context"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"liquidityOracle/internal/model"
)

// Reader fetches raw pool state from EVM pool contracts. It never retries;
// endpoint fallback belongs to the connection resolver.
type Reader struct {
	caller ContractCaller
	tokens *PoolTokensCache
	metas  *TokenMetaCache
	logger *zap.Logger
}

// NewReader builds a reader. Caches may be shared across readers of the same chain.
func NewReader(caller ContractCaller, tokens *PoolTokensCache, metas *TokenMetaCache, logger *zap.Logger) *Reader {
	if tokens == nil {
		tokens = NewPoolTokensCache()
	}
	if metas == nil {
		metas = NewTokenMetaCache()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Reader{caller: caller, tokens: tokens, metas: metas, logger: logger}
}

// Read dispatches on the pool family and returns the matching PoolState variant.
func (r *Reader) Read(ctx context.Context, family model.Family, pool string) (model.PoolState, error) {
	switch family {
	case model.FamilyV2:
		return r.ReadV2(ctx, pool)
	case model.FamilyV3:
		return r.ReadV3(ctx, pool)
	default:
		return nil, &model.PoolReadError{Pool: pool, Op: "read", Err: fmt.Errorf("family %q is not an EVM pool", family)}
	}
}

// ReadV2 reads reserves and token addresses of a constant-product pair.
func (r *Reader) ReadV2(ctx context.Context, pool string) (model.V2State, error) {
	address, err := parseAddress(pool)
	if err != nil {
		return model.V2State{}, &model.PoolReadError{Pool: pool, Op: "address", Err: err}
	}
	pairABI, err := V2PairABI()
	if err != nil {
		return model.V2State{}, fmt.Errorf("parse v2 abi: %w", err)
	}

	tokens, err := r.poolTokens(ctx, address, pairABI)
	if err != nil {
		return model.V2State{}, &model.PoolReadError{Pool: pool, Op: "tokens", Err: err}
	}

	values, err := callMethod(ctx, r.caller, address, pairABI, "getReserves")
	if err != nil {
		return model.V2State{}, &model.PoolReadError{Pool: pool, Op: "getReserves", Err: err}
	}
	if len(values) < 2 {
		return model.V2State{}, &model.PoolReadError{Pool: pool, Op: "getReserves", Err: fmt.Errorf("unexpected values: %d", len(values))}
	}
	reserve0, err := asBigInt(values[0])
	if err != nil {
		return model.V2State{}, &model.PoolReadError{Pool: pool, Op: "reserve0", Err: err}
	}
	reserve1, err := asBigInt(values[1])
	if err != nil {
		return model.V2State{}, &model.PoolReadError{Pool: pool, Op: "reserve1", Err: err}
	}
	if reserve0.Sign() <= 0 || reserve1.Sign() <= 0 {
		return model.V2State{}, &model.PoolReadError{
			Pool: pool,
			Op:   "getReserves",
			Err:  fmt.Errorf("%w: reserves %s/%s", model.ErrInvalidPoolState, reserve0, reserve1),
		}
	}

	return model.V2State{
		Pool:     address.Hex(),
		Reserve0: reserve0,
		Reserve1: reserve1,
		Token0:   tokens.Token0.Hex(),
		Token1:   tokens.Token1.Hex(),
	}, nil
}

// ReadV3 reads slot0, in-range liquidity and token addresses of a concentrated-liquidity pool.
func (r *Reader) ReadV3(ctx context.Context, pool string) (model.V3State, error) {
	address, err := parseAddress(pool)
	if err != nil {
		return model.V3State{}, &model.PoolReadError{Pool: pool, Op: "address", Err: err}
	}
	poolABI, err := V3PoolABI()
	if err != nil {
		return model.V3State{}, fmt.Errorf("parse v3 abi: %w", err)
	}

	tokens, err := r.poolTokens(ctx, address, poolABI)
	if err != nil {
		return model.V3State{}, &model.PoolReadError{Pool: pool, Op: "tokens", Err: err}
	}

	values, err := callMethod(ctx, r.caller, address, poolABI, "slot0")
	if err != nil {
		return model.V3State{}, &model.PoolReadError{Pool: pool, Op: "slot0", Err: err}
	}
	if len(values) < 2 {
		return model.V3State{}, &model.PoolReadError{Pool: pool, Op: "slot0", Err: fmt.Errorf("unexpected values: %d", len(values))}
	}
	sqrtPrice, err := asBigInt(values[0])
	if err != nil {
		return model.V3State{}, &model.PoolReadError{Pool: pool, Op: "sqrtPriceX96", Err: err}
	}
	tickInt, err := asBigInt(values[1])
	if err != nil {
		return model.V3State{}, &model.PoolReadError{Pool: pool, Op: "tick", Err: err}
	}
	tick, err := int24FromBig(tickInt)
	if err != nil {
		return model.V3State{}, &model.PoolReadError{Pool: pool, Op: "tick", Err: err}
	}
	if sqrtPrice.Sign() <= 0 {
		return model.V3State{}, &model.PoolReadError{
			Pool: pool,
			Op:   "slot0",
			Err:  fmt.Errorf("%w: zero sqrtPriceX96", model.ErrInvalidPoolState),
		}
	}

	values, err = callMethod(ctx, r.caller, address, poolABI, "liquidity")
	if err != nil {
		return model.V3State{}, &model.PoolReadError{Pool: pool, Op: "liquidity", Err: err}
	}
	liquidity, err := asBigInt(values[0])
	if err != nil {
		return model.V3State{}, &model.PoolReadError{Pool: pool, Op: "liquidity", Err: err}
	}

	return model.V3State{
		Pool:         address.Hex(),
		SqrtPriceX96: sqrtPrice,
		Liquidity:    liquidity,
		Tick:         tick,
		Token0:       tokens.Token0.Hex(),
		Token1:       tokens.Token1.Hex(),
	}, nil
}

// TokenDecimals returns ERC20 decimals, cached per token.
func (r *Reader) TokenDecimals(ctx context.Context, token string) (uint8, error) {
	address, err := parseAddress(token)
	if err != nil {
		return 0, err
	}
	if meta, ok := r.metas.Get(address); ok {
		return meta.Decimals, nil
	}
	meta, err := FetchTokenMeta(ctx, r.caller, address)
	if err != nil {
		return 0, fmt.Errorf("token %s decimals: %w", address.Hex(), err)
	}
	r.metas.Set(address, meta)
	r.logger.Debug("token metadata loaded",
		zap.String("token", meta.Address),
		zap.String("symbol", meta.Symbol),
		zap.Uint8("decimals", meta.Decimals),
	)
	return meta.Decimals, nil
}

// BalanceOf returns the ERC20 balance of owner.
func (r *Reader) BalanceOf(ctx context.Context, token, owner string) (*big.Int, error) {
	tokenAddr, err := parseAddress(token)
	if err != nil {
		return nil, err
	}
	ownerAddr, err := parseAddress(owner)
	if err != nil {
		return nil, err
	}
	erc20, err := ERC20ABI()
	if err != nil {
		return nil, fmt.Errorf("parse erc20 abi: %w", err)
	}
	values, err := callMethod(ctx, r.caller, tokenAddr, erc20, "balanceOf", ownerAddr)
	if err != nil {
		return nil, err
	}
	return asBigInt(values[0])
}

func (r *Reader) poolTokens(ctx context.Context, pool common.Address, parsed abi.ABI) (PoolTokens, error) {
	if tokens, ok := r.tokens.Get(pool); ok {
		return tokens, nil
	}

	values, err := callMethod(ctx, r.caller, pool, parsed, "token0")
	if err != nil {
		return PoolTokens{}, err
	}
	token0, err := asAddress(values[0])
	if err != nil {
		return PoolTokens{}, fmt.Errorf("token0: %w", err)
	}

	values, err = callMethod(ctx, r.caller, pool, parsed, "token1")
	if err != nil {
		return PoolTokens{}, err
	}
	token1, err := asAddress(values[0])
	if err != nil {
		return PoolTokens{}, fmt.Errorf("token1: %w", err)
	}

	tokens := PoolTokens{Token0: token0, Token1: token1}
	r.tokens.Set(pool, tokens)
	return tokens, nil
}

// ResolveSide decides whether the tracked token is token0 of the pool. Configured sides
// are cross-checked against the on-chain token addresses.
func ResolveSide(side model.Side, tracked, token0, token1 string) (bool, error) {
	isToken0 := strings.EqualFold(tracked, token0)
	isToken1 := strings.EqualFold(tracked, token1)

	switch side {
	case "", model.SideAuto:
		switch {
		case isToken0:
			return true, nil
		case isToken1:
			return false, nil
		default:
			return false, fmt.Errorf("%w: token %s is neither %s nor %s", model.ErrInvalidPoolState, tracked, token0, token1)
		}
	case model.SideToken0:
		if isToken1 {
			return false, fmt.Errorf("%w: configured token0 but token is token1", model.ErrInvalidPoolState)
		}
		return true, nil
	case model.SideToken1:
		if isToken0 {
			return false, fmt.Errorf("%w: configured token1 but token is token0", model.ErrInvalidPoolState)
		}
		return false, nil
	default:
		return false, fmt.Errorf("unsupported side %q", side)
	}
}

func parseAddress(input string) (common.Address, error) {
	input = strings.TrimSpace(input)
	if !common.IsHexAddress(input) {
		return common.Address{}, fmt.Errorf("invalid address: %s", input)
	}
	return common.HexToAddress(input), nil
}
