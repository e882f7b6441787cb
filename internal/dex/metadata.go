package dex

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/rpc"

	"liquidityOracle/internal/model"
)

// ContractCaller performs read-only contract calls.
type ContractCaller interface {
	CallContract(ctx context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error)
}

// PoolTokens are the immutable token addresses of a pool.
type PoolTokens struct {
	Token0 common.Address
	Token1 common.Address
}

// PoolTokensCache caches pool token addresses by pool address.
type PoolTokensCache struct {
	mu   sync.RWMutex
	data map[common.Address]PoolTokens
}

func NewPoolTokensCache() *PoolTokensCache {
	return &PoolTokensCache{data: make(map[common.Address]PoolTokens)}
}

func (c *PoolTokensCache) Get(address common.Address) (PoolTokens, bool) {
	c.mu.RLock()
	tokens, ok := c.data[address]
	c.mu.RUnlock()
	return tokens, ok
}

func (c *PoolTokensCache) Set(address common.Address, tokens PoolTokens) {
	c.mu.Lock()
	c.data[address] = tokens
	c.mu.Unlock()
}

// TokenMetaCache caches token metadata by address.
type TokenMetaCache struct {
	mu   sync.RWMutex
	data map[common.Address]TokenMeta
}

func NewTokenMetaCache() *TokenMetaCache {
	return &TokenMetaCache{data: make(map[common.Address]TokenMeta)}
}

func (c *TokenMetaCache) Get(address common.Address) (TokenMeta, bool) {
	c.mu.RLock()
	meta, ok := c.data[address]
	c.mu.RUnlock()
	return meta, ok
}

func (c *TokenMetaCache) Set(address common.Address, meta TokenMeta) {
	c.mu.Lock()
	c.data[address] = meta
	c.mu.Unlock()
}

// TokenMeta captures the ERC20 fields the oracle needs.
type TokenMeta struct {
	Address  string
	Decimals uint8
	Symbol   string
}

// FetchTokenMeta loads token metadata via ERC20 calls. Symbol is best effort.
func FetchTokenMeta(ctx context.Context, caller ContractCaller, token common.Address) (TokenMeta, error) {
	meta := TokenMeta{Address: token.Hex()}
	if caller == nil {
		return meta, fmt.Errorf("contract caller is nil")
	}

	stringABI, err := ERC20ABI()
	if err != nil {
		return meta, fmt.Errorf("parse erc20 abi: %w", err)
	}

	values, err := callMethod(ctx, caller, token, stringABI, "decimals")
	if err != nil {
		return meta, err
	}
	decimals, err := asUint8(values[0])
	if err != nil {
		return meta, err
	}
	meta.Decimals = decimals

	if values, err := callMethod(ctx, caller, token, stringABI, "symbol"); err == nil {
		if symbol, ok := values[0].(string); ok {
			meta.Symbol = symbol
		}
	} else if bytes32ABI, abiErr := erc20ABIBytes32Instance(); abiErr == nil {
		if values, err := callMethod(ctx, caller, token, bytes32ABI, "symbol"); err == nil {
			if symbol, ok := bytes32ToString(values[0]); ok {
				meta.Symbol = symbol
			}
		}
	}

	return meta, nil
}

// callMethod packs, calls and unpacks a no-argument (or given-argument) view method.
// Failures to reach the node are wrapped as model.TransportError; JSON-RPC error
// responses such as reverts are returned as plain errors.
func callMethod(ctx context.Context, caller ContractCaller, to common.Address, parsed abi.ABI, method string, args ...interface{}) ([]interface{}, error) {
	data, err := parsed.Pack(method, args...)
	if err != nil {
		return nil, fmt.Errorf("pack %s: %w", method, err)
	}
	msg := ethereum.CallMsg{To: &to, Data: data}
	resp, err := caller.CallContract(ctx, msg, nil)
	if err != nil {
		if isRPCError(err) {
			return nil, fmt.Errorf("call %s: %w", method, err)
		}
		return nil, &model.TransportError{Err: fmt.Errorf("call %s: %w", method, err)}
	}
	if len(resp) == 0 {
		return nil, fmt.Errorf("call %s: empty response", method)
	}
	values, err := parsed.Unpack(method, resp)
	if err != nil {
		return nil, fmt.Errorf("unpack %s: %w", method, err)
	}
	if len(values) == 0 {
		return nil, fmt.Errorf("unpack %s: no values", method)
	}
	return values, nil
}

func isRPCError(err error) bool {
	var rpcErr rpc.Error
	return errors.As(err, &rpcErr)
}

func bytes32ToString(value interface{}) (string, bool) {
	switch v := value.(type) {
	case [32]byte:
		return string(bytes.TrimRight(v[:], "\x00")), true
	case []byte:
		return string(bytes.TrimRight(v, "\x00")), true
	default:
		return "", false
	}
}

func asAddress(value interface{}) (common.Address, error) {
	switch v := value.(type) {
	case common.Address:
		return v, nil
	case *common.Address:
		return *v, nil
	default:
		return common.Address{}, fmt.Errorf("unsupported address type %T", value)
	}
}

func asBigInt(value interface{}) (*big.Int, error) {
	switch v := value.(type) {
	case *big.Int:
		return new(big.Int).Set(v), nil
	case big.Int:
		return new(big.Int).Set(&v), nil
	case uint8:
		return new(big.Int).SetUint64(uint64(v)), nil
	case uint16:
		return new(big.Int).SetUint64(uint64(v)), nil
	case uint32:
		return new(big.Int).SetUint64(uint64(v)), nil
	case uint64:
		return new(big.Int).SetUint64(v), nil
	case int8:
		return big.NewInt(int64(v)), nil
	case int16:
		return big.NewInt(int64(v)), nil
	case int32:
		return big.NewInt(int64(v)), nil
	case int64:
		return big.NewInt(v), nil
	default:
		return nil, fmt.Errorf("unsupported int type %T", value)
	}
}

func asUint8(value interface{}) (uint8, error) {
	switch v := value.(type) {
	case uint8:
		return v, nil
	case *big.Int:
		if !v.IsUint64() || v.Uint64() > 255 {
			return 0, fmt.Errorf("uint8 overflow: %s", v.String())
		}
		return uint8(v.Uint64()), nil
	default:
		return 0, fmt.Errorf("unsupported uint8 type %T", value)
	}
}

func int24FromBig(value *big.Int) (int32, error) {
	min := big.NewInt(-1 << 23)
	max := big.NewInt((1 << 23) - 1)
	if value.Cmp(min) < 0 || value.Cmp(max) > 0 {
		return 0, fmt.Errorf("int24 overflow: %s", value.String())
	}
	return int32(value.Int64()), nil
}
