package dex

import (
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum/accounts/abi"
)

const v2PairABIJSON = `[
  {
    "inputs": [],
    "name": "getReserves",
    "outputs": [
      {"internalType": "uint112", "name": "reserve0", "type": "uint112"},
      {"internalType": "uint112", "name": "reserve1", "type": "uint112"},
      {"internalType": "uint32", "name": "blockTimestampLast", "type": "uint32"}
    ],
    "stateMutability": "view",
    "type": "function"
  },
  {
    "inputs": [],
    "name": "token0",
    "outputs": [{"internalType": "address", "name": "", "type": "address"}],
    "stateMutability": "view",
    "type": "function"
  },
  {
    "inputs": [],
    "name": "token1",
    "outputs": [{"internalType": "address", "name": "", "type": "address"}],
    "stateMutability": "view",
    "type": "function"
  }
]`

const v3PoolABIJSON = `[
  {
    "inputs": [],
    "name": "token0",
    "outputs": [{"internalType": "address", "name": "", "type": "address"}],
    "stateMutability": "view",
    "type": "function"
  },
  {
    "inputs": [],
    "name": "token1",
    "outputs": [{"internalType": "address", "name": "", "type": "address"}],
    "stateMutability": "view",
    "type": "function"
  },
  {
    "inputs": [],
    "name": "liquidity",
    "outputs": [{"internalType": "uint128", "name": "", "type": "uint128"}],
    "stateMutability": "view",
    "type": "function"
  },
  {
    "inputs": [],
    "name": "slot0",
    "outputs": [
      {"internalType": "uint160", "name": "sqrtPriceX96", "type": "uint160"},
      {"internalType": "int24", "name": "tick", "type": "int24"},
      {"internalType": "uint16", "name": "observationIndex", "type": "uint16"},
      {"internalType": "uint16", "name": "observationCardinality", "type": "uint16"},
      {"internalType": "uint16", "name": "observationCardinalityNext", "type": "uint16"},
      {"internalType": "uint8", "name": "feeProtocol", "type": "uint8"},
      {"internalType": "bool", "name": "unlocked", "type": "bool"}
    ],
    "stateMutability": "view",
    "type": "function"
  }
]`

var (
	v2PairABI     abi.ABI
	v2PairABIOnce sync.Once
	v2PairABIErr  error

	v3PoolABI     abi.ABI
	v3PoolABIOnce sync.Once
	v3PoolABIErr  error
)

// V2PairABI returns the parsed constant-product pair ABI.
func V2PairABI() (abi.ABI, error) {
	v2PairABIOnce.Do(func() {
		v2PairABI, v2PairABIErr = abi.JSON(strings.NewReader(v2PairABIJSON))
	})
	return v2PairABI, v2PairABIErr
}

// V3PoolABI returns the parsed V3 pool ABI.
func V3PoolABI() (abi.ABI, error) {
	v3PoolABIOnce.Do(func() {
		v3PoolABI, v3PoolABIErr = abi.JSON(strings.NewReader(v3PoolABIJSON))
	})
	return v3PoolABI, v3PoolABIErr
}
