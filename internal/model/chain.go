package model

import (
	"fmt"
	"strings"
)

// ChainID identifies a supported network.
type ChainID string

const (
	ChainEthereum ChainID = "ethereum"
	ChainOptimism ChainID = "optimism"
	ChainBase     ChainID = "base"
	ChainOsmosis  ChainID = "osmosis"
)

// ChainKind groups chains by the way they are queried.
type ChainKind int

const (
	KindUnknown ChainKind = iota
	KindEVM
	KindCosmos
)

func (k ChainKind) String() string {
	switch k {
	case KindEVM:
		return "evm"
	case KindCosmos:
		return "cosmos"
	default:
		return "unknown"
	}
}

// AllChains lists every supported chain in a stable order.
func AllChains() []ChainID {
	return []ChainID{ChainEthereum, ChainOptimism, ChainBase, ChainOsmosis}
}

// Kind returns the chain family.
func (c ChainID) Kind() ChainKind {
	switch c {
	case ChainEthereum, ChainOptimism, ChainBase:
		return KindEVM
	case ChainOsmosis:
		return KindCosmos
	default:
		return KindUnknown
	}
}

func (c ChainID) String() string {
	return string(c)
}

// ParseChainID converts a config value into a ChainID.
func ParseChainID(input string) (ChainID, error) {
	id := ChainID(strings.ToLower(strings.TrimSpace(input)))
	if id.Kind() == KindUnknown {
		return "", fmt.Errorf("unsupported chain: %q", input)
	}
	return id, nil
}
