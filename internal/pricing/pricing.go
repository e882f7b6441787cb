// Package pricing turns pool state into USD prices and liquidity for one chain.
package pricing

import (
	"context"
	"errors"
	"fmt"

	"liquidityOracle/internal/model"
)

// ErrReferenceAssetUnavailable marks a failed reference bootstrap. Every EVM chain of
// the same cycle fails with it.
var ErrReferenceAssetUnavailable = errors.New("reference asset unavailable")

// Stage names a step of a chain fetch.
type Stage string

const (
	StageResolvingEndpoint Stage = "resolving-endpoint"
	StageReadingPool       Stage = "reading-pool"
	StageAwaitingReference Stage = "awaiting-reference"
	StageComputing         Stage = "computing"
)

// StageError records the step a chain fetch failed in.
type StageError struct {
	Chain model.ChainID
	Stage Stage
	Err   error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("%s: %s: %v", e.Chain, e.Stage, e.Err)
}

func (e *StageError) Unwrap() error {
	return e.Err
}

// EndpointResolver hands out the live connection for a chain.
type EndpointResolver[T any] interface {
	Resolve(ctx context.Context, chainID model.ChainID) (T, error)
	Invalidate(chainID model.ChainID)
}

// Quote is the result of a successful chain fetch. TVLUSD is nil when liquidity
// could not be measured.
type Quote struct {
	Chain    model.ChainID
	PriceUSD float64
	TVLUSD   *float64
}

// Fetcher prices the tracked token on one chain.
type Fetcher interface {
	Chain() model.ChainID
	Fetch(ctx context.Context, ref *ReferenceFuture) (Quote, error)
}

// invalidateOnTransport drops the chain's connection when err came from the network.
func invalidateOnTransport[T any](resolver EndpointResolver[T], chainID model.ChainID, err error) {
	if errors.Is(err, model.ErrTransport) {
		resolver.Invalidate(chainID)
	}
}
