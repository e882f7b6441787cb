package oracle

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"liquidityOracle/internal/model"
)

var (
	// ErrAllChainsFailed is matched by every AggregateError.
	ErrAllChainsFailed = errors.New("all chains failed")
	// ErrChainUnavailable is returned when a chain is absent from the current snapshot.
	ErrChainUnavailable = errors.New("chain unavailable")
)

// AggregateError is returned when no chain produced a price in a refresh cycle.
type AggregateError struct {
	Failures map[model.ChainID]error
}

func (e *AggregateError) Error() string {
	chains := make([]string, 0, len(e.Failures))
	for chain := range e.Failures {
		chains = append(chains, string(chain))
	}
	sort.Strings(chains)

	reasons := make([]string, 0, len(chains))
	for _, chain := range chains {
		reasons = append(reasons, fmt.Sprintf("%s: %v", chain, e.Failures[model.ChainID(chain)]))
	}
	if len(reasons) == 0 {
		return ErrAllChainsFailed.Error() + ": no chains configured"
	}
	return ErrAllChainsFailed.Error() + ": " + strings.Join(reasons, "; ")
}

func (e *AggregateError) Is(target error) bool {
	return target == ErrAllChainsFailed
}

func (e *AggregateError) Unwrap() []error {
	errs := make([]error, 0, len(e.Failures))
	for _, err := range e.Failures {
		errs = append(errs, err)
	}
	return errs
}
